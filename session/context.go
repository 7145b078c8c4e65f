package session

import (
	"context"
	"sync"

	"github.com/kendall-kelly/repairdesk-api/logger"
	"github.com/kendall-kelly/repairdesk-api/models"
)

// GinKey is the gin context key holding the request's *Context
const GinKey = "session"

// Status of an authentication session
type Status int

const (
	// StatusUnknown means the identity or its role is still being resolved
	StatusUnknown Status = iota
	StatusSignedOut
	StatusSignedIn
)

func (s Status) String() string {
	switch s {
	case StatusSignedOut:
		return "signed_out"
	case StatusSignedIn:
		return "signed_in"
	default:
		return "unknown"
	}
}

// State is a point-in-time view of the session
type State struct {
	Status   Status
	Identity *models.Identity
	Role     models.Role
}

// SignedIn reports whether an identity is present
func (s State) SignedIn() bool {
	return s.Status == StatusSignedIn && s.Identity != nil
}

// ProfileReader resolves an identity to its profile
type ProfileReader interface {
	Get(ctx context.Context, id string) (*models.User, error)
}

// Context holds the authentication state for one client.
// HandleIdentityChange is its only writer; everything else reads.
type Context struct {
	profiles ProfileReader

	mu       sync.RWMutex
	state    State
	seq      uint64
	watchers []chan State
	unbind   func()
}

// New returns a context in the unknown state
func New(profiles ProfileReader) *Context {
	return &Context{profiles: profiles}
}

// Resolved builds a context already holding state. Used where the state is known up front.
func Resolved(state State) *Context {
	return &Context{state: state}
}

// Current returns the latest state
func (c *Context) Current() State {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.state
}

// Watch returns a channel that receives every later state.
// Pending states are replaced by newer ones if the reader falls behind.
func (c *Context) Watch() <-chan State {
	ch := make(chan State, 1)
	c.mu.Lock()
	c.watchers = append(c.watchers, ch)
	c.mu.Unlock()
	return ch
}

// HandleIdentityChange moves the session to match identity.
// A nil identity signs out. Otherwise the state becomes unknown until the profile role
// is resolved; a newer change supersedes a resolution still in flight.
func (c *Context) HandleIdentityChange(ctx context.Context, identity *models.Identity) {
	c.mu.Lock()
	c.seq++
	seq := c.seq
	if identity == nil {
		c.publishLocked(State{Status: StatusSignedOut})
		c.mu.Unlock()
		return
	}
	c.publishLocked(State{Status: StatusUnknown, Identity: identity})
	c.mu.Unlock()

	role := c.resolveRole(ctx, identity)

	c.mu.Lock()
	defer c.mu.Unlock()
	if seq != c.seq {
		return
	}
	c.publishLocked(State{Status: StatusSignedIn, Identity: identity, Role: role})
}

func (c *Context) resolveRole(ctx context.Context, identity *models.Identity) models.Role {
	if c.profiles == nil {
		return models.RoleNone
	}

	profile, err := c.profiles.Get(ctx, identity.ID)
	if err != nil {
		if !models.IsNotFound(err) {
			logger.WithError(err, "session").WithField("user_id", identity.ID).Warn("Failed to read profile, treating user as having no role")
		}
		return models.RoleNone
	}
	return models.NormalizeRole(string(profile.Role))
}

func (c *Context) publishLocked(state State) {
	c.state = state
	for _, ch := range c.watchers {
		select {
		case ch <- state:
		default:
			select {
			case <-ch:
			default:
			}
			ch <- state
		}
	}
}

// Close detaches the context from its identity source and closes every watcher
func (c *Context) Close() {
	c.mu.Lock()
	unbind := c.unbind
	c.unbind = nil
	for _, ch := range c.watchers {
		close(ch)
	}
	c.watchers = nil
	c.mu.Unlock()

	if unbind != nil {
		unbind()
	}
}
