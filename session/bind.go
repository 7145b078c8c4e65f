package session

import (
	"context"

	"github.com/kendall-kelly/repairdesk-api/models"
)

// ChangeSource delivers identity changes for accounts. The returned function unsubscribes.
type ChangeSource func(onChange func(accountID string, identity *models.Identity)) func()

// Bind feeds identity changes for accountID into the context until Close is called
func (c *Context) Bind(ctx context.Context, source ChangeSource, accountID string) {
	unsubscribe := source(func(changed string, identity *models.Identity) {
		if changed != accountID {
			return
		}
		c.HandleIdentityChange(ctx, identity)
	})

	c.mu.Lock()
	previous := c.unbind
	c.unbind = unsubscribe
	c.mu.Unlock()

	if previous != nil {
		previous()
	}
}
