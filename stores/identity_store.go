package stores

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/kendall-kelly/repairdesk-api/models"
	"golang.org/x/crypto/bcrypt"
	"gorm.io/gorm"
)

// MinPasswordLength is the shortest password the identity store accepts
const MinPasswordLength = 6

// IdentityChange is emitted whenever an account signs in, signs out or is removed.
// Identity is nil when the account no longer has an active identity.
type IdentityChange struct {
	AccountID string
	Identity  *models.Identity
}

// TokenConfig controls how session tokens are signed
type TokenConfig struct {
	Secret   []byte
	Issuer   string
	Audience string
	TTL      time.Duration
}

// TokenClaims is the payload of a session token
type TokenClaims struct {
	Email string `json:"email"`
	jwt.RegisteredClaims
}

// IdentityStore manages email/password accounts and their sessions
type IdentityStore struct {
	db       *gorm.DB
	tokens   TokenConfig
	validate *validator.Validate
	now      func() time.Time

	mu        sync.RWMutex
	listeners map[uint64]func(IdentityChange)
	nextID    uint64
}

// NewIdentityStore creates an identity store backed by db
func NewIdentityStore(db *gorm.DB, tokens TokenConfig) *IdentityStore {
	return &IdentityStore{
		db:        db,
		tokens:    tokens,
		validate:  validator.New(),
		now:       time.Now,
		listeners: make(map[uint64]func(IdentityChange)),
	}
}

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

// CreateAccount registers a new account
func (s *IdentityStore) CreateAccount(ctx context.Context, email, password string) (*models.Identity, error) {
	email = normalizeEmail(email)
	if err := s.validate.Var(email, "required,email"); err != nil {
		return nil, models.ErrInvalidEmail
	}
	if len(password) < MinPasswordLength {
		return nil, models.ErrWeakPassword
	}

	var count int64
	if err := s.db.WithContext(ctx).Model(&models.Account{}).Where("email = ?", email).Count(&count).Error; err != nil {
		return nil, &models.ReadError{Op: "check account email", Err: err}
	}
	if count > 0 {
		return nil, models.ErrDuplicateEmail
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return nil, fmt.Errorf("failed to hash password: %w", err)
	}

	account := models.Account{Email: email, PasswordHash: string(hash)}
	if err := s.db.WithContext(ctx).Create(&account).Error; err != nil {
		if errors.Is(err, gorm.ErrDuplicatedKey) {
			return nil, models.ErrDuplicateEmail
		}
		return nil, &models.WriteError{Op: "create account", Err: err}
	}

	return &models.Identity{ID: account.ID, Email: account.Email}, nil
}

// SignIn checks the credentials, opens a session and returns a signed token for it
func (s *IdentityStore) SignIn(ctx context.Context, email, password string) (*models.Identity, string, error) {
	email = normalizeEmail(email)
	if err := s.validate.Var(email, "required,email"); err != nil {
		return nil, "", models.ErrInvalidEmail
	}

	var account models.Account
	if err := s.db.WithContext(ctx).Where("email = ?", email).First(&account).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, "", models.ErrUserNotFound
		}
		return nil, "", &models.ReadError{Op: "find account", Err: err}
	}
	if account.Disabled {
		return nil, "", models.ErrUserDisabled
	}
	if err := bcrypt.CompareHashAndPassword([]byte(account.PasswordHash), []byte(password)); err != nil {
		return nil, "", models.ErrWrongPassword
	}

	now := s.now()
	session := models.Session{
		ID:        uuid.NewString(),
		AccountID: account.ID,
		ExpiresAt: now.Add(s.tokens.TTL),
	}
	if err := s.db.WithContext(ctx).Create(&session).Error; err != nil {
		return nil, "", &models.WriteError{Op: "create session", Err: err}
	}

	token, err := s.signToken(account, session, now)
	if err != nil {
		return nil, "", err
	}

	identity := &models.Identity{ID: account.ID, Email: account.Email}
	s.emit(IdentityChange{AccountID: account.ID, Identity: identity})
	return identity, token, nil
}

func (s *IdentityStore) signToken(account models.Account, session models.Session, now time.Time) (string, error) {
	claims := TokenClaims{
		Email: account.Email,
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    s.tokens.Issuer,
			Subject:   account.ID,
			Audience:  jwt.ClaimStrings{s.tokens.Audience},
			ExpiresAt: jwt.NewNumericDate(session.ExpiresAt),
			IssuedAt:  jwt.NewNumericDate(now),
			ID:        session.ID,
		},
	}

	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(s.tokens.Secret)
	if err != nil {
		return "", fmt.Errorf("failed to sign session token: %w", err)
	}
	return token, nil
}

// SignOut ends a session. Ending an unknown session is a no-op.
func (s *IdentityStore) SignOut(ctx context.Context, sessionID string) error {
	var session models.Session
	err := s.db.WithContext(ctx).Where("id = ?", sessionID).First(&session).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil
	}
	if err != nil {
		return &models.ReadError{Op: "find session", Err: err}
	}

	if err := s.db.WithContext(ctx).Where("id = ?", sessionID).Delete(&models.Session{}).Error; err != nil {
		return &models.WriteError{Op: "delete session", Err: err}
	}

	s.emit(IdentityChange{AccountID: session.AccountID})
	return nil
}

// VerifySession resolves a token's session to its identity.
// Revoked, expired or mismatched sessions return ErrInvalidSession.
func (s *IdentityStore) VerifySession(ctx context.Context, sessionID, accountID string) (*models.Identity, error) {
	var session models.Session
	if err := s.db.WithContext(ctx).Where("id = ?", sessionID).First(&session).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, models.ErrInvalidSession
		}
		return nil, &models.ReadError{Op: "find session", Err: err}
	}
	if session.AccountID != accountID || session.Expired(s.now()) {
		return nil, models.ErrInvalidSession
	}

	var account models.Account
	if err := s.db.WithContext(ctx).Where("id = ?", accountID).First(&account).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, models.ErrInvalidSession
		}
		return nil, &models.ReadError{Op: "find account", Err: err}
	}
	if account.Disabled {
		return nil, models.ErrUserDisabled
	}

	return &models.Identity{ID: account.ID, Email: account.Email}, nil
}

// DeleteAccount removes an account and all of its sessions
func (s *IdentityStore) DeleteAccount(ctx context.Context, accountID string) error {
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("account_id = ?", accountID).Delete(&models.Session{}).Error; err != nil {
			return err
		}
		return tx.Where("id = ?", accountID).Delete(&models.Account{}).Error
	})
	if err != nil {
		return &models.WriteError{Op: "delete account", Err: err}
	}

	s.emit(IdentityChange{AccountID: accountID})
	return nil
}

// SetDisabled blocks or unblocks sign-in for an account
func (s *IdentityStore) SetDisabled(ctx context.Context, accountID string, disabled bool) error {
	res := s.db.WithContext(ctx).Model(&models.Account{}).Where("id = ?", accountID).Update("disabled", disabled)
	if res.Error != nil {
		return &models.WriteError{Op: "update account", Err: res.Error}
	}
	if res.RowsAffected == 0 {
		return &models.NotFoundError{Resource: "account", ID: accountID}
	}
	if disabled {
		s.emit(IdentityChange{AccountID: accountID})
	}
	return nil
}

// NotifyProfileChanged re-announces an account after its profile changed, so bound
// sessions resolve the role again. Missing or disabled accounts are announced as signed out.
func (s *IdentityStore) NotifyProfileChanged(ctx context.Context, accountID string) error {
	var account models.Account
	err := s.db.WithContext(ctx).Where("id = ?", accountID).First(&account).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		s.emit(IdentityChange{AccountID: accountID})
		return nil
	}
	if err != nil {
		return &models.ReadError{Op: "find account", Err: err}
	}

	if account.Disabled {
		s.emit(IdentityChange{AccountID: accountID})
		return nil
	}
	s.emit(IdentityChange{AccountID: accountID, Identity: &models.Identity{ID: account.ID, Email: account.Email}})
	return nil
}

// OnChange registers cb for identity changes and returns a function that removes it
func (s *IdentityStore) OnChange(cb func(IdentityChange)) func() {
	s.mu.Lock()
	s.nextID++
	id := s.nextID
	s.listeners[id] = cb
	s.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			s.mu.Lock()
			delete(s.listeners, id)
			s.mu.Unlock()
		})
	}
}

func (s *IdentityStore) emit(change IdentityChange) {
	s.mu.RLock()
	listeners := make([]func(IdentityChange), 0, len(s.listeners))
	for _, cb := range s.listeners {
		listeners = append(listeners, cb)
	}
	s.mu.RUnlock()

	for _, cb := range listeners {
		cb(change)
	}
}

// Changes is OnChange in the shape expected by session bindings
func (s *IdentityStore) Changes(cb func(accountID string, identity *models.Identity)) func() {
	return s.OnChange(func(c IdentityChange) {
		cb(c.AccountID, c.Identity)
	})
}
