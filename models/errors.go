package models

import (
	"errors"
	"fmt"
)

// Identity store error codes
const (
	CodeDuplicateEmail = "DUPLICATE_EMAIL"
	CodeWeakPassword   = "WEAK_PASSWORD"
	CodeInvalidEmail   = "INVALID_EMAIL"
	CodeUserNotFound   = "USER_NOT_FOUND"
	CodeWrongPassword  = "WRONG_PASSWORD"
	CodeUserDisabled   = "USER_DISABLED"
	CodeInvalidSession = "INVALID_SESSION"
)

// AuthError is returned by the identity store. Code is stable, Message is user facing.
type AuthError struct {
	Code    string
	Message string
}

func (e *AuthError) Error() string {
	return e.Message
}

// Is matches any AuthError with the same code
func (e *AuthError) Is(target error) bool {
	t, ok := target.(*AuthError)
	return ok && t.Code == e.Code
}

var (
	ErrDuplicateEmail = &AuthError{Code: CodeDuplicateEmail, Message: "The email address is already in use by another account."}
	ErrWeakPassword   = &AuthError{Code: CodeWeakPassword, Message: "The password is too weak."}
	ErrInvalidEmail   = &AuthError{Code: CodeInvalidEmail, Message: "The email address is not valid."}
	ErrUserNotFound   = &AuthError{Code: CodeUserNotFound, Message: "Invalid email or password."}
	ErrWrongPassword  = &AuthError{Code: CodeWrongPassword, Message: "Invalid email or password."}
	ErrUserDisabled   = &AuthError{Code: CodeUserDisabled, Message: "Your account has been disabled."}
	ErrInvalidSession = &AuthError{Code: CodeInvalidSession, Message: "Session is no longer valid."}
)

// ValidationError reports a rejected input field
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	if e.Field == "" {
		return e.Message
	}
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

// WriteError wraps a store write failure
type WriteError struct {
	Op  string
	Err error
}

func (e *WriteError) Error() string {
	return fmt.Sprintf("%s failed: %v", e.Op, e.Err)
}

func (e *WriteError) Unwrap() error {
	return e.Err
}

// ReadError wraps a store read failure
type ReadError struct {
	Op  string
	Err error
}

func (e *ReadError) Error() string {
	return fmt.Sprintf("%s failed: %v", e.Op, e.Err)
}

func (e *ReadError) Unwrap() error {
	return e.Err
}

// NotFoundError is returned when a keyed record does not exist
type NotFoundError struct {
	Resource string
	ID       string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("%s %q not found", e.Resource, e.ID)
}

// AuthorizationError is returned when a role may not perform an operation
type AuthorizationError struct {
	Role    Role
	Message string
}

func (e *AuthorizationError) Error() string {
	if e.Message != "" {
		return e.Message
	}
	return fmt.Sprintf("role %s is not allowed to perform this operation", e.Role)
}

// IsNotFound reports whether err wraps a NotFoundError
func IsNotFound(err error) bool {
	var nf *NotFoundError
	return errors.As(err, &nf)
}
