package middleware

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/auth0/go-jwt-middleware/v2"
	"github.com/auth0/go-jwt-middleware/v2/validator"
	"github.com/gin-gonic/gin"
	"github.com/kendall-kelly/repairdesk-api/config"
	"github.com/kendall-kelly/repairdesk-api/logger"
)

// SessionCookie is the cookie the login endpoint sets for browser clients
const SessionCookie = "session"

const (
	userIDKey = "user_id"
	claimsKey = "validated_claims"
)

// CustomClaims contains custom data we want from the token.
type CustomClaims struct {
	Email string `json:"email"`
}

// Validate rejects tokens that carry no email
func (c CustomClaims) Validate(ctx context.Context) error {
	if c.Email == "" {
		return errors.New("token has no email claim")
	}
	return nil
}

func newValidator(cfg *config.Config) (*validator.Validator, error) {
	secret := []byte(cfg.JWTSecret)
	keyFunc := func(ctx context.Context) (interface{}, error) {
		return secret, nil
	}

	return validator.New(
		keyFunc,
		validator.HS256,
		cfg.JWTIssuer,
		[]string{cfg.JWTAudience},
		validator.WithCustomClaims(
			func() validator.CustomClaims {
				return &CustomClaims{}
			},
		),
		validator.WithAllowedClockSkew(time.Minute),
	)
}

// EnsureValidToken is a middleware that will check the validity of our JWT.
// Tokens are read from the Authorization header or the session cookie.
func EnsureValidToken(cfg *config.Config) gin.HandlerFunc {
	return tokenMiddleware(cfg, false)
}

// OptionalToken validates a token when one is present. Requests without a valid
// token continue with no claims and resolve as signed out.
func OptionalToken(cfg *config.Config) gin.HandlerFunc {
	return tokenMiddleware(cfg, true)
}

func tokenMiddleware(cfg *config.Config, optional bool) gin.HandlerFunc {
	jwtValidator, err := newValidator(cfg)
	if err != nil {
		logger.Fatal("Failed to set up the jwt validator", map[string]interface{}{"error": err.Error()})
	}

	errorHandler := func(w http.ResponseWriter, r *http.Request, err error) {
		if optional {
			logger.Debug("Ignoring invalid token on optional route", map[string]interface{}{"error": err.Error()})
			return
		}
		logger.Warn("Encountered error while validating JWT", map[string]interface{}{
			"error": err.Error(),
			"path":  r.URL.Path,
		})

		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusUnauthorized)
		if _, writeErr := w.Write([]byte(`{"success":false,"error":{"code":"INVALID_TOKEN","message":"Failed to validate JWT."},"redirect":"/login"}`)); writeErr != nil {
			logger.Error("Failed to write error response", map[string]interface{}{"error": writeErr.Error()})
		}
	}

	middleware := jwtmiddleware.New(
		jwtValidator.ValidateToken,
		jwtmiddleware.WithErrorHandler(errorHandler),
		jwtmiddleware.WithCredentialsOptional(optional),
		jwtmiddleware.WithTokenExtractor(jwtmiddleware.MultiTokenExtractor(
			jwtmiddleware.AuthHeaderTokenExtractor,
			jwtmiddleware.CookieTokenExtractor(SessionCookie),
		)),
	)

	return func(c *gin.Context) {
		called := false
		var handler http.HandlerFunc = func(w http.ResponseWriter, r *http.Request) {
			called = true
			c.Request = r

			if token, ok := r.Context().Value(jwtmiddleware.ContextKey{}).(*validator.ValidatedClaims); ok {
				c.Set(userIDKey, token.RegisteredClaims.Subject)
				c.Set(claimsKey, token)
			}

			c.Next()
		}

		middleware.CheckJWT(handler).ServeHTTP(c.Writer, c.Request)

		if !called {
			if optional {
				c.Next()
				return
			}
			c.Abort()
		}
	}
}

// GetUserID extracts the user ID from the Gin context
func GetUserID(c *gin.Context) (string, error) {
	userID, exists := c.Get(userIDKey)
	if !exists {
		return "", &AuthError{Code: "MISSING_USER_ID", Message: "User ID not found in context"}
	}

	userIDStr, ok := userID.(string)
	if !ok {
		return "", &AuthError{Code: "INVALID_USER_ID", Message: "User ID is not a string"}
	}

	return userIDStr, nil
}

// GetClaims extracts the validated JWT claims from the Gin context
func GetClaims(c *gin.Context) (*validator.ValidatedClaims, error) {
	claims, exists := c.Get(claimsKey)
	if !exists {
		return nil, &AuthError{Code: "MISSING_CLAIMS", Message: "Claims not found in context"}
	}

	validatedClaims, ok := claims.(*validator.ValidatedClaims)
	if !ok {
		return nil, &AuthError{Code: "INVALID_CLAIMS", Message: "Claims are not in the expected format"}
	}

	return validatedClaims, nil
}

// AuthError represents an authentication error
type AuthError struct {
	Code    string
	Message string
}

func (e *AuthError) Error() string {
	return e.Message
}
