// middleware/auth.go
package middleware

import (
	"errors"
	"strings"

	"box-mining-service/logger"
	"box-mining-service/services"

	"github.com/gofiber/fiber/v2"
	"github.com/golang-jwt/jwt/v5"
	"go.uber.org/zap"
)

// UsernameLocalKey is where the authenticated username is stored on the fiber context.
const UsernameLocalKey = "x_username"

// Claims mirrors the session token issued by the web app. Older tokens only carry sub.
type Claims struct {
	XUsername string `json:"xUsername"`
	jwt.RegisteredClaims
}

// Authenticator verifies HS256 bearer tokens signed with a shared secret.
type Authenticator struct {
	secret []byte
}

func NewAuthenticator(secret string) *Authenticator {
	return &Authenticator{secret: []byte(secret)}
}

// Verify returns the caller's username or services.ErrUnauthenticated.
func (a *Authenticator) Verify(tokenString string) (string, error) {
	if tokenString == "" || len(a.secret) == 0 {
		return "", services.ErrUnauthenticated
	}
	token, err := jwt.ParseWithClaims(tokenString, &Claims{}, func(t *jwt.Token) (any, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, errors.New("unexpected signing method")
		}
		return a.secret, nil
	})
	if err != nil {
		return "", services.ErrUnauthenticated
	}
	claims, ok := token.Claims.(*Claims)
	if !ok || !token.Valid {
		return "", services.ErrUnauthenticated
	}
	username := strings.TrimSpace(claims.XUsername)
	if username == "" {
		username = strings.TrimSpace(claims.Subject)
	}
	if username == "" {
		return "", services.ErrUnauthenticated
	}
	return username, nil
}

func bearerToken(c *fiber.Ctx) string {
	header := c.Get(fiber.HeaderAuthorization)
	if !strings.HasPrefix(header, "Bearer ") {
		return ""
	}
	return strings.TrimSpace(strings.TrimPrefix(header, "Bearer "))
}

func unauthorized(c *fiber.Ctx) error {
	return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{"error": "Unauthorized"})
}

// RequireAuth rejects requests without a valid bearer token.
func RequireAuth(a *Authenticator) fiber.Handler {
	return func(c *fiber.Ctx) error {
		username, err := a.Verify(bearerToken(c))
		if err != nil {
			logger.Debug("bearer verification failed", zap.String("path", c.Path()))
			return unauthorized(c)
		}
		c.Locals(UsernameLocalKey, username)
		return c.Next()
	}
}

// OptionalAuth attaches the username when a valid token is present and lets everyone else through anonymously.
func OptionalAuth(a *Authenticator) fiber.Handler {
	return func(c *fiber.Ctx) error {
		if username, err := a.Verify(bearerToken(c)); err == nil {
			c.Locals(UsernameLocalKey, username)
		}
		return c.Next()
	}
}

// StreamAuth accepts the token from the `token` query parameter as well, because
// browsers cannot set headers on EventSource requests.
func StreamAuth(a *Authenticator) fiber.Handler {
	return func(c *fiber.Ctx) error {
		token := bearerToken(c)
		if token == "" {
			token = strings.TrimSpace(c.Query("token"))
		}
		username, err := a.Verify(token)
		if err != nil {
			logger.Debug("stream token verification failed", zap.String("path", c.Path()))
			return unauthorized(c)
		}
		c.Locals(UsernameLocalKey, username)
		return c.Next()
	}
}

// Username returns the authenticated username, or "" for anonymous callers.
func Username(c *fiber.Ctx) string {
	username, _ := c.Locals(UsernameLocalKey).(string)
	return username
}
