package middleware

import (
	"context"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/lokatani/scale-core/internal/models"
	"github.com/lokatani/scale-core/internal/pkg/response"
)

const (
	ContextKeyUserID = "user_id"
	ContextKeyRole   = "user_role"
)

// Identity is the result of verifying an operator token.
type Identity struct {
	UserID string
	Email  string
	Role   models.Role
}

// TokenVerifier resolves a bearer token to an identity. The concrete
// implementation lives in the auth module; everything else consumes it
// at this interface.
type TokenVerifier interface {
	Verify(ctx context.Context, token string) (*Identity, error)
}

// Auth returns a middleware that enforces operator authentication.
func Auth(verifier TokenVerifier) gin.HandlerFunc {
	return func(c *gin.Context) {
		ident, err := verifier.Verify(c.Request.Context(), extractToken(c))
		if err != nil {
			response.Unauthorized(c)
			return
		}
		c.Set(ContextKeyUserID, ident.UserID)
		c.Set(ContextKeyRole, ident.Role)
		c.Next()
	}
}

// CurrentIdentity extracts the authenticated identity from context.
func CurrentIdentity(c *gin.Context) Identity {
	uid, _ := c.Get(ContextKeyUserID)
	role, _ := c.Get(ContextKeyRole)
	id := Identity{}
	if s, ok := uid.(string); ok {
		id.UserID = s
	}
	if r, ok := role.(models.Role); ok {
		id.Role = r
	}
	return id
}

func extractToken(c *gin.Context) string {
	auth := c.GetHeader("Authorization")
	if auth != "" {
		return NormalizeToken(auth)
	}
	return NormalizeToken(c.Query("token"))
}

// NormalizeToken trims spaces and strips optional Bearer prefix.
func NormalizeToken(raw string) string {
	token := strings.TrimSpace(raw)
	if token == "" {
		return ""
	}
	if strings.HasPrefix(strings.ToLower(token), "bearer ") {
		return strings.TrimSpace(token[7:])
	}
	return token
}
