package middlewares

import (
	"net/http"

	"github.com/geocoder89/authhub/internal/session"
	"github.com/gin-gonic/gin"
)

// Keep this small interface so tests can fake it easily.
type SessionResolver interface {
	Resolve(ctx *gin.Context) (*session.Claims, error)
	Renew(ctx *gin.Context, claims *session.Claims)
}

type SessionMiddleware struct {
	sessions SessionResolver
}

func NewSessionMiddleware(sessions SessionResolver) *SessionMiddleware {
	return &SessionMiddleware{sessions: sessions}
}

// RequireSession resolves the session cookie and rejects the request with a
// 401 envelope when there is no usable session. A valid session slides
// forward: the artifact is re-issued with a fresh expiry on every hit.
func (m *SessionMiddleware) RequireSession() gin.HandlerFunc {
	return func(c *gin.Context) {
		claims, err := m.sessions.Resolve(c)

		if err != nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{
				"success": false,
				"message": "Authentication required",
				"data":    nil,
			})
			return
		}

		m.sessions.Renew(c, claims)

		// Stash the identity snapshot on the context
		c.Set(CtxUserID, claims.UserID)
		c.Set(CtxEmail, claims.Email)

		c.Next()
	}
}

// Helpers so handlers don't need to know the magic keys.

func UserIDFromContext(c *gin.Context) (int64, bool) {
	v, ok := c.Get(CtxUserID)
	if !ok {
		return 0, false
	}
	id, ok := v.(int64)
	return id, ok
}

func EmailFromContext(c *gin.Context) (string, bool) {
	v, ok := c.Get(CtxEmail)
	if !ok {
		return "", false
	}
	email, ok := v.(string)
	return email, ok
}
