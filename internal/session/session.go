package session

import (
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
)

// CookieName is the fixed name of the session cookie.
const CookieName = "auth_token"

const DefaultTTL = 7 * 24 * time.Hour

var ErrNoSession = errors.New("no valid session")

// Claims is the identity snapshot embedded in the session artifact at issue
// time. It is not a live reference: handlers re-check it against the store.
type Claims struct {
	UserID int64  `json:"uid"`
	Email  string `json:"email"`
	jwt.RegisteredClaims
}

type Manager struct {
	secret []byte
	ttl    time.Duration
	secure bool
}

// NewManager builds the session manager. secure controls the cookie Secure
// flag and should be true outside development.
func NewManager(secret string, ttl time.Duration, secure bool) *Manager {
	if ttl <= 0 {
		ttl = DefaultTTL
	}

	return &Manager{
		secret: []byte(secret),
		ttl:    ttl,
		secure: secure,
	}
}

// Issue signs a fresh session artifact for the user and attaches it to the
// response as the session cookie, expiring ttl from now.
func (m *Manager) Issue(ctx *gin.Context, userID int64, email string) error {
	now := time.Now().UTC()

	claims := Claims{
		UserID: userID,
		Email:  email,
		RegisteredClaims: jwt.RegisteredClaims{
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(m.ttl)),
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)

	raw, err := token.SignedString(m.secret)

	if err != nil {
		return err
	}

	m.setCookie(ctx, raw, int(m.ttl.Seconds()))
	return nil
}

// Resolve parses the session cookie from the incoming request. Absent,
// malformed, expired and tampered artifacts all come back as ErrNoSession;
// none of them are fatal.
func (m *Manager) Resolve(ctx *gin.Context) (*Claims, error) {
	raw, err := ctx.Cookie(CookieName)

	if err != nil || raw == "" {
		return nil, ErrNoSession
	}

	token, err := jwt.ParseWithClaims(raw, &Claims{}, func(t *jwt.Token) (interface{}, error) {
		// Enforce HS256
		_, ok := t.Method.(*jwt.SigningMethodHMAC)

		if !ok {
			return nil, errors.New("unexpected signing method")
		}
		return m.secret, nil
	})

	if err != nil {
		return nil, ErrNoSession
	}

	claims, ok := token.Claims.(*Claims)

	if !ok || !token.Valid || claims.UserID == 0 {
		return nil, ErrNoSession
	}

	return claims, nil
}

// Renew re-issues the artifact with a fresh expiry; called after every
// successful resolve so validity slides forward by the configured TTL.
func (m *Manager) Renew(ctx *gin.Context, claims *Claims) {
	// best effort: the current artifact stays valid if re-signing fails
	_ = m.Issue(ctx, claims.UserID, claims.Email)
}

// Clear expires the session cookie so subsequent resolves fail. Clearing an
// absent session is fine.
func (m *Manager) Clear(ctx *gin.Context) {
	m.setCookie(ctx, "", -1)
}

func (m *Manager) setCookie(ctx *gin.Context, value string, maxAge int) {
	ctx.SetSameSite(http.SameSiteStrictMode)

	ctx.SetCookie(
		CookieName,
		value,
		maxAge,
		"/",
		"",
		m.secure,
		true, // HttpOnly.
	)
}
