package session_test

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/geocoder89/authhub/internal/session"
	"github.com/gin-gonic/gin"
)

func init() {
	gin.SetMode(gin.TestMode)
}

// issueCookie runs Issue through a throwaway handler and returns the cookie
// it set on the response.
func issueCookie(t *testing.T, m *session.Manager, userID int64, email string) *http.Cookie {
	t.Helper()

	r := gin.New()
	r.POST("/issue", func(c *gin.Context) {
		if err := m.Issue(c, userID, email); err != nil {
			t.Fatalf("Issue returned error: %v", err)
		}
		c.Status(http.StatusOK)
	})

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/issue", nil)
	r.ServeHTTP(w, req)

	for _, c := range w.Result().Cookies() {
		if c.Name == session.CookieName {
			return c
		}
	}

	t.Fatalf("session cookie not found in response")
	return nil
}

func resolveWith(m *session.Manager, cookies ...*http.Cookie) (*session.Claims, error) {
	var claims *session.Claims
	var resolveErr error

	r := gin.New()
	r.GET("/resolve", func(c *gin.Context) {
		claims, resolveErr = m.Resolve(c)
		c.Status(http.StatusOK)
	})

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/resolve", nil)
	for _, c := range cookies {
		req.AddCookie(c)
	}
	r.ServeHTTP(w, req)

	return claims, resolveErr
}

func TestIssueAndResolve(t *testing.T) {
	m := session.NewManager("test-secret", session.DefaultTTL, false)

	cookie := issueCookie(t, m, 42, "alice@example.com")

	if !cookie.HttpOnly {
		t.Fatalf("expected HttpOnly session cookie")
	}

	if cookie.MaxAge != int(session.DefaultTTL.Seconds()) {
		t.Fatalf("expected MaxAge %d, got %d", int(session.DefaultTTL.Seconds()), cookie.MaxAge)
	}

	claims, err := resolveWith(m, cookie)

	if err != nil {
		t.Fatalf("Resolve returned error: %v", err)
	}

	if claims.UserID != 42 || claims.Email != "alice@example.com" {
		t.Fatalf("unexpected claims: %+v", claims)
	}
}

func TestResolve_NoCookie(t *testing.T) {
	m := session.NewManager("test-secret", session.DefaultTTL, false)

	_, err := resolveWith(m)

	if err != session.ErrNoSession {
		t.Fatalf("expected ErrNoSession, got %v", err)
	}
}

func TestResolve_TamperedToken(t *testing.T) {
	m := session.NewManager("test-secret", session.DefaultTTL, false)

	cookie := issueCookie(t, m, 7, "bob@example.com")

	// flip a character in the signature segment
	parts := strings.Split(cookie.Value, ".")
	if len(parts) != 3 {
		t.Fatalf("expected a three-segment artifact, got %q", cookie.Value)
	}

	sig := []byte(parts[2])
	if sig[0] == 'A' {
		sig[0] = 'B'
	} else {
		sig[0] = 'A'
	}
	cookie.Value = parts[0] + "." + parts[1] + "." + string(sig)

	if _, err := resolveWith(m, cookie); err != session.ErrNoSession {
		t.Fatalf("expected ErrNoSession for tampered artifact, got %v", err)
	}
}

func TestResolve_WrongSecret(t *testing.T) {
	issuer := session.NewManager("secret-one", session.DefaultTTL, false)
	verifier := session.NewManager("secret-two", session.DefaultTTL, false)

	cookie := issueCookie(t, issuer, 7, "bob@example.com")

	if _, err := resolveWith(verifier, cookie); err != session.ErrNoSession {
		t.Fatalf("expected ErrNoSession across secrets, got %v", err)
	}
}

func TestResolve_Expired(t *testing.T) {
	m := session.NewManager("test-secret", time.Millisecond, false)

	cookie := issueCookie(t, m, 7, "bob@example.com")

	time.Sleep(5 * time.Millisecond)

	if _, err := resolveWith(m, cookie); err != session.ErrNoSession {
		t.Fatalf("expected ErrNoSession for expired artifact, got %v", err)
	}
}

func TestClear(t *testing.T) {
	m := session.NewManager("test-secret", session.DefaultTTL, false)

	r := gin.New()
	r.POST("/logout", func(c *gin.Context) {
		m.Clear(c)
		c.Status(http.StatusOK)
	})

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/logout", nil)
	r.ServeHTTP(w, req)

	cleared := false

	for _, c := range w.Result().Cookies() {
		if c.Name == session.CookieName && (c.MaxAge < 0 || c.Value == "") {
			cleared = true
		}
	}

	if !cleared {
		t.Fatalf("expected Clear to expire the session cookie")
	}
}
