package auth

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"path/filepath"
	"strings"
	"sync/atomic"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/golang-jwt/jwt/v5"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"
)

var (
	ErrInvalidCredentials = errors.New("username/password is incorrect")
	ErrNoSession          = errors.New("no session")
)

// placeholderHash keeps unknown usernames as slow as wrong passwords.
var placeholderHash, _ = bcrypt.GenerateFromPassword([]byte("churnboard-placeholder"), bcrypt.DefaultCost)

// Claims are carried in the session cookie.
type Claims struct {
	Name string `json:"name"`
	jwt.RegisteredClaims
}

type ctxKey struct{}

// ClaimsFromContext returns the session of an authenticated request.
func ClaimsFromContext(ctx context.Context) (*Claims, bool) {
	c, ok := ctx.Value(ctxKey{}).(*Claims)
	return c, ok
}

// Manager verifies logins and session cookies against a credentials file
// that may be replaced while the server runs.
type Manager struct {
	path   string
	logger *zap.Logger
	creds  atomic.Pointer[Credentials]
	now    func() time.Time
}

func NewManager(path string, logger *zap.Logger) (*Manager, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	m := &Manager{path: path, logger: logger, now: time.Now}
	if err := m.Reload(); err != nil {
		return nil, err
	}
	return m, nil
}

// Reload re-reads the credentials file. On error the previous credentials
// stay in effect.
func (m *Manager) Reload() error {
	c, err := LoadCredentials(m.path)
	if err != nil {
		return err
	}
	m.creds.Store(c)
	return nil
}

// Watch reloads the credentials whenever the file changes, until ctx ends.
func (m *Manager) Watch(ctx context.Context) error {
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("create watcher: %w", err)
	}
	defer w.Close()

	// Editors replace files by rename, so watch the directory.
	if err := w.Add(filepath.Dir(m.path)); err != nil {
		return fmt.Errorf("watch %s: %w", m.path, err)
	}
	target := filepath.Clean(m.path)

	for {
		select {
		case <-ctx.Done():
			return nil
		case ev, ok := <-w.Events:
			if !ok {
				return nil
			}
			if filepath.Clean(ev.Name) != target || !ev.Has(fsnotify.Write|fsnotify.Create) {
				continue
			}
			if err := m.Reload(); err != nil {
				m.logger.Warn("credentials reload failed, keeping previous", zap.String("path", m.path), zap.Error(err))
				continue
			}
			m.logger.Info("credentials reloaded", zap.String("path", m.path))
		case err, ok := <-w.Errors:
			if !ok {
				return nil
			}
			m.logger.Warn("credentials watcher error", zap.Error(err))
		}
	}
}

// Authenticate checks a username and password.
func (m *Manager) Authenticate(username, password string) (User, error) {
	c := m.creds.Load()
	u, ok := c.Credentials.Usernames[username]
	hash := []byte(u.Password)
	if !ok {
		hash = placeholderHash
	}
	if err := bcrypt.CompareHashAndPassword(hash, []byte(password)); err != nil || !ok {
		return User{}, ErrInvalidCredentials
	}
	return u, nil
}

// Issue returns a session cookie for username.
func (m *Manager) Issue(username string) (*http.Cookie, error) {
	c := m.creds.Load()
	u, ok := c.Credentials.Usernames[username]
	if !ok {
		return nil, ErrInvalidCredentials
	}

	now := m.now()
	expires := now.Add(c.Cookie.Expiry())
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, Claims{
		Name: u.Name,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   username,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(expires),
		},
	})
	signed, err := token.SignedString([]byte(c.Cookie.Key))
	if err != nil {
		return nil, fmt.Errorf("sign session: %w", err)
	}

	return &http.Cookie{
		Name:     c.Cookie.Name,
		Value:    signed,
		Path:     "/",
		Expires:  expires,
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
	}, nil
}

// Clear returns a cookie that removes the session.
func (m *Manager) Clear() *http.Cookie {
	return &http.Cookie{
		Name:     m.creds.Load().Cookie.Name,
		Value:    "",
		Path:     "/",
		MaxAge:   -1,
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
	}
}

// Verify returns the session carried by r.
func (m *Manager) Verify(r *http.Request) (*Claims, error) {
	c := m.creds.Load()
	cookie, err := r.Cookie(c.Cookie.Name)
	if err != nil {
		return nil, ErrNoSession
	}

	claims := &Claims{}
	_, err = jwt.ParseWithClaims(cookie.Value, claims, func(*jwt.Token) (any, error) {
		return []byte(c.Cookie.Key), nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(m.now),
	)
	if err != nil {
		return nil, fmt.Errorf("invalid session: %w", err)
	}
	if _, ok := c.Credentials.Usernames[claims.Subject]; !ok {
		return nil, fmt.Errorf("invalid session: user %q no longer exists", claims.Subject)
	}
	return claims, nil
}

// Require lets requests with a valid session through. Others get 401 on
// API paths and a redirect to loginPath elsewhere.
func (m *Manager) Require(loginPath string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			claims, err := m.Verify(r)
			if err != nil {
				if strings.HasPrefix(r.URL.Path, "/api/") || strings.HasPrefix(r.URL.Path, "/ws/") {
					w.Header().Set("Content-Type", "application/json")
					w.WriteHeader(http.StatusUnauthorized)
					json.NewEncoder(w).Encode(map[string]string{"error": "login required"})
					return
				}
				http.Redirect(w, r, loginPath+"?next="+url.QueryEscape(r.URL.RequestURI()), http.StatusSeeOther)
				return
			}
			next.ServeHTTP(w, r.WithContext(WithClaims(r.Context(), claims)))
		})
	}
}

// WithClaims attaches claims to ctx.
func WithClaims(ctx context.Context, c *Claims) context.Context {
	return context.WithValue(ctx, ctxKey{}, c)
}
