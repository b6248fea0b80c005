// ABOUTME: HS256 bearer tokens identifying project owners, plus HTTP middleware that enforces them.
// ABOUTME: Without a secret (loopback development) every request acts as the local owner.

package auth

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

const (
	// Issuer is stamped into every token.
	Issuer = "buildr"
	// LocalOwner is the owner used when authentication is disabled.
	LocalOwner = "local"
	// MinSecretLen is the shortest accepted signing secret.
	MinSecretLen = 32
	// DefaultTTL is how long issued tokens stay valid.
	DefaultTTL = 30 * 24 * time.Hour
	// CookieName is the cookie a browser may carry the token in.
	CookieName = "buildr_token"
	// QueryParam carries the token for EventSource, iframe, and websocket
	// requests, which cannot set headers.
	QueryParam = "access_token"
)

var (
	// ErrWeakSecret is returned for secrets shorter than MinSecretLen.
	ErrWeakSecret = fmt.Errorf("signing secret must be at least %d bytes", MinSecretLen)
	// ErrUnauthorized is returned for missing or invalid tokens.
	ErrUnauthorized = errors.New("unauthorized")
)

// Claims identify the token holder. Subject is the owner ID.
type Claims struct {
	jwt.RegisteredClaims
	Name string `json:"name,omitempty"`
}

// Authenticator issues and verifies tokens.
type Authenticator struct {
	secret []byte
	ttl    time.Duration
	now    func() time.Time
}

// New returns an Authenticator. An empty secret disables verification.
func New(secret string, ttl time.Duration) (*Authenticator, error) {
	if secret != "" && len(secret) < MinSecretLen {
		return nil, ErrWeakSecret
	}
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &Authenticator{secret: []byte(secret), ttl: ttl, now: time.Now}, nil
}

// Enabled reports whether tokens are required.
func (a *Authenticator) Enabled() bool { return len(a.secret) > 0 }

// Issue signs a token for owner.
func (a *Authenticator) Issue(owner, name string) (string, error) {
	if !a.Enabled() {
		return "", errors.New("auth: no signing secret configured")
	}
	owner = strings.TrimSpace(owner)
	if owner == "" {
		return "", errors.New("auth: owner is required")
	}
	now := a.now()
	claims := &Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    Issuer,
			Subject:   owner,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(a.ttl)),
		},
		Name: name,
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(a.secret)
}

// Verify parses a token and returns its claims. Only HS256 is accepted.
func (a *Authenticator) Verify(token string) (*Claims, error) {
	parsed, err := jwt.ParseWithClaims(token, &Claims{}, func(t *jwt.Token) (any, error) {
		return a.secret, nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithIssuer(Issuer),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(a.now),
	)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnauthorized, err)
	}
	claims, ok := parsed.Claims.(*Claims)
	if !ok || !parsed.Valid || claims.Subject == "" {
		return nil, ErrUnauthorized
	}
	return claims, nil
}

type ownerKey struct{}

// WithOwner stores the owner ID in ctx.
func WithOwner(ctx context.Context, owner string) context.Context {
	return context.WithValue(ctx, ownerKey{}, owner)
}

// Owner returns the owner ID set by Middleware.
func Owner(ctx context.Context) (string, bool) {
	o, ok := ctx.Value(ownerKey{}).(string)
	return o, ok && o != ""
}

// TokenFromRequest finds a token in the Authorization header, the
// CookieName cookie, or the QueryParam query parameter, in that order.
func TokenFromRequest(r *http.Request) string {
	if token, ok := strings.CutPrefix(r.Header.Get("Authorization"), "Bearer "); ok {
		return strings.TrimSpace(token)
	}
	if c, err := r.Cookie(CookieName); err == nil && c.Value != "" {
		return c.Value
	}
	return strings.TrimSpace(r.URL.Query().Get(QueryParam))
}

// Middleware rejects requests without a valid token and stores the owner
// in the request context.
func (a *Authenticator) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !a.Enabled() {
			next.ServeHTTP(w, r.WithContext(WithOwner(r.Context(), LocalOwner)))
			return
		}
		token := TokenFromRequest(r)
		if token == "" {
			deny(w)
			return
		}
		claims, err := a.Verify(token)
		if err != nil {
			deny(w)
			return
		}
		next.ServeHTTP(w, r.WithContext(WithOwner(r.Context(), claims.Subject)))
	})
}

func deny(w http.ResponseWriter) {
	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("WWW-Authenticate", `Bearer realm="buildr"`)
	w.WriteHeader(http.StatusUnauthorized)
	_ = json.NewEncoder(w).Encode(map[string]string{"error": ErrUnauthorized.Error()})
}
