package middleware

import (
	"context"
	"errors"
	"net/http"
	"regexp"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

var bearerRegex = regexp.MustCompile(`^Bearer (.+)$`)

type contextKey string

const subjectKey contextKey = "subject"

// BearerAuth is middleware that validates HS256 bearer tokens
type BearerAuth struct {
	key    []byte
	public map[string]bool
	now    func() time.Time
}

// NewBearerAuth creates a new bearer token middleware. Requests to the
// public paths are passed through unauthenticated.
func NewBearerAuth(secret string, public ...string) *BearerAuth {
	a := &BearerAuth{key: []byte(secret), public: make(map[string]bool), now: time.Now}
	for _, p := range public {
		a.public[p] = true
	}
	return a
}

// Issue signs a token for subject valid for ttl.
func (a *BearerAuth) Issue(subject string, ttl time.Duration) (string, error) {
	now := a.now()
	claims := jwt.RegisteredClaims{
		Subject:   subject,
		IssuedAt:  jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(a.key)
}

// Subject returns the token subject stored by Middleware.
func Subject(ctx context.Context) (string, bool) {
	sub, ok := ctx.Value(subjectKey).(string)
	return sub, ok
}

// Middleware returns an HTTP middleware that validates bearer tokens
func (a *BearerAuth) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if a.public[r.URL.Path] {
			next.ServeHTTP(w, r)
			return
		}

		authHeader := r.Header.Get("Authorization")
		if len(authHeader) == 0 {
			unauthorized(w, "Authorization missing")
			return
		}

		tokenMatches := bearerRegex.FindStringSubmatch(authHeader)
		if len(tokenMatches) != 2 {
			unauthorized(w, "Malformed authorization header")
			return
		}

		var claims jwt.RegisteredClaims
		_, err := jwt.ParseWithClaims(tokenMatches[1], &claims, func(*jwt.Token) (interface{}, error) {
			return a.key, nil
		}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}), jwt.WithTimeFunc(a.now), jwt.WithExpirationRequired())
		switch {
		case errors.Is(err, jwt.ErrTokenExpired):
			unauthorized(w, "Token expired")
			return
		case errors.Is(err, jwt.ErrTokenMalformed):
			unauthorized(w, "Malformed authorization token")
			return
		case err != nil:
			unauthorized(w, "Invalid token")
			return
		}

		r = r.WithContext(context.WithValue(r.Context(), subjectKey, claims.Subject))
		next.ServeHTTP(w, r)
	})
}

func unauthorized(w http.ResponseWriter, msg string) {
	w.Header().Set("WWW-Authenticate", "Bearer")
	w.WriteHeader(http.StatusUnauthorized)
	_, _ = w.Write([]byte(msg))
}
