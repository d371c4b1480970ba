package auth

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"

	"github.com/golang-jwt/jwt/v5"

	"github.com/oishii-app/oishii/internal/model"
	"github.com/oishii-app/oishii/internal/store"
)

// expectedAudience is the audience claim the provider stamps on user tokens.
const expectedAudience = "authenticated"

type contextKey struct{}

// UserFrom returns the authenticated user stored in ctx, if any.
func UserFrom(ctx context.Context) (*model.User, bool) {
	u, ok := ctx.Value(contextKey{}).(*model.User)
	return u, ok
}

// Verifier authenticates requests by verifying the provider's JWTs locally
// against the shared project secret, then resolving the mirrored profile row.
type Verifier struct {
	secret []byte
	store  store.Store
	logger *slog.Logger
}

// NewVerifier creates a request authenticator. secret is the provider's JWT
// signing secret.
func NewVerifier(secret string, s store.Store, logger *slog.Logger) *Verifier {
	return &Verifier{secret: []byte(secret), store: s, logger: logger}
}

// Subject verifies the token signature and claims and returns the subject
// (the provider's user ID).
func (v *Verifier) Subject(tokenString string) (string, error) {
	token, err := jwt.Parse(tokenString, func(t *jwt.Token) (any, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method %q", t.Method.Alg())
		}
		return v.secret, nil
	}, jwt.WithAudience(expectedAudience), jwt.WithExpirationRequired())
	if err != nil {
		return "", fmt.Errorf("parse token: %w", err)
	}

	sub, err := token.Claims.GetSubject()
	if err != nil || sub == "" {
		return "", errors.New("token has no subject")
	}
	return sub, nil
}

// Require rejects requests without a valid bearer token. On success the
// mirrored user profile is attached to the request context.
func (v *Verifier) Require(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		user, err := v.authenticate(r)
		if err != nil {
			writeAuthError(w, http.StatusUnauthorized, "invalid or missing credentials")
			return
		}
		next.ServeHTTP(w, r.WithContext(context.WithValue(r.Context(), contextKey{}, user)))
	})
}

// Optional attaches the user to the context when a valid bearer token is
// present, and passes the request through anonymously otherwise.
func (v *Verifier) Optional(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if user, err := v.authenticate(r); err == nil {
			r = r.WithContext(context.WithValue(r.Context(), contextKey{}, user))
		}
		next.ServeHTTP(w, r)
	})
}

func (v *Verifier) authenticate(r *http.Request) (*model.User, error) {
	header := r.Header.Get("Authorization")
	tokenString, ok := strings.CutPrefix(header, "Bearer ")
	if !ok || tokenString == "" {
		return nil, errors.New("missing bearer token")
	}

	sub, err := v.Subject(tokenString)
	if err != nil {
		return nil, err
	}

	user, err := v.store.GetUser(r.Context(), sub)
	if errors.Is(err, store.ErrNotFound) {
		return nil, fmt.Errorf("no profile for subject %s", sub)
	}
	if err != nil {
		v.logger.Error("load user for token", "error", err)
		return nil, err
	}
	return user, nil
}

func writeAuthError(w http.ResponseWriter, status int, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(map[string]string{"error": message})
}
