package auth

import (
	"context"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/oishii-app/oishii/internal/model"
	"github.com/oishii-app/oishii/internal/store"
)

const testSecret = "test-jwt-secret"

func mintToken(t *testing.T, secret, sub string, expiresIn time.Duration) string {
	t.Helper()
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"sub": sub,
		"aud": expectedAudience,
		"exp": time.Now().Add(expiresIn).Unix(),
	})
	signed, err := token.SignedString([]byte(secret))
	if err != nil {
		t.Fatalf("sign token: %v", err)
	}
	return signed
}

func newTestVerifier(t *testing.T) (*Verifier, *store.SQLiteStore) {
	t.Helper()
	s, err := store.NewSQLiteStore(":memory:")
	if err != nil {
		t.Fatalf("NewSQLiteStore: %v", err)
	}
	t.Cleanup(func() { s.Close() })

	logger := slog.New(slog.NewJSONHandler(io.Discard, nil))
	return NewVerifier(testSecret, s, logger), s
}

func seedUser(t *testing.T, s *store.SQLiteStore) *model.User {
	t.Helper()
	now := time.Now().UTC()
	u := &model.User{
		ID:        "auth-user-1",
		Email:     "kim@uni.edu",
		Username:  "kim",
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := s.CreateUser(context.Background(), u); err != nil {
		t.Fatalf("CreateUser: %v", err)
	}
	return u
}

func TestRequireValidToken(t *testing.T) {
	v, s := newTestVerifier(t)
	u := seedUser(t, s)

	var gotUser *model.User
	handler := v.Require(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotUser, _ = UserFrom(r.Context())
		w.WriteHeader(http.StatusOK)
	}))

	req := httptest.NewRequest(http.MethodGet, "/protected", nil)
	req.Header.Set("Authorization", "Bearer "+mintToken(t, testSecret, u.ID, time.Hour))
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Errorf("status = %d, want 200", rec.Code)
	}
	if gotUser == nil || gotUser.ID != u.ID {
		t.Errorf("context user = %+v, want %s", gotUser, u.ID)
	}
}

func TestRequireRejections(t *testing.T) {
	v, s := newTestVerifier(t)
	u := seedUser(t, s)

	tests := []struct {
		name   string
		header string
	}{
		{"missing header", ""},
		{"not a bearer", "Basic abc"},
		{"wrong secret", "Bearer " + mintToken(t, "other-secret", u.ID, time.Hour)},
		{"expired", "Bearer " + mintToken(t, testSecret, u.ID, -time.Hour)},
		{"unknown subject", "Bearer " + mintToken(t, testSecret, "ghost", time.Hour)},
	}

	handler := v.Require(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Error("handler reached with invalid credentials")
	}))

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/protected", nil)
			if tt.header != "" {
				req.Header.Set("Authorization", tt.header)
			}
			rec := httptest.NewRecorder()
			handler.ServeHTTP(rec, req)

			if rec.Code != http.StatusUnauthorized {
				t.Errorf("status = %d, want 401", rec.Code)
			}
		})
	}
}

func TestOptionalPassesThroughAnonymously(t *testing.T) {
	v, _ := newTestVerifier(t)

	handler := v.Optional(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if _, ok := UserFrom(r.Context()); ok {
			t.Error("unexpected user in context")
		}
		w.WriteHeader(http.StatusOK)
	}))

	req := httptest.NewRequest(http.MethodGet, "/open", nil)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Errorf("status = %d, want 200", rec.Code)
	}
}

func TestOptionalAttachesUser(t *testing.T) {
	v, s := newTestVerifier(t)
	u := seedUser(t, s)

	handler := v.Optional(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		got, ok := UserFrom(r.Context())
		if !ok || got.ID != u.ID {
			t.Errorf("context user = %+v", got)
		}
		w.WriteHeader(http.StatusOK)
	}))

	req := httptest.NewRequest(http.MethodGet, "/open", nil)
	req.Header.Set("Authorization", "Bearer "+mintToken(t, testSecret, u.ID, time.Hour))
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Errorf("status = %d, want 200", rec.Code)
	}
}
