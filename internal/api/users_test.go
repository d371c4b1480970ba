package api

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/oishii-app/oishii/internal/auth"
	"github.com/oishii-app/oishii/internal/model"
)

// newFakeAuthProvider serves the provider endpoints the handlers call.
func newFakeAuthProvider(t *testing.T) *httptest.Server {
	t.Helper()
	mux := http.NewServeMux()

	mux.HandleFunc("/auth/v1/signup", func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
			return
		}
		var req struct {
			Email    string `json:"email"`
			Password string `json:"password"`
		}
		json.NewDecoder(r.Body).Decode(&req)
		if req.Password == "weak" {
			w.WriteHeader(http.StatusUnprocessableEntity)
			json.NewEncoder(w).Encode(map[string]string{"msg": "password too weak"})
			return
		}
		json.NewEncoder(w).Encode(map[string]any{"id": "provider-" + req.Email})
	})

	mux.HandleFunc("/auth/v1/token", func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
			return
		}
		var req struct {
			Email    string `json:"email"`
			Password string `json:"password"`
		}
		json.NewDecoder(r.Body).Decode(&req)
		if req.Password == "wrong" {
			w.WriteHeader(http.StatusBadRequest)
			json.NewEncoder(w).Encode(map[string]string{"error_description": "invalid credentials"})
			return
		}
		json.NewEncoder(w).Encode(map[string]any{
			"access_token":  "access-abc",
			"refresh_token": "refresh-abc",
			"token_type":    "bearer",
			"expires_in":    3600,
			"user":          map[string]string{"id": "provider-" + req.Email},
		})
	})

	mux.HandleFunc("/auth/v1/verify", func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
			return
		}
		var req struct {
			Token string `json:"token"`
		}
		json.NewDecoder(r.Body).Decode(&req)
		if req.Token != "123456" {
			w.WriteHeader(http.StatusUnauthorized)
			json.NewEncoder(w).Encode(map[string]string{"msg": "invalid code"})
			return
		}
		json.NewEncoder(w).Encode(map[string]string{"status": "verified"})
	})

	mux.HandleFunc("/auth/v1/logout", func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	})

	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv
}

func newTestServerWithAuth(t *testing.T) *Server {
	t.Helper()
	provider := newFakeAuthProvider(t)
	return newTestServerWith(t, func(d *Deps) {
		d.Auth = auth.NewClient(provider.URL, "anon-key")
	})
}

func TestRegisterMirrorsProfile(t *testing.T) {
	srv := newTestServerWithAuth(t)
	ts := httptest.NewServer(srv.Router())
	defer ts.Close()

	resp := doJSON(t, "POST", ts.URL+"/v1/auth/register", "", map[string]string{
		"email":    "mika@campus.edu",
		"password": "hunter22",
		"username": "mika",
	})
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("status = %d, want 201", resp.StatusCode)
	}

	created := decodeBody[model.User](t, resp)
	if created.ID != "provider-mika@campus.edu" {
		t.Errorf("ID = %q, want provider subject", created.ID)
	}
	if created.Username != "mika" || created.IsVerified {
		t.Errorf("profile = %+v, want unverified mika", created)
	}
}

func TestRegisterDefaultsUsernameFromEmail(t *testing.T) {
	srv := newTestServerWithAuth(t)
	ts := httptest.NewServer(srv.Router())
	defer ts.Close()

	resp := doJSON(t, "POST", ts.URL+"/v1/auth/register", "", map[string]string{
		"email":    "taro@campus.edu",
		"password": "hunter22",
	})
	defer resp.Body.Close()

	created := decodeBody[model.User](t, resp)
	if created.Username != "taro" {
		t.Errorf("Username = %q, want taro", created.Username)
	}
}

func TestRegisterPassesThroughProviderError(t *testing.T) {
	srv := newTestServerWithAuth(t)
	ts := httptest.NewServer(srv.Router())
	defer ts.Close()

	resp := doJSON(t, "POST", ts.URL+"/v1/auth/register", "", map[string]string{
		"email":    "mika@campus.edu",
		"password": "weak",
	})
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusUnprocessableEntity {
		t.Errorf("status = %d, want provider's 422", resp.StatusCode)
	}
	body := decodeBody[map[string]string](t, resp)
	if body["error"] != "password too weak" {
		t.Errorf("error = %q, want provider message", body["error"])
	}
}

func TestRegisterDuplicateEmail(t *testing.T) {
	srv := newTestServerWithAuth(t)
	ts := httptest.NewServer(srv.Router())
	defer ts.Close()

	body := map[string]string{"email": "dup@campus.edu", "password": "hunter22"}
	first := doJSON(t, "POST", ts.URL+"/v1/auth/register", "", body)
	first.Body.Close()

	resp := doJSON(t, "POST", ts.URL+"/v1/auth/register", "", body)
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusConflict {
		t.Errorf("status = %d, want 409", resp.StatusCode)
	}
}

func TestLoginReturnsSession(t *testing.T) {
	srv := newTestServerWithAuth(t)
	ts := httptest.NewServer(srv.Router())
	defer ts.Close()

	resp := doJSON(t, "POST", ts.URL+"/v1/auth/login", "", map[string]string{
		"email":    "mika@campus.edu",
		"password": "hunter22",
	})
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d, want 200", resp.StatusCode)
	}

	session := decodeBody[auth.Session](t, resp)
	if session.AccessToken != "access-abc" || session.RefreshToken != "refresh-abc" {
		t.Errorf("session = %+v, want provider tokens", session)
	}
}

func TestLoginBadCredentials(t *testing.T) {
	srv := newTestServerWithAuth(t)
	ts := httptest.NewServer(srv.Router())
	defer ts.Close()

	resp := doJSON(t, "POST", ts.URL+"/v1/auth/login", "", map[string]string{
		"email":    "mika@campus.edu",
		"password": "wrong",
	})
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusBadRequest {
		t.Errorf("status = %d, want 400", resp.StatusCode)
	}
}

func TestVerifyMarksProfile(t *testing.T) {
	srv := newTestServerWithAuth(t)
	ts := httptest.NewServer(srv.Router())
	defer ts.Close()

	reg := doJSON(t, "POST", ts.URL+"/v1/auth/register", "", map[string]string{
		"email":    "mika@campus.edu",
		"password": "hunter22",
	})
	reg.Body.Close()

	resp := doJSON(t, "POST", ts.URL+"/v1/auth/verify", "", map[string]string{
		"email": "mika@campus.edu",
		"code":  "123456",
	})
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d, want 200", resp.StatusCode)
	}

	verified := decodeBody[model.User](t, resp)
	if !verified.IsVerified {
		t.Error("IsVerified = false after verification")
	}
}

func TestVerifyBadCode(t *testing.T) {
	srv := newTestServerWithAuth(t)
	ts := httptest.NewServer(srv.Router())
	defer ts.Close()

	resp := doJSON(t, "POST", ts.URL+"/v1/auth/verify", "", map[string]string{
		"email": "mika@campus.edu",
		"code":  "000000",
	})
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusUnauthorized {
		t.Errorf("status = %d, want 401", resp.StatusCode)
	}
}

func TestGetMe(t *testing.T) {
	srv := newTestServer(t)
	token := seedUser(t, srv, "u1", true)
	ts := httptest.NewServer(srv.Router())
	defer ts.Close()

	resp := doJSON(t, "GET", ts.URL+"/v1/users/me", token, nil)
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d, want 200", resp.StatusCode)
	}

	me := decodeBody[model.User](t, resp)
	if me.ID != "u1" {
		t.Errorf("ID = %q, want u1", me.ID)
	}
}

func TestUpdateMePartial(t *testing.T) {
	srv := newTestServer(t)
	token := seedUser(t, srv, "u1", true)
	ts := httptest.NewServer(srv.Router())
	defer ts.Close()

	resp := doJSON(t, "PATCH", ts.URL+"/v1/users/me", token, map[string]any{
		"bio":      "I like dumplings",
		"location": "East Campus",
	})
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d, want 200", resp.StatusCode)
	}

	updated := decodeBody[model.User](t, resp)
	if updated.Bio != "I like dumplings" || updated.Location != "East Campus" {
		t.Errorf("updated = %+v", updated)
	}
	if updated.Username != "u1" {
		t.Errorf("Username changed to %q, fields not sent must keep their value", updated.Username)
	}
}

func TestUpdateMeEmptyUsernameRejected(t *testing.T) {
	srv := newTestServer(t)
	token := seedUser(t, srv, "u1", true)
	ts := httptest.NewServer(srv.Router())
	defer ts.Close()

	resp := doJSON(t, "PATCH", ts.URL+"/v1/users/me", token, map[string]any{"username": ""})
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusBadRequest {
		t.Errorf("status = %d, want 400", resp.StatusCode)
	}
}

func TestGetUserPublic(t *testing.T) {
	srv := newTestServer(t)
	seedUser(t, srv, "u1", true)
	ts := httptest.NewServer(srv.Router())
	defer ts.Close()

	resp := doJSON(t, "GET", ts.URL+"/v1/users/u1", "", nil)
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		t.Errorf("status = %d, want 200", resp.StatusCode)
	}

	notFound := doJSON(t, "GET", ts.URL+"/v1/users/nobody", "", nil)
	notFound.Body.Close()
	if notFound.StatusCode != http.StatusNotFound {
		t.Errorf("status = %d, want 404", notFound.StatusCode)
	}
}
