package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/oishii-app/oishii/internal/auth"
	"github.com/oishii-app/oishii/internal/model"
	"github.com/oishii-app/oishii/internal/store"
)

const (
	defaultListLimit = 20
	maxListLimit     = 100
	maxBodySize      = 1 << 20 // 1 MB
)

// registerRequest is the JSON body for POST /v1/auth/register.
type registerRequest struct {
	Email     string   `json:"email"`
	Password  string   `json:"password"`
	Username  string   `json:"username"`
	Bio       string   `json:"bio"`
	Location  string   `json:"location"`
	Latitude  *float64 `json:"latitude"`
	Longitude *float64 `json:"longitude"`
}

type credentialsRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type refreshRequest struct {
	RefreshToken string `json:"refresh_token"`
}

type verifyRequest struct {
	Email string `json:"email"`
	Code  string `json:"code"`
}

// updateUserRequest is the JSON body for PATCH /v1/users/me. Pointer fields
// distinguish "not sent" from "set to zero".
type updateUserRequest struct {
	Username       *string  `json:"username"`
	Bio            *string  `json:"bio"`
	Location       *string  `json:"location"`
	Latitude       *float64 `json:"latitude"`
	Longitude      *float64 `json:"longitude"`
	ProfilePicture *string  `json:"profile_picture"`
}

func (s *Server) handleRegister(w http.ResponseWriter, r *http.Request) {
	var req registerRequest
	r.Body = http.MaxBytesReader(w, r.Body, maxBodySize)
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}

	if req.Email == "" || req.Password == "" {
		s.writeError(w, http.StatusBadRequest, "email and password are required")
		return
	}
	if req.Username == "" {
		req.Username = strings.SplitN(req.Email, "@", 2)[0]
	}

	providerID, err := s.auth.SignUp(r.Context(), req.Email, req.Password)
	if err != nil {
		s.writeAuthProviderError(w, err, "registration failed")
		return
	}

	user := &model.User{
		ID:        providerID,
		Email:     req.Email,
		Username:  req.Username,
		Bio:       req.Bio,
		Location:  req.Location,
		Latitude:  req.Latitude,
		Longitude: req.Longitude,
	}
	if err := s.store.CreateUser(r.Context(), user); err != nil {
		if errors.Is(err, store.ErrDuplicate) {
			s.writeError(w, http.StatusConflict, "email or username already registered")
			return
		}
		s.logger.Error("mirror user profile", "error", err)
		s.writeError(w, http.StatusInternalServerError, "failed to create profile")
		return
	}

	s.writeJSON(w, http.StatusCreated, user)
}

func (s *Server) handleLogin(w http.ResponseWriter, r *http.Request) {
	var req credentialsRequest
	r.Body = http.MaxBytesReader(w, r.Body, maxBodySize)
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	if req.Email == "" || req.Password == "" {
		s.writeError(w, http.StatusBadRequest, "email and password are required")
		return
	}

	session, err := s.auth.SignInWithPassword(r.Context(), req.Email, req.Password)
	if err != nil {
		s.writeAuthProviderError(w, err, "login failed")
		return
	}

	s.writeJSON(w, http.StatusOK, session)
}

func (s *Server) handleRefresh(w http.ResponseWriter, r *http.Request) {
	var req refreshRequest
	r.Body = http.MaxBytesReader(w, r.Body, maxBodySize)
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	if req.RefreshToken == "" {
		s.writeError(w, http.StatusBadRequest, "refresh_token is required")
		return
	}

	session, err := s.auth.Refresh(r.Context(), req.RefreshToken)
	if err != nil {
		s.writeAuthProviderError(w, err, "token refresh failed")
		return
	}

	s.writeJSON(w, http.StatusOK, session)
}

func (s *Server) handleVerify(w http.ResponseWriter, r *http.Request) {
	var req verifyRequest
	r.Body = http.MaxBytesReader(w, r.Body, maxBodySize)
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	if req.Email == "" || req.Code == "" {
		s.writeError(w, http.StatusBadRequest, "email and code are required")
		return
	}

	if err := s.auth.VerifyEmail(r.Context(), req.Email, req.Code); err != nil {
		s.writeAuthProviderError(w, err, "verification failed")
		return
	}

	user, err := s.store.MarkUserVerified(r.Context(), req.Email)
	if errors.Is(err, store.ErrNotFound) {
		s.writeError(w, http.StatusNotFound, "user not found")
		return
	}
	if err != nil {
		s.logger.Error("mark user verified", "error", err)
		s.writeError(w, http.StatusInternalServerError, "failed to update profile")
		return
	}

	s.writeJSON(w, http.StatusOK, user)
}

func (s *Server) handleLogout(w http.ResponseWriter, r *http.Request) {
	token, _ := strings.CutPrefix(r.Header.Get("Authorization"), "Bearer ")
	if err := s.auth.SignOut(r.Context(), token); err != nil {
		s.writeAuthProviderError(w, err, "logout failed")
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]string{"status": "logged out"})
}

func (s *Server) handleGetMe(w http.ResponseWriter, r *http.Request) {
	user, _ := auth.UserFrom(r.Context())
	s.writeJSON(w, http.StatusOK, user)
}

func (s *Server) handleUpdateMe(w http.ResponseWriter, r *http.Request) {
	user, _ := auth.UserFrom(r.Context())

	var req updateUserRequest
	r.Body = http.MaxBytesReader(w, r.Body, maxBodySize)
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}

	if req.Username != nil {
		if *req.Username == "" {
			s.writeError(w, http.StatusBadRequest, "username cannot be empty")
			return
		}
		user.Username = *req.Username
	}
	if req.Bio != nil {
		user.Bio = *req.Bio
	}
	if req.Location != nil {
		user.Location = *req.Location
	}
	if req.Latitude != nil {
		user.Latitude = req.Latitude
	}
	if req.Longitude != nil {
		user.Longitude = req.Longitude
	}
	if req.ProfilePicture != nil {
		user.ProfilePicture = *req.ProfilePicture
	}

	if err := s.store.UpdateUser(r.Context(), user); err != nil {
		if errors.Is(err, store.ErrDuplicate) {
			s.writeError(w, http.StatusConflict, "username already taken")
			return
		}
		s.logger.Error("update user", "error", err)
		s.writeError(w, http.StatusInternalServerError, "failed to update profile")
		return
	}

	updated, err := s.store.GetUser(r.Context(), user.ID)
	if err != nil {
		s.logger.Error("reload updated user", "error", err)
		s.writeError(w, http.StatusInternalServerError, "failed to load profile")
		return
	}

	s.writeJSON(w, http.StatusOK, updated)
}

func (s *Server) handleGetUser(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	user, err := s.store.GetUser(r.Context(), id)
	if errors.Is(err, store.ErrNotFound) {
		s.writeError(w, http.StatusNotFound, "user not found")
		return
	}
	if err != nil {
		s.logger.Error("get user", "error", err)
		s.writeError(w, http.StatusInternalServerError, "failed to get user")
		return
	}

	s.writeJSON(w, http.StatusOK, user)
}

// writeAuthProviderError maps provider errors onto our error envelope,
// passing through 4xx statuses and masking everything else as a 502.
func (s *Server) writeAuthProviderError(w http.ResponseWriter, err error, fallback string) {
	var apiErr *auth.APIError
	if errors.As(err, &apiErr) && apiErr.Status >= 400 && apiErr.Status < 500 {
		s.writeError(w, apiErr.Status, apiErr.Message)
		return
	}
	s.logger.Error("auth provider call", "error", err)
	s.writeError(w, http.StatusBadGateway, fallback)
}
