package api

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/oishii-app/oishii/internal/auth"
	"github.com/oishii-app/oishii/internal/flow"
	"github.com/oishii-app/oishii/internal/model"
	"github.com/oishii-app/oishii/internal/store"
)

const (
	defaultRecommendationLimit = 5
	maxRecommendationLimit     = 20
)

// searchRequest is the JSON body for POST /v1/recommendations/search.
type searchRequest struct {
	Query string `json:"query"`
	Limit int    `json:"limit"`
}

// preferencesRequest is the JSON body for PUT /v1/recommendations/preferences.
type preferencesRequest struct {
	TastePreferences    []string `json:"taste_preferences"`
	DietaryRestrictions []string `json:"dietary_restrictions"`
	Allergies           []string `json:"allergies"`
	CuisinePreferences  []string `json:"cuisine_preferences"`
}

func (s *Server) handleRecommendationSearch(w http.ResponseWriter, r *http.Request) {
	var req searchRequest
	r.Body = http.MaxBytesReader(w, r.Body, maxBodySize)
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	if req.Query == "" {
		s.writeError(w, http.StatusBadRequest, "query is required")
		return
	}
	if req.Limit <= 0 || req.Limit > maxRecommendationLimit {
		req.Limit = defaultRecommendationLimit
	}

	// Anonymous searches get generic recommendations; authenticated callers
	// get their stored preferences folded into the prompt.
	var prefs *model.FoodPreference
	if user, ok := auth.UserFrom(r.Context()); ok {
		p, err := s.store.GetFoodPreference(r.Context(), user.ID)
		if err != nil && !errors.Is(err, store.ErrNotFound) {
			s.logger.Error("get food preferences", "error", err)
		}
		prefs = p
	}

	recommendations, err := s.flow.Recommend(r.Context(), req.Query, prefs, req.Limit)
	if err != nil {
		s.logger.Error("flow recommendation", "error", err)
		s.writeError(w, http.StatusBadGateway, "recommendation service unavailable")
		return
	}

	if recommendations == nil {
		recommendations = []flow.Recommendation{}
	}

	s.writeJSON(w, http.StatusOK, map[string]any{"recommendations": recommendations})
}

func (s *Server) handleGetPreferences(w http.ResponseWriter, r *http.Request) {
	user, _ := auth.UserFrom(r.Context())

	prefs, err := s.store.GetFoodPreference(r.Context(), user.ID)
	if errors.Is(err, store.ErrNotFound) {
		s.writeError(w, http.StatusNotFound, "no preferences saved")
		return
	}
	if err != nil {
		s.logger.Error("get food preferences", "error", err)
		s.writeError(w, http.StatusInternalServerError, "failed to get preferences")
		return
	}

	s.writeJSON(w, http.StatusOK, prefs)
}

func (s *Server) handleUpsertPreferences(w http.ResponseWriter, r *http.Request) {
	user, _ := auth.UserFrom(r.Context())

	var req preferencesRequest
	r.Body = http.MaxBytesReader(w, r.Body, maxBodySize)
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}

	prefs := &model.FoodPreference{
		UserID:              user.ID,
		TastePreferences:    req.TastePreferences,
		DietaryRestrictions: req.DietaryRestrictions,
		Allergies:           req.Allergies,
		CuisinePreferences:  req.CuisinePreferences,
	}
	if err := s.store.UpsertFoodPreference(r.Context(), prefs); err != nil {
		s.logger.Error("upsert food preferences", "error", err)
		s.writeError(w, http.StatusInternalServerError, "failed to save preferences")
		return
	}

	saved, err := s.store.GetFoodPreference(r.Context(), user.ID)
	if err != nil {
		s.logger.Error("reload food preferences", "error", err)
		s.writeError(w, http.StatusInternalServerError, "failed to load preferences")
		return
	}

	s.writeJSON(w, http.StatusOK, saved)
}
