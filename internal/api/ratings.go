package api

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/oishii-app/oishii/internal/model"
	"github.com/oishii-app/oishii/internal/store"
)

// createRatingRequest is the JSON body for POST /v1/swaps/{id}/ratings.
type createRatingRequest struct {
	Rating  int    `json:"rating"`
	Comment string `json:"comment"`
}

// ratingSummaryResponse is the aggregate for GET /v1/users/{id}/ratings/summary.
type ratingSummaryResponse struct {
	UserID        string  `json:"user_id"`
	AverageRating float64 `json:"average_rating"`
	RatingCount   int     `json:"rating_count"`
}

func (s *Server) handleCreateRating(w http.ResponseWriter, r *http.Request) {
	swap, user, ok := s.loadSwapForParticipant(w, r)
	if !ok {
		return
	}
	if swap.Status != model.SwapCompleted {
		s.writeError(w, http.StatusBadRequest, "only completed swaps can be rated")
		return
	}

	var req createRatingRequest
	r.Body = http.MaxBytesReader(w, r.Body, maxBodySize)
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	if req.Rating < 1 || req.Rating > 5 {
		s.writeError(w, http.StatusBadRequest, "rating must be between 1 and 5")
		return
	}

	ratedUserID := swap.ProviderID
	if user.ID == swap.ProviderID {
		ratedUserID = swap.RequesterID
	}

	rating := &model.Rating{
		ID:          model.NewID(),
		SwapID:      swap.ID,
		RaterID:     user.ID,
		RatedUserID: ratedUserID,
		Rating:      req.Rating,
		Comment:     req.Comment,
	}

	if err := s.store.CreateRating(r.Context(), rating); err != nil {
		if errors.Is(err, store.ErrDuplicate) {
			s.writeError(w, http.StatusConflict, "you have already rated this swap")
			return
		}
		s.logger.Error("create rating", "error", err)
		s.writeError(w, http.StatusInternalServerError, "failed to create rating")
		return
	}

	s.writeJSON(w, http.StatusCreated, rating)
}

func (s *Server) handleListSwapRatings(w http.ResponseWriter, r *http.Request) {
	swap, _, ok := s.loadSwapForParticipant(w, r)
	if !ok {
		return
	}

	ratings, err := s.store.ListRatingsForSwap(r.Context(), swap.ID)
	if err != nil {
		s.logger.Error("list swap ratings", "error", err)
		s.writeError(w, http.StatusInternalServerError, "failed to list ratings")
		return
	}

	if ratings == nil {
		ratings = []*model.Rating{}
	}

	s.writeJSON(w, http.StatusOK, map[string]any{"ratings": ratings})
}

func (s *Server) handleListUserRatings(w http.ResponseWriter, r *http.Request) {
	userID := chi.URLParam(r, "id")

	limit := parseIntQuery(r, "limit", defaultListLimit)
	offset := parseIntQuery(r, "offset", 0)
	if limit <= 0 || limit > maxListLimit {
		limit = defaultListLimit
	}
	if offset < 0 {
		offset = 0
	}

	ratings, err := s.store.ListRatingsForUser(r.Context(), userID, limit, offset)
	if err != nil {
		s.logger.Error("list user ratings", "error", err)
		s.writeError(w, http.StatusInternalServerError, "failed to list ratings")
		return
	}

	if ratings == nil {
		ratings = []*model.Rating{}
	}

	s.writeJSON(w, http.StatusOK, map[string]any{"ratings": ratings})
}

func (s *Server) handleRatingSummary(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	user, err := s.store.GetUser(r.Context(), id)
	if errors.Is(err, store.ErrNotFound) {
		s.writeError(w, http.StatusNotFound, "user not found")
		return
	}
	if err != nil {
		s.logger.Error("get user for rating summary", "error", err)
		s.writeError(w, http.StatusInternalServerError, "failed to get user")
		return
	}

	s.writeJSON(w, http.StatusOK, ratingSummaryResponse{
		UserID:        user.ID,
		AverageRating: user.AverageRating,
		RatingCount:   user.RatingCount,
	})
}
