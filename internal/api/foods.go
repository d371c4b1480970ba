package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/oishii-app/oishii/internal/auth"
	"github.com/oishii-app/oishii/internal/model"
	"github.com/oishii-app/oishii/internal/store"
)

const (
	defaultNearbyRadiusKM = 5.0
	maxNearbyRadiusKM     = 50.0
)

// foodRequest is the JSON body for creating and updating food listings.
type foodRequest struct {
	Title               string     `json:"title"`
	Description         string     `json:"description"`
	Category            string     `json:"category"`
	DietaryRequirements []string   `json:"dietary_requirements"`
	Allergens           string     `json:"allergens"`
	ExpiryDate          *time.Time `json:"expiry_date"`
	Location            string     `json:"location"`
	Latitude            *float64   `json:"latitude"`
	Longitude           *float64   `json:"longitude"`
	IsHomemade          bool       `json:"is_homemade"`
	ImageURL            string     `json:"image_url"`
	TicketsRequired     int        `json:"tickets_required"`
}

// listFoodsResponse wraps the paginated list response.
type listFoodsResponse struct {
	Foods  []*model.Food `json:"foods"`
	Total  int           `json:"total"`
	Limit  int           `json:"limit"`
	Offset int           `json:"offset"`
}

func (req *foodRequest) validate() string {
	if req.Title == "" {
		return "title is required"
	}
	if !model.ValidCategory(req.Category) {
		return "invalid category"
	}
	if req.Location == "" {
		return "location is required"
	}
	if req.ExpiryDate != nil && req.ExpiryDate.Before(time.Now().UTC()) {
		return "expiry_date cannot be in the past"
	}
	if req.TicketsRequired < 0 {
		return "tickets_required cannot be negative"
	}
	return ""
}

func (s *Server) handleCreateFood(w http.ResponseWriter, r *http.Request) {
	user, _ := auth.UserFrom(r.Context())
	if !user.IsVerified {
		s.writeError(w, http.StatusForbidden, "verify your email before listing food")
		return
	}

	var req foodRequest
	r.Body = http.MaxBytesReader(w, r.Body, maxBodySize)
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	if msg := req.validate(); msg != "" {
		s.writeError(w, http.StatusBadRequest, msg)
		return
	}

	food := &model.Food{
		ID:                  model.NewID(),
		UserID:              user.ID,
		Title:               req.Title,
		Description:         req.Description,
		Category:            req.Category,
		DietaryRequirements: req.DietaryRequirements,
		Allergens:           req.Allergens,
		ExpiryDate:          req.ExpiryDate,
		Location:            req.Location,
		Latitude:            req.Latitude,
		Longitude:           req.Longitude,
		IsHomemade:          req.IsHomemade,
		IsAvailable:         true,
		ImageURL:            req.ImageURL,
		TicketsRequired:     req.TicketsRequired,
	}

	if err := s.store.CreateFood(r.Context(), food); err != nil {
		s.logger.Error("create food", "error", err)
		s.writeError(w, http.StatusInternalServerError, "failed to create food")
		return
	}

	s.writeJSON(w, http.StatusCreated, food)
}

func (s *Server) handleGetFood(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	food, err := s.store.GetFood(r.Context(), id)
	if errors.Is(err, store.ErrNotFound) {
		s.writeError(w, http.StatusNotFound, "food not found")
		return
	}
	if err != nil {
		s.logger.Error("get food", "error", err)
		s.writeError(w, http.StatusInternalServerError, "failed to get food")
		return
	}

	s.writeJSON(w, http.StatusOK, food)
}

// foodFilterFromQuery builds a FoodFilter from list query parameters.
func foodFilterFromQuery(r *http.Request) store.FoodFilter {
	limit := parseIntQuery(r, "limit", defaultListLimit)
	offset := parseIntQuery(r, "offset", 0)
	if limit <= 0 || limit > maxListLimit {
		limit = defaultListLimit
	}
	if offset < 0 {
		offset = 0
	}

	return store.FoodFilter{
		Category:           r.URL.Query().Get("category"),
		DietaryRequirement: r.URL.Query().Get("dietary_requirement"),
		Available:          parseBoolQuery(r, "available"),
		Homemade:           parseBoolQuery(r, "is_homemade"),
		Location:           r.URL.Query().Get("location"),
		AllergenFree:       r.URL.Query().Get("allergen_free"),
		Search:             r.URL.Query().Get("search"),
		Limit:              limit,
		Offset:             offset,
	}
}

func (s *Server) handleListFoods(w http.ResponseWriter, r *http.Request) {
	filter := foodFilterFromQuery(r)
	if filter.Category != "" && !model.ValidCategory(filter.Category) {
		s.writeError(w, http.StatusBadRequest, "invalid category")
		return
	}

	foods, total, err := s.store.ListFoods(r.Context(), filter)
	if err != nil {
		s.logger.Error("list foods", "error", err)
		s.writeError(w, http.StatusInternalServerError, "failed to list foods")
		return
	}

	if foods == nil {
		foods = []*model.Food{}
	}

	s.writeJSON(w, http.StatusOK, listFoodsResponse{
		Foods:  foods,
		Total:  total,
		Limit:  filter.Limit,
		Offset: filter.Offset,
	})
}

func (s *Server) handleListFoodsNearby(w http.ResponseWriter, r *http.Request) {
	lat, okLat := parseFloatQuery(r, "latitude")
	lng, okLng := parseFloatQuery(r, "longitude")
	if !okLat || !okLng {
		s.writeError(w, http.StatusBadRequest, "latitude and longitude are required")
		return
	}
	if lat < -90 || lat > 90 || lng < -180 || lng > 180 {
		s.writeError(w, http.StatusBadRequest, "coordinates out of range")
		return
	}

	radius, ok := parseFloatQuery(r, "radius_km")
	if !ok {
		radius = defaultNearbyRadiusKM
	}
	if radius <= 0 || radius > maxNearbyRadiusKM {
		s.writeError(w, http.StatusBadRequest, "radius_km out of range")
		return
	}

	filter := foodFilterFromQuery(r)
	if filter.Available == nil {
		// Nearby search is for claimable food; only an explicit
		// ?available= overrides this.
		available := true
		filter.Available = &available
	}

	foods, err := s.store.ListFoodsNear(r.Context(), lat, lng, radius, filter)
	if err != nil {
		s.logger.Error("list nearby foods", "error", err)
		s.writeError(w, http.StatusInternalServerError, "failed to list foods")
		return
	}

	if foods == nil {
		foods = []*model.Food{}
	}

	s.writeJSON(w, http.StatusOK, map[string]any{"foods": foods, "radius_km": radius})
}

func (s *Server) handleListUserFoods(w http.ResponseWriter, r *http.Request) {
	userID := chi.URLParam(r, "id")

	limit := parseIntQuery(r, "limit", defaultListLimit)
	offset := parseIntQuery(r, "offset", 0)
	if limit <= 0 || limit > maxListLimit {
		limit = defaultListLimit
	}
	if offset < 0 {
		offset = 0
	}

	foods, err := s.store.ListFoodsByUser(r.Context(), userID, parseBoolQuery(r, "available"), limit, offset)
	if err != nil {
		s.logger.Error("list user foods", "error", err)
		s.writeError(w, http.StatusInternalServerError, "failed to list foods")
		return
	}

	if foods == nil {
		foods = []*model.Food{}
	}

	s.writeJSON(w, http.StatusOK, map[string]any{"foods": foods})
}

func (s *Server) handleUpdateFood(w http.ResponseWriter, r *http.Request) {
	user, _ := auth.UserFrom(r.Context())
	id := chi.URLParam(r, "id")

	food, err := s.store.GetFood(r.Context(), id)
	if errors.Is(err, store.ErrNotFound) {
		s.writeError(w, http.StatusNotFound, "food not found")
		return
	}
	if err != nil {
		s.logger.Error("get food for update", "error", err)
		s.writeError(w, http.StatusInternalServerError, "failed to get food")
		return
	}
	if food.UserID != user.ID {
		s.writeError(w, http.StatusForbidden, "you can only update your own listings")
		return
	}

	var req foodRequest
	r.Body = http.MaxBytesReader(w, r.Body, maxBodySize)
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	if msg := req.validate(); msg != "" {
		s.writeError(w, http.StatusBadRequest, msg)
		return
	}

	food.Title = req.Title
	food.Description = req.Description
	food.Category = req.Category
	food.DietaryRequirements = req.DietaryRequirements
	food.Allergens = req.Allergens
	food.ExpiryDate = req.ExpiryDate
	food.Location = req.Location
	food.Latitude = req.Latitude
	food.Longitude = req.Longitude
	food.IsHomemade = req.IsHomemade
	food.ImageURL = req.ImageURL
	food.TicketsRequired = req.TicketsRequired

	if available := parseBoolQuery(r, "available"); available != nil {
		food.IsAvailable = *available
	}

	if err := s.store.UpdateFood(r.Context(), food); err != nil {
		s.logger.Error("update food", "error", err)
		s.writeError(w, http.StatusInternalServerError, "failed to update food")
		return
	}

	updated, err := s.store.GetFood(r.Context(), id)
	if err != nil {
		s.logger.Error("reload updated food", "error", err)
		s.writeError(w, http.StatusInternalServerError, "failed to load food")
		return
	}

	s.writeJSON(w, http.StatusOK, updated)
}

func (s *Server) handleDeleteFood(w http.ResponseWriter, r *http.Request) {
	user, _ := auth.UserFrom(r.Context())
	id := chi.URLParam(r, "id")

	food, err := s.store.GetFood(r.Context(), id)
	if errors.Is(err, store.ErrNotFound) {
		s.writeError(w, http.StatusNotFound, "food not found")
		return
	}
	if err != nil {
		s.logger.Error("get food for delete", "error", err)
		s.writeError(w, http.StatusInternalServerError, "failed to get food")
		return
	}
	if food.UserID != user.ID {
		s.writeError(w, http.StatusForbidden, "you can only delete your own listings")
		return
	}

	if err := s.store.DeleteFood(r.Context(), id); err != nil {
		s.logger.Error("delete food", "error", err)
		s.writeError(w, http.StatusInternalServerError, "failed to delete food")
		return
	}

	w.WriteHeader(http.StatusNoContent)
}
