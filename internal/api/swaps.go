package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/oishii-app/oishii/internal/auth"
	"github.com/oishii-app/oishii/internal/model"
	"github.com/oishii-app/oishii/internal/store"
)

// createSwapRequest is the JSON body for POST /v1/swaps.
type createSwapRequest struct {
	RequesterFoodID string `json:"requester_food_id"`
	ProviderFoodID  string `json:"provider_food_id"`
	Message         string `json:"message"`
}

// updateSwapRequest is the JSON body for PATCH /v1/swaps/{id}.
type updateSwapRequest struct {
	Status          string `json:"status"`
	ResponseMessage string `json:"response_message"`
}

// swapDetailResponse embeds both food records for the detail endpoint.
type swapDetailResponse struct {
	*model.Swap
	RequesterFood *model.Food `json:"requester_food"`
	ProviderFood  *model.Food `json:"provider_food"`
}

func (s *Server) handleCreateSwap(w http.ResponseWriter, r *http.Request) {
	user, _ := auth.UserFrom(r.Context())
	if !user.IsVerified {
		s.writeError(w, http.StatusForbidden, "verify your email before requesting swaps")
		return
	}

	var req createSwapRequest
	r.Body = http.MaxBytesReader(w, r.Body, maxBodySize)
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	if req.RequesterFoodID == "" || req.ProviderFoodID == "" {
		s.writeError(w, http.StatusBadRequest, "requester_food_id and provider_food_id are required")
		return
	}

	requesterFood, err := s.store.GetFood(r.Context(), req.RequesterFoodID)
	if errors.Is(err, store.ErrNotFound) {
		s.writeError(w, http.StatusNotFound, "requester food not found")
		return
	}
	if err != nil {
		s.logger.Error("get requester food", "error", err)
		s.writeError(w, http.StatusInternalServerError, "failed to get food")
		return
	}
	if requesterFood.UserID != user.ID {
		s.writeError(w, http.StatusForbidden, "you must offer a food listing you own")
		return
	}

	providerFood, err := s.store.GetFood(r.Context(), req.ProviderFoodID)
	if errors.Is(err, store.ErrNotFound) {
		s.writeError(w, http.StatusNotFound, "provider food not found")
		return
	}
	if err != nil {
		s.logger.Error("get provider food", "error", err)
		s.writeError(w, http.StatusInternalServerError, "failed to get food")
		return
	}
	if providerFood.UserID == user.ID {
		s.writeError(w, http.StatusBadRequest, "cannot swap with yourself")
		return
	}
	if !providerFood.IsAvailable || !requesterFood.IsAvailable {
		s.writeError(w, http.StatusBadRequest, "both food listings must be available")
		return
	}

	swap := &model.Swap{
		ID:              model.NewID(),
		RequesterID:     user.ID,
		ProviderID:      providerFood.UserID,
		RequesterFoodID: requesterFood.ID,
		ProviderFoodID:  providerFood.ID,
		Message:         req.Message,
		Status:          model.SwapPending,
	}

	if err := s.store.CreateSwap(r.Context(), swap); err != nil {
		s.logger.Error("create swap", "error", err)
		s.writeError(w, http.StatusInternalServerError, "failed to create swap")
		return
	}

	s.notify(r, &model.Notification{
		ID:        model.NewID(),
		UserID:    swap.ProviderID,
		Type:      model.NotifySwapRequest,
		Title:     "New swap request",
		Message:   fmt.Sprintf("%s wants to swap %q for your %q.", user.Username, requesterFood.Title, providerFood.Title),
		RelatedID: swap.ID,
	})

	s.writeJSON(w, http.StatusCreated, swap)
}

func (s *Server) handleListSwaps(w http.ResponseWriter, r *http.Request) {
	user, _ := auth.UserFrom(r.Context())

	status := r.URL.Query().Get("status")
	if status != "" && status != model.SwapPending && status != model.SwapAccepted &&
		status != model.SwapRejected && status != model.SwapCompleted {
		s.writeError(w, http.StatusBadRequest, "invalid status")
		return
	}

	role := r.URL.Query().Get("role")
	switch role {
	case "", "requester", "provider", "both":
	default:
		s.writeError(w, http.StatusBadRequest, "role must be requester, provider, or both")
		return
	}

	swaps, err := s.store.ListSwapsForUser(r.Context(), user.ID, status, role)
	if err != nil {
		s.logger.Error("list swaps", "error", err)
		s.writeError(w, http.StatusInternalServerError, "failed to list swaps")
		return
	}

	if swaps == nil {
		swaps = []*model.Swap{}
	}

	s.writeJSON(w, http.StatusOK, map[string]any{"swaps": swaps})
}

// loadSwapForParticipant fetches a swap and checks the caller is a party to it.
func (s *Server) loadSwapForParticipant(w http.ResponseWriter, r *http.Request) (*model.Swap, *model.User, bool) {
	user, _ := auth.UserFrom(r.Context())
	id := chi.URLParam(r, "id")

	swap, err := s.store.GetSwap(r.Context(), id)
	if errors.Is(err, store.ErrNotFound) {
		s.writeError(w, http.StatusNotFound, "swap not found")
		return nil, nil, false
	}
	if err != nil {
		s.logger.Error("get swap", "error", err)
		s.writeError(w, http.StatusInternalServerError, "failed to get swap")
		return nil, nil, false
	}
	if swap.RequesterID != user.ID && swap.ProviderID != user.ID {
		s.writeError(w, http.StatusForbidden, "you are not part of this swap")
		return nil, nil, false
	}
	return swap, user, true
}

func (s *Server) handleGetSwap(w http.ResponseWriter, r *http.Request) {
	swap, _, ok := s.loadSwapForParticipant(w, r)
	if !ok {
		return
	}

	requesterFood, err := s.store.GetFood(r.Context(), swap.RequesterFoodID)
	if err != nil && !errors.Is(err, store.ErrNotFound) {
		s.logger.Error("get swap requester food", "error", err)
		s.writeError(w, http.StatusInternalServerError, "failed to get swap")
		return
	}
	providerFood, err := s.store.GetFood(r.Context(), swap.ProviderFoodID)
	if err != nil && !errors.Is(err, store.ErrNotFound) {
		s.logger.Error("get swap provider food", "error", err)
		s.writeError(w, http.StatusInternalServerError, "failed to get swap")
		return
	}

	s.writeJSON(w, http.StatusOK, swapDetailResponse{
		Swap:          swap,
		RequesterFood: requesterFood,
		ProviderFood:  providerFood,
	})
}

func (s *Server) handleUpdateSwapStatus(w http.ResponseWriter, r *http.Request) {
	swap, user, ok := s.loadSwapForParticipant(w, r)
	if !ok {
		return
	}

	var req updateSwapRequest
	r.Body = http.MaxBytesReader(w, r.Body, maxBodySize)
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}

	switch req.Status {
	case model.SwapAccepted, model.SwapRejected:
		if user.ID != swap.ProviderID {
			s.writeError(w, http.StatusForbidden, "only the provider can accept or reject a swap")
			return
		}
	case model.SwapCompleted:
		// Either party may complete an accepted swap.
	default:
		s.writeError(w, http.StatusBadRequest, "status must be accepted, rejected, or completed")
		return
	}

	updated, err := s.store.UpdateSwapStatus(r.Context(), swap.ID, req.Status, req.ResponseMessage)
	if errors.Is(err, store.ErrInvalidTransition) {
		s.writeError(w, http.StatusConflict, fmt.Sprintf("cannot move swap from %s to %s", swap.Status, req.Status))
		return
	}
	if err != nil {
		s.logger.Error("update swap status", "error", err)
		s.writeError(w, http.StatusInternalServerError, "failed to update swap")
		return
	}

	s.notifySwapTransition(r, updated, user)

	s.writeJSON(w, http.StatusOK, updated)
}

// notifySwapTransition creates the status-change notification for the
// counterpart of the acting user.
func (s *Server) notifySwapTransition(r *http.Request, swap *model.Swap, actor *model.User) {
	var typ, title, message string
	recipient := swap.RequesterID

	switch swap.Status {
	case model.SwapAccepted:
		typ, title = model.NotifySwapAccepted, "Swap accepted"
		message = fmt.Sprintf("%s accepted your swap request.", actor.Username)
	case model.SwapRejected:
		typ, title = model.NotifySwapRejected, "Swap rejected"
		message = fmt.Sprintf("%s declined your swap request.", actor.Username)
	case model.SwapCompleted:
		typ, title = model.NotifySwapCompleted, "Swap completed"
		message = fmt.Sprintf("%s marked your swap as completed.", actor.Username)
		if actor.ID == swap.RequesterID {
			recipient = swap.ProviderID
		}
	default:
		return
	}

	s.notify(r, &model.Notification{
		ID:        model.NewID(),
		UserID:    recipient,
		Type:      typ,
		Title:     title,
		Message:   message,
		RelatedID: swap.ID,
	})
}

// notify persists a notification and pushes it to connected subscribers.
// Failures are logged, not surfaced; the triggering operation already
// succeeded.
func (s *Server) notify(r *http.Request, n *model.Notification) {
	if err := s.store.CreateNotification(r.Context(), n); err != nil {
		s.logger.Error("create notification", "type", n.Type, "error", err)
		return
	}
	if s.broker != nil {
		s.broker.Publish(*n)
	}
}
