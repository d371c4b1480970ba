package api

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/oishii-app/oishii/internal/auth"
	"github.com/oishii-app/oishii/internal/model"
	"github.com/oishii-app/oishii/internal/store"
)

func (s *Server) handleTicketBalance(w http.ResponseWriter, r *http.Request) {
	user, _ := auth.UserFrom(r.Context())

	balance, err := s.store.EnsureTicketBalance(r.Context(), user.ID)
	if err != nil {
		s.logger.Error("ensure ticket balance", "error", err)
		s.writeError(w, http.StatusInternalServerError, "failed to get balance")
		return
	}

	s.writeJSON(w, http.StatusOK, balance)
}

func (s *Server) handleTicketTransactions(w http.ResponseWriter, r *http.Request) {
	user, _ := auth.UserFrom(r.Context())

	limit := parseIntQuery(r, "limit", defaultListLimit)
	offset := parseIntQuery(r, "offset", 0)
	if limit <= 0 || limit > maxListLimit {
		limit = defaultListLimit
	}
	if offset < 0 {
		offset = 0
	}

	transactions, err := s.store.ListTicketTransactions(r.Context(), user.ID, limit, offset)
	if err != nil {
		s.logger.Error("list ticket transactions", "error", err)
		s.writeError(w, http.StatusInternalServerError, "failed to list transactions")
		return
	}

	if transactions == nil {
		transactions = []*model.TicketTransaction{}
	}

	s.writeJSON(w, http.StatusOK, map[string]any{"transactions": transactions})
}

func (s *Server) handleClaimFood(w http.ResponseWriter, r *http.Request) {
	user, _ := auth.UserFrom(r.Context())
	id := chi.URLParam(r, "id")

	result, err := s.store.ClaimFood(r.Context(), id, user.ID)
	switch {
	case errors.Is(err, store.ErrNotFound):
		s.writeError(w, http.StatusNotFound, "food not found")
		return
	case errors.Is(err, store.ErrUnavailable):
		s.writeError(w, http.StatusBadRequest, "food is no longer available")
		return
	case errors.Is(err, store.ErrOwnFood):
		s.writeError(w, http.StatusBadRequest, "cannot claim your own food")
		return
	case errors.Is(err, store.ErrInsufficientTickets):
		s.writeError(w, http.StatusBadRequest, "insufficient ticket balance")
		return
	case err != nil:
		s.logger.Error("claim food", "error", err)
		s.writeError(w, http.StatusInternalServerError, "failed to claim food")
		return
	}

	s.notify(r, &model.Notification{
		ID:        model.NewID(),
		UserID:    result.Food.UserID,
		Type:      model.NotifySystem,
		Title:     "Food claimed",
		Message:   fmt.Sprintf("%s claimed your %q for %d tickets.", user.Username, result.Food.Title, result.TicketsSpent),
		RelatedID: result.Food.ID,
	})

	s.writeJSON(w, http.StatusOK, result)
}
