package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/oishii-app/oishii/internal/auth"
	"github.com/oishii-app/oishii/internal/model"
	"github.com/oishii-app/oishii/internal/store"
)

// createNotificationRequest is the JSON body for POST /v1/notifications.
type createNotificationRequest struct {
	Type      string `json:"type"`
	Title     string `json:"title"`
	Message   string `json:"message"`
	RelatedID string `json:"related_id"`
}

// setReadRequest is the JSON body for PATCH /v1/notifications/{id}.
type setReadRequest struct {
	IsRead bool `json:"is_read"`
}

func (s *Server) handleListNotifications(w http.ResponseWriter, r *http.Request) {
	user, _ := auth.UserFrom(r.Context())

	limit := parseIntQuery(r, "limit", defaultListLimit)
	offset := parseIntQuery(r, "offset", 0)
	if limit <= 0 || limit > maxListLimit {
		limit = defaultListLimit
	}
	if offset < 0 {
		offset = 0
	}

	typ := r.URL.Query().Get("type")
	if typ != "" && !model.ValidNotificationType(typ) {
		s.writeError(w, http.StatusBadRequest, "invalid notification type")
		return
	}

	notifications, err := s.store.ListNotifications(r.Context(), user.ID, store.NotificationFilter{
		IsRead: parseBoolQuery(r, "is_read"),
		Type:   typ,
		Limit:  limit,
		Offset: offset,
	})
	if err != nil {
		s.logger.Error("list notifications", "error", err)
		s.writeError(w, http.StatusInternalServerError, "failed to list notifications")
		return
	}

	if notifications == nil {
		notifications = []*model.Notification{}
	}

	s.writeJSON(w, http.StatusOK, map[string]any{"notifications": notifications})
}

func (s *Server) handleCreateNotification(w http.ResponseWriter, r *http.Request) {
	user, _ := auth.UserFrom(r.Context())

	var req createNotificationRequest
	r.Body = http.MaxBytesReader(w, r.Body, maxBodySize)
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	if req.Type == "" {
		req.Type = model.NotifySystem
	}
	if !model.ValidNotificationType(req.Type) {
		s.writeError(w, http.StatusBadRequest, "invalid notification type")
		return
	}
	if req.Title == "" {
		s.writeError(w, http.StatusBadRequest, "title is required")
		return
	}

	n := &model.Notification{
		ID:        model.NewID(),
		UserID:    user.ID,
		Type:      req.Type,
		Title:     req.Title,
		Message:   req.Message,
		RelatedID: req.RelatedID,
	}
	if err := s.store.CreateNotification(r.Context(), n); err != nil {
		s.logger.Error("create notification", "error", err)
		s.writeError(w, http.StatusInternalServerError, "failed to create notification")
		return
	}

	if s.broker != nil {
		s.broker.Publish(*n)
	}

	s.writeJSON(w, http.StatusCreated, n)
}

// loadOwnNotification fetches a notification and checks the caller owns it.
func (s *Server) loadOwnNotification(w http.ResponseWriter, r *http.Request) (*model.Notification, bool) {
	user, _ := auth.UserFrom(r.Context())
	id := chi.URLParam(r, "id")

	n, err := s.store.GetNotification(r.Context(), id)
	if errors.Is(err, store.ErrNotFound) {
		s.writeError(w, http.StatusNotFound, "notification not found")
		return nil, false
	}
	if err != nil {
		s.logger.Error("get notification", "error", err)
		s.writeError(w, http.StatusInternalServerError, "failed to get notification")
		return nil, false
	}
	if n.UserID != user.ID {
		s.writeError(w, http.StatusNotFound, "notification not found")
		return nil, false
	}
	return n, true
}

func (s *Server) handleSetNotificationRead(w http.ResponseWriter, r *http.Request) {
	n, ok := s.loadOwnNotification(w, r)
	if !ok {
		return
	}

	var req setReadRequest
	r.Body = http.MaxBytesReader(w, r.Body, maxBodySize)
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}

	updated, err := s.store.SetNotificationRead(r.Context(), n.ID, req.IsRead)
	if err != nil {
		s.logger.Error("set notification read", "error", err)
		s.writeError(w, http.StatusInternalServerError, "failed to update notification")
		return
	}

	s.writeJSON(w, http.StatusOK, updated)
}

func (s *Server) handleMarkAllNotifications(w http.ResponseWriter, r *http.Request) {
	user, _ := auth.UserFrom(r.Context())

	typ := r.URL.Query().Get("type")
	if typ != "" && !model.ValidNotificationType(typ) {
		s.writeError(w, http.StatusBadRequest, "invalid notification type")
		return
	}

	updated, err := s.store.MarkAllNotifications(r.Context(), user.ID, typ, true)
	if err != nil {
		s.logger.Error("mark all notifications", "error", err)
		s.writeError(w, http.StatusInternalServerError, "failed to update notifications")
		return
	}

	s.writeJSON(w, http.StatusOK, map[string]int{"updated": updated})
}

func (s *Server) handleDeleteNotification(w http.ResponseWriter, r *http.Request) {
	n, ok := s.loadOwnNotification(w, r)
	if !ok {
		return
	}

	if err := s.store.DeleteNotification(r.Context(), n.ID); err != nil {
		s.logger.Error("delete notification", "error", err)
		s.writeError(w, http.StatusInternalServerError, "failed to delete notification")
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleStreamNotifications(w http.ResponseWriter, r *http.Request) {
	user, _ := auth.UserFrom(r.Context())

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")

	// Disable write timeout for long-lived SSE connections.
	rc := http.NewResponseController(w)
	if err := rc.SetWriteDeadline(time.Time{}); err != nil {
		s.logger.Error("set write deadline for SSE", "error", err)
	}

	ch, unsub := s.broker.Subscribe(user.ID)
	defer unsub()

	streamSubscribers.Inc()
	defer streamSubscribers.Dec()

	w.WriteHeader(http.StatusOK)
	flusher, canFlush := w.(http.Flusher)
	if canFlush {
		flusher.Flush()
	}

	for {
		select {
		case n := <-ch:
			if err := writeSSEJSON(w, "notification", n); err != nil {
				return // Write failed (e.g. client gone).
			}
			if canFlush {
				flusher.Flush()
			}
		case <-r.Context().Done():
			return // Client disconnected.
		}
	}
}

// writeSSEJSON writes a named SSE event with a JSON payload.
func writeSSEJSON(w http.ResponseWriter, eventType string, v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return err
	}
	if _, err := fmt.Fprintf(w, "event: %s\n", eventType); err != nil {
		return err
	}
	_, err = fmt.Fprintf(w, "data: %s\n\n", data)
	return err
}
