package handlers

import (
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"addressd/internal/domain"
)

type messageView struct {
	ID        string     `json:"id"`
	Sender    string     `json:"sender"`
	Subject   string     `json:"subject"`
	Body      string     `json:"body"`
	Read      bool       `json:"read"`
	ReadAt    *time.Time `json:"read_at,omitempty"`
	CreatedAt time.Time  `json:"created_at"`
}

func messageViewOf(m *domain.Message) messageView {
	return messageView{
		ID:        m.ID,
		Sender:    m.Sender,
		Subject:   m.Subject,
		Body:      m.Body,
		Read:      m.IsRead(),
		ReadAt:    m.ReadAt,
		CreatedAt: m.CreatedAt,
	}
}

// ListMessages returns the caller's inbox, newest first.
func (a *App) ListMessages(w http.ResponseWriter, r *http.Request) {
	limit := 0
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 || n > 200 {
			a.error(w, http.StatusBadRequest, "bad_request", "limit must be between 1 and 200")
			return
		}
		limit = n
	}
	msgs, err := a.Messages.ListByClient(r.Context(), a.currentClientID(r), limit)
	if err != nil {
		a.Logger.Error().Err(err).Msg("message list failed")
		a.error(w, http.StatusInternalServerError, "internal_error", "could not list messages")
		return
	}
	views := make([]messageView, 0, len(msgs))
	for i := range msgs {
		views = append(views, messageViewOf(&msgs[i]))
	}
	a.json(w, http.StatusOK, map[string]any{"messages": views})
}

// MarkMessageRead acknowledges one message. Already-read messages keep
// their original read timestamp.
func (a *App) MarkMessageRead(w http.ResponseWriter, r *http.Request) {
	err := a.Messages.MarkRead(r.Context(), a.currentClientID(r), chi.URLParam(r, "id"))
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			a.error(w, http.StatusNotFound, "not_found", "no such message")
			return
		}
		a.Logger.Error().Err(err).Msg("message mark-read failed")
		a.error(w, http.StatusInternalServerError, "internal_error", "could not update message")
		return
	}
	a.json(w, http.StatusOK, map[string]string{"status": "read"})
}

// UnreadMessageCount powers the inbox badge.
func (a *App) UnreadMessageCount(w http.ResponseWriter, r *http.Request) {
	n, err := a.Messages.UnreadCount(r.Context(), a.currentClientID(r))
	if err != nil {
		a.Logger.Error().Err(err).Msg("unread count failed")
		a.error(w, http.StatusInternalServerError, "internal_error", "could not count messages")
		return
	}
	a.json(w, http.StatusOK, map[string]int{"unread": n})
}
