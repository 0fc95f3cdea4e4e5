package api

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/maxo-smsgw/smsgw/internal/model"
	"github.com/maxo-smsgw/smsgw/internal/store"
)

// Conversations reads stored conversations and their timelines.
type Conversations interface {
	Conversation(ctx context.Context, id int64) (*model.Conversation, error)
	Threads(ctx context.Context, conversationID int64) ([]model.Thread, error)
}

type threadView struct {
	ID          int64     `json:"id"`
	Type        string    `json:"type"`
	Body        string    `json:"body"`
	CreatedAt   time.Time `json:"created_at"`
	Attachments int       `json:"attachments"`
}

type conversationView struct {
	ID            int64        `json:"id"`
	CustomerEmail string       `json:"customer_email"`
	State         string       `json:"state"`
	AutoReplySent bool         `json:"auto_reply_sent"`
	CreatedAt     time.Time    `json:"created_at"`
	Threads       []threadView `json:"threads"`
}

// handleConversation returns one conversation with its threads, oldest
// first, so a merge or clean can be checked from the helpdesk side.
func (s *Server) handleConversation(w http.ResponseWriter, r *http.Request) {
	if s.conversations == nil {
		writeError(w, http.StatusServiceUnavailable, "no record store configured")
		return
	}
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil || id <= 0 {
		writeError(w, http.StatusBadRequest, "conversation id must be a positive integer")
		return
	}

	conv, err := s.conversations.Conversation(r.Context(), id)
	if errors.Is(err, store.ErrNotFound) {
		writeError(w, http.StatusNotFound, "conversation not found")
		return
	}
	if err != nil {
		s.log.Error("failed to load conversation", zap.Int64("conversation", id), zap.Error(err))
		writeError(w, http.StatusInternalServerError, "failed to load conversation")
		return
	}
	threads, err := s.conversations.Threads(r.Context(), id)
	if err != nil {
		s.log.Error("failed to load threads", zap.Int64("conversation", id), zap.Error(err))
		writeError(w, http.StatusInternalServerError, "failed to load conversation")
		return
	}

	view := conversationView{
		ID:            conv.ID,
		CustomerEmail: conv.CustomerEmail,
		State:         conv.State.String(),
		AutoReplySent: conv.AutoReplySent,
		CreatedAt:     conv.CreatedAt,
		Threads:       make([]threadView, 0, len(threads)),
	}
	for _, t := range threads {
		view.Threads = append(view.Threads, threadView{
			ID:          t.ID,
			Type:        t.Type.String(),
			Body:        t.Body,
			CreatedAt:   t.CreatedAt,
			Attachments: len(t.Attachments),
		})
	}
	writeJSON(w, http.StatusOK, view)
}
