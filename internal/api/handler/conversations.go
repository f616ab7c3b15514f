package handler

import (
	"context"
	"net/http"
	"strconv"
	"time"

	"github.com/powerpulse/pulsedesk/internal/api/response"
	"github.com/powerpulse/pulsedesk/internal/store"
	"github.com/powerpulse/pulsedesk/pkg/models"
)

const (
	defaultPageLimit = 20
	maxPageLimit     = 100
)

// ConversationLister is the slice of the store the listing handler needs.
type ConversationLister interface {
	ListConversations(ctx context.Context, filter store.ConversationFilter) ([]*models.Conversation, int, error)
}

// NewListConversationsHandler returns an http.HandlerFunc for
// GET /api/v1/conversations. Supported filters: chat_id, topic, since
// (YYYY-MM-DD), page, limit.
func NewListConversationsHandler(st ConversationLister) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query()

		filter := store.ConversationFilter{
			ChatID: q.Get("chat_id"),
			Topic:  q.Get("topic"),
			Page:   queryInt(q.Get("page"), 1),
			Limit:  queryInt(q.Get("limit"), defaultPageLimit),
		}
		if filter.Page < 1 {
			filter.Page = 1
		}
		if filter.Limit < 1 {
			filter.Limit = defaultPageLimit
		}
		if filter.Limit > maxPageLimit {
			filter.Limit = maxPageLimit
		}

		if since := q.Get("since"); since != "" {
			t, err := time.Parse(dateLayout, since)
			if err != nil {
				response.Error(w, http.StatusBadRequest,
					"INVALID_REQUEST", "since must be a date in YYYY-MM-DD format", nil)
				return
			}
			filter.Since = t
		}

		conversations, total, err := st.ListConversations(r.Context(), filter)
		if err != nil {
			response.Error(w, http.StatusInternalServerError,
				"INTERNAL_ERROR", "Failed to list conversations", nil)
			return
		}
		if conversations == nil {
			conversations = []*models.Conversation{}
		}

		response.Collection(w, conversations, response.PaginationMeta{
			Page:    filter.Page,
			Limit:   filter.Limit,
			Total:   total,
			HasNext: filter.Page*filter.Limit < total,
		})
	}
}

func queryInt(s string, fallback int) int {
	if s == "" {
		return fallback
	}
	n, err := strconv.Atoi(s)
	if err != nil {
		return fallback
	}
	return n
}
