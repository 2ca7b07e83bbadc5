package handler

import (
	"net/http"
	"strconv"

	"github.com/xela07ax/xchain-router/internal/audit"
	"github.com/xela07ax/xchain-router/internal/console/service"
)

type EventHandler struct {
	service *service.EventService
}

func NewEventHandler(s *service.EventService) *EventHandler {
	return &EventHandler{service: s}
}

// GetEvents возвращает журнал уведомлений с фильтрацией
// GET /v1/events?action_id=...&kind=sent|received&limit=...
func (h *EventHandler) GetEvents(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	f := audit.Filter{
		ActionID: q.Get("action_id"),
		Kind:     q.Get("kind"),
	}
	if s := q.Get("limit"); s != "" {
		limit, err := strconv.Atoi(s)
		if err != nil {
			writeError(w, http.StatusBadRequest, "limit must be an integer")
			return
		}
		f.Limit = limit
	}

	events, err := h.service.FetchEvents(r.Context(), f)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to fetch events")
		return
	}
	writeJSON(w, http.StatusOK, events)
}
