package handler

import (
	"net/http"

	"github.com/ethereum/go-ethereum/common"
	"github.com/go-chi/chi/v5"

	"github.com/xela07ax/xchain-router/internal/console/service"
)

type ActionHandler struct {
	service *service.ActionService
}

func NewActionHandler(s *service.ActionService) *ActionHandler {
	return &ActionHandler{service: s}
}

// Get: GET /v1/actions/{id}
func (h *ActionHandler) Get(w http.ResponseWriter, r *http.Request) {
	raw := chi.URLParam(r, "id")
	if len(common.FromHex(raw)) != common.HashLength {
		writeError(w, http.StatusBadRequest, "id must be a 32-byte hex hash")
		return
	}

	entry, ok, err := h.service.Get(r.Context(), common.HexToHash(raw))
	if err != nil {
		writeError(w, http.StatusInternalServerError, "ledger lookup failed")
		return
	}
	if !ok {
		writeError(w, http.StatusNotFound, "action not executed")
		return
	}
	writeJSON(w, http.StatusOK, entry)
}
