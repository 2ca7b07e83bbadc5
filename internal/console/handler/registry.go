package handler

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/ethereum/go-ethereum/common"
	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/xela07ax/xchain-router/internal/console/service"
	"github.com/xela07ax/xchain-router/internal/domain"
	"github.com/xela07ax/xchain-router/internal/registry"
)

type RegistryHandler struct {
	service *service.RegistryService
	logger  *zap.Logger
}

func NewRegistryHandler(s *service.RegistryService, logger *zap.Logger) *RegistryHandler {
	return &RegistryHandler{service: s, logger: logger}
}

type setTrustRequest struct {
	// Нулевой адрес снимает ограничение для сети
	Target common.Address `json:"target"`
}

type setExecutorRequest struct {
	Allowed bool `json:"allowed"`
}

// SetTrust: PUT /v1/trust/{chain}
func (h *RegistryHandler) SetTrust(w http.ResponseWriter, r *http.Request) {
	chain, err := domain.ParseChain(chi.URLParam(r, "chain"))
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	var req setTrustRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "bad request")
		return
	}

	if err := h.service.SetTrust(r.Context(), chain, req.Target); err != nil {
		h.fail(w, "set trust", err)
		return
	}
	h.logger.Info("trusted adapter updated",
		zap.Stringer("chain", chain),
		zap.String("target", req.Target.Hex()))
	w.WriteHeader(http.StatusNoContent)
}

// ListTrust: GET /v1/trust
func (h *RegistryHandler) ListTrust(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.service.ListTrust())
}

// SetExecutor: PUT /v1/executors/{address}
func (h *RegistryHandler) SetExecutor(w http.ResponseWriter, r *http.Request) {
	raw := chi.URLParam(r, "address")
	if !common.IsHexAddress(raw) {
		writeError(w, http.StatusBadRequest, "address must be a 20-byte hex address")
		return
	}
	var req setExecutorRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "bad request")
		return
	}

	caller := common.HexToAddress(raw)
	if err := h.service.SetExecutor(r.Context(), caller, req.Allowed); err != nil {
		h.fail(w, "set executor", err)
		return
	}
	h.logger.Info("executor updated",
		zap.String("address", caller.Hex()),
		zap.Bool("allowed", req.Allowed))
	w.WriteHeader(http.StatusNoContent)
}

// ListExecutors: GET /v1/executors
func (h *RegistryHandler) ListExecutors(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.service.ListExecutors())
}

func (h *RegistryHandler) fail(w http.ResponseWriter, op string, err error) {
	switch {
	case errors.Is(err, registry.ErrNotAdmin), errors.Is(err, registry.ErrInvalidAdminCap):
		writeError(w, http.StatusForbidden, err.Error())
	case errors.Is(err, registry.ErrAdminUnavailable):
		writeError(w, http.StatusServiceUnavailable, err.Error())
	default:
		h.logger.Error(op+" failed", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "registry update failed")
	}
}
