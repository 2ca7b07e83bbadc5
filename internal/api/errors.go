package api

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/xela07ax/xchain-router/internal/domain"
	"github.com/xela07ax/xchain-router/internal/router"
	"github.com/xela07ax/xchain-router/internal/transport"
)

// statusOf переводит ошибку роутера в HTTP статус.
func statusOf(err error) int {
	var throttle *transport.ThrottleError
	switch {
	case errors.Is(err, router.ErrUnauthorized),
		errors.Is(err, router.ErrUntrustedTarget):
		return http.StatusForbidden
	case errors.Is(err, router.ErrAlreadyExecuted):
		return http.StatusConflict
	case errors.Is(err, router.ErrInsufficientFee),
		errors.Is(err, transport.ErrFeeTooLow):
		return http.StatusPaymentRequired
	case errors.Is(err, domain.ErrEmptyAccount),
		errors.Is(err, domain.ErrEmptyTarget),
		errors.Is(err, domain.ErrEmptyActionID),
		errors.Is(err, router.ErrEmptyBatch),
		errors.Is(err, router.ErrBatchTooLarge),
		errors.Is(err, router.ErrDuplicateInBatch),
		errors.Is(err, router.ErrUnknownChain),
		errors.Is(err, router.ErrEmptyRoute),
		errors.Is(err, transport.ErrNoRoute),
		errors.Is(err, transport.ErrBadOptions):
		return http.StatusBadRequest
	case errors.As(err, &throttle):
		return http.StatusTooManyRequests
	case errors.Is(err, transport.ErrUnavailable),
		errors.Is(err, router.ErrLedgerUnavailable):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, r *http.Request, status int, err error) {
	writeJSON(w, status, errorResponse{
		Error:   err.Error(),
		TraceID: w.Header().Get(TraceHeader),
	})
}
