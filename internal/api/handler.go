package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math/big"
	"net/http"

	"github.com/ethereum/go-ethereum/common"
	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/xela07ax/xchain-router/internal/domain"
	"github.com/xela07ax/xchain-router/internal/ledger"
	"github.com/xela07ax/xchain-router/internal/router"
	"github.com/xela07ax/xchain-router/internal/transport"
)

// Dispatcher: операции роутера, доступные через HTTP (*router.Router).
type Dispatcher interface {
	SendAction(ctx context.Context, dst domain.ChainID, a domain.Action, opts router.SendOptions) (transport.Receipt, error)
	SendBatch(ctx context.Context, dst domain.ChainID, actions []domain.Action, opts router.SendOptions) (transport.Receipt, error)
	SendConditional(ctx context.Context, dst domain.ChainID, c domain.ConditionalAction, opts router.SendOptions) (transport.Receipt, error)
	SendMultiHop(ctx context.Context, m domain.MultiHopAction, opts router.SendOptions) (transport.Receipt, error)
	QuoteAction(ctx context.Context, dst domain.ChainID, a domain.Action, opts router.SendOptions) (transport.Fee, error)
	QuoteBatch(ctx context.Context, dst domain.ChainID, actions []domain.Action, opts router.SendOptions) (transport.Fee, error)
	ExecuteLocal(ctx context.Context, a domain.Action, value *big.Int) (bool, error)
	IsExecuted(ctx context.Context, id common.Hash) (bool, error)
	Entry(ctx context.Context, id common.Hash) (ledger.Entry, bool, error)
}

var _ Dispatcher = (*router.Router)(nil)

type Handler struct {
	router  Dispatcher
	builder *domain.Builder
	logger  *zap.Logger
}

func NewHandler(r Dispatcher, b *domain.Builder, logger *zap.Logger) *Handler {
	if b == nil {
		b = domain.NewBuilder()
	}
	return &Handler{router: r, builder: b, logger: logger.Named("api")}
}

// Send: POST /v1/actions
func (h *Handler) Send(w http.ResponseWriter, r *http.Request) {
	var req SendRequest
	if !h.decode(w, r, &req) {
		return
	}
	dst, opts, err := h.target(req.DstChain, req.Options)
	if err != nil {
		writeError(w, r, http.StatusBadRequest, err)
		return
	}

	a := req.Action.build(h.builder)
	rc, err := h.router.SendAction(r.Context(), dst, a, opts)
	if err != nil {
		h.fail(w, r, "send action", err)
		return
	}
	writeJSON(w, http.StatusAccepted, sendResponse([]domain.Action{a}, rc))
}

// SendBatch: POST /v1/actions/batch
func (h *Handler) SendBatch(w http.ResponseWriter, r *http.Request) {
	var req BatchRequest
	if !h.decode(w, r, &req) {
		return
	}
	dst, opts, err := h.target(req.DstChain, req.Options)
	if err != nil {
		writeError(w, r, http.StatusBadRequest, err)
		return
	}

	actions := h.buildAll(req.Actions)
	rc, err := h.router.SendBatch(r.Context(), dst, actions, opts)
	if err != nil {
		h.fail(w, r, "send batch", err)
		return
	}
	writeJSON(w, http.StatusAccepted, sendResponse(actions, rc))
}

// SendConditional: POST /v1/actions/conditional
func (h *Handler) SendConditional(w http.ResponseWriter, r *http.Request) {
	var req ConditionalRequest
	if !h.decode(w, r, &req) {
		return
	}
	dst, opts, err := h.target(req.DstChain, req.Options)
	if err != nil {
		writeError(w, r, http.StatusBadRequest, err)
		return
	}

	c := domain.ConditionalAction{
		Action:    req.Action.build(h.builder),
		Condition: req.Condition,
		Required:  req.Required,
	}
	rc, err := h.router.SendConditional(r.Context(), dst, c, opts)
	if err != nil {
		h.fail(w, r, "send conditional", err)
		return
	}
	writeJSON(w, http.StatusAccepted, sendResponse([]domain.Action{c.Action}, rc))
}

// SendMultiHop: POST /v1/actions/multihop
func (h *Handler) SendMultiHop(w http.ResponseWriter, r *http.Request) {
	var req MultiHopRequest
	if !h.decode(w, r, &req) {
		return
	}
	opts, err := req.Options.toSendOptions()
	if err != nil {
		writeError(w, r, http.StatusBadRequest, err)
		return
	}
	route := make([]domain.ChainID, 0, len(req.Route))
	for _, s := range req.Route {
		id, err := domain.ParseChain(s)
		if err != nil {
			writeError(w, r, http.StatusBadRequest, err)
			return
		}
		route = append(route, id)
	}

	m := domain.MultiHopAction{Route: route, Action: req.Action.build(h.builder)}
	rc, err := h.router.SendMultiHop(r.Context(), m, opts)
	if err != nil {
		h.fail(w, r, "send multihop", err)
		return
	}
	writeJSON(w, http.StatusAccepted, sendResponse([]domain.Action{m.Action}, rc))
}

// ExecuteLocal: POST /v1/actions/local
func (h *Handler) ExecuteLocal(w http.ResponseWriter, r *http.Request) {
	var req LocalRequest
	if !h.decode(w, r, &req) {
		return
	}
	value, err := parseAmount(req.Value)
	if err != nil {
		writeError(w, r, http.StatusBadRequest, fmt.Errorf("value: %w", err))
		return
	}

	a := req.Action.build(h.builder)
	success, err := h.router.ExecuteLocal(r.Context(), a, value)
	if err != nil {
		h.fail(w, r, "execute local", err)
		return
	}
	writeJSON(w, http.StatusOK, LocalResponse{Action: a, Success: success})
}

// Retry: POST /v1/actions/retry. Возвращает новое действие с новым ID, ничего не отправляя.
func (h *Handler) Retry(w http.ResponseWriter, r *http.Request) {
	var req RetryRequest
	if !h.decode(w, r, &req) {
		return
	}
	if req.Action.CreatedAt == 0 {
		writeError(w, r, http.StatusBadRequest, errors.New("action.created_at is required for retry"))
		return
	}
	prev := req.Action.build(h.builder)
	if err := prev.Validate(); err != nil {
		writeError(w, r, http.StatusBadRequest, err)
		return
	}
	writeJSON(w, http.StatusOK, h.builder.Retry(prev))
}

// Quote: POST /v1/quote
func (h *Handler) Quote(w http.ResponseWriter, r *http.Request) {
	var req QuoteRequest
	if !h.decode(w, r, &req) {
		return
	}
	dst, opts, err := h.target(req.DstChain, req.Options)
	if err != nil {
		writeError(w, r, http.StatusBadRequest, err)
		return
	}

	var fee transport.Fee
	actions := h.buildAll(req.Actions)
	if len(actions) == 1 {
		fee, err = h.router.QuoteAction(r.Context(), dst, actions[0], opts)
	} else {
		fee, err = h.router.QuoteBatch(r.Context(), dst, actions, opts)
	}
	if err != nil {
		h.fail(w, r, "quote", err)
		return
	}
	writeJSON(w, http.StatusOK, feeResponse(fee))
}

// Status: GET /v1/actions/{id}
func (h *Handler) Status(w http.ResponseWriter, r *http.Request) {
	raw := chi.URLParam(r, "id")
	id := common.HexToHash(raw)
	if len(common.FromHex(raw)) != common.HashLength {
		writeError(w, r, http.StatusBadRequest, errors.New("id must be a 32-byte hex hash"))
		return
	}

	entry, ok, err := h.router.Entry(r.Context(), id)
	if err != nil {
		h.fail(w, r, "entry lookup", err)
		return
	}
	status := ActionStatus{ActionID: id, Executed: ok}
	if ok {
		status.Entry = &entry
	}
	writeJSON(w, http.StatusOK, status)
}

func (h *Handler) target(chain string, in OptionsInput) (domain.ChainID, router.SendOptions, error) {
	dst, err := domain.ParseChain(chain)
	if err != nil {
		return 0, router.SendOptions{}, err
	}
	opts, err := in.toSendOptions()
	return dst, opts, err
}

func (h *Handler) buildAll(in []ActionInput) []domain.Action {
	actions := make([]domain.Action, 0, len(in))
	for _, a := range in {
		actions = append(actions, a.build(h.builder))
	}
	return actions
}

func (h *Handler) decode(w http.ResponseWriter, r *http.Request, v any) bool {
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		writeError(w, r, http.StatusBadRequest, fmt.Errorf("bad request: %w", err))
		return false
	}
	return true
}

func (h *Handler) fail(w http.ResponseWriter, r *http.Request, op string, err error) {
	status := statusOf(err)
	if status >= http.StatusInternalServerError {
		h.logger.Error(op+" failed",
			zap.String("trace_id", router.TraceID(r.Context())),
			zap.Error(err))
	} else {
		h.logger.Debug(op+" rejected", zap.Error(err))
	}
	writeError(w, r, status, err)
}
