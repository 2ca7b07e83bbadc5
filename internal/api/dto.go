package api

import (
	"errors"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/common/math"

	"github.com/xela07ax/xchain-router/internal/domain"
	"github.com/xela07ax/xchain-router/internal/ledger"
	"github.com/xela07ax/xchain-router/internal/router"
	"github.com/xela07ax/xchain-router/internal/transport"
)

var errBadAmount = errors.New("amount must be a non-negative decimal or 0x-hex integer")

// ActionInput: действие в запросе. Без created_at действие собирается билдером
// с текущим временем, иначе отпечаток пересчитывается из переданных полей.
type ActionInput struct {
	Account   common.Address `json:"account"`
	Target    common.Address `json:"target"`
	Payload   hexutil.Bytes  `json:"payload"`
	CreatedAt uint64         `json:"created_at,omitempty"`
}

func (in ActionInput) build(b *domain.Builder) domain.Action {
	if in.CreatedAt == 0 {
		return b.Build(in.Account, in.Target, in.Payload)
	}
	return domain.NewAction(in.Account, in.Target, in.Payload, in.CreatedAt)
}

// Суммы в API передаются строками, десятичными или 0x-hex.
type OptionsInput struct {
	Value        string         `json:"value,omitempty"`
	Gas          uint64         `json:"gas,omitempty"`
	NativeDrop   string         `json:"native_drop,omitempty"`
	DropReceiver common.Address `json:"drop_receiver,omitempty"`
	Refund       common.Address `json:"refund,omitempty"`
}

func (o OptionsInput) toSendOptions() (router.SendOptions, error) {
	value, err := parseAmount(o.Value)
	if err != nil {
		return router.SendOptions{}, fmt.Errorf("value: %w", err)
	}
	drop, err := parseAmount(o.NativeDrop)
	if err != nil {
		return router.SendOptions{}, fmt.Errorf("native_drop: %w", err)
	}
	return router.SendOptions{
		Value:        value,
		Gas:          o.Gas,
		NativeDrop:   drop,
		DropReceiver: o.DropReceiver,
		Refund:       o.Refund,
	}, nil
}

func parseAmount(s string) (*big.Int, error) {
	if s == "" {
		return nil, nil
	}
	v, ok := math.ParseBig256(s)
	if !ok || v.Sign() < 0 {
		return nil, errBadAmount
	}
	return v, nil
}

func amountString(v *big.Int) string {
	if v == nil {
		return "0"
	}
	return v.String()
}

type SendRequest struct {
	DstChain string       `json:"dst_chain"`
	Action   ActionInput  `json:"action"`
	Options  OptionsInput `json:"options"`
}

type BatchRequest struct {
	DstChain string        `json:"dst_chain"`
	Actions  []ActionInput `json:"actions"`
	Options  OptionsInput  `json:"options"`
}

type ConditionalRequest struct {
	DstChain  string       `json:"dst_chain"`
	Action    ActionInput  `json:"action"`
	Condition common.Hash  `json:"condition"`
	Required  bool         `json:"required"`
	Options   OptionsInput `json:"options"`
}

type MultiHopRequest struct {
	Route   []string     `json:"route"`
	Action  ActionInput  `json:"action"`
	Options OptionsInput `json:"options"`
}

type LocalRequest struct {
	Action ActionInput `json:"action"`
	Value  string      `json:"value,omitempty"`
}

type RetryRequest struct {
	Action ActionInput `json:"action"`
}

// QuoteRequest: одно действие котируется как single, несколько как батч.
type QuoteRequest struct {
	DstChain string        `json:"dst_chain"`
	Actions  []ActionInput `json:"actions"`
	Options  OptionsInput  `json:"options"`
}

type FeeResponse struct {
	NativeFee string `json:"native_fee"`
	TokenFee  string `json:"token_fee"`
}

func feeResponse(f transport.Fee) FeeResponse {
	return FeeResponse{NativeFee: amountString(f.NativeFee), TokenFee: amountString(f.TokenFee)}
}

type SendResponse struct {
	Actions []domain.Action `json:"actions"`
	GUID    common.Hash     `json:"guid"`
	Nonce   uint64          `json:"nonce"`
	Fee     FeeResponse     `json:"fee"`
}

func sendResponse(actions []domain.Action, rc transport.Receipt) SendResponse {
	return SendResponse{Actions: actions, GUID: rc.GUID, Nonce: rc.Nonce, Fee: feeResponse(rc.Fee)}
}

type LocalResponse struct {
	Action  domain.Action `json:"action"`
	Success bool          `json:"success"`
}

type ActionStatus struct {
	ActionID common.Hash   `json:"action_id"`
	Executed bool          `json:"executed"`
	Entry    *ledger.Entry `json:"entry,omitempty"`
}

type errorResponse struct {
	Error   string `json:"error"`
	TraceID string `json:"trace_id,omitempty"`
}
