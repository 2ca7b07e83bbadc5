package router

import (
	"context"

	"github.com/ethereum/go-ethereum/common"

	"github.com/xela07ax/xchain-router/internal/domain"
)

// SentEvent: уведомление "sent". Роутер сам его не потребляет.
type SentEvent struct {
	ActionID   common.Hash
	DstChain   domain.ChainID
	Account    common.Address
	Target     common.Address
	Kind       domain.EnvelopeKind
	DeliveryID string
}

// ReceivedEvent: уведомление "received", по одному на каждое исполненное действие.
type ReceivedEvent struct {
	ActionID common.Hash
	SrcChain domain.ChainID
	Account  common.Address
	Target   common.Address
	Success  bool
}

// Notifier не должен блокировать вызывающего (см. audit.Journal).
type Notifier interface {
	Sent(ctx context.Context, ev SentEvent)
	Received(ctx context.Context, ev ReceivedEvent)
}

type nopNotifier struct{}

func (nopNotifier) Sent(context.Context, SentEvent)         {}
func (nopNotifier) Received(context.Context, ReceivedEvent) {}

// Notifiers рассылает уведомления нескольким получателям по порядку.
type Notifiers []Notifier

func (n Notifiers) Sent(ctx context.Context, ev SentEvent) {
	for _, x := range n {
		x.Sent(ctx, ev)
	}
}

func (n Notifiers) Received(ctx context.Context, ev ReceivedEvent) {
	for _, x := range n {
		x.Received(ctx, ev)
	}
}
