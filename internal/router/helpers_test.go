package router

import (
	"context"
	"math/big"
	"sync"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/xela07ax/xchain-router/internal/adapters"
	"github.com/xela07ax/xchain-router/internal/codec"
	"github.com/xela07ax/xchain-router/internal/conditions"
	"github.com/xela07ax/xchain-router/internal/domain"
	"github.com/xela07ax/xchain-router/internal/ledger"
	"github.com/xela07ax/xchain-router/internal/registry"
	"github.com/xela07ax/xchain-router/internal/transport"
)

const (
	chainA = domain.ChainID(30101) // ethereum
	chainB = domain.ChainID(30110) // arbitrum
	chainC = domain.ChainID(30184) // base
)

var (
	adminAddr = common.HexToAddress("0x000000000000000000000000000000000000AD01")
	alice     = common.HexToAddress("0x000000000000000000000000000000000000A11C")
	mallory   = common.HexToAddress("0x0000000000000000000000000000000000000BAD")
	adapterX  = common.HexToAddress("0x00000000000000000000000000000000000000A1")
	adapterY  = common.HexToAddress("0x00000000000000000000000000000000000000B2")
)

type captureNotifier struct {
	mu       sync.Mutex
	sent     []SentEvent
	received []ReceivedEvent
}

func (c *captureNotifier) Sent(_ context.Context, ev SentEvent) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.sent = append(c.sent, ev)
}

func (c *captureNotifier) Received(_ context.Context, ev ReceivedEvent) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.received = append(c.received, ev)
}

func (c *captureNotifier) receivedEvents() []ReceivedEvent {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]ReceivedEvent(nil), c.received...)
}

// countingTransport считает вызовы и отдаёт фиксированную котировку.
type countingTransport struct {
	mu     sync.Mutex
	fee    *big.Int
	quotes int
	sends  int
	last   []byte
	opts   []byte
}

func (c *countingTransport) Quote(_ context.Context, _ domain.ChainID, _, _ []byte) (transport.Fee, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.quotes++
	return transport.Fee{NativeFee: c.fee}, nil
}

func (c *countingTransport) Send(_ context.Context, _ domain.ChainID, msg, opts []byte, _ transport.Fee, _ common.Address) (transport.Receipt, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.sends++
	c.last = msg
	c.opts = opts
	return transport.Receipt{GUID: common.HexToHash("0x01"), Nonce: uint64(c.sends)}, nil
}

type node struct {
	r        *Router
	store    *ledger.MemoryStore
	admin    *registry.Admin
	trust    *registry.Trust
	auth     *registry.Authorization
	targets  *adapters.Registry
	recorder *adapters.Recorder
	notes    *captureNotifier
}

type nodeOption func(*Deps)

func withTransport(t transport.Transport) nodeOption {
	return func(d *Deps) { d.Transport = t }
}

func withChecker(c conditions.Checker) nodeOption {
	return func(d *Deps) { d.Conditions = c }
}

func newNode(t *testing.T, chainName string, opts ...nodeOption) *node {
	t.Helper()
	n := &node{
		store:    ledger.NewMemoryStore(),
		admin:    registry.NewAdmin(adminAddr),
		targets:  adapters.NewRegistry(),
		recorder: &adapters.Recorder{},
		notes:    &captureNotifier{},
	}
	n.trust = registry.NewTrust(n.admin, nil, nil, zap.NewNop())
	n.auth = registry.NewAuthorization(n.admin, nil, nil, zap.NewNop())
	n.targets.Register(adapterX, n.recorder)
	n.targets.Register(adapterY, n.recorder)

	deps := Deps{
		Ledger:   n.store,
		Trust:    n.trust,
		Auth:     n.auth,
		Targets:  n.targets,
		Notifier: n.notes,
	}
	for _, o := range opts {
		o(&deps)
	}

	r, err := New(Config{ChainName: chainName}, deps, zap.NewNop())
	require.NoError(t, err)
	n.r = r

	require.NoError(t, n.auth.Set(context.Background(), n.cap(t), alice, true))
	return n
}

func (n *node) cap(t *testing.T) registry.AdminCap {
	t.Helper()
	c, err := n.admin.Capability(domain.WithCaller(context.Background(), adminAddr))
	require.NoError(t, err)
	return c
}

func (n *node) setTrust(t *testing.T, chain domain.ChainID, target common.Address) {
	t.Helper()
	require.NoError(t, n.trust.Set(context.Background(), n.cap(t), chain, target))
}

func as(caller common.Address) context.Context {
	return domain.WithCaller(context.Background(), caller)
}

func action(target common.Address, payload string, ts uint64) domain.Action {
	return domain.NewAction(alice, target, []byte(payload), ts)
}

func deliver(t *testing.T, env domain.Envelope, src domain.ChainID) Delivery {
	t.Helper()
	msg, err := codec.Encode(env)
	require.NoError(t, err)
	return Delivery{SrcChain: src, Message: msg}
}

func eth(n int64) *big.Int {
	return new(big.Int).Mul(big.NewInt(n), big.NewInt(1e18))
}

func (c *captureNotifier) sentEvents() []SentEvent {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]SentEvent(nil), c.sent...)
}
