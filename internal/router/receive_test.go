package router

import (
	"context"
	"errors"
	"math/big"
	"sync"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xela07ax/xchain-router/internal/codec"
	"github.com/xela07ax/xchain-router/internal/conditions"
	"github.com/xela07ax/xchain-router/internal/domain"
	"github.com/xela07ax/xchain-router/internal/ledger"
)

func isExecuted(t *testing.T, n *node, id common.Hash) bool {
	t.Helper()
	ok, err := n.r.IsExecuted(context.Background(), id)
	require.NoError(t, err)
	return ok
}

func TestReceive_Idempotence(t *testing.T) {
	n := newNode(t, "arbitrum")
	a := action(adapterX, "swap", 1)
	d := deliver(t, domain.SingleEnvelope(a), chainA)

	rep, err := n.r.Receive(context.Background(), d)
	require.NoError(t, err)
	require.Len(t, rep.Results, 1)
	assert.Equal(t, OutcomeExecuted, rep.Results[0].Outcome)
	assert.True(t, rep.Results[0].Success)

	rep, err = n.r.Receive(context.Background(), d)
	require.NoError(t, err, "duplicate delivery is not an error")
	assert.Equal(t, OutcomeDuplicate, rep.Results[0].Outcome)

	assert.Equal(t, 1, n.recorder.Count())
	assert.Len(t, n.notes.receivedEvents(), 1)

	e, ok, err := n.r.Entry(context.Background(), a.ID)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, ledger.StatusSucceeded, e.Status)
	assert.Equal(t, chainA, e.SrcChain)
}

func TestReceive_ConcurrentDuplicatesInvokeOnce(t *testing.T) {
	n := newNode(t, "arbitrum")
	d := deliver(t, domain.SingleEnvelope(action(adapterX, "swap", 1)), chainA)

	var wg sync.WaitGroup
	for i := 0; i < 32; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := n.r.Receive(context.Background(), d)
			assert.NoError(t, err)
		}()
	}
	wg.Wait()
	assert.Equal(t, 1, n.recorder.Count())
}

func TestReceive_TrustEnforcement(t *testing.T) {
	n := newNode(t, "arbitrum")
	n.setTrust(t, chainA, adapterY)
	a := action(adapterX, "swap", 1)

	_, err := n.r.Receive(context.Background(), deliver(t, domain.SingleEnvelope(a), chainA))
	assert.ErrorIs(t, err, ErrUntrustedTarget)
	assert.False(t, isExecuted(t, n, a.ID), "rejected delivery is never marked")
	assert.Equal(t, 0, n.recorder.Count())
	assert.Empty(t, n.notes.receivedEvents())

	// Ограничение действует только для своей сети-источника
	_, err = n.r.Receive(context.Background(), deliver(t, domain.SingleEnvelope(a), chainC))
	require.NoError(t, err)
	assert.True(t, isExecuted(t, n, a.ID))
}

func TestReceive_FailClosed(t *testing.T) {
	n := newNode(t, "arbitrum")

	for _, payload := range []string{"fail", "panic"} {
		t.Run(payload, func(t *testing.T) {
			a := action(adapterX, payload, 1)
			d := deliver(t, domain.SingleEnvelope(a), chainA)
			before := n.recorder.Count()

			rep, err := n.r.Receive(context.Background(), d)
			require.NoError(t, err, "target failure is an outcome, not a router error")
			assert.Equal(t, OutcomeExecuted, rep.Results[0].Outcome)
			assert.False(t, rep.Results[0].Success)
			assert.True(t, isExecuted(t, n, a.ID))

			rep, err = n.r.Receive(context.Background(), d)
			require.NoError(t, err)
			assert.Equal(t, OutcomeDuplicate, rep.Results[0].Outcome)
			assert.Equal(t, before+1, n.recorder.Count())

			e, _, err := n.r.Entry(context.Background(), a.ID)
			require.NoError(t, err)
			assert.Equal(t, ledger.StatusFailed, e.Status)
		})
	}
}

func TestReceive_UnknownTargetCountsAsFailure(t *testing.T) {
	n := newNode(t, "arbitrum")
	a := action(common.HexToAddress("0xFEED"), "p", 1)

	rep, err := n.r.Receive(context.Background(), deliver(t, domain.SingleEnvelope(a), chainA))
	require.NoError(t, err)
	assert.False(t, rep.Results[0].Success)
	assert.True(t, isExecuted(t, n, a.ID))
}

func TestReceive_BatchIndependence(t *testing.T) {
	n := newNode(t, "arbitrum")
	actions := []domain.Action{action(adapterX, "one", 1), action(adapterX, "fail", 1), action(adapterX, "three", 1)}

	rep, err := n.r.Receive(context.Background(), deliver(t, domain.BatchEnvelope(actions), chainA))
	require.NoError(t, err)
	require.Len(t, rep.Results, 3)
	assert.Equal(t, 3, rep.Executed())
	assert.True(t, rep.Results[0].Success)
	assert.False(t, rep.Results[1].Success)
	assert.True(t, rep.Results[2].Success)

	for _, a := range actions {
		assert.True(t, isExecuted(t, n, a.ID))
	}
	received := n.notes.receivedEvents()
	require.Len(t, received, 3)
	assert.Equal(t, []bool{true, false, true}, []bool{received[0].Success, received[1].Success, received[2].Success})
}

func TestReceive_BatchRecordsCheckedIndependently(t *testing.T) {
	n := newNode(t, "arbitrum")
	n.setTrust(t, chainA, adapterX)
	seen := action(adapterX, "seen", 1)
	_, err := n.r.Receive(context.Background(), deliver(t, domain.SingleEnvelope(seen), chainA))
	require.NoError(t, err)

	untrusted := action(adapterY, "bad", 1)
	fresh := action(adapterX, "fresh", 1)
	rep, err := n.r.Receive(context.Background(), deliver(t, domain.BatchEnvelope([]domain.Action{seen, untrusted, fresh}), chainA))
	require.NoError(t, err)

	assert.Equal(t, OutcomeDuplicate, rep.Results[0].Outcome)
	assert.Equal(t, OutcomeRejected, rep.Results[1].Outcome)
	assert.ErrorIs(t, rep.Results[1].Err, ErrUntrustedTarget)
	assert.Equal(t, OutcomeExecuted, rep.Results[2].Outcome)
	assert.False(t, isExecuted(t, n, untrusted.ID))
	assert.Equal(t, 2, n.recorder.Count())
}

func TestReceive_Malformed(t *testing.T) {
	n := newNode(t, "arbitrum")
	_, err := n.r.Receive(context.Background(), Delivery{SrcChain: chainA, Message: []byte{0x01}})
	assert.ErrorIs(t, err, codec.ErrMalformed)
	_, err = n.r.Receive(context.Background(), Delivery{SrcChain: chainA, Message: []byte{0x01, 0x09}})
	assert.ErrorIs(t, err, codec.ErrUnknownKind)
}

func TestReceive_Conditional(t *testing.T) {
	cond := common.HexToHash("0xC0")

	t.Run("required without checker is held", func(t *testing.T) {
		n := newNode(t, "arbitrum")
		a := action(adapterX, "p", 1)
		rep, err := n.r.Receive(context.Background(), deliver(t, domain.ConditionalEnvelope(domain.ConditionalAction{Action: a, Condition: cond, Required: true}), chainA))
		assert.ErrorIs(t, err, ErrConditionUnverified)
		assert.Equal(t, OutcomeRejected, rep.Results[0].Outcome)
		assert.False(t, isExecuted(t, n, a.ID))
	})

	t.Run("optional condition executes", func(t *testing.T) {
		n := newNode(t, "arbitrum")
		a := action(adapterX, "p", 1)
		rep, err := n.r.Receive(context.Background(), deliver(t, domain.ConditionalEnvelope(domain.ConditionalAction{Action: a, Condition: cond}), chainA))
		require.NoError(t, err)
		assert.Equal(t, OutcomeExecuted, rep.Results[0].Outcome)
		assert.True(t, isExecuted(t, n, a.ID))
	})

	t.Run("checker decides", func(t *testing.T) {
		checker := conditions.NewStatic()
		n := newNode(t, "arbitrum", withChecker(checker))
		a := action(adapterX, "p", 1)
		d := deliver(t, domain.ConditionalEnvelope(domain.ConditionalAction{Action: a, Condition: cond, Required: true}), chainA)

		rep, err := n.r.Receive(context.Background(), d)
		assert.ErrorIs(t, err, ErrConditionNotMet)
		assert.Equal(t, OutcomeSkipped, rep.Results[0].Outcome)
		assert.False(t, isExecuted(t, n, a.ID), "unmet condition leaves the id redeliverable")

		checker.Set(cond, true)
		rep, err = n.r.Receive(context.Background(), d)
		require.NoError(t, err)
		assert.Equal(t, OutcomeExecuted, rep.Results[0].Outcome)
		assert.Equal(t, 1, n.recorder.Count())
	})

	t.Run("checker error is unverified", func(t *testing.T) {
		n := newNode(t, "arbitrum", withChecker(failingChecker{}))
		a := action(adapterX, "p", 1)
		_, err := n.r.Receive(context.Background(), deliver(t, domain.ConditionalEnvelope(domain.ConditionalAction{Action: a, Condition: cond, Required: true}), chainA))
		assert.ErrorIs(t, err, ErrConditionUnverified)
		assert.False(t, isExecuted(t, n, a.ID))
	})
}

type failingChecker struct{}

func (failingChecker) Check(context.Context, common.Hash) (bool, error) {
	return false, errors.New("oracle offline")
}

// flakyLedger: MemoryStore, у которого отказывают выбранные операции.
type flakyLedger struct {
	*ledger.MemoryStore
	hasErr, reserveErr error
}

func (l flakyLedger) Has(ctx context.Context, id common.Hash) (bool, error) {
	if l.hasErr != nil {
		return false, l.hasErr
	}
	return l.MemoryStore.Has(ctx, id)
}

func (l flakyLedger) Reserve(ctx context.Context, e ledger.Entry) (bool, error) {
	if l.reserveErr != nil {
		return false, l.reserveErr
	}
	return l.MemoryStore.Reserve(ctx, e)
}

func TestReceive_LedgerUnavailable(t *testing.T) {
	down := errors.New("connection refused")

	for name, l := range map[string]flakyLedger{
		"lookup":  {MemoryStore: ledger.NewMemoryStore(), hasErr: down},
		"reserve": {MemoryStore: ledger.NewMemoryStore(), reserveErr: down},
	} {
		t.Run(name, func(t *testing.T) {
			n := newNode(t, "arbitrum", func(d *Deps) { d.Ledger = l })
			a := action(adapterX, "p", 1)

			rep, err := n.r.Receive(context.Background(), deliver(t, domain.SingleEnvelope(a), chainA))
			assert.ErrorIs(t, err, ErrLedgerUnavailable)
			assert.ErrorIs(t, err, down)
			assert.Equal(t, OutcomeRejected, rep.Results[0].Outcome)
			assert.Equal(t, 0, n.recorder.Count(), "target is never invoked without a reservation")
		})
	}
}

func TestReceive_MultiHop(t *testing.T) {
	n := newNode(t, "arbitrum")

	forward := action(adapterX, "hop", 1)
	rep, err := n.r.Receive(context.Background(), deliver(t, domain.MultiHopEnvelope([]domain.ChainID{chainC}, forward), chainA))
	assert.ErrorIs(t, err, ErrForwardingUnsupported)
	assert.Equal(t, OutcomeRejected, rep.Results[0].Outcome)
	assert.False(t, isExecuted(t, n, forward.ID))

	terminal := action(adapterX, "last", 1)
	rep, err = n.r.Receive(context.Background(), deliver(t, domain.MultiHopEnvelope(nil, terminal), chainA))
	require.NoError(t, err)
	assert.Equal(t, OutcomeExecuted, rep.Results[0].Outcome)
	assert.True(t, isExecuted(t, n, terminal.ID))
}

func TestExecuteLocal(t *testing.T) {
	n := newNode(t, "base")
	a := action(adapterX, "mint", 1)

	_, err := n.r.ExecuteLocal(as(mallory), a, nil)
	assert.ErrorIs(t, err, ErrUnauthorized)
	assert.False(t, isExecuted(t, n, a.ID), "unauthorized call leaves no state")

	ok, err := n.r.ExecuteLocal(as(alice), a, big.NewInt(5))
	require.NoError(t, err)
	assert.True(t, ok)

	calls := n.recorder.Calls()
	require.Len(t, calls, 1)
	assert.Equal(t, int64(5), calls[0].Value.Int64(), "value is forwarded to the target")

	_, err = n.r.ExecuteLocal(as(alice), a, nil)
	assert.ErrorIs(t, err, ErrAlreadyExecuted)
	assert.Equal(t, 1, n.recorder.Count())

	received := n.notes.receivedEvents()
	require.Len(t, received, 1)
	assert.Equal(t, chainC, received[0].SrcChain, "source chain is the router's own chain")

	failed := action(adapterX, "fail", 1)
	ok, err = n.r.ExecuteLocal(as(adminAddr), failed, nil)
	require.NoError(t, err)
	assert.False(t, ok)
	assert.True(t, isExecuted(t, n, failed.ID))
}

func TestExecuteLocal_TrustOnOwnChain(t *testing.T) {
	n := newNode(t, "base")
	n.setTrust(t, chainC, adapterY)

	a := action(adapterX, "p", 1)
	_, err := n.r.ExecuteLocal(as(alice), a, nil)
	assert.ErrorIs(t, err, ErrUntrustedTarget)
	assert.False(t, isExecuted(t, n, a.ID))

	ok, err := n.r.ExecuteLocal(as(alice), action(adapterY, "p", 1), nil)
	require.NoError(t, err)
	assert.True(t, ok)
}
