package codec

import (
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xela07ax/xchain-router/internal/domain"
)

var (
	acct    = common.HexToAddress("0x00000000000000000000000000000000000000a1")
	adapter = common.HexToAddress("0x00000000000000000000000000000000000000b2")
)

func TestSingleEnvelopeKeepsActionIntact(t *testing.T) {
	a := domain.NewAction(acct, adapter, []byte("swap:100"), 1700000000)

	data, err := Encode(domain.SingleEnvelope(a))
	require.NoError(t, err)
	assert.Equal(t, Version, data[0])
	assert.Equal(t, byte(domain.KindSingle), data[1])

	env, err := Decode(data)
	require.NoError(t, err)
	require.Equal(t, domain.KindSingle, env.Kind)
	require.Len(t, env.Actions, 1)
	assert.Equal(t, a.ID, env.Actions[0].ID)
	assert.Equal(t, a.Account, env.Actions[0].Account)
	assert.Equal(t, a.Target, env.Actions[0].Target)
	assert.Equal(t, []byte("swap:100"), []byte(env.Actions[0].Payload))
	assert.Equal(t, a.CreatedAt, env.Actions[0].CreatedAt)
}

func TestBatchOfOneIsNotMistakenForSingle(t *testing.T) {
	a := domain.NewAction(acct, adapter, []byte("mint"), 1700000001)

	single, err := Encode(domain.SingleEnvelope(a))
	require.NoError(t, err)
	batch, err := Encode(domain.BatchEnvelope([]domain.Action{a}))
	require.NoError(t, err)

	envSingle, err := Decode(single)
	require.NoError(t, err)
	envBatch, err := Decode(batch)
	require.NoError(t, err)

	assert.Equal(t, domain.KindSingle, envSingle.Kind)
	assert.Equal(t, domain.KindBatch, envBatch.Kind)
	require.Len(t, envBatch.Actions, 1)
	assert.Equal(t, a.ID, envBatch.Actions[0].ID)
}

func TestBatchPreservesOrder(t *testing.T) {
	actions := []domain.Action{
		domain.NewAction(acct, adapter, []byte("1"), 1),
		domain.NewAction(acct, adapter, nil, 2),
		domain.NewAction(acct, adapter, []byte("3"), 3),
	}
	data, err := Encode(domain.BatchEnvelope(actions))
	require.NoError(t, err)

	env, err := Decode(data)
	require.NoError(t, err)
	require.Len(t, env.Actions, 3)
	for i := range actions {
		assert.Equal(t, actions[i].ID, env.Actions[i].ID, "item %d", i)
	}
	assert.Empty(t, env.Actions[1].Payload)
}

func TestConditionalAndMultiHopFields(t *testing.T) {
	a := domain.NewAction(acct, adapter, []byte("vault"), 42)
	cond := common.HexToHash("0xc0ffee")

	data, err := Encode(domain.ConditionalEnvelope(domain.ConditionalAction{Action: a, Condition: cond, Required: true}))
	require.NoError(t, err)
	env, err := Decode(data)
	require.NoError(t, err)
	assert.Equal(t, domain.KindConditional, env.Kind)
	assert.Equal(t, cond, env.Condition)
	assert.True(t, env.Required)
	assert.Equal(t, a.ID, env.Actions[0].ID)

	data, err = Encode(domain.MultiHopEnvelope([]domain.ChainID{30110, 30184}, a))
	require.NoError(t, err)
	env, err = Decode(data)
	require.NoError(t, err)
	assert.Equal(t, domain.KindMultiHop, env.Kind)
	assert.Equal(t, []domain.ChainID{30110, 30184}, env.Route)
}

func TestDecodeRejectsGarbage(t *testing.T) {
	_, err := Decode(nil)
	assert.ErrorIs(t, err, ErrMalformed)

	_, err = Decode([]byte{9, 1, 0})
	assert.ErrorIs(t, err, ErrUnsupportedVersion)

	_, err = Decode([]byte{Version, 77})
	assert.ErrorIs(t, err, ErrUnknownKind)

	_, err = Decode([]byte{Version, byte(domain.KindSingle), 1, 2, 3})
	assert.ErrorIs(t, err, ErrMalformed)
}

func TestEncodeRejectsWrongArity(t *testing.T) {
	_, err := Encode(domain.Envelope{Kind: domain.KindSingle})
	assert.ErrorIs(t, err, ErrMalformed)

	_, err = Encode(domain.Envelope{Kind: 0})
	assert.ErrorIs(t, err, ErrUnknownKind)
}
