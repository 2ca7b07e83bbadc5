package api

import (
	"bytes"
	"context"
	"crypto/rand"
	"crypto/rsa"
	"encoding/json"
	"math/big"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/xela07ax/xchain-router/internal/adapters"
	"github.com/xela07ax/xchain-router/internal/domain"
	"github.com/xela07ax/xchain-router/internal/infra/auth"
	"github.com/xela07ax/xchain-router/internal/ledger"
	"github.com/xela07ax/xchain-router/internal/registry"
	"github.com/xela07ax/xchain-router/internal/router"
	"github.com/xela07ax/xchain-router/internal/transport"
)

var (
	adminAddr = common.HexToAddress("0x000000000000000000000000000000000000AD01")
	alice     = common.HexToAddress("0x000000000000000000000000000000000000A11C")
	mallory   = common.HexToAddress("0x0000000000000000000000000000000000000BAD")
	adapterX  = common.HexToAddress("0x00000000000000000000000000000000000000A1")
	adapterY  = common.HexToAddress("0x00000000000000000000000000000000000000B2")
)

type fixedFeeTransport struct {
	mu    sync.Mutex
	sends int
}

func (f *fixedFeeTransport) Quote(context.Context, domain.ChainID, []byte, []byte) (transport.Fee, error) {
	return transport.Fee{NativeFee: big.NewInt(100), TokenFee: new(big.Int)}, nil
}

func (f *fixedFeeTransport) Send(_ context.Context, _ domain.ChainID, _, _ []byte, fee transport.Fee, _ common.Address) (transport.Receipt, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sends++
	return transport.Receipt{GUID: common.HexToHash("0xfeed"), Nonce: uint64(f.sends), Fee: fee}, nil
}

type env struct {
	srv      http.Handler
	key      *rsa.PrivateKey
	recorder *adapters.Recorder
	tr       *fixedFeeTransport
}

func newEnv(t *testing.T) *env {
	t.Helper()
	key, err := rsa.GenerateKey(rand.Reader, 2048)
	require.NoError(t, err)

	admin := registry.NewAdmin(adminAddr)
	trust := registry.NewTrust(admin, nil, nil, zap.NewNop())
	authz := registry.NewAuthorization(admin, nil, nil, zap.NewNop())
	ctx := domain.WithCaller(context.Background(), adminAddr)
	adminCap, err := admin.Capability(ctx)
	require.NoError(t, err)
	require.NoError(t, authz.Set(ctx, adminCap, alice, true))
	// arbitrum принимает только adapterX
	require.NoError(t, trust.Set(ctx, adminCap, domain.ChainID(30110), adapterX))

	e := &env{key: key, recorder: &adapters.Recorder{}, tr: &fixedFeeTransport{}}
	targets := adapters.NewRegistry()
	targets.Register(adapterX, e.recorder)
	targets.Register(adapterY, e.recorder)

	r, err := router.New(router.Config{ChainName: "ethereum"}, router.Deps{
		Ledger:    ledger.NewMemoryStore(),
		Trust:     trust,
		Auth:      authz,
		Transport: e.tr,
		Targets:   targets,
	}, zap.NewNop())
	require.NoError(t, err)

	h := NewHandler(r, domain.NewBuilder(), zap.NewNop())
	e.srv = NewRouter(h, auth.NewBaseValidator(&key.PublicKey), nil, zap.NewNop())
	return e
}

func (e *env) token(t *testing.T, caller common.Address) string {
	t.Helper()
	tok, err := auth.NewTokenIssuer(e.key, time.Hour).Issue(&domain.User{ID: "u", Address: caller.Hex()})
	require.NoError(t, err)
	return tok
}

func (e *env) do(t *testing.T, caller common.Address, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	if caller != (common.Address{}) {
		req.Header.Set("Authorization", "Bearer "+e.token(t, caller))
	}
	rec := httptest.NewRecorder()
	e.srv.ServeHTTP(rec, req)
	return rec
}

func input(target common.Address, payload string) ActionInput {
	return ActionInput{Account: alice, Target: target, Payload: []byte(payload)}
}

func TestSend(t *testing.T) {
	e := newEnv(t)

	rec := e.do(t, alice, http.MethodPost, "/v1/actions", SendRequest{
		DstChain: "arbitrum",
		Action:   input(adapterX, "hello"),
		Options:  OptionsInput{Value: "100"},
	})
	require.Equal(t, http.StatusAccepted, rec.Code, rec.Body.String())

	var resp SendResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	require.Len(t, resp.Actions, 1)
	assert.NotEqual(t, common.Hash{}, resp.Actions[0].ID)
	assert.Equal(t, common.HexToHash("0xfeed"), resp.GUID)
	assert.Equal(t, "100", resp.Fee.NativeFee)
	assert.NotEmpty(t, rec.Header().Get(TraceHeader))
}

func TestSendErrors(t *testing.T) {
	e := newEnv(t)

	cases := []struct {
		name   string
		caller common.Address
		body   any
		want   int
	}{
		{"no token", common.Address{}, SendRequest{DstChain: "arbitrum", Action: input(adapterX, "a")}, http.StatusUnauthorized},
		{"not authorized", mallory, SendRequest{DstChain: "arbitrum", Action: input(adapterX, "a"), Options: OptionsInput{Value: "100"}}, http.StatusForbidden},
		{"untrusted target", alice, SendRequest{DstChain: "arbitrum", Action: input(adapterY, "a"), Options: OptionsInput{Value: "100"}}, http.StatusForbidden},
		{"fee too low", alice, SendRequest{DstChain: "arbitrum", Action: input(adapterX, "a"), Options: OptionsInput{Value: "99"}}, http.StatusPaymentRequired},
		{"unknown chain", alice, SendRequest{DstChain: "narnia", Action: input(adapterX, "a")}, http.StatusBadRequest},
		{"empty account", alice, SendRequest{DstChain: "arbitrum", Action: ActionInput{Target: adapterX}, Options: OptionsInput{Value: "100"}}, http.StatusBadRequest},
		{"negative value", alice, SendRequest{DstChain: "arbitrum", Action: input(adapterX, "a"), Options: OptionsInput{Value: "-1"}}, http.StatusBadRequest},
		{"unknown field", alice, map[string]any{"dst": "arbitrum"}, http.StatusBadRequest},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			rec := e.do(t, tc.caller, http.MethodPost, "/v1/actions", tc.body)
			assert.Equal(t, tc.want, rec.Code, rec.Body.String())
		})
	}
	assert.Zero(t, e.tr.sends)
}

func TestSendBatch(t *testing.T) {
	e := newEnv(t)

	rec := e.do(t, alice, http.MethodPost, "/v1/actions/batch", BatchRequest{
		DstChain: "arbitrum",
		Actions:  []ActionInput{input(adapterX, "1"), input(adapterX, "2")},
		Options:  OptionsInput{Value: "100"},
	})
	require.Equal(t, http.StatusAccepted, rec.Code, rec.Body.String())
	var resp SendResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Len(t, resp.Actions, 2)
	assert.NotEqual(t, resp.Actions[0].ID, resp.Actions[1].ID)

	rec = e.do(t, alice, http.MethodPost, "/v1/actions/batch", BatchRequest{DstChain: "arbitrum", Options: OptionsInput{Value: "100"}})
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	dup := ActionInput{Account: alice, Target: adapterX, Payload: []byte("x"), CreatedAt: 1700000000}
	rec = e.do(t, alice, http.MethodPost, "/v1/actions/batch", BatchRequest{
		DstChain: "arbitrum",
		Actions:  []ActionInput{dup, dup},
		Options:  OptionsInput{Value: "100"},
	})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, 1, e.tr.sends)
}

func TestSendConditionalAndMultiHop(t *testing.T) {
	e := newEnv(t)

	rec := e.do(t, alice, http.MethodPost, "/v1/actions/conditional", ConditionalRequest{
		DstChain:  "base",
		Action:    input(adapterY, "c"),
		Condition: common.HexToHash("0xc0de"),
		Required:  true,
		Options:   OptionsInput{Value: "0x64"},
	})
	assert.Equal(t, http.StatusAccepted, rec.Code, rec.Body.String())

	rec = e.do(t, alice, http.MethodPost, "/v1/actions/multihop", MultiHopRequest{
		Route:   []string{"arbitrum", "base"},
		Action:  input(adapterX, "m"),
		Options: OptionsInput{Value: "100"},
	})
	assert.Equal(t, http.StatusAccepted, rec.Code, rec.Body.String())

	rec = e.do(t, alice, http.MethodPost, "/v1/actions/multihop", MultiHopRequest{
		Action:  input(adapterX, "m"),
		Options: OptionsInput{Value: "100"},
	})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, 2, e.tr.sends)
}

func TestQuote(t *testing.T) {
	e := newEnv(t)

	rec := e.do(t, alice, http.MethodPost, "/v1/quote", QuoteRequest{
		DstChain: "arbitrum",
		Actions:  []ActionInput{input(adapterX, "q")},
	})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	var fee FeeResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &fee))
	assert.Equal(t, "100", fee.NativeFee)
	assert.Zero(t, e.tr.sends)
}

func TestLocalExecutionAndStatus(t *testing.T) {
	e := newEnv(t)
	in := ActionInput{Account: alice, Target: adapterX, Payload: []byte("local"), CreatedAt: 1700000000}
	id := domain.Fingerprint(alice, adapterX, []byte("local"), 1700000000)

	rec := e.do(t, alice, http.MethodGet, "/v1/actions/"+id.Hex(), nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var st ActionStatus
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &st))
	assert.False(t, st.Executed)

	rec = e.do(t, alice, http.MethodPost, "/v1/actions/local", LocalRequest{Action: in})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	var resp LocalResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.True(t, resp.Success)
	assert.Equal(t, id, resp.Action.ID)
	assert.Equal(t, 1, e.recorder.Count())

	rec = e.do(t, alice, http.MethodPost, "/v1/actions/local", LocalRequest{Action: in})
	assert.Equal(t, http.StatusConflict, rec.Code)
	assert.Equal(t, 1, e.recorder.Count())

	rec = e.do(t, alice, http.MethodGet, "/v1/actions/"+id.Hex(), nil)
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &st))
	assert.True(t, st.Executed)
	require.NotNil(t, st.Entry)
	assert.Equal(t, ledger.StatusSucceeded, st.Entry.Status)

	rec = e.do(t, alice, http.MethodGet, "/v1/actions/0x1234", nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestRetryMintsFreshID(t *testing.T) {
	e := newEnv(t)
	in := ActionInput{Account: alice, Target: adapterX, Payload: []byte("again"), CreatedAt: 1700000000}

	rec := e.do(t, alice, http.MethodPost, "/v1/actions/retry", RetryRequest{Action: in})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	var fresh domain.Action
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &fresh))
	assert.Greater(t, fresh.CreatedAt, in.CreatedAt)
	assert.NotEqual(t, domain.Fingerprint(alice, adapterX, []byte("again"), in.CreatedAt), fresh.ID)
	assert.Equal(t, []byte("again"), []byte(fresh.Payload))

	rec = e.do(t, alice, http.MethodPost, "/v1/actions/retry", RetryRequest{Action: input(adapterX, "x")})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestTraceHeaderIsEchoed(t *testing.T) {
	e := newEnv(t)
	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	req.Header.Set(TraceHeader, "trace-123")
	rec := httptest.NewRecorder()
	e.srv.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "trace-123", rec.Header().Get(TraceHeader))
}
