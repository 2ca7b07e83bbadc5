package relay

import (
	"context"
	"errors"
	"fmt"
	"math"
	"math/big"
	"net"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/status"
	"google.golang.org/grpc/test/bufconn"
	"google.golang.org/protobuf/types/known/structpb"

	"github.com/xela07ax/xchain-router/internal/codec"
	"github.com/xela07ax/xchain-router/internal/domain"
	"github.com/xela07ax/xchain-router/internal/router"
	"github.com/xela07ax/xchain-router/internal/transport"
)

// fakeRelay: минимальная реализация relay.v1.Relay для тестов клиента.
type fakeRelay struct {
	lastSend *structpb.Struct
	token    string
	throttle bool
}

type relayServer interface {
	quote(ctx context.Context, in *structpb.Struct) (*structpb.Struct, error)
	send(ctx context.Context, in *structpb.Struct) (*structpb.Struct, error)
}

func (f *fakeRelay) quote(ctx context.Context, _ *structpb.Struct) (*structpb.Struct, error) {
	if f.throttle {
		return nil, status.Error(codes.ResourceExhausted, "slow down")
	}
	md, _ := metadata.FromIncomingContext(ctx)
	if tokens := md.Get(TokenHeader); len(tokens) > 0 {
		f.token = tokens[0]
	}
	return structpb.NewStruct(map[string]interface{}{"native_fee": "123456789012345678901", "token_fee": "0"})
}

func (f *fakeRelay) send(_ context.Context, in *structpb.Struct) (*structpb.Struct, error) {
	f.lastSend = in
	return structpb.NewStruct(map[string]interface{}{
		"guid":       common.HexToHash("0x99").Hex(),
		"nonce":      "7",
		"native_fee": in.GetFields()["native_fee"].GetStringValue(),
	})
}

func unary(call func(relayServer, context.Context, *structpb.Struct) (*structpb.Struct, error)) grpc.MethodHandler {
	return func(srv interface{}, ctx context.Context, dec func(interface{}) error, _ grpc.UnaryServerInterceptor) (interface{}, error) {
		in := new(structpb.Struct)
		if err := dec(in); err != nil {
			return nil, err
		}
		return call(srv.(relayServer), ctx, in)
	}
}

var relayDesc = grpc.ServiceDesc{
	ServiceName: "relay.v1.Relay",
	HandlerType: (*relayServer)(nil),
	Methods: []grpc.MethodDesc{
		{MethodName: "Quote", Handler: unary(relayServer.quote)},
		{MethodName: "Send", Handler: unary(relayServer.send)},
	},
}

func dial(t *testing.T, register func(*grpc.Server), opts ...grpc.ServerOption) *grpc.ClientConn {
	t.Helper()
	lis := bufconn.Listen(1 << 20)
	srv := grpc.NewServer(opts...)
	register(srv)
	go func() { _ = srv.Serve(lis) }()
	t.Cleanup(srv.Stop)

	conn, err := grpc.NewClient("passthrough:///bufnet",
		grpc.WithContextDialer(func(ctx context.Context, _ string) (net.Conn, error) { return lis.DialContext(ctx) }),
		grpc.WithTransportCredentials(insecure.NewCredentials()),
	)
	require.NoError(t, err)
	t.Cleanup(func() { _ = conn.Close() })
	return conn
}

func TestClient_QuoteAndSend(t *testing.T) {
	relay := &fakeRelay{}
	conn := dial(t, func(s *grpc.Server) { s.RegisterService(&relayDesc, relay) })
	c := NewClient(conn, 30101, "secret")

	fee, err := c.Quote(context.Background(), 30110, []byte{0x01}, []byte{0x00, 0x03})
	require.NoError(t, err)
	want, _ := new(big.Int).SetString("123456789012345678901", 10)
	assert.Equal(t, 0, fee.NativeFee.Cmp(want))
	assert.Equal(t, "secret", relay.token)

	refund := common.HexToAddress("0xAA")
	r, err := c.Send(context.Background(), 30110, []byte{0x01}, nil, fee, refund)
	require.NoError(t, err)
	assert.Equal(t, uint64(7), r.Nonce)
	assert.Equal(t, common.HexToHash("0x99"), r.GUID)
	assert.Equal(t, 0, r.Fee.NativeFee.Cmp(want))

	f := relay.lastSend.GetFields()
	assert.Equal(t, float64(30101), f["src_chain"].GetNumberValue())
	assert.Equal(t, float64(30110), f["dst_chain"].GetNumberValue())
	assert.Equal(t, "0x01", f["message"].GetStringValue())
	assert.Equal(t, refund.Hex(), f["refund"].GetStringValue())
}

func TestClient_ThrottleMapsToThrottleError(t *testing.T) {
	conn := dial(t, func(s *grpc.Server) { s.RegisterService(&relayDesc, &fakeRelay{throttle: true}) })
	c := NewClient(conn, 30101, "")

	_, err := c.Quote(context.Background(), 30110, nil, nil)
	var tErr *transport.ThrottleError
	assert.ErrorAs(t, err, &tErr)
}

func TestServer_Deliver(t *testing.T) {
	var got transport.Delivery
	srv := NewServer(func(_ context.Context, d transport.Delivery) error {
		if len(d.Message) == 0 {
			return errors.New("empty message")
		}
		got = d
		return nil
	}, zap.NewNop())

	conn := dial(t, srv.Register, grpc.UnaryInterceptor(UnaryTokenInterceptor("relay-secret")))

	d := transport.Delivery{
		SrcChain: 30110,
		Sender:   common.HexToAddress("0x01"),
		GUID:     common.HexToHash("0x02"),
		Message:  []byte{0x01, 0x01, 0xff},
		Executor: common.HexToAddress("0x03"),
	}
	require.NoError(t, NewReceiverClient(conn, "relay-secret").Deliver(context.Background(), d))
	assert.Equal(t, d, got)

	err := NewReceiverClient(conn, "wrong").Deliver(context.Background(), d)
	assert.Equal(t, codes.PermissionDenied, status.Code(err))

	err = NewReceiverClient(conn, "").Deliver(context.Background(), d)
	assert.Equal(t, codes.Unauthenticated, status.Code(err))

	d.Message = nil
	err = NewReceiverClient(conn, "relay-secret").Deliver(context.Background(), d)
	assert.Equal(t, codes.FailedPrecondition, status.Code(err))
}

func TestServer_DeliverMapsRouterErrors(t *testing.T) {
	cases := map[string]struct {
		err  error
		want codes.Code
	}{
		"malformed envelope":  {fmt.Errorf("%w: 1 bytes", codec.ErrMalformed), codes.InvalidArgument},
		"unknown kind":        {codec.ErrUnknownKind, codes.InvalidArgument},
		"unsupported version": {codec.ErrUnsupportedVersion, codes.InvalidArgument},
		"empty action id":     {domain.ErrEmptyActionID, codes.InvalidArgument},
		"untrusted target":    {fmt.Errorf("%w: chain 1", router.ErrUntrustedTarget), codes.FailedPrecondition},
		"forwarding":          {router.ErrForwardingUnsupported, codes.FailedPrecondition},
		"condition not met":   {router.ErrConditionNotMet, codes.FailedPrecondition},
		"condition unknown":   {router.ErrConditionUnverified, codes.FailedPrecondition},
		"ledger down":         {fmt.Errorf("%w: reserve: %w", router.ErrLedgerUnavailable, errors.New("conn refused")), codes.Unavailable},
		"other":               {errors.New("boom"), codes.FailedPrecondition},
	}

	var fail error
	srv := NewServer(func(context.Context, transport.Delivery) error { return fail }, zap.NewNop())
	conn := dial(t, srv.Register)
	client := NewReceiverClient(conn, "")

	d := transport.Delivery{SrcChain: 30110, GUID: common.HexToHash("0x02"), Message: []byte{0x01}}
	for name, tc := range cases {
		t.Run(name, func(t *testing.T) {
			fail = tc.err
			err := client.Deliver(context.Background(), d)
			assert.Equal(t, tc.want, status.Code(err))
		})
	}
}

func TestServer_DeliverCustomMapper(t *testing.T) {
	srv := NewServer(func(context.Context, transport.Delivery) error { return router.ErrConditionNotMet }, zap.NewNop())
	srv.MapError = func(error) codes.Code { return codes.Aborted }
	conn := dial(t, srv.Register)

	err := NewReceiverClient(conn, "").Deliver(context.Background(), transport.Delivery{Message: []byte{0x01}})
	assert.Equal(t, codes.Aborted, status.Code(err))
}

func TestServer_DeliverRejectsBadSrcChain(t *testing.T) {
	called := false
	srv := NewServer(func(context.Context, transport.Delivery) error {
		called = true
		return nil
	}, zap.NewNop())
	conn := dial(t, srv.Register)

	for name, src := range map[string]*structpb.Value{
		"fraction":  structpb.NewNumberValue(30110.5),
		"negative":  structpb.NewNumberValue(-1),
		"too large": structpb.NewNumberValue(math.MaxUint32 + 1),
		"string":    structpb.NewStringValue("30110"),
	} {
		t.Run(name, func(t *testing.T) {
			req := &structpb.Struct{Fields: map[string]*structpb.Value{
				"src_chain": src,
				"message":   structpb.NewStringValue("0x01"),
			}}
			err := conn.Invoke(context.Background(), methodDeliver, req, new(structpb.Struct))
			assert.Equal(t, codes.InvalidArgument, status.Code(err))
		})
	}
	assert.False(t, called, "a delivery with a corrupted source chain never reaches the router")

	// Граница диапазона
	d, err := deliveryFromStruct(&structpb.Struct{Fields: map[string]*structpb.Value{
		"src_chain": structpb.NewNumberValue(math.MaxUint32),
		"message":   structpb.NewStringValue("0x01"),
	}})
	require.NoError(t, err)
	assert.Equal(t, domain.ChainID(math.MaxUint32), d.SrcChain)
}
