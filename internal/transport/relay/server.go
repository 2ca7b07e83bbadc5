package relay

import (
	"context"
	"crypto/subtle"

	"go.uber.org/zap"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/structpb"

	"github.com/xela07ax/xchain-router/internal/transport"
)

const methodDeliver = "/router.v1.Receiver/Deliver"

// ReceiverServer принимает доставки от релея.
type ReceiverServer interface {
	Deliver(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error)
}

// ReceiverServiceDesc описан вручную: сгенерированного пакета нет, тело в Struct.
var ReceiverServiceDesc = grpc.ServiceDesc{
	ServiceName: "router.v1.Receiver",
	HandlerType: (*ReceiverServer)(nil),
	Methods: []grpc.MethodDesc{
		{MethodName: "Deliver", Handler: deliverHandler},
	},
	Streams:  []grpc.StreamDesc{},
	Metadata: "router/v1/receiver.proto",
}

func deliverHandler(srv interface{}, ctx context.Context, dec func(interface{}) error, interceptor grpc.UnaryServerInterceptor) (interface{}, error) {
	in := new(structpb.Struct)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(ReceiverServer).Deliver(ctx, in)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: methodDeliver}
	handler := func(ctx context.Context, req interface{}) (interface{}, error) {
		return srv.(ReceiverServer).Deliver(ctx, req.(*structpb.Struct))
	}
	return interceptor(ctx, in, info, handler)
}

// Server передаёт доставки в transport.Handler (обычно Router.Receive).
type Server struct {
	handle transport.Handler
	logger *zap.Logger
	// MapError переводит доменные ошибки в gRPC коды; по умолчанию ErrorCode.
	MapError func(error) codes.Code
}

func NewServer(h transport.Handler, logger *zap.Logger) *Server {
	return &Server{handle: h, logger: logger.Named("relay"), MapError: ErrorCode}
}

func (s *Server) Register(g *grpc.Server) {
	g.RegisterService(&ReceiverServiceDesc, s)
}

func (s *Server) Deliver(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	d, err := deliveryFromStruct(req)
	if err != nil {
		return nil, status.Error(codes.InvalidArgument, err.Error())
	}

	if err := s.handle(ctx, d); err != nil {
		s.logger.Warn("delivery rejected",
			zap.Stringer("src", d.SrcChain), zap.String("guid", d.GUID.Hex()), zap.Error(err))
		code := codes.FailedPrecondition
		if s.MapError != nil {
			code = s.MapError(err)
		}
		return nil, status.Error(code, err.Error())
	}
	return structpb.NewStruct(map[string]interface{}{"accepted": true})
}

// UnaryTokenInterceptor пускает только релей с общим секретом в метаданных.
func UnaryTokenInterceptor(token string) grpc.UnaryServerInterceptor {
	return func(
		ctx context.Context,
		req interface{},
		info *grpc.UnaryServerInfo,
		handler grpc.UnaryHandler,
	) (interface{}, error) {
		md, ok := metadata.FromIncomingContext(ctx)
		if !ok {
			return nil, status.Errorf(codes.Unauthenticated, "missing metadata")
		}
		tokens := md.Get(TokenHeader)
		if len(tokens) == 0 {
			return nil, status.Errorf(codes.Unauthenticated, "missing relay token")
		}
		if subtle.ConstantTimeCompare([]byte(tokens[0]), []byte(token)) != 1 {
			return nil, status.Errorf(codes.PermissionDenied, "invalid relay token")
		}
		return handler(ctx, req)
	}
}

// ReceiverClient: клиентская сторона Deliver (используется релеем и тестами).
type ReceiverClient struct {
	conn  grpc.ClientConnInterface
	token string
}

func NewReceiverClient(conn grpc.ClientConnInterface, token string) *ReceiverClient {
	return &ReceiverClient{conn: conn, token: token}
}

func (c *ReceiverClient) Deliver(ctx context.Context, d transport.Delivery) error {
	req, err := deliveryToStruct(d)
	if err != nil {
		return err
	}
	if c.token != "" {
		ctx = metadata.AppendToOutgoingContext(ctx, TokenHeader, c.token)
	}
	return c.conn.Invoke(ctx, methodDeliver, req, new(structpb.Struct))
}
