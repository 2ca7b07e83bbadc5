package relay

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/structpb"

	"github.com/xela07ax/xchain-router/internal/domain"
	"github.com/xela07ax/xchain-router/internal/transport"
)

const (
	methodQuote = "/relay.v1.Relay/Quote"
	methodSend  = "/relay.v1.Relay/Send"

	// TokenHeader: метаданные с токеном релея (gRPC заголовки в нижнем регистре).
	TokenHeader = "x-relay-token"
)

// Client: транспорт поверх внешнего релея.
type Client struct {
	conn    grpc.ClientConnInterface
	src     domain.ChainID
	token   string
	timeout time.Duration
}

var _ transport.Transport = (*Client)(nil)

func NewClient(conn grpc.ClientConnInterface, src domain.ChainID, token string) *Client {
	return &Client{conn: conn, src: src, token: token, timeout: 15 * time.Second}
}

func (c *Client) Quote(ctx context.Context, dst domain.ChainID, msg, opts []byte) (transport.Fee, error) {
	req, err := structpb.NewStruct(map[string]interface{}{
		"src_chain": float64(c.src),
		"dst_chain": float64(dst),
		"message":   hexutil.Encode(msg),
		"options":   hexutil.Encode(opts),
	})
	if err != nil {
		return transport.Fee{}, fmt.Errorf("relay: failed to create proto struct: %w", err)
	}

	resp := &structpb.Struct{}
	if err := c.invoke(ctx, methodQuote, req, resp); err != nil {
		return transport.Fee{}, err
	}
	return feeFromStruct(resp)
}

func (c *Client) Send(ctx context.Context, dst domain.ChainID, msg, opts []byte, fee transport.Fee, refund common.Address) (transport.Receipt, error) {
	fields := map[string]interface{}{
		"src_chain": float64(c.src),
		"dst_chain": float64(dst),
		"message":   hexutil.Encode(msg),
		"options":   hexutil.Encode(opts),
		"refund":    refund.Hex(),
	}
	for k, v := range feeToMap(fee) {
		fields[k] = v
	}
	req, err := structpb.NewStruct(fields)
	if err != nil {
		return transport.Receipt{}, fmt.Errorf("relay: failed to create proto struct: %w", err)
	}

	resp := &structpb.Struct{}
	if err := c.invoke(ctx, methodSend, req, resp); err != nil {
		return transport.Receipt{}, err
	}

	paid, err := feeFromStruct(resp)
	if err != nil {
		return transport.Receipt{}, err
	}
	nonce, err := strconv.ParseUint(resp.GetFields()["nonce"].GetStringValue(), 10, 64)
	if err != nil {
		return transport.Receipt{}, fmt.Errorf("relay: bad nonce: %w", err)
	}
	return transport.Receipt{
		GUID:  common.HexToHash(resp.GetFields()["guid"].GetStringValue()),
		Nonce: nonce,
		Fee:   paid,
	}, nil
}

func (c *Client) invoke(ctx context.Context, method string, req, resp *structpb.Struct) error {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()
	if c.token != "" {
		ctx = metadata.AppendToOutgoingContext(ctx, TokenHeader, c.token)
	}

	err := c.conn.Invoke(ctx, method, req, resp)
	if err == nil {
		return nil
	}
	// ResourceExhausted: релей просит подождать, Reliable повторит Quote
	if st, ok := status.FromError(err); ok && st.Code() == codes.ResourceExhausted {
		return &transport.ThrottleError{RetryAfter: time.Second, Cause: err}
	}
	return fmt.Errorf("relay call %s failed: %w", method, err)
}
