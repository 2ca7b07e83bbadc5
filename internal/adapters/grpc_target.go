package adapters

import (
	"context"
	"fmt"
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"google.golang.org/grpc"
	"google.golang.org/protobuf/types/known/structpb"
)

const methodExecute = "/connector.v1.Adapter/Execute"

// GRPCTarget вызывает удалённый коннектор (connector.v1.Adapter/Execute).
type GRPCTarget struct {
	conn    grpc.ClientConnInterface
	timeout time.Duration
}

func NewGRPCTarget(conn grpc.ClientConnInterface) *GRPCTarget {
	return &GRPCTarget{conn: conn, timeout: 15 * time.Second}
}

func (a *GRPCTarget) Execute(ctx context.Context, account common.Address, payload []byte, value *big.Int) error {
	if value == nil {
		value = new(big.Int)
	}
	req, err := structpb.NewStruct(map[string]interface{}{
		"account": account.Hex(),
		"payload": hexutil.Encode(payload),
		"value":   value.String(),
		"source":  "xchain-router",
	})
	if err != nil {
		return fmt.Errorf("failed to create proto struct: %w", err)
	}

	// Даже если у роутера есть свой дедлайн, у адаптера должен быть свой предел
	ctx, cancel := context.WithTimeout(ctx, a.timeout)
	defer cancel()

	resp := &structpb.Struct{}
	if err := a.conn.Invoke(ctx, methodExecute, req, resp); err != nil {
		return fmt.Errorf("connector call failed: %w", err)
	}

	fields := resp.GetFields()
	if code := int(fields["status_code"].GetNumberValue()); code != 0 {
		return fmt.Errorf("connector returned error [%d]: %s", code, fields["error_message"].GetStringValue())
	}
	return nil
}
