// Package relay связывает роутер с внешним релеем по gRPC.
// Сообщения передаются как google.protobuf.Struct, сервисы описаны вручную.
package relay

import (
	"fmt"
	"math"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"google.golang.org/protobuf/types/known/structpb"

	"github.com/xela07ax/xchain-router/internal/domain"
	"github.com/xela07ax/xchain-router/internal/transport"
)

// Числа передаются строками: float64 в Struct теряет точность для wei.

func feeToMap(f transport.Fee) map[string]interface{} {
	return map[string]interface{}{
		"native_fee": bigString(f.NativeFee),
		"token_fee":  bigString(f.TokenFee),
	}
}

func feeFromStruct(s *structpb.Struct) (transport.Fee, error) {
	native, err := bigField(s, "native_fee")
	if err != nil {
		return transport.Fee{}, err
	}
	token, err := bigField(s, "token_fee")
	if err != nil {
		return transport.Fee{}, err
	}
	return transport.Fee{NativeFee: native, TokenFee: token}, nil
}

func deliveryToStruct(d transport.Delivery) (*structpb.Struct, error) {
	return structpb.NewStruct(map[string]interface{}{
		"src_chain": float64(d.SrcChain),
		"sender":    d.Sender.Hex(),
		"guid":      d.GUID.Hex(),
		"message":   hexutil.Encode(d.Message),
		"executor":  d.Executor.Hex(),
	})
}

func deliveryFromStruct(s *structpb.Struct) (transport.Delivery, error) {
	var d transport.Delivery
	f := s.GetFields()

	src, ok := f["src_chain"]
	if !ok {
		return d, fmt.Errorf("relay: missing src_chain")
	}
	chain, err := chainField(src)
	if err != nil {
		return d, err
	}
	d.SrcChain = chain

	msg, err := hexutil.Decode(f["message"].GetStringValue())
	if err != nil {
		return d, fmt.Errorf("relay: bad message: %w", err)
	}
	d.Message = msg
	d.Sender = common.HexToAddress(f["sender"].GetStringValue())
	d.GUID = common.HexToHash(f["guid"].GetStringValue())
	d.Executor = common.HexToAddress(f["executor"].GetStringValue())
	return d, nil
}

// chainField принимает только целое из диапазона uint32: усечение подменило бы цепочку источника.
func chainField(v *structpb.Value) (domain.ChainID, error) {
	n, ok := v.GetKind().(*structpb.Value_NumberValue)
	if !ok {
		return 0, fmt.Errorf("relay: src_chain is not a number")
	}
	f := n.NumberValue
	if math.IsNaN(f) || f < 0 || f > math.MaxUint32 || math.Trunc(f) != f {
		return 0, fmt.Errorf("relay: src_chain %v out of uint32 range", f)
	}
	return domain.ChainID(uint32(f)), nil
}

func bigString(v *big.Int) string {
	if v == nil {
		return "0"
	}
	return v.String()
}

func bigField(s *structpb.Struct, name string) (*big.Int, error) {
	raw := s.GetFields()[name].GetStringValue()
	if raw == "" {
		return new(big.Int), nil
	}
	v, ok := new(big.Int).SetString(raw, 10)
	if !ok {
		return nil, fmt.Errorf("relay: bad %s %q", name, raw)
	}
	return v, nil
}
