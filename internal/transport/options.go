package transport

import (
	"encoding/binary"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
)

// Формат опций исполнителя (type 3):
// 0x0003 | { worker(1)=1 | size(2) | optionType(1) | params }...
const (
	optionsType3     uint16 = 3
	executorWorkerID byte   = 1

	optionLzReceive  byte = 1
	optionNativeDrop byte = 2
)

var maxUint128 = new(big.Int).Sub(new(big.Int).Lsh(big.NewInt(1), 128), big.NewInt(1))

// Options описывает параметры доставки: газ на исполнение у получателя и опциональный native drop.
type Options struct {
	Gas          uint64
	Value        *big.Int // msg.value для lzReceive
	NativeDrop   *big.Int
	DropReceiver common.Address
}

func (o Options) Encode() ([]byte, error) {
	out := binary.BigEndian.AppendUint16(nil, optionsType3)

	params := u128(new(big.Int).SetUint64(o.Gas))
	if o.Value != nil && o.Value.Sign() > 0 {
		if o.Value.Cmp(maxUint128) > 0 {
			return nil, fmt.Errorf("%w: value overflows uint128", ErrBadOptions)
		}
		params = append(params, u128(o.Value)...)
	}
	out = appendOption(out, optionLzReceive, params)

	if o.NativeDrop != nil && o.NativeDrop.Sign() > 0 {
		if o.NativeDrop.Cmp(maxUint128) > 0 {
			return nil, fmt.Errorf("%w: native drop overflows uint128", ErrBadOptions)
		}
		drop := append(u128(o.NativeDrop), common.BytesToHash(o.DropReceiver.Bytes()).Bytes()...)
		out = appendOption(out, optionNativeDrop, drop)
	}
	return out, nil
}

// DecodeOptions разбирает опции обратно. Неизвестные типы опций пропускаются.
func DecodeOptions(b []byte) (Options, error) {
	var o Options
	if len(b) < 2 || binary.BigEndian.Uint16(b) != optionsType3 {
		return o, fmt.Errorf("%w: expected type 3 header", ErrBadOptions)
	}
	b = b[2:]
	for len(b) > 0 {
		if len(b) < 4 || b[0] != executorWorkerID {
			return o, fmt.Errorf("%w: truncated option", ErrBadOptions)
		}
		size := int(binary.BigEndian.Uint16(b[1:3]))
		if size < 1 || len(b) < 3+size {
			return o, fmt.Errorf("%w: option size %d", ErrBadOptions, size)
		}
		kind, params := b[3], b[4:3+size]
		switch kind {
		case optionLzReceive:
			if len(params) != 16 && len(params) != 32 {
				return o, fmt.Errorf("%w: lzReceive params", ErrBadOptions)
			}
			gas := new(big.Int).SetBytes(params[:16])
			if !gas.IsUint64() {
				return o, fmt.Errorf("%w: gas overflows uint64", ErrBadOptions)
			}
			o.Gas += gas.Uint64()
			if len(params) == 32 {
				o.Value = new(big.Int).SetBytes(params[16:])
			}
		case optionNativeDrop:
			if len(params) != 48 {
				return o, fmt.Errorf("%w: native drop params", ErrBadOptions)
			}
			o.NativeDrop = new(big.Int).SetBytes(params[:16])
			o.DropReceiver = common.BytesToAddress(params[16:])
		}
		b = b[3+size:]
	}
	return o, nil
}

func appendOption(out []byte, kind byte, params []byte) []byte {
	out = append(out, executorWorkerID)
	out = binary.BigEndian.AppendUint16(out, uint16(len(params)+1))
	out = append(out, kind)
	return append(out, params...)
}

func u128(v *big.Int) []byte {
	return v.FillBytes(make([]byte, 16))
}
