// Package codec кодирует конверты роутера для передачи через транспорт.
//
// Формат: version(1 байт) | kind(1 байт) | ABI-тело. Тело каждого вида описано
// своим набором abi.Arguments, поэтому декодер выбирает схему по тегу, а не по длине.
package codec

import (
	"errors"
	"fmt"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"

	"github.com/xela07ax/xchain-router/internal/domain"
)

const Version byte = 1

const headerSize = 2

var (
	ErrMalformed          = errors.New("codec: malformed envelope")
	ErrUnknownKind        = errors.New("codec: unknown envelope kind")
	ErrUnsupportedVersion = errors.New("codec: unsupported envelope version")
)

var (
	tAddress  = mustType("address")
	tBytes    = mustType("bytes")
	tBytesArr = mustType("bytes[]")
	tBytes32  = mustType("bytes32")
	tUint64   = mustType("uint64")
	tUint32s  = mustType("uint32[]")
	tBool     = mustType("bool")

	actionArgs = abi.Arguments{
		{Name: "account", Type: tAddress},
		{Name: "target", Type: tAddress},
		{Name: "payload", Type: tBytes},
		{Name: "createdAt", Type: tUint64},
		{Name: "actionId", Type: tBytes32},
	}
	batchArgs       = abi.Arguments{{Name: "actions", Type: tBytesArr}}
	conditionalArgs = abi.Arguments{
		{Name: "action", Type: tBytes},
		{Name: "condition", Type: tBytes32},
		{Name: "required", Type: tBool},
	}
	multiHopArgs = abi.Arguments{
		{Name: "route", Type: tUint32s},
		{Name: "action", Type: tBytes},
	}
)

func mustType(t string) abi.Type {
	typ, err := abi.NewType(t, "", nil)
	if err != nil {
		panic(fmt.Sprintf("codec: abi type %s: %v", t, err))
	}
	return typ
}

// Encode сериализует конверт.
func Encode(env domain.Envelope) ([]byte, error) {
	var (
		body []byte
		err  error
	)

	switch env.Kind {
	case domain.KindSingle:
		if len(env.Actions) != 1 {
			return nil, fmt.Errorf("%w: single envelope carries %d actions", ErrMalformed, len(env.Actions))
		}
		body, err = EncodeAction(env.Actions[0])
	case domain.KindBatch:
		items := make([][]byte, 0, len(env.Actions))
		for i, a := range env.Actions {
			item, itemErr := EncodeAction(a)
			if itemErr != nil {
				return nil, fmt.Errorf("batch item %d: %w", i, itemErr)
			}
			items = append(items, item)
		}
		body, err = batchArgs.Pack(items)
	case domain.KindConditional:
		if len(env.Actions) != 1 {
			return nil, fmt.Errorf("%w: conditional envelope carries %d actions", ErrMalformed, len(env.Actions))
		}
		inner, innerErr := EncodeAction(env.Actions[0])
		if innerErr != nil {
			return nil, innerErr
		}
		body, err = conditionalArgs.Pack(inner, [32]byte(env.Condition), env.Required)
	case domain.KindMultiHop:
		if len(env.Actions) != 1 {
			return nil, fmt.Errorf("%w: multihop envelope carries %d actions", ErrMalformed, len(env.Actions))
		}
		inner, innerErr := EncodeAction(env.Actions[0])
		if innerErr != nil {
			return nil, innerErr
		}
		route := make([]uint32, len(env.Route))
		for i, c := range env.Route {
			route[i] = uint32(c)
		}
		body, err = multiHopArgs.Pack(route, inner)
	default:
		return nil, fmt.Errorf("%w: %d", ErrUnknownKind, env.Kind)
	}
	if err != nil {
		return nil, fmt.Errorf("codec: encode %s: %w", env.Kind, err)
	}

	out := make([]byte, 0, headerSize+len(body))
	out = append(out, Version, byte(env.Kind))
	return append(out, body...), nil
}

// Decode разбирает конверт, полученный из транспорта.
func Decode(data []byte) (domain.Envelope, error) {
	if len(data) < headerSize {
		return domain.Envelope{}, fmt.Errorf("%w: %d bytes", ErrMalformed, len(data))
	}
	if data[0] != Version {
		return domain.Envelope{}, fmt.Errorf("%w: %d", ErrUnsupportedVersion, data[0])
	}

	kind := domain.EnvelopeKind(data[1])
	body := data[headerSize:]

	switch kind {
	case domain.KindSingle:
		a, err := DecodeAction(body)
		if err != nil {
			return domain.Envelope{}, err
		}
		return domain.SingleEnvelope(a), nil

	case domain.KindBatch:
		values, err := batchArgs.Unpack(body)
		if err != nil {
			return domain.Envelope{}, fmt.Errorf("%w: batch: %v", ErrMalformed, err)
		}
		items, ok := values[0].([][]byte)
		if !ok {
			return domain.Envelope{}, fmt.Errorf("%w: batch items", ErrMalformed)
		}
		actions := make([]domain.Action, 0, len(items))
		for i, item := range items {
			a, err := DecodeAction(item)
			if err != nil {
				return domain.Envelope{}, fmt.Errorf("batch item %d: %w", i, err)
			}
			actions = append(actions, a)
		}
		return domain.BatchEnvelope(actions), nil

	case domain.KindConditional:
		values, err := conditionalArgs.Unpack(body)
		if err != nil {
			return domain.Envelope{}, fmt.Errorf("%w: conditional: %v", ErrMalformed, err)
		}
		inner, ok1 := values[0].([]byte)
		cond, ok2 := values[1].([32]byte)
		required, ok3 := values[2].(bool)
		if !ok1 || !ok2 || !ok3 {
			return domain.Envelope{}, fmt.Errorf("%w: conditional fields", ErrMalformed)
		}
		a, err := DecodeAction(inner)
		if err != nil {
			return domain.Envelope{}, err
		}
		return domain.ConditionalEnvelope(domain.ConditionalAction{
			Action:    a,
			Condition: common.Hash(cond),
			Required:  required,
		}), nil

	case domain.KindMultiHop:
		values, err := multiHopArgs.Unpack(body)
		if err != nil {
			return domain.Envelope{}, fmt.Errorf("%w: multihop: %v", ErrMalformed, err)
		}
		route, ok1 := values[0].([]uint32)
		inner, ok2 := values[1].([]byte)
		if !ok1 || !ok2 {
			return domain.Envelope{}, fmt.Errorf("%w: multihop fields", ErrMalformed)
		}
		a, err := DecodeAction(inner)
		if err != nil {
			return domain.Envelope{}, err
		}
		remaining := make([]domain.ChainID, len(route))
		for i, c := range route {
			remaining[i] = domain.ChainID(c)
		}
		return domain.MultiHopEnvelope(remaining, a), nil

	default:
		return domain.Envelope{}, fmt.Errorf("%w: %d", ErrUnknownKind, kind)
	}
}

// EncodeAction кодирует запись действия без заголовка.
func EncodeAction(a domain.Action) ([]byte, error) {
	payload := []byte(a.Payload)
	if payload == nil {
		payload = []byte{}
	}
	return actionArgs.Pack(a.Account, a.Target, payload, a.CreatedAt, [32]byte(a.ID))
}

func DecodeAction(data []byte) (domain.Action, error) {
	values, err := actionArgs.Unpack(data)
	if err != nil {
		return domain.Action{}, fmt.Errorf("%w: action: %v", ErrMalformed, err)
	}
	account, ok1 := values[0].(common.Address)
	target, ok2 := values[1].(common.Address)
	payload, ok3 := values[2].([]byte)
	createdAt, ok4 := values[3].(uint64)
	id, ok5 := values[4].([32]byte)
	if !ok1 || !ok2 || !ok3 || !ok4 || !ok5 {
		return domain.Action{}, fmt.Errorf("%w: action fields", ErrMalformed)
	}
	return domain.Action{
		Account:   account,
		Target:    target,
		Payload:   payload,
		CreatedAt: createdAt,
		ID:        common.Hash(id),
	}, nil
}
