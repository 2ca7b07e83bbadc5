package domain

import (
	"fmt"

	"github.com/ethereum/go-ethereum/common"
)

// EnvelopeKind: явный тег конверта. Получатель различает одиночное действие и пакет
// только по тегу, никаких эвристик по длине.
type EnvelopeKind uint8

const (
	KindSingle      EnvelopeKind = 1
	KindBatch       EnvelopeKind = 2
	KindConditional EnvelopeKind = 3
	KindMultiHop    EnvelopeKind = 4
)

func (k EnvelopeKind) String() string {
	switch k {
	case KindSingle:
		return "single"
	case KindBatch:
		return "batch"
	case KindConditional:
		return "conditional"
	case KindMultiHop:
		return "multihop"
	default:
		return fmt.Sprintf("kind(%d)", uint8(k))
	}
}

// ConditionalAction оборачивает действие отпечатком условия, которое должно
// выполняться на стороне получателя.
type ConditionalAction struct {
	Action    Action      `json:"action"`
	Condition common.Hash `json:"condition"`
	Required  bool        `json:"required"`
}

// MultiHopAction: упорядоченный маршрут и терминальное действие.
type MultiHopAction struct {
	Route  []ChainID `json:"route"`
	Action Action    `json:"action"`
}

// Envelope: то, что реально уходит в транспорт.
type Envelope struct {
	Kind    EnvelopeKind
	Actions []Action

	// KindConditional
	Condition common.Hash
	Required  bool

	// KindMultiHop: оставшиеся после текущей сети хопы
	Route []ChainID
}

func SingleEnvelope(a Action) Envelope {
	return Envelope{Kind: KindSingle, Actions: []Action{a}}
}

func BatchEnvelope(actions []Action) Envelope {
	return Envelope{Kind: KindBatch, Actions: actions}
}

func ConditionalEnvelope(c ConditionalAction) Envelope {
	return Envelope{
		Kind:      KindConditional,
		Actions:   []Action{c.Action},
		Condition: c.Condition,
		Required:  c.Required,
	}
}

func MultiHopEnvelope(remaining []ChainID, a Action) Envelope {
	return Envelope{Kind: KindMultiHop, Actions: []Action{a}, Route: remaining}
}
