package domain

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/crypto"
)

var (
	ErrEmptyAccount  = errors.New("action account is empty")
	ErrEmptyTarget   = errors.New("action target is empty")
	ErrEmptyActionID = errors.New("action id is empty")
)

var (
	abiAddress = mustType("address")
	abiBytes   = mustType("bytes")
	abiUint64  = mustType("uint64")

	fingerprintArgs = abi.Arguments{
		{Type: abiAddress}, // account
		{Type: abiAddress}, // target
		{Type: abiBytes},   // payload
		{Type: abiUint64},  // createdAt
	}
)

func mustType(t string) abi.Type {
	typ, err := abi.NewType(t, "", nil)
	if err != nil {
		panic(fmt.Sprintf("domain: abi type %s: %v", t, err))
	}
	return typ
}

// Action: единица кросс-чейн работы. Неизменяема после создания,
// идентифицируется только отпечатком ID.
type Action struct {
	Account   common.Address `json:"account"`
	Target    common.Address `json:"target"`
	Payload   hexutil.Bytes  `json:"payload"`
	CreatedAt uint64         `json:"created_at"`
	ID        common.Hash    `json:"action_id"`
}

// Fingerprint = keccak256(abi.encode(account, target, payload, createdAt)).
// Одинаковые действия, собранные в одну и ту же секунду, дадут один и тот же ID.
func Fingerprint(account, target common.Address, payload []byte, createdAt uint64) common.Hash {
	if payload == nil {
		payload = []byte{}
	}
	packed, err := fingerprintArgs.Pack(account, target, payload, createdAt)
	if err != nil {
		panic(fmt.Sprintf("domain: fingerprint encoding: %v", err))
	}
	return crypto.Keccak256Hash(packed)
}

// NewAction собирает действие и вычисляет его отпечаток.
func NewAction(account, target common.Address, payload []byte, createdAt uint64) Action {
	return Action{
		Account:   account,
		Target:    target,
		Payload:   common.CopyBytes(payload),
		CreatedAt: createdAt,
		ID:        Fingerprint(account, target, payload, createdAt),
	}
}

// Validate проверяет обязательные поля идентичности.
func (a Action) Validate() error {
	if a.Account == (common.Address{}) {
		return ErrEmptyAccount
	}
	if a.Target == (common.Address{}) {
		return ErrEmptyTarget
	}
	if a.ID == (common.Hash{}) {
		return ErrEmptyActionID
	}
	return nil
}

// Builder выдает действия со строго возрастающим CreatedAt для каждого аккаунта,
// поэтому два действия одного билдера никогда не получат одинаковый отпечаток.
type Builder struct {
	mu   sync.Mutex
	now  func() time.Time
	last map[common.Address]uint64
}

func NewBuilder() *Builder {
	return NewBuilderWithClock(time.Now)
}

func NewBuilderWithClock(now func() time.Time) *Builder {
	return &Builder{
		now:  now,
		last: make(map[common.Address]uint64),
	}
}

func (b *Builder) Build(account, target common.Address, payload []byte) Action {
	return NewAction(account, target, payload, b.nextTimestamp(account))
}

// Retry единственный способ повторить действие. Тот же account/target/payload,
// новый CreatedAt и, следовательно, новый ID.
func (b *Builder) Retry(a Action) Action {
	b.observe(a.Account, a.CreatedAt)
	return b.Build(a.Account, a.Target, a.Payload)
}

func (b *Builder) nextTimestamp(account common.Address) uint64 {
	b.mu.Lock()
	defer b.mu.Unlock()

	ts := uint64(b.now().Unix())
	if last, ok := b.last[account]; ok && ts <= last {
		ts = last + 1
	}
	b.last[account] = ts
	return ts
}

func (b *Builder) observe(account common.Address, createdAt uint64) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if createdAt > b.last[account] {
		b.last[account] = createdAt
	}
}
