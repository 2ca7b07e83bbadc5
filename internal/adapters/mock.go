package adapters

import (
	"context"
	"fmt"
	"math/big"
	"sync"

	"github.com/ethereum/go-ethereum/common"
)

// Func: цель из обычной функции.
type Func func(ctx context.Context, account common.Address, payload []byte, value *big.Int) error

func (f Func) Execute(ctx context.Context, account common.Address, payload []byte, value *big.Int) error {
	return f(ctx, account, payload, value)
}

// Call: зафиксированный вызов цели.
type Call struct {
	Account common.Address
	Payload []byte
	Value   *big.Int
}

// Recorder запоминает вызовы и отвечает по payload: "fail" и "panic" имитируют отказы.
type Recorder struct {
	mu    sync.Mutex
	calls []Call
}

func (r *Recorder) Execute(_ context.Context, account common.Address, payload []byte, value *big.Int) error {
	r.mu.Lock()
	r.calls = append(r.calls, Call{Account: account, Payload: append([]byte(nil), payload...), Value: value})
	r.mu.Unlock()

	switch string(payload) {
	case "fail":
		return fmt.Errorf("target rejected payload")
	case "panic":
		panic("target crashed")
	}
	return nil
}

func (r *Recorder) Calls() []Call {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]Call(nil), r.calls...)
}

func (r *Recorder) Count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.calls)
}
