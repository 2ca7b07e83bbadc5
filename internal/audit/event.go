package audit

import "time"

const (
	KindSent     = "sent"
	KindReceived = "received"
)

// Event: строка журнала уведомлений роутера (таблица router_events).
type Event struct {
	ID       string `json:"id"`        // UUID события
	TraceID  string `json:"trace_id"`  // Сквозной ID запроса
	Kind     string `json:"kind"`      // "sent" или "received"
	ActionID string `json:"action_id"` // Отпечаток действия
	ChainID  uint32 `json:"chain_id"`  // dst для sent, src для received
	Account  string `json:"account"`
	Target   string `json:"target"`

	// Только для received
	Success *bool `json:"success,omitempty"`
	// Только для sent
	DeliveryID string `json:"delivery_id,omitempty"`

	Timestamp time.Time `json:"timestamp"`
}

// Filter задает выборку журнала для консоли. Limit 0 означает значение по умолчанию.
type Filter struct {
	ActionID string
	Kind     string
	Limit    int
}
