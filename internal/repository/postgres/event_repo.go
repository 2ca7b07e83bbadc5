package postgres

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/xela07ax/xchain-router/internal/audit"
)

type EventRepo struct {
	db *sql.DB
}

func NewEventRepo(db *sql.DB) *EventRepo {
	return &EventRepo{db: db}
}

// WriteBatch: пакетная вставка журнала уведомлений одним запросом.
func (r *EventRepo) WriteBatch(ctx context.Context, events []audit.Event) error {
	if len(events) == 0 {
		return nil
	}

	// Количество колонок в таблице router_events
	numFields := 10
	var placeholders strings.Builder
	vals := make([]interface{}, 0, len(events)*numFields)

	for i, e := range events {
		p := i * numFields
		if i > 0 {
			placeholders.WriteString(",")
		}
		fmt.Fprintf(&placeholders, "($%d, $%d, $%d, $%d, $%d, $%d, $%d, $%d, $%d, $%d)",
			p+1, p+2, p+3, p+4, p+5, p+6, p+7, p+8, p+9, p+10)

		var delivery sql.NullString
		if e.DeliveryID != "" {
			delivery = sql.NullString{String: e.DeliveryID, Valid: true}
		}
		var success sql.NullBool
		if e.Success != nil {
			success = sql.NullBool{Bool: *e.Success, Valid: true}
		}

		vals = append(vals,
			e.ID, e.TraceID, e.Kind, strings.ToLower(e.ActionID), int64(e.ChainID),
			e.Account, e.Target, success, delivery, e.Timestamp,
		)
	}

	query := "INSERT INTO router_events (id, trace_id, kind, action_id, chain_id, account, target, success, delivery_id, timestamp) VALUES " +
		placeholders.String()

	if _, err := r.db.ExecContext(ctx, query, vals...); err != nil {
		return fmt.Errorf("postgres: failed to write events: %w", err)
	}
	return nil
}

// FetchEvents возвращает последние события, новые первыми.
func (r *EventRepo) FetchEvents(ctx context.Context, f audit.Filter) ([]audit.Event, error) {
	if f.Limit <= 0 || f.Limit > 500 {
		f.Limit = 100
	}

	query := `SELECT id, trace_id, kind, action_id, chain_id, account, target, success, delivery_id, timestamp
	          FROM router_events WHERE 1=1`
	args := make([]interface{}, 0, 3)
	if f.ActionID != "" {
		args = append(args, strings.ToLower(f.ActionID))
		query += fmt.Sprintf(" AND action_id = $%d", len(args))
	}
	if f.Kind != "" {
		args = append(args, f.Kind)
		query += fmt.Sprintf(" AND kind = $%d", len(args))
	}
	args = append(args, f.Limit)
	query += fmt.Sprintf(" ORDER BY timestamp DESC LIMIT $%d", len(args))

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("postgres: failed to query events: %w", err)
	}
	defer rows.Close()

	events := make([]audit.Event, 0)
	for rows.Next() {
		var (
			e        audit.Event
			chainID  int64
			success  sql.NullBool
			delivery sql.NullString
			ts       time.Time
		)
		if err := rows.Scan(&e.ID, &e.TraceID, &e.Kind, &e.ActionID, &chainID,
			&e.Account, &e.Target, &success, &delivery, &ts); err != nil {
			return nil, fmt.Errorf("postgres: failed to scan event: %w", err)
		}
		e.ChainID = uint32(chainID)
		if success.Valid {
			v := success.Bool
			e.Success = &v
		}
		e.DeliveryID = delivery.String
		e.Timestamp = ts
		events = append(events, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("postgres: rows iteration error: %w", err)
	}
	return events, nil
}
