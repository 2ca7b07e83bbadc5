package postgres

/*
Файл executed_repo.go: реализация ExecutedSet поверх PostgreSQL.
Reserve опирается на ON CONFLICT DO NOTHING: первичный ключ action_id
сериализует конкурентные доставки одного и того же действия.
*/

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/ethereum/go-ethereum/common"

	"github.com/xela07ax/xchain-router/internal/domain"
	"github.com/xela07ax/xchain-router/internal/ledger"
)

type ExecutedRepo struct {
	db *sql.DB
}

func NewExecutedRepo(db *sql.DB) *ExecutedRepo {
	return &ExecutedRepo{db: db}
}

func (r *ExecutedRepo) Reserve(ctx context.Context, e ledger.Entry) (bool, error) {
	query := `INSERT INTO executed_actions (action_id, src_chain, account, target, status)
	          VALUES ($1, $2, $3, $4, $5)
	          ON CONFLICT (action_id) DO NOTHING`

	res, err := r.db.ExecContext(ctx, query,
		hexKey(e.ActionID), int64(e.SrcChain), hexKey(e.Account), hexKey(e.Target), string(ledger.StatusPending))
	if err != nil {
		return false, fmt.Errorf("postgres: failed to reserve action: %w", err)
	}
	rows, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("postgres: failed to reserve action: %w", err)
	}
	return rows == 1, nil
}

func (r *ExecutedRepo) Complete(ctx context.Context, id common.Hash, success bool) error {
	query := `UPDATE executed_actions SET status = $1, updated_at = NOW() WHERE action_id = $2`

	res, err := r.db.ExecContext(ctx, query, string(ledger.OutcomeStatus(success)), hexKey(id))
	if err != nil {
		return fmt.Errorf("postgres: failed to complete action: %w", err)
	}
	rows, _ := res.RowsAffected()
	if rows == 0 {
		return ledger.ErrNotReserved
	}
	return nil
}

func (r *ExecutedRepo) Has(ctx context.Context, id common.Hash) (bool, error) {
	var exists bool
	err := r.db.QueryRowContext(ctx,
		`SELECT EXISTS (SELECT 1 FROM executed_actions WHERE action_id = $1)`, hexKey(id)).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("postgres: failed to check action: %w", err)
	}
	return exists, nil
}

func (r *ExecutedRepo) Get(ctx context.Context, id common.Hash) (ledger.Entry, bool, error) {
	query := `SELECT action_id, src_chain, account, target, status, created_at, updated_at
	          FROM executed_actions WHERE action_id = $1`

	var (
		e                        ledger.Entry
		actionID, account, target string
		srcChain                 int64
		status                   string
	)
	err := r.db.QueryRowContext(ctx, query, hexKey(id)).Scan(
		&actionID, &srcChain, &account, &target, &status, &e.CreatedAt, &e.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return ledger.Entry{}, false, nil
		}
		return ledger.Entry{}, false, fmt.Errorf("postgres: failed to get action: %w", err)
	}

	e.ActionID = common.HexToHash(actionID)
	e.SrcChain = domain.ChainID(srcChain)
	e.Account = common.HexToAddress(account)
	e.Target = common.HexToAddress(target)
	e.Status = ledger.Status(status)
	return e, true, nil
}

// hexKey приводит адреса и хеши к одному регистру, чтобы ключи совпадали.
func hexKey(v interface{ Hex() string }) string {
	return strings.ToLower(v.Hex())
}
