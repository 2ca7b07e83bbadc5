package postgres

/*
Файл registry_repo.go хранит реестры доверия и авторизации.
Данный слой отделяет долговременное хранение от мгновенной проверки в памяти роутера.
*/

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/ethereum/go-ethereum/common"

	"github.com/xela07ax/xchain-router/internal/domain"
)

type RegistryRepo struct {
	db *sql.DB
}

func NewRegistryRepo(db *sql.DB) *RegistryRepo {
	return &RegistryRepo{db: db}
}

// ListTrustedAdapters выполняет "холодную загрузку" реестра доверия при старте.
func (r *RegistryRepo) ListTrustedAdapters(ctx context.Context) ([]domain.TrustedAdapter, error) {
	rows, err := r.db.QueryContext(ctx, `SELECT chain_id, target, updated_at FROM trusted_adapters ORDER BY chain_id`)
	if err != nil {
		return nil, fmt.Errorf("postgres: failed to query trusted adapters: %w", err)
	}
	defer rows.Close()

	results := make([]domain.TrustedAdapter, 0)
	for rows.Next() {
		var (
			t       domain.TrustedAdapter
			chainID int64
			target  string
		)
		if err := rows.Scan(&chainID, &target, &t.UpdatedAt); err != nil {
			return nil, fmt.Errorf("postgres: failed to scan trusted adapter: %w", err)
		}
		t.ChainID = domain.ChainID(chainID)
		t.Target = common.HexToAddress(target)
		results = append(results, t)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("postgres: rows iteration error: %w", err)
	}
	return results, nil
}

// UpsertTrustedAdapter перезаписывает запись: одна сеть, один таргет.
func (r *RegistryRepo) UpsertTrustedAdapter(ctx context.Context, t domain.TrustedAdapter) error {
	query := `
		INSERT INTO trusted_adapters (chain_id, target, updated_at)
		VALUES ($1, $2, $3)
		ON CONFLICT (chain_id) DO UPDATE SET target = EXCLUDED.target, updated_at = EXCLUDED.updated_at`

	if _, err := r.db.ExecContext(ctx, query, int64(t.ChainID), hexKey(t.Target), t.UpdatedAt); err != nil {
		return fmt.Errorf("postgres: failed to upsert trusted adapter: %w", err)
	}
	return nil
}

func (r *RegistryRepo) ListAuthorizedExecutors(ctx context.Context) ([]domain.AuthorizedExecutor, error) {
	rows, err := r.db.QueryContext(ctx, `SELECT address, allowed, updated_at FROM authorized_executors ORDER BY address`)
	if err != nil {
		return nil, fmt.Errorf("postgres: failed to query executors: %w", err)
	}
	defer rows.Close()

	results := make([]domain.AuthorizedExecutor, 0)
	for rows.Next() {
		var (
			e       domain.AuthorizedExecutor
			address string
		)
		if err := rows.Scan(&address, &e.Allowed, &e.UpdatedAt); err != nil {
			return nil, fmt.Errorf("postgres: failed to scan executor: %w", err)
		}
		e.Address = common.HexToAddress(address)
		results = append(results, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("postgres: rows iteration error: %w", err)
	}
	return results, nil
}

func (r *RegistryRepo) UpsertAuthorizedExecutor(ctx context.Context, e domain.AuthorizedExecutor) error {
	query := `
		INSERT INTO authorized_executors (address, allowed, updated_at)
		VALUES ($1, $2, $3)
		ON CONFLICT (address) DO UPDATE SET allowed = EXCLUDED.allowed, updated_at = EXCLUDED.updated_at`

	if _, err := r.db.ExecContext(ctx, query, hexKey(e.Address), e.Allowed, e.UpdatedAt); err != nil {
		return fmt.Errorf("postgres: failed to upsert executor: %w", err)
	}
	return nil
}
