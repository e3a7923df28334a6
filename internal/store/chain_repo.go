package store

import (
	"context"
	"database/sql"
	"fmt"
)

type ChainRepo struct{ tx *sql.Tx }

// ErrChainNotFound is returned when a chain_id FK would be violated —
// spec.md §7: "operator must seed chains", a fatal misconfiguration.
var ErrChainNotFound = fmt.Errorf("store: chain not found")

func (r *ChainRepo) Get(ctx context.Context, chainID int64) (*Chain, error) {
	row := r.tx.QueryRowContext(ctx, `
		SELECT id, name, chain_id, rpc_url, created_at, updated_at
		FROM chains WHERE chain_id = $1`, chainID)

	var c Chain
	if err := row.Scan(&c.ID, &c.Name, &c.ChainID, &c.RPCURL, &c.CreatedAt, &c.UpdatedAt); err != nil {
		if err == sql.ErrNoRows {
			return nil, ErrChainNotFound
		}
		return nil, fmt.Errorf("store: get chain: %w", err)
	}
	return &c, nil
}

// EnsureSeeded creates the chain row if missing — used only by the
// producer's startup (`producer run`/`producer backfill`), never by the event-apply
// path, which treats a missing chain as the fatal condition spec.md §7
// describes.
func (r *ChainRepo) EnsureSeeded(ctx context.Context, chainID int64, name, rpcURL string) error {
	_, err := r.tx.ExecContext(ctx, `
		INSERT INTO chains (name, chain_id, rpc_url, created_at, updated_at)
		VALUES ($1, $2, $3, now(), now())
		ON CONFLICT (chain_id) DO NOTHING`, name, chainID, rpcURL)
	if err != nil {
		return fmt.Errorf("store: ensure seeded: %w", err)
	}
	return nil
}
