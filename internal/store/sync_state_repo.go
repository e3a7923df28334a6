package store

import (
	"context"
	"database/sql"
	"fmt"
)

type SyncStateRepo struct{ tx *sql.Tx }

// Read returns the cursor for chainID, or a zero-value SyncState
// (last_block=0, hash=nil) if no row exists yet.
func (r *SyncStateRepo) Read(ctx context.Context, chainID int64) (*SyncState, error) {
	row := r.tx.QueryRowContext(ctx, `
		SELECT chain_id, last_block, last_block_hash, updated_at
		FROM sync_state WHERE chain_id = $1`, chainID)

	var s SyncState
	if err := row.Scan(&s.ChainID, &s.LastBlock, &s.LastBlockHash, &s.UpdatedAt); err != nil {
		if err == sql.ErrNoRows {
			return &SyncState{ChainID: chainID, LastBlock: 0, LastBlockHash: nil}, nil
		}
		return nil, fmt.Errorf("store: read sync state: %w", err)
	}
	return &s, nil
}

// Advance moves the cursor forward after a batch has been fully
// published with broker confirms (spec.md §4.5).
func (r *SyncStateRepo) Advance(ctx context.Context, chainID int64, block uint64, hash string) error {
	_, err := r.tx.ExecContext(ctx, `
		INSERT INTO sync_state (chain_id, last_block, last_block_hash, updated_at)
		VALUES ($1, $2, $3, now())
		ON CONFLICT (chain_id) DO UPDATE
		SET last_block = EXCLUDED.last_block,
		    last_block_hash = EXCLUDED.last_block_hash,
		    updated_at = now()`, chainID, block, hash)
	if err != nil {
		return fmt.Errorf("store: advance sync state: %w", err)
	}
	return nil
}

// Rewind moves the cursor backward before a rollback message is sent
// (spec.md §4.5/§4.6). hash may be nil when rewinding to block 0.
func (r *SyncStateRepo) Rewind(ctx context.Context, chainID int64, block uint64, hash *string) error {
	_, err := r.tx.ExecContext(ctx, `
		INSERT INTO sync_state (chain_id, last_block, last_block_hash, updated_at)
		VALUES ($1, $2, $3, now())
		ON CONFLICT (chain_id) DO UPDATE
		SET last_block = EXCLUDED.last_block,
		    last_block_hash = EXCLUDED.last_block_hash,
		    updated_at = now()`, chainID, block, hash)
	if err != nil {
		return fmt.Errorf("store: rewind sync state: %w", err)
	}
	return nil
}
