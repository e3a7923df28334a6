package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/lib/pq"
)

type EventRepo struct{ tx *sql.Tx }

// ErrCampaignNotFound is the FK-violation case where an event's
// address doesn't exist in campaigns yet — spec.md §7 documents this
// as requiring the CampaignCreated event to land first; a non-Created
// event arriving for an unknown address is an ordering bug worth
// surfacing distinctly from a generic DB error.
var ErrCampaignNotFound = errors.New("store: campaign not found for event")

// foreignKeyViolation / uniqueViolation are the Postgres SQLSTATE
// classes this repo distinguishes (see lib/pq's pq.Error.Code).
const (
	sqlStateUniqueViolation     = "23505"
	sqlStateForeignKeyViolation = "23503"
)

// Insert appends a decoded event to the log, idempotently: a
// duplicate (chain_id, tx_hash, log_index) — the same log observed
// twice, e.g. after an RPC retry or a redelivered message — is not an
// error, it's the at-least-once-delivery/exactly-once-effect contract
// (spec.md §1) doing its job. Returns inserted=false in that case.
func (r *EventRepo) Insert(ctx context.Context, e *Event) (inserted bool, err error) {
	row := r.tx.QueryRowContext(ctx, `
		INSERT INTO events (chain_id, tx_hash, log_index, block_number, block_hash,
		                     address, event_name, event_data, removed, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, false, now())
		ON CONFLICT (chain_id, tx_hash, log_index) DO NOTHING
		RETURNING id`,
		e.ChainID, e.TxHash, e.LogIndex, e.BlockNumber, e.BlockHash, e.Address, e.EventName, e.EventData)

	var id int64
	if scanErr := row.Scan(&id); scanErr != nil {
		if scanErr == sql.ErrNoRows {
			return false, nil
		}
		var pqErr *pq.Error
		if errors.As(scanErr, &pqErr) {
			switch pqErr.Code {
			case sqlStateForeignKeyViolation:
				if pqErr.Constraint == "events_chain_id_fkey" {
					return false, ErrChainNotFound
				}
				return false, ErrCampaignNotFound
			case sqlStateUniqueViolation:
				return false, nil
			}
		}
		return false, fmt.Errorf("store: insert event: %w", scanErr)
	}
	e.ID = id
	return true, nil
}

// MarkRemoved flags every non-removed event for chainID in
// [fromBlock, toBlock] as removed and returns the distinct, non-null
// campaign addresses it touched — the set a rollback handler must
// reset and replay (spec.md §4.11).
func (r *EventRepo) MarkRemoved(ctx context.Context, chainID int64, fromBlock, toBlock uint64) ([]string, error) {
	rows, err := r.tx.QueryContext(ctx, `
		UPDATE events
		SET removed = true
		WHERE chain_id = $1 AND block_number >= $2 AND block_number <= $3 AND removed = false
		RETURNING address`, chainID, fromBlock, toBlock)
	if err != nil {
		return nil, fmt.Errorf("store: mark events removed: %w", err)
	}
	defer rows.Close()

	seen := map[string]bool{}
	var addrs []string
	for rows.Next() {
		var addr sql.NullString
		if err := rows.Scan(&addr); err != nil {
			return nil, fmt.Errorf("store: scan removed event address: %w", err)
		}
		if addr.Valid && !seen[addr.String] {
			seen[addr.String] = true
			addrs = append(addrs, addr.String)
		}
	}
	return addrs, rows.Err()
}

// ListNonRemovedInRange returns the surviving events for chainID in
// [fromBlock, toBlock], ordered by (block_number, log_index) — the
// deterministic replay order spec.md §4.11 and §9 invariant 1 require.
func (r *EventRepo) ListNonRemovedInRange(ctx context.Context, chainID int64, fromBlock, toBlock uint64) ([]*Event, error) {
	rows, err := r.tx.QueryContext(ctx, `
		SELECT id, chain_id, tx_hash, log_index, block_number, block_hash, address,
		       event_name, event_data, removed, created_at
		FROM events
		WHERE chain_id = $1 AND block_number >= $2 AND block_number <= $3 AND removed = false
		ORDER BY block_number ASC, log_index ASC`, chainID, fromBlock, toBlock)
	if err != nil {
		return nil, fmt.Errorf("store: list events in range: %w", err)
	}
	defer rows.Close()

	var out []*Event
	for rows.Next() {
		var e Event
		if err := rows.Scan(&e.ID, &e.ChainID, &e.TxHash, &e.LogIndex, &e.BlockNumber, &e.BlockHash,
			&e.Address, &e.EventName, &e.EventData, &e.Removed, &e.CreatedAt); err != nil {
			return nil, fmt.Errorf("store: scan event: %w", err)
		}
		out = append(out, &e)
	}
	return out, rows.Err()
}
