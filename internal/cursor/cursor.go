// Package cursor is the producer's durable sync position, spec.md
// §4.5: read/advance/rewind over the single sync_state row per chain.
// It is a thin, named wrapper over internal/store's SyncStateRepo —
// the persistence is store's job, the vocabulary ("advance only after
// confirmed publish", "rewind before the rollback message") is this
// package's. Each operation is its own short transaction: a cursor
// move is never part of the same unit of work as an event mutation,
// by design — the producer and the consumer tier mutate disjoint
// tables and must not share a transaction boundary.
package cursor

import (
	"context"

	"github.com/cfchain/indexer/internal/store"
)

// State is the cursor value spec.md §4.5 names: {last_block,
// last_block_hash?}.
type State struct {
	LastBlock     uint64
	LastBlockHash *string
}

// Cursor reads and moves one chain's sync position.
type Cursor struct {
	store   *store.Store
	chainID int64
}

func New(s *store.Store, chainID int64) *Cursor {
	return &Cursor{store: s, chainID: chainID}
}

// Read returns the current position, {0, nil} if the chain has never
// been synced.
func (c *Cursor) Read(ctx context.Context) (State, error) {
	var out State
	err := c.store.WithUnitOfWork(ctx, func(uow *store.UnitOfWork) error {
		s, err := uow.SyncStates.Read(ctx, c.chainID)
		if err != nil {
			return err
		}
		out = State{LastBlock: s.LastBlock, LastBlockHash: s.LastBlockHash}
		return nil
	})
	return out, err
}

// Advance moves the cursor forward. Callers must only call this after
// every publish in the batch has the broker's confirm (spec.md §4.5).
func (c *Cursor) Advance(ctx context.Context, block uint64, hash string) error {
	return c.store.WithUnitOfWork(ctx, func(uow *store.UnitOfWork) error {
		return uow.SyncStates.Advance(ctx, c.chainID, block, hash)
	})
}

// Rewind moves the cursor backward ahead of a rollback message being
// sent (spec.md §4.5/§4.6). hash is nil when rewinding to block 0, or
// when the reorg detector could not fetch the hash at the rewind height.
func (c *Cursor) Rewind(ctx context.Context, block uint64, hash *string) error {
	return c.store.WithUnitOfWork(ctx, func(uow *store.UnitOfWork) error {
		return uow.SyncStates.Rewind(ctx, c.chainID, block, hash)
	})
}
