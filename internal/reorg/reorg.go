// Package reorg is the producer-side reorg guard, spec.md §4.6,
// grounded on original_source/indexer/producer/reorg_detector.py's
// ReorgDetector. In the new architecture the producer only detects a
// reorg and publishes a rollback message — the consumer tier performs
// the actual state rollback (internal/rollback).
package reorg

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/cfchain/indexer/internal/bus"
	"github.com/cfchain/indexer/internal/chain"
	"github.com/cfchain/indexer/internal/cursor"
	"github.com/cfchain/indexer/internal/xlog"
)

// Detector checks the cursor's recorded tip against the chain's
// current view of that same block height before each indexing step.
type Detector struct {
	chain          chain.Client
	cursor         *cursor.Cursor
	publisher      *bus.Publisher
	chainID        int64
	rollbackBlocks uint64
	log            xlog.Logger
}

func New(chainClient chain.Client, cur *cursor.Cursor, publisher *bus.Publisher, chainID int64, rollbackBlocks uint64, log xlog.Logger) *Detector {
	return &Detector{chain: chainClient, cursor: cur, publisher: publisher, chainID: chainID, rollbackBlocks: rollbackBlocks, log: log}
}

// CheckAndHandle compares the cursor's last_block_hash against the
// chain's current hash at that height. A mismatch means the block the
// producer last indexed is no longer canonical: it publishes a
// rollback message covering [last_block-rollbackBlocks, last_block]
// and rewinds the cursor to just before that range, returning true so
// the caller restarts indexing from the rewound position.
func (d *Detector) CheckAndHandle(ctx context.Context) (bool, error) {
	state, err := d.cursor.Read(ctx)
	if err != nil {
		return false, fmt.Errorf("reorg: read cursor: %w", err)
	}
	if state.LastBlock == 0 || state.LastBlockHash == nil {
		return false, nil
	}

	currentHash, err := d.chain.BlockHash(ctx, state.LastBlock)
	if err != nil {
		return false, fmt.Errorf("reorg: block hash at %d: %w", state.LastBlock, err)
	}
	if strings.EqualFold(*state.LastBlockHash, currentHash.Hex()) {
		return false, nil
	}

	toBlock := state.LastBlock
	var fromBlock uint64
	if toBlock > d.rollbackBlocks {
		fromBlock = toBlock - d.rollbackBlocks
	}
	d.log.Warn("reorg detected", "chain_id", d.chainID, "stored_hash", *state.LastBlockHash,
		"current_hash", currentHash.Hex(), "block", toBlock)

	msg := bus.NewRollbackMessage(d.chainID, fromBlock, toBlock, "", time.Now())
	if err := d.publisher.Publish(ctx, msg); err != nil {
		return false, fmt.Errorf("reorg: publish rollback: %w", err)
	}

	rewindTo := uint64(0)
	if fromBlock > 0 {
		rewindTo = fromBlock - 1
	}
	var rewindHash *string
	if rewindTo > 0 {
		h, err := d.chain.BlockHash(ctx, rewindTo)
		if err != nil {
			d.log.Error("reorg: could not fetch rewind block hash, leaving hash unset", "block", rewindTo, "err", err)
		} else {
			s := h.Hex()
			rewindHash = &s
		}
	}
	if err := d.cursor.Rewind(ctx, rewindTo, rewindHash); err != nil {
		return false, fmt.Errorf("reorg: rewind cursor: %w", err)
	}
	return true, nil
}
