// Package rollback is the consumer-side rollback handler, spec.md
// §4.11: mark the affected events removed, zero the affected
// aggregates, then deterministically replay the survivors through
// the same stateupdate rules the live path uses. Grounded on
// original_source/indexer/consumer/rollback_handler.py.
package rollback

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/cfchain/indexer/internal/bus"
	"github.com/cfchain/indexer/internal/stateupdate"
	"github.com/cfchain/indexer/internal/store"
	"github.com/cfchain/indexer/internal/xlog"
)

type Handler struct {
	updater *stateupdate.Updater
	log     xlog.Logger
}

func New(updater *stateupdate.Updater, log xlog.Logger) *Handler {
	return &Handler{updater: updater, log: log}
}

// Handle runs all five steps of spec.md §4.11 inside the caller's
// unit of work.
func (h *Handler) Handle(ctx context.Context, uow *store.UnitOfWork, chainID int64, fromBlock, toBlock uint64) error {
	h.log.Warn("handling rollback", "chain_id", chainID, "from_block", fromBlock, "to_block", toBlock)

	affected, err := uow.Events.MarkRemoved(ctx, chainID, fromBlock, toBlock)
	if err != nil {
		return fmt.Errorf("rollback: mark events removed: %w", err)
	}
	h.log.Info("marked events removed", "count_addresses", len(affected))

	if err := uow.Campaigns.ResetForRollback(ctx, affected); err != nil {
		return fmt.Errorf("rollback: reset campaigns: %w", err)
	}
	if err := uow.Contributions.ResetForRollback(ctx, affected); err != nil {
		return fmt.Errorf("rollback: reset contributions: %w", err)
	}

	survivors, err := uow.Events.ListNonRemovedInRange(ctx, chainID, fromBlock, toBlock)
	if err != nil {
		return fmt.Errorf("rollback: list survivors: %w", err)
	}
	h.log.Info("replaying surviving events", "count", len(survivors))

	for _, e := range survivors {
		var data map[string]interface{}
		if len(e.EventData) > 0 {
			if err := json.Unmarshal(e.EventData, &data); err != nil {
				h.log.Error("skipping event with unparsable event_data during replay",
					"tx_hash", e.TxHash, "log_index", e.LogIndex, "err", err)
				continue
			}
		}
		if err := h.updater.Apply(ctx, uow, bus.EventType(e.EventName), data); err != nil {
			return fmt.Errorf("rollback: replay %s %s:%d: %w", e.EventName, e.TxHash, e.LogIndex, err)
		}
	}

	h.log.Info("rollback replay complete", "chain_id", chainID)
	return nil
}
