// Package reconcile is the periodic sweep spec.md §4.12 describes:
// campaigns whose deadline has passed without reaching their goal
// move to FAILED. It is the one state transition that isn't driven by
// an on-chain event — a clock tick instead of a log — so it lives
// outside stateupdate's per-event table.
package reconcile

import (
	"context"
	"fmt"

	"github.com/cfchain/indexer/internal/store"
	"github.com/cfchain/indexer/internal/xlog"
)

type Handler struct {
	log xlog.Logger
}

func New(log xlog.Logger) *Handler { return &Handler{log: log} }

// Handle marks every campaign with status=ACTIVE, deadline_ts in the
// past, total_raised_wei below goal_wei, and withdrawn=false as
// FAILED. Idempotent: a second run against the same data is a no-op.
func (h *Handler) Handle(ctx context.Context, uow *store.UnitOfWork) error {
	n, err := uow.Campaigns.MarkExpiredFailed(ctx)
	if err != nil {
		return fmt.Errorf("reconcile: mark expired campaigns failed: %w", err)
	}
	h.log.Info("reconciliation complete", "campaigns_marked_failed", n)
	return nil
}
