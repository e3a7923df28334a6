package store

import (
	"context"
	"database/sql"
	"fmt"
)

type CampaignRepo struct{ tx *sql.Tx }

// ListAddresses returns every known campaign address. The producer does
// not call it: it scans each block range with no address filter.
func (r *CampaignRepo) ListAddresses(ctx context.Context) ([]string, error) {
	rows, err := r.tx.QueryContext(ctx, `SELECT address FROM campaigns`)
	if err != nil {
		return nil, fmt.Errorf("store: list campaign addresses: %w", err)
	}
	defer rows.Close()

	var out []string
	for rows.Next() {
		var addr string
		if err := rows.Scan(&addr); err != nil {
			return nil, fmt.Errorf("store: scan campaign address: %w", err)
		}
		out = append(out, addr)
	}
	return out, rows.Err()
}

// Get returns the campaign at address, or (nil, nil) if it doesn't
// exist — callers treat an unknown campaign as a warn-and-skip
// condition (original_source/indexer/consumer/state_updater.py), not
// an error, since messages can arrive for campaigns the consumer
// hasn't applied a CampaignCreated for yet.
func (r *CampaignRepo) Get(ctx context.Context, address string) (*Campaign, error) {
	row := r.tx.QueryRowContext(ctx, `
		SELECT address, factory_address, creator_address, goal_wei, deadline_ts,
		       cid, status, total_raised_wei, withdrawn, withdrawn_amount_wei,
		       created_at, updated_at
		FROM campaigns WHERE address = $1`, address)

	var c Campaign
	if err := row.Scan(&c.Address, &c.FactoryAddress, &c.CreatorAddress, &c.GoalWei, &c.DeadlineTS,
		&c.CID, &c.Status, &c.TotalRaisedWei, &c.Withdrawn, &c.WithdrawnAmountWei,
		&c.CreatedAt, &c.UpdatedAt); err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, fmt.Errorf("store: get campaign: %w", err)
	}
	return &c, nil
}

// UpsertOnCreated applies a CampaignCreated event (spec.md §3 invariant
// 2: created exactly once, but the handler stays idempotent for
// replay). A second CampaignCreated for the same address overwrites
// the constant fields and resets status to ACTIVE unless the campaign
// already reached a terminal state (SUCCESS/WITHDRAWN) — mirroring
// ConsumerStateUpdater.apply_campaign_created.
func (r *CampaignRepo) UpsertOnCreated(ctx context.Context, c *Campaign) error {
	_, err := r.tx.ExecContext(ctx, `
		INSERT INTO campaigns (address, factory_address, creator_address, goal_wei,
		                        deadline_ts, cid, status, total_raised_wei, withdrawn,
		                        created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, 'ACTIVE', 0, false, now(), now())
		ON CONFLICT (address) DO UPDATE
		SET factory_address = EXCLUDED.factory_address,
		    creator_address = EXCLUDED.creator_address,
		    goal_wei        = EXCLUDED.goal_wei,
		    deadline_ts     = EXCLUDED.deadline_ts,
		    cid             = EXCLUDED.cid,
		    status          = CASE WHEN campaigns.status IN ('SUCCESS', 'WITHDRAWN')
		                           THEN campaigns.status ELSE 'ACTIVE' END,
		    updated_at      = now()`,
		c.Address, c.FactoryAddress, c.CreatorAddress, c.GoalWei, c.DeadlineTS, c.CID)
	if err != nil {
		return fmt.Errorf("store: upsert campaign: %w", err)
	}
	return nil
}

// ApplyDonation sets total_raised_wei to newTotalRaised verbatim (the
// event carries the post-donation running total, not a delta) and
// transitions ACTIVE → SUCCESS once
// the goal is met. The comparison runs in SQL against the NUMERIC
// columns so no 256-bit arithmetic is needed in Go.
func (r *CampaignRepo) ApplyDonation(ctx context.Context, address, newTotalRaisedWei string) error {
	_, err := r.tx.ExecContext(ctx, `
		UPDATE campaigns
		SET total_raised_wei = $2,
		    status = CASE WHEN status = 'ACTIVE' AND $2::numeric >= goal_wei::numeric
		                  THEN 'SUCCESS' ELSE status END,
		    updated_at = now()
		WHERE address = $1`, address, newTotalRaisedWei)
	if err != nil {
		return fmt.Errorf("store: apply donation: %w", err)
	}
	return nil
}

// SetWithdrawn marks the campaign withdrawn and moves it to the
// terminal WITHDRAWN state (spec.md §3 invariant 2).
func (r *CampaignRepo) SetWithdrawn(ctx context.Context, address, amountWei string) error {
	_, err := r.tx.ExecContext(ctx, `
		UPDATE campaigns
		SET withdrawn = true, withdrawn_amount_wei = $2, status = 'WITHDRAWN', updated_at = now()
		WHERE address = $1`, address, amountWei)
	if err != nil {
		return fmt.Errorf("store: set withdrawn: %w", err)
	}
	return nil
}

// ResetForRollback zeroes the derived aggregates for every address in
// addresses ahead of a deterministic replay (spec.md §4.11):
// total_raised_wei back to 0, withdrawn flag and amount cleared, status
// back to ACTIVE unless the campaign is WITHDRAWN, in which case the
// status is kept even though the withdrawn flag and amount are cleared.
func (r *CampaignRepo) ResetForRollback(ctx context.Context, addresses []string) error {
	if len(addresses) == 0 {
		return nil
	}
	_, err := r.tx.ExecContext(ctx, `
		UPDATE campaigns
		SET total_raised_wei = 0,
		    withdrawn = false,
		    withdrawn_amount_wei = NULL,
		    status = CASE WHEN status = 'WITHDRAWN' THEN status ELSE 'ACTIVE' END,
		    updated_at = now()
		WHERE address = ANY($1)`, stringArray(addresses))
	if err != nil {
		return fmt.Errorf("store: reset campaigns for rollback: %w", err)
	}
	return nil
}

// MarkExpiredFailed is the reconciliation sweep (spec.md §4.12):
// ACTIVE campaigns past their deadline that never reached goal_wei
// move to FAILED. Returns the number of rows transitioned.
func (r *CampaignRepo) MarkExpiredFailed(ctx context.Context) (int64, error) {
	res, err := r.tx.ExecContext(ctx, `
		UPDATE campaigns
		SET status = 'FAILED', updated_at = now()
		WHERE status = 'ACTIVE'
		  AND withdrawn = false
		  AND deadline_ts < extract(epoch FROM now())::bigint
		  AND total_raised_wei::numeric < goal_wei::numeric`)
	if err != nil {
		return 0, fmt.Errorf("store: mark expired campaigns failed: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("store: mark expired campaigns rows affected: %w", err)
	}
	return n, nil
}
