package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
)

type ContributionRepo struct{ tx *sql.Tx }

// ErrContributionNotFound is returned by AddRefund when no contribution
// row exists yet for the (campaign, donor) pair — a Refunded event
// should never precede the donation that created it, but the handler
// stays defensive rather than panicking (state_updater.py logs a
// warning and returns in this case).
var ErrContributionNotFound = errors.New("store: contribution not found")

func (r *ContributionRepo) Get(ctx context.Context, campaignAddress, donorAddress string) (*Contribution, error) {
	row := r.tx.QueryRowContext(ctx, `
		SELECT id, campaign_address, donor_address, contributed_wei, refunded_wei, created_at, updated_at
		FROM contributions WHERE campaign_address = $1 AND donor_address = $2`,
		campaignAddress, donorAddress)

	var c Contribution
	if err := row.Scan(&c.ID, &c.CampaignAddress, &c.DonorAddress, &c.ContributedWei, &c.RefundedWei,
		&c.CreatedAt, &c.UpdatedAt); err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, fmt.Errorf("store: get contribution: %w", err)
	}
	return &c, nil
}

// AddContribution upserts the donor's running contribution total:
// contributed_wei accumulates lifetime gross donations and is never
// decremented outside a rollback reset (spec.md §3 Contribution).
func (r *ContributionRepo) AddContribution(ctx context.Context, campaignAddress, donorAddress, amountWei string) error {
	_, err := r.tx.ExecContext(ctx, `
		INSERT INTO contributions (campaign_address, donor_address, contributed_wei, refunded_wei, created_at, updated_at)
		VALUES ($1, $2, $3, 0, now(), now())
		ON CONFLICT (campaign_address, donor_address) DO UPDATE
		SET contributed_wei = contributions.contributed_wei + EXCLUDED.contributed_wei,
		    updated_at = now()`,
		campaignAddress, donorAddress, amountWei)
	if err != nil {
		return fmt.Errorf("store: add contribution: %w", err)
	}
	return nil
}

// AddRefund accumulates the donor's lifetime refund total without
// touching contributed_wei — net position is derived as
// contributed_wei − refunded_wei (spec.md §3 Contribution).
func (r *ContributionRepo) AddRefund(ctx context.Context, campaignAddress, donorAddress, amountWei string) error {
	res, err := r.tx.ExecContext(ctx, `
		UPDATE contributions
		SET refunded_wei = refunded_wei + $3::numeric, updated_at = now()
		WHERE campaign_address = $1 AND donor_address = $2`,
		campaignAddress, donorAddress, amountWei)
	if err != nil {
		return fmt.Errorf("store: add refund: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("store: add refund rows affected: %w", err)
	}
	if n == 0 {
		return ErrContributionNotFound
	}
	return nil
}

// ResetForRollback zeroes both lifetime totals for every contribution
// under the affected campaigns ahead of a deterministic event replay
// (spec.md §4.11).
func (r *ContributionRepo) ResetForRollback(ctx context.Context, campaignAddresses []string) error {
	if len(campaignAddresses) == 0 {
		return nil
	}
	_, err := r.tx.ExecContext(ctx, `
		UPDATE contributions
		SET contributed_wei = 0, refunded_wei = 0, updated_at = now()
		WHERE campaign_address = ANY($1)`, stringArray(campaignAddresses))
	if err != nil {
		return fmt.Errorf("store: reset contributions for rollback: %w", err)
	}
	return nil
}
