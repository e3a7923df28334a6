// Package stateupdate is the per-event state-derivation layer,
// spec.md §4.10, grounded on
// original_source/indexer/consumer/state_updater.py's
// ConsumerStateUpdater. It is deliberately side-effect-pure with
// respect to the bus: given a unit of work and decoded event_data, it
// applies exactly the mutation spec.md's table describes and nothing
// else. Both the live consumer and the rollback replay call the same
// Apply, so "replay reproduces the live path" is true by construction
// rather than by convention.
package stateupdate

import (
	"context"
	"errors"
	"fmt"
	"strconv"

	"github.com/cfchain/indexer/internal/bus"
	"github.com/cfchain/indexer/internal/store"
	"github.com/cfchain/indexer/internal/xlog"
)

type Updater struct {
	log xlog.Logger
}

func New(log xlog.Logger) *Updater { return &Updater{log: log} }

// Apply dispatches on eventType and applies the matching rule from
// spec.md §4.10. An unrecognized type is logged and ignored rather
// than erroring — it should never reach here since the router already
// dropped it at publish time (spec.md §4.8).
func (u *Updater) Apply(ctx context.Context, uow *store.UnitOfWork, eventType bus.EventType, data map[string]interface{}) error {
	switch eventType {
	case bus.EventCampaignCreated:
		return u.applyCampaignCreated(ctx, uow, data)
	case bus.EventDonationReceived:
		return u.applyDonationReceived(ctx, uow, data)
	case bus.EventWithdrawn:
		return u.applyWithdrawn(ctx, uow, data)
	case bus.EventRefunded:
		return u.applyRefunded(ctx, uow, data)
	default:
		u.log.Warn("unknown event type, skipping state update", "event_type", eventType)
		return nil
	}
}

func (u *Updater) applyCampaignCreated(ctx context.Context, uow *store.UnitOfWork, data map[string]interface{}) error {
	deadlineStr := strField(data, "deadline")
	deadline, err := strconv.ParseInt(deadlineStr, 10, 64)
	if err != nil {
		return fmt.Errorf("stateupdate: parse deadline %q: %w", deadlineStr, err)
	}

	var cidPtr *string
	if cid := strField(data, "cid"); cid != "" {
		cidPtr = &cid
	}

	return uow.Campaigns.UpsertOnCreated(ctx, &store.Campaign{
		Address:        strField(data, "campaign"),
		FactoryAddress: strField(data, "factory"),
		CreatorAddress: strField(data, "creator"),
		GoalWei:        strField(data, "goal"),
		DeadlineTS:     deadline,
		CID:            cidPtr,
	})
}

func (u *Updater) applyDonationReceived(ctx context.Context, uow *store.UnitOfWork, data map[string]interface{}) error {
	campaignAddr := strField(data, "campaign")

	campaign, err := uow.Campaigns.Get(ctx, campaignAddr)
	if err != nil {
		return err
	}
	if campaign == nil {
		u.log.Warn("campaign not found for donation, dropping", "campaign", campaignAddr)
		return nil
	}

	if err := uow.Contributions.AddContribution(ctx, campaignAddr, strField(data, "donor"), strField(data, "amount")); err != nil {
		return err
	}
	return uow.Campaigns.ApplyDonation(ctx, campaignAddr, strField(data, "newTotalRaised"))
}

func (u *Updater) applyWithdrawn(ctx context.Context, uow *store.UnitOfWork, data map[string]interface{}) error {
	campaignAddr := strField(data, "campaign")

	campaign, err := uow.Campaigns.Get(ctx, campaignAddr)
	if err != nil {
		return err
	}
	if campaign == nil {
		u.log.Warn("campaign not found for withdrawal, dropping", "campaign", campaignAddr)
		return nil
	}
	return uow.Campaigns.SetWithdrawn(ctx, campaignAddr, strField(data, "amount"))
}

func (u *Updater) applyRefunded(ctx context.Context, uow *store.UnitOfWork, data map[string]interface{}) error {
	campaignAddr := strField(data, "campaign")
	donor := strField(data, "donor")

	err := uow.Contributions.AddRefund(ctx, campaignAddr, donor, strField(data, "amount"))
	if errors.Is(err, store.ErrContributionNotFound) {
		u.log.Warn("contribution not found for refund, dropping", "campaign", campaignAddr, "donor", donor)
		return nil
	}
	return err
}

func strField(m map[string]interface{}, key string) string {
	v, ok := m[key]
	if !ok {
		return ""
	}
	s, _ := v.(string)
	return s
}
