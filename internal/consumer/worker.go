// Package consumer is the worker side of spec.md §4.9: parse the
// envelope, open one unit of work per message, dispatch by
// message_type, and report an Outcome the bus layer turns into
// ack/retry/DLQ. Grounded on
// original_source/indexer/consumer/event_handler.py's
// EventHandler.handle_message.
package consumer

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/cfchain/indexer/internal/bus"
	"github.com/cfchain/indexer/internal/metrics"
	"github.com/cfchain/indexer/internal/reconcile"
	"github.com/cfchain/indexer/internal/rollback"
	"github.com/cfchain/indexer/internal/stateupdate"
	"github.com/cfchain/indexer/internal/store"
	"github.com/cfchain/indexer/internal/xlog"
)

// Worker applies one message at a time to the store. Many Workers can
// run concurrently, each owning its own bus channel, sharing nothing
// but the store and the bus (spec.md §5).
type Worker struct {
	store      *store.Store
	updater    *stateupdate.Updater
	rollbacker *rollback.Handler
	reconciler *reconcile.Handler
	log        xlog.Logger
}

func New(s *store.Store, updater *stateupdate.Updater, rollbacker *rollback.Handler, reconciler *reconcile.Handler, log xlog.Logger) *Worker {
	return &Worker{store: s, updater: updater, rollbacker: rollbacker, reconciler: reconciler, log: log}
}

// Handle satisfies bus.Handler.
func (w *Worker) Handle(ctx context.Context, body []byte) bus.Outcome {
	msg, err := bus.ParseMessage(body)
	if err != nil {
		w.log.Error("message parse failed, routing to dlq", "err", err)
		return bus.OutcomeFatal
	}

	start := time.Now()
	var messageType string
	var outcome bus.Outcome

	switch m := msg.(type) {
	case *bus.EventMessage:
		messageType = string(bus.MessageTypeEvent)
		outcome = w.handleEvent(ctx, m)
	case *bus.RollbackMessage:
		messageType = string(bus.MessageTypeRollback)
		outcome = w.handleRollback(ctx, m)
	case *bus.ReconciliationMessage:
		messageType = string(bus.MessageTypeReconciliation)
		outcome = w.handleReconciliation(ctx, m)
	default:
		w.log.Error("unreachable: parsed message of unknown concrete type")
		return bus.OutcomeFatal
	}

	metrics.MessageProcessingDuration.WithLabelValues(messageType).Observe(time.Since(start).Seconds())
	metrics.MessagesProcessed.WithLabelValues(messageType, outcomeLabel(outcome)).Inc()
	return outcome
}

func outcomeLabel(o bus.Outcome) string {
	switch o {
	case bus.OutcomeAck:
		return "ack"
	case bus.OutcomeRetryable:
		return "retry"
	default:
		return "fatal"
	}
}

func (w *Worker) handleEvent(ctx context.Context, m *bus.EventMessage) bus.Outcome {
	campaignAddr := strField(m.EventData, "campaign")

	eventData, err := json.Marshal(m.EventData)
	if err != nil {
		w.log.Error("marshal event_data failed", "err", err)
		return bus.OutcomeFatal
	}

	var (
		duplicate   bool
		chainFatal  bool
		campaignGap bool
	)

	err = w.store.WithUnitOfWork(ctx, func(uow *store.UnitOfWork) error {
		// The campaign row must exist before the event row: events.address
		// references campaigns.address, and for CampaignCreated the address
		// we key the event on is the campaign itself, not the emitting
		// factory (spec.md §4.9 step 3a).
		if m.EventType == bus.EventCampaignCreated {
			if err := w.updater.Apply(ctx, uow, bus.EventCampaignCreated, m.EventData); err != nil {
				return err
			}
		}

		var addrPtr *string
		if campaignAddr != "" {
			addrPtr = &campaignAddr
		}

		inserted, err := uow.Events.Insert(ctx, &store.Event{
			ChainID:     m.ChainID,
			TxHash:      m.TxHash,
			LogIndex:    int64(m.LogIndex),
			BlockNumber: m.BlockNumber,
			BlockHash:   m.BlockHash,
			Address:     addrPtr,
			EventName:   string(m.EventType),
			EventData:   eventData,
		})
		if err != nil {
			if errors.Is(err, store.ErrChainNotFound) {
				chainFatal = true
			} else if errors.Is(err, store.ErrCampaignNotFound) {
				campaignGap = true
			}
			return err
		}
		if !inserted {
			duplicate = true
			return nil
		}
		if m.EventType != bus.EventCampaignCreated {
			return w.updater.Apply(ctx, uow, m.EventType, m.EventData)
		}
		return nil
	})

	switch {
	case err == nil:
		if duplicate {
			w.log.Debug("duplicate event, acking without reapplying", "tx_hash", m.TxHash, "log_index", m.LogIndex)
		}
		return bus.OutcomeAck
	case chainFatal:
		w.log.Error("chain_id not seeded, fatal misconfiguration", "chain_id", m.ChainID)
		return bus.OutcomeFatal
	case campaignGap:
		w.log.Warn("campaign not yet visible for event, retrying", "campaign", campaignAddr,
			"tx_hash", m.TxHash, "log_index", m.LogIndex)
		return bus.OutcomeRetryable
	default:
		w.log.Error("event apply failed, retrying", "tx_hash", m.TxHash, "log_index", m.LogIndex, "err", err)
		return bus.OutcomeRetryable
	}
}

func (w *Worker) handleRollback(ctx context.Context, m *bus.RollbackMessage) bus.Outcome {
	err := w.store.WithUnitOfWork(ctx, func(uow *store.UnitOfWork) error {
		return w.rollbacker.Handle(ctx, uow, m.ChainID, m.FromBlock, m.ToBlock)
	})
	if err != nil {
		w.log.Error("rollback handling failed, retrying", "chain_id", m.ChainID, "err", err)
		return bus.OutcomeRetryable
	}
	return bus.OutcomeAck
}

func (w *Worker) handleReconciliation(ctx context.Context, m *bus.ReconciliationMessage) bus.Outcome {
	err := w.store.WithUnitOfWork(ctx, func(uow *store.UnitOfWork) error {
		return w.reconciler.Handle(ctx, uow)
	})
	if err != nil {
		w.log.Error("reconciliation failed, retrying", "chain_id", m.ChainID, "err", err)
		return bus.OutcomeRetryable
	}
	return bus.OutcomeAck
}

func strField(m map[string]interface{}, key string) string {
	v, ok := m[key]
	if !ok {
		return ""
	}
	s, _ := v.(string)
	return s
}
