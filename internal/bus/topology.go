package bus

import amqp "github.com/rabbitmq/amqp091-go"

// Exchange/queue names and routing keys, verbatim from spec.md §4.4.
const (
	ExchangeName    = "blockchain_events"
	DLXExchangeName = "blockchain_events.dlx"
	DLXQueueName    = "dlq.events"

	QueueCampaignCreated   = "queue.campaign_created"
	QueueDonationReceived  = "queue.donation_received"
	QueueWithdrawalRefund  = "queue.withdrawal_refund"
	QueueControl           = "queue.control"

	RoutingKeyCampaignCreated  = "event.campaign_created"
	RoutingKeyDonationReceived = "event.donation_received"
	RoutingKeyWithdrawn        = "event.withdrawn"
	RoutingKeyRefunded         = "event.refunded"
	RoutingKeyRollback         = "control.rollback"
	RoutingKeyReconciliation   = "control.reconciliation"

	// routingKeyUnknown is never bound to a queue — an unrecognized
	// event kind is dropped deliberately (spec.md §4.8) rather than
	// risk silently corrupting state.
	routingKeyUnknown = "event.unknown"

	queueMessageTTLMillis = 7 * 24 * 60 * 60 * 1000
	queueMaxLength        = 100000
)

// AllQueues is every queue a consumer fleet subscribes to.
var AllQueues = []string{QueueCampaignCreated, QueueDonationReceived, QueueWithdrawalRefund, QueueControl}

// queueBindings maps each work queue to the routing keys bound to it.
var queueBindings = map[string][]string{
	QueueCampaignCreated:  {RoutingKeyCampaignCreated},
	QueueDonationReceived: {RoutingKeyDonationReceived},
	QueueWithdrawalRefund: {RoutingKeyWithdrawn, RoutingKeyRefunded},
	QueueControl:          {RoutingKeyRollback, RoutingKeyReconciliation},
}

// RoutingKeyForEvent is the event router (spec.md §4.8): a pure
// function from event kind to routing key.
func RoutingKeyForEvent(kind EventType) string {
	switch kind {
	case EventCampaignCreated:
		return RoutingKeyCampaignCreated
	case EventDonationReceived:
		return RoutingKeyDonationReceived
	case EventWithdrawn:
		return RoutingKeyWithdrawn
	case EventRefunded:
		return RoutingKeyRefunded
	default:
		return routingKeyUnknown
	}
}

// queueArguments are the per-queue arguments spec.md §4.4 requires:
// TTL, max length, and dead-lettering into the DLX under routing key
// "dlq".
func queueArguments() amqp.Table {
	return amqp.Table{
		"x-message-ttl":             int32(queueMessageTTLMillis),
		"x-max-length":              int32(queueMaxLength),
		"x-dead-letter-exchange":    DLXExchangeName,
		"x-dead-letter-routing-key": "dlq",
	}
}

// DeclareTopology idempotently declares the exchange, DLX, DLQ, and
// all four work queues with their bindings — safe to call on every
// process start (original_source/indexer/messaging/rabbitmq.py's
// setup_exchange_and_queues).
func DeclareTopology(ch *amqp.Channel) error {
	if err := ch.ExchangeDeclare(ExchangeName, "topic", true, false, false, false, nil); err != nil {
		return err
	}
	if err := ch.ExchangeDeclare(DLXExchangeName, "direct", true, false, false, false, nil); err != nil {
		return err
	}
	if _, err := ch.QueueDeclare(DLXQueueName, true, false, false, false, nil); err != nil {
		return err
	}
	if err := ch.QueueBind(DLXQueueName, "dlq", DLXExchangeName, false, nil); err != nil {
		return err
	}

	args := queueArguments()
	for queue, keys := range queueBindings {
		if _, err := ch.QueueDeclare(queue, true, false, false, false, args); err != nil {
			return err
		}
		for _, key := range keys {
			if err := ch.QueueBind(queue, key, ExchangeName, false, nil); err != nil {
				return err
			}
		}
	}
	return nil
}
