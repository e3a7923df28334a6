// Package bus is the durable message layer described in spec.md §4.4:
// a topic exchange, a dead-letter side path, and the four work queues
// the producer publishes into and the consumer tier drains, built on
// RabbitMQ via amqp091-go the way original_source/indexer/messaging
// builds it on pika.
package bus

import (
	"encoding/json"
	"fmt"
	"time"
)

// MessageType discriminates the envelope's type-specific fields
// (spec.md §6 message envelope).
type MessageType string

const (
	MessageTypeEvent          MessageType = "event"
	MessageTypeRollback       MessageType = "rollback"
	MessageTypeReconciliation MessageType = "reconciliation"
)

// EventType enumerates the four known on-chain events (spec.md §4.2).
type EventType string

const (
	EventCampaignCreated  EventType = "CampaignCreated"
	EventDonationReceived EventType = "DonationReceived"
	EventWithdrawn        EventType = "Withdrawn"
	EventRefunded         EventType = "Refunded"
)

// envelope is the common header every message carries, mirroring
// messaging/schema.py's BaseMessage.
type envelope struct {
	MessageType MessageType `json:"message_type"`
	PublishedAt time.Time   `json:"published_at"`
}

// EventMessage carries one decoded on-chain event to its routed queue.
type EventMessage struct {
	MessageType MessageType            `json:"message_type"`
	PublishedAt time.Time              `json:"published_at"`
	EventType   EventType              `json:"event_type"`
	ChainID     int64                  `json:"chain_id"`
	BlockNumber uint64                 `json:"block_number"`
	BlockHash   string                 `json:"block_hash"`
	TxHash      string                 `json:"tx_hash"`
	LogIndex    uint                   `json:"log_index"`
	Address     string                 `json:"address"`
	Timestamp   uint64                 `json:"timestamp"`
	EventData   map[string]interface{} `json:"event_data"`
}

// NewEventMessage stamps PublishedAt and the fixed message_type.
func NewEventMessage(eventType EventType, chainID int64, blockNumber uint64, blockHash, txHash string,
	logIndex uint, address string, timestamp uint64, eventData map[string]interface{}, publishedAt time.Time) *EventMessage {
	return &EventMessage{
		MessageType: MessageTypeEvent,
		PublishedAt: publishedAt,
		EventType:   eventType,
		ChainID:     chainID,
		BlockNumber: blockNumber,
		BlockHash:   blockHash,
		TxHash:      txHash,
		LogIndex:    logIndex,
		Address:     address,
		Timestamp:   timestamp,
		EventData:   eventData,
	}
}

// RoutingKey returns this message's routing key via the event router
// (spec.md §4.8); unknown event types fall through to "event.unknown".
func (m *EventMessage) RoutingKey() string { return RoutingKeyForEvent(m.EventType) }

// RollbackMessage instructs the consumer tier to replay block range
// [FromBlock, ToBlock] (spec.md §4.6/§4.11).
type RollbackMessage struct {
	MessageType MessageType `json:"message_type"`
	PublishedAt time.Time   `json:"published_at"`
	ChainID     int64       `json:"chain_id"`
	FromBlock   uint64      `json:"from_block"`
	ToBlock     uint64      `json:"to_block"`
	Reason      string      `json:"reason"`
}

func NewRollbackMessage(chainID int64, fromBlock, toBlock uint64, reason string, publishedAt time.Time) *RollbackMessage {
	if reason == "" {
		reason = "reorg_detected"
	}
	return &RollbackMessage{
		MessageType: MessageTypeRollback,
		PublishedAt: publishedAt,
		ChainID:     chainID,
		FromBlock:   fromBlock,
		ToBlock:     toBlock,
		Reason:      reason,
	}
}

func (m *RollbackMessage) RoutingKey() string { return RoutingKeyRollback }

// ReconciliationMessage triggers the periodic sweep (spec.md §4.12).
type ReconciliationMessage struct {
	MessageType         MessageType `json:"message_type"`
	PublishedAt         time.Time   `json:"published_at"`
	ChainID             int64       `json:"chain_id"`
	ReconciliationType   string      `json:"reconciliation_type"`
}

func NewReconciliationMessage(chainID int64, reconciliationType string, publishedAt time.Time) *ReconciliationMessage {
	if reconciliationType == "" {
		reconciliationType = "mark_expired_campaigns"
	}
	return &ReconciliationMessage{
		MessageType:        MessageTypeReconciliation,
		PublishedAt:        publishedAt,
		ChainID:            chainID,
		ReconciliationType: reconciliationType,
	}
}

func (m *ReconciliationMessage) RoutingKey() string { return RoutingKeyReconciliation }

// Publishable is anything that knows its own routing key and
// marshals to the wire envelope.
type Publishable interface {
	RoutingKey() string
}

// ErrUnknownMessageType is returned by ParseMessage for an envelope
// whose message_type isn't one of the three known values.
type ErrUnknownMessageType struct{ Got string }

func (e *ErrUnknownMessageType) Error() string {
	return fmt.Sprintf("bus: unknown message_type %q", e.Got)
}

// ParseMessage sniffs the envelope's message_type and unmarshals into
// the matching concrete type, mirroring messaging/schema.py's
// parse_message dispatch.
func ParseMessage(body []byte) (interface{}, error) {
	var env envelope
	if err := json.Unmarshal(body, &env); err != nil {
		return nil, fmt.Errorf("bus: parse envelope: %w", err)
	}
	switch env.MessageType {
	case MessageTypeEvent:
		var m EventMessage
		if err := json.Unmarshal(body, &m); err != nil {
			return nil, fmt.Errorf("bus: parse event message: %w", err)
		}
		return &m, nil
	case MessageTypeRollback:
		var m RollbackMessage
		if err := json.Unmarshal(body, &m); err != nil {
			return nil, fmt.Errorf("bus: parse rollback message: %w", err)
		}
		return &m, nil
	case MessageTypeReconciliation:
		var m ReconciliationMessage
		if err := json.Unmarshal(body, &m); err != nil {
			return nil, fmt.Errorf("bus: parse reconciliation message: %w", err)
		}
		return &m, nil
	default:
		return nil, &ErrUnknownMessageType{Got: string(env.MessageType)}
	}
}
