package bus

import amqp "github.com/rabbitmq/amqp091-go"

// QueueStatus reports depth and consumer count for one queue, as
// rabbitmq.py's get_queue_status does with a passive queue_declare.
type QueueStatus struct {
	Queue        string
	MessageCount int
	ConsumerCount int
}

// Status reports every managed queue plus the DLQ — the data behind
// the `broker status` CLI command.
func Status(ch *amqp.Channel) ([]QueueStatus, error) {
	queues := append(append([]string{}, AllQueues...), DLXQueueName)
	out := make([]QueueStatus, 0, len(queues))
	for _, q := range queues {
		d, err := ch.QueueDeclarePassive(q, true, false, false, false, nil)
		if err != nil {
			return nil, err
		}
		out = append(out, QueueStatus{Queue: q, MessageCount: d.Messages, ConsumerCount: d.Consumers})
	}
	return out, nil
}

// Purge empties queue and returns the number of messages removed —
// the `broker purge` CLI command's backing call.
func Purge(ch *amqp.Channel, queue string) (int, error) {
	return ch.QueuePurge(queue, false)
}
