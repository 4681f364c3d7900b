/*Package events fans catalogue change notifications out to external
consumers. Each notifier implements core.Notifier; notification delivery
is best effort and never blocks the request that triggered it.
*/
package events

import (
	"context"
	"time"

	"github.com/segmentio/kafka-go"

	"github.com/relabs-tech/sensorhub/core"
	"github.com/relabs-tech/sensorhub/core/logger"
)

// messageWriter is the part of kafka.Writer the notifier uses.
type messageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// KafkaNotifier publishes catalogue change notifications to a kafka topic.
// The message key is "{resource}.{operation}", so all changes of one
// resource and kind land in the same partition, in order.
//
// Notifications are queued and delivered by a background worker; Notify
// itself never blocks the request. When the queue is full, the
// notification is dropped with a warning.
type KafkaNotifier struct {
	writer   messageWriter
	messages chan kafka.Message
	done     chan struct{}
}

// NewKafkaNotifier creates a notifier publishing to the given topic.
func NewKafkaNotifier(brokers []string, topic string) *KafkaNotifier {
	return newKafkaNotifier(&kafka.Writer{
		Addr:                   kafka.TCP(brokers...),
		Topic:                  topic,
		Balancer:               &kafka.Hash{},
		AllowAutoTopicCreation: true,
		WriteTimeout:           10 * time.Second,
	})
}

func newKafkaNotifier(writer messageWriter) *KafkaNotifier {
	n := &KafkaNotifier{
		writer:   writer,
		messages: make(chan kafka.Message, 256),
		done:     make(chan struct{}),
	}
	go n.deliver()
	return n
}

func (n *KafkaNotifier) deliver() {
	defer close(n.done)
	for msg := range n.messages {
		err := n.writer.WriteMessages(context.Background(), msg)
		if err != nil {
			logger.Default().WithError(err).Errorln("cannot publish notification", string(msg.Key))
		}
	}
}

// Notify implements core.Notifier
func (n *KafkaNotifier) Notify(resource string, operation core.Operation, payload []byte) {
	msg := kafka.Message{
		Key:   []byte(resource + "." + string(operation)),
		Value: payload,
	}
	select {
	case n.messages <- msg:
	default:
		logger.Default().Warnln("notification queue full, dropping", string(msg.Key))
	}
}

// Close delivers the queued messages and closes the writer.
func (n *KafkaNotifier) Close() error {
	close(n.messages)
	<-n.done
	return n.writer.Close()
}
