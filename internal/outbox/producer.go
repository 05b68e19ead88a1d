package outbox

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/segmentio/kafka-go"
)

// KafkaProducer owns one writer per topic this service publishes. The topic
// set is closed, so writers are built up front rather than on demand.
type KafkaProducer struct {
	writers   map[string]*kafka.Writer
	closeOnce sync.Once
	closeErr  error
}

// NewKafkaProducer creates a KafkaProducer for the group and activity topics.
func NewKafkaProducer(brokers []string) *KafkaProducer {
	writers := make(map[string]*kafka.Writer, 2)
	for _, topic := range []string{TopicGroupEvents, TopicActivityEvents} {
		writers[topic] = &kafka.Writer{
			Addr:  kafka.TCP(brokers...),
			Topic: topic,
			// Keys are group/user scoped; hashing keeps one group's events
			// on one partition.
			Balancer:     &kafka.Hash{},
			RequiredAcks: kafka.RequireAll,
			Compression:  kafka.Snappy,
			BatchTimeout: 50 * time.Millisecond,
			Async:        false,
		}
	}
	return &KafkaProducer{writers: writers}
}

// WriteMessages writes messages to the given topic.
func (p *KafkaProducer) WriteMessages(ctx context.Context, topic string, msgs ...kafka.Message) error {
	writer, ok := p.writers[topic]
	if !ok {
		return fmt.Errorf("no writer for topic %s", topic)
	}
	return writer.WriteMessages(ctx, msgs...)
}

// Close releases all writers. Safe to call more than once; both main's defer
// and shutdown paths may reach it.
func (p *KafkaProducer) Close() error {
	p.closeOnce.Do(func() {
		for _, writer := range p.writers {
			if err := writer.Close(); err != nil && p.closeErr == nil {
				p.closeErr = err
			}
		}
	})
	return p.closeErr
}
