package eventbus

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"sync"

	"github.com/segmentio/kafka-go"

	"github.com/stellarpay/starbridge/pkg/domain"
	"github.com/stellarpay/starbridge/pkg/eventbus"
)

// envelope is the wire format on the events topic.
type envelope struct {
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload"`
}

func decodeEvent(env envelope) (domain.Event, error) {
	switch env.Type {
	case domain.EventConversionCreated:
		var e domain.ConversionCreated
		return e, json.Unmarshal(env.Payload, &e)
	case domain.EventDepositConfirmed:
		var e domain.DepositConfirmed
		return e, json.Unmarshal(env.Payload, &e)
	case domain.EventSettlementComplete:
		var e domain.SettlementCompleted
		return e, json.Unmarshal(env.Payload, &e)
	}
	return nil, fmt.Errorf("unknown event type %q", env.Type)
}

// KafkaEventBus publishes events to a Kafka topic and dispatches consumed
// messages to registered handlers. Used when conversions execute in a
// separate worker process.
type KafkaEventBus struct {
	writer *kafka.Writer
	reader *kafka.Reader

	handlers map[string][]eventbus.HandlerFunc
	mu       sync.RWMutex

	logger *slog.Logger
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// NewWithKafka creates a Kafka-backed event bus. brokers is a
// comma-separated list.
func NewWithKafka(brokers, topic, groupID string, logger *slog.Logger) (*KafkaEventBus, error) {
	parsed := strings.Split(brokers, ",")
	if len(parsed) == 0 || parsed[0] == "" {
		return nil, fmt.Errorf("kafka event bus: brokers are required")
	}

	return &KafkaEventBus{
		writer: &kafka.Writer{
			Addr:                   kafka.TCP(parsed...),
			Topic:                  topic,
			AllowAutoTopicCreation: true,
			RequiredAcks:           kafka.RequireOne,
			Balancer:               &kafka.Hash{},
		},
		reader: kafka.NewReader(kafka.ReaderConfig{
			Brokers: parsed,
			Topic:   topic,
			GroupID: groupID,
		}),
		handlers: make(map[string][]eventbus.HandlerFunc),
		logger:   logger.With("bus", "kafka"),
	}, nil
}

// Register subscribes a handler to an event type.
func (b *KafkaEventBus) Register(eventType string, handler eventbus.HandlerFunc) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.handlers[eventType] = append(b.handlers[eventType], handler)
}

// Emit publishes the event, keyed by type so ordering holds per type.
func (b *KafkaEventBus) Emit(ctx context.Context, event domain.Event) error {
	payload, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("marshal event: %w", err)
	}
	data, err := json.Marshal(envelope{Type: event.Type(), Payload: payload})
	if err != nil {
		return err
	}
	return b.writer.WriteMessages(ctx, kafka.Message{
		Key:   []byte(event.Type()),
		Value: data,
	})
}

// Start begins the consume loop. Call once after registering handlers.
func (b *KafkaEventBus) Start(ctx context.Context) {
	ctx, b.cancel = context.WithCancel(ctx)
	b.wg.Add(1)
	go func() {
		defer b.wg.Done()
		for {
			msg, err := b.reader.ReadMessage(ctx)
			if err != nil {
				if ctx.Err() != nil {
					return
				}
				b.logger.Error("read message", "error", err)
				continue
			}

			var env envelope
			if err := json.Unmarshal(msg.Value, &env); err != nil {
				b.logger.Error("decode envelope", "error", err)
				continue
			}
			event, err := decodeEvent(env)
			if err != nil {
				b.logger.Warn("skip message", "error", err)
				continue
			}

			b.mu.RLock()
			handlers := b.handlers[env.Type]
			b.mu.RUnlock()
			for _, handler := range handlers {
				if err := handler(ctx, event); err != nil {
					b.logger.Error("event handler failed", "event", env.Type, "error", err)
				}
			}
		}
	}()
}

// Close stops the consume loop and releases the Kafka connections.
func (b *KafkaEventBus) Close() error {
	if b.cancel != nil {
		b.cancel()
	}
	b.wg.Wait()
	if err := b.reader.Close(); err != nil {
		return err
	}
	return b.writer.Close()
}

var _ eventbus.Bus = (*KafkaEventBus)(nil)
