package integration

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/segmentio/kafka-go"
	"github.com/tablemaster-pos/engine/internal/model"
)

// statusEvent mirrors an order status change to the delivery platform topic.
type statusEvent struct {
	EventType string    `json:"event_type"`
	OrderID   string    `json:"order_id"`
	OrderType string    `json:"order_type"`
	Status    string    `json:"status"`
	Timestamp time.Time `json:"timestamp"`
}

// KafkaPublisher forwards order events to the delivery-platform topic.
// Best-effort by contract: callers log failures and never roll back the
// local transition.
type KafkaPublisher struct {
	writer *kafka.Writer
	log    zerolog.Logger
}

func NewKafkaPublisher(brokers, topic string, log zerolog.Logger) *KafkaPublisher {
	return &KafkaPublisher{
		writer: &kafka.Writer{
			Addr:         kafka.TCP(strings.Split(brokers, ",")...),
			Topic:        topic,
			Balancer:     &kafka.Hash{},
			WriteTimeout: 5 * time.Second,
			RequiredAcks: kafka.RequireOne,
		},
		log: log,
	}
}

// SendOrder announces a newly placed platform order.
func (p *KafkaPublisher) SendOrder(ctx context.Context, order model.Order) error {
	return p.publish(ctx, "order.placed", order)
}

// UpdateOrderStatus mirrors a status transition.
func (p *KafkaPublisher) UpdateOrderStatus(ctx context.Context, order model.Order) error {
	return p.publish(ctx, "order.status_changed", order)
}

func (p *KafkaPublisher) publish(ctx context.Context, eventType string, order model.Order) error {
	payload, err := json.Marshal(statusEvent{
		EventType: eventType,
		OrderID:   order.ID,
		OrderType: order.OrderType,
		Status:    order.Status,
		Timestamp: time.Now().UTC(),
	})
	if err != nil {
		return fmt.Errorf("encode %s event: %w", eventType, err)
	}
	err = p.writer.WriteMessages(ctx, kafka.Message{
		Key:   []byte(order.ID),
		Value: payload,
	})
	if err != nil {
		return fmt.Errorf("publish %s for %s: %w", eventType, order.ID, err)
	}
	p.log.Debug().Str("order", order.ID).Str("event", eventType).Msg("platform event published")
	return nil
}

func (p *KafkaPublisher) Close() error {
	return p.writer.Close()
}
