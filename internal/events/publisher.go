// Package events publishes order lifecycle events to Kafka.
package events

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"time"

	"github.com/fjod/storefront/internal/domain"
	"github.com/fjod/storefront/pkg/logger"
	"github.com/segmentio/kafka-go"
)

const (
	TypeOrderPlaced = "order.placed"
	TypeOrderFailed = "order.failed"

	DefaultTopic = "storefront-orders"
)

// Writer is the subset of *kafka.Writer the publisher uses.
type Writer interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

type OrderLine struct {
	ProductID int64  `json:"productId"`
	Quantity  int    `json:"quantity"`
	UnitPrice string `json:"unitPrice"`
}

type OrderEvent struct {
	Type           string      `json:"type"`
	UserID         int64       `json:"userId"`
	OrderID        int64       `json:"orderId,omitempty"`
	IdempotencyKey string      `json:"idempotencyKey"`
	Total          string      `json:"total"`
	Lines          []OrderLine `json:"lines"`
	Error          string      `json:"error,omitempty"`
	OccurredAt     time.Time   `json:"occurredAt"`
}

type Publisher struct {
	writer Writer
	log    *logger.Logger
	now    func() time.Time
}

func NewKafkaWriter(topic string, brokers ...string) *kafka.Writer {
	if topic == "" {
		topic = DefaultTopic
	}
	return &kafka.Writer{
		Addr:                   kafka.TCP(brokers...),
		Topic:                  topic,
		Balancer:               &kafka.Hash{},
		AllowAutoTopicCreation: true,
	}
}

func NewPublisher(w Writer, log *logger.Logger) *Publisher {
	return &Publisher{writer: w, log: log, now: time.Now}
}

func (p *Publisher) OrderPlaced(ctx context.Context, userID int64, req domain.OrderRequest, result domain.OrderResult) error {
	ev := p.newEvent(TypeOrderPlaced, userID, req)
	ev.OrderID = result.OrderID
	return p.publish(ctx, ev)
}

func (p *Publisher) OrderFailed(ctx context.Context, userID int64, req domain.OrderRequest, cause error) error {
	ev := p.newEvent(TypeOrderFailed, userID, req)
	if cause != nil {
		ev.Error = cause.Error()
	}
	return p.publish(ctx, ev)
}

func (p *Publisher) newEvent(typ string, userID int64, req domain.OrderRequest) OrderEvent {
	lines := make([]OrderLine, 0, len(req.Lines))
	for _, l := range req.Lines {
		lines = append(lines, OrderLine{
			ProductID: int64(l.ProductRef),
			Quantity:  l.Quantity,
			UnitPrice: l.UnitPriceAtSubmission.String(),
		})
	}
	return OrderEvent{
		Type:           typ,
		UserID:         userID,
		IdempotencyKey: req.IdempotencyKey,
		Total:          req.Total().String(),
		Lines:          lines,
		OccurredAt:     p.now().UTC(),
	}
}

func (p *Publisher) publish(ctx context.Context, ev OrderEvent) error {
	payload, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("failed to marshal %s event: %w", ev.Type, err)
	}

	// keyed by user so one user's events stay ordered on a partition
	msg := kafka.Message{
		Key:   []byte(strconv.FormatInt(ev.UserID, 10)),
		Value: payload,
		Headers: []kafka.Header{
			{Key: "event_type", Value: []byte(ev.Type)},
			{Key: "idempotency_key", Value: []byte(ev.IdempotencyKey)},
		},
	}
	if err := p.writer.WriteMessages(ctx, msg); err != nil {
		p.log.Warn("failed to publish order event", "type", ev.Type, "error", err)
		return fmt.Errorf("failed to publish %s event: %w", ev.Type, err)
	}
	p.log.Debug("order event published", "type", ev.Type, "order_id", ev.OrderID)
	return nil
}

func (p *Publisher) Close() error {
	return p.writer.Close()
}
