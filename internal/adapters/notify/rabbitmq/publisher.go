package rabbitmq

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"

	"github.com/ogurasousui/engagement-automation/internal/core/timeline"
	"github.com/ogurasousui/engagement-automation/internal/platform/config"
)

type channel interface {
	PublishWithContext(ctx context.Context, exchange, key string, mandatory, immediate bool, msg amqp.Publishing) error
}

// ItemCreatedEvent は timeline.item.created のペイロードです。
type ItemCreatedEvent struct {
	TimelineItemID string    `json:"timelineItemId"`
	EmployeeID     string    `json:"employeeId"`
	TemplateID     *string   `json:"templateId"`
	Type           string    `json:"type"`
	Title          string    `json:"title"`
	AutomationKey  *string   `json:"automationKey,omitempty"`
	Trigger        string    `json:"trigger,omitempty"`
	CreatedAt      time.Time `json:"createdAt"`
}

// Publisher は作成されたタイムライン項目を topic exchange に発行します。
type Publisher struct {
	conn       *amqp.Connection
	ch         channel
	closeCh    func() error
	exchange   string
	routingKey string
	now        func() time.Time
}

// Dial は RabbitMQ に接続し exchange を宣言した Publisher を返します。
func Dial(cfg config.RabbitMQConfig) (*Publisher, error) {
	conn, err := amqp.Dial(cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("rabbitmq: dial: %w", err)
	}

	ch, err := conn.Channel()
	if err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("rabbitmq: open channel: %w", err)
	}

	if err := ch.ExchangeDeclare(cfg.Exchange, amqp.ExchangeTopic, true, false, false, false, nil); err != nil {
		_ = ch.Close()
		_ = conn.Close()
		return nil, fmt.Errorf("rabbitmq: declare exchange %s: %w", cfg.Exchange, err)
	}

	p := NewPublisher(ch, cfg.Exchange, cfg.RoutingKey)
	p.conn = conn
	p.closeCh = ch.Close
	return p, nil
}

// NewPublisher は既存のチャネルから Publisher を生成します。
func NewPublisher(ch channel, exchange, routingKey string) *Publisher {
	return &Publisher{
		ch:         ch,
		exchange:   exchange,
		routingKey: routingKey,
		now:        time.Now,
	}
}

// ItemCreated は item の作成を通知します。
func (p *Publisher) ItemCreated(ctx context.Context, item *timeline.Item) error {
	if item == nil {
		return fmt.Errorf("rabbitmq: item is required")
	}

	createdAt := item.CreatedAt
	if createdAt.IsZero() {
		createdAt = p.now().UTC()
	}

	body, err := json.Marshal(ItemCreatedEvent{
		TimelineItemID: item.ID,
		EmployeeID:     item.EmployeeID,
		TemplateID:     item.TemplateID,
		Type:           string(item.Type),
		Title:          item.Title,
		AutomationKey:  item.AutomationKey,
		Trigger:        item.Metadata.AutomationTrigger,
		CreatedAt:      createdAt,
	})
	if err != nil {
		return fmt.Errorf("rabbitmq: encode event: %w", err)
	}

	msg := amqp.Publishing{
		ContentType:  "application/json",
		DeliveryMode: amqp.Persistent,
		MessageId:    item.ID,
		Timestamp:    createdAt,
		Type:         p.routingKey,
		Body:         body,
	}
	if err := p.ch.PublishWithContext(ctx, p.exchange, p.routingKey, false, false, msg); err != nil {
		return fmt.Errorf("rabbitmq: publish %s: %w", p.routingKey, err)
	}
	return nil
}

// Close はチャネルと接続を閉じます。
func (p *Publisher) Close() error {
	if p.closeCh != nil {
		_ = p.closeCh()
	}
	if p.conn != nil && !p.conn.IsClosed() {
		return p.conn.Close()
	}
	return nil
}
