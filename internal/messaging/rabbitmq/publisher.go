// Package rabbitmq публикует события заказов в topic exchange для кухонных экранов.
package rabbitmq

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/canteen/internal/domain"
	"github.com/vladislavdragonenkov/canteen/internal/messaging"
)

const (
	// ExchangeOrders — topic exchange событий заказов; routing key равен типу события.
	ExchangeOrders = "canteen.orders"

	defaultPublishTimeout = 5 * time.Second
)

// OutboxPublisher публикует outbox-сообщения в RabbitMQ.
type OutboxPublisher struct {
	conn     Connection
	exchange string
	timeout  time.Duration
	logger   *log.Entry
}

// NewOutboxPublisher создаёт паблишер поверх соединения.
func NewOutboxPublisher(conn Connection, exchange string) *OutboxPublisher {
	if exchange == "" {
		exchange = ExchangeOrders
	}
	return &OutboxPublisher{
		conn:     conn,
		exchange: exchange,
		timeout:  defaultPublishTimeout,
		logger:   log.WithField("component", "rabbitmq-publisher"),
	}
}

func (p *OutboxPublisher) Publish(event domain.OutboxMessage) error {
	if p == nil || p.conn == nil {
		return fmt.Errorf("rabbitmq outbox publisher is not initialized")
	}

	ch, err := p.conn.Channel()
	if err != nil {
		return err
	}
	defer ch.Close()

	if err := ch.ExchangeDeclare(p.exchange, "topic", true, false, false, false, nil); err != nil {
		return fmt.Errorf("failed to declare exchange: %w", err)
	}

	now := time.Now().UTC()
	body, err := json.Marshal(messaging.NewEnvelope(event, now))
	if err != nil {
		return fmt.Errorf("failed to marshal message: %w", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), p.timeout)
	defer cancel()

	err = ch.PublishWithContext(ctx, p.exchange, event.EventType, false, false, amqp.Publishing{
		DeliveryMode:  amqp.Persistent,
		ContentType:   "application/json",
		MessageId:     event.ID,
		CorrelationId: messaging.PartitionKey(event),
		Type:          event.EventType,
		Timestamp:     now,
		Body:          body,
	})
	if err != nil {
		return fmt.Errorf("failed to publish message: %w", err)
	}

	p.logger.WithFields(log.Fields{
		"exchange":    p.exchange,
		"routing_key": event.EventType,
		"outbox_id":   event.ID,
	}).Debug("message sent to rabbitmq")
	return nil
}

var _ domain.OutboxPublisher = (*OutboxPublisher)(nil)
