package app

import (
	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/canteen/internal/domain"
	"github.com/vladislavdragonenkov/canteen/internal/messaging"
	"github.com/vladislavdragonenkov/canteen/internal/messaging/kafka"
	"github.com/vladislavdragonenkov/canteen/internal/messaging/rabbitmq"
)

// brokerDialers открывают подключения к брокерам; в тестах подменяются.
type brokerDialers struct {
	kafka  func(brokers []string) (*kafka.Producer, error)
	rabbit func(url string) (rabbitmq.Connection, error)
}

var defaultBrokerDialers = brokerDialers{
	kafka:  kafka.NewProducer,
	rabbit: rabbitmq.Dial,
}

// brokers — паблишеры outbox worker и функции их закрытия.
type brokers struct {
	publisher domain.OutboxPublisher
	dlq       domain.OutboxPublisher
	closers   []func() error
}

// initBrokers подключает настроенные брокеры. Недоступный брокер не останавливает сервис:
// он пропускается с предупреждением, события остаются в outbox.
func initBrokers(cfg Config, dialers brokerDialers, logger *log.Entry) *brokers {
	b := &brokers{}
	var publishers []domain.OutboxPublisher

	if producer := initKafkaProducer(cfg.KafkaBrokerList(), dialers.kafka, logger); producer != nil {
		publishers = append(publishers, kafka.NewOutboxPublisher(producer, cfg.KafkaTopic))
		b.dlq = kafka.NewDLQPublisher(producer)
		b.closers = append(b.closers, producer.Close)
	}

	if cfg.RabbitMQURL != "" {
		conn, err := dialers.rabbit(cfg.RabbitMQURL)
		if err != nil {
			logger.WithError(err).Warn("failed to connect to rabbitmq, continuing without rabbitmq")
		} else {
			logger.WithField("exchange", rabbitmq.ExchangeOrders).Info("rabbitmq publisher initialized")
			publishers = append(publishers, rabbitmq.NewOutboxPublisher(conn, rabbitmq.ExchangeOrders))
			b.closers = append(b.closers, conn.Close)
		}
	}

	b.publisher = messaging.NewFanout(publishers...)
	return b
}

// initKafkaProducer создаёт producer, если brokers не пустой; при ошибке возвращает nil.
func initKafkaProducer(brokerList []string, dial func([]string) (*kafka.Producer, error), logger *log.Entry) *kafka.Producer {
	if len(brokerList) == 0 {
		return nil
	}

	producer, err := dial(brokerList)
	if err != nil {
		logger.WithError(err).Warn("failed to create kafka producer, continuing without kafka")
		return nil
	}

	logger.WithField("brokers", brokerList).Info("kafka producer initialized")
	return producer
}

// close закрывает подключения в обратном порядке.
func (b *brokers) close(logger *log.Entry) {
	if b == nil {
		return
	}
	for i := len(b.closers) - 1; i >= 0; i-- {
		if err := b.closers[i](); err != nil {
			logger.WithError(err).Warn("failed to close broker connection")
		}
	}
	b.closers = nil
}
