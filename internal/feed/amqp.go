package feed

import (
	"context"
	"fmt"
	"sync"

	"noodlebadge/internal/models"

	amqp "github.com/rabbitmq/amqp091-go"
	"go.uber.org/zap"
)

// amqpFeed routes updates through a topic exchange. Each user gets a durable
// queue bound to "user.<id>", so updates published while nobody is
// subscribed are delivered on the next subscription.
type amqpFeed struct {
	conn        *amqp.Connection
	exchange    string
	queuePrefix string
	bufferSize  int
	logger      *zap.Logger

	pubMu sync.Mutex
	pubCh *amqp.Channel
}

// NewAMQPFeed dials the broker and declares the exchange
func NewAMQPFeed(config *Config, logger *zap.Logger) (Feed, error) {
	if config.AMQPURL == "" {
		return nil, fmt.Errorf("amqp feed requires an amqp url")
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	conn, err := amqp.Dial(config.AMQPURL)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to RabbitMQ: %w", err)
	}

	ch, err := conn.Channel()
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("failed to open channel: %w", err)
	}

	if err := declareExchange(ch, config.Exchange); err != nil {
		ch.Close()
		conn.Close()
		return nil, err
	}

	logger.Info("Connected to RabbitMQ", zap.String("exchange", config.Exchange))

	return &amqpFeed{
		conn:        conn,
		exchange:    config.Exchange,
		queuePrefix: config.QueuePrefix,
		bufferSize:  config.BufferSize,
		logger:      logger.With(zap.String("component", "amqp_feed")),
		pubCh:       ch,
	}, nil
}

func declareExchange(ch *amqp.Channel, exchange string) error {
	err := ch.ExchangeDeclare(
		exchange,
		amqp.ExchangeTopic,
		true,  // durable
		false, // auto-delete
		false, // internal
		false, // no-wait
		nil,
	)
	if err != nil {
		return fmt.Errorf("failed to declare exchange: %w", err)
	}
	return nil
}

// Subscribe implements Feed
func (f *amqpFeed) Subscribe(ctx context.Context, userID string) (<-chan models.CounterUpdate, error) {
	ch, err := f.conn.Channel()
	if err != nil {
		return nil, fmt.Errorf("failed to open channel: %w", err)
	}

	msgs, err := f.consume(ch, userID)
	if err != nil {
		ch.Close()
		return nil, err
	}

	out := make(chan models.CounterUpdate)

	go func() {
		defer ch.Close()
		f.forward(ctx, userID, msgs, out)
	}()

	return out, nil
}

// forward hands deliveries to the subscriber one at a time. A delivery is
// acked only when the subscriber settles it as processed; anything settled
// as failed, or still unsettled when the channel closes, is redelivered.
func (f *amqpFeed) forward(ctx context.Context, userID string, msgs <-chan amqp.Delivery, out chan<- models.CounterUpdate) {
	defer close(out)

	for {
		select {
		case <-ctx.Done():
			return
		case msg, ok := <-msgs:
			if !ok {
				f.logger.Warn("Delivery channel closed", zap.String("user_id", userID))
				return
			}

			update, err := DecodeUpdate(msg.Body)
			if err != nil {
				f.logger.Warn("Bad counter payload",
					zap.String("user_id", userID),
					zap.Error(err),
				)
				_ = msg.Nack(false, false)
				continue
			}

			select {
			case out <- update.WithAck(f.settler(userID, msg)):
			case <-ctx.Done():
				_ = msg.Nack(false, true)
				return
			}
		}
	}
}

func (f *amqpFeed) settler(userID string, msg amqp.Delivery) func(processed bool) {
	return func(processed bool) {
		var err error
		if processed {
			err = msg.Ack(false)
		} else {
			err = msg.Nack(false, true)
		}
		if err != nil {
			f.logger.Warn("Failed to settle delivery",
				zap.String("user_id", userID),
				zap.Bool("processed", processed),
				zap.Error(err),
			)
		}
	}
}

func (f *amqpFeed) consume(ch *amqp.Channel, userID string) (<-chan amqp.Delivery, error) {
	if err := ch.Qos(f.bufferSize, 0, false); err != nil {
		return nil, fmt.Errorf("failed to set QoS: %w", err)
	}

	queue, err := ch.QueueDeclare(
		f.queuePrefix+userID,
		true,  // durable
		false, // auto-delete
		false, // exclusive
		false, // no-wait
		nil,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to declare queue: %w", err)
	}

	if err := ch.QueueBind(queue.Name, routingKey(userID), f.exchange, false, nil); err != nil {
		return nil, fmt.Errorf("failed to bind queue: %w", err)
	}

	msgs, err := ch.Consume(
		queue.Name,
		"",    // consumer tag
		false, // auto-ack
		false, // exclusive
		false, // no-local
		false, // no-wait
		nil,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to register consumer: %w", err)
	}
	return msgs, nil
}

// Publish implements Feed
func (f *amqpFeed) Publish(ctx context.Context, update models.CounterUpdate) error {
	body, err := EncodeUpdate(update)
	if err != nil {
		return err
	}

	f.pubMu.Lock()
	defer f.pubMu.Unlock()

	return f.pubCh.PublishWithContext(ctx,
		f.exchange,
		routingKey(update.UserID),
		false, // mandatory
		false, // immediate
		amqp.Publishing{
			ContentType:  "application/json",
			DeliveryMode: amqp.Persistent,
			Body:         body,
		},
	)
}

// Close implements Feed
func (f *amqpFeed) Close() error {
	f.pubMu.Lock()
	if f.pubCh != nil {
		if err := f.pubCh.Close(); err != nil {
			f.logger.Error("failed to close RabbitMQ channel", zap.Error(err))
		}
	}
	f.pubMu.Unlock()

	if err := f.conn.Close(); err != nil {
		f.logger.Error("failed to close RabbitMQ connection", zap.Error(err))
		return err
	}
	return nil
}
