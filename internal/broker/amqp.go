package broker

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
)

const (
	backoffInitial    = 5 * time.Second
	backoffMaxRetries = 5
)

// AMQPConfig carries the connection parameters for the production broker.
type AMQPConfig struct {
	Host      string
	Port      string
	User      string
	Pass      string
	VHost     string
	QueueName string
}

func (c AMQPConfig) url() string {
	return fmt.Sprintf("amqp://%s:%s@%s:%s%s", c.User, c.Pass, c.Host, c.Port, c.VHost)
}

// AMQPBroker is the production Broker adapter, backed by RabbitMQ.
type AMQPBroker struct {
	cfg   AMQPConfig
	conn  *amqp.Connection
	ch    *amqp.Channel
	queue string
}

// Connect dials RabbitMQ with bounded linear backoff: 5s, 10s, 15s, ... up
// to backoffMaxRetries attempts, declaring the queue durable before
// returning. The heartbeat is 600s so a slow consumer doesn't trip the
// connection watchdog mid-job, and dialing times out after 300s. No
// blocked-connection timeout is set.
func Connect(cfg AMQPConfig) (*AMQPBroker, error) {
	var lastErr error
	for attempt := 1; attempt <= backoffMaxRetries; attempt++ {
		conn, err := amqp.DialConfig(cfg.url(), amqp.Config{
			Heartbeat: 600 * time.Second,
			Dial:      amqp.DefaultDial(300 * time.Second),
		})
		if err == nil {
			ch, chErr := conn.Channel()
			if chErr != nil {
				conn.Close()
				lastErr = chErr
			} else {
				if qErr := ch.Qos(1, 0, false); qErr != nil {
					ch.Close()
					conn.Close()
					return nil, fmt.Errorf("set qos: %v", qErr)
				}
				if _, dErr := ch.QueueDeclare(cfg.QueueName, true, false, false, false, nil); dErr != nil {
					ch.Close()
					conn.Close()
					return nil, fmt.Errorf("declare queue: %v", dErr)
				}
				return &AMQPBroker{cfg: cfg, conn: conn, ch: ch, queue: cfg.QueueName}, nil
			}
		} else {
			lastErr = err
		}

		log.Printf("[Broker] connect attempt %d/%d failed: %v", attempt, backoffMaxRetries, lastErr)
		if attempt < backoffMaxRetries {
			time.Sleep(time.Duration(attempt) * backoffInitial)
		}
	}
	return nil, fmt.Errorf("%w: %v", ErrUnavailable, lastErr)
}

func (b *AMQPBroker) Publish(ctx context.Context, transactionID string) error {
	body, err := json.Marshal(map[string]string{"transaction_id": transactionID})
	if err != nil {
		return err
	}
	return b.ch.PublishWithContext(ctx, "", b.queue, false, false, amqp.Publishing{
		ContentType:  "application/json",
		DeliveryMode: amqp.Persistent,
		Body:         body,
	})
}

func (b *AMQPBroker) Consume(ctx context.Context) (<-chan Delivery, error) {
	msgs, err := b.ch.Consume(b.queue, "", false, false, false, false, nil)
	if err != nil {
		return nil, fmt.Errorf("consume: %v", err)
	}
	out := make(chan Delivery)
	go func() {
		defer close(out)
		for {
			select {
			case <-ctx.Done():
				return
			case msg, ok := <-msgs:
				if !ok {
					return
				}
				var payload struct {
					TransactionID string `json:"transaction_id"`
				}
				if err := json.Unmarshal(msg.Body, &payload); err != nil {
					log.Printf("[Broker] dropping malformed message: %v", err)
					_ = msg.Ack(false)
					continue
				}
				select {
				case out <- &amqpDelivery{msg: msg, txID: payload.TransactionID}:
				case <-ctx.Done():
					return
				}
			}
		}
	}()
	return out, nil
}

func (b *AMQPBroker) Close() error {
	if b.ch != nil {
		_ = b.ch.Close()
	}
	if b.conn != nil {
		return b.conn.Close()
	}
	return nil
}

type amqpDelivery struct {
	msg  amqp.Delivery
	txID string
}

func (d *amqpDelivery) TransactionID() string { return d.txID }
func (d *amqpDelivery) Ack() error             { return d.msg.Ack(false) }
func (d *amqpDelivery) Nack(requeue bool) error { return d.msg.Nack(false, requeue) }

var _ Broker = (*AMQPBroker)(nil)
