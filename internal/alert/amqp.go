package alert

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/rabbitmq/amqp091-go"

	"github.com/hazz-dev/uptimewatch/internal/monitor"
)

// DefaultRoutingKey prefixes the routing key of published events; the
// event kind is appended (uptimewatch.down, uptimewatch.recovery).
const DefaultRoutingKey = "uptimewatch"

// AMQP publishes events as JSON to a topic exchange with publisher
// confirms.
type AMQP struct {
	conn       *amqp091.Connection
	ch         *amqp091.Channel
	confirms   <-chan amqp091.Confirmation
	exchange   string
	routingKey string
	mention    string

	// One publish and its confirm are paired at a time.
	mu sync.Mutex
}

// NewAMQP dials url, declares exchange as a durable topic exchange and puts
// the channel into confirm mode. It returns nil when url is empty.
func NewAMQP(url, exchange, routingKey, mention string) (*AMQP, error) {
	if url == "" {
		return nil, nil
	}
	if routingKey == "" {
		routingKey = DefaultRoutingKey
	}

	conn, err := amqp091.Dial(url)
	if err != nil {
		return nil, fmt.Errorf("connecting to amqp broker: %w", err)
	}
	ch, err := conn.Channel()
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("opening amqp channel: %w", err)
	}
	if exchange != "" {
		if err := ch.ExchangeDeclare(exchange, "topic", true, false, false, false, nil); err != nil {
			conn.Close()
			return nil, fmt.Errorf("declaring exchange %q: %w", exchange, err)
		}
	}
	if err := ch.Confirm(false); err != nil {
		conn.Close()
		return nil, fmt.Errorf("enabling publisher confirms: %w", err)
	}

	return &AMQP{
		conn:       conn,
		ch:         ch,
		confirms:   ch.NotifyPublish(make(chan amqp091.Confirmation, 16)),
		exchange:   exchange,
		routingKey: routingKey,
		mention:    mention,
	}, nil
}

func (a *AMQP) Notify(ctx context.Context, ev monitor.Event) error {
	body, err := json.Marshal(newWebhookPayload(ev, a.mention))
	if err != nil {
		return fmt.Errorf("marshaling amqp event: %w", err)
	}

	a.mu.Lock()
	defer a.mu.Unlock()

	err = a.ch.PublishWithContext(ctx, a.exchange, a.routingKey+"."+string(ev.Kind), false, false, amqp091.Publishing{
		ContentType:  "application/json",
		DeliveryMode: amqp091.Persistent,
		MessageId:    ev.ID,
		Timestamp:    ev.OccurredAt,
		Type:         string(ev.Kind),
		Body:         body,
	})
	if err != nil {
		return fmt.Errorf("publishing event: %w", err)
	}

	select {
	case confirm, ok := <-a.confirms:
		if !ok {
			return errors.New("amqp channel closed before confirm")
		}
		if !confirm.Ack {
			return errors.New("broker nacked event")
		}
		return nil
	case <-ctx.Done():
		return fmt.Errorf("waiting for publish confirm: %w", ctx.Err())
	case <-time.After(5 * time.Second):
		return errors.New("publish confirm timeout")
	}
}

// Close closes the channel and connection.
func (a *AMQP) Close() error {
	if err := a.ch.Close(); err != nil && !errors.Is(err, amqp091.ErrClosed) {
		a.conn.Close()
		return err
	}
	return a.conn.Close()
}
