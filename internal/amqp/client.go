package amqp

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/rabbitmq/amqp091-go"

	applog "optium/internal/log"
)

// Circuit breaker states
const (
	StateClosed int32 = iota
	StateOpen
	StateHalfOpen
)

const (
	maxFailures    = 5
	openTimeout    = 30 * time.Second
	publishTimeout = 5 * time.Second
)

var (
	// ErrCircuitOpen is returned by PublishExport while the broker is considered down.
	ErrCircuitOpen = errors.New("circuit breaker is open")

	// ErrDropMessage marks handler errors that retrying cannot fix. Such
	// messages are rejected without requeue.
	ErrDropMessage = errors.New("drop message")
)

// Client publishes and consumes export requests on a durable direct exchange.
// The connection is dialled lazily with exponential backoff and redialled
// after connection errors.
type Client struct {
	url          string
	exchangeName string
	queueName    string

	mu      sync.Mutex
	conn    *amqp091.Connection
	channel *amqp091.Channel

	state        int32
	failureCount int64
	lastFailure  time.Time

	// MaxDialElapsed bounds the retries of a single connect attempt.
	MaxDialElapsed time.Duration
	// RedeliveryDelay is waited before requeueing a message that has
	// already been delivered once.
	RedeliveryDelay time.Duration
	// MaxDeliveries drops a failing message once the broker reports that
	// many deliveries (x-delivery-count, quorum queues). Zero disables it.
	MaxDeliveries int64
}

// NewClient connects to the broker and declares the exchange and queue.
func NewClient(ctx context.Context, url, exchangeName, queueName string) (*Client, error) {
	client := &Client{
		url:            url,
		exchangeName:   exchangeName,
		queueName:      queueName,
		MaxDialElapsed:  time.Minute,
		RedeliveryDelay: 5 * time.Second,
		MaxDeliveries:   10,
	}
	if err := client.connect(ctx); err != nil {
		return nil, err
	}
	return client, nil
}

func (c *Client) dialBackoff(ctx context.Context) backoff.BackOff {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = 500 * time.Millisecond
	b.MaxInterval = 10 * time.Second
	b.MaxElapsedTime = c.MaxDialElapsed
	return backoff.WithContext(b, ctx)
}

// connect dials and sets up topology. Callers must not hold c.mu.
func (c *Client) connect(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.conn != nil && !c.conn.IsClosed() {
		return nil
	}

	attempt := 0
	op := func() error {
		attempt++
		conn, err := amqp091.Dial(c.url)
		if err != nil {
			logFor(ctx).WarnContext(ctx, "AMQP dial failed", "attempt", attempt, applog.FieldError, err)
			return fmt.Errorf("dial AMQP: %w", err)
		}
		channel, err := conn.Channel()
		if err != nil {
			conn.Close()
			return fmt.Errorf("open channel: %w", err)
		}
		if err := setup(channel, c.exchangeName, c.queueName); err != nil {
			channel.Close()
			conn.Close()
			return backoff.Permanent(fmt.Errorf("setup exchange and queue: %w", err))
		}
		c.conn = conn
		c.channel = channel
		return nil
	}

	if err := backoff.Retry(op, c.dialBackoff(ctx)); err != nil {
		return err
	}
	logFor(ctx).InfoContext(ctx, "Connected to AMQP broker",
		"exchange", c.exchangeName,
		"queue", c.queueName,
		"attempts", attempt)
	return nil
}

func setup(channel *amqp091.Channel, exchangeName, queueName string) error {
	// Declare exchange
	err := channel.ExchangeDeclare(
		exchangeName, // name
		"direct",     // type
		true,         // durable
		false,        // auto-deleted
		false,        // internal
		false,        // no-wait
		nil,          // arguments
	)
	if err != nil {
		return fmt.Errorf("declare exchange: %w", err)
	}

	// Declare queue
	_, err = channel.QueueDeclare(
		queueName, // name
		true,      // durable
		false,     // delete when unused
		false,     // exclusive
		false,     // no-wait
		nil,       // arguments
	)
	if err != nil {
		return fmt.Errorf("declare queue: %w", err)
	}

	// Routing key is the queue name
	if err := channel.QueueBind(queueName, queueName, exchangeName, false, nil); err != nil {
		return fmt.Errorf("bind queue: %w", err)
	}
	return nil
}

// PublishExport publishes a persistent export request.
func (c *Client) PublishExport(ctx context.Context, msg *ExportRequestMessage) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if c.isCircuitOpen() {
		return fmt.Errorf("publish export %s: %w", msg.JobID, ErrCircuitOpen)
	}

	body, err := msg.ToJSON()
	if err != nil {
		return fmt.Errorf("marshal message: %w", err)
	}

	if err := c.connect(ctx); err != nil {
		c.recordFailure()
		return fmt.Errorf("connect: %w", err)
	}

	ctx, cancel := context.WithTimeout(ctx, publishTimeout)
	defer cancel()

	c.mu.Lock()
	channel := c.channel
	c.mu.Unlock()

	err = channel.PublishWithContext(
		ctx,
		c.exchangeName, // exchange
		c.queueName,    // routing key
		false,          // mandatory
		false,          // immediate
		amqp091.Publishing{
			ContentType:  "application/json",
			DeliveryMode: amqp091.Persistent,
			MessageId:    msg.JobID.String(),
			Timestamp:    time.Now(),
			Body:         body,
		},
	)
	if err != nil {
		c.recordFailure()
		if isConnectionError(err) {
			c.resetConnection()
		}
		return fmt.Errorf("publish message: %w", err)
	}
	c.recordSuccess()

	logFor(ctx).InfoContext(ctx, "Published export request",
		applog.FieldOperation, applog.OpPublish,
		applog.FieldJobID, msg.JobID.String(),
		applog.FieldEntityCount, len(msg.EntityIDs),
		applog.FieldIncludeMonthly, msg.IncludeMonthly,
		"exchange", c.exchangeName,
		"queue", c.queueName)
	return nil
}

// ConsumeExports delivers export requests to handler until ctx is done.
// Malformed messages and ErrDropMessage failures are dropped, other handler
// failures are requeued (after RedeliveryDelay on repeated failures, and
// dropped once MaxDeliveries is reached).
func (c *Client) ConsumeExports(ctx context.Context, handler func(context.Context, *ExportRequestMessage) error) error {
	if err := c.connect(ctx); err != nil {
		return fmt.Errorf("connect: %w", err)
	}

	c.mu.Lock()
	channel := c.channel
	c.mu.Unlock()

	// One export at a time per worker
	if err := channel.Qos(1, 0, false); err != nil {
		return fmt.Errorf("set qos: %w", err)
	}

	msgs, err := channel.Consume(
		c.queueName, // queue
		"",          // consumer
		false,       // auto-ack (we want manual ack)
		false,       // exclusive
		false,       // no-local
		false,       // no-wait
		nil,         // args
	)
	if err != nil {
		return fmt.Errorf("start consuming: %w", err)
	}

	logFor(ctx).InfoContext(ctx, "Started consuming export requests",
		applog.FieldOperation, applog.OpConsume,
		"queue", c.queueName)

	for {
		select {
		case <-ctx.Done():
			logFor(ctx).InfoContext(ctx, "Stopping message consumption", "reason", ctx.Err())
			return ctx.Err()
		case delivery, ok := <-msgs:
			if !ok {
				return fmt.Errorf("message channel closed")
			}

			c.handleDelivery(ctx, delivery, handler)
		}
	}
}

// handleDelivery runs handler on one delivery and settles it. A message that
// fails again after a redelivery is requeued only after RedeliveryDelay.
func (c *Client) handleDelivery(ctx context.Context, delivery amqp091.Delivery, handler func(context.Context, *ExportRequestMessage) error) {
	logger := logFor(ctx)

	msg, err := ExportRequestMessageFromJSON(delivery.Body)
	if err != nil {
		logger.ErrorContext(ctx, "Failed to unmarshal message", applog.FieldError, err)
		delivery.Nack(false, false)
		return
	}

	err = handler(ctx, msg)
	if err == nil {
		delivery.Ack(false)
		logger.InfoContext(ctx, "Export request processed", applog.FieldJobID, msg.JobID.String())
		return
	}

	requeue := !errors.Is(err, ErrDropMessage)
	deliveries := deliveryCount(delivery)
	if requeue && c.MaxDeliveries > 0 && deliveries >= c.MaxDeliveries {
		requeue = false
	}
	logger.ErrorContext(ctx, "Failed to handle export request",
		applog.FieldError, err,
		applog.FieldJobID, msg.JobID.String(),
		"redelivered", delivery.Redelivered,
		"deliveries", deliveries,
		"requeue", requeue)

	if requeue && delivery.Redelivered && c.RedeliveryDelay > 0 {
		timer := time.NewTimer(c.RedeliveryDelay)
		select {
		case <-timer.C:
		case <-ctx.Done():
			timer.Stop()
		}
	}
	delivery.Nack(false, requeue)
}

// deliveryCount returns the broker's x-delivery-count header, 0 when absent.
func deliveryCount(d amqp091.Delivery) int64 {
	switch v := d.Headers["x-delivery-count"].(type) {
	case int64:
		return v
	case int32:
		return int64(v)
	case int:
		return int64(v)
	}
	return 0
}

// Healthy reports whether the connection is up and the circuit closed.
func (c *Client) Healthy() bool {
	c.mu.Lock()
	up := c.conn != nil && !c.conn.IsClosed()
	c.mu.Unlock()
	return up && atomic.LoadInt32(&c.state) == StateClosed
}

func (c *Client) resetConnection() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.channel != nil {
		c.channel.Close()
		c.channel = nil
	}
	if c.conn != nil {
		c.conn.Close()
		c.conn = nil
	}
}

func (c *Client) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.channel != nil {
		c.channel.Close()
		c.channel = nil
	}
	if c.conn != nil {
		err := c.conn.Close()
		c.conn = nil
		return err
	}
	return nil
}

// isCircuitOpen moves an open circuit to half-open once openTimeout has passed.
func (c *Client) isCircuitOpen() bool {
	if atomic.LoadInt32(&c.state) != StateOpen {
		return false
	}
	c.mu.Lock()
	last := c.lastFailure
	c.mu.Unlock()
	if time.Since(last) > openTimeout {
		atomic.CompareAndSwapInt32(&c.state, StateOpen, StateHalfOpen)
		return false
	}
	return true
}

func (c *Client) recordSuccess() {
	atomic.StoreInt64(&c.failureCount, 0)
	atomic.StoreInt32(&c.state, StateClosed)
}

func (c *Client) recordFailure() {
	c.mu.Lock()
	c.lastFailure = time.Now()
	c.mu.Unlock()

	failures := atomic.AddInt64(&c.failureCount, 1)
	if failures >= maxFailures || atomic.LoadInt32(&c.state) == StateHalfOpen {
		if atomic.SwapInt32(&c.state, StateOpen) != StateOpen {
			slog.Warn("AMQP circuit breaker opened",
				append(applog.NewFields().WithComponent(applog.ComponentAMQP).Args(), "failures", failures)...)
		}
	}
}

func logFor(ctx context.Context) *applog.Logger {
	return applog.FromContext(ctx).WithComponent(applog.ComponentAMQP)
}

func isConnectionError(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, amqp091.ErrClosed) {
		return true
	}
	msg := strings.ToLower(err.Error())
	for _, s := range []string{"connection", "eof", "broken pipe", "channel/connection is not open"} {
		if strings.Contains(msg, s) {
			return true
		}
	}
	return false
}
