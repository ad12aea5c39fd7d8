// Package broker wraps github.com/rabbitmq/amqp091-go with the connection
// state machine described by the ingestion spec: a single authoritative
// channel per process, one reconnect timer guard, and an observable "ready"
// state the HTTP layer can check before accepting work.
package broker

import (
	"context"
	"errors"
	"sync"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/rs/zerolog"
)

// State is the broker connection's lifecycle state.
type State int

const (
	StateDisconnected State = iota
	StateConnecting
	StateReady
	StateClosed
)

func (s State) String() string {
	switch s {
	case StateDisconnected:
		return "disconnected"
	case StateConnecting:
		return "connecting"
	case StateReady:
		return "ready"
	case StateClosed:
		return "closed"
	default:
		return "unknown"
	}
}

const (
	initialBackoff = 2 * time.Second
	maxBackoff     = 30 * time.Second
)

// Topology is declared (or re-declared) every time a channel is created,
// so it survives reconnects.
type Topology func(ch *amqp.Channel) error

// Client owns one AMQP connection and channel, with automatic reconnect.
type Client struct {
	url      string
	topology Topology
	log      zerolog.Logger

	mu             sync.RWMutex
	state          State
	conn           *amqp.Connection
	channel        *amqp.Channel
	attempt        int
	lastConnected  time.Time
	reconnectTimer *time.Timer
	closed         bool
}

// Options configures a new Client.
type Options struct {
	URL      string
	Topology Topology
	Log      zerolog.Logger
}

// Connect dials the broker, opens a channel, declares topology, and starts
// the background reconnect watcher. The initial dial is synchronous so
// callers can fail startup fast; subsequent reconnects happen in the
// background per the state machine below.
func Connect(opts Options) (*Client, error) {
	c := &Client{
		url:      opts.URL,
		topology: opts.Topology,
		log:      opts.Log.With().Str("component", "broker").Logger(),
		state:    StateDisconnected,
	}
	if err := c.dial(); err != nil {
		return nil, err
	}
	return c, nil
}

// dial performs one connection attempt, declares topology, and wires the
// connection-close notifier that drives reconnection.
func (c *Client) dial() error {
	c.mu.Lock()
	c.state = StateConnecting
	c.mu.Unlock()

	conn, err := amqp.Dial(c.url)
	if err != nil {
		c.mu.Lock()
		c.state = StateDisconnected
		c.mu.Unlock()
		return err
	}

	ch, err := conn.Channel()
	if err != nil {
		conn.Close()
		c.mu.Lock()
		c.state = StateDisconnected
		c.mu.Unlock()
		return err
	}

	if c.topology != nil {
		if err := c.topology(ch); err != nil {
			ch.Close()
			conn.Close()
			c.mu.Lock()
			c.state = StateDisconnected
			c.mu.Unlock()
			return err
		}
	}

	closeNotify := conn.NotifyClose(make(chan *amqp.Error, 1))

	c.mu.Lock()
	c.conn = conn
	c.channel = ch
	c.state = StateReady
	c.attempt = 0
	c.lastConnected = time.Now()
	c.mu.Unlock()

	c.log.Info().Msg("broker connected, channel ready")

	go c.watchClose(closeNotify)
	return nil
}

// watchClose waits for the connection to close (cleanly or not) and
// schedules a reconnect, unless the client has been explicitly closed.
func (c *Client) watchClose(notify chan *amqp.Error) {
	err, ok := <-notify
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	c.state = StateDisconnected
	c.mu.Unlock()

	if ok && err != nil {
		c.log.Warn().Err(err).Msg("broker connection closed, scheduling reconnect")
	} else {
		c.log.Warn().Msg("broker connection closed, scheduling reconnect")
	}
	c.scheduleReconnect()
}

// scheduleReconnect arms the single reconnect timer if one is not already
// pending. backoff = min(30s, 2^attempt seconds) starting at 2s.
func (c *Client) scheduleReconnect() {
	c.mu.Lock()
	if c.closed || c.reconnectTimer != nil {
		c.mu.Unlock()
		return
	}
	attempt := c.attempt
	c.attempt++
	c.mu.Unlock()

	backoff := backoffFor(attempt)

	c.log.Info().Dur("backoff", backoff).Int("attempt", attempt+1).Msg("scheduling broker reconnect")

	c.mu.Lock()
	c.reconnectTimer = time.AfterFunc(backoff, c.reconnect)
	c.mu.Unlock()
}

// backoffFor computes the reconnect delay for a given attempt number
// (0-indexed): min(30s, 2^attempt * 2s).
func backoffFor(attempt int) time.Duration {
	if attempt > 10 { // guard against overflow of the bit shift
		return maxBackoff
	}
	backoff := initialBackoff << attempt
	if backoff > maxBackoff || backoff <= 0 {
		backoff = maxBackoff
	}
	return backoff
}

func (c *Client) reconnect() {
	c.mu.Lock()
	c.reconnectTimer = nil
	closed := c.closed
	c.mu.Unlock()
	if closed {
		return
	}

	if err := c.dial(); err != nil {
		c.log.Warn().Err(err).Msg("broker reconnect attempt failed")
		c.scheduleReconnect()
	}
}

// Ready reports whether the channel is currently usable.
func (c *Client) Ready() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.state == StateReady && c.channel != nil
}

// CurrentState returns the current connection state.
func (c *Client) CurrentState() State {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.state
}

// Channel returns the live channel, or an error if the broker is not ready.
func (c *Client) Channel() (*amqp.Channel, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.state != StateReady || c.channel == nil {
		return nil, ErrNotReady
	}
	return c.channel, nil
}

// ErrNotReady is returned when an operation is attempted while the broker
// channel has not been established.
var ErrNotReady = errors.New("broker: channel not ready")

// Close stops the reconnect loop and tears down the connection.
func (c *Client) Close() error {
	c.mu.Lock()
	c.closed = true
	c.state = StateClosed
	if c.reconnectTimer != nil {
		c.reconnectTimer.Stop()
		c.reconnectTimer = nil
	}
	ch, conn := c.channel, c.conn
	c.channel, c.conn = nil, nil
	c.mu.Unlock()

	var err error
	if ch != nil {
		err = ch.Close()
	}
	if conn != nil {
		if cErr := conn.Close(); cErr != nil && err == nil {
			err = cErr
		}
	}
	return err
}

// Consumer wraps amqp091-go channel consumption with prefetch and a
// cancellable context, so Stop() can be awaited from the owning service's
// shutdown sequence.
type Consumer struct {
	client   *Client
	queue    string
	prefetch int
	log      zerolog.Logger

	mu      sync.Mutex
	cancel  context.CancelFunc
	stopped chan struct{}
}

// NewConsumer builds a consumer bound to queue with the given prefetch.
func NewConsumer(client *Client, queue string, prefetch int, log zerolog.Logger) *Consumer {
	return &Consumer{client: client, queue: queue, prefetch: prefetch, log: log.With().Str("queue", queue).Logger()}
}

// Handler processes one delivery and returns an error on failure; the
// classify function passed to Run turns that error into a Disposition.
type Handler func(ctx context.Context, d amqp.Delivery) error

// Run consumes deliveries from the queue until ctx is cancelled, applying
// prefetch=c.prefetch, and dispatching each delivery to handle. ACK/NACK is
// issued exactly once per delivery based on handle's error classification,
// performed by the caller's classify function — Run itself only sequences
// delivery -> handle -> (ack|nack), it does not classify errors.
func (c *Consumer) Run(ctx context.Context, handle Handler, classify func(error) Disposition) error {
	ch, err := c.client.Channel()
	if err != nil {
		return err
	}
	if err := ch.Qos(c.prefetch, 0, false); err != nil {
		return err
	}

	deliveries, err := ch.Consume(c.queue, "", false, false, false, false, nil)
	if err != nil {
		return err
	}

	runCtx, cancel := context.WithCancel(ctx)
	c.mu.Lock()
	c.cancel = cancel
	c.stopped = make(chan struct{})
	c.mu.Unlock()
	defer close(c.stopped)

	for {
		select {
		case <-runCtx.Done():
			return nil
		case d, ok := <-deliveries:
			if !ok {
				return nil
			}
			c.handleOne(runCtx, d, handle, classify)
		}
	}
}

func (c *Consumer) handleOne(ctx context.Context, d amqp.Delivery, handle Handler, classify func(error) Disposition) {
	err := handle(ctx, d)
	if err == nil {
		if ackErr := d.Ack(false); ackErr != nil {
			c.log.Error().Err(ackErr).Msg("ack failed")
		}
		return
	}

	disp := classify(err)
	switch disp {
	case DispositionRequeue:
		c.log.Warn().Err(err).Msg("transient error, requeueing")
		if nErr := d.Nack(false, true); nErr != nil {
			c.log.Error().Err(nErr).Msg("nack(requeue) failed")
		}
	default:
		c.log.Error().Err(err).Msg("permanent error, discarding")
		if nErr := d.Nack(false, false); nErr != nil {
			c.log.Error().Err(nErr).Msg("nack(no-requeue) failed")
		}
	}
}

// Disposition is what to do with a delivery after a handler error.
type Disposition int

const (
	DispositionDrop Disposition = iota
	DispositionRequeue
)

// Stop cancels the consume loop and waits for the in-flight handler to
// finish, honoring the shutdown sequence in spec.md §5.
func (c *Consumer) Stop() {
	c.mu.Lock()
	cancel := c.cancel
	stopped := c.stopped
	c.mu.Unlock()
	if cancel == nil {
		return
	}
	cancel()
	if stopped != nil {
		<-stopped
	}
}
