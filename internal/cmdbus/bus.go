// Package cmdbus connects the lander to an MQTT broker: commands arrive on
// subscribed topics and are dispatched through a per-topic handler table,
// and status lines are published back.
package cmdbus

import (
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	paho "github.com/eclipse/paho.mqtt.golang"

	"github.com/banshee-data/precision.land/internal/monitoring"
)

// Default topics and timeouts.
const (
	DefaultCommandTopic = "lander/command"
	DefaultStatusTopic  = "lander/status"
	DefaultClientID     = "precision-lander"
	DefaultTimeout      = 5 * time.Second
	DefaultStatusBuffer = 32
)

var (
	ErrNotConnected = errors.New("mqtt connection is unavailable")
	ErrTimeout      = errors.New("mqtt operation timed out")
)

// Client is the part of paho.Client the bus uses.
type Client interface {
	Connect() paho.Token
	Disconnect(quiesce uint)
	IsConnected() bool
	Subscribe(topic string, qos byte, callback paho.MessageHandler) paho.Token
	Publish(topic string, qos byte, retained bool, payload interface{}) paho.Token
}

// Handler processes one message received on a topic.
type Handler func(topic string, payload []byte)

// Options configure the broker connection.
type Options struct {
	Broker       string // e.g. tcp://localhost:1883
	ClientID     string
	Username     string
	Password     string
	CommandTopic string
	StatusTopic  string
	QoS          byte
	Timeout      time.Duration
	StatusBuffer int // status lines queued while the broker is slow
}

// Normalise fills unset fields with defaults.
func (o *Options) Normalise() {
	if o.ClientID == "" {
		o.ClientID = DefaultClientID
	}
	if o.CommandTopic == "" {
		o.CommandTopic = DefaultCommandTopic
	}
	if o.StatusTopic == "" {
		o.StatusTopic = DefaultStatusTopic
	}
	if o.QoS > 2 {
		o.QoS = 2
	}
	if o.Timeout <= 0 {
		o.Timeout = DefaultTimeout
	}
	if o.StatusBuffer <= 0 {
		o.StatusBuffer = DefaultStatusBuffer
	}
}

// Bus is an MQTT command/status channel. Status lines are published from a
// goroutine of their own so that Status never waits on the broker.
type Bus struct {
	client Client
	opts   Options

	mu       sync.RWMutex
	handlers map[string]Handler

	status    chan string
	dropped   atomic.Uint64
	startOnce sync.Once
	started   atomic.Bool
	stopOnce  sync.Once
	stopCh    chan struct{}
	done      chan struct{}
}

// New wraps an existing client. The client must already be configured; use
// Dial to build one from Options. Call Start before expecting status lines on
// the broker.
func New(client Client, opts Options) *Bus {
	opts.Normalise()
	b := newBus(opts)
	b.client = client
	return b
}

func newBus(opts Options) *Bus {
	return &Bus{
		opts:     opts,
		handlers: make(map[string]Handler),
		status:   make(chan string, opts.StatusBuffer),
		stopCh:   make(chan struct{}),
		done:     make(chan struct{}),
	}
}

// Dial connects to the broker described by opts. Subscriptions registered
// with Handle are restored on every reconnect.
func Dial(opts Options) (*Bus, error) {
	opts.Normalise()
	if opts.Broker == "" {
		return nil, errors.New("mqtt broker address is required")
	}
	b := newBus(opts)
	b.client = paho.NewClient(b.clientOptions())

	if err := wait(b.client.Connect(), opts.Timeout); err != nil {
		return nil, fmt.Errorf("failed to connect to %s: %w", opts.Broker, err)
	}
	monitoring.Logf("cmdbus: connected to %s as %s", opts.Broker, opts.ClientID)
	b.Start()
	return b, nil
}

func (b *Bus) clientOptions() *paho.ClientOptions {
	cfg := paho.NewClientOptions()
	cfg.AddBroker(b.opts.Broker)
	cfg.SetClientID(b.opts.ClientID)
	cfg.SetProtocolVersion(4)
	cfg.SetCleanSession(true)
	cfg.SetKeepAlive(30 * time.Second)
	cfg.SetAutoReconnect(true)
	cfg.SetMaxReconnectInterval(10 * time.Second)
	cfg.SetConnectTimeout(b.opts.Timeout)
	if b.opts.Username != "" {
		cfg.SetUsername(b.opts.Username)
	}
	if b.opts.Password != "" {
		cfg.SetPassword(b.opts.Password)
	}
	cfg.SetOnConnectHandler(func(paho.Client) { b.resubscribe() })
	cfg.SetConnectionLostHandler(func(_ paho.Client, err error) {
		monitoring.Warnf("cmdbus: connection lost: %v", err)
	})
	cfg.SetDefaultPublishHandler(b.onMessage)
	return cfg
}

// Options returns the normalised options.
func (b *Bus) Options() Options { return b.opts }

// Handle registers h for topic, replacing any previous handler, and
// subscribes when connected.
func (b *Bus) Handle(topic string, h Handler) error {
	if h == nil {
		return errors.New("nil handler")
	}
	b.mu.Lock()
	b.handlers[topic] = h
	b.mu.Unlock()

	if !b.client.IsConnected() {
		return nil
	}
	return b.subscribe(topic)
}

func (b *Bus) subscribe(topic string) error {
	if err := wait(b.client.Subscribe(topic, b.opts.QoS, b.onMessage), b.opts.Timeout); err != nil {
		return fmt.Errorf("failed to subscribe %s: %w", topic, err)
	}
	return nil
}

func (b *Bus) resubscribe() {
	b.mu.RLock()
	topics := make([]string, 0, len(b.handlers))
	for t := range b.handlers {
		topics = append(topics, t)
	}
	b.mu.RUnlock()

	for _, t := range topics {
		if err := b.subscribe(t); err != nil {
			monitoring.Logf("cmdbus: %v", err)
		}
	}
}

func (b *Bus) onMessage(_ paho.Client, m paho.Message) {
	b.Dispatch(m.Topic(), m.Payload())
}

// Dispatch routes a message to the handler registered for topic.
func (b *Bus) Dispatch(topic string, payload []byte) {
	b.mu.RLock()
	h, ok := b.handlers[topic]
	b.mu.RUnlock()
	if !ok {
		monitoring.Logf("cmdbus: no handler for topic %s", topic)
		return
	}
	h(topic, payload)
}

// Publish sends payload to topic and waits for the broker to accept it.
func (b *Bus) Publish(topic string, payload []byte) error {
	if !b.client.IsConnected() {
		return ErrNotConnected
	}
	if err := wait(b.client.Publish(topic, b.opts.QoS, false, payload), b.opts.Timeout); err != nil {
		return fmt.Errorf("failed to publish to %s: %w", topic, err)
	}
	return nil
}

// Start launches the status publisher. Later calls do nothing.
func (b *Bus) Start() {
	b.startOnce.Do(func() {
		b.started.Store(true)
		go b.publishStatus()
	})
}

// Status queues msg for the status topic without blocking. When the queue is
// full the line is dropped and counted.
func (b *Bus) Status(msg string) {
	select {
	case b.status <- msg:
	default:
		if n := b.dropped.Add(1); n == 1 || n%100 == 0 {
			monitoring.Warnf("cmdbus: status queue full, %d lines dropped", n)
		}
	}
}

// Dropped returns how many status lines were discarded.
func (b *Bus) Dropped() uint64 { return b.dropped.Load() }

func (b *Bus) publishStatus() {
	defer close(b.done)
	for {
		select {
		case msg := <-b.status:
			b.sendStatus(msg)
		case <-b.stopCh:
			// Flush what is queued unless the broker has stopped answering.
			for {
				select {
				case msg := <-b.status:
					if errors.Is(b.sendStatus(msg), ErrTimeout) {
						return
					}
				default:
					return
				}
			}
		}
	}
}

func (b *Bus) sendStatus(msg string) error {
	err := b.Publish(b.opts.StatusTopic, []byte(msg))
	if err != nil {
		monitoring.Logf("cmdbus: status not sent: %v", err)
	}
	return err
}

// Close flushes queued status lines, stops the publisher and disconnects.
func (b *Bus) Close() {
	b.stopOnce.Do(func() { close(b.stopCh) })
	if b.started.Load() {
		<-b.done
	}
	if b.client.IsConnected() {
		b.client.Disconnect(250)
	}
}

func wait(tok paho.Token, timeout time.Duration) error {
	if !tok.WaitTimeout(timeout) {
		return ErrTimeout
	}
	return tok.Error()
}
