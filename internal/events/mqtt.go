package events

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
)

const (
	publishQueue   = 256
	publishTimeout = 5 * time.Second
	drainTimeout   = 2 * time.Second
)

type MQTTConfig struct {
	Broker      string
	Port        int
	ClientID    string
	TopicPrefix string
}

// MQTT publishes events to a broker under <prefix>/<device>/<type>.
// Measurements are retained so late subscribers see the last reading.
// Emit only queues; a single goroutine publishes, so a slow broker never
// holds up the caller.
type MQTT struct {
	client    mqtt.Client
	cfg       MQTTConfig
	logger    *slog.Logger
	mu        sync.RWMutex
	connected bool

	queue    chan outgoing
	stopCh   chan struct{}
	stopOnce sync.Once
	wg       sync.WaitGroup
}

type outgoing struct {
	topic    string
	retained bool
	payload  []byte
	id       string
}

func NewMQTT(cfg MQTTConfig, logger *slog.Logger) *MQTT {
	m := newMQTT(cfg, nil, logger)

	opts := mqtt.NewClientOptions()
	opts.AddBroker(fmt.Sprintf("tcp://%s:%d", cfg.Broker, cfg.Port))
	opts.SetClientID(cfg.ClientID)
	opts.SetCleanSession(true)

	opts.SetAutoReconnect(true)
	opts.SetConnectRetry(true)
	opts.SetConnectRetryInterval(5 * time.Second)
	opts.SetMaxReconnectInterval(60 * time.Second)

	opts.SetKeepAlive(30 * time.Second)
	opts.SetPingTimeout(10 * time.Second)

	opts.SetOnConnectHandler(func(_ mqtt.Client) {
		m.setConnected(true)
		logger.Info("mqtt connected", "broker", cfg.Broker, "port", cfg.Port)
	})
	opts.SetConnectionLostHandler(func(_ mqtt.Client, err error) {
		m.setConnected(false)
		logger.Warn("mqtt connection lost", "error", err)
	})

	m.client = mqtt.NewClient(opts)
	m.start()
	return m
}

func newMQTT(cfg MQTTConfig, client mqtt.Client, logger *slog.Logger) *MQTT {
	return &MQTT{
		client: client,
		cfg:    cfg,
		logger: logger,
		queue:  make(chan outgoing, publishQueue),
		stopCh: make(chan struct{}),
	}
}

func (m *MQTT) start() {
	m.wg.Add(1)
	go m.run()
}

func (m *MQTT) run() {
	defer m.wg.Done()
	for {
		select {
		case <-m.stopCh:
			m.drain()
			return
		case o := <-m.queue:
			m.publish(o)
		}
	}
}

// drain publishes what is still queued at Close, within drainTimeout.
func (m *MQTT) drain() {
	deadline := time.Now().Add(drainTimeout)
	for {
		select {
		case o := <-m.queue:
			if time.Now().After(deadline) {
				m.logger.Warn("mqtt queue dropped at close", "pending", len(m.queue)+1)
				return
			}
			m.publish(o)
		default:
			return
		}
	}
}

func (m *MQTT) publish(o outgoing) {
	token := m.client.Publish(o.topic, 1, o.retained, o.payload)
	if !token.WaitTimeout(publishTimeout) {
		m.logger.Warn("mqtt publish timeout", "topic", o.topic)
		return
	}
	if err := token.Error(); err != nil {
		m.logger.Error("failed to publish event", "topic", o.topic, "error", err)
		return
	}
	m.logger.Debug("published event", "topic", o.topic, "event_id", o.id)
}

// Connect waits for the initial broker connection, honoring ctx and Close.
func (m *MQTT) Connect(ctx context.Context) error {
	select {
	case <-m.stopCh:
		return fmt.Errorf("mqtt sink closed")
	default:
	}
	if m.IsConnected() {
		return nil
	}

	token := m.client.Connect()
	const poll = 200 * time.Millisecond
	for {
		if token.WaitTimeout(poll) {
			if err := token.Error(); err != nil {
				return fmt.Errorf("mqtt connect: %w", err)
			}
			return nil
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-m.stopCh:
			return fmt.Errorf("mqtt sink closed")
		default:
		}
	}
}

func (m *MQTT) Emit(e Event) error {
	if !m.IsConnected() {
		return fmt.Errorf("mqtt client not connected")
	}

	data, err := json.Marshal(e)
	if err != nil {
		return fmt.Errorf("marshal %s event: %w", e.Type, err)
	}

	o := outgoing{topic: Topic(m.cfg.TopicPrefix, e), retained: e.Type == TypeMeasurement, payload: data, id: e.ID}
	select {
	case m.queue <- o:
		return nil
	default:
		return fmt.Errorf("mqtt queue full, dropped %s event", e.Type)
	}
}

func (m *MQTT) IsConnected() bool {
	m.mu.RLock()
	connected := m.connected
	m.mu.RUnlock()
	return connected && m.client.IsConnected()
}

// Close flushes queued events and disconnects. It is idempotent.
func (m *MQTT) Close() {
	m.stopOnce.Do(func() { close(m.stopCh) })
	m.wg.Wait()
	if m.client != nil {
		m.client.Disconnect(250)
	}
	m.setConnected(false)
	m.logger.Info("mqtt disconnected")
}

func (m *MQTT) setConnected(v bool) {
	m.mu.Lock()
	m.connected = v
	m.mu.Unlock()
}

// Topic builds the publish topic for e. Events without a device go under
// "scanner". Address colons are replaced since they read poorly in topics.
func Topic(prefix string, e Event) string {
	device := e.DeviceID
	if device == "" && e.Device != nil {
		device = e.Device.ID
	}
	if device == "" {
		device = "scanner"
	}
	device = strings.ToLower(strings.ReplaceAll(device, ":", ""))
	prefix = strings.TrimSuffix(prefix, "/")
	if prefix == "" {
		return device + "/" + string(e.Type)
	}
	return prefix + "/" + device + "/" + string(e.Type)
}
