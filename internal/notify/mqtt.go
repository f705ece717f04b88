package notify

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"

	"github.com/haasonsaas/switchboard/internal/failure"
)

// MQTTConfig configures MQTT event publishing.
type MQTTConfig struct {
	Enabled  bool   `yaml:"enabled"`
	Broker   string `yaml:"broker"`
	ClientID string `yaml:"client_id"`
	Topic    string `yaml:"topic"`
	QoS      byte   `yaml:"qos"`
	Username string `yaml:"username"`
	Password string `yaml:"password"`
}

// Publisher publishes a payload to a topic.
type Publisher interface {
	Publish(ctx context.Context, topic string, payload []byte) error
	Close() error
}

// PahoPublisher wraps a Paho MQTT client.
type PahoPublisher struct {
	client mqtt.Client
	qos    byte
}

// NewPahoPublisher creates and connects an MQTT publisher.
func NewPahoPublisher(cfg MQTTConfig) (*PahoPublisher, error) {
	clientID := cfg.ClientID
	if clientID == "" {
		clientID = "switchboard"
	}
	opts := mqtt.NewClientOptions().
		AddBroker(cfg.Broker).
		SetClientID(clientID).
		SetAutoReconnect(true).
		SetConnectRetry(true).
		SetConnectRetryInterval(5 * time.Second).
		SetMaxReconnectInterval(60 * time.Second)
	if cfg.Username != "" {
		opts.SetUsername(cfg.Username).SetPassword(cfg.Password)
	}

	return connectPublisher(mqtt.NewClient(opts), cfg, 10*time.Second)
}

// connectPublisher connects client within timeout. A failed client is
// disconnected so its connect-retry loop stops.
func connectPublisher(client mqtt.Client, cfg MQTTConfig, timeout time.Duration) (*PahoPublisher, error) {
	token := client.Connect()
	if !token.WaitTimeout(timeout) {
		client.Disconnect(0)
		return nil, fmt.Errorf("notify: connecting to MQTT broker %s: timed out", cfg.Broker)
	}
	if err := token.Error(); err != nil {
		client.Disconnect(0)
		return nil, fmt.Errorf("notify: connecting to MQTT broker %s: %w", cfg.Broker, err)
	}
	return &PahoPublisher{client: client, qos: cfg.QoS}, nil
}

// Publish sends payload and waits for the broker, bounded by ctx.
func (p *PahoPublisher) Publish(ctx context.Context, topic string, payload []byte) error {
	token := p.client.Publish(topic, p.qos, false, payload)
	select {
	case <-token.Done():
		return token.Error()
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Close disconnects from the broker.
func (p *PahoPublisher) Close() error {
	p.client.Disconnect(1000)
	return nil
}

// MQTTNotifier publishes notifications as JSON events.
type MQTTNotifier struct {
	pub   Publisher
	topic string
}

var _ Notifier = (*MQTTNotifier)(nil)

// NewMQTTNotifier publishes to topic through pub.
func NewMQTTNotifier(pub Publisher, topic string) *MQTTNotifier {
	return &MQTTNotifier{pub: pub, topic: topic}
}

// Notify publishes one event. The topic gets the notification kind appended.
func (m *MQTTNotifier) Notify(ctx context.Context, n Notification) error {
	payload, err := json.Marshal(n)
	if err != nil {
		return failure.New(failure.KindMalformedInput, "notify", "mqtt", err)
	}
	if err := m.pub.Publish(ctx, m.topic+"/"+string(n.Kind), payload); err != nil {
		return failure.FromTransport("notify", "mqtt", err)
	}
	return nil
}

// Close releases the underlying publisher.
func (m *MQTTNotifier) Close() error {
	return m.pub.Close()
}
