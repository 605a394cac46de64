package events

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"

	"github.com/flybeeper/routecast/internal/config"
	"github.com/flybeeper/routecast/internal/metrics"
	"github.com/flybeeper/routecast/pkg/utils"
)

const publishTimeout = 5 * time.Second

// MQTTPublisher публикует события в {prefix}/{route_id}/processed
type MQTTPublisher struct {
	client    mqtt.Client
	config    *config.MQTTConfig
	logger    *utils.Logger
	connected bool
	mu        sync.RWMutex
}

// NewMQTTPublisher создает издателя; соединение устанавливается в Connect
func NewMQTTPublisher(cfg *config.MQTTConfig, logger *utils.Logger) (*MQTTPublisher, error) {
	if cfg == nil {
		return nil, fmt.Errorf("config cannot be nil")
	}
	if logger == nil {
		return nil, fmt.Errorf("logger cannot be nil")
	}

	p := &MQTTPublisher{
		config: cfg,
		logger: logger,
	}

	opts := mqtt.NewClientOptions()
	opts.AddBroker(cfg.URL)
	opts.SetClientID(cfg.ClientID)
	opts.SetCleanSession(true)
	opts.SetAutoReconnect(true)
	opts.SetConnectRetry(true)
	opts.SetConnectRetryInterval(5 * time.Second)
	opts.SetMaxReconnectInterval(60 * time.Second)

	if cfg.Username != "" {
		opts.SetUsername(cfg.Username)
	}
	if cfg.Password != "" {
		opts.SetPassword(cfg.Password)
	}

	opts.SetOnConnectHandler(func(mqtt.Client) {
		p.setConnected(true)
		p.logger.WithField("broker", cfg.URL).Info("Connected to MQTT broker")
	})
	opts.SetConnectionLostHandler(func(_ mqtt.Client, err error) {
		p.setConnected(false)
		p.logger.WithField("error", err).Warn("Lost connection to MQTT broker")
	})

	p.client = mqtt.NewClient(opts)
	return p, nil
}

// newMQTTPublisherWithClient издатель поверх готового клиента
func newMQTTPublisherWithClient(client mqtt.Client, cfg *config.MQTTConfig, logger *utils.Logger) *MQTTPublisher {
	return &MQTTPublisher{client: client, config: cfg, logger: logger, connected: client.IsConnected()}
}

// Connect подключается к брокеру, ожидая не дольше ctx
func (p *MQTTPublisher) Connect(ctx context.Context) error {
	p.logger.WithField("broker", p.config.URL).Info("Connecting to MQTT broker")

	token := p.client.Connect()
	select {
	case <-token.Done():
	case <-ctx.Done():
		return fmt.Errorf("mqtt connect: %w", ctx.Err())
	}
	if err := token.Error(); err != nil {
		return fmt.Errorf("failed to connect to MQTT broker: %w", err)
	}
	return nil
}

// Topic топик события маршрута
func (p *MQTTPublisher) Topic(routeID string) string {
	return strings.TrimSuffix(p.config.TopicPrefix, "/") + "/" + routeID + "/processed"
}

// PublishRouteProcessed отправляет событие с QoS 1
func (p *MQTTPublisher) PublishRouteProcessed(ctx context.Context, evt RouteProcessed) error {
	if !p.IsConnected() {
		metrics.MQTTMessagesPublished.WithLabelValues("skipped").Inc()
		return fmt.Errorf("mqtt publisher not connected")
	}

	payload, err := evt.Payload()
	if err != nil {
		return fmt.Errorf("encode route event: %w", err)
	}

	topic := p.Topic(evt.RouteID)
	token := p.client.Publish(topic, 1, false, payload)

	timeout := time.NewTimer(publishTimeout)
	defer timeout.Stop()
	select {
	case <-token.Done():
	case <-ctx.Done():
		metrics.MQTTMessagesPublished.WithLabelValues("error").Inc()
		return ctx.Err()
	case <-timeout.C:
		metrics.MQTTMessagesPublished.WithLabelValues("error").Inc()
		return fmt.Errorf("mqtt publish to %s timed out", topic)
	}
	if err := token.Error(); err != nil {
		metrics.MQTTMessagesPublished.WithLabelValues("error").Inc()
		return fmt.Errorf("mqtt publish to %s: %w", topic, err)
	}

	metrics.MQTTMessagesPublished.WithLabelValues("success").Inc()
	p.logger.WithFields(map[string]interface{}{
		"topic":    topic,
		"route_id": evt.RouteID,
		"bytes":    len(payload),
	}).Debug("Published route event")
	return nil
}

// IsConnected проверяет статус подключения
func (p *MQTTPublisher) IsConnected() bool {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.connected && p.client.IsConnected()
}

// Close отключается от брокера
func (p *MQTTPublisher) Close() {
	p.logger.Info("Disconnecting from MQTT broker")
	if p.client.IsConnected() {
		p.client.Disconnect(1000)
	}
	p.setConnected(false)
}

func (p *MQTTPublisher) setConnected(v bool) {
	p.mu.Lock()
	p.connected = v
	p.mu.Unlock()
	metrics.SetStatus(metrics.MQTTConnectionStatus, v)
}
