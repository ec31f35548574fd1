package sinks

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	pahomqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/sirupsen/logrus"
	"github.com/ztkent/lightmeter/internal/config"
	"github.com/ztkent/lightmeter/internal/lightmeter"
)

const (
	mqttConnectTimeout    = 10 * time.Second
	mqttPublishTimeout    = 5 * time.Second
	mqttDisconnectQuiesce = 250 // milliseconds
)

var (
	ErrMQTTConnect = errors.New("mqtt: connection failed")
	ErrMQTTPublish = errors.New("mqtt: publish failed")
)

// MQTTPublisher publishes every recorded reading as JSON to a broker topic.
type MQTTPublisher struct {
	client pahomqtt.Client
	topic  string
	qos    byte
	log    *logrus.Logger
}

var _ lightmeter.Publisher = (*MQTTPublisher)(nil)

// NewMQTTPublisher connects to the broker, waiting at most mqttConnectTimeout.
func NewMQTTPublisher(cfg config.MQTTConfig, l *logrus.Logger) (*MQTTPublisher, error) {
	opts := pahomqtt.NewClientOptions()
	opts.AddBroker(fmt.Sprintf("tcp://%s:%d", cfg.Host, cfg.Port))
	opts.SetClientID(cfg.ClientID)
	if cfg.Username != "" {
		opts.SetUsername(cfg.Username)
		opts.SetPassword(cfg.Password)
	}
	opts.SetCleanSession(true)
	opts.SetAutoReconnect(true)
	opts.SetConnectTimeout(mqttConnectTimeout)
	opts.SetConnectionLostHandler(func(_ pahomqtt.Client, err error) {
		l.WithError(err).Warn("Lost connection to the MQTT broker")
	})
	opts.SetOnConnectHandler(func(_ pahomqtt.Client) {
		l.WithField("broker", fmt.Sprintf("%s:%d", cfg.Host, cfg.Port)).Info("Connected to the MQTT broker")
	})

	client := pahomqtt.NewClient(opts)
	token := client.Connect()
	if !token.WaitTimeout(mqttConnectTimeout) {
		return nil, fmt.Errorf("%w: timeout after %v", ErrMQTTConnect, mqttConnectTimeout)
	}
	if err := token.Error(); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrMQTTConnect, err)
	}

	return &MQTTPublisher{
		client: client,
		topic:  cfg.Topic,
		qos:    byte(cfg.QoS),
		log:    l,
	}, nil
}

type readingMessage struct {
	JobID             string  `json:"job_id"`
	Lux               float64 `json:"lux"`
	Red               float64 `json:"red"`
	Green             float64 `json:"green"`
	Blue              float64 `json:"blue"`
	White             float64 `json:"white"`
	IntegrationTimeMs int     `json:"integration_time_ms"`
	Timestamp         string  `json:"timestamp"`
}

func readingPayload(result lightmeter.LuxResults) ([]byte, error) {
	return json.Marshal(readingMessage{
		JobID:             result.JobID,
		Lux:               result.Lux,
		Red:               result.Red,
		Green:             result.Green,
		Blue:              result.Blue,
		White:             result.White,
		IntegrationTimeMs: result.IntegrationTimeMs,
		Timestamp:         result.Time.UTC().Format(time.RFC3339),
	})
}

func (p *MQTTPublisher) Publish(ctx context.Context, result lightmeter.LuxResults) error {
	payload, err := readingPayload(result)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrMQTTPublish, err)
	}

	timeout := mqttPublishTimeout
	if deadline, ok := ctx.Deadline(); ok && time.Until(deadline) < timeout {
		timeout = time.Until(deadline)
	}
	token := p.client.Publish(p.topic, p.qos, false, payload)
	if !token.WaitTimeout(timeout) {
		return fmt.Errorf("%w: timeout after %v", ErrMQTTPublish, timeout)
	}
	if err := token.Error(); err != nil {
		return fmt.Errorf("%w: %w", ErrMQTTPublish, err)
	}
	return nil
}

func (p *MQTTPublisher) Close() error {
	p.client.Disconnect(mqttDisconnectQuiesce)
	return nil
}
