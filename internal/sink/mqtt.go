package sink

import (
	"context"
	"fmt"
	"time"

	pahomqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/dokzlo13/huestrip/internal/frame"
)

// MQTTConfig configures the MQTT sink.
type MQTTConfig struct {
	Broker   string
	Topic    string
	ClientID string
	User     string
	Password string
	Retained bool
}

// Publisher is the subset of the paho client used by the sink.
type Publisher interface {
	Connect() pahomqtt.Token
	Disconnect(quiesce uint)
	IsConnectionOpen() bool
	Publish(topic string, qos byte, retained bool, payload interface{}) pahomqtt.Token
}

// MQTT publishes frame JSON to a topic at QoS 0 without waiting for delivery.
type MQTT struct {
	cfg    MQTTConfig
	client Publisher
	box    *mailbox
}

// NewMQTT creates an MQTT sink. The connection is made by Run.
func NewMQTT(cfg MQTTConfig) *MQTT {
	if cfg.ClientID == "" {
		cfg.ClientID = "huestrip-" + uuid.NewString()[:8]
	}

	opts := pahomqtt.NewClientOptions()
	opts.AddBroker(cfg.Broker)
	opts.SetClientID(cfg.ClientID)
	if cfg.User != "" {
		opts.SetUsername(cfg.User)
	}
	if cfg.Password != "" {
		opts.SetPassword(cfg.Password)
	}

	opts.SetCleanSession(true)
	opts.SetAutoReconnect(true)
	opts.SetConnectRetry(true)
	opts.SetConnectRetryInterval(5 * time.Second)
	opts.SetMaxReconnectInterval(30 * time.Second)

	opts.OnConnect = func(c pahomqtt.Client) {
		log.Info().Str("broker", cfg.Broker).Str("topic", cfg.Topic).Msg("Connected to MQTT broker")
	}
	opts.OnConnectionLost = func(c pahomqtt.Client, err error) {
		log.Warn().Err(err).Msg("MQTT connection lost")
	}

	return NewMQTTWithClient(cfg, pahomqtt.NewClient(opts))
}

// NewMQTTWithClient creates an MQTT sink on an existing client.
func NewMQTTWithClient(cfg MQTTConfig, client Publisher) *MQTT {
	return &MQTT{cfg: cfg, client: client, box: newMailbox()}
}

// Name implements Sink.
func (s *MQTT) Name() string { return "mqtt" }

// Emit implements frame.Sink.
func (s *MQTT) Emit(f frame.Frame) {
	s.box.put(f)
}

// Run connects (retrying in the background) and publishes frames until ctx is cancelled.
func (s *MQTT) Run(ctx context.Context) error {
	// With ConnectRetry the token only completes once connected; don't wait on it
	s.client.Connect()
	defer s.client.Disconnect(250)

	for {
		select {
		case <-ctx.Done():
			if f, ok := s.box.take(); ok {
				s.publish(f)
			}
			return nil
		case f := <-s.box.C():
			s.publish(f)
		}
	}
}

func (s *MQTT) publish(f frame.Frame) {
	if !s.client.IsConnectionOpen() {
		return
	}
	payload, err := f.JSON()
	if err != nil {
		log.Error().Err(err).Msg("Failed to encode frame")
		return
	}
	// QoS 0, fire-and-forget: the token is not awaited
	s.client.Publish(s.cfg.Topic, 0, s.cfg.Retained, payload)
}

// String implements fmt.Stringer.
func (s *MQTT) String() string {
	return fmt.Sprintf("mqtt(%s %s)", s.cfg.Broker, s.cfg.Topic)
}
