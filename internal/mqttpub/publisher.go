// Package mqttpub publishes per-frame light commands to the configured MQTT
// broker. Publishes are fire-and-forget at QoS 0; the streaming path never
// waits for broker acknowledgement.
package mqttpub

import (
	"fmt"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/rs/zerolog/log"
)

// Message is one topic/payload pair.
type Message struct {
	Topic   string
	Payload []byte
}

// Publisher is a connected MQTT client.
type Publisher struct {
	client mqtt.Client
}

// New connects to the broker. User and password may be empty for anonymous
// brokers.
func New(server string, port int, user, password string) (*Publisher, error) {
	opts := mqtt.NewClientOptions().
		AddBroker(fmt.Sprintf("tcp://%s:%d", server, port)).
		SetClientID("imersa-entertainment").
		SetConnectTimeout(3 * time.Second).
		SetAutoReconnect(true)
	if user != "" && password != "" {
		opts.SetUsername(user)
		opts.SetPassword(password)
	}

	client := mqtt.NewClient(opts)
	token := client.Connect()
	if !token.WaitTimeout(5 * time.Second) {
		return nil, fmt.Errorf("mqtt connect to %s:%d timed out", server, port)
	}
	if err := token.Error(); err != nil {
		return nil, fmt.Errorf("mqtt connect: %w", err)
	}

	log.Info().Str("server", server).Int("port", port).Msg("Connected to MQTT broker")
	return &Publisher{client: client}, nil
}

// PublishBatch fires a frame's messages at QoS 0 without waiting.
func (p *Publisher) PublishBatch(msgs []Message) error {
	if !p.client.IsConnected() {
		return fmt.Errorf("mqtt: not connected")
	}
	for _, m := range msgs {
		p.client.Publish(m.Topic, 0, false, m.Payload)
	}
	return nil
}

// Close disconnects from the broker.
func (p *Publisher) Close() {
	p.client.Disconnect(100)
}
