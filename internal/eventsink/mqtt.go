package eventsink

import (
	"context"
	"fmt"
	"strings"

	"github.com/hblink4/hblink4/internal/logger"
)

// MQTTConfig configures the optional MQTT republish of dashboard events.
// No MQTT client library is wired into this project (see "MQTT republisher:
// intentional no-op" in DESIGN.md) — Republisher is a stub with the same shape the real
// thing would have, ready to grow a paho.mqtt.golang client without
// changing any caller.
type MQTTConfig struct {
	Enabled     bool
	Broker      string
	TopicPrefix string
	ClientID    string
	Username    string
	Password    string
	QoS         byte
	Retained    bool
}

// Republisher mirrors dashboard events onto MQTT topics, one topic per
// event type under TopicPrefix.
type Republisher struct {
	cfg MQTTConfig
	log *logger.Logger
}

// NewRepublisher builds a Republisher.
func NewRepublisher(cfg MQTTConfig, log *logger.Logger) *Republisher {
	return &Republisher{cfg: cfg, log: log.WithComponent("mqtt")}
}

// Start connects to the broker. A no-op until a real MQTT client is wired.
func (r *Republisher) Start(ctx context.Context) error {
	if !r.cfg.Enabled {
		return nil
	}
	r.log.Info("MQTT republish requested but no broker client is wired",
		logger.String("broker", r.cfg.Broker))
	return nil
}

// Stop disconnects from the broker.
func (r *Republisher) Stop() {}

// Publish republishes one event under its type-named topic.
func (r *Republisher) Publish(ev Event) {
	if !r.cfg.Enabled {
		return
	}
	topic := r.topic(ev.Type)
	data, err := ev.marshal()
	if err != nil {
		return
	}
	r.log.Debug("would publish MQTT event", logger.String("topic", topic), logger.Int("bytes", len(data)))
}

func (r *Republisher) topic(eventType string) string {
	prefix := strings.TrimSuffix(r.cfg.TopicPrefix, "/")
	if prefix == "" {
		return eventType
	}
	return fmt.Sprintf("%s/%s", prefix, eventType)
}
