package main

import (
	"encoding/json"
	"fmt"
	"log/slog"

	mqtt "github.com/eclipse/paho.mqtt.golang"

	"github.com/telqo/gsmbridge/modem"
)

// Publisher forwards delivery reports and assembled incoming messages
// upstream: always to the log, and to MQTT when a broker is
// configured. Publishing is fire-and-forget so report callbacks never
// block a device's serializer.
type Publisher struct {
	logger *slog.Logger
	client mqtt.Client
	prefix string
}

// NewPublisher connects the MQTT client when a broker URL is set. With
// an empty broker the publisher only logs.
func NewPublisher(broker, prefix string, logger *slog.Logger) (*Publisher, error) {
	p := &Publisher{logger: logger, prefix: prefix}
	if broker == "" {
		return p, nil
	}

	opts := mqtt.NewClientOptions()
	opts.AddBroker(broker)
	opts.SetClientID(prefix + "-gateway")
	opts.SetAutoReconnect(true)
	opts.SetOrderMatters(false)
	opts.SetConnectionLostHandler(func(_ mqtt.Client, err error) {
		logger.Warn("MQTT connection lost", "error", err)
	})

	client := mqtt.NewClient(opts)
	if token := client.Connect(); token.Wait() && token.Error() != nil {
		return nil, fmt.Errorf("connect mqtt broker %s: %w", broker, token.Error())
	}
	p.client = client
	return p, nil
}

// Close disconnects the MQTT client, letting in-flight publishes drain.
func (p *Publisher) Close() {
	if p.client != nil {
		p.client.Disconnect(500)
	}
}

// Report implements modem.Reporter.
func (p *Publisher) Report(r modem.Report) {
	p.logger.Info("Delivery report", "device", r.Device, "dst", r.Dst,
		"info", r.Info, "expired", r.Expired)
	p.publish(r.Device, "report", r)
}

// Message forwards an assembled incoming message.
func (p *Publisher) Message(m modem.Message) {
	p.logger.Info("Incoming message", "device", m.Device, "sender", m.Sender,
		"length", len(m.Text))
	p.publish(m.Device, "message", m)
}

func (p *Publisher) publish(device, kind string, payload any) {
	if p.client == nil {
		return
	}
	data, err := json.Marshal(payload)
	if err != nil {
		p.logger.Error("Failed to encode report", "error", err)
		return
	}
	topic := fmt.Sprintf("%s/%s/%s", p.prefix, device, kind)
	p.client.Publish(topic, 1, false, data)
}
