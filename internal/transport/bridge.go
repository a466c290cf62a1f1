// Package transport bridges the navigation core onto an MQTT broker:
// sensor producers publish JSON payloads on the intnav topics, the bridge
// feeds them into the pipeline, and every limited command goes back out on
// the command topic.
package transport

import (
	"encoding/json"
	"fmt"

	mqtt "github.com/eclipse/paho.mqtt.golang"

	"github.com/duckietown/duckietown-intnav/internal/config"
	"github.com/duckietown/duckietown-intnav/internal/monitoring"
	"github.com/duckietown/duckietown-intnav/internal/nav/pipeline"
)

// Bridge connects one pipeline to one broker. It implements
// pipeline.CommandSink for the egress direction.
type Bridge struct {
	loop       *pipeline.Loop
	client     mqtt.Client
	brokerURL  string
	clientID   string
	separation float64
}

// NewBridge prepares a bridge; Connect establishes the session. The loop
// may be attached later via Attach when the bridge must exist first to
// serve as the loop's sink.
func NewBridge(cfg *config.TuningConfig, brokerURL, clientID string) *Bridge {
	return &Bridge{
		brokerURL:  brokerURL,
		clientID:   clientID,
		separation: cfg.GetWheelSeparation(),
	}
}

// Attach binds the pipeline the bridge feeds.
func (b *Bridge) Attach(loop *pipeline.Loop) { b.loop = loop }

// Connect dials the broker and subscribes to all sensor topics.
func (b *Bridge) Connect() error {
	if b.loop == nil {
		return fmt.Errorf("bridge has no pipeline attached")
	}

	opts := mqtt.NewClientOptions().
		AddBroker(b.brokerURL).
		SetClientID(b.clientID).
		SetAutoReconnect(true)

	b.client = mqtt.NewClient(opts)
	if token := b.client.Connect(); token.Wait() && token.Error() != nil {
		return fmt.Errorf("connect %s: %w", b.brokerURL, token.Error())
	}
	monitoring.Logf("transport: connected to MQTT broker at %s", b.brokerURL)

	subscriptions := map[string]mqtt.MessageHandler{
		TopicWheels:     func(_ mqtt.Client, msg mqtt.Message) { b.handleWheels(msg.Payload()) },
		TopicIMU:        func(_ mqtt.Client, msg mqtt.Message) { b.handleIMU(msg.Payload()) },
		TopicDetections: func(_ mqtt.Client, msg mqtt.Message) { b.handleDetection(msg.Payload()) },
		TopicTransforms: func(_ mqtt.Client, msg mqtt.Message) { b.handleTransform(msg.Payload()) },
		TopicPath:       func(_ mqtt.Client, msg mqtt.Message) { b.handlePath(msg.Payload()) },
		TopicReset:      func(_ mqtt.Client, _ mqtt.Message) { b.handleReset() },
	}
	for topic, handler := range subscriptions {
		token := b.client.Subscribe(topic, 0, handler)
		if token.Wait(); token.Error() != nil {
			return fmt.Errorf("subscribe %s: %w", topic, token.Error())
		}
		monitoring.Logf("transport: subscribed to %s", topic)
	}
	return nil
}

// Close drops the broker session.
func (b *Bridge) Close() {
	if b.client != nil && b.client.IsConnected() {
		b.client.Disconnect(250)
	}
}

func (b *Bridge) handleWheels(payload []byte) {
	m, err := ParseWheels(payload, b.separation)
	if err != nil {
		monitoring.Logf("transport: %v", err)
		return
	}
	if err := b.loop.Enqueue(m); err != nil {
		monitoring.Logf("transport: wheels rejected: %v", err)
	}
}

func (b *Bridge) handleIMU(payload []byte) {
	m, err := ParseIMU(payload)
	if err != nil {
		monitoring.Logf("transport: %v", err)
		return
	}
	if err := b.loop.Enqueue(m); err != nil {
		monitoring.Logf("transport: imu rejected: %v", err)
	}
}

func (b *Bridge) handleDetection(payload []byte) {
	m, err := ParseDetection(payload)
	if err != nil {
		monitoring.Logf("transport: %v", err)
		return
	}
	if err := b.loop.Enqueue(m); err != nil {
		monitoring.Logf("transport: detection rejected: %v", err)
	}
}

func (b *Bridge) handleTransform(payload []byte) {
	tf, err := ParseTransform(payload)
	if err != nil {
		monitoring.Logf("transport: %v", err)
		return
	}
	if err := b.loop.Registry().Update(tf); err != nil {
		monitoring.Logf("transport: transform rejected: %v", err)
	}
}

func (b *Bridge) handleReset() {
	b.loop.Reset()
	monitoring.Logf("transport: reset requested over broker")
}

func (b *Bridge) handlePath(payload []byte) {
	path, err := ParsePath(payload)
	if err != nil {
		monitoring.Logf("transport: %v", err)
		return
	}
	b.loop.SetPath(path)
	monitoring.Logf("transport: path replaced (%d waypoints)", len(path.Waypoints))
}

// PublishCommand marshals and publishes one command. Fire and forget: the
// pipeline must never block on broker round trips.
func (b *Bridge) PublishCommand(cmd pipeline.Command) {
	if b.client == nil || !b.client.IsConnected() {
		return
	}
	msg := CommandMessage{
		Stamp:      cmd.Stamp,
		Linear:     cmd.Twist.Linear,
		Angular:    cmd.Twist.Angular,
		WheelLeft:  cmd.WheelLeft,
		WheelRight: cmd.WheelRight,
		Status:     string(cmd.Status),
		Episode:    cmd.Episode,
	}
	data, err := json.Marshal(msg)
	if err != nil {
		monitoring.Logf("transport: command marshal: %v", err)
		return
	}
	b.client.Publish(TopicCommand, 0, false, data)
}
