// Package controlplane implements the adapter boundary between the core
// pipeline and an external control plane: consuming mode/pause/start-stop/
// clip-request commands, and publishing segment_complete/snapshot_recorded
// events back. The tray UI, hotkeys, and settings storage that originate
// those commands live outside this transport contract, which is
// implemented here over MQTT.
package controlplane

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"

	"github.com/Krystofire88/DualModeReplayBuffer/internal/controlstate"
)

// Command is a control-plane command envelope.
type Command struct {
	Command        string        `json:"command"`
	Mode           string        `json:"mode,omitempty"`
	Paused         *bool         `json:"paused,omitempty"`
	Running        *bool         `json:"running,omitempty"`
	ClipRequestedAt time.Time    `json:"clip_requested_at,omitempty"`
	ClipDurationMS  int64        `json:"clip_duration_ms,omitempty"`
}

// ClipRequestHandler is invoked for a decoded clip-request command.
type ClipRequestHandler func(requestedAt time.Time, duration time.Duration)

// Handler subscribes to the commands topic and mutates the shared
// control-state record, the only path allowed to change it.
type Handler struct {
	client mqtt.Client
	topic  string
	state  *controlstate.State
	onClip ClipRequestHandler
}

// NewHandler returns a Handler that will update state and invoke onClip
// for clip-request commands once Start is called.
func NewHandler(client mqtt.Client, topic string, state *controlstate.State, onClip ClipRequestHandler) *Handler {
	return &Handler{client: client, topic: topic, state: state, onClip: onClip}
}

// Start subscribes to the commands topic.
func (h *Handler) Start() error {
	token := h.client.Subscribe(h.topic, 1, h.onMessage)
	if !token.WaitTimeout(5 * time.Second) {
		return fmt.Errorf("controlplane: subscribe timeout")
	}
	return token.Error()
}

func (h *Handler) onMessage(_ mqtt.Client, msg mqtt.Message) {
	var cmd Command
	if err := json.Unmarshal(msg.Payload(), &cmd); err != nil {
		slog.Warn("controlplane: invalid command payload", "error", err)
		return
	}
	h.Apply(cmd)
}

// Apply mutates state per cmd, exported so tests can drive it without a
// live broker.
func (h *Handler) Apply(cmd Command) {
	switch cmd.Command {
	case "set_mode":
		switch cmd.Mode {
		case "focus":
			h.state.SetMode(controlstate.Focus)
		case "context":
			h.state.SetMode(controlstate.Context)
		default:
			slog.Warn("controlplane: unknown mode in command", "mode", cmd.Mode)
		}
	case "set_paused":
		if cmd.Paused != nil {
			h.state.SetPaused(*cmd.Paused)
		}
	case "set_running":
		if cmd.Running != nil {
			h.state.SetRunning(*cmd.Running)
		}
	case "clip_request":
		if h.onClip != nil {
			h.onClip(cmd.ClipRequestedAt, time.Duration(cmd.ClipDurationMS)*time.Millisecond)
		}
	default:
		slog.Warn("controlplane: unknown command", "command", cmd.Command)
	}
}

// PublishCommand marshals cmd to JSON and publishes it to topic at QoS 1,
// the client-side counterpart to Handler's subscription.
func PublishCommand(client mqtt.Client, topic string, cmd Command) error {
	payload, err := json.Marshal(cmd)
	if err != nil {
		return fmt.Errorf("controlplane: marshal command: %w", err)
	}

	token := client.Publish(topic, 1, false, payload)
	if !token.WaitTimeout(2 * time.Second) {
		return fmt.Errorf("controlplane: publish command timeout")
	}
	return token.Error()
}

// Event is a published envelope for segment_complete/snapshot_recorded
// notifications, and for the clip_materialized notification the pipeline
// sends after a clip request.
type Event struct {
	Kind      string    `json:"kind"`
	Path      string    `json:"path"`
	Timestamp time.Time `json:"timestamp"`
	Duration  time.Duration `json:"duration_ns,omitempty"`
}

// Emitter publishes Events to the events topic.
type Emitter struct {
	client mqtt.Client
	topic  string
}

// NewEmitter returns an Emitter bound to an already-connected client.
func NewEmitter(client mqtt.Client, topic string) *Emitter {
	return &Emitter{client: client, topic: topic}
}

// Publish marshals ev to JSON and publishes it at QoS 1.
func (e *Emitter) Publish(ctx context.Context, ev Event) error {
	payload, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("controlplane: marshal event: %w", err)
	}

	token := e.client.Publish(e.topic, 1, false, payload)
	if !token.WaitTimeout(2 * time.Second) {
		return fmt.Errorf("controlplane: publish timeout")
	}
	return token.Error()
}

// NewClient builds and connects a paho MQTT client for the given broker
// and client ID, with auto-reconnect under a bounded backoff ceiling.
func NewClient(broker, clientID string) (mqtt.Client, error) {
	opts := mqtt.NewClientOptions()
	opts.AddBroker(broker)
	opts.SetClientID(clientID)
	opts.SetAutoReconnect(true)
	opts.SetConnectRetry(true)
	opts.SetConnectRetryInterval(2 * time.Second)
	opts.SetMaxReconnectInterval(30 * time.Second)

	opts.OnConnectionLost = func(_ mqtt.Client, err error) {
		slog.Warn("controlplane: mqtt connection lost, auto-reconnecting", "error", err)
	}
	opts.OnConnect = func(_ mqtt.Client) {
		slog.Info("controlplane: mqtt connected", "broker", broker, "client_id", clientID)
	}

	client := mqtt.NewClient(opts)
	token := client.Connect()
	if !token.WaitTimeout(5 * time.Second) {
		return nil, fmt.Errorf("controlplane: connect timeout")
	}
	if err := token.Error(); err != nil {
		return nil, fmt.Errorf("controlplane: connect: %w", err)
	}
	return client, nil
}
