package config

import (
	"fmt"
	"time"
)

const (
	defaultRetentionWindow = 2 * time.Minute
	defaultReinitDelay     = 1 * time.Second
)

// Validate checks the configuration for fail-fast startup errors and fills
// in the zero-value tunables below with their documented defaults rather
// than rejecting them: required fields fail, tunables default.
// buffer_duration_seconds and health_addr are left as given.
func Validate(cfg *Config) error {
	if cfg.BaseDir == "" {
		return fmt.Errorf("base_dir is required")
	}

	if cfg.CaptureMode != ModeFocus && cfg.CaptureMode != ModeContext {
		return fmt.Errorf("capture_mode must be %q or %q, got %q", ModeFocus, ModeContext, cfg.CaptureMode)
	}

	if cfg.EncodeFPS <= 0 {
		cfg.EncodeFPS = 30
	}
	if cfg.EncodeWidth <= 0 || cfg.EncodeHeight <= 0 {
		return fmt.Errorf("encode_width/encode_height must be > 0")
	}
	if cfg.SegmentDurationSeconds <= 0 {
		cfg.SegmentDurationSeconds = 5
	}
	if cfg.MaxSegments <= 0 {
		cfg.MaxSegments = 6
	}
	if cfg.MaxContextFrames <= 0 {
		cfg.MaxContextFrames = 120
	}
	if cfg.RetentionWindow <= 0 {
		cfg.RetentionWindow = defaultRetentionWindow
	}
	if cfg.ChangeThreshold <= 0 {
		cfg.ChangeThreshold = 5
	}
	if cfg.ReinitDelay <= 0 {
		cfg.ReinitDelay = defaultReinitDelay
	}
	if cfg.QueueCapacity <= 0 {
		cfg.QueueCapacity = 256
	}
	if cfg.PreviewQueueCapacity <= 0 {
		cfg.PreviewQueueCapacity = 64
	}

	if cfg.MQTT.Broker == "" {
		return fmt.Errorf("mqtt.broker is required")
	}
	if cfg.MQTT.ClientID == "" {
		cfg.MQTT.ClientID = "replaybufferd"
	}
	if cfg.MQTT.CommandsTopic == "" {
		cfg.MQTT.CommandsTopic = "replaybuffer/commands"
	}
	if cfg.MQTT.EventsTopic == "" {
		cfg.MQTT.EventsTopic = "replaybuffer/events"
	}

	return nil
}
