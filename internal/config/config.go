// Package config loads and validates the daemon's persisted configuration.
//
// Loading goes through viper so a YAML file and environment variables
// (REPLAYBUF_*) compose into one Config, layered over code-level defaults.
// No command-line flags are bound; cmd/replaybufferd's --config flag only
// names the file.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// CaptureMode mirrors controlstate.Mode for YAML/env decoding without an
// import-cycle back into controlstate.
type CaptureMode string

const (
	ModeFocus   CaptureMode = "focus"
	ModeContext CaptureMode = "context"
)

// Config is the complete set of persisted configuration consumed by the
// core pipeline, including the ring-buffer and catalog tuning knobs.
type Config struct {
	BaseDir string `mapstructure:"base_dir" yaml:"base_dir"`

	EncodeWidth            int         `mapstructure:"encode_width" yaml:"encode_width"`
	EncodeHeight           int         `mapstructure:"encode_height" yaml:"encode_height"`
	EncodeFPS              int         `mapstructure:"encode_fps" yaml:"encode_fps"`
	SegmentDurationSeconds int         `mapstructure:"segment_duration_seconds" yaml:"segment_duration_seconds"`
	BufferDurationSeconds  int         `mapstructure:"buffer_duration_seconds" yaml:"buffer_duration_seconds"`
	CaptureMode            CaptureMode `mapstructure:"capture_mode" yaml:"capture_mode"`
	OCREnabled             bool        `mapstructure:"ocr_enabled" yaml:"ocr_enabled"`

	MaxSegments      int           `mapstructure:"max_segments" yaml:"max_segments"`
	MaxContextFrames int           `mapstructure:"max_context_frames" yaml:"max_context_frames"`
	RetentionWindow  time.Duration `mapstructure:"retention_window" yaml:"retention_window"`
	ChangeThreshold  int           `mapstructure:"change_threshold" yaml:"change_threshold"`
	ReinitDelay      time.Duration `mapstructure:"reinit_delay" yaml:"reinit_delay"`

	QueueCapacity         int `mapstructure:"queue_capacity" yaml:"queue_capacity"`
	PreviewQueueCapacity  int `mapstructure:"preview_queue_capacity" yaml:"preview_queue_capacity"`

	MQTT MQTTConfig `mapstructure:"mqtt" yaml:"mqtt"`

	HealthAddr string `mapstructure:"health_addr" yaml:"health_addr"`
}

// MQTTConfig configures the control-plane transport adapter.
type MQTTConfig struct {
	Broker        string `mapstructure:"broker" yaml:"broker"`
	ClientID      string `mapstructure:"client_id" yaml:"client_id"`
	CommandsTopic string `mapstructure:"commands_topic" yaml:"commands_topic"`
	EventsTopic   string `mapstructure:"events_topic" yaml:"events_topic"`
}

// Default returns the configuration with every documented default filled
// in; missing values in a loaded file fall back to these.
func Default() *Config {
	return &Config{
		BaseDir:                "data",
		EncodeWidth:            1920,
		EncodeHeight:           1080,
		EncodeFPS:              30,
		SegmentDurationSeconds: 5,
		BufferDurationSeconds:  30,
		CaptureMode:            ModeFocus,
		OCREnabled:             false,

		MaxSegments:      6,
		MaxContextFrames: 120,
		RetentionWindow:  2 * time.Minute,
		ChangeThreshold:  5,
		ReinitDelay:      1 * time.Second,

		QueueCapacity:        256,
		PreviewQueueCapacity: 64,

		MQTT: MQTTConfig{
			Broker:        "tcp://127.0.0.1:1883",
			ClientID:      "replaybufferd",
			CommandsTopic: "replaybuffer/commands",
			EventsTopic:   "replaybuffer/events",
		},

		HealthAddr: ":9090",
	}
}

// Load reads configuration from path (if non-empty) with viper, applying
// environment overrides (REPLAYBUF_ prefix) and defaults from Default(),
// then validates the result.
func Load(path string) (*Config, error) {
	cfg := Default()

	v := viper.New()
	v.SetEnvPrefix("replaybuf")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v, cfg)

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("config: read %s: %w", path, err)
		}
	}

	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("config: unmarshal: %w", err)
	}

	if err := Validate(cfg); err != nil {
		return nil, fmt.Errorf("config: invalid: %w", err)
	}

	return cfg, nil
}

func setDefaults(v *viper.Viper, cfg *Config) {
	v.SetDefault("base_dir", cfg.BaseDir)
	v.SetDefault("encode_width", cfg.EncodeWidth)
	v.SetDefault("encode_height", cfg.EncodeHeight)
	v.SetDefault("encode_fps", cfg.EncodeFPS)
	v.SetDefault("segment_duration_seconds", cfg.SegmentDurationSeconds)
	v.SetDefault("buffer_duration_seconds", cfg.BufferDurationSeconds)
	v.SetDefault("capture_mode", string(cfg.CaptureMode))
	v.SetDefault("ocr_enabled", cfg.OCREnabled)
	v.SetDefault("max_segments", cfg.MaxSegments)
	v.SetDefault("max_context_frames", cfg.MaxContextFrames)
	v.SetDefault("retention_window", cfg.RetentionWindow)
	v.SetDefault("change_threshold", cfg.ChangeThreshold)
	v.SetDefault("reinit_delay", cfg.ReinitDelay)
	v.SetDefault("queue_capacity", cfg.QueueCapacity)
	v.SetDefault("preview_queue_capacity", cfg.PreviewQueueCapacity)
	v.SetDefault("mqtt.broker", cfg.MQTT.Broker)
	v.SetDefault("mqtt.client_id", cfg.MQTT.ClientID)
	v.SetDefault("mqtt.commands_topic", cfg.MQTT.CommandsTopic)
	v.SetDefault("mqtt.events_topic", cfg.MQTT.EventsTopic)
	v.SetDefault("health_addr", cfg.HealthAddr)
}
