// Command replaybufferd runs the dual-mode screen recorder core pipeline.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/Krystofire88/DualModeReplayBuffer/internal/config"
	"github.com/Krystofire88/DualModeReplayBuffer/internal/controlplane"
	"github.com/Krystofire88/DualModeReplayBuffer/internal/pipeline"
)

var cfgFile string

var rootCmd = &cobra.Command{
	Use:   "replaybufferd",
	Short: "Dual-mode screen recorder core: capture, encode, and retain",
	Long: `replaybufferd runs the capture-to-retention pipeline for a
dual-mode screen recorder: Focus Mode rolls fixed-duration H.264 segments
in a ring buffer, and Context Mode persists deduplicated JPEG snapshots
of visually distinct frames in a durable catalog under a time-window
retention policy.`,
}

func main() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (YAML)")
	rootCmd.AddCommand(runCmd, clipCmd, configCmd)

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Start the capture-to-retention pipeline",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.Load(cfgFile)
		if err != nil {
			return err
		}

		p, err := pipeline.New(cfg)
		if err != nil {
			return err
		}

		ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		p.Run(ctx)
		return nil
	},
}

var clipDurationSeconds int

var clipCmd = &cobra.Command{
	Use:   "clip",
	Short: "Send an ad-hoc clip request to a running daemon over the control-plane adapter",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.Load(cfgFile)
		if err != nil {
			return err
		}
		if cfg.MQTT.Broker == "" {
			return fmt.Errorf("clip: no mqtt broker configured, cannot reach a running daemon")
		}

		client, err := controlplane.NewClient(cfg.MQTT.Broker, cfg.MQTT.ClientID+"-clip")
		if err != nil {
			return fmt.Errorf("clip: %w", err)
		}
		defer client.Disconnect(250)

		requestedAt := time.Now().UTC()
		err = controlplane.PublishCommand(client, cfg.MQTT.CommandsTopic, controlplane.Command{
			Command:         "clip_request",
			ClipRequestedAt: requestedAt,
			ClipDurationMS:  int64(clipDurationSeconds) * 1000,
		})
		if err != nil {
			return fmt.Errorf("clip: %w", err)
		}

		fmt.Printf("clip request sent: last %ds as of %s\n", clipDurationSeconds, requestedAt.Format(time.RFC3339))
		return nil
	},
}

func init() {
	clipCmd.Flags().IntVar(&clipDurationSeconds, "duration", 30, "clip duration in seconds")
}

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Print the effective configuration, with defaults and overrides applied",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.Load(cfgFile)
		if err != nil {
			return err
		}
		out, err := yaml.Marshal(cfg)
		if err != nil {
			return fmt.Errorf("config: marshal: %w", err)
		}
		_, err = os.Stdout.Write(out)
		return err
	},
}
