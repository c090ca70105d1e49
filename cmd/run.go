package cmd

import (
	"context"
	"errors"
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/xkilldash9x/angler/internal/config"
	"github.com/xkilldash9x/angler/internal/fishing"
	"github.com/xkilldash9x/angler/internal/hotkey"
	"github.com/xkilldash9x/angler/internal/observability"
	"github.com/xkilldash9x/angler/internal/platform"
	"github.com/xkilldash9x/angler/internal/service"
)

// keySourceProvider opens the source of hotkeys. The returned cleanup restores
// whatever the source changed.
type keySourceProvider func() (hotkey.KeySource, func() error, error)

// defaultKeySource reads hotkeys from the controlling terminal, so stdin stays free
// for a state feed.
func defaultKeySource() (hotkey.KeySource, func() error, error) {
	tty, err := os.OpenFile("/dev/tty", os.O_RDWR, 0)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to open controlling terminal: %w", err)
	}
	keys, err := platform.NewTerminalKeys(tty)
	if err != nil {
		tty.Close()
		return nil, nil, err
	}
	cleanup := func() error {
		restoreErr := keys.Close()
		if err := tty.Close(); err != nil && restoreErr == nil {
			return err
		}
		return restoreErr
	}
	return keys, cleanup, nil
}

// newRunCmd creates the `run` command.
func newRunCmd(factory service.ComponentFactory, keys keySourceProvider) *cobra.Command {
	var fromStdin bool
	var noCalibration bool

	runCmd := &cobra.Command{
		Use:   "run",
		Short: "Start the agent and wait for hotkeys",
		Long: `Starts the hotkey loop. The toggle key starts and stops fishing, the calibrate
key measures the movement constants and the quit key exits.

States are read from the configured Redis queue, or from stdin (one label per line)
with --stdin.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			logger := observability.GetLogger()

			cfg, err := getConfigFromContext(ctx)
			if err != nil {
				return err
			}

			opts := service.Options{
				Feed:        true,
				Calibration: !noCalibration,
				Backups:     true,
			}
			if fromStdin {
				opts.StateInput = cmd.InOrStdin()
			}

			components, err := factory.Create(ctx, cfg, opts, logger)
			if err != nil {
				return fmt.Errorf("failed to initialize components: %w", err)
			}
			defer components.Shutdown()

			source, cleanup, err := keys()
			if err != nil {
				return err
			}
			defer func() {
				if err := cleanup(); err != nil {
					logger.Warn("Failed to restore key source", zap.Error(err))
				}
			}()

			return runAgent(ctx, logger, cfg, components, source)
		},
	}

	runCmd.Flags().BoolVar(&fromStdin, "stdin", false, "read states from stdin instead of Redis")
	runCmd.Flags().BoolVar(&noCalibration, "no-calibration", false, "do not connect the coordinate provider")
	return runCmd
}

// runAgent wires the hotkey loop to the agent and blocks until it quits.
func runAgent(ctx context.Context, logger *zap.Logger, cfg config.Interface, components *service.Components, source hotkey.KeySource) error {
	soundEnabled := func(ctx context.Context) bool {
		return components.KV.Bool(ctx, fishing.KeySoundNotification, cfg.Fishing().SoundNotification)
	}
	loop := hotkey.NewLoop(source, logger,
		hotkey.WithCooldown(cfg.Hotkey().Cooldown),
		hotkey.WithAlert(components.Notifier, soundEnabled),
	)

	agent := service.NewAgent(cfg, components.KV, components.Dispatcher, components.Feed, components.Engine, logger)
	if err := agent.Bind(loop); err != nil {
		return err
	}

	logger.Info("Angler ready",
		zap.Any("bindings", cfg.Hotkey().Bindings),
		zap.String("window", cfg.Fishing().TargetWindow))

	err := agent.Run(ctx)
	if errors.Is(err, platform.ErrInterrupted) {
		logger.Info("Interrupted from the terminal")
		return nil
	}
	return err
}
