package cmd

import (
	"context"
	"fmt"
	"io"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/xkilldash9x/angler/internal/calibration"
	"github.com/xkilldash9x/angler/internal/config"
	"github.com/xkilldash9x/angler/internal/fishing"
	"github.com/xkilldash9x/angler/internal/kvstore"
	"github.com/xkilldash9x/angler/internal/observability"
	"github.com/xkilldash9x/angler/internal/service"
)

// openKV opens the persistent store named by the configuration.
func openKV(ctx context.Context, cfg config.Interface, logger *zap.Logger) (*kvstore.Store, error) {
	kv, err := kvstore.Open(ctx, cfg.Store().Path, cfg.Store().BackupPath, logger)
	if err != nil {
		return nil, fmt.Errorf("failed to open persistent store: %w", err)
	}
	return kv, nil
}

// newStatusCmd creates the `status` command.
func newStatusCmd() *cobra.Command {
	var recent int

	statusCmd := &cobra.Command{
		Use:   "status",
		Short: "Show calibration readiness, preferences and recent holes",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			logger := observability.GetLogger()

			cfg, err := getConfigFromContext(ctx)
			if err != nil {
				return err
			}

			kv, err := openKV(ctx, cfg, logger)
			if err != nil {
				return err
			}
			defer kv.Close()

			out := cmd.OutOrStdout()
			if err := printStatus(ctx, out, cfg, kv); err != nil {
				return err
			}

			if !cfg.Telemetry().Enabled || recent <= 0 {
				return nil
			}
			telemetry, cleanup, err := service.InitializeTelemetry(ctx, cfg.Telemetry(), logger)
			if err != nil {
				return err
			}
			defer cleanup()

			reports, err := telemetry.RecentHoleReports(ctx, recent)
			if err != nil {
				return err
			}
			printReports(out, reports)
			return nil
		},
	}

	statusCmd.Flags().IntVarP(&recent, "recent", "n", 5, "number of recent holes to list when telemetry is enabled")
	return statusCmd
}

func printStatus(ctx context.Context, w io.Writer, cfg config.Interface, kv *kvstore.Store) error {
	factors, err := calibration.LoadFactors(ctx, kv)
	if err != nil {
		return err
	}
	prefs := fishing.LoadPreferences(ctx, kv, cfg)

	fmt.Fprintln(w, "Calibration")
	fmt.Fprintf(w, "  %-20s %s\n", calibration.FieldMove, describePhase(factors.MoveFactor, nil))
	fmt.Fprintf(w, "  %-20s %s\n", calibration.FieldRotate, describePhase(factors.RotFactor, nil))
	fmt.Fprintf(w, "  %-20s %t\n", "ready", factors.Complete())
	fmt.Fprintf(w, "  %-20s %t\n", "requested", calibration.Requested(ctx, kv))

	fmt.Fprintln(w, "Preferences")
	fmt.Fprintf(w, "  %-20s %s\n", fishing.KeyActionKey, prefs.ActionKey)
	fmt.Fprintf(w, "  %-20s %s\n", fishing.KeyCollectKey, prefs.CollectKey)
	fmt.Fprintf(w, "  %-20s %t\n", fishing.KeyJitter, prefs.Reaction.Jitter)
	fmt.Fprintf(w, "  %-20s %t\n", fishing.KeySoundNotification, prefs.Sound)
	return nil
}

func printReports(w io.Writer, reports []fishing.HoleReport) {
	fmt.Fprintln(w, "Recent holes")
	if len(reports) == 0 {
		fmt.Fprintln(w, "  none")
		return
	}
	for _, r := range reports {
		var avg time.Duration
		if len(r.FishTimes) > 0 {
			var sum time.Duration
			for _, ft := range r.FishTimes {
				sum += ft
			}
			avg = sum / time.Duration(len(r.FishTimes))
		}
		fmt.Fprintf(w, "  %s  fish=%d total=%d duration=%s avg_hook=%s\n",
			r.ReportedAt.Local().Format(time.DateTime), r.FishCaught, r.TotalFishCaught,
			r.Duration.Round(time.Second), avg.Round(time.Millisecond))
	}
}
