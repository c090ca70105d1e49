package cmd

import (
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/xkilldash9x/angler/internal/calibration"
	"github.com/xkilldash9x/angler/internal/observability"
	"github.com/xkilldash9x/angler/internal/service"
)

// newCalibrateCmd creates the `calibrate` command.
func newCalibrateCmd(factory service.ComponentFactory) *cobra.Command {
	var requestOnly bool

	calibrateCmd := &cobra.Command{
		Use:   "calibrate",
		Short: "Measure the movement and turn-rate factors",
		Long: `Walks forward and turns in place while sampling coordinates, then stores the
measured move_factor and rot_factor. With --request the run is only queued for the
next time fishing is started.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			logger := observability.GetLogger()

			cfg, err := getConfigFromContext(ctx)
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			if requestOnly {
				kv, err := openKV(ctx, cfg, logger)
				if err != nil {
					return err
				}
				defer kv.Close()
				if err := calibration.Request(ctx, kv); err != nil {
					return err
				}
				fmt.Fprintln(out, "Calibration requested.")
				return nil
			}

			components, err := factory.Create(ctx, cfg, service.Options{Calibration: true}, logger)
			if err != nil {
				return fmt.Errorf("failed to initialize components: %w", err)
			}
			defer components.Shutdown()

			res, err := components.Engine.Run(ctx)
			if err != nil {
				return err
			}
			printCalibration(out, res)
			if ctx.Err() != nil {
				return ctx.Err()
			}
			return nil
		},
	}

	calibrateCmd.Flags().BoolVar(&requestOnly, "request", false, "only flag a calibration for the running agent")
	return calibrateCmd
}

func printCalibration(w io.Writer, res calibration.Result) {
	fmt.Fprintf(w, "%-12s %s\n", calibration.FieldMove, describePhase(res.Measured.MoveFactor, res.WalkErr))
	fmt.Fprintf(w, "%-12s %s\n", calibration.FieldRotate, describePhase(res.Measured.RotFactor, res.RotErr))
}

func describePhase(v *float64, err error) string {
	switch {
	case v != nil:
		return fmt.Sprintf("%.4f", *v)
	case err != nil:
		return "aborted: " + err.Error()
	default:
		return "unset"
	}
}
