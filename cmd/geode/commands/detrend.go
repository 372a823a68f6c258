package commands

import (
	"github.com/spf13/cobra"

	"github.com/qri-io/geode"
)

// DetrendCommand holds the flags of the detrend command.
type DetrendCommand struct {
	app *App

	keepTrend bool
}

func newDetrendCommand(app *App) *cobra.Command {
	dc := &DetrendCommand{app: app}

	cmd := &cobra.Command{
		Use:   "detrend VARIABLE",
		Short: "Remove the climatological trend from a variable",
		Long: `Fit a linear trend per calendar month, subtract it and store the residual
as <variable>_detrended. With --keep-trend the reconstructed trend is
stored as <variable>_trend too.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error { return dc.run(cmd, args[0]) },
	}

	cmd.Flags().BoolVar(&dc.keepTrend, "keep-trend", false, "also store the reconstructed trend")

	return cmd
}

func (dc *DetrendCommand) run(cmd *cobra.Command, name string) error {
	ctx := cmd.Context()
	x, err := dc.app.open(ctx, name)
	if err != nil {
		return err
	}
	resid, trend, err := geode.DetrendWithTrend(ctx, x, dc.app.options()...)
	if err != nil {
		return err
	}

	written := []*geode.Var{resid}
	if err := dc.app.write(ctx, resid); err != nil {
		return err
	}
	if dc.keepTrend {
		if err := dc.app.write(ctx, trend); err != nil {
			return err
		}
		written = append(written, trend)
	}
	renderVars(cmd.OutOrStdout(), written)
	return nil
}
