package commands

import (
	"fmt"
	"sort"
	"strings"

	"github.com/spf13/cobra"

	"github.com/qri-io/geode"
)

// aggregates maps operation names to temporal aggregates.
var aggregates = map[string]func(*geode.Var) (*geode.Var, error){
	"clim":       geode.Climatology,
	"daily":      geode.DailyMean,
	"monthly":    geode.MonthlyMean,
	"diurnal":    geode.DiurnalMean,
	"seasonal":   geode.SeasonalMean,
	"clim-trend": geode.ClimTrend,
	"trend":      geode.LinearTrend,
}

func aggregateNames() []string {
	names := make([]string, 0, len(aggregates))
	for name := range aggregates {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// AggregateCommand holds the flags of the aggregate command.
type AggregateCommand struct {
	app *App

	op    string
	out   string
	limit int
}

func newAggregateCommand(app *App) *cobra.Command {
	ac := &AggregateCommand{app: app}

	cmd := &cobra.Command{
		Use:   "aggregate VARIABLE",
		Short: "Compute a temporal aggregate or trend",
		Long: fmt.Sprintf(`Compute a calendar aggregate of a variable and store it. The stored time
axis is renamed time_<op> so it can sit beside the source time axis.

Operations: %s`, strings.Join(aggregateNames(), ", ")),
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error { return ac.run(cmd, args[0]) },
	}

	flags := cmd.Flags()
	flags.StringVar(&ac.op, "op", "clim", "aggregate operation")
	flags.StringVarP(&ac.out, "out", "o", "", "store the result under this name (default derived from the operation)")
	flags.IntVar(&ac.limit, "limit", defaultPrintLimit, "maximum values to print")

	return cmd
}

func (ac *AggregateCommand) run(cmd *cobra.Command, name string) error {
	ctx := cmd.Context()
	fn, ok := aggregates[ac.op]
	if !ok {
		return fmt.Errorf("%w: unknown aggregate %q, want one of %s",
			geode.ErrConfiguration, ac.op, strings.Join(aggregateNames(), ", "))
	}
	x, err := ac.app.open(ctx, name)
	if err != nil {
		return err
	}
	res, err := fn(x)
	if err != nil {
		return err
	}

	ti, err := res.FamilyIndex(geode.FamilyTime)
	if err != nil {
		return err
	}
	axisName := "time_" + strings.ReplaceAll(ac.op, "-", "_")
	if res, err = res.ReplaceAxis(ti, res.AxisAt(ti).Rename(axisName)); err != nil {
		return err
	}
	if ac.out != "" {
		res = res.Rename(ac.out)
	}

	if err := ac.app.write(ctx, res); err != nil {
		return err
	}
	stored, err := ac.app.open(ctx, res.Name())
	if err != nil {
		return err
	}
	return show(cmd, ac.app, stored, ac.limit)
}
