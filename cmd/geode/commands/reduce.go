package commands

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/qri-io/geode"
)

const defaultPrintLimit = 24

// ReduceCommand holds the flags of the reduce command.
type ReduceCommand struct {
	app *App

	kind     string
	axes     []string
	weighted bool
	out      string
	limit    int
}

func newReduceCommand(app *App) *cobra.Command {
	rc := &ReduceCommand{app: app}

	cmd := &cobra.Command{
		Use:   "reduce VARIABLE",
		Short: "Reduce a variable over named axes",
		Long: fmt.Sprintf(`Reduce a variable over the named axes, or over every axis when none are
given. The result is printed, and stored when --out is set.

Kinds: %s`, strings.Join(geode.Kinds(), ", ")),
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error { return rc.run(cmd, args[0]) },
	}

	flags := cmd.Flags()
	flags.StringVarP(&rc.kind, "kind", "k", "mean", "reduction kind")
	flags.StringSliceVarP(&rc.axes, "axes", "a", nil, "axes to reduce, comma separated")
	flags.BoolVarP(&rc.weighted, "weighted", "w", false, "weight by the weights of the reduced axes")
	flags.StringVarP(&rc.out, "out", "o", "", "store the result under this name")
	flags.IntVar(&rc.limit, "limit", defaultPrintLimit, "maximum values to print")

	return cmd
}

func (rc *ReduceCommand) run(cmd *cobra.Command, name string) error {
	ctx := cmd.Context()
	kind, err := geode.ParseKind(rc.kind)
	if err != nil {
		return err
	}
	x, err := rc.app.open(ctx, name)
	if err != nil {
		return err
	}

	var opts []geode.ReduceOption
	if rc.weighted {
		opts = append(opts, geode.AxisWeights())
	}
	res, err := geode.Reduce(x, kind, rc.axes, opts...)
	if err != nil {
		return err
	}
	res = res.Rename(fmt.Sprintf("%s_%s", name, kind))

	if rc.out != "" {
		res = res.Rename(rc.out)
		if err := rc.app.write(ctx, res); err != nil {
			return err
		}
		if res, err = rc.app.open(ctx, rc.out); err != nil {
			return err
		}
	}
	return show(cmd, rc.app, res, rc.limit)
}

// show prints at most limit leading values of v.
func show(cmd *cobra.Command, app *App, v *geode.Var, limit int) error {
	if limit <= 0 {
		return nil
	}
	head := v
	for d := range v.NDim() {
		n := v.Shape()[d]
		if n > limit {
			var err error
			if head, err = head.Slice(v.AxisAt(d).Name(), 0, limit); err != nil {
				return err
			}
		}
	}
	a, err := head.Get(cmd.Context(), app.options()...)
	if err != nil {
		return err
	}
	renderValues(cmd.OutOrStdout(), head, a, limit)
	return nil
}
