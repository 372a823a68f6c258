package commands

import (
	"github.com/spf13/cobra"

	"github.com/qri-io/geode"
	"github.com/qri-io/geode/zarr"
)

func newListCommand(app *App) *cobra.Command {
	return &cobra.Command{
		Use:     "list",
		Aliases: []string{"ls"},
		Short:   "List the variables in a store",
		Args:    cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			names, err := zarr.Variables(app.store, "")
			if err != nil {
				return err
			}
			vars := make([]*geode.Var, 0, len(names))
			for _, name := range names {
				v, err := app.open(cmd.Context(), name)
				if err != nil {
					return err
				}
				vars = append(vars, v)
			}
			renderVars(cmd.OutOrStdout(), vars)
			return nil
		},
	}
}
