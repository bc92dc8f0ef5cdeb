package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/GriffinCanCode/localwebapp/internal/domain/version"
)

func newVersionCmd(a *app) *cobra.Command {
	var bump bool

	cmd := &cobra.Command{
		Use:   "version <dir>",
		Short: "Print the effective version, or increase it with --bump",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			out := cmd.OutOrStdout()
			if !bump {
				v, err := version.ReconcileFile(args[0])
				if err != nil {
					return err
				}
				fmt.Fprintln(out, v)
				return nil
			}

			oldVersion, newVersion, err := version.Bump(args[0])
			if err != nil {
				return err
			}
			fmt.Fprintln(out, titleStyle.Render(oldVersion)+" → "+successStyle.Render(newVersion))
			return nil
		},
	}
	cmd.Flags().BoolVar(&bump, "bump", false, "increase the patch number (keeping any suffix) and save it")
	return cmd
}
