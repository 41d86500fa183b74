package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/barma7/dcm2nifti-converter-GE/pkg/convert"
)

func newSequencesCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "sequences",
		Short: "List the supported sequence types",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}

			registry := convert.NewConverter(cfg).Registry()
			for _, name := range registry.Names() {
				plan, err := registry.Lookup(name)
				if err != nil {
					return err
				}
				line := name
				if plan.MultiSeries {
					line += " (multi-series)"
				}
				if plan.SupportsComplex() {
					line += " (complex variant)"
				}
				fmt.Fprintln(cmd.OutOrStdout(), line)
			}
			return nil
		},
	}
}
