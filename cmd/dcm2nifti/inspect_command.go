package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/barma7/dcm2nifti-converter-GE/pkg/analysis"
	"github.com/barma7/dcm2nifti-converter-GE/pkg/dicomio"
)

func newInspectCommand(ctx *commandContext) *cobra.Command {
	var components int

	cmd := &cobra.Command{
		Use:   "inspect <input-dir>",
		Short: "Infer and print the acquisition structure without converting",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if _, err := ctx.ensureConfig(); err != nil {
				return err
			}

			paths, err := dicomio.ListInstances(args[0])
			if err != nil {
				return err
			}
			records, warnings := dicomio.ExtractBatch(paths)

			structure, err := analysis.Analyze(records, components)
			if err != nil {
				return err
			}
			warnings = append(warnings, structure.Warnings...)

			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "instances:       %d\n", len(records))
			fmt.Fprintf(out, "echoes:          %d\n", structure.EchoCount)
			fmt.Fprintf(out, "slices per echo: %d\n", structure.SlicesPerEcho)
			fmt.Fprintf(out, "components:      %d\n", structure.ComponentCount)
			fmt.Fprint(out, "echo times (ms):")
			for _, te := range structure.EchoTimes {
				fmt.Fprintf(out, " %.2f", te)
			}
			fmt.Fprintln(out)
			for _, w := range warnings {
				fmt.Fprintln(cmd.ErrOrStderr(), "warning:", w)
			}
			return nil
		},
	}

	cmd.Flags().IntVar(&components, "components", 1, "Interleaved components per slice-echo")

	return cmd
}
