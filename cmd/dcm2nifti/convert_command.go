package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/barma7/dcm2nifti-converter-GE/pkg/convert"
)

func newConvertCommand(ctx *commandContext) *cobra.Command {
	var params convert.Params

	cmd := &cobra.Command{
		Use:   "convert <input-dir> <output-dir>",
		Short: "Convert one acquisition to NIfTI volumes and metadata sidecars",
		Long: `Convert reads the DICOM instances of one acquisition, infers the echo and
component structure, and writes the reassembled NIfTI volumes plus plain-text
metadata sidecars to the output directory.

Multi-series sequences (ute, ute_sr) read each series from a subfolder of the
input directory named by --series.`,
		Args: cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}

			params.InputDir = args[0]
			params.OutputDir = args[1]

			res, err := convert.NewConverter(cfg).Convert(cmd.Context(), params)
			if err != nil {
				return err
			}

			for _, w := range res.Warnings {
				fmt.Fprintln(cmd.ErrOrStderr(), "warning:", w)
			}
			for _, a := range res.Artifacts {
				fmt.Fprintln(cmd.OutOrStdout(), a)
			}
			return nil
		},
	}

	cmd.Flags().StringVarP(&params.Sequence, "sequence", "s", "general", "Sequence type (see the sequences command)")
	cmd.Flags().StringSliceVar(&params.SeriesNumbers, "series", nil, "Series subfolder names for multi-series sequences")
	cmd.Flags().BoolVar(&params.Coregister, "coregister", false, "Co-register series onto the central series before joining")
	cmd.Flags().BoolVar(&params.Complex, "complex", false, "Reconstruct the complex components when the sequence has them")
	cmd.Flags().BoolVar(&params.Invert, "invert", false, "Reverse the slice order of each echo before assembly")
	cmd.Flags().BoolVar(&params.NoSort, "no-sort", false, "Keep the original file order instead of sorting by position")

	return cmd
}
