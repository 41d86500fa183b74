package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/barma7/dcm2nifti-converter-GE/pkg/config"
	"github.com/barma7/dcm2nifti-converter-GE/pkg/logger"
)

// commandContext carries the flags and lazily loaded configuration shared by
// every subcommand.
type commandContext struct {
	configFlag *string
	logLevel   *string
	logFormat  *string

	cfg *config.Config
}

// ensureConfig loads the configuration file once and initializes logging
// from it, honoring the log flags when set.
func (c *commandContext) ensureConfig() (*config.Config, error) {
	if c.cfg != nil {
		return c.cfg, nil
	}

	var cfg *config.Config
	if *c.configFlag != "" {
		loaded, err := config.LoadConfig(*c.configFlag)
		if err != nil {
			return nil, fmt.Errorf("load config %s: %w", *c.configFlag, err)
		}
		cfg = loaded
	} else {
		cfg = config.DefaultConfig()
	}

	if *c.logLevel != "" {
		cfg.Log.Level = *c.logLevel
	}
	if *c.logFormat != "" {
		cfg.Log.Format = *c.logFormat
	}
	logger.Init(cfg.Log.Level, cfg.Log.Format)

	c.cfg = cfg
	return cfg, nil
}

func newRootCommand() *cobra.Command {
	var configFlag, logLevel, logFormat string

	ctx := &commandContext{
		configFlag: &configFlag,
		logLevel:   &logLevel,
		logFormat:  &logFormat,
	}

	rootCmd := &cobra.Command{
		Use:           "dcm2nifti",
		Short:         "Convert GE multi-echo DICOM series to NIfTI volumes",
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return cmd.Help()
		},
	}

	rootCmd.PersistentFlags().StringVarP(&configFlag, "config", "c", "", "Configuration file path")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "Log level (debug, info, warn, error)")
	rootCmd.PersistentFlags().StringVar(&logFormat, "log-format", "", "Log format (console, json)")

	rootCmd.AddCommand(newConvertCommand(ctx))
	rootCmd.AddCommand(newSequencesCommand(ctx))
	rootCmd.AddCommand(newInspectCommand(ctx))
	rootCmd.AddCommand(newConfigCommand())

	return rootCmd
}
