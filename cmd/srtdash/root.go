package main

import (
	"github.com/spf13/cobra"

	"github.com/rjboer/GoSRT/internal/config"
)

type rootOptions struct {
	configPath string
	lookup     func(string) (string, bool)
}

func newRootCmd(lookup func(string) (string, bool)) *cobra.Command {
	opts := &rootOptions{lookup: lookup}
	cmd := &cobra.Command{
		Use:           "srtdash",
		Short:         "Ingest spectrum and status feeds for the telescope dashboard",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	cmd.PersistentFlags().StringVarP(&opts.configPath, "config", "c", "srtdash.yaml", "YAML configuration file")

	cmd.AddCommand(newServeCmd(opts), newDiscoverCmd(opts), newConfigCmd(opts))
	return cmd
}

// loadConfig reads the file and environment, then lets apply copy in the
// flags the user set explicitly.
func (o *rootOptions) loadConfig(apply func(*config.Config)) (config.Config, error) {
	cfg, err := config.Load(o.configPath, o.lookup)
	if err != nil {
		return config.Config{}, err
	}
	if apply != nil {
		apply(&cfg)
	}
	return cfg, cfg.Validate()
}
