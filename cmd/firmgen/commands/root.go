package commands

import (
	"os"

	"github.com/phrazzld/firmgen/internal/config"
	"github.com/spf13/cobra"
)

// NewRootCmd creates the root command
func NewRootCmd() *cobra.Command {
	var configFile string

	rootCmd := &cobra.Command{
		Use:           "firmgen",
		Short:         "Generate embedded C code from datasheets and schematics",
		SilenceUsage:  true,
		SilenceErrors: false,
	}
	rootCmd.PersistentFlags().StringVarP(&configFile, "config", "c", "",
		"config file path (default: $FIRMGEN_CONFIG, ./config.yaml or /etc/firmgen/config.yaml)")

	load := func() (*config.Config, error) {
		path := configFile
		if path == "" {
			path = os.Getenv(config.EnvConfigFile)
		}
		src, err := config.NewSource(path)
		if err != nil {
			return nil, err
		}
		return src.Config()
	}

	rootCmd.AddCommand(
		newGenerateCommand(load),
		newToolsCommand(load),
		newConfigCommand(load),
	)

	return rootCmd
}

// configLoader returns the effective configuration for a command.
type configLoader func() (*config.Config, error)
