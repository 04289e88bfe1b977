package config

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/neutralts/nipc/examples"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
)

var (
	outputPath string // --output flag value

	Cmd = &cobra.Command{
		Use:   "config",
		Short: "Generate an IPC configuration file",
		Long: "Generate an IPC configuration file holding the default values.\n" +
			"The syntax follows the output extension: .json, .yaml/.yml or .toml.",
		Args: cobra.NoArgs,
		RunE: runGenerate,
	}
)

func init() {
	Cmd.Flags().StringVarP(&outputPath, "output", "o", "neutral-ipc-cfg.json", "output config file path")
}

func runGenerate(cmd *cobra.Command, args []string) error {
	logger := log.With().Str("com", "generate").Logger()

	// Check if file exists
	if _, err := os.Stat(outputPath); err == nil {
		return fmt.Errorf("file already exists: %s", outputPath)
	}

	content, err := examples.Config(filepath.Ext(outputPath))
	if err != nil {
		return fmt.Errorf("load config template: %w", err)
	}

	if err := os.WriteFile(outputPath, content, 0644); err != nil {
		return fmt.Errorf("write config: %w", err)
	}

	logger.Info().Str("file", outputPath).Msg("generated configuration")
	return nil
}
