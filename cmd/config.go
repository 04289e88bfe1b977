package cmd

import (
	"fmt"

	jsoniter "github.com/json-iterator/go"
	"github.com/neutralts/nipc/config"
	"github.com/spf13/cobra"
)

var (
	showConfigFile = config.Path()

	configCmd = &cobra.Command{
		Use:   "config",
		Short: "Print the effective IPC configuration",
		Long: "Load the config file the way the client does, falling back to defaults for\n" +
			"missing or invalid keys, and print the result as JSON.",
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg := config.Load(showConfigFile)
			out, err := jsoniter.ConfigCompatibleWithStandardLibrary.MarshalIndent(cfg.File(), "", "  ")
			if err != nil {
				return err
			}
			_, err = fmt.Fprintln(cmd.OutOrStdout(), string(out))
			return err
		},
	}
)

func init() {
	configCmd.Flags().StringVarP(&showConfigFile, "config", "c", showConfigFile, "path of config file")
}
