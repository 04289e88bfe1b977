package run

import (
	"github.com/neutralts/nipc/config"
	"github.com/spf13/cobra"
)

var (
	configFile = config.Path()
	Cmd        = &cobra.Command{
		Use:   "run",
		Short: "Run a local IPC peer",
		Args:  cobra.NoArgs,
	}
)

func init() {
	Cmd.PersistentFlags().StringVarP(&configFile, "config", "c", configFile, "path of config file")
	Cmd.AddCommand(stubCmd)
}
