package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/neutralts/nipc/cmd/generate"
	"github.com/neutralts/nipc/cmd/render"
	"github.com/neutralts/nipc/cmd/run"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
)

var (
	Version = "dev"

	showVersion bool
	debug       bool

	rootCmd = &cobra.Command{
		Use:   "nipc",
		Short: "Client for the Neutral IPC template rendering protocol",
		Args:  cobra.NoArgs,
		CompletionOptions: cobra.CompletionOptions{
			DisableDefaultCmd: true,
		},
		SilenceUsage: true,
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			SetLogLevel()
		},
		Run: func(cmd *cobra.Command, args []string) {
			if showVersion {
				fmt.Fprintln(cmd.OutOrStdout(), Version)
				return
			}
			cmd.Help()
		},
	}
)

func Execute() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := rootCmd.ExecuteContext(ctx); err != nil {
		stop()
		log.Fatal().Err(err).Msg("failed to execute")
	}
}

func init() {
	rootCmd.PersistentFlags().BoolVar(&debug, "debug", false, "Enable debug logging")
	rootCmd.Flags().BoolVarP(&showVersion, "version", "v", false, "Print version information")
	rootCmd.AddCommand(run.Cmd)
	rootCmd.AddCommand(generate.Cmd)
	rootCmd.AddCommand(render.Cmd)
	rootCmd.AddCommand(configCmd)
}

// SetLogLevel sets the global log level based on the debug flag.
func SetLogLevel() {
	if debug {
		zerolog.SetGlobalLevel(zerolog.TraceLevel)
	} else {
		zerolog.SetGlobalLevel(zerolog.InfoLevel)
	}
}
