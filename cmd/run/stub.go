package run

import (
	"github.com/neutralts/nipc/config"
	"github.com/neutralts/nipc/server"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
)

var (
	listenAddr string

	stubCmd = &cobra.Command{
		Use:   "stub",
		Short: "Start a stub rendering peer",
		Long: "Start a peer that speaks the IPC protocol and answers every parse-template\n" +
			"request with the template reference and the schema it received.\n" +
			"Useful to check a client setup without a template engine.",
		Args: cobra.NoArgs,
		RunE: runStub,
	}
)

func init() {
	stubCmd.Flags().StringVarP(&listenAddr, "listen", "l", "", "listen address (default: address from config)")
}

func runStub(cmd *cobra.Command, args []string) error {
	logger := log.With().Str("com", "stub-cmd").Logger()

	addr := listenAddr
	if addr == "" {
		logger.Info().Str("config", configFile).Msg("loading configuration")
		addr = config.Load(configFile).Address()
	}

	// cmd.Context() is canceled on SIGINT and SIGTERM.
	ctx := cmd.Context()

	srv := server.New(addr, server.StubHandler(), log.Logger)
	if err := srv.Listen(ctx); err != nil {
		return err
	}
	logger.Info().Str("addr", srv.Addr().String()).Msg("stub peer listening")

	err := srv.Serve(ctx)
	logger.Info().Msg("stub peer stopped")
	return err
}
