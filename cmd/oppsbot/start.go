package main

import (
	"os"
	"os/signal"

	"github.com/spf13/cobra"

	"github.com/sandevgo/oppsbot/pkg/log"
	"github.com/sandevgo/oppsbot/pkg/srv"
)

var port int

var startCmd = &cobra.Command{
	Use:   "start",
	Short: "Start the OppsBot services",
	Long:  `Initializes the opportunity store and the language model provider, then serves chat over websocket, HTTP and the local terminal.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt)
		defer stop()

		// logger setup
		var flushLog func()
		ctx, flushLog = setupLogger(ctx)
		defer flushLog()

		logger := log.FromCtx(ctx)
		logger.Info().Msg("starting oppsbot")

		services := NewServices(ctx)

		srv.StartServices(ctx, services)

		// Wait for shutdown signal
		srv.ShutdownServices(ctx, services)
		logger.Info().Msg("oppsbot has been shut down gracefully")

		return nil
	},
}

func init() {
	startCmd.Flags().IntVar(&port, "port", 0, "override the HTTP listen port")
	rootCmd.AddCommand(startCmd)
}
