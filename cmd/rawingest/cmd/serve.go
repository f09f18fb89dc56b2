package cmd

import (
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"rawingest/internal/app"
	"rawingest/internal/server"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Serve the ingest endpoint over HTTP",
	Long: `Starts an HTTP server with POST /ingest, GET /health, GET /stats and
GET /metrics. Object-created notifications, when configured, are published
asynchronously.`,
	Example: `  RAW_BUCKET=raw-events rawingest serve --addr :8080
  rawingest serve --config config.yaml`,
	Args: cobra.NoArgs,
	RunE: runServe,
}

func init() {
	serveCmd.Flags().String("addr", "", "listen address (overrides server.addr)")
	rootCmd.AddCommand(serveCmd)
}

func runServe(cmd *cobra.Command, args []string) error {
	if addr, _ := cmd.Flags().GetString("addr"); addr != "" {
		cfg.Server.Addr = addr
	}
	if err := cfg.Validate(); err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	a, err := app.New(ctx, cfg, app.Options{AsyncNotify: true})
	if err != nil {
		return err
	}

	return server.New(a).Run(ctx)
}
