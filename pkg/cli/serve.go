package cli

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/beam-cloud/bucketmount/pkg/server"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
)

var (
	serveHost string
	servePort int
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the HTTP control API",
	Long: `Run the mount supervisor behind the HTTP control API.

The API listens on api.host:api.port and exposes status, mount, unmount,
bucket listing, profile management and a server-sent event stream under
/api/v1. An active mount is unmounted when the server stops.`,
	Args: cobra.NoArgs,
	RunE: runServe,
}

func init() {
	serveCmd.Flags().StringVar(&serveHost, "host", "", "Override api.host")
	serveCmd.Flags().IntVar(&servePort, "port", 0, "Override api.port")
	rootCmd.AddCommand(serveCmd)
}

func runServe(cmd *cobra.Command, args []string) error {
	cfg := appConfig
	if serveHost != "" {
		cfg.API.Host = serveHost
	}
	if servePort != 0 {
		cfg.API.Port = servePort
	}

	// The server is a long-running service; log at info unless debugging.
	if !debugLogs && !cfg.DebugMode {
		zerolog.SetGlobalLevel(zerolog.InfoLevel)
	}

	srv, err := server.NewServer(cfg)
	if err != nil {
		return err
	}

	parent := cmd.Context()
	if parent == nil {
		parent = context.Background()
	}
	ctx, stop := signal.NotifyContext(parent, os.Interrupt, syscall.SIGTERM)
	defer stop()

	log.Info().Str("addr", srv.Addr()).Str("profiles", srv.Profiles.Path()).Msg("starting bucketmount server")
	return srv.Run(ctx)
}
