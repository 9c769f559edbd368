package main

import (
	"context"
	"log/slog"
	"net/http/cgi"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/dsbridge/dsbridge/pkg/config"
	"github.com/dsbridge/dsbridge/pkg/server"
)

func serveCmd() *cobra.Command {
	var listen string

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the bridge over HTTP",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg := current.cfg
			if listen != "" {
				cfg.Server.Address = listen
			}

			srv := newServer(current)

			ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			current.logger.Info("starting dsbridge",
				slog.String("addr", cfg.Server.Address),
				slog.Bool("relay_headers", cfg.Server.Relay()),
			)
			return srv.ListenAndServe(ctx)
		},
	}

	cmd.Flags().StringVar(&listen, "listen", os.Getenv("DSBRIDGE_LISTEN"), "Listen address (env: DSBRIDGE_LISTEN)")
	return cmd
}

func newServer(a *app) *server.Server {
	return server.New(serverConfig(a.cfg), a.bridge,
		server.WithLogger(a.logger.With(slog.String("component", "server"))),
		server.WithRegistry(a.registry),
	)
}

func serverConfig(cfg *config.Config) server.Config {
	return server.Config{
		Address:           cfg.Server.Address,
		ReadHeaderTimeout: cfg.Server.ReadHeaderTimeout,
		RelayHeaders:      cfg.Server.Relay(),
		RequireAdmin:      cfg.Server.RequireAdmin,
	}
}

// isCGI reports whether the binary was started by a web server as a CGI
// program without subcommand arguments.
func isCGI() bool {
	return os.Getenv("GATEWAY_INTERFACE") != "" && len(os.Args) == 1
}

// serveCGI answers the single request described by the environment with
// the same routes as serve.
func serveCGI() error {
	a, err := setup(os.Getenv("DSBRIDGE_CONFIG"), "", os.Stderr)
	if err != nil {
		return err
	}
	return cgi.Serve(newServer(a).Handler())
}
