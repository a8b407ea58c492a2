package main

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net"
	"net/http"
	"time"

	"vaultrisk/gateway"
)

func runServe(ctx context.Context, args []string, stdout, stderr io.Writer) int {
	fs := newFlagSet("serve", stderr)
	path := fs.String("config", defaultConfig, "configuration file")
	listen := fs.String("listen", "", "listen address (defaults to server.listen)")
	level := fs.String("log-level", "", "log level (defaults to logging.level)")
	if err := fs.Parse(args); err != nil {
		return 1
	}
	n, err := openNode(ctx, *path, *level, stdout, stderr)
	if err != nil {
		return printError(stderr, "%v", err)
	}
	defer n.Close(ctx)

	addr := n.cfg.Server.Listen
	if *listen != "" {
		addr = *listen
	}
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return printError(stderr, "%v", err)
	}
	if err := serve(ctx, n, ln); err != nil {
		return printError(stderr, "%v", err)
	}
	return 0
}

// serve runs the gateway on ln until ctx is cancelled.
func serve(ctx context.Context, n *node, ln net.Listener) error {
	handler, err := gateway.New(n.engine, gateway.Config{
		ServiceName: n.cfg.Logging.Service,
		RateLimit: gateway.RateLimit{
			RequestsPerMinute: n.cfg.Server.RequestsPerMinute,
			Burst:             n.cfg.Server.Burst,
		},
		Logger: n.logger,
	})
	if err != nil {
		_ = ln.Close()
		return err
	}
	srv := &http.Server{
		Handler:           handler,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       60 * time.Second,
	}
	errs := make(chan error, 1)
	go func() {
		errs <- srv.Serve(ln)
	}()
	n.logger.Info("gateway listening", slog.String("endpoint", ln.Addr().String()))

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			return err
		}
		n.logger.Info("gateway stopped")
		return nil
	case err := <-errs:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	}
}
