package cli

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/Arthur-Meier/AgroTech/internal/httpapi"
	"github.com/spf13/cobra"
)

const serveShutdownTimeout = 5 * time.Second

func newServeCommand(deps commandDeps) *cobra.Command {
	var addr string
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve herd records over a local JSON API",
		Example: "  agrotech serve\n" +
			"  agrotech serve --addr 127.0.0.1:9090",
		RunE: func(cmd *cobra.Command, args []string) error {
			if len(args) != 0 {
				return usageErrorf("serve does not accept positional arguments")
			}
			return withSession(cmd.Context(), deps, func(ctx context.Context, s *session) error {
				if strings.TrimSpace(addr) != "" {
					s.cfg.Server.Addr = addr
				}
				return runServe(ctx, deps, s)
			})
		},
	}
	cmd.Flags().StringVar(&addr, "addr", "", "Listen address (default from config, 127.0.0.1:8080)")
	return cmd
}

func runServe(ctx context.Context, deps commandDeps, s *session) error {
	if ctx == nil {
		ctx = context.Background()
	}
	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	listener, err := net.Listen("tcp", s.cfg.Server.Addr)
	if err != nil {
		return fmt.Errorf("serve: listen %s: %w", s.cfg.Server.Addr, err)
	}

	server := &http.Server{
		Handler:      httpapi.NewRouter(httpapi.Options{Repo: s.repo, Logger: s.logger}),
		ReadTimeout:  s.cfg.Server.ReadTimeout,
		WriteTimeout: s.cfg.Server.WriteTimeout,
	}

	serveErr := make(chan error, 1)
	go func() {
		serveErr <- server.Serve(listener)
	}()

	url := "http://" + listener.Addr().String()
	s.logger.Info("api listening", "addr", listener.Addr().String(), "backend", string(s.kind))
	if deps.globals.JSON {
		if err := printJSON(deps.out, map[string]any{"url": url, "backend": s.kind}); err != nil {
			return err
		}
	} else if !deps.globals.Quiet {
		if _, err := fmt.Fprintf(deps.out, "listening on %s (backend=%s)\n", url, s.kind); err != nil {
			return err
		}
	}

	select {
	case err := <-serveErr:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return fmt.Errorf("serve: %w", err)
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), serveShutdownTimeout)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("serve: shutdown: %w", err)
	}
	s.logger.Info("api stopped")
	return nil
}
