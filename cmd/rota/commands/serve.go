package commands

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/dyluth/rota/internal/config"
	"github.com/dyluth/rota/internal/gateway"
	"github.com/dyluth/rota/internal/hub"
	"github.com/dyluth/rota/internal/printer"
	"github.com/dyluth/rota/internal/server"
	"github.com/dyluth/rota/internal/store"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"
)

const shutdownTimeout = 10 * time.Second

var (
	servePort           int
	serveStaticDir      string
	serveAllowedOrigins []string
	serveStore          storeFlags
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the booking board server",
	Long: `Run the HTTP and WebSocket server for the booking board.

Endpoints:
  GET /bookings  current bookings as a JSON object (date -> person)
  GET /socket    WebSocket for live updates (update_bookings / bookings_updated)
  GET /healthz   store connectivity
  GET /          static client page from --static (default ./web)

Examples:
  # CSV file in the current directory on port 5000
  rota serve

  # Only accept browser sockets from the public site
  rota serve --allowed-origin=https://rota.example.com

  # Redis-backed board
  rota serve --store=redis --redis-url=redis://localhost:6379/0

  # Everything from the environment
  PORT=8080 ROTA_STORE=sqlite ROTA_SQLITE_PATH=/data/rota.db rota serve`,
	RunE: runServe,
}

func init() {
	serveCmd.Flags().IntVarP(&servePort, "port", "p", 0, "Port to listen on (default 5000, or $PORT)")
	serveCmd.Flags().StringVar(&serveStaticDir, "static", "", "Directory of static client files (default: ./web)")
	serveCmd.Flags().StringSliceVar(&serveAllowedOrigins, "allowed-origin", nil, "Browser origin allowed to open the socket (repeatable; default: any)")
	serveStore.register(serveCmd)
	rootCmd.AddCommand(serveCmd)
}

func runServe(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(cmd, &serveStore, func(cfg *config.RotaConfig) {
		if cmd.Flags().Changed("port") {
			cfg.Port = servePort
		}
		if cmd.Flags().Changed("static") {
			cfg.StaticDir = serveStaticDir
		}
		if cmd.Flags().Changed("allowed-origin") {
			cfg.AllowedOrigins = serveAllowedOrigins
		}
	})
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	printer.Step("Opening %s store...\n", cfg.Store.Backend)
	s, err := store.Open(ctx, cfg.Store)
	if err != nil {
		return printer.ErrorWithContext(
			"failed to open booking store",
			fmt.Sprintf("Error: %v", err),
			storeContext(cfg),
			[]string{"Check that the backing store is reachable and the path is writable"},
		)
	}
	defer s.Close()

	h := hub.New(s)
	srv := server.New(cfg.Addr(), h, s, cfg.StaticDir,
		gateway.WithCheckOrigin(gateway.AllowOrigins(cfg.AllowedOrigins)))

	printer.Success("Rota listening on http://localhost:%d\n", cfg.Port)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(srv.ListenAndServe)
	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})

	if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		return printer.Error(
			"server stopped with an error",
			fmt.Sprintf("Error: %v", err),
			[]string{fmt.Sprintf("Check that port %d is free:\n  lsof -i :%d", cfg.Port, cfg.Port)},
		)
	}

	printer.Info("Rota stopped\n")
	return nil
}

func storeContext(cfg *config.RotaConfig) map[string]string {
	ctx := map[string]string{"Backend": cfg.Store.Backend}
	switch cfg.Store.Backend {
	case config.BackendFile:
		ctx["CSV"] = cfg.Store.CSVPath
	case config.BackendRedis:
		ctx["Redis"] = cfg.Store.RedactedRedisURL()
		ctx["Namespace"] = cfg.Store.Namespace
	case config.BackendSQLite:
		ctx["SQLite"] = cfg.Store.SQLitePath
	}
	if wd, err := os.Getwd(); err == nil {
		ctx["Working directory"] = wd
	}
	return ctx
}
