package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/agentsea/taskara/internal/auth"
	"github.com/agentsea/taskara/internal/benchmark"
	"github.com/agentsea/taskara/internal/config"
	"github.com/agentsea/taskara/internal/events"
	"github.com/agentsea/taskara/internal/logging"
	"github.com/agentsea/taskara/internal/server"
	"github.com/agentsea/taskara/internal/store"
	"github.com/agentsea/taskara/internal/task"
)

func main() {
	root := &cobra.Command{
		Use:   "taskara",
		Short: "Task tracker for autonomous agents",
	}
	root.AddCommand(serveCommand())
	root.AddCommand(trackersCommand())
	if err := root.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func serveCommand() *cobra.Command {
	var (
		port  int
		debug bool
	)
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the tracker API server",
		RunE: func(cmd *cobra.Command, args []string) error {
			return serve(cmd.Context(), port, debug)
		},
	}
	cmd.Flags().IntVar(&port, "port", 0, "listen port (defaults to TASK_SERVER_PORT)")
	cmd.Flags().BoolVar(&debug, "debug", false, "verbose request logging")
	return cmd
}

func serve(ctx context.Context, port int, debug bool) error {
	logger := logging.NewComponentLogger("Main")
	cfg := config.Load()
	if port != 0 {
		cfg.Port = port
	}

	logger.Info("connecting to database %s", cfg.DBName)
	st, err := store.Connect(ctx, cfg.DBURL)
	if err != nil {
		return err
	}
	defer st.Close()
	if err := st.EnsureSchema(ctx); err != nil {
		return err
	}

	publisher, err := events.NewRedisPublisher(cfg.RedisURL)
	if err != nil {
		return fmt.Errorf("connect redis: %w", err)
	}
	defer publisher.Close()

	var verifier auth.Verifier = auth.NewHubVerifier(cfg.AuthURL)
	if cfg.NoAuth {
		logger.Warn("auth disabled, all requests run as the local user")
		verifier = auth.NoAuthVerifier{}
	}

	tasks := task.NewService(st, task.WithPublisher(publisher))
	benchmarks := benchmark.NewService(st, tasks)
	srv := server.NewServer(server.Config{Port: cfg.Port, Debug: debug}, st, tasks, benchmarks, verifier)

	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.Start()
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	select {
	case err := <-errCh:
		return err
	case sig := <-sigCh:
		logger.Info("received %s, shutting down", sig)
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}
