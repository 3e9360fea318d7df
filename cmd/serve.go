package cmd

import (
	"context"
	"errors"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/markrhq/markr/internal/assistant"
	"github.com/markrhq/markr/internal/capture"
	"github.com/markrhq/markr/internal/config"
	"github.com/markrhq/markr/internal/embedding"
	"github.com/markrhq/markr/internal/notify"
	"github.com/markrhq/markr/internal/report"
	"github.com/markrhq/markr/internal/store/postgres"
	"github.com/markrhq/markr/internal/web"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the attendance API server",
	Long: `Start the Markr API server.
The server exposes attendance capture, confirmation, reports, analytics,
roster management, and guardian notifications under /api/v1.`,
	RunE: runServe,
}

func init() {
	rootCmd.AddCommand(serveCmd)

	serveCmd.Flags().Int("port", 8080, "Port to listen on")
	serveCmd.Flags().String("host", "0.0.0.0", "Host to bind to")
}

// resolveServeHostPort resolves port and host from flags and environment variables.
func resolveServeHostPort(cmd *cobra.Command) (int, string) {
	port := mustGetInt(cmd, "port")
	host := mustGetString(cmd, "host")

	if envPort := os.Getenv("WEB_PORT"); envPort != "" {
		fmt.Sscanf(envPort, "%d", &port)
	}
	if envHost := os.Getenv("WEB_HOST"); envHost != "" {
		host = envHost
	}
	return port, host
}

// buildDependencies wires the stores and services the API serves.
func buildDependencies(ctx context.Context, cfg *config.Config, stores *postgres.Stores) web.Dependencies {
	gateway := embedding.NewGateway(cfg.Embedding.URL, cfg.Embedding.Dim)

	manager := capture.NewManager(stores.Captures, stores.Directory)
	detectTimeout := time.Duration(cfg.Embedding.TimeoutSeconds) * time.Second
	pipeline := capture.NewPipeline(manager, gateway, stores.Roster, cfg.Matching.Tolerance, detectTimeout)
	committer := capture.NewCommitter(stores.Captures, stores.Attendance, stores.Roster, stores.Directory)

	var smsGateway notify.Gateway
	if cfg.SMS.GatewayURL != "" {
		smsGateway = notify.NewHTTPGateway(cfg.SMS.GatewayURL, cfg.SMS.SenderID)
		fmt.Println("SMS gateway enabled")
	} else {
		fmt.Println("SMS gateway not configured, messages will only be logged")
	}

	provider, err := assistant.New(ctx, &cfg.Assistant)
	switch {
	case errors.Is(err, assistant.ErrDisabled):
		fmt.Println("Assistant disabled")
	case err != nil:
		fmt.Printf("Warning: assistant unavailable: %v\n", err)
	default:
		fmt.Printf("Assistant enabled (%s)\n", provider.Name())
	}

	return web.Dependencies{
		Roster:    stores.Roster,
		Directory: stores.Directory,
		Tokens:    stores.Tokens,
		Manager:   manager,
		Pipeline:  pipeline,
		Committer: committer,
		Detector:  gateway,
		Reports:   report.NewService(stores.Attendance, stores.Roster, stores.Directory),
		Notify:    notify.NewService(stores.SMS, stores.Roster, stores.Attendance, stores.Directory, smsGateway),
		Assistant: provider,
	}
}

// cleanupExpiredSessions deletes expired login sessions hourly until the
// context is cancelled.
func cleanupExpiredSessions(ctx context.Context, stores *postgres.Stores) {
	ticker := time.NewTicker(time.Hour)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if n, err := stores.Tokens.DeleteExpiredAuthSessions(ctx); err != nil {
				log.Printf("session cleanup failed: %v", err)
			} else if n > 0 {
				log.Printf("deleted %d expired sessions", n)
			}
		}
	}
}

func runServe(cmd *cobra.Command, args []string) error {
	cfg := config.Load()

	if cfg.Database.URL == "" {
		return errors.New("DATABASE_URL environment variable is required")
	}
	if cfg.Server.SessionSecret == "" {
		return errors.New("SESSION_SECRET environment variable is required")
	}

	fmt.Printf("Connecting to PostgreSQL database...\n")
	pool, stores, err := postgres.Initialize(&cfg.Database)
	if err != nil {
		return fmt.Errorf("failed to initialize PostgreSQL: %w", err)
	}
	defer pool.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	deps := buildDependencies(ctx, cfg, stores)
	port, host := resolveServeHostPort(cmd)
	server := web.NewServer(cfg, port, host, deps)

	go cleanupExpiredSessions(ctx, stores)

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	go func() {
		<-sigChan
		fmt.Println("\nShutting down...")

		shutdownCtx, shutdownCancel := context.WithTimeout(ctx, 30*time.Second)
		defer shutdownCancel()

		if err := server.Shutdown(shutdownCtx); err != nil {
			fmt.Printf("Error during shutdown: %v\n", err)
		}
	}()

	fmt.Printf("Starting Markr API on http://%s:%d\n", host, port)
	fmt.Println("Press Ctrl+C to stop")

	if err := server.Start(); err != nil {
		return fmt.Errorf("starting server: %w", err)
	}
	return nil
}
