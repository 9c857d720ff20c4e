package cmd

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/gin-gonic/gin"
	"github.com/spf13/cobra"

	"github.com/killallgit/dataset-importer/api"
)

var (
	serverHost string
	serverPort int
)

// serveCmd represents the serve command
var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the API server",
	Long: `Start the YOLO Dataset Importer API server with the configured settings.

The server issues upload credentials, accepts upload completions and object
store notifications, runs ingestions on the background worker pool and serves
dataset listings with signed image URLs.

Interrupted ingestions from a previous run are resumed or failed at startup.

Example:
  dataset-importer serve
  dataset-importer serve --port 9090
  dataset-importer serve --config ./config/settings.yaml`,
	RunE: runServer,
}

func init() {
	rootCmd.AddCommand(serveCmd)

	serveCmd.Flags().StringVar(&serverHost, "host", "", "server host (overrides config)")
	serveCmd.Flags().IntVar(&serverPort, "port", 0, "server port (overrides config)")
}

func runServer(cmd *cobra.Command, args []string) error {
	cfg, closeLog, err := setupLogging()
	if err != nil {
		return err
	}
	defer closeLog()

	if serverHost != "" {
		cfg.Server.Host = serverHost
	}
	if serverPort != 0 {
		cfg.Server.Port = serverPort
	}
	if cfg.Environment == "production" {
		gin.SetMode(gin.ReleaseMode)
	}

	app, err := newApplication(cfg)
	if err != nil {
		return err
	}
	defer app.Close()

	ctx, stop := signal.NotifyContext(cmdContext(cmd), os.Interrupt, syscall.SIGTERM)
	defer stop()

	report, err := app.ingestion.RecoverInterrupted(ctx)
	if err != nil {
		return fmt.Errorf("failed to recover interrupted ingestions: %w", err)
	}
	if report.Resumed > 0 || report.Failed > 0 {
		log.Printf("[INFO] Recovered interrupted ingestions: %d resumed, %d failed", report.Resumed, report.Failed)
	}

	workerCtx, cancelWorkers := context.WithCancel(context.Background())
	defer cancelWorkers()
	if err := app.workerPool.Start(workerCtx); err != nil {
		return fmt.Errorf("failed to start worker pool: %w", err)
	}
	defer app.workerPool.Stop()

	app.cleanup.Start(workerCtx)
	defer app.cleanup.Stop()

	server := api.NewServer(cfg.Server)
	server.SetDependencies(app.dependencies())
	if err := server.Initialize(); err != nil {
		return fmt.Errorf("failed to initialize server: %w", err)
	}

	serverErr := make(chan error, 1)
	go func() {
		if err := server.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErr <- fmt.Errorf("server error: %w", err)
		}
	}()

	log.Printf("[INFO] Server is ready to handle requests at %s", server.Addr())

	select {
	case <-ctx.Done():
		log.Println("[INFO] Shutting down server...")
	case err := <-serverErr:
		log.Printf("[ERROR] %v", err)
		return err
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Printf("[ERROR] Server forced to shutdown: %v", err)
		return err
	}

	log.Println("[INFO] Server gracefully stopped")
	return nil
}

// cmdContext returns the command's context, or Background when none was set
func cmdContext(cmd *cobra.Command) context.Context {
	if ctx := cmd.Context(); ctx != nil {
		return ctx
	}
	return context.Background()
}
