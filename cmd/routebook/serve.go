package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/dgallion1/routebook/internal/api"
	"github.com/dgallion1/routebook/internal/config"
	"github.com/dgallion1/routebook/internal/pipeline"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Serve the stages over HTTP",
	Long: `Serve starts an HTTP API that queues stage runs and executes them one at
a time against the configured working tree. Set server.api_key (or
ROUTEBOOK_SERVER_API_KEY) to require a bearer token on /api/v1.`,
	Args: cobra.NoArgs,
	PreRunE: func(cmd *cobra.Command, args []string) error {
		return bindFlags(cmd.Flags(), map[string]string{"addr": config.KeyListenAddr})
	},
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		log := newLogger(cfg, os.Stdout)

		ctx, cancel := context.WithCancel(context.Background())
		defer cancel()

		// Initialize pipeline.
		orch := pipeline.NewOrchestrator(newRunner(cfg, log), cfg.QueueSize, cfg.JobTTL, log)
		orch.Start(ctx)

		// Initialize HTTP server.
		srv := api.NewServer(orch, cfg.Path(cfg.VolumeDir), cfg.APIKey, log)

		httpServer := &http.Server{
			Addr:         cfg.ListenAddr,
			Handler:      srv,
			ReadTimeout:  30 * time.Second,
			WriteTimeout: 120 * time.Second,
			IdleTimeout:  60 * time.Second,
		}

		// Graceful shutdown.
		done := make(chan struct{})
		go func() {
			defer close(done)
			sigCh := make(chan os.Signal, 1)
			signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
			<-sigCh
			log.Info("shutting down...")

			orch.Stop()

			shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
			defer shutdownCancel()
			httpServer.Shutdown(shutdownCtx)
		}()

		if cfg.APIKey == "" {
			log.Warn("no api key configured, the API is open")
		}
		log.Info("starting routebook", "addr", cfg.ListenAddr, "base_dir", cfg.BaseDir)
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Error("server error", "error", err)
			return err
		}
		<-done
		return nil
	},
}

func init() {
	serveCmd.Flags().String("addr", ":8090", "listen address")
	rootCmd.AddCommand(serveCmd)
}
