package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/sells-group/orderparse/internal/api"
	"github.com/sells-group/orderparse/internal/config"
	"github.com/sells-group/orderparse/internal/monitoring"
)

var (
	servePort         int
	serveUploadDir    string
	serveDocumentRoot string
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the HTTP parsing API",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		if servePort != 0 {
			cfg.Server.Port = servePort
		}
		if serveDocumentRoot != "" {
			cfg.Server.DocumentRoot = serveDocumentRoot
		}

		env, err := initParser(ctx, "serve")
		if err != nil {
			return err
		}
		defer env.Close()

		var (
			runs    api.Runs
			metrics api.Metrics
		)
		if env.Store != nil {
			collector := monitoring.NewCollector(env.Store, env.Manager)
			runs, metrics = env.Store, collector

			if cfg.Monitoring.Enabled {
				checker := monitoring.NewChecker(collector, monitoring.NewAlerter(cfg.Monitoring), cfg.Monitoring)
				go checker.Run(ctx)
			}
		}

		handler := api.New(env.Parser, env.Manager, runs, metrics, serverOptions(cfg, serveUploadDir)).Router()

		srv := &http.Server{
			Addr:              fmt.Sprintf(":%d", cfg.Server.Port),
			Handler:           handler,
			ReadHeaderTimeout: 10 * time.Second,
		}

		// Graceful shutdown
		go func() {
			<-ctx.Done()
			zap.L().Info("shutting down server")
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
			defer cancel()
			if err := srv.Shutdown(shutdownCtx); err != nil {
				zap.L().Warn("server shutdown", zap.Error(err))
			}
		}()

		zap.L().Info("starting server", zap.Int("port", cfg.Server.Port))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return eris.Wrap(err, "server listen")
		}

		return nil
	},
}

// serverOptions sizes the API from config. The request timeout covers the
// worst-case parse so the router never cuts off a parse still in budget.
func serverOptions(c *config.Config, uploadDir string) api.Options {
	return api.Options{
		UploadDir:      uploadDir,
		DocumentRoot:   c.Server.DocumentRoot,
		MaxUploadBytes: int64(c.Preprocess.MaxFileMB) << 20,
		LookbackHours:  c.Monitoring.LookbackWindowHours,
		RequestTimeout: api.ParseBudget(time.Duration(c.Routing.ParseTimeoutSecs)*time.Second, c.Routing.MaxAttempts),
	}
}

func init() {
	serveCmd.Flags().IntVar(&servePort, "port", 0, "server port (default from config)")
	serveCmd.Flags().StringVar(&serveUploadDir, "upload-dir", "", "directory for uploads in flight (default: OS temp dir)")
	serveCmd.Flags().StringVar(&serveDocumentRoot, "document-root", "", "directory document_ref requests may read from (default from config; empty allows uploads only)")
	rootCmd.AddCommand(serveCmd)
}
