// Package serve implements the API server command.
package serve

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	apiv1 "github.com/lansoscan/lansoscan-go/internal/api/v1"
	"github.com/lansoscan/lansoscan-go/internal/conf"
	"github.com/lansoscan/lansoscan-go/internal/logging"
	"github.com/lansoscan/lansoscan-go/internal/runtime"
)

const shutdownTimeout = 10 * time.Second

// Command creates the serve command running the REST API server.
func Command(settings *conf.Settings) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the LansoScan API server",
		RunE: func(cmd *cobra.Command, args []string) error {
			app, err := runtime.Build(settings, runtime.Options{Client: true, Metrics: true})
			if err != nil {
				return err
			}
			defer app.Close()

			controller := apiv1.New(settings, app.DS, app.Analyzer, app.Images, app.Metrics)
			defer controller.Shutdown()

			errChan := make(chan error, 1)
			go func() {
				if err := controller.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
					errChan <- err
				}
			}()

			logging.Info("API server started", "port", settings.WebServer.Port)

			stopSweep := make(chan struct{})
			defer close(stopSweep)
			if interval := settings.Cleanup.Interval; interval > 0 {
				go sweepLoop(app, interval, settings.Cleanup.DryRun, stopSweep)
			}

			quit := make(chan os.Signal, 1)
			signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

			select {
			case err := <-errChan:
				return err
			case sig := <-quit:
				logging.Info("Shutting down", "signal", sig.String())
			}

			ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
			defer cancel()
			return controller.Echo.Shutdown(ctx)
		},
	}

	cmd.Flags().StringVarP(&settings.WebServer.Port, "port", "p", settings.WebServer.Port, "Port to listen on")

	return cmd
}

// sweepLoop periodically removes orphaned image files until stop is closed.
func sweepLoop(app *runtime.App, interval time.Duration, dryRun bool, stop <-chan struct{}) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			result, err := app.SweepOrphans(dryRun)
			if err != nil {
				logging.Error("Orphan sweep failed", "error", err)
				continue
			}
			logging.Info("Orphan sweep finished",
				"scanned", result.FilesScanned,
				"deleted", result.FilesDeleted,
				"bytes_reclaimed", result.BytesReclaimed,
				"dry_run", dryRun)
		case <-stop:
			return
		}
	}
}
