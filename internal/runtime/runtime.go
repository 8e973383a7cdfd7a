// Package runtime wires the application components together for the CLI and
// the API server.
package runtime

import (
	"fmt"

	"github.com/lansoscan/lansoscan-go/internal/analysis"
	"github.com/lansoscan/lansoscan-go/internal/conf"
	"github.com/lansoscan/lansoscan-go/internal/datastore"
	"github.com/lansoscan/lansoscan-go/internal/errors"
	"github.com/lansoscan/lansoscan-go/internal/gemini"
	"github.com/lansoscan/lansoscan-go/internal/imagestore"
	"github.com/lansoscan/lansoscan-go/internal/observability"
)

// App bundles the initialized components of a running LansoScan instance.
type App struct {
	Settings *conf.Settings
	DS       datastore.Interface
	Images   *imagestore.Store
	Client   *gemini.Client
	Analyzer *analysis.Analyzer
	Metrics  *observability.Metrics
}

// Options controls which optional components Build initializes.
type Options struct {
	// Metrics enables the Prometheus registry; the CLI one-shot commands
	// leave it off.
	Metrics bool
	// Client enables the Gemini client; commands that only read stored
	// scans don't need one and shouldn't require an API key.
	Client bool
}

// Build validates the settings and initializes the datastore, image store,
// and optionally the model client and metrics.
func Build(settings *conf.Settings, opts Options) (*App, error) {
	if err := conf.ValidateSettings(settings); err != nil {
		return nil, err
	}

	app := &App{Settings: settings}

	if opts.Metrics {
		metrics, err := observability.NewMetrics()
		if err != nil {
			return nil, fmt.Errorf("failed to initialize metrics: %w", err)
		}
		app.Metrics = metrics
	}

	app.DS = datastore.New(settings)
	if app.DS == nil {
		return nil, errors.Newf("no database output enabled in configuration").
			Category(errors.CategoryConfiguration).
			Component("runtime").
			Build()
	}
	if err := app.DS.Open(); err != nil {
		return nil, err
	}

	images, err := imagestore.New(settings)
	if err != nil {
		return nil, err
	}
	app.Images = images

	if opts.Client {
		client, err := gemini.NewClient(gemini.Config{
			APIKey:          settings.Gemini.APIKey,
			Model:           settings.Gemini.Model,
			BaseURL:         settings.Gemini.Endpoint,
			Temperature:     settings.Gemini.Temperature,
			TopK:            settings.Gemini.TopK,
			TopP:            settings.Gemini.TopP,
			MaxOutputTokens: settings.Gemini.MaxOutputTokens,
			SafetyThreshold: settings.Gemini.SafetyThreshold,
			Timeout:         settings.Gemini.Timeout,
			RateLimitMS:     settings.Gemini.RateLimitMS,
			CacheTTL:        settings.Gemini.CacheTTL,
		}, settings.Debug)
		if err != nil {
			return nil, err
		}
		app.Client = client
		app.Analyzer = analysis.New(settings, client, app.DS, images)
	}

	if app.Metrics != nil {
		app.DS.SetMetrics(app.Metrics.Datastore)
		images.SetMetrics(app.Metrics.ImageStore)
		if app.Client != nil {
			app.Client.SetMetrics(app.Metrics.Gemini)
		}
		if app.Analyzer != nil {
			app.Analyzer.SetMetrics(app.Metrics.Analysis)
		}
	}

	return app, nil
}

// SweepOrphans removes image files that no stored scan references. With
// dryRun set the orphans are reported but left on disk.
func (a *App) SweepOrphans(dryRun bool) (*imagestore.CleanupResult, error) {
	referenced, err := a.DS.GetAllImagePaths()
	if err != nil {
		return nil, err
	}
	return a.Images.CleanupOrphans(referenced, dryRun)
}

// Close releases the application's resources in reverse initialization order.
func (a *App) Close() {
	if a.Analyzer != nil {
		a.Analyzer.Close()
	}
	if a.Client != nil {
		a.Client.Close()
	}
	if a.DS != nil {
		if err := a.DS.Close(); err != nil {
			fmt.Printf("error closing datastore: %v\n", err)
		}
	}
}
