package analysis

import (
	"context"
	"io"
	"log"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"

	"github.com/lansoscan/lansoscan-go/internal/conf"
	"github.com/lansoscan/lansoscan-go/internal/datastore"
	"github.com/lansoscan/lansoscan-go/internal/errors"
	"github.com/lansoscan/lansoscan-go/internal/imagestore"
	"github.com/lansoscan/lansoscan-go/internal/logging"
	"github.com/lansoscan/lansoscan-go/internal/observability/metrics"
)

var (
	logger          *slog.Logger
	serviceLevelVar = new(slog.LevelVar)
	closeLogger     func() error
)

func init() {
	var err error
	logFilePath := filepath.Join("logs", "analysis.log")
	serviceLevelVar.Set(slog.LevelInfo)

	logger, closeLogger, err = logging.NewFileLogger(logFilePath, "analysis", serviceLevelVar)
	if err != nil {
		log.Printf("Failed to initialize analysis file logger at %s: %v. Service logging disabled.", logFilePath, err)
		fbHandler := slog.NewJSONHandler(io.Discard, &slog.HandlerOptions{Level: serviceLevelVar})
		logger = slog.New(fbHandler).With("service", "analysis")
		closeLogger = func() error { return nil }
	}
}

// ModelClient is the slice of the vision model client the analyzer needs.
type ModelClient interface {
	AnalyzeImage(ctx context.Context, prompt string, imageData []byte, mimeType string) (string, error)
	Model() string
}

// ImageStore is the slice of the image store the analyzer needs.
type ImageStore interface {
	Save(scanID string, data []byte) (*imagestore.SavedImage, error)
	Read(relPath string) ([]byte, error)
	Delete(imagePath, thumbnailPath string) error
}

// Analyzer runs the full scan pipeline: store the image, ask the model for a
// verdict, parse it, and persist the scan record.
type Analyzer struct {
	settings *conf.Settings
	client   ModelClient
	store    datastore.Interface
	images   ImageStore
	metrics  *metrics.AnalysisMetrics
}

// New creates an analyzer wired to the given client and stores.
func New(settings *conf.Settings, client ModelClient, store datastore.Interface, images ImageStore) *Analyzer {
	return &Analyzer{
		settings: settings,
		client:   client,
		store:    store,
		images:   images,
	}
}

// SetMetrics attaches Prometheus collectors to the analyzer. Safe to leave
// unset, metrics recording is skipped when nil.
func (a *Analyzer) SetMetrics(m *metrics.AnalysisMetrics) {
	a.metrics = m
}

// AnalyzeFile reads an image from disk and runs AnalyzeImage on it.
func (a *Analyzer) AnalyzeFile(ctx context.Context, path, analysisType string) (*datastore.ScanRecord, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Newf("failed to read image file: %w", err).
			Category(errors.CategoryFileIO).
			Context("path", path).
			Component("analysis").
			Build()
	}
	return a.AnalyzeImage(ctx, data, analysisType)
}

// AnalyzeImage runs the scan pipeline on raw image bytes and returns the
// persisted record. The stored files are removed again if any later stage
// fails, so a returned error never leaves files behind.
func (a *Analyzer) AnalyzeImage(ctx context.Context, imageData []byte, analysisType string) (*datastore.ScanRecord, error) {
	prompt, err := PromptFor(analysisType)
	if err != nil {
		return nil, err
	}

	start := time.Now()
	scanID := uuid.New().String()

	saved, err := a.images.Save(scanID, imageData)
	if err != nil {
		return nil, err
	}

	record, err := a.runAnalysis(ctx, scanID, prompt, saved, start, analysisType)
	if err != nil {
		if cleanupErr := a.images.Delete(saved.ImagePath, saved.ThumbnailPath); cleanupErr != nil {
			logger.Error("Failed to clean up images after analysis error",
				"scan_id", scanID, "error", cleanupErr)
		}
		if a.metrics != nil {
			a.metrics.RecordScan(analysisType, metrics.StatusError, time.Since(start).Seconds())
		}
		return nil, err
	}

	if a.metrics != nil {
		a.metrics.RecordScan(analysisType, metrics.StatusSuccess, time.Since(start).Seconds())
		a.metrics.RecordVerdict(analysisType, record.DiseaseDetected, record.Heuristic, record.Confidence)
	}

	return record, nil
}

func (a *Analyzer) runAnalysis(ctx context.Context, scanID, prompt string, saved *imagestore.SavedImage, start time.Time, analysisType string) (*datastore.ScanRecord, error) {
	// Upload the re-encoded copy, the original may be far larger
	upload, err := a.images.Read(saved.ImagePath)
	if err != nil {
		return nil, err
	}

	text, err := a.client.AnalyzeImage(ctx, prompt, upload, "image/jpeg")
	if err != nil {
		return nil, err
	}

	result, err := ParseResponse(text)
	if err != nil {
		return nil, err
	}

	if result.Heuristic {
		logger.Warn("Model response was not valid JSON, used heuristic fallback",
			"scan_id", scanID,
			"response_length", len(text))
	}
	if result.Confidence < a.settings.Analysis.MinConfidence {
		logger.Warn("Verdict confidence below configured minimum",
			"scan_id", scanID,
			"confidence", result.Confidence,
			"min_confidence", a.settings.Analysis.MinConfidence)
	}

	record := &datastore.ScanRecord{
		ID:              scanID,
		ImagePath:       saved.ImagePath,
		ThumbnailPath:   saved.ThumbnailPath,
		AnalysisType:    analysisType,
		DiseaseDetected: result.DiseaseDetected,
		DiseaseName:     result.DiseaseName,
		Confidence:      result.Confidence,
		Severity:        result.Severity,
		Heuristic:       result.Heuristic,
		FileSize:        saved.FileSize,
		ImageFormat:     saved.Format,
		ProcessingMS:    time.Since(start).Milliseconds(),
		ModelVersion:    a.client.Model(),
		CreatedAt:       time.Now(),
	}
	if err := record.SetRecommendations(result.Recommendations); err != nil {
		return nil, err
	}

	if err := a.store.Save(record); err != nil {
		return nil, err
	}

	logger.Info("Scan completed",
		"scan_id", scanID,
		"analysis_type", analysisType,
		"disease_detected", record.DiseaseDetected,
		"disease_name", record.DiseaseName,
		"confidence", record.Confidence,
		"heuristic", record.Heuristic,
		"processing_ms", record.ProcessingMS)

	return record, nil
}

// DeleteScan removes a scan record together with its image files.
func (a *Analyzer) DeleteScan(id string) error {
	record, err := a.store.Get(id)
	if err != nil {
		return err
	}

	if err := a.images.Delete(record.ImagePath, record.ThumbnailPath); err != nil {
		return err
	}
	if err := a.store.Delete(id); err != nil {
		return err
	}

	logger.Info("Scan deleted", "scan_id", id)
	return nil
}

// Close releases the analyzer's log file.
func (a *Analyzer) Close() {
	if closeLogger != nil {
		if err := closeLogger(); err != nil {
			log.Printf("Error closing analysis logger: %v", err)
		}
	}
}
