package api

import (
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/lansoscan/lansoscan-go/internal/conf"
	"github.com/lansoscan/lansoscan-go/internal/datastore"
	"github.com/lansoscan/lansoscan-go/internal/errors"
)

const (
	defaultLimit = 50
	maxLimit     = 500

	// maxUploadBytes bounds multipart image uploads (16 MiB).
	maxUploadBytes = 16 << 20
)

// ScanResponse is the JSON representation of a scan record.
type ScanResponse struct {
	ID              string    `json:"id"`
	AnalysisType    string    `json:"analysis_type"`
	DiseaseDetected bool      `json:"disease_detected"`
	DiseaseName     string    `json:"disease_name,omitempty"`
	Confidence      float64   `json:"confidence"`
	Severity        string    `json:"severity"`
	Recommendations []string  `json:"recommendations"`
	Heuristic       bool      `json:"heuristic"`
	ImageURL        string    `json:"image_url"`
	ThumbnailURL    string    `json:"thumbnail_url"`
	FileSize        int64     `json:"file_size"`
	ImageFormat     string    `json:"image_format"`
	ProcessingMS    int64     `json:"processing_ms"`
	ModelVersion    string    `json:"model_version"`
	CreatedAt       time.Time `json:"created_at"`
}

// ScanListResponse wraps a page of scan records.
type ScanListResponse struct {
	Scans  []ScanResponse `json:"scans"`
	Limit  int            `json:"limit"`
	Offset int            `json:"offset"`
}

func toScanResponse(scan *datastore.ScanRecord) ScanResponse {
	return ScanResponse{
		ID:              scan.ID,
		AnalysisType:    scan.AnalysisType,
		DiseaseDetected: scan.DiseaseDetected,
		DiseaseName:     scan.DiseaseName,
		Confidence:      scan.Confidence,
		Severity:        scan.Severity,
		Recommendations: scan.GetRecommendations(),
		Heuristic:       scan.Heuristic,
		ImageURL:        "/api/v1/media/images/" + scan.ID,
		ThumbnailURL:    "/api/v1/media/thumbnails/" + scan.ID,
		FileSize:        scan.FileSize,
		ImageFormat:     scan.ImageFormat,
		ProcessingMS:    scan.ProcessingMS,
		ModelVersion:    scan.ModelVersion,
		CreatedAt:       scan.CreatedAt,
	}
}

func toScanListResponse(scans []datastore.ScanRecord, limit, offset int) ScanListResponse {
	out := ScanListResponse{
		Scans:  make([]ScanResponse, 0, len(scans)),
		Limit:  limit,
		Offset: offset,
	}
	for i := range scans {
		out.Scans = append(out.Scans, toScanResponse(&scans[i]))
	}
	return out
}

// AnalyzeScan accepts a multipart image upload plus a `type` form field and
// runs the full analysis pipeline on it.
func (c *Controller) AnalyzeScan(ctx echo.Context) error {
	analysisType := ctx.FormValue("type")
	if !conf.ValidAnalysisType(analysisType) {
		return c.HandleError(ctx, errors.Newf("type must be %q or %q", conf.TypeFruit, conf.TypeLeaf).
			Category(errors.CategoryValidation).
			Component("api").
			Build(), "Invalid analysis type")
	}

	fileHeader, err := ctx.FormFile("image")
	if err != nil {
		return c.HandleError(ctx, errors.Newf("image file is required: %w", err).
			Category(errors.CategoryValidation).
			Component("api").
			Build(), "Missing image upload")
	}
	if fileHeader.Size > maxUploadBytes {
		return c.HandleError(ctx, errors.Newf("image exceeds maximum upload size of %d bytes", maxUploadBytes).
			Category(errors.CategoryValidation).
			Context("upload_size", fileHeader.Size).
			Component("api").
			Build(), "Image too large")
	}

	file, err := fileHeader.Open()
	if err != nil {
		return c.HandleError(ctx, errors.Newf("failed to open upload: %w", err).
			Category(errors.CategoryFileIO).
			Component("api").
			Build(), "Failed to read image upload")
	}
	defer func() { _ = file.Close() }()

	data, err := io.ReadAll(io.LimitReader(file, maxUploadBytes+1))
	if err != nil {
		return c.HandleError(ctx, errors.Newf("failed to read upload: %w", err).
			Category(errors.CategoryFileIO).
			Component("api").
			Build(), "Failed to read image upload")
	}

	record, err := c.Analyzer.AnalyzeImage(ctx.Request().Context(), data, analysisType)
	if err != nil {
		return c.HandleError(ctx, err, "Analysis failed")
	}

	return ctx.JSON(http.StatusCreated, toScanResponse(record))
}

// GetScans lists scan records, newest first. Supports `type`, `detected`,
// `limit`, `offset`, and `sort=asc` query parameters. `type` and `detected`
// are mutually exclusive filters, `type` wins when both are present.
func (c *Controller) GetScans(ctx echo.Context) error {
	limit, offset, err := parsePagination(ctx)
	if err != nil {
		return c.HandleError(ctx, err, "Invalid pagination parameters")
	}
	sortAscending := ctx.QueryParam("sort") == "asc"

	var scans []datastore.ScanRecord

	switch {
	case ctx.QueryParam("type") != "":
		analysisType := ctx.QueryParam("type")
		if !conf.ValidAnalysisType(analysisType) {
			return c.HandleError(ctx, errors.Newf("unknown analysis type: %s", analysisType).
				Category(errors.CategoryValidation).
				Component("api").
				Build(), "Invalid analysis type")
		}
		scans, err = c.DS.GetScansByType(analysisType, sortAscending, limit, offset)
	case ctx.QueryParam("detected") != "":
		detected, parseErr := strconv.ParseBool(ctx.QueryParam("detected"))
		if parseErr != nil {
			return c.HandleError(ctx, errors.Newf("detected must be a boolean: %w", parseErr).
				Category(errors.CategoryValidation).
				Component("api").
				Build(), "Invalid detected parameter")
		}
		scans, err = c.DS.GetScansByVerdict(detected, sortAscending, limit, offset)
	default:
		scans, err = c.DS.GetLastScans(limit, offset, sortAscending)
	}
	if err != nil {
		return c.HandleError(ctx, err, "Failed to list scans")
	}

	return ctx.JSON(http.StatusOK, toScanListResponse(scans, limit, offset))
}

// GetScan returns a single scan record by ID.
func (c *Controller) GetScan(ctx echo.Context) error {
	scan, err := c.DS.Get(ctx.Param("id"))
	if err != nil {
		return c.HandleError(ctx, err, "Scan not found")
	}
	return ctx.JSON(http.StatusOK, toScanResponse(&scan))
}

// DeleteScan removes a scan record together with its image files.
func (c *Controller) DeleteScan(ctx echo.Context) error {
	if err := c.Analyzer.DeleteScan(ctx.Param("id")); err != nil {
		return c.HandleError(ctx, err, "Failed to delete scan")
	}
	return ctx.NoContent(http.StatusNoContent)
}

// DeleteAllScans removes every scan record and sweeps the now-orphaned files.
func (c *Controller) DeleteAllScans(ctx echo.Context) error {
	deleted, err := c.DS.DeleteAll()
	if err != nil {
		return c.HandleError(ctx, err, "Failed to delete scans")
	}

	referenced, err := c.DS.GetAllImagePaths()
	if err != nil {
		return c.HandleError(ctx, err, "Failed to list referenced images")
	}
	if _, err := c.Images.CleanupOrphans(referenced, false); err != nil {
		return c.HandleError(ctx, err, "Failed to clean up image files")
	}

	return ctx.JSON(http.StatusOK, map[string]int64{"deleted": deleted})
}

// SearchScans searches scan records by disease name.
func (c *Controller) SearchScans(ctx echo.Context) error {
	query := ctx.QueryParam("q")
	if query == "" {
		return c.HandleError(ctx, errors.Newf("query parameter q is required").
			Category(errors.CategoryValidation).
			Component("api").
			Build(), "Missing search query")
	}

	limit, offset, err := parsePagination(ctx)
	if err != nil {
		return c.HandleError(ctx, err, "Invalid pagination parameters")
	}
	sortAscending := ctx.QueryParam("sort") == "asc"

	scans, err := c.DS.SearchScans(query, sortAscending, limit, offset)
	if err != nil {
		return c.HandleError(ctx, err, "Search failed")
	}

	return ctx.JSON(http.StatusOK, toScanListResponse(scans, limit, offset))
}

// StatsResponse aggregates scan and storage statistics.
type StatsResponse struct {
	TotalScans        int64   `json:"total_scans"`
	DiseasedScans     int64   `json:"diseased_scans"`
	HealthyScans      int64   `json:"healthy_scans"`
	FruitScans        int64   `json:"fruit_scans"`
	LeafScans         int64   `json:"leaf_scans"`
	AverageConfidence float64 `json:"average_confidence"`
	TotalImageBytes   int64   `json:"total_image_bytes"`
	StoredFiles       int     `json:"stored_files"`
	StoredFileBytes   int64   `json:"stored_file_bytes"`
}

// GetStats returns scan aggregates together with image store usage.
func (c *Controller) GetStats(ctx echo.Context) error {
	scanStats, err := c.DS.GetStats()
	if err != nil {
		return c.HandleError(ctx, err, "Failed to collect scan statistics")
	}

	fileStats, err := c.Images.GetStats()
	if err != nil {
		return c.HandleError(ctx, err, "Failed to collect storage statistics")
	}

	return ctx.JSON(http.StatusOK, StatsResponse{
		TotalScans:        scanStats.TotalScans,
		DiseasedScans:     scanStats.DiseasedScans,
		HealthyScans:      scanStats.HealthyScans,
		FruitScans:        scanStats.FruitScans,
		LeafScans:         scanStats.LeafScans,
		AverageConfidence: scanStats.AverageConfidence,
		TotalImageBytes:   scanStats.TotalImageBytes,
		StoredFiles:       fileStats.ImageCount + fileStats.ThumbnailCount,
		StoredFileBytes:   fileStats.TotalBytes,
	})
}

// parsePagination reads and bounds the limit and offset query parameters.
func parsePagination(ctx echo.Context) (limit, offset int, err error) {
	limit = defaultLimit
	if raw := ctx.QueryParam("limit"); raw != "" {
		limit, err = strconv.Atoi(raw)
		if err != nil || limit < 1 {
			return 0, 0, errors.Newf("limit must be a positive integer").
				Category(errors.CategoryValidation).
				Component("api").
				Build()
		}
		if limit > maxLimit {
			limit = maxLimit
		}
	}

	if raw := ctx.QueryParam("offset"); raw != "" {
		offset, err = strconv.Atoi(raw)
		if err != nil || offset < 0 {
			return 0, 0, errors.Newf("offset must be a non-negative integer").
				Category(errors.CategoryValidation).
				Component("api").
				Build()
		}
	}

	return limit, offset, nil
}
