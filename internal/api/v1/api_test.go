package api

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"image"
	"image/color"
	"image/jpeg"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lansoscan/lansoscan-go/internal/analysis"
	"github.com/lansoscan/lansoscan-go/internal/conf"
	"github.com/lansoscan/lansoscan-go/internal/datastore"
	apperrors "github.com/lansoscan/lansoscan-go/internal/errors"
	"github.com/lansoscan/lansoscan-go/internal/imagestore"
	"github.com/lansoscan/lansoscan-go/internal/observability"
)

const diseasedResponse = `{"disease_detected": true, "disease_name": "anthracnose", "confidence": 0.91, "severity": "moderate", "recommendations": ["remove infected fruit"]}`

// stubClient stands in for the Gemini client in handler tests.
type stubClient struct {
	response string
	err      error
}

func (s *stubClient) AnalyzeImage(context.Context, string, []byte, string) (string, error) {
	if s.err != nil {
		return "", s.err
	}
	return s.response, nil
}

func (s *stubClient) Model() string { return "gemini-1.5-flash" }

func newTestController(t *testing.T, client analysis.ModelClient) *Controller {
	t.Helper()

	base := t.TempDir()
	settings := &conf.Settings{Version: "test"}
	settings.Storage.ImagesPath = filepath.Join(base, "images")
	settings.Storage.ThumbnailsPath = filepath.Join(base, "thumbnails")
	settings.Analysis.JPEGQuality = 85
	settings.Analysis.MaxDimension = 64
	settings.Analysis.ThumbnailSize = 16
	settings.Analysis.MinConfidence = 0.5
	settings.Output.SQLite.Enabled = true
	settings.Output.SQLite.Path = filepath.Join(base, "scans.db")
	settings.WebServer.Port = "8090"

	// File loggers read rotation settings from the global instance; keep them
	// pointed at the test configuration instead of the user's config file.
	conf.SetTestSettings(settings)

	ds := datastore.New(settings)
	require.NoError(t, ds.Open())
	t.Cleanup(func() { _ = ds.Close() })

	images, err := imagestore.New(settings)
	require.NoError(t, err)

	metrics, err := observability.NewMetrics()
	require.NoError(t, err)

	analyzer := analysis.New(settings, client, ds, images)
	analyzer.SetMetrics(metrics.Analysis)

	controller := New(settings, ds, analyzer, images, metrics)
	t.Cleanup(controller.Shutdown)

	return controller
}

func testJPEG(t *testing.T) []byte {
	t.Helper()

	img := image.NewRGBA(image.Rect(0, 0, 40, 40))
	for y := range 40 {
		for x := range 40 {
			img.Set(x, y, color.RGBA{R: 150, G: 200, B: 90, A: 255})
		}
	}
	var buf bytes.Buffer
	require.NoError(t, jpeg.Encode(&buf, img, nil))
	return buf.Bytes()
}

// multipartUpload builds an analyze request body with an image and type field.
func multipartUpload(t *testing.T, imageData []byte, analysisType string) (*bytes.Buffer, string) {
	t.Helper()

	body := &bytes.Buffer{}
	writer := multipart.NewWriter(body)
	if analysisType != "" {
		require.NoError(t, writer.WriteField("type", analysisType))
	}
	if imageData != nil {
		part, err := writer.CreateFormFile("image", "scan.jpg")
		require.NoError(t, err)
		_, err = part.Write(imageData)
		require.NoError(t, err)
	}
	require.NoError(t, writer.Close())
	return body, writer.FormDataContentType()
}

func doRequest(c *Controller, req *http.Request) *httptest.ResponseRecorder {
	rec := httptest.NewRecorder()
	c.Echo.ServeHTTP(rec, req)
	return rec
}

func analyzeScan(t *testing.T, c *Controller, analysisType string) ScanResponse {
	t.Helper()

	body, contentType := multipartUpload(t, testJPEG(t), analysisType)
	req := httptest.NewRequest(http.MethodPost, "/api/v1/analyze", body)
	req.Header.Set(echo.HeaderContentType, contentType)
	rec := doRequest(c, req)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

	var resp ScanResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	return resp
}

func TestHealthCheck(t *testing.T) {
	c := newTestController(t, &stubClient{response: diseasedResponse})

	rec := doRequest(c, httptest.NewRequest(http.MethodGet, "/api/v1/healthz", http.NoBody))
	require.Equal(t, http.StatusOK, rec.Code)

	var resp map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, "healthy", resp["status"])
	assert.Equal(t, "connected", resp["database_status"])
	assert.Equal(t, "test", resp["version"])
}

func TestAnalyzeScan(t *testing.T) {
	c := newTestController(t, &stubClient{response: diseasedResponse})

	resp := analyzeScan(t, c, "fruit")
	assert.NotEmpty(t, resp.ID)
	assert.Equal(t, "fruit", resp.AnalysisType)
	assert.True(t, resp.DiseaseDetected)
	assert.Equal(t, "anthracnose", resp.DiseaseName)
	assert.Equal(t, "/api/v1/media/images/"+resp.ID, resp.ImageURL)
	assert.Equal(t, []string{"remove infected fruit"}, resp.Recommendations)
}

func TestAnalyzeScan_InvalidType(t *testing.T) {
	c := newTestController(t, &stubClient{response: diseasedResponse})

	body, contentType := multipartUpload(t, testJPEG(t), "bark")
	req := httptest.NewRequest(http.MethodPost, "/api/v1/analyze", body)
	req.Header.Set(echo.HeaderContentType, contentType)
	rec := doRequest(c, req)
	require.Equal(t, http.StatusBadRequest, rec.Code)

	var errResp ErrorResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &errResp))
	assert.Equal(t, http.StatusBadRequest, errResp.Code)
	assert.NotEmpty(t, errResp.CorrelationID)
}

func TestAnalyzeScan_MissingImage(t *testing.T) {
	c := newTestController(t, &stubClient{response: diseasedResponse})

	body, contentType := multipartUpload(t, nil, "fruit")
	req := httptest.NewRequest(http.MethodPost, "/api/v1/analyze", body)
	req.Header.Set(echo.HeaderContentType, contentType)
	rec := doRequest(c, req)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestAnalyzeScan_ModelRateLimited(t *testing.T) {
	limitErr := apperrors.Newf("Gemini API error (status 429): slow down").
		Category(apperrors.CategoryLimit).
		Component("gemini").
		Build()
	c := newTestController(t, &stubClient{err: limitErr})

	body, contentType := multipartUpload(t, testJPEG(t), "fruit")
	req := httptest.NewRequest(http.MethodPost, "/api/v1/analyze", body)
	req.Header.Set(echo.HeaderContentType, contentType)
	rec := doRequest(c, req)
	assert.Equal(t, http.StatusTooManyRequests, rec.Code)
}

func TestGetScans_FilteringAndPagination(t *testing.T) {
	c := newTestController(t, &stubClient{response: diseasedResponse})

	for range 3 {
		analyzeScan(t, c, "fruit")
	}
	analyzeScan(t, c, "leaf")

	rec := doRequest(c, httptest.NewRequest(http.MethodGet, "/api/v1/scans", http.NoBody))
	require.Equal(t, http.StatusOK, rec.Code)
	var list ScanListResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &list))
	assert.Len(t, list.Scans, 4)

	rec = doRequest(c, httptest.NewRequest(http.MethodGet, "/api/v1/scans?type=leaf", http.NoBody))
	require.Equal(t, http.StatusOK, rec.Code)
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &list))
	assert.Len(t, list.Scans, 1)

	rec = doRequest(c, httptest.NewRequest(http.MethodGet, "/api/v1/scans?detected=true", http.NoBody))
	require.Equal(t, http.StatusOK, rec.Code)
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &list))
	assert.Len(t, list.Scans, 4)

	rec = doRequest(c, httptest.NewRequest(http.MethodGet, "/api/v1/scans?limit=2&offset=2", http.NoBody))
	require.Equal(t, http.StatusOK, rec.Code)
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &list))
	assert.Len(t, list.Scans, 2)
	assert.Equal(t, 2, list.Limit)
	assert.Equal(t, 2, list.Offset)

	rec = doRequest(c, httptest.NewRequest(http.MethodGet, "/api/v1/scans?limit=-1", http.NoBody))
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestGetScans_SortWithFilters(t *testing.T) {
	c := newTestController(t, &stubClient{response: diseasedResponse})

	base := time.Now().Add(-time.Hour)
	for i := range 3 {
		record := &datastore.ScanRecord{
			ID:              uuid.New().String(),
			AnalysisType:    conf.TypeFruit,
			DiseaseDetected: true,
			DiseaseName:     fmt.Sprintf("disease-%02d", i),
			Severity:        datastore.SeverityMild,
			Confidence:      0.8,
			CreatedAt:       base.Add(time.Duration(i) * time.Minute),
		}
		require.NoError(t, c.DS.Save(record))
	}

	var list ScanListResponse

	rec := doRequest(c, httptest.NewRequest(http.MethodGet, "/api/v1/scans?type=fruit&sort=asc", http.NoBody))
	require.Equal(t, http.StatusOK, rec.Code)
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &list))
	require.Len(t, list.Scans, 3)
	assert.Equal(t, "disease-00", list.Scans[0].DiseaseName)

	rec = doRequest(c, httptest.NewRequest(http.MethodGet, "/api/v1/scans?type=fruit", http.NoBody))
	require.Equal(t, http.StatusOK, rec.Code)
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &list))
	require.Len(t, list.Scans, 3)
	assert.Equal(t, "disease-02", list.Scans[0].DiseaseName)

	rec = doRequest(c, httptest.NewRequest(http.MethodGet, "/api/v1/scans?detected=true&sort=asc", http.NoBody))
	require.Equal(t, http.StatusOK, rec.Code)
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &list))
	require.Len(t, list.Scans, 3)
	assert.Equal(t, "disease-00", list.Scans[0].DiseaseName)
}

func TestGetScan(t *testing.T) {
	c := newTestController(t, &stubClient{response: diseasedResponse})

	created := analyzeScan(t, c, "fruit")

	rec := doRequest(c, httptest.NewRequest(http.MethodGet, "/api/v1/scans/"+created.ID, http.NoBody))
	require.Equal(t, http.StatusOK, rec.Code)

	var resp ScanResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, created.ID, resp.ID)

	rec = doRequest(c, httptest.NewRequest(http.MethodGet, "/api/v1/scans/no-such-scan", http.NoBody))
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestDeleteScan(t *testing.T) {
	c := newTestController(t, &stubClient{response: diseasedResponse})

	created := analyzeScan(t, c, "fruit")

	rec := doRequest(c, httptest.NewRequest(http.MethodDelete, "/api/v1/scans/"+created.ID, http.NoBody))
	assert.Equal(t, http.StatusNoContent, rec.Code)

	rec = doRequest(c, httptest.NewRequest(http.MethodGet, "/api/v1/scans/"+created.ID, http.NoBody))
	assert.Equal(t, http.StatusNotFound, rec.Code)

	// The stored files are gone too
	rec = doRequest(c, httptest.NewRequest(http.MethodGet, "/api/v1/media/images/"+created.ID, http.NoBody))
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestDeleteAllScans(t *testing.T) {
	c := newTestController(t, &stubClient{response: diseasedResponse})

	analyzeScan(t, c, "fruit")
	analyzeScan(t, c, "leaf")

	rec := doRequest(c, httptest.NewRequest(http.MethodDelete, "/api/v1/scans", http.NoBody))
	require.Equal(t, http.StatusOK, rec.Code)

	var resp map[string]int64
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, int64(2), resp["deleted"])

	// Image files were swept along with the records
	stats, err := c.Images.GetStats()
	require.NoError(t, err)
	assert.Zero(t, stats.ImageCount)
	assert.Zero(t, stats.ThumbnailCount)
}

func TestSearchScans(t *testing.T) {
	c := newTestController(t, &stubClient{response: diseasedResponse})

	analyzeScan(t, c, "fruit")

	rec := doRequest(c, httptest.NewRequest(http.MethodGet, "/api/v1/scans/search?q=anthrac", http.NoBody))
	require.Equal(t, http.StatusOK, rec.Code)
	var list ScanListResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &list))
	assert.Len(t, list.Scans, 1)

	rec = doRequest(c, httptest.NewRequest(http.MethodGet, "/api/v1/scans/search?q=blight", http.NoBody))
	require.Equal(t, http.StatusOK, rec.Code)
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &list))
	assert.Empty(t, list.Scans)

	rec = doRequest(c, httptest.NewRequest(http.MethodGet, "/api/v1/scans/search", http.NoBody))
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestGetStats(t *testing.T) {
	c := newTestController(t, &stubClient{response: diseasedResponse})

	analyzeScan(t, c, "fruit")
	analyzeScan(t, c, "leaf")

	rec := doRequest(c, httptest.NewRequest(http.MethodGet, "/api/v1/stats", http.NoBody))
	require.Equal(t, http.StatusOK, rec.Code)

	var stats StatsResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &stats))
	assert.Equal(t, int64(2), stats.TotalScans)
	assert.Equal(t, int64(2), stats.DiseasedScans)
	assert.Equal(t, int64(1), stats.FruitScans)
	assert.Equal(t, int64(1), stats.LeafScans)
	assert.Equal(t, 4, stats.StoredFiles)
	assert.Positive(t, stats.StoredFileBytes)
}

func TestServeMedia(t *testing.T) {
	c := newTestController(t, &stubClient{response: diseasedResponse})

	created := analyzeScan(t, c, "fruit")

	for _, path := range []string{
		"/api/v1/media/images/" + created.ID,
		"/api/v1/media/thumbnails/" + created.ID,
	} {
		rec := doRequest(c, httptest.NewRequest(http.MethodGet, path, http.NoBody))
		require.Equal(t, http.StatusOK, rec.Code, path)
		assert.Equal(t, "image/jpeg", rec.Header().Get(echo.HeaderContentType))
		assert.NotEmpty(t, rec.Body.Bytes())
	}

	rec := doRequest(c, httptest.NewRequest(http.MethodGet, "/api/v1/media/images/missing", http.NoBody))
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestMetricsEndpoint(t *testing.T) {
	c := newTestController(t, &stubClient{response: diseasedResponse})

	analyzeScan(t, c, "fruit")

	rec := doRequest(c, httptest.NewRequest(http.MethodGet, "/metrics", http.NoBody))
	require.Equal(t, http.StatusOK, rec.Code)
	body := rec.Body.String()
	assert.Contains(t, body, "analysis_scans_total")
	assert.Contains(t, body, fmt.Sprintf("analysis_type=%q", "fruit"))
}
