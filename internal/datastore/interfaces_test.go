package datastore

import (
	"fmt"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/lansoscan/lansoscan-go/internal/conf"
	"github.com/lansoscan/lansoscan-go/internal/errors"
	obsmetrics "github.com/lansoscan/lansoscan-go/internal/observability/metrics"
)

// newTestStore opens a throwaway SQLite database in a temp directory.
func newTestStore(t *testing.T) *DataStore {
	t.Helper()

	dbPath := filepath.Join(t.TempDir(), "test.db")
	db, err := gorm.Open(sqlite.Open(dbPath), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	require.NoError(t, err)
	require.NoError(t, db.AutoMigrate(&ScanRecord{}))

	return &DataStore{DB: db}
}

func testScan(mutators ...func(*ScanRecord)) *ScanRecord {
	scan := &ScanRecord{
		ID:              uuid.New().String(),
		ImagePath:       "images/scan.jpg",
		ThumbnailPath:   "thumbnails/scan.jpg",
		AnalysisType:    conf.TypeFruit,
		DiseaseDetected: true,
		DiseaseName:     "anthracnose",
		Confidence:      0.87,
		Severity:        SeverityModerate,
		FileSize:        204800,
		ImageFormat:     "jpeg",
		ProcessingMS:    1450,
		ModelVersion:    "gemini-1.5-flash",
		CreatedAt:       time.Now(),
	}
	_ = scan.SetRecommendations([]string{"remove infected fruit", "apply copper fungicide"})
	for _, m := range mutators {
		m(scan)
	}
	return scan
}

func TestSaveAndGet(t *testing.T) {
	ds := newTestStore(t)

	scan := testScan()
	require.NoError(t, ds.Save(scan))

	got, err := ds.Get(scan.ID)
	require.NoError(t, err)
	assert.Equal(t, scan.ID, got.ID)
	assert.Equal(t, "anthracnose", got.DiseaseName)
	assert.InDelta(t, 0.87, got.Confidence, 0.001)
	assert.Equal(t, []string{"remove infected fruit", "apply copper fungicide"}, got.GetRecommendations())
}

func TestSave_RequiresID(t *testing.T) {
	ds := newTestStore(t)

	scan := testScan(func(s *ScanRecord) { s.ID = "" })
	err := ds.Save(scan)
	require.Error(t, err)
	assert.True(t, errors.IsCategory(err, errors.CategoryValidation))
}

func TestSave_NormalizesInvariants(t *testing.T) {
	ds := newTestStore(t)

	// Confidence above 1 gets clamped, disease name cleared on healthy verdict
	scan := testScan(func(s *ScanRecord) {
		s.DiseaseDetected = false
		s.DiseaseName = "phantom disease"
		s.Severity = SeveritySevere
		s.Confidence = 1.7
	})
	require.NoError(t, ds.Save(scan))

	got, err := ds.Get(scan.ID)
	require.NoError(t, err)
	assert.Empty(t, got.DiseaseName)
	assert.Equal(t, SeverityNone, got.Severity)
	assert.InDelta(t, 1.0, got.Confidence, 0.001)
}

func TestGet_NotFound(t *testing.T) {
	ds := newTestStore(t)

	_, err := ds.Get(uuid.New().String())
	require.Error(t, err)
	assert.True(t, errors.IsNotFound(err))
}

func TestDelete(t *testing.T) {
	ds := newTestStore(t)

	scan := testScan()
	require.NoError(t, ds.Save(scan))
	require.NoError(t, ds.Delete(scan.ID))

	_, err := ds.Get(scan.ID)
	assert.True(t, errors.IsNotFound(err))

	// Deleting again reports not found
	err = ds.Delete(scan.ID)
	assert.True(t, errors.IsNotFound(err))
}

func TestDeleteAll(t *testing.T) {
	ds := newTestStore(t)

	for range 5 {
		require.NoError(t, ds.Save(testScan()))
	}

	deleted, err := ds.DeleteAll()
	require.NoError(t, err)
	assert.Equal(t, int64(5), deleted)

	count, err := ds.CountScans()
	require.NoError(t, err)
	assert.Zero(t, count)
}

func TestGetLastScans_PaginationAndOrder(t *testing.T) {
	ds := newTestStore(t)

	base := time.Now().Add(-time.Hour)
	for i := range 10 {
		scan := testScan(func(s *ScanRecord) {
			s.DiseaseName = fmt.Sprintf("disease-%02d", i)
			s.CreatedAt = base.Add(time.Duration(i) * time.Minute)
		})
		require.NoError(t, ds.Save(scan))
	}

	newest, err := ds.GetLastScans(3, 0, false)
	require.NoError(t, err)
	require.Len(t, newest, 3)
	assert.Equal(t, "disease-09", newest[0].DiseaseName)
	assert.Equal(t, "disease-07", newest[2].DiseaseName)

	secondPage, err := ds.GetLastScans(3, 3, false)
	require.NoError(t, err)
	require.Len(t, secondPage, 3)
	assert.Equal(t, "disease-06", secondPage[0].DiseaseName)

	oldest, err := ds.GetLastScans(1, 0, true)
	require.NoError(t, err)
	require.Len(t, oldest, 1)
	assert.Equal(t, "disease-00", oldest[0].DiseaseName)
}

func TestGetScansByTypeAndVerdict(t *testing.T) {
	ds := newTestStore(t)

	require.NoError(t, ds.Save(testScan()))
	require.NoError(t, ds.Save(testScan(func(s *ScanRecord) {
		s.AnalysisType = conf.TypeLeaf
		s.DiseaseDetected = false
	})))
	require.NoError(t, ds.Save(testScan(func(s *ScanRecord) {
		s.AnalysisType = conf.TypeLeaf
		s.DiseaseName = "leaf spot"
	})))

	leaves, err := ds.GetScansByType(conf.TypeLeaf, false, 10, 0)
	require.NoError(t, err)
	assert.Len(t, leaves, 2)

	diseased, err := ds.GetScansByVerdict(true, false, 10, 0)
	require.NoError(t, err)
	assert.Len(t, diseased, 2)

	healthy, err := ds.GetScansByVerdict(false, false, 10, 0)
	require.NoError(t, err)
	assert.Len(t, healthy, 1)
}

func TestFilteredScans_RespectSortOrder(t *testing.T) {
	ds := newTestStore(t)

	base := time.Now().Add(-time.Hour)
	for i := range 4 {
		scan := testScan(func(s *ScanRecord) {
			s.DiseaseName = fmt.Sprintf("disease-%02d", i)
			s.CreatedAt = base.Add(time.Duration(i) * time.Minute)
		})
		require.NoError(t, ds.Save(scan))
	}

	newestFirst, err := ds.GetScansByType(conf.TypeFruit, false, 10, 0)
	require.NoError(t, err)
	require.Len(t, newestFirst, 4)
	assert.Equal(t, "disease-03", newestFirst[0].DiseaseName)

	oldestFirst, err := ds.GetScansByType(conf.TypeFruit, true, 10, 0)
	require.NoError(t, err)
	require.Len(t, oldestFirst, 4)
	assert.Equal(t, "disease-00", oldestFirst[0].DiseaseName)

	diseasedOldest, err := ds.GetScansByVerdict(true, true, 10, 0)
	require.NoError(t, err)
	require.Len(t, diseasedOldest, 4)
	assert.Equal(t, "disease-00", diseasedOldest[0].DiseaseName)
}

func TestSearchScans(t *testing.T) {
	ds := newTestStore(t)

	require.NoError(t, ds.Save(testScan(func(s *ScanRecord) { s.DiseaseName = "anthracnose" })))
	require.NoError(t, ds.Save(testScan(func(s *ScanRecord) { s.DiseaseName = "scab disease" })))
	require.NoError(t, ds.Save(testScan(func(s *ScanRecord) { s.DiseaseDetected = false })))

	results, err := ds.SearchScans("anthrac", false, 10, 0)
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, "anthracnose", results[0].DiseaseName)

	none, err := ds.SearchScans("blight", false, 10, 0)
	require.NoError(t, err)
	assert.Empty(t, none)
}

func TestGetStats(t *testing.T) {
	ds := newTestStore(t)

	require.NoError(t, ds.Save(testScan(func(s *ScanRecord) {
		s.Confidence = 0.8
		s.FileSize = 1000
	})))
	require.NoError(t, ds.Save(testScan(func(s *ScanRecord) {
		s.AnalysisType = conf.TypeLeaf
		s.DiseaseDetected = false
		s.Confidence = 0.6
		s.FileSize = 500
	})))

	stats, err := ds.GetStats()
	require.NoError(t, err)
	assert.Equal(t, int64(2), stats.TotalScans)
	assert.Equal(t, int64(1), stats.DiseasedScans)
	assert.Equal(t, int64(1), stats.HealthyScans)
	assert.Equal(t, int64(1), stats.FruitScans)
	assert.Equal(t, int64(1), stats.LeafScans)
	assert.InDelta(t, 0.7, stats.AverageConfidence, 0.001)
	assert.Equal(t, int64(1500), stats.TotalImageBytes)
}

func TestGetStats_EmptyDatabase(t *testing.T) {
	ds := newTestStore(t)

	stats, err := ds.GetStats()
	require.NoError(t, err)
	assert.Zero(t, stats.TotalScans)
	assert.Zero(t, stats.AverageConfidence)
	assert.Zero(t, stats.TotalImageBytes)
}

func TestGetAllImagePaths(t *testing.T) {
	ds := newTestStore(t)

	require.NoError(t, ds.Save(testScan(func(s *ScanRecord) {
		s.ImagePath = "images/a.jpg"
		s.ThumbnailPath = "thumbnails/a.jpg"
	})))
	require.NoError(t, ds.Save(testScan(func(s *ScanRecord) {
		s.ImagePath = "images/b.jpg"
		s.ThumbnailPath = ""
	})))

	paths, err := ds.GetAllImagePaths()
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"images/a.jpg", "thumbnails/a.jpg", "images/b.jpg"}, paths)
}

func TestMetricsRecorded(t *testing.T) {
	ds := newTestStore(t)

	registry := prometheus.NewRegistry()
	m, err := obsmetrics.NewDatastoreMetrics(registry)
	require.NoError(t, err)
	ds.SetMetrics(m)

	require.NoError(t, ds.Save(testScan()))
	_, err = ds.Get(uuid.New().String())
	require.Error(t, err)

	count, err := ds.CountScans()
	require.NoError(t, err)
	assert.Equal(t, int64(1), count)

	families, err := registry.Gather()
	require.NoError(t, err)

	found := make(map[string]bool, len(families))
	for _, mf := range families {
		found[mf.GetName()] = true
	}
	assert.True(t, found["datastore_operations_total"])
	assert.True(t, found["datastore_operation_duration_seconds"])
	assert.True(t, found["datastore_scan_records"])

	// CountScans keeps the record gauge current
	assert.InDelta(t, 1.0, testutil.ToFloat64(m.RecordCount), 0.001)
}

func TestRecommendationsRoundTrip(t *testing.T) {
	t.Parallel()

	var scan ScanRecord
	require.NoError(t, scan.SetRecommendations(nil))
	assert.Equal(t, "[]", scan.Recommendations)
	assert.Empty(t, scan.GetRecommendations())

	require.NoError(t, scan.SetRecommendations([]string{"prune affected branches"}))
	assert.Equal(t, []string{"prune affected branches"}, scan.GetRecommendations())
}
