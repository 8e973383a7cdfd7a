// interfaces.go: this code defines the interface for the database operations
package datastore

import (
	"log"
	"os"
	"time"

	"github.com/lansoscan/lansoscan-go/internal/conf"
	"github.com/lansoscan/lansoscan-go/internal/errors"
	obsmetrics "github.com/lansoscan/lansoscan-go/internal/observability/metrics"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// Interface abstracts the underlying database implementation and defines the operations on scan records.
type Interface interface {
	Open() error
	Close() error
	SetMetrics(m *obsmetrics.DatastoreMetrics)
	Save(scan *ScanRecord) error
	Get(id string) (ScanRecord, error)
	Delete(id string) error
	DeleteAll() (int64, error)
	GetAllScans() ([]ScanRecord, error)
	GetLastScans(limit, offset int, sortAscending bool) ([]ScanRecord, error)
	GetScansByType(analysisType string, sortAscending bool, limit, offset int) ([]ScanRecord, error)
	GetScansByVerdict(diseaseDetected, sortAscending bool, limit, offset int) ([]ScanRecord, error)
	SearchScans(query string, sortAscending bool, limit, offset int) ([]ScanRecord, error)
	CountScans() (int64, error)
	CountByType(analysisType string) (int64, error)
	CountDiseased() (int64, error)
	AverageConfidence() (float64, error)
	TotalImageBytes() (int64, error)
	GetStats() (ScanStats, error)
	GetAllImagePaths() ([]string, error)
}

// DataStore implements Interface using a GORM database.
type DataStore struct {
	DB      *gorm.DB // GORM database instance
	metrics *obsmetrics.DatastoreMetrics
}

// SetMetrics attaches Prometheus collectors to the store. Safe to leave
// unset, metrics recording is skipped when nil.
func (ds *DataStore) SetMetrics(m *obsmetrics.DatastoreMetrics) {
	ds.metrics = m
}

// recordOp reports an operation outcome to the metrics collector when one is
// attached.
func (ds *DataStore) recordOp(operation string, start time.Time, err error) {
	if ds.metrics == nil {
		return
	}
	status := obsmetrics.StatusSuccess
	if err != nil {
		status = obsmetrics.StatusError
	}
	ds.metrics.RecordOperation(operation, status, time.Since(start).Seconds())
}

// New creates a new datastore instance based on the provided configuration.
func New(settings *conf.Settings) Interface {
	switch {
	case settings.Output.SQLite.Enabled:
		return &SQLiteStore{
			Settings: settings,
		}
	case settings.Output.MySQL.Enabled:
		return &MySQLStore{
			Settings: settings,
		}
	default:
		return nil
	}
}

// Save stores a scan record after enforcing the record invariants.
func (ds *DataStore) Save(scan *ScanRecord) error {
	if scan.ID == "" {
		return errors.Newf("scan record must carry an ID").
			Category(errors.CategoryValidation).
			Component("datastore").
			Build()
	}

	scan.Normalize()

	start := time.Now()
	err := ds.DB.Create(scan).Error
	ds.recordOp("save", start, err)
	if err != nil {
		return errors.Newf("saving scan record: %w", err).
			Category(errors.CategoryDatabase).
			Context("scan_id", scan.ID).
			Component("datastore").
			Build()
	}
	return nil
}

// Get retrieves a scan record by its ID from the database.
func (ds *DataStore) Get(id string) (ScanRecord, error) {
	var scan ScanRecord
	start := time.Now()
	err := ds.DB.Where("id = ?", id).First(&scan).Error
	ds.recordOp("get", start, err)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return ScanRecord{}, errors.Newf("scan not found: %s", id).
				Category(errors.CategoryNotFound).
				Context("scan_id", id).
				Component("datastore").
				Build()
		}
		return ScanRecord{}, errors.Newf("getting scan %s: %w", id, err).
			Category(errors.CategoryDatabase).
			Context("scan_id", id).
			Component("datastore").
			Build()
	}
	return scan, nil
}

// Delete removes a scan record from the database.
func (ds *DataStore) Delete(id string) error {
	start := time.Now()
	result := ds.DB.Where("id = ?", id).Delete(&ScanRecord{})
	ds.recordOp("delete", start, result.Error)
	if result.Error != nil {
		return errors.Newf("deleting scan %s: %w", id, result.Error).
			Category(errors.CategoryDatabase).
			Context("scan_id", id).
			Component("datastore").
			Build()
	}
	if result.RowsAffected == 0 {
		return errors.Newf("scan not found: %s", id).
			Category(errors.CategoryNotFound).
			Context("scan_id", id).
			Component("datastore").
			Build()
	}
	return nil
}

// DeleteAll removes every scan record and reports how many were deleted.
func (ds *DataStore) DeleteAll() (int64, error) {
	start := time.Now()
	result := ds.DB.Where("1 = 1").Delete(&ScanRecord{})
	ds.recordOp("delete_all", start, result.Error)
	if result.Error != nil {
		return 0, errors.Newf("deleting all scans: %w", result.Error).
			Category(errors.CategoryDatabase).
			Component("datastore").
			Build()
	}
	return result.RowsAffected, nil
}

// GetAllScans retrieves all scan records from the database.
func (ds *DataStore) GetAllScans() ([]ScanRecord, error) {
	var scans []ScanRecord
	if result := ds.DB.Order("created_at DESC").Find(&scans); result.Error != nil {
		return nil, errors.Newf("getting all scans: %w", result.Error).
			Category(errors.CategoryDatabase).
			Component("datastore").
			Build()
	}
	return scans, nil
}

// GetLastScans retrieves the most recent scans with pagination.
func (ds *DataStore) GetLastScans(limit, offset int, sortAscending bool) ([]ScanRecord, error) {
	var scans []ScanRecord
	start := time.Now()
	err := ds.DB.Order("created_at " + sortAscendingString(sortAscending)).
		Limit(limit).
		Offset(offset).
		Find(&scans).Error
	ds.recordOp("list", start, err)
	if err != nil {
		return nil, errors.Newf("getting last scans: %w", err).
			Category(errors.CategoryDatabase).
			Component("datastore").
			Build()
	}
	return scans, nil
}

// GetScansByType retrieves scans filtered by analysis type with sorting and
// pagination.
func (ds *DataStore) GetScansByType(analysisType string, sortAscending bool, limit, offset int) ([]ScanRecord, error) {
	var scans []ScanRecord
	start := time.Now()
	err := ds.DB.Where("analysis_type = ?", analysisType).
		Order("created_at " + sortAscendingString(sortAscending)).
		Limit(limit).
		Offset(offset).
		Find(&scans).Error
	ds.recordOp("list", start, err)
	if err != nil {
		return nil, errors.Newf("getting scans by type %s: %w", analysisType, err).
			Category(errors.CategoryDatabase).
			Context("analysis_type", analysisType).
			Component("datastore").
			Build()
	}
	return scans, nil
}

// GetScansByVerdict retrieves scans filtered by disease verdict with sorting
// and pagination.
func (ds *DataStore) GetScansByVerdict(diseaseDetected, sortAscending bool, limit, offset int) ([]ScanRecord, error) {
	var scans []ScanRecord
	start := time.Now()
	err := ds.DB.Where("disease_detected = ?", diseaseDetected).
		Order("created_at " + sortAscendingString(sortAscending)).
		Limit(limit).
		Offset(offset).
		Find(&scans).Error
	ds.recordOp("list", start, err)
	if err != nil {
		return nil, errors.Newf("getting scans by verdict: %w", err).
			Category(errors.CategoryDatabase).
			Component("datastore").
			Build()
	}
	return scans, nil
}

// SearchScans performs a disease-name search with optional sorting and pagination.
func (ds *DataStore) SearchScans(query string, sortAscending bool, limit, offset int) ([]ScanRecord, error) {
	var scans []ScanRecord
	start := time.Now()
	err := ds.DB.Where("disease_name LIKE ?", "%"+query+"%").
		Order("created_at " + sortAscendingString(sortAscending)).
		Limit(limit).
		Offset(offset).
		Find(&scans).Error
	ds.recordOp("search", start, err)
	if err != nil {
		return nil, errors.Newf("searching scans: %w", err).
			Category(errors.CategoryDatabase).
			Component("datastore").
			Build()
	}
	return scans, nil
}

// CountScans returns the total number of scan records.
func (ds *DataStore) CountScans() (int64, error) {
	var count int64
	if err := ds.DB.Model(&ScanRecord{}).Count(&count).Error; err != nil {
		return 0, errors.Newf("counting scans: %w", err).
			Category(errors.CategoryDatabase).
			Component("datastore").
			Build()
	}
	if ds.metrics != nil {
		ds.metrics.SetRecordCount(float64(count))
	}
	return count, nil
}

// CountByType returns the number of scans of a given analysis type.
func (ds *DataStore) CountByType(analysisType string) (int64, error) {
	var count int64
	err := ds.DB.Model(&ScanRecord{}).
		Where("analysis_type = ?", analysisType).
		Count(&count).Error
	if err != nil {
		return 0, errors.Newf("counting scans by type: %w", err).
			Category(errors.CategoryDatabase).
			Component("datastore").
			Build()
	}
	return count, nil
}

// CountDiseased returns the number of scans with a positive disease verdict.
func (ds *DataStore) CountDiseased() (int64, error) {
	var count int64
	err := ds.DB.Model(&ScanRecord{}).
		Where("disease_detected = ?", true).
		Count(&count).Error
	if err != nil {
		return 0, errors.Newf("counting diseased scans: %w", err).
			Category(errors.CategoryDatabase).
			Component("datastore").
			Build()
	}
	return count, nil
}

// AverageConfidence returns the mean confidence over all scans, 0 when empty.
func (ds *DataStore) AverageConfidence() (float64, error) {
	var avg *float64
	err := ds.DB.Model(&ScanRecord{}).
		Select("AVG(confidence)").
		Scan(&avg).Error
	if err != nil {
		return 0, errors.Newf("averaging confidence: %w", err).
			Category(errors.CategoryDatabase).
			Component("datastore").
			Build()
	}
	if avg == nil {
		return 0, nil
	}
	return *avg, nil
}

// TotalImageBytes returns the sum of stored image sizes, 0 when empty.
func (ds *DataStore) TotalImageBytes() (int64, error) {
	var total *int64
	err := ds.DB.Model(&ScanRecord{}).
		Select("SUM(file_size)").
		Scan(&total).Error
	if err != nil {
		return 0, errors.Newf("summing image bytes: %w", err).
			Category(errors.CategoryDatabase).
			Component("datastore").
			Build()
	}
	if total == nil {
		return 0, nil
	}
	return *total, nil
}

// GetStats collects the aggregate counters used by the stats views.
func (ds *DataStore) GetStats() (ScanStats, error) {
	var stats ScanStats
	var err error

	start := time.Now()
	defer func() { ds.recordOp("stats", start, err) }()

	if stats.TotalScans, err = ds.CountScans(); err != nil {
		return stats, err
	}
	if stats.DiseasedScans, err = ds.CountDiseased(); err != nil {
		return stats, err
	}
	stats.HealthyScans = stats.TotalScans - stats.DiseasedScans
	if stats.FruitScans, err = ds.CountByType(conf.TypeFruit); err != nil {
		return stats, err
	}
	if stats.LeafScans, err = ds.CountByType(conf.TypeLeaf); err != nil {
		return stats, err
	}
	if stats.AverageConfidence, err = ds.AverageConfidence(); err != nil {
		return stats, err
	}
	if stats.TotalImageBytes, err = ds.TotalImageBytes(); err != nil {
		return stats, err
	}
	return stats, nil
}

// GetAllImagePaths returns every image and thumbnail path referenced by the
// database. The orphan sweep uses this as the reachable set.
func (ds *DataStore) GetAllImagePaths() ([]string, error) {
	var rows []struct {
		ImagePath     string
		ThumbnailPath string
	}
	err := ds.DB.Model(&ScanRecord{}).
		Select("image_path", "thumbnail_path").
		Scan(&rows).Error
	if err != nil {
		return nil, errors.Newf("getting image paths: %w", err).
			Category(errors.CategoryDatabase).
			Component("datastore").
			Build()
	}

	paths := make([]string, 0, len(rows)*2)
	for _, row := range rows {
		if row.ImagePath != "" {
			paths = append(paths, row.ImagePath)
		}
		if row.ThumbnailPath != "" {
			paths = append(paths, row.ThumbnailPath)
		}
	}
	return paths, nil
}

// performAutoMigration automates database migrations with error handling.
func performAutoMigration(db *gorm.DB, debug bool, dbType, connectionInfo string) error {
	if err := db.AutoMigrate(&ScanRecord{}); err != nil {
		return errors.Newf("failed to auto-migrate %s database: %w", dbType, err).
			Category(errors.CategoryDatabase).
			Context("db_type", dbType).
			Component("datastore").
			Build()
	}

	if debug {
		log.Printf("%s database connection initialized: %s", dbType, connectionInfo)
	}

	return nil
}

// sortAscendingString returns "ASC" or "DESC" based on the boolean input.
func sortAscendingString(asc bool) string {
	if asc {
		return "ASC"
	}
	return "DESC"
}

// createGormLogger configures and returns a new GORM logger instance.
func createGormLogger() logger.Interface {
	return logger.New(
		log.New(os.Stdout, "\r\n", log.LstdFlags),
		logger.Config{
			SlowThreshold: 200 * time.Millisecond,
			LogLevel:      logger.Warn,
			Colorful:      true,
		},
	)
}
