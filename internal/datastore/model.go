// model.go this code defines the data model for the application
package datastore

import (
	"encoding/json"
	"time"
)

// ScanRecord represents the persisted result of one image analysis.
// Recommendations are stored as a JSON-encoded text column to keep the
// table flat; the record has no relationships to other entities.
type ScanRecord struct {
	ID              string    `gorm:"primaryKey;type:varchar(36)"`
	ImagePath       string    `gorm:"index:idx_scans_image_path"`
	ThumbnailPath   string
	AnalysisType    string    `gorm:"index:idx_scans_type;type:varchar(10)"` // fruit or leaf
	DiseaseDetected bool      `gorm:"index:idx_scans_detected"`
	DiseaseName     string    `gorm:"index:idx_scans_disease"`
	Confidence      float64
	Severity        string    `gorm:"type:varchar(20)"` // none, mild, moderate, severe
	Recommendations string    `gorm:"type:text"`        // JSON-encoded list of recommendation strings
	Heuristic       bool      // true when the verdict came from the fallback parser
	FileSize        int64     // stored image size in bytes
	ImageFormat     string    `gorm:"type:varchar(10)"`
	ProcessingMS    int64     // end-to-end analysis duration in milliseconds
	ModelVersion    string    // model identifier that produced the verdict
	CreatedAt       time.Time `gorm:"index:idx_scans_created_at"`
}

// SetRecommendations encodes the recommendation list into the record.
func (s *ScanRecord) SetRecommendations(recs []string) error {
	if len(recs) == 0 {
		s.Recommendations = "[]"
		return nil
	}
	data, err := json.Marshal(recs)
	if err != nil {
		return err
	}
	s.Recommendations = string(data)
	return nil
}

// GetRecommendations decodes the recommendation list from the record.
func (s *ScanRecord) GetRecommendations() []string {
	if s.Recommendations == "" {
		return nil
	}
	var recs []string
	if err := json.Unmarshal([]byte(s.Recommendations), &recs); err != nil {
		return nil
	}
	return recs
}

// Normalize enforces the record invariants before persistence: confidence is
// clamped into [0,1] and the disease name and severity are cleared when no
// disease was detected.
func (s *ScanRecord) Normalize() {
	if s.Confidence < 0 {
		s.Confidence = 0
	}
	if s.Confidence > 1 {
		s.Confidence = 1
	}
	if !s.DiseaseDetected {
		s.DiseaseName = ""
		s.Severity = SeverityNone
	}
}

// Severity levels reported for a detected disease.
const (
	SeverityNone     = "none"
	SeverityMild     = "mild"
	SeverityModerate = "moderate"
	SeveritySevere   = "severe"
)

// ScanStats aggregates history counters for the stats views.
type ScanStats struct {
	TotalScans        int64   `json:"total_scans"`
	DiseasedScans     int64   `json:"diseased_scans"`
	HealthyScans      int64   `json:"healthy_scans"`
	FruitScans        int64   `json:"fruit_scans"`
	LeafScans         int64   `json:"leaf_scans"`
	AverageConfidence float64 `json:"average_confidence"`
	TotalImageBytes   int64   `json:"total_image_bytes"`
}
