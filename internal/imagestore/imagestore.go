// Package imagestore manages scan image files: re-encoded originals,
// generated thumbnails, deletion, and orphan cleanup.
package imagestore

import (
	"bytes"
	"fmt"
	"image"
	"image/jpeg"
	_ "image/png" // register PNG decoding for uploaded images
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"golang.org/x/image/draw"

	"github.com/lansoscan/lansoscan-go/internal/conf"
	"github.com/lansoscan/lansoscan-go/internal/errors"
	"github.com/lansoscan/lansoscan-go/internal/logging"
	obsmetrics "github.com/lansoscan/lansoscan-go/internal/observability/metrics"
)

const (
	imagesDirName = "images"
	thumbsDirName = "thumbnails"
)

var (
	storeLogger *slog.Logger
	loggerOnce  sync.Once
)

func getLogger() *slog.Logger {
	loggerOnce.Do(func() {
		storeLogger = logging.ForService("imagestore")
	})
	return storeLogger
}

// Store writes and removes scan images under the configured directories.
type Store struct {
	imagesDir     string // absolute path to the originals directory
	thumbsDir     string // absolute path to the thumbnails directory
	jpegQuality   int
	maxDimension  int
	thumbnailSize int
	metrics       *obsmetrics.ImageStoreMetrics
}

// SetMetrics attaches Prometheus collectors to the store. Safe to leave
// unset, metrics recording is skipped when nil.
func (s *Store) SetMetrics(m *obsmetrics.ImageStoreMetrics) {
	s.metrics = m
}

// SavedImage describes the files written for a single scan.
type SavedImage struct {
	ImagePath     string // relative path, e.g. "images/<id>.jpg"
	ThumbnailPath string // relative path, e.g. "thumbnails/<id>.jpg"
	FileSize      int64  // size of the re-encoded original in bytes
	Format        string // format the upload was decoded from
	Width         int    // dimensions after downscaling
	Height        int
}

// CleanupResult summarizes an orphan cleanup pass.
type CleanupResult struct {
	FilesScanned   int
	Orphans        []string
	FilesDeleted   int
	BytesReclaimed int64
	DryRun         bool
}

// Stats reports disk usage of the managed directories.
type Stats struct {
	ImageCount     int
	ThumbnailCount int
	TotalBytes     int64
}

// New creates a store rooted at the configured storage paths, creating the
// directories if needed.
func New(settings *conf.Settings) (*Store, error) {
	imagesDir := conf.GetBasePath(settings.Storage.ImagesPath)
	thumbsDir := conf.GetBasePath(settings.Storage.ThumbnailsPath)

	for _, dir := range []string{imagesDir, thumbsDir} {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, errors.Newf("failed to create image directory: %w", err).
				Category(errors.CategoryFileIO).
				Context("path", dir).
				Component("imagestore").
				Build()
		}
	}

	return &Store{
		imagesDir:     imagesDir,
		thumbsDir:     thumbsDir,
		jpegQuality:   settings.Analysis.JPEGQuality,
		maxDimension:  settings.Analysis.MaxDimension,
		thumbnailSize: settings.Analysis.ThumbnailSize,
	}, nil
}

// Save decodes an uploaded image, re-encodes a downscaled JPEG original and a
// thumbnail, and writes both under the scan ID.
func (s *Store) Save(scanID string, data []byte) (*SavedImage, error) {
	if scanID == "" {
		return nil, errors.Newf("scan ID must not be empty").
			Category(errors.CategoryValidation).
			Component("imagestore").
			Build()
	}

	start := time.Now()

	img, format, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		if s.metrics != nil {
			s.metrics.RecordSaveError()
		}
		return nil, errors.Newf("failed to decode image: %w", err).
			Category(errors.CategoryImageProcessing).
			Context("scan_id", scanID).
			Context("input_size", len(data)).
			Component("imagestore").
			Build()
	}

	scaled := scaleDown(img, s.maxDimension)
	thumb := scaleDown(img, s.thumbnailSize)

	fileName := scanID + ".jpg"
	imageAbs := filepath.Join(s.imagesDir, fileName)
	thumbAbs := filepath.Join(s.thumbsDir, fileName)

	size, err := s.writeJPEG(imageAbs, scaled)
	if err != nil {
		if s.metrics != nil {
			s.metrics.RecordSaveError()
		}
		return nil, err
	}
	if _, err := s.writeJPEG(thumbAbs, thumb); err != nil {
		// Don't leave a half-written pair behind
		_ = os.Remove(imageAbs)
		if s.metrics != nil {
			s.metrics.RecordSaveError()
		}
		return nil, err
	}

	bounds := scaled.Bounds()
	saved := &SavedImage{
		ImagePath:     filepath.ToSlash(filepath.Join(imagesDirName, fileName)),
		ThumbnailPath: filepath.ToSlash(filepath.Join(thumbsDirName, fileName)),
		FileSize:      size,
		Format:        format,
		Width:         bounds.Dx(),
		Height:        bounds.Dy(),
	}

	if s.metrics != nil {
		s.metrics.RecordSave(time.Since(start).Seconds())
	}

	getLogger().Debug("Saved scan image",
		"scan_id", scanID,
		"image_path", saved.ImagePath,
		"file_size", saved.FileSize,
		"format", saved.Format)

	return saved, nil
}

// Delete removes a scan's image and thumbnail. Missing files are not an
// error, the record may already be partially cleaned up.
func (s *Store) Delete(imagePath, thumbnailPath string) error {
	for _, relPath := range []string{imagePath, thumbnailPath} {
		if relPath == "" {
			continue
		}
		absPath, err := s.resolve(relPath)
		if err != nil {
			return err
		}
		if err := os.Remove(absPath); err != nil && !os.IsNotExist(err) {
			return errors.Newf("failed to remove image file: %w", err).
				Category(errors.CategoryFileIO).
				Context("path", relPath).
				Component("imagestore").
				Build()
		}
	}
	if s.metrics != nil {
		s.metrics.RecordDelete()
	}
	return nil
}

// Read returns the contents of a managed image file.
func (s *Store) Read(relPath string) ([]byte, error) {
	absPath, err := s.resolve(relPath)
	if err != nil {
		return nil, err
	}
	data, err := os.ReadFile(absPath)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, errors.Newf("image file not found").
				Category(errors.CategoryNotFound).
				Context("path", relPath).
				Component("imagestore").
				Build()
		}
		return nil, errors.Newf("failed to read image file: %w", err).
			Category(errors.CategoryFileIO).
			Context("path", relPath).
			Component("imagestore").
			Build()
	}
	return data, nil
}

// CleanupOrphans deletes managed files that no scan record references.
// referenced holds the relative paths the datastore knows about. With dryRun
// set the orphans are reported but left on disk.
func (s *Store) CleanupOrphans(referenced []string, dryRun bool) (*CleanupResult, error) {
	known := make(map[string]struct{}, len(referenced))
	for _, p := range referenced {
		known[filepath.ToSlash(p)] = struct{}{}
	}

	result := &CleanupResult{DryRun: dryRun}

	dirs := []struct {
		abs    string
		prefix string
	}{
		{s.imagesDir, imagesDirName},
		{s.thumbsDir, thumbsDirName},
	}

	for _, dir := range dirs {
		entries, err := os.ReadDir(dir.abs)
		if err != nil {
			return nil, errors.Newf("failed to list image directory: %w", err).
				Category(errors.CategoryFileIO).
				Context("path", dir.abs).
				Component("imagestore").
				Build()
		}

		for _, entry := range entries {
			if entry.IsDir() {
				continue
			}
			result.FilesScanned++

			relPath := dir.prefix + "/" + entry.Name()
			if _, ok := known[relPath]; ok {
				continue
			}

			result.Orphans = append(result.Orphans, relPath)

			info, err := entry.Info()
			if err == nil {
				result.BytesReclaimed += info.Size()
			}

			if dryRun {
				continue
			}

			if err := os.Remove(filepath.Join(dir.abs, entry.Name())); err != nil {
				getLogger().Error("Failed to remove orphaned file",
					"path", relPath, "error", err)
				continue
			}
			result.FilesDeleted++
		}
	}

	if s.metrics != nil && !dryRun {
		s.metrics.RecordCleanup(result.FilesDeleted, result.BytesReclaimed)
	}

	getLogger().Info("Orphan cleanup finished",
		"scanned", result.FilesScanned,
		"orphans", len(result.Orphans),
		"deleted", result.FilesDeleted,
		"bytes_reclaimed", result.BytesReclaimed,
		"dry_run", dryRun)

	return result, nil
}

// GetStats walks the managed directories and reports usage.
func (s *Store) GetStats() (*Stats, error) {
	stats := &Stats{}

	count := func(dir string, counter *int) error {
		return filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
			if err != nil || d.IsDir() {
				return err
			}
			info, err := d.Info()
			if err != nil {
				return err
			}
			*counter++
			stats.TotalBytes += info.Size()
			return nil
		})
	}

	if err := count(s.imagesDir, &stats.ImageCount); err != nil {
		return nil, errors.Newf("failed to collect image stats: %w", err).
			Category(errors.CategoryFileIO).
			Component("imagestore").
			Build()
	}
	if err := count(s.thumbsDir, &stats.ThumbnailCount); err != nil {
		return nil, errors.Newf("failed to collect thumbnail stats: %w", err).
			Category(errors.CategoryFileIO).
			Component("imagestore").
			Build()
	}

	if s.metrics != nil {
		s.metrics.SetDiskUsage(float64(stats.TotalBytes))
	}

	return stats, nil
}

// resolve maps a stored relative path to an absolute path inside one of the
// managed directories and rejects anything that escapes them.
func (s *Store) resolve(relPath string) (string, error) {
	clean := filepath.ToSlash(filepath.Clean(relPath))

	var base, name string
	switch {
	case strings.HasPrefix(clean, imagesDirName+"/"):
		base, name = s.imagesDir, strings.TrimPrefix(clean, imagesDirName+"/")
	case strings.HasPrefix(clean, thumbsDirName+"/"):
		base, name = s.thumbsDir, strings.TrimPrefix(clean, thumbsDirName+"/")
	default:
		return "", errors.Newf("path is outside managed image directories").
			Category(errors.CategoryValidation).
			Context("path", relPath).
			Component("imagestore").
			Build()
	}

	if name == "" || strings.Contains(name, "/") || strings.Contains(name, "..") {
		return "", errors.Newf("invalid image file name").
			Category(errors.CategoryValidation).
			Context("path", relPath).
			Component("imagestore").
			Build()
	}

	return filepath.Join(base, name), nil
}

// writeJPEG encodes img to path and returns the file size.
func (s *Store) writeJPEG(path string, img image.Image) (int64, error) {
	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, img, &jpeg.Options{Quality: s.jpegQuality}); err != nil {
		return 0, errors.Newf("failed to encode JPEG: %w", err).
			Category(errors.CategoryImageProcessing).
			Context("path", path).
			Component("imagestore").
			Build()
	}
	if err := os.WriteFile(path, buf.Bytes(), 0o644); err != nil {
		return 0, errors.Newf("failed to write image file: %w", err).
			Category(errors.CategoryFileIO).
			Context("path", path).
			Component("imagestore").
			Build()
	}
	return int64(buf.Len()), nil
}

// scaleDown resizes img so its longest side is at most maxSide, preserving
// aspect ratio. Images already within the bound are returned unchanged.
func scaleDown(img image.Image, maxSide int) image.Image {
	bounds := img.Bounds()
	w, h := bounds.Dx(), bounds.Dy()
	if maxSide <= 0 || (w <= maxSide && h <= maxSide) {
		return img
	}

	var newW, newH int
	if w >= h {
		newW = maxSide
		newH = h * maxSide / w
	} else {
		newH = maxSide
		newW = w * maxSide / h
	}
	if newW < 1 {
		newW = 1
	}
	if newH < 1 {
		newH = 1
	}

	dst := image.NewRGBA(image.Rect(0, 0, newW, newH))
	draw.CatmullRom.Scale(dst, dst.Bounds(), img, bounds, draw.Over, nil)
	return dst
}

// String implements fmt.Stringer for cleanup summaries in CLI output.
func (r *CleanupResult) String() string {
	if r.DryRun {
		return fmt.Sprintf("dry run: %d files scanned, %d orphans (%d bytes)",
			r.FilesScanned, len(r.Orphans), r.BytesReclaimed)
	}
	return fmt.Sprintf("%d files scanned, %d orphans deleted (%d bytes reclaimed)",
		r.FilesScanned, r.FilesDeleted, r.BytesReclaimed)
}
