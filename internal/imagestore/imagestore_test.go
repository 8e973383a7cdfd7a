package imagestore

import (
	"bytes"
	"image"
	"image/color"
	"image/jpeg"
	"image/png"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lansoscan/lansoscan-go/internal/conf"
	"github.com/lansoscan/lansoscan-go/internal/errors"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()

	base := t.TempDir()
	settings := &conf.Settings{}
	settings.Storage.ImagesPath = filepath.Join(base, "images")
	settings.Storage.ThumbnailsPath = filepath.Join(base, "thumbnails")
	settings.Analysis.JPEGQuality = 85
	settings.Analysis.MaxDimension = 64
	settings.Analysis.ThumbnailSize = 16

	store, err := New(settings)
	require.NoError(t, err)
	return store
}

// encodeTestImage renders a solid-color image in the requested format.
func encodeTestImage(t *testing.T, width, height int, format string) []byte {
	t.Helper()

	img := image.NewRGBA(image.Rect(0, 0, width, height))
	for y := range height {
		for x := range width {
			img.Set(x, y, color.RGBA{R: 120, G: 180, B: 60, A: 255})
		}
	}

	var buf bytes.Buffer
	switch format {
	case "png":
		require.NoError(t, png.Encode(&buf, img))
	default:
		require.NoError(t, jpeg.Encode(&buf, img, nil))
	}
	return buf.Bytes()
}

func TestSave_WritesImageAndThumbnail(t *testing.T) {
	store := newTestStore(t)

	saved, err := store.Save("scan-1", encodeTestImage(t, 128, 96, "jpeg"))
	require.NoError(t, err)

	assert.Equal(t, "images/scan-1.jpg", saved.ImagePath)
	assert.Equal(t, "thumbnails/scan-1.jpg", saved.ThumbnailPath)
	assert.Equal(t, "jpeg", saved.Format)
	assert.Positive(t, saved.FileSize)

	// Downscaled to the configured maximum dimension
	assert.Equal(t, 64, saved.Width)
	assert.Equal(t, 48, saved.Height)

	for _, relPath := range []string{saved.ImagePath, saved.ThumbnailPath} {
		data, err := store.Read(relPath)
		require.NoError(t, err)
		decoded, format, err := image.Decode(bytes.NewReader(data))
		require.NoError(t, err)
		assert.Equal(t, "jpeg", format)
		assert.NotNil(t, decoded)
	}
}

func TestSave_AcceptsPNG(t *testing.T) {
	store := newTestStore(t)

	saved, err := store.Save("scan-png", encodeTestImage(t, 32, 32, "png"))
	require.NoError(t, err)
	assert.Equal(t, "png", saved.Format)

	// Small images are stored at their original size
	assert.Equal(t, 32, saved.Width)
	assert.Equal(t, 32, saved.Height)
}

func TestSave_RejectsInvalidData(t *testing.T) {
	store := newTestStore(t)

	_, err := store.Save("scan-bad", []byte("not an image"))
	require.Error(t, err)
	assert.True(t, errors.IsCategory(err, errors.CategoryImageProcessing))

	_, err = store.Save("", encodeTestImage(t, 8, 8, "jpeg"))
	require.Error(t, err)
	assert.True(t, errors.IsCategory(err, errors.CategoryValidation))
}

func TestDelete_RemovesPair(t *testing.T) {
	store := newTestStore(t)

	saved, err := store.Save("scan-2", encodeTestImage(t, 32, 32, "jpeg"))
	require.NoError(t, err)

	require.NoError(t, store.Delete(saved.ImagePath, saved.ThumbnailPath))

	_, err = store.Read(saved.ImagePath)
	assert.True(t, errors.IsNotFound(err))

	// Deleting already-removed files is not an error
	assert.NoError(t, store.Delete(saved.ImagePath, saved.ThumbnailPath))
}

func TestRead_RejectsPathTraversal(t *testing.T) {
	store := newTestStore(t)

	for _, path := range []string{
		"../etc/passwd",
		"images/../../etc/passwd",
		"images/sub/dir.jpg",
		"elsewhere/file.jpg",
		"images/",
	} {
		_, err := store.Read(path)
		require.Error(t, err, "path %q should be rejected", path)
		assert.True(t, errors.IsCategory(err, errors.CategoryValidation), "path %q", path)
	}
}

func TestCleanupOrphans(t *testing.T) {
	store := newTestStore(t)

	kept, err := store.Save("scan-kept", encodeTestImage(t, 32, 32, "jpeg"))
	require.NoError(t, err)
	orphan, err := store.Save("scan-orphan", encodeTestImage(t, 32, 32, "jpeg"))
	require.NoError(t, err)

	referenced := []string{kept.ImagePath, kept.ThumbnailPath}

	// Dry run reports orphans but leaves files alone
	result, err := store.CleanupOrphans(referenced, true)
	require.NoError(t, err)
	assert.True(t, result.DryRun)
	assert.Equal(t, 4, result.FilesScanned)
	assert.ElementsMatch(t, []string{orphan.ImagePath, orphan.ThumbnailPath}, result.Orphans)
	assert.Zero(t, result.FilesDeleted)

	_, err = store.Read(orphan.ImagePath)
	assert.NoError(t, err)

	// Real run deletes them
	result, err = store.CleanupOrphans(referenced, false)
	require.NoError(t, err)
	assert.Equal(t, 2, result.FilesDeleted)
	assert.Positive(t, result.BytesReclaimed)

	_, err = store.Read(orphan.ImagePath)
	assert.True(t, errors.IsNotFound(err))
	_, err = store.Read(kept.ImagePath)
	assert.NoError(t, err)
}

func TestCleanupOrphans_EmptyDirectories(t *testing.T) {
	store := newTestStore(t)

	result, err := store.CleanupOrphans(nil, false)
	require.NoError(t, err)
	assert.Zero(t, result.FilesScanned)
	assert.Empty(t, result.Orphans)
}

func TestGetStats(t *testing.T) {
	store := newTestStore(t)

	_, err := store.Save("scan-a", encodeTestImage(t, 32, 32, "jpeg"))
	require.NoError(t, err)
	_, err = store.Save("scan-b", encodeTestImage(t, 32, 32, "jpeg"))
	require.NoError(t, err)

	stats, err := store.GetStats()
	require.NoError(t, err)
	assert.Equal(t, 2, stats.ImageCount)
	assert.Equal(t, 2, stats.ThumbnailCount)
	assert.Positive(t, stats.TotalBytes)
}

func TestScaleDown_PreservesAspectRatio(t *testing.T) {
	t.Parallel()

	tall := image.NewRGBA(image.Rect(0, 0, 50, 200))
	scaled := scaleDown(tall, 100)
	assert.Equal(t, 25, scaled.Bounds().Dx())
	assert.Equal(t, 100, scaled.Bounds().Dy())

	small := image.NewRGBA(image.Rect(0, 0, 20, 30))
	assert.Same(t, image.Image(small), scaleDown(small, 100))
}

func TestNew_CreatesDirectories(t *testing.T) {
	base := t.TempDir()
	settings := &conf.Settings{}
	settings.Storage.ImagesPath = filepath.Join(base, "nested", "images")
	settings.Storage.ThumbnailsPath = filepath.Join(base, "nested", "thumbnails")
	settings.Analysis.JPEGQuality = 85

	_, err := New(settings)
	require.NoError(t, err)

	info, err := os.Stat(filepath.Join(base, "nested", "images"))
	require.NoError(t, err)
	assert.True(t, info.IsDir())
}
