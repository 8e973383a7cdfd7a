package api

import (
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/lansoscan/lansoscan-go/internal/errors"
)

// ServeImage serves the stored image of a scan.
func (c *Controller) ServeImage(ctx echo.Context) error {
	return c.serveScanFile(ctx, false)
}

// ServeThumbnail serves the stored thumbnail of a scan.
func (c *Controller) ServeThumbnail(ctx echo.Context) error {
	return c.serveScanFile(ctx, true)
}

// serveScanFile looks up the scan record and streams the referenced file.
// Going through the record instead of deriving the file name from the ID
// keeps the handler honest about what the datastore actually references.
func (c *Controller) serveScanFile(ctx echo.Context, thumbnail bool) error {
	scan, err := c.DS.Get(ctx.Param("id"))
	if err != nil {
		return c.HandleError(ctx, err, "Scan not found")
	}

	relPath := scan.ImagePath
	if thumbnail {
		relPath = scan.ThumbnailPath
	}
	if relPath == "" {
		return c.HandleError(ctx, errors.Newf("scan has no stored file").
			Category(errors.CategoryNotFound).
			Context("scan_id", scan.ID).
			Component("api").
			Build(), "File not found")
	}

	data, err := c.Images.Read(relPath)
	if err != nil {
		return c.HandleError(ctx, err, "Failed to read image file")
	}

	ctx.Response().Header().Set("Cache-Control", "private, max-age=3600")
	return ctx.Blob(http.StatusOK, "image/jpeg", data)
}
