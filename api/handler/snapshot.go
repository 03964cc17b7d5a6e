package handler

import (
	"net/http"

	"github.com/JohannesKaufmann/html-to-markdown/v2/converter"
	"github.com/gin-gonic/gin"

	"github.com/use-agent/pagediff/models"
	"github.com/use-agent/pagediff/normalizer"
	"github.com/use-agent/pagediff/store"
)

// ListSnapshots returns a handler for GET /api/v1/snapshots.
func ListSnapshots(s store.Store) gin.HandlerFunc {
	return func(c *gin.Context) {
		ids, err := s.ListIDs(c.Request.Context())
		if err != nil {
			respondError(c, err)
			return
		}
		if ids == nil {
			ids = []string{}
		}
		c.JSON(http.StatusOK, models.SnapshotListResponse{IDs: ids, Total: len(ids)})
	}
}

// GetSnapshot returns a handler for GET /api/v1/snapshots/:id. Placeholder
// records are returned with complete=false.
func GetSnapshot(s store.Store) gin.HandlerFunc {
	return func(c *gin.Context) {
		rec, err := s.FetchRecord(c.Request.Context(), c.Param("id"))
		if err != nil {
			respondError(c, err)
			return
		}
		c.JSON(http.StatusOK, models.SnapshotResponse{
			Record:   rec,
			Complete: rec.Complete(),
			Summary:  rec.Summary(),
		})
	}
}

// GetAsset returns a handler for GET /api/v1/assets/:ref.
func GetAsset(s store.Store) gin.HandlerFunc {
	return func(c *gin.Context) {
		asset, err := s.FetchAsset(c.Request.Context(), models.AssetRef(c.Param("ref")))
		if err != nil {
			respondError(c, err)
			return
		}
		c.Header("Cache-Control", "public, max-age=31536000, immutable")
		c.Data(http.StatusOK, asset.ContentType, asset.Data)
	}
}

// GetSideBody returns a handler for GET /api/v1/snapshots/:id/:side/body.
// format=markdown renders the normalized body as Markdown; the default is
// the normalized HTML itself.
func GetSideBody(s store.Store, conv *converter.Converter) gin.HandlerFunc {
	return func(c *gin.Context) {
		side, ok := fetchSide(c, s)
		if !ok {
			return
		}

		switch c.DefaultQuery("format", "html") {
		case "html":
			c.Data(http.StatusOK, "text/html; charset=utf-8", []byte(side.Body))
		case "markdown":
			md, err := normalizer.ToMarkdown(conv, side.Body, side.URL)
			if err != nil {
				respondError(c, models.NewDiffError(models.ErrCodeInternal, "failed to render markdown", err))
				return
			}
			c.Data(http.StatusOK, "text/markdown; charset=utf-8", []byte(md))
		default:
			respondError(c, models.NewDiffError(models.ErrCodeInvalidInput, "format must be html or markdown", nil))
		}
	}
}

// GetSideMetadata returns a handler for GET /api/v1/snapshots/:id/:side/metadata.
func GetSideMetadata(s store.Store) gin.HandlerFunc {
	return func(c *gin.Context) {
		side, ok := fetchSide(c, s)
		if !ok {
			return
		}
		c.JSON(http.StatusOK, models.SideMetadataResponse{
			URL:      side.URL,
			Metadata: normalizer.ExtractSEOMetadata(side.Metadata),
		})
	}
}

// fetchSide loads the :side of record :id, writing the error response
// itself when it cannot.
func fetchSide(c *gin.Context, s store.Store) (*models.Side, bool) {
	name := c.Param("side")
	if name != "before" && name != "after" {
		respondError(c, models.NewDiffError(models.ErrCodeInvalidInput, "side must be before or after", nil))
		return nil, false
	}
	rec, err := s.FetchRecord(c.Request.Context(), c.Param("id"))
	if err != nil {
		respondError(c, err)
		return nil, false
	}
	side := rec.Side(name)
	if side == nil {
		respondError(c, models.NewDiffError(models.ErrCodeNotFound, "comparison incomplete", nil))
		return nil, false
	}
	return side, true
}
