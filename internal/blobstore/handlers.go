package blobstore

import (
	"errors"
	"fmt"
	"io"
	"mime"
	"net/http"
	"path/filepath"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// multipartOverhead is headroom for boundaries and part headers on top of the file cap
const multipartOverhead = 1 << 20

// BlobHandlers provides HTTP handlers for uploads and downloads
type BlobHandlers struct {
	store    BlobStore
	maxBytes int64
	logger   *zap.Logger
}

// NewBlobHandlers creates new blob handlers
func NewBlobHandlers(store BlobStore, maxBytes int64, logger *zap.Logger) *BlobHandlers {
	if maxBytes <= 0 {
		maxBytes = DefaultMaxUploadBytes
	}
	return &BlobHandlers{
		store:    store,
		maxBytes: maxBytes,
		logger:   logger,
	}
}

// RegisterRoutes registers the upload and download routes
func (h *BlobHandlers) RegisterRoutes(router gin.IRoutes) {
	router.POST("/upload", h.Upload)
	router.GET("/download/:filename", h.Download)
}

// Upload streams the multipart field "file" into the blob store and returns
// the stored name for the client to announce to its session.
func (h *BlobHandlers) Upload(c *gin.Context) {
	if c.Request.ContentLength > h.maxBytes+multipartOverhead {
		h.tooLarge(c)
		return
	}
	c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, h.maxBytes+multipartOverhead)

	reader, err := c.Request.MultipartReader()
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "File was not uploaded"})
		return
	}

	for {
		part, err := reader.NextPart()
		if err == io.EOF {
			break
		}
		if err != nil {
			var maxErr *http.MaxBytesError
			if errors.As(err, &maxErr) {
				h.tooLarge(c)
				return
			}
			c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid multipart body", "details": err.Error()})
			return
		}
		if part.FormName() != "file" || part.FileName() == "" {
			part.Close()
			continue
		}

		blob, err := h.store.Store(c.Request.Context(), part.FileName(), part)
		part.Close()
		if err != nil {
			var maxErr *http.MaxBytesError
			if errors.Is(err, ErrUploadTooLarge) || errors.As(err, &maxErr) {
				h.tooLarge(c)
				return
			}
			h.logger.Error("Failed to store upload", zap.String("original_name", part.FileName()), zap.Error(err))
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to store file"})
			return
		}

		c.JSON(http.StatusOK, blob)
		return
	}

	c.JSON(http.StatusBadRequest, gin.H{"error": "File was not uploaded"})
}

// Download serves a stored blob as an attachment
func (h *BlobHandlers) Download(c *gin.Context) {
	name := c.Param("filename")
	if !ValidName(name) {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid filename"})
		return
	}

	rc, blob, err := h.store.Open(c.Request.Context(), name)
	if err != nil {
		if errors.Is(err, ErrBlobMissing) {
			c.JSON(http.StatusNotFound, gin.H{"error": "File not found"})
			return
		}
		h.logger.Error("Failed to open blob", zap.String("filename", name), zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to read file"})
		return
	}
	defer rc.Close()

	contentType := mime.TypeByExtension(filepath.Ext(name))
	if contentType == "" {
		contentType = "application/octet-stream"
	}

	c.DataFromReader(http.StatusOK, blob.Size, contentType, rc, map[string]string{
		"Content-Disposition": fmt.Sprintf(`attachment; filename="%s"`, name),
	})
}

func (h *BlobHandlers) tooLarge(c *gin.Context) {
	c.JSON(http.StatusRequestEntityTooLarge, gin.H{
		"error": fmt.Sprintf("File size must not exceed %d MB", h.maxBytes/(1024*1024)),
	})
}
