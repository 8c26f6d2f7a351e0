package api

import (
	"fmt"
	"net/http"

	"dmcore-backend/internal/apperr"
	"dmcore-backend/internal/logger"
	"dmcore-backend/internal/storage"

	"github.com/gin-gonic/gin"
)

const maxFileSize = 10 * 1024 * 1024

var allowedMediaTypes = map[string]bool{
	"image/jpeg":      true,
	"image/jpg":       true,
	"image/png":       true,
	"image/gif":       true,
	"image/webp":      true,
	"image/heic":      true,
	"video/mp4":       true,
	"video/quicktime": true,
	"video/webm":      true,
}

type UploadHandler struct {
	media storage.MediaStore
	log   *logger.Logger
}

func NewUploadHandler(media storage.MediaStore, log *logger.Logger) *UploadHandler {
	return &UploadHandler{media: media, log: log.With("handler", "UploadHandler")}
}

// UploadMedia stores an image or video and returns its opaque reference.
func (h *UploadHandler) UploadMedia(c *gin.Context) {
	if _, ok := currentUser(c); !ok {
		return
	}
	c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, maxFileSize+1<<20)

	file, header, err := c.Request.FormFile("file")
	if err != nil {
		respondError(c, apperr.InvalidArg("no file provided"))
		return
	}
	defer file.Close()

	if header.Size > maxFileSize {
		respondError(c, apperr.InvalidArg("file size exceeds 10MB limit"))
		return
	}
	contentType := header.Header.Get("Content-Type")
	if !allowedMediaTypes[contentType] {
		respondError(c, apperr.InvalidArg(fmt.Sprintf("file type not allowed: %s", contentType)))
		return
	}

	ref, err := h.media.Upload(c.Request.Context(), file, header.Filename, contentType)
	if err != nil {
		h.log.Error("Media upload failed", "error", err)
		respondError(c, apperr.Internal("upload media", err))
		return
	}
	c.JSON(http.StatusCreated, gin.H{
		"media_ref": ref,
		"type":      contentType,
		"size":      header.Size,
	})
}

// ServeLocalMedia serves signed links issued by the on-disk store.
func ServeLocalMedia(local *storage.LocalStorage) gin.HandlerFunc {
	return func(c *gin.Context) {
		ref := c.Param("ref")
		if err := local.Verify(ref, c.Query("expires"), c.Query("sig")); err != nil {
			respondError(c, err)
			return
		}
		f, err := local.Open(ref)
		if err != nil {
			respondError(c, err)
			return
		}
		defer f.Close()
		info, err := f.Stat()
		if err != nil {
			respondError(c, apperr.Internal("stat media", err))
			return
		}
		c.Header("Cache-Control", "private, no-store")
		http.ServeContent(c.Writer, c.Request, ref, info.ModTime(), f)
	}
}
