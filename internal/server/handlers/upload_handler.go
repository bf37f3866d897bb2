package handlers

import (
	"net/http"

	"campus-chat/internal/adapters/storage"
	"campus-chat/pkg/response"

	"github.com/gin-gonic/gin"
)

const maxUploadSize = 10 << 20 // 10 MiB

type UploadHandler struct {
	store *storage.MinioClient
}

func NewUploadHandler(store *storage.MinioClient) *UploadHandler {
	return &UploadHandler{store: store}
}

// Upload stores an attachment and returns its URL; the client sends the
// URL as the content of a non-text chat frame.
func (h *UploadHandler) Upload(c *gin.Context) {
	file, err := c.FormFile("file")
	if err != nil {
		response.Error(c, http.StatusBadRequest, "file is required")
		return
	}
	if file.Size > maxUploadSize {
		response.Error(c, http.StatusRequestEntityTooLarge, "file too large")
		return
	}

	url, err := h.store.UploadAttachment(c.Request.Context(), file)
	if err != nil {
		response.Error(c, http.StatusInternalServerError, "upload failed")
		return
	}

	response.OK(c, http.StatusCreated, gin.H{"url": url})
}
