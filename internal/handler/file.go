package handler

import (
	"fmt"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/MayhemBill/zipline/internal/dto"
	"github.com/MayhemBill/zipline/internal/service"
	"github.com/MayhemBill/zipline/utils"
)

// UploadFile ingests a multipart upload.
func (h *Handler) UploadFile(c *gin.Context) {
	header, err := c.FormFile("file")
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "missing file"})
		return
	}
	src, err := header.Open()
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "unreadable file"})
		return
	}
	defer src.Close()

	req := service.IngestRequest{
		Name:       header.Filename,
		Mime:       header.Header.Get("Content-Type"),
		Size:       header.Size,
		OwnerID:    currentUser(c),
		Visibility: c.PostForm("visibility"),
		Password:   c.PostForm("password"),
	}
	if raw := c.PostForm("max_views"); raw != "" {
		maxViews, err := strconv.ParseInt(raw, 10, 64)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid max_views"})
			return
		}
		req.MaxViews = &maxViews
	}
	if raw := c.PostForm("expires_at"); raw != "" {
		expiresAt, err := time.Parse(time.RFC3339, raw)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid expires_at"})
			return
		}
		req.ExpiresAt = &expiresAt
	}
	if raw := c.PostForm("folder_id"); raw != "" {
		folderID, err := strconv.ParseUint(raw, 10, 64)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid folder_id"})
			return
		}
		req.FolderID = &folderID
	}

	file, err := h.Files.Ingest(c.Request.Context(), src, req)
	if err != nil {
		writeServiceError(c, err)
		return
	}
	c.JSON(http.StatusOK, fileResponse(file))
}

func fileIDParam(c *gin.Context) (uint64, bool) {
	id, err := strconv.ParseUint(c.Param("fileID"), 10, 64)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid file id"})
		return 0, false
	}
	return id, true
}

// DownloadFile streams a file after the policy check, recording a view.
func (h *Handler) DownloadFile(c *gin.Context) {
	fileID, ok := fileIDParam(c)
	if !ok {
		return
	}
	file, reader, info, err := h.Files.Open(c.Request.Context(), fileID, accessContext(c))
	if err != nil {
		writeServiceError(c, err)
		return
	}
	defer reader.Close()

	safeName := utils.SanitizeHeaderFilename(file.Name)
	c.Header("Content-Disposition", fmt.Sprintf(`attachment; filename="%s"`, safeName))
	c.Header("Content-Type", file.MimeType)
	c.Header("Content-Length", fmt.Sprintf("%d", info.Size))

	if _, err := io.Copy(c.Writer, reader); err != nil {
		// Headers are gone; nothing useful left to send.
		return
	}
}

// FileInfo returns a file's metadata after the policy check, without
// recording a view.
func (h *Handler) FileInfo(c *gin.Context) {
	fileID, ok := fileIDParam(c)
	if !ok {
		return
	}
	file, err := h.Files.Get(c.Request.Context(), fileID)
	if err != nil {
		writeServiceError(c, err)
		return
	}
	if err := service.DecisionError(service.Decide(file, accessContext(c))); err != nil {
		writeServiceError(c, err)
		return
	}
	c.JSON(http.StatusOK, fileResponse(file))
}

// Thumbnail streams the derived preview image when one exists.
func (h *Handler) Thumbnail(c *gin.Context) {
	fileID, ok := fileIDParam(c)
	if !ok {
		return
	}
	reader, info, err := h.Files.OpenThumbnail(c.Request.Context(), fileID, accessContext(c))
	if err != nil {
		writeServiceError(c, err)
		return
	}
	defer reader.Close()

	c.Header("Content-Type", "image/jpeg")
	c.Header("Content-Length", fmt.Sprintf("%d", info.Size))
	if _, err := io.Copy(c.Writer, reader); err != nil {
		return
	}
}

// UpdateFile edits a file's access settings.
func (h *Handler) UpdateFile(c *gin.Context) {
	fileID, ok := fileIDParam(c)
	if !ok {
		return
	}
	var req dto.UpdateFileRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid params"})
		return
	}
	file, err := h.Files.UpdateSettings(c.Request.Context(), fileID, currentUser(c), service.UpdateSettingsRequest{
		Visibility:    req.Visibility,
		Password:      req.Password,
		MaxViews:      req.MaxViews,
		ClearMaxViews: req.ClearMaxViews,
		ExpiresAt:     req.ExpiresAt,
		ClearExpires:  req.ClearExpires,
	})
	if err != nil {
		writeServiceError(c, err)
		return
	}
	c.JSON(http.StatusOK, fileResponse(file))
}

// DeleteFile removes a file, its bytes and its thumbnail.
func (h *Handler) DeleteFile(c *gin.Context) {
	fileID, ok := fileIDParam(c)
	if !ok {
		return
	}
	if err := h.Files.Delete(c.Request.Context(), fileID, currentUser(c)); err != nil {
		writeServiceError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "deleted"})
}

// ListFiles returns the caller's files.
func (h *Handler) ListFiles(c *gin.Context) {
	files, err := h.Files.ListByUser(c.Request.Context(), currentUser(c))
	if err != nil {
		writeServiceError(c, err)
		return
	}
	out := make([]dto.FileResponse, 0, len(files))
	for i := range files {
		out = append(out, fileResponse(&files[i]))
	}
	c.JSON(http.StatusOK, out)
}
