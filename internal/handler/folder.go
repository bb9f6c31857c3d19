package handler

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/MayhemBill/zipline/internal/dto"
)

func folderIDParam(c *gin.Context) (uint64, bool) {
	id, err := strconv.ParseUint(c.Param("folderID"), 10, 64)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid folder id"})
		return 0, false
	}
	return id, true
}

// CreateFolder makes a folder, attaching any initial files the caller owns.
func (h *Handler) CreateFolder(c *gin.Context) {
	var req dto.CreateFolderRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid params"})
		return
	}
	folder, err := h.Folders.Create(c.Request.Context(), req.Name, currentUser(c), req.Public, req.Files)
	if err != nil {
		writeServiceError(c, err)
		return
	}
	c.JSON(http.StatusOK, folderResponse(folder))
}

// ListFolders returns the caller's folders.
func (h *Handler) ListFolders(c *gin.Context) {
	folders, err := h.Folders.ListByUser(c.Request.Context(), currentUser(c))
	if err != nil {
		writeServiceError(c, err)
		return
	}
	out := make([]dto.FolderResponse, 0, len(folders))
	for i := range folders {
		out = append(out, folderResponse(&folders[i]))
	}
	c.JSON(http.StatusOK, out)
}

// GetFolder returns a folder listing. Private folders are only visible to
// their owner; member files still enforce their own access policy.
func (h *Handler) GetFolder(c *gin.Context) {
	folderID, ok := folderIDParam(c)
	if !ok {
		return
	}
	folder, err := h.Folders.Get(c.Request.Context(), folderID, accessContext(c))
	if err != nil {
		writeServiceError(c, err)
		return
	}
	c.JSON(http.StatusOK, folderResponse(folder))
}

// AttachFiles adds files to a folder.
func (h *Handler) AttachFiles(c *gin.Context) {
	folderID, ok := folderIDParam(c)
	if !ok {
		return
	}
	var req dto.AttachFilesRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid params"})
		return
	}
	folder, err := h.Folders.Attach(c.Request.Context(), folderID, currentUser(c), req.Files)
	if err != nil {
		writeServiceError(c, err)
		return
	}
	c.JSON(http.StatusOK, folderResponse(folder))
}

// DetachFile removes one file from a folder without deleting anything.
func (h *Handler) DetachFile(c *gin.Context) {
	folderID, ok := folderIDParam(c)
	if !ok {
		return
	}
	fileID, err := strconv.ParseUint(c.Param("fileID"), 10, 64)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid file id"})
		return
	}
	if err := h.Folders.Detach(c.Request.Context(), folderID, currentUser(c), fileID); err != nil {
		writeServiceError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "detached"})
}

// DeleteFolder detaches all members and removes the folder.
func (h *Handler) DeleteFolder(c *gin.Context) {
	folderID, ok := folderIDParam(c)
	if !ok {
		return
	}
	if err := h.Folders.Delete(c.Request.Context(), folderID, currentUser(c)); err != nil {
		writeServiceError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "deleted"})
}
