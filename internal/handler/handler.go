package handler

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/MayhemBill/zipline/internal/dto"
	"github.com/MayhemBill/zipline/internal/service"
	"github.com/MayhemBill/zipline/model"
)

// Handler translates HTTP requests into core service calls and core errors
// back into transport responses.
type Handler struct {
	Files   *service.FileService
	Folders *service.FolderService
	Users   *service.UserService
}

// New wires a Handler.
func New(files *service.FileService, folders *service.FolderService, users *service.UserService) *Handler {
	return &Handler{Files: files, Folders: folders, Users: users}
}

// accessContext builds the policy input from the authenticated request.
// Passwords for protected files arrive via query or header.
func accessContext(c *gin.Context) service.AccessContext {
	access := service.AccessContext{
		Password: c.Query("password"),
	}
	if access.Password == "" {
		access.Password = c.GetHeader("X-File-Password")
	}
	if value, ok := c.Get("user_id"); ok {
		if userID, ok := value.(uint64); ok {
			access.UserID = userID
			access.Authenticated = true
		}
	}
	return access
}

func currentUser(c *gin.Context) uint64 {
	value, _ := c.Get("user_id")
	userID, _ := value.(uint64)
	return userID
}

// writeServiceError maps the core error taxonomy onto HTTP statuses. Denial
// reasons collapse to a generic 403 except bad_password, which is revealed
// so clients can prompt for a retry.
func writeServiceError(c *gin.Context, err error) {
	var validationErr *service.ValidationError
	if errors.As(err, &validationErr) {
		c.JSON(http.StatusBadRequest, gin.H{"error": validationErr.Error()})
		return
	}
	if errors.Is(err, service.ErrNotFound) {
		c.JSON(http.StatusNotFound, gin.H{"error": "not found"})
		return
	}
	var deniedErr *service.AccessDeniedError
	if errors.As(err, &deniedErr) {
		if deniedErr.Reason == service.DenyBadPassword {
			c.JSON(http.StatusForbidden, gin.H{"error": "bad_password"})
			return
		}
		c.JSON(http.StatusForbidden, gin.H{"error": "access denied"})
		return
	}
	var storageErr *service.StorageError
	if errors.As(err, &storageErr) {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "storage failure"})
		return
	}
	c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
}

func fileResponse(f *model.File) dto.FileResponse {
	return dto.FileResponse{
		ID:         f.ID,
		Name:       f.Name,
		MimeType:   f.MimeType,
		Size:       f.Size,
		Visibility: f.Visibility,
		Protected:  f.Protected(),
		MaxViews:   f.MaxViews,
		ExpiresAt:  f.ExpiresAt,
		Views:      f.Views,
		Expired:    f.Expired,
		FolderID:   f.FolderID,
		CreatedAt:  f.CreatedAt,
	}
}

func folderResponse(folder *model.Folder) dto.FolderResponse {
	files := make([]dto.FileResponse, 0, len(folder.Files))
	for i := range folder.Files {
		files = append(files, fileResponse(&folder.Files[i]))
	}
	return dto.FolderResponse{
		ID:        folder.ID,
		Name:      folder.Name,
		Public:    folder.Public,
		Files:     files,
		CreatedAt: folder.CreatedAt,
	}
}
