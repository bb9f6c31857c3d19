package router

import (
	"github.com/gin-gonic/gin"

	"github.com/MayhemBill/zipline/internal/handler"
	"github.com/MayhemBill/zipline/utils"
)

// InitRouter builds API routes.
func InitRouter(h *handler.Handler) *gin.Engine {
	r := gin.Default()
	r.Use(utils.CORSMiddleware())

	api := r.Group("/api")
	{
		api.POST("/login", h.Login)

		// Download routes take optional auth: public files work without a
		// token, private ones need the owner's.
		open := api.Group("")
		open.Use(utils.OptionalAuthMiddleware())
		{
			open.GET("/file/:fileID", h.FileInfo)
			open.GET("/file/:fileID/download", h.DownloadFile)
			open.GET("/file/:fileID/thumbnail", h.Thumbnail)
			open.GET("/folder/:folderID", h.GetFolder)
		}

		auth := api.Group("")
		auth.Use(utils.AuthMiddleware())

		file := auth.Group("/file")
		{
			file.GET("/list", h.ListFiles)
			file.POST("/upload", h.UploadFile)
			file.PATCH("/:fileID", h.UpdateFile)
			file.DELETE("/:fileID", h.DeleteFile)
		}

		folder := auth.Group("/folder")
		{
			folder.GET("/list", h.ListFolders)
			folder.POST("/create", h.CreateFolder)
			folder.POST("/:folderID/files", h.AttachFiles)
			folder.DELETE("/:folderID/files/:fileID", h.DetachFile)
			folder.DELETE("/:folderID", h.DeleteFolder)
		}
	}
	return r
}
