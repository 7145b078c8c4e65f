package controllers

import (
	"net/http"
	"os"
	"path/filepath"

	"github.com/gin-gonic/gin"
	"github.com/kendall-kelly/repairdesk-api/utils"
)

type UploadController struct {
	dir string
}

func NewUploadController(dir string) *UploadController {
	return &UploadController{dir: dir}
}

// GetUploadedFile handles GET /api/v1/uploads/:filename - serves locally stored attachments
func (uc *UploadController) GetUploadedFile(c *gin.Context) {
	filename := c.Param("filename")

	// Validate filename is not empty
	if filename == "" {
		c.JSON(http.StatusBadRequest, gin.H{
			"success": false,
			"error": gin.H{
				"code":    "INVALID_REQUEST",
				"message": "Filename is required",
			},
		})
		return
	}

	// Security: Prevent directory traversal attacks
	if !utils.IsSafeFilename(filename) {
		c.JSON(http.StatusBadRequest, gin.H{
			"success": false,
			"error": gin.H{
				"code":    "INVALID_FILENAME",
				"message": "Invalid filename",
			},
		})
		return
	}

	// Only attachment types are ever served
	contentType, ok := utils.ContentTypeFor(filename)
	if !ok {
		c.JSON(http.StatusBadRequest, gin.H{
			"success": false,
			"error": gin.H{
				"code":    "INVALID_FILE_TYPE",
				"message": "Only PNG, JPEG and PDF files are supported",
			},
		})
		return
	}

	// Construct full file path
	filePath := filepath.Join(uc.dir, filename)

	// Check if file exists
	if _, err := os.Stat(filePath); os.IsNotExist(err) {
		c.JSON(http.StatusNotFound, gin.H{
			"success": false,
			"error": gin.H{
				"code":    "FILE_NOT_FOUND",
				"message": "Attachment not found",
			},
		})
		return
	}

	// Serve the file with appropriate headers
	c.Header("Content-Type", contentType)
	c.Header("Cache-Control", "private, max-age=86400") // attachments are per user, cache for 24 hours
	c.File(filePath)
}
