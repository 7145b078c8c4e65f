package controllers

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/kendall-kelly/repairdesk-api/logger"
	"github.com/kendall-kelly/repairdesk-api/models"
	"github.com/kendall-kelly/repairdesk-api/utils"
)

func respondData(c *gin.Context, status int, data interface{}) {
	c.JSON(status, gin.H{
		"success": true,
		"data":    data,
	})
}

func respondError(c *gin.Context, status int, code, message string) {
	c.JSON(status, gin.H{
		"success": false,
		"error": gin.H{
			"code":    code,
			"message": message,
		},
	})
}

func respondBindError(c *gin.Context, err error) {
	c.JSON(http.StatusBadRequest, gin.H{
		"success": false,
		"error": gin.H{
			"code":    "VALIDATION_ERROR",
			"message": "Invalid request data",
			"details": err.Error(),
		},
	})
}

var authErrorStatus = map[string]int{
	models.CodeDuplicateEmail: http.StatusConflict,
	models.CodeWeakPassword:   http.StatusBadRequest,
	models.CodeInvalidEmail:   http.StatusBadRequest,
	models.CodeUserNotFound:   http.StatusUnauthorized,
	models.CodeWrongPassword:  http.StatusUnauthorized,
	models.CodeUserDisabled:   http.StatusForbidden,
	models.CodeInvalidSession: http.StatusUnauthorized,
}

// respondServiceError maps the error taxonomy onto the response envelope
func respondServiceError(c *gin.Context, err error) {
	var (
		authErr   *models.AuthError
		validErr  *models.ValidationError
		uploadErr *utils.FileUploadError
		denied    *models.AuthorizationError
		notFound  *models.NotFoundError
		writeErr  *models.WriteError
		readErr   *models.ReadError
	)

	switch {
	case errors.As(err, &authErr):
		status, ok := authErrorStatus[authErr.Code]
		if !ok {
			status = http.StatusBadRequest
		}
		respondError(c, status, authErr.Code, authErr.Message)
	case errors.As(err, &validErr):
		c.JSON(http.StatusBadRequest, gin.H{
			"success": false,
			"error": gin.H{
				"code":    "VALIDATION_ERROR",
				"message": validErr.Error(),
				"field":   validErr.Field,
			},
		})
	case errors.As(err, &uploadErr):
		respondError(c, http.StatusBadRequest, uploadErr.Code, uploadErr.Message)
	case errors.As(err, &denied):
		respondError(c, http.StatusForbidden, "FORBIDDEN", denied.Error())
	case errors.As(err, &notFound):
		respondError(c, http.StatusNotFound, "NOT_FOUND", notFound.Error())
	case errors.As(err, &writeErr):
		logger.WithError(err, "controllers").WithField("path", c.FullPath()).Error("Store write failed")
		respondError(c, http.StatusInternalServerError, "WRITE_ERROR", "Failed to save changes")
	case errors.As(err, &readErr):
		logger.WithError(err, "controllers").WithField("path", c.FullPath()).Error("Store read failed")
		respondError(c, http.StatusInternalServerError, "READ_ERROR", "Failed to load data")
	default:
		logger.WithError(err, "controllers").WithField("path", c.FullPath()).Error("Unhandled error")
		respondError(c, http.StatusInternalServerError, "INTERNAL_ERROR", "Something went wrong")
	}
}
