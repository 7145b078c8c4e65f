package utils

import (
	"fmt"
	"io"
	"mime/multipart"
	"os"
	"path/filepath"
	"strings"

	"github.com/google/uuid"
)

const (
	// MaxFileSize is 10MB in bytes
	MaxFileSize = 10 * 1024 * 1024
)

// AllowedAttachmentTypes maps permitted extensions to their content type
var AllowedAttachmentTypes = map[string]string{
	".png":  "image/png",
	".jpg":  "image/jpeg",
	".jpeg": "image/jpeg",
	".pdf":  "application/pdf",
}

// FileUploadError represents a file upload validation error
type FileUploadError struct {
	Code    string
	Message string
}

func (e *FileUploadError) Error() string {
	return e.Message
}

// ValidateAttachment validates the uploaded file format and size
func ValidateAttachment(fileHeader *multipart.FileHeader) error {
	// Check file size
	if fileHeader.Size > MaxFileSize {
		return &FileUploadError{
			Code:    "FILE_TOO_LARGE",
			Message: fmt.Sprintf("File size exceeds maximum allowed size of %d MB", MaxFileSize/(1024*1024)),
		}
	}

	// Check file extension
	if _, ok := ContentTypeFor(fileHeader.Filename); !ok {
		return &FileUploadError{
			Code:    "INVALID_FILE_FORMAT",
			Message: "Only PNG, JPEG and PDF files are allowed",
		}
	}

	return nil
}

// ContentTypeFor returns the content type for an allowed file name
func ContentTypeFor(filename string) (string, bool) {
	ct, ok := AllowedAttachmentTypes[strings.ToLower(filepath.Ext(filename))]
	return ct, ok
}

// NewAttachmentName returns a collision-free file name keeping the original extension
func NewAttachmentName(original string) string {
	return uuid.NewString() + strings.ToLower(filepath.Ext(original))
}

// SaveUploadedFile saves the uploaded file to uploadDir under a generated name.
// Returns the generated file name.
func SaveUploadedFile(fileHeader *multipart.FileHeader, uploadDir string) (filename string, err error) {
	// Create uploads directory if it doesn't exist
	if err := os.MkdirAll(uploadDir, 0755); err != nil {
		return "", fmt.Errorf("failed to create upload directory: %w", err)
	}

	// Generate unique filename to prevent collisions
	filename = NewAttachmentName(fileHeader.Filename)
	fullPath := filepath.Join(uploadDir, filename)

	// Open the uploaded file
	src, err := fileHeader.Open()
	if err != nil {
		return "", fmt.Errorf("failed to open uploaded file: %w", err)
	}
	defer src.Close()

	// Create the destination file
	dst, err := os.Create(fullPath)
	if err != nil {
		return "", fmt.Errorf("failed to create destination file: %w", err)
	}
	defer func() {
		if closeErr := dst.Close(); closeErr != nil && err == nil {
			err = fmt.Errorf("failed to close destination file: %w", closeErr)
		}
	}()

	// Copy the file
	if _, err := io.Copy(dst, src); err != nil {
		return "", fmt.Errorf("failed to save file: %w", err)
	}

	return filename, nil
}

// IsSafeFilename rejects names that could escape the upload directory
func IsSafeFilename(name string) bool {
	return name != "" && !strings.Contains(name, "..") && !strings.ContainsAny(name, `/\`)
}

// GetAttachmentURL returns the URL path for a locally stored attachment
func GetAttachmentURL(filename string) string {
	if filename == "" {
		return ""
	}
	return fmt.Sprintf("/api/v1/uploads/%s", filename)
}
