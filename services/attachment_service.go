package services

import (
	"context"
	"fmt"
	"mime/multipart"
	"os"
	"path/filepath"

	"github.com/kendall-kelly/repairdesk-api/utils"
)

// AttachmentService stores files attached to repair requests
type AttachmentService interface {
	// Upload validates and stores a file, returning its storage key
	Upload(ctx context.Context, fileHeader *multipart.FileHeader) (string, error)

	// URL returns a URL the client can fetch the attachment from
	URL(ctx context.Context, key string) (string, error)

	// Delete removes an attachment. Unknown keys are ignored.
	Delete(ctx context.Context, key string) error
}

// S3AttachmentService implements AttachmentService on an S3 bucket
type S3AttachmentService struct {
	s3Service S3Interface
}

func NewS3AttachmentService(s3Service S3Interface) *S3AttachmentService {
	return &S3AttachmentService{s3Service: s3Service}
}

func (s *S3AttachmentService) Upload(ctx context.Context, fileHeader *multipart.FileHeader) (string, error) {
	if err := utils.ValidateAttachment(fileHeader); err != nil {
		return "", err
	}

	key, err := s.s3Service.UploadFile(ctx, fileHeader)
	if err != nil {
		return "", fmt.Errorf("failed to upload attachment: %w", err)
	}
	return key, nil
}

func (s *S3AttachmentService) URL(ctx context.Context, key string) (string, error) {
	if key == "" {
		return "", nil
	}

	url, err := s.s3Service.GetPresignedURL(ctx, key)
	if err != nil {
		return "", fmt.Errorf("failed to generate attachment URL: %w", err)
	}
	return url, nil
}

func (s *S3AttachmentService) Delete(ctx context.Context, key string) error {
	if key == "" {
		return nil
	}

	if err := s.s3Service.DeleteFile(ctx, key); err != nil {
		return fmt.Errorf("failed to delete attachment: %w", err)
	}
	return nil
}

// LocalAttachmentService keeps attachments on local disk and serves them through the uploads route
type LocalAttachmentService struct {
	dir string
}

func NewLocalAttachmentService(dir string) *LocalAttachmentService {
	return &LocalAttachmentService{dir: dir}
}

// Dir is the directory attachments are written to
func (s *LocalAttachmentService) Dir() string {
	return s.dir
}

func (s *LocalAttachmentService) Upload(ctx context.Context, fileHeader *multipart.FileHeader) (string, error) {
	if err := utils.ValidateAttachment(fileHeader); err != nil {
		return "", err
	}
	return utils.SaveUploadedFile(fileHeader, s.dir)
}

func (s *LocalAttachmentService) URL(ctx context.Context, key string) (string, error) {
	return utils.GetAttachmentURL(key), nil
}

func (s *LocalAttachmentService) Delete(ctx context.Context, key string) error {
	if key == "" || !utils.IsSafeFilename(key) {
		return nil
	}
	if err := os.Remove(filepath.Join(s.dir, key)); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("failed to delete attachment: %w", err)
	}
	return nil
}
