package services

import (
	"context"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"sync"
)

// MockS3Service is an in-memory S3Interface for testing
type MockS3Service struct {
	mu            sync.RWMutex
	uploadedFiles map[string][]byte // map of S3 key to file content
	uploadErr     error
	deleteErr     error
}

// NewMockS3Service creates a new mock S3 service
func NewMockS3Service() *MockS3Service {
	return &MockS3Service{
		uploadedFiles: make(map[string][]byte),
	}
}

// FailUploads makes every later upload return err
func (m *MockS3Service) FailUploads(err error) {
	m.mu.Lock()
	m.uploadErr = err
	m.mu.Unlock()
}

// FailDeletes makes every later delete return err
func (m *MockS3Service) FailDeletes(err error) {
	m.mu.Lock()
	m.deleteErr = err
	m.mu.Unlock()
}

// UploadFile simulates uploading a file to S3
func (m *MockS3Service) UploadFile(ctx context.Context, fileHeader *multipart.FileHeader) (string, error) {
	m.mu.RLock()
	uploadErr := m.uploadErr
	m.mu.RUnlock()
	if uploadErr != nil {
		return "", uploadErr
	}

	file, err := fileHeader.Open()
	if err != nil {
		return "", fmt.Errorf("failed to open file: %w", err)
	}
	defer file.Close()

	content, err := io.ReadAll(file)
	if err != nil {
		return "", fmt.Errorf("failed to read file: %w", err)
	}

	s3Key := fmt.Sprintf("attachments/mock_%s", fileHeader.Filename)

	m.mu.Lock()
	m.uploadedFiles[s3Key] = content
	m.mu.Unlock()

	return s3Key, nil
}

// GetPresignedURL simulates generating a presigned URL
func (m *MockS3Service) GetPresignedURL(ctx context.Context, s3Key string) (string, error) {
	if s3Key == "" {
		return "", nil
	}

	m.mu.RLock()
	_, exists := m.uploadedFiles[s3Key]
	m.mu.RUnlock()

	if !exists {
		return "", fmt.Errorf("file not found in mock S3: %s", s3Key)
	}

	return fmt.Sprintf("https://test-bucket.s3.us-east-1.amazonaws.com/%s?mock=true", s3Key), nil
}

// DeleteFile simulates deleting a file from S3
func (m *MockS3Service) DeleteFile(ctx context.Context, s3Key string) error {
	if s3Key == "" {
		return nil
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if m.deleteErr != nil {
		return m.deleteErr
	}
	delete(m.uploadedFiles, s3Key)
	return nil
}

// FileExists checks if a file exists in mock storage
func (m *MockS3Service) FileExists(s3Key string) bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	_, exists := m.uploadedFiles[s3Key]
	return exists
}

// FileCount returns how many files are stored
func (m *MockS3Service) FileCount() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.uploadedFiles)
}

// ErrMockUnavailable is a canned failure for tests
var ErrMockUnavailable = errors.New("mock storage unavailable")
