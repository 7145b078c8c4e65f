package testutil

import (
	"bytes"
	"mime/multipart"
	"net/textproto"
	"testing"
)

// NewFileHeader builds a multipart.FileHeader holding content in memory.
// A non-zero size overrides the reported size.
func NewFileHeader(t *testing.T, filename string, content []byte, size int64) *multipart.FileHeader {
	t.Helper()

	body := &bytes.Buffer{}
	writer := multipart.NewWriter(body)

	h := make(textproto.MIMEHeader)
	h.Set("Content-Disposition", `form-data; name="attachment"; filename="`+filename+`"`)
	h.Set("Content-Type", "application/octet-stream")
	part, err := writer.CreatePart(h)
	if err != nil {
		t.Fatalf("Failed to create multipart part: %v", err)
	}
	if _, err := part.Write(content); err != nil {
		t.Fatalf("Failed to write multipart content: %v", err)
	}
	writer.Close()

	reader := multipart.NewReader(body, writer.Boundary())
	form, err := reader.ReadForm(int64(len(content)) + 1024)
	if err != nil {
		t.Fatalf("Failed to parse multipart form: %v", err)
	}

	files := form.File["attachment"]
	if len(files) == 0 {
		t.Fatal("multipart form has no attachment")
	}
	if size > 0 {
		files[0].Size = size
	}
	return files[0]
}

// MultipartBody encodes fields and one optional file into a multipart request body.
// It returns the body and its content type.
func MultipartBody(t *testing.T, fields map[string]string, fileField, filename string, content []byte) (*bytes.Buffer, string) {
	t.Helper()

	body := &bytes.Buffer{}
	writer := multipart.NewWriter(body)
	for k, v := range fields {
		if err := writer.WriteField(k, v); err != nil {
			t.Fatalf("Failed to write field %s: %v", k, err)
		}
	}
	if fileField != "" {
		part, err := writer.CreateFormFile(fileField, filename)
		if err != nil {
			t.Fatalf("Failed to create form file: %v", err)
		}
		if _, err := part.Write(content); err != nil {
			t.Fatalf("Failed to write form file: %v", err)
		}
	}
	if err := writer.Close(); err != nil {
		t.Fatalf("Failed to close multipart writer: %v", err)
	}
	return body, writer.FormDataContentType()
}
