package models

import (
	"bytes"
	"io"
	"os"
	"path/filepath"
)

// UploadStatus is the lifecycle state of a document upload.
type UploadStatus string

const (
	// UploadStatusIdle means no upload was attempted for the pending file yet.
	UploadStatusIdle UploadStatus = "idle"
	// UploadStatusUploading means an upload request is in flight.
	UploadStatusUploading UploadStatus = "uploading"
	// UploadStatusReady means the backend indexed the document and returned a session id.
	UploadStatusReady UploadStatus = "ready"
	// UploadStatusError means the last upload attempt failed.
	UploadStatusError UploadStatus = "error"
)

// UploadSession describes the current document upload. ID is non-empty if and only if Status is
// UploadStatusReady.
type UploadSession struct {
	ID            string
	Status        UploadStatus
	StatusMessage string

	// FileName is the name of the pending file, empty if no file was selected.
	FileName string
	// Chunks is the number of chunks the backend indexed, filled only when ready.
	Chunks int
}

// RequestConfig carries the caller-supplied settings of one outbound request. It is never persisted.
type RequestConfig struct {
	APIKey          string
	Model           string
	DeveloperPrompt string
}

// File is a pending document. Open may be called more than once, so a failed upload can be
// retried with the same file.
type File struct {
	Name string
	Size int64
	Open func() (io.ReadCloser, error)
}

// FileFromPath returns a File that reads the document at path.
func FileFromPath(path string) (File, error) {
	info, err := os.Stat(path)
	if err != nil {
		return File{}, err
	}
	return File{
		Name: filepath.Base(path),
		Size: info.Size(),
		Open: func() (io.ReadCloser, error) {
			return os.Open(path)
		},
	}, nil
}

// FileFromBytes returns a File backed by data held in memory.
func FileFromBytes(name string, data []byte) File {
	return File{
		Name: name,
		Size: int64(len(data)),
		Open: func() (io.ReadCloser, error) {
			return io.NopCloser(bytes.NewReader(data)), nil
		},
	}
}
