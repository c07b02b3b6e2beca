package models

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
)

// SelectedFile is the spreadsheet the user picked, before it is uploaded.
type SelectedFile struct {
	Name string `json:"name"`
	Size int64  `json:"size"`

	open func() (io.ReadCloser, error)
}

// NewSelectedFile wraps a picked file. open is called once per upload attempt.
func NewSelectedFile(name string, size int64, open func() (io.ReadCloser, error)) *SelectedFile {
	return &SelectedFile{
		Name: name,
		Size: size,
		open: open,
	}
}

// Extension returns the lower-cased text after the final '.', or "" if the name has none.
func (f *SelectedFile) Extension() string {
	idx := strings.LastIndex(f.Name, ".")
	if idx < 0 {
		return ""
	}
	return strings.ToLower(f.Name[idx+1:])
}

// Open returns a fresh reader over the file content.
func (f *SelectedFile) Open() (io.ReadCloser, error) {
	if f.open == nil {
		return nil, errors.New("selected file has no content")
	}
	return f.open()
}

// SelectPath wraps a file on the local disk. The file is reopened for every upload.
func SelectPath(path string) (*SelectedFile, error) {
	info, err := os.Stat(path)
	if err != nil {
		return nil, fmt.Errorf("selecting %s: %w", path, err)
	}
	if info.IsDir() {
		return nil, fmt.Errorf("selecting %s: is a directory", path)
	}
	return NewSelectedFile(filepath.Base(path), info.Size(), func() (io.ReadCloser, error) {
		return os.Open(path)
	}), nil
}
