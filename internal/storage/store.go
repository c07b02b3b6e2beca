package storage

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/sheetscrape/console/internal/models"
)

// Store defines the interface for local file storage.
type Store interface {
	Save(name string, kind models.FileKind, r io.Reader) (*models.FileInfo, error)
	Get(id string) (*models.FileInfo, error)
	List(limit int) ([]*models.FileInfo, error)
	Delete(id string) error
	GetFilePath(id string) (string, error)
	Open(id string) (io.ReadCloser, error)
}

// LocalStore implements Store on the local filesystem. Each file lives at <root>/<id>/<name>.
type LocalStore struct {
	mu    sync.RWMutex
	root  string
	files map[string]*models.FileInfo
}

// NewLocalStore creates a new LocalStore rooted at dir.
func NewLocalStore(dir string) (*LocalStore, error) {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("creating storage directory: %w", err)
	}

	return &LocalStore{
		root:  dir,
		files: make(map[string]*models.FileInfo),
	}, nil
}

// Root returns the directory files are stored under.
func (s *LocalStore) Root() string {
	return s.root
}

// Save copies r into the store under a new id.
func (s *LocalStore) Save(name string, kind models.FileKind, r io.Reader) (*models.FileInfo, error) {
	base, err := cleanName(name)
	if err != nil {
		return nil, err
	}

	id := uuid.New().String()
	dir := filepath.Join(s.root, id)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("creating file directory: %w", err)
	}

	path := filepath.Join(dir, base)
	f, err := os.Create(path)
	if err != nil {
		os.RemoveAll(dir)
		return nil, fmt.Errorf("creating file: %w", err)
	}
	defer f.Close()

	size, err := io.Copy(f, r)
	if err != nil {
		os.RemoveAll(dir)
		return nil, fmt.Errorf("writing file: %w", err)
	}

	info := &models.FileInfo{
		ID:       id,
		Name:     base,
		Size:     size,
		StoredAt: time.Now(),
		Kind:     kind,
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.files[id] = info

	return info, nil
}

// Get retrieves file metadata by ID.
func (s *LocalStore) Get(id string) (*models.FileInfo, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	info, ok := s.files[id]
	if !ok {
		return nil, fmt.Errorf("file not found: %s", id)
	}

	return info, nil
}

// List returns the most recent files, newest first.
func (s *LocalStore) List(limit int) ([]*models.FileInfo, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	list := make([]*models.FileInfo, 0, len(s.files))
	for _, info := range s.files {
		list = append(list, info)
	}

	sort.Slice(list, func(i, j int) bool {
		return list[i].StoredAt.After(list[j].StoredAt)
	})

	if limit > 0 && len(list) > limit {
		list = list[:limit]
	}

	return list, nil
}

// Delete removes a file and its directory.
func (s *LocalStore) Delete(id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.files[id]; !ok {
		return fmt.Errorf("file not found: %s", id)
	}

	if err := os.RemoveAll(filepath.Join(s.root, id)); err != nil {
		return fmt.Errorf("deleting file: %w", err)
	}

	delete(s.files, id)
	return nil
}

// GetFilePath returns the path of a stored file.
func (s *LocalStore) GetFilePath(id string) (string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	info, ok := s.files[id]
	if !ok {
		return "", fmt.Errorf("file not found: %s", id)
	}

	return filepath.Join(s.root, id, info.Name), nil
}

// Open returns a reader over a stored file.
func (s *LocalStore) Open(id string) (io.ReadCloser, error) {
	path, err := s.GetFilePath(id)
	if err != nil {
		return nil, err
	}
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("opening file: %w", err)
	}
	return f, nil
}

// cleanName strips any directory part from a client-supplied name.
func cleanName(name string) (string, error) {
	base := filepath.Base(strings.ReplaceAll(name, "\\", "/"))
	if base == "." || base == ".." || base == "/" || base == "" {
		return "", fmt.Errorf("invalid file name: %q", name)
	}
	return base, nil
}
