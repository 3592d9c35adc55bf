package receipts

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"sync"
)

type Store interface {
	// Put writes the object and returns its public URL.
	Put(ctx context.Context, key string, f File) (string, error)
	Delete(ctx context.Context, key string) error
	URL(key string) string
}

// LocalStore keeps receipts on disk; BaseURL is where the server exposes Root.
type LocalStore struct {
	Root    string
	BaseURL string
}

func NewLocalStore(root, baseURL string) (*LocalStore, error) {
	if err := os.MkdirAll(root, 0o755); err != nil {
		return nil, err
	}
	return &LocalStore{Root: root, BaseURL: strings.TrimRight(baseURL, "/")}, nil
}

func (s *LocalStore) path(key string) string {
	return filepath.Join(s.Root, filepath.FromSlash(key))
}

func (s *LocalStore) Put(_ context.Context, key string, f File) (string, error) {
	p := s.path(key)
	if err := os.MkdirAll(filepath.Dir(p), 0o755); err != nil {
		return "", err
	}
	if err := os.WriteFile(p, f.Data, 0o644); err != nil {
		return "", err
	}
	return s.URL(key), nil
}

func (s *LocalStore) Delete(_ context.Context, key string) error {
	err := os.Remove(s.path(key))
	if os.IsNotExist(err) {
		return nil
	}
	return err
}

func (s *LocalStore) URL(key string) string {
	return s.BaseURL + "/" + key
}

// MemoryStore is used by tests and STORAGE=memory runs.
type MemoryStore struct {
	mu      sync.Mutex
	Objects map[string]File
	FailPut error
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{Objects: map[string]File{}}
}

func (s *MemoryStore) Put(_ context.Context, key string, f File) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.FailPut != nil {
		return "", s.FailPut
	}
	s.Objects[key] = f
	return s.URL(key), nil
}

func (s *MemoryStore) Delete(_ context.Context, key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.Objects, key)
	return nil
}

func (s *MemoryStore) URL(key string) string {
	return "memory://" + key
}

func (s *MemoryStore) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.Objects)
}
