package identity

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/pkg/errors"
	"gopkg.in/yaml.v3"
)

// FileStore keeps all keys in a single YAML document. Every Set/Delete
// rewrites the file through a temp file + rename.
type FileStore struct {
	path string

	mu     sync.Mutex
	values map[string]string
}

var _ Store = &FileStore{}

func NewFileStore(path string) (*FileStore, error) {
	if strings.TrimSpace(path) == "" {
		return nil, errors.New("identity file store: empty path")
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return nil, errors.Wrap(err, "identity file store: create directory")
	}
	s := &FileStore{path: path, values: map[string]string{}}
	if err := s.load(); err != nil {
		return nil, err
	}
	return s, nil
}

func (s *FileStore) load() error {
	b, err := os.ReadFile(s.path)
	if os.IsNotExist(err) {
		return nil
	}
	if err != nil {
		return errors.Wrap(err, "identity file store: read")
	}
	if len(strings.TrimSpace(string(b))) == 0 {
		return nil
	}
	values := map[string]string{}
	if err := yaml.Unmarshal(b, &values); err != nil {
		return errors.Wrapf(err, "identity file store: parse %s", s.path)
	}
	s.values = values
	return nil
}

func (s *FileStore) flushLocked() error {
	b, err := yaml.Marshal(s.values)
	if err != nil {
		return errors.Wrap(err, "identity file store: encode")
	}
	tmp, err := os.CreateTemp(filepath.Dir(s.path), ".identity-*.yaml")
	if err != nil {
		return errors.Wrap(err, "identity file store: create temp file")
	}
	defer func() { _ = os.Remove(tmp.Name()) }()
	if _, err := tmp.Write(b); err != nil {
		_ = tmp.Close()
		return errors.Wrap(err, "identity file store: write")
	}
	if err := tmp.Close(); err != nil {
		return errors.Wrap(err, "identity file store: close temp file")
	}
	if err := os.Rename(tmp.Name(), s.path); err != nil {
		return errors.Wrap(err, "identity file store: replace")
	}
	return nil
}

func (s *FileStore) Get(_ context.Context, key string) (string, bool, error) {
	if err := validateKey(key); err != nil {
		return "", false, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	v, ok := s.values[key]
	return v, ok, nil
}

func (s *FileStore) Set(_ context.Context, key string, value string) error {
	if err := validateKey(key); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	prev, had := s.values[key]
	s.values[key] = value
	if err := s.flushLocked(); err != nil {
		if had {
			s.values[key] = prev
		} else {
			delete(s.values, key)
		}
		return err
	}
	return nil
}

func (s *FileStore) Delete(_ context.Context, key string) error {
	if err := validateKey(key); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	prev, had := s.values[key]
	if !had {
		return nil
	}
	delete(s.values, key)
	if err := s.flushLocked(); err != nil {
		s.values[key] = prev
		return err
	}
	return nil
}

func (s *FileStore) Close() error { return nil }
