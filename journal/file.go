package journal

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"sync"
)

// FileStore appends entries to a JSONL file. The latest line for a deploy wins.
type FileStore struct {
	path string
	mu   sync.Mutex
	f    *os.File
}

// OpenFile creates or opens the journal at path, creating parent directories.
func OpenFile(path string) (*FileStore, error) {
	if path == "" {
		return nil, errors.New("journal: path is required")
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, err
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return nil, err
	}
	return &FileStore{path: path, f: f}, nil
}

func (s *FileStore) Put(_ context.Context, e Entry) error {
	if e.Deploy == "" {
		return errors.New("journal: entry has no deploy hash")
	}
	data, err := json.Marshal(e)
	if err != nil {
		return err
	}
	data = append(data, '\n')

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.f == nil {
		return os.ErrClosed
	}
	_, err = s.f.Write(data)
	return err
}

func (s *FileStore) load() ([]Entry, error) {
	s.mu.Lock()
	if s.f != nil {
		_ = s.f.Sync()
	}
	s.mu.Unlock()

	data, err := os.ReadFile(s.path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, err
	}
	latest := map[string]Entry{}
	order := map[string]int{}
	for i, line := range bytes.Split(data, []byte{'\n'}) {
		if len(bytes.TrimSpace(line)) == 0 {
			continue
		}
		var e Entry
		if err := json.Unmarshal(line, &e); err != nil {
			return nil, fmt.Errorf("journal: %s line %d: %w", s.path, i+1, err)
		}
		if _, seen := order[e.Deploy]; !seen {
			order[e.Deploy] = i
		}
		latest[e.Deploy] = e
	}
	out := make([]Entry, 0, len(latest))
	for _, e := range latest {
		out = append(out, e)
	}
	sort.Slice(out, func(i, j int) bool { return order[out[i].Deploy] < order[out[j].Deploy] })
	return out, nil
}

func (s *FileStore) Get(_ context.Context, deploy string) (Entry, error) {
	entries, err := s.load()
	if err != nil {
		return Entry{}, err
	}
	for _, e := range entries {
		if e.Deploy == deploy {
			return e, nil
		}
	}
	return Entry{}, ErrNotFound
}

func (s *FileStore) List(_ context.Context) ([]Entry, error) { return s.load() }

func (s *FileStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.f == nil {
		return nil
	}
	err := s.f.Close()
	s.f = nil
	return err
}
