package cache

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sync"

	"gopkg.in/yaml.v3"
)

// File is a Memory store persisted as YAML after every change
type File struct {
	*Memory
	path string
	mu   sync.Mutex
}

// Open loads the cache file at path; a missing file yields an empty cache
func Open(path string) (*File, error) {
	f := &File{Memory: NewMemory(), path: path}

	data, err := os.ReadFile(path)
	if errors.Is(err, fs.ErrNotExist) {
		return f, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read cache %s: %w", path, err)
	}

	var s Snapshot
	if err := yaml.Unmarshal(data, &s); err != nil {
		return nil, fmt.Errorf("failed to parse cache %s: %w", path, err)
	}
	f.Load(s)
	return f, nil
}

// Path returns the backing file path
func (f *File) Path() string {
	return f.path
}

// InsertDCIQ stores a result and rewrites the file
func (f *File) InsertDCIQ(key DCIQKey, value DCIQ) error {
	if err := f.Memory.InsertDCIQ(key, value); err != nil {
		return err
	}
	return f.Flush()
}

// InsertFilterRC stores a result and rewrites the file
func (f *File) InsertFilterRC(key FilterKey, value FilterRC) error {
	if err := f.Memory.InsertFilterRC(key, value); err != nil {
		return err
	}
	return f.Flush()
}

// Clear removes every entry and rewrites the file
func (f *File) Clear() error {
	if err := f.Memory.Clear(); err != nil {
		return err
	}
	return f.Flush()
}

// Flush writes the current contents through a temporary file and rename
func (f *File) Flush() error {
	f.mu.Lock()
	defer f.mu.Unlock()

	data, err := yaml.Marshal(f.Snapshot())
	if err != nil {
		return fmt.Errorf("failed to encode cache: %w", err)
	}

	if err := os.MkdirAll(filepath.Dir(f.path), 0755); err != nil {
		return fmt.Errorf("failed to create cache directory: %w", err)
	}
	tmp := f.path + ".tmp"
	if err := os.WriteFile(tmp, data, 0644); err != nil {
		return fmt.Errorf("failed to write cache: %w", err)
	}
	if err := os.Rename(tmp, f.path); err != nil {
		return fmt.Errorf("failed to replace cache: %w", err)
	}
	return nil
}
