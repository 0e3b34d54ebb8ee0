package store

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/BRAVO68WEB/devworld/internal/pac"
)

// EntriesFile is the file name File uses inside its data directory.
const EntriesFile = "entries.json"

// File persists the registry as one JSON document. Every Save overwrites it.
type File struct {
	mu   sync.Mutex
	path string
}

func NewFile(dataDir string) *File {
	return &File{path: filepath.Join(dataDir, EntriesFile)}
}

// Path returns the backing file.
func (f *File) Path() string { return f.path }

func (f *File) Load(context.Context) (map[string]pac.Entry, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	data, err := os.ReadFile(f.path)
	if err != nil {
		if os.IsNotExist(err) {
			return map[string]pac.Entry{}, nil
		}
		return nil, err
	}
	entries := map[string]pac.Entry{}
	if len(data) == 0 {
		return entries, nil
	}
	if err := json.Unmarshal(data, &entries); err != nil {
		return nil, fmt.Errorf("decode %s: %w", f.path, err)
	}
	return entries, nil
}

func (f *File) Save(_ context.Context, entries map[string]pac.Entry) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	data, err := json.MarshalIndent(entries, "", "  ")
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(f.path), 0755); err != nil {
		return err
	}
	tmp := f.path + ".tmp"
	if err := os.WriteFile(tmp, data, 0600); err != nil {
		return err
	}
	return os.Rename(tmp, f.path)
}
