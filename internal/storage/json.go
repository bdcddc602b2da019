package storage

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/tracgallery/gallery/internal/types"
)

// JSONFileName is the default file name under the data directory
const JSONFileName = "curated-nfts.json"

// JSONFilePersister stores the collection as one JSON array. Writes go to a
// temp file in the same directory which is then renamed over the target.
type JSONFilePersister struct {
	path string
}

var _ Persister = (*JSONFilePersister)(nil)

// NewJSONFilePersister creates a persister for path
func NewJSONFilePersister(path string) *JSONFilePersister {
	return &JSONFilePersister{path: path}
}

// Path returns the backing file path
func (p *JSONFilePersister) Path() string {
	return p.path
}

// Load reads the array. A missing file is an empty collection, not an error.
func (p *JSONFilePersister) Load(_ context.Context) ([]*types.CuratedItem, error) {
	data, err := os.ReadFile(p.path)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read %s: %w", p.path, err)
	}
	var items []*types.CuratedItem
	if err := json.Unmarshal(data, &items); err != nil {
		return nil, fmt.Errorf("failed to parse %s: %w", p.path, err)
	}
	return items, nil
}

// Save rewrites the whole file atomically
func (p *JSONFilePersister) Save(_ context.Context, items []*types.CuratedItem) error {
	if items == nil {
		items = []*types.CuratedItem{}
	}
	data, err := json.MarshalIndent(items, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal items: %w", err)
	}

	dir := filepath.Dir(p.path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create directory: %w", err)
	}

	tmp, err := os.CreateTemp(dir, filepath.Base(p.path)+".*.tmp")
	if err != nil {
		return fmt.Errorf("failed to create temp file: %w", err)
	}
	tmpName := tmp.Name()
	cleanup := func() { _ = os.Remove(tmpName) }

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		cleanup()
		return fmt.Errorf("failed to write temp file: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		cleanup()
		return fmt.Errorf("failed to sync temp file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		cleanup()
		return fmt.Errorf("failed to close temp file: %w", err)
	}
	if err := os.Rename(tmpName, p.path); err != nil {
		cleanup()
		return fmt.Errorf("failed to replace %s: %w", p.path, err)
	}
	return nil
}

// Close implements Persister
func (p *JSONFilePersister) Close() error {
	return nil
}
