// Package storage provides the plugin storage collaborator: a handle per
// plugin created at load and released at unload. The file-backed provider
// keeps one JSON document per plugin, addressed with gjson path syntax.
package storage

import (
	"context"
	"errors"
	"fmt"
	"hash/fnv"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/tidwall/gjson"
	"github.com/tidwall/sjson"

	"github.com/skybot-irc/skybot/internal/event"
)

// ErrClosed is returned when using a document after its plugin unloaded.
var ErrClosed = errors.New("storage document is released")

// FileStore is a storage provider backed by one JSON file per plugin under
// a data directory. It satisfies the registry's StorageProvider contract.
type FileStore struct {
	dir string

	mu   sync.Mutex
	open map[string]*document
}

// NewFileStore creates the data directory if needed and returns a provider.
func NewFileStore(dir string) (*FileStore, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create data dir %q: %w", dir, err)
	}
	return &FileStore{dir: dir, open: make(map[string]*document)}, nil
}

// CreateStore opens (or creates) the plugin's document. A corrupt document
// is an error, which aborts the plugin load before any hook runs.
func (s *FileStore) CreateStore(ctx context.Context, identity string) (event.Store, error) {
	path := filepath.Join(s.dir, docName(identity))

	data, err := os.ReadFile(path)
	switch {
	case errors.Is(err, os.ErrNotExist):
		data = []byte("{}")
	case err != nil:
		return nil, fmt.Errorf("read storage for %q: %w", identity, err)
	case !gjson.ValidBytes(data):
		return nil, fmt.Errorf("storage for %q: invalid JSON document", identity)
	}

	doc := &document{path: path, data: data}

	s.mu.Lock()
	s.open[identity] = doc
	s.mu.Unlock()

	return doc, nil
}

// ReleaseStore flushes and forgets the plugin's document. Best-effort:
// flush failures are swallowed, per the collaborator contract.
func (s *FileStore) ReleaseStore(ctx context.Context, identity string) {
	s.mu.Lock()
	doc, ok := s.open[identity]
	delete(s.open, identity)
	s.mu.Unlock()

	if ok {
		doc.close()
	}
}

// docName derives a stable file name from a plugin identity. The base name
// keeps files recognizable; the hash disambiguates identical base names
// from different paths.
func docName(identity string) string {
	base := strings.TrimSuffix(filepath.Base(identity), filepath.Ext(identity))
	h := fnv.New32a()
	h.Write([]byte(identity))
	return fmt.Sprintf("%s-%08x.json", base, h.Sum32())
}

// document is one plugin's JSON store. Writes go through sjson and are
// flushed to disk on every mutation, so an unload or crash loses nothing.
type document struct {
	mu     sync.Mutex
	path   string
	data   []byte
	closed bool
}

// Get returns the raw value at a gjson path.
func (d *document) Get(path string) (string, bool) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.closed {
		return "", false
	}
	res := gjson.GetBytes(d.data, path)
	if !res.Exists() {
		return "", false
	}
	return res.String(), true
}

// Set writes a value at a gjson path and flushes the document.
func (d *document) Set(path string, value any) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.closed {
		return ErrClosed
	}
	data, err := sjson.SetBytes(d.data, path, value)
	if err != nil {
		return fmt.Errorf("set %q: %w", path, err)
	}
	d.data = data
	return d.flushLocked()
}

// Delete removes the value at a gjson path and flushes the document.
func (d *document) Delete(path string) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.closed {
		return ErrClosed
	}
	data, err := sjson.DeleteBytes(d.data, path)
	if err != nil {
		return fmt.Errorf("delete %q: %w", path, err)
	}
	d.data = data
	return d.flushLocked()
}

func (d *document) flushLocked() error {
	return os.WriteFile(d.path, d.data, 0o644)
}

func (d *document) close() {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.closed {
		return
	}
	_ = d.flushLocked()
	d.closed = true
}
