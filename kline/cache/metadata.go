package cache

import (
	"encoding/json"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/gofrs/flock"
)

// entryMeta is one row of the cache_metadata.json index, per spec §6.
type entryMeta struct {
	Path      string    `json:"path"`
	SizeBytes int64     `json:"sizeBytes"`
	CreatedAt time.Time `json:"createdAt"`
	RowCount  int       `json:"rowCount"`
}

// metadataIndex owns cache_metadata.json. Reads take an in-process RWMutex
// read lock; writes take the write lock and, since the file may also be
// touched by another OS process sharing the same cache directory, a
// cross-process advisory lock via github.com/gofrs/flock (grounded on the
// pack's gravitational-teleport / containerman17-l1-data-tools use of flock
// for exactly this kind of coordination).
type metadataIndex struct {
	path string

	mu      sync.RWMutex
	entries map[string]entryMeta

	fileLock *flock.Flock
}

func newMetadataIndex(root string) (*metadataIndex, error) {
	path := filepath.Join(root, "cache_metadata.json")
	idx := &metadataIndex{
		path:     path,
		entries:  map[string]entryMeta{},
		fileLock: flock.New(path + ".lock"),
	}
	if err := idx.load(); err != nil {
		return nil, err
	}
	return idx, nil
}

func (idx *metadataIndex) load() error {
	idx.mu.Lock()
	defer idx.mu.Unlock()

	bs, err := os.ReadFile(idx.path)
	if os.IsNotExist(err) {
		return nil
	}
	if err != nil {
		return err
	}
	if len(bs) == 0 {
		return nil
	}
	entries := map[string]entryMeta{}
	if err := json.Unmarshal(bs, &entries); err != nil {
		// Corrupt metadata file: treat as empty rather than fail the whole
		// cache; individual Load calls will still structurally validate
		// whatever files happen to be on disk.
		return nil
	}
	idx.entries = entries
	return nil
}

func (idx *metadataIndex) get(key string) (entryMeta, bool) {
	idx.mu.RLock()
	defer idx.mu.RUnlock()
	m, ok := idx.entries[key]
	return m, ok
}

func (idx *metadataIndex) set(key string, meta entryMeta) error {
	if err := idx.fileLock.Lock(); err != nil {
		return err
	}
	defer idx.fileLock.Unlock()

	idx.mu.Lock()
	idx.entries[key] = meta
	snapshot := idx.snapshotLocked()
	idx.mu.Unlock()

	return writeJSONAtomic(idx.path, snapshot)
}

func (idx *metadataIndex) delete(key string) error {
	if err := idx.fileLock.Lock(); err != nil {
		return err
	}
	defer idx.fileLock.Unlock()

	idx.mu.Lock()
	delete(idx.entries, key)
	snapshot := idx.snapshotLocked()
	idx.mu.Unlock()

	return writeJSONAtomic(idx.path, snapshot)
}

// snapshotLocked must be called with idx.mu held.
func (idx *metadataIndex) snapshotLocked() map[string]entryMeta {
	snap := make(map[string]entryMeta, len(idx.entries))
	for k, v := range idx.entries {
		snap[k] = v
	}
	return snap
}

func writeJSONAtomic(path string, v interface{}) error {
	bs, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return err
	}
	return writeFileAtomic(path, bs)
}
