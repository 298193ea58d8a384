package chat

import (
	"PShare/tools/errs"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"sync"

	lru "github.com/hashicorp/golang-lru"
)

// MemoryCache keeps JSON encoded values in a bounded LRU.
type MemoryCache struct {
	c *lru.Cache
}

func NewMemoryCache(size int) (*MemoryCache, error) {
	if size <= 0 {
		size = 256
	}
	c, err := lru.New(size)
	if err != nil {
		return nil, errs.Wrap(err)
	}
	return &MemoryCache{c: c}, nil
}

func (m *MemoryCache) Get(key string, v any) (bool, error) {
	raw, ok := m.c.Get(key)
	if !ok {
		return false, nil
	}
	if err := json.Unmarshal(raw.([]byte), v); err != nil {
		return false, errs.WrapMsg(err, "decode cached value", "key", key)
	}
	return true, nil
}

func (m *MemoryCache) Set(key string, v any) error {
	raw, err := json.Marshal(v)
	if err != nil {
		return errs.WrapMsg(err, "encode cached value", "key", key)
	}
	m.c.Add(key, raw)
	return nil
}

// FileCache stores one JSON file per key under dir.
type FileCache struct {
	dir string
	mu  sync.Mutex
}

func NewFileCache(dir string) (*FileCache, error) {
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return nil, errs.WrapMsg(err, "create cache dir", "dir", dir)
	}
	return &FileCache{dir: dir}, nil
}

var keyReplacer = strings.NewReplacer(":", "_", "/", "_", "\\", "_")

func (f *FileCache) path(key string) string {
	return filepath.Join(f.dir, keyReplacer.Replace(key)+".json")
}

func (f *FileCache) Get(key string, v any) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	raw, err := os.ReadFile(f.path(key))
	if os.IsNotExist(err) {
		return false, nil
	}
	if err != nil {
		return false, errs.WrapMsg(err, "read cache", "key", key)
	}
	if err := json.Unmarshal(raw, v); err != nil {
		return false, errs.WrapMsg(err, "decode cached value", "key", key)
	}
	return true, nil
}

// Set writes through a temp file and rename so readers never see half a value.
func (f *FileCache) Set(key string, v any) error {
	raw, err := json.Marshal(v)
	if err != nil {
		return errs.WrapMsg(err, "encode cached value", "key", key)
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	tmp, err := os.CreateTemp(f.dir, ".tmp-*")
	if err != nil {
		return errs.WrapMsg(err, "write cache", "key", key)
	}
	if _, err := tmp.Write(raw); err != nil {
		_ = tmp.Close()
		_ = os.Remove(tmp.Name())
		return errs.WrapMsg(err, "write cache", "key", key)
	}
	if err := tmp.Close(); err != nil {
		_ = os.Remove(tmp.Name())
		return errs.WrapMsg(err, "write cache", "key", key)
	}
	if err := os.Rename(tmp.Name(), f.path(key)); err != nil {
		_ = os.Remove(tmp.Name())
		return errs.WrapMsg(err, "write cache", "key", key)
	}
	return nil
}
