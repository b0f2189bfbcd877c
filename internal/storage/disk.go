package storage

import (
	"context"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"

	"ledmkt-backend/pkg/logger"
)

// DiskStorage keeps one file per key under dataDir/kv. Writes go through a
// temp file and a rename so a crash never leaves a half-written record.
type DiskStorage struct {
	dataDir   string
	mu        sync.RWMutex
	cache     map[string]*cacheEntry
	cacheSize int
}

type cacheEntry struct {
	value    string
	accessed time.Time
}

func NewDiskStorage(dataDir string, cacheSize int) *DiskStorage {
	if cacheSize <= 0 {
		cacheSize = 64
	}
	return &DiskStorage{
		dataDir:   dataDir,
		cache:     make(map[string]*cacheEntry),
		cacheSize: cacheSize,
	}
}

func (d *DiskStorage) Init() error {
	if err := d.createDirectories(); err != nil {
		return fmt.Errorf("%w: %v", ErrStorageInit, err)
	}

	logger.Info("Disk storage initialized successfully")
	return nil
}

func (d *DiskStorage) createDirectories() error {
	dirs := []string{
		d.dataDir,
		filepath.Join(d.dataDir, "kv"),
		filepath.Join(d.dataDir, "backup"),
	}

	for _, dir := range dirs {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return err
		}
	}

	return nil
}

func (d *DiskStorage) keyPath(key string) string {
	return filepath.Join(d.dataDir, "kv", url.PathEscape(key)+".json")
}

func (d *DiskStorage) Get(_ context.Context, key string) (string, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if entry, ok := d.cache[key]; ok {
		entry.accessed = time.Now()
		return entry.value, nil
	}

	data, err := os.ReadFile(d.keyPath(key))
	if err != nil {
		if os.IsNotExist(err) {
			return "", ErrKeyNotFound
		}
		return "", fmt.Errorf("%w: %v", ErrFileOperation, err)
	}

	d.cache[key] = &cacheEntry{value: string(data), accessed: time.Now()}
	d.evictCache()

	return string(data), nil
}

func (d *DiskStorage) Set(_ context.Context, key, value string) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	path := d.keyPath(key)
	tempPath := path + ".tmp"

	if err := os.WriteFile(tempPath, []byte(value), 0644); err != nil {
		return fmt.Errorf("%w: %v", ErrFileOperation, err)
	}
	if err := os.Rename(tempPath, path); err != nil {
		return fmt.Errorf("%w: %v", ErrFileOperation, err)
	}

	d.cache[key] = &cacheEntry{value: value, accessed: time.Now()}
	d.evictCache()

	return nil
}

func (d *DiskStorage) Remove(_ context.Context, key string) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	delete(d.cache, key)

	if err := os.Remove(d.keyPath(key)); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("%w: %v", ErrFileOperation, err)
	}
	return nil
}

func (d *DiskStorage) evictCache() {
	if len(d.cache) <= d.cacheSize {
		return
	}

	type keyAccess struct {
		key      string
		accessed time.Time
	}

	entries := make([]keyAccess, 0, len(d.cache))
	for key, entry := range d.cache {
		entries = append(entries, keyAccess{key: key, accessed: entry.accessed})
	}

	sort.Slice(entries, func(i, j int) bool {
		return entries[i].accessed.Before(entries[j].accessed)
	})

	toEvict := len(d.cache) - d.cacheSize
	for i := 0; i < toEvict; i++ {
		delete(d.cache, entries[i].key)
	}
}

func (d *DiskStorage) Close() error {
	d.mu.Lock()
	defer d.mu.Unlock()

	d.cache = make(map[string]*cacheEntry)
	return nil
}

func (d *DiskStorage) Backup() error {
	d.mu.RLock()
	defer d.mu.RUnlock()

	backupDir := filepath.Join(d.dataDir, "backup", fmt.Sprintf("backup_%d", time.Now().Unix()))
	dstDir := filepath.Join(backupDir, "kv")

	if err := os.MkdirAll(dstDir, 0755); err != nil {
		return fmt.Errorf("%w: %v", ErrFileOperation, err)
	}

	if err := copyDir(filepath.Join(d.dataDir, "kv"), dstDir); err != nil {
		return fmt.Errorf("%w: %v", ErrFileOperation, err)
	}

	logger.Infof("Backup completed: %s", backupDir)
	return nil
}

func copyDir(src, dst string) error {
	files, err := os.ReadDir(src)
	if err != nil {
		return err
	}

	for _, file := range files {
		if file.IsDir() || filepath.Ext(file.Name()) != ".json" {
			continue
		}
		data, err := os.ReadFile(filepath.Join(src, file.Name()))
		if err != nil {
			return err
		}
		if err := os.WriteFile(filepath.Join(dst, file.Name()), data, 0644); err != nil {
			return err
		}
	}

	return nil
}
