package cache

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
)

// ErrQuotaExceeded is returned when a write would grow an Area past its quota.
var ErrQuotaExceeded = errors.New("cache area quota exceeded")

// Area is a synchronous, process-local key/value space.
type Area interface {
	Get(key string) ([]byte, bool, error)
	Set(key string, value []byte) error
	Remove(key string) error
	Keys(prefix string) ([]string, error)
}

// MemoryArea keeps values in a map. A zero quota means unlimited.
type MemoryArea struct {
	mu    sync.RWMutex
	data  map[string][]byte
	used  int
	quota int
}

func NewMemoryArea(quota int) *MemoryArea {
	return &MemoryArea{data: map[string][]byte{}, quota: quota}
}

func (a *MemoryArea) Get(key string) ([]byte, bool, error) {
	a.mu.RLock()
	defer a.mu.RUnlock()
	v, ok := a.data[key]
	if !ok {
		return nil, false, nil
	}
	return append([]byte(nil), v...), true, nil
}

func (a *MemoryArea) Set(key string, value []byte) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	next := a.used - entrySize(key, a.data[key]) + entrySize(key, value)
	if _, ok := a.data[key]; !ok {
		next = a.used + entrySize(key, value)
	}
	if a.quota > 0 && next > a.quota {
		return fmt.Errorf("set %s: %w", key, ErrQuotaExceeded)
	}
	a.data[key] = append([]byte(nil), value...)
	a.used = next
	return nil
}

func (a *MemoryArea) Remove(key string) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	if v, ok := a.data[key]; ok {
		a.used -= entrySize(key, v)
		delete(a.data, key)
	}
	return nil
}

func (a *MemoryArea) Keys(prefix string) ([]string, error) {
	a.mu.RLock()
	defer a.mu.RUnlock()
	out := []string{}
	for k := range a.data {
		if strings.HasPrefix(k, prefix) {
			out = append(out, k)
		}
	}
	sort.Strings(out)
	return out, nil
}

func entrySize(key string, value []byte) int {
	return len(key) + len(value)
}

// DirArea stores one file per key under a directory so values survive restarts.
type DirArea struct {
	mu    sync.Mutex
	dir   string
	quota int64
}

// NewDirArea creates dir if needed. A zero quota means unlimited.
func NewDirArea(dir string, quota int64) (*DirArea, error) {
	if strings.TrimSpace(dir) == "" {
		return nil, fmt.Errorf("cache dir is required")
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create cache dir: %w", err)
	}
	return &DirArea{dir: dir, quota: quota}, nil
}

func (a *DirArea) path(key string) string {
	return filepath.Join(a.dir, url.PathEscape(key)+".json")
}

func (a *DirArea) Get(key string) ([]byte, bool, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	b, err := os.ReadFile(a.path(key))
	if errors.Is(err, os.ErrNotExist) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	return b, true, nil
}

// Set writes through a temp file and rename so readers never see a torn value.
func (a *DirArea) Set(key string, value []byte) error {
	a.mu.Lock()
	defer a.mu.Unlock()

	target := a.path(key)
	if a.quota > 0 {
		used, err := a.usage()
		if err != nil {
			return err
		}
		if fi, err := os.Stat(target); err == nil {
			used -= fi.Size()
		}
		if used+int64(len(value)) > a.quota {
			return fmt.Errorf("set %s: %w", key, ErrQuotaExceeded)
		}
	}

	tmp, err := os.CreateTemp(a.dir, ".tmp-*")
	if err != nil {
		return err
	}
	if _, err := tmp.Write(value); err != nil {
		tmp.Close()
		os.Remove(tmp.Name())
		return err
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmp.Name())
		return err
	}
	if err := os.Rename(tmp.Name(), target); err != nil {
		os.Remove(tmp.Name())
		return err
	}
	return nil
}

func (a *DirArea) Remove(key string) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	err := os.Remove(a.path(key))
	if err != nil && !errors.Is(err, os.ErrNotExist) {
		return err
	}
	return nil
}

func (a *DirArea) Keys(prefix string) ([]string, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	entries, err := os.ReadDir(a.dir)
	if err != nil {
		return nil, err
	}
	out := []string{}
	for _, e := range entries {
		name := e.Name()
		if e.IsDir() || !strings.HasSuffix(name, ".json") {
			continue
		}
		key, err := url.PathUnescape(strings.TrimSuffix(name, ".json"))
		if err != nil {
			continue
		}
		if strings.HasPrefix(key, prefix) {
			out = append(out, key)
		}
	}
	sort.Strings(out)
	return out, nil
}

func (a *DirArea) usage() (int64, error) {
	entries, err := os.ReadDir(a.dir)
	if err != nil {
		return 0, err
	}
	var total int64
	for _, e := range entries {
		if e.IsDir() || !strings.HasSuffix(e.Name(), ".json") {
			continue
		}
		fi, err := e.Info()
		if err != nil {
			continue
		}
		total += fi.Size()
	}
	return total, nil
}
