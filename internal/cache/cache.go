package cache

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/zundamotion/zundamotion/internal/config"
)

// Mode controls how lookups behave.
type Mode int

const (
	// ModeNormal reuses existing entries and stores new ones.
	ModeNormal Mode = iota
	// ModeDisabled bypasses the cache entirely; outputs land in a scratch
	// directory under unique names.
	ModeDisabled
	// ModeRefresh ignores existing entries but stores fresh results, so a
	// run can rebuild its artifacts in place.
	ModeRefresh
)

// Error wraps a cache failure with the operation and key that caused it.
type Error struct {
	Op   string
	Name string
	Err  error
}

func (e *Error) Error() string {
	return fmt.Sprintf("cache %s %s: %v", e.Op, e.Name, e.Err)
}

func (e *Error) Unwrap() error { return e.Err }

// CreateFunc produces the artifact at tmpPath. On success the file is moved
// into the cache atomically.
type CreateFunc func(ctx context.Context, tmpPath string) error

// Manager is the content-addressed cache. All methods are safe for
// concurrent use; identical keys requested concurrently share one creation.
type Manager struct {
	dir     string
	scratch string
	mode    Mode
	ttl     time.Duration
	maxSize int64
	logger  *slog.Logger
	ix      *index

	mu       sync.Mutex
	keyLocks map[string]*sync.Mutex
	inflight map[string]bool
}

// New opens the cache at cfg.Dir, creating it if needed. scratch receives
// uncached outputs in ModeDisabled.
func New(cfg config.CacheConfig, scratch string, mode Mode, logger *slog.Logger) (*Manager, error) {
	if logger == nil {
		logger = slog.Default()
	}
	if err := os.MkdirAll(cfg.Dir, 0755); err != nil {
		return nil, &Error{Op: "init", Name: cfg.Dir, Err: err}
	}
	ix, err := openIndex(cfg.Dir, logger)
	if err != nil {
		return nil, &Error{Op: "init", Name: cfg.Dir, Err: err}
	}
	return &Manager{
		dir:      cfg.Dir,
		scratch:  scratch,
		mode:     mode,
		ttl:      time.Duration(cfg.TTLHours) * time.Hour,
		maxSize:  int64(cfg.MaxSize),
		logger:   logger.With(slog.String("component", "cache")),
		ix:       ix,
		keyLocks: map[string]*sync.Mutex{},
		inflight: map[string]bool{},
	}, nil
}

// Dir returns the cache directory.
func (m *Manager) Dir() string { return m.dir }

// Path returns the cache location for name+key without touching the index.
func (m *Manager) Path(name string, key Key, ext string) (string, error) {
	hash, err := key.Hash()
	if err != nil {
		return "", &Error{Op: "hash", Name: name, Err: err}
	}
	return filepath.Join(m.dir, fmt.Sprintf("%s_%s.%s", name, hash, ext)), nil
}

// Lookup reports whether a finished entry for name+key exists and returns
// its path. A hit refreshes the access time.
func (m *Manager) Lookup(name string, key Key, ext string) (string, bool, error) {
	if m.mode != ModeNormal {
		return "", false, nil
	}
	path, err := m.Path(name, key, ext)
	if err != nil {
		return "", false, err
	}
	st, err := os.Stat(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return "", false, nil
		}
		return "", false, &Error{Op: "stat", Name: name, Err: err}
	}
	hash, _ := key.Hash()
	if err := m.ix.touch(path, name, hash, st.Size()); err != nil {
		m.logger.Warn("updating cache access time failed", slog.Any("error", err))
	}
	return path, true, nil
}

// GetOrCreate returns the cached artifact for name+key, invoking create at
// most once per key across concurrent callers.
func (m *Manager) GetOrCreate(ctx context.Context, name string, key Key, ext string, create CreateFunc) (string, bool, error) {
	if m.mode == ModeDisabled {
		out := filepath.Join(m.scratch, fmt.Sprintf("%s_%s.%s", name, uuid.NewString(), ext))
		if err := create(ctx, out); err != nil {
			return "", false, err
		}
		return out, false, nil
	}

	path, err := m.Path(name, key, ext)
	if err != nil {
		return "", false, err
	}

	lock := m.lockFor(path)
	lock.Lock()
	defer lock.Unlock()

	if hit, _, err := m.lookupLocked(name, key, ext, path); err != nil {
		return "", false, err
	} else if hit {
		m.logger.Debug("cache hit", slog.String("name", name), slog.String("path", path))
		return path, true, nil
	}

	m.setInflight(path, true)
	defer m.setInflight(path, false)

	tmp := path + ".tmp." + uuid.NewString()[:8]
	if err := create(ctx, tmp); err != nil {
		os.Remove(tmp)
		return "", false, err
	}
	st, err := os.Stat(tmp)
	if err != nil {
		return "", false, &Error{Op: "stat", Name: name, Err: err}
	}
	if err := os.Rename(tmp, path); err != nil {
		os.Remove(tmp)
		return "", false, &Error{Op: "store", Name: name, Err: err}
	}

	hash, _ := key.Hash()
	if err := m.ix.record(path, name, hash, st.Size()); err != nil {
		m.logger.Warn("recording cache entry failed", slog.Any("error", err))
	}
	m.logger.Debug("cache store", slog.String("name", name), slog.String("path", path))
	m.evictAfterStore()
	return path, false, nil
}

// Save copies an existing file into the cache under name+key and returns
// the cache path. Like any store, it triggers eviction.
func (m *Manager) Save(src, name string, key Key, ext string) (string, error) {
	if m.mode == ModeDisabled {
		out := filepath.Join(m.scratch, fmt.Sprintf("%s_%s.%s", name, uuid.NewString(), ext))
		if err := copyInto(src, out); err != nil {
			return "", &Error{Op: "save", Name: name, Err: err}
		}
		return out, nil
	}

	path, err := m.Path(name, key, ext)
	if err != nil {
		return "", err
	}

	lock := m.lockFor(path)
	lock.Lock()
	defer lock.Unlock()

	m.setInflight(path, true)
	defer m.setInflight(path, false)

	tmp := path + ".tmp." + uuid.NewString()[:8]
	if err := copyInto(src, tmp); err != nil {
		os.Remove(tmp)
		return "", &Error{Op: "save", Name: name, Err: err}
	}
	st, err := os.Stat(tmp)
	if err != nil {
		return "", &Error{Op: "stat", Name: name, Err: err}
	}
	if err := os.Rename(tmp, path); err != nil {
		os.Remove(tmp)
		return "", &Error{Op: "store", Name: name, Err: err}
	}

	hash, _ := key.Hash()
	if err := m.ix.record(path, name, hash, st.Size()); err != nil {
		m.logger.Warn("recording cache entry failed", slog.Any("error", err))
	}
	m.evictAfterStore()
	return path, nil
}

// evictAfterStore enforces the limits after a mutation. Failure is logged
// rather than returned; the artifact itself is already in place.
func (m *Manager) evictAfterStore() {
	if err := m.Evict(); err != nil {
		m.logger.Warn("cache eviction failed", slog.Any("error", err))
	}
}

func copyInto(src, dst string) error {
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()

	out, err := os.Create(dst)
	if err != nil {
		return err
	}
	if _, err := io.Copy(out, in); err != nil {
		out.Close()
		return err
	}
	return out.Close()
}

func (m *Manager) lookupLocked(name string, key Key, ext, path string) (bool, string, error) {
	if m.mode == ModeRefresh {
		return false, "", nil
	}
	st, err := os.Stat(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return false, "", nil
		}
		return false, "", &Error{Op: "stat", Name: name, Err: err}
	}
	hash, _ := key.Hash()
	if err := m.ix.touch(path, name, hash, st.Size()); err != nil {
		m.logger.Warn("updating cache access time failed", slog.Any("error", err))
	}
	return true, path, nil
}

func (m *Manager) lockFor(path string) *sync.Mutex {
	m.mu.Lock()
	defer m.mu.Unlock()
	lock, ok := m.keyLocks[path]
	if !ok {
		lock = &sync.Mutex{}
		m.keyLocks[path] = lock
	}
	return lock
}

func (m *Manager) setInflight(path string, v bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if v {
		m.inflight[path] = true
	} else {
		delete(m.inflight, path)
	}
}

func (m *Manager) isInflight(path string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.inflight[path]
}

// Evict enforces the TTL first, then the size limit by dropping the least
// recently accessed entries. Files being written right now are skipped.
func (m *Manager) Evict() error {
	if m.mode == ModeDisabled {
		return nil
	}
	if m.ttl > 0 {
		expired, err := m.ix.expiredBefore(time.Now().Add(-m.ttl))
		if err != nil {
			return &Error{Op: "evict", Name: "ttl", Err: err}
		}
		for _, e := range expired {
			m.drop(e, "ttl")
		}
	}
	if m.maxSize <= 0 {
		return nil
	}
	total, err := m.ix.totalSize()
	if err != nil {
		return &Error{Op: "evict", Name: "size", Err: err}
	}
	for total > m.maxSize {
		victims, err := m.ix.oldest(32)
		if err != nil {
			return &Error{Op: "evict", Name: "size", Err: err}
		}
		if len(victims) == 0 {
			break
		}
		progressed := false
		for _, e := range victims {
			if total <= m.maxSize {
				break
			}
			if m.isInflight(e.Path) {
				continue
			}
			m.drop(e, "size")
			total -= e.Size
			progressed = true
		}
		if !progressed {
			break
		}
	}
	return nil
}

func (m *Manager) drop(e Entry, reason string) {
	if err := os.Remove(e.Path); err != nil && !errors.Is(err, os.ErrNotExist) {
		m.logger.Warn("removing cache file failed",
			slog.String("path", e.Path), slog.Any("error", err))
		return
	}
	if err := m.ix.remove(e.Path); err != nil {
		m.logger.Warn("removing cache index row failed", slog.Any("error", err))
	}
	m.logger.Debug("cache evict",
		slog.String("path", e.Path), slog.String("reason", reason))
}
