// Package durable implements BLINK's on-disk keyed byte-string map: the
// durable tier behind the LRU cache.
//
// Records live one per line as "<key>=<value>\n" in
// <data-dir>/disk_storage/data.txt. The first '=' on a line separates key
// from value; malformed lines (no '=') are skipped at load, not treated as
// fatal. Every mutation rewrites the whole file: the in-memory mirror is
// serialized to a temp file in the same directory, which is then renamed
// over the live file. A rename is atomic on the same filesystem, so a
// concurrent opener always sees either the entirely-old or entirely-new
// contents, never a half-written file — this is the "atomically-enough"
// rewrite the contract asks for, without requiring fsync.
package durable

import (
	"bufio"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/rs/zerolog"
)

const (
	storageSubdir = "disk_storage"
	fileName      = "data.txt"
)

// Map is a keyed byte-string map persisted as a line-oriented file.
// Safe for concurrent use by multiple goroutines.
type Map struct {
	mu sync.RWMutex

	dir      string
	path     string
	data     map[string]string
	fsync    bool
	log      zerolog.Logger
	closed   bool
}

// Options configures Open.
type Options struct {
	// Fsync, if true, calls File.Sync after every rewrite. Off by default
	// per the spec's open fsync-discipline question: durability across
	// power loss is not guaranteed either way.
	Fsync bool

	Logger zerolog.Logger
}

// Open creates dataDir/disk_storage if missing, loads any existing records
// from dataDir/disk_storage/data.txt, and returns a ready Map. Load
// failures (missing file, permission trouble, garbled lines) are not
// fatal: Open logs a diagnostic and starts from an empty map.
func Open(dataDir string, opt Options) (*Map, error) {
	dir := filepath.Join(dataDir, storageSubdir)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("durable: create directory %q: %w", dir, err)
	}

	m := &Map{
		dir:   dir,
		path:  filepath.Join(dir, fileName),
		data:  make(map[string]string),
		fsync: opt.Fsync,
		log:   opt.Logger,
	}

	if err := m.load(); err != nil {
		m.log.Warn().Err(err).Str("path", m.path).Msg("durable: load failed, starting empty")
		m.data = make(map[string]string)
	}
	return m, nil
}

func (m *Map) load() error {
	f, err := os.Open(m.path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return err
	}
	defer f.Close()

	sc := bufio.NewScanner(f)
	sc.Buffer(make([]byte, 0, 64*1024), 1<<20)
	for sc.Scan() {
		line := sc.Text()
		idx := strings.IndexByte(line, '=')
		if idx < 0 {
			continue // malformed line, skip per contract
		}
		m.data[line[:idx]] = line[idx+1:]
	}
	return sc.Err()
}

// Get returns the current value for key from the in-memory mirror.
func (m *Map) Get(key string) (string, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	v, ok := m.data[key]
	return v, ok
}

// Put inserts or overwrites key, then rewrites the backing file.
func (m *Map) Put(key, value string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	prev, had := m.data[key]
	m.data[key] = value
	if err := m.rewriteLocked(); err != nil {
		// Roll the mirror back to match disk on failure.
		if had {
			m.data[key] = prev
		} else {
			delete(m.data, key)
		}
		return fmt.Errorf("durable: put %q: %w", key, err)
	}
	return nil
}

// Remove deletes key if present, then rewrites the backing file. Returns
// whether key was present before the call.
func (m *Map) Remove(key string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	prev, had := m.data[key]
	if !had {
		return false, nil
	}
	delete(m.data, key)
	if err := m.rewriteLocked(); err != nil {
		m.data[key] = prev
		return false, fmt.Errorf("durable: remove %q: %w", key, err)
	}
	return true, nil
}

// Truncate discards every record and rewrites the (now empty) file. Used
// by the engine's Clear operation, which must not leave stale bytes behind
// the way recreating a fresh Map over the same path would.
func (m *Map) Truncate() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.data = make(map[string]string)
	return m.rewriteLocked()
}

// Close performs a final rewrite of the current contents. The rewrite is
// unconditional; if nothing changed since the last successful write, it
// reproduces the same file. A second Close returns nil without rewriting.
func (m *Map) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return nil
	}
	m.closed = true
	return m.rewriteLocked()
}

// rewriteLocked serializes the mirror to a temp file and renames it over
// the live path. Caller must hold mu.
func (m *Map) rewriteLocked() error {
	tmp, err := os.CreateTemp(m.dir, "data-*.tmp")
	if err != nil {
		return fmt.Errorf("create temp file: %w", err)
	}
	tmpPath := tmp.Name()
	defer func() {
		_ = tmp.Close()
		_ = os.Remove(tmpPath) // no-op once renamed
	}()

	w := bufio.NewWriter(tmp)
	for k, v := range m.data {
		if _, err := w.WriteString(k); err != nil {
			return err
		}
		if _, err := w.WriteString("="); err != nil {
			return err
		}
		if _, err := w.WriteString(v); err != nil {
			return err
		}
		if _, err := w.WriteString("\n"); err != nil {
			return err
		}
	}
	if err := w.Flush(); err != nil {
		return fmt.Errorf("flush temp file: %w", err)
	}
	if m.fsync {
		if err := tmp.Sync(); err != nil {
			return fmt.Errorf("fsync temp file: %w", err)
		}
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("close temp file: %w", err)
	}
	if err := os.Rename(tmpPath, m.path); err != nil {
		return fmt.Errorf("rename into place: %w", err)
	}
	return nil
}
