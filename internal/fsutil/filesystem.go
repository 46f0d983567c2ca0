// Package fsutil provides filesystem abstractions for testability.
//
// The recorder's durability contract (every acknowledged batch is on stable
// storage) depends on fsync, so Create returns a File that exposes Sync.
// MemoryFileSystem counts Sync calls per file, which lets tests assert that
// a writer flushed before acknowledging.
package fsutil

import (
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"sync"
)

// File is a writable file handle that can be flushed to stable storage.
// *os.File satisfies it directly.
type File interface {
	io.Writer
	io.Closer

	// Sync commits the current contents to stable storage.
	Sync() error
}

// FileSystem abstracts the filesystem operations the recorder performs.
// Use OSFileSystem in production; MemoryFileSystem in tests.
type FileSystem interface {
	// Create creates or truncates the named file.
	Create(name string) (File, error)

	// ReadFile returns the contents of the named file.
	ReadFile(name string) ([]byte, error)

	// WriteFile writes data to the named file, creating it if needed.
	WriteFile(name string, data []byte, perm os.FileMode) error

	// MkdirAll creates a directory and all missing parents.
	MkdirAll(path string, perm os.FileMode) error

	// Exists reports whether a file or directory exists.
	Exists(name string) bool
}

// OSFileSystem passes every operation through to the os package.
type OSFileSystem struct{}

func (OSFileSystem) Create(name string) (File, error) {
	return os.Create(name)
}

func (OSFileSystem) ReadFile(name string) ([]byte, error) {
	return os.ReadFile(name)
}

func (OSFileSystem) WriteFile(name string, data []byte, perm os.FileMode) error {
	return os.WriteFile(name, data, perm)
}

func (OSFileSystem) MkdirAll(path string, perm os.FileMode) error {
	return os.MkdirAll(path, perm)
}

func (OSFileSystem) Exists(name string) bool {
	_, err := os.Stat(name)
	return err == nil
}

// MemoryFileSystem keeps files in memory. Writes through a created File
// stay buffered until Sync or Close, mimicking data sitting in OS
// buffers until flushed.
type MemoryFileSystem struct {
	mu    sync.RWMutex
	files map[string][]byte
	dirs  map[string]bool
	syncs map[string]int
}

// NewMemoryFileSystem returns an empty in-memory filesystem.
func NewMemoryFileSystem() *MemoryFileSystem {
	return &MemoryFileSystem{
		files: make(map[string][]byte),
		dirs:  make(map[string]bool),
		syncs: make(map[string]int),
	}
}

func (m *MemoryFileSystem) Create(name string) (File, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	name = filepath.Clean(name)
	m.files[name] = []byte{}
	return &memFileWriter{fs: m, name: name}, nil
}

func (m *MemoryFileSystem) ReadFile(name string) ([]byte, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	name = filepath.Clean(name)
	data, ok := m.files[name]
	if !ok {
		return nil, &fs.PathError{Op: "read", Path: name, Err: fs.ErrNotExist}
	}
	out := make([]byte, len(data))
	copy(out, data)
	return out, nil
}

func (m *MemoryFileSystem) WriteFile(name string, data []byte, perm os.FileMode) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	name = filepath.Clean(name)
	stored := make([]byte, len(data))
	copy(stored, data)
	m.files[name] = stored
	return nil
}

func (m *MemoryFileSystem) MkdirAll(path string, perm os.FileMode) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	path = filepath.Clean(path)
	for p := path; p != "." && p != "/"; p = filepath.Dir(p) {
		m.dirs[p] = true
	}
	return nil
}

func (m *MemoryFileSystem) Exists(name string) bool {
	m.mu.RLock()
	defer m.mu.RUnlock()

	name = filepath.Clean(name)
	if _, ok := m.files[name]; ok {
		return true
	}
	return m.dirs[name]
}

// SyncCount reports how many times the named file was synced.
func (m *MemoryFileSystem) SyncCount(name string) int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.syncs[filepath.Clean(name)]
}

// memFileWriter implements File. Written bytes become visible to
// readers only on Sync or Close.
type memFileWriter struct {
	fs   *MemoryFileSystem
	name string
	buf  []byte
}

func (f *memFileWriter) Write(p []byte) (int, error) {
	f.buf = append(f.buf, p...)
	return len(p), nil
}

func (f *memFileWriter) Sync() error {
	f.fs.mu.Lock()
	defer f.fs.mu.Unlock()

	f.commitLocked()
	f.fs.syncs[f.name]++
	return nil
}

func (f *memFileWriter) Close() error {
	f.fs.mu.Lock()
	defer f.fs.mu.Unlock()

	f.commitLocked()
	return nil
}

func (f *memFileWriter) commitLocked() {
	data := make([]byte, len(f.buf))
	copy(data, f.buf)
	f.fs.files[f.name] = data
}
