package backend

import (
	"context"
	"sort"
	"sync"
)

// Memory is an in-process backend. It backs tests and ephemeral roots, and
// doubles as the reference implementation of the Backend contract.
type Memory struct {
	mu       sync.Mutex
	segments map[Segment]map[string][]byte
	index    []byte
	hasIndex bool
}

// NewMemory returns an empty in-memory backend.
func NewMemory() *Memory {
	m := &Memory{segments: make(map[Segment]map[string][]byte)}
	for _, seg := range Segments {
		m.segments[seg] = make(map[string][]byte)
	}
	return m
}

// Named memory roots, so callers can enumerate and destroy them the same way
// they manage on-disk roots.
var (
	memMu    sync.Mutex
	memRoots = make(map[string]*Memory)
)

// MemoryAvailable reports whether in-memory roots can be used. A
// process-local map has no environmental requirements.
func MemoryAvailable() bool { return true }

// OpenMemory returns the shared in-memory backend for root, creating it on
// first use.
func OpenMemory(root string) *Memory {
	memMu.Lock()
	defer memMu.Unlock()
	m, ok := memRoots[root]
	if !ok {
		m = NewMemory()
		memRoots[root] = m
	}
	return m
}

// MemoryRoots returns the sorted names of live in-memory roots.
func MemoryRoots() []string {
	memMu.Lock()
	defer memMu.Unlock()
	roots := make([]string, 0, len(memRoots))
	for root := range memRoots {
		roots = append(roots, root)
	}
	sort.Strings(roots)
	return roots
}

// DestroyMemory discards the named in-memory root.
func DestroyMemory(root string) {
	memMu.Lock()
	defer memMu.Unlock()
	delete(memRoots, root)
}

func (m *Memory) Init(ctx context.Context) error { return nil }

func (m *Memory) Read(ctx context.Context, seg Segment, path string) ([]byte, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	content, ok := m.segments[seg][path]
	if !ok {
		return nil, ErrNotFound
	}
	out := make([]byte, len(content))
	copy(out, content)
	return out, nil
}

func (m *Memory) Write(ctx context.Context, seg Segment, path string, content []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	stored := make([]byte, len(content))
	copy(stored, content)
	m.segments[seg][path] = stored
	return nil
}

func (m *Memory) Delete(ctx context.Context, seg Segment, path string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.segments[seg], path)
	return nil
}

func (m *Memory) DeleteAll(ctx context.Context, path string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, seg := range Segments {
		delete(m.segments[seg], path)
	}
	return nil
}

func (m *Memory) List(ctx context.Context, seg Segment, prefix string) ([]string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var paths []string
	for path := range m.segments[seg] {
		if matchesPrefix(path, prefix) {
			paths = append(paths, path)
		}
	}
	sort.Strings(paths)
	return paths, nil
}

func (m *Memory) ReadIndex(ctx context.Context) ([]byte, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if !m.hasIndex {
		return nil, ErrNotFound
	}
	out := make([]byte, len(m.index))
	copy(out, m.index)
	return out, nil
}

func (m *Memory) WriteIndex(ctx context.Context, data []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.index = make([]byte, len(data))
	copy(m.index, data)
	m.hasIndex = true
	return nil
}

func (m *Memory) Close() error { return nil }
