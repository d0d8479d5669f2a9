package store

import (
	"context"
	"encoding/json"
	"sort"
	"strings"
	"sync"
)

// Memory is a volatile Store implementation backed by a process-local map.
// It is safe for concurrent access and best suited for tests or single
// process runs. Documents are stored as marshaled JSON so reads return
// copies, never aliases of internal state.
type Memory struct {
	mu   sync.Mutex
	docs map[string][]byte
}

// NewMemory constructs an empty in-memory document store.
func NewMemory() *Memory {
	return &Memory{docs: make(map[string][]byte)}
}

// Get implements Store.
func (m *Memory) Get(_ context.Context, path string, out any) error {
	m.mu.Lock()
	data, ok := m.docs[path]
	m.mu.Unlock()
	if !ok {
		return ErrNotFound
	}
	return json.Unmarshal(data, out)
}

// Set implements Store.
func (m *Memory) Set(_ context.Context, path string, value any) error {
	data, err := json.Marshal(value)
	if err != nil {
		return err
	}
	m.mu.Lock()
	m.docs[path] = data
	m.mu.Unlock()
	return nil
}

// Create implements Store. The existence check and write happen under one
// lock acquisition, making the call atomic with respect to other Creates.
func (m *Memory) Create(_ context.Context, path string, value any) error {
	data, err := json.Marshal(value)
	if err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.docs[path]; ok {
		return ErrAlreadyExists
	}
	m.docs[path] = data
	return nil
}

// List implements Store.
func (m *Memory) List(_ context.Context, prefix string, each func(path string, data []byte) error) error {
	m.mu.Lock()
	paths := make([]string, 0)
	for p := range m.docs {
		rest, ok := strings.CutPrefix(p, prefix+"/")
		if ok && !strings.Contains(rest, "/") {
			paths = append(paths, p)
		}
	}
	sort.Strings(paths)
	docs := make([][]byte, len(paths))
	for i, p := range paths {
		docs[i] = m.docs[p]
	}
	m.mu.Unlock()

	for i, p := range paths {
		if err := each(p, docs[i]); err != nil {
			return err
		}
	}
	return nil
}
