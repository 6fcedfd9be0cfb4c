package storage

import (
	"context"
	"fmt"
	"reflect"
	"sort"
	"sync"

	"github.com/google/uuid"
)

type memoryEntry struct {
	collection string
	id         string
	data       map[string]any
	seq        int
}

// MemoryStore is a process-local DocumentStore. It backs STORAGE_TYPE=memory
// and the tests of packages built on DocumentStore.
type MemoryStore struct {
	mu   sync.Mutex
	docs map[string]*memoryEntry
	seq  int
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{docs: make(map[string]*memoryEntry)}
}

func (m *MemoryStore) Get(_ context.Context, path string) (*Document, error) {
	if _, _, err := splitDocPath(path); err != nil {
		return nil, err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	e, ok := m.docs[path]
	if !ok {
		return nil, nil
	}
	return e.document(path), nil
}

func (m *MemoryStore) FindByField(_ context.Context, collection, field string, value any, limit int) ([]*Document, error) {
	if err := validateCollection(collection); err != nil {
		return nil, err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	var out []*Document
	for _, path := range m.sortedPaths(collection) {
		e := m.docs[path]
		if v, ok := e.data[field]; ok && reflect.DeepEqual(v, value) {
			out = append(out, e.document(path))
			if limit > 0 && len(out) == limit {
				break
			}
		}
	}
	return out, nil
}

func (m *MemoryStore) Set(_ context.Context, path string, data map[string]any, merge bool) error {
	collection, id, err := splitDocPath(path)
	if err != nil {
		return err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if e, ok := m.docs[path]; ok {
		if merge {
			e.data = mergeData(e.data, data)
		} else {
			e.data = mergeData(nil, data)
		}
		return nil
	}
	m.insert(path, collection, id, data)
	return nil
}

func (m *MemoryStore) Create(_ context.Context, path string, data map[string]any) (bool, error) {
	collection, id, err := splitDocPath(path)
	if err != nil {
		return false, err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.docs[path]; ok {
		return false, nil
	}
	m.insert(path, collection, id, data)
	return true, nil
}

func (m *MemoryStore) Add(ctx context.Context, collection string, data map[string]any) (string, error) {
	if err := validateCollection(collection); err != nil {
		return "", err
	}
	id := uuid.NewString()
	created, err := m.Create(ctx, DocPath(collection, id), data)
	if err != nil {
		return "", err
	}
	if !created {
		return "", fmt.Errorf("adding to %s: generated id %s already taken", collection, id)
	}
	return id, nil
}

// Collection returns every document directly under collection in insertion order.
func (m *MemoryStore) Collection(collection string) []*Document {
	m.mu.Lock()
	defer m.mu.Unlock()

	paths := m.sortedPaths(collection)
	out := make([]*Document, 0, len(paths))
	for _, p := range paths {
		out = append(out, m.docs[p].document(p))
	}
	return out
}

// Len returns the total number of stored documents.
func (m *MemoryStore) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.docs)
}

func (m *MemoryStore) Ping(context.Context) error { return nil }

func (m *MemoryStore) Close() error { return nil }

// insert must be called with mu held.
func (m *MemoryStore) insert(path, collection, id string, data map[string]any) {
	m.seq++
	m.docs[path] = &memoryEntry{
		collection: collection,
		id:         id,
		data:       mergeData(nil, data),
		seq:        m.seq,
	}
}

// sortedPaths must be called with mu held.
func (m *MemoryStore) sortedPaths(collection string) []string {
	var paths []string
	for p, e := range m.docs {
		if e.collection == collection {
			paths = append(paths, p)
		}
	}
	sort.Slice(paths, func(i, j int) bool { return m.docs[paths[i]].seq < m.docs[paths[j]].seq })
	return paths
}

func (e *memoryEntry) document(path string) *Document {
	return &Document{ID: e.id, Path: path, Data: mergeData(nil, e.data)}
}
