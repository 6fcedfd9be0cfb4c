package storage

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
)

// ErrInvalidPath is returned for document or collection paths with the wrong
// number of segments or empty segments.
var ErrInvalidPath = errors.New("invalid document path")

// Document is a stored record addressed by a slash-separated path of
// alternating collection and id segments, e.g. "parks/dl/rides/space-mountain".
type Document struct {
	ID   string
	Path string
	Data map[string]any
}

// String returns the named field when it holds a string.
func (d *Document) String(field string) (string, bool) {
	if d == nil || d.Data == nil {
		return "", false
	}
	s, ok := d.Data[field].(string)
	return s, ok
}

// DocumentStore is a hierarchical key/value store with subcollections.
type DocumentStore interface {
	// Get returns nil, nil when nothing is stored at path.
	Get(ctx context.Context, path string) (*Document, error)
	// FindByField returns up to limit documents of collection whose field equals value.
	FindByField(ctx context.Context, collection, field string, value any, limit int) ([]*Document, error)
	// Set writes data at path. With merge, top-level fields are merged into the existing document.
	Set(ctx context.Context, path string, data map[string]any, merge bool) error
	// Add appends a document with a generated id to collection and returns that id.
	Add(ctx context.Context, collection string, data map[string]any) (string, error)
	// Create writes data at path only if nothing is stored there yet.
	// It reports whether this call created the document.
	Create(ctx context.Context, path string, data map[string]any) (bool, error)
	Ping(ctx context.Context) error
	Close() error
}

// DocPath joins collection/id segments into a document path.
func DocPath(segments ...string) string {
	return strings.Join(segments, "/")
}

// splitDocPath returns the parent collection path and id of a document path.
func splitDocPath(path string) (collection, id string, err error) {
	parts := strings.Split(path, "/")
	if len(parts) < 2 || len(parts)%2 != 0 || hasEmpty(parts) {
		return "", "", fmt.Errorf("%w: %q is not a document path", ErrInvalidPath, path)
	}
	return strings.Join(parts[:len(parts)-1], "/"), parts[len(parts)-1], nil
}

func validateCollection(collection string) error {
	parts := strings.Split(collection, "/")
	if len(parts)%2 != 1 || hasEmpty(parts) {
		return fmt.Errorf("%w: %q is not a collection path", ErrInvalidPath, collection)
	}
	return nil
}

func hasEmpty(parts []string) bool {
	for _, p := range parts {
		if p == "" {
			return true
		}
	}
	return false
}

// ToData converts a JSON-serialisable value into document data.
func ToData(v any) (map[string]any, error) {
	b, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("marshaling document data: %w", err)
	}
	var out map[string]any
	if err := json.Unmarshal(b, &out); err != nil {
		return nil, fmt.Errorf("unmarshaling document data: %w", err)
	}
	return out, nil
}

func mergeData(dst, src map[string]any) map[string]any {
	out := make(map[string]any, len(dst)+len(src))
	for k, v := range dst {
		out[k] = v
	}
	for k, v := range src {
		out[k] = v
	}
	return out
}
