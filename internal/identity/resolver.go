// Package identity maps upstream display names onto stable document ids.
package identity

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/neexbeast/parkwait/internal/storage"
)

// DefaultMaxAttempts bounds the slug-suffix search.
const DefaultMaxAttempts = 100

var (
	// ErrInvalidArgument is returned for an empty name.
	ErrInvalidArgument = errors.New("invalid argument")
	// ErrResolutionExhausted is returned when every candidate id up to the
	// attempt bound is taken by a differently named document.
	ErrResolutionExhausted = errors.New("identity resolution exhausted")
)

// Scope selects the collection names are resolved in: parks globally, or
// the rides of one park.
type Scope struct {
	ParkID string
}

// Global is the scope of parks.
var Global = Scope{}

// Rides returns the scope of rides under parkID.
func Rides(parkID string) Scope { return Scope{ParkID: parkID} }

func (s Scope) collection() string {
	if s.ParkID == "" {
		return storage.ParksCollection
	}
	return storage.RidesCollection(s.ParkID)
}

func (s Scope) String() string {
	if s.ParkID == "" {
		return "global"
	}
	return "park:" + s.ParkID
}

// Store is the subset of storage.DocumentStore the resolver needs.
type Store interface {
	Get(ctx context.Context, path string) (*storage.Document, error)
	FindByField(ctx context.Context, collection, field string, value any, limit int) ([]*storage.Document, error)
	Create(ctx context.Context, path string, data map[string]any) (bool, error)
}

// Cache short-circuits repeated resolutions. Misses return "".
type Cache interface {
	Get(ctx context.Context, scope, name string) (string, error)
	Set(ctx context.Context, scope, name, id string) error
}

// Resolver resolves names to ids, creating `{id, name}` documents on first sighting.
type Resolver struct {
	store       Store
	cache       Cache
	maxAttempts int
	log         *slog.Logger
}

type Option func(*Resolver)

// WithCache puts c in front of the store lookups.
func WithCache(c Cache) Option {
	return func(r *Resolver) { r.cache = c }
}

// WithMaxAttempts sets the number of candidate ids tried (base slug included).
func WithMaxAttempts(n int) Option {
	return func(r *Resolver) {
		if n > 0 {
			r.maxAttempts = n
		}
	}
}

func NewResolver(store Store, log *slog.Logger, opts ...Option) *Resolver {
	r := &Resolver{store: store, maxAttempts: DefaultMaxAttempts, log: log}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// ResolveOrCreate returns the id of the document named name in scope.
//
// An exact name match wins. Otherwise candidates slug, slug-1, slug-2, ...
// are tried: a free candidate is created, a candidate already holding the
// same name is reused, and a candidate holding another name is skipped.
// Concurrent resolvers of the same new name can both miss the name lookup;
// the create-if-absent write lets exactly one of them claim the slug and the
// other reuses it on re-read. Two resolvers whose writes interleave with a
// third name can still end up with different suffixes.
func (r *Resolver) ResolveOrCreate(ctx context.Context, scope Scope, name string) (string, error) {
	if name == "" {
		return "", fmt.Errorf("%w: name is required (scope %s)", ErrInvalidArgument, scope)
	}

	if id := r.cached(ctx, scope, name); id != "" {
		return id, nil
	}

	id, err := r.resolve(ctx, scope, name)
	if err != nil {
		return "", err
	}

	if r.cache != nil {
		if err := r.cache.Set(ctx, scope.String(), name, id); err != nil {
			r.log.Warn("identity cache set failed", "scope", scope.String(), "name", name, "err", err)
		}
	}
	return id, nil
}

func (r *Resolver) resolve(ctx context.Context, scope Scope, name string) (string, error) {
	collection := scope.collection()

	existing, err := r.store.FindByField(ctx, collection, "name", name, 1)
	if err != nil {
		return "", fmt.Errorf("looking up %q in %s: %w", name, collection, err)
	}
	if len(existing) > 0 {
		return existing[0].ID, nil
	}

	base := Slugify(name)
	if base == "" {
		base = fallbackSlug
	}

	for attempt := 0; attempt < r.maxAttempts; attempt++ {
		candidate := base
		if attempt > 0 {
			candidate = fmt.Sprintf("%s-%d", base, attempt)
		}
		path := storage.DocPath(collection, candidate)

		doc, err := r.store.Get(ctx, path)
		if err != nil {
			return "", fmt.Errorf("reading candidate %s: %w", path, err)
		}

		if doc == nil {
			created, err := r.store.Create(ctx, path, map[string]any{"id": candidate, "name": name})
			if err != nil {
				return "", fmt.Errorf("creating %s: %w", path, err)
			}
			if created {
				r.log.Info("identity created", "scope", scope.String(), "name", name, "id", candidate)
				return candidate, nil
			}

			// Another writer claimed the candidate between our read and write.
			doc, err = r.store.Get(ctx, path)
			if err != nil {
				return "", fmt.Errorf("re-reading candidate %s: %w", path, err)
			}
			if doc == nil {
				continue
			}
		}

		if stored, _ := doc.String("name"); stored == name {
			return candidate, nil
		}
	}

	return "", fmt.Errorf("%w: %q in %s after %d candidates", ErrResolutionExhausted, name, collection, r.maxAttempts)
}

func (r *Resolver) cached(ctx context.Context, scope Scope, name string) string {
	if r.cache == nil {
		return ""
	}
	id, err := r.cache.Get(ctx, scope.String(), name)
	if err != nil {
		r.log.Warn("identity cache get failed", "scope", scope.String(), "name", name, "err", err)
		return ""
	}
	return id
}
