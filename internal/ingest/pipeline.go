package ingest

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/neexbeast/parkwait/internal/identity"
	"github.com/neexbeast/parkwait/internal/storage"
)

const (
	unknownPark = "unknown-park"
	unknownRide = "unknown-ride"
)

// PersistenceError reports a park whose write phase failed. The run continues
// with the remaining parks.
type PersistenceError struct {
	Park string
	Err  error
}

func (e *PersistenceError) Error() string {
	return fmt.Sprintf("persisting park %q: %v", e.Park, e.Err)
}

func (e *PersistenceError) Unwrap() error { return e.Err }

// ResortFetcher produces the per-park attraction lists of one run.
type ResortFetcher interface {
	FetchResort(ctx context.Context) ([]ParkAttractions, error)
}

// IDResolver maps names to stable ids within a scope.
type IDResolver interface {
	ResolveOrCreate(ctx context.Context, scope identity.Scope, name string) (string, error)
}

// Writer is the time-series sink. *storage.TimeSeries satisfies it.
type Writer interface {
	AddSnapshot(ctx context.Context, collection string, payload any, fetchedAt time.Time) (string, error)
	UpsertRide(ctx context.Context, parkID, rideID, name string) error
	AddWaitTime(ctx context.Context, parkID, rideID string, e storage.WaitTimeEntry) (string, error)
}

// Options tunes the persistence gate and the written metadata.
type Options struct {
	// OperatingThreshold is the minimum number of OPERATING attractions for a run to be persisted.
	OperatingThreshold int
	SnapshotCollection string
	SourceTag          string
}

// Result describes one pipeline run.
type Result struct {
	Parks          []ParkAttractions `json:"parks"`
	OperatingCount int               `json:"operatingCount"`
	// LowSignal is set when OperatingCount is below the threshold; nothing was written.
	LowSignal      bool                `json:"lowSignal"`
	EntriesWritten int                 `json:"entriesWritten"`
	ParkErrors     []*PersistenceError `json:"-"`
}

// Pipeline performs fetch, gate and persist for one run.
type Pipeline struct {
	fetcher  ResortFetcher
	resolver IDResolver
	writer   Writer
	opts     Options
	now      func() time.Time
	log      *slog.Logger
}

func NewPipeline(fetcher ResortFetcher, resolver IDResolver, writer Writer, opts Options, log *slog.Logger) *Pipeline {
	return &Pipeline{
		fetcher:  fetcher,
		resolver: resolver,
		writer:   writer,
		opts:     opts,
		now:      func() time.Time { return time.Now().UTC() },
		log:      log,
	}
}

// RunOnce fetches the resort, counts operating attractions and, unless the
// run is low-signal, writes an audit snapshot followed by one wait-time
// entry per attraction. Errors returned are fatal to the run; per-park
// write failures are reported in Result.ParkErrors instead.
func (p *Pipeline) RunOnce(ctx context.Context) (*Result, error) {
	parks, err := p.fetcher.FetchResort(ctx)
	if err != nil {
		return nil, err
	}

	res := &Result{Parks: parks, OperatingCount: CountOperating(parks)}

	if res.OperatingCount < p.opts.OperatingThreshold {
		res.LowSignal = true
		p.log.Info("skipping persistence: too few attractions operating",
			"operating", res.OperatingCount, "threshold", p.opts.OperatingThreshold)
		return res, nil
	}

	if _, err := p.writer.AddSnapshot(ctx, p.opts.SnapshotCollection, parks, p.now()); err != nil {
		return nil, fmt.Errorf("writing audit snapshot: %w", err)
	}

	for _, park := range parks {
		n, err := p.persistPark(ctx, park)
		res.EntriesWritten += n
		if err != nil {
			perr := &PersistenceError{Park: firstNonEmpty(park.ParkName, park.ParkID, unknownPark), Err: err}
			res.ParkErrors = append(res.ParkErrors, perr)
			p.log.Error("failed to process park", "park", perr.Park, "err", err)
		}
	}

	p.log.Info("saved wait times",
		"operating", res.OperatingCount, "entries", res.EntriesWritten, "failed_parks", len(res.ParkErrors))
	return res, nil
}

// persistPark writes every attraction of park and returns how many entries
// were written before the first failure.
func (p *Pipeline) persistPark(ctx context.Context, park ParkAttractions) (int, error) {
	parkName := firstNonEmpty(park.ParkName, park.ParkID, unknownPark)
	parkID, err := p.resolver.ResolveOrCreate(ctx, identity.Global, parkName)
	if err != nil {
		return 0, fmt.Errorf("resolving park id: %w", err)
	}

	written := 0
	for _, a := range park.Attractions {
		rideName := firstNonEmpty(a.Name, a.ID, unknownRide)
		rideID, err := p.resolver.ResolveOrCreate(ctx, identity.Rides(parkID), rideName)
		if err != nil {
			return written, fmt.Errorf("resolving ride id for %q: %w", rideName, err)
		}

		if err := p.writer.UpsertRide(ctx, parkID, rideID, rideName); err != nil {
			return written, err
		}

		entry := storage.WaitTimeEntry{
			WaitMinutes: ExtractWait(a.Queue),
			Timestamp:   p.now(),
			Source:      p.opts.SourceTag,
		}
		if a.Status != "" {
			status := a.Status
			entry.Status = &status
		}

		if _, err := p.writer.AddWaitTime(ctx, parkID, rideID, entry); err != nil {
			return written, err
		}
		written++
	}

	return written, nil
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}
