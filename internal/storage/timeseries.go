package storage

import (
	"context"
	"fmt"
	"time"
)

// Collection names of the park hierarchy.
const (
	ParksCollection     = "parks"
	ridesCollection     = "rides"
	waitTimesCollection = "wait_times"
)

// TimestampLayout is millisecond-precision UTC ISO-8601. Fixed width keeps
// lexicographic order equal to chronological order.
const TimestampLayout = "2006-01-02T15:04:05.000Z"

// WaitTimeEntry is one immutable sample in a ride's series.
type WaitTimeEntry struct {
	WaitMinutes *int
	Status      *string
	Timestamp   time.Time
	Source      string
}

func ParkPath(parkID string) string { return DocPath(ParksCollection, parkID) }

func RidesCollection(parkID string) string {
	return DocPath(ParksCollection, parkID, ridesCollection)
}

func RidePath(parkID, rideID string) string {
	return DocPath(ParksCollection, parkID, ridesCollection, rideID)
}

func WaitTimesCollection(parkID, rideID string) string {
	return DocPath(ParksCollection, parkID, ridesCollection, rideID, waitTimesCollection)
}

// TimeSeries writes parks, rides and their wait-time samples.
type TimeSeries struct {
	docs DocumentStore
}

func NewTimeSeries(docs DocumentStore) *TimeSeries {
	return &TimeSeries{docs: docs}
}

// UpsertPark ensures parks/{parkID} exists, merging name when non-empty.
func (t *TimeSeries) UpsertPark(ctx context.Context, parkID, name string) error {
	if err := t.docs.Set(ctx, ParkPath(parkID), withName(parkID, name), true); err != nil {
		return fmt.Errorf("upserting park %s: %w", parkID, err)
	}
	return nil
}

// UpsertRide ensures parks/{parkID}/rides/{rideID} exists, merging name when non-empty.
func (t *TimeSeries) UpsertRide(ctx context.Context, parkID, rideID, name string) error {
	if err := t.docs.Set(ctx, RidePath(parkID, rideID), withName(rideID, name), true); err != nil {
		return fmt.Errorf("upserting ride %s/%s: %w", parkID, rideID, err)
	}
	return nil
}

// AddWaitTime appends e to the ride's series. Parent park and ride
// documents are upserted first so no sample is ever orphaned.
func (t *TimeSeries) AddWaitTime(ctx context.Context, parkID, rideID string, e WaitTimeEntry) (string, error) {
	if err := t.UpsertPark(ctx, parkID, ""); err != nil {
		return "", err
	}
	if err := t.UpsertRide(ctx, parkID, rideID, ""); err != nil {
		return "", err
	}

	data := map[string]any{
		"wait_minutes": nil,
		"status":       nil,
		"timestamp":    e.Timestamp.UTC().Format(TimestampLayout),
		"source":       e.Source,
	}
	if e.WaitMinutes != nil {
		data["wait_minutes"] = *e.WaitMinutes
	}
	if e.Status != nil {
		data["status"] = *e.Status
	}

	id, err := t.docs.Add(ctx, WaitTimesCollection(parkID, rideID), data)
	if err != nil {
		return "", fmt.Errorf("adding wait time for %s/%s: %w", parkID, rideID, err)
	}
	return id, nil
}

// AddSnapshot stores the raw fetch result for audit.
func (t *TimeSeries) AddSnapshot(ctx context.Context, collection string, payload any, fetchedAt time.Time) (string, error) {
	wrapped, err := ToData(map[string]any{
		"data":      payload,
		"fetchedAt": fetchedAt.UTC().Format(TimestampLayout),
	})
	if err != nil {
		return "", err
	}

	id, err := t.docs.Add(ctx, collection, wrapped)
	if err != nil {
		return "", fmt.Errorf("adding snapshot to %s: %w", collection, err)
	}
	return id, nil
}

func withName(id, name string) map[string]any {
	data := map[string]any{"id": id}
	if name != "" {
		data["name"] = name
	}
	return data
}
