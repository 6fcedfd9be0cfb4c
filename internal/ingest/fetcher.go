package ingest

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"

	"golang.org/x/sync/errgroup"

	"github.com/neexbeast/parkwait/internal/themeparks"
)

// ErrDestinationNotFound is returned when no upstream destination carries the configured resort name.
var ErrDestinationNotFound = errors.New("destination not found")

// maxParallelParks bounds concurrent live-data requests.
const maxParallelParks = 4

// LiveSource is the part of the upstream client the fetcher uses.
// *themeparks.Client satisfies it.
type LiveSource interface {
	GetDestinations(ctx context.Context) (*themeparks.DestinationsResponse, error)
	GetEntityLiveData(ctx context.Context, entityID string) (*themeparks.LiveDataResponse, error)
}

// Attraction is the normalised live record of one ride.
type Attraction struct {
	ID     string          `json:"id"`
	Name   string          `json:"name"`
	Status string          `json:"status"`
	Queue  json.RawMessage `json:"queue,omitempty"`
}

// ParkAttractions groups the attractions of one park.
type ParkAttractions struct {
	ParkID      string       `json:"parkId"`
	ParkName    string       `json:"parkName"`
	Attractions []Attraction `json:"attractions"`
}

// Fetcher collects live attraction data for every park of one resort.
type Fetcher struct {
	source     LiveSource
	resortName string
	log        *slog.Logger
}

func NewFetcher(source LiveSource, resortName string, log *slog.Logger) *Fetcher {
	return &Fetcher{source: source, resortName: resortName, log: log}
}

// FetchResort resolves the resort by exact name and fetches each park's live
// feed in parallel. A park whose feed fails is returned with no attractions;
// only a missing destination or a failed destination listing fails the call.
// Parks are returned in destination order.
func (f *Fetcher) FetchResort(ctx context.Context) ([]ParkAttractions, error) {
	resp, err := f.source.GetDestinations(ctx)
	if err != nil {
		return nil, fmt.Errorf("listing destinations: %w", err)
	}

	var dest *themeparks.Destination
	for i := range resp.Destinations {
		if resp.Destinations[i].Name == f.resortName {
			dest = &resp.Destinations[i]
			break
		}
	}
	if dest == nil {
		return nil, fmt.Errorf("%w: %q", ErrDestinationNotFound, f.resortName)
	}

	results := make([]ParkAttractions, len(dest.Parks))

	var g errgroup.Group
	g.SetLimit(maxParallelParks)

	for i, park := range dest.Parks {
		i, park := i, park
		results[i] = ParkAttractions{ParkID: park.ID, ParkName: park.Name, Attractions: []Attraction{}}

		g.Go(func() error {
			defer func() {
				if r := recover(); r != nil {
					f.log.Error("live data fetch panicked", "park", park.Name, "recover", r)
				}
			}()

			attractions, fetchErr := f.fetchPark(ctx, park.ID)
			if fetchErr != nil {
				f.log.Warn("live data fetch failed", "park", park.Name, "park_id", park.ID, "err", fetchErr)
				return nil
			}
			results[i].Attractions = attractions
			return nil
		})
	}

	_ = g.Wait()

	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("fetching %s: %w", f.resortName, err)
	}

	return results, nil
}

func (f *Fetcher) fetchPark(ctx context.Context, parkID string) ([]Attraction, error) {
	live, err := f.source.GetEntityLiveData(ctx, parkID)
	if err != nil {
		return nil, err
	}

	attractions := make([]Attraction, 0, len(live.LiveData))
	for _, e := range live.LiveData {
		if e.EntityType != themeparks.EntityAttraction {
			continue
		}
		attractions = append(attractions, Attraction{
			ID:     e.ID,
			Name:   e.Name,
			Status: string(e.Status),
			Queue:  e.Queue,
		})
	}
	return attractions, nil
}

// CountOperating counts attractions whose status is OPERATING across parks.
func CountOperating(parks []ParkAttractions) int {
	n := 0
	for _, p := range parks {
		for _, a := range p.Attractions {
			if a.Status == string(themeparks.StatusOperating) {
				n++
			}
		}
	}
	return n
}
