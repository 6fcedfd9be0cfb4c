package themeparks

import (
	"encoding/json"
	"time"
)

// EntityType tags every upstream object.
type EntityType string

const (
	EntityDestination EntityType = "DESTINATION"
	EntityPark        EntityType = "PARK"
	EntityAttraction  EntityType = "ATTRACTION"
	EntityRestaurant  EntityType = "RESTAURANT"
	EntityHotel       EntityType = "HOTEL"
	EntityShow        EntityType = "SHOW"
)

// LiveStatus is the operating status reported in live data.
type LiveStatus string

const (
	StatusOperating     LiveStatus = "OPERATING"
	StatusDown          LiveStatus = "DOWN"
	StatusClosed        LiveStatus = "CLOSED"
	StatusRefurbishment LiveStatus = "REFURBISHMENT"
)

// ParkRef is a park listed under a destination.
type ParkRef struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

// Destination is a top-level resort grouping parks.
type Destination struct {
	ID    string    `json:"id"`
	Name  string    `json:"name"`
	Slug  string    `json:"slug,omitempty"`
	Parks []ParkRef `json:"parks,omitempty"`
}

// DestinationsResponse is the body of GET /destinations.
type DestinationsResponse struct {
	Destinations []Destination `json:"destinations"`
}

// Location is an optional coordinate pair.
type Location struct {
	Latitude  *float64 `json:"latitude,omitempty"`
	Longitude *float64 `json:"longitude,omitempty"`
}

type Tag struct {
	Tag     string          `json:"tag"`
	TagName string          `json:"tagName"`
	ID      string          `json:"id"`
	Value   json.RawMessage `json:"value,omitempty"`
}

// Entity is the body of GET /entity/{id}.
type Entity struct {
	ID            string     `json:"id"`
	Name          string     `json:"name"`
	EntityType    EntityType `json:"entityType"`
	ParentID      string     `json:"parentId,omitempty"`
	DestinationID string     `json:"destinationId,omitempty"`
	Timezone      string     `json:"timezone"`
	Location      *Location  `json:"location,omitempty"`
	Tags          []Tag      `json:"tags,omitempty"`
}

type EntityChild struct {
	ID         string     `json:"id"`
	Name       string     `json:"name"`
	EntityType EntityType `json:"entityType"`
	ExternalID string     `json:"externalId,omitempty"`
	ParentID   string     `json:"parentId,omitempty"`
	Location   *Location  `json:"location,omitempty"`
}

// EntityChildrenResponse is the body of GET /entity/{id}/children.
type EntityChildrenResponse struct {
	ID         string        `json:"id"`
	Name       string        `json:"name"`
	EntityType EntityType    `json:"entityType"`
	Timezone   string        `json:"timezone,omitempty"`
	Children   []EntityChild `json:"children"`
}

// LiveData is one entry of an entity's live feed. Queue is kept raw because
// its shape differs between attractions and feed versions.
type LiveData struct {
	ID          string          `json:"id"`
	Name        string          `json:"name"`
	EntityType  EntityType      `json:"entityType"`
	Status      LiveStatus      `json:"status"`
	LastUpdated time.Time       `json:"lastUpdated"`
	Queue       json.RawMessage `json:"queue,omitempty"`
}

// LiveDataResponse is the body of GET /entity/{id}/live.
type LiveDataResponse struct {
	ID         string     `json:"id"`
	Name       string     `json:"name"`
	EntityType EntityType `json:"entityType"`
	Timezone   string     `json:"timezone,omitempty"`
	LiveData   []LiveData `json:"liveData"`
}

type ScheduleEntry struct {
	Date        string          `json:"date"`
	OpeningTime time.Time       `json:"openingTime"`
	ClosingTime time.Time       `json:"closingTime"`
	Type        string          `json:"type"`
	Purchases   json.RawMessage `json:"purchases,omitempty"`
}

// ScheduleResponse is the body of the schedule endpoints. Destinations
// carry one nested schedule per park.
type ScheduleResponse struct {
	ID         string             `json:"id"`
	Name       string             `json:"name"`
	EntityType EntityType         `json:"entityType"`
	Timezone   string             `json:"timezone,omitempty"`
	Schedule   []ScheduleEntry    `json:"schedule"`
	Parks      []ScheduleResponse `json:"parks,omitempty"`
}
