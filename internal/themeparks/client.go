package themeparks

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"
)

// DefaultBaseURL is the public ThemeParks.wiki API.
const DefaultBaseURL = "https://api.themeparks.wiki/v1"

const (
	defaultTimeout = 30 * time.Second
	maxErrorBody   = 4 << 10
)

// ErrMissingEntityID is returned when an entity endpoint is called without an id.
var ErrMissingEntityID = errors.New("entity id is required")

// UpstreamFetchError is returned for any non-2xx upstream response.
type UpstreamFetchError struct {
	URL        string
	StatusCode int
	Body       string
}

func (e *UpstreamFetchError) Error() string {
	return fmt.Sprintf("GET %s returned status %d: %s", e.URL, e.StatusCode, e.Body)
}

// Client talks to the ThemeParks REST API.
type Client struct {
	baseURL string
	apiKey  string
	client  *http.Client
}

// NewClient constructs a Client. An empty baseURL selects DefaultBaseURL and
// a zero timeout selects 30 seconds. apiKey, when set, is sent as a bearer token.
func NewClient(baseURL, apiKey string, timeout time.Duration) *Client {
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		apiKey:  apiKey,
		client:  &http.Client{Timeout: timeout},
	}
}

// BaseURL returns the normalised base URL.
func (c *Client) BaseURL() string { return c.baseURL }

// doGet performs a GET request against path and decodes the JSON response into dst.
func (c *Client) doGet(ctx context.Context, path string, dst any) error {
	rawURL := c.baseURL + path

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return fmt.Errorf("creating request for %s: %w", rawURL, err)
	}
	req.Header.Set("Accept", "application/json")
	if c.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return fmt.Errorf("GET %s: %w", rawURL, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		return &UpstreamFetchError{
			URL:        rawURL,
			StatusCode: resp.StatusCode,
			Body:       strings.TrimSpace(string(body)),
		}
	}

	if err := json.NewDecoder(resp.Body).Decode(dst); err != nil {
		return fmt.Errorf("decoding response from %s: %w", rawURL, err)
	}

	return nil
}

func entityPath(entityID string, suffix ...string) (string, error) {
	if entityID == "" {
		return "", ErrMissingEntityID
	}
	p := "/entity/" + url.PathEscape(entityID)
	for _, s := range suffix {
		p += "/" + s
	}
	return p, nil
}

// GetDestinations lists every destination known upstream.
func (c *Client) GetDestinations(ctx context.Context) (*DestinationsResponse, error) {
	var out DestinationsResponse
	if err := c.doGet(ctx, "/destinations", &out); err != nil {
		return nil, fmt.Errorf("fetching destinations: %w", err)
	}
	return &out, nil
}

// GetEntity retrieves the metadata document for a single entity.
func (c *Client) GetEntity(ctx context.Context, entityID string) (*Entity, error) {
	p, err := entityPath(entityID)
	if err != nil {
		return nil, err
	}
	var out Entity
	if err := c.doGet(ctx, p, &out); err != nil {
		return nil, fmt.Errorf("fetching entity %s: %w", entityID, err)
	}
	return &out, nil
}

// GetEntityChildren lists the direct children of an entity.
func (c *Client) GetEntityChildren(ctx context.Context, entityID string) (*EntityChildrenResponse, error) {
	p, err := entityPath(entityID, "children")
	if err != nil {
		return nil, err
	}
	var out EntityChildrenResponse
	if err := c.doGet(ctx, p, &out); err != nil {
		return nil, fmt.Errorf("fetching children of %s: %w", entityID, err)
	}
	return &out, nil
}

// GetEntityLiveData retrieves the live feed (status, queues) under an entity.
func (c *Client) GetEntityLiveData(ctx context.Context, entityID string) (*LiveDataResponse, error) {
	p, err := entityPath(entityID, "live")
	if err != nil {
		return nil, err
	}
	var out LiveDataResponse
	if err := c.doGet(ctx, p, &out); err != nil {
		return nil, fmt.Errorf("fetching live data for %s: %w", entityID, err)
	}
	return &out, nil
}

// GetEntityScheduleUpcoming retrieves the upcoming operating schedule.
func (c *Client) GetEntityScheduleUpcoming(ctx context.Context, entityID string) (*ScheduleResponse, error) {
	p, err := entityPath(entityID, "schedule")
	if err != nil {
		return nil, err
	}
	var out ScheduleResponse
	if err := c.doGet(ctx, p, &out); err != nil {
		return nil, fmt.Errorf("fetching schedule for %s: %w", entityID, err)
	}
	return &out, nil
}

// GetEntityScheduleMonth retrieves the schedule for a calendar month.
func (c *Client) GetEntityScheduleMonth(ctx context.Context, entityID string, year int, month time.Month) (*ScheduleResponse, error) {
	p, err := entityPath(entityID, "schedule", fmt.Sprintf("%d", year), fmt.Sprintf("%02d", int(month)))
	if err != nil {
		return nil, err
	}
	var out ScheduleResponse
	if err := c.doGet(ctx, p, &out); err != nil {
		return nil, fmt.Errorf("fetching %d-%02d schedule for %s: %w", year, int(month), entityID, err)
	}
	return &out, nil
}
