package source

import (
	"context"
	"fmt"
	"time"

	"github.com/huanchen1107/TawinCWA/app/table"
)

// Descriptor is one dataset listing returned by a search.
type Descriptor struct {
	ID            string   `json:"id"`
	Title         string   `json:"title"`
	Description   string   `json:"description"`
	Organization  string   `json:"organization"`
	Tags          []string `json:"tags"`
	Category      string   `json:"category"`
	Source        string   `json:"source"`
	LastModified  string   `json:"last_modified"`
	ResourceCount int      `json:"resource_count"`
	URL           string   `json:"url"`
	// UpdateFrequency is only known for weather datasets.
	UpdateFrequency string `json:"update_frequency,omitempty"`
}

// RawResponse is an upstream payload before parsing.
type RawResponse struct {
	Source    string
	DatasetID string
	Endpoint  string
	// Format is the payload format: "json" or "csv".
	Format    string
	Body      []byte
	FetchedAt time.Time
	Latency   time.Duration
}

type Adapter interface {
	Name() string
	Search(ctx context.Context, query, category string, limit int) ([]Descriptor, error)
	Fetch(ctx context.Context, datasetID string) (*RawResponse, error)
	Parse(raw *RawResponse) (*table.Table, error)
	Categories(ctx context.Context) ([]string, error)
	Ping(ctx context.Context) error
}

// FormatFetcher is implemented by adapters whose datasets are published in
// more than one format.
type FormatFetcher interface {
	// FetchFormat is Fetch with a preferred resource format. An empty format
	// falls back to the configured one.
	FetchFormat(ctx context.Context, datasetID, format string) (*RawResponse, error)
}

// ParseError reports an upstream payload whose shape does not match what the
// adapter expects.
type ParseError struct {
	Source  string
	Dataset string
	Reason  string
	Err     error
}

func (e *ParseError) Error() string {
	msg := fmt.Sprintf("failed to parse %s response", e.Source)
	if e.Dataset != "" {
		msg += fmt.Sprintf(" for %s", e.Dataset)
	}
	msg += ": " + e.Reason
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *ParseError) Unwrap() error {
	return e.Err
}

func parseError(source, dataset string, err error, format string, args ...interface{}) *ParseError {
	return &ParseError{
		Source:  source,
		Dataset: dataset,
		Reason:  fmt.Sprintf(format, args...),
		Err:     err,
	}
}
