package usage

import (
	"context"
	"time"
)

// Record is one finished request's usage accounting entry.
type Record struct {
	// ID is the record's unique identifier.
	ID string `json:"id"`

	// Principal is the client identity the request was attributed to.
	// Empty when client auth is disabled.
	Principal string `json:"principal,omitempty"`

	// Model is the model name the client asked for.
	Model string `json:"model"`

	// StatusCode is the HTTP status the request terminated with.
	StatusCode int `json:"status_code"`

	// Latency is how long the request ran, from dispatch to terminal event.
	Latency time.Duration `json:"latency_ms"`

	// CreatedAt is when the record was written.
	CreatedAt time.Time `json:"created_at"`
}

// Filter narrows Query and Count results. Zero-value fields match everything.
type Filter struct {
	// Principal restricts results to one client identity.
	Principal string

	// Model restricts results to one model.
	Model string

	// Since restricts results to records created at or after this time.
	Since time.Time

	// Limit caps the number of returned records. Zero means the store's
	// default limit.
	Limit int
}

// Summary aggregates usage over a query window.
type Summary struct {
	// Requests is the total number of records matched.
	Requests int64 `json:"requests"`

	// Errors is the number of records with a non-2xx status.
	Errors int64 `json:"errors"`

	// ByModel counts requests per model.
	ByModel map[string]int64 `json:"by_model"`
}

// Store is the persistence interface for usage records.
type Store interface {
	// Insert writes one record.
	Insert(ctx context.Context, rec *Record) error

	// Query returns matching records, newest first.
	Query(ctx context.Context, f Filter) ([]*Record, error)

	// Count returns the number of matching records.
	Count(ctx context.Context, f Filter) (int64, error)

	// Summarize aggregates matching records.
	Summarize(ctx context.Context, f Filter) (*Summary, error)

	// DeleteBefore removes records created before the cutoff and returns
	// how many were deleted.
	DeleteBefore(ctx context.Context, cutoff time.Time) (int64, error)

	// Close releases the store's resources.
	Close() error
}
