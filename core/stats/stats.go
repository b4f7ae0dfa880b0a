// Package stats persists request/response pairs and answers aggregate queries.
package stats

import (
	"context"
	"errors"
	"time"
)

// Recorder receives the events of one conversational turn.
type Recorder interface {
	RecordRequest(ctx context.Context, userID, username, question string, category *string) (int64, error)
	UpdateRequestCategory(ctx context.Context, requestID int64, category string) error
	RecordResponse(ctx context.Context, requestID int64, text, category string, hasButtons bool) error
}

// Reader answers the aggregate queries behind the JSON API.
type Reader interface {
	Statistics(ctx context.Context, recentLimit int) (Summary, error)
}

// Store is a Recorder that can also be queried.
type Store interface {
	Recorder
	Reader
}

// CategoryCount is the number of requests labelled with a category.
type CategoryCount struct {
	Category string `db:"category" json:"category"`
	Count    int64  `db:"count" json:"count"`
}

// RecentRequest is one row of the recent requests feed.
type RecentRequest struct {
	Username  string    `json:"username"`
	Question  string    `json:"question"`
	Category  string    `json:"category"`
	Timestamp time.Time `json:"timestamp"`
}

// Summary aggregates the statistics tables.
type Summary struct {
	TotalRequests int64           `json:"total_requests"`
	UniqueUsers   int64           `json:"unique_users"`
	Categories    []CategoryCount `json:"category_stats"`
	Recent        []RecentRequest `json:"recent_requests"`
}

// Nop discards every event; it backs deployments with statistics disabled.
type Nop struct{}

// RecordRequest implements Recorder.
func (Nop) RecordRequest(context.Context, string, string, string, *string) (int64, error) {
	return 0, nil
}

// UpdateRequestCategory implements Recorder.
func (Nop) UpdateRequestCategory(context.Context, int64, string) error { return nil }

// RecordResponse implements Recorder.
func (Nop) RecordResponse(context.Context, int64, string, string, bool) error { return nil }

// Statistics implements Reader with an empty summary.
func (Nop) Statistics(context.Context, int) (Summary, error) {
	return Summary{Categories: []CategoryCount{}, Recent: []RecentRequest{}}, nil
}

// Retryable reports whether a recorder error is worth another attempt.
// Everything but cancellation is treated as transient (locked sqlite file,
// dropped postgres connection).
func Retryable(err error) bool {
	return err != nil && !errors.Is(err, context.Canceled) && !errors.Is(err, context.DeadlineExceeded)
}
