package stats

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"
)

// SQLStore implements Recorder and Reader on postgres or sqlite.
type SQLStore struct {
	db  *sqlx.DB
	now func() time.Time
}

// NewSQLStore wraps an open, migrated database.
func NewSQLStore(db *sqlx.DB) *SQLStore {
	return &SQLStore{db: db, now: time.Now}
}

// RecordRequest inserts a request row and returns its id.
func (s *SQLStore) RecordRequest(ctx context.Context, userID, username, question string, category *string) (int64, error) {
	query := s.db.Rebind(`INSERT INTO user_requests (user_id, username, question, category, timestamp)
		VALUES (?, ?, ?, ?, ?) RETURNING id`)

	var cat sql.NullString
	if category != nil {
		cat = sql.NullString{String: *category, Valid: true}
	}
	var id int64
	if err := s.db.QueryRowxContext(ctx, query, userID, username, question, cat, s.now().UnixMilli()).Scan(&id); err != nil {
		return 0, fmt.Errorf("stats: record request: %w", err)
	}
	return id, nil
}

// UpdateRequestCategory labels a recorded request.
func (s *SQLStore) UpdateRequestCategory(ctx context.Context, requestID int64, category string) error {
	query := s.db.Rebind(`UPDATE user_requests SET category = ? WHERE id = ?`)
	if _, err := s.db.ExecContext(ctx, query, category, requestID); err != nil {
		return fmt.Errorf("stats: update category of request %d: %w", requestID, err)
	}
	return nil
}

// RecordResponse inserts the reply sent for a request.
func (s *SQLStore) RecordResponse(ctx context.Context, requestID int64, text, category string, hasButtons bool) error {
	query := s.db.Rebind(`INSERT INTO bot_responses (request_id, response_text, category, has_buttons, timestamp)
		VALUES (?, ?, ?, ?, ?)`)
	if _, err := s.db.ExecContext(ctx, query, requestID, text, category, hasButtons, s.now().UnixMilli()); err != nil {
		return fmt.Errorf("stats: record response of request %d: %w", requestID, err)
	}
	return nil
}

type recentRow struct {
	Username  string         `db:"username"`
	Question  string         `db:"question"`
	Category  sql.NullString `db:"category"`
	Timestamp int64          `db:"timestamp"`
}

// Statistics returns totals, per-category counts and the recentLimit newest requests.
func (s *SQLStore) Statistics(ctx context.Context, recentLimit int) (Summary, error) {
	if recentLimit <= 0 {
		recentLimit = 10
	}
	sum := Summary{Categories: []CategoryCount{}, Recent: []RecentRequest{}}

	if err := s.db.GetContext(ctx, &sum.TotalRequests, `SELECT COUNT(*) FROM user_requests`); err != nil {
		return Summary{}, fmt.Errorf("stats: count requests: %w", err)
	}
	if err := s.db.GetContext(ctx, &sum.UniqueUsers, `SELECT COUNT(DISTINCT user_id) FROM user_requests`); err != nil {
		return Summary{}, fmt.Errorf("stats: count users: %w", err)
	}
	if err := s.db.SelectContext(ctx, &sum.Categories, `SELECT category, COUNT(*) AS count
		FROM user_requests
		WHERE category IS NOT NULL
		GROUP BY category
		ORDER BY count DESC, category ASC`); err != nil {
		return Summary{}, fmt.Errorf("stats: category counts: %w", err)
	}

	var rows []recentRow
	query := s.db.Rebind(`SELECT username, question, category, timestamp
		FROM user_requests
		ORDER BY id DESC
		LIMIT ?`)
	if err := s.db.SelectContext(ctx, &rows, query, recentLimit); err != nil {
		return Summary{}, fmt.Errorf("stats: recent requests: %w", err)
	}
	for _, r := range rows {
		sum.Recent = append(sum.Recent, RecentRequest{
			Username:  r.Username,
			Question:  r.Question,
			Category:  r.Category.String,
			Timestamp: time.UnixMilli(r.Timestamp).UTC(),
		})
	}
	return sum, nil
}
