package stats

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/m3rciful/synobot/core/config"
	"github.com/m3rciful/synobot/core/database"
)

func newTestStore(t *testing.T) (*SQLStore, *sqlx.DB) {
	t.Helper()
	cfg := config.DatabaseConfig{
		Driver: config.DriverSQLite,
		Path:   filepath.Join(t.TempDir(), "stats.db"),
	}
	ctx := context.Background()
	require.NoError(t, database.RunMigrations(ctx, cfg))
	db, err := database.Connect(ctx, cfg)
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })

	s := NewSQLStore(db)
	base := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	tick := 0
	s.now = func() time.Time {
		tick++
		return base.Add(time.Duration(tick) * time.Second)
	}
	return s, db
}

func TestSQLStoreTurnLifecycle(t *testing.T) {
	s, db := newTestStore(t)
	ctx := context.Background()

	id, err := s.RecordRequest(ctx, "42", "alice", "1", nil)
	require.NoError(t, err)
	require.Positive(t, id)
	require.NoError(t, s.UpdateRequestCategory(ctx, id, "dsm"))
	require.NoError(t, s.RecordResponse(ctx, id, "menu text", "dsm", false))

	var category string
	require.NoError(t, db.GetContext(ctx, &category, db.Rebind(`SELECT category FROM user_requests WHERE id = ?`), id))
	assert.Equal(t, "dsm", category)

	var responses int
	require.NoError(t, db.GetContext(ctx, &responses, db.Rebind(`SELECT COUNT(*) FROM bot_responses WHERE request_id = ?`), id))
	assert.Equal(t, 1, responses)
}

func TestSQLStoreStatistics(t *testing.T) {
	s, _ := newTestStore(t)
	ctx := context.Background()

	record := func(user, question, category string) {
		id, err := s.RecordRequest(ctx, user, user+"-name", question, nil)
		require.NoError(t, err)
		if category != "" {
			require.NoError(t, s.UpdateRequestCategory(ctx, id, category))
		}
		require.NoError(t, s.RecordResponse(ctx, id, "reply", category, false))
	}
	record("1", "старт", "main_menu")
	record("1", "1", "dsm")
	record("2", "1", "dsm")
	record("2", "99", "") // error turns stay unlabelled
	record("3", "2", "backup")

	sum, err := s.Statistics(ctx, 3)
	require.NoError(t, err)
	assert.Equal(t, int64(5), sum.TotalRequests)
	assert.Equal(t, int64(3), sum.UniqueUsers)
	assert.Equal(t, []CategoryCount{
		{Category: "dsm", Count: 2},
		{Category: "backup", Count: 1},
		{Category: "main_menu", Count: 1},
	}, sum.Categories)

	require.Len(t, sum.Recent, 3)
	assert.Equal(t, "2", sum.Recent[0].Question)
	assert.Equal(t, "backup", sum.Recent[0].Category)
	assert.Equal(t, "99", sum.Recent[1].Question)
	assert.Empty(t, sum.Recent[1].Category)
	assert.True(t, sum.Recent[0].Timestamp.After(sum.Recent[2].Timestamp))
}

func TestSQLStoreEmptyStatistics(t *testing.T) {
	s, _ := newTestStore(t)
	sum, err := s.Statistics(context.Background(), 0)
	require.NoError(t, err)
	assert.Zero(t, sum.TotalRequests)
	assert.NotNil(t, sum.Categories)
	assert.NotNil(t, sum.Recent)
}

func TestNopRecorder(t *testing.T) {
	var r Recorder = Nop{}
	id, err := r.RecordRequest(context.Background(), "u", "n", "q", nil)
	require.NoError(t, err)
	assert.Zero(t, id)
	sum, err := Nop{}.Statistics(context.Background(), 10)
	require.NoError(t, err)
	assert.Empty(t, sum.Recent)
}
