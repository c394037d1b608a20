package passages

import (
	"context"
	"errors"
	"testing"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStaticListIsASCII(t *testing.T) {
	require.NotEmpty(t, List)
	for _, p := range List {
		require.NotEmpty(t, p)
		for i := 0; i < len(p); i++ {
			assert.Less(t, p[i], byte(128), "passage %q has non-ASCII byte at %d", p, i)
		}
	}
}

func TestStaticRandomPassage(t *testing.T) {
	s := NewStatic()
	seen := map[string]bool{}
	for i := 0; i < 100; i++ {
		p := s.RandomPassage(context.Background())
		assert.Contains(t, List, p)
		seen[p] = true
	}
	// 100 draws over 10 passages should hit more than one
	assert.Greater(t, len(seen), 1)
}

// --- Store with a fake database ---

type fakeRow struct {
	text string
	err  error
}

func (r fakeRow) Scan(dest ...any) error {
	if r.err != nil {
		return r.err
	}
	*dest[0].(*string) = r.text
	return nil
}

type fakeDB struct {
	row      fakeRow
	queries  int
	execErr  error
	affected int64
}

func (f *fakeDB) QueryRow(ctx context.Context, sql string, args ...any) pgx.Row {
	f.queries++
	return f.row
}

func (f *fakeDB) Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error) {
	if f.execErr != nil {
		return pgconn.CommandTag{}, f.execErr
	}
	if f.affected > 0 {
		return pgconn.NewCommandTag("INSERT 0 1"), nil
	}
	return pgconn.NewCommandTag("INSERT 0 0"), nil
}

func (f *fakeDB) Ping(ctx context.Context) error { return nil }

func TestStoreServesFromDB(t *testing.T) {
	db := &fakeDB{row: fakeRow{text: "a passage from the database."}}
	s := newStore(db)

	got := s.RandomPassage(context.Background())
	assert.Equal(t, "a passage from the database.", got)
	assert.Equal(t, 1, db.queries)
}

func TestStoreFallsBackToStatic(t *testing.T) {
	db := &fakeDB{row: fakeRow{err: errors.New("connection refused")}}
	s := newStore(db)

	got := s.RandomPassage(context.Background())
	assert.Contains(t, List, got)
}

func TestStoreBreakerStopsQueryingDeadDB(t *testing.T) {
	db := &fakeDB{row: fakeRow{err: errors.New("connection refused")}}
	s := newStore(db)

	for i := 0; i < 10; i++ {
		got := s.RandomPassage(context.Background())
		assert.Contains(t, List, got)
	}
	// Breaker trips after 3 consecutive failures; later calls skip the DB.
	assert.Equal(t, 3, db.queries)
}

func TestStoreInsert(t *testing.T) {
	db := &fakeDB{affected: 1}
	s := newStore(db)

	inserted, err := s.Insert(context.Background(), "some text", "https://example.com")
	require.NoError(t, err)
	assert.True(t, inserted)

	db.affected = 0 // duplicate
	inserted, err = s.Insert(context.Background(), "some text", "https://example.com")
	require.NoError(t, err)
	assert.False(t, inserted)
}
