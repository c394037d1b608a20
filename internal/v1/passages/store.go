package passages

import (
	"context"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/sony/gobreaker"
	"go.uber.org/zap"

	"rracer/server/internal/v1/logging"
	"rracer/server/internal/v1/metrics"
)

// fetchTimeout bounds a single store lookup. A slow database must not delay a
// race start; past the deadline we fall back to the static list.
const fetchTimeout = 250 * time.Millisecond

const schema = `
CREATE TABLE IF NOT EXISTS passages (
	id SERIAL PRIMARY KEY,
	text TEXT UNIQUE NOT NULL,
	source_url TEXT,
	created_at TIMESTAMP WITH TIME ZONE DEFAULT NOW()
)`

// querier is the slice of pgxpool.Pool the store needs; tests substitute a fake.
type querier interface {
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Ping(ctx context.Context) error
}

// Store serves passages from Postgres, falling back to the static list when
// the database is empty, slow, or down. Lookups run behind a circuit breaker
// so a dead database stops costing the fetch timeout on every race start.
type Store struct {
	db       querier
	pool     *pgxpool.Pool // nil in tests
	breaker  *gobreaker.CircuitBreaker
	fallback Provider
}

// NewStore connects to Postgres, ensures the schema exists, and returns a
// store-backed Provider. A schema failure is fatal to startup.
func NewStore(ctx context.Context, databaseURL string) (*Store, error) {
	pool, err := pgxpool.New(ctx, databaseURL)
	if err != nil {
		return nil, err
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, err
	}
	if _, err := pool.Exec(ctx, schema); err != nil {
		pool.Close()
		return nil, err
	}
	s := newStore(pool)
	s.pool = pool
	return s, nil
}

func newStore(db querier) *Store {
	return &Store{
		db:       db,
		fallback: NewStatic(),
		breaker: gobreaker.NewCircuitBreaker(gobreaker.Settings{
			Name:    "passage-store",
			Timeout: 30 * time.Second,
			ReadyToTrip: func(counts gobreaker.Counts) bool {
				return counts.ConsecutiveFailures >= 3
			},
		}),
	}
}

// RandomPassage returns a uniformly random stored passage, or a static one
// when the store cannot answer within the fetch timeout.
func (s *Store) RandomPassage(ctx context.Context) string {
	start := time.Now()
	defer func() {
		metrics.PassageFetchDuration.Observe(time.Since(start).Seconds())
	}()

	result, err := s.breaker.Execute(func() (any, error) {
		qctx, cancel := context.WithTimeout(ctx, fetchTimeout)
		defer cancel()

		var text string
		err := s.db.QueryRow(qctx, `SELECT text FROM passages ORDER BY random() LIMIT 1`).Scan(&text)
		if err != nil {
			return nil, err
		}
		return text, nil
	})
	if err != nil {
		logging.Warn(ctx, "passage store unavailable, using static list", zap.Error(err))
		metrics.PassageSource.WithLabelValues("static").Inc()
		return s.fallback.RandomPassage(ctx)
	}

	metrics.PassageSource.WithLabelValues("db").Inc()
	return result.(string)
}

// Insert stores a passage, ignoring duplicates by text. Returns whether a row
// was actually inserted.
func (s *Store) Insert(ctx context.Context, text, sourceURL string) (bool, error) {
	tag, err := s.db.Exec(ctx,
		`INSERT INTO passages (text, source_url) VALUES ($1, $2) ON CONFLICT (text) DO NOTHING`,
		text, sourceURL)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() > 0, nil
}

// Ping reports store connectivity, for the readiness probe.
func (s *Store) Ping(ctx context.Context) error {
	return s.db.Ping(ctx)
}

// Close releases the underlying pool.
func (s *Store) Close() {
	if s.pool != nil {
		s.pool.Close()
	}
}
