package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rotisserie/eris"

	"github.com/sells-group/market-explorer/internal/model"
	"github.com/sells-group/market-explorer/internal/ticker"
)

// Pool abstracts *pgxpool.Pool for testability (pgxmock implements it).
type Pool interface {
	Begin(ctx context.Context) (pgx.Tx, error)
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Ping(ctx context.Context) error
	Close()
}

// PostgresStore implements Store using pgxpool.
type PostgresStore struct {
	pool Pool
}

// NewPostgres creates a PostgresStore with a connection pool.
func NewPostgres(ctx context.Context, connString string) (*PostgresStore, error) {
	pgxCfg, err := pgxpool.ParseConfig(connString)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: parse config")
	}
	pgxCfg.MaxConns = 10
	pgxCfg.MinConns = 2
	pgxCfg.MaxConnLifetime = 30 * time.Minute
	pgxCfg.MaxConnIdleTime = 5 * time.Minute

	pool, err := pgxpool.NewWithConfig(ctx, pgxCfg)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: create pool")
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, eris.Wrap(err, "postgres: ping")
	}
	return &PostgresStore{pool: pool}, nil
}

// NewPostgresFromPool wraps an existing pool. Used by tests.
func NewPostgresFromPool(pool Pool) *PostgresStore {
	return &PostgresStore{pool: pool}
}

const postgresMigration = `
CREATE TABLE IF NOT EXISTS roster (
	segment         TEXT NOT NULL,
	identifier      TEXT NOT NULL,
	identifier_norm TEXT NOT NULL,
	display_name    TEXT NOT NULL,
	origin          TEXT NOT NULL,
	created_at      TIMESTAMPTZ NOT NULL DEFAULT now(),
	position        INTEGER NOT NULL,
	PRIMARY KEY (segment, identifier_norm)
);

CREATE TABLE IF NOT EXISTS facts (
	segment         TEXT NOT NULL,
	identifier      TEXT NOT NULL,
	identifier_norm TEXT NOT NULL,
	period          INTEGER NOT NULL,
	metric          TEXT NOT NULL,
	value           DOUBLE PRECISION NOT NULL,
	provenance      TEXT NOT NULL,
	is_estimate     BOOLEAN NOT NULL DEFAULT false,
	created_at      TIMESTAMPTZ NOT NULL DEFAULT now(),
	PRIMARY KEY (segment, identifier_norm, period, metric)
);

CREATE TABLE IF NOT EXISTS conflicts (
	id             BIGSERIAL PRIMARY KEY,
	run_id         TEXT NOT NULL,
	segment        TEXT NOT NULL,
	entity_name    TEXT NOT NULL,
	period         INTEGER NOT NULL,
	metric         TEXT NOT NULL,
	existing_value DOUBLE PRECISION NOT NULL,
	incoming_value DOUBLE PRECISION NOT NULL,
	detected_at    TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE TABLE IF NOT EXISTS run_log (
	id           TEXT PRIMARY KEY,
	segment      TEXT NOT NULL,
	entity_count INTEGER NOT NULL,
	added        INTEGER NOT NULL,
	conflicts    INTEGER NOT NULL,
	missing      JSONB,
	status       TEXT NOT NULL,
	duration_ms  BIGINT NOT NULL,
	started_at   TIMESTAMPTZ NOT NULL,
	finished_at  TIMESTAMPTZ NOT NULL
);

CREATE TABLE IF NOT EXISTS market_size (
	id              BIGSERIAL PRIMARY KEY,
	segment         TEXT NOT NULL,
	figure_billions DOUBLE PRECISION NOT NULL,
	year            INTEGER NOT NULL,
	citation        TEXT,
	recorded_at     TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE TABLE IF NOT EXISTS insights (
	id         BIGSERIAL PRIMARY KEY,
	segment    TEXT NOT NULL,
	level      TEXT NOT NULL,
	target     TEXT NOT NULL,
	bullets    TEXT NOT NULL,
	created_at TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE INDEX IF NOT EXISTS idx_conflicts_segment ON conflicts(segment);
CREATE INDEX IF NOT EXISTS idx_run_log_segment ON run_log(segment);
CREATE INDEX IF NOT EXISTS idx_market_size_segment ON market_size(segment);
`

func (s *PostgresStore) Migrate(ctx context.Context) error {
	_, err := s.pool.Exec(ctx, postgresMigration)
	return eris.Wrap(err, "postgres: migrate")
}

func (s *PostgresStore) Close() error {
	s.pool.Close()
	return nil
}

// Ping verifies connectivity.
func (s *PostgresStore) Ping(ctx context.Context) error {
	return eris.Wrap(s.pool.Ping(ctx), "postgres: ping")
}

func (s *PostgresStore) LoadRoster(ctx context.Context, segment string) ([]model.Entity, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT segment, identifier, display_name, origin, created_at FROM roster WHERE segment = $1 ORDER BY position`,
		segment,
	)
	if err != nil {
		return nil, eris.Wrapf(err, "postgres: load roster %s", segment)
	}
	defer rows.Close()

	var roster []model.Entity
	for rows.Next() {
		var e model.Entity
		if err := rows.Scan(&e.Segment, &e.Identifier, &e.DisplayName, &e.Origin, &e.CreatedAt); err != nil {
			return nil, eris.Wrap(err, "postgres: scan roster row")
		}
		roster = append(roster, e)
	}
	return roster, eris.Wrap(rows.Err(), "postgres: load roster")
}

func (s *PostgresStore) SaveRoster(ctx context.Context, segment string, roster []model.Entity) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return eris.Wrap(err, "postgres: begin save roster")
	}
	defer tx.Rollback(ctx) //nolint:errcheck

	if _, err := tx.Exec(ctx, `DELETE FROM roster WHERE segment = $1`, segment); err != nil {
		return eris.Wrapf(err, "postgres: clear roster %s", segment)
	}

	now := time.Now().UTC()
	for i, e := range roster {
		createdAt := e.CreatedAt
		if createdAt.IsZero() {
			createdAt = now
		}
		_, err := tx.Exec(ctx,
			`INSERT INTO roster (segment, identifier, identifier_norm, display_name, origin, created_at, position) VALUES ($1, $2, $3, $4, $5, $6, $7)`,
			segment, e.Identifier, ticker.Normalize(e.Identifier), e.DisplayName, e.Origin, createdAt, i,
		)
		if err != nil {
			return eris.Wrapf(err, "postgres: insert roster entry %s", e.Identifier)
		}
	}

	return eris.Wrap(tx.Commit(ctx), "postgres: commit roster")
}

func (s *PostgresStore) LoadFacts(ctx context.Context, segment string) ([]model.Observation, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT segment, identifier, period, metric, value, provenance, is_estimate, created_at
		 FROM facts WHERE segment = $1 ORDER BY identifier_norm, period, metric`,
		segment,
	)
	if err != nil {
		return nil, eris.Wrapf(err, "postgres: load facts %s", segment)
	}
	defer rows.Close()

	var facts []model.Observation
	for rows.Next() {
		var o model.Observation
		if err := rows.Scan(&o.Segment, &o.Identifier, &o.Period, &o.Metric, &o.Value, &o.Provenance, &o.IsEstimate, &o.CreatedAt); err != nil {
			return nil, eris.Wrap(err, "postgres: scan fact row")
		}
		facts = append(facts, o)
	}
	return facts, eris.Wrap(rows.Err(), "postgres: load facts")
}

func (s *PostgresStore) SaveFacts(ctx context.Context, segment string, facts []model.Observation) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return eris.Wrap(err, "postgres: begin save facts")
	}
	defer tx.Rollback(ctx) //nolint:errcheck

	if _, err := tx.Exec(ctx, `DELETE FROM facts WHERE segment = $1`, segment); err != nil {
		return eris.Wrapf(err, "postgres: clear facts %s", segment)
	}

	now := time.Now().UTC()
	for _, o := range facts {
		createdAt := o.CreatedAt
		if createdAt.IsZero() {
			createdAt = now
		}
		_, err := tx.Exec(ctx,
			`INSERT INTO facts (segment, identifier, identifier_norm, period, metric, value, provenance, is_estimate, created_at)
			 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`,
			segment, o.Identifier, ticker.Normalize(o.Identifier), o.Period, string(o.Metric), o.Value, o.Provenance, o.IsEstimate, createdAt,
		)
		if err != nil {
			return eris.Wrapf(err, "postgres: insert fact %s/%d/%s", o.Identifier, o.Period, o.Metric)
		}
	}

	return eris.Wrap(tx.Commit(ctx), "postgres: commit facts")
}

func (s *PostgresStore) AppendConflicts(ctx context.Context, runID string, conflicts []model.Conflict) error {
	if len(conflicts) == 0 {
		return nil
	}

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return eris.Wrap(err, "postgres: begin append conflicts")
	}
	defer tx.Rollback(ctx) //nolint:errcheck

	now := time.Now().UTC()
	for _, c := range conflicts {
		detectedAt := c.DetectedAt
		if detectedAt.IsZero() {
			detectedAt = now
		}
		_, err := tx.Exec(ctx,
			`INSERT INTO conflicts (run_id, segment, entity_name, period, metric, existing_value, incoming_value, detected_at)
			 VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
			runID, c.Segment, c.EntityName, c.Period, string(c.Metric), c.ExistingValue, c.IncomingValue, detectedAt,
		)
		if err != nil {
			return eris.Wrap(err, "postgres: insert conflict")
		}
	}

	return eris.Wrap(tx.Commit(ctx), "postgres: commit conflicts")
}

func (s *PostgresStore) ListConflicts(ctx context.Context, segment string, limit int) ([]model.Conflict, error) {
	if limit <= 0 {
		limit = 100
	}
	rows, err := s.pool.Query(ctx,
		`SELECT run_id, segment, entity_name, period, metric, existing_value, incoming_value, detected_at
		 FROM conflicts WHERE segment = $1 ORDER BY detected_at DESC, id DESC LIMIT $2`,
		segment, limit,
	)
	if err != nil {
		return nil, eris.Wrapf(err, "postgres: list conflicts %s", segment)
	}
	defer rows.Close()

	var conflicts []model.Conflict
	for rows.Next() {
		var c model.Conflict
		if err := rows.Scan(&c.RunID, &c.Segment, &c.EntityName, &c.Period, &c.Metric, &c.ExistingValue, &c.IncomingValue, &c.DetectedAt); err != nil {
			return nil, eris.Wrap(err, "postgres: scan conflict row")
		}
		conflicts = append(conflicts, c)
	}
	return conflicts, eris.Wrap(rows.Err(), "postgres: list conflicts")
}

func (s *PostgresStore) AppendRunSummary(ctx context.Context, summary *model.RunSummary) error {
	missingJSON, err := json.Marshal(summary.Missing)
	if err != nil {
		return eris.Wrap(err, "postgres: marshal missing list")
	}

	_, err = s.pool.Exec(ctx,
		`INSERT INTO run_log (id, segment, entity_count, added, conflicts, missing, status, duration_ms, started_at, finished_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`,
		summary.ID, summary.Segment, summary.EntityCount, summary.Added, summary.Conflicts,
		missingJSON, string(summary.Status), summary.Duration, summary.StartedAt, summary.FinishedAt,
	)
	return eris.Wrap(err, "postgres: insert run summary")
}

func (s *PostgresStore) ListRunSummaries(ctx context.Context, limit int) ([]model.RunSummary, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := s.pool.Query(ctx,
		`SELECT id, segment, entity_count, added, conflicts, missing, status, duration_ms, started_at, finished_at
		 FROM run_log ORDER BY started_at DESC LIMIT $1`,
		limit,
	)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: list run summaries")
	}
	defer rows.Close()

	var summaries []model.RunSummary
	for rows.Next() {
		var sum model.RunSummary
		var missingJSON sql.NullString
		if err := rows.Scan(&sum.ID, &sum.Segment, &sum.EntityCount, &sum.Added, &sum.Conflicts, &missingJSON, &sum.Status, &sum.Duration, &sum.StartedAt, &sum.FinishedAt); err != nil {
			return nil, eris.Wrap(err, "postgres: scan run summary")
		}
		if missingJSON.Valid && missingJSON.String != "" {
			if err := json.Unmarshal([]byte(missingJSON.String), &sum.Missing); err != nil {
				return nil, eris.Wrap(err, "postgres: unmarshal missing list")
			}
		}
		summaries = append(summaries, sum)
	}
	return summaries, eris.Wrap(rows.Err(), "postgres: list run summaries")
}

func (s *PostgresStore) AppendMarketSize(ctx context.Context, size *model.MarketSize) error {
	recordedAt := size.RecordedAt
	if recordedAt.IsZero() {
		recordedAt = time.Now().UTC()
	}
	_, err := s.pool.Exec(ctx,
		`INSERT INTO market_size (segment, figure_billions, year, citation, recorded_at) VALUES ($1, $2, $3, $4, $5)`,
		size.Segment, size.FigureBillions, size.Year, size.Citation, recordedAt,
	)
	return eris.Wrap(err, "postgres: insert market size")
}

func (s *PostgresStore) ListMarketSizes(ctx context.Context, segment string, limit int) ([]model.MarketSize, error) {
	if limit <= 0 {
		limit = 20
	}
	rows, err := s.pool.Query(ctx,
		`SELECT segment, figure_billions, year, citation, recorded_at FROM market_size WHERE segment = $1 ORDER BY recorded_at DESC LIMIT $2`,
		segment, limit,
	)
	if err != nil {
		return nil, eris.Wrapf(err, "postgres: list market sizes %s", segment)
	}
	defer rows.Close()

	var sizes []model.MarketSize
	for rows.Next() {
		var m model.MarketSize
		if err := rows.Scan(&m.Segment, &m.FigureBillions, &m.Year, &m.Citation, &m.RecordedAt); err != nil {
			return nil, eris.Wrap(err, "postgres: scan market size")
		}
		sizes = append(sizes, m)
	}
	return sizes, eris.Wrap(rows.Err(), "postgres: list market sizes")
}

func (s *PostgresStore) AppendInsight(ctx context.Context, insight *model.Insight) error {
	createdAt := insight.CreatedAt
	if createdAt.IsZero() {
		createdAt = time.Now().UTC()
	}
	_, err := s.pool.Exec(ctx,
		`INSERT INTO insights (segment, level, target, bullets, created_at) VALUES ($1, $2, $3, $4, $5)`,
		insight.Segment, string(insight.Level), insight.Target, insight.Bullets, createdAt,
	)
	return eris.Wrap(err, "postgres: insert insight")
}
