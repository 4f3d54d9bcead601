package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"time"

	"github.com/rotisserie/eris"
	_ "modernc.org/sqlite"

	"github.com/sells-group/market-explorer/internal/model"
	"github.com/sells-group/market-explorer/internal/ticker"
)

// SQLiteStore implements Store using modernc.org/sqlite.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLite opens a SQLite database at the given path and configures WAL mode.
func NewSQLite(dsn string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: open")
	}
	for _, pragma := range []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA busy_timeout=5000",
		"PRAGMA synchronous=NORMAL",
		"PRAGMA foreign_keys=ON",
	} {
		if _, err := db.Exec(pragma); err != nil {
			db.Close()
			return nil, eris.Wrapf(err, "sqlite: exec %s", pragma)
		}
	}
	return &SQLiteStore{db: db}, nil
}

const sqliteMigration = `
CREATE TABLE IF NOT EXISTS roster (
	segment         TEXT NOT NULL,
	identifier      TEXT NOT NULL,
	identifier_norm TEXT NOT NULL,
	display_name    TEXT NOT NULL,
	origin          TEXT NOT NULL,
	created_at      DATETIME NOT NULL DEFAULT (datetime('now')),
	position        INTEGER NOT NULL,
	PRIMARY KEY (segment, identifier_norm)
);

CREATE TABLE IF NOT EXISTS facts (
	segment         TEXT NOT NULL,
	identifier      TEXT NOT NULL,
	identifier_norm TEXT NOT NULL,
	period          INTEGER NOT NULL,
	metric          TEXT NOT NULL,
	value           REAL NOT NULL,
	provenance      TEXT NOT NULL,
	is_estimate     INTEGER NOT NULL DEFAULT 0,
	created_at      DATETIME NOT NULL DEFAULT (datetime('now')),
	PRIMARY KEY (segment, identifier_norm, period, metric)
);

CREATE TABLE IF NOT EXISTS conflicts (
	id             INTEGER PRIMARY KEY AUTOINCREMENT,
	run_id         TEXT NOT NULL,
	segment        TEXT NOT NULL,
	entity_name    TEXT NOT NULL,
	period         INTEGER NOT NULL,
	metric         TEXT NOT NULL,
	existing_value REAL NOT NULL,
	incoming_value REAL NOT NULL,
	detected_at    DATETIME NOT NULL DEFAULT (datetime('now'))
);

CREATE TABLE IF NOT EXISTS run_log (
	id           TEXT PRIMARY KEY,
	segment      TEXT NOT NULL,
	entity_count INTEGER NOT NULL,
	added        INTEGER NOT NULL,
	conflicts    INTEGER NOT NULL,
	missing      TEXT,
	status       TEXT NOT NULL,
	duration_ms  INTEGER NOT NULL,
	started_at   DATETIME NOT NULL,
	finished_at  DATETIME NOT NULL
);

CREATE TABLE IF NOT EXISTS market_size (
	id              INTEGER PRIMARY KEY AUTOINCREMENT,
	segment         TEXT NOT NULL,
	figure_billions REAL NOT NULL,
	year            INTEGER NOT NULL,
	citation        TEXT,
	recorded_at     DATETIME NOT NULL DEFAULT (datetime('now'))
);

CREATE TABLE IF NOT EXISTS insights (
	id         INTEGER PRIMARY KEY AUTOINCREMENT,
	segment    TEXT NOT NULL,
	level      TEXT NOT NULL,
	target     TEXT NOT NULL,
	bullets    TEXT NOT NULL,
	created_at DATETIME NOT NULL DEFAULT (datetime('now'))
);

CREATE INDEX IF NOT EXISTS idx_conflicts_segment ON conflicts(segment);
CREATE INDEX IF NOT EXISTS idx_run_log_segment ON run_log(segment);
CREATE INDEX IF NOT EXISTS idx_market_size_segment ON market_size(segment);
`

func (s *SQLiteStore) Migrate(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, sqliteMigration)
	return eris.Wrap(err, "sqlite: migrate")
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

func (s *SQLiteStore) LoadRoster(ctx context.Context, segment string) ([]model.Entity, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT segment, identifier, display_name, origin, created_at FROM roster WHERE segment = ? ORDER BY position`,
		segment,
	)
	if err != nil {
		return nil, eris.Wrapf(err, "sqlite: load roster %s", segment)
	}
	defer rows.Close()

	var roster []model.Entity
	for rows.Next() {
		var e model.Entity
		if err := rows.Scan(&e.Segment, &e.Identifier, &e.DisplayName, &e.Origin, &e.CreatedAt); err != nil {
			return nil, eris.Wrap(err, "sqlite: scan roster row")
		}
		roster = append(roster, e)
	}
	return roster, eris.Wrap(rows.Err(), "sqlite: load roster")
}

func (s *SQLiteStore) SaveRoster(ctx context.Context, segment string, roster []model.Entity) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return eris.Wrap(err, "sqlite: begin save roster")
	}
	defer tx.Rollback() //nolint:errcheck

	if _, err := tx.ExecContext(ctx, `DELETE FROM roster WHERE segment = ?`, segment); err != nil {
		return eris.Wrapf(err, "sqlite: clear roster %s", segment)
	}

	now := time.Now().UTC()
	for i, e := range roster {
		createdAt := e.CreatedAt
		if createdAt.IsZero() {
			createdAt = now
		}
		_, err := tx.ExecContext(ctx,
			`INSERT INTO roster (segment, identifier, identifier_norm, display_name, origin, created_at, position) VALUES (?, ?, ?, ?, ?, ?, ?)`,
			segment, e.Identifier, ticker.Normalize(e.Identifier), e.DisplayName, e.Origin, createdAt, i,
		)
		if err != nil {
			return eris.Wrapf(err, "sqlite: insert roster entry %s", e.Identifier)
		}
	}

	return eris.Wrap(tx.Commit(), "sqlite: commit roster")
}

func (s *SQLiteStore) LoadFacts(ctx context.Context, segment string) ([]model.Observation, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT segment, identifier, period, metric, value, provenance, is_estimate, created_at
		 FROM facts WHERE segment = ? ORDER BY identifier_norm, period, metric`,
		segment,
	)
	if err != nil {
		return nil, eris.Wrapf(err, "sqlite: load facts %s", segment)
	}
	defer rows.Close()

	var facts []model.Observation
	for rows.Next() {
		var o model.Observation
		if err := rows.Scan(&o.Segment, &o.Identifier, &o.Period, &o.Metric, &o.Value, &o.Provenance, &o.IsEstimate, &o.CreatedAt); err != nil {
			return nil, eris.Wrap(err, "sqlite: scan fact row")
		}
		facts = append(facts, o)
	}
	return facts, eris.Wrap(rows.Err(), "sqlite: load facts")
}

func (s *SQLiteStore) SaveFacts(ctx context.Context, segment string, facts []model.Observation) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return eris.Wrap(err, "sqlite: begin save facts")
	}
	defer tx.Rollback() //nolint:errcheck

	if _, err := tx.ExecContext(ctx, `DELETE FROM facts WHERE segment = ?`, segment); err != nil {
		return eris.Wrapf(err, "sqlite: clear facts %s", segment)
	}

	now := time.Now().UTC()
	for _, o := range facts {
		createdAt := o.CreatedAt
		if createdAt.IsZero() {
			createdAt = now
		}
		_, err := tx.ExecContext(ctx,
			`INSERT INTO facts (segment, identifier, identifier_norm, period, metric, value, provenance, is_estimate, created_at)
			 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			segment, o.Identifier, ticker.Normalize(o.Identifier), o.Period, string(o.Metric), o.Value, o.Provenance, o.IsEstimate, createdAt,
		)
		if err != nil {
			return eris.Wrapf(err, "sqlite: insert fact %s/%d/%s", o.Identifier, o.Period, o.Metric)
		}
	}

	return eris.Wrap(tx.Commit(), "sqlite: commit facts")
}

func (s *SQLiteStore) AppendConflicts(ctx context.Context, runID string, conflicts []model.Conflict) error {
	if len(conflicts) == 0 {
		return nil
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return eris.Wrap(err, "sqlite: begin append conflicts")
	}
	defer tx.Rollback() //nolint:errcheck

	now := time.Now().UTC()
	for _, c := range conflicts {
		detectedAt := c.DetectedAt
		if detectedAt.IsZero() {
			detectedAt = now
		}
		_, err := tx.ExecContext(ctx,
			`INSERT INTO conflicts (run_id, segment, entity_name, period, metric, existing_value, incoming_value, detected_at)
			 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
			runID, c.Segment, c.EntityName, c.Period, string(c.Metric), c.ExistingValue, c.IncomingValue, detectedAt,
		)
		if err != nil {
			return eris.Wrap(err, "sqlite: insert conflict")
		}
	}

	return eris.Wrap(tx.Commit(), "sqlite: commit conflicts")
}

func (s *SQLiteStore) ListConflicts(ctx context.Context, segment string, limit int) ([]model.Conflict, error) {
	if limit <= 0 {
		limit = 100
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT run_id, segment, entity_name, period, metric, existing_value, incoming_value, detected_at
		 FROM conflicts WHERE segment = ? ORDER BY detected_at DESC, id DESC LIMIT ?`,
		segment, limit,
	)
	if err != nil {
		return nil, eris.Wrapf(err, "sqlite: list conflicts %s", segment)
	}
	defer rows.Close()

	var conflicts []model.Conflict
	for rows.Next() {
		var c model.Conflict
		if err := rows.Scan(&c.RunID, &c.Segment, &c.EntityName, &c.Period, &c.Metric, &c.ExistingValue, &c.IncomingValue, &c.DetectedAt); err != nil {
			return nil, eris.Wrap(err, "sqlite: scan conflict row")
		}
		conflicts = append(conflicts, c)
	}
	return conflicts, eris.Wrap(rows.Err(), "sqlite: list conflicts")
}

func (s *SQLiteStore) AppendRunSummary(ctx context.Context, summary *model.RunSummary) error {
	missingJSON, err := json.Marshal(summary.Missing)
	if err != nil {
		return eris.Wrap(err, "sqlite: marshal missing list")
	}

	_, err = s.db.ExecContext(ctx,
		`INSERT INTO run_log (id, segment, entity_count, added, conflicts, missing, status, duration_ms, started_at, finished_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		summary.ID, summary.Segment, summary.EntityCount, summary.Added, summary.Conflicts,
		string(missingJSON), string(summary.Status), summary.Duration, summary.StartedAt, summary.FinishedAt,
	)
	return eris.Wrap(err, "sqlite: insert run summary")
}

func (s *SQLiteStore) ListRunSummaries(ctx context.Context, limit int) ([]model.RunSummary, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, segment, entity_count, added, conflicts, missing, status, duration_ms, started_at, finished_at
		 FROM run_log ORDER BY started_at DESC LIMIT ?`,
		limit,
	)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: list run summaries")
	}
	defer rows.Close()

	var summaries []model.RunSummary
	for rows.Next() {
		var sum model.RunSummary
		var missingJSON sql.NullString
		if err := rows.Scan(&sum.ID, &sum.Segment, &sum.EntityCount, &sum.Added, &sum.Conflicts, &missingJSON, &sum.Status, &sum.Duration, &sum.StartedAt, &sum.FinishedAt); err != nil {
			return nil, eris.Wrap(err, "sqlite: scan run summary")
		}
		if missingJSON.Valid && missingJSON.String != "" {
			if err := json.Unmarshal([]byte(missingJSON.String), &sum.Missing); err != nil {
				return nil, eris.Wrap(err, "sqlite: unmarshal missing list")
			}
		}
		summaries = append(summaries, sum)
	}
	return summaries, eris.Wrap(rows.Err(), "sqlite: list run summaries")
}

func (s *SQLiteStore) AppendMarketSize(ctx context.Context, size *model.MarketSize) error {
	recordedAt := size.RecordedAt
	if recordedAt.IsZero() {
		recordedAt = time.Now().UTC()
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO market_size (segment, figure_billions, year, citation, recorded_at) VALUES (?, ?, ?, ?, ?)`,
		size.Segment, size.FigureBillions, size.Year, size.Citation, recordedAt,
	)
	return eris.Wrap(err, "sqlite: insert market size")
}

func (s *SQLiteStore) ListMarketSizes(ctx context.Context, segment string, limit int) ([]model.MarketSize, error) {
	if limit <= 0 {
		limit = 20
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT segment, figure_billions, year, citation, recorded_at FROM market_size WHERE segment = ? ORDER BY recorded_at DESC LIMIT ?`,
		segment, limit,
	)
	if err != nil {
		return nil, eris.Wrapf(err, "sqlite: list market sizes %s", segment)
	}
	defer rows.Close()

	var sizes []model.MarketSize
	for rows.Next() {
		var m model.MarketSize
		if err := rows.Scan(&m.Segment, &m.FigureBillions, &m.Year, &m.Citation, &m.RecordedAt); err != nil {
			return nil, eris.Wrap(err, "sqlite: scan market size")
		}
		sizes = append(sizes, m)
	}
	return sizes, eris.Wrap(rows.Err(), "sqlite: list market sizes")
}

func (s *SQLiteStore) AppendInsight(ctx context.Context, insight *model.Insight) error {
	createdAt := insight.CreatedAt
	if createdAt.IsZero() {
		createdAt = time.Now().UTC()
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO insights (segment, level, target, bullets, created_at) VALUES (?, ?, ?, ?, ?)`,
		insight.Segment, string(insight.Level), insight.Target, insight.Bullets, createdAt,
	)
	return eris.Wrap(err, "sqlite: insert insight")
}
