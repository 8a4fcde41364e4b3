package storage

// sqlite.go: snapshots diarios de mercados e histórico de runs.
//
// Estrategia:
//   - `market_snapshots`: UNA fila por día UTC con el listado completo en JSON.
//     Un segundo scan del mismo día reutiliza el snapshot en vez de volver a paginar el CLOB.
//   - `runs`: resumen ligero por run (conteos, fallos en JSON).
//   - `edges`: todos los EdgeRecord calculados en el run. GetHistory solo devuelve edge > 0.
//   - Prune automático al arrancar: snapshots > 30d, runs y edges > 90d.

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/alejandrodnm/polyedge/internal/domain"
	_ "modernc.org/sqlite"
)

const schema = `
-- Listado de mercados del día, tal como vino de la API
CREATE TABLE IF NOT EXISTS market_snapshots (
    day        TEXT PRIMARY KEY,
    fetched_at TEXT    NOT NULL,
    count      INTEGER NOT NULL DEFAULT 0,
    markets    TEXT    NOT NULL
);

-- Resumen de cada run de ranking
CREATE TABLE IF NOT EXISTS runs (
    id              TEXT PRIMARY KEY,
    started_at      TEXT    NOT NULL,
    finished_at     TEXT    NOT NULL,
    markets_scanned INTEGER NOT NULL DEFAULT 0,
    forecasts       INTEGER NOT NULL DEFAULT 0,
    edges           INTEGER NOT NULL DEFAULT 0,
    failures        TEXT    NOT NULL DEFAULT '[]'
);

-- Un EdgeRecord por token evaluado en el run
CREATE TABLE IF NOT EXISTS edges (
    run_id           TEXT    NOT NULL REFERENCES runs(id) ON DELETE CASCADE,
    seq              INTEGER NOT NULL,
    recorded_at      TEXT    NOT NULL,
    condition_id     TEXT    NOT NULL,
    token_id         TEXT    NOT NULL,
    title            TEXT,
    outcome          TEXT    NOT NULL,
    probability      REAL    NOT NULL,
    model_confidence REAL    NOT NULL,
    lower_bound      REAL    NOT NULL,
    upper_bound      REAL    NOT NULL,
    confidence_level REAL    NOT NULL,
    best_ask_price   REAL    NOT NULL,
    best_ask_size    REAL    NOT NULL,
    edge             REAL    NOT NULL,
    adjusted_ev      REAL    NOT NULL,
    PRIMARY KEY (run_id, seq)
);

CREATE INDEX IF NOT EXISTS idx_runs_started   ON runs(started_at DESC);
CREATE INDEX IF NOT EXISTS idx_edges_recorded ON edges(recorded_at DESC);
CREATE INDEX IF NOT EXISTS idx_edges_ev       ON edges(adjusted_ev DESC);
`

const (
	retentionSnapshots = 30 * 24 * time.Hour
	retentionRuns      = 90 * 24 * time.Hour

	// Formato de ancho fijo: las comparaciones de texto en SQL respetan el orden temporal.
	timeLayout = "2006-01-02T15:04:05.000000000Z"
	dayLayout  = "2006-01-02"
)

// SQLiteStorage implementa ports.Storage usando SQLite (pure Go, sin CGo).
type SQLiteStorage struct {
	db  *sql.DB
	now func() time.Time
}

// NewSQLiteStorage abre (o crea) la base de datos en la ruta dada.
// Aplica el schema y limpia datos antiguos.
func NewSQLiteStorage(path string) (*SQLiteStorage, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("storage.NewSQLiteStorage: open %q: %w", path, err)
	}
	db.SetMaxOpenConns(1) // SQLite es single-writer
	db.SetMaxIdleConns(1)

	if _, err := db.Exec(`PRAGMA foreign_keys = ON`); err != nil {
		db.Close()
		return nil, fmt.Errorf("storage.NewSQLiteStorage: enable foreign keys: %w", err)
	}
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("storage.NewSQLiteStorage: apply schema: %w", err)
	}

	s := &SQLiteStorage{db: db, now: time.Now}
	s.pruneOld(context.Background())
	return s, nil
}

// SaveMarketSnapshot guarda (o reemplaza) el listado de mercados del día UTC de day.
func (s *SQLiteStorage) SaveMarketSnapshot(ctx context.Context, day time.Time, markets []domain.Market) error {
	data, err := json.Marshal(markets)
	if err != nil {
		return fmt.Errorf("storage.SaveMarketSnapshot: marshal: %w", err)
	}

	if _, err := s.db.ExecContext(ctx, `
		INSERT INTO market_snapshots (day, fetched_at, count, markets)
		VALUES (?, ?, ?, ?)
		ON CONFLICT(day) DO UPDATE SET
			fetched_at = excluded.fetched_at,
			count      = excluded.count,
			markets    = excluded.markets
	`, dayKey(day), formatTime(s.now()), len(markets), string(data)); err != nil {
		return fmt.Errorf("storage.SaveMarketSnapshot: upsert %s: %w", dayKey(day), err)
	}
	return nil
}

// LoadMarketSnapshot devuelve el snapshot del día UTC de day, y false si no existe.
func (s *SQLiteStorage) LoadMarketSnapshot(ctx context.Context, day time.Time) ([]domain.Market, bool, error) {
	var data string
	err := s.db.QueryRowContext(ctx,
		`SELECT markets FROM market_snapshots WHERE day = ?`, dayKey(day),
	).Scan(&data)
	if err == sql.ErrNoRows {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("storage.LoadMarketSnapshot: query: %w", err)
	}

	var markets []domain.Market
	if err := json.Unmarshal([]byte(data), &markets); err != nil {
		return nil, false, fmt.Errorf("storage.LoadMarketSnapshot: decode %s: %w", dayKey(day), err)
	}
	return markets, true, nil
}

// SaveRun persiste el resumen del run y todos sus EdgeRecord en una transacción.
func (s *SQLiteStorage) SaveRun(ctx context.Context, run domain.Run) error {
	failures, err := json.Marshal(run.Failures)
	if err != nil {
		return fmt.Errorf("storage.SaveRun: marshal failures: %w", err)
	}
	if run.Failures == nil {
		failures = []byte("[]")
	}

	finished := run.FinishedAt
	if finished.IsZero() {
		finished = s.now()
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("storage.SaveRun: begin tx: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `
		INSERT INTO runs (id, started_at, finished_at, markets_scanned, forecasts, edges, failures)
		VALUES (?, ?, ?, ?, ?, ?, ?)
	`, run.ID, formatTime(run.StartedAt), formatTime(finished),
		run.MarketsScanned, run.Forecasts, len(run.Edges), string(failures),
	); err != nil {
		return fmt.Errorf("storage.SaveRun: insert run %s: %w", run.ID, err)
	}

	if len(run.Edges) > 0 {
		stmt, err := tx.PrepareContext(ctx, `
			INSERT INTO edges
				(run_id, seq, recorded_at, condition_id, token_id, title, outcome,
				 probability, model_confidence, lower_bound, upper_bound, confidence_level,
				 best_ask_price, best_ask_size, edge, adjusted_ev)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		`)
		if err != nil {
			return fmt.Errorf("storage.SaveRun: prepare: %w", err)
		}
		defer stmt.Close()

		recordedAt := formatTime(finished)
		for i, e := range run.Edges {
			if _, err := stmt.ExecContext(ctx,
				run.ID, i, recordedAt, e.ConditionID, e.TokenID, e.Title, e.Outcome,
				e.Probability, e.ModelConfidence,
				e.Uncertainty.LowerBound, e.Uncertainty.UpperBound, e.Uncertainty.ConfidenceLevel,
				e.BestAskPrice, e.BestAskSize, e.Edge, e.AdjustedEV,
			); err != nil {
				return fmt.Errorf("storage.SaveRun: insert edge %s/%s: %w", e.ConditionID, e.TokenID, err)
			}
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("storage.SaveRun: commit: %w", err)
	}
	return nil
}

// GetHistory devuelve los EdgeRecord con edge > 0 registrados en [from, to].
// Ordenados por adjusted_ev desc; ante empate, el más reciente primero.
func (s *SQLiteStorage) GetHistory(ctx context.Context, from, to time.Time) ([]domain.EdgeRecord, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT title, condition_id, token_id, outcome,
		       probability, model_confidence, lower_bound, upper_bound, confidence_level,
		       best_ask_price, best_ask_size, edge, adjusted_ev
		FROM edges
		WHERE edge > 0 AND recorded_at BETWEEN ? AND ?
		ORDER BY adjusted_ev DESC, recorded_at DESC, seq ASC
	`, formatTime(from), formatTime(to))
	if err != nil {
		return nil, fmt.Errorf("storage.GetHistory: query: %w", err)
	}
	defer rows.Close()

	var records []domain.EdgeRecord
	for rows.Next() {
		var (
			e     domain.EdgeRecord
			title sql.NullString
		)
		if err := rows.Scan(
			&title, &e.ConditionID, &e.TokenID, &e.Outcome,
			&e.Probability, &e.ModelConfidence,
			&e.Uncertainty.LowerBound, &e.Uncertainty.UpperBound, &e.Uncertainty.ConfidenceLevel,
			&e.BestAskPrice, &e.BestAskSize, &e.Edge, &e.AdjustedEV,
		); err != nil {
			return nil, fmt.Errorf("storage.GetHistory: scan row: %w", err)
		}
		e.Title = title.String
		records = append(records, e)
	}
	return records, rows.Err()
}

// Close cierra la conexión a la base de datos.
func (s *SQLiteStorage) Close() error {
	return s.db.Close()
}

// --- helpers internos ---

// pruneOld elimina datos antiguos para mantener la DB ligera.
func (s *SQLiteStorage) pruneOld(ctx context.Context) {
	now := s.now().UTC()
	if _, err := s.db.ExecContext(ctx,
		`DELETE FROM market_snapshots WHERE day < ?`, dayKey(now.Add(-retentionSnapshots)),
	); err != nil {
		slog.Warn("prune market snapshots failed", "err", err)
	}
	if _, err := s.db.ExecContext(ctx,
		`DELETE FROM runs WHERE started_at < ?`, formatTime(now.Add(-retentionRuns)),
	); err != nil {
		slog.Warn("prune runs failed", "err", err)
	}
}

func formatTime(t time.Time) string { return t.UTC().Format(timeLayout) }

func dayKey(t time.Time) string { return t.UTC().Format(dayLayout) }
