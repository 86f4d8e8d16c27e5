package storage

// sqlite.go — ledger local en SQLite.
//
// Estrategia:
//   - `sentiment_history` y `trade_history`: append-only, nunca se actualizan.
//     Los ids salen de un contador único (`ledger_state.next_id`), igual que el
//     contrato on-chain, así que son monótonos entre ambas tablas.
//   - `ledger_state`: una sola fila con el flag invested y el contador.
//   - `ledger_events`: un evento por transición aceptada.
//   - trade_history nunca se poda. sentiment_history se poda al arrancar si hay
//     retención configurada (0 = guardar siempre).
//   - En modo mock es el ledger; en live es el espejo del contrato para reportes.

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/jonboulle/clockwork"
	_ "modernc.org/sqlite"

	"github.com/alejandrodnm/sentibot/internal/domain"
)

const schema = `
CREATE TABLE IF NOT EXISTS sentiment_history (
    id           INTEGER PRIMARY KEY,
    recorded_at  TEXT    NOT NULL,
    score        INTEGER NOT NULL,
    confidence   INTEGER NOT NULL,
    sample_count INTEGER NOT NULL DEFAULT 0,
    tx_ref       TEXT    NOT NULL DEFAULT ''
);

CREATE TABLE IF NOT EXISTS trade_history (
    id          INTEGER PRIMARY KEY,
    recorded_at TEXT    NOT NULL,
    action      TEXT    NOT NULL,
    amount      INTEGER NOT NULL,
    confidence  INTEGER NOT NULL,
    tx_ref      TEXT    NOT NULL
);

CREATE TABLE IF NOT EXISTS ledger_events (
    id         INTEGER PRIMARY KEY AUTOINCREMENT,
    event_id   TEXT    NOT NULL UNIQUE,
    kind       TEXT    NOT NULL,
    record_id  INTEGER NOT NULL,
    payload    TEXT    NOT NULL,
    created_at TEXT    NOT NULL
);

-- Una sola fila: flag de inversión + contador de ids
CREATE TABLE IF NOT EXISTS ledger_state (
    id       INTEGER PRIMARY KEY CHECK (id = 1),
    invested INTEGER NOT NULL DEFAULT 0,
    next_id  INTEGER NOT NULL DEFAULT 1
);
INSERT OR IGNORE INTO ledger_state (id, invested, next_id) VALUES (1, 0, 1);

CREATE INDEX IF NOT EXISTS idx_sentiment_at ON sentiment_history(recorded_at);
`

const defaultPageSize = 100

// SQLiteLedger implementa ports.Ledger y ports.LedgerHistory usando SQLite (pure Go, sin CGo).
type SQLiteLedger struct {
	db    *sql.DB
	clock clockwork.Clock
}

// NewSQLiteLedger abre (o crea) la base de datos en la ruta dada y aplica el schema.
func NewSQLiteLedger(path string) (*SQLiteLedger, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("storage.NewSQLiteLedger: open %q: %w", path, err)
	}
	db.SetMaxOpenConns(1) // SQLite es single-writer
	db.SetMaxIdleConns(1)

	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("storage.NewSQLiteLedger: apply schema: %w", err)
	}

	return &SQLiteLedger{db: db, clock: clockwork.NewRealClock()}, nil
}

// SetClock reemplaza el reloj (tests).
func (s *SQLiteLedger) SetClock(c clockwork.Clock) { s.clock = c }

// LoadState devuelve el flag de inversión persistido.
func (s *SQLiteLedger) LoadState(ctx context.Context) (domain.State, error) {
	var invested int
	if err := s.db.QueryRowContext(ctx, `SELECT invested FROM ledger_state WHERE id = 1`).Scan(&invested); err != nil {
		return domain.State{}, fmt.Errorf("storage.LoadState: %w", err)
	}
	return domain.State{CurrentlyInvested: invested == 1}, nil
}

// SetState sobrescribe el flag. Lo usa el espejo para alinearse con la cadena.
func (s *SQLiteLedger) SetState(ctx context.Context, st domain.State) error {
	if _, err := s.db.ExecContext(ctx,
		`UPDATE ledger_state SET invested = ? WHERE id = 1`, boolToInt(st.CurrentlyInvested),
	); err != nil {
		return fmt.Errorf("storage.SetState: %w", err)
	}
	return nil
}

// PruneSentiment borra observaciones de sentimiento más antiguas que retention.
// trade_history no se toca nunca.
func (s *SQLiteLedger) PruneSentiment(ctx context.Context, retention time.Duration) (int64, error) {
	if retention <= 0 {
		return 0, nil
	}
	cutoff := formatTime(s.clock.Now().Add(-retention))
	res, err := s.db.ExecContext(ctx, `DELETE FROM sentiment_history WHERE recorded_at < ?`, cutoff)
	if err != nil {
		return 0, fmt.Errorf("storage.PruneSentiment: %w", err)
	}
	return res.RowsAffected()
}

// Close cierra la conexión a la base de datos.
func (s *SQLiteLedger) Close() error {
	return s.db.Close()
}

// --- helpers internos ---

// nextID reserva el siguiente id dentro de la transacción.
func nextID(ctx context.Context, tx *sql.Tx) (int64, error) {
	var id int64
	if err := tx.QueryRowContext(ctx, `SELECT next_id FROM ledger_state WHERE id = 1`).Scan(&id); err != nil {
		return 0, err
	}
	if _, err := tx.ExecContext(ctx, `UPDATE ledger_state SET next_id = ? WHERE id = 1`, id+1); err != nil {
		return 0, err
	}
	return id, nil
}

// formatTime usa ancho fijo en UTC: el orden lexicográfico coincide con el temporal.
func formatTime(t time.Time) string {
	return t.UTC().Format("2006-01-02T15:04:05.000000000Z")
}

func parseTime(s string) time.Time {
	t, err := time.Parse(time.RFC3339Nano, s)
	if err != nil {
		t, _ = time.Parse("2006-01-02 15:04:05", s)
	}
	return t
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

func pageSize(limit int) int {
	if limit <= 0 {
		return defaultPageSize
	}
	return limit
}
