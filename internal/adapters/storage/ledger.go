package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/alejandrodnm/sentibot/internal/domain"
	"github.com/alejandrodnm/sentibot/internal/ports"
)

var (
	_ ports.Ledger        = (*SQLiteLedger)(nil)
	_ ports.LedgerHistory = (*SQLiteLedger)(nil)
)

// ─── Sentiment ───────────────────────────────────────────────────────────────

// RecordSentiment appends one observation. Never fails past its boundary.
func (s *SQLiteLedger) RecordSentiment(ctx context.Context, score, confidence float64, sampleCount int) domain.LedgerReceipt {
	id, err := s.appendSentiment(ctx, score, confidence, sampleCount, "")
	if err != nil {
		return domain.Failed(err)
	}
	return domain.Recorded(fmt.Sprintf("sqlite:%d", id))
}

// MirrorSentiment stores an observation already recorded elsewhere under txRef.
func (s *SQLiteLedger) MirrorSentiment(ctx context.Context, score, confidence float64, sampleCount int, txRef string) error {
	_, err := s.appendSentiment(ctx, score, confidence, sampleCount, txRef)
	return err
}

func (s *SQLiteLedger) appendSentiment(ctx context.Context, score, confidence float64, sampleCount int, txRef string) (int64, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("storage.RecordSentiment: begin tx: %w", err)
	}
	defer tx.Rollback()

	id, err := nextID(ctx, tx)
	if err != nil {
		return 0, fmt.Errorf("storage.RecordSentiment: next id: %w", err)
	}
	if _, err := tx.ExecContext(ctx, `
		INSERT INTO sentiment_history (id, recorded_at, score, confidence, sample_count, tx_ref)
		VALUES (?, ?, ?, ?, ?, ?)`,
		id, formatTime(s.clock.Now()), domain.ToScaled(score), domain.ToScaled(confidence), sampleCount, txRef,
	); err != nil {
		return 0, fmt.Errorf("storage.RecordSentiment: insert: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("storage.RecordSentiment: commit: %w", err)
	}
	return id, nil
}

// SentimentHistory pages forward from afterID.
func (s *SQLiteLedger) SentimentHistory(ctx context.Context, afterID int64, limit int) ([]domain.SentimentRecord, error) {
	return s.querySentiment(ctx, `
		SELECT id, recorded_at, score, confidence, sample_count
		FROM sentiment_history WHERE id > ? ORDER BY id ASC LIMIT ?`, afterID, pageSize(limit))
}

// RecentSentiment returns the last n observations, newest first.
func (s *SQLiteLedger) RecentSentiment(ctx context.Context, n int) ([]domain.SentimentRecord, error) {
	return s.querySentiment(ctx, `
		SELECT id, recorded_at, score, confidence, sample_count
		FROM sentiment_history ORDER BY id DESC LIMIT ?`, pageSize(n))
}

func (s *SQLiteLedger) querySentiment(ctx context.Context, query string, args ...any) ([]domain.SentimentRecord, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("storage.SentimentHistory: query: %w", err)
	}
	defer rows.Close()

	var out []domain.SentimentRecord
	for rows.Next() {
		var r domain.SentimentRecord
		var at string
		if err := rows.Scan(&r.ID, &at, &r.Score, &r.Confidence, &r.SampleCount); err != nil {
			return nil, fmt.Errorf("storage.SentimentHistory: scan row: %w", err)
		}
		r.Timestamp = parseTime(at)
		out = append(out, r)
	}
	return out, rows.Err()
}

// ─── Trades ──────────────────────────────────────────────────────────────────

// RecordTrade applies the state-machine transition and appends the trade plus
// one TradeRecorded event, atomically.
func (s *SQLiteLedger) RecordTrade(ctx context.Context, rec domain.TradeRecord) (domain.TradeRecord, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return rec, fmt.Errorf("storage.RecordTrade: begin tx: %w", err)
	}
	defer tx.Rollback()

	var invested int
	if err := tx.QueryRowContext(ctx, `SELECT invested FROM ledger_state WHERE id = 1`).Scan(&invested); err != nil {
		return rec, fmt.Errorf("storage.RecordTrade: load state: %w", err)
	}
	cur := domain.State{CurrentlyInvested: invested == 1}.Investment()
	next, err := cur.Transition(rec.Action)
	if err != nil {
		return rec, fmt.Errorf("storage.RecordTrade: %w", err)
	}

	id, err := nextID(ctx, tx)
	if err != nil {
		return rec, fmt.Errorf("storage.RecordTrade: next id: %w", err)
	}
	rec.ID = id
	if rec.Timestamp.IsZero() {
		rec.Timestamp = s.clock.Now().UTC()
	}

	if _, err := tx.ExecContext(ctx, `
		INSERT INTO trade_history (id, recorded_at, action, amount, confidence, tx_ref)
		VALUES (?, ?, ?, ?, ?, ?)`,
		id, formatTime(rec.Timestamp), string(rec.Action),
		domain.ToScaled(rec.Amount), domain.ToScaled(rec.Confidence), rec.TxRef,
	); err != nil {
		return rec, fmt.Errorf("storage.RecordTrade: insert: %w", err)
	}

	if err := insertEvent(ctx, tx, rec, s.clock.Now()); err != nil {
		return rec, fmt.Errorf("storage.RecordTrade: event: %w", err)
	}

	if _, err := tx.ExecContext(ctx,
		`UPDATE ledger_state SET invested = ? WHERE id = 1`, boolToInt(next == domain.Invested),
	); err != nil {
		return rec, fmt.Errorf("storage.RecordTrade: update state: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return rec, fmt.Errorf("storage.RecordTrade: commit: %w", err)
	}
	return rec, nil
}

// TradeHistory pages forward from afterID.
func (s *SQLiteLedger) TradeHistory(ctx context.Context, afterID int64, limit int) ([]domain.TradeRecord, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, recorded_at, action, amount, confidence, tx_ref
		FROM trade_history WHERE id > ? ORDER BY id ASC LIMIT ?`, afterID, pageSize(limit))
	if err != nil {
		return nil, fmt.Errorf("storage.TradeHistory: query: %w", err)
	}
	defer rows.Close()

	var out []domain.TradeRecord
	for rows.Next() {
		var r domain.TradeRecord
		var at, action string
		var amount, conf int64
		if err := rows.Scan(&r.ID, &at, &action, &amount, &conf, &r.TxRef); err != nil {
			return nil, fmt.Errorf("storage.TradeHistory: scan row: %w", err)
		}
		if r.Action, err = domain.ParseAction(action); err != nil {
			return nil, fmt.Errorf("storage.TradeHistory: row %d: %w", r.ID, err)
		}
		r.Timestamp = parseTime(at)
		r.Amount = domain.FromScaled(amount)
		r.Confidence = domain.FromScaled(conf)
		out = append(out, r)
	}
	return out, rows.Err()
}

// ─── Events ──────────────────────────────────────────────────────────────────

type tradeEventPayload struct {
	Action     string  `json:"action"`
	Amount     float64 `json:"amount"`
	Confidence float64 `json:"confidence"`
	TxRef      string  `json:"tx_ref"`
}

func insertEvent(ctx context.Context, tx *sql.Tx, rec domain.TradeRecord, at time.Time) error {
	payload, err := json.Marshal(tradeEventPayload{
		Action:     string(rec.Action),
		Amount:     rec.Amount,
		Confidence: rec.Confidence,
		TxRef:      rec.TxRef,
	})
	if err != nil {
		return err
	}
	_, err = tx.ExecContext(ctx, `
		INSERT INTO ledger_events (event_id, kind, record_id, payload, created_at)
		VALUES (?, ?, ?, ?, ?)`,
		uuid.NewString(), domain.EventTradeRecorded, rec.ID, string(payload), formatTime(at),
	)
	return err
}

// Events pages forward from afterID.
func (s *SQLiteLedger) Events(ctx context.Context, afterID int64, limit int) ([]domain.LedgerEvent, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, event_id, kind, record_id, payload, created_at
		FROM ledger_events WHERE id > ? ORDER BY id ASC LIMIT ?`, afterID, pageSize(limit))
	if err != nil {
		return nil, fmt.Errorf("storage.Events: query: %w", err)
	}
	defer rows.Close()

	var out []domain.LedgerEvent
	for rows.Next() {
		var e domain.LedgerEvent
		var at string
		if err := rows.Scan(&e.ID, &e.EventID, &e.Kind, &e.RecordID, &e.Payload, &at); err != nil {
			return nil, fmt.Errorf("storage.Events: scan row: %w", err)
		}
		e.CreatedAt = parseTime(at)
		out = append(out, e)
	}
	return out, rows.Err()
}
