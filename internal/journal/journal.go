// Package journal persists classified fills to SQLite as an audit trail.
// In-process statistics are not restored from it; the journal is write-mostly.
package journal

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"volume_maker/internal/core"
	"volume_maker/internal/trading/tracker"

	_ "github.com/mattn/go-sqlite3"
	"github.com/shopspring/decimal"
)

const schema = `
CREATE TABLE IF NOT EXISTS fills (
	id             INTEGER PRIMARY KEY AUTOINCREMENT,
	order_id       INTEGER NOT NULL,
	side           TEXT    NOT NULL,
	fill_price     TEXT    NOT NULL,
	intended_price TEXT    NOT NULL,
	quantity       TEXT    NOT NULL,
	notional       TEXT    NOT NULL,
	profit         TEXT    NOT NULL,
	wash           INTEGER NOT NULL,
	filled_at      TIMESTAMP NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_fills_order_id ON fills(order_id);
`

// SQLiteJournal implements tracker.Journal over a WAL-mode SQLite database.
// Decimals are stored as text to avoid float drift.
type SQLiteJournal struct {
	db *sql.DB
}

// Open opens or creates the journal database at path.
func Open(path string) (*SQLiteJournal, error) {
	dsn := fmt.Sprintf("file:%s?_journal_mode=WAL&_busy_timeout=5000", path)
	db, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open journal database: %w", err)
	}
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to initialize journal schema: %w", err)
	}
	return &SQLiteJournal{db: db}, nil
}

// RecordFill appends one classified fill.
func (j *SQLiteJournal) RecordFill(ctx context.Context, f tracker.Fill) error {
	wash := 0
	if f.Wash {
		wash = 1
	}
	_, err := j.db.ExecContext(ctx, `
		INSERT INTO fills (order_id, side, fill_price, intended_price, quantity, notional, profit, wash, filled_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		f.OrderID, string(f.Side), f.FillPrice.String(), f.IntendedPrice.String(),
		f.Quantity.String(), f.Notional.String(), f.Profit.String(), wash, f.FilledAt.UTC())
	if err != nil {
		return fmt.Errorf("failed to insert fill: %w", err)
	}
	return nil
}

// Fills returns the journaled fills, oldest first.
func (j *SQLiteJournal) Fills(ctx context.Context) ([]tracker.Fill, error) {
	rows, err := j.db.QueryContext(ctx, `
		SELECT order_id, side, fill_price, intended_price, quantity, notional, profit, wash, filled_at
		FROM fills ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("failed to query fills: %w", err)
	}
	defer rows.Close()

	var out []tracker.Fill
	for rows.Next() {
		var (
			f                                                       tracker.Fill
			side                                                    string
			fillPrice, intendedPrice, quantity, notional, profitStr string
			wash                                                    int
			filledAt                                                time.Time
		)
		if err := rows.Scan(&f.OrderID, &side, &fillPrice, &intendedPrice, &quantity,
			&notional, &profitStr, &wash, &filledAt); err != nil {
			return nil, fmt.Errorf("failed to scan fill: %w", err)
		}
		f.Side = core.Side(side)
		if f.FillPrice, err = decimal.NewFromString(fillPrice); err != nil {
			return nil, fmt.Errorf("corrupt fill_price %q: %w", fillPrice, err)
		}
		if f.IntendedPrice, err = decimal.NewFromString(intendedPrice); err != nil {
			return nil, fmt.Errorf("corrupt intended_price %q: %w", intendedPrice, err)
		}
		if f.Quantity, err = decimal.NewFromString(quantity); err != nil {
			return nil, fmt.Errorf("corrupt quantity %q: %w", quantity, err)
		}
		if f.Notional, err = decimal.NewFromString(notional); err != nil {
			return nil, fmt.Errorf("corrupt notional %q: %w", notional, err)
		}
		if f.Profit, err = decimal.NewFromString(profitStr); err != nil {
			return nil, fmt.Errorf("corrupt profit %q: %w", profitStr, err)
		}
		f.Wash = wash != 0
		f.FilledAt = filledAt
		out = append(out, f)
	}
	return out, rows.Err()
}

// Close closes the underlying database.
func (j *SQLiteJournal) Close() error {
	return j.db.Close()
}
