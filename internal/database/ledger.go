package database

import (
	"database/sql"
	"fmt"
	"time"
)

// Outcome is the terminal state recorded for a processed article.
type Outcome string

const (
	OutcomeNotBreach      Outcome = "not_breach"
	OutcomeBelowThreshold Outcome = "below_threshold"
	OutcomeCreated        Outcome = "created"
	OutcomeUpdated        Outcome = "updated"
	OutcomeMerged         Outcome = "merged"
)

// IsProcessed reports whether the article id is in the ledger.
func (db *DB) IsProcessed(id string) (bool, error) {
	var one int
	err := db.conn.QueryRow("SELECT 1 FROM processed_articles WHERE id = ?", id).Scan(&one)
	if err == sql.ErrNoRows {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("checking ledger for %s: %w", id, err)
	}
	return true, nil
}

// FilterUnprocessed returns the ids not yet in the ledger, preserving order.
func (db *DB) FilterUnprocessed(ids []string) ([]string, error) {
	stmt, err := db.conn.Prepare("SELECT 1 FROM processed_articles WHERE id = ?")
	if err != nil {
		return nil, fmt.Errorf("preparing ledger lookup: %w", err)
	}
	defer stmt.Close()

	var out []string
	for _, id := range ids {
		var one int
		err := stmt.QueryRow(id).Scan(&one)
		if err == sql.ErrNoRows {
			out = append(out, id)
			continue
		}
		if err != nil {
			return nil, fmt.Errorf("checking ledger for %s: %w", id, err)
		}
	}
	return out, nil
}

// MarkProcessed appends the article to the ledger. The first outcome wins;
// re-marking an id is a no-op.
func (db *DB) MarkProcessed(id, source string, outcome Outcome) error {
	_, err := db.conn.Exec(
		`INSERT INTO processed_articles (id, source, outcome, processed_at)
		VALUES (?, ?, ?, ?) ON CONFLICT(id) DO NOTHING`,
		id, source, string(outcome), formatTime(time.Now()),
	)
	if err != nil {
		return fmt.Errorf("marking %s processed: %w", id, err)
	}
	return nil
}

// Stats summarises the store for the status command.
type Stats struct {
	Processed     int
	ByOutcome     map[Outcome]int
	Breaches      int
	Updates       int
	LastProcessed *time.Time
}

// GetStats counts ledger entries, breaches and updates.
func (db *DB) GetStats() (*Stats, error) {
	s := &Stats{ByOutcome: make(map[Outcome]int)}

	rows, err := db.conn.Query("SELECT outcome, COUNT(*) FROM processed_articles GROUP BY outcome")
	if err != nil {
		return nil, fmt.Errorf("counting ledger: %w", err)
	}
	for rows.Next() {
		var outcome string
		var n int
		if err := rows.Scan(&outcome, &n); err != nil {
			rows.Close()
			return nil, err
		}
		s.ByOutcome[Outcome(outcome)] = n
		s.Processed += n
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, err
	}

	if err := db.conn.QueryRow("SELECT COUNT(*) FROM breaches").Scan(&s.Breaches); err != nil {
		return nil, fmt.Errorf("counting breaches: %w", err)
	}
	if err := db.conn.QueryRow("SELECT COUNT(*) FROM breach_updates").Scan(&s.Updates); err != nil {
		return nil, fmt.Errorf("counting updates: %w", err)
	}

	var last sql.NullString
	if err := db.conn.QueryRow("SELECT MAX(processed_at) FROM processed_articles").Scan(&last); err != nil {
		return nil, fmt.Errorf("reading last run: %w", err)
	}
	s.LastProcessed = parseTimePtr(last)
	return s, nil
}
