package database

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/breachwatch/scraper/internal/breach"
)

// SaveResult reports where a record ended up.
type SaveResult struct {
	ID      uuid.UUID
	Created bool
}

const breachColumns = `b.id, b.company, b.industry, b.country, b.discovery_date, b.records_affected,
	b.breach_method, b.attack_vector, b.data_compromised, b.severity, b.cve_references,
	b.mitre_attack_techniques, b.summary, b.lessons_learned, b.source_url, b.source_title,
	b.created_at, (SELECT COUNT(*) FROM breach_updates u WHERE u.breach_id = b.id)`

// SaveBreach inserts a new breach, upserting by dedup key. When another
// record already holds the same company and discovery month, the article is
// appended to that breach as a new_info update instead of creating a
// duplicate. Records without a dedup key are always inserted.
func (db *DB) SaveBreach(rec *breach.Record, article breach.Article) (SaveResult, error) {
	key := breach.DedupKey(rec.Company, rec.DiscoveryDate)

	dataJSON, err := marshalList(rec.DataCompromised)
	if err != nil {
		return SaveResult{}, err
	}
	cveJSON, err := marshalList(rec.CVEReferences)
	if err != nil {
		return SaveResult{}, err
	}
	mitreJSON, err := marshalList(rec.MITRETechniques)
	if err != nil {
		return SaveResult{}, err
	}

	tx, err := db.conn.Begin()
	if err != nil {
		return SaveResult{}, fmt.Errorf("begin save: %w", err)
	}
	defer tx.Rollback()

	id := uuid.New()
	now := formatTime(time.Now())
	res, err := tx.Exec(
		`INSERT INTO breaches (id, company, industry, country, discovery_date, records_affected,
			breach_method, attack_vector, data_compromised, severity, cve_references,
			mitre_attack_techniques, summary, lessons_learned, source_url, source_title,
			source_article_id, dedup_key, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(dedup_key) DO NOTHING`,
		id.String(), rec.Company, rec.Industry, rec.Country, formatDatePtr(rec.DiscoveryDate),
		rec.RecordsAffected, rec.BreachMethod, enumPtr(rec.AttackVector), dataJSON,
		enumPtr(rec.Severity), cveJSON, mitreJSON, rec.Summary, rec.LessonsLearned,
		article.URL, article.Title, nullString(article.ID), nullString(key), now,
	)
	if err != nil {
		return SaveResult{}, fmt.Errorf("inserting breach: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return SaveResult{}, err
	}

	result := SaveResult{ID: id, Created: true}
	if n == 0 {
		var existing string
		if err := tx.QueryRow("SELECT id FROM breaches WHERE dedup_key = ?", key).Scan(&existing); err != nil {
			return SaveResult{}, fmt.Errorf("looking up breach for %q: %w", key, err)
		}
		if result.ID, err = uuid.Parse(existing); err != nil {
			return SaveResult{}, fmt.Errorf("stored breach id %q: %w", existing, err)
		}
		result.Created = false
		if _, err := insertUpdate(tx, breach.Update{
			BreachID:    result.ID,
			UpdateType:  breach.UpdateNewInfo,
			SourceURL:   article.URL,
			SourceTitle: article.Title,
			Description: rec.Summary,
			Confidence:  1,
		}); err != nil {
			return SaveResult{}, err
		}
	}

	if err := tx.Commit(); err != nil {
		return SaveResult{}, fmt.Errorf("commit save: %w", err)
	}
	return result, nil
}

// AddUpdate appends an update event to an existing breach.
func (db *DB) AddUpdate(u breach.Update) (int64, error) {
	tx, err := db.conn.Begin()
	if err != nil {
		return 0, fmt.Errorf("begin update: %w", err)
	}
	defer tx.Rollback()

	id, err := insertUpdate(tx, u)
	if err != nil {
		return 0, err
	}
	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("commit update: %w", err)
	}
	return id, nil
}

func insertUpdate(tx *sql.Tx, u breach.Update) (int64, error) {
	created := u.CreatedAt
	if created.IsZero() {
		created = time.Now()
	}
	res, err := tx.Exec(
		`INSERT INTO breach_updates (breach_id, update_type, source_url, source_title, description, confidence, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)`,
		u.BreachID.String(), string(u.UpdateType), u.SourceURL, u.SourceTitle, u.Description, u.Confidence,
		formatTime(created),
	)
	if err != nil {
		return 0, fmt.Errorf("inserting update for %s: %w", u.BreachID, err)
	}
	return res.LastInsertId()
}

// RecentBreaches returns breaches discovered (or, lacking a discovery date,
// stored) on or after since, newest first. This is the candidate window the
// update resolver compares new articles against.
func (db *DB) RecentBreaches(since time.Time, limit int) ([]breach.Stored, error) {
	if limit <= 0 {
		limit = -1
	}
	rows, err := db.conn.Query(
		`SELECT `+breachColumns+`
		FROM breaches b
		WHERE COALESCE(b.discovery_date, substr(b.created_at, 1, 10)) >= ?
		ORDER BY b.created_at DESC, b.rowid DESC
		LIMIT ?`,
		since.Format(breach.DateLayout), limit,
	)
	if err != nil {
		return nil, fmt.Errorf("querying recent breaches: %w", err)
	}
	defer rows.Close()

	var out []breach.Stored
	for rows.Next() {
		s, err := scanBreach(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *s)
	}
	return out, rows.Err()
}

// GetBreach returns a single breach, or nil when it does not exist.
func (db *DB) GetBreach(id uuid.UUID) (*breach.Stored, error) {
	row := db.conn.QueryRow(`SELECT `+breachColumns+` FROM breaches b WHERE b.id = ?`, id.String())
	s, err := scanBreach(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return s, nil
}

// GetUpdates returns a breach's timeline, oldest first.
func (db *DB) GetUpdates(breachID uuid.UUID) ([]breach.Update, error) {
	rows, err := db.conn.Query(
		`SELECT id, breach_id, update_type, source_url, source_title, description, confidence, created_at
		FROM breach_updates WHERE breach_id = ? ORDER BY created_at, id`, breachID.String(),
	)
	if err != nil {
		return nil, fmt.Errorf("querying updates: %w", err)
	}
	defer rows.Close()

	var out []breach.Update
	for rows.Next() {
		var u breach.Update
		var bid, utype, created string
		if err := rows.Scan(&u.ID, &bid, &utype, &u.SourceURL, &u.SourceTitle, &u.Description, &u.Confidence, &created); err != nil {
			return nil, err
		}
		if u.BreachID, err = uuid.Parse(bid); err != nil {
			return nil, fmt.Errorf("stored breach id %q: %w", bid, err)
		}
		u.UpdateType = breach.UpdateType(utype)
		u.CreatedAt, _ = time.Parse(time.RFC3339, created)
		out = append(out, u)
	}
	return out, rows.Err()
}

type scanner interface {
	Scan(dest ...any) error
}

func scanBreach(row scanner) (*breach.Stored, error) {
	var (
		s                                             breach.Stored
		id, dataJSON, cveJSON, mitreJSON, created     string
		company, industry, country, discovery, method sql.NullString
		vector, severity, lessons                     sql.NullString
		records                                       sql.NullInt64
	)
	if err := row.Scan(&id, &company, &industry, &country, &discovery, &records, &method, &vector,
		&dataJSON, &severity, &cveJSON, &mitreJSON, &s.Record.Summary, &lessons,
		&s.SourceURL, &s.SourceTitle, &created, &s.UpdateCount); err != nil {
		return nil, err
	}

	var err error
	if s.ID, err = uuid.Parse(id); err != nil {
		return nil, fmt.Errorf("stored breach id %q: %w", id, err)
	}
	r := &s.Record
	r.Company = stringPtr(company)
	r.Industry = stringPtr(industry)
	r.Country = stringPtr(country)
	r.BreachMethod = stringPtr(method)
	r.LessonsLearned = stringPtr(lessons)
	if discovery.Valid {
		if d, err := time.Parse(breach.DateLayout, discovery.String); err == nil {
			r.DiscoveryDate = &d
		}
	}
	if records.Valid {
		n := records.Int64
		r.RecordsAffected = &n
	}
	if vector.Valid {
		v := breach.AttackVector(vector.String)
		r.AttackVector = &v
	}
	if severity.Valid {
		v := breach.Severity(severity.String)
		r.Severity = &v
	}
	for _, col := range []struct {
		raw string
		dst *[]string
	}{{dataJSON, &r.DataCompromised}, {cveJSON, &r.CVEReferences}, {mitreJSON, &r.MITRETechniques}} {
		if err := json.Unmarshal([]byte(col.raw), col.dst); err != nil {
			return nil, fmt.Errorf("decoding list for breach %s: %w", id, err)
		}
	}
	s.CreatedAt, _ = time.Parse(time.RFC3339, created)
	return &s, nil
}

func marshalList(items []string) (string, error) {
	if items == nil {
		items = []string{}
	}
	b, err := json.Marshal(items)
	if err != nil {
		return "", fmt.Errorf("encoding list: %w", err)
	}
	return string(b), nil
}

func enumPtr[T ~string](v *T) *string {
	if v == nil {
		return nil
	}
	s := string(*v)
	return &s
}

func stringPtr(ns sql.NullString) *string {
	if !ns.Valid {
		return nil
	}
	s := ns.String
	return &s
}

func nullString(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

func formatDatePtr(d *time.Time) *string {
	if d == nil {
		return nil
	}
	s := d.Format(breach.DateLayout)
	return &s
}

func formatTime(t time.Time) string {
	return t.UTC().Format(time.RFC3339)
}

func parseTimePtr(ns sql.NullString) *time.Time {
	if !ns.Valid {
		return nil
	}
	t, err := time.Parse(time.RFC3339, ns.String)
	if err != nil {
		return nil
	}
	return &t
}
