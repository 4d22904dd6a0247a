// Package store provides the SQLite-backed record store for extracted QA
// pairs and the per-file processing ledger. It is the system of record; the
// vector index is rebuilt from it and never consulted for truth.
package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"math"
	"os"
	"path/filepath"

	_ "modernc.org/sqlite" // register "sqlite" driver
)

// SourceTelegram marks pairs captured by the Telegram chat monitor, as
// opposed to pairs extracted from call recordings.
const SourceTelegram = "tglawyers"

// CallMetadata holds the call attributes parsed from a dialog filename.
type CallMetadata struct {
	DialogID      string
	CallDirection string
	OperatorPhone string
	ClientPhone   string
	CallDate      string
	CallTime      string
}

// Pair is a single extracted question-answer pair.
type Pair struct {
	ID       int64
	DialogID string
	Filename string
	// Source distinguishes pair origins; empty for call extractions.
	Source string

	CallDirection string
	OperatorPhone string
	ClientPhone   string
	CallDate      string
	CallTime      string

	Question     string
	Answer       string
	Direction    string
	QuestionType string
	// Keywords is the decoded keyword list (stored as JSON).
	Keywords []string

	// QualityScore is the 1–10 LLM quality assessment, nil until scored.
	QualityScore *float64
	IsAudited    bool
	IsIrrelevant bool
}

// Statistics summarises the record store contents.
type Statistics struct {
	TotalFiles      int
	FilesWithPairs  int
	TotalPairs      int
	ByDirection     map[string]int
	ByType          map[string]int
	AvgQualityScore float64
	AuditedPairs    int
	IrrelevantPairs int
}

// Store is the SQLite QA-pair record store.
type Store struct {
	db *sql.DB
}

// DefaultDBPath returns the default database path, ~/.qaforge/qa_database.db,
// creating the directory if needed.
func DefaultDBPath() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("store: could not determine home directory: %w", err)
	}
	dir := filepath.Join(home, ".qaforge")
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return "", fmt.Errorf("store: could not create %s: %w", dir, err)
	}
	return filepath.Join(dir, "qa_database.db"), nil
}

// Open opens (or creates) a Store at the given path and runs the schema
// migration. Use ":memory:" for an in-memory database in tests.
func Open(path string) (*Store, error) {
	// WAL mode improves concurrent read performance and is safe for single-host use.
	dsn := path + "?_journal_mode=WAL&_busy_timeout=5000"
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("store: open %s: %w", path, err)
	}
	// Limit to a single writer connection to avoid SQLITE_BUSY under concurrent writes.
	db.SetMaxOpenConns(1)

	s := &Store{db: db}
	if err := s.migrate(); err != nil {
		_ = db.Close()
		return nil, err
	}
	return s, nil
}

// migrate creates the schema if it does not already exist.
func (s *Store) migrate() error {
	const ddl = `
CREATE TABLE IF NOT EXISTS processed_files (
    id                 INTEGER PRIMARY KEY AUTOINCREMENT,
    filename           TEXT UNIQUE NOT NULL,
    dialog_id          TEXT,
    call_direction     TEXT,
    operator_phone     TEXT,
    client_phone       TEXT,
    call_date          TEXT,
    call_time          TEXT,
    processed_at       TIMESTAMP DEFAULT CURRENT_TIMESTAMP,
    total_pairs        INTEGER DEFAULT 0,
    has_business_pairs INTEGER DEFAULT 1,
    error              TEXT
);
CREATE TABLE IF NOT EXISTS qa_pairs (
    id             INTEGER PRIMARY KEY AUTOINCREMENT,
    dialog_id      TEXT NOT NULL,
    filename       TEXT NOT NULL,
    source         TEXT,
    call_direction TEXT,
    operator_phone TEXT,
    client_phone   TEXT,
    call_date      TEXT,
    call_time      TEXT,
    question       TEXT NOT NULL,
    answer         TEXT NOT NULL,
    direction      TEXT NOT NULL,
    question_type  TEXT,
    keywords       TEXT,
    created_at     TIMESTAMP DEFAULT CURRENT_TIMESTAMP,
    quality_score  REAL,
    is_audited     INTEGER DEFAULT 0,
    is_irrelevant  INTEGER DEFAULT 0
);
CREATE INDEX IF NOT EXISTS idx_qa_pairs_filename  ON qa_pairs(filename);
CREATE INDEX IF NOT EXISTS idx_qa_pairs_dialog_id ON qa_pairs(dialog_id);
CREATE INDEX IF NOT EXISTS idx_qa_pairs_direction ON qa_pairs(direction);
`
	if _, err := s.db.Exec(ddl); err != nil {
		return fmt.Errorf("store: migrate: %w", err)
	}
	return nil
}

// IsFileProcessed reports whether the named file has already been through
// extraction.
func (s *Store) IsFileProcessed(ctx context.Context, filename string) (bool, error) {
	var id int64
	err := s.db.QueryRowContext(ctx,
		`SELECT id FROM processed_files WHERE filename = ?`, filename).Scan(&id)
	if err == sql.ErrNoRows {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("store: is file processed: %w", err)
	}
	return true, nil
}

// MarkFileProcessed records the extraction outcome for a file, upserting by
// filename so re-processing updates the existing row.
func (s *Store) MarkFileProcessed(ctx context.Context, filename string, totalPairs int, hasBusinessPairs bool, procErr string, meta *CallMetadata) error {
	m := meta
	if m == nil {
		m = &CallMetadata{}
	}
	const q = `
INSERT INTO processed_files
    (filename, total_pairs, has_business_pairs, error,
     dialog_id, call_direction, operator_phone, client_phone, call_date, call_time)
VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
ON CONFLICT(filename) DO UPDATE SET
    processed_at = CURRENT_TIMESTAMP,
    total_pairs = excluded.total_pairs,
    has_business_pairs = excluded.has_business_pairs,
    error = excluded.error,
    dialog_id = excluded.dialog_id,
    call_direction = excluded.call_direction,
    operator_phone = excluded.operator_phone,
    client_phone = excluded.client_phone,
    call_date = excluded.call_date,
    call_time = excluded.call_time`
	_, err := s.db.ExecContext(ctx, q,
		filename, totalPairs, boolInt(hasBusinessPairs), nullStr(procErr),
		m.DialogID, m.CallDirection, m.OperatorPhone, m.ClientPhone, m.CallDate, m.CallTime)
	if err != nil {
		return fmt.Errorf("store: mark file processed: %w", err)
	}
	return nil
}

// SavePairs persists a batch of extracted pairs in one transaction.
func (s *Store) SavePairs(ctx context.Context, pairs []Pair) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("store: save pairs: begin: %w", err)
	}
	defer tx.Rollback()

	const q = `
INSERT INTO qa_pairs
    (dialog_id, filename, source, call_direction, operator_phone, client_phone,
     call_date, call_time, question, answer, direction, question_type, keywords, quality_score)
VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`
	stmt, err := tx.PrepareContext(ctx, q)
	if err != nil {
		return fmt.Errorf("store: save pairs: prepare: %w", err)
	}
	defer stmt.Close()

	for _, p := range pairs {
		keywords, err := json.Marshal(p.Keywords)
		if err != nil {
			return fmt.Errorf("store: save pairs: marshal keywords: %w", err)
		}
		if p.Keywords == nil {
			keywords = []byte("[]")
		}
		var score any
		if p.QualityScore != nil {
			score = *p.QualityScore
		}
		_, err = stmt.ExecContext(ctx,
			p.DialogID, p.Filename, nullStr(p.Source),
			p.CallDirection, p.OperatorPhone, p.ClientPhone,
			p.CallDate, p.CallTime,
			p.Question, p.Answer, p.Direction, p.QuestionType,
			string(keywords), score)
		if err != nil {
			return fmt.Errorf("store: save pairs: insert: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("store: save pairs: commit: %w", err)
	}
	return nil
}

// PairExists reports whether a pair with the given dialog ID is already
// stored. The chat monitor uses it for dedup.
func (s *Store) PairExists(ctx context.Context, dialogID string) (bool, error) {
	var id int64
	err := s.db.QueryRowContext(ctx,
		`SELECT id FROM qa_pairs WHERE dialog_id = ?`, dialogID).Scan(&id)
	if err == sql.ErrNoRows {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("store: pair exists: %w", err)
	}
	return true, nil
}

// ListEligible returns the pairs eligible for indexing. Pairs flagged
// irrelevant are skipped when excludeIrrelevant is set; when indexAll is
// false only audited pairs qualify.
func (s *Store) ListEligible(ctx context.Context, indexAll, excludeIrrelevant bool) ([]Pair, error) {
	q := `
SELECT id, dialog_id, filename, COALESCE(source, ''),
       COALESCE(call_direction, ''), COALESCE(operator_phone, ''), COALESCE(client_phone, ''),
       COALESCE(call_date, ''), COALESCE(call_time, ''),
       question, answer, direction, COALESCE(question_type, ''), COALESCE(keywords, '[]'),
       quality_score, is_audited, COALESCE(is_irrelevant, 0)
FROM qa_pairs
WHERE 1=1`
	if excludeIrrelevant {
		q += ` AND (is_irrelevant = 0 OR is_irrelevant IS NULL)`
	}
	if !indexAll {
		q += ` AND is_audited = 1`
	}
	q += ` ORDER BY id`

	rows, err := s.db.QueryContext(ctx, q)
	if err != nil {
		return nil, fmt.Errorf("store: list eligible: %w", err)
	}
	defer rows.Close()

	var pairs []Pair
	for rows.Next() {
		p, err := scanPair(rows)
		if err != nil {
			return nil, err
		}
		pairs = append(pairs, p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("store: list eligible: %w", err)
	}
	return pairs, nil
}

// GetPair returns the pair with the given ID.
func (s *Store) GetPair(ctx context.Context, id int64) (*Pair, error) {
	row := s.db.QueryRowContext(ctx, `
SELECT id, dialog_id, filename, COALESCE(source, ''),
       COALESCE(call_direction, ''), COALESCE(operator_phone, ''), COALESCE(client_phone, ''),
       COALESCE(call_date, ''), COALESCE(call_time, ''),
       question, answer, direction, COALESCE(question_type, ''), COALESCE(keywords, '[]'),
       quality_score, is_audited, COALESCE(is_irrelevant, 0)
FROM qa_pairs WHERE id = ?`, id)
	p, err := scanPair(row)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("store: pair %d not found", id)
	}
	if err != nil {
		return nil, err
	}
	return &p, nil
}

// UpdateAnswer replaces the answer text of a pair, typically after expert
// review. The change reaches the index on the next rebuild.
func (s *Store) UpdateAnswer(ctx context.Context, id int64, answer string) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE qa_pairs SET answer = ? WHERE id = ?`, answer, id)
	if err != nil {
		return fmt.Errorf("store: update answer: %w", err)
	}
	return requireRow(res, id)
}

// SetQualityScore records the LLM quality assessment for a pair.
func (s *Store) SetQualityScore(ctx context.Context, id int64, score float64) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE qa_pairs SET quality_score = ? WHERE id = ?`, score, id)
	if err != nil {
		return fmt.Errorf("store: set quality score: %w", err)
	}
	return requireRow(res, id)
}

// SetAudited marks a pair as expert-approved. Approval clears any
// irrelevant flag: the two states are mutually exclusive.
func (s *Store) SetAudited(ctx context.Context, id int64) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE qa_pairs SET is_audited = 1, is_irrelevant = 0 WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("store: set audited: %w", err)
	}
	return requireRow(res, id)
}

// SetIrrelevant flags a pair as noise. The flag clears any audited mark.
func (s *Store) SetIrrelevant(ctx context.Context, id int64) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE qa_pairs SET is_irrelevant = 1, is_audited = 0 WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("store: set irrelevant: %w", err)
	}
	return requireRow(res, id)
}

// Statistics summarises the record store for the stats command.
func (s *Store) Statistics(ctx context.Context) (*Statistics, error) {
	stats := &Statistics{
		ByDirection: make(map[string]int),
		ByType:      make(map[string]int),
	}

	counts := []struct {
		query string
		dst   *int
	}{
		{`SELECT COUNT(*) FROM processed_files`, &stats.TotalFiles},
		{`SELECT COUNT(*) FROM processed_files WHERE has_business_pairs = 1`, &stats.FilesWithPairs},
		{`SELECT COUNT(*) FROM qa_pairs`, &stats.TotalPairs},
		{`SELECT COUNT(*) FROM qa_pairs WHERE is_audited = 1`, &stats.AuditedPairs},
		{`SELECT COUNT(*) FROM qa_pairs WHERE is_irrelevant = 1`, &stats.IrrelevantPairs},
	}
	for _, c := range counts {
		if err := s.db.QueryRowContext(ctx, c.query).Scan(c.dst); err != nil {
			return nil, fmt.Errorf("store: statistics: %w", err)
		}
	}

	if err := s.groupCount(ctx,
		`SELECT direction, COUNT(*) FROM qa_pairs GROUP BY direction`,
		stats.ByDirection); err != nil {
		return nil, err
	}
	if err := s.groupCount(ctx,
		`SELECT question_type, COUNT(*) FROM qa_pairs WHERE question_type IS NOT NULL AND question_type != '' GROUP BY question_type`,
		stats.ByType); err != nil {
		return nil, err
	}

	var avg sql.NullFloat64
	if err := s.db.QueryRowContext(ctx,
		`SELECT AVG(quality_score) FROM qa_pairs`).Scan(&avg); err != nil {
		return nil, fmt.Errorf("store: statistics: avg score: %w", err)
	}
	if avg.Valid {
		stats.AvgQualityScore = math.Round(avg.Float64*100) / 100
	}

	return stats, nil
}

// Ping verifies the database connection.
func (s *Store) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// Close closes the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// groupCount runs a (key, count) query into dst.
func (s *Store) groupCount(ctx context.Context, query string, dst map[string]int) error {
	rows, err := s.db.QueryContext(ctx, query)
	if err != nil {
		return fmt.Errorf("store: statistics: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		var key string
		var n int
		if err := rows.Scan(&key, &n); err != nil {
			return fmt.Errorf("store: statistics: scan: %w", err)
		}
		dst[key] = n
	}
	return rows.Err()
}

// rowScanner covers both *sql.Row and *sql.Rows.
type rowScanner interface {
	Scan(dest ...any) error
}

func scanPair(r rowScanner) (Pair, error) {
	var p Pair
	var keywords string
	var score sql.NullFloat64
	var audited, irrelevant int
	err := r.Scan(&p.ID, &p.DialogID, &p.Filename, &p.Source,
		&p.CallDirection, &p.OperatorPhone, &p.ClientPhone,
		&p.CallDate, &p.CallTime,
		&p.Question, &p.Answer, &p.Direction, &p.QuestionType, &keywords,
		&score, &audited, &irrelevant)
	if err != nil {
		return Pair{}, err
	}
	if score.Valid {
		v := score.Float64
		p.QualityScore = &v
	}
	p.IsAudited = audited != 0
	p.IsIrrelevant = irrelevant != 0
	// Keywords are stored as a JSON array; tolerate malformed rows.
	if err := json.Unmarshal([]byte(keywords), &p.Keywords); err != nil {
		p.Keywords = nil
	}
	return p, nil
}

func requireRow(res sql.Result, id int64) error {
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("store: rows affected: %w", err)
	}
	if n == 0 {
		return fmt.Errorf("store: pair %d not found", id)
	}
	return nil
}

func boolInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

func nullStr(s string) any {
	if s == "" {
		return nil
	}
	return s
}
