// Package store persists finished evaluations in SQLite (default) or Postgres.
package store

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/libelia/libelia/internal/model"

	_ "github.com/jackc/pgx/v5/stdlib"
	_ "modernc.org/sqlite"
)

// Driver names a supported database backend.
type Driver string

const (
	DriverSQLite   Driver = "sqlite"
	DriverPostgres Driver = "postgres"
)

type Store struct {
	db     *sql.DB
	driver Driver
}

// New opens the SQLite database at dbPath.
func New(dbPath string) (*Store, error) {
	return Open(DriverSQLite, dbPath)
}

// Open connects to driver using dsn and creates the schema if needed.
// For SQLite dsn is a file path (or ":memory:").
func Open(driver Driver, dsn string) (*Store, error) {
	var db *sql.DB
	var err error
	switch driver {
	case DriverSQLite, "":
		driver = DriverSQLite
		if dsn == "" {
			dsn = "libelia.db"
		}
		db, err = sql.Open("sqlite", dsn+"?_journal_mode=WAL&_busy_timeout=5000")
	case DriverPostgres:
		if dsn == "" {
			return nil, fmt.Errorf("postgres requires a DSN")
		}
		db, err = sql.Open("pgx", dsn)
	default:
		return nil, fmt.Errorf("unsupported database driver %q", driver)
	}
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	if driver == DriverSQLite {
		// A shared :memory: database only lives as long as its connection.
		db.SetMaxOpenConns(1)
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}
	s := &Store{db: db, driver: driver}
	if err := s.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}
	return s, nil
}

func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) migrate() error {
	schema := `
	CREATE TABLE IF NOT EXISTS evaluations (
		id TEXT PRIMARY KEY,
		student_name TEXT NOT NULL DEFAULT '',
		subject TEXT NOT NULL DEFAULT '',
		grade REAL NOT NULL,
		score REAL NOT NULL,
		max_score REAL NOT NULL,
		response_json TEXT NOT NULL,
		created_at TIMESTAMP NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_evaluations_subject ON evaluations(subject);

	CREATE TABLE IF NOT EXISTS settings (
		key TEXT PRIMARY KEY,
		value TEXT NOT NULL
	);
	`
	if s.driver == DriverPostgres {
		schema = strings.ReplaceAll(schema, "REAL", "DOUBLE PRECISION")
		// pgx runs one statement per Exec in extended protocol.
		for _, stmt := range strings.Split(schema, ";") {
			if strings.TrimSpace(stmt) == "" {
				continue
			}
			if _, err := s.db.Exec(stmt); err != nil {
				return err
			}
		}
		return nil
	}
	_, err := s.db.Exec(schema)
	return err
}

// rebind rewrites ? placeholders as $1, $2, ... for Postgres.
func (s *Store) rebind(query string) string {
	if s.driver != DriverPostgres {
		return query
	}
	var b strings.Builder
	n := 0
	for _, r := range query {
		if r == '?' {
			n++
			b.WriteByte('$')
			b.WriteString(strconv.Itoa(n))
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}

// SaveEvaluation stores e, assigning an ID and creation time when missing.
// It returns the stored ID.
func (s *Store) SaveEvaluation(e model.Evaluation) (string, error) {
	if e.ID == "" {
		e.ID = uuid.NewString()
	}
	if e.CreatedAt.IsZero() {
		e.CreatedAt = time.Now().UTC()
	}
	e.Response.EvaluationID = e.ID
	body, err := json.Marshal(e.Response)
	if err != nil {
		return "", fmt.Errorf("marshal response: %w", err)
	}
	_, err = s.db.Exec(s.rebind(
		`INSERT INTO evaluations (id, student_name, subject, grade, score, max_score, response_json, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`),
		e.ID, e.StudentName, e.Subject, e.Grade, e.Score, e.MaxScore, string(body), e.CreatedAt,
	)
	if err != nil {
		return "", fmt.Errorf("insert evaluation: %w", err)
	}
	return e.ID, nil
}

const evaluationColumns = `id, student_name, subject, grade, score, max_score, response_json, created_at`

type scanner interface {
	Scan(dest ...any) error
}

func scanEvaluation(row scanner) (model.Evaluation, error) {
	var e model.Evaluation
	var body string
	if err := row.Scan(&e.ID, &e.StudentName, &e.Subject, &e.Grade, &e.Score, &e.MaxScore, &body, &e.CreatedAt); err != nil {
		return e, err
	}
	if err := json.Unmarshal([]byte(body), &e.Response); err != nil {
		return e, fmt.Errorf("decode evaluation %s: %w", e.ID, err)
	}
	return e, nil
}

// GetEvaluation returns the evaluation with the given ID.
// Returns nil and nil error if it does not exist.
func (s *Store) GetEvaluation(id string) (*model.Evaluation, error) {
	row := s.db.QueryRow(s.rebind(`SELECT `+evaluationColumns+` FROM evaluations WHERE id = ?`), id)
	e, err := scanEvaluation(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &e, nil
}

// ListEvaluations returns evaluations newest first. An empty subject matches
// every subject; a non-positive limit returns all rows.
func (s *Store) ListEvaluations(subject string, limit int) ([]model.Evaluation, error) {
	query := `SELECT ` + evaluationColumns + ` FROM evaluations WHERE 1=1`
	var args []any
	if subject != "" {
		query += ` AND subject = ?`
		args = append(args, subject)
	}
	query += ` ORDER BY created_at DESC, id`
	if limit > 0 {
		query += ` LIMIT ?`
		args = append(args, limit)
	}

	rows, err := s.db.Query(s.rebind(query), args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var list []model.Evaluation
	for rows.Next() {
		e, err := scanEvaluation(rows)
		if err != nil {
			return nil, err
		}
		list = append(list, e)
	}
	return list, rows.Err()
}

// EvaluationCount returns the number of stored evaluations.
func (s *Store) EvaluationCount() (int, error) {
	var n int
	err := s.db.QueryRow(`SELECT COUNT(*) FROM evaluations`).Scan(&n)
	return n, err
}
