package report

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	_ "github.com/lib/pq"
)

// PostgresStore implements Store with PostgreSQL persistence.
// Reports are kept as JSON documents keyed by session and round.
type PostgresStore struct {
	db *sql.DB
}

// PostgresConfig contains PostgreSQL connection settings.
type PostgresConfig struct {
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	User     string `yaml:"user"`
	Password string `yaml:"password"`
	Database string `yaml:"database"`
	SSLMode  string `yaml:"sslmode"`
}

// ConnectionString returns the PostgreSQL connection string.
func (c *PostgresConfig) ConnectionString() string {
	sslMode := c.SSLMode
	if sslMode == "" {
		sslMode = "disable"
	}
	return fmt.Sprintf("host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		c.Host, c.Port, c.User, c.Password, c.Database, sslMode)
}

// NewPostgresStore connects to the database and creates the schema.
func NewPostgresStore(config *PostgresConfig) (*PostgresStore, error) {
	return OpenPostgresStore(config.ConnectionString())
}

// OpenPostgresStore is NewPostgresStore for a ready-made connection string.
func OpenPostgresStore(dsn string) (*PostgresStore, error) {
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}

	db.SetMaxOpenConns(25)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(5 * time.Minute)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("pinging database: %w", err)
	}

	store := &PostgresStore{db: db}
	if err := store.migrate(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("running migrations: %w", err)
	}

	return store, nil
}

func (s *PostgresStore) migrate(ctx context.Context) error {
	schema := `
	CREATE TABLE IF NOT EXISTS round_reports (
		session_id VARCHAR(128) NOT NULL,
		round INTEGER NOT NULL,
		session_type VARCHAR(32) NOT NULL,
		completeness NUMERIC(7, 4) NOT NULL,
		report JSONB NOT NULL,
		created_at TIMESTAMP WITH TIME ZONE DEFAULT NOW(),
		PRIMARY KEY (session_id, round)
	);

	CREATE INDEX IF NOT EXISTS idx_round_reports_created ON round_reports(created_at);
	`

	_, err := s.db.ExecContext(ctx, schema)
	return err
}

// SaveRound persists a report, replacing an earlier one for the same round.
func (s *PostgresStore) SaveRound(ctx context.Context, r *RoundReport) error {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	doc, err := json.Marshal(r)
	if err != nil {
		return fmt.Errorf("encoding report: %w", err)
	}

	query := `
	INSERT INTO round_reports (session_id, round, session_type, completeness, report)
	VALUES ($1, $2, $3, $4, $5)
	ON CONFLICT (session_id, round) DO UPDATE SET
		session_type = EXCLUDED.session_type,
		completeness = EXCLUDED.completeness,
		report = EXCLUDED.report,
		created_at = NOW()
	`

	_, err = s.db.ExecContext(ctx, query,
		r.SessionID,
		r.Round,
		string(r.Type),
		r.Completeness.String(),
		doc,
	)
	return err
}

// Rounds retrieves all reports of a session.
func (s *PostgresStore) Rounds(ctx context.Context, sessionID string) ([]*RoundReport, error) {
	ctx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()

	rows, err := s.db.QueryContext(ctx,
		"SELECT report FROM round_reports WHERE session_id = $1 ORDER BY round", sessionID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []*RoundReport
	for rows.Next() {
		var doc []byte
		if err := rows.Scan(&doc); err != nil {
			return nil, fmt.Errorf("scanning row: %w", err)
		}
		r := new(RoundReport)
		if err := json.Unmarshal(doc, r); err != nil {
			return nil, fmt.Errorf("decoding report: %w", err)
		}
		result = append(result, r)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	if len(result) == 0 {
		return nil, ErrNotFound
	}

	return result, nil
}

// Round retrieves one report.
func (s *PostgresStore) Round(ctx context.Context, sessionID string, round int) (*RoundReport, error) {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	var doc []byte
	err := s.db.QueryRowContext(ctx,
		"SELECT report FROM round_reports WHERE session_id = $1 AND round = $2", sessionID, round).Scan(&doc)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}

	r := new(RoundReport)
	if err := json.Unmarshal(doc, r); err != nil {
		return nil, fmt.Errorf("decoding report: %w", err)
	}
	return r, nil
}

// Sessions returns the ids of all sessions with stored reports.
func (s *PostgresStore) Sessions(ctx context.Context) ([]string, error) {
	ctx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()

	rows, err := s.db.QueryContext(ctx, "SELECT DISTINCT session_id FROM round_reports ORDER BY session_id")
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	ids := []string{}
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scanning row: %w", err)
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

// Close closes the database connection.
func (s *PostgresStore) Close() error {
	return s.db.Close()
}
