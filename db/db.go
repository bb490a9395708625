package db

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	_ "github.com/lib/pq" // PostgreSQL driver

	"github.com/aliasimcoskun/phishguard/models"
)

// DB wraps the database connection and provides data access methods
type DB struct {
	conn *sql.DB
}

// Config contains database configuration
type Config struct {
	DSN string // PostgreSQL connection string
}

// New creates a new database connection
func New(config Config) (*DB, error) {
	conn, err := sql.Open("postgres", config.DSN)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// Test connection
	if err := conn.Ping(); err != nil {
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	// Configure connection pool
	conn.SetMaxOpenConns(25)
	conn.SetMaxIdleConns(5)
	conn.SetConnMaxLifetime(5 * time.Minute)

	db := &DB{conn: conn}

	// Run PostgreSQL migrations
	if err := Migrate(conn); err != nil {
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}

	return db, nil
}

// Close closes the database connection
func (db *DB) Close() error {
	return db.conn.Close()
}

// DB returns the underlying database connection for metrics collection
func (db *DB) DB() *sql.DB {
	return db.conn
}

// SaveAnalysis saves an analysis result to the database. Re-analyzing a URL
// replaces the previous row for that URL.
func (db *DB) SaveAnalysis(result *models.AnalysisResult) error {
	tx, err := db.conn.Begin()
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	jsonData, err := json.Marshal(result)
	if err != nil {
		return fmt.Errorf("failed to marshal result: %w", err)
	}

	query := `
		INSERT INTO analyses (id, url, final_url, verdict, score, slug, data, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		ON CONFLICT(url) DO UPDATE SET
			id = excluded.id,
			final_url = excluded.final_url,
			verdict = excluded.verdict,
			score = excluded.score,
			slug = excluded.slug,
			data = excluded.data,
			updated_at = excluded.updated_at
	`

	_, err = tx.Exec(
		query,
		result.ID,
		result.URL,
		result.FinalURL,
		result.Verdict,
		result.Score,
		result.Slug,
		string(jsonData),
		result.AnalyzedAt,
		time.Now(),
	)
	if err != nil {
		return fmt.Errorf("failed to save analysis: %w", err)
	}

	return tx.Commit()
}

// GetByID retrieves an analysis by its ID. Returns nil without error when no
// row matches.
func (db *DB) GetByID(id string) (*models.AnalysisResult, error) {
	return db.getOne("SELECT data FROM analyses WHERE id = $1", id)
}

// GetByURL retrieves the most recent analysis for an input URL. Returns nil
// without error when no row matches.
func (db *DB) GetByURL(url string) (*models.AnalysisResult, error) {
	return db.getOne("SELECT data FROM analyses WHERE url = $1", url)
}

func (db *DB) getOne(query string, arg any) (*models.AnalysisResult, error) {
	var data string
	err := db.conn.QueryRow(query, arg).Scan(&data)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to query analysis: %w", err)
	}

	var result models.AnalysisResult
	if err := json.Unmarshal([]byte(data), &result); err != nil {
		return nil, fmt.Errorf("failed to unmarshal analysis: %w", err)
	}
	return &result, nil
}

// List returns analyses ordered by recency
func (db *DB) List(limit, offset int) ([]*models.AnalysisResult, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := db.conn.Query(
		"SELECT data FROM analyses ORDER BY updated_at DESC LIMIT $1 OFFSET $2",
		limit, offset,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to list analyses: %w", err)
	}
	defer rows.Close()

	var results []*models.AnalysisResult
	for rows.Next() {
		var data string
		if err := rows.Scan(&data); err != nil {
			return nil, fmt.Errorf("failed to scan analysis: %w", err)
		}
		var result models.AnalysisResult
		if err := json.Unmarshal([]byte(data), &result); err != nil {
			return nil, fmt.Errorf("failed to unmarshal analysis: %w", err)
		}
		results = append(results, &result)
	}
	return results, rows.Err()
}

// Delete removes an analysis by ID
func (db *DB) Delete(id string) error {
	res, err := db.conn.Exec("DELETE FROM analyses WHERE id = $1", id)
	if err != nil {
		return fmt.Errorf("failed to delete analysis: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return sql.ErrNoRows
	}
	return nil
}

// Count returns the total number of stored analyses
func (db *DB) Count() (int, error) {
	var count int
	err := db.conn.QueryRow("SELECT COUNT(*) FROM analyses").Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("failed to count analyses: %w", err)
	}
	return count, nil
}

// CountByVerdict returns stored analysis counts grouped by verdict, used by
// the metrics updater.
func (db *DB) CountByVerdict() (map[string]int, error) {
	rows, err := db.conn.Query("SELECT verdict, COUNT(*) FROM analyses GROUP BY verdict")
	if err != nil {
		return nil, fmt.Errorf("failed to count by verdict: %w", err)
	}
	defer rows.Close()

	counts := make(map[string]int)
	for rows.Next() {
		var verdict string
		var count int
		if err := rows.Scan(&verdict, &count); err != nil {
			return nil, err
		}
		counts[verdict] = count
	}
	return counts, rows.Err()
}
