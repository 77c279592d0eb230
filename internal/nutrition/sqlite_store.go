package nutrition

import (
	"context"
	"database/sql"
	"strings"
	"sync"

	_ "github.com/mattn/go-sqlite3"
	"github.com/pkg/errors"
)

// SQLiteStore serves records from a foods table, typically filled by cmd/nutridb.
type SQLiteStore struct {
	conn *sql.DB
	mu   sync.RWMutex
}

func OpenSQLite(dbPath string) (*SQLiteStore, error) {
	conn, err := sql.Open("sqlite3", dbPath+"?_journal_mode=WAL&_busy_timeout=5000")
	if err != nil {
		return nil, errors.Wrap(err, "failed to open database")
	}

	conn.SetMaxOpenConns(1)
	conn.SetMaxIdleConns(1)
	conn.SetConnMaxLifetime(0)

	s := &SQLiteStore{conn: conn}
	if err := s.migrate(); err != nil {
		conn.Close()
		return nil, errors.Wrap(err, "failed to migrate database")
	}
	return s, nil
}

func (s *SQLiteStore) migrate() error {
	schema := `
	CREATE TABLE IF NOT EXISTS foods (
		name TEXT PRIMARY KEY,
		calories REAL,
		protein REAL,
		fat REAL,
		carbs REAL,
		fiber REAL
	);
	`
	_, err := s.conn.Exec(schema)
	return err
}

// Import upserts records, normalizing their keys. It returns the number of rows written.
func (s *SQLiteStore) Import(ctx context.Context, records map[string]Record) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	tx, err := s.conn.BeginTx(ctx, nil)
	if err != nil {
		return 0, errors.Wrap(err, "begin import")
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO foods (name, calories, protein, fat, carbs, fiber)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT(name) DO UPDATE SET
			calories = excluded.calories,
			protein = excluded.protein,
			fat = excluded.fat,
			carbs = excluded.carbs,
			fiber = excluded.fiber`)
	if err != nil {
		return 0, errors.Wrap(err, "prepare import")
	}
	defer stmt.Close()

	count := 0
	for name, rec := range records {
		key := Normalize(name)
		if key == "" {
			continue
		}
		if _, err := stmt.ExecContext(ctx, key, rec.Calories, rec.Protein, rec.Fat, rec.Carbs, rec.Fiber); err != nil {
			return 0, errors.Wrapf(err, "insert %q", key)
		}
		count++
	}

	if err := tx.Commit(); err != nil {
		return 0, errors.Wrap(err, "commit import")
	}
	return count, nil
}

func (s *SQLiteStore) Records(ctx context.Context, keys []string) (map[string]Record, error) {
	out := make(map[string]Record, len(keys))
	if len(keys) == 0 {
		return out, nil
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	placeholders := strings.TrimSuffix(strings.Repeat("?,", len(keys)), ",")
	args := make([]interface{}, len(keys))
	for i, k := range keys {
		args[i] = k
	}

	rows, err := s.conn.QueryContext(ctx,
		"SELECT name, calories, protein, fat, carbs, fiber FROM foods WHERE name IN ("+placeholders+")",
		args...)
	if err != nil {
		return nil, errors.Wrap(err, "query foods")
	}
	defer rows.Close()

	for rows.Next() {
		var (
			name                              string
			calories, protein, fat, carbs, fb sql.NullFloat64
		)
		if err := rows.Scan(&name, &calories, &protein, &fat, &carbs, &fb); err != nil {
			return nil, errors.Wrap(err, "scan food")
		}
		out[name] = Record{
			Calories: nullable(calories),
			Protein:  nullable(protein),
			Fat:      nullable(fat),
			Carbs:    nullable(carbs),
			Fiber:    nullable(fb),
		}
	}
	return out, rows.Err()
}

func (s *SQLiteStore) Count(ctx context.Context) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var n int
	err := s.conn.QueryRowContext(ctx, "SELECT COUNT(*) FROM foods").Scan(&n)
	return n, err
}

func (s *SQLiteStore) Close() error {
	return s.conn.Close()
}

func nullable(v sql.NullFloat64) *float64 {
	if !v.Valid {
		return nil
	}
	f := v.Float64
	return &f
}
