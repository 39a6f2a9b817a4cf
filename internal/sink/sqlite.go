package sink

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	_ "modernc.org/sqlite"

	"github.com/JonMunkholm/csvbind/internal/core"
)

// OpenSQLite opens (or creates) the database file at path.
func OpenSQLite(path string) (*sql.DB, error) {
	if path != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			return nil, fmt.Errorf("create db directory: %w", err)
		}
		path += "?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)"
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	// SQLite has a single writer
	db.SetMaxOpenConns(1)
	return db, nil
}

// SQLite inserts batches into a table it creates on demand. Values the
// driver cannot store natively are written in their CSV text form.
type SQLite struct {
	db      *sql.DB
	table   string
	columns []*core.ColumnSpec
	insert  string
	rows    int64
}

// NewSQLite creates the table for schema if needed and returns its sink.
func NewSQLite(ctx context.Context, db *sql.DB, table string, schema *core.Schema) (*SQLite, error) {
	s := &SQLite{
		db:      db,
		table:   table,
		columns: schema.OrderedColumns(),
	}

	defs := make([]string, len(s.columns))
	names := make([]string, len(s.columns))
	marks := make([]string, len(s.columns))
	for i, col := range s.columns {
		names[i] = quoteIdent(col.Name)
		defs[i] = names[i] + " " + sqliteType(col.ConverterKey.Type)
		marks[i] = "?"
	}

	create := fmt.Sprintf("CREATE TABLE IF NOT EXISTS %s (%s)", quoteIdent(table), strings.Join(defs, ", "))
	if _, err := db.ExecContext(ctx, create); err != nil {
		return nil, fmt.Errorf("create table %s: %w", table, err)
	}

	s.insert = fmt.Sprintf("INSERT INTO %s (%s) VALUES (%s)",
		quoteIdent(table), strings.Join(names, ", "), strings.Join(marks, ", "))
	return s, nil
}

// SQLiteOpener opens a SQLite sink per schema, using the schema name as
// table name.
func SQLiteOpener(db *sql.DB) Opener {
	return func(ctx context.Context, schema *core.Schema) (Sink, error) {
		return NewSQLite(ctx, db, schema.Name(), schema)
	}
}

// Write inserts batch in one transaction.
func (s *SQLite) Write(ctx context.Context, batch []any) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx, s.insert)
	if err != nil {
		return fmt.Errorf("prepare insert: %w", err)
	}
	defer stmt.Close()

	for _, rec := range batch {
		row, err := rowValues(s.columns, rec)
		if err != nil {
			return err
		}
		if err := s.storable(row); err != nil {
			return err
		}
		if _, err := stmt.ExecContext(ctx, row...); err != nil {
			return fmt.Errorf("insert into %s: %w", s.table, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit: %w", err)
	}
	s.rows += int64(len(batch))
	return nil
}

// Rows returns the number of rows inserted so far.
func (s *SQLite) Rows() int64 { return s.rows }

// storable replaces values SQLite has no type for by their formatted text.
func (s *SQLite) storable(row []any) error {
	for i, v := range row {
		switch v.(type) {
		case nil, string, int, int64, float64, bool:
			continue
		}
		text, err := s.columns[i].Converter().Format(v)
		if err != nil {
			return fmt.Errorf("format column %s: %w", s.columns[i].Name, err)
		}
		row[i] = text
	}
	return nil
}

func sqliteType(converter string) string {
	switch converter {
	case "integer", "boolean", "time":
		return "INTEGER"
	case "double":
		return "REAL"
	default:
		return "TEXT"
	}
}

func quoteIdent(name string) string {
	return `"` + strings.ReplaceAll(name, `"`, `""`) + `"`
}
