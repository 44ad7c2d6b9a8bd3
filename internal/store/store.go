// Package store persists a scan inventory to SQLite so downstream commands
// can rebuild indexes without re-reading the original tree. Compound record
// fields are stored as JSON text columns; inventory order is preserved via
// the ordinal primary key.
package store

import (
	"database/sql"
	"encoding/json"
	"fmt"

	_ "github.com/mattn/go-sqlite3"

	"github.com/jward/marginalia"
)

// Store is the SQLite data access layer for the records table.
type Store struct {
	db *sql.DB
}

// New opens a SQLite database at dbPath with WAL mode enabled.
func New(dbPath string) (*Store, error) {
	db, err := sql.Open("sqlite3", dbPath+"?_journal_mode=WAL&_busy_timeout=30000")
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}
	return &Store{db: db}, nil
}

// Close closes the underlying database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// DB returns the underlying *sql.DB.
func (s *Store) DB() *sql.DB {
	return s.db
}

// Migrate creates the schema. Idempotent.
func (s *Store) Migrate() error {
	if _, err := s.db.Exec(schemaDDL); err != nil {
		return fmt.Errorf("migrate: %w", err)
	}
	return nil
}

const schemaDDL = `
CREATE TABLE IF NOT EXISTS records (
  ordinal       INTEGER PRIMARY KEY,
  record_id     TEXT NOT NULL,
  symbol        TEXT NOT NULL,
  symbol_type   TEXT NOT NULL,
  source_file   TEXT NOT NULL,
  line_number   INTEGER NOT NULL,
  raw           TEXT NOT NULL,
  doc           TEXT NOT NULL,
  systems       TEXT NOT NULL,
  roles         TEXT NOT NULL,
  threads       TEXT NOT NULL,
  callers       TEXT NOT NULL,
  flags         TEXT NOT NULL,
  assign_type   TEXT NOT NULL,
  custom        TEXT NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_records_record_id ON records(record_id);
CREATE INDEX IF NOT EXISTS idx_records_symbol ON records(symbol);
CREATE INDEX IF NOT EXISTS idx_records_file ON records(source_file);
`

// ReplaceAll replaces the stored inventory with records, in order, inside a
// single transaction.
func (s *Store) ReplaceAll(records []*marginalia.Record) error {
	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("replace inventory: begin: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.Exec("DELETE FROM records"); err != nil {
		return fmt.Errorf("replace inventory: clear: %w", err)
	}

	stmt, err := tx.Prepare(`INSERT INTO records
		(ordinal, record_id, symbol, symbol_type, source_file, line_number,
		 raw, doc, systems, roles, threads, callers, flags, assign_type, custom)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return fmt.Errorf("replace inventory: prepare: %w", err)
	}
	defer stmt.Close()

	for i, r := range records {
		raw, doc := mustJSON(r.Raw), mustJSON(r.Doc)
		systems, roles, threads := mustJSON(r.Systems), mustJSON(r.Roles), mustJSON(r.Threads)
		callers, err := json.Marshal(r.Callers)
		if err != nil {
			return fmt.Errorf("replace inventory: record %q: %w", r.ID, err)
		}
		custom := mustJSON(r.Custom)

		if _, err := stmt.Exec(i, r.ID, r.Symbol, string(r.SymbolType), r.SourceFile,
			r.LineNumber, raw, doc, systems, roles, threads, string(callers),
			r.Flags, r.AssignType, custom); err != nil {
			return fmt.Errorf("replace inventory: insert %q: %w", r.ID, err)
		}
	}
	return tx.Commit()
}

// Records loads the full stored inventory in original order.
func (s *Store) Records() ([]*marginalia.Record, error) {
	rows, err := s.db.Query(`SELECT record_id, symbol, symbol_type, source_file,
		line_number, raw, doc, systems, roles, threads, callers, flags,
		assign_type, custom
		FROM records ORDER BY ordinal`)
	if err != nil {
		return nil, fmt.Errorf("load inventory: %w", err)
	}
	defer rows.Close()

	records := []*marginalia.Record{}
	for rows.Next() {
		var r marginalia.Record
		var symbolType, raw, doc, systems, roles, threads, callers, custom string
		if err := rows.Scan(&r.ID, &r.Symbol, &symbolType, &r.SourceFile,
			&r.LineNumber, &raw, &doc, &systems, &roles, &threads, &callers,
			&r.Flags, &r.AssignType, &custom); err != nil {
			return nil, fmt.Errorf("load inventory: scan: %w", err)
		}
		r.SymbolType = marginalia.SymbolType(symbolType)

		for _, col := range []struct {
			data string
			dst  any
		}{
			{raw, &r.Raw}, {doc, &r.Doc}, {systems, &r.Systems},
			{roles, &r.Roles}, {threads, &r.Threads},
			{callers, &r.Callers}, {custom, &r.Custom},
		} {
			if err := json.Unmarshal([]byte(col.data), col.dst); err != nil {
				return nil, fmt.Errorf("load inventory: record %q: %w", r.ID, err)
			}
		}
		records = append(records, &r)
	}
	return records, rows.Err()
}

// Count returns the number of stored records.
func (s *Store) Count() (int, error) {
	var n int
	if err := s.db.QueryRow("SELECT COUNT(*) FROM records").Scan(&n); err != nil {
		return 0, fmt.Errorf("count records: %w", err)
	}
	return n, nil
}

// mustJSON marshals values whose types cannot fail to encode.
func mustJSON(v any) string {
	b, err := json.Marshal(v)
	if err != nil {
		panic(err)
	}
	return string(b)
}
