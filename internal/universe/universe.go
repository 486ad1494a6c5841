// Package universe provides the instrument universe database.
//
// The universe is a single DuckDB table mapping tickers to names and
// asset classes. Ticker resolution queries it either directly (symbol
// lookup) or through agent-generated SQL, which is why arbitrary
// SELECT statements are accepted and everything else is rejected.
package universe

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	_ "github.com/marcboeker/go-duckdb"

	"github.com/quantio/quantd/internal/errors"
	"github.com/quantio/quantd/internal/logging"
)

var log = logging.Component("universe")

// Instrument is one row of the universe table.
type Instrument struct {
	Ticker     string `json:"ticker"`
	Name       string `json:"name"`
	AssetClass string `json:"asset_class"`
}

// DB wraps the universe database.
//
// DB is safe for concurrent use.
type DB struct {
	db    *sql.DB
	table string
}

// Open opens (or creates) the universe database and ensures the table
// exists. Path ":memory:" gives an ephemeral database.
func Open(path, table string) (*DB, error) {
	if !validIdentifier(table) {
		return nil, errors.Wrapf(errors.ErrInvalidConfig, "table name %q", table)
	}

	dsn := path
	if path == ":memory:" {
		dsn = ""
	}
	db, err := sql.Open("duckdb", dsn)
	if err != nil {
		return nil, fmt.Errorf("open universe database: %w", err)
	}

	db.SetMaxOpenConns(4)
	db.SetMaxIdleConns(2)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping universe database: %w", err)
	}

	u := &DB{db: db, table: table}
	if err := u.ensureTable(ctx); err != nil {
		db.Close()
		return nil, err
	}
	return u, nil
}

// Close closes the database.
func (u *DB) Close() error {
	return u.db.Close()
}

// Table returns the universe table name.
func (u *DB) Table() string {
	return u.table
}

func (u *DB) ensureTable(ctx context.Context) error {
	query := fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (
		ticker      VARCHAR NOT NULL,
		name        VARCHAR NOT NULL,
		asset_class VARCHAR NOT NULL
	)`, u.table)
	if _, err := u.db.ExecContext(ctx, query); err != nil {
		return errors.Wrap(err, "create universe table")
	}
	return nil
}

// Count returns the number of instruments.
func (u *DB) Count(ctx context.Context) (int, error) {
	var n int
	err := u.db.QueryRowContext(ctx, fmt.Sprintf("SELECT COUNT(*) FROM %s", u.table)).Scan(&n)
	if err != nil {
		return 0, errors.Wrap(err, "count universe")
	}
	return n, nil
}

// ImportCSV bulk-loads instruments from a CSV file with a
// ticker,name,asset_class header. Existing rows are kept; the import
// only runs against an empty table.
func (u *DB) ImportCSV(ctx context.Context, path string) (int, error) {
	n, err := u.Count(ctx)
	if err != nil {
		return 0, err
	}
	if n > 0 {
		log.Debug("universe already populated, skipping import", "rows", n)
		return 0, nil
	}

	query := fmt.Sprintf("INSERT INTO %s SELECT ticker, name, asset_class FROM read_csv_auto(?, header=true)", u.table)
	res, err := u.db.ExecContext(ctx, query, path)
	if err != nil {
		return 0, errors.Wrapf(err, "import %s", path)
	}
	rows, _ := res.RowsAffected()
	log.Info("imported instrument universe", "path", path, "rows", rows)
	return int(rows), nil
}

// Lookup returns the instruments whose ticker or name matches any of
// the given symbols, case-insensitively.
func (u *DB) Lookup(ctx context.Context, symbols []string) ([]Instrument, error) {
	if len(symbols) == 0 {
		return nil, nil
	}

	placeholders := make([]string, len(symbols))
	args := make([]interface{}, len(symbols))
	for i, s := range symbols {
		placeholders[i] = "UPPER(?)"
		args[i] = s
	}
	in := strings.Join(placeholders, ", ")

	query := fmt.Sprintf(
		"SELECT ticker, name, asset_class FROM %s WHERE UPPER(ticker) IN (%s) OR UPPER(name) IN (%s)",
		u.table, in, in)
	return u.query(ctx, query, append(args, args...)...)
}

// Search returns instruments whose name or ticker contains the term,
// case-insensitively, capped at limit rows.
func (u *DB) Search(ctx context.Context, term string, limit int) ([]Instrument, error) {
	if limit <= 0 {
		limit = 25
	}
	pattern := "%" + strings.ToUpper(term) + "%"
	query := fmt.Sprintf(
		"SELECT ticker, name, asset_class FROM %s WHERE UPPER(ticker) LIKE ? OR UPPER(name) LIKE ? LIMIT ?",
		u.table)
	return u.query(ctx, query, pattern, pattern, limit)
}

// SelectTickers runs an externally produced SQL query against the
// universe and returns the tickers of the selected rows. Only a single
// SELECT statement is accepted.
func (u *DB) SelectTickers(ctx context.Context, query string) ([]string, error) {
	if err := guardSelect(query); err != nil {
		return nil, err
	}

	rows, err := u.db.QueryContext(ctx, query)
	if err != nil {
		return nil, errors.Wrapf(errors.ErrInvalidQuery, "%v", err)
	}
	defer rows.Close()

	cols, err := rows.Columns()
	if err != nil {
		return nil, errors.Wrap(err, "query columns")
	}
	tickerIdx := 0
	for i, c := range cols {
		if strings.EqualFold(c, "ticker") {
			tickerIdx = i
			break
		}
	}

	var tickers []string
	scan := make([]interface{}, len(cols))
	for rows.Next() {
		var ticker sql.NullString
		for i := range scan {
			scan[i] = new(sql.RawBytes)
		}
		scan[tickerIdx] = &ticker
		if err := rows.Scan(scan...); err != nil {
			return nil, errors.Wrap(err, "scan ticker")
		}
		if ticker.Valid && ticker.String != "" {
			tickers = append(tickers, ticker.String)
		}
	}
	if err := rows.Err(); err != nil {
		return nil, errors.Wrap(err, "iterate tickers")
	}
	return tickers, nil
}

// Schema describes the universe table for prompt construction.
func (u *DB) Schema() string {
	return fmt.Sprintf("%s(ticker VARCHAR, name VARCHAR, asset_class VARCHAR)", u.table)
}

func (u *DB) query(ctx context.Context, query string, args ...interface{}) ([]Instrument, error) {
	rows, err := u.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, errors.Wrap(err, "query universe")
	}
	defer rows.Close()

	var out []Instrument
	for rows.Next() {
		var inst Instrument
		if err := rows.Scan(&inst.Ticker, &inst.Name, &inst.AssetClass); err != nil {
			return nil, errors.Wrap(err, "scan instrument")
		}
		out = append(out, inst)
	}
	return out, rows.Err()
}

// guardSelect rejects anything that is not a single SELECT statement.
func guardSelect(query string) error {
	trimmed := strings.TrimSpace(query)
	if t := strings.TrimSuffix(trimmed, ";"); strings.ContainsRune(t, ';') {
		return errors.Wrapf(errors.ErrInvalidQuery, "multiple statements")
	}
	upper := strings.ToUpper(trimmed)
	if !strings.HasPrefix(upper, "SELECT") && !strings.HasPrefix(upper, "WITH") {
		return errors.Wrapf(errors.ErrInvalidQuery, "only SELECT is allowed")
	}
	for _, kw := range []string{"INSERT", "UPDATE", "DELETE", "DROP", "ALTER", "CREATE", "ATTACH", "COPY", "PRAGMA", "INSTALL"} {
		if containsWord(upper, kw) {
			return errors.Wrapf(errors.ErrInvalidQuery, "statement %s is not allowed", kw)
		}
	}
	return nil
}

func containsWord(s, word string) bool {
	for i := 0; ; {
		j := strings.Index(s[i:], word)
		if j < 0 {
			return false
		}
		j += i
		before := j == 0 || !isWordChar(s[j-1])
		end := j + len(word)
		after := end == len(s) || !isWordChar(s[end])
		if before && after {
			return true
		}
		i = j + len(word)
	}
}

func isWordChar(b byte) bool {
	return b == '_' || (b >= '0' && b <= '9') || (b >= 'A' && b <= 'Z') || (b >= 'a' && b <= 'z')
}

func validIdentifier(s string) bool {
	if s == "" {
		return false
	}
	for i := 0; i < len(s); i++ {
		if !isWordChar(s[i]) {
			return false
		}
	}
	return true
}
