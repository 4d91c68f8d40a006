package backing

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	_ "github.com/lib/pq"
	_ "github.com/mattn/go-sqlite3"
	"github.com/uptrace/bun"
	"github.com/uptrace/bun/dialect"
	"github.com/uptrace/bun/dialect/pgdialect"
	"github.com/uptrace/bun/dialect/sqlitedialect"
	"github.com/uptrace/bun/schema"
)

// SQLTable names the table and columns records are read from.
type SQLTable struct {
	Table         string
	IDColumn      string
	PayloadColumn string
}

/* Read records from a table in a relational database. */
type StoreSQL struct {
	db    *bun.DB
	table SQLTable
}

// NewSQLStore opens dsn with driver ("sqlite3" or "postgres").
func NewSQLStore(driver, dsn string, table SQLTable) (*StoreSQL, error) {
	var dia schema.Dialect
	switch driver {
	case "sqlite3":
		dia = sqlitedialect.New()
	case "postgres":
		dia = pgdialect.New()
	default:
		return nil, fmt.Errorf("unsupported sql driver '%s'", driver)
	}
	if table.Table == "" || table.IDColumn == "" || table.PayloadColumn == "" {
		return nil, fmt.Errorf("sql table, id column and payload column must be set")
	}
	sqldb, err := sql.Open(driver, dsn)
	if err != nil {
		return nil, err
	}
	return NewSQLStoreFromDB(bun.NewDB(sqldb, dia), table), nil
}

func NewSQLStoreFromDB(db *bun.DB, table SQLTable) *StoreSQL {
	return &StoreSQL{db: db, table: table}
}

func (s *StoreSQL) Backend() string { return "sql" }

func (s *StoreSQL) Close() error {
	return s.db.Close()
}

// CreateTable creates the record table if it is missing.
func (s *StoreSQL) CreateTable(ctx context.Context) error {
	payloadType := "BLOB"
	if s.db.Dialect().Name() == dialect.PG {
		payloadType = "BYTEA"
	}
	_, err := s.db.ExecContext(ctx, fmt.Sprintf("CREATE TABLE IF NOT EXISTS ? (? TEXT PRIMARY KEY, ? %s)", payloadType),
		bun.Ident(s.table.Table), bun.Ident(s.table.IDColumn), bun.Ident(s.table.PayloadColumn))
	return err
}

func sqlError(err error) error {
	if errors.Is(err, sql.ErrNoRows) {
		return fmt.Errorf("%w", &NotFoundError{})
	}
	return fmt.Errorf("%w", &AccessError{msg: fmt.Sprintf("%v", err)})
}

func (s *StoreSQL) Fetch(ctx context.Context, id string) ([]byte, error) {
	var err error
	startTime := time.Now().UnixNano()
	defer func() {
		reportBackingOpMetric(s.Backend(), startTime, "fetch", err)
	}()
	var payload []byte
	err = s.db.QueryRowContext(ctx, "SELECT ? FROM ? WHERE ? = ?",
		bun.Ident(s.table.PayloadColumn), bun.Ident(s.table.Table), bun.Ident(s.table.IDColumn), id).Scan(&payload)
	if err != nil {
		err = sqlError(err)
		return nil, err
	}
	// a NULL payload is still a record
	if payload == nil {
		payload = []byte{}
	}
	return payload, nil
}

func (s *StoreSQL) Exists(ctx context.Context, id string) (bool, error) {
	var err error
	startTime := time.Now().UnixNano()
	defer func() {
		reportBackingOpMetric(s.Backend(), startTime, "exists", err)
	}()
	var one int
	err = s.db.QueryRowContext(ctx, "SELECT 1 FROM ? WHERE ? = ? LIMIT 1",
		bun.Ident(s.table.Table), bun.Ident(s.table.IDColumn), id).Scan(&one)
	if errors.Is(err, sql.ErrNoRows) {
		err = nil
		return false, nil
	}
	if err != nil {
		err = sqlError(err)
		return false, err
	}
	return true, nil
}

func (s *StoreSQL) Put(ctx context.Context, id string, data []byte) error {
	var err error
	startTime := time.Now().UnixNano()
	defer func() {
		reportBackingOpMetric(s.Backend(), startTime, "put", err)
	}()
	if err = checkID(id); err != nil {
		return err
	}
	// upsert syntax shared by sqlite and postgres
	_, err = s.db.ExecContext(ctx, "INSERT INTO ? (?, ?) VALUES (?, ?) ON CONFLICT (?) DO UPDATE SET ? = EXCLUDED.?",
		bun.Ident(s.table.Table), bun.Ident(s.table.IDColumn), bun.Ident(s.table.PayloadColumn), id, data,
		bun.Ident(s.table.IDColumn), bun.Ident(s.table.PayloadColumn), bun.Ident(s.table.PayloadColumn))
	if err != nil {
		err = sqlError(err)
	}
	return err
}

func (s *StoreSQL) Delete(ctx context.Context, id string) (bool, error) {
	var err error
	startTime := time.Now().UnixNano()
	defer func() {
		reportBackingOpMetric(s.Backend(), startTime, "delete", err)
	}()
	res, err := s.db.ExecContext(ctx, "DELETE FROM ? WHERE ? = ?",
		bun.Ident(s.table.Table), bun.Ident(s.table.IDColumn), id)
	if err != nil {
		err = sqlError(err)
		return false, err
	}
	affected, err := res.RowsAffected()
	if err != nil {
		err = sqlError(err)
		return false, err
	}
	if affected == 0 {
		err = fmt.Errorf("%w", &NotFoundError{})
		return false, err
	}
	return true, nil
}

// List visits ids in ascending order.
func (s *StoreSQL) List(ctx context.Context, fn func(id string) error) error {
	rows, err := s.db.QueryContext(ctx, "SELECT ? FROM ? ORDER BY ? ASC",
		bun.Ident(s.table.IDColumn), bun.Ident(s.table.Table), bun.Ident(s.table.IDColumn))
	if err != nil {
		return sqlError(err)
	}
	defer rows.Close()
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return sqlError(err)
		}
		if err := fn(id); err != nil {
			return err
		}
	}
	if err := rows.Err(); err != nil {
		return sqlError(err)
	}
	return nil
}
