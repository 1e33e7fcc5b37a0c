// Package db runs SQL statements on the background pool.
package db

import (
	"context"
	"database/sql"
	"fmt"
	"io"

	"github.com/sirupsen/logrus"

	"github.com/vnykmshr/fibercore/pkg/blocking"
	"github.com/vnykmshr/fibercore/pkg/common/validation"

	_ "modernc.org/sqlite"
)

// DB issues statements through a Caller.
type DB struct {
	db   *sql.DB
	call blocking.Caller
	log  logrus.FieldLogger
}

// Open opens the SQLite database at path. A nil caller runs statements inline.
func Open(path string, caller blocking.Caller, log logrus.FieldLogger) (*DB, error) {
	if err := validation.ValidateNotEmpty("db", "path", path); err != nil {
		return nil, err
	}

	sqlDB, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	// one connection keeps the pragmas below in effect and serializes writers
	sqlDB.SetMaxOpenConns(1)
	if _, err := sqlDB.Exec("PRAGMA journal_mode=WAL"); err != nil {
		sqlDB.Close()
		return nil, fmt.Errorf("set WAL mode: %w", err)
	}
	if _, err := sqlDB.Exec("PRAGMA busy_timeout = 5000"); err != nil {
		sqlDB.Close()
		return nil, fmt.Errorf("set busy timeout: %w", err)
	}

	return New(sqlDB, caller, log), nil
}

// New wraps an open *sql.DB.
func New(sqlDB *sql.DB, caller blocking.Caller, log logrus.FieldLogger) *DB {
	if caller == nil {
		caller = blocking.Direct{}
	}
	if log == nil {
		l := logrus.New()
		l.SetOutput(io.Discard)
		log = l
	}
	return &DB{db: sqlDB, call: caller, log: log.WithField("component", "db")}
}

// Query runs a statement returning rows.
func (d *DB) Query(ctx context.Context, query string, args ...any) (*ResultSet, error) {
	return blocking.Run(ctx, d.call, "db:query", func(ctx context.Context) (*ResultSet, error) {
		rows, err := d.db.QueryContext(ctx, query, args...)
		if err != nil {
			return nil, fmt.Errorf("query: %w", err)
		}
		defer rows.Close()

		fields, err := rows.Columns()
		if err != nil {
			return nil, fmt.Errorf("read columns: %w", err)
		}

		rs := newQueryResult(fields)
		for rows.Next() {
			values := make([]any, len(fields))
			ptrs := make([]any, len(fields))
			for i := range values {
				ptrs[i] = &values[i]
			}
			if err := rows.Scan(ptrs...); err != nil {
				return nil, fmt.Errorf("scan row: %w", err)
			}
			for i, v := range values {
				if b, ok := v.([]byte); ok {
					values[i] = append([]byte(nil), b...)
				}
			}
			rs.append(values)
		}
		if err := rows.Err(); err != nil {
			return nil, fmt.Errorf("iterate rows: %w", err)
		}

		d.log.WithFields(logrus.Fields{"rows": len(rs.rows)}).Debug("query done")
		return rs, nil
	})
}

// Exec runs a statement that changes data.
func (d *DB) Exec(ctx context.Context, query string, args ...any) (*ResultSet, error) {
	return blocking.Run(ctx, d.call, "db:exec", func(ctx context.Context) (*ResultSet, error) {
		res, err := d.db.ExecContext(ctx, query, args...)
		if err != nil {
			return nil, fmt.Errorf("exec: %w", err)
		}
		affected, err := res.RowsAffected()
		if err != nil {
			return nil, fmt.Errorf("rows affected: %w", err)
		}
		insertID, err := res.LastInsertId()
		if err != nil {
			return nil, fmt.Errorf("last insert id: %w", err)
		}
		return newExecResult(affected, insertID), nil
	})
}

// Close closes the underlying database.
func (d *DB) Close() error {
	return d.db.Close()
}
