package dbhandle

import (
	"context"
	"database/sql"

	_ "github.com/microsoft/go-mssqldb"
	_ "github.com/tursodatabase/libsql-client-go/libsql"
	_ "modernc.org/sqlite"

	"github.com/hochfrequenz/sqlbench/internal/domain"
)

// Handle is the worker's view of a database. Every call opens a fresh
// connection and closes it before returning.
type Handle interface {
	// Probe checks that the database accepts connections
	Probe(ctx context.Context) error
	// Exec runs a query to completion, draining every result set
	Exec(ctx context.Context, query string) error
}

// Open returns a handle for the named engine
func Open(engine string, p ConnParams) (Handle, error) {
	e, err := Lookup(engine)
	if err != nil {
		return nil, err
	}
	if e.Driver == "" {
		return &pgxHandle{dsn: e.DSN(p)}, nil
	}
	return &sqlHandle{driver: e.Driver, dsn: e.DSN(p)}, nil
}

// sqlHandle serves every engine reachable through database/sql
type sqlHandle struct {
	driver string
	dsn    string
}

func (h *sqlHandle) open() (*sql.DB, error) {
	db, err := sql.Open(h.driver, h.dsn)
	if err != nil {
		return nil, err
	}
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(0)
	return db, nil
}

func (h *sqlHandle) Probe(ctx context.Context) error {
	db, err := h.open()
	if err != nil {
		return err
	}
	defer db.Close()
	return db.PingContext(ctx)
}

func (h *sqlHandle) Exec(ctx context.Context, query string) error {
	db, err := h.open()
	if err != nil {
		return domain.NewError(domain.KindQueryExecution, "open", err)
	}
	defer db.Close()

	rows, err := db.QueryContext(ctx, query)
	if err != nil {
		return domain.NewError(domain.KindQueryExecution, "query", err)
	}
	defer rows.Close()

	for {
		for rows.Next() {
		}
		if !rows.NextResultSet() {
			break
		}
	}
	if err := rows.Err(); err != nil {
		return domain.NewError(domain.KindQueryExecution, "read rows", err)
	}
	return nil
}
