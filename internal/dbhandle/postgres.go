package dbhandle

import (
	"context"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/hochfrequenz/sqlbench/internal/domain"
)

// connectTimeout bounds a single connection attempt
const connectTimeout = 10 * time.Second

// pgxHandle talks to PostgreSQL through pgx's native connection
type pgxHandle struct {
	dsn string
}

func (h *pgxHandle) connect(ctx context.Context) (*pgx.Conn, error) {
	cfg, err := pgx.ParseConfig(h.dsn)
	if err != nil {
		return nil, err
	}
	cfg.ConnectTimeout = connectTimeout
	return pgx.ConnectConfig(ctx, cfg)
}

func (h *pgxHandle) Probe(ctx context.Context) error {
	conn, err := h.connect(ctx)
	if err != nil {
		return err
	}
	defer conn.Close(context.Background())
	return conn.Ping(ctx)
}

func (h *pgxHandle) Exec(ctx context.Context, query string) error {
	conn, err := h.connect(ctx)
	if err != nil {
		return domain.NewError(domain.KindQueryExecution, "connect", err)
	}
	defer conn.Close(context.Background())

	// The simple protocol accepts scripts with several statements.
	rows, err := conn.Query(ctx, query, pgx.QueryExecModeSimpleProtocol)
	if err != nil {
		return domain.NewError(domain.KindQueryExecution, "query", err)
	}
	for rows.Next() {
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return domain.NewError(domain.KindQueryExecution, "read rows", err)
	}
	return nil
}
