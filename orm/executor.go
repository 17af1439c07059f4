package orm

import (
	"context"
	"database/sql"
)

//go:generate mockgen -source=executor.go -destination=internal/mocks/executor.mock.go -package=mocks

// Executor 是真正执行 SQL 的对象, *sql.DB, *sql.Tx 和 *sql.Conn 都满足这个接口
type Executor interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
}
