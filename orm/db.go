package orm

import (
	"context"
	"database/sql"
	"log/slog"

	"github.com/startdusk/relorm/orm/internal/errs"
	"github.com/startdusk/relorm/orm/internal/valuer"
	"github.com/startdusk/relorm/orm/model"
)

var (
	_ Session = &DB{}
)

type DBOption func(db *DB)

type DB struct {
	core
	db *sql.DB
	// executor 默认就是 db, 可以替换掉用来测试或者包装
	executor Executor
}

func (db *DB) BeginTx(ctx context.Context, opts *sql.TxOptions) (*Tx, error) {
	tx, err := db.db.BeginTx(ctx, opts)
	if err != nil {
		return nil, errs.NewErrDatabase("BEGIN", err)
	}
	return &Tx{tx: tx, db: db}, nil
}

func (db *DB) queryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error) {
	return db.executor.QueryContext(ctx, query, args...)
}

func (db *DB) execContext(ctx context.Context, query string, args ...any) (sql.Result, error) {
	return db.executor.ExecContext(ctx, query, args...)
}

func (db *DB) getCore() core {
	return db.core
}

func (db *DB) Dialect() Dialect {
	return db.dialect
}

func (db *DB) Close() error {
	return db.db.Close()
}

// DoTx fn 返回错误或者 panic 的时候回滚, 否则提交.
// panic 在回滚之后会继续往上抛
func (db *DB) DoTx(ctx context.Context, fn func(ctx context.Context, tx *Tx) error, opts *sql.TxOptions) (err error) {
	tx, err := db.BeginTx(ctx, opts)
	if err != nil {
		return err
	}

	panicked := true
	defer func() {
		if panicked || err != nil {
			rollbackErr := tx.Rollback()
			if rollbackErr != nil {
				db.logger.ErrorContext(ctx, "orm: rollback failed",
					slog.Bool("panicked", panicked), slog.Any("error", rollbackErr))
			}
			err = errs.NewErrFailedToRollbackTx(err, rollbackErr, panicked)
		} else {
			err = tx.Commit()
		}
	}()
	err = fn(ctx, tx)
	// 执行过程中没有发生panic, 则标志位置为false
	panicked = false
	return err
}

func Open(driver string, dataSourceName string, opts ...DBOption) (*DB, error) {
	db, err := sql.Open(driver, dataSourceName)
	if err != nil {
		return nil, err
	}
	if d, err := DialectByName(driver); err == nil {
		opts = append([]DBOption{DBWithDialect(d)}, opts...)
	}
	return OpenDB(db, opts...)
}

func OpenDB(db *sql.DB, opts ...DBOption) (*DB, error) {
	newDB := &DB{
		core: core{
			r:       model.NewRegistry(),
			rels:    newRelationRegistry(),
			creator: valuer.NewUnsafeValue,
			dialect: DialectMySQL,
			logger:  slog.Default(),
		},
		db:       db,
		executor: db,
	}

	for _, opt := range opts {
		opt(newDB)
	}
	if newDB.dialect == nil {
		return nil, errs.ErrNilDialect
	}
	if newDB.executor == nil {
		newDB.executor = db
	}
	return newDB, nil
}

func MustOpenDB(db *sql.DB, opts ...DBOption) *DB {
	newDB, err := OpenDB(db, opts...)
	if err != nil {
		panic(err)
	}
	return newDB
}

func MustOpen(driver string, dataSourceName string, opts ...DBOption) *DB {
	newDB, err := Open(driver, dataSourceName, opts...)
	if err != nil {
		panic(err)
	}
	return newDB
}

func DBUseReflect() DBOption {
	return func(db *DB) {
		db.creator = valuer.NewReflectValue
	}
}

func DBWithRegistry(r model.Registry) DBOption {
	return func(db *DB) {
		db.r = r
	}
}

func DBWithDialect(dialect Dialect) DBOption {
	return func(db *DB) {
		db.dialect = dialect
	}
}

func DBWithMiddlewares(mdls ...Middleware) DBOption {
	return func(db *DB) {
		db.mdls = append(db.mdls, mdls...)
	}
}

func DBWithLogger(logger *slog.Logger) DBOption {
	return func(db *DB) {
		if logger != nil {
			db.logger = logger
		}
	}
}

// DBWithExecutor 替换执行 SQL 的对象, 事务仍然由 *sql.DB 开启
func DBWithExecutor(executor Executor) DBOption {
	return func(db *DB) {
		db.executor = executor
	}
}
