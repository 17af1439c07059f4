package slowquery

import (
	"context"
	"log/slog"
	"time"

	"github.com/startdusk/relorm/orm"
)

type MiddlewareBuilder struct {
	logger  *slog.Logger
	logFunc func(query string, args []any, duration time.Duration)

	// 慢查询阈值, 设置需要考虑公司实际情况, 如100ms
	threshold time.Duration
}

func NewMiddlewareBuilder(threshold time.Duration) *MiddlewareBuilder {
	return &MiddlewareBuilder{
		logger:    slog.Default(),
		threshold: threshold,
	}
}

func (m *MiddlewareBuilder) Logger(logger *slog.Logger) *MiddlewareBuilder {
	m.logger = logger
	return m
}

func (m *MiddlewareBuilder) LogFunc(fn func(query string, args []any, duration time.Duration)) *MiddlewareBuilder {
	m.logFunc = fn
	return m
}

func (m *MiddlewareBuilder) Build() orm.Middleware {
	return func(next orm.Handler) orm.Handler {
		return func(ctx context.Context, qc *orm.QueryContext) *orm.QueryResult {
			startTime := time.Now()
			defer func() {
				duration := time.Since(startTime)
				// 不是慢查询
				if duration <= m.threshold {
					return
				}

				// 是慢查询, 记录一下, 不处理错误(如果错误了, 证明SQL都没构造出来)
				q, err := qc.Builder.Build()
				if err != nil {
					return
				}
				if m.logFunc != nil {
					m.logFunc(q.SQL, q.Args, duration)
				}
				if m.logger != nil {
					m.logger.WarnContext(ctx, "orm: slow query",
						slog.String("id", qc.ID),
						slog.String("type", qc.Type),
						slog.String("sql", q.SQL),
						slog.Duration("duration", duration))
				}
			}()

			// 不调用next就是dry run
			return next(ctx, qc)
		}
	}
}
