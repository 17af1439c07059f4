package querylog

import (
	"context"
	"log/slog"

	"github.com/startdusk/relorm/orm"
)

type MiddlewareBuilder struct {
	logger *slog.Logger
	// SQL参数可能存在敏感数据, 默认不打印
	logArgs bool
	logFunc func(query string, args []any)
}

func NewMiddlewareBuilder() *MiddlewareBuilder {
	return &MiddlewareBuilder{
		logger: slog.Default(),
	}
}

func (m *MiddlewareBuilder) Logger(logger *slog.Logger) *MiddlewareBuilder {
	m.logger = logger
	return m
}

func (m *MiddlewareBuilder) LogArgs(logArgs bool) *MiddlewareBuilder {
	m.logArgs = logArgs
	return m
}

// LogFunc 除了结构化日志, 额外回调一下
func (m *MiddlewareBuilder) LogFunc(fn func(query string, args []any)) *MiddlewareBuilder {
	m.logFunc = fn
	return m
}

func (m *MiddlewareBuilder) Build() orm.Middleware {
	return func(next orm.Handler) orm.Handler {
		return func(ctx context.Context, qc *orm.QueryContext) *orm.QueryResult {
			q, err := qc.Builder.Build()
			if err != nil {
				return &orm.QueryResult{
					Err: err,
				}
			}
			if m.logFunc != nil {
				m.logFunc(q.SQL, q.Args)
			}
			if m.logger != nil {
				attrs := []slog.Attr{
					slog.String("id", qc.ID),
					slog.String("type", qc.Type),
					slog.String("sql", q.SQL),
				}
				if qc.Model != nil {
					attrs = append(attrs, slog.String("table", qc.Model.TableName))
				}
				if m.logArgs {
					attrs = append(attrs, slog.Any("args", q.Args))
				}
				m.logger.LogAttrs(ctx, slog.LevelInfo, "orm: query", attrs...)
			}
			return next(ctx, qc)
		}
	}
}
