package nodelete

import (
	"context"
	"strings"

	"github.com/startdusk/relorm/orm"
)

// MiddlewareBuilder 强制 UPDATE 和 DELETE 必须带 WHERE, 防止误操作整张表
type MiddlewareBuilder struct {
}

func NewMiddlewareBuilder() *MiddlewareBuilder {
	return &MiddlewareBuilder{}
}

func (m MiddlewareBuilder) Build() orm.Middleware {
	return func(next orm.Handler) orm.Handler {
		return func(ctx context.Context, qc *orm.QueryContext) *orm.QueryResult {
			if qc.Type != "UPDATE" && qc.Type != "DELETE" {
				return next(ctx, qc)
			}
			q, err := qc.Builder.Build()
			if err != nil {
				return &orm.QueryResult{
					Err: err,
				}
			}
			if !strings.Contains(q.SQL, " WHERE ") {
				err = newErrMissingWhere(qc.Type)
				return &orm.QueryResult{
					Err:    err,
					Result: orm.Result{},
				}
			}
			return next(ctx, qc)
		}
	}
}
