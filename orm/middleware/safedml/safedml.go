package safedml

import (
	"context"
	"errors"

	"github.com/startdusk/relorm/orm"
)

var ErrDeleteForbidden = errors.New("orm: 禁止使用 DELETE 语句")

type MiddlewareBuilder struct {
}

func NewMiddlewareBuilder() *MiddlewareBuilder {
	return &MiddlewareBuilder{}
}

func (m MiddlewareBuilder) Build() orm.Middleware {
	return func(next orm.Handler) orm.Handler {
		return func(ctx context.Context, qc *orm.QueryContext) *orm.QueryResult {
			// 禁用 DELETE 语句
			if qc.Type == "DELETE" {
				return &orm.QueryResult{
					Err: ErrDeleteForbidden,
				}
			}
			return next(ctx, qc)
		}
	}
}
