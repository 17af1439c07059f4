package opentelemetry

import (
	"context"
	"fmt"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/startdusk/relorm/orm"
)

const instrumentationName = "github.com/startdusk/relorm/orm/middleware/opentelemetry"

type MiddlewareBuilder struct {
	Tracer trace.Tracer
}

func (m MiddlewareBuilder) Build() orm.Middleware {
	if m.Tracer == nil {
		m.Tracer = otel.GetTracerProvider().Tracer(instrumentationName)
	}
	return func(next orm.Handler) orm.Handler {
		return func(ctx context.Context, qc *orm.QueryContext) *orm.QueryResult {
			// span name: SELECT-TABLE_NAME
			tableName := "unknown"
			if qc.Model != nil {
				tableName = qc.Model.TableName
			}
			spanCtx, span := m.Tracer.Start(ctx, fmt.Sprintf("%s-%s", qc.Type, tableName))
			defer span.End()

			q, _ := qc.Builder.Build()
			if q != nil {
				span.SetAttributes(attribute.String("sql", q.SQL))
				// tracing这里没必要记录参数, 防止数据过大(如 blob), 防止敏感数据被记录到tracing(如 用户密码)
			}
			span.SetAttributes(
				attribute.String("table", tableName),
				attribute.String("component", "orm"),
				attribute.String("query.id", qc.ID),
			)

			res := next(spanCtx, qc)
			if res.Err != nil {
				span.RecordError(res.Err)
				span.SetStatus(codes.Error, res.Err.Error())
			}
			return res
		}
	}
}
