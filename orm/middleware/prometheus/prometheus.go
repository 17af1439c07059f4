package prometheus

import (
	"context"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/startdusk/relorm/orm"
)

type MiddlewareBuilder struct {
	Namespace string
	Subsystem string
	Name      string
	Help      string

	// Registerer 为空的时候用 prometheus.DefaultRegisterer
	Registerer prometheus.Registerer
}

func (m MiddlewareBuilder) Build() orm.Middleware {
	vector := prometheus.NewSummaryVec(prometheus.SummaryOpts{
		Name:      m.Name,
		Subsystem: m.Subsystem,
		Namespace: m.Namespace,
		Help:      m.Help,

		// 设置指标 如 0.5: 0.01 0.5是一个指标，0.01是一个误差值，表示0.5上下0.01 即误差范围为 0.49-0.51
		Objectives: map[float64]float64{
			0.5:   0.01,
			0.75:  0.01,
			0.90:  0.01,
			0.99:  0.001,
			0.999: 0.0001,
		},
	}, []string{
		"type",  // SELECT, INSERT, UPDATE, DELETE, RAW
		"table", // 表名
	})

	reg := m.Registerer
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	reg.MustRegister(vector)

	return func(next orm.Handler) orm.Handler {
		return func(ctx context.Context, qc *orm.QueryContext) *orm.QueryResult {
			startTime := time.Now()
			defer func() {
				table := "unknown"
				if qc.Model != nil {
					table = qc.Model.TableName
				}
				// 记录执行时间, 单位微秒
				vector.WithLabelValues(qc.Type, table).
					Observe(float64(time.Since(startTime).Microseconds()))
			}()
			return next(ctx, qc)
		}
	}
}
