package prometheus

import (
	"context"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/startdusk/relorm/orm"
	"github.com/startdusk/relorm/orm/model"
)

func TestMiddlewareBuilder_Build(t *testing.T) {
	reg := prometheus.NewRegistry()
	mdl := MiddlewareBuilder{
		Namespace:  "relorm",
		Subsystem:  "orm",
		Name:       "query",
		Help:       "query duration",
		Registerer: reg,
	}.Build()

	next := func(ctx context.Context, qc *orm.QueryContext) *orm.QueryResult {
		return &orm.QueryResult{}
	}
	h := mdl(next)
	h(context.Background(), &orm.QueryContext{
		Type:    "SELECT",
		Builder: &orm.Query{SQL: "SELECT 1"},
		Model:   &model.Model{TableName: "author"},
	})
	h(context.Background(), &orm.QueryContext{
		Type:    "SELECT",
		Builder: &orm.Query{SQL: "SELECT 1"},
		Model:   &model.Model{TableName: "author"},
	})
	h(context.Background(), &orm.QueryContext{
		Type:    "RAW",
		Builder: &orm.Query{SQL: "SELECT 1"},
	})

	mfs, err := reg.Gather()
	require.NoError(t, err)
	require.Len(t, mfs, 1)
	assert.Equal(t, "relorm_orm_query", mfs[0].GetName())

	counts := make(map[string]uint64)
	for _, m := range mfs[0].GetMetric() {
		var typ, table string
		for _, l := range m.GetLabel() {
			switch l.GetName() {
			case "type":
				typ = l.GetValue()
			case "table":
				table = l.GetValue()
			}
		}
		counts[typ+"/"+table] = m.GetSummary().GetSampleCount()
	}
	assert.Equal(t, map[string]uint64{
		"SELECT/author": 2,
		"RAW/unknown":   1,
	}, counts)
}
