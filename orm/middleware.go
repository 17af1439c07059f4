package orm

import (
	"context"

	"github.com/startdusk/relorm/orm/model"
)

type QueryContext struct {
	// Type 声明查询类型 即 SELECT, UPDATE, DELETE, INSERT 和 RAW
	Type string

	// Builder 使用的时候, 大多数情况下你需要转换到具体的类型才能篡改查询
	Builder QueryBuilder

	// Model 原生查询的时候可能为 nil
	Model *model.Model

	// ID 每次查询唯一, 用来串联日志和链路
	ID string
}

type Middleware func(next Handler) Handler

type Handler func(ctx context.Context, qc *QueryContext) *QueryResult

type QueryResult struct {
	// Result 在不同的查询里面, 类型是不同的
	// SELECT 和 RAW 查询里面是 *Rows
	// 其他情况下, 它是 Result 类型
	Result any
	Err    error
}
