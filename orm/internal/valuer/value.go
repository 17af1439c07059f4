package valuer

import (
	"github.com/startdusk/relorm/orm/model"
)

// Value 是对结构体实例的内部抽象
type Value interface {
	// Field 返回字段对应的值
	Field(name string) (any, error)
	// SetColumns 把一行数据设置到结构体上, columns 和 vals 一一对应
	// vals 是驱动返回的原始值, 同一行数据可以反复设置到不同的实例上
	SetColumns(columns []string, vals []any) error
}

type Creator func(model *model.Model, entity any) Value
