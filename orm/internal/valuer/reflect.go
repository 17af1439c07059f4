package valuer

import (
	"reflect"

	"github.com/startdusk/relorm/orm/internal/errs"
	"github.com/startdusk/relorm/orm/model"
)

type reflectValue struct {
	model *model.Model

	// val 对应 泛型 T 的指针
	val reflect.Value
}

// 确保类型变更 我们能得到通知
var _ Creator = NewReflectValue

func NewReflectValue(model *model.Model, val any) Value {
	return reflectValue{
		model: model,
		val:   reflect.ValueOf(val).Elem(),
	}
}

func (r reflectValue) Field(name string) (any, error) {
	if _, ok := r.model.FieldMap[name]; !ok {
		return nil, errs.NewErrUnknownField(name)
	}
	return r.val.FieldByName(name).Interface(), nil
}

func (r reflectValue) SetColumns(columns []string, vals []any) error {
	for i, colName := range columns {
		fd, ok := r.model.FieldByColumn(colName)
		if !ok {
			return errs.NewErrUnknownColumn(colName)
		}
		if err := assign(colName, r.val.FieldByName(fd.GoName), vals[i]); err != nil {
			return err
		}
	}
	return nil
}
