package valuer

import (
	"reflect"
	"unsafe"

	"github.com/startdusk/relorm/orm/internal/errs"
	"github.com/startdusk/relorm/orm/model"
)

type unsafeValue struct {
	model *model.Model

	// 结构体的起始地址
	address unsafe.Pointer
}

// 确保类型变更 我们能得到通知
var _ Creator = NewUnsafeValue

func NewUnsafeValue(model *model.Model, val any) Value {
	return unsafeValue{
		model:   model,
		address: reflect.ValueOf(val).UnsafePointer(),
	}
}

func (u unsafeValue) Field(name string) (any, error) {
	fd, ok := u.model.FieldMap[name]
	if !ok {
		return nil, errs.NewErrUnknownField(name)
	}
	// 字段地址 = 起始地址 + 偏移量
	fdAddress := unsafe.Pointer(uintptr(u.address) + fd.Offset)
	return reflect.NewAt(fd.Type, fdAddress).Elem().Interface(), nil
}

func (u unsafeValue) SetColumns(columns []string, vals []any) error {
	for i, colName := range columns {
		fd, ok := u.model.FieldByColumn(colName)
		if !ok {
			return errs.NewErrUnknownColumn(colName)
		}
		fdAddress := unsafe.Pointer(uintptr(u.address) + fd.Offset)
		// 反射在特定的地址上, 创建一个特定类型的实例
		// 例如: fd.Type = int类型, 那么 NewAt 拿到的是 *int, Elem() 才是字段本身
		if err := assign(colName, reflect.NewAt(fd.Type, fdAddress).Elem(), vals[i]); err != nil {
			return err
		}
	}
	return nil
}
