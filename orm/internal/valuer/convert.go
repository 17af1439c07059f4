package valuer

import (
	"database/sql"
	"reflect"
	"strconv"
	"time"

	"github.com/startdusk/relorm/orm/internal/errs"
)

var timeLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02 15:04:05.999999999-07:00",
	"2006-01-02 15:04:05.999999999",
	"2006-01-02 15:04:05",
	"2006-01-02",
}

// assign 把驱动返回的值赋给字段, 规则参考 database/sql 的 convertAssign
func assign(col string, dst reflect.Value, src any) error {
	if src == nil {
		dst.Set(reflect.Zero(dst.Type()))
		return nil
	}
	// sql.NullString 这一类自己处理转换
	if dst.CanAddr() {
		if sc, ok := dst.Addr().Interface().(sql.Scanner); ok {
			return sc.Scan(src)
		}
	}
	if dst.Kind() == reflect.Ptr {
		v := reflect.New(dst.Type().Elem())
		if err := assign(col, v.Elem(), src); err != nil {
			return err
		}
		dst.Set(v)
		return nil
	}

	sv := reflect.ValueOf(src)
	if sv.Type().AssignableTo(dst.Type()) {
		if b, ok := src.([]byte); ok {
			// 驱动会复用 []byte 的底层数组
			src = append([]byte(nil), b...)
			sv = reflect.ValueOf(src)
		}
		dst.Set(sv)
		return nil
	}

	if dst.Type() == reflect.TypeOf(time.Time{}) {
		s, ok := asString(src)
		if !ok {
			return errs.NewErrCannotAssign(col, src, dst.Type().String())
		}
		for _, layout := range timeLayouts {
			if t, err := time.Parse(layout, s); err == nil {
				dst.Set(reflect.ValueOf(t))
				return nil
			}
		}
		return errs.NewErrCannotAssign(col, src, dst.Type().String())
	}

	switch dst.Kind() {
	case reflect.String:
		if s, ok := asString(src); ok {
			dst.SetString(s)
			return nil
		}
	case reflect.Slice:
		if dst.Type().Elem().Kind() == reflect.Uint8 {
			if s, ok := asString(src); ok {
				dst.SetBytes([]byte(s))
				return nil
			}
		}
	case reflect.Bool:
		if s, ok := asString(src); ok {
			b, err := strconv.ParseBool(s)
			if err != nil {
				return errs.NewErrCannotAssign(col, src, dst.Type().String())
			}
			dst.SetBool(b)
			return nil
		}
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		if s, ok := asString(src); ok {
			i, err := strconv.ParseInt(s, 10, dst.Type().Bits())
			if err != nil {
				return errs.NewErrCannotAssign(col, src, dst.Type().String())
			}
			dst.SetInt(i)
			return nil
		}
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		if s, ok := asString(src); ok {
			u, err := strconv.ParseUint(s, 10, dst.Type().Bits())
			if err != nil {
				return errs.NewErrCannotAssign(col, src, dst.Type().String())
			}
			dst.SetUint(u)
			return nil
		}
	case reflect.Float32, reflect.Float64:
		if s, ok := asString(src); ok {
			f, err := strconv.ParseFloat(s, dst.Type().Bits())
			if err != nil {
				return errs.NewErrCannotAssign(col, src, dst.Type().String())
			}
			dst.SetFloat(f)
			return nil
		}
	}
	return errs.NewErrCannotAssign(col, src, dst.Type().String())
}

func asString(src any) (string, bool) {
	switch v := src.(type) {
	case string:
		return v, true
	case []byte:
		return string(v), true
	case time.Time:
		return v.Format(time.RFC3339Nano), true
	}
	rv := reflect.ValueOf(src)
	switch rv.Kind() {
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		return strconv.FormatInt(rv.Int(), 10), true
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		return strconv.FormatUint(rv.Uint(), 10), true
	case reflect.Float64:
		return strconv.FormatFloat(rv.Float(), 'g', -1, 64), true
	case reflect.Float32:
		return strconv.FormatFloat(rv.Float(), 'g', -1, 32), true
	case reflect.Bool:
		return strconv.FormatBool(rv.Bool()), true
	}
	return "", false
}
