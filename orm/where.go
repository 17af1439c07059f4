package orm

import (
	"database/sql/driver"
	"fmt"
	"reflect"
	"strconv"
	"strings"

	"github.com/startdusk/relorm/orm/internal/errs"
	"github.com/startdusk/relorm/orm/model"
)

// resolveWhere 在交给 SQLBuilder 之前, 把 Hash 的键和 Predicate 里面的 Go 字段名或者别名解析成列名.
// table 不为空的时候 Predicate 里面的列带上表名
func resolveWhere(c core, m *model.Model, table string, args []any) ([]any, error) {
	if len(args) == 0 {
		return nil, nil
	}
	switch first := args[0].(type) {
	case Hash:
		return []any{resolveHash(m, first)}, nil
	case map[string]any:
		return []any{resolveHash(m, HashOf(first))}, nil
	case Predicate:
		ps := make([]Predicate, 0, len(args))
		for _, arg := range args {
			p, ok := arg.(Predicate)
			if !ok {
				return nil, errs.NewErrInvalidCondition(arg)
			}
			ps = append(ps, p)
		}
		b := &builder{dialect: c.dialect, model: m, table: table, r: c.r}
		cond, err := b.compilePredicates(ps...)
		if err != nil {
			return nil, err
		}
		return []any{cond}, nil
	}
	return args, nil
}

// resolveHash 认不出来的键原样保留, 比如 other_table.col
func resolveHash(m *model.Model, h Hash) Hash {
	res := make(Hash, 0, len(h))
	for _, p := range h {
		if col, ok := m.ColumnFor(p.Column); ok {
			p.Column = col
		}
		res = append(res, p)
	}
	return res
}

// normalizeKey 数据库驱动和结构体字段给出的同一个键, 类型可能不一样(int/int64/[]byte),
// 统一之后才能比较
func normalizeKey(v any) any {
	if isNull(v) {
		return nil
	}
	if vr, ok := v.(driver.Valuer); ok {
		if dv, err := vr.Value(); err == nil {
			v = dv
		}
	}
	rv := reflect.ValueOf(v)
	for rv.Kind() == reflect.Ptr {
		if rv.IsNil() {
			return nil
		}
		rv = rv.Elem()
	}
	switch rv.Kind() {
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		return rv.Int()
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		return strconv.FormatUint(rv.Uint(), 10)
	case reflect.Float32, reflect.Float64:
		return rv.Float()
	case reflect.String:
		return rv.String()
	case reflect.Slice:
		if rv.Type().Elem().Kind() == reflect.Uint8 {
			return string(rv.Bytes())
		}
	}
	return rv.Interface()
}

// keyOf 返回一组键值对应的字符串, 全部为 NULL 的时候第二个返回值是 false
func keyOf(vals []any) (string, bool) {
	parts := make([]string, 0, len(vals))
	valid := false
	for _, v := range vals {
		nv := normalizeKey(v)
		if nv != nil {
			valid = true
		}
		parts = append(parts, fmt.Sprint(nv))
	}
	return strings.Join(parts, "\x1f"), valid
}
