package orm

import (
	"database/sql/driver"
	"fmt"
	"reflect"
	"strings"
	"time"

	"github.com/startdusk/relorm/orm/internal/errs"
)

// ParameterMarker 占位符
const ParameterMarker = '?'

// Template 是带 ? 占位符的 SQL 片段和它的参数
// 某个参数是切片的时候, 渲染的时候会把对应的 ? 展开成 ?,?,?
type Template struct {
	template string
	values   []any
	// escape 把字符串转成字面量, 一般由 Dialect 提供
	escape func(string) string
}

func NewTemplate(template string, values ...any) *Template {
	return &Template{
		template: template,
		values:   values,
	}
}

// WithEscape 指定渲染字面量时使用的转义函数
func (e *Template) WithEscape(fn func(string) string) *Template {
	e.escape = fn
	return e
}

// Bind 覆盖第 idx 个参数, idx 从 1 开始
func (e *Template) Bind(idx int, val any) error {
	if idx <= 0 {
		return errs.NewErrInvalidParameterIndex(idx)
	}
	for len(e.values) < idx {
		e.values = append(e.values, nil)
	}
	e.values[idx-1] = val
	return nil
}

func (e *Template) BindAll(vals ...any) {
	e.values = vals
}

func (e *Template) Values() []any {
	return e.values
}

func (e *Template) Template() string {
	return e.template
}

// Render 从左往右扫描模板, 单引号里面的 ? 不算占位符.
// substitute 为 true 的时候把参数直接替换成字面量, 只用于调试和日志.
// 参数比占位符多是允许的, 少了就报错.
func (e *Template) Render(substitute bool) (string, error) {
	var sb strings.Builder
	sb.Grow(len(e.template) + 8)
	quotes := 0
	j := 0
	for i := 0; i < len(e.template); i++ {
		ch := e.template[i]
		switch {
		case ch == ParameterMarker && quotes%2 == 0:
			if j >= len(e.values) {
				return "", errs.NewErrNoBoundParameter(j)
			}
			sb.WriteString(e.substitute(e.values[j], substitute))
			j++
			continue
		case ch == '\'' && i > 0 && e.template[i-1] != '\\':
			quotes++
		}
		sb.WriteByte(ch)
	}
	return sb.String(), nil
}

func (e *Template) substitute(val any, substitute bool) string {
	if seq, ok := sequence(val); ok {
		n := seq.Len()
		if n == 0 {
			if substitute {
				return "NULL"
			}
			return string(ParameterMarker)
		}
		if substitute {
			parts := make([]string, 0, n)
			for i := 0; i < n; i++ {
				parts = append(parts, e.stringify(seq.Index(i).Interface()))
			}
			return strings.Join(parts, ",")
		}
		return strings.TrimSuffix(strings.Repeat("?,", n), ",")
	}
	if substitute {
		return e.stringify(val)
	}
	return string(ParameterMarker)
}

func (e *Template) stringify(val any) string {
	if vr, ok := val.(driver.Valuer); ok {
		v, err := vr.Value()
		if err != nil {
			return "NULL"
		}
		val = v
	}
	switch v := val.(type) {
	case nil:
		return "NULL"
	case string:
		return e.quote(v)
	case []byte:
		return e.quote(string(v))
	case time.Time:
		return e.quote(v.Format("2006-01-02 15:04:05"))
	case bool:
		if v {
			return "1"
		}
		return "0"
	}
	rv := reflect.ValueOf(val)
	if rv.Kind() == reflect.Ptr {
		if rv.IsNil() {
			return "NULL"
		}
		return e.stringify(rv.Elem().Interface())
	}
	return fmt.Sprint(val)
}

func (e *Template) quote(s string) string {
	if e.escape != nil {
		return e.escape(s)
	}
	return "'" + strings.ReplaceAll(s, "'", "''") + "'"
}

// sequence 判断参数是不是需要展开的切片, []byte 和实现了 driver.Valuer 的类型不算
func sequence(val any) (reflect.Value, bool) {
	if val == nil {
		return reflect.Value{}, false
	}
	if _, ok := val.(driver.Valuer); ok {
		return reflect.Value{}, false
	}
	rv := reflect.ValueOf(val)
	switch rv.Kind() {
	case reflect.Slice, reflect.Array:
		if rv.Type().Elem().Kind() == reflect.Uint8 {
			return reflect.Value{}, false
		}
		return rv, true
	}
	return reflect.Value{}, false
}

// flatten 把嵌套的切片参数拍平, 空切片对应渲染时保留的那个 ?, 所以变成一个 NULL
func flatten(vals []any) []any {
	res := make([]any, 0, len(vals))
	for _, v := range vals {
		seq, ok := sequence(v)
		if !ok {
			res = append(res, v)
			continue
		}
		if seq.Len() == 0 {
			res = append(res, nil)
			continue
		}
		elems := make([]any, 0, seq.Len())
		for i := 0; i < seq.Len(); i++ {
			elems = append(elems, seq.Index(i).Interface())
		}
		res = append(res, flatten(elems)...)
	}
	return res
}

// countPlaceholders 数一下单引号外面的 ? 个数
func countPlaceholders(query string) int {
	quotes, cnt := 0, 0
	for i := 0; i < len(query); i++ {
		switch {
		case query[i] == ParameterMarker && quotes%2 == 0:
			cnt++
		case query[i] == '\'' && i > 0 && query[i-1] != '\\':
			quotes++
		}
	}
	return cnt
}

// RawExpr 代表的是原生表达式
// 是一种兜底方式, 由于用户的输入SQL过于复杂, 就交给用户自己手写SQL, 我们就不能帮忙构建了
type RawExpr struct {
	raw  string
	args []any
}

func Raw(expr string, args ...any) RawExpr {
	return RawExpr{
		raw:  expr,
		args: args,
	}
}

func (r RawExpr) AsPredicate() Predicate {
	return Predicate{
		left: r,
	}
}

func (r RawExpr) selectable() {}
func (r RawExpr) expr()       {}
