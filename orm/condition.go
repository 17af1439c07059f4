package orm

import (
	"regexp"
	"sort"
	"strings"

	"github.com/startdusk/relorm/orm/internal/errs"
)

const (
	ConnectiveAnd = "AND"
	ConnectiveOr  = "OR"
)

var underscoredSplitter = regexp.MustCompile(`(?i)(_and_|_or_)`)

// Condition 是一段不带前导 AND/OR 的条件, 以及拍平之后的参数
type Condition struct {
	SQL  string
	Args []any

	// raw 是没有拍平的参数, IN(?) 需要靠它展开占位符
	raw []any
}

func (c Condition) IsEmpty() bool {
	return c.SQL == ""
}

// Expand 把 IN(?) 之类的占位符展开, 返回可以直接交给驱动的 SQL 和参数
func (c Condition) Expand() (string, []any, error) {
	raw := c.raw
	if raw == nil {
		raw = c.Args
	}
	sql, err := NewTemplate(c.SQL, raw...).Render(false)
	if err != nil {
		return "", nil, err
	}
	return sql, flatten(raw), nil
}

// And 用 AND 把两个条件拼起来, 任意一边为空就返回另外一边
func (c Condition) And(other Condition) Condition {
	return c.join(other, ConnectiveAnd)
}

func (c Condition) Or(other Condition) Condition {
	return c.join(other, ConnectiveOr)
}

func (c Condition) join(other Condition, connective string) Condition {
	if c.IsEmpty() {
		return other
	}
	if other.IsEmpty() {
		return c
	}
	raw := append(append([]any{}, c.rawArgs()...), other.rawArgs()...)
	return Condition{
		SQL:  "(" + c.SQL + ") " + connective + " (" + other.SQL + ")",
		Args: flatten(raw),
		raw:  raw,
	}
}

func (c Condition) rawArgs() []any {
	if c.raw != nil {
		return c.raw
	}
	return c.Args
}

// Pair 是 Hash 里面的一个键值对
type Pair struct {
	Column string
	Value  any
}

// Hash 是有序的 列 => 值, Go 的 map 遍历是无序的, 所以不能直接用 map
type Hash []Pair

// H("name", "Tom", "age", 18) 按照传入的顺序构造 Hash
func H(kvs ...any) Hash {
	if len(kvs)%2 != 0 {
		panic(errs.NewErrInvalidCondition(kvs))
	}
	h := make(Hash, 0, len(kvs)/2)
	for i := 0; i < len(kvs); i += 2 {
		col, ok := kvs[i].(string)
		if !ok {
			panic(errs.NewErrInvalidHashKey(kvs[i]))
		}
		h = append(h, Pair{Column: col, Value: kvs[i+1]})
	}
	return h
}

// HashOf 把 map 转成 Hash, 为了结果稳定按照键排序
func HashOf(m map[string]any) Hash {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	h := make(Hash, 0, len(keys))
	for _, k := range keys {
		h = append(h, Pair{Column: k, Value: m[k]})
	}
	return h
}

// Set 已经存在的键会被覆盖, 位置不变
func (h Hash) Set(col string, val any) Hash {
	for i := range h {
		if h[i].Column == col {
			h[i].Value = val
			return h
		}
	}
	return append(h, Pair{Column: col, Value: val})
}

func (h Hash) Get(col string) (any, bool) {
	for _, p := range h {
		if p.Column == col {
			return p.Value, true
		}
	}
	return nil, false
}

func (h Hash) Columns() []string {
	res := make([]string, 0, len(h))
	for _, p := range h {
		res = append(res, p.Column)
	}
	return res
}

func (h Hash) Values() []any {
	res := make([]any, 0, len(h))
	for _, p := range h {
		res = append(res, p.Value)
	}
	return res
}

// FromHash 每个键值对编译成 col=? , col IN(?) 或者 col IS ?
// NULL 也绑定成参数, 保证占位符和参数一一对应
func FromHash(h Hash, connective string) Condition {
	return fromHash(h, connective, nil)
}

func fromHash(h Hash, connective string, quote func(string) string) Condition {
	if connective == "" {
		connective = ConnectiveAnd
	}
	glue := " " + strings.TrimSpace(connective) + " "
	var sb strings.Builder
	raw := make([]any, 0, len(h))
	for i, p := range h {
		if i > 0 {
			sb.WriteString(glue)
		}
		name := p.Column
		if quote != nil {
			name = quote(name)
		}
		sb.WriteString(name)
		if _, ok := sequence(p.Value); ok {
			sb.WriteString(" IN(?)")
		} else if isNull(p.Value) {
			sb.WriteString(" IS ?")
		} else {
			sb.WriteString("=?")
		}
		raw = append(raw, p.Value)
	}
	return Condition{
		SQL:  sb.String(),
		Args: flatten(raw),
		raw:  raw,
	}
}

// FromUnderscoredChain 解析 name_and_id_or_z 这种写法.
// 第 i 个列如果有非 NULL 的值就是 col=? (切片是 col IN(?)), 否则就是 col IS NULL 并且不消耗参数
// columnMap 用来把别名映射成真正的列名
func FromUnderscoredChain(name string, values []any, columnMap map[string]string) Condition {
	return fromUnderscoredChain(name, values, columnMap, nil)
}

// CreateConditionsFromUnderscoredString 和 FromUnderscoredChain 一样, 只是列名会按照方言加上引号
func CreateConditionsFromUnderscoredString(d Dialect, name string, values []any, columnMap map[string]string) Condition {
	var quote func(string) string
	if d != nil {
		quote = d.QuoteName
	}
	return fromUnderscoredChain(name, values, columnMap, quote)
}

func fromUnderscoredChain(name string, values []any, columnMap map[string]string, quote func(string) string) Condition {
	if name == "" {
		return Condition{}
	}
	cols, connectives := splitUnderscored(name)
	var sb strings.Builder
	raw := make([]any, 0, len(values))
	for i, col := range cols {
		if i > 0 {
			sb.WriteString(connectives[i-1])
		}
		bind := " IS NULL"
		if i < len(values) && !isNull(values[i]) {
			if _, ok := sequence(values[i]); ok {
				bind = " IN(?)"
			} else {
				bind = "=?"
			}
			raw = append(raw, values[i])
		}
		if mapped, ok := columnMap[col]; ok {
			col = mapped
		}
		if quote != nil {
			col = quote(col)
		}
		sb.WriteString(col)
		sb.WriteString(bind)
	}
	return Condition{
		SQL:  sb.String(),
		Args: flatten(raw),
		raw:  raw,
	}
}

// CreateHashFromUnderscoredString 把 name_and_age 和参数转成 Hash, 一般用来构造 FindOrCreate 的新记录
func CreateHashFromUnderscoredString(name string, values []any, columnMap map[string]string) Hash {
	if name == "" {
		return Hash{}
	}
	cols, _ := splitUnderscored(name)
	h := make(Hash, 0, len(cols))
	for i, col := range cols {
		if mapped, ok := columnMap[col]; ok {
			col = mapped
		}
		var val any
		if i < len(values) {
			val = values[i]
		}
		h = append(h, Pair{Column: col, Value: val})
	}
	return h
}

// splitUnderscored 返回列名, 以及列名之间的连接符(" AND " 或者 " OR ")
func splitUnderscored(name string) ([]string, []string) {
	idx := underscoredSplitter.FindAllStringIndex(name, -1)
	cols := make([]string, 0, len(idx)+1)
	connectives := make([]string, 0, len(idx))
	start := 0
	for _, loc := range idx {
		cols = append(cols, name[start:loc[0]])
		if strings.EqualFold(name[loc[0]:loc[1]], "_and_") {
			connectives = append(connectives, " AND ")
		} else {
			connectives = append(connectives, " OR ")
		}
		start = loc[1]
	}
	cols = append(cols, name[start:])
	return cols, connectives
}

// FromPositional 第一个参数是 SQL 片段, 剩下的是参数.
// 参数里面有切片的时候返回展开之后的片段
func FromPositional(fragment string, values ...any) (Condition, error) {
	for _, v := range values {
		if _, ok := sequence(v); ok {
			sql, err := NewTemplate(fragment, values...).Render(false)
			if err != nil {
				return Condition{}, err
			}
			args := flatten(values)
			return Condition{SQL: sql, Args: args, raw: args}, nil
		}
	}
	return Condition{SQL: fragment, Args: values, raw: values}, nil
}
