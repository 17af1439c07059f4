package orm

import (
	"strings"

	"github.com/startdusk/relorm/orm/internal/errs"
)

const (
	opTypeSelect = "SELECT"
	opTypeInsert = "INSERT"
	opTypeUpdate = "UPDATE"
	opTypeDelete = "DELETE"
	opTypeRaw    = "RAW"
)

// SQLBuilder 按子句拼装 SELECT / INSERT / UPDATE / DELETE.
// 方法都返回自身, 中途出现的第一个错误会在 Build 的时候返回.
// SQLBuilder 不是并发安全的, 每条语句用一个新的实例
type SQLBuilder struct {
	dialect   Dialect
	operation string
	table     string
	// alias 不为空的时候 FROM 后面带上别名, 列也用别名限定
	alias string

	sel      string
	joins    []string
	joinArgs []any
	where    string
	args     []any
	group    string
	having   string
	order    string
	limit    int
	offset   int

	// INSERT / UPDATE 的数据
	data       Hash
	update     string
	updateArgs []any
	// pk 列名和序列名, 只有两个都有的时候才会在 INSERT 里面取序列的下一个值
	sequence []string
	// upsert 由 Dialect.UpsertClause 生成, 直接拼在 INSERT 后面
	upsert     string
	upsertArgs []any

	err error
}

var _ QueryBuilder = &SQLBuilder{}

func NewSQLBuilder(d Dialect, table string) *SQLBuilder {
	b := &SQLBuilder{
		dialect:   d,
		operation: opTypeSelect,
		sel:       "*",
	}
	switch {
	case d == nil:
		b.err = errs.ErrNilDialect
	case table == "":
		b.err = errs.ErrEmptyTable
	default:
		b.table = d.QuoteName(table)
	}
	return b
}

func (b *SQLBuilder) Select(sel string) *SQLBuilder {
	b.operation = opTypeSelect
	if sel != "" {
		b.sel = sel
	}
	return b
}

// Joins 追加原生的 JOIN 片段, 按照调用顺序拼接
func (b *SQLBuilder) Joins(joins ...string) *SQLBuilder {
	for _, j := range joins {
		if j = strings.TrimSpace(j); j != "" {
			b.joins = append(b.joins, j)
		}
	}
	return b
}

// Join 追加一个带参数的 JOIN 片段, 它的参数排在 WHERE 的参数前面
func (b *SQLBuilder) Join(join string, args ...any) *SQLBuilder {
	if join = strings.TrimSpace(join); join != "" {
		b.joins = append(b.joins, join)
		b.joinArgs = append(b.joinArgs, args...)
	}
	return b
}

// As 给 FROM 后面的表起别名, 只对 SELECT 生效
func (b *SQLBuilder) As(alias string) *SQLBuilder {
	b.alias = alias
	return b
}

// Where 支持下面几种写法, 多次调用用 AND 连起来:
//
//	Where(H("name", "Tom", "age", 18))
//	Where(map[string]any{"name": "Tom"})
//	Where("name = ? AND age IN(?)", "Tom", []int{18, 19})
//	Where(C("name").Eq("Tom"))
//	Where(FromUnderscoredChain(...))
func (b *SQLBuilder) Where(args ...any) *SQLBuilder {
	if b.err != nil || len(args) == 0 {
		return b
	}
	cond, err := b.parseConditions(args)
	if err != nil {
		b.err = err
		return b
	}
	b.addCondition(cond)
	return b
}

func (b *SQLBuilder) parseConditions(args []any) (Condition, error) {
	switch first := args[0].(type) {
	case Hash:
		return b.fromHash(first), nil
	case map[string]any:
		return b.fromHash(HashOf(first)), nil
	case Condition:
		return first, nil
	case string:
		return FromPositional(first, args[1:]...)
	case Predicate:
		ps := make([]Predicate, 0, len(args))
		for _, arg := range args {
			p, ok := arg.(Predicate)
			if !ok {
				return Condition{}, errs.NewErrInvalidCondition(arg)
			}
			ps = append(ps, p)
		}
		pb := &builder{dialect: b.dialect}
		return pb.compilePredicates(ps...)
	}
	return Condition{}, errs.NewErrInvalidCondition(args[0])
}

// fromHash 有 JOIN 的时候给不带表名的列加上当前表名, 避免列名冲突
func (b *SQLBuilder) fromHash(h Hash) Condition {
	if len(b.joins) > 0 {
		prefixed := make(Hash, 0, len(h))
		for _, p := range h {
			col := p.Column
			if !strings.Contains(col, ".") {
				col = b.qualifier() + "." + b.dialect.QuoteName(col)
			}
			prefixed = append(prefixed, Pair{Column: col, Value: p.Value})
		}
		h = prefixed
	}
	return fromHash(h, ConnectiveAnd, b.dialect.QuoteName)
}

func (b *SQLBuilder) qualifier() string {
	if b.alias != "" && b.operation == opTypeSelect {
		return b.dialect.QuoteName(b.alias)
	}
	return b.table
}

func (b *SQLBuilder) addCondition(cond Condition) {
	if cond.IsEmpty() {
		return
	}
	sql, args, err := cond.Expand()
	if err != nil {
		b.err = err
		return
	}
	if b.where == "" {
		b.where = sql
		b.args = args
		return
	}
	b.where = "(" + b.where + ") AND (" + sql + ")"
	b.args = append(b.args, args...)
}

func (b *SQLBuilder) Group(group string) *SQLBuilder {
	b.group = group
	return b
}

func (b *SQLBuilder) Having(having string) *SQLBuilder {
	b.having = having
	return b
}

func (b *SQLBuilder) Order(order string) *SQLBuilder {
	b.order = order
	return b
}

func (b *SQLBuilder) Limit(limit int) *SQLBuilder {
	b.limit = limit
	return b
}

func (b *SQLBuilder) Offset(offset int) *SQLBuilder {
	b.offset = offset
	return b
}

// Insert data 只能是 Hash 或者 map[string]any.
// 同时给了主键列名和序列名的时候, 主键的值直接取序列的下一个值
func (b *SQLBuilder) Insert(data any, pkAndSequence ...string) *SQLBuilder {
	b.operation = opTypeInsert
	h, ok := toHash(data)
	if !ok || len(h) == 0 {
		b.latch(errs.ErrInsertRequireMap)
		return b
	}
	b.data = h
	if len(pkAndSequence) == 2 && pkAndSequence[0] != "" && pkAndSequence[1] != "" {
		b.sequence = pkAndSequence
	}
	return b
}

// OnConflict 追加 Dialect.UpsertClause 生成的子句, 只对 INSERT 生效
func (b *SQLBuilder) OnConflict(clause string, args ...any) *SQLBuilder {
	b.upsert = clause
	b.upsertArgs = args
	return b
}

// Update data 可以是 Hash, map[string]any, 或者原生的 SET 片段(后面跟着参数)
func (b *SQLBuilder) Update(data any, args ...any) *SQLBuilder {
	b.operation = opTypeUpdate
	if raw, ok := data.(string); ok && raw != "" {
		b.update = raw
		b.updateArgs = args
		return b
	}
	h, ok := toHash(data)
	if !ok || len(h) == 0 {
		b.latch(errs.ErrUpdateRequireSet)
		return b
	}
	b.data = h
	return b
}

// Delete 条件的写法和 Where 一样
func (b *SQLBuilder) Delete(args ...any) *SQLBuilder {
	b.operation = opTypeDelete
	return b.Where(args...)
}

func (b *SQLBuilder) latch(err error) {
	if b.err == nil {
		b.err = err
	}
}

func toHash(data any) (Hash, bool) {
	switch d := data.(type) {
	case Hash:
		return d, true
	case map[string]any:
		return HashOf(d), true
	}
	return nil, false
}

// Build 渲染 SQL, 同时校验占位符数量和参数数量是否一致
func (b *SQLBuilder) Build() (*Query, error) {
	if b.err != nil {
		return nil, b.err
	}
	sql, err := b.render()
	if err != nil {
		return nil, err
	}
	args := b.BindValues()
	if cnt := countPlaceholders(sql); cnt != len(args) {
		return nil, errs.NewErrPlaceholderMismatch(cnt, len(args))
	}
	return &Query{
		SQL:  sql,
		Args: args,
	}, nil
}

// String 只用来调试, 出错的时候返回空字符串
func (b *SQLBuilder) String() string {
	if b.err != nil {
		return ""
	}
	sql, err := b.render()
	if err != nil {
		return ""
	}
	return sql
}

// BindValues INSERT/UPDATE 的数据在前, 然后是 JOIN 的参数, WHERE 的参数在后, 全部拍平
func (b *SQLBuilder) BindValues() []any {
	ret := make([]any, 0, len(b.data)+len(b.updateArgs)+len(b.joinArgs)+len(b.args))
	switch b.operation {
	case opTypeInsert:
		ret = append(ret, b.data.Values()...)
		ret = append(ret, b.upsertArgs...)
	case opTypeUpdate:
		if b.update != "" {
			ret = append(ret, b.updateArgs...)
		} else {
			ret = append(ret, b.data.Values()...)
		}
	case opTypeSelect:
		ret = append(ret, b.joinArgs...)
	}
	ret = append(ret, b.args...)
	return flatten(ret)
}

// WhereValues 只返回 WHERE 部分的参数
func (b *SQLBuilder) WhereValues() []any {
	return b.args
}

func (b *SQLBuilder) render() (string, error) {
	switch b.operation {
	case opTypeInsert:
		return b.buildInsert()
	case opTypeUpdate:
		return b.buildUpdate(), nil
	case opTypeDelete:
		return b.buildDelete(), nil
	default:
		return b.buildSelect(), nil
	}
}

func (b *SQLBuilder) buildSelect() string {
	var sb strings.Builder
	sb.WriteString("SELECT ")
	sb.WriteString(b.sel)
	sb.WriteString(" FROM ")
	sb.WriteString(b.table)
	if b.alias != "" {
		sb.WriteByte(' ')
		sb.WriteString(b.dialect.QuoteName(b.alias))
	}
	if len(b.joins) > 0 {
		sb.WriteByte(' ')
		sb.WriteString(strings.Join(b.joins, " "))
	}
	b.writeWhere(&sb)
	if b.group != "" {
		sb.WriteString(" GROUP BY ")
		sb.WriteString(b.group)
	}
	if b.having != "" {
		sb.WriteString(" HAVING ")
		sb.WriteString(b.having)
	}
	if b.order != "" {
		sb.WriteString(" ORDER BY ")
		sb.WriteString(b.order)
	}
	sql := sb.String()
	if b.limit > 0 || b.offset > 0 {
		sql = b.dialect.LimitClause(sql, b.offset, b.limit)
	}
	return sql
}

func (b *SQLBuilder) buildInsert() (string, error) {
	keys := strings.Join(b.quotedKeyNames(), ",")
	var sql string
	if b.sequence != nil {
		sql = "INSERT INTO " + b.table + "(" + keys + "," + b.dialect.QuoteName(b.sequence[0]) +
			") VALUES(?," + b.dialect.NextSequenceValue(b.sequence[1]) + ")"
	} else {
		sql = "INSERT INTO " + b.table + "(" + keys + ") VALUES(?)"
	}
	// 所有的值作为一个切片绑定到唯一的 ? 上, 渲染的时候展开
	sql, err := NewTemplate(sql, b.data.Values()).Render(false)
	if err != nil {
		return "", err
	}
	return sql + b.upsert, nil
}

func (b *SQLBuilder) buildUpdate() string {
	var sb strings.Builder
	sb.WriteString("UPDATE ")
	sb.WriteString(b.table)
	sb.WriteString(" SET ")
	if b.update != "" {
		sb.WriteString(b.update)
	} else {
		sb.WriteString(strings.Join(b.quotedKeyNames(), "=?, "))
		sb.WriteString("=?")
	}
	b.writeWhere(&sb)
	return b.limitAndOrderForUpdateAndDelete(&sb)
}

func (b *SQLBuilder) buildDelete() string {
	var sb strings.Builder
	sb.WriteString("DELETE FROM ")
	sb.WriteString(b.table)
	b.writeWhere(&sb)
	return b.limitAndOrderForUpdateAndDelete(&sb)
}

// limitAndOrderForUpdateAndDelete 方言不支持的时候直接忽略, 不报错
func (b *SQLBuilder) limitAndOrderForUpdateAndDelete(sb *strings.Builder) string {
	if !b.dialect.AcceptsLimitAndOrderForUpdateAndDelete() {
		return sb.String()
	}
	if b.order != "" {
		sb.WriteString(" ORDER BY ")
		sb.WriteString(b.order)
	}
	sql := sb.String()
	if b.limit > 0 {
		sql = b.dialect.LimitClause(sql, 0, b.limit)
	}
	return sql
}

func (b *SQLBuilder) writeWhere(sb *strings.Builder) {
	if b.where != "" {
		sb.WriteString(" WHERE ")
		sb.WriteString(b.where)
	}
}

func (b *SQLBuilder) quotedKeyNames() []string {
	keys := make([]string, 0, len(b.data))
	for _, p := range b.data {
		keys = append(keys, b.dialect.QuoteName(p.Column))
	}
	return keys
}

// ReverseOrder 把每一项结尾的 ASC 和 DESC 互换并保持原来的大小写, 两个都没有的补上 DESC
func ReverseOrder(order string) string {
	if strings.TrimSpace(order) == "" {
		return order
	}
	parts := strings.Split(order, ",")
	for i, part := range parts {
		trimmed := strings.TrimRight(part, " ")
		lower := strings.ToLower(trimmed)
		switch {
		case strings.HasSuffix(lower, " asc"):
			parts[i] = trimmed[:len(trimmed)-3] + sameCase(trimmed[len(trimmed)-3:], "DESC")
		case strings.HasSuffix(lower, " desc"):
			parts[i] = trimmed[:len(trimmed)-4] + sameCase(trimmed[len(trimmed)-4:], "ASC")
		default:
			parts[i] = trimmed + " DESC"
		}
	}
	return strings.Join(parts, ",")
}

// sameCase 原来的关键字全是小写就返回小写
func sameCase(origin, keyword string) string {
	if origin == strings.ToLower(origin) {
		return strings.ToLower(keyword)
	}
	return keyword
}
