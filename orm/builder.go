package orm

import (
	"database/sql/driver"
	"reflect"
	"strings"

	"github.com/startdusk/relorm/orm/internal/errs"
	"github.com/startdusk/relorm/orm/model"
)

// Selectable select 指定列
// 使用Go的结构体字段名可以避免传入的SQL列名存在SQL注入问题
type Selectable interface {
	selectable()
}

// builder 负责把 Predicate 和 Selectable 编译成 SQL 片段
type builder struct {
	sb      strings.Builder
	args    []any
	dialect Dialect
	// model 为 nil 的时候列名原样使用
	model *model.Model
	// table 不为空的时候列名前面带上表名
	table string
	// r 用来解析 Table.C 引用的其它表, 为 nil 的时候不支持
	r model.Registry
}

// compilePredicates 多个 Predicate 用 AND 连起来
func (b *builder) compilePredicates(ps ...Predicate) (Condition, error) {
	if len(ps) == 0 {
		return Condition{}, nil
	}
	p := ps[0]
	for i := 1; i < len(ps); i++ {
		p = p.And(ps[i])
	}
	b.sb.Reset()
	b.args = nil
	if err := b.buildExpression(p); err != nil {
		return Condition{}, err
	}
	return Condition{
		SQL:  b.sb.String(),
		Args: flatten(b.args),
		raw:  b.args,
	}, nil
}

func (b *builder) buildExpression(expr Expression) error {
	switch exp := expr.(type) {
	case Predicate:
		// 注意: 生成的SQL中, 处理加空格, 加标点符号的问题会让代码很难看, 但这是必须的
		_, lok := exp.left.(Predicate)
		if lok {
			b.sb.WriteByte('(')
		}
		if err := b.buildExpression(exp.left); err != nil {
			return err
		}
		if lok {
			b.sb.WriteByte(')')
		}

		if exp.op == opIn {
			b.sb.WriteString(" IN(?)")
			b.addArgs(exp.right.(value).val)
			return nil
		}
		if exp.op != "" {
			b.sb.WriteByte(' ')
			b.sb.WriteString(exp.op.String())
			b.sb.WriteByte(' ')
		}

		_, rok := exp.right.(Predicate)
		if rok {
			b.sb.WriteByte('(')
		}
		if err := b.buildExpression(exp.right); err != nil {
			return err
		}
		if rok {
			b.sb.WriteByte(')')
		}
	case Column:
		return b.buildColumnRef(exp)
	case RawExpr:
		b.sb.WriteByte('(')
		b.sb.WriteString(exp.raw)
		b.addArgs(exp.args...)
		b.sb.WriteByte(')')
	case value:
		b.sb.WriteByte('?')
		b.addArgs(exp.val)
	case nil:
		return nil
	default:
		return errs.NewErrUnsupportedExpressionType(expr)
	}
	return nil
}

// buildSelect 构建 SELECT 的列, 没有指定列就是 table.*
func (b *builder) buildSelect(cols []Selectable) (string, error) {
	b.sb.Reset()
	if len(cols) == 0 {
		if b.table != "" {
			return b.dialect.QuoteName(b.table) + ".*", nil
		}
		return "*", nil
	}
	for i, col := range cols {
		if i > 0 {
			b.sb.WriteString(", ")
		}
		switch c := col.(type) {
		case Column:
			if err := b.buildColumnRef(c); err != nil {
				return "", err
			}
			if c.alias != "" {
				b.sb.WriteString(" AS ")
				b.sb.WriteString(b.dialect.QuoteName(c.alias))
			}
		case Aggregate:
			b.sb.WriteString(c.fn)
			b.sb.WriteByte('(')
			if err := b.buildColumn(c.arg); err != nil {
				return "", err
			}
			b.sb.WriteByte(')')
			if c.alias != "" {
				b.sb.WriteString(" AS ")
				b.sb.WriteString(b.dialect.QuoteName(c.alias))
			}
		case RawExpr:
			// 用户输入SQL
			b.sb.WriteString(c.raw)
		default:
			return "", errs.NewErrUnsupportedSelectable(col)
		}
	}
	return b.sb.String(), nil
}

// buildColumn 构造列
func (b *builder) buildColumn(name string) error {
	col := name
	if b.model != nil {
		var ok bool
		col, ok = b.model.ColumnFor(name)
		if !ok {
			return errs.NewErrUnknownField(name)
		}
	}
	if b.table != "" {
		col = b.table + "." + col
	}
	b.sb.WriteString(b.dialect.QuoteName(col))
	return nil
}

// buildColumnRef 带了表的列按照那张表的模型解析, 用别名或者表名限定
func (b *builder) buildColumnRef(c Column) error {
	if c.table == nil {
		return b.buildColumn(c.name)
	}
	t, ok := c.table.(Table)
	if !ok || b.r == nil {
		return errs.NewErrUnsupportedTable(c.table)
	}
	m, err := b.r.Get(t.entity)
	if err != nil {
		return err
	}
	col, ok := m.ColumnFor(c.name)
	if !ok {
		return errs.NewErrUnknownField(c.name)
	}
	qualifier := t.alias
	if qualifier == "" {
		qualifier = m.TableName
	}
	b.sb.WriteString(b.dialect.QuoteName(qualifier + "." + col))
	return nil
}

// buildJoin 把 JOIN 链展开成片段, 每个片段带着自己的参数. 最左边的表不在这里, 由调用方放到 FROM 后面
func (b *builder) buildJoin(j Join) ([]Condition, error) {
	var res []Condition
	switch left := j.left.(type) {
	case Join:
		var err error
		if res, err = b.buildJoin(left); err != nil {
			return nil, err
		}
	case Table:
	default:
		return nil, errs.NewErrUnsupportedTable(j.left)
	}
	if b.r == nil {
		return nil, errs.NewErrUnsupportedTable(j.right)
	}
	m, err := b.r.Get(j.right.entity)
	if err != nil {
		return nil, err
	}

	var sb strings.Builder
	sb.WriteString(j.typ)
	sb.WriteByte(' ')
	sb.WriteString(b.dialect.QuoteName(m.TableName))
	if j.right.alias != "" {
		// Oracle 不认表别名前面的 AS
		sb.WriteByte(' ')
		sb.WriteString(b.dialect.QuoteName(j.right.alias))
	}
	var frag Condition
	switch {
	case len(j.on) > 0:
		pb := &builder{dialect: b.dialect, model: b.model, table: b.table, r: b.r}
		on, err := pb.compilePredicates(j.on...)
		if err != nil {
			return nil, err
		}
		sb.WriteString(" ON(")
		sb.WriteString(on.SQL)
		sb.WriteByte(')')
		frag.Args, frag.raw = on.Args, on.raw
	case len(j.using) > 0:
		cols := make([]string, 0, len(j.using))
		for _, name := range j.using {
			col, ok := m.ColumnFor(name)
			if !ok {
				return nil, errs.NewErrUnknownField(name)
			}
			cols = append(cols, b.dialect.QuoteName(col))
		}
		sb.WriteString(" USING(")
		sb.WriteString(strings.Join(cols, ", "))
		sb.WriteByte(')')
	}
	frag.SQL = sb.String()
	return append(res, frag), nil
}

func (b *builder) addArgs(args ...any) {
	if len(args) == 0 {
		return
	}
	if b.args == nil {
		// 很少有查询能够超过8个参数
		b.args = make([]any, 0, 8)
	}
	b.args = append(b.args, args...)
}

// isNull nil, nil 指针, 以及 Value() 返回 nil 的 driver.Valuer 都当成 NULL
func isNull(v any) bool {
	if v == nil {
		return true
	}
	if vr, ok := v.(driver.Valuer); ok {
		rv := reflect.ValueOf(v)
		if rv.Kind() == reflect.Ptr && rv.IsNil() {
			return true
		}
		dv, err := vr.Value()
		return err == nil && dv == nil
	}
	rv := reflect.ValueOf(v)
	return rv.Kind() == reflect.Ptr && rv.IsNil()
}
