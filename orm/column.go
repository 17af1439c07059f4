package orm

func (c Column) selectable() {}

func (c Column) expr() {}

// assign 在 upsert 里面代表用插入的值更新这一列
func (c Column) assign() {}

// Column 的 name 可以是 Go 字段名, 也可以是列名
type Column struct {
	// table 为 nil 的时候是当前查询的主表
	table TableReference
	name  string
	alias string
}

func C(name string) Column {
	return Column{name: name}
}

// As 给列起别名, 只在 SELECT 里面生效
func (c Column) As(alias string) Column {
	return Column{
		table: c.table,
		name:  c.name,
		alias: alias,
	}
}

func (c Column) Eq(arg any) Predicate {
	return c.binary(opEq, arg)
}

func (c Column) Neq(arg any) Predicate {
	return c.binary(opNeq, arg)
}

func (c Column) Gt(arg any) Predicate {
	return c.binary(opGt, arg)
}

func (c Column) Lt(arg any) Predicate {
	return c.binary(opLt, arg)
}

func (c Column) Like(arg string) Predicate {
	return c.binary(opLike, arg)
}

// In C("ID").In(1, 2, 3) => `id` IN(?,?,?)
func (c Column) In(args ...any) Predicate {
	if len(args) == 1 {
		if _, ok := sequence(args[0]); ok {
			return c.binary(opIn, args[0])
		}
	}
	return c.binary(opIn, args)
}

func (c Column) binary(o op, arg any) Predicate {
	return Predicate{
		left:  c,
		op:    o,
		right: valueOf(arg),
	}
}

// valueOf 表达式原样使用, 比如 a.C("ID").Eq(b.C("AuthorID")), 其余的当成参数
func valueOf(arg any) Expression {
	switch val := arg.(type) {
	case Expression:
		return val
	default:
		return value{val: val}
	}
}
