package orm

// TableReference 是 FROM 后面能出现的东西, 目前有 Table 和 Join
type TableReference interface {
	table()
}

const (
	joinInner = "INNER JOIN"
	joinLeft  = "LEFT JOIN"
	joinRight = "RIGHT JOIN"
)

// Table 普通的表, 表名由 entity 对应的模型决定
type Table struct {
	entity any
	alias  string
}

func (t Table) table() {}

func TableOf(entity any) Table {
	return Table{
		entity: entity,
	}
}

// As 给表起别名, 之后这张表上的列都用别名引用
func (t Table) As(alias string) Table {
	return Table{
		entity: t.entity,
		alias:  alias,
	}
}

// C 这张表上的列, name 可以是 Go 字段名, 别名或者列名
func (t Table) C(name string) Column {
	return Column{
		table: t,
		name:  name,
	}
}

// Join t1 JOIN t2
func (t Table) Join(right Table) *JoinBuilder {
	return &JoinBuilder{
		left:  t,
		right: right,
		typ:   joinInner,
	}
}

func (t Table) LeftJoin(right Table) *JoinBuilder {
	return &JoinBuilder{
		left:  t,
		right: right,
		typ:   joinLeft,
	}
}

func (t Table) RightJoin(right Table) *JoinBuilder {
	return &JoinBuilder{
		left:  t,
		right: right,
		typ:   joinRight,
	}
}

// JoinBuilder 必须调用 On 或者 Using 才能得到 Join
type JoinBuilder struct {
	left  TableReference
	right Table
	typ   string
}

// On t1 JOIN t2 ON(t1.a = t2.b)
func (j *JoinBuilder) On(ps ...Predicate) Join {
	return Join{
		left:  j.left,
		right: j.right,
		typ:   j.typ,
		on:    ps,
	}
}

// Using t1 JOIN t2 USING(a, b), 列按照右边的表解析
func (j *JoinBuilder) Using(cols ...string) Join {
	return Join{
		left:  j.left,
		right: j.right,
		typ:   j.typ,
		using: cols,
	}
}

// Join 可以继续往后 JOIN, 只能往右边延伸
type Join struct {
	left  TableReference
	right Table
	typ   string
	on    []Predicate
	using []string
}

func (j Join) table() {}

func (j Join) Join(right Table) *JoinBuilder {
	return &JoinBuilder{
		left:  j,
		right: right,
		typ:   joinInner,
	}
}

func (j Join) LeftJoin(right Table) *JoinBuilder {
	return &JoinBuilder{
		left:  j,
		right: right,
		typ:   joinLeft,
	}
}

func (j Join) RightJoin(right Table) *JoinBuilder {
	return &JoinBuilder{
		left:  j,
		right: right,
		typ:   joinRight,
	}
}

// leftmost JOIN 链最左边的表, 它会出现在 FROM 后面
func leftmost(ref TableReference) (Table, bool) {
	for {
		switch t := ref.(type) {
		case Table:
			return t, true
		case Join:
			ref = t.left
		default:
			return Table{}, false
		}
	}
}
