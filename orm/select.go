package orm

import (
	"context"
	"strings"

	"github.com/startdusk/relorm/orm/internal/errs"
	"github.com/startdusk/relorm/orm/model"
)

var _ Querier[struct{}] = &Selector[struct{}]{}

type Selector[T any] struct {
	core
	sess Session

	// 指定 select 的列
	columns []Selectable
	// 每次 Where 调用的参数, 用 AND 连起来
	where [][]any
	// underscored 是 FindBy 的 name_and_age 写法
	underscored []underscoredCond

	from     TableReference
	joins    []string
	group    string
	having   string
	order    string
	limit    int
	offset   int
	includes []string
	readonly bool
}

type underscoredCond struct {
	name   string
	values []any
}

func NewSelector[T any](sess Session) *Selector[T] {
	return &Selector[T]{
		core: sess.getCore(),
		sess: sess,
	}
}

func (s *Selector[T]) Select(cols ...Selectable) *Selector[T] {
	s.columns = cols
	return s
}

// Where 支持 Hash, map[string]any, "SQL 片段", 参数... 以及 Predicate.
// Hash 的键和 Predicate 的列可以用 Go 字段名, 别名或者列名
func (s *Selector[T]) Where(args ...any) *Selector[T] {
	if len(args) > 0 {
		s.where = append(s.where, args)
	}
	return s
}

// WhereUnderscored name_and_age_or_email 这种写法, 值为 NULL 的列变成 IS NULL
func (s *Selector[T]) WhereUnderscored(name string, values ...any) *Selector[T] {
	s.underscored = append(s.underscored, underscoredCond{name: name, values: values})
	return s
}

// From 指定带别名的表, 或者 TableOf(&A{}).Join(TableOf(&B{})).On(...) 这样的 JOIN 链.
// 最左边的表必须是 T 对应的表, JOIN 片段排在 Joins 指定的片段前面
func (s *Selector[T]) From(ref TableReference) *Selector[T] {
	s.from = ref
	return s
}

// Joins 可以是原生的 JOIN 片段, 也可以是声明过的关联名
func (s *Selector[T]) Joins(joins ...string) *Selector[T] {
	s.joins = append(s.joins, joins...)
	return s
}

func (s *Selector[T]) Group(group string) *Selector[T] {
	s.group = group
	return s
}

func (s *Selector[T]) Having(having string) *Selector[T] {
	s.having = having
	return s
}

func (s *Selector[T]) Order(order string) *Selector[T] {
	s.order = order
	return s
}

func (s *Selector[T]) Limit(limit int) *Selector[T] {
	s.limit = limit
	return s
}

func (s *Selector[T]) Offset(offset int) *Selector[T] {
	s.offset = offset
	return s
}

// Include 查询完之后预加载关联, 避免 N+1 查询
func (s *Selector[T]) Include(includes ...string) *Selector[T] {
	s.includes = append(s.includes, includes...)
	return s
}

func (s *Selector[T]) Readonly() *Selector[T] {
	s.readonly = true
	return s
}

func (s *Selector[T]) Build() (*Query, error) {
	sb, _, err := s.sqlBuilder()
	if err != nil {
		return nil, err
	}
	return sb.Build()
}

func (s *Selector[T]) sqlBuilder() (*SQLBuilder, *model.Model, error) {
	m, err := s.r.Get(new(T))
	if err != nil {
		return nil, nil, err
	}
	sb := NewSQLBuilder(s.dialect, m.TableName)

	alias, err := s.buildFrom(m, sb)
	if err != nil {
		return nil, nil, err
	}
	joins, err := s.buildJoins(m)
	if err != nil {
		return nil, nil, err
	}
	sb.Joins(joins...)

	table := alias
	if table == "" && len(sb.joins) > 0 {
		table = m.TableName
	}
	b := &builder{dialect: s.dialect, model: m, table: table, r: s.r}
	sel, err := b.buildSelect(s.columns)
	if err != nil {
		return nil, nil, err
	}
	sb.Select(sel)

	for _, args := range s.where {
		resolved, err := resolveWhere(s.core, m, table, args)
		if err != nil {
			return nil, nil, err
		}
		sb.Where(resolved...)
	}
	for _, u := range s.underscored {
		sb.Where(CreateConditionsFromUnderscoredString(s.dialect, u.name, u.values, m.ColumnAliases()))
	}
	sb.Group(s.group).Having(s.having).Order(s.order).Limit(s.limit).Offset(s.offset)
	return sb, m, nil
}

// buildFrom 把 From 指定的别名和 JOIN 链交给 sb, 返回主表的别名
func (s *Selector[T]) buildFrom(m *model.Model, sb *SQLBuilder) (string, error) {
	if s.from == nil {
		return "", nil
	}
	left, ok := leftmost(s.from)
	if !ok {
		return "", errs.NewErrUnsupportedTable(s.from)
	}
	lm, err := s.r.Get(left.entity)
	if err != nil {
		return "", err
	}
	if lm != m {
		return "", errs.NewErrFromTableMismatch(m.Name, lm.Name)
	}
	sb.As(left.alias)
	j, ok := s.from.(Join)
	if !ok {
		return left.alias, nil
	}
	table := left.alias
	if table == "" {
		table = m.TableName
	}
	b := &builder{dialect: s.dialect, model: m, table: table, r: s.r}
	frags, err := b.buildJoin(j)
	if err != nil {
		return "", err
	}
	for _, frag := range frags {
		sql, args, err := frag.Expand()
		if err != nil {
			return "", err
		}
		sb.Join(sql, args...)
	}
	return left.alias, nil
}

// buildJoins 不带空格的当成关联名
func (s *Selector[T]) buildJoins(m *model.Model) ([]string, error) {
	res := make([]string, 0, len(s.joins))
	for _, j := range s.joins {
		j = strings.TrimSpace(j)
		if j == "" {
			continue
		}
		if strings.ContainsAny(j, " \t\n") {
			res = append(res, j)
			continue
		}
		rel, err := relationOf(s.core, new(T), j)
		if err != nil {
			return nil, err
		}
		sql, err := rel.joinSQL(s.core)
		if err != nil {
			return nil, err
		}
		res = append(res, sql)
	}
	return res, nil
}

func (s *Selector[T]) Get(ctx context.Context) (*T, error) {
	limit := s.limit
	s.limit = 1
	res, err := s.getMulti(ctx)
	s.limit = limit
	if err != nil {
		return nil, err
	}
	if len(res) == 0 {
		// 返回要和sql包语义一致
		return nil, ErrNoRows
	}
	return res[0], nil
}

// GetMulti 没有数据的时候返回空切片
func (s *Selector[T]) GetMulti(ctx context.Context) ([]*T, error) {
	return s.getMulti(ctx)
}

// Last 把排序反过来取第一条, 没有指定排序的时候按照主键
func (s *Selector[T]) Last(ctx context.Context) (*T, error) {
	origin := s.order
	order := origin
	if strings.TrimSpace(order) == "" {
		m, err := s.r.Get(new(T))
		if err != nil {
			return nil, err
		}
		if len(m.PrimaryKeys) == 0 {
			return nil, errs.ErrNoPrimaryKey
		}
		parts := make([]string, 0, len(m.PrimaryKeys))
		for _, pk := range m.PrimaryKeys {
			parts = append(parts, s.dialect.QuoteName(pk)+" ASC")
		}
		order = strings.Join(parts, ", ")
	}
	s.order = ReverseOrder(order)
	defer func() {
		s.order = origin
	}()
	return s.Get(ctx)
}

func (s *Selector[T]) getMulti(ctx context.Context) ([]*T, error) {
	sb, m, err := s.sqlBuilder()
	if err != nil {
		return nil, err
	}
	rows, err := fetch(ctx, s.sess, s.core, &QueryContext{
		Type:    opTypeSelect,
		Builder: sb,
		Model:   m,
	})
	if err != nil {
		return nil, err
	}
	return materialize[T](ctx, s.sess, s.core, m, rows, s.includes, s.readonly)
}

// materialize 把结果集转成 []*T, 然后预加载关联
func materialize[T any](ctx context.Context, sess Session, c core, m *model.Model, rows *Rows,
	includes []string, readonly bool) ([]*T, error) {
	res := make([]*T, 0, rows.Len())
	records := make([]any, 0, rows.Len())
	for _, vals := range rows.Values {
		entity := new(T)
		if err := c.creator(m, entity).SetColumns(rows.Columns, vals); err != nil {
			return nil, err
		}
		if rs, ok := any(entity).(ReadonlySetter); ok && readonly {
			rs.SetReadonly(true)
		}
		res = append(res, entity)
		records = append(records, entity)
	}
	if err := preload(ctx, sess, records, includes); err != nil {
		return nil, err
	}
	return res, nil
}
