package orm

import (
	"context"
	"reflect"

	"github.com/startdusk/relorm/orm/internal/errs"
	"github.com/startdusk/relorm/orm/model"
)

var _ Execer = &Inserter[struct{}]{}

type Inserter[T any] struct {
	core
	sess Session

	// INSERT 语句要插入的记录, 每条记录一条语句
	values []*T

	// INSERT 语句要插入的指定的列, Go 字段名
	columns []string

	upsert *Upsert
}

// UpsertBuilder 发生主键或者唯一索引冲突的时候改成更新
type UpsertBuilder[T any] struct {
	i               *Inserter[T]
	conflictColumns []string
}

type Upsert struct {
	assigns         []Assignable
	conflictColumns []string
}

// Upsert 之后必须调用 Update 才会生效
func (i *Inserter[T]) Upsert() *UpsertBuilder[T] {
	return &UpsertBuilder[T]{
		i: i,
	}
}

// ConflictColumns 判断冲突的列, MySQL 会忽略它
func (o *UpsertBuilder[T]) ConflictColumns(cols ...string) *UpsertBuilder[T] {
	o.conflictColumns = cols
	return o
}

// Update Assign(col, val) 用给定的值更新, C(col) 用插入的值更新
func (o *UpsertBuilder[T]) Update(assigns ...Assignable) *Inserter[T] {
	o.i.upsert = &Upsert{
		assigns:         assigns,
		conflictColumns: o.conflictColumns,
	}
	return o.i
}

func NewInserter[T any](sess Session) *Inserter[T] {
	return &Inserter[T]{
		core: sess.getCore(),
		sess: sess,
	}
}

// Columns 指定插入的列
func (i *Inserter[T]) Columns(cols ...string) *Inserter[T] {
	i.columns = cols
	return i
}

// Values 指定插入的数据
func (i *Inserter[T]) Values(vals ...*T) *Inserter[T] {
	i.values = vals
	return i
}

// Build 构造第一条记录的 INSERT 语句
func (i *Inserter[T]) Build() (*Query, error) {
	if len(i.values) == 0 {
		return nil, errs.ErrInsertZeroRows
	}
	m, err := i.r.Get(new(T))
	if err != nil {
		return nil, err
	}
	clause, args, err := i.upsertClause(m)
	if err != nil {
		return nil, err
	}
	sb, err := i.sqlBuilder(m, i.values[0])
	if err != nil {
		return nil, err
	}
	return sb.OnConflict(clause, args...).Build()
}

// upsertClause 没有调用 Upsert 的时候返回空字符串
func (i *Inserter[T]) upsertClause(m *model.Model) (string, []any, error) {
	if i.upsert == nil {
		return "", nil, nil
	}
	conflict := make([]string, 0, len(i.upsert.conflictColumns))
	for _, name := range i.upsert.conflictColumns {
		col, ok := m.ColumnFor(name)
		if !ok {
			return "", nil, errs.NewErrUnknownField(name)
		}
		conflict = append(conflict, col)
	}
	assigns := make([]UpsertAssignment, 0, len(i.upsert.assigns))
	for _, assign := range i.upsert.assigns {
		var (
			name string
			ua   UpsertAssignment
		)
		switch a := assign.(type) {
		case Assignment:
			name, ua.Value = a.col, a.val
		case Column:
			name, ua.FromInsert = a.name, true
		default:
			return "", nil, errs.NewErrUnsupportedAssignable(assign)
		}
		col, ok := m.ColumnFor(name)
		if !ok {
			return "", nil, errs.NewErrUnknownField(name)
		}
		ua.Column = col
		assigns = append(assigns, ua)
	}
	return i.dialect.UpsertClause(conflict, assigns)
}

// sqlBuilder 没有指定列的时候插入所有的列, 但是跳过值为零的自增主键
func (i *Inserter[T]) sqlBuilder(m *model.Model, entity *T) (*SQLBuilder, error) {
	val := i.creator(m, entity)
	fields := m.Fields
	if len(i.columns) > 0 {
		fields = make([]*model.Field, 0, len(i.columns))
		for _, fd := range i.columns {
			fdMeta, ok := m.FieldMap[fd]
			if !ok {
				return nil, errs.NewErrUnknownField(fd)
			}
			fields = append(fields, fdMeta)
		}
	}
	// 一定要显式指定列的顺序, 不然我们不知道数据库中默认的顺序
	h := make(Hash, 0, len(fields))
	for _, fd := range fields {
		arg, err := val.Field(fd.GoName)
		if err != nil {
			return nil, err
		}
		if len(i.columns) == 0 && isAutoPK(m, fd, arg) {
			continue
		}
		h = append(h, Pair{Column: fd.ColName, Value: arg})
	}
	return NewSQLBuilder(i.dialect, m.TableName).Insert(h), nil
}

// Exec 逐条插入. 支持序列的数据库先取序列的下一个值作为主键,
// 其余的数据库插入之后用 LastInsertId 回填主键
func (i *Inserter[T]) Exec(ctx context.Context) Result {
	if len(i.values) == 0 {
		return Result{err: errs.ErrInsertZeroRows}
	}
	m, err := i.r.Get(new(T))
	if err != nil {
		return Result{err: err}
	}
	clause, args, err := i.upsertClause(m)
	if err != nil {
		return Result{err: err}
	}
	var res Result
	for _, entity := range i.values {
		pk, zero, err := i.autoPK(m, entity)
		if err != nil {
			return Result{err: err}
		}
		if zero && i.dialect.SupportsSequences() {
			if err = i.nextSequenceValue(ctx, m, entity, pk); err != nil {
				return Result{err: err}
			}
		}
		sb, err := i.sqlBuilder(m, entity)
		if err != nil {
			return Result{err: err}
		}
		res = exec(ctx, i.sess, i.core, &QueryContext{
			Type:    opTypeInsert,
			Builder: sb.OnConflict(clause, args...),
			Model:   m,
		})
		if res.err != nil {
			return res
		}
		if zero && !i.dialect.SupportsSequences() && res.res != nil {
			if id, err := res.res.LastInsertId(); err == nil && id > 0 {
				if err = i.creator(m, entity).SetColumns([]string{pk.ColName}, []any{id}); err != nil {
					return Result{err: err, res: res.res}
				}
			}
		}
	}
	return res
}

// autoPK 单列整数主键并且值为零, 就交给数据库生成
func (i *Inserter[T]) autoPK(m *model.Model, entity *T) (*model.Field, bool, error) {
	if len(m.PrimaryKeys) != 1 || len(i.columns) > 0 {
		return nil, false, nil
	}
	fd, ok := m.ColumnMap[m.PrimaryKeys[0]]
	if !ok {
		return nil, false, nil
	}
	arg, err := i.creator(m, entity).Field(fd.GoName)
	if err != nil {
		return nil, false, err
	}
	return fd, isAutoPK(m, fd, arg), nil
}

func (i *Inserter[T]) nextSequenceValue(ctx context.Context, m *model.Model, entity *T, pk *model.Field) error {
	rows, err := fetch(ctx, i.sess, i.core, &QueryContext{
		Type:    opTypeRaw,
		Builder: &Query{SQL: i.dialect.SequenceValueSQL(m.Sequence)},
		Model:   m,
	})
	if err != nil {
		return err
	}
	if rows.Len() == 0 || len(rows.Values[0]) == 0 {
		return ErrNoRows
	}
	return i.creator(m, entity).SetColumns([]string{pk.ColName}, []any{rows.Values[0][0]})
}

func isAutoPK(m *model.Model, fd *model.Field, arg any) bool {
	if len(m.PrimaryKeys) != 1 || m.PrimaryKeys[0] != fd.ColName {
		return false
	}
	switch fd.Type.Kind() {
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64,
		reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		return reflect.ValueOf(arg).IsZero()
	}
	return false
}
