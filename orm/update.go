package orm

import (
	"context"

	"github.com/startdusk/relorm/orm/internal/errs"
	"github.com/startdusk/relorm/orm/model"
)

var _ Execer = &Updater[struct{}]{}

type Updater[T any] struct {
	core
	sess Session

	val     *T
	columns []string
	set     Hash
	raw     string
	rawArgs []any

	where [][]any
	order string
	limit int
}

func NewUpdater[T any](sess Session) *Updater[T] {
	return &Updater[T]{
		core: sess.getCore(),
		sess: sess,
	}
}

// Update 用记录上的值更新, 没有 Where 的时候按照主键更新这一条记录
func (u *Updater[T]) Update(val *T) *Updater[T] {
	u.val = val
	return u
}

// Columns 只更新这些字段, 只对 Update 传入的记录生效
func (u *Updater[T]) Columns(cols ...string) *Updater[T] {
	u.columns = cols
	return u
}

// Set data 是 Hash, map[string]any 或者 Assign(col, val), 键可以是 Go 字段名, 别名或者列名
func (u *Updater[T]) Set(data any) *Updater[T] {
	switch d := data.(type) {
	case Assignment:
		u.set = u.set.Set(d.col, d.val)
	case Hash:
		for _, p := range d {
			u.set = u.set.Set(p.Column, p.Value)
		}
	case map[string]any:
		for _, p := range HashOf(d) {
			u.set = u.set.Set(p.Column, p.Value)
		}
	}
	return u
}

// SetRaw 原生的 SET 片段, 比如 SetRaw("age = age + ?", 1)
func (u *Updater[T]) SetRaw(set string, args ...any) *Updater[T] {
	u.raw = set
	u.rawArgs = args
	return u
}

func (u *Updater[T]) Where(args ...any) *Updater[T] {
	if len(args) > 0 {
		u.where = append(u.where, args)
	}
	return u
}

// Order 和 Limit 只有 MySQL 支持, 其余的数据库会忽略
func (u *Updater[T]) Order(order string) *Updater[T] {
	u.order = order
	return u
}

func (u *Updater[T]) Limit(limit int) *Updater[T] {
	u.limit = limit
	return u
}

func (u *Updater[T]) Build() (*Query, error) {
	sb, _, err := u.sqlBuilder()
	if err != nil {
		return nil, err
	}
	return sb.Build()
}

func (u *Updater[T]) sqlBuilder() (*SQLBuilder, *model.Model, error) {
	m, err := u.r.Get(new(T))
	if err != nil {
		return nil, nil, err
	}
	sb := NewSQLBuilder(u.dialect, m.TableName)
	if u.raw != "" {
		sb.Update(u.raw, u.rawArgs...)
	} else {
		h, err := u.data(m)
		if err != nil {
			return nil, nil, err
		}
		sb.Update(h)
	}

	if len(u.where) == 0 && u.val != nil {
		h, err := pkHash(u.core, m, u.val)
		if err != nil {
			return nil, nil, err
		}
		sb.Where(h)
	}
	for _, args := range u.where {
		resolved, err := resolveWhere(u.core, m, "", args)
		if err != nil {
			return nil, nil, err
		}
		sb.Where(resolved...)
	}
	sb.Order(u.order).Limit(u.limit)
	return sb, m, nil
}

// data 记录上的值在前, Set 的值覆盖同名的列
func (u *Updater[T]) data(m *model.Model) (Hash, error) {
	var h Hash
	if u.val != nil {
		val := u.creator(m, u.val)
		fields := m.Fields
		if len(u.columns) > 0 {
			fields = make([]*model.Field, 0, len(u.columns))
			for _, col := range u.columns {
				fd, ok := m.FieldMap[col]
				if !ok {
					return nil, errs.NewErrUnknownField(col)
				}
				fields = append(fields, fd)
			}
		}
		for _, fd := range fields {
			if len(u.columns) == 0 && isPrimaryKey(m, fd.ColName) {
				continue
			}
			arg, err := val.Field(fd.GoName)
			if err != nil {
				return nil, err
			}
			h = append(h, Pair{Column: fd.ColName, Value: arg})
		}
	}
	for _, p := range resolveHash(m, u.set) {
		h = h.Set(p.Column, p.Value)
	}
	return h, nil
}

func (u *Updater[T]) Exec(ctx context.Context) Result {
	sb, m, err := u.sqlBuilder()
	if err != nil {
		return Result{err: err}
	}
	return exec(ctx, u.sess, u.core, &QueryContext{
		Type:    opTypeUpdate,
		Builder: sb,
		Model:   m,
	})
}

func isPrimaryKey(m *model.Model, col string) bool {
	for _, pk := range m.PrimaryKeys {
		if pk == col {
			return true
		}
	}
	return false
}

// pkHash 记录的主键 => 值
func pkHash(c core, m *model.Model, entity any) (Hash, error) {
	if len(m.PrimaryKeys) == 0 {
		return nil, errs.ErrNoPrimaryKey
	}
	val := c.creator(m, entity)
	h := make(Hash, 0, len(m.PrimaryKeys))
	for _, pk := range m.PrimaryKeys {
		fd := m.ColumnMap[pk]
		arg, err := val.Field(fd.GoName)
		if err != nil {
			return nil, err
		}
		h = append(h, Pair{Column: pk, Value: arg})
	}
	return h, nil
}
