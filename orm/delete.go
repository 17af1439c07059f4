package orm

import (
	"context"

	"github.com/startdusk/relorm/orm/model"
)

var _ Execer = &Deleter[struct{}]{}

type Deleter[T any] struct {
	core
	sess Session

	val   *T
	where [][]any
	order string
	limit int
}

func NewDeleter[T any](sess Session) *Deleter[T] {
	return &Deleter[T]{
		core: sess.getCore(),
		sess: sess,
	}
}

// Delete 没有 Where 的时候按照记录的主键删除
func (d *Deleter[T]) Delete(val *T) *Deleter[T] {
	d.val = val
	return d
}

func (d *Deleter[T]) Where(args ...any) *Deleter[T] {
	if len(args) > 0 {
		d.where = append(d.where, args)
	}
	return d
}

// Order 和 Limit 只有 MySQL 支持, 其余的数据库会忽略
func (d *Deleter[T]) Order(order string) *Deleter[T] {
	d.order = order
	return d
}

func (d *Deleter[T]) Limit(limit int) *Deleter[T] {
	d.limit = limit
	return d
}

func (d *Deleter[T]) Build() (*Query, error) {
	sb, _, err := d.sqlBuilder()
	if err != nil {
		return nil, err
	}
	return sb.Build()
}

func (d *Deleter[T]) sqlBuilder() (*SQLBuilder, *model.Model, error) {
	m, err := d.r.Get(new(T))
	if err != nil {
		return nil, nil, err
	}
	sb := NewSQLBuilder(d.dialect, m.TableName).Delete()
	if len(d.where) == 0 && d.val != nil {
		h, err := pkHash(d.core, m, d.val)
		if err != nil {
			return nil, nil, err
		}
		sb.Where(h)
	}
	for _, args := range d.where {
		resolved, err := resolveWhere(d.core, m, "", args)
		if err != nil {
			return nil, nil, err
		}
		sb.Where(resolved...)
	}
	sb.Order(d.order).Limit(d.limit)
	return sb, m, nil
}

func (d *Deleter[T]) Exec(ctx context.Context) Result {
	sb, m, err := d.sqlBuilder()
	if err != nil {
		return Result{err: err}
	}
	return exec(ctx, d.sess, d.core, &QueryContext{
		Type:    opTypeDelete,
		Builder: sb,
		Model:   m,
	})
}
