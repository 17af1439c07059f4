package orm

import (
	"context"
)

var _ Querier[struct{}] = &RawQuerier[struct{}]{}

type RawQuerier[T any] struct {
	core
	sess Session
	sql  string
	args []any

	includes []string
}

// RawQuery 参数里面的切片会展开成 ?,?,?
func RawQuery[T any](sess Session, query string, args ...any) *RawQuerier[T] {
	return &RawQuerier[T]{
		sql:  query,
		args: args,
		sess: sess,
		core: sess.getCore(),
	}
}

// Include 查询完之后预加载关联
func (r *RawQuerier[T]) Include(includes ...string) *RawQuerier[T] {
	r.includes = append(r.includes, includes...)
	return r
}

func (r *RawQuerier[T]) Build() (*Query, error) {
	cond, err := FromPositional(r.sql, r.args...)
	if err != nil {
		return nil, err
	}
	sql, args, err := cond.Expand()
	if err != nil {
		return nil, err
	}
	return &Query{
		SQL:  sql,
		Args: args,
	}, nil
}

func (r *RawQuerier[T]) Get(ctx context.Context) (*T, error) {
	res, err := r.GetMulti(ctx)
	if err != nil {
		return nil, err
	}
	if len(res) == 0 {
		return nil, ErrNoRows
	}
	return res[0], nil
}

func (r *RawQuerier[T]) GetMulti(ctx context.Context) ([]*T, error) {
	m, err := r.r.Get(new(T))
	if err != nil {
		return nil, err
	}
	rows, err := fetch(ctx, r.sess, r.core, &QueryContext{
		Type:    opTypeRaw,
		Builder: r,
		Model:   m,
	})
	if err != nil {
		return nil, err
	}
	return materialize[T](ctx, r.sess, r.core, m, rows, r.includes, false)
}

func (r *RawQuerier[T]) Exec(ctx context.Context) Result {
	m, err := r.r.Get(new(T))
	if err != nil {
		return Result{err: err}
	}
	return exec(ctx, r.sess, r.core, &QueryContext{
		Type:    opTypeRaw,
		Builder: r,
		Model:   m,
	})
}
