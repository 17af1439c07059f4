package orm

import (
	"context"
	"errors"
)

// FindBy 按照 name_and_age 这种写法查询第一条记录, 列名可以用 Go 字段名或者别名
//
//	FindBy[User](ctx, db, "Name_and_Age", "Tom", 18)
func FindBy[T any](ctx context.Context, sess Session, name string, values ...any) (*T, error) {
	return NewSelector[T](sess).WhereUnderscored(name, values...).Get(ctx)
}

func FindAllBy[T any](ctx context.Context, sess Session, name string, values ...any) ([]*T, error) {
	return NewSelector[T](sess).WhereUnderscored(name, values...).GetMulti(ctx)
}

// FindOrCreateBy 找不到的时候用同样的条件构造一条记录并插入, 第二个返回值表示是否新建
func FindOrCreateBy[T any](ctx context.Context, sess Session, name string, values ...any) (*T, bool, error) {
	res, err := FindBy[T](ctx, sess, name, values...)
	if err == nil {
		return res, false, nil
	}
	if !errors.Is(err, ErrNoRows) {
		return nil, false, err
	}

	c := sess.getCore()
	m, err := c.r.Get(new(T))
	if err != nil {
		return nil, false, err
	}
	h := CreateHashFromUnderscoredString(name, values, m.ColumnAliases())
	entity := new(T)
	if err = c.creator(m, entity).SetColumns(h.Columns(), h.Values()); err != nil {
		return nil, false, err
	}
	if err = NewInserter[T](sess).Values(entity).Exec(ctx).Err(); err != nil {
		return nil, false, err
	}
	return entity, true, nil
}
