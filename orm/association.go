package orm

import (
	"context"
	"reflect"
)

// BuildAssociation 构造一条 owner 上名为 attr 的关联的新记录, 不会写数据库.
// HasMany 和 HasOne 会把外键设置成 owner 的主键
func BuildAssociation[T any](sess Session, owner any, attr string, attrs Hash) (*T, error) {
	c := sess.getCore()
	rel, err := relationOf(c, owner, attr)
	if err != nil {
		return nil, err
	}
	if rel.target != reflect.TypeOf((*T)(nil)).Elem() {
		return nil, rel.errorf("关联的目标是 %s, 不是 %T", rel.target.Name(), new(T))
	}
	if rel.through != "" || rel.kind == KindHasAndBelongsToMany {
		return nil, rel.errorf("%s 关联不支持直接构造", rel.kind)
	}
	plan, err := rel.prepare(c)
	if err != nil {
		return nil, err
	}

	entity := new(T)
	h := resolveHash(rel.targetModel, attrs)
	if rel.kind == KindHasMany || rel.kind == KindHasOne {
		vals, err := rel.ownerValues(c, owner, plan.ownerCols)
		if err != nil {
			return nil, err
		}
		for i, col := range plan.condCols {
			h = h.Set(col, vals[i])
		}
	}
	if err = c.creator(rel.targetModel, entity).SetColumns(h.Columns(), h.Values()); err != nil {
		return nil, err
	}
	return entity, nil
}

// CreateAssociation 和 BuildAssociation 一样, 并且插入数据库
func CreateAssociation[T any](ctx context.Context, sess Session, owner any, attr string, attrs Hash) (*T, error) {
	entity, err := BuildAssociation[T](sess, owner, attr, attrs)
	if err != nil {
		return nil, err
	}
	if err = NewInserter[T](sess).Values(entity).Exec(ctx).Err(); err != nil {
		return nil, err
	}
	return entity, nil
}
