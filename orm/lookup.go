package orm

import (
	"github.com/startdusk/relorm/orm/model"
)

type LookupKind int

const (
	LookupNotFound LookupKind = iota
	LookupAttribute
	LookupRelationship
)

// LookupResult 按名字查找的结果, Kind 决定哪个字段有效
type LookupResult struct {
	Kind LookupKind
	// Column 和 Value 在 Kind 为 LookupAttribute 的时候有效
	Column string
	Value  any
	// Relation 在 Kind 为 LookupRelationship 的时候有效
	Relation *Relation
}

// Lookup 按照 列名/Go字段名, 别名, 关联名 的顺序查找 name
func Lookup(sess Session, entity any, name string) (LookupResult, error) {
	c := sess.getCore()
	m, err := c.modelOf(entity)
	if err != nil {
		return LookupResult{}, err
	}
	if fd, ok := directField(m, name); ok {
		return attribute(c, m, entity, fd)
	}
	if col, ok := m.Aliases[name]; ok {
		if fd, ok := m.ColumnMap[col]; ok {
			return attribute(c, m, entity, fd)
		}
	}
	rels, err := c.rels.get(c, m)
	if err != nil {
		return LookupResult{}, err
	}
	if rel, ok := rels[name]; ok {
		return LookupResult{Kind: LookupRelationship, Relation: rel}, nil
	}
	return LookupResult{Kind: LookupNotFound}, nil
}

func directField(m *model.Model, name string) (*model.Field, bool) {
	if fd, ok := m.ColumnMap[name]; ok {
		return fd, true
	}
	fd, ok := m.FieldMap[name]
	return fd, ok
}

func attribute(c core, m *model.Model, entity any, fd *model.Field) (LookupResult, error) {
	val, err := c.creator(m, entity).Field(fd.GoName)
	if err != nil {
		return LookupResult{}, err
	}
	return LookupResult{
		Kind:   LookupAttribute,
		Column: fd.ColName,
		Value:  val,
	}, nil
}
