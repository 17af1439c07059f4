package model

import (
	"github.com/startdusk/relorm/orm/internal/errs"
)

// WithTableName 序列名还是默认值的时候跟着表名一起改
func WithTableName(tableName string) Option {
	return func(m *Model) error {
		if m.Sequence == m.TableName+"_seq" {
			m.Sequence = tableName + "_seq"
		}
		m.TableName = tableName
		return nil
	}
}

func WithColumnName(field string, colName string) Option {
	return func(m *Model) error {
		fd, ok := m.FieldMap[field]
		if !ok {
			return errs.NewErrUnknownField(field)
		}
		delete(m.ColumnMap, fd.ColName)
		for i, pk := range m.PrimaryKeys {
			if pk == fd.ColName {
				m.PrimaryKeys[i] = colName
			}
		}
		fd.ColName = colName
		m.ColumnMap[colName] = fd
		return nil
	}
}

// WithPrimaryKey 指定主键的 Go 字段名, 多个就是复合主键
func WithPrimaryKey(fields ...string) Option {
	return func(m *Model) error {
		pks := make([]string, 0, len(fields))
		for _, f := range fields {
			col, ok := m.ColumnFor(f)
			if !ok {
				return errs.NewErrUnknownField(f)
			}
			pks = append(pks, col)
		}
		m.PrimaryKeys = pks
		return nil
	}
}

func WithSequence(name string) Option {
	return func(m *Model) error {
		m.Sequence = name
		return nil
	}
}

// WithAlias 给一个列起别名, 别名可以出现在 FindBy 的下划线条件里面
func WithAlias(alias string, field string) Option {
	return func(m *Model) error {
		col, ok := m.ColumnFor(field)
		if !ok {
			return errs.NewErrUnknownField(field)
		}
		m.Aliases[alias] = col
		return nil
	}
}
