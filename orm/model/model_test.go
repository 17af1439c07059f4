package model

import (
	"database/sql"
	"reflect"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/startdusk/relorm/orm/internal/errs"
)

// newModel 按照字段构造期望的元数据, FieldMap 和 ColumnMap 由 fields 推出来
func newModel(entity any, name, table string, pks []string, fields ...*Field) *Model {
	fieldMap := make(map[string]*Field, len(fields))
	columnMap := make(map[string]*Field, len(fields))
	for _, fd := range fields {
		fieldMap[fd.GoName] = fd
		columnMap[fd.ColName] = fd
	}
	return &Model{
		Name:        name,
		TableName:   table,
		Type:        reflect.TypeOf(entity).Elem(),
		Fields:      fields,
		FieldMap:    fieldMap,
		ColumnMap:   columnMap,
		PrimaryKeys: pks,
		Sequence:    table + "_seq",
		Aliases:     map[string]string{},
	}
}

func testModelFields(firstName string) []*Field {
	return []*Field{
		{
			ColName: "id",
			GoName:  "ID",
			Type:    reflect.TypeOf(int64(0)),
		},
		{
			ColName: firstName,
			GoName:  "FirstName",
			Type:    reflect.TypeOf(""),
			Offset:  8,
		},
		{
			ColName: "age",
			GoName:  "Age",
			Type:    reflect.TypeOf(int8(0)),
			Offset:  24,
		},
		{
			ColName: "last_name",
			GoName:  "LastName",
			Type:    reflect.TypeOf(&sql.NullString{}),
			Offset:  32,
		},
	}
}

func Test_Register(t *testing.T) {
	t.Parallel()

	cases := []struct {
		name      string
		entity    any
		opts      []Option
		wantModel *Model
		wantErr   error
	}{
		{
			name:      "test pointer model",
			entity:    &TestModel{},
			wantModel: newModel(&TestModel{}, "TestModel", "test_model", []string{"id"}, testModelFields("first_name")...),
		},
		{
			name:   "test pointer model with opts",
			entity: &TestModel{},
			opts: []Option{
				WithTableName("TEST_MODEL"),
				WithColumnName("FirstName", "firstname"),
			},
			wantModel: newModel(&TestModel{}, "TestModel", "TEST_MODEL", []string{"id"}, testModelFields("firstname")...),
		},
		{
			name:    "unknown column option",
			entity:  &TestModel{},
			opts:    []Option{WithColumnName("Unknown", "x")},
			wantErr: errs.NewErrUnknownField("Unknown"),
		},
		{
			name:    "test struct model",
			entity:  TestModel{},
			wantErr: errs.ErrPointerOnly,
		},
		{
			name:    "primitive type",
			entity:  0,
			wantErr: errs.ErrPointerOnly,
		},
		{
			name:    "map",
			entity:  map[string]string{"1": "1"},
			wantErr: errs.ErrPointerOnly,
		},
		{
			name:    "slice",
			entity:  []int{1, 2, 3},
			wantErr: errs.ErrPointerOnly,
		},
		{
			name:    "nil",
			entity:  nil,
			wantErr: errs.ErrPointerOnly,
		},
	}

	r := NewRegistry()
	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			m, err := r.Register(c.entity, c.opts...)
			assert.Equal(t, c.wantErr, err)
			if err != nil {
				return
			}
			assert.Equal(t, c.wantModel, m)
		})
	}
}

func Test_RegistryGet(t *testing.T) {
	t.Parallel()

	type TagTable struct {
		FirstName string `orm:"column=first_name_t"`
	}
	type EmptyColumn struct {
		FirstName string `orm:"column="`
	}
	type InvalidTag struct {
		FirstName string `orm:"column"`
	}

	cases := []struct {
		name      string
		entity    any
		wantModel *Model
		wantErr   error
	}{
		{
			name:      "test pointer model",
			entity:    &TestModel{},
			wantModel: newModel(&TestModel{}, "TestModel", "test_model", []string{"id"}, testModelFields("first_name")...),
		},
		{
			name:   "tag",
			entity: &TagTable{},
			wantModel: newModel(&TagTable{}, "TagTable", "tag_table", nil, &Field{
				ColName: "first_name_t",
				GoName:  "FirstName",
				Type:    reflect.TypeOf(""),
			}),
		},
		{
			name:   "empty column",
			entity: &EmptyColumn{},
			wantModel: newModel(&EmptyColumn{}, "EmptyColumn", "empty_column", nil, &Field{
				ColName: "first_name",
				GoName:  "FirstName",
				Type:    reflect.TypeOf(""),
			}),
		},
		{
			name:   "empty table name",
			entity: &EmptyTableName{},
			wantModel: newModel(&EmptyTableName{}, "EmptyTableName", "empty_table_name", nil, &Field{
				ColName: "first_name",
				GoName:  "FirstName",
				Type:    reflect.TypeOf(""),
			}),
		},
		{
			name:   "custom table name",
			entity: &CustomTableName{},
			wantModel: newModel(&CustomTableName{}, "CustomTableName", "custom_table_name_t", nil, &Field{
				ColName: "first_name",
				GoName:  "FirstName",
				Type:    reflect.TypeOf(""),
			}),
		},
		{
			name:   "custom table name for ptr",
			entity: &CustomTableNamePtr{},
			wantModel: newModel(&CustomTableNamePtr{}, "CustomTableNamePtr", "custom_table_name_ptr_t", nil, &Field{
				ColName: "first_name",
				GoName:  "FirstName",
				Type:    reflect.TypeOf(""),
			}),
		},
		{
			name:    "invalid tag",
			entity:  &InvalidTag{},
			wantErr: errs.NewErrIinvalidTagContent("column"),
		},
	}

	r := NewRegistry().(*registry)
	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			m, err := r.Get(c.entity)
			assert.Equal(t, c.wantErr, err)
			if err != nil {
				return
			}
			assert.Equal(t, c.wantModel, m)

			cached, ok := r.models[reflect.TypeOf(c.entity)]
			assert.True(t, ok)
			assert.Same(t, m, cached)
		})
	}
}

type Author struct {
	AuthorID  int64 `orm:"pk=true"`
	Name      string
	Secret    string `orm:"ignore=true"`
	DeletedAt *time.Time
	Nickname  sql.NullString
	Books     []*Book
	Profile   *Profile
	internal  int
}

type Book struct {
	ID int64
}

type Profile struct {
	ID int64
}

func TestRegistry_Associations(t *testing.T) {
	m, err := NewRegistry().Get(&Author{})
	require.NoError(t, err)

	// 关联字段和忽略的字段都不是列
	cols := make([]string, 0, len(m.Fields))
	for _, fd := range m.Fields {
		cols = append(cols, fd.ColName)
	}
	assert.Equal(t, []string{"author_id", "name", "deleted_at", "nickname"}, cols)
	assert.Equal(t, []string{"author_id"}, m.PrimaryKeys)
	assert.Equal(t, "Author", m.Name)
	assert.Equal(t, "author_seq", m.Sequence)
}

func TestModel_ColumnFor(t *testing.T) {
	m, err := NewRegistry().Register(&TestModel{},
		WithAlias("surname", "LastName"),
		WithSequence("tm_seq"))
	require.NoError(t, err)
	assert.Equal(t, "tm_seq", m.Sequence)

	cases := []struct {
		name    string
		input   string
		wantCol string
		wantOk  bool
	}{
		{name: "column", input: "first_name", wantCol: "first_name", wantOk: true},
		{name: "go name", input: "FirstName", wantCol: "first_name", wantOk: true},
		{name: "alias", input: "surname", wantCol: "last_name", wantOk: true},
		{name: "unknown", input: "nickname"},
	}
	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			col, ok := m.ColumnFor(c.input)
			assert.Equal(t, c.wantOk, ok)
			assert.Equal(t, c.wantCol, col)
		})
	}

	assert.Equal(t, map[string]string{
		"ID":        "id",
		"FirstName": "first_name",
		"Age":       "age",
		"LastName":  "last_name",
		"surname":   "last_name",
	}, m.ColumnAliases())
}

func TestModel_FieldByColumn(t *testing.T) {
	m, err := NewRegistry().Get(&TestModel{})
	require.NoError(t, err)

	cases := []struct {
		name   string
		input  string
		wantGo string
		wantOk bool
	}{
		{name: "exact", input: "first_name", wantGo: "FirstName", wantOk: true},
		{name: "upper case", input: "FIRST_NAME", wantGo: "FirstName", wantOk: true},
		{name: "mixed case", input: "Last_Name", wantGo: "LastName", wantOk: true},
		{name: "go name is not a column", input: "FirstName"},
		{name: "unknown", input: "nickname"},
	}
	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			fd, ok := m.FieldByColumn(c.input)
			assert.Equal(t, c.wantOk, ok)
			if !c.wantOk {
				assert.Nil(t, fd)
				return
			}
			assert.Equal(t, c.wantGo, fd.GoName)
		})
	}
}

func TestOptions(t *testing.T) {
	r := NewRegistry()

	m, err := r.Register(&TestModel{}, WithPrimaryKey("ID", "FirstName"))
	require.NoError(t, err)
	assert.Equal(t, []string{"id", "first_name"}, m.PrimaryKeys)

	m, err = r.Register(&TestModel{}, WithColumnName("ID", "test_id"))
	require.NoError(t, err)
	assert.Equal(t, []string{"test_id"}, m.PrimaryKeys)
	_, ok := m.ColumnMap["id"]
	assert.False(t, ok)

	_, err = r.Register(&TestModel{}, WithPrimaryKey("Unknown"))
	assert.Equal(t, errs.NewErrUnknownField("Unknown"), err)

	_, err = r.Register(&TestModel{}, WithAlias("x", "Unknown"))
	assert.Equal(t, errs.NewErrUnknownField("Unknown"), err)
}

func Test_underscoreName(t *testing.T) {
	cases := map[string]string{
		"ID":         "id",
		"FirstName":  "first_name",
		"AuthorID":   "author_id",
		"HTTPServer": "http_server",
		"name":       "name",
	}
	for in, want := range cases {
		assert.Equal(t, want, underscoreName(in), in)
	}
}

type EmptyTableName struct {
	FirstName string
}

func (e EmptyTableName) TableName() string {
	return ""
}

type CustomTableName struct {
	FirstName string
}

func (c CustomTableName) TableName() string {
	return "custom_table_name_t"
}

type CustomTableNamePtr struct {
	FirstName string
}

func (c *CustomTableNamePtr) TableName() string {
	return "custom_table_name_ptr_t"
}

type TestModel struct {
	ID        int64
	FirstName string
	Age       int8
	LastName  *sql.NullString
}
