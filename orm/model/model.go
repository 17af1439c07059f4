package model

import (
	"database/sql"
	"database/sql/driver"
	"reflect"
	"strings"
	"sync"
	"time"
	"unicode"

	"github.com/startdusk/relorm/orm/internal/errs"
)

const (
	tagName = "orm"

	tagColumn = "column"
	tagPK     = "pk"
	tagIgnore = "ignore"
)

// TableName 用户实现这个接口来返回自定义的表名
type TableName interface {
	TableName() string
}

type Model struct {
	// Name 是 Go 结构体的名字, 用于推断外键(Author => author_id)
	Name      string
	TableName string
	Type      reflect.Type

	// Fields 保持结构体里面字段的顺序
	Fields []*Field
	// FieldMap Go字段名 => 字段
	FieldMap map[string]*Field
	// ColumnMap 列名 => 字段
	ColumnMap map[string]*Field

	// PrimaryKeys 主键列名, 支持复合主键
	PrimaryKeys []string
	// Sequence 只有支持序列的数据库才会用到, 默认是 表名_seq
	Sequence string
	// Aliases 别名 => 列名
	Aliases map[string]string
}

type Field struct {
	// 列名
	ColName string
	// Go字段名
	GoName string
	// 字段类型
	Type reflect.Type
	// 字段相对于结构体起始地址的偏移量
	Offset uintptr
}

// ColumnFor 把 Go 字段名, 别名或者列名统一解析成列名
func (m *Model) ColumnFor(name string) (string, bool) {
	if fd, ok := m.ColumnMap[name]; ok {
		return fd.ColName, true
	}
	if fd, ok := m.FieldMap[name]; ok {
		return fd.ColName, true
	}
	if col, ok := m.Aliases[name]; ok {
		return col, true
	}
	return "", false
}

// FieldByColumn 先精确匹配列名, 找不到再忽略大小写匹配.
// Oracle 会把没有加引号的列名转成大写
func (m *Model) FieldByColumn(col string) (*Field, bool) {
	if fd, ok := m.ColumnMap[col]; ok {
		return fd, true
	}
	for _, fd := range m.Fields {
		if strings.EqualFold(fd.ColName, col) {
			return fd, true
		}
	}
	return nil, false
}

// ColumnAliases 返回 别名/Go字段名 => 列名 的映射, 解析下划线条件的时候使用
func (m *Model) ColumnAliases() map[string]string {
	res := make(map[string]string, len(m.Aliases)+len(m.Fields))
	for _, fd := range m.Fields {
		res[fd.GoName] = fd.ColName
	}
	for alias, col := range m.Aliases {
		res[alias] = col
	}
	return res
}

type Option func(m *Model) error

// Registry 代表元数据的注册中心
type Registry interface {
	Get(val any) (*Model, error)
	Register(val any, opts ...Option) (*Model, error)
}

type registry struct {
	// 为什么要用reflect.Type作为key
	// 因为有同名结构体但表名不一样的需求
	// 如: buyer下的User 和 seller下的User
	models map[reflect.Type]*Model

	// 使用严格的读写锁, 采用double check的写法就没有覆盖的问题
	lock sync.RWMutex
}

func NewRegistry() Registry {
	return &registry{
		// 一个项目如果超过64张表, 说明需要拆分了
		models: make(map[reflect.Type]*Model, 64),
	}
}

func (r *registry) Get(val any) (*Model, error) {
	typ := reflect.TypeOf(val)
	r.lock.RLock()
	m, ok := r.models[typ]
	r.lock.RUnlock()
	if ok {
		return m, nil
	}

	r.lock.Lock()
	defer r.lock.Unlock()
	// double check
	m, ok = r.models[typ]
	if ok {
		return m, nil
	}
	m, err := r.parseModel(val)
	if err != nil {
		return nil, err
	}
	r.models[typ] = m
	return m, nil
}

func (r *registry) Register(val any, opts ...Option) (*Model, error) {
	m, err := r.parseModel(val)
	if err != nil {
		return nil, err
	}
	for _, opt := range opts {
		if err := opt(m); err != nil {
			return nil, err
		}
	}
	r.lock.Lock()
	r.models[reflect.TypeOf(val)] = m
	r.lock.Unlock()
	return m, nil
}

// 只支持输入指针类型的结构体
func (r *registry) parseModel(entity any) (*Model, error) {
	typ := reflect.TypeOf(entity)
	if typ == nil || typ.Kind() != reflect.Ptr || typ.Elem().Kind() != reflect.Struct {
		return nil, errs.ErrPointerOnly
	}
	elem := typ.Elem()
	numField := elem.NumField()
	fields := make([]*Field, 0, numField)
	fieldMap := make(map[string]*Field, numField)
	columnMap := make(map[string]*Field, numField)
	var pks []string
	for i := 0; i < numField; i++ {
		fd := elem.Field(i)
		if !fd.IsExported() {
			continue
		}
		pair, err := r.parseTag(fd.Tag)
		if err != nil {
			return nil, err
		}
		if pair[tagIgnore] == "true" || isAssociation(fd.Type) {
			continue
		}
		colName := pair[tagColumn]
		if colName == "" {
			colName = underscoreName(fd.Name)
		}
		f := &Field{
			ColName: colName,
			GoName:  fd.Name,
			Type:    fd.Type,
			Offset:  fd.Offset,
		}
		fields = append(fields, f)
		fieldMap[fd.Name] = f
		columnMap[colName] = f
		if pair[tagPK] == "true" {
			pks = append(pks, colName)
		}
	}
	if len(pks) == 0 {
		if fd, ok := fieldMap["ID"]; ok {
			pks = []string{fd.ColName}
		}
	}

	var tableName string
	if tn, ok := entity.(TableName); ok {
		tableName = tn.TableName()
	}
	if tableName == "" {
		tableName = underscoreName(elem.Name())
	}

	return &Model{
		Name:        elem.Name(),
		TableName:   tableName,
		Type:        elem,
		Fields:      fields,
		FieldMap:    fieldMap,
		ColumnMap:   columnMap,
		PrimaryKeys: pks,
		Sequence:    tableName + "_seq",
		Aliases:     map[string]string{},
	}, nil
}

func (r *registry) parseTag(tag reflect.StructTag) (map[string]string, error) {
	ormTag, ok := tag.Lookup(tagName)
	if !ok {
		return map[string]string{}, nil
	}
	pairs := strings.Split(ormTag, ",")
	tags := make(map[string]string, len(pairs))
	for _, pair := range pairs {
		segs := strings.Split(pair, "=")
		if len(segs) != 2 {
			return nil, errs.NewErrIinvalidTagContent(pair)
		}
		tags[segs[0]] = segs[1]
	}
	return tags, nil
}

var (
	scannerType = reflect.TypeOf((*sql.Scanner)(nil)).Elem()
	valuerType  = reflect.TypeOf((*driver.Valuer)(nil)).Elem()
	timeType    = reflect.TypeOf(time.Time{})
)

// isAssociation 结构体指针(*Author) 和 结构体切片([]*Book) 是关联字段, 不是列
func isAssociation(typ reflect.Type) bool {
	switch typ.Kind() {
	case reflect.Ptr:
		elem := typ.Elem()
		if elem.Kind() != reflect.Struct || elem == timeType {
			return false
		}
		return !typ.Implements(scannerType) && !elem.Implements(valuerType)
	case reflect.Slice:
		elem := typ.Elem()
		if elem.Kind() == reflect.Ptr {
			elem = elem.Elem()
		}
		return elem.Kind() == reflect.Struct && elem != timeType
	}
	return false
}

// 驼峰名字符串转下划线命名
func underscoreName(name string) string {
	var buf []byte
	runes := []rune(name)
	for i, v := range runes {
		if unicode.IsUpper(v) {
			if i != 0 && (!unicode.IsUpper(runes[i-1]) || (i+1 < len(runes) && unicode.IsLower(runes[i+1]))) {
				buf = append(buf, '_')
			}
			buf = append(buf, byte(unicode.ToLower(v)))
		} else {
			buf = append(buf, byte(v))
		}
	}
	return string(buf)
}
