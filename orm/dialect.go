package orm

import (
	"strconv"
	"strings"

	"github.com/startdusk/relorm/orm/internal/errs"
)

var (
	DialectMySQL  Dialect = mysqlDialect{standardSQL{quote: '`'}}
	DialectSQLite Dialect = sqliteDialect{standardSQL{quote: '`'}}
	DialectOracle Dialect = oracleDialect{standardSQL{quote: '"'}}
)

// Dialect 屏蔽不同数据库在 SQL 上的差异
type Dialect interface {
	Name() string

	// QuoteName 给标识符加引号, 已经加过引号的不会重复加
	// MySQL 反引号 `
	// Oracle 是双引号
	QuoteName(name string) string

	// LimitClause 在 sql 的基础上拼接分页, offset 和 limit 为 0 代表没有设置
	LimitClause(sql string, offset, limit int) string

	// AcceptsLimitAndOrderForUpdateAndDelete UPDATE 和 DELETE 能不能带 ORDER BY 和 LIMIT
	AcceptsLimitAndOrderForUpdateAndDelete() bool

	SupportsSequences() bool
	// NextSequenceValue 返回序列下一个值的表达式, 可以直接嵌到 VALUES 里面
	NextSequenceValue(sequence string) string
	// SequenceValueSQL 返回单独查询序列下一个值的语句
	SequenceValueSQL(sequence string) string

	// NativeTypes 抽象类型 => 数据库原生类型
	NativeTypes() map[string]string

	// Escape 把字符串转成带引号的字面量, 只用于调试输出
	Escape(s string) string

	// UpsertClause 返回跟在 INSERT 后面的冲突处理子句和它的参数, 不支持的方言返回错误
	UpsertClause(conflictColumns []string, assigns []UpsertAssignment) (string, []any, error)
}

// UpsertAssignment 发生冲突之后要更新的一列, 列名已经解析过.
// FromInsert 为 true 的时候用 INSERT 里面的值, 否则用 Value
type UpsertAssignment struct {
	Column     string
	Value      any
	FromInsert bool
}

// DialectByName 根据驱动名找方言
func DialectByName(name string) (Dialect, error) {
	switch strings.ToLower(name) {
	case "mysql":
		return DialectMySQL, nil
	case "sqlite", "sqlite3":
		return DialectSQLite, nil
	case "oracle", "oci", "oci8", "godror":
		return DialectOracle, nil
	}
	return nil, errs.NewErrUnknownDialect(name)
}

type standardSQL struct {
	quote byte
}

func (d standardSQL) QuoteName(name string) string {
	if name == "" || name == "*" {
		return name
	}
	if name[0] == d.quote || name[len(name)-1] == d.quote {
		return name
	}
	segs := strings.Split(name, ".")
	for i, seg := range segs {
		if seg == "*" || seg == "" {
			continue
		}
		segs[i] = string(d.quote) + seg + string(d.quote)
	}
	return strings.Join(segs, ".")
}

func (d standardSQL) LimitClause(sql string, offset, limit int) string {
	if offset > 0 {
		return sql + " LIMIT " + strconv.Itoa(offset) + "," + strconv.Itoa(limit)
	}
	return sql + " LIMIT " + strconv.Itoa(limit)
}

func (d standardSQL) AcceptsLimitAndOrderForUpdateAndDelete() bool {
	return false
}

func (d standardSQL) SupportsSequences() bool {
	return false
}

func (d standardSQL) NextSequenceValue(sequence string) string {
	return ""
}

func (d standardSQL) SequenceValueSQL(sequence string) string {
	return ""
}

func (d standardSQL) Escape(s string) string {
	return "'" + strings.ReplaceAll(s, "'", "''") + "'"
}

type mysqlDialect struct {
	standardSQL
}

func (d mysqlDialect) Name() string {
	return "mysql"
}

func (d mysqlDialect) LimitClause(sql string, offset, limit int) string {
	if limit <= 0 && offset > 0 {
		// MySQL 没有只带 OFFSET 的写法, 官方文档推荐用一个很大的数
		return sql + " LIMIT " + strconv.Itoa(offset) + ",18446744073709551615"
	}
	return d.standardSQL.LimitClause(sql, offset, limit)
}

func (d mysqlDialect) AcceptsLimitAndOrderForUpdateAndDelete() bool {
	return true
}

func (d mysqlDialect) Escape(s string) string {
	s = strings.ReplaceAll(s, `\`, `\\`)
	return "'" + strings.ReplaceAll(s, "'", "''") + "'"
}

// UpsertClause MySQL 根据主键和唯一索引判断冲突, 忽略 conflictColumns
func (d mysqlDialect) UpsertClause(conflictColumns []string, assigns []UpsertAssignment) (string, []any, error) {
	if len(assigns) == 0 {
		return "", nil, errs.ErrUpsertRequireAssignments
	}
	var sb strings.Builder
	var args []any
	sb.WriteString(" ON DUPLICATE KEY UPDATE ")
	for i, a := range assigns {
		if i > 0 {
			sb.WriteByte(',')
		}
		col := d.QuoteName(a.Column)
		sb.WriteString(col)
		if a.FromInsert {
			sb.WriteString("=VALUES(" + col + ")")
			continue
		}
		sb.WriteString("=?")
		args = append(args, a.Value)
	}
	return sb.String(), args, nil
}

func (d mysqlDialect) NativeTypes() map[string]string {
	return map[string]string{
		"primary_key": "int(11) UNSIGNED DEFAULT NULL auto_increment PRIMARY KEY",
		"string":      "varchar(255)",
		"text":        "text",
		"integer":     "int(11)",
		"float":       "float",
		"datetime":    "datetime",
		"timestamp":   "datetime",
		"time":        "time",
		"date":        "date",
		"binary":      "blob",
		"boolean":     "tinyint(1)",
	}
}

type sqliteDialect struct {
	standardSQL
}

func (d sqliteDialect) Name() string {
	return "sqlite3"
}

func (d sqliteDialect) LimitClause(sql string, offset, limit int) string {
	if limit <= 0 {
		limit = -1
	}
	sql += " LIMIT " + strconv.Itoa(limit)
	if offset > 0 {
		sql += " OFFSET " + strconv.Itoa(offset)
	}
	return sql
}

func (d sqliteDialect) UpsertClause(conflictColumns []string, assigns []UpsertAssignment) (string, []any, error) {
	if len(conflictColumns) == 0 {
		return "", nil, errs.ErrUpsertRequireConflictColumns
	}
	if len(assigns) == 0 {
		return "", nil, errs.ErrUpsertRequireAssignments
	}
	var sb strings.Builder
	var args []any
	sb.WriteString(" ON CONFLICT(")
	for i, col := range conflictColumns {
		if i > 0 {
			sb.WriteByte(',')
		}
		sb.WriteString(d.QuoteName(col))
	}
	sb.WriteString(") DO UPDATE SET ")
	for i, a := range assigns {
		if i > 0 {
			sb.WriteByte(',')
		}
		col := d.QuoteName(a.Column)
		sb.WriteString(col)
		if a.FromInsert {
			sb.WriteString("=excluded." + col)
			continue
		}
		sb.WriteString("=?")
		args = append(args, a.Value)
	}
	return sb.String(), args, nil
}

func (d sqliteDialect) NativeTypes() map[string]string {
	return map[string]string{
		"primary_key": "integer not null primary key",
		"string":      "varchar(255)",
		"text":        "text",
		"integer":     "integer",
		"float":       "float",
		"decimal":     "decimal",
		"datetime":    "datetime",
		"timestamp":   "datetime",
		"time":        "time",
		"date":        "date",
		"binary":      "blob",
		"boolean":     "boolean",
	}
}

type oracleDialect struct {
	standardSQL
}

func (d oracleDialect) Name() string {
	return "oracle"
}

// rowNumColumn 是 Oracle 分页额外带出来的一列, 读结果集的时候会去掉
const rowNumColumn = "ar_rnum__"

// LimitClause Oracle 11g 没有 LIMIT, 只能用 ROWNUM 包两层
func (d oracleDialect) LimitClause(sql string, offset, limit int) string {
	if limit <= 0 {
		return "SELECT * FROM (SELECT a.*, rownum " + rowNumColumn + " FROM (" + sql + ") a) WHERE " +
			rowNumColumn + " > " + strconv.Itoa(offset)
	}
	stop := offset + limit
	return "SELECT * FROM (SELECT a.*, rownum " + rowNumColumn + " FROM (" + sql + ") a WHERE rownum <= " +
		strconv.Itoa(stop) + ") WHERE " + rowNumColumn + " > " + strconv.Itoa(offset)
}

// UpsertClause Oracle 要用 MERGE, 和 INSERT 的写法完全不同
func (d oracleDialect) UpsertClause(conflictColumns []string, assigns []UpsertAssignment) (string, []any, error) {
	return "", nil, errs.NewErrUnsupportedUpsert(d.Name())
}

func (d oracleDialect) SupportsSequences() bool {
	return true
}

func (d oracleDialect) NextSequenceValue(sequence string) string {
	return sequence + ".nextval"
}

func (d oracleDialect) SequenceValueSQL(sequence string) string {
	return "SELECT " + d.NextSequenceValue(sequence) + " FROM dual"
}

func (d oracleDialect) NativeTypes() map[string]string {
	return map[string]string{
		"primary_key": "NUMBER(38) NOT NULL PRIMARY KEY",
		"string":      "VARCHAR2(255)",
		"text":        "CLOB",
		"integer":     "NUMBER(38)",
		"float":       "NUMBER",
		"datetime":    "DATE",
		"timestamp":   "DATE",
		"time":        "DATE",
		"date":        "DATE",
		"binary":      "BLOB",
		"boolean":     "NUMBER(1)",
	}
}
