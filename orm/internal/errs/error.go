package errs

import (
	"errors"
	"fmt"
)

var (
	ErrPointerOnly      = errors.New("orm: 只支持指向结构体的一级指针")
	ErrNoRows           = errors.New("orm: 没有数据")
	ErrInsertZeroRows   = errors.New("orm: 插入0行数据")
	ErrInsertRequireMap = errors.New("orm: INSERT 需要一个 Hash")
	ErrUpdateRequireSet = errors.New("orm: UPDATE 需要一个 Hash 或者原生 SET 字符串")
	ErrNilDialect       = errors.New("orm: 必须指定一个有效的 Dialect")
	ErrEmptyTable       = errors.New("orm: 表名不能为空")
	ErrNoPrimaryKey     = errors.New("orm: 模型没有主键")

	// ErrUpsertRequireConflictColumns SQLite 的 ON CONFLICT 必须指定冲突列
	ErrUpsertRequireConflictColumns = errors.New("orm: upsert 需要指定冲突列")
	ErrUpsertRequireAssignments     = errors.New("orm: upsert 至少要更新一列")
)

// ExpressionError 代表模板和参数不匹配, 属于编程错误, 不应该重试
type ExpressionError struct {
	msg string
}

func (e *ExpressionError) Error() string {
	return "orm: 表达式错误, " + e.msg
}

func NewErrNoBoundParameter(idx int) error {
	return &ExpressionError{msg: fmt.Sprintf("下标 %d 没有绑定参数", idx)}
}

func NewErrInvalidParameterIndex(idx int) error {
	return &ExpressionError{msg: fmt.Sprintf("非法的参数下标 %d", idx)}
}

func NewErrPlaceholderMismatch(placeholders, args int) error {
	return &ExpressionError{msg: fmt.Sprintf("占位符数量 %d 与参数数量 %d 不一致", placeholders, args)}
}

func NewErrInvalidCondition(cond any) error {
	return &ExpressionError{msg: fmt.Sprintf("无法识别的条件 %v", cond)}
}

func NewErrInvalidHashKey(key any) error {
	return &ExpressionError{msg: fmt.Sprintf("Hash 的键必须是字符串, 实际是 %v", key)}
}

// RelationshipError 代表关联关系定义或者加载出错
type RelationshipError struct {
	Model    string
	Relation string
	msg      string
}

func (e *RelationshipError) Error() string {
	return fmt.Sprintf("orm: 关联关系 %s.%s 错误, %s", e.Model, e.Relation, e.msg)
}

func NewErrRelation(model, relation, format string, args ...any) error {
	return &RelationshipError{
		Model:    model,
		Relation: relation,
		msg:      fmt.Sprintf(format, args...),
	}
}

func NewErrUnknownRelation(model, relation string) error {
	return NewErrRelation(model, relation, "没有定义该关联")
}

// DatabaseError 包装了执行器返回的错误, 原样向上传递
type DatabaseError struct {
	SQL string
	Err error
}

func (e *DatabaseError) Error() string {
	return fmt.Sprintf("orm: 执行 %q 失败: %v", e.SQL, e.Err)
}

func (e *DatabaseError) Unwrap() error {
	return e.Err
}

func NewErrDatabase(query string, err error) error {
	if err == nil {
		return nil
	}
	var dbErr *DatabaseError
	if errors.As(err, &dbErr) {
		return err
	}
	return &DatabaseError{SQL: query, Err: err}
}

func NewErrUnsupportedExpressionType(expr any) error {
	return fmt.Errorf("orm: 不支持的表达式 %v", expr)
}

func NewErrUnsupportedSelectable(expr any) error {
	return fmt.Errorf("orm: 不支持的目标列 %v", expr)
}

func NewErrUnsupportedTable(table any) error {
	return fmt.Errorf("orm: 不支持的表 %v", table)
}

func NewErrFromTableMismatch(want, got string) error {
	return fmt.Errorf("orm: FROM 的第一张表必须是 %s, 实际是 %s", want, got)
}

func NewErrUnsupportedAssignable(expr any) error {
	return fmt.Errorf("orm: 不支持的赋值语句 %v", expr)
}

func NewErrUnsupportedUpsert(dialect string) error {
	return fmt.Errorf("orm: %s 不支持 upsert", dialect)
}

func NewErrUnknownField(name string) error {
	return fmt.Errorf("orm: 未知字段 %s", name)
}

func NewErrUnknownColumn(name string) error {
	return fmt.Errorf("orm: 未知数据库列名 %s", name)
}

func NewErrIinvalidTagContent(pair string) error {
	return fmt.Errorf("orm: 非法标签值 %s", pair)
}

func NewErrUnknownDialect(name string) error {
	return fmt.Errorf("orm: 未知的方言 %s", name)
}

func NewErrCannotAssign(col string, src any, dst string) error {
	return fmt.Errorf("orm: 列 %s 无法把 %T 类型的值赋给 %s", col, src, dst)
}

// NewErrFailedToRollbackTx 回滚失败的时候, 业务错误和回滚错误都要返回给用户
func NewErrFailedToRollbackTx(bizErr error, rbErr error, panicked bool) error {
	if rbErr == nil {
		return bizErr
	}
	return errors.Join(bizErr, fmt.Errorf("orm: 回滚事务失败, 是否 panic: %t, %w", panicked, rbErr))
}
