package orm

import (
	"context"
	"database/sql"
	"strings"
)

// Querier 用于 `SELECT` 语句
type Querier[T any] interface {
	// 返回指针是允许在 AOP 的场景下修改返回值, 从而不引起数据拷贝
	Get(ctx context.Context) (*T, error)
	GetMulti(ctx context.Context) ([]*T, error)
}

// Execer 用于 `INSERT`, `UPDATE`, `DELETE` 语句
type Execer interface {
	Exec(ctx context.Context) Result
}

type QueryBuilder interface {
	Build() (*Query, error)
}

type Query struct {
	SQL  string
	Args []any
}

// Rows 是读取完毕的结果集, 每一行是驱动返回的原始值.
// 关联预加载的时候同一行数据要构造出多个实例, 所以不能边读边丢
type Rows struct {
	Columns []string
	Values  [][]any
}

func (r *Rows) Len() int {
	if r == nil {
		return 0
	}
	return len(r.Values)
}

// readRows 读完并关闭 rows. Oracle 分页带出来的行号列不属于任何模型, 直接丢掉
func readRows(rows *sql.Rows) (*Rows, error) {
	defer func() {
		_ = rows.Close()
	}()
	cols, err := rows.Columns()
	if err != nil {
		return nil, err
	}
	// Oracle 会把没有引号的别名转成大写
	skip := -1
	for i, col := range cols {
		if strings.EqualFold(col, rowNumColumn) {
			skip = i
			break
		}
	}
	res := &Rows{Columns: dropAt(cols, skip)}
	for rows.Next() {
		vals := make([]any, len(cols))
		ptrs := make([]any, len(cols))
		for i := range vals {
			ptrs[i] = &vals[i]
		}
		if err = rows.Scan(ptrs...); err != nil {
			return nil, err
		}
		res.Values = append(res.Values, dropAt(vals, skip))
	}
	return res, rows.Err()
}

func dropAt[E any](s []E, idx int) []E {
	if idx < 0 || idx >= len(s) {
		return s
	}
	return append(s[:idx:idx], s[idx+1:]...)
}

// Build 让已经构造好的 Query 也能直接交给中间件
func (q *Query) Build() (*Query, error) {
	return q, nil
}
