package orm

import (
	"context"
	"log/slog"
	"reflect"

	"github.com/google/uuid"

	"github.com/startdusk/relorm/orm/internal/errs"
	"github.com/startdusk/relorm/orm/internal/valuer"
	"github.com/startdusk/relorm/orm/model"
)

type core struct {
	dialect Dialect
	creator valuer.Creator
	r       model.Registry
	rels    *relationRegistry
	logger  *slog.Logger

	mdls []Middleware
}

func (c core) chain(root Handler) Handler {
	for i := len(c.mdls) - 1; i >= 0; i-- {
		root = c.mdls[i](root)
	}
	return root
}

// modelOf 取 entity 对应的元数据, entity 可以是 *T 或者 reflect.Type(结构体)
func (c core) modelOf(entity any) (*model.Model, error) {
	if typ, ok := entity.(reflect.Type); ok {
		entity = reflect.New(typ).Interface()
	}
	return c.r.Get(entity)
}

// newRecord 用一行数据构造一个新的实例.
// 预加载时同一行数据分给多个源记录, 第二次以后也是走这里重新构造, 互相之间不共享内存
func (c core) newRecord(m *model.Model, columns []string, vals []any) (any, error) {
	entity := reflect.New(m.Type).Interface()
	if err := c.creator(m, entity).SetColumns(columns, vals); err != nil {
		return nil, err
	}
	return entity, nil
}

func (c core) newRecords(m *model.Model, rows *Rows) ([]any, error) {
	res := make([]any, 0, rows.Len())
	if rows == nil {
		return res, nil
	}
	for _, vals := range rows.Values {
		entity, err := c.newRecord(m, rows.Columns, vals)
		if err != nil {
			return nil, err
		}
		res = append(res, entity)
	}
	return res, nil
}

func query(ctx context.Context, sess Session, c core, qc *QueryContext) *QueryResult {
	if qc.ID == "" {
		qc.ID = uuid.NewString()
	}
	var root Handler = func(ctx context.Context, qc *QueryContext) *QueryResult {
		return queryHandler(ctx, sess, qc)
	}
	return c.chain(root)(ctx, qc)
}

func queryHandler(ctx context.Context, sess Session, qc *QueryContext) *QueryResult {
	q, err := qc.Builder.Build()
	if err != nil {
		return &QueryResult{Err: err}
	}
	rows, err := sess.queryContext(ctx, q.SQL, q.Args...)
	if err != nil {
		return &QueryResult{Err: errs.NewErrDatabase(q.SQL, err)}
	}
	res, err := readRows(rows)
	if err != nil {
		return &QueryResult{Err: errs.NewErrDatabase(q.SQL, err)}
	}
	return &QueryResult{Result: res}
}

// fetch 执行查询并且返回读取完毕的结果集
func fetch(ctx context.Context, sess Session, c core, qc *QueryContext) (*Rows, error) {
	res := query(ctx, sess, c, qc)
	if res.Err != nil {
		return nil, res.Err
	}
	rows, _ := res.Result.(*Rows)
	if rows == nil {
		rows = &Rows{}
	}
	return rows, nil
}

func exec(ctx context.Context, sess Session, c core, qc *QueryContext) Result {
	if qc.ID == "" {
		qc.ID = uuid.NewString()
	}
	var root Handler = func(ctx context.Context, qc *QueryContext) *QueryResult {
		return execHandler(ctx, sess, qc)
	}
	res := c.chain(root)(ctx, qc)
	if r, ok := res.Result.(Result); ok {
		if r.err == nil {
			r.err = res.Err
		}
		return r
	}
	return Result{err: res.Err}
}

func execHandler(ctx context.Context, sess Session, qc *QueryContext) *QueryResult {
	q, err := qc.Builder.Build()
	if err != nil {
		return &QueryResult{
			Err:    err,
			Result: Result{err: err},
		}
	}
	res, err := sess.execContext(ctx, q.SQL, q.Args...)
	err = errs.NewErrDatabase(q.SQL, err)
	return &QueryResult{
		Err:    err,
		Result: Result{res: res, err: err},
	}
}
