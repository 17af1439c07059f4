package orm

import (
	"context"
	"database/sql"
	"errors"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/startdusk/relorm/orm/internal/errs"
)

func TestSelector_Build(t *testing.T) {
	db, _ := newMockDB(t)
	cases := []struct {
		name    string
		builder QueryBuilder

		wantQuery *Query
		wantErr   error
	}{
		{
			name:    "select all",
			builder: NewSelector[TestModel](db),
			wantQuery: &Query{
				SQL:  "SELECT * FROM `test_model`",
				Args: []any{},
			},
		},
		{
			name:    "empty where",
			builder: NewSelector[TestModel](db).Where(),
			wantQuery: &Query{
				SQL:  "SELECT * FROM `test_model`",
				Args: []any{},
			},
		},
		{
			name:    "where age=18",
			builder: NewSelector[TestModel](db).Where(C("Age").Eq(18)),
			wantQuery: &Query{
				SQL:  "SELECT * FROM `test_model` WHERE `age` = ?",
				Args: []any{18},
			},
		},
		{
			name:    "where not",
			builder: NewSelector[TestModel](db).Where(Not(C("Age").Eq(18))),
			wantQuery: &Query{
				SQL:  "SELECT * FROM `test_model` WHERE  NOT (`age` = ?)",
				Args: []any{18},
			},
		},
		{
			name:    "where and",
			builder: NewSelector[TestModel](db).Where(C("Age").Eq(18).And(C("FirstName").Eq("tom"))),
			wantQuery: &Query{
				SQL:  "SELECT * FROM `test_model` WHERE (`age` = ?) AND (`first_name` = ?)",
				Args: []any{18, "tom"},
			},
		},
		{
			name:    "where or",
			builder: NewSelector[TestModel](db).Where(C("Age").Eq(18).Or(C("FirstName").Eq("tom"))),
			wantQuery: &Query{
				SQL:  "SELECT * FROM `test_model` WHERE (`age` = ?) OR (`first_name` = ?)",
				Args: []any{18, "tom"},
			},
		},
		{
			name:    "where in",
			builder: NewSelector[TestModel](db).Where(C("ID").In(1, 2, 3)),
			wantQuery: &Query{
				SQL:  "SELECT * FROM `test_model` WHERE `id` IN(?,?,?)",
				Args: []any{1, 2, 3},
			},
		},
		{
			name:    "where hash",
			builder: NewSelector[TestModel](db).Where(H("FirstName", "Tom", "age", []int{18, 19})),
			wantQuery: &Query{
				SQL:  "SELECT * FROM `test_model` WHERE `first_name`=? AND `age` IN(?,?)",
				Args: []any{"Tom", 18, 19},
			},
		},
		{
			name:    "where raw",
			builder: NewSelector[TestModel](db).Where("age > ?", 18).Where(H("FirstName", "Tom")),
			wantQuery: &Query{
				SQL:  "SELECT * FROM `test_model` WHERE (age > ?) AND (`first_name`=?)",
				Args: []any{18, "Tom"},
			},
		},
		{
			name:    "where underscored",
			builder: NewSelector[TestModel](db).WhereUnderscored("FirstName_and_Age", "Tom"),
			wantQuery: &Query{
				SQL:  "SELECT * FROM `test_model` WHERE `first_name`=? AND `age` IS NULL",
				Args: []any{"Tom"},
			},
		},
		{
			name:    "select columns",
			builder: NewSelector[TestModel](db).Select(C("FirstName"), C("Age").As("a"), Avg("Age").As("avg_age")),
			wantQuery: &Query{
				SQL:  "SELECT `first_name`, `age` AS `a`, AVG(`age`) AS `avg_age` FROM `test_model`",
				Args: []any{},
			},
		},
		{
			name:    "select raw",
			builder: NewSelector[TestModel](db).Select(Raw("COUNT(DISTINCT `first_name`)")),
			wantQuery: &Query{
				SQL:  "SELECT COUNT(DISTINCT `first_name`) FROM `test_model`",
				Args: []any{},
			},
		},
		{
			name: "group having order limit offset",
			builder: NewSelector[TestModel](db).Select(C("Age"), Count("ID")).
				Group("`age`").Having("COUNT(`id`) > 1").Order("`age` DESC").Limit(10).Offset(20),
			wantQuery: &Query{
				SQL:  "SELECT `age`, COUNT(`id`) FROM `test_model` GROUP BY `age` HAVING COUNT(`id`) > 1 ORDER BY `age` DESC LIMIT 20,10",
				Args: []any{},
			},
		},
		{
			name: "joins",
			builder: NewSelector[TestModel](db).
				Joins("LEFT JOIN `x` ON(`x`.`id` = `test_model`.`id`)").
				Where(C("Age").Eq(18)).Where(H("FirstName", "Tom")),
			wantQuery: &Query{
				SQL:  "SELECT `test_model`.* FROM `test_model` LEFT JOIN `x` ON(`x`.`id` = `test_model`.`id`) WHERE (`test_model`.`age` = ?) AND (`test_model`.`first_name`=?)",
				Args: []any{18, "Tom"},
			},
		},
		{
			name:    "invalid column",
			builder: NewSelector[TestModel](db).Where(C("Age").Eq(18).Or(C("XXX").Eq("tom"))),
			wantErr: errs.NewErrUnknownField("XXX"),
		},
		{
			name:    "invalid select column",
			builder: NewSelector[TestModel](db).Select(C("XXX")),
			wantErr: errs.NewErrUnknownField("XXX"),
		},
		{
			name:    "unknown relation join",
			builder: NewSelector[TestModel](db).Joins("Books"),
			wantErr: errs.NewErrUnknownRelation("TestModel", "Books"),
		},
	}

	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			q, err := c.builder.Build()
			assert.Equal(t, c.wantErr, err)
			if err != nil {
				return
			}
			assert.Equal(t, c.wantQuery, q)
		})
	}
}

func TestSelector_From(t *testing.T) {
	db, _ := newMockDB(t)
	oracleDB, _ := newMockDB(t, DBWithDialect(DialectOracle))
	author, book := TableOf(&Author{}).As("a"), TableOf(&Book{}).As("b")
	review := TableOf(&Review{})
	cases := []struct {
		name    string
		builder QueryBuilder

		wantQuery *Query
		wantErr   error
	}{
		{
			name:    "alias",
			builder: NewSelector[TestModel](db).From(TableOf(&TestModel{}).As("t")).Where(C("Age").Gt(18)),
			wantQuery: &Query{
				SQL:  "SELECT `t`.* FROM `test_model` `t` WHERE `t`.`age` > ?",
				Args: []any{18},
			},
		},
		{
			name:    "oracle alias",
			builder: NewSelector[TestModel](oracleDB).From(TableOf(&TestModel{}).As("t")).Select(C("FirstName")),
			wantQuery: &Query{
				SQL:  `SELECT "t"."first_name" FROM "test_model" "t"`,
				Args: []any{},
			},
		},
		{
			name: "join on",
			builder: NewSelector[Author](db).
				From(author.Join(book).On(author.C("ID").Eq(book.C("AuthorID")))).
				Where(book.C("Title").Eq("Go")),
			wantQuery: &Query{
				SQL:  "SELECT `a`.* FROM `author` `a` INNER JOIN `book` `b` ON(`a`.`id` = `b`.`author_id`) WHERE `b`.`title` = ?",
				Args: []any{"Go"},
			},
		},
		{
			name: "join chain with args",
			builder: NewSelector[Book](db).
				From(TableOf(&Book{}).Join(TableOf(&Author{})).On(C("AuthorID").Eq(TableOf(&Author{}).C("ID"))).
					LeftJoin(review).On(review.C("BookID").Eq(C("ID")), review.C("Body").Like("%good%"))).
				Where(H("ID", 1)),
			wantQuery: &Query{
				SQL: "SELECT `book`.* FROM `book` INNER JOIN `author` ON(`book`.`author_id` = `author`.`id`) " +
					"LEFT JOIN `review` ON((`review`.`book_id` = `book`.`id`) AND (`review`.`body` LIKE ?)) WHERE `book`.`id`=?",
				Args: []any{"%good%", 1},
			},
		},
		{
			name:    "using",
			builder: NewSelector[Review](db).From(review.RightJoin(TableOf(&Book{})).Using("ID")),
			wantQuery: &Query{
				SQL:  "SELECT `review`.* FROM `review` RIGHT JOIN `book` USING(`id`)",
				Args: []any{},
			},
		},
		{
			name: "typed join before raw join",
			builder: NewSelector[Author](db).
				From(author.Join(book).On(author.C("ID").Eq(book.C("AuthorID")))).
				Joins("LEFT JOIN `profile` `p` ON(`p`.`author_id` = `a`.`id`)"),
			wantQuery: &Query{
				SQL: "SELECT `a`.* FROM `author` `a` INNER JOIN `book` `b` ON(`a`.`id` = `b`.`author_id`) " +
					"LEFT JOIN `profile` `p` ON(`p`.`author_id` = `a`.`id`)",
				Args: []any{},
			},
		},
		{
			name:    "from another table",
			builder: NewSelector[TestModel](db).From(TableOf(&Author{})),
			wantErr: errs.NewErrFromTableMismatch("TestModel", "Author"),
		},
		{
			name:    "unknown join column",
			builder: NewSelector[Author](db).From(author.Join(book).On(book.C("Nope").Eq(1))),
			wantErr: errs.NewErrUnknownField("Nope"),
		},
		{
			name:    "unknown using column",
			builder: NewSelector[Author](db).From(author.Join(book).Using("Nope")),
			wantErr: errs.NewErrUnknownField("Nope"),
		},
	}

	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			q, err := c.builder.Build()
			assert.Equal(t, c.wantErr, err)
			if err != nil {
				return
			}
			assert.Equal(t, c.wantQuery, q)
		})
	}
}

func TestSelector_FromJoin(t *testing.T) {
	db, mock := newMockDB(t)
	mock.ExpectQuery("SELECT `a`.* FROM `author` `a` INNER JOIN `book` `b` ON(`a`.`id` = `b`.`author_id`) WHERE `b`.`title` = ?").
		WithArgs("Go").
		WillReturnRows(sqlmock.NewRows([]string{"id", "name"}).AddRow(1, "Tom"))

	author, book := TableOf(&Author{}).As("a"), TableOf(&Book{}).As("b")
	res, err := NewSelector[Author](db).
		From(author.Join(book).On(author.C("ID").Eq(book.C("AuthorID")))).
		Where(book.C("Title").Eq("Go")).
		GetMulti(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []*Author{{ID: 1, Name: "Tom"}}, res)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestSelector_Get(t *testing.T) {
	queryErr := errors.New("query error")
	cases := []struct {
		name     string
		mock     func(mock sqlmock.Sqlmock)
		selector func(db *DB) *Selector[TestModel]

		wantErr error
		wantRes *TestModel
	}{
		{
			name: "query error",
			mock: func(mock sqlmock.Sqlmock) {
				mock.ExpectQuery("SELECT * FROM `test_model` LIMIT 1").WillReturnError(queryErr)
			},
			selector: func(db *DB) *Selector[TestModel] {
				return NewSelector[TestModel](db)
			},
			wantErr: queryErr,
		},
		{
			name: "no rows",
			mock: func(mock sqlmock.Sqlmock) {
				rows := sqlmock.NewRows([]string{"id", "first_name", "age", "last_name"})
				mock.ExpectQuery("SELECT * FROM `test_model` WHERE `id`=? LIMIT 1").
					WithArgs(-1).WillReturnRows(rows)
			},
			selector: func(db *DB) *Selector[TestModel] {
				return NewSelector[TestModel](db).Where(H("ID", -1))
			},
			wantErr: ErrNoRows,
		},
		{
			name: "data",
			mock: func(mock sqlmock.Sqlmock) {
				rows := sqlmock.NewRows([]string{"id", "first_name", "age", "last_name"})
				// 数据库查询出来的数据返回的都是文本类型, 所以这里可以用字符串
				rows.AddRow("1", "Tom", "18", "Jerry")
				mock.ExpectQuery("SELECT * FROM `test_model` WHERE `id`=? LIMIT 1").
					WithArgs(1).WillReturnRows(rows)
			},
			selector: func(db *DB) *Selector[TestModel] {
				return NewSelector[TestModel](db).Where(H("ID", 1))
			},
			wantRes: &TestModel{
				ID:        1,
				FirstName: "Tom",
				Age:       18,
				LastName:  &sql.NullString{Valid: true, String: "Jerry"},
			},
		},
		{
			name: "null column",
			mock: func(mock sqlmock.Sqlmock) {
				rows := sqlmock.NewRows([]string{"id", "first_name", "age", "last_name"})
				rows.AddRow("2", "Tom", "18", nil)
				mock.ExpectQuery("SELECT * FROM `test_model` WHERE `id`=? LIMIT 1").
					WithArgs(2).WillReturnRows(rows)
			},
			selector: func(db *DB) *Selector[TestModel] {
				return NewSelector[TestModel](db).Where(H("ID", 2))
			},
			wantRes: &TestModel{
				ID:        2,
				FirstName: "Tom",
				Age:       18,
			},
		},
		{
			name: "scan error",
			mock: func(mock sqlmock.Sqlmock) {
				rows := sqlmock.NewRows([]string{"id", "first_name", "age", "last_name"})
				// 本来 id 应该是数字, 故意给了个 abc
				rows.AddRow("abc", "Tom", "18", "Jerry")
				mock.ExpectQuery("SELECT * FROM `test_model` LIMIT 1").WillReturnRows(rows)
			},
			selector: func(db *DB) *Selector[TestModel] {
				return NewSelector[TestModel](db)
			},
			wantErr: errs.NewErrCannotAssign("id", "abc", "int64"),
		},
	}

	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			db, mock := newMockDB(t)
			c.mock(mock)
			res, err := c.selector(db).Get(context.Background())
			if c.wantErr != nil {
				require.Error(t, err)
				if errors.Is(err, c.wantErr) {
					return
				}
				assert.Equal(t, c.wantErr.Error(), err.Error())
				return
			}
			require.NoError(t, err)
			assert.Equal(t, c.wantRes, res)
			assert.NoError(t, mock.ExpectationsWereMet())
		})
	}
}

func TestSelector_GetMulti(t *testing.T) {
	db, mock := newMockDB(t)
	mock.ExpectQuery("SELECT * FROM `test_model` WHERE `age` > ? ORDER BY `id` ASC").
		WithArgs(100).WillReturnRows(sqlmock.NewRows([]string{"id", "first_name"}))
	rows := sqlmock.NewRows([]string{"id", "first_name"}).
		AddRow("1", "Tom").
		AddRow("2", "Jerry")
	mock.ExpectQuery("SELECT * FROM `test_model` ORDER BY `id` ASC").WillReturnRows(rows)

	res, err := NewSelector[TestModel](db).Where(C("Age").Gt(100)).Order("`id` ASC").GetMulti(context.Background())
	require.NoError(t, err)
	assert.NotNil(t, res)
	assert.Empty(t, res)

	res, err = NewSelector[TestModel](db).Order("`id` ASC").GetMulti(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []*TestModel{
		{ID: 1, FirstName: "Tom"},
		{ID: 2, FirstName: "Jerry"},
	}, res)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestSelector_Last(t *testing.T) {
	db, mock := newMockDB(t)
	mock.ExpectQuery("SELECT * FROM `test_model` ORDER BY `id` DESC LIMIT 1").
		WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow("9"))
	mock.ExpectQuery("SELECT * FROM `test_model` ORDER BY age DESC, id DESC LIMIT 1").
		WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow("8"))

	s := NewSelector[TestModel](db)
	res, err := s.Last(context.Background())
	require.NoError(t, err)
	assert.Equal(t, int64(9), res.ID)
	q, err := s.Build()
	require.NoError(t, err)
	// Last 不会修改原来的排序
	assert.Equal(t, "SELECT * FROM `test_model`", q.SQL)

	res, err = NewSelector[TestModel](db).Order("age ASC, id").Last(context.Background())
	require.NoError(t, err)
	assert.Equal(t, int64(8), res.ID)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestSelector_OracleLimit(t *testing.T) {
	db, mock := newMockDB(t, DBWithDialect(DialectOracle))
	// Oracle 返回的列名是大写的, 分页还会多带出来一列行号
	rows := sqlmock.NewRows([]string{"ID", "FIRST_NAME", "AGE", "LAST_NAME", "AR_RNUM__"}).
		AddRow("1", "Tom", "18", "Jerry", "1")
	mock.ExpectQuery(`SELECT * FROM (SELECT a.*, rownum ar_rnum__ FROM (SELECT * FROM "test_model" WHERE "id"=?) a WHERE rownum <= 1) WHERE ar_rnum__ > 0`).
		WithArgs(1).WillReturnRows(rows)
	rows = sqlmock.NewRows([]string{"id", "first_name", "ar_rnum__"}).
		AddRow("3", "Jerry", "3").
		AddRow("4", "Bob", "4")
	mock.ExpectQuery(`SELECT * FROM (SELECT a.*, rownum ar_rnum__ FROM (SELECT * FROM "test_model" ORDER BY "id") a WHERE rownum <= 4) WHERE ar_rnum__ > 2`).
		WillReturnRows(rows)

	res, err := NewSelector[TestModel](db).Where(H("ID", 1)).Get(context.Background())
	require.NoError(t, err)
	assert.Equal(t, &TestModel{
		ID:        1,
		FirstName: "Tom",
		Age:       18,
		LastName:  &sql.NullString{Valid: true, String: "Jerry"},
	}, res)

	list, err := NewSelector[TestModel](db).Order(`"id"`).Offset(2).Limit(2).GetMulti(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []*TestModel{
		{ID: 3, FirstName: "Jerry"},
		{ID: 4, FirstName: "Bob"},
	}, list)
	assert.NoError(t, mock.ExpectationsWereMet())
}

type readonlyModel struct {
	ID       int64
	Name     string
	readonly bool
}

func (r *readonlyModel) SetReadonly(readonly bool) {
	r.readonly = readonly
}

func TestSelector_Readonly(t *testing.T) {
	db, mock := newMockDB(t)
	mock.ExpectQuery("SELECT * FROM `readonly_model`").
		WillReturnRows(sqlmock.NewRows([]string{"id", "name"}).AddRow("1", "Tom"))
	mock.ExpectQuery("SELECT * FROM `readonly_model`").
		WillReturnRows(sqlmock.NewRows([]string{"id", "name"}).AddRow("1", "Tom"))

	res, err := NewSelector[readonlyModel](db).Readonly().GetMulti(context.Background())
	require.NoError(t, err)
	require.Len(t, res, 1)
	assert.True(t, res[0].readonly)

	res, err = NewSelector[readonlyModel](db).GetMulti(context.Background())
	require.NoError(t, err)
	require.Len(t, res, 1)
	assert.False(t, res[0].readonly)
}

func TestSelector_Middleware(t *testing.T) {
	var types []string
	var sqls []string
	mdl := func(next Handler) Handler {
		return func(ctx context.Context, qc *QueryContext) *QueryResult {
			types = append(types, qc.Type)
			assert.NotEmpty(t, qc.ID)
			q, err := qc.Builder.Build()
			require.NoError(t, err)
			sqls = append(sqls, q.SQL)
			return next(ctx, qc)
		}
	}
	db, mock := newMockDB(t, DBWithMiddlewares(mdl))
	mock.ExpectQuery("SELECT * FROM `test_model`").
		WillReturnRows(sqlmock.NewRows([]string{"id"}))
	mock.ExpectExec("DELETE FROM `test_model` WHERE `id`=?").
		WithArgs(1).WillReturnResult(sqlmock.NewResult(0, 1))

	_, err := NewSelector[TestModel](db).GetMulti(context.Background())
	require.NoError(t, err)
	affected, err := NewDeleter[TestModel](db).Delete(&TestModel{ID: 1}).Exec(context.Background()).RowsAffected()
	require.NoError(t, err)
	assert.Equal(t, int64(1), affected)

	assert.Equal(t, []string{"SELECT", "DELETE"}, types)
	assert.Equal(t, []string{
		"SELECT * FROM `test_model`",
		"DELETE FROM `test_model` WHERE `id`=?",
	}, sqls)
}
