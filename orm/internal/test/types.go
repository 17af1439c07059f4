// Package test 是用于辅助测试的包。仅限于内部使用
package test

import (
	"database/sql"
	"database/sql/driver"
	"encoding/json"
	"fmt"

	"github.com/startdusk/relorm/orm"
)

// SQLiteSchema 集成测试用到的表
var SQLiteSchema = []string{
	"CREATE TABLE IF NOT EXISTS `author` (`id` INTEGER PRIMARY KEY AUTOINCREMENT, `name` TEXT NOT NULL)",
	"CREATE TABLE IF NOT EXISTS `book` (`id` INTEGER PRIMARY KEY AUTOINCREMENT, `title` TEXT NOT NULL, `author_id` INTEGER, `meta` TEXT)",
	"CREATE TABLE IF NOT EXISTS `review` (`id` INTEGER PRIMARY KEY AUTOINCREMENT, `book_id` INTEGER NOT NULL, `body` TEXT NOT NULL)",
	"CREATE TABLE IF NOT EXISTS `tag` (`id` INTEGER PRIMARY KEY AUTOINCREMENT, `name` TEXT NOT NULL)",
	"CREATE TABLE IF NOT EXISTS `author_tag` (`author_id` INTEGER NOT NULL, `tag_id` INTEGER NOT NULL)",
}

// Tables 按照依赖的反方向排列, 清理数据的时候使用
var Tables = []string{"author_tag", "review", "tag", "book", "author"}

type Author struct {
	ID    int64
	Name  string
	Books []*Book
	// Reviews 经过 Books 加载
	Reviews []*Review
	Tags    []*Tag
}

func (a *Author) Associations() []*orm.Relation {
	return []*orm.Relation{
		orm.HasMany[Book]("Books", orm.WithOrder("`id` ASC")),
		orm.HasMany[Review]("Reviews", orm.WithThrough("Books")),
		orm.HasAndBelongsToMany[Tag]("Tags", orm.WithReadonly()),
	}
}

type Book struct {
	ID       int64
	Title    string
	AuthorID sql.NullInt64
	Meta     *JsonColumn
	Author   *Author
	Reviews  []*Review
}

func (b *Book) Associations() []*orm.Relation {
	return []*orm.Relation{
		orm.BelongsTo[Author]("Author"),
		orm.HasMany[Review]("Reviews"),
	}
}

type Review struct {
	ID     int64
	BookID int64
	Body   string
}

type Tag struct {
	ID       int64
	Name     string
	readonly bool
}

func (t *Tag) SetReadonly(readonly bool) {
	t.readonly = readonly
}

func (t *Tag) Readonly() bool {
	return t.readonly
}

// JsonColumn 是自定义的 JSON 类型字段
type JsonColumn struct {
	Val   Meta
	Valid bool
}

type Meta struct {
	Pages int `json:"pages"`
}

func (j *JsonColumn) Scan(src any) error {
	if src == nil {
		return nil
	}
	var bs []byte
	switch val := src.(type) {
	case string:
		bs = []byte(val)
	case []byte:
		bs = val
	default:
		return fmt.Errorf("不合法类型 %+v", src)
	}
	if len(bs) == 0 {
		return nil
	}
	if err := json.Unmarshal(bs, &j.Val); err != nil {
		return err
	}
	j.Valid = true
	return nil
}

// Value 参考 sql.NullXXX 类型定义的
func (j JsonColumn) Value() (driver.Value, error) {
	if !j.Valid {
		return nil, nil
	}
	bs, err := json.Marshal(j.Val)
	if err != nil {
		return nil, err
	}
	return string(bs), nil
}

func NullInt64(v int64) sql.NullInt64 {
	return sql.NullInt64{Int64: v, Valid: true}
}

func ToPtr[T any](t T) *T {
	return &t
}
