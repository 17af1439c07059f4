package orm

// Assignable 可以出现在 upsert 的更新列表里面, Assign(col, val) 或者 C(col)
type Assignable interface {
	assign()
}

// Assignment 把 col 设置成 val, col 可以是 Go 字段名, 别名或者列名
type Assignment struct {
	col string
	val any
}

func (a Assignment) assign() {}

func Assign(col string, val any) Assignment {
	return Assignment{
		col: col,
		val: val,
	}
}
