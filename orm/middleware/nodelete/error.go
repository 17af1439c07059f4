package nodelete

import "fmt"

func newErrMissingWhere(typ string) error {
	return fmt.Errorf("orm: 禁止执行没有 WHERE 的 %s 语句", typ)
}
