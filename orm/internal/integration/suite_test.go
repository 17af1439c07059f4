//go:build integration

package integration

import (
	"context"

	"github.com/stretchr/testify/require"
	"github.com/stretchr/testify/suite"

	"github.com/startdusk/relorm/orm"
	"github.com/startdusk/relorm/orm/internal/test"

	_ "github.com/mattn/go-sqlite3"
)

type Suite struct {
	suite.Suite

	driver string
	dsn    string

	db *orm.DB
}

func (s *Suite) SetupSuite() {
	db, err := orm.Open(s.driver, s.dsn)
	require.NoError(s.T(), err)
	s.db = db
	for _, ddl := range test.SQLiteSchema {
		err = orm.RawQuery[test.Author](db, ddl).Exec(context.Background()).Err()
		require.NoError(s.T(), err)
	}
}

func (s *Suite) TearDownSuite() {
	if s.db != nil {
		_ = s.db.Close()
	}
}

// TearDownTest 每个用例执行完之后清空数据
func (s *Suite) TearDownTest() {
	for _, table := range test.Tables {
		err := orm.RawQuery[test.Author](s.db, "DELETE FROM `"+table+"`").Exec(context.Background()).Err()
		require.NoError(s.T(), err)
	}
}
