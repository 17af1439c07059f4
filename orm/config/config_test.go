package config

import (
	"bytes"
	"context"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/startdusk/relorm/orm"
)

func TestParse(t *testing.T) {
	cases := []struct {
		name    string
		data    string
		wantCfg *Config
		wantErr error
	}{
		{
			name: "sqlite",
			data: `
driver: sqlite3
dsn: "file:config_test.db?cache=shared&mode=memory"
slow_query_threshold: 200ms
log_queries: true
`,
			wantCfg: &Config{
				Driver:             "sqlite3",
				DSN:                "file:config_test.db?cache=shared&mode=memory",
				SlowQueryThreshold: 200 * time.Millisecond,
				LogQueries:         true,
			},
		},
		{
			name: "explicit dialect",
			data: `
driver: godror
dsn: "user/pass@localhost/orcl"
dialect: oracle
`,
			wantCfg: &Config{
				Driver:  "godror",
				DSN:     "user/pass@localhost/orcl",
				Dialect: "oracle",
			},
		},
		{
			name:    "missing driver",
			data:    `dsn: "x"`,
			wantErr: ErrMissingDriver,
		},
		{
			name:    "missing dsn",
			data:    `driver: mysql`,
			wantErr: ErrMissingDSN,
		},
	}

	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			cfg, err := Parse([]byte(c.data))
			assert.Equal(t, c.wantErr, err)
			if err != nil {
				return
			}
			assert.Equal(t, c.wantCfg, cfg)
		})
	}
}

func TestParse_Invalid(t *testing.T) {
	_, err := Parse([]byte("driver: [mysql"))
	assert.Error(t, err)

	_, err = Parse([]byte("driver: postgres\ndsn: x"))
	assert.Error(t, err)

	_, err = Parse([]byte("driver: mysql\ndsn: \"not a dsn\""))
	assert.Error(t, err)
}

func TestConfig_ValidateMySQL(t *testing.T) {
	cfg := &Config{
		Driver: " mysql ",
		DSN:    "root:root@tcp(localhost:3306)/relorm",
	}
	require.NoError(t, cfg.Validate())
	assert.Equal(t, "mysql", cfg.Driver)
	assert.True(t, strings.HasPrefix(cfg.DSN, "root:root@tcp(localhost:3306)/relorm?"))
	assert.Contains(t, cfg.DSN, "parseTime=true")
}

func TestLoad(t *testing.T) {
	path := filepath.Join(t.TempDir(), "db.yaml")
	require.NoError(t, os.WriteFile(path, []byte("driver: sqlite3\ndsn: \"file::memory:\"\n"), 0o600))
	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "sqlite3", cfg.Driver)

	_, err = Load(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)
}

func TestConfig_Options(t *testing.T) {
	cfg := &Config{Driver: "sqlite3", DSN: "x"}
	opts, err := cfg.Options(nil)
	require.NoError(t, err)
	assert.Len(t, opts, 2)

	cfg = &Config{
		Driver:             "sqlite3",
		DSN:                "x",
		UseReflect:         true,
		LogQueries:         true,
		SlowQueryThreshold: time.Second,
	}
	opts, err = cfg.Options(slog.Default())
	require.NoError(t, err)
	// dialect, logger, reflect, middlewares
	assert.Len(t, opts, 4)

	cfg = &Config{Driver: "sqlite3", DSN: "x", Dialect: "db2"}
	_, err = cfg.Options(nil)
	assert.Error(t, err)
}

func TestOpen(t *testing.T) {
	buf := &bytes.Buffer{}
	logger := slog.New(slog.NewJSONHandler(buf, nil))
	cfg := &Config{
		Driver:     "sqlite3",
		DSN:        "file:config_open.db?cache=shared&mode=memory",
		LogQueries: true,
	}
	db, err := Open(cfg, logger)
	require.NoError(t, err)
	defer func() {
		_ = db.Close()
	}()
	assert.Equal(t, orm.DialectSQLite, db.Dialect())

	// 不关心执行结果, 只看日志
	_ = orm.RawQuery[configTable](db, "CREATE TABLE IF NOT EXISTS config_table (id INTEGER PRIMARY KEY)").
		Exec(context.Background())
	assert.Contains(t, buf.String(), "CREATE TABLE IF NOT EXISTS config_table")
}

type configTable struct {
	ID int64
}
