// Package config 从 YAML 加载数据库配置, 并转换成 orm.DBOption
package config

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/go-sql-driver/mysql"
	_ "github.com/mattn/go-sqlite3"
	"gopkg.in/yaml.v3"

	"github.com/startdusk/relorm/orm"
	"github.com/startdusk/relorm/orm/middleware/querylog"
	"github.com/startdusk/relorm/orm/middleware/slowquery"
)

var (
	ErrMissingDriver = errors.New("orm: 配置缺少 driver")
	ErrMissingDSN    = errors.New("orm: 配置缺少 dsn")
)

type Config struct {
	// Driver 是 database/sql 注册的驱动名, 比如 mysql, sqlite3
	Driver string `yaml:"driver"`
	DSN    string `yaml:"dsn"`
	// Dialect 为空的时候根据 Driver 推断
	Dialect string `yaml:"dialect,omitempty"`

	// SlowQueryThreshold 大于 0 才会记录慢查询, 比如 200ms
	SlowQueryThreshold time.Duration `yaml:"slow_query_threshold,omitempty"`
	LogQueries         bool          `yaml:"log_queries,omitempty"`
	// LogArgs SQL 参数可能有敏感数据, 默认不打印
	LogArgs    bool `yaml:"log_args,omitempty"`
	UseReflect bool `yaml:"use_reflect,omitempty"`
}

func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return Parse(data)
}

func Parse(data []byte) (*Config, error) {
	cfg := &Config{}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("orm: 解析配置失败: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate 校验配置, MySQL 的 DSN 会被规范化并且强制 parseTime=true
func (c *Config) Validate() error {
	c.Driver = strings.TrimSpace(c.Driver)
	if c.Driver == "" {
		return ErrMissingDriver
	}
	if c.DSN == "" {
		return ErrMissingDSN
	}
	if _, err := c.dialect(); err != nil {
		return err
	}
	if c.Driver == "mysql" {
		dsn, err := mysql.ParseDSN(c.DSN)
		if err != nil {
			return fmt.Errorf("orm: 非法的 MySQL DSN: %w", err)
		}
		dsn.ParseTime = true
		c.DSN = dsn.FormatDSN()
	}
	return nil
}

func (c *Config) dialect() (orm.Dialect, error) {
	name := c.Dialect
	if name == "" {
		name = c.Driver
	}
	return orm.DialectByName(name)
}

// Options 把配置转换成 orm.DBOption, logger 为 nil 的时候用 slog.Default()
func (c *Config) Options(logger *slog.Logger) ([]orm.DBOption, error) {
	d, err := c.dialect()
	if err != nil {
		return nil, err
	}
	if logger == nil {
		logger = slog.Default()
	}
	opts := []orm.DBOption{
		orm.DBWithDialect(d),
		orm.DBWithLogger(logger),
	}
	if c.UseReflect {
		opts = append(opts, orm.DBUseReflect())
	}
	var mdls []orm.Middleware
	if c.LogQueries {
		mdls = append(mdls, querylog.NewMiddlewareBuilder().
			Logger(logger).LogArgs(c.LogArgs).Build())
	}
	if c.SlowQueryThreshold > 0 {
		mdls = append(mdls, slowquery.NewMiddlewareBuilder(c.SlowQueryThreshold).
			Logger(logger).Build())
	}
	if len(mdls) > 0 {
		opts = append(opts, orm.DBWithMiddlewares(mdls...))
	}
	return opts, nil
}

// Open 按照配置打开数据库, opts 追加在配置生成的选项之后
func Open(c *Config, logger *slog.Logger, opts ...orm.DBOption) (*orm.DB, error) {
	if err := c.Validate(); err != nil {
		return nil, err
	}
	cfgOpts, err := c.Options(logger)
	if err != nil {
		return nil, err
	}
	return orm.Open(c.Driver, c.DSN, append(cfgOpts, opts...)...)
}
