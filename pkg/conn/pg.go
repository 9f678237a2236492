// Package conn opens the PostgreSQL pool backing the audit store.
package conn

import (
	"context"
	"net"
	"net/url"
	"strconv"
	"time"

	"github.com/yanun0323/errors"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

const (
	defaultHost    = "localhost"
	defaultPort    = 5432
	defaultSSLMode = "disable"
)

// Option is the "postgres" block of the node config. ConnString wins over
// the individual parts.
type Option struct {
	Host       string            `json:"host"`
	Port       int               `json:"port"`
	User       string            `json:"user"`
	Password   string            `json:"password"`
	Database   string            `json:"database"`
	SSLMode    string            `json:"sslMode"`
	Params     map[string]string `json:"params"`
	ConnString string            `json:"connString"`
	Pool       PoolOption        `json:"pool"`
	// Verbose logs every statement through gorm's logger.
	Verbose bool         `json:"verbose"`
	Config  *gorm.Config `json:"-"`
}

// PoolOption tunes database/sql pooling. Zero fields keep the driver default.
type PoolOption struct {
	MaxOpenConns    int           `json:"maxOpenConns"`
	MaxIdleConns    int           `json:"maxIdleConns"`
	ConnMaxLifetime time.Duration `json:"connMaxLifetime"`
	ConnMaxIdleTime time.Duration `json:"connMaxIdleTime"`
}

// Client owns the gorm handle and its pool.
type Client struct {
	db *gorm.DB
}

// New opens the pool. It does not wait for the server; call Ping for that.
func New(option Option) (*Client, error) {
	cfg := option.Config
	if cfg == nil {
		cfg = &gorm.Config{Logger: logger.Default.LogMode(logger.Warn)}
		if option.Verbose {
			cfg.Logger = logger.Default.LogMode(logger.Info)
		}
	}

	db, err := gorm.Open(postgres.Open(option.dsn()), cfg)
	if err != nil {
		return nil, errors.Wrap(err, "open postgres").With("dsn", option.DSN())
	}
	sqlDB, err := db.DB()
	if err != nil {
		return nil, err
	}
	if p := option.Pool; p.MaxOpenConns > 0 {
		sqlDB.SetMaxOpenConns(p.MaxOpenConns)
	}
	if p := option.Pool; p.MaxIdleConns > 0 {
		sqlDB.SetMaxIdleConns(p.MaxIdleConns)
	}
	if p := option.Pool; p.ConnMaxLifetime > 0 {
		sqlDB.SetConnMaxLifetime(p.ConnMaxLifetime)
	}
	if p := option.Pool; p.ConnMaxIdleTime > 0 {
		sqlDB.SetConnMaxIdleTime(p.ConnMaxIdleTime)
	}
	return &Client{db: db}, nil
}

// DB returns the gorm handle.
func (c *Client) DB() *gorm.DB {
	if c == nil {
		return nil
	}
	return c.db
}

// Ping checks that the server is reachable.
func (c *Client) Ping(ctx context.Context) error {
	sqlDB, err := c.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.PingContext(ctx)
}

// Close closes the pool.
func (c *Client) Close() error {
	if c == nil || c.db == nil {
		return nil
	}
	sqlDB, err := c.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

// DSN returns the connection string with the password masked.
func (opt Option) DSN() string {
	u, err := url.Parse(opt.dsn())
	if err != nil {
		return ""
	}
	return u.Redacted()
}

func (opt Option) dsn() string {
	if opt.ConnString != "" {
		return opt.ConnString
	}

	host, port, sslMode := opt.Host, opt.Port, opt.SSLMode
	if host == "" {
		host = defaultHost
	}
	if port == 0 {
		port = defaultPort
	}
	if sslMode == "" {
		sslMode = defaultSSLMode
	}

	query := make(url.Values, len(opt.Params)+1)
	for k, v := range opt.Params {
		if k != "" {
			query.Set(k, v)
		}
	}
	query.Set("sslmode", sslMode)

	u := url.URL{
		Scheme:   "postgres",
		Host:     net.JoinHostPort(host, strconv.Itoa(port)),
		RawQuery: query.Encode(),
	}
	switch {
	case opt.User != "" && opt.Password != "":
		u.User = url.UserPassword(opt.User, opt.Password)
	case opt.User != "":
		u.User = url.User(opt.User)
	}
	if opt.Database != "" {
		u.Path = "/" + opt.Database
	}
	return u.String()
}
