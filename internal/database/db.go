package database

import (
	"context"
	"database/sql"
	"fmt"
	"net"
	"time"

	"github.com/go-sql-driver/mysql"
)

// Options describes how to reach the MySQL server.
type Options struct {
	User, Pass string
	Host, Port string
	Name       string
	MaxConns   int // defaults to 25
}

// Config builds the driver configuration.  ParseTime maps DATETIME to
// time.Time in UTC.  utf8mb4_bin selects the utf8mb4 charset and makes
// fantasy name comparisons case-sensitive.
func (o Options) Config() *mysql.Config {
	cfg := mysql.NewConfig()
	cfg.User = o.User
	cfg.Passwd = o.Pass
	cfg.Net = "tcp"
	cfg.Addr = net.JoinHostPort(o.Host, o.Port)
	cfg.DBName = o.Name
	cfg.Collation = "utf8mb4_bin"
	cfg.ParseTime = true
	cfg.Loc = time.UTC
	return cfg
}

// DSN renders Config as a data source name.
func (o Options) DSN() string { return o.Config().FormatDSN() }

// Open connects to MySQL and verifies the connection.
func Open(ctx context.Context, o Options) (*sql.DB, error) {
	connector, err := mysql.NewConnector(o.Config())
	if err != nil {
		return nil, fmt.Errorf("mysql config: %w", err)
	}
	db := sql.OpenDB(connector)

	maxConns := o.MaxConns
	if maxConns <= 0 {
		maxConns = 25
	}
	db.SetMaxOpenConns(maxConns)
	db.SetMaxIdleConns(maxConns)
	db.SetConnMaxLifetime(30 * time.Minute)

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}
	return db, nil
}
