package db

import (
	"fmt"
	"net/url"
	"strings"
	"time"
)

type Config struct {
	Type string
	// DSN, when set, is used verbatim for the client/server engine.
	DSN      string
	Path     string
	Host     string
	Port     string
	Name     string
	User     string
	Password string
	SSLMode  string

	// PoolMin and PoolMax bound the client/server connection pool.
	PoolMin        int32
	PoolMax        int32
	AcquireTimeout time.Duration
}

func (c Config) withDefaults() Config {
	if strings.TrimSpace(c.Path) == "" {
		c.Path = "matchhub.db"
	}
	if c.PoolMin <= 0 {
		c.PoolMin = 5
	}
	if c.PoolMax <= 0 {
		c.PoolMax = 20
	}
	if c.PoolMin > c.PoolMax {
		c.PoolMin = c.PoolMax
	}
	if c.AcquireTimeout <= 0 {
		c.AcquireTimeout = 3 * time.Second
	}
	if strings.TrimSpace(c.SSLMode) == "" {
		c.SSLMode = "disable"
	}
	return c
}

// PostgresDSN renders the connection URL understood by pgxpool.ParseConfig.
func (c Config) PostgresDSN() string {
	if c.DSN != "" {
		return c.DSN
	}
	u := url.URL{
		Scheme: "postgres",
		User:   url.UserPassword(c.User, c.Password),
		Host:   fmt.Sprintf("%s:%s", c.Host, c.Port),
		Path:   "/" + c.Name,
	}
	q := u.Query()
	q.Set("sslmode", c.SSLMode)
	q.Set("timezone", "UTC")
	u.RawQuery = q.Encode()
	return u.String()
}
