// Package dburl parses connection URLs of the form
// dialect[+driver]://user:password@host:port/database?options.
package dburl

import (
	"errors"
	"fmt"
	"net"
	"net/url"
	"strconv"
	"strings"

	"github.com/jackc/pgx/v5"
)

const (
	DialectPostgreSQL = "postgresql"
	DialectSQLite     = "sqlite"

	// MemoryDatabase is the SQLite in-memory database name
	MemoryDatabase = ":memory:"
)

// URL is a parsed connection URL
type URL struct {
	Raw      string
	Dialect  string
	Driver   string
	Username string
	Password string
	Host     string
	Port     int
	Database string
	Query    url.Values
}

// Parse parses and validates a connection URL without connecting
func Parse(raw string) (*URL, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil, fmt.Errorf("database URL is empty")
	}

	parsed, err := url.Parse(raw)
	if err != nil {
		return nil, fmt.Errorf("failed to parse database URL: %w", redactErr(err))
	}
	if parsed.Scheme == "" {
		return nil, fmt.Errorf("database URL has no scheme: %s", redact(raw))
	}

	dialect, driver, _ := strings.Cut(strings.ToLower(parsed.Scheme), "+")
	u := &URL{
		Raw:    raw,
		Driver: driver,
		Query:  parsed.Query(),
	}

	switch dialect {
	case "postgresql", "postgres":
		u.Dialect = DialectPostgreSQL
		if err := u.parsePostgres(parsed); err != nil {
			return nil, err
		}
	case "sqlite", "sqlite3":
		u.Dialect = DialectSQLite
		u.parseSQLite(parsed)
	default:
		return nil, fmt.Errorf("unsupported database dialect: %s", dialect)
	}

	return u, nil
}

func (u *URL) parsePostgres(parsed *url.URL) error {
	if parsed.Opaque != "" {
		return fmt.Errorf("malformed database URL: %s", redact(u.Raw))
	}
	if parsed.User != nil {
		u.Username = parsed.User.Username()
		u.Password, _ = parsed.User.Password()
	}
	u.Host = parsed.Hostname()
	if u.Host == "" {
		return fmt.Errorf("database URL has no host: %s", redact(u.Raw))
	}
	u.Port = 5432
	if p := parsed.Port(); p != "" {
		port, err := strconv.Atoi(p)
		if err != nil || port <= 0 || port > 65535 {
			return fmt.Errorf("invalid port in database URL: %s", p)
		}
		u.Port = port
	}
	u.Database = strings.TrimPrefix(parsed.Path, "/")
	if u.Database == "" {
		return fmt.Errorf("database URL has no database name: %s", redact(u.Raw))
	}

	// pgx validates the remaining connection options without dialing
	if _, err := pgx.ParseConfig(u.DSN()); err != nil {
		return fmt.Errorf("invalid PostgreSQL connection string: %w", err)
	}
	return nil
}

func (u *URL) parseSQLite(parsed *url.URL) {
	// sqlite:///app.db is relative, sqlite:////var/app.db absolute
	path := parsed.Path
	if parsed.Opaque != "" {
		path = parsed.Opaque
	}
	if parsed.Host != "" {
		path = parsed.Host + path
	}
	path = strings.TrimPrefix(path, "/")
	if path == "" || path == MemoryDatabase {
		path = MemoryDatabase
	}
	u.Database = path
}

// IsMemory reports whether the URL names an in-memory SQLite database
func (u *URL) IsMemory() bool {
	return u.Dialect == DialectSQLite && u.Database == MemoryDatabase
}

// DSN returns the data source name handed to the database/sql driver
func (u *URL) DSN() string {
	switch u.Dialect {
	case DialectSQLite:
		if len(u.Query) == 0 {
			return u.Database
		}
		if u.IsMemory() {
			return "file::memory:?" + u.Query.Encode()
		}
		return "file:" + u.Database + "?" + u.Query.Encode()
	default:
		dsn := &url.URL{
			Scheme:   "postgres",
			Host:     net.JoinHostPort(u.Host, strconv.Itoa(u.Port)),
			Path:     "/" + u.Database,
			RawQuery: u.Query.Encode(),
		}
		if u.Username != "" {
			if u.Password != "" {
				dsn.User = url.UserPassword(u.Username, u.Password)
			} else {
				dsn.User = url.User(u.Username)
			}
		}
		return dsn.String()
	}
}

// Redacted returns the URL with the password masked
func (u *URL) Redacted() string {
	return redact(u.Raw)
}

// String implements fmt.Stringer with the password masked
func (u *URL) String() string {
	return u.Redacted()
}

func redact(raw string) string {
	parsed, err := url.Parse(raw)
	if err != nil || parsed.User == nil {
		return raw
	}
	if _, has := parsed.User.Password(); !has {
		return raw
	}
	return parsed.Redacted()
}

func redactErr(err error) error {
	var urlErr *url.Error
	if errors.As(err, &urlErr) {
		urlErr.URL = "<redacted>"
	}
	return err
}
