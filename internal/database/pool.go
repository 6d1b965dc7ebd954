package database

import (
	"database/sql"
	"fmt"
	"strconv"
	"strings"
	"time"
)

// PoolClass selects how connections are reused
type PoolClass string

const (
	// NullPool opens a fresh connection for every checkout and closes it on
	// release
	NullPool PoolClass = "null"
	// QueuePool keeps up to PoolSize idle connections and allows
	// PoolSize+MaxOverflow open connections
	QueuePool PoolClass = "queue"
)

// Options configure an engine
type Options struct {
	Pool           PoolClass
	PoolSize       int
	MaxOverflow    int
	Recycle        time.Duration
	ConnectTimeout time.Duration
}

// ParsePoolClass parses a pool class name
func ParsePoolClass(s string) (PoolClass, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "null", "nullpool":
		return NullPool, nil
	case "queue", "queuepool":
		return QueuePool, nil
	default:
		return "", fmt.Errorf("unknown pool class: %s", s)
	}
}

// optionsFromSection reads the prefixed options poolclass, pool_size,
// max_overflow, pool_recycle and connect_timeout
func optionsFromSection(section map[string]string, prefix string) (Options, error) {
	var opts Options

	if v, ok := section[prefix+"poolclass"]; ok && v != "" {
		pool, err := ParsePoolClass(v)
		if err != nil {
			return opts, err
		}
		opts.Pool = pool
	}

	ints := []struct {
		key  string
		dest *int
	}{
		{key: "pool_size", dest: &opts.PoolSize},
		{key: "max_overflow", dest: &opts.MaxOverflow},
	}
	for _, item := range ints {
		v, ok := section[prefix+item.key]
		if !ok || v == "" {
			continue
		}
		n, err := strconv.Atoi(v)
		if err != nil {
			return opts, fmt.Errorf("invalid %s%s %q: %w", prefix, item.key, v, err)
		}
		*item.dest = n
	}

	durations := []struct {
		key  string
		dest *time.Duration
	}{
		{key: "pool_recycle", dest: &opts.Recycle},
		{key: "connect_timeout", dest: &opts.ConnectTimeout},
	}
	for _, item := range durations {
		v, ok := section[prefix+item.key]
		if !ok || v == "" {
			continue
		}
		seconds, err := strconv.Atoi(v)
		if err != nil {
			return opts, fmt.Errorf("invalid %s%s %q: %w", prefix, item.key, v, err)
		}
		*item.dest = time.Duration(seconds) * time.Second
	}

	return opts, nil
}

// merge returns opts with every non-zero field of overrides applied
func (opts Options) merge(overrides Options) Options {
	if overrides.Pool != "" {
		opts.Pool = overrides.Pool
	}
	if overrides.PoolSize != 0 {
		opts.PoolSize = overrides.PoolSize
	}
	if overrides.MaxOverflow != 0 {
		opts.MaxOverflow = overrides.MaxOverflow
	}
	if overrides.Recycle != 0 {
		opts.Recycle = overrides.Recycle
	}
	if overrides.ConnectTimeout != 0 {
		opts.ConnectTimeout = overrides.ConnectTimeout
	}
	return opts
}

// configureConnectionPool applies the pool class to db
func configureConnectionPool(db *sql.DB, opts Options) {
	switch opts.Pool {
	case QueuePool:
		// a pool size of zero means no limit
		if opts.PoolSize > 0 {
			maxOverflow := opts.MaxOverflow
			if maxOverflow < 0 {
				maxOverflow = 0
			}
			db.SetMaxOpenConns(opts.PoolSize + maxOverflow)
			db.SetMaxIdleConns(opts.PoolSize)
		}
		if opts.Recycle > 0 {
			db.SetConnMaxLifetime(opts.Recycle)
		}
	default:
		// released connections are closed immediately
		db.SetMaxIdleConns(0)
	}
}
