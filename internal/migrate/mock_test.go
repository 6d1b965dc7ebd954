package migrate

import (
	"context"
	"database/sql"
	"errors"
)

// nopConn satisfies Conn for configuration tests; it never connects
type nopConn struct{}

func (n *nopConn) BeginTx(ctx context.Context, opts *sql.TxOptions) (*sql.Tx, error) {
	return nil, errors.New("not connected")
}

func (n *nopConn) ExecContext(ctx context.Context, query string, args ...interface{}) (sql.Result, error) {
	return nil, errors.New("not connected")
}

func (n *nopConn) QueryContext(ctx context.Context, query string, args ...interface{}) (*sql.Rows, error) {
	return nil, errors.New("not connected")
}
