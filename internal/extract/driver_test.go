package extract_test

import (
	"context"
	"database/sql"
	"database/sql/driver"
	"errors"
	"io"
	"strconv"
	"strings"
)

// fakeSource backs a database/sql handle with an in-memory table whose
// first column is an int64 key in ascending order. It understands just
// enough of the generated chunk queries (the FETCH FIRST limit and the
// keyset bind) to serve successive windows. Setting failAfter injects a
// read error after that many rows of the next query, then clears itself.
type fakeSource struct {
	cols      []string
	rows      [][]driver.Value
	failAfter int
	queries   int
}

func newFakeDB(src *fakeSource) *sql.DB {
	return sql.OpenDB(fakeConnector{src})
}

type fakeConnector struct{ src *fakeSource }

func (c fakeConnector) Connect(context.Context) (driver.Conn, error) {
	return &fakeConn{src: c.src}, nil
}

func (c fakeConnector) Driver() driver.Driver { return fakeDriver{} }

type fakeDriver struct{}

func (fakeDriver) Open(string) (driver.Conn, error) {
	return nil, errors.New("open via connector only")
}

type fakeConn struct{ src *fakeSource }

func (c *fakeConn) Prepare(string) (driver.Stmt, error) {
	return nil, errors.New("prepare unsupported")
}

func (c *fakeConn) Close() error { return nil }

func (c *fakeConn) Begin() (driver.Tx, error) {
	return nil, errors.New("transactions unsupported")
}

func (c *fakeConn) QueryContext(_ context.Context, query string, args []driver.NamedValue) (driver.Rows, error) {
	c.src.queries++

	limit := len(c.src.rows)
	if i := strings.Index(query, "FETCH FIRST "); i >= 0 {
		rest := query[i+len("FETCH FIRST "):]
		if j := strings.IndexByte(rest, ' '); j >= 0 {
			if n, err := strconv.Atoi(rest[:j]); err == nil {
				limit = n
			}
		}
	}
	inclusive := strings.Contains(query, ">=")

	var selected [][]driver.Value
	for _, row := range c.src.rows {
		if len(args) > 0 {
			bound := args[0].Value.(int64)
			key := row[0].(int64)
			if inclusive {
				if key < bound {
					continue
				}
			} else if key <= bound {
				continue
			}
		}
		selected = append(selected, row)
		if len(selected) == limit {
			break
		}
	}

	failAfter := -1
	if c.src.failAfter > 0 {
		failAfter = c.src.failAfter
		c.src.failAfter = 0
	}
	return &fakeRows{cols: c.src.cols, rows: selected, failAfter: failAfter}, nil
}

type fakeRows struct {
	cols      []string
	rows      [][]driver.Value
	pos       int
	failAfter int
}

func (r *fakeRows) Columns() []string { return r.cols }

func (r *fakeRows) Close() error { return nil }

func (r *fakeRows) Next(dest []driver.Value) error {
	if r.failAfter >= 0 && r.pos == r.failAfter {
		return errors.New("connection reset by peer")
	}
	if r.pos >= len(r.rows) {
		return io.EOF
	}
	copy(dest, r.rows[r.pos])
	r.pos++
	return nil
}
