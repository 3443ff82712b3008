package profiler

import (
	"context"
	"database/sql/driver"
	"errors"
)

// Instrumentation is the capability a database adapter implements to feed the
// profiler. Adapters bracket every statement with the pair; the profiler
// never depends on a concrete client type.
type Instrumentation interface {
	// BeforeQuery marks the start of a statement; the returned hook records
	// it once the statement completes.
	BeforeQuery(ctx context.Context, queryText string) func(err error)
}

var _ Instrumentation = (*QueryTracker)(nil)

// WrapDriver returns a driver.Driver that times every query and exec through
// the tracker. Register the result under a fresh name with sql.Register,
// then sql.Open that name as usual.
func WrapDriver(d driver.Driver, t *QueryTracker) driver.Driver {
	return &profiledDriver{inner: d, tracker: t}
}

type profiledDriver struct {
	inner   driver.Driver
	tracker *QueryTracker
}

func (d *profiledDriver) Open(name string) (driver.Conn, error) {
	conn, err := d.inner.Open(name)
	if err != nil {
		return nil, err
	}
	return &profiledConn{inner: conn, tracker: d.tracker}, nil
}

type profiledConn struct {
	inner   driver.Conn
	tracker *QueryTracker
}

func (c *profiledConn) Prepare(queryText string) (driver.Stmt, error) {
	stmt, err := c.inner.Prepare(queryText)
	if err != nil {
		return nil, err
	}
	return &profiledStmt{inner: stmt, queryText: queryText, tracker: c.tracker}, nil
}

func (c *profiledConn) Close() error { return c.inner.Close() }

func (c *profiledConn) Begin() (driver.Tx, error) {
	return c.inner.Begin()
}

func (c *profiledConn) BeginTx(ctx context.Context, opts driver.TxOptions) (driver.Tx, error) {
	if b, ok := c.inner.(driver.ConnBeginTx); ok {
		return b.BeginTx(ctx, opts)
	}
	return c.inner.Begin()
}

func (c *profiledConn) QueryContext(ctx context.Context, queryText string, args []driver.NamedValue) (driver.Rows, error) {
	q, ok := c.inner.(driver.QueryerContext)
	if !ok {
		return nil, driver.ErrSkip
	}
	done := c.tracker.BeforeQuery(ctx, queryText)
	rows, err := q.QueryContext(ctx, queryText, args)
	if errors.Is(err, driver.ErrSkip) {
		// Nothing executed; database/sql retries through Prepare, where
		// profiledStmt records the statement.
		return nil, err
	}
	done(err)
	return rows, err
}

func (c *profiledConn) ExecContext(ctx context.Context, queryText string, args []driver.NamedValue) (driver.Result, error) {
	e, ok := c.inner.(driver.ExecerContext)
	if !ok {
		return nil, driver.ErrSkip
	}
	done := c.tracker.BeforeQuery(ctx, queryText)
	res, err := e.ExecContext(ctx, queryText, args)
	if errors.Is(err, driver.ErrSkip) {
		return nil, err
	}
	done(err)
	return res, err
}

func (c *profiledConn) Ping(ctx context.Context) error {
	if p, ok := c.inner.(driver.Pinger); ok {
		return p.Ping(ctx)
	}
	return nil
}

// profiledStmt times prepared-statement execution; this is the path taken
// when the underlying driver has no context-aware queryer or execer.
type profiledStmt struct {
	inner     driver.Stmt
	queryText string
	tracker   *QueryTracker
}

func (s *profiledStmt) Close() error  { return s.inner.Close() }
func (s *profiledStmt) NumInput() int { return s.inner.NumInput() }

func (s *profiledStmt) Exec(args []driver.Value) (driver.Result, error) {
	done := s.tracker.BeforeQuery(context.Background(), s.queryText)
	res, err := s.inner.Exec(args)
	done(err)
	return res, err
}

func (s *profiledStmt) Query(args []driver.Value) (driver.Rows, error) {
	done := s.tracker.BeforeQuery(context.Background(), s.queryText)
	rows, err := s.inner.Query(args)
	done(err)
	return rows, err
}
