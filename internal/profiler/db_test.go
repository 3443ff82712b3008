package profiler_test

import (
	"context"
	"database/sql"
	"database/sql/driver"
	"errors"
	"io"
	"testing"

	"github.com/httpscope/httpscope/internal/profiler"
)

// fakeDriver is an in-memory driver.Driver that answers every query with an
// empty result set and fails statements containing "broken".
type fakeDriver struct{}

func (fakeDriver) Open(string) (driver.Conn, error) { return fakeConn{}, nil }

type fakeConn struct{}

func (fakeConn) Prepare(query string) (driver.Stmt, error) { return fakeStmt{query: query}, nil }
func (fakeConn) Close() error                              { return nil }
func (fakeConn) Begin() (driver.Tx, error)                 { return fakeTx{}, nil }

func (fakeConn) QueryContext(_ context.Context, query string, _ []driver.NamedValue) (driver.Rows, error) {
	if query == "SELECT broken" {
		return nil, errors.New("syntax error")
	}
	return fakeRows{}, nil
}

func (fakeConn) ExecContext(context.Context, string, []driver.NamedValue) (driver.Result, error) {
	return driver.RowsAffected(1), nil
}

type fakeStmt struct{ query string }

func (fakeStmt) Close() error                                    { return nil }
func (fakeStmt) NumInput() int                                   { return 0 }
func (fakeStmt) Exec([]driver.Value) (driver.Result, error)      { return driver.RowsAffected(1), nil }
func (s fakeStmt) Query([]driver.Value) (driver.Rows, error)     { return fakeRows{}, nil }

type fakeRows struct{}

func (fakeRows) Columns() []string              { return nil }
func (fakeRows) Close() error                   { return nil }
func (fakeRows) Next([]driver.Value) error      { return io.EOF }

type fakeTx struct{}

func (fakeTx) Commit() error   { return nil }
func (fakeTx) Rollback() error { return nil }

func TestWrapDriverRecordsQueries(t *testing.T) {
	p := newProfiler(t, profiler.Options{})

	sql.Register("profiled-fake", profiler.WrapDriver(fakeDriver{}, p.Tracker("fake-db")))
	db, err := sql.Open("profiled-fake", "dsn")
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	defer db.Close()

	rows, err := db.QueryContext(t.Context(), "SELECT name FROM widgets")
	if err != nil {
		t.Fatalf("query: %v", err)
	}
	rows.Close()

	if _, err := db.ExecContext(t.Context(), "UPDATE widgets SET n = n + 1"); err != nil {
		t.Fatalf("exec: %v", err)
	}

	if _, err := db.QueryContext(t.Context(), "SELECT broken"); err == nil {
		t.Fatal("expected the broken statement to fail")
	}

	events := p.Pipeline().Queries().Snapshot(0, false)
	if len(events) != 3 {
		t.Fatalf("expected 3 query events, got %d", len(events))
	}
	if events[0].Query != "SELECT name FROM widgets" || !events[0].Success {
		t.Errorf("unexpected first event: %+v", events[0])
	}
	if events[2].Success {
		t.Error("expected the broken statement recorded as a failure")
	}

	v, ok := p.Pipeline().Engines().Get("fake-db")
	if !ok {
		t.Fatal("expected an aggregate bucket for the engine")
	}
	if v.Count != 3 || v.Failures != 1 {
		t.Errorf("expected count 3 with 1 failure, got count %d failures %d", v.Count, v.Failures)
	}
}

// skippingDriver answers every context query/exec with driver.ErrSkip, the
// way real drivers punt parameterized statements back to the prepared path.
type skippingDriver struct{}

func (skippingDriver) Open(string) (driver.Conn, error) { return skippingConn{}, nil }

type skippingConn struct{}

func (skippingConn) Prepare(query string) (driver.Stmt, error) {
	return skippingStmt{query: query}, nil
}
func (skippingConn) Close() error              { return nil }
func (skippingConn) Begin() (driver.Tx, error) { return fakeTx{}, nil }

type skippingStmt struct{ query string }

func (skippingStmt) Close() error                               { return nil }
func (skippingStmt) NumInput() int                              { return -1 }
func (skippingStmt) Exec([]driver.Value) (driver.Result, error) { return driver.RowsAffected(1), nil }
func (skippingStmt) Query([]driver.Value) (driver.Rows, error)  { return fakeRows{}, nil }

func (skippingConn) QueryContext(context.Context, string, []driver.NamedValue) (driver.Rows, error) {
	return nil, driver.ErrSkip
}

func (skippingConn) ExecContext(context.Context, string, []driver.NamedValue) (driver.Result, error) {
	return nil, driver.ErrSkip
}

func TestWrapDriverErrSkipRecordsOnce(t *testing.T) {
	p := newProfiler(t, profiler.Options{})

	sql.Register("profiled-skip", profiler.WrapDriver(skippingDriver{}, p.Tracker("fake-db")))
	db, err := sql.Open("profiled-skip", "dsn")
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	defer db.Close()

	rows, err := db.QueryContext(t.Context(), "SELECT name FROM widgets WHERE id = ?", 7)
	if err != nil {
		t.Fatalf("query: %v", err)
	}
	rows.Close()

	if _, err := db.ExecContext(t.Context(), "UPDATE widgets SET n = ? WHERE id = ?", 1, 7); err != nil {
		t.Fatalf("exec: %v", err)
	}

	events := p.Pipeline().Queries().Snapshot(0, false)
	if len(events) != 2 {
		t.Fatalf("expected one event per executed statement, got %d", len(events))
	}
	if events[0].Query != "SELECT name FROM widgets WHERE id = ?" || !events[0].Success {
		t.Errorf("unexpected first event: %+v", events[0])
	}
	if events[1].Query != "UPDATE widgets SET n = ? WHERE id = ?" {
		t.Errorf("unexpected second event: %+v", events[1])
	}

	if v, ok := p.Pipeline().Engines().Get("fake-db"); !ok || v.Count != 2 {
		t.Errorf("expected engine count 2, got %+v (ok=%v)", v, ok)
	}
}

func TestWrapDriverPreparedStatements(t *testing.T) {
	p := newProfiler(t, profiler.Options{})

	sql.Register("profiled-fake-stmt", profiler.WrapDriver(fakeDriver{}, p.Tracker("fake-db")))
	db, err := sql.Open("profiled-fake-stmt", "dsn")
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	defer db.Close()

	stmt, err := db.Prepare("SELECT id FROM widgets WHERE id = ?")
	if err != nil {
		t.Fatalf("prepare: %v", err)
	}
	rows, err := stmt.Query()
	if err != nil {
		t.Fatalf("stmt query: %v", err)
	}
	rows.Close()
	stmt.Close()

	events := p.Pipeline().Queries().Snapshot(0, false)
	if len(events) == 0 {
		t.Fatal("expected the prepared statement recorded")
	}
	if events[0].Query != "SELECT id FROM widgets WHERE id = ?" {
		t.Errorf("unexpected query text %q", events[0].Query)
	}
}
