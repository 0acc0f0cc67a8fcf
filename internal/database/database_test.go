package database

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/queryviz/queryviz/internal/config"
)

func TestBuildDSNPostgres(t *testing.T) {
	driver, dsn, err := buildDSN(config.ConnectionConfig{
		Name:     "main",
		DBMS:     "postgresql",
		Host:     "db.example.com",
		Port:     5433,
		User:     "qv",
		Password: "p@ss/word",
		Database: "metrics",
	})
	if err != nil {
		t.Fatal(err)
	}
	if driver != "pgx" {
		t.Errorf("driver = %q, want pgx", driver)
	}
	if !strings.HasPrefix(dsn, "postgres://") {
		t.Errorf("dsn = %q", dsn)
	}
	if !strings.Contains(dsn, "db.example.com:5433") || !strings.Contains(dsn, "/metrics") {
		t.Errorf("dsn = %q", dsn)
	}
	if strings.Contains(dsn, "p@ss/word") {
		t.Errorf("password not escaped in dsn %q", dsn)
	}
}

func TestBuildDSNDefaultPort(t *testing.T) {
	_, dsn, err := buildDSN(config.ConnectionConfig{
		Name: "main", DBMS: "postgres", Host: "localhost", Database: "db",
	})
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(dsn, "localhost:5432") {
		t.Errorf("dsn = %q, want default port 5432", dsn)
	}
}

func TestBuildDSNSQLite(t *testing.T) {
	driver, dsn, err := buildDSN(config.ConnectionConfig{
		Name: "local", DBMS: "sqlite", Database: "/var/lib/qv/metrics.db",
	})
	if err != nil {
		t.Fatal(err)
	}
	if driver != "sqlite3" || dsn != "/var/lib/qv/metrics.db" {
		t.Errorf("got %q %q", driver, dsn)
	}

	if _, _, err := buildDSN(config.ConnectionConfig{Name: "bad", DBMS: "sqlite"}); err == nil {
		t.Error("sqlite without database path should fail")
	}
}

func TestBuildDSNClickHouse(t *testing.T) {
	driver, dsn, err := buildDSN(config.ConnectionConfig{
		Name: "ch", DBMS: "clickhouse", Host: "ch1", User: "default", Database: "metrics",
	})
	if err != nil {
		t.Fatal(err)
	}
	if driver != "clickhouse" || !strings.Contains(dsn, "ch1:9000") {
		t.Errorf("got %q %q", driver, dsn)
	}
}

func TestBuildDSNUnsupported(t *testing.T) {
	_, _, err := buildDSN(config.ConnectionConfig{Name: "x", DBMS: "oracle"})
	if err == nil || !strings.Contains(err.Error(), "unsupported dbms") {
		t.Fatalf("error = %v", err)
	}
}

// fakeConnector lets manager tests control health without a real
// database.
type fakeConnector struct {
	name string

	mu       sync.Mutex
	status   Status
	pingErr  error
	pings    int
	closed   bool
	closeErr error
}

func (f *fakeConnector) Name() string { return f.name }

func (f *fakeConnector) ExecuteQuery(ctx context.Context, query string) ([]string, [][]interface{}, error) {
	return nil, nil, errors.New("not implemented")
}

func (f *fakeConnector) Ping(ctx context.Context) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.pings++
	if f.pingErr != nil {
		f.status = StatusFailed
		return f.pingErr
	}
	f.status = StatusOK
	return nil
}

func (f *fakeConnector) Status() Status {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.status
}

func (f *fakeConnector) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.closed = true
	return f.closeErr
}

func newTestManager(connectors ...*fakeConnector) *Manager {
	m := NewManager(zerolog.Nop())
	for _, c := range connectors {
		m.Add(c)
	}
	return m
}

func TestManagerDefaultConnector(t *testing.T) {
	first := &fakeConnector{name: "first", status: StatusOK}
	second := &fakeConnector{name: "second", status: StatusOK}
	m := newTestManager(first, second)

	c, ok := m.Get("")
	if !ok || c.Name() != "first" {
		t.Fatalf("default connector = %v, %v", c, ok)
	}
	c, ok = m.Get("second")
	if !ok || c.Name() != "second" {
		t.Fatalf("Get(second) = %v, %v", c, ok)
	}
	if _, ok := m.Get("missing"); ok {
		t.Error("Get(missing) should report false")
	}
}

func TestManagerWaitReadyAllHealthy(t *testing.T) {
	a := &fakeConnector{name: "a", status: StatusFailed}
	b := &fakeConnector{name: "b", status: StatusFailed}
	m := newTestManager(a, b)

	m.WaitReady(context.Background(), time.Second, time.Millisecond)

	if a.Status() != StatusOK || b.Status() != StatusOK {
		t.Errorf("statuses = %v %v, want OK", a.Status(), b.Status())
	}
}

func TestManagerWaitReadyGraceExpires(t *testing.T) {
	bad := &fakeConnector{name: "bad", status: StatusFailed, pingErr: errors.New("refused")}
	m := newTestManager(bad)

	start := time.Now()
	m.WaitReady(context.Background(), 30*time.Millisecond, 5*time.Millisecond)

	if bad.Status() != StatusFailed {
		t.Errorf("status = %v, want FAIL", bad.Status())
	}
	if elapsed := time.Since(start); elapsed > 2*time.Second {
		t.Errorf("WaitReady took %v, should give up after grace period", elapsed)
	}
	if bad.pings < 2 {
		t.Errorf("pings = %d, want retries within grace period", bad.pings)
	}
}

func TestManagerRetryFailed(t *testing.T) {
	ok := &fakeConnector{name: "ok", status: StatusOK}
	down := &fakeConnector{name: "down", status: StatusFailed, pingErr: errors.New("refused")}
	back := &fakeConnector{name: "back", status: StatusFailed}
	m := newTestManager(ok, down, back)

	if got := m.RetryFailed(context.Background()); got != 1 {
		t.Errorf("RetryFailed = %d, want 1", got)
	}
	if ok.pings != 0 {
		t.Error("healthy connection should not be pinged by RetryFailed")
	}
	if back.Status() != StatusOK || down.Status() != StatusFailed {
		t.Errorf("statuses after retry: back=%v down=%v", back.Status(), down.Status())
	}
}

func TestManagerStatusesAndClose(t *testing.T) {
	a := &fakeConnector{name: "a", status: StatusOK}
	b := &fakeConnector{name: "b", status: StatusFailed, closeErr: errors.New("boom")}
	m := newTestManager(a, b)

	statuses := m.Statuses()
	if statuses["a"] != StatusOK || statuses["b"] != StatusFailed {
		t.Errorf("Statuses = %v", statuses)
	}

	if err := m.CloseAll(); err == nil {
		t.Error("CloseAll should surface the close error")
	}
	if !a.closed || !b.closed {
		t.Error("CloseAll should close every connector")
	}
}
