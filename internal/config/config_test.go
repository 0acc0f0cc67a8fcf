package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

const validYAML = `
interval: 5s
failed_connections_interval: 1m
initial_grace_period: 30s
grace_period_retry_interval: 5s
db_connection_timeout: 10s
on_rotation_keep_datapoints: 120
on_file_rotation_keep_history: 1h
output_dir: /tmp/qv-out

connections:
  - name: main
    dbms: postgresql
    host: localhost
    port: 5432
    user: qv
    password: secret
    database: metrics

queries:
  - name: Threads connected
    query: SELECT now() AS time, threads FROM status
    columns: [time, threads]
    time_type: timestamp
    interval: 5s
  - name: uptime
    query: SELECT uptime FROM status
    columns: [uptime]
    time_type: elapsed_seconds
    interval: once

charts:
  - title: Connections
    ylabel: threads
    queries:
      - Threads connected
      - query: uptime
        columns: ["uptime:server uptime"]
`

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "queryviz.yaml")
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestLoadValid(t *testing.T) {
	cfg, err := Load(writeConfig(t, validYAML))
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if cfg.Interval != 5*time.Second {
		t.Errorf("Interval = %v, want 5s", cfg.Interval)
	}
	if cfg.KeepDatapoints != 120 {
		t.Errorf("KeepDatapoints = %d, want 120", cfg.KeepDatapoints)
	}
	if cfg.KeepHistory != time.Hour {
		t.Errorf("KeepHistory = %v, want 1h", cfg.KeepHistory)
	}
	if cfg.OutputDir != "/tmp/qv-out" {
		t.Errorf("OutputDir = %q", cfg.OutputDir)
	}

	if len(cfg.Connections) != 1 || cfg.Connections[0].Name != "main" {
		t.Fatalf("Connections = %+v", cfg.Connections)
	}
	if cfg.Connections[0].DBMS != "postgresql" {
		t.Errorf("DBMS = %q", cfg.Connections[0].DBMS)
	}

	if len(cfg.Queries) != 2 {
		t.Fatalf("got %d queries, want 2", len(cfg.Queries))
	}
	q := cfg.Queries[0]
	if q.Name != "Threads connected" {
		t.Errorf("query name = %q", q.Name)
	}
	if !q.HasTimeColumn() {
		t.Error("first query should have a time column")
	}
	if cols := q.MetricColumns(); len(cols) != 1 || cols[0] != "threads" {
		t.Errorf("MetricColumns = %v", cols)
	}
	if q.Schedule.Once || q.Schedule.Every != 5*time.Second {
		t.Errorf("Schedule = %+v", q.Schedule)
	}

	once := cfg.Queries[1]
	if !once.Schedule.Once {
		t.Error("second query should be one-shot")
	}
	if once.HasTimeColumn() {
		t.Error("second query has no time column")
	}

	if len(cfg.Charts) != 1 {
		t.Fatalf("got %d charts, want 1", len(cfg.Charts))
	}
	chart := cfg.Charts[0]
	if len(chart.Queries) != 2 {
		t.Fatalf("chart references %d queries, want 2", len(chart.Queries))
	}
	if chart.Queries[0].Query != "Threads connected" || chart.Queries[0].Columns != nil {
		t.Errorf("string-form ref = %+v", chart.Queries[0])
	}
	if chart.Queries[1].Query != "uptime" || chart.Queries[1].Columns[0] != "uptime:server uptime" {
		t.Errorf("object-form ref = %+v", chart.Queries[1])
	}
	if chart.Type != "line_chart" || chart.Terminal != "png" || chart.LineWidth != 2 ||
		chart.Width != 800 || chart.Height != 600 {
		t.Errorf("chart defaults not applied: %+v", chart)
	}
}

func TestLoadDefaultTimeType(t *testing.T) {
	yaml := strings.Replace(validYAML, "    time_type: timestamp\n", "", 1)
	cfg, err := Load(writeConfig(t, yaml))
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.Queries[0].TimeType != "timestamp" {
		t.Errorf("default TimeType = %q, want timestamp", cfg.Queries[0].TimeType)
	}
}

func TestLoadUnknownTimeType(t *testing.T) {
	yaml := strings.Replace(validYAML, "time_type: timestamp", "time_type: sundial", 1)
	_, err := Load(writeConfig(t, yaml))
	if err == nil || !strings.Contains(err.Error(), "sundial") {
		t.Fatalf("error = %v, want unknown time type", err)
	}
}

func TestLoadDuplicateQueryName(t *testing.T) {
	yaml := strings.Replace(validYAML, "name: uptime", "name: Threads connected", 1)
	_, err := Load(writeConfig(t, yaml))
	if err == nil || !strings.Contains(err.Error(), "duplicate query name") {
		t.Fatalf("error = %v, want duplicate query name", err)
	}
}

func TestLoadChartReferencesUnknownQuery(t *testing.T) {
	yaml := strings.Replace(validYAML, "- Threads connected", "- no such query", 1)
	_, err := Load(writeConfig(t, yaml))
	if err == nil || !strings.Contains(err.Error(), "not found") {
		t.Fatalf("error = %v, want unknown query reference", err)
	}
}

func TestLoadKeepDatapointsMinimum(t *testing.T) {
	yaml := strings.Replace(validYAML, "on_rotation_keep_datapoints: 120", "on_rotation_keep_datapoints: 10", 1)
	_, err := Load(writeConfig(t, yaml))
	if err == nil || !strings.Contains(err.Error(), "at least 60") {
		t.Fatalf("error = %v, want minimum violation", err)
	}
}

func TestLoadMissingCharts(t *testing.T) {
	idx := strings.Index(validYAML, "charts:")
	_, err := Load(writeConfig(t, validYAML[:idx]))
	if err == nil || !strings.Contains(err.Error(), "charts") {
		t.Fatalf("error = %v, want missing charts", err)
	}
}

func TestLoadUnusedQueryWarning(t *testing.T) {
	yaml := strings.Replace(validYAML,
		"      - query: uptime\n        columns: [\"uptime:server uptime\"]\n", "", 1)
	cfg, err := Load(writeConfig(t, yaml))
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	found := false
	for _, w := range cfg.Warnings {
		if strings.Contains(w, "uptime") && strings.Contains(w, "not used") {
			found = true
		}
	}
	if !found {
		t.Errorf("expected unused-query warning, got %v", cfg.Warnings)
	}
}

func TestLoadLegacySingleColumn(t *testing.T) {
	yaml := strings.Replace(validYAML,
		"    columns: [time, threads]", "    column: threads", 1)
	cfg, err := Load(writeConfig(t, yaml))
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	q := cfg.Queries[0]
	if !q.HasTimeColumn() {
		t.Error("legacy column form should imply a time column")
	}
	if cols := q.MetricColumns(); len(cols) != 1 || cols[0] != "threads" {
		t.Errorf("MetricColumns = %v", cols)
	}
}

func TestLoadTimeNotFirstColumn(t *testing.T) {
	yaml := strings.Replace(validYAML,
		"    columns: [time, threads]", "    columns: [threads, time]", 1)
	_, err := Load(writeConfig(t, yaml))
	if err == nil || !strings.Contains(err.Error(), "first column") {
		t.Fatalf("error = %v, want time-position error", err)
	}
}

func TestParseInterval(t *testing.T) {
	cases := []struct {
		in   interface{}
		want time.Duration
	}{
		{"30s", 30 * time.Second},
		{"5m", 5 * time.Minute},
		{"2h", 2 * time.Hour},
		{"1d", 24 * time.Hour},
		{"1w", 7 * 24 * time.Hour},
		{"45", 45 * time.Second},
		{45, 45 * time.Second},
		{1.5, 1500 * time.Millisecond},
	}
	for _, c := range cases {
		got, err := ParseInterval(c.in)
		if err != nil {
			t.Errorf("ParseInterval(%v) error = %v", c.in, err)
			continue
		}
		if got != c.want {
			t.Errorf("ParseInterval(%v) = %v, want %v", c.in, got, c.want)
		}
	}
}

func TestParseIntervalInvalid(t *testing.T) {
	for _, in := range []interface{}{"", "fast", "-5s", nil, "10x"} {
		if _, err := ParseInterval(in); err == nil {
			t.Errorf("ParseInterval(%v) expected error", in)
		}
	}
}

func TestParseSchedule(t *testing.T) {
	s, err := ParseSchedule("once")
	if err != nil {
		t.Fatal(err)
	}
	if !s.Once {
		t.Error("ParseSchedule(once).Once = false")
	}

	s, err = ParseSchedule("10s")
	if err != nil {
		t.Fatal(err)
	}
	if s.Once || s.Every != 10*time.Second {
		t.Errorf("ParseSchedule(10s) = %+v", s)
	}

	if _, err := ParseSchedule(0); err == nil {
		t.Error("zero schedule should be rejected")
	}
}
