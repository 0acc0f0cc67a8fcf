// Package config loads and validates the queryviz YAML configuration:
// database connections, query streams, charts, and global settings.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/queryviz/queryviz/internal/temporal"
)

// MinKeepDatapoints is the smallest allowed rotation window, in points.
const MinKeepDatapoints = 60

// Config holds all configuration for queryviz.
type Config struct {
	// Global query scheduling and connection handling.
	Interval                  time.Duration // default query interval
	FailedConnectionsInterval time.Duration
	InitialGracePeriod        time.Duration
	GracePeriodRetryInterval  time.Duration
	DBConnectionTimeout       time.Duration

	// Data file rotation.
	KeepDatapoints int           // on_rotation_keep_datapoints
	KeepHistory    time.Duration // on_file_rotation_keep_history (timestamp streams)

	OutputDir      string
	RenderSchedule string // cron spec for chart rendering

	Log    LogConfig
	Server ServerConfig

	Connections []ConnectionConfig
	Queries     []QueryConfig
	Charts      []ChartConfig

	// Warnings are non-fatal findings (e.g. unused queries) for the
	// caller to log.
	Warnings []string
}

type LogConfig struct {
	Level  string
	Format string
}

// ServerConfig configures the optional status HTTP server.
type ServerConfig struct {
	Enabled bool
	Host    string
	Port    int
}

// ConnectionConfig describes one database connection.
type ConnectionConfig struct {
	Name     string `mapstructure:"name"`
	DBMS     string `mapstructure:"dbms"`
	Host     string `mapstructure:"host"`
	Port     int    `mapstructure:"port"`
	User     string `mapstructure:"user"`
	Password string `mapstructure:"password"`
	Database string `mapstructure:"database"`
}

// QueryConfig describes one query stream.
type QueryConfig struct {
	Name        string
	SQL         string
	Connection  string // empty means the default (first) connection
	Description string
	Schedule    Schedule
	TimeType    string
	// Columns as configured, possibly with a leading "time".
	Columns []string
}

// HasTimeColumn reports whether the query result carries its own time
// column (configured as a leading "time" entry).
func (q QueryConfig) HasTimeColumn() bool {
	return len(q.Columns) > 0 && q.Columns[0] == "time"
}

// MetricColumns returns the configured columns without the leading
// "time" entry.
func (q QueryConfig) MetricColumns() []string {
	if q.HasTimeColumn() {
		return q.Columns[1:]
	}
	return q.Columns
}

// ChartQueryRef references a query from a chart, optionally selecting
// specific columns ("col" or "col:alias").
type ChartQueryRef struct {
	Query   string
	Columns []string
}

// ChartConfig describes one rendered chart.
type ChartConfig struct {
	Title       string
	Type        string
	YLabel      string
	XLabel      string
	Terminal    string
	OutputFile  string
	KeyPosition string
	LineWidth   int
	Width       int
	Height      int
	Queries     []ChartQueryRef
}

// Load reads and validates the configuration file at path. An empty
// path falls back to queryviz.yaml in the working directory or
// /etc/queryviz/.
func Load(path string) (*Config, error) {
	v := viper.New()
	setDefaults(v)

	v.SetEnvPrefix("QUERYVIZ")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName("queryviz")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		v.AddConfigPath("/etc/queryviz/")
	}

	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("failed to read config: %w", err)
	}

	cfg := &Config{
		OutputDir:      v.GetString("output_dir"),
		RenderSchedule: v.GetString("render_schedule"),
		Log: LogConfig{
			Level:  v.GetString("log.level"),
			Format: v.GetString("log.format"),
		},
		Server: ServerConfig{
			Enabled: v.GetBool("server.enabled"),
			Host:    v.GetString("server.host"),
			Port:    v.GetInt("server.port"),
		},
	}

	if err := cfg.parseGlobals(v); err != nil {
		return nil, err
	}
	if err := cfg.parseConnections(v); err != nil {
		return nil, err
	}
	if err := cfg.parseQueries(v); err != nil {
		return nil, err
	}
	if err := cfg.parseCharts(v); err != nil {
		return nil, err
	}

	return cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("interval", "10s")
	v.SetDefault("failed_connections_interval", "1m")
	v.SetDefault("initial_grace_period", "30s")
	v.SetDefault("grace_period_retry_interval", "5s")
	v.SetDefault("db_connection_timeout", "10s")
	v.SetDefault("on_rotation_keep_datapoints", 1000)
	v.SetDefault("on_file_rotation_keep_history", 0)
	v.SetDefault("output_dir", "./output")
	v.SetDefault("render_schedule", "@every 30s")

	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")

	v.SetDefault("server.enabled", true)
	v.SetDefault("server.host", "0.0.0.0")
	v.SetDefault("server.port", 8080)
}

func (c *Config) parseGlobals(v *viper.Viper) error {
	intervals := []struct {
		key  string
		dest *time.Duration
	}{
		{"interval", &c.Interval},
		{"failed_connections_interval", &c.FailedConnectionsInterval},
		{"initial_grace_period", &c.InitialGracePeriod},
		{"grace_period_retry_interval", &c.GracePeriodRetryInterval},
		{"db_connection_timeout", &c.DBConnectionTimeout},
		{"on_file_rotation_keep_history", &c.KeepHistory},
	}
	for _, it := range intervals {
		d, err := ParseInterval(v.Get(it.key))
		if err != nil {
			return fmt.Errorf("invalid %s: %w", it.key, err)
		}
		*it.dest = d
	}

	if c.Interval < time.Second {
		return fmt.Errorf("global interval %v is too low, minimum is 1s", c.Interval)
	}
	if c.DBConnectionTimeout <= 0 {
		return fmt.Errorf("db_connection_timeout must be positive")
	}

	c.KeepDatapoints = v.GetInt("on_rotation_keep_datapoints")
	if c.KeepDatapoints < MinKeepDatapoints {
		return fmt.Errorf("on_rotation_keep_datapoints must be at least %d, got %d",
			MinKeepDatapoints, c.KeepDatapoints)
	}
	return nil
}

func (c *Config) parseConnections(v *viper.Viper) error {
	if err := v.UnmarshalKey("connections", &c.Connections); err != nil {
		return fmt.Errorf("invalid connections section: %w", err)
	}
	if len(c.Connections) == 0 {
		return fmt.Errorf("at least one connection must be specified")
	}

	seen := make(map[string]bool)
	for i, conn := range c.Connections {
		if conn.Name == "" {
			return fmt.Errorf("connection %d: 'name' is required", i)
		}
		if seen[conn.Name] {
			return fmt.Errorf("connection %d: duplicate connection name %q", i, conn.Name)
		}
		seen[conn.Name] = true
		if conn.DBMS == "" {
			return fmt.Errorf("connection %q: 'dbms' is required", conn.Name)
		}
	}
	return nil
}

func (c *Config) parseQueries(v *viper.Viper) error {
	raw, ok := v.Get("queries").([]interface{})
	if !ok || len(raw) == 0 {
		return fmt.Errorf("at least one query must be specified")
	}

	connNames := make(map[string]bool, len(c.Connections))
	for _, conn := range c.Connections {
		connNames[conn.Name] = true
	}

	seen := make(map[string]bool)
	for i, entry := range raw {
		m, ok := entry.(map[string]interface{})
		if !ok {
			return fmt.Errorf("query %d: must be a mapping", i)
		}

		q := QueryConfig{
			Name:        stringField(m, "name"),
			SQL:         stringField(m, "query"),
			Connection:  stringField(m, "connection"),
			Description: stringField(m, "description"),
			TimeType:    stringField(m, "time_type"),
		}
		if q.Name == "" {
			return fmt.Errorf("query %d: 'name' is required", i)
		}
		if seen[q.Name] {
			return fmt.Errorf("query %d: duplicate query name %q", i, q.Name)
		}
		seen[q.Name] = true
		if q.SQL == "" {
			return fmt.Errorf("query %q: 'query' is required", q.Name)
		}
		if q.Connection != "" && !connNames[q.Connection] {
			return fmt.Errorf("query %q: connection %q not found", q.Name, q.Connection)
		}

		if q.TimeType == "" {
			q.TimeType = temporal.TypeTimestamp
		}
		if !temporal.Validate(q.TimeType) {
			return fmt.Errorf("query %q: %w: %q", q.Name, temporal.ErrUnsupportedType, q.TimeType)
		}

		if rawInterval, present := m["interval"]; present {
			sched, err := ParseSchedule(rawInterval)
			if err != nil {
				return fmt.Errorf("query %q: %w", q.Name, err)
			}
			q.Schedule = sched
		} else {
			q.Schedule = Schedule{Every: c.Interval}
		}

		q.Columns = columnsField(m)
		if len(q.Columns) == 0 {
			q.Columns = []string{"value"}
		}
		for j, col := range q.Columns {
			if col == "time" && j != 0 {
				return fmt.Errorf("query %q: 'time' must be the first column", q.Name)
			}
		}
		if len(q.MetricColumns()) == 0 {
			return fmt.Errorf("query %q: at least one metric column is required", q.Name)
		}

		c.Queries = append(c.Queries, q)
	}
	return nil
}

func (c *Config) parseCharts(v *viper.Viper) error {
	raw, ok := v.Get("charts").([]interface{})
	if !ok || len(raw) == 0 {
		return fmt.Errorf("the 'charts' list cannot be empty")
	}

	queryNames := make(map[string]bool, len(c.Queries))
	unused := make(map[string]bool, len(c.Queries))
	for _, q := range c.Queries {
		queryNames[q.Name] = true
		unused[q.Name] = true
	}

	for i, entry := range raw {
		m, ok := entry.(map[string]interface{})
		if !ok {
			return fmt.Errorf("chart %d: must be a mapping", i)
		}

		chart := ChartConfig{
			Title:       stringField(m, "title"),
			Type:        stringField(m, "type"),
			YLabel:      stringField(m, "ylabel"),
			XLabel:      stringField(m, "xlabel"),
			Terminal:    stringField(m, "terminal"),
			OutputFile:  stringField(m, "output_file"),
			KeyPosition: stringField(m, "key_position"),
			LineWidth:   intField(m, "line_width"),
			Width:       intField(m, "chart_width"),
			Height:      intField(m, "chart_height"),
		}
		if chart.YLabel == "" {
			return fmt.Errorf("chart %d: 'ylabel' is required", i)
		}
		if chart.Title == "" {
			chart.Title = fmt.Sprintf("Chart #%d", i)
		}
		if chart.Type == "" {
			chart.Type = "line_chart"
		}
		if chart.Terminal == "" {
			chart.Terminal = "png"
		}
		if chart.KeyPosition == "" {
			chart.KeyPosition = "outside right top"
		}
		if chart.LineWidth <= 0 {
			chart.LineWidth = 2
		}
		if chart.Width <= 0 {
			chart.Width = 800
		}
		if chart.Height <= 0 {
			chart.Height = 600
		}

		refs, present := m["queries"]
		if !present {
			return fmt.Errorf("chart %d: 'queries' field is required", i)
		}
		refList, ok := refs.([]interface{})
		if !ok {
			return fmt.Errorf("chart %d: 'queries' must be a list", i)
		}
		if len(refList) == 0 {
			c.Warnings = append(c.Warnings, fmt.Sprintf("chart %d has an empty query list", i))
		}

		for j, ref := range refList {
			cq, err := parseChartQueryRef(ref)
			if err != nil {
				return fmt.Errorf("chart %d, query %d: %w", i, j, err)
			}
			if !queryNames[cq.Query] {
				return fmt.Errorf("chart %d, query %d: query %q not found", i, j, cq.Query)
			}
			delete(unused, cq.Query)
			chart.Queries = append(chart.Queries, cq)
		}

		c.Charts = append(c.Charts, chart)
	}

	for name := range unused {
		c.Warnings = append(c.Warnings, fmt.Sprintf("query %q is not used by any chart", name))
	}
	return nil
}

// parseChartQueryRef accepts both the string form ("query-name", all
// columns) and the object form ({query: name, columns: [...]}).
func parseChartQueryRef(ref interface{}) (ChartQueryRef, error) {
	switch r := ref.(type) {
	case string:
		if r == "" {
			return ChartQueryRef{}, fmt.Errorf("query name cannot be empty")
		}
		return ChartQueryRef{Query: r}, nil
	case map[string]interface{}:
		name := stringField(r, "query")
		if name == "" {
			return ChartQueryRef{}, fmt.Errorf("query object must have a 'query' field")
		}
		cq := ChartQueryRef{Query: name}
		if raw, present := r["columns"]; present {
			cols, ok := raw.([]interface{})
			if !ok || len(cols) == 0 {
				return ChartQueryRef{}, fmt.Errorf("'columns' must be a non-empty list")
			}
			for _, col := range cols {
				s, ok := col.(string)
				if !ok || strings.TrimSpace(s) == "" {
					return ChartQueryRef{}, fmt.Errorf("column specification must be a non-empty string")
				}
				cq.Columns = append(cq.Columns, s)
			}
		}
		return cq, nil
	default:
		return ChartQueryRef{}, fmt.Errorf("query must be a string or object, got %T", ref)
	}
}

func stringField(m map[string]interface{}, key string) string {
	if v, ok := m[key]; ok && v != nil {
		return fmt.Sprint(v)
	}
	return ""
}

func intField(m map[string]interface{}, key string) int {
	switch v := m[key].(type) {
	case int:
		return v
	case int64:
		return int(v)
	case float64:
		return int(v)
	}
	return 0
}

func columnsField(m map[string]interface{}) []string {
	// Legacy single-column form.
	if col := stringField(m, "column"); col != "" {
		return []string{"time", col}
	}
	raw, ok := m["columns"].([]interface{})
	if !ok {
		return nil
	}
	cols := make([]string, 0, len(raw))
	for _, c := range raw {
		cols = append(cols, fmt.Sprint(c))
	}
	return cols
}
