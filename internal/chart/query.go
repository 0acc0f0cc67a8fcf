// Package chart renders Gnuplot charts from the data files the query
// streams produce.
package chart

import (
	"fmt"
	"strings"

	"github.com/queryviz/queryviz/internal/datafile"
)

// ColumnMapping selects one data-file column under a display alias.
type ColumnMapping struct {
	Column string
	Alias  string
}

// Query references one query stream from a chart, optionally selecting
// a subset of its columns.
type Query struct {
	Name     string
	mappings []ColumnMapping
}

// NewQuery parses the column specifications for a chart query. Each
// spec is "column" or "column:alias"; an empty spec list means all
// metric columns.
func NewQuery(name string, selected []string) (*Query, error) {
	q := &Query{Name: name}
	for _, spec := range selected {
		column, alias, hasAlias := strings.Cut(spec, ":")
		column = strings.TrimSpace(column)
		if column == "" {
			return nil, fmt.Errorf("error in %s columns configuration: invalid column specification %q: column name not specified", name, spec)
		}
		if hasAlias {
			alias = strings.TrimSpace(alias)
		}
		if alias == "" {
			alias = column
		}
		q.mappings = append(q.mappings, ColumnMapping{Column: column, Alias: alias})
	}
	return q, nil
}

// UsesAllColumns reports whether no column selection was given.
func (q *Query) UsesAllColumns() bool {
	return len(q.mappings) == 0
}

// Series is one plotted line: a 1-based Gnuplot column index in a data
// file, plus its legend title.
type Series struct {
	File   string
	Column int
	Title  string
}

// Series resolves this chart query against the stream's data file,
// returning one series per selected metric column. Column 1 of every
// data file is the time column and cannot be plotted as a metric.
func (q *Query) Series(df *datafile.DataFile) ([]Series, error) {
	metrics := df.Columns()
	if len(metrics) == 0 {
		return nil, fmt.Errorf("error in %s columns configuration: no columns found in data file", q.Name)
	}

	var series []Series
	if q.UsesAllColumns() {
		for i, col := range metrics {
			series = append(series, Series{
				File:   df.FilePath(),
				Column: i + 2,
				Title:  q.Name + "-" + col,
			})
		}
		return series, nil
	}

	for _, m := range q.mappings {
		if m.Column == "time" {
			return nil, fmt.Errorf("error in %s columns configuration: cannot select 'time' column as a metric", q.Name)
		}
		idx := -1
		for i, col := range metrics {
			if col == m.Column {
				idx = i
				break
			}
		}
		if idx < 0 {
			return nil, fmt.Errorf("error in %s columns configuration: column %q not found. Available columns: time, %s",
				q.Name, m.Column, strings.Join(metrics, ", "))
		}
		series = append(series, Series{
			File:   df.FilePath(),
			Column: idx + 2,
			Title:  m.Alias,
		})
	}
	return series, nil
}
