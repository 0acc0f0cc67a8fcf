// Package runner drives the query streams: one worker per recurring
// query, a one-shot pass for "once" queries, connection retries, and
// scheduled chart rendering.
package runner

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"github.com/queryviz/queryviz/internal/chart"
	"github.com/queryviz/queryviz/internal/config"
	"github.com/queryviz/queryviz/internal/database"
	"github.com/queryviz/queryviz/internal/datafile"
	"github.com/queryviz/queryviz/internal/temporal"
)

// Runner owns the worker goroutines for all configured queries and the
// chart rendering schedule.
type Runner struct {
	cfg        *config.Config
	manager    *database.Manager
	files      *datafile.FileSet
	generators []*chart.Generator
	logger     zerolog.Logger

	cron   *cron.Cron
	cancel context.CancelFunc
	group  *errgroup.Group

	// renderMu serializes render cycles: a cron tick can fire while a
	// slow previous render is still running, and the shutdown path
	// renders once more after the workers stop.
	renderMu sync.Mutex
	// Set once gnuplot has been reported missing, to avoid a warning
	// on every render cycle.
	gnuplotMissing bool
}

func New(cfg *config.Config, manager *database.Manager, files *datafile.FileSet,
	generators []*chart.Generator, logger zerolog.Logger) *Runner {
	return &Runner{
		cfg:        cfg,
		manager:    manager,
		files:      files,
		generators: generators,
		logger:     logger,
	}
}

// Start launches all workers. It returns once everything is running;
// use Stop to shut down and collect errors.
func (r *Runner) Start(ctx context.Context) error {
	ctx, r.cancel = context.WithCancel(ctx)
	r.group, ctx = errgroup.WithContext(ctx)

	recurring := 0
	var onceQueries []config.QueryConfig
	for _, q := range r.cfg.Queries {
		if q.Schedule.Once {
			onceQueries = append(onceQueries, q)
			continue
		}
		q := q
		r.group.Go(func() error {
			r.runStream(ctx, q)
			return nil
		})
		recurring++
	}
	r.logger.Info().Int("streams", recurring).Msg("Started query workers")

	if len(onceQueries) > 0 {
		r.group.Go(func() error {
			r.runOnceQueries(ctx, onceQueries)
			return nil
		})
		r.logger.Info().Int("queries", len(onceQueries)).Msg("Started one-shot query worker")
	}

	r.group.Go(func() error {
		r.retryLoop(ctx)
		return nil
	})

	r.cron = cron.New()
	if _, err := r.cron.AddFunc(r.cfg.RenderSchedule, func() {
		r.RenderCharts(ctx)
	}); err != nil {
		r.cancel()
		return fmt.Errorf("invalid render_schedule %q: %w", r.cfg.RenderSchedule, err)
	}
	r.cron.Start()

	return nil
}

// Stop cancels all workers and waits for them to finish. The final
// chart render has already happened or is skipped; data files are
// closed by the caller.
func (r *Runner) Stop() error {
	if r.cancel != nil {
		r.cancel()
	}
	if r.cron != nil {
		<-r.cron.Stop().Done()
	}
	if r.group != nil {
		return r.group.Wait()
	}
	return nil
}

// runStream executes one recurring query until the context is
// cancelled. Failures are logged and the stream keeps its schedule.
func (r *Runner) runStream(ctx context.Context, q config.QueryConfig) {
	df := r.files.Get(q.Name)
	if df == nil {
		r.logger.Error().Str("query", q.Name).Msg("No data file registered for stream")
		return
	}
	if q.TimeType == temporal.TypeElapsedSeconds {
		df.MarkStarted(time.Now())
	}

	log := r.logger.With().Str("query", q.Name).Logger()

	ticker := time.NewTicker(q.Schedule.Every)
	defer ticker.Stop()

	for {
		// One correlation id per execution, shared by every log line
		// the execution emits.
		execLog := log.With().Str("run_id", uuid.NewString()).Logger()
		if err := r.executeStream(ctx, q, df, execLog); err != nil {
			execLog.Error().Err(err).Msg("Query execution failed")
		}
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

// executeStream runs one iteration of a recurring query and writes its
// first result row to the stream's data file.
func (r *Runner) executeStream(ctx context.Context, q config.QueryConfig, df *datafile.DataFile, log zerolog.Logger) error {
	conn, ok := r.manager.Get(q.Connection)
	if !ok {
		return fmt.Errorf("connection %q not found", q.Connection)
	}
	if conn.Status() == database.StatusFailed {
		return nil
	}

	columns, rows, err := conn.ExecuteQuery(ctx, q.SQL)
	if err != nil {
		return err
	}
	if len(rows) == 0 {
		log.Warn().Msg("Query returned no results")
		return nil
	}

	values, err := mapValues(q, columns, rows[0])
	if err != nil {
		return err
	}
	rotated, err := df.WriteDataPoint(values)
	if err != nil {
		return err
	}
	log.Debug().Int("points", df.PointCount()).Msg("Data point written")
	if rotated {
		log.Debug().Int("points", df.PointCount()).Msg("Data file rotated")
	}
	return nil
}

// runOnceQueries executes every one-shot query whose data file does
// not already exist. Unlike recurring streams, all result rows are
// written, and the file is closed immediately after.
func (r *Runner) runOnceQueries(ctx context.Context, queries []config.QueryConfig) {
	for _, q := range queries {
		if ctx.Err() != nil {
			return
		}
		if err := r.executeOnce(ctx, q); err != nil {
			r.logger.Error().Err(err).Str("query", q.Name).Msg("One-shot query failed")
		}
	}
	r.logger.Info().Msg("Finished one-shot queries")
}

func (r *Runner) executeOnce(ctx context.Context, q config.QueryConfig) error {
	df := r.files.Get(q.Name)
	if df == nil {
		return fmt.Errorf("no data file registered")
	}
	if df.Exists() {
		r.logger.Info().Str("query", q.Name).Msg("Skipping one-shot query, data file already exists")
		return nil
	}

	conn, ok := r.manager.Get(q.Connection)
	if !ok {
		return fmt.Errorf("connection %q not found", q.Connection)
	}
	if conn.Status() == database.StatusFailed {
		r.logger.Warn().Str("query", q.Name).Msg("Skipping one-shot query, connection failed")
		return nil
	}

	columns, rows, err := conn.ExecuteQuery(ctx, q.SQL)
	if err != nil {
		return err
	}

	if err := df.Open(); err != nil {
		return err
	}
	defer df.Close()

	for _, row := range rows {
		values, err := mapValues(q, columns, row)
		if err != nil {
			return err
		}
		if _, err := df.WriteDataPoint(values); err != nil {
			return err
		}
	}
	r.logger.Info().Str("query", q.Name).Int("rows", len(rows)).Msg("One-shot query executed")
	return nil
}

// mapValues extracts the configured columns from a result row, in
// configuration order.
func mapValues(q config.QueryConfig, columns []string, row []interface{}) ([]interface{}, error) {
	values := make([]interface{}, 0, len(q.Columns))
	for _, name := range q.Columns {
		idx := -1
		for i, col := range columns {
			if col == name {
				idx = i
				break
			}
		}
		if idx < 0 {
			return nil, fmt.Errorf("column %q not found in query results, available columns: %v", name, columns)
		}
		values = append(values, row[idx])
	}
	return values, nil
}

// retryLoop periodically pings failed connections so their streams can
// resume.
func (r *Runner) retryLoop(ctx context.Context) {
	ticker := time.NewTicker(r.cfg.FailedConnectionsInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
		if recovered := r.manager.RetryFailed(ctx); recovered > 0 {
			r.logger.Info().Int("recovered", recovered).Msg("Connections recovered")
		}
	}
}

// RenderCharts renders every chart whose data files are ready and
// rewrites the chart index with the successful ones. Safe to call from
// the cron goroutine and the shutdown path; cycles never overlap.
func (r *Runner) RenderCharts(ctx context.Context) {
	r.renderMu.Lock()
	defer r.renderMu.Unlock()

	var rendered []string
	for _, g := range r.generators {
		err := g.Render(ctx, r.files)
		switch {
		case err == nil:
			rendered = append(rendered, g.OutputFile())
		case errors.Is(err, chart.ErrGnuplotNotFound):
			if !r.gnuplotMissing {
				r.gnuplotMissing = true
				r.logger.Warn().Msg("gnuplot not found, charts will not be rendered")
			}
		default:
			r.logger.Debug().Err(err).Str("chart", g.OutputFile()).Msg("Chart not rendered")
		}
	}
	if len(rendered) == 0 {
		return
	}
	if err := chart.WriteIndex(r.cfg.OutputDir, rendered); err != nil {
		r.logger.Error().Err(err).Msg("Failed to write chart index")
	}
}
