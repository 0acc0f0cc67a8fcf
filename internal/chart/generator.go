package chart

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"text/template"

	"github.com/rs/zerolog"

	"github.com/queryviz/queryviz/internal/config"
	"github.com/queryviz/queryviz/internal/datafile"
)

// ErrGnuplotNotFound indicates the gnuplot binary is not installed.
// The script is still written so it can be run by hand.
var ErrGnuplotNotFound = errors.New("gnuplot not found")

// chartTypeAliases maps legacy type names onto their canonical form.
var chartTypeAliases = map[string]string{
	"line_graph": "line_chart",
}

// defaultPalette is cycled through when a series has no explicit color.
var defaultPalette = []string{
	"#1f77b4", "#ff7f0e", "#2ca02c", "#d62728", "#9467bd",
	"#8c564b", "#e377c2", "#7f7f7f", "#bcbd22", "#17becf",
}

const lineChartTemplate = `set terminal {{.Terminal}} size {{.Width}},{{.Height}}
set output '{{.OutputFile}}'
set title '{{.Title}}'
set xlabel '{{.XLabel}}'
set ylabel '{{.YLabel}}'
set key {{.KeyPosition}}
set grid
{{range .StyleLines}}{{.}}
{{end}}plot {{join .PlotLines ", \\\n     "}}
`

var chartTemplates = map[string]string{
	"line_chart": lineChartTemplate,
}

// Generator renders one configured chart from its streams' data files.
type Generator struct {
	cfg       config.ChartConfig
	outputDir string
	tmpl      *template.Template
	logger    zerolog.Logger
	queries   []*Query
}

// NewGenerator builds a generator for one chart config, resolving its
// chart type and parsing its query references.
func NewGenerator(cfg config.ChartConfig, outputDir string, logger zerolog.Logger) (*Generator, error) {
	chartType := cfg.Type
	if canonical, ok := chartTypeAliases[chartType]; ok {
		chartType = canonical
	}
	text, ok := chartTemplates[chartType]
	if !ok {
		return nil, fmt.Errorf("unknown chart type %q", cfg.Type)
	}
	tmpl, err := template.New(chartType).
		Funcs(template.FuncMap{"join": strings.Join}).
		Parse(text)
	if err != nil {
		return nil, fmt.Errorf("chart template %q: %w", chartType, err)
	}

	if cfg.OutputFile == "" {
		cfg.OutputFile = datafile.NormalizeName(cfg.Title) + "." + cfg.Terminal
	}

	g := &Generator{
		cfg:       cfg,
		outputDir: outputDir,
		tmpl:      tmpl,
		logger:    logger,
	}
	for _, ref := range cfg.Queries {
		q, err := NewQuery(ref.Query, ref.Columns)
		if err != nil {
			return nil, err
		}
		g.queries = append(g.queries, q)
	}
	return g, nil
}

// OutputFile returns the chart image filename relative to the output
// directory.
func (g *Generator) OutputFile() string {
	return g.cfg.OutputFile
}

// Title returns the configured chart title.
func (g *Generator) Title() string {
	return g.cfg.Title
}

// scriptData is the template input for one rendered script.
type scriptData struct {
	Terminal    string
	OutputFile  string
	Title       string
	XLabel      string
	YLabel      string
	KeyPosition string
	Width       int
	Height      int
	StyleLines  []string
	PlotLines   []string
}

// buildScript resolves every chart query against its data file and
// renders the Gnuplot script text.
func (g *Generator) buildScript(fs *datafile.FileSet) (string, error) {
	var all []Series
	for _, q := range g.queries {
		df := fs.Get(q.Name)
		if df == nil {
			return "", fmt.Errorf("chart %q: no data file for query %q", g.cfg.Title, q.Name)
		}
		if !df.Exists() {
			return "", fmt.Errorf("chart %q: data file for query %q does not exist yet", g.cfg.Title, q.Name)
		}
		series, err := q.Series(df)
		if err != nil {
			return "", err
		}
		all = append(all, series...)
	}
	if len(all) == 0 {
		return "", fmt.Errorf("chart %q: nothing to plot", g.cfg.Title)
	}

	data := scriptData{
		Terminal:    g.cfg.Terminal,
		OutputFile:  filepath.Join(g.outputDir, g.cfg.OutputFile),
		Title:       g.cfg.Title,
		XLabel:      g.cfg.XLabel,
		YLabel:      g.cfg.YLabel,
		KeyPosition: g.cfg.KeyPosition,
		Width:       g.cfg.Width,
		Height:      g.cfg.Height,
	}
	for i, s := range all {
		color := defaultPalette[i%len(defaultPalette)]
		data.StyleLines = append(data.StyleLines,
			fmt.Sprintf("set style line %d linecolor rgb '%s' linewidth %d pointtype 7",
				i+1, color, g.cfg.LineWidth))
		data.PlotLines = append(data.PlotLines,
			fmt.Sprintf("'%s' using 1:%d with lines linestyle %d title '%s'",
				s.File, s.Column, i+1, s.Title))
	}

	var b strings.Builder
	if err := g.tmpl.Execute(&b, data); err != nil {
		return "", fmt.Errorf("chart %q: %w", g.cfg.Title, err)
	}
	return b.String(), nil
}

// Render writes the Gnuplot script and runs gnuplot on it. The script
// file is removed afterwards. Returns ErrGnuplotNotFound when the
// binary is missing.
func (g *Generator) Render(ctx context.Context, fs *datafile.FileSet) error {
	script, err := g.buildScript(fs)
	if err != nil {
		return err
	}

	scriptFile := filepath.Join(g.outputDir, datafile.NormalizeName(g.cfg.Title)+".plt")
	if err := os.WriteFile(scriptFile, []byte(script), 0644); err != nil {
		return fmt.Errorf("chart %q: write script: %w", g.cfg.Title, err)
	}
	defer os.Remove(scriptFile)

	cmd := exec.CommandContext(ctx, "gnuplot", scriptFile)
	output, err := cmd.CombinedOutput()
	if err != nil {
		if errors.Is(err, exec.ErrNotFound) {
			return ErrGnuplotNotFound
		}
		return fmt.Errorf("chart %q: gnuplot: %w: %s", g.cfg.Title, err, strings.TrimSpace(string(output)))
	}

	g.logger.Debug().
		Str("chart", g.cfg.Title).
		Str("output", g.cfg.OutputFile).
		Msg("Chart rendered")
	return nil
}
