package app

import (
	"context"
	"encoding/csv"
	"errors"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"time"

	chart "github.com/wcharczuk/go-chart/v2"

	"github.com/Stripstone/OfflineEbayMonitor/internal/benchmark"
)

// chartBars caps the bar chart so labels stay legible.
const chartBars = 40

type keyedEntry struct {
	Key string
	benchmark.Entry
}

// Export renders the benchmark table as CSV and/or a PNG bar chart.
func (a *App) Export(ctx context.Context, opts ExportOptions) error {
	if opts.CSVPath == "" && opts.PNGPath == "" {
		return errors.New("at least one of --csv or --png must be provided")
	}

	opts.MaxRows = a.Config.ResolveMaxRows(opts.MaxRows)

	store, closeStore, err := a.openStore(ctx)
	if err != nil {
		return err
	}
	if closeStore != nil {
		defer closeStore()
	}

	benchmarks, err := a.benchmarkStore(store)
	if err != nil {
		return err
	}
	snap, err := benchmarks.LoadBenchmarks(ctx)
	if err != nil {
		return err
	}
	rows := sortedEntries(snap)
	if len(rows) == 0 {
		a.Logger.Info().Msg("no benchmarks to export")
		return nil
	}
	if len(rows) > opts.MaxRows {
		rows = rows[:opts.MaxRows]
	}
	a.Logger.Info().Int("total", len(snap)).Int("exported", len(rows)).Msg("exporting benchmarks")

	if opts.CSVPath != "" {
		if err := writeBenchmarksCSV(opts.CSVPath, rows); err != nil {
			return err
		}
	}

	if opts.PNGPath != "" {
		if err := writeBenchmarksPNG(opts.PNGPath, rows); err != nil {
			return err
		}
	}

	return nil
}

// sortedEntries orders benchmarks by key.
func sortedEntries(snap benchmark.Snapshot) []keyedEntry {
	rows := make([]keyedEntry, 0, len(snap))
	for k, e := range snap {
		rows = append(rows, keyedEntry{Key: k, Entry: e})
	}
	sort.Slice(rows, func(i, j int) bool { return rows[i].Key < rows[j].Key })
	return rows
}

func writeBenchmarksCSV(path string, rows []keyedEntry) error {
	if err := ensureDir(path); err != nil {
		return err
	}

	file, err := os.Create(path)
	if err != nil {
		return err
	}
	defer file.Close()

	writer := csv.NewWriter(file)
	defer writer.Flush()

	header := []string{"identity_key", "ema_price", "samples", "last_price", "last_updated", "observers"}
	if err := writer.Write(header); err != nil {
		return err
	}

	for _, r := range rows {
		record := []string{
			r.Key,
			r.EMA.String(),
			strconv.Itoa(r.Samples),
			r.LastPrice.String(),
			r.LastUpdated.UTC().Format(time.RFC3339),
			strconv.Itoa(r.Observers),
		}
		if err := writer.Write(record); err != nil {
			return err
		}
	}

	writer.Flush()
	return writer.Error()
}

// writeBenchmarksPNG draws the EMA of the most-sampled identities as a bar chart.
func writeBenchmarksPNG(path string, rows []keyedEntry) error {
	if err := ensureDir(path); err != nil {
		return err
	}

	top := make([]keyedEntry, len(rows))
	copy(top, rows)
	sort.SliceStable(top, func(i, j int) bool { return top[i].Samples > top[j].Samples })
	if len(top) > chartBars {
		top = top[:chartBars]
	}
	sort.SliceStable(top, func(i, j int) bool { return top[i].Key < top[j].Key })

	bars := make([]chart.Value, 0, len(top))
	for _, r := range top {
		bars = append(bars, chart.Value{Label: r.Key, Value: r.EMA.InexactFloat64()})
	}
	if len(bars) == 1 {
		// A single bar leaves the value range empty; anchor it at zero.
		bars = append(bars, chart.Value{Label: "", Value: 0})
	}

	graph := chart.BarChart{
		Title:    "EMA benchmark by identity",
		Width:    1280,
		Height:   720,
		BarWidth: 24,
		Background: chart.Style{
			Padding: chart.Box{Top: 40, Bottom: 120},
		},
		XAxis: chart.Style{TextRotationDegrees: 90},
		YAxis: chart.YAxis{
			Name: "EMA (USD)",
			ValueFormatter: func(v interface{}) string {
				return chart.FloatValueFormatterWithFormat(v, "%.2f")
			},
		},
		Bars: bars,
	}

	file, err := os.Create(path)
	if err != nil {
		return err
	}
	defer file.Close()

	return graph.Render(chart.PNG, file)
}

func ensureDir(path string) error {
	dir := filepath.Dir(path)
	if dir == "." || dir == "" {
		return nil
	}
	return os.MkdirAll(dir, 0o755)
}
