package app

import (
	"context"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/Stripstone/OfflineEbayMonitor/internal/benchmark"
	"github.com/Stripstone/OfflineEbayMonitor/internal/valuation"
)

// Show prints benchmarks, recent scan runs or recent alerts.
func (a *App) Show(ctx context.Context, opts ShowOptions) error {
	store, closeStore, err := a.openStore(ctx)
	if err != nil {
		return err
	}
	if closeStore != nil {
		defer closeStore()
	}

	switch opts.What {
	case "", "benchmarks":
		benchmarks, err := a.benchmarkStore(store)
		if err != nil {
			return err
		}
		snap, err := benchmarks.LoadBenchmarks(ctx)
		if err != nil {
			return err
		}
		printBenchmarks(snap, opts.Limit)
		return nil
	case "runs":
		if store == nil {
			return errors.New("database not configured; cannot show scan runs")
		}
		runs, err := store.ListRecentScanRuns(ctx, opts.Limit)
		if err != nil {
			return err
		}
		if len(runs) == 0 {
			fmt.Fprintln(os.Stdout, "no scan runs found")
			return nil
		}
		writer := newTable(os.Stdout)
		fmt.Fprintln(writer, "Started (UTC)\tStatus\tFiles\tSeen\tHit\tPros\tMiss\tInelig\tCaptured\tNotified\tError")
		for _, run := range runs {
			errMsg := ""
			if run.Error != nil {
				errMsg = sanitizeInline(*run.Error)
			}
			fmt.Fprintf(writer, "%s\t%s\t%d\t%d\t%d\t%d\t%d\t%d\t%d\t%d\t%s\n",
				run.StartedAt.UTC().Format(time.RFC3339), run.Status, run.Files, run.Seen,
				run.Hits, run.Pros, run.Misses, run.Ineligible, run.Captured, run.Notified, errMsg)
		}
		return writer.Flush()
	case "alerts":
		if store == nil {
			return errors.New("database not configured; cannot show alerts")
		}
		alerts, err := store.ListRecentAlerts(ctx, opts.Limit)
		if err != nil {
			return err
		}
		if len(alerts) == 0 {
			fmt.Fprintln(os.Stdout, "no alerts found")
			return nil
		}
		writer := newTable(os.Stdout)
		fmt.Fprintln(writer, "Time (UTC)\tOutcome\tTotal\tKey\tTitle")
		for _, al := range alerts {
			total := "-"
			if al.TotalPrice.Valid {
				total = "$" + valuation.RoundMoney(al.TotalPrice.Decimal).StringFixed(2)
			}
			fmt.Fprintf(writer, "%s\t%s\t%s\t%s\t%s\n",
				al.CreatedAt.UTC().Format(time.RFC3339), al.Outcome, total, al.DedupeKey,
				truncate(sanitizeInline(al.Title), titleWidth))
		}
		return writer.Flush()
	default:
		return fmt.Errorf("unknown show target %q (want benchmarks, runs or alerts)", opts.What)
	}
}

func printBenchmarks(snap benchmark.Snapshot, limit int) {
	rows := sortedEntries(snap)
	if len(rows) == 0 {
		fmt.Fprintln(os.Stdout, "no benchmarks found")
		return
	}
	if limit > 0 && len(rows) > limit {
		rows = rows[:limit]
	}

	writer := newTable(os.Stdout)
	fmt.Fprintln(writer, "Key\tEMA\tSamples\tLast\tObservers\tUpdated (UTC)")
	for _, r := range rows {
		fmt.Fprintf(writer, "%s\t%s\t%d\t%s\t%d\t%s\n",
			r.Key,
			valuation.RoundMoney(r.EMA).StringFixed(2),
			r.Samples,
			valuation.RoundMoney(r.LastPrice).StringFixed(2),
			r.Observers,
			r.LastUpdated.UTC().Format(time.RFC3339))
	}
	writer.Flush()
}
