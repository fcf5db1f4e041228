package app

import (
	"context"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/shopspring/decimal"

	"github.com/Stripstone/OfflineEbayMonitor/internal/alerting"
	"github.com/Stripstone/OfflineEbayMonitor/internal/benchmark"
	"github.com/Stripstone/OfflineEbayMonitor/internal/classify"
	"github.com/Stripstone/OfflineEbayMonitor/internal/listing"
)

// EvaluateOptions describe a hypothetical listing.
type EvaluateOptions struct {
	Title     string
	ItemPrice decimal.Decimal
	Shipping  decimal.Decimal
	Bids      int
	// Quantity zero lets valuation read the title.
	Quantity    int
	MinutesLeft int
	// Key overrides identity detection.
	Key    string
	Flags  []string
	Notify bool
}

// Evaluate classifies one hypothetical listing against the stored benchmarks and prints it.
// With Notify set, an actionable verdict is also sent through the configured channels.
func (a *App) Evaluate(ctx context.Context, opts EvaluateOptions) (classify.Verdict, error) {
	if opts.Title == "" {
		return classify.Verdict{}, errors.New("title is required")
	}
	if opts.Notify && !a.Config.Alerting.Enabled {
		return classify.Verdict{}, errors.New("alerting is not enabled")
	}

	flags, err := listing.ParseFlags(opts.Flags)
	if err != nil {
		return classify.Verdict{}, err
	}
	enricher, err := a.Config.Enricher()
	if err != nil {
		return classify.Verdict{}, err
	}

	now := time.Now().UTC()
	end := now.Add(time.Duration(opts.MinutesLeft) * time.Minute)
	rec := listing.Record{
		Title:         opts.Title,
		ItemPrice:     decimal.NewNullDecimal(opts.ItemPrice),
		ShippingPrice: decimal.NewNullDecimal(opts.Shipping),
		BidCount:      opts.Bids,
		TimeLeft:      fmt.Sprintf("%dm left", opts.MinutesLeft),
		EndTime:       &end,
		IdentityKey:   opts.Key,
		Flags:         flags,
	}
	if opts.Quantity > 0 {
		rec.Quantity = listing.Qty(opts.Quantity)
	}
	rec = enricher.Enrich(rec)

	store, closeStore, err := a.openStore(ctx)
	if err != nil {
		return classify.Verdict{}, err
	}
	if closeStore != nil {
		defer closeStore()
	}
	benchmarks, err := a.benchmarkStore(store)
	if err != nil {
		return classify.Verdict{}, err
	}
	snap, err := benchmarks.LoadBenchmarks(ctx)
	if err != nil {
		return classify.Verdict{}, err
	}
	benchOpts, err := a.Config.BenchmarkOptions()
	if err != nil {
		return classify.Verdict{}, err
	}
	bench := benchmark.NewStore(benchOpts)
	bench.Restore(snap)

	classifyOpts, err := a.Config.ClassifyOptions()
	if err != nil {
		return classify.Verdict{}, err
	}
	classifyOpts.Now = func() time.Time { return now }
	v := classify.New(classifyOpts, bench, nil).Evaluate(rec)

	printVerdicts(os.Stdout, []classify.Verdict{v}, true)
	note := alerting.Notification{RunID: "evaluate", Verdict: v, Now: now, Channels: a.Config.Alerting.Channels}
	fmt.Fprint(os.Stdout, "\n"+alerting.Render(note))

	if opts.Notify {
		if v.Outcome != classify.Hit && v.Outcome != classify.Pros {
			a.Logger.Info().Str("outcome", string(v.Outcome)).Msg("verdict not actionable; nothing sent")
			return v, nil
		}
		note.AdditionalMsg = "(evaluation, not a live listing)\n"
		if err := a.newNotifier().Notify(ctx, note); err != nil {
			return v, err
		}
	}
	return v, nil
}
