package app

import (
	"fmt"
	"io"
	"strings"
	"text/tabwriter"

	"github.com/Stripstone/OfflineEbayMonitor/internal/classify"
	"github.com/Stripstone/OfflineEbayMonitor/internal/valuation"
)

const titleWidth = 60

// printVerdicts renders verdicts as a table. Without all, only HIT and PROS rows print.
func printVerdicts(w io.Writer, verdicts []classify.Verdict, all bool) {
	writer := newTable(w)
	fmt.Fprintln(writer, "Outcome\tEnds\tTotal\tPayout\tMargin\tRec Max\tScore\tReason\tTitle")

	rows := 0
	for _, v := range verdicts {
		if !all && v.Outcome != classify.Hit && v.Outcome != classify.Pros {
			continue
		}
		rows++

		ends := "-"
		if v.Listing.EndTime != nil {
			ends = v.Listing.EndTime.Local().Format("Jan 02 15:04")
		}
		total := "-"
		if t, ok := v.Listing.TotalPrice(); ok {
			total = "$" + valuation.RoundMoney(t).StringFixed(2)
		}
		payout, margin, recMax := "-", "-", "-"
		if v.Melt != nil {
			r := v.Melt.Report()
			payout = "$" + r.Payout.StringFixed(2)
			margin = valuation.FormatPct(r.MarginPct)
			recMax = "$" + r.BreakEvenTotalPrice.StringFixed(2)
		}
		score := "-"
		if v.Prospect != nil && v.Outcome != classify.Ineligible && len(v.Prospect.Score.Reasons) > 0 {
			score = fmt.Sprintf("%d", v.Prospect.Score.Value)
		}
		reason := v.Reason
		if v.Detail != "" {
			reason = v.Reason + ": " + v.Detail
		}
		if reason == "" {
			reason = "-"
		}

		fmt.Fprintf(writer, "%s\t%s\t%s\t%s\t%s\t%s\t%s\t%s\t%s\n",
			v.Outcome, ends, total, payout, margin, recMax, score, sanitizeInline(reason), truncate(sanitizeInline(v.Listing.Title), titleWidth))
	}
	writer.Flush()

	if rows == 0 {
		fmt.Fprintln(w, "no actionable listings")
	}
}

func sanitizeInline(v string) string {
	cleaned := strings.ReplaceAll(v, "\n", " ")
	cleaned = strings.ReplaceAll(cleaned, "\r", " ")
	cleaned = strings.ReplaceAll(cleaned, "\t", " ")
	return cleaned
}

func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n-3]) + "..."
}

func newTable(w io.Writer) *tabwriter.Writer {
	return tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
}
