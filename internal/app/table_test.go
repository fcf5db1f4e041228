package app

import (
	"bytes"
	"strings"
	"testing"

	"github.com/shopspring/decimal"

	"github.com/Stripstone/OfflineEbayMonitor/internal/classify"
	"github.com/Stripstone/OfflineEbayMonitor/internal/listing"
)

func TestPrintVerdictsFiltersNonActionable(t *testing.T) {
	hit := classify.Verdict{
		Outcome: classify.Hit,
		Listing: listing.Record{
			Title:         "1921 Morgan Dollar\tVF",
			ItemPrice:     decimal.NewNullDecimal(decimal.RequireFromString("15")),
			ShippingPrice: decimal.NewNullDecimal(decimal.RequireFromString("4.5")),
		},
	}
	miss := classify.Verdict{
		Outcome: classify.Miss,
		Reason:  classify.ReasonInsufficientMargin,
		Detail:  "margin 8.2% < 12.0% threshold",
		Listing: listing.Record{Title: "Generic silver round"},
	}

	var buf bytes.Buffer
	printVerdicts(&buf, []classify.Verdict{hit, miss}, false)
	out := buf.String()
	if !strings.Contains(out, "HIT") || !strings.Contains(out, "$19.50") {
		t.Fatalf("expected HIT row with total, got:\n%s", out)
	}
	if strings.Contains(out, "MISS") {
		t.Fatalf("MISS row should be hidden without all:\n%s", out)
	}
	if !strings.Contains(out, "1921 Morgan Dollar VF") {
		t.Fatalf("tabs in titles should be sanitized:\n%s", out)
	}

	buf.Reset()
	printVerdicts(&buf, []classify.Verdict{hit, miss}, true)
	if !strings.Contains(buf.String(), "insufficient_margin: margin 8.2% < 12.0% threshold") {
		t.Fatalf("expected MISS reason with detail, got:\n%s", buf.String())
	}
}

func TestPrintVerdictsEmpty(t *testing.T) {
	var buf bytes.Buffer
	printVerdicts(&buf, []classify.Verdict{{Outcome: classify.Miss}}, false)
	if !strings.Contains(buf.String(), "no actionable listings") {
		t.Fatalf("expected empty marker, got %q", buf.String())
	}
}

func TestTruncate(t *testing.T) {
	if got := truncate("short", 10); got != "short" {
		t.Fatalf("unexpected %q", got)
	}
	if got := truncate("abcdefghijkl", 8); got != "abcde..." {
		t.Fatalf("unexpected %q", got)
	}
}
