package listing

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"
)

func TestIdentityDetect(t *testing.T) {
	det, err := NewIdentityDetector(DefaultIdentityRules(), []string{"replica"})
	if err != nil {
		t.Fatalf("new detector: %v", err)
	}
	cases := []struct {
		title string
		key   string
		ok    bool
	}{
		{"1893-S Morgan Silver Dollar VG", "Morgan Dollar|1893|S", true},
		{"1881 CC Morgan Dollar", "Morgan Dollar|1881|CC", true},
		{"1922 Peace Dollar", "Peace Dollar|1922|P", true},
		{"1943 D Walking Liberty Half Dollar", "Walking Liberty Half|1943|D", true},
		{"1963 Franklin Half", "Franklin Half|1963|P", true},
		{"1930 Morgan Dollar", "", false},
		{"Morgan Dollar no date", "", false},
		{"1921 Morgan Dollar replica", "", false},
		{"2024 Silver Eagle", "", false},
	}
	for _, tc := range cases {
		id, ok := det.Detect(tc.title)
		if ok != tc.ok || (ok && id.Key() != tc.key) {
			t.Fatalf("%q: got %q/%v, want %q/%v", tc.title, id.Key(), ok, tc.key, tc.ok)
		}
	}
}

func TestIdentityDetectorRejectsBadPattern(t *testing.T) {
	if _, err := NewIdentityDetector([]IdentityRule{{Series: "X", Pattern: "("}}, nil); err == nil {
		t.Fatal("expected error for invalid pattern")
	}
}

func TestNormalizeMint(t *testing.T) {
	for in, want := range map[string]string{"": "P", " s ": "S", "cc": "CC", "Philadelphia": "P"} {
		if got := NormalizeMint(in); got != want {
			t.Fatalf("NormalizeMint(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestMatcherWordBoundaries(t *testing.T) {
	m := NewMatcher([]string{"lot", "face value", "rare!!"})
	cases := map[string]string{
		"Lot of 5 Morgan Dollars":  "lot",
		"Pilot Morgan Dollar":      "",
		"Face Value $10 90% coins": "face value",
		"RARE!! 1893 S":            "rare!!",
	}
	for title, want := range cases {
		got, _ := m.Match(title)
		if got != want {
			t.Fatalf("Match(%q) = %q, want %q", title, got, want)
		}
	}
	if NewMatcher([]string{" ", ""}).Len() != 0 {
		t.Fatal("blank terms should be skipped")
	}
}

func TestFlagsParseAndNames(t *testing.T) {
	f, err := ParseFlags([]string{"accessory", " Damaged "})
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if !f.Has(FlagAccessory) || !f.Has(FlagDamaged) || f.Has(FlagBlockedTerm) {
		t.Fatalf("unexpected flags %s", f)
	}
	if f.String() != "accessory,damaged" {
		t.Fatalf("String() = %q", f.String())
	}
	if _, err := ParseFlags([]string{"shiny"}); err == nil {
		t.Fatal("expected error for unknown flag")
	}
	if Flags(0).String() != "none" {
		t.Fatal("empty flags should render as none")
	}
}

func TestEnrich(t *testing.T) {
	e, err := NewEnricher(DefaultIdentityRules(), nil, DefaultFlagTerms())
	if err != nil {
		t.Fatalf("new enricher: %v", err)
	}
	rec := Record{Title: "1889 O Morgan Dollar holed pendant", Flags: FlagPremiumGrade}
	out := e.Enrich(rec)
	if out.IdentityKey != "Morgan Dollar|1889|O" {
		t.Fatalf("identity key = %q", out.IdentityKey)
	}
	if !out.Flags.Has(FlagDamaged) || !out.Flags.Has(FlagAccessory) || !out.Flags.Has(FlagPremiumGrade) {
		t.Fatalf("flags = %s", out.Flags)
	}
	if rec.IdentityKey != "" || rec.Flags != FlagPremiumGrade {
		t.Fatal("Enrich must not mutate its input")
	}
	if term := e.FlagTerm(rec.Title, FlagDamaged); term != "holed" {
		t.Fatalf("FlagTerm = %q", term)
	}

	supplied := e.Enrich(Record{Title: "1889 O Morgan Dollar", IdentityKey: "Custom|1|P"})
	if supplied.IdentityKey != "Custom|1|P" {
		t.Fatal("supplied identity key must be kept")
	}
}

func TestRecordDerivedFields(t *testing.T) {
	end := time.Date(2025, 12, 13, 10, 0, 0, 0, time.UTC)
	r := Record{
		Title:         "1921 Morgan Dollar",
		ItemPrice:     decimal.NewNullDecimal(decimal.RequireFromString("21.50")),
		ShippingPrice: decimal.NewNullDecimal(decimal.RequireFromString("4.25")),
		TimeLeft:      "12m left",
		EndTime:       &end,
	}
	total, ok := r.TotalPrice()
	if !ok || total.StringFixed(2) != "25.75" {
		t.Fatalf("total = %s/%v", total, ok)
	}
	if mins, ok := r.MinutesLeft(end.Add(-12*time.Minute - 30*time.Second)); !ok || mins != 12 {
		t.Fatalf("minutes left = %d/%v", mins, ok)
	}
	if _, ok := r.MinutesLeft(end.Add(time.Minute)); ok {
		t.Fatal("ended listing should have no minutes left")
	}
	if got := r.DedupeKey(); got != "fallback:1921 Morgan Dollar|25.75|12m left" {
		t.Fatalf("fallback dedupe key = %q", got)
	}
	r.ItemID = " 1234 "
	if got := r.DedupeKey(); got != "itm:1234" {
		t.Fatalf("dedupe key = %q", got)
	}

	r.ShippingPrice = decimal.NullDecimal{}
	if _, ok := r.TotalPrice(); ok {
		t.Fatal("total requires both prices")
	}
}
