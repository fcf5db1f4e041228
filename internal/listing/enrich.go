package listing

// FlagTerms configures the title terms behind each flag.
type FlagTerms struct {
	Blocked      []string `mapstructure:"blocked"`
	MultiUnit    []string `mapstructure:"multi_unit"`
	Packaging    []string `mapstructure:"packaging"`
	Accessory    []string `mapstructure:"accessory"`
	Damaged      []string `mapstructure:"damaged"`
	PremiumGrade []string `mapstructure:"premium_grade"`
}

// DefaultFlagTerms returns the stock term lists.
func DefaultFlagTerms() FlagTerms {
	return FlagTerms{
		Blocked:   []string{"lot", "lots", "roll", "set", "face value"},
		MultiUnit: []string{"group", "collection", "hoard", "mixed", "bundle", "bag", "coins"},
		Packaging: []string{"album", "folder", "coin book", "no coins", "holder only"},
		Accessory: []string{"money clip", "keychain", "cutout", "pendant", "necklace", "ring", "bracelet", "jewelry"},
		Damaged: []string{
			"holed", "hole", "drilled", "pierced", "plugged", "bent", "damaged", "broken",
		},
		PremiumGrade: []string{
			"pcgs", "ngc", "anacs", "icg", "slab", "graded", "certified",
			"bu", "brilliant uncirculated", "unc", "uncirculated", "au", "xf", "ef",
			"ms", "choice", "gem", "pl", "dmpl", "proof",
		},
	}
}

// Enricher fills identity keys and flags that the extractor did not supply.
type Enricher struct {
	identity *IdentityDetector
	matchers []flagMatcher
}

type flagMatcher struct {
	flag Flags
	m    *Matcher
}

// NewEnricher builds an Enricher from identity rules and flag terms.
func NewEnricher(rules []IdentityRule, identityExclude []string, terms FlagTerms) (*Enricher, error) {
	det, err := NewIdentityDetector(rules, identityExclude)
	if err != nil {
		return nil, err
	}
	return &Enricher{
		identity: det,
		matchers: []flagMatcher{
			{FlagBlockedTerm, NewMatcher(terms.Blocked)},
			{FlagMultiUnit, NewMatcher(terms.MultiUnit)},
			{FlagPackaging, NewMatcher(terms.Packaging)},
			{FlagAccessory, NewMatcher(terms.Accessory)},
			{FlagDamaged, NewMatcher(terms.Damaged)},
			{FlagPremiumGrade, NewMatcher(terms.PremiumGrade)},
		},
	}, nil
}

// DetectFlags returns the flags whose terms appear in title.
func (e *Enricher) DetectFlags(title string) Flags {
	var out Flags
	for _, fm := range e.matchers {
		if _, ok := fm.m.Match(title); ok {
			out |= fm.flag
		}
	}
	return out
}

// FlagTerm returns the first term behind flag found in title, for diagnostics.
func (e *Enricher) FlagTerm(title string, flag Flags) string {
	for _, fm := range e.matchers {
		if fm.flag == flag {
			term, _ := fm.m.Match(title)
			return term
		}
	}
	return ""
}

// DetectIdentity exposes the identity detector.
func (e *Enricher) DetectIdentity(title string) (Identity, bool) {
	return e.identity.Detect(title)
}

// Enrich returns a copy of rec with a detected identity key when none was supplied and with
// title-derived flags merged into any supplied flags.
func (e *Enricher) Enrich(rec Record) Record {
	out := rec
	if out.IdentityKey == "" {
		if id, ok := e.identity.Detect(out.Title); ok {
			out.IdentityKey = id.Key()
		}
	}
	out.Flags |= e.DetectFlags(out.Title)
	return out
}
