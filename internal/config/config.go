package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/go-viper/mapstructure/v2"
	"github.com/shopspring/decimal"
	"github.com/spf13/viper"

	"github.com/Stripstone/OfflineEbayMonitor/internal/benchmark"
	"github.com/Stripstone/OfflineEbayMonitor/internal/classify"
	"github.com/Stripstone/OfflineEbayMonitor/internal/listing"
	"github.com/Stripstone/OfflineEbayMonitor/internal/logging"
	"github.com/Stripstone/OfflineEbayMonitor/internal/valuation"
)

// Storage backends.
const (
	BackendFile     = "file"
	BackendRedis    = "redis"
	BackendPostgres = "postgres"
)

// Alert channels.
const (
	ChannelTelegram = "telegram"
	ChannelLog      = "log"
)

// Config materialises application configuration.
type Config struct {
	App         AppConfig         `mapstructure:"app"`
	Logging     logging.Config    `mapstructure:"logging"`
	Database    DatabaseConfig    `mapstructure:"database"`
	Redis       RedisConfig       `mapstructure:"redis"`
	Scheduler   SchedulerConfig   `mapstructure:"scheduler"`
	Scan        ScanConfig        `mapstructure:"scan"`
	Market      MarketConfig      `mapstructure:"market"`
	Benchmark   BenchmarkConfig   `mapstructure:"benchmark"`
	Prospect    ProspectConfig    `mapstructure:"prospect"`
	Classify    ClassifyConfig    `mapstructure:"classify"`
	Identity    IdentityConfig    `mapstructure:"identity"`
	Seen        SeenConfig        `mapstructure:"seen"`
	Diagnostics DiagnosticsConfig `mapstructure:"diagnostics"`
	Alerting    AlertingConfig    `mapstructure:"alerting"`
	Metrics     MetricsConfig     `mapstructure:"metrics"`
	Export      ExportConfig      `mapstructure:"export"`
}

// AppConfig general metadata.
type AppConfig struct {
	Name        string `mapstructure:"name"`
	Environment string `mapstructure:"environment"`
}

// DatabaseConfig encapsulates PostgreSQL connectivity. An empty DSN disables the database.
type DatabaseConfig struct {
	DSN             string        `mapstructure:"dsn"`
	MaxOpenConns    int           `mapstructure:"max_open_conns"`
	MaxIdleConns    int           `mapstructure:"max_idle_conns"`
	ConnMaxLifetime time.Duration `mapstructure:"conn_max_lifetime"`
}

// RedisConfig covers the seen-listing cache.
type RedisConfig struct {
	Addr      string `mapstructure:"addr"`
	Password  string `mapstructure:"password"`
	DB        int    `mapstructure:"db"`
	KeyPrefix string `mapstructure:"key_prefix"`
}

// SchedulerConfig governs scan cadence.
type SchedulerConfig struct {
	Interval        time.Duration `mapstructure:"interval"`
	Jitter          time.Duration `mapstructure:"jitter"`
	RunImmediately  bool          `mapstructure:"run_immediately"`
	AdvisoryLockKey int64         `mapstructure:"advisory_lock_key"`
}

// ScanConfig locates listing snapshots.
type ScanConfig struct {
	SnapshotDir     string `mapstructure:"snapshot_dir"`
	Pattern         string `mapstructure:"pattern"`
	ArchiveDir      string `mapstructure:"archive_dir"`
	DeleteProcessed bool   `mapstructure:"delete_processed"`
}

// ContentClass is one row of the content keyword table.
type ContentClass struct {
	Name      string   `mapstructure:"name"`
	Keywords  []string `mapstructure:"keywords"`
	ContentOz float64  `mapstructure:"content_oz"`
}

// MarketConfig holds the melt assumptions.
type MarketConfig struct {
	SpotPrice      float64 `mapstructure:"spot_price"`
	PayoutFraction float64 `mapstructure:"payout_fraction"`
	MinMarginPct   float64 `mapstructure:"min_margin_pct"`
	MaxMarginPct   float64 `mapstructure:"max_margin_pct"`
	// DefaultContentOz is used for unmatched titles; zero picks the smallest class.
	DefaultContentOz float64 `mapstructure:"default_content_oz"`
	// ContentClasses replaces the stock table when non-empty.
	ContentClasses []ContentClass `mapstructure:"content_classes"`
}

// BenchmarkConfig tunes the EMA store and caller-side capture selection.
type BenchmarkConfig struct {
	Backend           string   `mapstructure:"backend"`
	Path              string   `mapstructure:"path"`
	Alpha             float64  `mapstructure:"alpha"`
	ObserverWeighting string   `mapstructure:"observer_weighting"`
	RequireBids       bool     `mapstructure:"require_bids"`
	Disqualify        []string `mapstructure:"disqualify"`
	CaptureBumpPct    float64  `mapstructure:"capture_bump_pct"`
	CaptureMaxMinutes int      `mapstructure:"capture_max_minutes"`
}

// ProspectConfig holds the numismatic prospect knobs.
type ProspectConfig struct {
	Enabled              bool    `mapstructure:"enabled"`
	DealerPayoutFraction float64 `mapstructure:"dealer_payout_fraction"`
	MinScore             int     `mapstructure:"min_score"`
	MinDealerMarginPct   float64 `mapstructure:"min_dealer_margin_pct"`
	// MaxTotal caps prospect totals; zero disables the cap.
	MaxTotal                  float64  `mapstructure:"max_total"`
	DisqualifyTerms           []string `mapstructure:"disqualify_terms"`
	DisqualifyPatterns        []string `mapstructure:"disqualify_patterns"`
	HypeTerms                 []string `mapstructure:"hype_terms"`
	UnderDescribedTerms       []string `mapstructure:"under_described_terms"`
	HighGradeTerms            []string `mapstructure:"high_grade_terms"`
	MispriceTolerancePct      float64  `mapstructure:"misprice_tolerance_pct"`
	MispriceBonus             int      `mapstructure:"misprice_bonus"`
	MispriceRequireEndingSoon bool     `mapstructure:"misprice_require_ending_soon"`
	MispriceMaxMinutes        int      `mapstructure:"misprice_max_minutes"`
	EndingSoonMinutes         int      `mapstructure:"ending_soon_minutes"`
}

// ClassifyConfig covers the ineligibility gate and title flags.
type ClassifyConfig struct {
	IneligibleFlags []string          `mapstructure:"ineligible_flags"`
	Terms           listing.FlagTerms `mapstructure:"terms"`
}

// IdentityConfig holds series detection rules. Empty rules select the stock table.
type IdentityConfig struct {
	Rules   []listing.IdentityRule `mapstructure:"rules"`
	Exclude []string               `mapstructure:"exclude"`
}

// SeenConfig selects the already-notified store.
type SeenConfig struct {
	Backend string        `mapstructure:"backend"`
	Path    string        `mapstructure:"path"`
	TTL     time.Duration `mapstructure:"ttl"`
}

// DiagnosticsConfig locates the per-run diagnostics files.
type DiagnosticsConfig struct {
	Dir         string `mapstructure:"dir"`
	SampleLimit int    `mapstructure:"sample_limit"`
}

// AlertingConfig defines notification routing.
type AlertingConfig struct {
	Enabled    bool           `mapstructure:"enabled"`
	NotifyHits bool           `mapstructure:"notify_hits"`
	NotifyPros bool           `mapstructure:"notify_pros"`
	Channels   []string       `mapstructure:"channels"`
	Telegram   TelegramConfig `mapstructure:"telegram"`
}

// TelegramConfig describes Telegram delivery.
type TelegramConfig struct {
	Enabled  bool          `mapstructure:"enabled"`
	BotToken string        `mapstructure:"bot_token"`
	ChatID   string        `mapstructure:"chat_id"`
	APIBase  string        `mapstructure:"api_base"`
	Timeout  time.Duration `mapstructure:"timeout"`
}

// MetricsConfig exposes the Prometheus endpoint during run.
type MetricsConfig struct {
	Enabled    bool   `mapstructure:"enabled"`
	ListenAddr string `mapstructure:"listen_addr"`
}

// ExportConfig sets CLI export behaviour.
type ExportConfig struct {
	MaxRows int `mapstructure:"max_rows"`
}

// Load builds configuration from file, environment, and defaults.
func Load(path string) (*Config, error) {
	v := viper.New()
	v.SetEnvPrefix("SILVERMON")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)

	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
	}

	if err := readConfig(v); err != nil {
		return nil, err
	}

	var cfg Config
	if err := v.Unmarshal(&cfg, decodeHook()); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

func readConfig(v *viper.Viper) error {
	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if errors.As(err, &notFound) {
			return nil
		}
		return fmt.Errorf("read config: %w", err)
	}
	return nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("app.name", "silvermonitor")
	v.SetDefault("app.environment", "development")

	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "console")
	v.SetDefault("logging.output", "stderr")

	v.SetDefault("scheduler.interval", "5m")
	v.SetDefault("scheduler.jitter", "30s")
	v.SetDefault("scheduler.run_immediately", true)
	v.SetDefault("scheduler.advisory_lock_key", int64(0x5347564d))

	v.SetDefault("scan.snapshot_dir", "snapshots")
	v.SetDefault("scan.pattern", "*.json")
	v.SetDefault("scan.archive_dir", "")
	v.SetDefault("scan.delete_processed", false)

	v.SetDefault("market.spot_price", 31.50)
	v.SetDefault("market.payout_fraction", 0.82)
	v.SetDefault("market.min_margin_pct", 15.0)
	v.SetDefault("market.max_margin_pct", 30.0)
	v.SetDefault("market.default_content_oz", 0.0)

	bopts := benchmark.DefaultOptions()
	v.SetDefault("benchmark.backend", BackendFile)
	v.SetDefault("benchmark.path", "data/benchmarks.json")
	v.SetDefault("benchmark.alpha", bopts.Alpha.InexactFloat64())
	v.SetDefault("benchmark.observer_weighting", string(bopts.Weighting))
	v.SetDefault("benchmark.require_bids", bopts.RequireBids)
	v.SetDefault("benchmark.disqualify", bopts.Disqualify.Names())
	v.SetDefault("benchmark.capture_bump_pct", 0.0)
	v.SetDefault("benchmark.capture_max_minutes", 30)

	p := classify.DefaultProspectConfig()
	v.SetDefault("prospect.enabled", p.Enabled)
	v.SetDefault("prospect.dealer_payout_fraction", p.DealerPayoutFraction.InexactFloat64())
	v.SetDefault("prospect.min_score", p.MinScore)
	v.SetDefault("prospect.min_dealer_margin_pct", p.MinDealerMarginPct.InexactFloat64())
	v.SetDefault("prospect.max_total", p.MaxTotal.Decimal.InexactFloat64())
	v.SetDefault("prospect.disqualify_terms", p.DisqualifyTerms)
	v.SetDefault("prospect.disqualify_patterns", p.DisqualifyPatterns)
	v.SetDefault("prospect.hype_terms", p.HypeTerms)
	v.SetDefault("prospect.under_described_terms", p.UnderDescribed)
	v.SetDefault("prospect.high_grade_terms", p.HighGradeTerms)
	v.SetDefault("prospect.misprice_tolerance_pct", p.MispriceTolerancePct.InexactFloat64())
	v.SetDefault("prospect.misprice_bonus", p.MispriceBonus)
	v.SetDefault("prospect.misprice_require_ending_soon", p.MispriceRequireEndingSoon)
	v.SetDefault("prospect.misprice_max_minutes", p.MispriceMaxMinutes)
	v.SetDefault("prospect.ending_soon_minutes", p.EndingSoonMinutes)

	terms := listing.DefaultFlagTerms()
	v.SetDefault("classify.ineligible_flags", classify.DefaultIneligibleFlags.Names())
	v.SetDefault("classify.terms.blocked", terms.Blocked)
	v.SetDefault("classify.terms.multi_unit", terms.MultiUnit)
	v.SetDefault("classify.terms.packaging", terms.Packaging)
	v.SetDefault("classify.terms.accessory", terms.Accessory)
	v.SetDefault("classify.terms.damaged", terms.Damaged)
	v.SetDefault("classify.terms.premium_grade", terms.PremiumGrade)

	v.SetDefault("identity.exclude", []string{"replica", "copy", "token", "medal", "commemorative"})

	v.SetDefault("seen.backend", BackendFile)
	v.SetDefault("seen.path", "data/seen_hits.json")
	v.SetDefault("seen.ttl", "168h")

	v.SetDefault("diagnostics.dir", "data")
	v.SetDefault("diagnostics.sample_limit", 3)

	v.SetDefault("alerting.enabled", false)
	v.SetDefault("alerting.notify_hits", true)
	v.SetDefault("alerting.notify_pros", true)
	v.SetDefault("alerting.channels", []string{})
	v.SetDefault("alerting.telegram.enabled", false)
	v.SetDefault("alerting.telegram.api_base", "https://api.telegram.org")
	v.SetDefault("alerting.telegram.timeout", "10s")

	v.SetDefault("metrics.enabled", false)
	v.SetDefault("metrics.listen_addr", ":9108")

	v.SetDefault("redis.addr", "localhost:6379")
	v.SetDefault("redis.db", 0)
	v.SetDefault("redis.key_prefix", "silvermon")

	v.SetDefault("export.max_rows", 10000)

	v.SetDefault("database.max_open_conns", 10)
	v.SetDefault("database.max_idle_conns", 5)
	v.SetDefault("database.conn_max_lifetime", "30m")
}

func decodeHook() viper.DecoderConfigOption {
	return func(dc *mapstructure.DecoderConfig) {
		dc.TagName = "mapstructure"
		dc.DecodeHook = mapstructure.ComposeDecodeHookFunc(
			mapstructure.StringToTimeDurationHookFunc(),
			mapstructure.StringToSliceHookFunc(","),
		)
	}
}

// Validate performs basic sanity checks on the configuration values.
func (c *Config) Validate() error {
	if c.Scheduler.Interval <= 0 {
		return fmt.Errorf("scheduler.interval must be greater than zero")
	}
	if c.Scheduler.Jitter < 0 {
		return fmt.Errorf("scheduler.jitter cannot be negative")
	}
	if c.Scan.SnapshotDir == "" {
		return fmt.Errorf("scan.snapshot_dir must be set")
	}
	if _, err := c.MarketConfig(); err != nil {
		return fmt.Errorf("market: %w", err)
	}
	if _, err := c.BenchmarkOptions(); err != nil {
		return fmt.Errorf("benchmark: %w", err)
	}
	if err := c.ProspectConfig().Validate(); err != nil {
		return fmt.Errorf("prospect: %w", err)
	}
	if _, err := listing.ParseFlags(c.Classify.IneligibleFlags); err != nil {
		return fmt.Errorf("classify.ineligible_flags: %w", err)
	}
	switch c.Benchmark.Backend {
	case BackendFile, BackendPostgres:
	default:
		return fmt.Errorf("benchmark.backend must be %q or %q", BackendFile, BackendPostgres)
	}
	switch c.Seen.Backend {
	case BackendFile, BackendRedis, BackendPostgres:
	default:
		return fmt.Errorf("seen.backend must be one of file, redis, postgres")
	}
	if (c.Benchmark.Backend == BackendPostgres || c.Seen.Backend == BackendPostgres) && c.Database.DSN == "" {
		return fmt.Errorf("database.dsn is required for the postgres backend")
	}
	if c.Seen.Backend == BackendRedis && c.Redis.Addr == "" {
		return fmt.Errorf("redis.addr is required for the redis seen backend")
	}
	if c.Export.MaxRows <= 0 {
		return fmt.Errorf("export.max_rows must be greater than zero")
	}
	for _, ch := range c.Alerting.Channels {
		switch ch {
		case ChannelLog:
		case ChannelTelegram:
			if !c.Alerting.Telegram.Enabled {
				return fmt.Errorf("alerting.channels names %q but alerting.telegram.enabled is false", ch)
			}
		default:
			return fmt.Errorf("alerting.channels: unknown channel %q (want %q or %q)", ch, ChannelTelegram, ChannelLog)
		}
	}
	if c.Alerting.Telegram.Enabled {
		if c.Alerting.Telegram.BotToken == "" {
			return fmt.Errorf("alerting.telegram.bot_token is required")
		}
		if c.Alerting.Telegram.ChatID == "" {
			return fmt.Errorf("alerting.telegram.chat_id is required")
		}
	}
	return nil
}

// ResolveMaxRows returns either the CLI override or config default.
func (c *Config) ResolveMaxRows(override int) int {
	if override > 0 {
		return override
	}
	return c.Export.MaxRows
}

// MarketConfig builds the valuation assumptions.
func (c *Config) MarketConfig() (valuation.MarketConfig, error) {
	rules := valuation.DefaultContentRules()
	if len(c.Market.ContentClasses) > 0 {
		rules = make([]valuation.ContentRule, 0, len(c.Market.ContentClasses))
		for _, cc := range c.Market.ContentClasses {
			rules = append(rules, valuation.ContentRule{
				Name:      cc.Name,
				Keywords:  cc.Keywords,
				ContentOz: decimal.NewFromFloat(cc.ContentOz),
			})
		}
	}
	table, err := valuation.NewContentTable(rules, decimal.NewFromFloat(c.Market.DefaultContentOz))
	if err != nil {
		return valuation.MarketConfig{}, err
	}
	m := valuation.MarketConfig{
		SpotPrice:      decimal.NewFromFloat(c.Market.SpotPrice),
		PayoutFraction: decimal.NewFromFloat(c.Market.PayoutFraction),
		MinMarginPct:   decimal.NewFromFloat(c.Market.MinMarginPct),
		MaxMarginPct:   decimal.NewFromFloat(c.Market.MaxMarginPct),
		Content:        table,
	}
	if err := m.Validate(); err != nil {
		return valuation.MarketConfig{}, err
	}
	return m, nil
}

// BenchmarkOptions builds the EMA store options.
func (c *Config) BenchmarkOptions() (benchmark.Options, error) {
	flags, err := listing.ParseFlags(c.Benchmark.Disqualify)
	if err != nil {
		return benchmark.Options{}, err
	}
	alpha := decimal.NewFromFloat(c.Benchmark.Alpha)
	if !alpha.IsPositive() || alpha.GreaterThan(decimal.NewFromInt(1)) {
		return benchmark.Options{}, fmt.Errorf("alpha must be in (0,1]: %s", alpha)
	}
	weighting := benchmark.ObserverWeighting(strings.ToLower(c.Benchmark.ObserverWeighting))
	if weighting != benchmark.WeightBids && weighting != benchmark.WeightEvents {
		return benchmark.Options{}, fmt.Errorf("observer_weighting must be %q or %q", benchmark.WeightBids, benchmark.WeightEvents)
	}
	return benchmark.Options{
		Alpha:       alpha,
		Weighting:   weighting,
		Disqualify:  flags,
		RequireBids: c.Benchmark.RequireBids,
	}, nil
}

// ProspectConfig builds the numismatic prospect configuration.
func (c *Config) ProspectConfig() classify.ProspectConfig {
	p := c.Prospect
	out := classify.ProspectConfig{
		Enabled:                   p.Enabled,
		DealerPayoutFraction:      decimal.NewFromFloat(p.DealerPayoutFraction),
		MinScore:                  p.MinScore,
		MinDealerMarginPct:        decimal.NewFromFloat(p.MinDealerMarginPct),
		DisqualifyTerms:           p.DisqualifyTerms,
		DisqualifyPatterns:        p.DisqualifyPatterns,
		HypeTerms:                 p.HypeTerms,
		UnderDescribed:            p.UnderDescribedTerms,
		HighGradeTerms:            p.HighGradeTerms,
		MispriceTolerancePct:      decimal.NewFromFloat(p.MispriceTolerancePct),
		MispriceBonus:             p.MispriceBonus,
		MispriceRequireEndingSoon: p.MispriceRequireEndingSoon,
		MispriceMaxMinutes:        p.MispriceMaxMinutes,
		EndingSoonMinutes:         p.EndingSoonMinutes,
	}
	if p.MaxTotal > 0 {
		out.MaxTotal = decimal.NewNullDecimal(decimal.NewFromFloat(p.MaxTotal))
	}
	return out
}

// ClassifyOptions assembles the ladder configuration.
func (c *Config) ClassifyOptions() (classify.Options, error) {
	market, err := c.MarketConfig()
	if err != nil {
		return classify.Options{}, err
	}
	flags, err := listing.ParseFlags(c.Classify.IneligibleFlags)
	if err != nil {
		return classify.Options{}, err
	}
	return classify.Options{
		Market:          market,
		Prospect:        c.ProspectConfig(),
		IneligibleFlags: flags,
		SampleLimit:     c.Diagnostics.SampleLimit,
	}, nil
}

// Enricher builds the title enricher from identity rules and flag terms.
func (c *Config) Enricher() (*listing.Enricher, error) {
	rules := c.Identity.Rules
	if len(rules) == 0 {
		rules = listing.DefaultIdentityRules()
	}
	return listing.NewEnricher(rules, c.Identity.Exclude, c.Classify.Terms)
}
