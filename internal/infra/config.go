package infra

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"ladder_go/internal/book"
	"ladder_go/pkg/ladder"
	"ladder_go/pkg/quant"

	"gopkg.in/yaml.v3"
)

// Config holds every setting of the depth service.
// LoadConfig reads it from YAML and then applies environment overrides.
type Config struct {
	App struct {
		Name string `yaml:"name"`
	} `yaml:"app"`

	Feed FeedConfig `yaml:"feed"`

	Books []BookConfig `yaml:"books"`

	Engine struct {
		InboxSize int    `yaml:"inbox_size"`
		MaxGap    uint64 `yaml:"max_gap"`
		DumpPath  string `yaml:"dump_path"`
		Resync    struct {
			FailureThreshold int `yaml:"failure_threshold"`
			SuccessThreshold int `yaml:"success_threshold"`
			TimeoutSec       int `yaml:"timeout_sec"`
		} `yaml:"resync"`
	} `yaml:"engine"`

	Logging struct {
		Level  string  `yaml:"level"`
		Format string  `yaml:"format"`
		File   LogFile `yaml:"file"`
	} `yaml:"logging"`

	// API serves book tops, depth and /metrics. Empty disables it.
	API struct {
		Addr string `yaml:"addr"`
	} `yaml:"api"`
}

// LogFile enables a rotated copy of the log. An empty Path keeps logging on
// stdout only.
type LogFile struct {
	Path       string `yaml:"path"`
	MaxSizeMB  int    `yaml:"max_size_mb"`
	MaxBackups int    `yaml:"max_backups"`
	MaxAgeDays int    `yaml:"max_age_days"`
}

// FeedConfig describes the exchange depth stream.
type FeedConfig struct {
	Exchange        string `yaml:"exchange"`
	WSURL           string `yaml:"ws_url"`
	RestURL         string `yaml:"rest_url"`
	InstType        string `yaml:"inst_type"`
	Channel         string `yaml:"channel"`
	ReadTimeoutSec  int    `yaml:"read_timeout_sec"`
	PingIntervalSec int    `yaml:"ping_interval_sec"`
	ReconnectBaseMS int    `yaml:"reconnect_base_ms"`
	ReconnectMaxMS  int    `yaml:"reconnect_max_ms"`
	SubscribePerSec int    `yaml:"subscribe_per_sec"`
}

// BookConfig sizes the ladders of one instrument.
type BookConfig struct {
	Symbol    string `yaml:"symbol"`
	TickSize  string `yaml:"tick_size"`
	LotSize   string `yaml:"lot_size"`
	Capacity  int    `yaml:"capacity"`
	Policy    string `yaml:"policy"`
	TrimDepth bool   `yaml:"trim_depth"`
}

// LoadConfig reads and validates the configuration file.
func LoadConfig(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return ParseConfig(data)
}

// ParseConfig decodes YAML, applies env overrides and defaults, and validates.
func ParseConfig(data []byte) (*Config, error) {
	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}

	overrideWithEnv(&cfg)
	cfg.applyDefaults()

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return &cfg, nil
}

func (c *Config) applyDefaults() {
	if c.App.Name == "" {
		c.App.Name = AppName
	}
	if c.Feed.Exchange == "" {
		c.Feed.Exchange = "BITGET"
	}
	if c.Feed.Channel == "" {
		c.Feed.Channel = "books"
	}
	if c.Feed.InstType == "" {
		c.Feed.InstType = "SPOT"
	}
	if c.Feed.ReadTimeoutSec == 0 {
		c.Feed.ReadTimeoutSec = 60
	}
	if c.Feed.PingIntervalSec == 0 {
		c.Feed.PingIntervalSec = 30
	}
	if c.Feed.ReconnectBaseMS == 0 {
		c.Feed.ReconnectBaseMS = int(baseDelay / time.Millisecond)
	}
	if c.Feed.ReconnectMaxMS == 0 {
		c.Feed.ReconnectMaxMS = int(maxDelay / time.Millisecond)
	}
	if c.Feed.SubscribePerSec == 0 {
		c.Feed.SubscribePerSec = 10
	}
	if c.Engine.InboxSize == 0 {
		c.Engine.InboxSize = 1024
	}
	if c.Engine.MaxGap == 0 {
		c.Engine.MaxGap = 10
	}
	if c.Engine.DumpPath == "" {
		c.Engine.DumpPath = "panic_dump.json"
	}
	if c.Engine.Resync.FailureThreshold == 0 {
		c.Engine.Resync.FailureThreshold = 3
	}
	if c.Engine.Resync.SuccessThreshold == 0 {
		c.Engine.Resync.SuccessThreshold = 1
	}
	if c.Engine.Resync.TimeoutSec == 0 {
		c.Engine.Resync.TimeoutSec = 10
	}
	if c.Logging.Level == "" {
		c.Logging.Level = "info"
	}
	if c.Logging.Format == "" {
		c.Logging.Format = "text"
	}
	if f := &c.Logging.File; f.Path != "" {
		if f.MaxSizeMB == 0 {
			f.MaxSizeMB = 50
		}
		if f.MaxBackups == 0 {
			f.MaxBackups = 10
		}
		if f.MaxAgeDays == 0 {
			f.MaxAgeDays = 14
		}
	}
	for i := range c.Books {
		if c.Books[i].Capacity == 0 {
			c.Books[i].Capacity = ladder.DefaultCapacity
		}
	}
}

// Validate checks configuration validity.
func (c *Config) Validate() error {
	if !strings.HasPrefix(c.Feed.WSURL, "ws://") && !strings.HasPrefix(c.Feed.WSURL, "wss://") {
		return fmt.Errorf("invalid feed WS URL: %q", c.Feed.WSURL)
	}
	if c.Feed.ReconnectBaseMS < 0 || c.Feed.ReconnectMaxMS < c.Feed.ReconnectBaseMS {
		return fmt.Errorf("invalid reconnect backoff: base=%dms max=%dms", c.Feed.ReconnectBaseMS, c.Feed.ReconnectMaxMS)
	}
	if len(c.Books) == 0 {
		return errors.New("at least one book is required")
	}

	seen := make(map[string]bool, len(c.Books))
	for _, b := range c.Books {
		if b.Symbol == "" {
			return errors.New("book symbol is required")
		}
		if seen[b.Symbol] {
			return fmt.Errorf("duplicate book %s", b.Symbol)
		}
		seen[b.Symbol] = true
		if _, err := b.Spec(); err != nil {
			return err
		}
	}

	if c.Engine.InboxSize < 0 {
		return fmt.Errorf("inbox size must not be negative: %d", c.Engine.InboxSize)
	}
	if _, err := ParseLevel(c.Logging.Level); err != nil {
		return err
	}
	switch c.Logging.Format {
	case "text", "json":
	default:
		return fmt.Errorf("unknown log format %q", c.Logging.Format)
	}
	if f := c.Logging.File; f.MaxSizeMB < 0 || f.MaxBackups < 0 || f.MaxAgeDays < 0 {
		return fmt.Errorf("invalid log rotation: size=%dMB backups=%d age=%dd", f.MaxSizeMB, f.MaxBackups, f.MaxAgeDays)
	}
	return nil
}

// Spec converts the YAML entry into a book.Spec.
func (b BookConfig) Spec() (book.Spec, error) {
	policy, err := ParsePolicy(b.Policy)
	if err != nil {
		return book.Spec{}, fmt.Errorf("book %s: %w", b.Symbol, err)
	}

	spec := book.Spec{Capacity: b.Capacity, Policy: policy, TrimDepth: b.TrimDepth}
	if spec.Tick, err = quant.NewTickSize(strings.TrimSpace(b.TickSize)); err != nil {
		return book.Spec{}, fmt.Errorf("book %s: tick_size: %w", b.Symbol, err)
	}
	if spec.Lot, err = quant.NewLotSize(strings.TrimSpace(b.LotSize)); err != nil {
		return book.Spec{}, fmt.Errorf("book %s: lot_size: %w", b.Symbol, err)
	}
	if c := spec.Capacity; c < 2 || c > ladder.MaxCapacity || c&(c-1) != 0 {
		return book.Spec{}, fmt.Errorf("book %s: %w: %d", b.Symbol, ladder.ErrInvalidCapacity, c)
	}
	return spec, nil
}

// ParsePolicy maps a config name to a re-anchoring policy. Empty selects
// shift-preserving.
func ParsePolicy(s string) (ladder.Policy, error) {
	switch strings.ToLower(s) {
	case "", "shift", "shift_preserving":
		return ladder.ShiftPreserving, nil
	case "reset", "hard_reset":
		return ladder.HardReset, nil
	default:
		return 0, fmt.Errorf("unknown re-anchor policy %q", s)
	}
}

// overrideWithEnv lets the environment win over the config file.
func overrideWithEnv(cfg *Config) {
	if v := os.Getenv("LADDER_LOG_LEVEL"); v != "" {
		cfg.Logging.Level = v
	}
	if v := os.Getenv("LADDER_LOG_FORMAT"); v != "" {
		cfg.Logging.Format = v
	}
	if v := os.Getenv("LADDER_LOG_FILE"); v != "" {
		cfg.Logging.File.Path = v
	}
	if v := os.Getenv("LADDER_API_ADDR"); v != "" {
		cfg.API.Addr = v
	}
	if v := os.Getenv("LADDER_WS_URL"); v != "" {
		cfg.Feed.WSURL = v
	}
}

// ReadTimeout and the other helpers convert config integers to durations.
func (f FeedConfig) ReadTimeout() time.Duration {
	return time.Duration(f.ReadTimeoutSec) * time.Second
}

func (f FeedConfig) PingInterval() time.Duration {
	return time.Duration(f.PingIntervalSec) * time.Second
}

func (f FeedConfig) Backoff() Backoff {
	return Backoff{
		Base: time.Duration(f.ReconnectBaseMS) * time.Millisecond,
		Max:  time.Duration(f.ReconnectMaxMS) * time.Millisecond,
	}
}
