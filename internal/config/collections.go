package config

import (
	"errors"
	"fmt"
	"log"
	"strings"
	"sync/atomic"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/spf13/viper"
)

// CollectionsConfig tunes the outreach and reconciliation engines.
type CollectionsConfig struct {
	LookaheadDays   int           `mapstructure:"lookaheadDays"`
	CatchUpDays     int           `mapstructure:"catchUpDays"`
	Workers         int           `mapstructure:"workers"`
	PhaseTimeout    time.Duration `mapstructure:"phaseTimeout"`
	TemplateTimeout time.Duration `mapstructure:"templateTimeout"`
	BrandingTimeout time.Duration `mapstructure:"brandingTimeout"`
	DispatchTimeout time.Duration `mapstructure:"dispatchTimeout"`
	RunInterval     time.Duration `mapstructure:"runInterval"`
	AgingBuckets    []AgingBucket `mapstructure:"agingBuckets"`
}

type AgingBucket struct {
	Label   string `mapstructure:"label"`
	MinDays int    `mapstructure:"minDays"`
	MaxDays *int   `mapstructure:"maxDays"`
}

func (b AgingBucket) Contains(days int) bool {
	if days < b.MinDays {
		return false
	}
	return b.MaxDays == nil || days <= *b.MaxDays
}

// BucketFor returns the label of the bucket holding daysPastDue. Invoices not
// yet due fall into the first bucket.
func (c CollectionsConfig) BucketFor(daysPastDue int) string {
	if len(c.AgingBuckets) == 0 {
		return ""
	}
	if daysPastDue < 0 {
		daysPastDue = 0
	}
	for _, bucket := range c.AgingBuckets {
		if bucket.Contains(daysPastDue) {
			return bucket.Label
		}
	}
	return c.AgingBuckets[len(c.AgingBuckets)-1].Label
}

func DefaultCollectionsConfig() CollectionsConfig {
	return CollectionsConfig{
		LookaheadDays:   7,
		CatchUpDays:     0,
		Workers:         8,
		PhaseTimeout:    10 * time.Minute,
		TemplateTimeout: 5 * time.Second,
		BrandingTimeout: 3 * time.Second,
		DispatchTimeout: 15 * time.Second,
		RunInterval:     24 * time.Hour,
		AgingBuckets: []AgingBucket{
			{Label: "0-30", MinDays: 0, MaxDays: intPtr(30)},
			{Label: "31-60", MinDays: 31, MaxDays: intPtr(60)},
			{Label: "61-90", MinDays: 61, MaxDays: intPtr(90)},
			{Label: "90+", MinDays: 91, MaxDays: nil},
		},
	}
}

func intPtr(v int) *int { return &v }

// WithDefaults fills zero values from DefaultCollectionsConfig. A zero
// lookahead is kept: only steps due today are generated. Unset lookahead in
// collections.yml is defaulted by viper before this runs.
func (c CollectionsConfig) WithDefaults() CollectionsConfig {
	defaults := DefaultCollectionsConfig()
	if c.LookaheadDays < 0 {
		c.LookaheadDays = defaults.LookaheadDays
	}
	if c.CatchUpDays < 0 {
		c.CatchUpDays = 0
	}
	if c.Workers <= 0 {
		c.Workers = defaults.Workers
	}
	if c.PhaseTimeout <= 0 {
		c.PhaseTimeout = defaults.PhaseTimeout
	}
	if c.TemplateTimeout <= 0 {
		c.TemplateTimeout = defaults.TemplateTimeout
	}
	if c.BrandingTimeout <= 0 {
		c.BrandingTimeout = defaults.BrandingTimeout
	}
	if c.DispatchTimeout <= 0 {
		c.DispatchTimeout = defaults.DispatchTimeout
	}
	if c.RunInterval <= 0 {
		c.RunInterval = defaults.RunInterval
	}
	if len(c.AgingBuckets) == 0 {
		c.AgingBuckets = defaults.AgingBuckets
	}
	return c
}

type CollectionsConfigHolder struct {
	current atomic.Value // holds CollectionsConfig
}

// NewStaticCollectionsConfigHolder wraps a fixed config, used by tests and tools.
func NewStaticCollectionsConfigHolder(cfg CollectionsConfig) *CollectionsConfigHolder {
	holder := &CollectionsConfigHolder{}
	holder.current.Store(cfg.WithDefaults())
	return holder
}

func NewCollectionsConfigHolder() (*CollectionsConfigHolder, error) {
	v := viper.New()

	v.SetConfigName("collections")
	v.SetConfigType("yml")
	v.AddConfigPath("/var/lib/recouply/config")
	v.AddConfigPath("/etc/recouply")
	v.AddConfigPath(".")

	v.SetEnvPrefix("RECOUPLY")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	defaults := DefaultCollectionsConfig()
	v.SetDefault("collections.lookaheadDays", defaults.LookaheadDays)
	v.SetDefault("collections.catchUpDays", defaults.CatchUpDays)
	v.SetDefault("collections.workers", defaults.Workers)
	v.SetDefault("collections.phaseTimeout", defaults.PhaseTimeout)
	v.SetDefault("collections.templateTimeout", defaults.TemplateTimeout)
	v.SetDefault("collections.brandingTimeout", defaults.BrandingTimeout)
	v.SetDefault("collections.dispatchTimeout", defaults.DispatchTimeout)
	v.SetDefault("collections.runInterval", defaults.RunInterval)

	fileLoaded := true
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, err
		}
		fileLoaded = false
	}

	cfg, err := decodeCollectionsConfig(v)
	if err != nil {
		return nil, err
	}

	holder := &CollectionsConfigHolder{}
	holder.current.Store(cfg)

	if fileLoaded {
		v.WatchConfig()
		v.OnConfigChange(func(e fsnotify.Event) {
			updated, err := decodeCollectionsConfig(v)
			if err != nil {
				log.Printf("[collections-config] invalid config ignored: %v", err)
				return
			}
			holder.current.Store(updated)
			log.Printf("[collections-config] reloaded from %s", e.Name)
		})
	}

	return holder, nil
}

func (h *CollectionsConfigHolder) Get() CollectionsConfig {
	return h.current.Load().(CollectionsConfig)
}

func decodeCollectionsConfig(v *viper.Viper) (CollectionsConfig, error) {
	var cfg CollectionsConfig
	if err := v.UnmarshalKey("collections", &cfg); err != nil {
		return CollectionsConfig{}, err
	}
	cfg = cfg.WithDefaults()
	if err := ValidateCollectionsConfig(cfg); err != nil {
		return CollectionsConfig{}, err
	}
	return cfg, nil
}

func ValidateCollectionsConfig(cfg CollectionsConfig) error {
	if len(cfg.AgingBuckets) == 0 {
		return errors.New("collections.agingBuckets cannot be empty")
	}
	prevMax := -1
	for i, bucket := range cfg.AgingBuckets {
		if strings.TrimSpace(bucket.Label) == "" {
			return fmt.Errorf("collections.agingBuckets[%d]: label is required", i)
		}
		if bucket.MinDays != prevMax+1 {
			return fmt.Errorf("collections.agingBuckets[%d]: minDays must be %d", i, prevMax+1)
		}
		if bucket.MaxDays == nil {
			if i != len(cfg.AgingBuckets)-1 {
				return fmt.Errorf("collections.agingBuckets[%d]: only the last bucket may be open-ended", i)
			}
			continue
		}
		if *bucket.MaxDays < bucket.MinDays {
			return fmt.Errorf("collections.agingBuckets[%d]: maxDays below minDays", i)
		}
		prevMax = *bucket.MaxDays
	}
	return nil
}
