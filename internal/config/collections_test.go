package config

import (
	"strings"
	"testing"
	"time"

	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBucketFor(t *testing.T) {
	cfg := DefaultCollectionsConfig()

	cases := map[int]string{
		-5:  "0-30",
		0:   "0-30",
		30:  "0-30",
		31:  "31-60",
		75:  "61-90",
		91:  "90+",
		400: "90+",
	}
	for days, want := range cases {
		assert.Equal(t, want, cfg.BucketFor(days), "days=%d", days)
	}
}

func TestValidateCollectionsConfigRejectsGaps(t *testing.T) {
	cfg := DefaultCollectionsConfig()
	cfg.AgingBuckets = []AgingBucket{
		{Label: "0-30", MinDays: 0, MaxDays: intPtr(30)},
		{Label: "45+", MinDays: 45},
	}

	err := ValidateCollectionsConfig(cfg)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "minDays must be 31")
}

func TestValidateCollectionsConfigRejectsOpenEndedMiddle(t *testing.T) {
	cfg := DefaultCollectionsConfig()
	cfg.AgingBuckets = []AgingBucket{
		{Label: "0+", MinDays: 0},
		{Label: "31-60", MinDays: 31, MaxDays: intPtr(60)},
	}

	require.Error(t, ValidateCollectionsConfig(cfg))
}

func TestWithDefaults(t *testing.T) {
	cfg := CollectionsConfig{LookaheadDays: 3, CatchUpDays: -2}.WithDefaults()

	assert.Equal(t, 3, cfg.LookaheadDays)
	assert.Equal(t, 0, cfg.CatchUpDays)
	assert.Equal(t, 8, cfg.Workers)
	assert.Equal(t, 5*time.Second, cfg.TemplateTimeout)
	assert.Len(t, cfg.AgingBuckets, 4)
}

func TestWithDefaultsKeepsZeroLookahead(t *testing.T) {
	assert.Equal(t, 0, CollectionsConfig{LookaheadDays: 0}.WithDefaults().LookaheadDays)
	assert.Equal(t, 7, CollectionsConfig{LookaheadDays: -1}.WithDefaults().LookaheadDays)
}

func TestDecodeCollectionsConfigLookahead(t *testing.T) {
	decode := func(yml string) CollectionsConfig {
		v := viper.New()
		v.SetConfigType("yaml")
		v.SetDefault("collections.lookaheadDays", DefaultCollectionsConfig().LookaheadDays)
		require.NoError(t, v.ReadConfig(strings.NewReader(yml)))
		cfg, err := decodeCollectionsConfig(v)
		require.NoError(t, err)
		return cfg
	}

	assert.Equal(t, 0, decode("collections:\n  lookaheadDays: 0\n").LookaheadDays)
	assert.Equal(t, 7, decode("collections:\n  workers: 2\n").LookaheadDays)
}

func TestStaticHolder(t *testing.T) {
	holder := NewStaticCollectionsConfigHolder(CollectionsConfig{LookaheadDays: 10})

	assert.Equal(t, 10, holder.Get().LookaheadDays)
}

func TestLoadReadsEnvironment(t *testing.T) {
	t.Setenv("APP_SERVICE", "recouply-test")
	t.Setenv("REDIS_ADDR", "localhost:6379")
	t.Setenv("SMTP_PORT", "not-a-number")
	t.Setenv("ENGINE_ENABLED", "yes")

	cfg := Load()

	assert.Equal(t, "recouply-test", cfg.AppName)
	assert.True(t, cfg.Redis.Enabled())
	assert.Equal(t, 587, cfg.Email.SMTPPort)
	assert.False(t, cfg.Email.Enabled())
	assert.True(t, cfg.EngineEnabled)
}
