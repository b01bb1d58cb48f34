package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseAppliesDefaults(t *testing.T) {
	c, err := Parse([]byte("environment: test\n"))
	require.NoError(t, err)

	assert.Equal(t, "data", c.Data.Dir)
	assert.Equal(t, []string{"distance", "hysteresis"}, c.Pipeline.Classifiers)
	assert.Equal(t, 14, c.Indicators.RSIWindow)
	assert.Equal(t, 20, c.Indicators.SlopeWindow)
	assert.Equal(t, 5*time.Minute, c.Pipeline.StepTimeout)
	assert.Equal(t, "SP500", c.Market.Tickers["^GSPC"])
	assert.Equal(t, "NYMO", c.Breadth.Symbols["$NYMO.N"])
	assert.Equal(t, time.Date(2005, 1, 1, 0, 0, 0, 0, time.UTC), c.InceptionDate())

	a := c.Pipeline.Variants["distance"]
	assert.Equal(t, "MarketStates_System_A.txt", a.Log)
	assert.Equal(t, "MarketStates_Diagnostics_System_A.txt", a.Diagnostics)
	assert.Equal(t, "MarketData_with_States_System_A.csv", a.LabeledPanel)
	assert.Equal(t, "MarketStates_Published_System_A.txt", a.Published)
	assert.Equal(t, "MarketStates_System_B.txt", c.Pipeline.Variants["hysteresis"].Log)
}

func TestParseOverridesDefaults(t *testing.T) {
	c, err := Parse([]byte(`
environment: prod
pipeline:
  classifiers: [threshold]
  variants:
    threshold:
      log: states.txt
indicators:
  rsi_window: 7
market:
  tickers:
    "^GSPC": SP500
`))
	require.NoError(t, err)
	assert.Equal(t, []string{"threshold"}, c.Pipeline.Classifiers)
	assert.Equal(t, "states.txt", c.Pipeline.Variants["threshold"].Log)
	assert.Equal(t, "MarketStates_Diagnostics_Original.txt", c.Pipeline.Variants["threshold"].Diagnostics)
	assert.Equal(t, 7, c.Indicators.RSIWindow)
	assert.Len(t, c.Market.Tickers, 1)
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name string
		yaml string
	}{
		{"unknown classifier", "environment: x\npipeline:\n  classifiers: [magic]\n"},
		{"duplicate classifier", "environment: x\npipeline:\n  classifiers: [distance, distance]\n"},
		{"bad inception", "environment: x\npipeline:\n  inception_date: 01/02/2005\n"},
		{"breadth without dsn", "environment: x\nbreadth:\n  enabled: true\n"},
		{"upload without list", "environment: x\nupload:\n  enabled: true\n  dsn: postgres://u@h/db\n"},
		{"kafka without brokers", "environment: x\nkafka:\n  enabled: true\n"},
		{"bad log level", "environment: x\nlog:\n  level: loud\n"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Parse([]byte(tt.yaml))
			assert.Error(t, err)
		})
	}
}

func TestLoadWithEnv(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("environment: test\n"), 0o644))

	t.Setenv("FMP_API_KEY", "secret")
	t.Setenv("DATA_DIR", "/var/lib/marketstate")
	t.Setenv("KAFKA_BROKERS", "k1:9092,k2:9092")

	c, err := LoadWithEnv(path)
	require.NoError(t, err)
	assert.Equal(t, "secret", c.Market.APIKey)
	assert.Equal(t, "/var/lib/marketstate", c.Data.Dir)
	assert.Equal(t, []string{"k1:9092", "k2:9092"}, c.Kafka.Brokers)
}

func TestLoadMissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	assert.Error(t, err)
}
