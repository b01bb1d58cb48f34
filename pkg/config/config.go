package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/creasty/defaults"
	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"

	"github.com/carolinacraus/market-state-api/pkg/util"
)

type Config struct {
	Environment string `yaml:"environment" default:"development" validate:"required"`
	Log         struct {
		Level      string `yaml:"level" default:"info" validate:"oneof=debug info warn error"`
		Format     string `yaml:"format" default:"console" validate:"oneof=json console"`
		Output     string `yaml:"output" default:"stdout"`
		MaxSizeMB  int    `yaml:"max_size_mb" default:"50"`
		MaxBackups int    `yaml:"max_backups" default:"5"`
		MaxAgeDays int    `yaml:"max_age_days" default:"30"`
	} `yaml:"log"`
	Server struct {
		Port            int           `yaml:"port" default:"8080" validate:"min=1,max=65535"`
		ReadTimeout     time.Duration `yaml:"read_timeout" default:"30s"`
		WriteTimeout    time.Duration `yaml:"write_timeout" default:"10m"`
		ShutdownTimeout time.Duration `yaml:"shutdown_timeout" default:"15s"`
	} `yaml:"server"`
	Metrics struct {
		Enabled bool   `yaml:"enabled" default:"true"`
		Path    string `yaml:"path" default:"/metrics"`
	} `yaml:"metrics"`
	Data struct {
		Dir            string `yaml:"dir" default:"data" validate:"required"`
		RawPanel       string `yaml:"raw_panel" default:"MarketStates_Data.csv" validate:"required"`
		IndicatorPanel string `yaml:"indicator_panel" default:"MarketData_with_Indicators.csv" validate:"required"`
	} `yaml:"data"`
	Pipeline struct {
		// Enabled classifier variants, in the order they run.
		Classifiers   []string                   `yaml:"classifiers" default:"[\"distance\",\"hysteresis\"]" validate:"min=1,dive,oneof=threshold distance hysteresis"`
		Variants      map[string]VariantArtifacts `yaml:"variants"`
		InceptionDate string                     `yaml:"inception_date" default:"2005-01-01" validate:"datetime=2006-01-02"`
		StepTimeout   time.Duration              `yaml:"step_timeout" default:"5m"`
	} `yaml:"pipeline"`
	Indicators struct {
		ROCWindow   int `yaml:"roc_window" default:"10" validate:"min=1"`
		RSIWindow   int `yaml:"rsi_window" default:"14" validate:"min=1"`
		SlopeWindow int `yaml:"slope_window" default:"20" validate:"min=2"`
		SMAWindow   int `yaml:"sma_window" default:"3" validate:"min=1"`
		BBWWindow   int `yaml:"bbw_window" default:"20" validate:"min=2"`
	} `yaml:"indicators"`
	Market struct {
		BaseURL   string            `yaml:"base_url" default:"https://financialmodelingprep.com/api/v3" validate:"url"`
		APIKey    string            `yaml:"api_key"`
		Tickers   map[string]string `yaml:"tickers"`
		RateLimit float64           `yaml:"rate_limit" default:"5"`
		Timeout   time.Duration     `yaml:"timeout" default:"30s"`
	} `yaml:"market"`
	Breadth struct {
		Enabled bool              `yaml:"enabled"`
		DSN     string            `yaml:"dsn"`
		Symbols map[string]string `yaml:"symbols"`
	} `yaml:"breadth"`
	Upload struct {
		Enabled bool                  `yaml:"enabled"`
		DSN     string                `yaml:"dsn"`
		Lists   map[string]UploadList `yaml:"lists"`
	} `yaml:"upload"`
	ClickHouse struct {
		Enabled          bool          `yaml:"enabled"`
		Host             string        `yaml:"host" default:"localhost"`
		Port             int           `yaml:"port" default:"9000"`
		Database         string        `yaml:"database" default:"marketstate"`
		User             string        `yaml:"user" default:"default"`
		Password         string        `yaml:"password"`
		UseHTTP          bool          `yaml:"use_http"`
		DialTimeout      time.Duration `yaml:"dial_timeout" default:"10s"`
		ReadTimeout      time.Duration `yaml:"read_timeout" default:"30s"`
		WriteTimeout     time.Duration `yaml:"write_timeout" default:"30s"`
		MaxExecutionTime time.Duration `yaml:"max_execution_time" default:"60s"`
	} `yaml:"clickhouse"`
	Kafka struct {
		Enabled      bool          `yaml:"enabled"`
		Brokers      []string      `yaml:"brokers"`
		Topic        string        `yaml:"topic" default:"market-regimes"`
		RequiredAcks int           `yaml:"required_acks" default:"-1"`
		Compression  string        `yaml:"compression" default:"snappy"`
		MaxAttempts  int           `yaml:"max_attempts" default:"3"`
		WriteTimeout time.Duration `yaml:"write_timeout" default:"10s"`
	} `yaml:"kafka"`
	Redis struct {
		Enabled  bool          `yaml:"enabled"`
		Addr     string        `yaml:"addr" default:"localhost:6379"`
		Password string        `yaml:"password"`
		DB       int           `yaml:"db"`
		Prefix   string        `yaml:"prefix" default:"marketstate"`
		LockTTL  time.Duration `yaml:"lock_ttl" default:"30m"`
		CacheTTL time.Duration `yaml:"cache_ttl" default:"1h"`
	} `yaml:"redis"`
}

// VariantArtifacts names the per-classifier ledger and labeled panel files.
// Published holds the last day delivered to the sink and publisher.
type VariantArtifacts struct {
	LabeledPanel string `yaml:"labeled_panel"`
	Log          string `yaml:"log"`
	Diagnostics  string `yaml:"diagnostics"`
	Published    string `yaml:"published"`
}

// UploadList identifies the relational list a classifier's ledger is uploaded to.
type UploadList struct {
	ID          int    `yaml:"id" validate:"min=1"`
	Name        string `yaml:"name" validate:"required"`
	Description string `yaml:"description"`
}

var variantSuffix = map[string]string{
	"threshold":  "Original",
	"distance":   "System_A",
	"hysteresis": "System_B",
}

// Parse decodes YAML bytes, applies defaults and validates.
func Parse(b []byte) (*Config, error) {
	var c Config
	if err := defaults.Set(&c); err != nil {
		return nil, fmt.Errorf("apply defaults: %w", err)
	}
	if err := yaml.Unmarshal(b, &c); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}
	c.fillVariants()
	if len(c.Market.Tickers) == 0 {
		c.Market.Tickers = DefaultTickers()
	}
	if len(c.Breadth.Symbols) == 0 {
		c.Breadth.Symbols = map[string]string{"$NYAD.N": "NYAD", "$NYMO.N": "NYMO"}
	}

	if err := c.Validate(); err != nil {
		return nil, fmt.Errorf("validate config: %w", err)
	}
	return &c, nil
}

// Load reads and parses a YAML configuration file.
func Load(path string) (*Config, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}
	return Parse(b)
}

// LoadWithEnv loads config from YAML and overrides with environment variables.
func LoadWithEnv(path string) (*Config, error) {
	c, err := Load(path)
	if err != nil {
		return nil, err
	}
	c.applyEnv(os.Getenv)
	if err := c.Validate(); err != nil {
		return nil, fmt.Errorf("validate config: %w", err)
	}
	return c, nil
}

func (c *Config) applyEnv(getenv func(string) string) {
	if v := getenv("FMP_API_KEY"); v != "" {
		c.Market.APIKey = v
	}
	if v := getenv("DATA_DIR"); v != "" {
		c.Data.Dir = v
	}
	if v := getenv("LOG_LEVEL"); v != "" {
		c.Log.Level = v
	}
	if v := getenv("BREADTH_DSN"); v != "" {
		c.Breadth.DSN = v
	}
	if v := getenv("UPLOAD_DSN"); v != "" {
		c.Upload.DSN = v
	}
	if v := getenv("REDIS_ADDR"); v != "" {
		c.Redis.Addr = v
	}
	c.Redis.DB = util.ParseIntDefault(getenv("REDIS_DB"), c.Redis.DB)
	if v := getenv("KAFKA_BROKERS"); v != "" {
		c.Kafka.Brokers = strings.Split(v, ",")
	}
}

func (c *Config) fillVariants() {
	if c.Pipeline.Variants == nil {
		c.Pipeline.Variants = make(map[string]VariantArtifacts)
	}
	for name, suffix := range variantSuffix {
		v := c.Pipeline.Variants[name]
		if v.LabeledPanel == "" {
			v.LabeledPanel = "MarketData_with_States_" + suffix + ".csv"
		}
		if v.Log == "" {
			v.Log = "MarketStates_" + suffix + ".txt"
		}
		if v.Diagnostics == "" {
			v.Diagnostics = "MarketStates_Diagnostics_" + suffix + ".txt"
		}
		if v.Published == "" {
			v.Published = "MarketStates_Published_" + suffix + ".txt"
		}
		c.Pipeline.Variants[name] = v
	}
}

// Validate checks struct tags and the cross-field rules tags cannot express.
func (c *Config) Validate() error {
	if err := validator.New().Struct(c); err != nil {
		return err
	}
	if c.Breadth.Enabled && c.Breadth.DSN == "" {
		return fmt.Errorf("breadth.dsn is required when breadth is enabled")
	}
	if c.Upload.Enabled {
		if c.Upload.DSN == "" {
			return fmt.Errorf("upload.dsn is required when upload is enabled")
		}
		for _, name := range c.Pipeline.Classifiers {
			if _, ok := c.Upload.Lists[name]; !ok {
				return fmt.Errorf("upload.lists.%s is required when upload is enabled", name)
			}
		}
	}
	if c.Kafka.Enabled && len(c.Kafka.Brokers) == 0 {
		return fmt.Errorf("kafka.brokers cannot be empty when kafka is enabled")
	}
	seen := make(map[string]bool, len(c.Pipeline.Classifiers))
	for _, name := range c.Pipeline.Classifiers {
		if seen[name] {
			return fmt.Errorf("pipeline.classifiers: duplicate %q", name)
		}
		seen[name] = true
	}
	return nil
}

// InceptionDate returns the first trading day requested by a full rebuild.
func (c *Config) InceptionDate() time.Time {
	t, _ := util.ParseDay(c.Pipeline.InceptionDate)
	return t
}

// DefaultTickers maps provider tickers to the instrument symbols used in column names.
func DefaultTickers() map[string]string {
	return map[string]string{
		"^GSPC":    "SP500",
		"^TNX":     "Yield",
		"DX-Y.NYB": "DXY",
		"CL=F":     "Oil",
		"HG=F":     "Copper",
		"GC=F":     "Gold",
		"^VIX":     "VIX",
		"RSP":      "RSP",
		"SPY":      "SPY",
	}
}
