package di

import (
	"context"
	"fmt"
	"path/filepath"
	"time"

	"github.com/carolinacraus/market-state-api/internal/domain/repository"
	"github.com/carolinacraus/market-state-api/internal/handler/api"
	internalrepo "github.com/carolinacraus/market-state-api/internal/repository"
	"github.com/carolinacraus/market-state-api/internal/service/fmp"
	"github.com/carolinacraus/market-state-api/internal/service/runlock"
	"github.com/carolinacraus/market-state-api/internal/services/analytics"
	"github.com/carolinacraus/market-state-api/internal/services/features"
	"github.com/carolinacraus/market-state-api/internal/usecase"
	"github.com/carolinacraus/market-state-api/pkg/cache"
	pkgch "github.com/carolinacraus/market-state-api/pkg/clickhouse"
	"github.com/carolinacraus/market-state-api/pkg/config"
	pkgkafka "github.com/carolinacraus/market-state-api/pkg/kafka"
	applogger "github.com/carolinacraus/market-state-api/pkg/logger"
	"github.com/carolinacraus/market-state-api/pkg/metrics"
	"github.com/carolinacraus/market-state-api/pkg/postgres"
	"github.com/carolinacraus/market-state-api/pkg/server"
)

// ProvideLogger builds the process logger from the log section.
func ProvideLogger(cfg *config.Config) (*applogger.Logger, error) {
	l, err := applogger.New(&applogger.Config{
		Level:      cfg.Log.Level,
		Format:     cfg.Log.Format,
		Output:     cfg.Log.Output,
		MaxSizeMB:  cfg.Log.MaxSizeMB,
		MaxBackups: cfg.Log.MaxBackups,
		MaxAgeDays: cfg.Log.MaxAgeDays,
	})
	if err != nil {
		return nil, fmt.Errorf("logger: %w", err)
	}
	return l.With(applogger.String("env", cfg.Environment)), nil
}

// ProvideMetrics creates a Prometheus metrics recorder.
func ProvideMetrics(cfg *config.Config) repository.Metrics {
	if !cfg.Metrics.Enabled {
		return metrics.Noop{}
	}
	return metrics.New()
}

// ProvideClickHouseClient connects to ClickHouse and creates the label
// table. A disabled section yields a nil client.
func ProvideClickHouseClient(cfg *config.Config, l *applogger.Logger) (*pkgch.Client, func(), error) {
	if !cfg.ClickHouse.Enabled {
		return nil, func() {}, nil
	}
	client, err := pkgch.NewClient(
		pkgch.WithHost(cfg.ClickHouse.Host),
		pkgch.WithPort(cfg.ClickHouse.Port),
		pkgch.WithDatabase(cfg.ClickHouse.Database),
		pkgch.WithCredentials(cfg.ClickHouse.User, cfg.ClickHouse.Password),
		pkgch.WithPool(4, 2),
		pkgch.WithHTTP(cfg.ClickHouse.UseHTTP),
		pkgch.WithTimeouts(cfg.ClickHouse.DialTimeout, cfg.ClickHouse.ReadTimeout),
		pkgch.WithMaxExecutionTime(cfg.ClickHouse.MaxExecutionTime),
	)
	if err != nil {
		return nil, nil, fmt.Errorf("clickhouse client: %w", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := client.InitSchema(ctx, internalrepo.LabelSchema(cfg.ClickHouse.Database)); err != nil {
		_ = client.Close()
		return nil, nil, fmt.Errorf("clickhouse schema: %w", err)
	}
	l.Info("clickhouse ready", applogger.String("database", cfg.ClickHouse.Database))

	cleanup := func() {
		if err := client.Close(); err != nil {
			l.Warn("clickhouse close error", applogger.Error(err))
		}
	}
	return client, cleanup, nil
}

// ProvideLabelSink stores labels in ClickHouse when a client is configured.
func ProvideLabelSink(client *pkgch.Client, l *applogger.Logger) repository.LabelSink {
	if client == nil {
		return nil
	}
	store := internalrepo.NewCHLabelStore(client.DB(), client.Database())
	store.SetLogger(l)
	return store
}

// ProvidePublisher creates the Kafka label publisher when enabled.
func ProvidePublisher(cfg *config.Config, l *applogger.Logger) (repository.Publisher, func(), error) {
	if !cfg.Kafka.Enabled {
		return nil, func() {}, nil
	}
	producer, err := pkgkafka.NewProducer(
		pkgkafka.WithBrokers(cfg.Kafka.Brokers),
		pkgkafka.WithCompression(cfg.Kafka.Compression),
		pkgkafka.WithRequiredAcks(cfg.Kafka.RequiredAcks),
		pkgkafka.WithMaxAttempts(cfg.Kafka.MaxAttempts),
		pkgkafka.WithWriteTimeout(cfg.Kafka.WriteTimeout),
	)
	if err != nil {
		return nil, nil, fmt.Errorf("kafka producer: %w", err)
	}
	pub := internalrepo.NewKafkaLabelPublisher(producer, cfg.Kafka.Topic)
	l.Info("kafka publisher ready", applogger.Strings("brokers", cfg.Kafka.Brokers), applogger.String("topic", cfg.Kafka.Topic))

	cleanup := func() {
		if err := pub.Close(); err != nil {
			l.Warn("kafka producer close error", applogger.Error(err))
		}
	}
	return pub, cleanup, nil
}

// ProvideCache returns Redis when enabled and an in-process cache otherwise.
func ProvideCache(cfg *config.Config, l *applogger.Logger) (cache.Service, func(), error) {
	if !cfg.Redis.Enabled {
		return cache.NewMemoryCache(), func() {}, nil
	}
	rc, err := cache.NewRedisCache(
		cache.WithRedisAddr(cfg.Redis.Addr),
		cache.WithRedisPassword(cfg.Redis.Password),
		cache.WithRedisDB(cfg.Redis.DB),
		cache.WithRedisPrefix(cfg.Redis.Prefix),
	)
	if err != nil {
		return nil, nil, fmt.Errorf("redis cache: %w", err)
	}
	cleanup := func() {
		if err := rc.Close(); err != nil {
			l.Warn("redis close error", applogger.Error(err))
		}
	}
	return rc, cleanup, nil
}

func ProvideRunLock(c cache.Service, l *applogger.Logger) repository.RunLock {
	return runlock.New(c, l)
}

// ProvideMarketSource creates the FMP daily history client.
func ProvideMarketSource(cfg *config.Config, l *applogger.Logger) repository.MarketSource {
	c := fmp.New(fmp.Config{
		BaseURL:   cfg.Market.BaseURL,
		APIKey:    cfg.Market.APIKey,
		Tickers:   cfg.Market.Tickers,
		RateLimit: cfg.Market.RateLimit,
		Timeout:   cfg.Market.Timeout,
	})
	c.SetLogger(l)
	return c
}

// ProvideBreadthSource opens the breadth database when enabled.
func ProvideBreadthSource(cfg *config.Config, l *applogger.Logger) (repository.BreadthSource, func(), error) {
	if !cfg.Breadth.Enabled {
		return nil, func() {}, nil
	}
	db, err := postgres.Open(cfg.Breadth.DSN)
	if err != nil {
		return nil, nil, fmt.Errorf("breadth db: %w", err)
	}
	src := internalrepo.NewPGBreadthSource(db, cfg.Breadth.Symbols, cfg.Pipeline.StepTimeout)
	src.SetLogger(l)
	return src, func() { _ = db.Close() }, nil
}

// ProvideUploader opens the upload database when enabled.
func ProvideUploader(cfg *config.Config, l *applogger.Logger) (repository.Uploader, func(), error) {
	if !cfg.Upload.Enabled {
		return nil, func() {}, nil
	}
	db, err := postgres.Open(cfg.Upload.DSN)
	if err != nil {
		return nil, nil, fmt.Errorf("upload db: %w", err)
	}
	lists := make(map[string]internalrepo.UploadList, len(cfg.Upload.Lists))
	for name, ul := range cfg.Upload.Lists {
		lists[name] = internalrepo.UploadList{ID: ul.ID, Name: ul.Name, Description: ul.Description}
	}
	up := internalrepo.NewPGUploader(db, lists, cfg.Pipeline.StepTimeout)
	up.SetLogger(l)
	return up, func() { _ = db.Close() }, nil
}

func ProvideEngine(cfg *config.Config, l *applogger.Logger) *features.Engine {
	opts := features.DefaultOptions()
	opts.ROCWindow = cfg.Indicators.ROCWindow
	opts.RSIWindow = cfg.Indicators.RSIWindow
	opts.SlopeWindow = cfg.Indicators.SlopeWindow
	opts.SMAWindow = cfg.Indicators.SMAWindow
	opts.BBWWindow = cfg.Indicators.BBWWindow
	return features.NewEngine(opts, l.With(applogger.String("component", "features")))
}

// ProvideVariants builds the enabled classifiers with their artifact stores.
func ProvideVariants(cfg *config.Config, l *applogger.Logger) ([]usecase.Variant, error) {
	in := analytics.DefaultInputs()
	in.RSIWindow = cfg.Indicators.RSIWindow
	in.SlopeWindow = cfg.Indicators.SlopeWindow
	classifiers, err := analytics.NewSet(cfg.Pipeline.Classifiers, in)
	if err != nil {
		return nil, err
	}

	out := make([]usecase.Variant, 0, len(classifiers))
	for _, c := range classifiers {
		art := cfg.Pipeline.Variants[c.Name()]
		labeled := internalrepo.NewLabeledCSVPanelStore(dataPath(cfg, art.LabeledPanel), c.ScoreColumn())
		labeled.SetLogger(l)
		ledger := internalrepo.NewTextLabelLog(dataPath(cfg, art.Log), dataPath(cfg, art.Diagnostics))
		ledger.SetLogger(l)
		out = append(out, usecase.Variant{
			Classifier: c,
			Labeled:    labeled,
			Log:        ledger,
			Published:  internalrepo.NewFileWatermark(dataPath(cfg, art.Published)),
		})
	}
	return out, nil
}

// ProvidePipeline assembles the updater.
func ProvidePipeline(
	cfg *config.Config,
	l *applogger.Logger,
	market repository.MarketSource,
	breadth repository.BreadthSource,
	engine *features.Engine,
	variants []usecase.Variant,
	sink repository.LabelSink,
	publisher repository.Publisher,
	uploader repository.Uploader,
	lock repository.RunLock,
	c cache.Service,
	m repository.Metrics,
) *usecase.Pipeline {
	raw := internalrepo.NewCSVPanelStore(dataPath(cfg, cfg.Data.RawPanel))
	raw.SetLogger(l)
	ind := internalrepo.NewCSVPanelStore(dataPath(cfg, cfg.Data.IndicatorPanel))
	ind.SetLogger(l)

	return usecase.NewPipeline(usecase.Deps{
		Market:     market,
		Breadth:    breadth,
		Raw:        raw,
		Indicators: ind,
		Engine:     engine,
		Variants:   variants,
		Sink:       sink,
		Publisher:  publisher,
		Uploader:   uploader,
		Lock:       lock,
		Cache:      c,
		Metrics:    m,
	}, usecase.Options{
		Inception:   cfg.InceptionDate(),
		StepTimeout: cfg.Pipeline.StepTimeout,
		LockTTL:     cfg.Redis.LockTTL,
	}, l)
}

func ProvideRegimeReader(cfg *config.Config, p *usecase.Pipeline, c cache.Service, l *applogger.Logger) *usecase.RegimeReader {
	return usecase.NewRegimeReader(p, c, cfg.Redis.CacheTTL, l)
}

func ProvideHandler(l *applogger.Logger, p *usecase.Pipeline, r *usecase.RegimeReader) *api.PipelineHandler {
	return api.NewPipelineHandler(l, p, r)
}

// ProvideApp creates the application server.
func ProvideApp(cfg *config.Config, l *applogger.Logger, h *api.PipelineHandler) *server.App {
	return server.New(cfg, l, h)
}

func dataPath(cfg *config.Config, name string) string {
	if filepath.IsAbs(name) {
		return name
	}
	return filepath.Join(cfg.Data.Dir, name)
}
