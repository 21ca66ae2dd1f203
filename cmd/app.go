package main

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"os"

	"github.com/redis/go-redis/v9"
	otelmetric "go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"

	"github.com/mohammad-safakhou/morningdrive/config"
	"github.com/mohammad-safakhou/morningdrive/internal/audio"
	"github.com/mohammad-safakhou/morningdrive/internal/content"
	"github.com/mohammad-safakhou/morningdrive/internal/llm"
	"github.com/mohammad-safakhou/morningdrive/internal/objectstore"
	"github.com/mohammad-safakhou/morningdrive/internal/pipeline"
	"github.com/mohammad-safakhou/morningdrive/internal/queue/streams"
	"github.com/mohammad-safakhou/morningdrive/internal/runtime"
	"github.com/mohammad-safakhou/morningdrive/internal/script"
	"github.com/mohammad-safakhou/morningdrive/internal/store"
	"github.com/mohammad-safakhou/morningdrive/internal/tts"
	"github.com/mohammad-safakhou/morningdrive/tools/web_fetch"
	"github.com/mohammad-safakhou/morningdrive/tools/web_search"
)

// app holds the process-wide dependencies shared by every command.
type app struct {
	cfg       *config.Config
	store     *store.Store
	rdb       *redis.Client
	media     objectstore.Storage
	registry  *streams.SchemaRegistry
	publisher *streams.Publisher
	telemetry *runtime.Telemetry
	meter     otelmetric.Meter
	tracer    trace.Tracer
}

func newLogger(prefix string) *log.Logger {
	return log.New(os.Stdout, "["+prefix+"] ", log.LstdFlags)
}

func bootstrap(ctx context.Context, cfgPath, service string) (*app, error) {
	cfg := config.LoadConfig(cfgPath)
	a := &app{cfg: cfg}

	tele, meter, tracer, err := runtime.SetupTelemetry(ctx, cfg.Telemetry, runtime.TelemetryOptions{
		ServiceName:    service,
		ServiceVersion: version,
		MetricsPort:    cfg.Telemetry.MetricsPort,
	})
	if err != nil {
		return nil, fmt.Errorf("telemetry: %w", err)
	}
	a.telemetry, a.meter, a.tracer = tele, meter, tracer

	dsn, err := runtime.BuildPostgresDSN(cfg)
	if err != nil {
		return nil, err
	}
	if a.store, err = store.NewWithDSN(ctx, dsn); err != nil {
		return nil, fmt.Errorf("postgres: %w", err)
	}
	if a.rdb, err = runtime.NewRedisClient(ctx, cfg.Storage.Redis); err != nil {
		a.close(ctx)
		return nil, err
	}
	if a.media, err = buildMedia(ctx, cfg.Storage); err != nil {
		a.close(ctx)
		return nil, err
	}
	a.registry = streams.NewSchemaRegistry()
	if err := streams.RegisterBaseSchemas(a.registry); err != nil {
		a.close(ctx)
		return nil, err
	}
	a.publisher = streams.NewPublisher(a.rdb, a.registry)
	return a, nil
}

func (a *app) close(ctx context.Context) {
	if a.rdb != nil {
		_ = a.rdb.Close()
	}
	if a.store != nil {
		_ = a.store.Close()
	}
	if err := a.telemetry.Shutdown(ctx); err != nil {
		log.Printf("warn: telemetry shutdown: %v", err)
	}
}

// buildMedia selects S3 when a bucket is configured, else the local data dir.
func buildMedia(ctx context.Context, cfg config.StorageConfig) (objectstore.Storage, error) {
	if cfg.S3.Enabled() {
		s3, err := objectstore.NewS3(objectstore.S3Config{
			Endpoint:  cfg.S3.Endpoint,
			Region:    cfg.S3.Region,
			AccessKey: cfg.S3.AccessKeyID,
			SecretKey: cfg.S3.SecretAccessKey,
			Bucket:    cfg.S3.Bucket,
			PathStyle: cfg.S3.Endpoint != "",
		})
		if err != nil {
			return nil, fmt.Errorf("s3: %w", err)
		}
		if err := s3.EnsureBucket(ctx); err != nil {
			return nil, fmt.Errorf("s3 bucket: %w", err)
		}
		return s3, nil
	}
	return objectstore.NewLocal(cfg.File.DataDir)
}

func (a *app) metricsHandler() http.Handler { return a.telemetry.MetricsHandler() }

// orchestrator wires the full generation pipeline from config.
func (a *app) orchestrator() (*pipeline.Orchestrator, error) {
	cfg := a.cfg
	httpClient := &http.Client{Timeout: cfg.Sources.FetchTimeout}

	model, err := llm.NewOpenAI(llm.Config{
		APIKey:    cfg.LLM.APIKey,
		BaseURL:   cfg.LLM.BaseURL,
		Model:     cfg.LLM.Model,
		MaxTokens: cfg.LLM.MaxTokens,
		Timeout:   cfg.LLM.Timeout,
	}, newLogger("LLM"))
	if err != nil {
		return nil, fmt.Errorf("llm: %w", err)
	}
	styles, err := script.LoadStyles()
	if err != nil {
		return nil, err
	}

	contentLogger := newLogger("CONTENT")
	aggregator := &content.Aggregator{
		News:    &content.RSSNews{Client: httpClient, NewsAPIKey: cfg.Sources.NewsAPI.APIKey, NewsAPIBaseURL: cfg.Sources.NewsAPI.Endpoint, Logger: contentLogger},
		Sports:  &content.ESPNSports{Client: httpClient, Logger: contentLogger},
		Weather: &content.OpenMeteoWeather{Client: httpClient, Logger: contentLogger},
		Fun:     &content.FunFacts{Client: httpClient, Logger: contentLogger},
		Market:  &content.YahooMarket{Client: httpClient},
		Music:   &content.MusicCatalog{Store: a.store},
		Timeout: cfg.Sources.FetchTimeout,
		Logger:  contentLogger,
	}

	research, err := a.expander(model, styles)
	if err != nil {
		return nil, err
	}

	synth, err := a.synthesizer()
	if err != nil {
		return nil, err
	}

	mixer := &audio.Mixer{
		Assets: audio.NewLibrary(cfg.Storage.File.AssetsDir, newLogger("MIXER")),
		Store:  a.media,
		Logger: newLogger("MIXER"),
	}

	o := &pipeline.Orchestrator{
		Store:    a.store,
		Content:  aggregator,
		Writer:   &script.Generator{LLM: model, Styles: styles, Logger: newLogger("SCRIPT")},
		Speech:   synth,
		Mixer:    mixer,
		Media:    a.media,
		TempRoot: cfg.Storage.File.TempDir,
		Logger:   newLogger("PIPELINE"),
		Tracer:   a.tracer,
	}
	if research != nil {
		o.Research = research
	}
	return o, nil
}

// expander returns nil when no search provider is configured; deep-dive tags
// then get their fallback text.
func (a *app) expander(model llm.Completer, styles *script.Styles) (*script.Expander, error) {
	ws := a.cfg.Sources.WebSearch
	key := ws.BraveAPIKey
	if web_search.Provider(ws.Provider) == web_search.SerperProvider {
		key = ws.SerperAPIKey
	}
	if key == "" {
		log.Printf("warn: no %s api key; deep dives use fallback text", ws.Provider)
		return nil, nil
	}
	searcher, err := web_search.NewWebSearcher(web_search.Provider(ws.Provider), key, &http.Client{Timeout: ws.Timeout})
	if err != nil {
		return nil, fmt.Errorf("web search: %w", err)
	}
	fetcher, err := web_fetch.NewWebFetcher(web_fetch.FetcherType(ws.Fetcher), ws.Timeout, 0)
	if err != nil {
		return nil, fmt.Errorf("web fetch: %w", err)
	}
	fetcher = web_fetch.WithBlockedHosts(fetcher, a.cfg.Sources.FetchPolicy.Blocked())
	return &script.Expander{LLM: model, Search: searcher, Fetcher: fetcher, Styles: styles, Logger: newLogger("DEEPDIVE")}, nil
}

func (a *app) synthesizer() (*tts.Synthesizer, error) {
	cfg := a.cfg.TTS
	logger := newLogger("TTS")
	registry := tts.NewRegistry(
		&tts.Chatterbox{URL: cfg.Chatterbox.URL, DevURL: cfg.Chatterbox.DevURL, Logger: logger},
		&tts.ElevenLabs{BaseURL: cfg.ElevenLabs.BaseURL, APIKey: cfg.ElevenLabs.APIKey, Model: cfg.ElevenLabs.Model, HostVoice: cfg.ElevenLabs.HostVoice},
		tts.NewOpenAISpeech(tts.OpenAIConfig{APIKey: cfg.OpenAI.APIKey, BaseURL: cfg.OpenAI.BaseURL, Model: cfg.OpenAI.Model}, nil),
	)
	var cache tts.Cache
	switch cfg.Cache.Backend {
	case "redis":
		cache = tts.NewRedisCache(a.rdb)
	default:
		fs, err := tts.NewFSCache(cfg.Cache.Dir)
		if err != nil {
			return nil, fmt.Errorf("tts cache: %w", err)
		}
		cache = fs
	}
	synth := tts.NewSynthesizer(registry, cache, logger)
	synth.Throttle = cfg.Throttle
	synth.Retries = cfg.Retries
	return synth, nil
}
