package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config holds all configuration for the briefing service.
type Config struct {
	General   GeneralConfig   `mapstructure:"general"`
	Server    ServerConfig    `mapstructure:"server"`
	LLM       LLMConfig       `mapstructure:"llm"`
	TTS       TTSConfig       `mapstructure:"tts"`
	Sources   SourcesConfig   `mapstructure:"sources"`
	Storage   StorageConfig   `mapstructure:"storage"`
	Telemetry TelemetryConfig `mapstructure:"telemetry"`
	Scheduler SchedulerConfig `mapstructure:"scheduler"`
	Worker    WorkerConfig    `mapstructure:"worker"`
}

// GeneralConfig contains general application settings
type GeneralConfig struct {
	// Debug enables echo's debug mode (detailed error bodies).
	Debug bool `mapstructure:"debug"`
}

// ServerConfig contains HTTP server and admin auth settings
type ServerConfig struct {
	Address           string        `mapstructure:"address"`
	JWTSecret         string        `mapstructure:"jwt_secret"`
	AdminPasswordHash string        `mapstructure:"admin_password_hash"` // bcrypt
	SessionTTL        time.Duration `mapstructure:"session_ttl"`
	MigrationsDir     string        `mapstructure:"migrations_dir"`
}

func (s ServerConfig) Validate() error {
	if strings.TrimSpace(s.JWTSecret) == "" {
		return fmt.Errorf("server.jwt_secret required")
	}
	if s.SessionTTL < 0 {
		return fmt.Errorf("server.session_ttl cannot be negative")
	}
	return nil
}

// LLMConfig configures the OpenAI-compatible chat model.
type LLMConfig struct {
	APIKey    string        `mapstructure:"api_key"`
	BaseURL   string        `mapstructure:"base_url"`
	Model     string        `mapstructure:"model"`
	MaxTokens int           `mapstructure:"max_tokens"`
	Timeout   time.Duration `mapstructure:"timeout"`
}

// TTSConfig selects and configures the speech backends.
type TTSConfig struct {
	Throttle   time.Duration    `mapstructure:"throttle"`
	Retries    int              `mapstructure:"retries"`
	Cache      TTSCacheConfig   `mapstructure:"cache"`
	OpenAI     OpenAITTSConfig  `mapstructure:"openai"`
	ElevenLabs ElevenLabsConfig `mapstructure:"elevenlabs"`
	Chatterbox ChatterboxConfig `mapstructure:"chatterbox"`
}

type TTSCacheConfig struct {
	Backend string `mapstructure:"backend"` // fs or redis
	Dir     string `mapstructure:"dir"`
}

type OpenAITTSConfig struct {
	APIKey  string `mapstructure:"api_key"`
	BaseURL string `mapstructure:"base_url"`
	Model   string `mapstructure:"model"`
}

type ElevenLabsConfig struct {
	APIKey    string `mapstructure:"api_key"`
	BaseURL   string `mapstructure:"base_url"`
	Model     string `mapstructure:"model"`
	HostVoice string `mapstructure:"host_voice"`
}

type ChatterboxConfig struct {
	URL    string `mapstructure:"url"`
	DevURL string `mapstructure:"dev_url"`
}

// Normalize applies defaults for unset TTS values.
func (t TTSConfig) Normalize() TTSConfig {
	if t.Throttle <= 0 {
		t.Throttle = 100 * time.Millisecond
	}
	if t.Cache.Backend == "" {
		t.Cache.Backend = "fs"
	}
	return t
}

func (t TTSConfig) Validate() error {
	switch t.Cache.Backend {
	case "fs":
		if strings.TrimSpace(t.Cache.Dir) == "" {
			return fmt.Errorf("tts.cache.dir required for the fs cache")
		}
	case "redis":
	default:
		return fmt.Errorf("tts.cache.backend must be fs or redis, got %q", t.Cache.Backend)
	}
	if t.Retries < 0 {
		return fmt.Errorf("tts.retries cannot be negative")
	}
	return nil
}

// SourcesConfig contains content source settings
type SourcesConfig struct {
	NewsAPI      NewsAPIConfig     `mapstructure:"newsapi"`
	WebSearch    WebSearchConfig   `mapstructure:"web_search"`
	FetchTimeout time.Duration     `mapstructure:"fetch_timeout"`
	FetchPolicy  FetchPolicyConfig `mapstructure:"fetch_policy"`
}

// NewsAPIConfig contains NewsAPI settings
type NewsAPIConfig struct {
	APIKey   string `mapstructure:"api_key"`
	Endpoint string `mapstructure:"endpoint"`
}

// WebSearchConfig configures deep-dive research search.
type WebSearchConfig struct {
	Provider     string        `mapstructure:"provider"` // brave or serper
	BraveAPIKey  string        `mapstructure:"brave_api_key"`
	SerperAPIKey string        `mapstructure:"serper_api_key"`
	MaxResults   int           `mapstructure:"max_results"`
	Timeout      time.Duration `mapstructure:"timeout"`
	Fetcher      string        `mapstructure:"fetcher"` // http or chromedp
}

// FetchPolicyConfig lists hosts research must not fetch.
type FetchPolicyConfig struct {
	Disallow []string `mapstructure:"disallow" json:"disallow"`
	Paywall  []string `mapstructure:"paywall" json:"paywall"`
}

// StorageConfig contains storage and persistence settings
type StorageConfig struct {
	Redis    RedisConfig    `mapstructure:"redis"`
	File     FileConfig     `mapstructure:"file"`
	Postgres PostgresConfig `mapstructure:"postgres"`
	S3       S3Config       `mapstructure:"s3"`
}

// RedisConfig contains Redis connection settings
type RedisConfig struct {
	Host     string        `mapstructure:"host"`
	Port     string        `mapstructure:"port"`
	Password string        `mapstructure:"password"`
	DB       int           `mapstructure:"db"`
	Timeout  time.Duration `mapstructure:"timeout"`
}

func (r RedisConfig) Validate() error {
	if strings.TrimSpace(r.Host) == "" {
		return fmt.Errorf("storage.redis.host required")
	}
	if strings.TrimSpace(r.Port) == "" {
		return fmt.Errorf("storage.redis.port required")
	}
	return nil
}

// FileConfig holds local paths. AssetsDir contains the mixer's jingles and
// transitions; DataDir backs the local object store when S3 is not set.
type FileConfig struct {
	DataDir   string `mapstructure:"data_dir"`
	AssetsDir string `mapstructure:"assets_dir"`
	TempDir   string `mapstructure:"temp_dir"`
}

// PostgresConfig contains Postgres connection settings
type PostgresConfig struct {
	URL      string        `mapstructure:"url"`
	Host     string        `mapstructure:"host"`
	Port     string        `mapstructure:"port"`
	User     string        `mapstructure:"user"`
	Password string        `mapstructure:"password"`
	DBName   string        `mapstructure:"dbname"`
	SSLMode  string        `mapstructure:"sslmode"`
	Timeout  time.Duration `mapstructure:"timeout"`
}

func (p PostgresConfig) Validate() error {
	if strings.TrimSpace(p.URL) != "" {
		return nil
	}
	if strings.TrimSpace(p.Host) == "" {
		return fmt.Errorf("storage.postgres.host required when url is not provided")
	}
	if strings.TrimSpace(p.Port) == "" {
		return fmt.Errorf("storage.postgres.port required when url is not provided")
	}
	if strings.TrimSpace(p.DBName) == "" {
		return fmt.Errorf("storage.postgres.dbname required when url is not provided")
	}
	return nil
}

// S3Config contains object storage configuration. An empty bucket selects
// the local filesystem store under storage.file.data_dir.
type S3Config struct {
	Endpoint        string `mapstructure:"endpoint"`
	Region          string `mapstructure:"region"`
	Bucket          string `mapstructure:"bucket"`
	AccessKeyID     string `mapstructure:"access_key_id"`
	SecretAccessKey string `mapstructure:"secret_access_key"`
}

func (s S3Config) Validate() error {
	if strings.TrimSpace(s.Endpoint) == "" && strings.TrimSpace(s.Bucket) == "" {
		return nil
	}
	if strings.TrimSpace(s.Bucket) == "" {
		return fmt.Errorf("storage.s3.bucket required when endpoint is provided")
	}
	return nil
}

// Enabled reports whether S3 should back object storage.
func (s S3Config) Enabled() bool { return strings.TrimSpace(s.Bucket) != "" }

// TelemetryConfig contains telemetry and monitoring settings
type TelemetryConfig struct {
	Enabled      bool   `mapstructure:"enabled"`
	MetricsPort  int    `mapstructure:"metrics_port"`
	OTLPEndpoint string `mapstructure:"otlp_endpoint"`
}

func (t TelemetryConfig) Validate() error {
	if t.Enabled && t.MetricsPort <= 0 {
		return fmt.Errorf("telemetry.metrics_port must be > 0 when telemetry is enabled")
	}
	return nil
}

// SchedulerConfig drives automatic per-user generation.
type SchedulerConfig struct {
	Enabled bool          `mapstructure:"enabled"`
	Tick    time.Duration `mapstructure:"tick"`
	LockTTL time.Duration `mapstructure:"lock_ttl"`
}

func (s SchedulerConfig) Normalize() SchedulerConfig {
	if s.Tick <= 0 {
		s.Tick = time.Minute
	}
	if s.LockTTL <= 0 {
		s.LockTTL = 5 * time.Minute
	}
	return s
}

// WorkerConfig tunes the stream consumer.
type WorkerConfig struct {
	Group       string        `mapstructure:"group"`
	Consumer    string        `mapstructure:"consumer"`
	Block       time.Duration `mapstructure:"block"`
	Count       int64         `mapstructure:"count"`
	RunTimeout  time.Duration `mapstructure:"run_timeout"`
	ReclaimIdle time.Duration `mapstructure:"reclaim_idle"`
}

func (w WorkerConfig) Validate() error {
	if w.RunTimeout > 0 && w.ReclaimIdle > 0 && w.ReclaimIdle <= w.RunTimeout {
		return fmt.Errorf("worker.reclaim_idle must exceed worker.run_timeout")
	}
	return nil
}

// LoadConfig loads config from file
func LoadConfig(path string) *Config {
	viper.SetConfigName("config") // name of config file (without extension)
	viper.SetConfigType("json")   // REQUIRED if the config file does not have the extension in the name
	viper.SetDefault("server.address", ":10001")
	viper.SetDefault("server.session_ttl", "24h")
	viper.SetDefault("server.migrations_dir", "file://migrations")
	viper.SetDefault("llm.max_tokens", 4096)
	viper.SetDefault("llm.timeout", "120s")
	viper.SetDefault("tts.cache.dir", "data/tts_cache")
	viper.SetDefault("sources.fetch_timeout", "15s")
	viper.SetDefault("sources.web_search.provider", "brave")
	viper.SetDefault("sources.web_search.max_results", 5)
	viper.SetDefault("sources.web_search.fetcher", "http")
	viper.SetDefault("storage.file.data_dir", "data")
	viper.SetDefault("storage.file.assets_dir", "assets")
	viper.SetDefault("scheduler.enabled", true)

	if path == "" {
		viper.AddConfigPath("./config") // path to look for the config file in
		viper.AddConfigPath(".")        // optionally look for config in the working directory
		exe, _ := os.Executable()
		exeDir := filepath.Dir(exe)
		viper.AddConfigPath(exeDir)                                // bin/
		viper.AddConfigPath(filepath.Join(exeDir, ".."))           // repo root
		viper.AddConfigPath(filepath.Join(exeDir, "..", "config")) // repo root/config
	} else {
		viper.SetConfigFile(path)
	}

	viper.SetEnvPrefix("MORNINGDRIVE")
	replacer := strings.NewReplacer(".", "_")
	viper.SetEnvKeyReplacer(replacer)

	viper.AutomaticEnv() // read in environment variables that match (MORNINGDRIVE_*)

	err := viper.ReadInConfig() // Find and read the config file
	if err != nil {             // Handle errors reading the config file
		panic(fmt.Errorf("fatal error config file: %w", err))
	}

	var config Config
	if err = viper.Unmarshal(&config); err != nil {
		panic(fmt.Errorf("fatal error config file: %w", err))
	}
	if err := config.finish(); err != nil {
		panic(err)
	}
	return &config
}

// finish normalizes and validates every section.
func (c *Config) finish() error {
	c.TTS = c.TTS.Normalize()
	c.Scheduler = c.Scheduler.Normalize()
	c.Sources.FetchPolicy = c.Sources.FetchPolicy.Normalize()

	validators := []func() error{
		c.Server.Validate,
		c.TTS.Validate,
		c.Telemetry.Validate,
		c.Storage.Redis.Validate,
		c.Storage.Postgres.Validate,
		c.Storage.S3.Validate,
		c.Sources.FetchPolicy.Validate,
		c.Worker.Validate,
	}
	for _, validate := range validators {
		if err := validate(); err != nil {
			return err
		}
	}
	return nil
}
