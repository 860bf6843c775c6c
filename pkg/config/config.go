package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// ServerConfig captures runtime settings for the screening web service.
type ServerConfig struct {
	ListenAddr     string        `mapstructure:"listen_addr"`
	StaticDir      string        `mapstructure:"static_dir"`
	RunnerURL      string        `mapstructure:"runner_url"`
	TopK           int           `mapstructure:"top_k"`
	ImageSize      int           `mapstructure:"image_size"`
	ConfThreshold  float64       `mapstructure:"conf_threshold"`
	RejectBelow    float64       `mapstructure:"reject_threshold"`
	FetchTimeout   time.Duration `mapstructure:"fetch_timeout"`
	FetchUserAgent string        `mapstructure:"fetch_user_agent"`
	MaxUploadBytes int64         `mapstructure:"max_upload_bytes"`
	RequestTimeout time.Duration `mapstructure:"request_timeout"`
	Tracing        bool          `mapstructure:"tracing"`
	APIKeys        []string      `mapstructure:"api_keys"`
	Storage        StorageConfig `mapstructure:"storage"`
	Results        ResultsConfig `mapstructure:"results"`
}

// StorageConfig selects where uploaded and downloaded images are written.
type StorageConfig struct {
	Backend  string     `mapstructure:"backend"`
	LocalDir string     `mapstructure:"local_dir"`
	S3       S3Config   `mapstructure:"s3"`
	SFTP     SFTPConfig `mapstructure:"sftp"`
}

type S3Config struct {
	Endpoint        string `mapstructure:"endpoint"`
	Region          string `mapstructure:"region"`
	Bucket          string `mapstructure:"bucket"`
	Prefix          string `mapstructure:"prefix"`
	AccessKeyID     string `mapstructure:"access_key_id"`
	SecretAccessKey string `mapstructure:"secret_access_key"`
}

type SFTPConfig struct {
	Addr           string `mapstructure:"addr"`
	Username       string `mapstructure:"username"`
	Password       string `mapstructure:"password"`
	PrivateKeyPath string `mapstructure:"private_key_path"`
	Dir            string `mapstructure:"dir"`
}

// ResultsConfig selects where prediction records are kept.
type ResultsConfig struct {
	Backend     string        `mapstructure:"backend"`
	RedisURL    string        `mapstructure:"redis_url"`
	DatabaseURL string        `mapstructure:"database_url"`
	TTL         time.Duration `mapstructure:"ttl"`
}

// LoadServer loads server configuration from defaults, files, and env vars.
// Nested keys map to env vars with underscores, e.g. RETINA_STORAGE_BACKEND.
func LoadServer() (ServerConfig, error) {
	v := viper.New()
	v.SetConfigName("config")
	v.AddConfigPath("./configs")
	v.SetEnvPrefix("RETINA")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return ServerConfig{}, fmt.Errorf("load config: %w", err)
		}
	}

	var cfg ServerConfig
	if err := v.Unmarshal(&cfg); err != nil {
		return ServerConfig{}, fmt.Errorf("unmarshal config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return ServerConfig{}, err
	}
	return cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("listen_addr", ":5000")
	v.SetDefault("static_dir", "./static")
	v.SetDefault("runner_url", "http://localhost:8081")
	v.SetDefault("top_k", 3)
	v.SetDefault("image_size", 224)
	v.SetDefault("conf_threshold", 0.45)
	v.SetDefault("reject_threshold", 0.50)
	v.SetDefault("fetch_timeout", "15s")
	v.SetDefault("fetch_user_agent", "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/91.0.4472.124 Safari/537.36")
	v.SetDefault("max_upload_bytes", 16<<20)
	v.SetDefault("request_timeout", "60s")
	v.SetDefault("tracing", false)
	v.SetDefault("api_keys", []string{})

	v.SetDefault("storage.backend", "local")
	v.SetDefault("storage.local_dir", "static/uploads")
	v.SetDefault("storage.s3.endpoint", "")
	v.SetDefault("storage.s3.region", "us-east-1")
	v.SetDefault("storage.s3.bucket", "uploads")
	v.SetDefault("storage.s3.prefix", "")
	v.SetDefault("storage.s3.access_key_id", "")
	v.SetDefault("storage.s3.secret_access_key", "")
	v.SetDefault("storage.sftp.addr", "")
	v.SetDefault("storage.sftp.username", "")
	v.SetDefault("storage.sftp.password", "")
	v.SetDefault("storage.sftp.private_key_path", "")
	v.SetDefault("storage.sftp.dir", "/srv/retina/uploads")

	v.SetDefault("results.backend", "memory")
	v.SetDefault("results.redis_url", "redis://localhost:6379")
	v.SetDefault("results.database_url", "")
	v.SetDefault("results.ttl", "24h")
}

// Validate checks the values that would otherwise fail deep inside a request.
func (c ServerConfig) Validate() error {
	if c.TopK < 1 {
		return fmt.Errorf("top_k must be at least 1, got %d", c.TopK)
	}
	if c.ImageSize < 1 {
		return fmt.Errorf("image_size must be positive, got %d", c.ImageSize)
	}
	if c.ConfThreshold < 0 || c.ConfThreshold > 1 || c.RejectBelow < 0 || c.RejectBelow > 1 {
		return fmt.Errorf("thresholds must be within [0,1]")
	}
	switch c.Storage.Backend {
	case "local", "s3", "sftp":
	default:
		return fmt.Errorf("unknown storage backend %q", c.Storage.Backend)
	}
	switch c.Results.Backend {
	case "memory", "redis", "postgres":
	default:
		return fmt.Errorf("unknown results backend %q", c.Results.Backend)
	}
	if c.Results.Backend == "postgres" && strings.TrimSpace(c.Results.DatabaseURL) == "" {
		return fmt.Errorf("results.database_url is required for the postgres backend")
	}
	return nil
}
