// config.go - Configuration loaded from .env, an optional YAML file and the environment

package configs

import (
	"fmt"
	"os"
	"runtime"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// Config holds every runtime setting. Keys match the environment variable
// names in lower case, so a YAML file uses the same spelling.
type Config struct {
	// Server Configuration
	Port           string `mapstructure:"port"`
	GinMode        string `mapstructure:"gin_mode"`
	BaseDir        string `mapstructure:"base_dir"`
	UploadDir      string `mapstructure:"upload_dir"`
	AllowedOrigins string `mapstructure:"allowed_origins"`

	// Provider selection
	ProviderOrder          string  `mapstructure:"provider_order"`
	DefaultTemperature     float64 `mapstructure:"default_temperature"`
	MaxOutputTokens        int     `mapstructure:"max_output_tokens"`
	ProviderTimeoutSeconds int     `mapstructure:"provider_timeout_seconds"`
	ProviderRPM            int     `mapstructure:"provider_rpm"`

	// Anthropic direct API
	AnthropicAPIKey  string `mapstructure:"anthropic_api_key"`
	AnthropicModel   string `mapstructure:"anthropic_model"`
	AnthropicBaseURL string `mapstructure:"anthropic_base_url"`
	AnthropicVersion string `mapstructure:"anthropic_version"`

	// Bedrock
	AWSAccessKeyID     string `mapstructure:"aws_access_key_id"`
	AWSSecretAccessKey string `mapstructure:"aws_secret_access_key"`
	AWSRegion          string `mapstructure:"aws_region"`
	BedrockModel       string `mapstructure:"bedrock_model"`

	// Gemini
	GeminiAPIKey string `mapstructure:"gemini_api_key"`
	GeminiModel  string `mapstructure:"gemini_model"`

	// Image normalization
	MaxImageDimension int     `mapstructure:"max_image_dimension"`
	ImageScale        float64 `mapstructure:"image_scale"`
	JPEGQuality       int     `mapstructure:"jpeg_quality"`
	PDFDPI            int     `mapstructure:"pdf_dpi"`
	ImageWorkers      int     `mapstructure:"image_workers"`

	// MongoDB Configuration (empty URI disables persistence)
	MongoURI    string `mapstructure:"mongo_uri"`
	MongoDBName string `mapstructure:"mongo_db_name"`

	ResultCacheTTLSeconds int `mapstructure:"result_cache_ttl_seconds"`
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("port", "8080")
	v.SetDefault("gin_mode", "")
	v.SetDefault("base_dir", ".")
	v.SetDefault("upload_dir", "uploads")
	v.SetDefault("allowed_origins", "*")

	v.SetDefault("provider_order", "anthropic,bedrock")
	v.SetDefault("default_temperature", 0.0)
	v.SetDefault("max_output_tokens", 4096)
	v.SetDefault("provider_timeout_seconds", 120)
	v.SetDefault("provider_rpm", 50)

	v.SetDefault("anthropic_api_key", "")
	v.SetDefault("anthropic_model", "claude-3-5-sonnet-20240620")
	v.SetDefault("anthropic_base_url", "https://api.anthropic.com")
	v.SetDefault("anthropic_version", "2023-06-01")

	v.SetDefault("aws_access_key_id", "")
	v.SetDefault("aws_secret_access_key", "")
	v.SetDefault("aws_region", "")
	v.SetDefault("bedrock_model", "anthropic.claude-3-sonnet-20240229-v1:0")

	v.SetDefault("gemini_api_key", "")
	v.SetDefault("gemini_model", "gemini-1.5-pro")

	v.SetDefault("max_image_dimension", 2000)
	v.SetDefault("image_scale", 1.0)
	v.SetDefault("jpeg_quality", 90)
	v.SetDefault("pdf_dpi", 200)
	v.SetDefault("image_workers", runtime.NumCPU())

	v.SetDefault("mongo_uri", "")
	v.SetDefault("mongo_db_name", "invoice_scanner")

	v.SetDefault("result_cache_ttl_seconds", 300)
}

// Load reads .env (if present), then the YAML file named by SCANNER_CONFIG
// (if set), then environment variables, which win.
func Load() (*Config, error) {
	// Load .env file if exists (for local development)
	_ = godotenv.Load()

	v := viper.New()
	setDefaults(v)

	if path := os.Getenv("SCANNER_CONFIG"); path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("failed to read config %s: %w", path, err)
		}
	}

	v.AutomaticEnv()

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) validate() error {
	if len(c.Providers()) == 0 {
		return fmt.Errorf("PROVIDER_ORDER must name at least one provider")
	}
	if c.ImageScale <= 0 {
		return fmt.Errorf("IMAGE_SCALE must be positive, got %v", c.ImageScale)
	}
	if c.JPEGQuality < 1 || c.JPEGQuality > 100 {
		return fmt.Errorf("JPEG_QUALITY must be between 1 and 100, got %d", c.JPEGQuality)
	}
	if c.ImageWorkers <= 0 {
		c.ImageWorkers = runtime.NumCPU()
	}
	return nil
}

// Providers returns PROVIDER_ORDER as a cleaned, de-duplicated list.
func (c *Config) Providers() []string {
	var out []string
	seen := make(map[string]bool)
	for _, p := range strings.Split(c.ProviderOrder, ",") {
		p = strings.ToLower(strings.TrimSpace(p))
		if p == "" || seen[p] {
			continue
		}
		seen[p] = true
		out = append(out, p)
	}
	return out
}

// Origins splits ALLOWED_ORIGINS.
func (c *Config) Origins() []string {
	var out []string
	for _, o := range strings.Split(c.AllowedOrigins, ",") {
		if o = strings.TrimSpace(o); o != "" {
			out = append(out, o)
		}
	}
	return out
}

// ProviderTimeout is the per-attempt bound.
func (c *Config) ProviderTimeout() time.Duration {
	return time.Duration(c.ProviderTimeoutSeconds) * time.Second
}

// ResultCacheTTL is how long raw responses are reused; zero disables the cache.
func (c *Config) ResultCacheTTL() time.Duration {
	return time.Duration(c.ResultCacheTTLSeconds) * time.Second
}
