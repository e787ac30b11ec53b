package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Config holds all configuration for the application
type Config struct {
	Server   ServerConfig   `yaml:"server"`
	Google   GoogleConfig   `yaml:"google"`
	Views    []ViewConfig   `yaml:"views"`
	Reports  ReportsConfig  `yaml:"reports"`
	Export   ExportConfig   `yaml:"export"`
	Retry    RetryConfig    `yaml:"retry"`
	Storage  StorageConfig  `yaml:"storage"`
	Redis    RedisConfig    `yaml:"redis"`
	Log      LogConfig      `yaml:"log"`
	Campaign CampaignConfig `yaml:"campaign"`
}

// ServerConfig holds HTTP server configuration
type ServerConfig struct {
	Port           int      `yaml:"port"`
	Host           string   `yaml:"host"`
	AllowedOrigins []string `yaml:"allowed_origins"`
}

// GetHost returns the server host, with ECS detection
func (c ServerConfig) GetHost() string {
	// On ECS/container, listen on all interfaces
	if os.Getenv("ECS_CONTAINER_METADATA_URI") != "" || os.Getenv("AWS_EXECUTION_ENV") != "" {
		return "0.0.0.0"
	}
	if host := os.Getenv("SERVER_HOST"); host != "" {
		return host
	}
	return c.Host
}

// GoogleConfig holds the Analytics Reporting API service account and client settings.
// Either CredentialsFile or the inline key fields must be set.
type GoogleConfig struct {
	CredentialsFile         string `yaml:"credentials_file"`
	ProjectID               string `yaml:"project_id"`
	PrivateKeyID            string `yaml:"private_key_id"`
	PrivateKey              string `yaml:"private_key"`
	ClientEmail             string `yaml:"client_email"`
	ClientID                string `yaml:"client_id"`
	AuthURI                 string `yaml:"auth_uri"`
	TokenURI                string `yaml:"token_uri"`
	AuthProviderX509CertURL string `yaml:"auth_provider_x509_cert_url"`
	ClientX509CertURL       string `yaml:"client_x509_cert_url"`
	BaseURL                 string `yaml:"base_url"`
	TimeoutSeconds          int    `yaml:"timeout_seconds"`
	HTTPRetries             int    `yaml:"http_retries"` // transport-level retries on 429/5xx
}

// Timeout returns the configured timeout as a duration
func (c GoogleConfig) Timeout() time.Duration {
	return time.Duration(c.TimeoutSeconds) * time.Second
}

// ViewConfig names an Analytics view (site/property).
type ViewConfig struct {
	Name    string `yaml:"name"`
	ID      string `yaml:"id"`
	IDEnv   string `yaml:"id_env"` // env var holding the view ID
	Disable bool   `yaml:"disable"`
}

// ReportsConfig locates report definitions.
type ReportsConfig struct {
	Dir string `yaml:"dir"`
}

// ExportConfig controls the chunked download and CSV layout.
type ExportConfig struct {
	StartYear          int     `yaml:"start_year"`
	EndYear            int     `yaml:"end_year"`
	PathTemplate       string  `yaml:"path_template"` // liquid template for output keys
	RateLimitPerSecond float64 `yaml:"rate_limit_per_second"`
	TypedMetrics       bool    `yaml:"typed_metrics"`
	TrimPrefix         string  `yaml:"trim_prefix"`
	ViewColumn         string  `yaml:"view_column"`
}

// RetryConfig holds the per-chunk retry policy.
type RetryConfig struct {
	MaxAttempts  int `yaml:"max_attempts"`
	DelaySeconds int `yaml:"delay_seconds"`
}

// Delay returns the fixed delay between attempts.
func (c RetryConfig) Delay() time.Duration {
	return time.Duration(c.DelaySeconds) * time.Second
}

// StorageConfig holds storage configuration
type StorageConfig struct {
	Type          string `yaml:"type"` // "local", "aws" or "sql"
	LocalPath     string `yaml:"local_path"`
	S3Bucket      string `yaml:"s3_bucket"`
	S3Prefix      string `yaml:"s3_prefix"`
	AWSRegion     string `yaml:"aws_region"`
	AWSProfile    string `yaml:"aws_profile"` // Empty string uses default credential chain (IAM role on ECS)
	DynamoDBTable string `yaml:"dynamodb_table"`
	SQLDriver     string `yaml:"sql_driver"` // "postgres" or "snowflake"
	DatabaseURL   string `yaml:"database_url"`
	SQLTable      string `yaml:"sql_table"`
}

// GetAWSProfile returns the AWS profile, with environment variable override
func (c StorageConfig) GetAWSProfile() string {
	if envProfile := os.Getenv("AWS_PROFILE_OVERRIDE"); envProfile != "" {
		if envProfile == "none" || envProfile == "iam" {
			return "" // Use default credential chain (IAM role)
		}
		return envProfile
	}
	// On ECS/Lambda, don't use a profile - use IAM role
	if os.Getenv("ECS_CONTAINER_METADATA_URI") != "" || os.Getenv("AWS_EXECUTION_ENV") != "" {
		return ""
	}
	return c.AWSProfile
}

// RedisConfig holds the optional response cache and run lock settings.
type RedisConfig struct {
	Enabled        bool   `yaml:"enabled"`
	URL            string `yaml:"url"`
	CacheTTLHours  int    `yaml:"cache_ttl_hours"`
	LockTTLMinutes int    `yaml:"lock_ttl_minutes"`
}

// CacheTTL returns the cache entry lifetime.
func (c RedisConfig) CacheTTL() time.Duration {
	return time.Duration(c.CacheTTLHours) * time.Hour
}

// LockTTL returns the run lock lifetime.
func (c RedisConfig) LockTTL() time.Duration {
	return time.Duration(c.LockTTLMinutes) * time.Minute
}

// LogConfig holds logging settings.
type LogConfig struct {
	Level string `yaml:"level"`
}

// CampaignConfig holds the campaign end-date cleaner paths.
type CampaignConfig struct {
	InputPath  string `yaml:"input_path"`
	OutputPath string `yaml:"output_path"`
}

// Load reads and parses the configuration file
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, err
	}

	// Set defaults
	if cfg.Server.Port == 0 {
		cfg.Server.Port = 8080
	}
	if cfg.Server.Host == "" {
		cfg.Server.Host = "localhost"
	}
	if cfg.Google.TimeoutSeconds == 0 {
		cfg.Google.TimeoutSeconds = 60
	}
	if cfg.Google.TokenURI == "" {
		cfg.Google.TokenURI = "https://oauth2.googleapis.com/token"
	}
	if cfg.Google.AuthURI == "" {
		cfg.Google.AuthURI = "https://accounts.google.com/o/oauth2/auth"
	}
	if cfg.Reports.Dir == "" {
		cfg.Reports.Dir = "reports"
	}
	if cfg.Export.EndYear == 0 {
		cfg.Export.EndYear = time.Now().Year()
	}
	if cfg.Export.StartYear == 0 {
		cfg.Export.StartYear = cfg.Export.EndYear
	}
	if cfg.Export.PathTemplate == "" {
		cfg.Export.PathTemplate = "{{ category }}/{{ name }}/{{ view }}_{{ year }}.csv"
	}
	if cfg.Export.ViewColumn == "" {
		cfg.Export.ViewColumn = "view_name"
	}
	if cfg.Retry.MaxAttempts == 0 {
		cfg.Retry.MaxAttempts = 3
	}
	if cfg.Retry.DelaySeconds == 0 {
		cfg.Retry.DelaySeconds = 2
	}
	if cfg.Storage.Type == "" {
		cfg.Storage.Type = "local"
	}
	if cfg.Storage.LocalPath == "" {
		cfg.Storage.LocalPath = "./data"
	}
	if cfg.Storage.AWSRegion == "" {
		cfg.Storage.AWSRegion = "us-west-2"
	}
	if cfg.Storage.SQLDriver == "" {
		cfg.Storage.SQLDriver = "postgres"
	}
	if cfg.Storage.SQLTable == "" {
		cfg.Storage.SQLTable = "analytics_rows"
	}
	if cfg.Redis.CacheTTLHours == 0 {
		cfg.Redis.CacheTTLHours = 24 * 7
	}
	if cfg.Redis.LockTTLMinutes == 0 {
		cfg.Redis.LockTTLMinutes = 120
	}
	if cfg.Log.Level == "" {
		cfg.Log.Level = "info"
	}

	return &cfg, nil
}

// LoadFromEnv loads configuration with environment variable overrides.
// It automatically loads a .env file (if present) before reading env vars,
// so service account secrets can live in .env locally and in real env vars
// in production.
func LoadFromEnv(path string) (*Config, error) {
	// Load .env file if it exists (no error if missing)
	_ = godotenv.Load()

	cfg, err := Load(path)
	if err != nil {
		return nil, err
	}

	// Service account fields
	overrides := []struct {
		env string
		dst *string
	}{
		{"GOOGLE_APPLICATION_CREDENTIALS", &cfg.Google.CredentialsFile},
		{"PROJECT_ID", &cfg.Google.ProjectID},
		{"PRIVATE_KEY_ID", &cfg.Google.PrivateKeyID},
		{"PRIVATE_KEY", &cfg.Google.PrivateKey},
		{"CLIENT_EMAIL", &cfg.Google.ClientEmail},
		{"CLIENT_ID", &cfg.Google.ClientID},
		{"AUTH_URI", &cfg.Google.AuthURI},
		{"TOKEN_URI", &cfg.Google.TokenURI},
		{"AUTH_PROVIDER_X509_CERT_URL", &cfg.Google.AuthProviderX509CertURL},
		{"CLIENT_X509_CERT_URL", &cfg.Google.ClientX509CertURL},
		{"ANALYTICS_BASE_URL", &cfg.Google.BaseURL},
		{"DATABASE_URL", &cfg.Storage.DatabaseURL},
		{"EXPORT_S3_BUCKET", &cfg.Storage.S3Bucket},
		{"EXPORT_S3_REGION", &cfg.Storage.AWSRegion},
		{"EXPORT_STORAGE_TYPE", &cfg.Storage.Type},
		{"LOG_LEVEL", &cfg.Log.Level},
	}
	for _, o := range overrides {
		if v := os.Getenv(o.env); v != "" {
			*o.dst = v
		}
	}
	// Keys pasted into .env usually carry escaped newlines
	cfg.Google.PrivateKey = strings.ReplaceAll(cfg.Google.PrivateKey, `\n`, "\n")

	if v := os.Getenv("REDIS_URL"); v != "" {
		cfg.Redis.URL = v
		cfg.Redis.Enabled = true
	}

	for i := range cfg.Views {
		if cfg.Views[i].IDEnv == "" {
			continue
		}
		if id := os.Getenv(cfg.Views[i].IDEnv); id != "" {
			cfg.Views[i].ID = id
		}
	}

	return cfg, nil
}

// EnabledViews returns the views that are not disabled, in config order.
func (c *Config) EnabledViews() []ViewConfig {
	var out []ViewConfig
	for _, v := range c.Views {
		if !v.Disable {
			out = append(out, v)
		}
	}
	return out
}

// View looks up a view by name.
func (c *Config) View(name string) (ViewConfig, error) {
	for _, v := range c.Views {
		if v.Name == name {
			if v.ID == "" {
				return ViewConfig{}, fmt.Errorf("view %q has no ID (set id or %s)", name, v.IDEnv)
			}
			return v, nil
		}
	}
	names := make([]string, len(c.Views))
	for i, v := range c.Views {
		names[i] = v.Name
	}
	return ViewConfig{}, fmt.Errorf("view name must be one of the following: %s", strings.Join(names, ", "))
}
