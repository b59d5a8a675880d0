// Package config loads service configuration from defaults, an optional
// config.yaml and PAPERSEARCH_* environment variables, in increasing order of
// precedence.
package config

import (
	"errors"
	"fmt"
	"net"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Accepted values for DatabaseConfig.SSLMode.
const (
	SSLModeDisable    = "disable"
	SSLModeRequire    = "require"
	SSLModeVerifyCA   = "verify-ca"
	SSLModeVerifyFull = "verify-full"
)

// EnvPrefix prefixes every environment variable read by Load.
const EnvPrefix = "PAPERSEARCH"

// DefaultContactEmail identifies the service to upstreams when neither the
// environment nor the stored settings name an address.
const DefaultContactEmail = "athena@example.com"

// Config is the full service configuration.
type Config struct {
	Server       ServerConfig       `mapstructure:"server"`
	Database     DatabaseConfig     `mapstructure:"database"`
	Logging      LoggingConfig      `mapstructure:"logging"`
	Metrics      MetricsConfig      `mapstructure:"metrics"`
	CORS         CORSConfig         `mapstructure:"cors"`
	PaperSources PaperSourcesConfig `mapstructure:"paper_sources"`
	Search       SearchConfig       `mapstructure:"search"`
	// Defaults apply whenever no settings row is stored.
	Defaults DefaultsConfig `mapstructure:"defaults"`
	Kafka    KafkaConfig    `mapstructure:"kafka"`
}

// ServerConfig covers the API listener and the separate metrics listener.
type ServerConfig struct {
	Host        string `mapstructure:"host"`
	HTTPPort    int    `mapstructure:"http_port"`
	MetricsPort int    `mapstructure:"metrics_port"`

	ReadTimeout time.Duration `mapstructure:"read_timeout"`
	// WriteTimeout must exceed search.timeout, otherwise slow searches are
	// cut off mid-response.
	WriteTimeout    time.Duration `mapstructure:"write_timeout"`
	IdleTimeout     time.Duration `mapstructure:"idle_timeout"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`
}

// DatabaseConfig configures the settings store.
type DatabaseConfig struct {
	// Enabled turns the settings store on. When off the service runs on
	// Defaults only and the settings API answers 503.
	Enabled bool   `mapstructure:"enabled"`
	Host    string `mapstructure:"host"`
	Port    int    `mapstructure:"port"`
	User    string `mapstructure:"user"`
	// Password comes only from PAPERSEARCH_DATABASE_PASSWORD.
	Password string `mapstructure:"-"`
	Name     string `mapstructure:"name"`
	SSLMode  string `mapstructure:"ssl_mode"`

	MaxConns          int32         `mapstructure:"max_conns"`
	MinConns          int32         `mapstructure:"min_conns"`
	MaxConnLifetime   time.Duration `mapstructure:"max_conn_lifetime"`
	MaxConnIdleTime   time.Duration `mapstructure:"max_conn_idle_time"`
	HealthCheckPeriod time.Duration `mapstructure:"health_check_period"`
	ConnectTimeout    time.Duration `mapstructure:"connect_timeout"`

	MigrationPath    string `mapstructure:"migration_path"`
	MigrationAutoRun bool   `mapstructure:"migration_auto_run"`
}

// LoggingConfig mirrors observability.LoggingConfig.
type LoggingConfig struct {
	Level      string `mapstructure:"level"`
	Format     string `mapstructure:"format"`
	Output     string `mapstructure:"output"`
	AddSource  bool   `mapstructure:"add_source"`
	TimeFormat string `mapstructure:"time_format"`
}

type MetricsConfig struct {
	Enabled   bool   `mapstructure:"enabled"`
	Path      string `mapstructure:"path"`
	Namespace string `mapstructure:"namespace"`
}

type CORSConfig struct {
	AllowedOrigins []string `mapstructure:"allowed_origins"`
	// MaxAge is the preflight cache lifetime in seconds.
	MaxAge int `mapstructure:"max_age"`
}

// PaperSourcesConfig has one block per upstream.
type PaperSourcesConfig struct {
	SemanticScholar PaperSourceConfig `mapstructure:"semantic_scholar"`
	OpenAlex        PaperSourceConfig `mapstructure:"openalex"`
	ArXiv           PaperSourceConfig `mapstructure:"arxiv"`
	Crossref        PaperSourceConfig `mapstructure:"crossref"`
	CORE            PaperSourceConfig `mapstructure:"core"`
}

// PaperSourceConfig tunes one upstream's client, pager and low-yield retry.
type PaperSourceConfig struct {
	// APIKey is read from PAPERSEARCH_PAPER_SOURCES_<NAME>_API_KEY only.
	// A key in the stored settings takes precedence.
	APIKey    string        `mapstructure:"-"`
	BaseURL   string        `mapstructure:"base_url"`
	Timeout   time.Duration `mapstructure:"timeout"`
	RateLimit float64       `mapstructure:"rate_limit"`
	BurstSize int           `mapstructure:"burst_size"`

	PageSize   int           `mapstructure:"page_size"`
	MaxResults int           `mapstructure:"max_results"`
	PageDelay  time.Duration `mapstructure:"page_delay"`

	// RetryAttempts and LowYieldThreshold only matter for arXiv and OpenAlex.
	RetryAttempts     int `mapstructure:"retry_attempts"`
	LowYieldThreshold int `mapstructure:"low_yield_threshold"`
}

// byName lists the blocks under their config keys.
func (p PaperSourcesConfig) byName() map[string]PaperSourceConfig {
	return map[string]PaperSourceConfig{
		"semantic_scholar": p.SemanticScholar,
		"openalex":         p.OpenAlex,
		"arxiv":            p.ArXiv,
		"crossref":         p.Crossref,
		"core":             p.CORE,
	}
}

// SearchConfig bounds one aggregated search across all sources.
type SearchConfig struct {
	Timeout time.Duration `mapstructure:"timeout"`
}

// DefaultsConfig holds the runtime settings used when none are stored.
type DefaultsConfig struct {
	// OpenAIAPIKey comes only from PAPERSEARCH_DEFAULTS_OPENAI_API_KEY.
	OpenAIAPIKey   string   `mapstructure:"-"`
	ContactEmail   string   `mapstructure:"contact_email"`
	OutboundProxy  string   `mapstructure:"outbound_proxy"`
	EnabledSources []string `mapstructure:"enabled_sources"`
}

// KafkaConfig configures the library hand-off. No brokers means disabled.
type KafkaConfig struct {
	Brokers      []string      `mapstructure:"brokers"`
	LibraryTopic string        `mapstructure:"library_topic"`
	BatchTimeout time.Duration `mapstructure:"batch_timeout"`
	WriteTimeout time.Duration `mapstructure:"write_timeout"`
}

// DSN renders the pgx connection URL. User and password are escaped.
func (c *DatabaseConfig) DSN() string {
	q := url.Values{}
	q.Set("sslmode", c.SSLMode)
	if c.ConnectTimeout > 0 {
		q.Set("connect_timeout", strconv.Itoa(int(c.ConnectTimeout.Seconds())))
	}
	return fmt.Sprintf("postgres://%s:%s@%s:%d/%s?%s",
		url.QueryEscape(c.User), url.QueryEscape(c.Password), c.Host, c.Port, c.Name, q.Encode())
}

func (c *ServerConfig) HTTPAddress() string {
	return net.JoinHostPort(c.Host, strconv.Itoa(c.HTTPPort))
}

func (c *ServerConfig) MetricsAddress() string {
	return net.JoinHostPort(c.Host, strconv.Itoa(c.MetricsPort))
}

// Load reads and validates the configuration. A missing config file is not
// an error.
func Load() (*Config, error) {
	v := viper.New()
	setDefaults(v)

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	v.SetConfigName("config")
	v.SetConfigType("yaml")
	for _, dir := range []string{".", "./config", "/etc/paper-search-service"} {
		v.AddConfigPath(dir)
	}

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	// List values set through the environment arrive as one comma-separated string.
	cfg.Defaults.EnabledSources = splitList(cfg.Defaults.EnabledSources)
	cfg.Kafka.Brokers = splitList(cfg.Kafka.Brokers)
	cfg.CORS.AllowedOrigins = splitList(cfg.CORS.AllowedOrigins)

	loadSecrets(&cfg)

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}
	return &cfg, nil
}

// loadSecrets fills the mapstructure:"-" fields, which never come from a file.
func loadSecrets(cfg *Config) {
	env := func(key string) string { return os.Getenv(EnvPrefix + "_" + key) }

	cfg.Database.Password = env("DATABASE_PASSWORD")
	cfg.Defaults.OpenAIAPIKey = env("DEFAULTS_OPENAI_API_KEY")
	cfg.PaperSources.SemanticScholar.APIKey = env("PAPER_SOURCES_SEMANTIC_SCHOLAR_API_KEY")
	cfg.PaperSources.CORE.APIKey = env("PAPER_SOURCES_CORE_API_KEY")
}

// splitList flattens comma-separated entries and drops blanks.
func splitList(values []string) []string {
	out := make([]string, 0, len(values))
	for _, value := range values {
		for _, part := range strings.Split(value, ",") {
			if part = strings.TrimSpace(part); part != "" {
				out = append(out, part)
			}
		}
	}
	return out
}

// sourceDefaults is the per-upstream part of setDefaults.
type sourceDefaults struct {
	key       string
	baseURL   string
	timeout   string
	rateLimit float64
	burst     int
	retries   int
}

var defaultSources = []sourceDefaults{
	{"semantic_scholar", "https://api.semanticscholar.org/graph/v1", "60s", 1, 1, 0},
	{"openalex", "https://api.openalex.org", "60s", 10, 10, 3},
	// arXiv asks for three seconds between calls.
	{"arxiv", "http://export.arxiv.org/api", "30s", 1.0 / 3.0, 1, 3},
	{"crossref", "https://api.crossref.org", "60s", 5, 5, 0},
	// CORE searches are skipped without an API key.
	{"core", "https://api.core.ac.uk/v3", "60s", 2, 2, 0},
}

func setDefaults(v *viper.Viper) {
	for key, value := range map[string]any{
		"server.host":             "0.0.0.0",
		"server.http_port":        8080,
		"server.metrics_port":     9091,
		"server.read_timeout":     "30s",
		"server.write_timeout":    "150s",
		"server.idle_timeout":     "120s",
		"server.shutdown_timeout": "30s",

		"database.enabled": true,
		"database.host":    "localhost",
		"database.port":    5432,
		"database.user":    "papersearch",
		"database.name":    "paper_search",
		// Local development sets PAPERSEARCH_DATABASE_SSL_MODE=disable.
		"database.ssl_mode":            SSLModeRequire,
		"database.max_conns":           10,
		"database.min_conns":           1,
		"database.max_conn_lifetime":   "1h",
		"database.max_conn_idle_time":  "30m",
		"database.health_check_period": "30s",
		"database.connect_timeout":     "10s",
		"database.migration_path":      "migrations",
		"database.migration_auto_run":  false,

		"logging.level":       "info",
		"logging.format":      "json",
		"logging.output":      "stdout",
		"logging.add_source":  false,
		"logging.time_format": time.RFC3339,

		"metrics.enabled":   true,
		"metrics.path":      "/metrics",
		"metrics.namespace": "paper_search",

		"cors.allowed_origins": []string{"http://localhost:3000"},
		"cors.max_age":         300,

		"search.timeout": "120s",

		"defaults.contact_email":   DefaultContactEmail,
		"defaults.outbound_proxy":  "",
		"defaults.enabled_sources": []string{"semantic", "openalex", "arxiv", "crossref", "core"},

		"kafka.brokers":       []string{},
		"kafka.library_topic": "library.paper-import",
		"kafka.batch_timeout": "10ms",
		"kafka.write_timeout": "10s",
	} {
		v.SetDefault(key, value)
	}

	for _, src := range defaultSources {
		prefix := "paper_sources." + src.key + "."
		v.SetDefault(prefix+"base_url", src.baseURL)
		v.SetDefault(prefix+"timeout", src.timeout)
		v.SetDefault(prefix+"rate_limit", src.rateLimit)
		v.SetDefault(prefix+"burst_size", src.burst)
		v.SetDefault(prefix+"page_size", 100)
		v.SetDefault(prefix+"max_results", 1000)
		v.SetDefault(prefix+"page_delay", "500ms")
		v.SetDefault(prefix+"retry_attempts", src.retries)
		v.SetDefault(prefix+"low_yield_threshold", 100)
	}
}

// Validate reports every problem it finds, joined into one error.
func (c *Config) Validate() error {
	return errors.Join(
		c.Server.validate(c.Metrics.Enabled),
		c.Database.validate(),
		validateLogLevel(c.Logging.Level),
		c.validateSearch(),
		c.validateOutbound(),
	)
}

func validPort(p int) bool { return p > 0 && p <= 65535 }

func (s ServerConfig) validate(metricsEnabled bool) error {
	var errs []error
	if !validPort(s.HTTPPort) {
		errs = append(errs, fmt.Errorf("invalid HTTP port: %d", s.HTTPPort))
	}
	if !validPort(s.MetricsPort) {
		errs = append(errs, fmt.Errorf("invalid metrics port: %d", s.MetricsPort))
	}
	if metricsEnabled && s.MetricsPort == s.HTTPPort {
		errs = append(errs, fmt.Errorf("metrics port must differ from HTTP port: %d", s.MetricsPort))
	}
	return errors.Join(errs...)
}

func (d DatabaseConfig) validate() error {
	if !d.Enabled {
		return nil
	}
	var errs []error
	if d.Host == "" {
		errs = append(errs, errors.New("database host is required"))
	}
	if !validPort(d.Port) {
		errs = append(errs, fmt.Errorf("invalid database port: %d", d.Port))
	}
	if d.Name == "" {
		errs = append(errs, errors.New("database name is required"))
	}
	if d.MaxConns < d.MinConns {
		errs = append(errs, fmt.Errorf("max_conns (%d) must be >= min_conns (%d)", d.MaxConns, d.MinConns))
	}
	switch d.SSLMode {
	case SSLModeDisable, SSLModeRequire, SSLModeVerifyCA, SSLModeVerifyFull:
	default:
		errs = append(errs, fmt.Errorf("invalid database ssl_mode: %s", d.SSLMode))
	}
	return errors.Join(errs...)
}

func validateLogLevel(level string) error {
	switch strings.ToLower(level) {
	case "trace", "debug", "info", "warn", "error", "fatal", "panic":
		return nil
	}
	return fmt.Errorf("invalid log level: %s", level)
}

func (c *Config) validateSearch() error {
	var errs []error
	if c.Search.Timeout <= 0 {
		errs = append(errs, errors.New("search timeout must be positive"))
	}
	for name, src := range c.PaperSources.byName() {
		if src.RateLimit < 0 {
			errs = append(errs, fmt.Errorf("paper_sources.%s.rate_limit must not be negative", name))
		}
		if src.PageSize < 0 || src.MaxResults < 0 {
			errs = append(errs, fmt.Errorf("paper_sources.%s paging limits must not be negative", name))
		}
	}
	return errors.Join(errs...)
}

func (c *Config) validateOutbound() error {
	var errs []error
	if p := c.Defaults.OutboundProxy; p != "" {
		if u, err := url.Parse(p); err != nil || u.Scheme == "" || u.Host == "" {
			errs = append(errs, fmt.Errorf("invalid defaults.outbound_proxy: %q", p))
		}
	}
	if len(c.Kafka.Brokers) > 0 && c.Kafka.LibraryTopic == "" {
		errs = append(errs, errors.New("kafka library_topic is required when brokers are configured"))
	}
	return errors.Join(errs...)
}
