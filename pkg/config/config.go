package config

import (
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"time"

	"gopkg.in/yaml.v3"
)

// Config holds the application configuration.
type Config struct {
	Request   RequestConfig   `yaml:"request"`
	Log       LogConfig       `yaml:"log"`
	DB        DBConfig        `yaml:"db"`
	Wiki      WikiConfig      `yaml:"wiki"`
	OAuth     OAuthConfig     `yaml:"oauth"`
	Closure   ClosureConfig   `yaml:"closure"`
	Generator GeneratorConfig `yaml:"generator"`
	Queue     QueueConfig     `yaml:"queue"`
}

// RequestConfig holds HTTP request settings.
type RequestConfig struct {
	Retries int           `yaml:"retries"`
	Timeout Duration      `yaml:"timeout"`
	Backoff BackoffConfig `yaml:"backoff"`
}

// BackoffConfig holds exponential backoff settings.
type BackoffConfig struct {
	BaseDelay Duration `yaml:"base_delay"`
	MaxDelay  Duration `yaml:"max_delay"`
}

// LogConfig holds the logging configuration.
type LogConfig struct {
	Server LogSettings `yaml:"server"`
}

// LogSettings holds path and level for one log output.
type LogSettings struct {
	Path  string `yaml:"path"`
	Level string `yaml:"level"`
}

// DBConfig holds database settings.
type DBConfig struct {
	Path     string   `yaml:"path"`
	CacheTTL Duration `yaml:"cache_ttl"` // Max age of cached API responses
}

// WikiConfig holds the external wiki endpoints and property IDs.
type WikiConfig struct {
	CommonsAPI      string `yaml:"commons_api"`
	WikidataAPI     string `yaml:"wikidata_api"`
	SPARQLEndpoint  string `yaml:"sparql_endpoint"`
	DepictsProperty string `yaml:"depicts_property"`
	Contact         string `yaml:"contact"` // Goes into the User-Agent, per API etiquette
}

// OAuthConfig holds the consumer credential used to sign write requests.
// Values left empty here fall back to the environment.
type OAuthConfig struct {
	ConsumerKey    string `yaml:"consumer_key"`
	ConsumerSecret string `yaml:"consumer_secret"`
}

// ClosureConfig holds taxonomy closure cache settings.
type ClosureConfig struct {
	TTL Duration `yaml:"ttl"`
}

// GeneratorConfig holds question generation settings.
type GeneratorConfig struct {
	Limit                   int      `yaml:"limit"` // Max unanswered questions per target
	ThumbWidth              int      `yaml:"thumb_width"`
	ThumbHeight             int      `yaml:"thumb_height"`
	Extensions              []string `yaml:"extensions"`
	IgnoredCategories       []string `yaml:"ignored_categories"`
	IgnoredCategoryPatterns []string `yaml:"ignored_category_patterns"`
}

// CompiledIgnorePatterns compiles the configured regex patterns.
func (g GeneratorConfig) CompiledIgnorePatterns() ([]*regexp.Regexp, error) {
	res := make([]*regexp.Regexp, 0, len(g.IgnoredCategoryPatterns))
	for _, p := range g.IgnoredCategoryPatterns {
		re, err := regexp.Compile(p)
		if err != nil {
			return nil, fmt.Errorf("invalid ignore pattern %q: %w", p, err)
		}
		res = append(res, re)
	}
	return res, nil
}

// QueueConfig holds job queue settings.
type QueueConfig struct {
	Workers     int           `yaml:"workers"`
	MaxRestarts int           `yaml:"max_restarts"`
	Restart     BackoffConfig `yaml:"restart"`
}

// DefaultConfig returns the built-in defaults.
func DefaultConfig() *Config {
	return &Config{
		Request: RequestConfig{
			Retries: 3,
			Timeout: Duration(300 * time.Second),
			Backoff: BackoffConfig{
				BaseDelay: Duration(500 * time.Millisecond),
				MaxDelay:  Duration(60 * time.Second),
			},
		},
		Log: LogConfig{
			Server: LogSettings{
				Path:  "./logs/depictor.log",
				Level: "INFO",
			},
		},
		DB: DBConfig{
			Path:     "./data/depictor.db",
			CacheTTL: Duration(Week),
		},
		Wiki: WikiConfig{
			CommonsAPI:      "https://commons.wikimedia.org/w/api.php",
			WikidataAPI:     "https://www.wikidata.org/w/api.php",
			SPARQLEndpoint:  "https://query.wikidata.org/sparql",
			DepictsProperty: "P180",
			Contact:         "",
		},
		Closure: ClosureConfig{
			TTL: Duration(120 * time.Second),
		},
		Generator: GeneratorConfig{
			Limit:       250,
			ThumbWidth:  800,
			ThumbHeight: 800,
			Extensions:  []string{"jpg", "jpeg", "png", "gif", "svg", "tiff"},
			IgnoredCategories: []string{
				"Category:CommonsRoot",
			},
			IgnoredCategoryPatterns: []string{
				`(?i)unidentified`,
				`(?i)^Category:Media needing`,
			},
		},
		Queue: QueueConfig{
			Workers:     4,
			MaxRestarts: 10,
			Restart: BackoffConfig{
				BaseDelay: Duration(1 * time.Second),
				MaxDelay:  Duration(5 * time.Minute),
			},
		},
	}
}

// Load reads the config file at path, creating it with defaults if it
// does not exist. Secrets left empty in the file fall back to the
// environment and are never written back to disk.
func Load(path string) (*Config, error) {
	cfg := DefaultConfig()

	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create config directory: %w", err)
	}

	if _, err := os.Stat(path); err == nil {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("failed to parse config file: %w", err)
		}

		applyEnvFallbacks(cfg)
		return cfg, nil
	}

	if err := Save(path, cfg); err != nil {
		return nil, fmt.Errorf("failed to save config file: %w", err)
	}

	applyEnvFallbacks(cfg)
	return cfg, nil
}

func applyEnvFallbacks(cfg *Config) {
	if cfg.OAuth.ConsumerKey == "" {
		if key := os.Getenv("DEPICTOR_CONSUMER_KEY"); key != "" {
			cfg.OAuth.ConsumerKey = key
		}
	}
	if cfg.OAuth.ConsumerSecret == "" {
		if secret := os.Getenv("DEPICTOR_CONSUMER_SECRET"); secret != "" {
			cfg.OAuth.ConsumerSecret = secret
		}
	}
}

// Save writes the configuration to disk.
func Save(path string, cfg *Config) error {
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}
	return nil
}

// GenerateDefault writes the default config to path unless it exists.
func GenerateDefault(path string) error {
	if _, err := os.Stat(path); err == nil {
		return nil // File exists, do nothing
	}

	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	return Save(path, DefaultConfig())
}
