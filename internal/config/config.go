package config

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"strings"

	"github.com/caarlos0/env/v11"
	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"
)

// Store backends selectable through store.backend / ROTA_STORE.
const (
	BackendFile   = "file"
	BackendRedis  = "redis"
	BackendSQLite = "sqlite"
)

// Defaults applied by Default and by Validate for unset fields.
const (
	DefaultPort       = 5000
	DefaultCSVPath    = "booking_data.csv"
	DefaultSQLitePath = "rota.db"
	DefaultNamespace  = "default"
	DefaultStaticDir  = "web"
)

// RotaConfig represents the top-level rota.yml configuration.
// Every field can be overridden by the environment variable named in its env tag.
type RotaConfig struct {
	Port      int         `yaml:"port" env:"PORT" validate:"min=1,max=65535"`
	StaticDir string      `yaml:"static_dir,omitempty" env:"ROTA_STATIC_DIR"`
	Store     StoreConfig `yaml:"store"`

	// AllowedOrigins limits which browser origins may open the socket.
	// Empty accepts every origin.
	AllowedOrigins []string `yaml:"allowed_origins,omitempty" env:"ROTA_ALLOWED_ORIGINS" envSeparator:","`
}

// StoreConfig selects and configures the booking store backend.
type StoreConfig struct {
	Backend    string `yaml:"backend" env:"ROTA_STORE" validate:"oneof=file redis sqlite"`
	CSVPath    string `yaml:"csv_path,omitempty" env:"ROTA_CSV_PATH" validate:"required_if=Backend file"`
	RedisURL   string `yaml:"redis_url,omitempty" env:"REDIS_URL" validate:"required_if=Backend redis"`
	Namespace  string `yaml:"namespace,omitempty" env:"ROTA_NAMESPACE"`
	SQLitePath string `yaml:"sqlite_path,omitempty" env:"ROTA_SQLITE_PATH" validate:"required_if=Backend sqlite"`
}

// Default returns a configuration using the CSV store in the working directory.
func Default() *RotaConfig {
	return &RotaConfig{
		Port:      DefaultPort,
		StaticDir: DefaultStaticDir,
		Store: StoreConfig{
			Backend:    BackendFile,
			CSVPath:    DefaultCSVPath,
			Namespace:  DefaultNamespace,
			SQLitePath: DefaultSQLitePath,
		},
	}
}

// Validate applies defaults to unset optional fields and performs strict validation.
func (c *RotaConfig) Validate() error {
	if c.Port == 0 {
		c.Port = DefaultPort
	}
	if c.StaticDir == "" {
		c.StaticDir = DefaultStaticDir
	}
	if c.Store.Backend == "" {
		c.Store.Backend = BackendFile
	}
	c.Store.Backend = strings.ToLower(c.Store.Backend)
	if c.Store.Namespace == "" {
		c.Store.Namespace = DefaultNamespace
	}

	if err := validator.New().Struct(c); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) {
			return describe(verrs[0])
		}
		return err
	}

	return nil
}

func describe(fe validator.FieldError) error {
	switch fe.StructNamespace() {
	case "RotaConfig.Port":
		return fmt.Errorf("port must be between 1 and 65535, got %v", fe.Value())
	case "RotaConfig.Store.Backend":
		return fmt.Errorf("unsupported store backend: %v (must be 'file', 'redis', or 'sqlite')", fe.Value())
	case "RotaConfig.Store.CSVPath":
		return fmt.Errorf("store.csv_path is required for the file backend")
	case "RotaConfig.Store.RedisURL":
		return fmt.Errorf("store.redis_url (or REDIS_URL) is required for the redis backend")
	case "RotaConfig.Store.SQLitePath":
		return fmt.Errorf("store.sqlite_path is required for the sqlite backend")
	}
	return fmt.Errorf("invalid field %s: failed '%s' check", fe.Namespace(), fe.Tag())
}

// RedactedRedisURL returns RedisURL with any password replaced by "xxxxx",
// for logs and error output.
func (c StoreConfig) RedactedRedisURL() string {
	if c.RedisURL == "" {
		return ""
	}
	u, err := url.Parse(c.RedisURL)
	if err != nil {
		return "(unparseable redis URL)"
	}
	return u.Redacted()
}

// Addr returns the listen address for the configured port.
func (c *RotaConfig) Addr() string {
	return fmt.Sprintf(":%d", c.Port)
}

// Load builds the configuration from defaults, the optional rota.yml at path
// and the environment, in that order of precedence, then validates it.
// An empty path skips the file.
func Load(path string) (*RotaConfig, error) {
	return LoadWithOverrides(path, nil)
}

// LoadWithOverrides is Load with a final overlay (command-line flags) applied
// after the environment and before validation.
func LoadWithOverrides(path string, override func(*RotaConfig)) (*RotaConfig, error) {
	config := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read config: %w", err)
		}
		if err := yaml.Unmarshal(data, config); err != nil {
			return nil, fmt.Errorf("failed to parse YAML: %w", err)
		}
	}

	if err := env.Parse(config); err != nil {
		return nil, fmt.Errorf("failed to parse environment: %w", err)
	}

	if override != nil {
		override(config)
	}

	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return config, nil
}
