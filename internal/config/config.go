package config

import (
	"bytes"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"
)

// DefaultApproverID is the top-level approver assigned to leave requests of
// employees that have no recorded manager.
const DefaultApproverID int64 = 1

const (
	FileName            = "nlq.yml"
	DefaultModel        = "gemini-2.0-flash"
	DefaultModelURL     = "https://generativelanguage.googleapis.com/v1beta"
	DefaultWeatherURL   = "https://api.openweathermap.org/data/2.5"
	DefaultThreshold    = 30.0
	DefaultMaxSteps     = 8
	DefaultExitKeyword  = "exit"
	DefaultPrompt       = "You: "
	DefaultServerAddr   = "127.0.0.1:8080"
	DefaultServerBase   = "/v1"
	DefaultDriver       = "sqlite"
	DefaultMySQLPort    = 3306
	supportedDriverList = "sqlite, mysql"
)

// Config models nlq.yml. Environment variables override file values.
type Config struct {
	Database struct {
		Driver   string `yaml:"driver"`
		Host     string `yaml:"host"`
		Port     int    `yaml:"port"`
		User     string `yaml:"user"`
		Password string `yaml:"password"`
		Name     string `yaml:"name"`
	} `yaml:"database"`
	Weather struct {
		APIKey   string        `yaml:"api_key"`
		Endpoint string        `yaml:"endpoint"`
		Timeout  time.Duration `yaml:"timeout"`
	} `yaml:"weather"`
	Model struct {
		Name        string        `yaml:"name"`
		APIKey      string        `yaml:"api_key"`
		Endpoint    string        `yaml:"endpoint"`
		Temperature float64       `yaml:"temperature"`
		MaxSteps    int           `yaml:"max_steps"`
		Timeout     time.Duration `yaml:"timeout"`
	} `yaml:"model"`
	Leave struct {
		DefaultApproverID int64   `yaml:"default_approver_id"`
		Threshold         float64 `yaml:"threshold"`
		Location          string  `yaml:"location"`
	} `yaml:"leave"`
	SQL struct {
		SampleRows int `yaml:"sample_rows"`
		RowLimit   int `yaml:"row_limit"`
	} `yaml:"sql"`
	Chat struct {
		ExitKeyword string `yaml:"exit_keyword"`
		Prompt      string `yaml:"prompt"`
	} `yaml:"chat"`
	Server struct {
		Addr      string `yaml:"addr"`
		BasePath  string `yaml:"base_path"`
		JWTSecret string `yaml:"jwt_secret"`
	} `yaml:"server"`
}

var (
	ErrMissingModelKey   = errors.New("GOOGLE_API_KEY not set; add it to .env or the environment")
	ErrMissingWeatherKey = errors.New("OPENWEATHER_API_KEY not set; add it to .env or the environment")
)

// envBindings maps config keys to the environment variables that override them,
// in order of precedence.
var envBindings = map[string][]string{
	"database.driver":           {"NLQ_DB_DRIVER", "DB_DRIVER"},
	"database.host":             {"NLQ_DB_HOST", "DB_HOST"},
	"database.port":             {"NLQ_DB_PORT", "DB_PORT"},
	"database.user":             {"NLQ_DB_USER", "DB_USER"},
	"database.password":         {"NLQ_DB_PASSWORD", "DB_PASSWORD"},
	"database.name":             {"NLQ_DB_NAME", "DB_NAME"},
	"weather.api_key":           {"NLQ_WEATHER_API_KEY", "OPENWEATHER_API_KEY"},
	"weather.endpoint":          {"NLQ_WEATHER_ENDPOINT"},
	"model.name":                {"NLQ_MODEL"},
	"model.api_key":             {"NLQ_MODEL_API_KEY", "GOOGLE_API_KEY", "GEMINI_API_KEY"},
	"model.endpoint":            {"NLQ_MODEL_ENDPOINT"},
	"leave.default_approver_id": {"NLQ_DEFAULT_APPROVER_ID"},
	"leave.threshold":           {"NLQ_LEAVE_THRESHOLD"},
	"leave.location":            {"NLQ_LEAVE_LOCATION"},
	"server.jwt_secret":         {"NLQ_JWT_SECRET"},
}

// Default returns a Config populated with built-in defaults.
func Default() *Config {
	var cfg Config
	_ = yaml.NewDecoder(bytes.NewBufferString(defaultTemplate)).Decode(&cfg)
	cfg.Leave.DefaultApproverID = DefaultApproverID
	return &cfg
}

// Path returns the config file path for a workspace.
func Path(workspace string) string {
	if workspace == "" {
		workspace = "."
	}
	return filepath.Join(workspace, FileName)
}

// FromYAML parses and validates config from raw YAML bytes on top of defaults.
func FromYAML(data []byte) (*Config, error) {
	cfg := Default()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("invalid config yaml: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// FromFile reads YAML config from the given path.
func FromFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return FromYAML(data)
}

// Load builds the effective configuration: .env in the workspace (if any),
// then the config file (explicit path, or nlq.yml in the workspace when
// present), then environment overrides bound through v.
func Load(v *viper.Viper, workspace, path string) (*Config, error) {
	if err := godotenv.Load(filepath.Join(workspace, ".env")); err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("load .env: %w", err)
	}
	cfg := Default()
	if path == "" {
		if _, err := os.Stat(Path(workspace)); err == nil {
			path = Path(workspace)
		}
	}
	if path != "" {
		fileCfg, err := FromFile(path)
		if err != nil {
			return nil, fmt.Errorf("config %s: %w", path, err)
		}
		cfg = fileCfg
	}
	if v == nil {
		v = viper.New()
	}
	if err := cfg.ApplyEnv(v); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// ApplyEnv overrides fields whose environment variables are set.
func (c *Config) ApplyEnv(v *viper.Viper) error {
	for key, names := range envBindings {
		if err := v.BindEnv(append([]string{key}, names...)...); err != nil {
			return err
		}
	}
	str := func(key string, dst *string) {
		if v.IsSet(key) {
			*dst = strings.TrimSpace(v.GetString(key))
		}
	}
	str("database.driver", &c.Database.Driver)
	str("database.host", &c.Database.Host)
	str("database.user", &c.Database.User)
	str("database.password", &c.Database.Password)
	str("database.name", &c.Database.Name)
	str("weather.api_key", &c.Weather.APIKey)
	str("weather.endpoint", &c.Weather.Endpoint)
	str("model.name", &c.Model.Name)
	str("model.api_key", &c.Model.APIKey)
	str("model.endpoint", &c.Model.Endpoint)
	str("leave.location", &c.Leave.Location)
	str("server.jwt_secret", &c.Server.JWTSecret)
	if v.IsSet("database.port") {
		c.Database.Port = v.GetInt("database.port")
	}
	if v.IsSet("leave.default_approver_id") {
		c.Leave.DefaultApproverID = v.GetInt64("leave.default_approver_id")
	}
	if v.IsSet("leave.threshold") {
		c.Leave.Threshold = v.GetFloat64("leave.threshold")
	}
	return nil
}

// Validate ensures the config meets required structure.
func (c *Config) Validate() error {
	switch c.Database.Driver {
	case "sqlite":
	case "mysql":
		if c.Database.Host == "" || c.Database.User == "" || c.Database.Name == "" {
			return fmt.Errorf("database: mysql requires DB_HOST, DB_USER and DB_NAME")
		}
	default:
		return fmt.Errorf("database.driver %q not supported (use %s)", c.Database.Driver, supportedDriverList)
	}
	if c.Database.Port < 0 {
		return fmt.Errorf("database.port must be positive")
	}
	if c.Leave.DefaultApproverID <= 0 {
		return fmt.Errorf("leave.default_approver_id must be a positive employee id")
	}
	if c.Model.MaxSteps <= 0 {
		return fmt.Errorf("model.max_steps must be positive")
	}
	if c.Model.Temperature < 0 || c.Model.Temperature > 2 {
		return fmt.Errorf("model.temperature must be between 0 and 2")
	}
	if c.SQL.RowLimit <= 0 {
		return fmt.Errorf("sql.row_limit must be positive")
	}
	if c.SQL.SampleRows < 0 {
		return fmt.Errorf("sql.sample_rows cannot be negative")
	}
	if strings.TrimSpace(c.Chat.ExitKeyword) == "" {
		return fmt.Errorf("chat.exit_keyword is required")
	}
	return nil
}

// RequireModel reports a configuration error when the language model cannot be reached.
func (c *Config) RequireModel() error {
	if strings.TrimSpace(c.Model.APIKey) == "" {
		return ErrMissingModelKey
	}
	if strings.TrimSpace(c.Model.Name) == "" {
		return errors.New("model.name is required")
	}
	return nil
}

// RequireWeather reports a configuration error when the weather provider cannot be reached.
func (c *Config) RequireWeather() error {
	if strings.TrimSpace(c.Weather.APIKey) == "" {
		return ErrMissingWeatherKey
	}
	return nil
}

// GenerateDefault returns the default config YAML.
func GenerateDefault() string {
	return defaultTemplate
}

const defaultTemplate = `database:
  driver: sqlite
  port: 3306

weather:
  endpoint: https://api.openweathermap.org/data/2.5

model:
  name: gemini-2.0-flash
  endpoint: https://generativelanguage.googleapis.com/v1beta
  temperature: 0
  max_steps: 8

leave:
  default_approver_id: 1
  threshold: 30

sql:
  sample_rows: 3
  row_limit: 50

chat:
  exit_keyword: exit
  prompt: "You: "

server:
  addr: 127.0.0.1:8080
  base_path: /v1
`
