package config

import (
	"fmt"
	"os"
	"time"

	"github.com/spf13/viper"
)

type Config struct {
	Server    ServerConfig    `mapstructure:"server"`
	Database  DatabaseConfig  `mapstructure:"database"`
	Backend   BackendConfig   `mapstructure:"backend"`
	Workflow  WorkflowConfig  `mapstructure:"workflow"`
	Location  LocationConfig  `mapstructure:"location"`
	Capture   CaptureConfig   `mapstructure:"capture"`
	Templates TemplatesConfig `mapstructure:"checklist_templates"`
}

type ServerConfig struct {
	HTTPPort        int           `mapstructure:"http_port"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`
}

type DatabaseConfig struct {
	Host           string `mapstructure:"host"`
	Port           int    `mapstructure:"port"`
	Database       string `mapstructure:"database"`
	User           string `mapstructure:"user"`
	Password       string `mapstructure:"password"`
	MaxConnections int    `mapstructure:"max_connections"`
}

// Backend is the remote field-service API the agent consumes as a black box.
type BackendConfig struct {
	BaseURL        string        `mapstructure:"base_url"`
	RequestTimeout time.Duration `mapstructure:"request_timeout"`
	TokenEnv       string        `mapstructure:"token_env"`
}

type WorkflowConfig struct {
	SyncDebounce time.Duration `mapstructure:"sync_debounce"`
	ClockTick    time.Duration `mapstructure:"clock_tick"`
}

type LocationConfig struct {
	FixTimeout time.Duration `mapstructure:"fix_timeout"`
	// Static fix used by the built-in provider when the platform exposes
	// no positioning service of its own.
	StaticLatitude  float64 `mapstructure:"static_latitude"`
	StaticLongitude float64 `mapstructure:"static_longitude"`
}

type CaptureConfig struct {
	// Directory the UI layer drops captured images into.
	SpoolDir string `mapstructure:"spool_dir"`
}

type TemplatesConfig struct {
	SearchPaths []string `mapstructure:"search_paths"`
}

func Load(path string) (*Config, error) {
	viper.SetConfigFile(path)
	viper.SetConfigType("yaml")

	viper.SetDefault("server.http_port", 8080)
	viper.SetDefault("server.shutdown_timeout", "30s")
	viper.SetDefault("backend.request_timeout", "15s")
	viper.SetDefault("backend.token_env", "FIELDOPS_TOKEN")
	viper.SetDefault("workflow.sync_debounce", "800ms")
	viper.SetDefault("workflow.clock_tick", "1s")
	viper.SetDefault("location.fix_timeout", "10s")
	viper.SetDefault("capture.spool_dir", "spool")

	viper.AutomaticEnv()
	viper.SetEnvPrefix("OFA")

	if err := viper.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("failed to read config: %w", err)
	}

	var config Config
	if err := viper.Unmarshal(&config); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	return &config, nil
}

func (c *DatabaseConfig) DSN() string {
	return fmt.Sprintf("postgres://%s:%s@%s:%d/%s?sslmode=disable",
		c.User, c.Password, c.Host, c.Port, c.Database)
}

// BearerToken reads the technician session token from the environment.
func (b *BackendConfig) BearerToken() string {
	envVar := b.TokenEnv
	if envVar == "" {
		envVar = "FIELDOPS_TOKEN"
	}
	return os.Getenv(envVar)
}
