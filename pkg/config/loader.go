package config

import (
	"fmt"
	"strings"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// Loader handles configuration loading from multiple sources
type Loader struct {
	v          *viper.Viper
	configPath string
	envFile    string
	envPrefix  string
	dirs       []string
}

// NewServerLoader creates a loader for the backend service
func NewServerLoader() *Loader {
	return &Loader{
		v:         viper.New(),
		envPrefix: "CLOSURE_SERVER",
		dirs:      []string{"/etc/closure-server", "$HOME/.closure-server", "."},
	}
}

// NewClientLoader creates a loader for the CLI
func NewClientLoader() *Loader {
	return &Loader{
		v:         viper.New(),
		envPrefix: "CLOSURE",
		dirs:      []string{"$HOME/.closure", "."},
	}
}

// SetConfigPath sets the configuration file path
func (l *Loader) SetConfigPath(path string) {
	l.configPath = path
}

// SetEnvFile sets the dotenv file loaded before the environment is read
func (l *Loader) SetEnvFile(path string) {
	l.envFile = path
}

// LoadServer loads the backend service configuration
func (l *Loader) LoadServer() (*ServerConfig, error) {
	setServerDefaults(l.v)
	var cfg ServerConfig
	if err := l.load(&cfg); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// LoadClient loads the CLI configuration
func (l *Loader) LoadClient() (*ClientConfig, error) {
	setClientDefaults(l.v)
	var cfg ClientConfig
	if err := l.load(&cfg); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (l *Loader) load(out any) error {
	if l.envFile != "" {
		if err := godotenv.Load(l.envFile); err != nil {
			return fmt.Errorf("failed to load env file: %w", err)
		}
	} else {
		// A missing .env is not an error
		_ = godotenv.Load()
	}

	if l.configPath != "" {
		l.v.SetConfigFile(l.configPath)
	} else {
		l.v.SetConfigName("config")
		l.v.SetConfigType("yaml")
		for _, dir := range l.dirs {
			l.v.AddConfigPath(dir)
		}
	}

	if err := l.v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return fmt.Errorf("failed to read config file: %w", err)
		}
	}

	l.v.SetEnvPrefix(l.envPrefix)
	l.v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	l.v.AutomaticEnv()

	if err := l.v.Unmarshal(out); err != nil {
		return fmt.Errorf("failed to unmarshal config: %w", err)
	}
	return nil
}

// GetConfigPath returns the path to the configuration file being used
func (l *Loader) GetConfigPath() string {
	return l.v.ConfigFileUsed()
}

func setServerDefaults(v *viper.Viper) {
	v.SetDefault("server.host", "0.0.0.0")
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.read_timeout", "30s")
	v.SetDefault("server.write_timeout", "30s")
	v.SetDefault("server.shutdown_timeout", "15s")
	v.SetDefault("server.debug", false)
	v.SetDefault("server.trusted_proxies", []string{})

	v.SetDefault("database.driver", "sqlite")
	v.SetDefault("database.host", "localhost")
	v.SetDefault("database.port", 3306)
	v.SetDefault("database.user", "closure")
	v.SetDefault("database.password", "")
	v.SetDefault("database.name", "closure")
	v.SetDefault("database.path", "closure.db")
	v.SetDefault("database.max_open_conns", 25)
	v.SetDefault("database.max_idle_conns", 5)
	v.SetDefault("database.conn_max_lifetime", "5m")
	v.SetDefault("database.log_level", "warn")

	v.SetDefault("auth.jwt_secret", "")
	v.SetDefault("auth.issuer", "fire-closure")
	v.SetDefault("auth.token_expiry", "24h")

	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.development", false)

	v.SetDefault("metrics.enabled", true)
}

func setClientDefaults(v *viper.Viper) {
	v.SetDefault("backend.url", "http://localhost:8080")
	v.SetDefault("backend.token", "")
	v.SetDefault("backend.timeout", "30s")

	v.SetDefault("catalogs.page_size", 100)

	v.SetDefault("logging.level", "warn")
	v.SetDefault("logging.development", false)
}
