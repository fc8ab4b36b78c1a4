package config

import (
	"fmt"
	"log"
	"net/url"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Viper decodes through mapstructure, so the tags below must use the
// mapstructure key, not yaml.
type Config struct {
	HTTP     HTTPConfig     `mapstructure:"http"`
	Database DatabaseConfig `mapstructure:"database"`
	Redis    RedisConfig    `mapstructure:"redis"`
	Auth     AuthConfig     `mapstructure:"auth"`
	Tracing  TracingConfig  `mapstructure:"tracing"`
	Logger   LoggerConfig   `mapstructure:"logger"`
	Pricing  PricingConfig  `mapstructure:"pricing"`
	Debug    bool           `mapstructure:"debug"`
}

type HTTPConfig struct {
	Port    int           `mapstructure:"port"`
	Timeout time.Duration `mapstructure:"timeout"`
}

type DatabaseConfig struct {
	Host     string `mapstructure:"host"`
	Port     string `mapstructure:"port"`
	User     string `mapstructure:"user"`
	Password string `mapstructure:"password"`
	Name     string `mapstructure:"name"`
}

type RedisConfig struct {
	Addr     string `mapstructure:"addr"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
}

type AuthConfig struct {
	Secret             string `mapstructure:"secret"`
	Algorithm          string `mapstructure:"algorithm"`
	TokenExpireMinutes int    `mapstructure:"token_expire_minutes"`
}

type TracingConfig struct {
	Endpoint    string `mapstructure:"endpoint"`
	ServiceName string `mapstructure:"service_name"`
	Environment string `mapstructure:"environment"`
	Version     string `mapstructure:"version"`
}

type LoggerConfig struct {
	Level string `mapstructure:"level"`
}

type PricingConfig struct {
	// Path to a rate card JSON file. Empty means the embedded default.
	Path string `mapstructure:"path"`
}

func LoadConfig() (*Config, error) {
	viper.SetConfigName("config")
	viper.SetConfigType("yaml")

	viper.AddConfigPath(".")

	viper.AutomaticEnv()

	// Deployment environments configure the service through these
	// variables rather than config.yaml.
	bindings := map[string]string{
		"http.port":                 "PORT",
		"auth.secret":               "SECRET_KEY",
		"auth.algorithm":            "ALGORITHM",
		"auth.token_expire_minutes": "ACCESS_TOKEN_EXPIRE_MINUTES",
		"debug":                     "DEBUG",
	}
	for key, env := range bindings {
		if err := viper.BindEnv(key, env); err != nil {
			return nil, err
		}
	}

	if err := viper.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, err
		}
	}

	var config Config
	if err := viper.Unmarshal(&config); err != nil {
		return nil, err
	}

	if timeoutStr := viper.GetString("http.timeout"); timeoutStr != "" {
		timeout, err := time.ParseDuration(timeoutStr)
		if err != nil {
			return nil, err
		}
		config.HTTP.Timeout = timeout
	}

	if dbURL := viper.GetString("DATABASE_URL"); dbURL != "" {
		dbCfg, err := ParseDatabaseURL(dbURL)
		if err != nil {
			return nil, err
		}
		config.Database = *dbCfg
	}

	if config.Auth.Algorithm == "" {
		config.Auth.Algorithm = "HS256"
	}
	if config.Auth.Algorithm != "HS256" {
		return nil, fmt.Errorf("unsupported token signing algorithm: %q", config.Auth.Algorithm)
	}
	if config.Auth.TokenExpireMinutes <= 0 {
		config.Auth.TokenExpireMinutes = 30
	}

	return &config, nil
}

// ParseDatabaseURL splits a <driver>://<user>:<password>@<host>:<port>/<db>
// connection string into the database config fields.
func ParseDatabaseURL(raw string) (*DatabaseConfig, error) {
	u, err := url.Parse(raw)
	if err != nil {
		return nil, fmt.Errorf("invalid DATABASE_URL: %w", err)
	}
	if u.Scheme != "mysql" {
		return nil, fmt.Errorf("unsupported database driver: %q", u.Scheme)
	}
	if u.Host == "" || u.User == nil {
		return nil, fmt.Errorf("invalid DATABASE_URL: missing host or credentials")
	}

	password, _ := u.User.Password()
	host := u.Host
	port := "3306"
	if i := strings.LastIndex(u.Host, ":"); i >= 0 {
		host, port = u.Host[:i], u.Host[i+1:]
	}

	return &DatabaseConfig{
		Host:     host,
		Port:     port,
		User:     u.User.Username(),
		Password: password,
		Name:     strings.TrimPrefix(u.Path, "/"),
	}, nil
}

func MustLoadConfig() *Config {
	config, err := LoadConfig()
	if err != nil {
		log.Fatalf("Could not load configuration: %v", err)
	}
	return config
}
