package app

import (
	"errors"
	"fmt"
	"strings"

	"github.com/spf13/viper"

	dbpkg "github.com/yungbote/revisioned/internal/data/db"
	"github.com/yungbote/revisioned/internal/observability"
	"github.com/yungbote/revisioned/internal/platform/logger"
)

const envPrefix = "REVISIONED"

type Config struct {
	LogMode        string
	HTTPAddr       string
	AllowedOrigins []string
	DB             dbpkg.Config
	Otel           observability.OtelConfig
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("log_mode", "development")
	v.SetDefault("http.addr", ":8080")
	v.SetDefault("http.allowed_origins", []string{})

	v.SetDefault("db.driver", dbpkg.DriverSQLite)
	v.SetDefault("db.sqlite_path", "revisioned.db")
	v.SetDefault("db.log_level", "warn")
	v.SetDefault("db.postgres.host", "localhost")
	v.SetDefault("db.postgres.port", 5432)
	v.SetDefault("db.postgres.user", "postgres")
	v.SetDefault("db.postgres.password", "")
	v.SetDefault("db.postgres.name", "revisioned")
	v.SetDefault("db.postgres.sslmode", "disable")
	v.SetDefault("db.postgres.dsn", "")

	v.SetDefault("otel.exporter", observability.ExporterNone)
	v.SetDefault("otel.endpoint", "")
	v.SetDefault("otel.headers", "")
	v.SetDefault("otel.insecure", false)
	v.SetDefault("otel.sample_ratio", 1.0)
	v.SetDefault("otel.service_name", "revisioned")
	v.SetDefault("otel.environment", "")
}

// LoadConfig reads defaults, then config.yaml from configPath (optional),
// then REVISIONED_* environment variables, e.g. REVISIONED_DB_DRIVER or
// REVISIONED_DB_POSTGRES_HOST.
func LoadConfig(configPath string, log *logger.Logger) (Config, error) {
	v := viper.New()
	setDefaults(v)

	v.SetEnvPrefix(envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	v.SetConfigName("config")
	v.SetConfigType("yaml")
	if configPath != "" {
		v.AddConfigPath(configPath)
	}
	v.AddConfigPath(".")
	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return Config{}, fmt.Errorf("read config: %w", err)
		}
		if log != nil {
			log.Debug("No config.yaml found, using defaults and env vars")
		}
	} else if log != nil {
		log.Info("Loaded config file", "path", v.ConfigFileUsed())
	}

	cfg := Config{
		LogMode:        v.GetString("log_mode"),
		HTTPAddr:       v.GetString("http.addr"),
		AllowedOrigins: splitList(v.GetStringSlice("http.allowed_origins")),
		DB: dbpkg.Config{
			Driver:     strings.ToLower(v.GetString("db.driver")),
			SQLitePath: v.GetString("db.sqlite_path"),
			LogLevel:   v.GetString("db.log_level"),
			Postgres: dbpkg.PostgresConfig{
				Host:     v.GetString("db.postgres.host"),
				Port:     v.GetInt("db.postgres.port"),
				User:     v.GetString("db.postgres.user"),
				Password: v.GetString("db.postgres.password"),
				Name:     v.GetString("db.postgres.name"),
				SSLMode:  v.GetString("db.postgres.sslmode"),
				DSN:      v.GetString("db.postgres.dsn"),
			},
		},
		Otel: observability.OtelConfig{
			ServiceName: v.GetString("otel.service_name"),
			Environment: v.GetString("otel.environment"),
			Exporter:    strings.ToLower(v.GetString("otel.exporter")),
			Endpoint:    v.GetString("otel.endpoint"),
			Headers:     observability.ParseHeaders(v.GetString("otel.headers")),
			Insecure:    v.GetBool("otel.insecure"),
			SampleRatio: v.GetFloat64("otel.sample_ratio"),
		},
	}
	return cfg, cfg.validate()
}

func (c Config) validate() error {
	switch c.DB.Driver {
	case dbpkg.DriverSQLite, dbpkg.DriverPostgres:
	default:
		return fmt.Errorf("db.driver must be %q or %q, got %q", dbpkg.DriverSQLite, dbpkg.DriverPostgres, c.DB.Driver)
	}
	switch c.Otel.Exporter {
	case observability.ExporterNone, observability.ExporterStdout, observability.ExporterOTLP:
	default:
		return fmt.Errorf("otel.exporter must be none, stdout or otlp, got %q", c.Otel.Exporter)
	}
	if c.HTTPAddr == "" {
		return errors.New("http.addr is required")
	}
	return nil
}

// splitList accepts both YAML lists and comma separated env values.
func splitList(in []string) []string {
	var out []string
	for _, item := range in {
		for _, part := range strings.Split(item, ",") {
			if part = strings.TrimSpace(part); part != "" {
				out = append(out, part)
			}
		}
	}
	return out
}
