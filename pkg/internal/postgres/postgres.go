// Package postgres opens the sync database with gorm, routes its logs
// through zap and exports connection pool stats to prometheus.
package postgres

import (
	"errors"
	"fmt"
	"net/url"
	"sort"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"
	gormprom "gorm.io/plugin/prometheus"
	"moul.io/zapgorm2"
)

const (
	defaultMaxOpenConns  = 25
	defaultMaxIdleConns  = 10
	defaultMaxLifetime   = 5 * time.Minute
	defaultSSLMode       = "disable"
	defaultSlowThreshold = 500 * time.Millisecond
	defaultLogLevel      = "warn"
	applicationName      = "sync-service"
)

type Config struct {
	Host    string
	Port    string
	User    string
	Passwd  string
	DB      string
	SSLMode string

	// LogLevel is one of silent, error, warn or info.
	LogLevel string
	// SlowThreshold marks statements logged as slow at warn level.
	SlowThreshold time.Duration

	Connection struct {
		MaxOpen     int
		MaxIdle     int
		MaxLifetime time.Duration
	}
}

func validateConfig(cfg *Config) error {
	var missing []string
	for name, value := range map[string]string{
		"host":     cfg.Host,
		"port":     cfg.Port,
		"user":     cfg.User,
		"password": cfg.Passwd,
		"db":       cfg.DB,
	} {
		if value == "" {
			missing = append(missing, name)
		}
	}
	if len(missing) > 0 {
		sort.Strings(missing)
		return fmt.Errorf("postgres config is missing %s", strings.Join(missing, ", "))
	}
	if _, err := logLevel(cfg.LogLevel); err != nil {
		return err
	}

	if cfg.SSLMode == "" {
		cfg.SSLMode = defaultSSLMode
	}
	if cfg.LogLevel == "" {
		cfg.LogLevel = defaultLogLevel
	}
	if cfg.SlowThreshold == 0 {
		cfg.SlowThreshold = defaultSlowThreshold
	}
	if cfg.Connection.MaxOpen == 0 {
		cfg.Connection.MaxOpen = defaultMaxOpenConns
	}
	if cfg.Connection.MaxIdle == 0 {
		cfg.Connection.MaxIdle = defaultMaxIdleConns
	}
	if cfg.Connection.MaxLifetime == 0 {
		cfg.Connection.MaxLifetime = defaultMaxLifetime
	}
	return nil
}

func logLevel(name string) (gormlogger.LogLevel, error) {
	switch strings.ToLower(name) {
	case "silent":
		return gormlogger.Silent, nil
	case "error":
		return gormlogger.Error, nil
	case "", "warn":
		return gormlogger.Warn, nil
	case "info":
		return gormlogger.Info, nil
	default:
		return 0, fmt.Errorf("unknown postgres log level %q", name)
	}
}

// dsn renders cfg as a libpq connection URL. Sessions run in GMT so
// timestamps written by the claim procedure match the ones written by Go.
func dsn(cfg *Config) string {
	q := url.Values{}
	q.Set("sslmode", cfg.SSLMode)
	q.Set("TimeZone", "GMT")
	q.Set("application_name", applicationName)
	u := url.URL{
		Scheme:   "postgres",
		User:     url.UserPassword(cfg.User, cfg.Passwd),
		Host:     cfg.Host + ":" + cfg.Port,
		Path:     "/" + cfg.DB,
		RawQuery: q.Encode(),
	}
	return u.String()
}

func gormLogger(cfg *Config, logger *zap.Logger) gormlogger.Interface {
	level, _ := logLevel(cfg.LogLevel)
	l := zapgorm2.New(logger.Named("gorm"))
	l.SlowThreshold = cfg.SlowThreshold
	l.IgnoreRecordNotFoundError = true
	return l.LogMode(level)
}

// NewClient opens the sync database and registers the gorm dbstats collectors
// (gorm_dbstats_open_connections, gorm_dbstats_in_use, gorm_dbstats_idle,
// gorm_dbstats_wait_count and friends) with the default prometheus registry.
func NewClient(cfg *Config, logger *zap.Logger) (*gorm.DB, error) {
	if cfg == nil {
		return nil, errors.New("cfg is nil")
	}
	if logger == nil {
		return nil, errors.New("logger is nil")
	}

	if err := validateConfig(cfg); err != nil {
		return nil, err
	}

	orm, err := gorm.Open(postgres.Open(dsn(cfg)), &gorm.Config{
		Logger: gormLogger(cfg, logger),
	})
	if err != nil {
		return nil, fmt.Errorf("gorm open: %w", err)
	}

	metrics := gormprom.New(gormprom.Config{
		DBName: cfg.DB,
	})
	if err := metrics.Initialize(orm); err != nil {
		return nil, fmt.Errorf("init gorm prometheus: %w", err)
	}
	for _, collector := range metrics.Collectors {
		if err := prometheus.Register(collector); err != nil {
			var already prometheus.AlreadyRegisteredError
			if !errors.As(err, &already) {
				logger.Warn("failed to register gorm collector", zap.Error(err))
			}
		}
	}

	db, err := orm.DB()
	if err != nil {
		return nil, fmt.Errorf("raw db: %w", err)
	}
	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("ping db: %w", err)
	}
	db.SetMaxOpenConns(cfg.Connection.MaxOpen)
	db.SetMaxIdleConns(cfg.Connection.MaxIdle)
	db.SetConnMaxLifetime(cfg.Connection.MaxLifetime)

	logger.Info("connected to postgres",
		zap.String("host", cfg.Host),
		zap.String("db", cfg.DB),
		zap.String("log_level", cfg.LogLevel),
		zap.Int("max_open", cfg.Connection.MaxOpen),
	)
	return orm, nil
}
