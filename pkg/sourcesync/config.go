package sourcesync

import "github.com/kaytu-io/kaytu-util/pkg/koanf"

type SyncConfig struct {
	Postgres koanf.Postgres   `json:"postgres,omitempty" koanf:"postgres"`
	Database DatabaseConfig   `json:"database,omitempty" koanf:"database"`
	Http     koanf.HttpServer `json:"http,omitempty" koanf:"http"`
	Runner   RunnerConfig     `json:"runner,omitempty" koanf:"runner"`
	Graph    GraphConfig      `json:"graph,omitempty" koanf:"graph"`
	Sophos   SophosConfig     `json:"sophos,omitempty" koanf:"sophos"`
	Redis    RedisConfig      `json:"redis,omitempty" koanf:"redis"`
}

// DatabaseConfig tunes how gorm statements are logged.
type DatabaseConfig struct {
	LogLevel            string `json:"log_level,omitempty" koanf:"log_level"`
	SlowThresholdMillis int    `json:"slow_threshold_millis,omitempty" koanf:"slow_threshold_millis"`
}

type RunnerConfig struct {
	// MaxEstDuration is the est_duration budget, in minutes, of one claim.
	MaxEstDuration int `json:"max_est_duration,omitempty" koanf:"max_est_duration"`
	// IntervalSeconds of zero disables the built-in scheduler loops.
	IntervalSeconds        int `json:"interval_seconds,omitempty" koanf:"interval_seconds"`
	RequeueIntervalSeconds int `json:"requeue_interval_seconds,omitempty" koanf:"requeue_interval_seconds"`
	RetryCeiling           int `json:"retry_ceiling,omitempty" koanf:"retry_ceiling"`
}

// GraphConfig bounds the per-user enrichment calls against Microsoft Graph.
type GraphConfig struct {
	Workers       int     `json:"workers,omitempty" koanf:"workers"`
	RatePerSecond float64 `json:"rate_per_second,omitempty" koanf:"rate_per_second"`
	Burst         int     `json:"burst,omitempty" koanf:"burst"`
}

type SophosConfig struct {
	AuthURL        string `json:"auth_url,omitempty" koanf:"auth_url"`
	APIURL         string `json:"api_url,omitempty" koanf:"api_url"`
	TimeoutSeconds int    `json:"timeout_seconds,omitempty" koanf:"timeout_seconds"`
}

// RedisConfig enables the distributed token refresh lock when Address is set.
type RedisConfig struct {
	Address  string `json:"address,omitempty" koanf:"address"`
	Password string `json:"password,omitempty" koanf:"password"`
	DB       int    `json:"db,omitempty" koanf:"db"`
}
