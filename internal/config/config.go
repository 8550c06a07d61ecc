package config

import (
	"errors"
	"io/fs"
	"time"

	"github.com/caarlos0/env"
	"github.com/joho/godotenv"
)

type Config struct {
	Port                  int           `env:"DKPII_PORT" envDefault:"8080"`
	Language              string        `env:"DKPII_LANGUAGE" envDefault:"da"`
	ScoreThreshold        float64       `env:"DKPII_SCORE_THRESHOLD" envDefault:"0"`
	RecognizersFile       string        `env:"DKPII_RECOGNIZERS_FILE"`
	RecognizersReload     time.Duration `env:"DKPII_RECOGNIZERS_RELOAD_INTERVAL" envDefault:"0s"`
	MatchTimeout          time.Duration `env:"DKPII_MATCH_TIMEOUT" envDefault:"0s"`
	CprChecksum           bool          `env:"DKPII_CPR_CHECKSUM" envDefault:"false"`
	LegacyPhone           bool          `env:"DKPII_LEGACY_PHONE" envDefault:"false"`
	IgnoreCase            bool          `env:"DKPII_IGNORE_CASE" envDefault:"false"`
	ContextPrefixCount    int           `env:"DKPII_CONTEXT_PREFIX_COUNT" envDefault:"5"`
	ContextSuffixCount    int           `env:"DKPII_CONTEXT_SUFFIX_COUNT" envDefault:"5"`
	ContextBoost          float64       `env:"DKPII_CONTEXT_BOOST" envDefault:"0.35"`
	ContextMinScore       float64       `env:"DKPII_CONTEXT_MIN_SCORE" envDefault:"0.4"`
	RedisEnabled          bool          `env:"REDIS_ENABLED" envDefault:"false"`
	RedisHosts            string        `env:"REDIS_HOSTS" envDefault:"localhost"`
	RedisPort             string        `env:"REDIS_PORT" envDefault:"6379"`
	RedisUsername         string        `env:"REDIS_USERNAME"`
	RedisPassword         string        `env:"REDIS_PASSWORD"`
	RedisDb               int           `env:"REDIS_DB" envDefault:"0"`
	RedisReadTimeout      time.Duration `env:"REDIS_READ_TIME_OUT" envDefault:"1s"`
	RedisWriteTimeout     time.Duration `env:"REDIS_WRITE_TIME_OUT" envDefault:"500ms"`
	AnalysisCacheTtl      time.Duration `env:"ANALYSIS_CACHE_TTL" envDefault:"10m"`
	AmazonEnabled         bool          `env:"AMAZON_COMPREHEND_ENABLED" envDefault:"false"`
	AmazonRegion          string        `env:"AMAZON_REGION" envDefault:"us-west-2"`
	AmazonLanguageCode    string        `env:"AMAZON_LANGUAGE_CODE" envDefault:"en"`
	AmazonAccessKeyId     string        `env:"AMAZON_ACCESS_KEY_ID"`
	AmazonSecretAccessKey string        `env:"AMAZON_SECRET_ACCESS_KEY"`
	AmazonRequestTimeout  time.Duration `env:"AMAZON_REQUEST_TIMEOUT" envDefault:"5s"`
	AmazonConnectTimeout  time.Duration `env:"AMAZON_CONNECTION_TIMEOUT" envDefault:"10s"`
	AmazonMaxElapsedTime  time.Duration `env:"AMAZON_MAX_ELAPSED_TIME" envDefault:"10s"`
	TelemetryProvider     string        `env:"TELEMETRY_PROVIDER" envDefault:"statsd"`
	StatsEnabled          bool          `env:"STATS_ENABLED" envDefault:"false"`
	StatsAddress          string        `env:"STATS_ADDRESS" envDefault:"127.0.0.1:8125"`
	PrometheusEnabled     bool          `env:"PROMETHEUS_ENABLED" envDefault:"false"`
	PrometheusPort        string        `env:"PROMETHEUS_PORT" envDefault:"2112"`
	OpenTelemetryEnabled  bool          `env:"OPEN_TELEMETRY_ENABLED" envDefault:"false"`
	OpenTelemetryEndpoint string        `env:"OPEN_TELEMETRY_ENDPOINT" envDefault:"localhost:4318"`
	OpenTelemetryService  string        `env:"OPEN_TELEMETRY_SERVICE_NAME" envDefault:"dkpii"`
}

// LoadDotEnv loads variables from the given .env files into the process
// environment. Variables that are already set win. Missing files are ignored.
func LoadDotEnv(paths ...string) error {
	for _, p := range paths {
		if err := godotenv.Load(p); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return err
		}
	}

	return nil
}

func ParseEnvVariables() (*Config, error) {
	cfg := &Config{}
	err := env.Parse(cfg)
	if err != nil {
		return nil, err
	}

	return cfg, nil
}
