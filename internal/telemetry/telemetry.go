package telemetry

import (
	"errors"
	"fmt"
	"time"

	configPkg "github.com/bricks-cloud/dkpii/internal/config"
	"github.com/bricks-cloud/dkpii/internal/telemetry/prometheus"
	"github.com/bricks-cloud/dkpii/internal/telemetry/stats"
)

type ProviderType string

const (
	PROVIDER_DATADOG    ProviderType = "statsd"
	PROVIDER_PROMETHEUS ProviderType = "prometheus"
	PROVIDER_NONE       ProviderType = "none"
)

type Provider interface {
	Incr(name string, tags []string, rate float64)
	Timing(name string, value time.Duration, tags []string, rate float64)
	Observe(name string, value float64, tags []string, rate float64)
	Close() error
}

type Client struct {
	Provider Provider
}

var Singleton *Client

func Init(cfg *configPkg.Config) error {
	if cfg == nil {
		return errors.New("config is empty")
	}

	var (
		p   Provider
		err error
	)

	switch ProviderType(cfg.TelemetryProvider) {
	case PROVIDER_DATADOG:
		p, err = stats.InitializeClient(stats.Config{
			Enabled: cfg.StatsEnabled,
			Address: cfg.StatsAddress,
		})
	case PROVIDER_PROMETHEUS:
		p, err = prometheus.Init(prometheus.Config{
			Enabled: cfg.PrometheusEnabled,
			Port:    cfg.PrometheusPort,
		})
	case PROVIDER_NONE:
		Singleton = nil
		return nil
	default:
		return fmt.Errorf("unsupported telemetry provider %q", cfg.TelemetryProvider)
	}

	if err != nil {
		return err
	}

	SetProvider(p)
	return nil
}

// SetProvider replaces the provider used by the package level helpers. nil
// turns them into no-ops.
func SetProvider(p Provider) {
	if p == nil {
		Singleton = nil
		return
	}

	Singleton = &Client{
		Provider: p,
	}
}

func Close() error {
	if Singleton == nil {
		return nil
	}

	return Singleton.Provider.Close()
}

func Incr(name string, tags []string, rate float64) {
	if Singleton != nil {
		Singleton.Provider.Incr(name, tags, rate)
	}
}

func Timing(name string, value time.Duration, tags []string, rate float64) {
	if Singleton != nil {
		Singleton.Provider.Timing(name, value, tags, rate)
	}
}

// Observe records a sample of a value distribution, such as entity scores.
func Observe(name string, value float64, tags []string, rate float64) {
	if Singleton != nil {
		Singleton.Provider.Observe(name, value, tags, rate)
	}
}
