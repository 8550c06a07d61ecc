package stats

import (
	"time"

	"github.com/DataDog/datadog-go/v5/statsd"
)

type Config struct {
	Enabled bool
	Address string
}

// Client sends metrics to a statsd agent. Tags are passed through as
// "key:value" strings.
type Client struct {
	config  Config
	statsdc statsd.ClientInterface
}

func InitializeClient(cfg Config) (*Client, error) {
	if !cfg.Enabled {
		return &Client{
			config:  cfg,
			statsdc: &statsd.NoOpClient{},
		}, nil
	}

	statsdc, err := statsd.New(cfg.Address)
	if err != nil {
		return nil, err
	}

	return &Client{
		config:  cfg,
		statsdc: statsdc,
	}, nil
}

func (c *Client) Incr(name string, tags []string, rate float64) {
	if c != nil && c.config.Enabled {
		c.statsdc.Incr(name, tags, rate)
	}
}

func (c *Client) Timing(name string, value time.Duration, tags []string, rate float64) {
	if c != nil && c.config.Enabled {
		c.statsdc.Timing(name, value, tags, rate)
	}
}

func (c *Client) Observe(name string, value float64, tags []string, rate float64) {
	if c != nil && c.config.Enabled {
		c.statsdc.Histogram(name, value, tags, rate)
	}
}

func (c *Client) Close() error {
	if c == nil {
		return nil
	}

	return c.statsdc.Close()
}
