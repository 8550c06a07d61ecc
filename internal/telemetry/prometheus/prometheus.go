package prometheus

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

type Config struct {
	Enabled bool
	Port    string
}

type Client struct {
	Config           Config
	CounterMetrics   map[string]*prometheus.CounterVec
	HistogramMetrics map[string]*prometheus.HistogramVec

	labels map[string][]string
	server *http.Server
}

// Init registers the metrics and, when enabled, serves /metrics on its own
// port in the background.
func Init(cfg Config) (*Client, error) {
	return newClient(cfg, prometheus.NewRegistry())
}

func newClient(cfg Config, reg *prometheus.Registry) (*Client, error) {
	c := &Client{
		Config:           cfg,
		CounterMetrics:   make(map[string]*prometheus.CounterVec),
		HistogramMetrics: make(map[string]*prometheus.HistogramVec),
		labels:           make(map[string][]string),
	}

	if err := c.initMetrics(reg); err != nil {
		return nil, err
	}

	if !cfg.Enabled {
		return c, nil
	}

	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{}))

	c.server = &http.Server{
		Addr:    ":" + cfg.Port,
		Handler: mux,
	}

	srv := c.server
	go func() {
		// the metrics endpoint is best effort; analysis keeps working without it
		_ = srv.ListenAndServe()
	}()

	return c, nil
}

func (c *Client) Incr(name string, tags []string, rate float64) {
	if c == nil {
		return
	}

	counterMetric, exists := c.CounterMetrics[name]
	if !exists {
		return
	}

	counterMetric.WithLabelValues(labelValues(c.labels[name], tags)...).Inc()
}

func (c *Client) Timing(name string, value time.Duration, tags []string, rate float64) {
	c.Observe(name, float64(value.Milliseconds()), tags, rate)
}

func (c *Client) Observe(name string, value float64, tags []string, rate float64) {
	if c == nil {
		return
	}

	histogramMetric, exists := c.HistogramMetrics[name]
	if !exists {
		return
	}

	histogramMetric.WithLabelValues(labelValues(c.labels[name], tags)...).Observe(value)
}

func (c *Client) Close() error {
	if c == nil || c.server == nil {
		return nil
	}

	return c.server.Close()
}
