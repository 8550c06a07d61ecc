package prometheus

import (
	"strings"

	"github.com/prometheus/client_golang/prometheus"
)

type metricKind int

const (
	counterKind metricKind = iota
	histogramKind
)

type definition struct {
	name    string
	kind    metricKind
	labels  []string
	buckets []float64
}

var scoreBuckets = []float64{0.1, 0.2, 0.3, 0.4, 0.5, 0.6, 0.7, 0.8, 0.9, 1}

var definitions = []definition{
	{name: "dkpii.scanner.scan.success", kind: counterKind},
	{name: "dkpii.scanner.scan.detector_error", kind: counterKind},
	{name: "dkpii.scanner.scan.latency", kind: histogramKind},
	{name: "dkpii.regex.detect.entities", kind: counterKind, labels: []string{"entity"}},
	{name: "dkpii.regex.detect.timeout", kind: counterKind, labels: []string{"recognizer"}},
	{name: "dkpii.regex.detect.latency", kind: histogramKind},
	{name: "dkpii.regex.detect.score", kind: histogramKind, labels: []string{"entity"}, buckets: scoreBuckets},
	{name: "dkpii.amazon.detect.error", kind: counterKind},
	{name: "dkpii.amazon.detect.latency", kind: histogramKind},
	{name: "dkpii.policy.inspect.action", kind: counterKind, labels: []string{"action"}},
	{name: "dkpii.cache.analysis.hit", kind: counterKind},
	{name: "dkpii.cache.analysis.miss", kind: counterKind},
	{name: "dkpii.web.analyze.requests", kind: counterKind},
	{name: "dkpii.web.analyze.latency", kind: histogramKind},
	{name: "dkpii.web.inspect.requests", kind: counterKind},
	{name: "dkpii.web.inspect.latency", kind: histogramKind},
	{name: "dkpii.web.inspect.openai.requests", kind: counterKind},
	{name: "dkpii.web.inspect.openai.latency", kind: histogramKind},
	{name: "dkpii.web.recognizers.requests", kind: counterKind},
	{name: "dkpii.web.error", kind: counterKind, labels: []string{"path", "status"}},
	{name: "dkpii.registry.reload.success", kind: counterKind},
	{name: "dkpii.registry.reload.error", kind: counterKind},
}

// metricName converts the dotted statsd style names into prometheus names.
func metricName(name string) string {
	return strings.NewReplacer(".", "_", "-", "_").Replace(name)
}

func (c *Client) initMetrics(reg prometheus.Registerer) error {
	for _, d := range definitions {
		labels := d.labels
		if labels == nil {
			labels = []string{}
		}

		switch d.kind {
		case counterKind:
			cv := prometheus.NewCounterVec(
				prometheus.CounterOpts{
					Name: metricName(d.name),
				},
				labels,
			)
			if err := reg.Register(cv); err != nil {
				return err
			}
			c.CounterMetrics[d.name] = cv
		case histogramKind:
			buckets := d.buckets
			if buckets == nil {
				buckets = prometheus.DefBuckets
			}

			hv := prometheus.NewHistogramVec(
				prometheus.HistogramOpts{
					Name:    metricName(d.name),
					Buckets: buckets,
				},
				labels,
			)
			if err := reg.Register(hv); err != nil {
				return err
			}
			c.HistogramMetrics[d.name] = hv
		}

		c.labels[d.name] = labels
	}

	return nil
}

// labelValues maps "key:value" tags onto the label order of a metric.
// Missing labels get an empty value; unknown tags are dropped.
func labelValues(labels []string, tags []string) []string {
	values := make([]string, len(labels))
	for _, tag := range tags {
		k, v, ok := strings.Cut(tag, ":")
		if !ok {
			continue
		}

		for i, l := range labels {
			if l == k {
				values[i] = v
			}
		}
	}

	return values
}
