package monitoring

import (
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"churnboard/ml"
)

// Metrics 所有Prometheus指标
type Metrics struct {
	registry *prometheus.Registry

	// HTTP
	RequestsTotal   *prometheus.CounterVec
	RequestDuration *prometheus.HistogramVec

	// 预测
	PredictionsTotal   *prometheus.CounterVec
	PredictionDuration *prometheus.HistogramVec
	HistoryFailures    prometheus.Counter

	// 模型加载
	BundleFetches       *prometheus.CounterVec
	BundleFetchDuration prometheus.Histogram
}

// NewMetrics 创建并注册指标到独立的registry
func NewMetrics() *Metrics {
	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	f := promauto.With(reg)

	return &Metrics{
		registry: reg,

		RequestsTotal: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "churnboard_http_requests_total",
				Help: "Total number of HTTP requests",
			},
			[]string{"method", "route", "status"},
		),
		RequestDuration: f.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "churnboard_http_request_duration_seconds",
				Help:    "Duration of HTTP requests",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"method", "route"},
		),

		PredictionsTotal: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "churnboard_predictions_total",
				Help: "Total number of prediction requests by model and outcome",
			},
			[]string{"model", "outcome"},
		),
		PredictionDuration: f.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "churnboard_prediction_duration_seconds",
				Help:    "Time from record to prediction, including bundle fetch",
				Buckets: []float64{.001, .005, .01, .05, .1, .5, 1, 5, 30},
			},
			[]string{"model"},
		),
		HistoryFailures: f.NewCounter(prometheus.CounterOpts{
			Name: "churnboard_history_append_failures_total",
			Help: "Predictions that could not be written to history",
		}),

		BundleFetches: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "churnboard_bundle_fetches_total",
				Help: "Model bundle fetch attempts by result",
			},
			[]string{"result"},
		),
		BundleFetchDuration: f.NewHistogram(prometheus.HistogramOpts{
			Name:    "churnboard_bundle_fetch_duration_seconds",
			Help:    "Duration of model bundle fetch attempts",
			Buckets: prometheus.ExponentialBuckets(0.05, 2, 10),
		}),
	}
}

// Registry 返回指标registry
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// Handler 暴露 /metrics
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}

// RegisterClientGauge 注册websocket连接数
func (m *Metrics) RegisterClientGauge(clients func() int) {
	m.registry.MustRegister(prometheus.NewGaugeFunc(prometheus.GaugeOpts{
		Name: "churnboard_history_stream_clients",
		Help: "Open history websocket connections",
	}, func() float64 { return float64(clients()) }))
}

// ObserveRequest 记录一次HTTP请求
func (m *Metrics) ObserveRequest(method, route string, status int, elapsed time.Duration) {
	m.RequestsTotal.WithLabelValues(method, route, strconv.Itoa(status)).Inc()
	m.RequestDuration.WithLabelValues(method, route).Observe(elapsed.Seconds())
}

// ObservePrediction 实现 pipeline.Observer
func (m *Metrics) ObservePrediction(model, label string, elapsed time.Duration, err error) {
	m.PredictionsTotal.WithLabelValues(model, outcome(label, err)).Inc()
	m.PredictionDuration.WithLabelValues(model).Observe(elapsed.Seconds())
}

// ObserveHistoryFailure 实现 pipeline.Observer
func (m *Metrics) ObserveHistoryFailure() {
	m.HistoryFailures.Inc()
}

// ObserveBundleFetch 实现 ml.FetchObserver
func (m *Metrics) ObserveBundleFetch(err error, elapsed time.Duration) {
	result := "ok"
	if err != nil {
		result = "error"
	}
	m.BundleFetches.WithLabelValues(result).Inc()
	m.BundleFetchDuration.Observe(elapsed.Seconds())
}

func outcome(label string, err error) string {
	var (
		sme *ml.SchemaMismatchError
		uce *ml.UnknownCategoryError
		afe *ml.ArtifactFetchError
	)
	switch {
	case err == nil:
		return "label_" + label
	case errors.As(err, &sme):
		return "schema_mismatch"
	case errors.As(err, &uce):
		return "unknown_category"
	case errors.As(err, &afe):
		return "artifact_unavailable"
	}
	return "error"
}
