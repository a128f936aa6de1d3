// Package metrics exposes the pipeline's Prometheus collectors. Each
// Collector owns its registry so independent instances (and tests) never
// collide on registration.
package metrics

import (
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/rewired-gh/unrestwatch/internal/models"
)

const namespace = "unrestwatch"

// Collector holds every metric the service records.
type Collector struct {
	registry *prometheus.Registry

	postsScored      *prometheus.CounterVec
	warningsDetected *prometheus.CounterVec
	warningsSent     prometheus.Counter
	trainingDuration *prometheus.HistogramVec
	modelReady       prometheus.Gauge

	httpRequestsTotal   *prometheus.CounterVec
	httpRequestDuration *prometheus.HistogramVec
}

// New creates a Collector with Go runtime and process collectors registered.
func New() *Collector {
	c := &Collector{registry: prometheus.NewRegistry()}

	c.postsScored = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "posts_scored_total",
		Help:      "Posts scored, by assigned risk level",
	}, []string{"risk_level"})

	c.warningsDetected = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "warnings_detected_total",
		Help:      "Early warnings raised, by type",
	}, []string{"type"})

	c.warningsSent = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "warnings_sent_total",
		Help:      "Early warnings delivered after cooldown filtering",
	})

	c.trainingDuration = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: namespace,
		Name:      "training_duration_seconds",
		Help:      "Classifier training duration",
		Buckets:   prometheus.ExponentialBuckets(0.1, 4, 8),
	}, []string{"outcome"})

	c.modelReady = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      "model_ready",
		Help:      "1 when a trained classifier is serving predictions",
	})

	c.httpRequestsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "http_requests_total",
		Help:      "Total number of HTTP requests",
	}, []string{"method", "endpoint", "status"})

	c.httpRequestDuration = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: namespace,
		Name:      "http_request_duration_seconds",
		Help:      "HTTP request duration in seconds",
		Buckets:   prometheus.DefBuckets,
	}, []string{"method", "endpoint"})

	c.registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		c.postsScored,
		c.warningsDetected,
		c.warningsSent,
		c.trainingDuration,
		c.modelReady,
		c.httpRequestsTotal,
		c.httpRequestDuration,
	)
	return c
}

// Registry returns the collector's registry.
func (c *Collector) Registry() *prometheus.Registry {
	return c.registry
}

// ObserveScored counts posts by risk level.
func (c *Collector) ObserveScored(posts []models.ScoredPost) {
	for _, p := range posts {
		c.postsScored.WithLabelValues(p.RiskLevel.String()).Inc()
	}
}

// ObserveWarnings counts detected warnings by type.
func (c *Collector) ObserveWarnings(warnings []models.Warning) {
	for _, w := range warnings {
		c.warningsDetected.WithLabelValues(string(w.Type)).Inc()
	}
}

// ObserveSent counts delivered warnings.
func (c *Collector) ObserveSent(n int) {
	c.warningsSent.Add(float64(n))
}

// ObserveTraining records a finished training job.
func (c *Collector) ObserveTraining(err error, elapsed time.Duration) {
	outcome := "success"
	if err != nil {
		outcome = "failure"
	}
	c.trainingDuration.WithLabelValues(outcome).Observe(elapsed.Seconds())
}

// SetModelReady sets the model readiness gauge.
func (c *Collector) SetModelReady(ready bool) {
	if ready {
		c.modelReady.Set(1)
	} else {
		c.modelReady.Set(0)
	}
}

// Middleware returns gin middleware that collects HTTP metrics
func (c *Collector) Middleware() gin.HandlerFunc {
	return func(ctx *gin.Context) {
		start := time.Now()
		ctx.Next()

		endpoint := ctx.FullPath()
		if endpoint == "" {
			endpoint = "unknown"
		}
		method := ctx.Request.Method
		c.httpRequestsTotal.WithLabelValues(method, endpoint, strconv.Itoa(ctx.Writer.Status())).Inc()
		c.httpRequestDuration.WithLabelValues(method, endpoint).Observe(time.Since(start).Seconds())
	}
}

// Handler returns the Prometheus metrics HTTP handler
func (c *Collector) Handler() gin.HandlerFunc {
	handler := promhttp.HandlerFor(c.registry, promhttp.HandlerOpts{})
	return func(ctx *gin.Context) {
		handler.ServeHTTP(ctx.Writer, ctx.Request)
	}
}
