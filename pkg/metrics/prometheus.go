package metrics

// HTTP middleware adapted from https://github.com/zsais/go-gin-prometheus,
// trimmed to the request counter/latency pair this service dashboards on.

import (
	"log"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const defaultMetricPath = "/metrics"

type Logger interface {
	Error(v ...interface{})
	Errorf(format string, v ...interface{})
}

type defaultLogger struct {
	*log.Logger
}

func (l *defaultLogger) Error(v ...interface{})                 { l.Logger.Println(v...) }
func (l *defaultLogger) Errorf(format string, v ...interface{}) { l.Logger.Printf(format, v...) }

// URLLabelMappingFn controls the cardinality of the "url" label, e.g. mapping
// "/api/v1/subscriptions/SUB-1-2-abc" back to its route template.
type URLLabelMappingFn func(c *gin.Context) string

// Prometheus instruments a gin engine and optionally serves /metrics on a
// dedicated listener so scrapes stay out of the service access log.
type Prometheus struct {
	reqCnt *prometheus.CounterVec
	reqDur *prometheus.HistogramVec

	router        *gin.Engine
	listenAddress string

	MetricsPath       string
	URLLabelMappingFn URLLabelMappingFn

	logger Logger
}

type NewPrometheusOptions struct {
	Subsystem         string
	MetricsPath       string
	URLLabelMappingFn URLLabelMappingFn
	Logger            Logger
}

func NewPrometheus(options NewPrometheusOptions) *Prometheus {
	p := &Prometheus{
		MetricsPath:       options.MetricsPath,
		URLLabelMappingFn: options.URLLabelMappingFn,
		logger:            options.Logger,
	}
	if p.MetricsPath == "" {
		p.MetricsPath = defaultMetricPath
	}
	if p.URLLabelMappingFn == nil {
		p.URLLabelMappingFn = func(c *gin.Context) string { return c.Request.URL.Path }
	}
	if p.logger == nil {
		p.logger = &defaultLogger{Logger: log.Default()}
	}

	p.registerMetrics(options.Subsystem)
	registerDomainCollectors(p.logger)
	return p
}

func (p *Prometheus) registerMetrics(subsystem string) {
	p.reqCnt = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Subsystem: subsystem,
			Name:      "req_total",
			Help:      "How many HTTP requests processed, partitioned by status code, method and url.",
		},
		[]string{"code", "method", "url"},
	)
	p.reqDur = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Subsystem: subsystem,
			Name:      "req_dur_ms",
			Help:      "The HTTP request latencies in milliseconds.",
			Buckets:   HistogramBuckets,
		},
		[]string{"code", "method", "url"},
	)
	for _, c := range []prometheus.Collector{p.reqCnt, p.reqDur} {
		if err := prometheus.Register(c); err != nil {
			p.logger.Errorf("collector could not be registered in Prometheus, err=%v", err)
		}
	}
}

// SetListenAddress exposes metrics on a separate address. If never called,
// metrics are served from the instrumented engine itself.
func (p *Prometheus) SetListenAddress(address string) {
	p.listenAddress = address
	if p.listenAddress != "" {
		p.router = gin.New()
	}
}

// Use attaches the middleware and mounts the metrics path.
func (p *Prometheus) Use(e *gin.Engine) {
	e.Use(p.HandlerFunc())
	if p.listenAddress != "" {
		p.router.GET(p.MetricsPath, gin.WrapH(promhttp.Handler()))
		go func() {
			if err := p.router.Run(p.listenAddress); err != nil {
				p.logger.Errorf("metrics listener stopped: %v", err)
			}
		}()
		return
	}
	e.GET(p.MetricsPath, gin.WrapH(promhttp.Handler()))
}

// HandlerFunc records count and latency per request.
func (p *Prometheus) HandlerFunc() gin.HandlerFunc {
	return func(c *gin.Context) {
		if c.Request.URL.Path == p.MetricsPath {
			c.Next()
			return
		}

		start := time.Now()
		c.Next()

		status := strconv.Itoa(c.Writer.Status())
		url := p.URLLabelMappingFn(c)
		elapsed := float64(time.Since(start).Nanoseconds()) / float64(time.Millisecond)

		p.reqDur.WithLabelValues(status, c.Request.Method, url).Observe(elapsed)
		p.reqCnt.WithLabelValues(status, c.Request.Method, url).Inc()
	}
}
