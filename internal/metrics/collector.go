// Package metrics provides internal metrics collection.
// This package is internal and should not be imported by external projects.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"go.uber.org/zap"
)

// Frame completion statuses.
const (
	StatusDecoded   = "decoded"
	StatusFailed    = "failed"
	StatusCancelled = "cancelled"
)

// =============================================================================
// 📊 指标收集器
// =============================================================================

// Collector 指标收集器
//
// All Record methods are safe on a nil *Collector so components can run
// without metrics.
type Collector struct {
	// 调度器指标
	tracksRegistered prometheus.Gauge
	readsInFlight    prometheus.Gauge
	readsBudget      prometheus.Gauge
	framesRemaining  prometheus.Gauge
	tickDuration     prometheus.Histogram

	// 流指标
	requestsIssued   *prometheus.CounterVec
	requestsRejected *prometheus.CounterVec
	framesCompleted  *prometheus.CounterVec
	decodeDuration   *prometheus.HistogramVec
	prefetchDecodes  *prometheus.CounterVec
	cancelDrained    *prometheus.CounterVec

	// 缓存指标
	cacheHits   *prometheus.CounterVec
	cacheMisses *prometheus.CounterVec

	logger *zap.Logger
}

// NewCollector 创建指标收集器
func NewCollector(namespace string, logger *zap.Logger) *Collector {
	if logger == nil {
		logger = zap.NewNop()
	}
	c := &Collector{
		logger: logger.With(zap.String("component", "metrics")),
	}

	// 调度器指标
	c.tracksRegistered = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: namespace,
		Subsystem: "streamer",
		Name:      "tracks_registered",
		Help:      "Number of tracks registered with the streamer",
	})

	c.readsInFlight = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: namespace,
		Subsystem: "streamer",
		Name:      "reads_in_flight",
		Help:      "Decode requests currently in flight across all streams",
	})

	c.readsBudget = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: namespace,
		Subsystem: "streamer",
		Name:      "reads_budget",
		Help:      "Maximum concurrent decode requests",
	})

	c.framesRemaining = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: namespace,
		Subsystem: "streamer",
		Name:      "frames_remaining",
		Help:      "Frames still queued for decoding across all streams",
	})

	c.tickDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Namespace: namespace,
		Subsystem: "streamer",
		Name:      "tick_duration_seconds",
		Help:      "Time spent in one scheduler tick",
		Buckets:   []float64{0.00001, 0.00005, 0.0001, 0.0005, 0.001, 0.005, 0.01},
	})

	// 流指标
	c.requestsIssued = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "stream",
			Name:      "requests_issued_total",
			Help:      "Total number of decode requests dispatched",
		},
		[]string{"format"},
	)

	c.requestsRejected = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "stream",
			Name:      "requests_rejected_total",
			Help:      "Total number of decode requests refused for lack of a free slot",
		},
		[]string{"format"},
	)

	c.framesCompleted = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "stream",
			Name:      "frames_completed_total",
			Help:      "Total number of reaped decode requests",
		},
		[]string{"format", "status"},
	)

	c.decodeDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "stream",
			Name:      "decode_duration_seconds",
			Help:      "Background frame decode duration in seconds",
			Buckets:   []float64{0.001, 0.0025, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1},
		},
		[]string{"format"},
	)

	c.prefetchDecodes = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "stream",
			Name:      "prefetch_decodes_total",
			Help:      "Total number of frames decoded synchronously by Prefetch",
		},
		[]string{"format"},
	)

	c.cancelDrained = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "stream",
			Name:      "cancel_drained_total",
			Help:      "Total number of in-flight requests drained by cancellation",
		},
		[]string{"format"},
	)

	// 缓存指标
	c.cacheHits = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "cache",
			Name:      "hits_total",
			Help:      "Total number of frame cache hits",
		},
		[]string{"format"},
	)

	c.cacheMisses = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "cache",
			Name:      "misses_total",
			Help:      "Total number of frame cache misses",
		},
		[]string{"format"},
	)

	logger.Info("metrics collector initialized", zap.String("namespace", namespace))

	return c
}

// =============================================================================
// 🎯 调度器指标记录
// =============================================================================

// RecordTick 记录一次调度 tick
func (c *Collector) RecordTick(duration time.Duration, tracks, inFlight, budget, remaining int) {
	if c == nil {
		return
	}
	c.tickDuration.Observe(duration.Seconds())
	c.tracksRegistered.Set(float64(tracks))
	c.readsInFlight.Set(float64(inFlight))
	c.readsBudget.Set(float64(budget))
	c.framesRemaining.Set(float64(remaining))
}

// RecordTracks 记录已注册轨道数
func (c *Collector) RecordTracks(tracks int) {
	if c == nil {
		return
	}
	c.tracksRegistered.Set(float64(tracks))
}

// =============================================================================
// 🎞️ 流指标记录
// =============================================================================

// RecordRequestIssued 记录已派发的解码请求
func (c *Collector) RecordRequestIssued(format string) {
	if c == nil {
		return
	}
	c.requestsIssued.WithLabelValues(format).Inc()
}

// RecordRequestRejected 记录因槽位耗尽被拒绝的请求
func (c *Collector) RecordRequestRejected(format string) {
	if c == nil {
		return
	}
	c.requestsRejected.WithLabelValues(format).Inc()
}

// RecordFrameCompleted 记录回收的请求
func (c *Collector) RecordFrameCompleted(format, status string) {
	if c == nil {
		return
	}
	c.framesCompleted.WithLabelValues(format, status).Inc()
}

// RecordDecode 记录后台解码耗时
func (c *Collector) RecordDecode(format string, duration time.Duration) {
	if c == nil {
		return
	}
	c.decodeDuration.WithLabelValues(format).Observe(duration.Seconds())
}

// RecordPrefetchDecode 记录 Prefetch 同步解码
func (c *Collector) RecordPrefetchDecode(format string) {
	if c == nil {
		return
	}
	c.prefetchDecodes.WithLabelValues(format).Inc()
}

// RecordCancelDrained 记录取消时排空的请求数
func (c *Collector) RecordCancelDrained(format string, n int) {
	if c == nil || n <= 0 {
		return
	}
	c.cancelDrained.WithLabelValues(format).Add(float64(n))
}

// =============================================================================
// 💾 缓存指标记录
// =============================================================================

// RecordCacheHit 记录缓存命中
func (c *Collector) RecordCacheHit(format string) {
	if c == nil {
		return
	}
	c.cacheHits.WithLabelValues(format).Inc()
}

// RecordCacheMiss 记录缓存未命中
func (c *Collector) RecordCacheMiss(format string) {
	if c == nil {
		return
	}
	c.cacheMisses.WithLabelValues(format).Inc()
}
