package stream

import (
	"context"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/BaSui01/geostream/internal/metrics"
	"github.com/BaSui01/geostream/internal/pool"
	"github.com/BaSui01/geostream/track"
)

const instrumentationName = "github.com/BaSui01/geostream/stream"

// Slot pool sizes per archive format.
const (
	AlembicPoolCapacity = 8
	USDPoolCapacity     = 10
)

// CapacityFor returns the default slot pool size for a format.
func CapacityFor(f track.Format) int {
	switch f {
	case track.FormatUSD:
		return USDPoolCapacity
	default:
		return AlembicPoolCapacity
	}
}

// Executor runs decode tasks in the background. *pool.WorkerPool
// satisfies it.
type Executor interface {
	Submit(ctx context.Context, task pool.Task) error
}

// Config sizes a FrameStream.
type Config struct {
	// PoolCapacity is the number of decode slots. Zero picks the format
	// default.
	PoolCapacity int `json:"pool_capacity" yaml:"pool_capacity"`
}

type options struct {
	executor Executor
	buffers  *pool.MeshBufferPool
	logger   *zap.Logger
	metrics  *metrics.Collector
	tracer   trace.Tracer
}

// Option configures a FrameStream.
type Option func(*options)

// WithExecutor shares a background executor between streams. Without it
// each stream starts a private worker pool sized to its slot count.
func WithExecutor(e Executor) Option {
	return func(o *options) {
		o.executor = e
	}
}

// WithBufferPool shares a mesh buffer pool between streams.
func WithBufferPool(p *pool.MeshBufferPool) Option {
	return func(o *options) {
		o.buffers = p
	}
}

// WithLogger sets the logger.
func WithLogger(logger *zap.Logger) Option {
	return func(o *options) {
		o.logger = logger
	}
}

// WithMetrics records stream activity on c.
func WithMetrics(c *metrics.Collector) Option {
	return func(o *options) {
		o.metrics = c
	}
}

// WithTracer overrides the tracer used for decode spans.
func WithTracer(t trace.Tracer) Option {
	return func(o *options) {
		o.tracer = t
	}
}

func buildOptions(opts []Option) options {
	var o options
	for _, opt := range opts {
		opt(&o)
	}
	if o.logger == nil {
		o.logger = zap.NewNop()
	}
	if o.buffers == nil {
		o.buffers = pool.NewMeshBufferPool()
	}
	if o.tracer == nil {
		o.tracer = otel.Tracer(instrumentationName)
	}
	return o
}
