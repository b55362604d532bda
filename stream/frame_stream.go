package stream

import (
	"context"
	"fmt"
	"slices"
	"sync"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/BaSui01/geostream/internal/cache"
	"github.com/BaSui01/geostream/internal/metrics"
	"github.com/BaSui01/geostream/internal/pool"
	"github.com/BaSui01/geostream/track"
	"github.com/BaSui01/geostream/types"
)

// =============================================================================
// 🎞️ FrameStream
// =============================================================================

// FrameStream streams the frames of one track through a fixed pool of
// decode slots. The archive format only decides the default pool size and
// the metric label; decoding goes through the track's DecodeFunc.
type FrameStream struct {
	track  *track.Track
	format string

	logger  *zap.Logger
	metrics *metrics.Collector
	tracer  trace.Tracer

	executor     Executor
	ownsExecutor bool
	buffers      *pool.MeshBufferPool

	ctx    context.Context
	cancel context.CancelFunc
	tasks  sync.WaitGroup

	mu        sync.Mutex
	slots     arena
	inFlight  []slotHandle
	needed    []types.FrameIndex
	cache     *cache.FrameCache
	cancelled bool

	completed uint64
	failed    uint64
	dropped   uint64
	rejected  uint64
}

var _ Stream = (*FrameStream)(nil)

// New creates a stream for trk. A zero cfg.PoolCapacity picks the format
// default from CapacityFor.
func New(trk *track.Track, cfg Config, opts ...Option) (*FrameStream, error) {
	if trk == nil {
		return nil, types.NewError(types.ErrInvalidTrack, "track is nil")
	}
	if cfg.PoolCapacity < 0 {
		return nil, types.NewError(types.ErrInvalidConfig,
			fmt.Sprintf("pool capacity must not be negative, got %d", cfg.PoolCapacity))
	}
	capacity := cfg.PoolCapacity
	if capacity == 0 {
		capacity = CapacityFor(trk.Format)
	}

	o := buildOptions(opts)
	ctx, cancel := context.WithCancel(context.Background())

	s := &FrameStream{
		track:    trk,
		format:   trk.Format.String(),
		logger:   o.logger.With(zap.String("component", "stream"), zap.Stringer("track", trk)),
		metrics:  o.metrics,
		tracer:   o.tracer,
		executor: o.executor,
		buffers:  o.buffers,
		ctx:      ctx,
		cancel:   cancel,
		slots:    newArena(capacity),
		inFlight: make([]slotHandle, 0, capacity),
		cache:    cache.NewFrameCache(trk.NumFrames()),
	}
	if s.executor == nil {
		s.executor = pool.NewWorkerPool(pool.WorkerPoolConfig{
			Workers:   capacity,
			QueueSize: capacity,
		})
		s.ownsExecutor = true
	}

	s.logger.Debug("stream created",
		zap.String("format", s.format),
		zap.Int("pool_capacity", capacity),
		zap.Int("frames", trk.NumFrames()))
	return s, nil
}

// NewAlembicStream creates a stream with the Alembic slot pool size.
func NewAlembicStream(trk *track.Track, opts ...Option) (*FrameStream, error) {
	return New(trk, Config{PoolCapacity: AlembicPoolCapacity}, opts...)
}

// NewUSDStream creates a stream with the USD slot pool size.
func NewUSDStream(trk *track.Track, opts ...Option) (*FrameStream, error) {
	return New(trk, Config{PoolCapacity: USDPoolCapacity}, opts...)
}

// Track returns the track this stream decodes.
func (s *FrameStream) Track() *track.Track {
	return s.track
}

// Capacity returns the number of decode slots.
func (s *FrameStream) Capacity() int {
	return s.slots.capacity()
}

// =============================================================================
// 📥 请求派发
// =============================================================================

// RequestFrameData starts a background decode of frame. It returns false
// when no slot is free, when the executor refuses the task, when frame is
// outside the track or after CancelRequests.
func (s *FrameStream) RequestFrameData(frame types.FrameIndex) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.cancelled || !s.track.Contains(frame) {
		return false
	}
	if s.inFlightLocked(frame) {
		return true
	}

	buf := s.buffers.Get()
	h, sl, ok := s.slots.acquire(frame, buf)
	if !ok {
		s.buffers.Put(buf)
		s.rejected++
		s.metrics.RecordRequestRejected(s.format)
		return false
	}

	s.tasks.Add(1)
	if err := s.executor.Submit(s.ctx, s.decodeTask(sl, frame, buf)); err != nil {
		s.tasks.Done()
		s.slots.release(h)
		s.buffers.Put(buf)
		s.rejected++
		s.metrics.RecordRequestRejected(s.format)
		s.logger.Debug("decode submission refused",
			zap.Int("frame", int(frame)),
			zap.Error(err))
		return false
	}

	if i := slices.Index(s.needed, frame); i >= 0 {
		s.needed = slices.Delete(s.needed, i, i+1)
	}
	s.inFlight = append(s.inFlight, h)
	s.metrics.RecordRequestIssued(s.format)
	return true
}

func (s *FrameStream) inFlightLocked(frame types.FrameIndex) bool {
	for _, h := range s.inFlight {
		if sl := s.slots.get(h); sl != nil && sl.frame == frame {
			return true
		}
	}
	return false
}

// decodeTask binds the background work to one slot. The task touches
// nothing but that slot until it publishes a terminal state.
func (s *FrameStream) decodeTask(sl *slot, frame types.FrameIndex, buf *types.MeshData) pool.Task {
	return func(ctx context.Context) (err error) {
		defer s.tasks.Done()
		defer func() {
			if r := recover(); r != nil {
				err = types.NewError(types.ErrDecodeFailed, fmt.Sprintf("decode of frame %d panicked: %v", frame, r))
			}
			sl.err = err
			if err != nil {
				sl.store(slotFailed)
			} else {
				sl.store(slotCompleted)
			}
		}()

		if ctx.Err() != nil {
			sl.skipped = true
			return nil
		}
		return s.decode(ctx, buf, frame)
	}
}

func (s *FrameStream) decode(ctx context.Context, buf *types.MeshData, frame types.FrameIndex) error {
	ctx, span := s.tracer.Start(ctx, "geostream.decode", trace.WithAttributes(
		attribute.Int("geostream.frame", int(frame)),
		attribute.String("geostream.track", s.track.Name),
		attribute.String("geostream.format", s.format),
	))
	defer span.End()

	start := time.Now()
	err := s.track.Decode(ctx, buf, frame)
	s.metrics.RecordDecode(s.format, time.Since(start))

	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		code := types.ErrDecodeFailed
		if ctx.Err() != nil {
			code = types.ErrStreamCancelled
		}
		return types.NewError(code, fmt.Sprintf("decode frame %d", frame)).WithCause(err)
	}
	return nil
}

// =============================================================================
// 🔄 回收
// =============================================================================

// UpdateRequestStatus reaps every finished decode. Successful frames move
// into the cache; failed and cancelled ones recycle their buffer. All of
// them free their slot and are reported.
func (s *FrameStream) UpdateRequestStatus() []types.FrameIndex {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.reapLocked(nil)
}

func (s *FrameStream) reapLocked(out []types.FrameIndex) []types.FrameIndex {
	kept := s.inFlight[:0]
	for _, h := range s.inFlight {
		sl := s.slots.get(h)
		if sl == nil {
			continue
		}
		state := sl.load()
		if state == slotInFlight {
			kept = append(kept, h)
			continue
		}

		frame := sl.frame
		switch {
		case s.cancelled || sl.skipped:
			s.buffers.Put(sl.buf)
			s.dropped++
			s.metrics.RecordFrameCompleted(s.format, metrics.StatusCancelled)
		case state == slotFailed:
			s.buffers.Put(sl.buf)
			s.failed++
			s.metrics.RecordFrameCompleted(s.format, metrics.StatusFailed)
			s.logger.Warn("frame decode failed",
				zap.Int("frame", int(frame)),
				zap.Error(sl.err))
		default:
			s.cache.Put(frame, sl.buf)
			s.completed++
			s.metrics.RecordFrameCompleted(s.format, metrics.StatusDecoded)
		}

		s.slots.release(h)
		out = append(out, frame)
	}
	clear(s.inFlight[len(kept):])
	s.inFlight = kept
	return out
}

// =============================================================================
// 🔍 查询
// =============================================================================

// FrameData returns the cached frame. The returned mesh is shared and must
// not be modified.
func (s *FrameStream) FrameData(frame types.FrameIndex) (*types.MeshData, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	m, ok := s.cache.Get(frame)
	if ok {
		s.metrics.RecordCacheHit(s.format)
	} else {
		s.metrics.RecordCacheMiss(s.format)
	}
	return m, ok
}

// FramesNeeded returns the pending queue, oldest first.
func (s *FrameStream) FramesNeeded() []types.FrameIndex {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.needed
}

// FreeSlots returns the number of idle decode slots.
func (s *FrameStream) FreeSlots() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.slots.available()
}

// NumInFlight returns the number of decodes not yet reaped.
func (s *FrameStream) NumInFlight() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.inFlight)
}

// =============================================================================
// ⏩ 预取
// =============================================================================

// Prefetch queues numFrames frames from startFrame, wrapping to the start
// of the track. numFrames == 0 queues the whole track; a negative count is
// raised to one and an oversized one cut to the track length. Frames
// already cached, in flight or queued are skipped. If the queue is then
// non-empty its head is decoded synchronously into the cache and dropped
// from the queue.
func (s *FrameStream) Prefetch(startFrame types.FrameIndex, numFrames int) {
	total := s.track.NumFrames()
	switch {
	case numFrames == 0 || numFrames > total:
		numFrames = total
	case numFrames < 0:
		numFrames = 1
	}
	startFrame = s.track.Clamp(startFrame)

	s.mu.Lock()
	if s.cancelled {
		s.mu.Unlock()
		return
	}

	frame := startFrame
	for i := 0; i < numFrames; i++ {
		if !s.cache.Contains(frame) && !s.inFlightLocked(frame) && !slices.Contains(s.needed, frame) {
			s.needed = append(s.needed, frame)
		}
		frame++
		if frame >= s.track.EndFrameIndex() {
			frame = s.track.StartFrameIndex()
		}
	}

	var head types.FrameIndex
	decodeHead := len(s.needed) > 0 && !s.cache.Contains(s.needed[0])
	if decodeHead {
		head = s.needed[0]
	}
	s.mu.Unlock()

	if decodeHead {
		s.decodeNow(head)
	}
}

// decodeNow decodes frame on the calling goroutine. The frame leaves the
// queue whether or not the decode succeeds.
func (s *FrameStream) decodeNow(frame types.FrameIndex) {
	buf := s.buffers.Get()
	err := s.decode(s.ctx, buf, frame)

	s.mu.Lock()
	defer s.mu.Unlock()

	if i := slices.Index(s.needed, frame); i >= 0 {
		s.needed = slices.Delete(s.needed, i, i+1)
	}
	s.metrics.RecordPrefetchDecode(s.format)

	if err != nil || s.cancelled {
		s.buffers.Put(buf)
		if err != nil {
			s.failed++
			s.logger.Warn("prefetch decode failed",
				zap.Int("frame", int(frame)),
				zap.Error(err))
		}
		return
	}
	s.cache.Put(frame, buf)
	s.completed++
}

// =============================================================================
// 🛑 取消与关闭
// =============================================================================

// CancelRequests stops the stream accepting work, clears the queue, waits
// for every outstanding decode and reaps it. It returns the number of
// requests drained. The stream stays cancelled afterwards; cached frames
// remain readable.
func (s *FrameStream) CancelRequests() int {
	s.mu.Lock()
	s.cancelled = true
	s.cancel()
	s.needed = s.needed[:0]
	pending := len(s.inFlight)
	s.mu.Unlock()

	s.tasks.Wait()

	s.mu.Lock()
	drained := len(s.reapLocked(nil))
	s.mu.Unlock()

	s.metrics.RecordCancelDrained(s.format, drained)
	if pending > 0 {
		s.logger.Info("stream requests cancelled", zap.Int("drained", drained))
	}
	return drained
}

// Close cancels outstanding work, drops the cache and stops a private
// executor. It is safe to call more than once.
func (s *FrameStream) Close() error {
	s.CancelRequests()

	s.mu.Lock()
	s.cache.Clear()
	s.mu.Unlock()

	if s.ownsExecutor {
		if p, ok := s.executor.(*pool.WorkerPool); ok {
			p.Close()
		}
	}
	return nil
}

// =============================================================================
// 📊 统计信息
// =============================================================================

// Stats is a point-in-time snapshot of a stream.
type Stats struct {
	Format       string `json:"format"`
	Capacity     int    `json:"capacity"`
	InFlight     int    `json:"in_flight"`
	Needed       int    `json:"needed"`
	CachedFrames int    `json:"cached_frames"`
	CacheBytes   int64  `json:"cache_bytes"`
	Completed    uint64 `json:"completed"`
	Failed       uint64 `json:"failed"`
	Cancelled    uint64 `json:"cancelled"`
	Rejected     uint64 `json:"rejected"`
	Hits         uint64 `json:"hits"`
	Misses       uint64 `json:"misses"`
}

// Stats returns a snapshot of the stream counters. Unlike the Stream
// methods it may be called from any goroutine.
func (s *FrameStream) Stats() Stats {
	s.mu.Lock()
	defer s.mu.Unlock()

	cs := s.cache.Stats()
	return Stats{
		Format:       s.format,
		Capacity:     s.slots.capacity(),
		InFlight:     len(s.inFlight),
		Needed:       len(s.needed),
		CachedFrames: cs.Frames,
		CacheBytes:   cs.Bytes,
		Completed:    s.completed,
		Failed:       s.failed,
		Cancelled:    s.dropped,
		Rejected:     s.rejected,
		Hits:         cs.Hits,
		Misses:       cs.Misses,
	}
}
