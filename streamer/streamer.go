package streamer

import (
	"fmt"
	"io"
	"runtime"
	"slices"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/BaSui01/geostream/internal/metrics"
	"github.com/BaSui01/geostream/stream"
	"github.com/BaSui01/geostream/track"
	"github.com/BaSui01/geostream/types"
)

// =============================================================================
// ⚙️ 配置
// =============================================================================

// Config configures a Streamer.
type Config struct {
	// MaxReads is the global budget of concurrent decode requests. Zero or
	// less sizes it to runtime.NumCPU().
	MaxReads int `json:"max_reads" yaml:"max_reads"`
}

// DefaultConfig returns a Config sized to the machine.
func DefaultConfig() Config {
	return Config{MaxReads: runtime.NumCPU()}
}

// Option configures a Streamer.
type Option func(*Streamer)

// WithLogger sets the logger.
func WithLogger(logger *zap.Logger) Option {
	return func(s *Streamer) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// WithMetrics records scheduler activity on c.
func WithMetrics(c *metrics.Collector) Option {
	return func(s *Streamer) {
		s.metrics = c
	}
}

// WithProgress sets the progress collaborator.
func WithProgress(p ProgressNotifier) Option {
	return func(s *Streamer) {
		if p != nil {
			s.progress = p
		}
	}
}

// =============================================================================
// 🎬 Streamer
// =============================================================================

type entry struct {
	track  *track.Track
	stream stream.Stream
}

// Streamer shares a fixed budget of background decodes between every
// registered stream, one scheduling pass per Tick.
//
// Register, Unregister, Tick and TryGetFrameData are meant to be called
// from the host's tick goroutine. Stats and the count accessors may be
// called from anywhere.
type Streamer struct {
	mu       sync.Mutex
	order    []*entry
	byTrack  map[uuid.UUID]*entry
	cursor   int
	inFlight int
	maxReads int

	reporting bool
	elapsed   time.Duration
	ticks     uint64
	issued    uint64

	logger   *zap.Logger
	metrics  *metrics.Collector
	progress ProgressNotifier
}

// New creates a Streamer.
func New(cfg Config, opts ...Option) *Streamer {
	s := &Streamer{
		byTrack:  make(map[uuid.UUID]*entry),
		maxReads: normalizeMaxReads(cfg.MaxReads),
		logger:   zap.NewNop(),
		progress: nopProgress{},
	}
	for _, opt := range opts {
		opt(s)
	}
	s.logger = s.logger.With(zap.String("component", "streamer"))
	return s
}

func normalizeMaxReads(n int) int {
	if n <= 0 {
		return runtime.NumCPU()
	}
	return n
}

// =============================================================================
// 📋 注册
// =============================================================================

// RegisterTrack associates trk with st. Registering a track twice or
// registering a nil stream is a programming error and panics with a
// *types.Error.
func (s *Streamer) RegisterTrack(trk *track.Track, st stream.Stream) {
	if trk == nil {
		panic(types.NewError(types.ErrInvalidTrack, "streamer: nil track"))
	}
	if st == nil {
		panic(types.NewError(types.ErrNilStream, fmt.Sprintf("streamer: nil stream for track %s", trk)))
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.byTrack[trk.ID]; ok {
		panic(types.NewError(types.ErrTrackAlreadyRegistered, fmt.Sprintf("streamer: track %s already registered", trk)))
	}
	e := &entry{track: trk, stream: st}
	s.byTrack[trk.ID] = e
	s.order = append(s.order, e)
	s.metrics.RecordTracks(len(s.order))

	s.logger.Debug("track registered",
		zap.Stringer("track", trk),
		zap.String("format", trk.Format.String()))
}

// UnregisterTrack cancels the track's outstanding requests, blocking until
// they drain, then forgets the track and closes its stream if it is an
// io.Closer. It does nothing for an unknown track.
func (s *Streamer) UnregisterTrack(trk *track.Track) {
	if trk == nil {
		return
	}

	s.mu.Lock()
	e, ok := s.byTrack[trk.ID]
	if ok {
		delete(s.byTrack, trk.ID)
		if i := slices.Index(s.order, e); i >= 0 {
			s.order = slices.Delete(s.order, i, i+1)
		}
		s.metrics.RecordTracks(len(s.order))
	}
	s.mu.Unlock()
	if !ok {
		return
	}

	drained := s.release(e)

	s.mu.Lock()
	s.inFlight = max(s.inFlight-drained, 0)
	s.mu.Unlock()

	s.logger.Debug("track unregistered",
		zap.Stringer("track", trk),
		zap.Int("drained", drained))
}

// release drains and destroys one stream.
func (s *Streamer) release(e *entry) int {
	drained := e.stream.CancelRequests()
	if c, ok := e.stream.(io.Closer); ok {
		if err := c.Close(); err != nil {
			s.logger.Warn("stream close failed", zap.Stringer("track", e.track), zap.Error(err))
		}
	}
	return drained
}

// IsTrackRegistered reports whether trk has a stream.
func (s *Streamer) IsTrackRegistered(trk *track.Track) bool {
	if trk == nil {
		return false
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.byTrack[trk.ID]
	return ok
}

// Stream returns the stream registered for trk.
func (s *Streamer) Stream(trk *track.Track) (stream.Stream, bool) {
	if trk == nil {
		return nil, false
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.byTrack[trk.ID]
	if !ok {
		return nil, false
	}
	return e.stream, true
}

// TryGetFrameData returns the cached frame for trk. It never blocks on or
// starts a decode.
func (s *Streamer) TryGetFrameData(trk *track.Track, frame types.FrameIndex) (*types.MeshData, bool) {
	st, ok := s.Stream(trk)
	if !ok {
		return nil, false
	}
	return st.FrameData(frame)
}

// =============================================================================
// 🔄 调度
// =============================================================================

// Tick runs one scheduling pass: it reaps finished requests from every
// stream, then hands out the free part of the budget round-robin starting
// where the previous pass stopped.
func (s *Streamer) Tick(deltaTime time.Duration) {
	start := time.Now()

	s.mu.Lock()
	defer s.mu.Unlock()

	s.ticks++
	s.elapsed += deltaTime

	remaining := 0
	for _, e := range s.order {
		done := e.stream.UpdateRequestStatus()
		s.inFlight = max(s.inFlight-len(done), 0)
		remaining += len(e.stream.FramesNeeded())
	}

	s.issueLocked()
	s.reportLocked(remaining)

	s.metrics.RecordTick(time.Since(start), len(s.order), s.inFlight, s.maxReads, remaining)
}

func (s *Streamer) issueLocked() {
	n := len(s.order)
	available := s.maxReads - s.inFlight
	if n == 0 || available <= 0 {
		return
	}
	if s.cursor >= n {
		s.cursor = 0
	}

	exhausted := make([]bool, n)
	numExhausted := 0
	for available > 0 && numExhausted < n {
		i := s.cursor
		s.cursor = (s.cursor + 1) % n
		if exhausted[i] {
			continue
		}

		st := s.order[i].stream
		needed := st.FramesNeeded()
		if len(needed) == 0 || st.FreeSlots() == 0 || !st.RequestFrameData(needed[0]) {
			exhausted[i] = true
			numExhausted++
			continue
		}
		available--
		s.inFlight++
		s.issued++
	}
}

func (s *Streamer) reportLocked(remaining int) {
	switch {
	case remaining > 0 && !s.reporting:
		s.reporting = true
		s.progress.Begin(remaining)
	case remaining > 0:
		s.progress.Update(remaining)
	case s.reporting:
		s.reporting = false
		s.progress.End()
	}
}

// SetMaxReads changes the global budget from the next Tick on. Requests
// already in flight are not cancelled.
func (s *Streamer) SetMaxReads(n int) {
	n = normalizeMaxReads(n)

	s.mu.Lock()
	defer s.mu.Unlock()
	if n != s.maxReads {
		s.logger.Info("read budget changed", zap.Int("from", s.maxReads), zap.Int("to", n))
		s.maxReads = n
	}
}

// MaxReads returns the global budget.
func (s *Streamer) MaxReads() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.maxReads
}

// InFlight returns the global count of requests issued but not yet reaped.
func (s *Streamer) InFlight() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.inFlight
}

// NumTracks returns the number of registered tracks.
func (s *Streamer) NumTracks() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.order)
}

// =============================================================================
// 🛑 关闭
// =============================================================================

// Close drains every registered stream concurrently and clears the
// registry. The Streamer can be reused afterwards.
func (s *Streamer) Close() error {
	s.mu.Lock()
	entries := s.order
	s.order = nil
	s.byTrack = make(map[uuid.UUID]*entry)
	s.cursor = 0
	reporting := s.reporting
	s.reporting = false
	s.mu.Unlock()

	var g errgroup.Group
	for _, e := range entries {
		g.Go(func() error {
			e.stream.CancelRequests()
			if c, ok := e.stream.(io.Closer); ok {
				if err := c.Close(); err != nil {
					return fmt.Errorf("close stream for track %s: %w", e.track, err)
				}
			}
			return nil
		})
	}
	err := g.Wait()

	s.mu.Lock()
	s.inFlight = 0
	s.mu.Unlock()

	s.metrics.RecordTracks(0)
	if reporting {
		s.progress.End()
	}
	s.logger.Info("streamer closed", zap.Int("tracks", len(entries)))
	return err
}

// =============================================================================
// 📊 统计信息
// =============================================================================

// Stats is a snapshot of the scheduler.
type Stats struct {
	Tracks   int           `json:"tracks"`
	MaxReads int           `json:"max_reads"`
	InFlight int           `json:"in_flight"`
	Cursor   int           `json:"cursor"`
	Ticks    uint64        `json:"ticks"`
	Issued   uint64        `json:"issued"`
	Elapsed  time.Duration `json:"elapsed"`
}

// Stats returns a snapshot of the scheduler counters.
func (s *Streamer) Stats() Stats {
	s.mu.Lock()
	defer s.mu.Unlock()
	return Stats{
		Tracks:   len(s.order),
		MaxReads: s.maxReads,
		InFlight: s.inFlight,
		Cursor:   s.cursor,
		Ticks:    s.ticks,
		Issued:   s.issued,
		Elapsed:  s.elapsed,
	}
}
