package streamer

import (
	"runtime"
	"slices"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"

	"github.com/BaSui01/geostream/stream"
	"github.com/BaSui01/geostream/testutil"
	"github.com/BaSui01/geostream/testutil/fixtures"
	"github.com/BaSui01/geostream/testutil/mocks"
	"github.com/BaSui01/geostream/track"
	"github.com/BaSui01/geostream/types"
)

const frameTick = time.Second / 60

// =============================================================================
// 🧪 fakeStream
// =============================================================================

// fakeStream completes requests only when told to, so scheduling decisions
// can be asserted exactly.
type fakeStream struct {
	capacity  int
	needed    []types.FrameIndex
	inFlight  []types.FrameIndex
	done      []types.FrameIndex
	requested []types.FrameIndex
	cancels   int
}

func newFakeStream(capacity, numNeeded int) *fakeStream {
	return &fakeStream{
		capacity: capacity,
		needed:   testutil.FrameRange(0, types.FrameIndex(numNeeded)),
	}
}

func (f *fakeStream) Prefetch(start types.FrameIndex, num int) {
	for i := 0; i < num; i++ {
		f.needed = append(f.needed, start+types.FrameIndex(i))
	}
}

func (f *fakeStream) FramesNeeded() []types.FrameIndex { return f.needed }

func (f *fakeStream) FreeSlots() int { return f.capacity - len(f.inFlight) - len(f.done) }

func (f *fakeStream) RequestFrameData(frame types.FrameIndex) bool {
	if slices.Contains(f.inFlight, frame) {
		return true
	}
	if f.FreeSlots() == 0 {
		return false
	}
	f.inFlight = append(f.inFlight, frame)
	f.requested = append(f.requested, frame)
	if i := slices.Index(f.needed, frame); i >= 0 {
		f.needed = slices.Delete(f.needed, i, i+1)
	}
	return true
}

func (f *fakeStream) UpdateRequestStatus() []types.FrameIndex {
	out := f.done
	f.done = nil
	return out
}

func (f *fakeStream) FrameData(types.FrameIndex) (*types.MeshData, bool) { return nil, false }

func (f *fakeStream) CancelRequests() int {
	f.cancels++
	n := len(f.inFlight) + len(f.done)
	f.needed, f.inFlight, f.done = nil, nil, nil
	return n
}

// complete finishes every in-flight request.
func (f *fakeStream) complete() {
	f.done = append(f.done, f.inFlight...)
	f.inFlight = nil
}

func (f *fakeStream) unreaped() int { return len(f.inFlight) + len(f.done) }

var _ stream.Stream = (*fakeStream)(nil)

func newTrack(t *testing.T, name string) *track.Track {
	return fixtures.Track(t, name, track.FormatAlembic, 0, 100, mocks.NewMockDecoder().Func())
}

func panicCode(t *testing.T, fn func()) (code types.ErrorCode) {
	t.Helper()
	defer func() {
		r := recover()
		require.NotNil(t, r, "expected a panic")
		err, ok := r.(*types.Error)
		require.True(t, ok, "panic value %T is not *types.Error", r)
		code = err.Code
	}()
	fn()
	return ""
}

// =============================================================================
// 📋 注册
// =============================================================================

func TestNew_DefaultMaxReads(t *testing.T) {
	assert.Equal(t, runtime.NumCPU(), New(Config{}).MaxReads())
	assert.Equal(t, runtime.NumCPU(), New(Config{MaxReads: -3}).MaxReads())
	assert.Equal(t, 6, New(Config{MaxReads: 6}).MaxReads())
	assert.Equal(t, runtime.NumCPU(), DefaultConfig().MaxReads)
}

func TestRegisterTrack(t *testing.T) {
	s := New(Config{MaxReads: 4})
	trk := newTrack(t, "a")

	assert.False(t, s.IsTrackRegistered(trk))
	s.RegisterTrack(trk, newFakeStream(8, 0))
	assert.True(t, s.IsTrackRegistered(trk))
	assert.Equal(t, 1, s.NumTracks())

	st, ok := s.Stream(trk)
	require.True(t, ok)
	assert.NotNil(t, st)
	assert.False(t, s.IsTrackRegistered(nil))
}

func TestRegisterTrack_MisusePanics(t *testing.T) {
	s := New(Config{MaxReads: 4})
	trk := newTrack(t, "a")
	s.RegisterTrack(trk, newFakeStream(8, 0))

	assert.Equal(t, types.ErrTrackAlreadyRegistered, panicCode(t, func() {
		s.RegisterTrack(trk, newFakeStream(8, 0))
	}))
	assert.Equal(t, types.ErrNilStream, panicCode(t, func() {
		s.RegisterTrack(newTrack(t, "b"), nil)
	}))
	assert.Equal(t, types.ErrInvalidTrack, panicCode(t, func() {
		s.RegisterTrack(nil, newFakeStream(8, 0))
	}))
	assert.Equal(t, 1, s.NumTracks())
}

func TestUnregisterTrack_UnknownIsNoop(t *testing.T) {
	s := New(Config{MaxReads: 4})
	s.RegisterTrack(newTrack(t, "a"), newFakeStream(8, 0))

	assert.NotPanics(t, func() {
		s.UnregisterTrack(newTrack(t, "other"))
		s.UnregisterTrack(nil)
	})
	assert.Equal(t, 1, s.NumTracks())
}

func TestUnregisterTrack_ReleasesBudget(t *testing.T) {
	s := New(Config{MaxReads: 4})
	a, b := newTrack(t, "a"), newTrack(t, "b")
	fa, fb := newFakeStream(8, 10), newFakeStream(8, 10)
	s.RegisterTrack(a, fa)
	s.RegisterTrack(b, fb)

	s.Tick(frameTick)
	require.Equal(t, 4, s.InFlight())

	s.UnregisterTrack(a)
	assert.Equal(t, 1, fa.cancels)
	assert.Equal(t, 2, s.InFlight(), "drained requests leave the global count")

	s.Tick(frameTick)
	assert.Equal(t, 4, s.InFlight())
	assert.Equal(t, 4, fb.unreaped())
}

func TestTryGetFrameData_UnknownTrack(t *testing.T) {
	s := New(Config{MaxReads: 4})
	_, ok := s.TryGetFrameData(newTrack(t, "a"), 0)
	assert.False(t, ok)
}

// =============================================================================
// 🔄 调度
// =============================================================================

func TestTick_SplitsBudgetRoundRobin(t *testing.T) {
	s := New(Config{MaxReads: 4})
	fa, fb := newFakeStream(8, 20), newFakeStream(8, 20)
	s.RegisterTrack(newTrack(t, "a"), fa)
	s.RegisterTrack(newTrack(t, "b"), fb)

	s.Tick(frameTick)

	assert.Equal(t, 4, s.InFlight())
	testutil.AssertFramesEqual(t, []types.FrameIndex{0, 1}, fa.requested)
	testutil.AssertFramesEqual(t, []types.FrameIndex{0, 1}, fb.requested)
	assert.Len(t, fa.FramesNeeded(), 18)
	assert.Len(t, fb.FramesNeeded(), 18)

	s.Tick(frameTick)
	assert.Equal(t, 4, s.InFlight(), "budget is spent until something is reaped")
}

func TestTick_CursorPersistsAcrossTicks(t *testing.T) {
	s := New(Config{MaxReads: 2})
	fa, fb, fc := newFakeStream(8, 10), newFakeStream(8, 10), newFakeStream(8, 10)
	s.RegisterTrack(newTrack(t, "a"), fa)
	s.RegisterTrack(newTrack(t, "b"), fb)
	s.RegisterTrack(newTrack(t, "c"), fc)

	s.Tick(frameTick)
	assert.Len(t, fa.requested, 1)
	assert.Len(t, fb.requested, 1)
	assert.Empty(t, fc.requested)

	fa.complete()
	fb.complete()
	s.Tick(frameTick)

	assert.Len(t, fc.requested, 1, "the next pass resumes after the last served stream")
	assert.Len(t, fa.requested, 2)
	assert.Len(t, fb.requested, 1)
	assert.Equal(t, 2, s.InFlight())
}

func TestTick_CursorClampedWhenTracksShrink(t *testing.T) {
	s := New(Config{MaxReads: 2})
	a, b, c := newTrack(t, "a"), newTrack(t, "b"), newTrack(t, "c")
	fa := newFakeStream(8, 10)
	s.RegisterTrack(a, fa)
	s.RegisterTrack(b, newFakeStream(8, 10))
	s.RegisterTrack(c, newFakeStream(8, 10))

	s.Tick(frameTick)
	require.Equal(t, 2, s.Stats().Cursor)

	s.UnregisterTrack(b)
	s.UnregisterTrack(c)
	fa.complete()
	s.Tick(frameTick)

	assert.Equal(t, 2, s.InFlight())
	assert.Len(t, fa.requested, 3)
}

func TestTick_SkipsExhaustedStreams(t *testing.T) {
	s := New(Config{MaxReads: 6})
	small, idle, big := newFakeStream(1, 10), newFakeStream(8, 0), newFakeStream(8, 10)
	s.RegisterTrack(newTrack(t, "small"), small)
	s.RegisterTrack(newTrack(t, "idle"), idle)
	s.RegisterTrack(newTrack(t, "big"), big)

	s.Tick(frameTick)

	assert.Len(t, small.requested, 1)
	assert.Empty(t, idle.requested)
	assert.Len(t, big.requested, 5)
	assert.Equal(t, 6, s.InFlight())
}

func TestTick_StopsWhenEveryStreamExhausted(t *testing.T) {
	s := New(Config{MaxReads: 16})
	fa, fb := newFakeStream(2, 10), newFakeStream(3, 1)
	s.RegisterTrack(newTrack(t, "a"), fa)
	s.RegisterTrack(newTrack(t, "b"), fb)

	s.Tick(frameTick)

	assert.Equal(t, 3, s.InFlight())
	assert.Len(t, fa.requested, 2)
	assert.Len(t, fb.requested, 1)
}

func TestTick_NoTracks(t *testing.T) {
	s := New(Config{MaxReads: 2})
	assert.NotPanics(t, func() { s.Tick(frameTick) })
	assert.Equal(t, uint64(1), s.Stats().Ticks)
	assert.Equal(t, frameTick, s.Stats().Elapsed)
}

func TestSetMaxReads(t *testing.T) {
	s := New(Config{MaxReads: 1})
	f := newFakeStream(8, 10)
	s.RegisterTrack(newTrack(t, "a"), f)

	s.Tick(frameTick)
	assert.Equal(t, 1, s.InFlight())

	s.SetMaxReads(3)
	s.Tick(frameTick)
	assert.Equal(t, 3, s.InFlight())

	s.SetMaxReads(1)
	s.Tick(frameTick)
	assert.Equal(t, 3, s.InFlight(), "lowering the budget does not cancel work")

	s.SetMaxReads(0)
	assert.Equal(t, runtime.NumCPU(), s.MaxReads())
}

// =============================================================================
// 🎞️ 与 FrameStream 集成
// =============================================================================

func TestStreamer_WithFrameStreams(t *testing.T) {
	s := New(Config{MaxReads: 4})
	dec := mocks.NewMockDecoder()
	a := fixtures.AlembicTrack(t, 20, dec.Func())
	b := fixtures.USDTrack(t, 20, dec.Func())

	sa, err := stream.NewAlembicStream(a)
	require.NoError(t, err)
	sb, err := stream.NewUSDStream(b)
	require.NoError(t, err)
	s.RegisterTrack(a, sa)
	s.RegisterTrack(b, sb)
	defer s.Close()

	sa.Prefetch(0, 0)
	sb.Prefetch(0, 0)

	ok := testutil.WaitFor(func() bool {
		s.Tick(frameTick)
		assert.LessOrEqual(t, s.InFlight(), 4)
		return len(sa.FramesNeeded()) == 0 && len(sb.FramesNeeded()) == 0 && s.InFlight() == 0
	}, 5*time.Second)
	require.True(t, ok)

	for f := types.FrameIndex(0); f < 20; f++ {
		m, ok := s.TryGetFrameData(a, f)
		require.True(t, ok, "frame %d", f)
		assert.Equal(t, float32(f), m.Positions[0].X)
		_, ok = s.TryGetFrameData(b, f)
		assert.True(t, ok)
	}
	assert.LessOrEqual(t, dec.MaxConcurrent(), 4+2, "background decodes plus the two prefetch decodes")
}

func TestUnregisterTrack_BlocksUntilDrained(t *testing.T) {
	s := New(Config{MaxReads: 2})
	dec := mocks.NewMockDecoder()
	defer dec.Release()

	trk := fixtures.AlembicTrack(t, 10, dec.Func())
	st, err := stream.NewAlembicStream(trk)
	require.NoError(t, err)
	s.RegisterTrack(trk, st)

	st.Prefetch(0, 4)
	testutil.AssertFramesEqual(t, []types.FrameIndex{1, 2, 3}, st.FramesNeeded())

	dec.WithGate()
	require.True(t, st.RequestFrameData(4))
	s.Tick(frameTick)
	require.Equal(t, 3, st.NumInFlight())
	require.Equal(t, 2, s.InFlight())

	// 取消只会跳过尚未开始的任务，先等三个解码都真正开始
	testutil.AssertEventuallyTrue(t, func() bool { return dec.Active() == 3 }, 2*time.Second)

	done := make(chan struct{})
	go func() {
		s.UnregisterTrack(trk)
		close(done)
	}()

	select {
	case <-done:
		t.Fatal("UnregisterTrack returned with decodes still running")
	case <-time.After(50 * time.Millisecond):
	}

	dec.Release()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("UnregisterTrack did not return after the decodes finished")
	}

	assert.False(t, s.IsTrackRegistered(trk))
	assert.Equal(t, 0, s.InFlight())
	assert.Equal(t, 0, st.NumInFlight())
	assert.Equal(t, 0, st.Stats().CachedFrames)
	_, ok := s.TryGetFrameData(trk, 0)
	assert.False(t, ok)
}

func TestClose_DrainsAllStreams(t *testing.T) {
	s := New(Config{MaxReads: 8})
	dec := mocks.NewMockDecoder().WithGate()
	defer dec.Release()

	var streams []*stream.FrameStream
	for i := 0; i < 3; i++ {
		trk := fixtures.Track(t, "t"+string(rune('a'+i)), track.FormatAlembic, 0, 10, dec.Func())
		st, err := stream.NewAlembicStream(trk)
		require.NoError(t, err)
		require.True(t, st.RequestFrameData(0))
		require.True(t, st.RequestFrameData(1))
		s.RegisterTrack(trk, st)
		streams = append(streams, st)
	}

	errc := make(chan error, 1)
	go func() { errc <- s.Close() }()
	time.Sleep(20 * time.Millisecond)
	dec.Release()

	err, ok := testutil.WaitForChannel(errc, 2*time.Second)
	require.True(t, ok)
	require.NoError(t, err)

	assert.Equal(t, 0, s.NumTracks())
	for _, st := range streams {
		assert.Equal(t, 0, st.NumInFlight())
		assert.Equal(t, uint64(2), st.Stats().Cancelled)
	}
}

// =============================================================================
// 📣 进度通知
// =============================================================================

type recordingProgress struct {
	events []string
	last   int
}

func (p *recordingProgress) Begin(n int)  { p.events = append(p.events, "begin"); p.last = n }
func (p *recordingProgress) Update(n int) { p.events = append(p.events, "update"); p.last = n }
func (p *recordingProgress) End()         { p.events = append(p.events, "end") }

func TestTick_ReportsProgress(t *testing.T) {
	progress := &recordingProgress{}
	s := New(Config{MaxReads: 2}, WithProgress(progress))
	f := newFakeStream(8, 3)
	s.RegisterTrack(newTrack(t, "a"), f)

	s.Tick(frameTick)
	assert.Equal(t, []string{"begin"}, progress.events)
	assert.Equal(t, 3, progress.last, "remaining is measured before issuing")

	f.complete()
	s.Tick(frameTick)
	assert.Equal(t, []string{"begin", "update"}, progress.events)
	assert.Equal(t, 1, progress.last)

	f.complete()
	s.Tick(frameTick)
	s.Tick(frameTick)
	assert.Equal(t, []string{"begin", "update", "end"}, progress.events)
}

func TestLogProgress_Throttled(t *testing.T) {
	core, logs := observer.New(zap.InfoLevel)
	p := NewLogProgress(zap.New(core), time.Hour)

	p.Begin(10)
	p.Update(9)
	p.Update(8)
	p.End()

	require.Equal(t, 2, logs.Len())
	assert.Equal(t, "streaming frames", logs.All()[0].Message)
	assert.Equal(t, int64(10), logs.All()[0].ContextMap()["remaining"])
	assert.Equal(t, "streaming settled", logs.All()[1].Message)
}

func TestLogProgress_Unthrottled(t *testing.T) {
	core, logs := observer.New(zap.InfoLevel)
	p := NewLogProgress(zap.New(core), 0)

	p.Begin(3)
	p.Update(2)
	p.Update(1)
	p.End()

	assert.Equal(t, 4, logs.Len())
}
