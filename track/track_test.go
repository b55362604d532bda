package track

import (
	"context"
	"testing"
	"time"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/BaSui01/geostream/types"
)

func noopDecode(ctx context.Context, out *types.MeshData, src SourceHandle, frame types.FrameIndex) error {
	return nil
}

func newTestTrack(t *testing.T, start, end types.FrameIndex, fps float64) *Track {
	t.Helper()
	tr, err := New("test", FormatAlembic, start, end, fps, SourceHandle{Path: "test.abc"}, noopDecode)
	require.NoError(t, err)
	return tr
}

func TestNew_Validation(t *testing.T) {
	tests := []struct {
		name   string
		start  types.FrameIndex
		end    types.FrameIndex
		fps    float64
		decode DecodeFunc
	}{
		{name: "empty range", start: 5, end: 5, fps: 30, decode: noopDecode},
		{name: "inverted range", start: 10, end: 2, fps: 30, decode: noopDecode},
		{name: "zero fps", start: 0, end: 10, fps: 0, decode: noopDecode},
		{name: "nil decode", start: 0, end: 10, fps: 30, decode: nil},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := New("bad", FormatUSD, tt.start, tt.end, tt.fps, SourceHandle{}, tt.decode)
			require.Error(t, err)
			assert.True(t, types.IsErrorCode(err, types.ErrInvalidTrack))
		})
	}
}

func TestTrack_Bounds(t *testing.T) {
	tr := newTestTrack(t, 10, 40, 30)

	assert.NotEqual(t, tr.ID.String(), "")
	assert.Equal(t, types.FrameIndex(10), tr.StartFrameIndex())
	assert.Equal(t, types.FrameIndex(40), tr.EndFrameIndex())
	assert.Equal(t, 30, tr.NumFrames())
	assert.Equal(t, time.Second, tr.Duration())

	assert.True(t, tr.Contains(10))
	assert.True(t, tr.Contains(39))
	assert.False(t, tr.Contains(40))
	assert.False(t, tr.Contains(9))

	assert.Equal(t, types.FrameIndex(10), tr.Clamp(-5))
	assert.Equal(t, types.FrameIndex(39), tr.Clamp(100))
	assert.Equal(t, types.FrameIndex(20), tr.Clamp(20))
}

func TestTrack_DecodeUsesSource(t *testing.T) {
	var gotSrc SourceHandle
	var gotFrame types.FrameIndex
	tr, err := New("src", FormatUSD, 0, 4, 24, SourceHandle{Path: "a.usd", Object: "/root/mesh"},
		func(ctx context.Context, out *types.MeshData, src SourceHandle, frame types.FrameIndex) error {
			gotSrc, gotFrame = src, frame
			return nil
		})
	require.NoError(t, err)

	require.NoError(t, tr.Decode(context.Background(), &types.MeshData{}, 3))
	assert.Equal(t, "a.usd", gotSrc.Path)
	assert.Equal(t, types.FrameIndex(3), gotFrame)
}

func TestFindSampleIndexesFromTime(t *testing.T) {
	tr := newTestTrack(t, 0, 10, 10) // one second, ten frames

	tests := []struct {
		name      string
		seconds   float64
		looping   bool
		backwards bool
		frame     types.FrameIndex
		next      types.FrameIndex
		factor    float64
	}{
		{name: "start", seconds: 0, frame: 0, next: 1, factor: 0},
		{name: "between frames", seconds: 0.25, frame: 2, next: 3, factor: 0.5},
		{name: "clamped past end", seconds: 5, frame: 9, next: 9, factor: 0},
		{name: "clamped before start", seconds: -1, frame: 0, next: 1, factor: 0},
		{name: "looping wraps", seconds: 1.25, looping: true, frame: 2, next: 3, factor: 0.5},
		{name: "looping last frame wraps next", seconds: 0.95, looping: true, frame: 9, next: 0, factor: 0.5},
		{name: "looping negative time", seconds: -0.25, looping: true, frame: 7, next: 8, factor: 0.5},
		{name: "backwards swaps pair", seconds: 0.25, backwards: true, frame: 3, next: 2, factor: 0.5},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			frame, next, factor := tr.FindSampleIndexesFromTime(tt.seconds, tt.looping, tt.backwards)
			assert.Equal(t, tt.frame, frame)
			assert.Equal(t, tt.next, next)
			assert.InDelta(t, tt.factor, factor, 1e-9)
		})
	}
}

func TestProperty_SampleIndexesStayInTrack(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 200

	properties := gopter.NewProperties(parameters)

	properties.Property("sampled frames are always valid track frames", prop.ForAll(
		func(start int, length int, fps float64, seconds float64, looping bool, backwards bool) bool {
			tr, err := New("prop", FormatAlembic, types.FrameIndex(start), types.FrameIndex(start+length), fps, SourceHandle{}, noopDecode)
			if err != nil {
				return false
			}
			frame, next, factor := tr.FindSampleIndexesFromTime(seconds, looping, backwards)
			return tr.Contains(frame) && tr.Contains(next) && factor >= 0 && factor <= 1
		},
		gen.IntRange(-100, 100),
		gen.IntRange(1, 500),
		gen.Float64Range(1, 120),
		gen.Float64Range(-1000, 1000),
		gen.Bool(),
		gen.Bool(),
	))

	properties.TestingRun(t)
}
