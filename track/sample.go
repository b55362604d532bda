package track

import (
	"math"

	"github.com/BaSui01/geostream/types"
)

// FindSampleIndexesFromTime maps a playback time in seconds to the pair of
// frames bracketing it and the interpolation factor between them.
//
// With looping the time wraps over the track duration, otherwise it is
// clamped to the track. When playing backwards the logical order of the
// pair is reversed, so frame is the later frame and next the earlier one.
func (t *Track) FindSampleIndexesFromTime(seconds float64, looping, backwards bool) (frame, next types.FrameIndex, factor float64) {
	n := t.NumFrames()
	duration := float64(n) / t.FrameRate

	local := seconds
	switch {
	case math.IsNaN(local):
		local = 0
	case looping:
		local = math.Mod(local, duration)
		if local < 0 {
			local += duration
		}
	default:
		local = min(max(local, 0), duration)
	}

	pos := local * t.FrameRate
	i := int(math.Floor(pos))
	factor = pos - float64(i)
	if i >= n {
		i = n - 1
		factor = 0
	}

	frame = t.start + types.FrameIndex(i)
	next = frame + 1
	if next >= t.end {
		if looping {
			next = t.start
		} else {
			next = frame
			factor = 0
		}
	}

	if backwards {
		frame, next = next, frame
		factor = 1 - factor
	}
	return frame, next, factor
}

// FrameAtTime returns the frame displayed at the given time, without
// interpolation.
func (t *Track) FrameAtTime(seconds float64, looping bool) types.FrameIndex {
	frame, _, _ := t.FindSampleIndexesFromTime(seconds, looping, false)
	return frame
}
