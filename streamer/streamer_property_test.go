package streamer

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"pgregory.net/rapid"

	"github.com/BaSui01/geostream/testutil/mocks"
	"github.com/BaSui01/geostream/track"
)

// Property: across any interleaving of ticks, completions and
// unregistrations the global in-flight count never exceeds MaxReads and
// always equals the number of requests the streams have not yet had reaped.
func TestProperty_Streamer_GlobalBudget(t *testing.T) {
	rapid.Check(t, func(rt *rapid.T) {
		maxReads := rapid.IntRange(1, 8).Draw(rt, "maxReads")
		s := New(Config{MaxReads: maxReads})

		numStreams := rapid.IntRange(1, 5).Draw(rt, "numStreams")
		tracks := make([]*track.Track, numStreams)
		fakes := make([]*fakeStream, numStreams)
		registered := make([]bool, numStreams)
		for i := range fakes {
			trk, err := track.New(fmt.Sprintf("t%d", i), track.FormatAlembic, 0, 1000, 30, track.SourceHandle{}, mocks.NewMockDecoder().Func())
			require.NoError(rt, err)
			tracks[i] = trk
			fakes[i] = newFakeStream(
				rapid.IntRange(1, 10).Draw(rt, "capacity"),
				rapid.IntRange(0, 30).Draw(rt, "needed"),
			)
			s.RegisterTrack(trk, fakes[i])
			registered[i] = true
		}

		steps := rapid.IntRange(1, 50).Draw(rt, "steps")
		for step := 0; step < steps; step++ {
			i := rapid.IntRange(0, numStreams-1).Draw(rt, "stream")
			switch rapid.IntRange(0, 4).Draw(rt, "op") {
			case 0, 1:
				s.Tick(frameTick)
			case 2:
				fakes[i].complete()
			case 3:
				if registered[i] {
					s.UnregisterTrack(tracks[i])
					registered[i] = false
				}
			case 4:
				s.SetMaxReads(rapid.IntRange(1, 8).Draw(rt, "retune"))
			}

			unreaped := 0
			for j, f := range fakes {
				if registered[j] {
					unreaped += f.unreaped()
				}
			}
			assert.Equal(rt, unreaped, s.InFlight())
		}

		// Shrinking the budget never cancels work, so only check the bound
		// once everything in flight has been reaped and reissued.
		for j, f := range fakes {
			if registered[j] {
				f.complete()
			}
		}
		s.Tick(frameTick)
		assert.LessOrEqual(rt, s.InFlight(), s.MaxReads())
	})
}
