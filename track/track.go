// Package track describes one playable geometry-cache sequence: its frame
// bounds, playback rate, source archive, and the decode function that turns
// a frame index into mesh data.
package track

import (
	"context"
	"fmt"
	"math"
	"time"

	"github.com/google/uuid"

	"github.com/BaSui01/geostream/types"
)

// Format identifies the archive format a track is decoded from.
type Format int

const (
	// FormatAlembic is an Alembic (.abc) archive.
	FormatAlembic Format = iota
	// FormatUSD is a Universal Scene Description archive.
	FormatUSD
)

// String returns the short format name used in logs and metric labels.
func (f Format) String() string {
	switch f {
	case FormatAlembic:
		return "alembic"
	case FormatUSD:
		return "usd"
	default:
		return "unknown"
	}
}

// SourceHandle locates the archive backing a track. It is immutable for the
// lifetime of the track.
type SourceHandle struct {
	// Path of the archive on disk.
	Path string `json:"path" yaml:"path"`
	// Prim or object path inside the archive.
	Object string `json:"object,omitempty" yaml:"object,omitempty"`
}

// DecodeFunc decodes a single frame into out. It is called from arbitrary
// background goroutines and must not retain out after returning. ctx is
// cancelled when the owning stream stops accepting work.
type DecodeFunc func(ctx context.Context, out *types.MeshData, src SourceHandle, frame types.FrameIndex) error

// Track is the immutable description of one sequence.
type Track struct {
	ID        uuid.UUID
	Name      string
	Format    Format
	Source    SourceHandle
	FrameRate float64

	start  types.FrameIndex
	end    types.FrameIndex
	decode DecodeFunc
}

// New validates the arguments and creates a track covering [start, end).
func New(name string, format Format, start, end types.FrameIndex, frameRate float64, src SourceHandle, decode DecodeFunc) (*Track, error) {
	if end <= start {
		return nil, types.NewError(types.ErrInvalidTrack,
			fmt.Sprintf("track %q: end frame %d must be greater than start frame %d", name, end, start))
	}
	if frameRate <= 0 || math.IsNaN(frameRate) || math.IsInf(frameRate, 0) {
		return nil, types.NewError(types.ErrInvalidTrack,
			fmt.Sprintf("track %q: frame rate must be positive, got %v", name, frameRate))
	}
	if decode == nil {
		return nil, types.NewError(types.ErrInvalidTrack, fmt.Sprintf("track %q: decode function is nil", name))
	}

	return &Track{
		ID:        uuid.New(),
		Name:      name,
		Format:    format,
		Source:    src,
		FrameRate: frameRate,
		start:     start,
		end:       end,
		decode:    decode,
	}, nil
}

// StartFrameIndex is the first valid frame.
func (t *Track) StartFrameIndex() types.FrameIndex { return t.start }

// EndFrameIndex is one past the last valid frame.
func (t *Track) EndFrameIndex() types.FrameIndex { return t.end }

// NumFrames returns the number of frames in [start, end).
func (t *Track) NumFrames() int { return int(t.end - t.start) }

// Contains reports whether frame lies inside the track bounds.
func (t *Track) Contains(frame types.FrameIndex) bool {
	return frame >= t.start && frame < t.end
}

// Clamp moves frame into [start, end).
func (t *Track) Clamp(frame types.FrameIndex) types.FrameIndex {
	return min(max(frame, t.start), t.end-1)
}

// Duration is the playback length at FrameRate.
func (t *Track) Duration() time.Duration {
	return time.Duration(float64(t.NumFrames()) / t.FrameRate * float64(time.Second))
}

// Decode runs the track's decode function for frame.
func (t *Track) Decode(ctx context.Context, out *types.MeshData, frame types.FrameIndex) error {
	return t.decode(ctx, out, t.Source, frame)
}

// String implements fmt.Stringer for log fields.
func (t *Track) String() string {
	return fmt.Sprintf("%s(%s)", t.Name, t.ID)
}
