// Package stream implements per-track frame streaming: a bounded pool of
// reusable decode slots feeding a frame cache.
//
// A Stream is driven from a single owning goroutine (the one running the
// scheduler tick). Only the decode itself runs elsewhere, on a background
// executor, and it writes exclusively into the slot it was bound to.
package stream

import "github.com/BaSui01/geostream/types"

// Stream is the contract the scheduler drives. Implementations hide the
// archive format entirely behind the track's decode function.
type Stream interface {
	// Prefetch queues up to numFrames frames starting at startFrame,
	// wrapping past the end of the track. numFrames == 0 means the whole
	// track. The head of the queue is then decoded synchronously so it
	// can be displayed immediately.
	Prefetch(startFrame types.FrameIndex, numFrames int)

	// FramesNeeded returns the queue of frames awaiting a decode request,
	// oldest first. The slice aliases internal state: it must not be
	// modified and is only valid until the next call on the stream.
	FramesNeeded() []types.FrameIndex

	// FreeSlots returns how many decode slots are idle. Zero means
	// RequestFrameData will refuse new work.
	FreeSlots() int

	// RequestFrameData starts an asynchronous decode of frame. It returns
	// true if the frame is now in flight, including when it already was,
	// and false when no slot is free.
	RequestFrameData(frame types.FrameIndex) bool

	// UpdateRequestStatus reaps finished decodes into the cache, recycles
	// their slots and returns the reaped frame indices.
	UpdateRequestStatus() []types.FrameIndex

	// FrameData looks frame up in the cache. It never blocks on or starts
	// a decode.
	FrameData(frame types.FrameIndex) (*types.MeshData, bool)

	// CancelRequests stops accepting work, clears the queue, blocks until
	// every in-flight decode has finished and returns how many were
	// drained.
	CancelRequests() int
}
