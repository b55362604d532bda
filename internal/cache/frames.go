// Package cache provides the in-process frame cache.
// This package is internal and should not be imported by external projects.
package cache

import (
	"github.com/BaSui01/geostream/types"
)

// =============================================================================
// 💾 帧缓存
// =============================================================================

// FrameCache maps frame indices to decoded mesh data. It is not safe for
// concurrent use; the owning stream serializes access.
//
// TODO: bound growth with an eviction policy keyed on distance from the
// playback head once consumers report their position.
type FrameCache struct {
	frames map[types.FrameIndex]*types.MeshData
	bytes  int64
	hits   uint64
	misses uint64
}

// NewFrameCache creates an empty cache sized for capacityHint frames.
func NewFrameCache(capacityHint int) *FrameCache {
	return &FrameCache{
		frames: make(map[types.FrameIndex]*types.MeshData, max(capacityHint, 0)),
	}
}

// =============================================================================
// 🎯 核心方法
// =============================================================================

// Get returns the cached frame, counting a hit or a miss.
func (c *FrameCache) Get(frame types.FrameIndex) (*types.MeshData, bool) {
	m, ok := c.frames[frame]
	if ok {
		c.hits++
	} else {
		c.misses++
	}
	return m, ok
}

// Contains reports whether frame is cached without touching the counters.
func (c *FrameCache) Contains(frame types.FrameIndex) bool {
	_, ok := c.frames[frame]
	return ok
}

// Put stores data for frame, replacing any previous entry. The replaced
// entry may still be referenced by a consumer and is left to the GC.
func (c *FrameCache) Put(frame types.FrameIndex, data *types.MeshData) {
	if data == nil {
		return
	}
	if old, ok := c.frames[frame]; ok {
		c.bytes -= old.SizeBytes()
	}
	c.frames[frame] = data
	c.bytes += data.SizeBytes()
}

// Len returns the number of cached frames.
func (c *FrameCache) Len() int {
	return len(c.frames)
}

// Clear drops every entry.
func (c *FrameCache) Clear() {
	clear(c.frames)
	c.bytes = 0
}

// =============================================================================
// 📊 统计信息
// =============================================================================

// Stats 缓存统计信息
type Stats struct {
	Frames int    `json:"frames"`
	Bytes  int64  `json:"bytes"`
	Hits   uint64 `json:"hits"`
	Misses uint64 `json:"misses"`
}

// Stats returns a snapshot of the cache counters.
func (c *FrameCache) Stats() Stats {
	return Stats{
		Frames: len(c.frames),
		Bytes:  c.bytes,
		Hits:   c.hits,
		Misses: c.misses,
	}
}

// HitRate returns hits / (hits + misses).
func (s Stats) HitRate() float64 {
	total := s.Hits + s.Misses
	if total == 0 {
		return 0
	}
	return float64(s.Hits) / float64(total)
}
