// =============================================================================
// 📦 测试数据工厂 - 轨道测试数据
// =============================================================================
// 提供预定义的轨道，用于 stream / streamer 测试
// =============================================================================
package fixtures

import (
	"fmt"
	"testing"

	"github.com/BaSui01/geostream/track"
	"github.com/BaSui01/geostream/types"
)

// DefaultFrameRate 测试轨道默认帧率
const DefaultFrameRate = 30.0

// =============================================================================
// 🎞️ 轨道工厂
// =============================================================================

// Track 创建覆盖 [start, end) 的轨道，参数非法时测试失败
func Track(t testing.TB, name string, format track.Format, start, end types.FrameIndex, decode track.DecodeFunc) *track.Track {
	t.Helper()

	ext := ".abc"
	if format == track.FormatUSD {
		ext = ".usd"
	}
	trk, err := track.New(name, format, start, end, DefaultFrameRate,
		track.SourceHandle{Path: name + ext, Object: "/root/" + name},
		decode)
	if err != nil {
		t.Fatalf("fixtures.Track(%q): %v", name, err)
	}
	return trk
}

// AlembicTrack 创建 numFrames 帧、从 0 开始的 Alembic 轨道
func AlembicTrack(t testing.TB, numFrames int, decode track.DecodeFunc) *track.Track {
	t.Helper()
	return Track(t, fmt.Sprintf("abc_%d", numFrames), track.FormatAlembic, 0, types.FrameIndex(numFrames), decode)
}

// USDTrack 创建 numFrames 帧、从 0 开始的 USD 轨道
func USDTrack(t testing.TB, numFrames int, decode track.DecodeFunc) *track.Track {
	t.Helper()
	return Track(t, fmt.Sprintf("usd_%d", numFrames), track.FormatUSD, 0, types.FrameIndex(numFrames), decode)
}
