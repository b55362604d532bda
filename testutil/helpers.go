// =============================================================================
// 🧪 测试辅助函数
// =============================================================================
// 提供通用的测试辅助函数和断言
//
// 使用方法:
//
//	testutil.AssertFramesEqual(t, expected, actual)
//	testutil.AssertEventuallyTrue(t, func() bool { return condition }, 5*time.Second)
// =============================================================================
package testutil

import (
	"context"
	"fmt"
	"reflect"
	"slices"
	"strings"
	"testing"
	"time"

	"github.com/BaSui01/geostream/types"
)

// =============================================================================
// 🎯 上下文辅助
// =============================================================================

// TestContext 返回带超时的测试上下文
func TestContext(t *testing.T) context.Context {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	t.Cleanup(cancel)
	return ctx
}

// TestContextWithTimeout 返回带自定义超时的测试上下文
func TestContextWithTimeout(t *testing.T, timeout time.Duration) context.Context {
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	t.Cleanup(cancel)
	return ctx
}

// CancelledContext 返回已取消的上下文
func CancelledContext() context.Context {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	return ctx
}

// =============================================================================
// 🔍 断言辅助
// =============================================================================

// AssertFramesEqual 断言两个帧序列按顺序相等，msgAndArgs 与 testify 用法一致
func AssertFramesEqual(t *testing.T, expected, actual []types.FrameIndex, msgAndArgs ...any) {
	t.Helper()

	suffix := formatMsg(msgAndArgs)
	if len(expected) != len(actual) {
		t.Errorf("frame count mismatch: expected %d (%v), got %d (%v)%s", len(expected), expected, len(actual), actual, suffix)
		return
	}
	for i := range expected {
		if expected[i] != actual[i] {
			t.Errorf("frame[%d] mismatch: expected %d, got %d%s", i, expected[i], actual[i], suffix)
		}
	}
}

func formatMsg(msgAndArgs []any) string {
	if len(msgAndArgs) == 0 {
		return ""
	}
	if format, ok := msgAndArgs[0].(string); ok {
		return ": " + fmt.Sprintf(format, msgAndArgs[1:]...)
	}
	return ": " + fmt.Sprint(msgAndArgs...)
}

// AssertFramesMatch 断言两个帧序列包含相同元素（忽略顺序）
func AssertFramesMatch(t *testing.T, expected, actual []types.FrameIndex) {
	t.Helper()

	e := slices.Clone(expected)
	a := slices.Clone(actual)
	slices.Sort(e)
	slices.Sort(a)
	if !slices.Equal(e, a) {
		t.Errorf("frame set mismatch:\nexpected: %v\nactual:   %v", e, a)
	}
}

// AssertFrameRange 断言帧序列为 [start, end) 的连续区间
func AssertFrameRange(t *testing.T, start, end types.FrameIndex, actual []types.FrameIndex) {
	t.Helper()
	AssertFramesEqual(t, FrameRange(start, end), actual)
}

// AssertEventuallyTrue 断言条件最终为真
func AssertEventuallyTrue(t *testing.T, condition func() bool, timeout time.Duration) {
	t.Helper()

	if !WaitFor(condition, timeout) {
		t.Errorf("condition did not become true within %v", timeout)
	}
}

// AssertEventuallyEqual 断言值最终相等
func AssertEventuallyEqual(t *testing.T, expected any, getter func() any, timeout time.Duration) {
	t.Helper()

	deadline := time.Now().Add(timeout)
	var lastValue any

	for time.Now().Before(deadline) {
		lastValue = getter()
		if reflect.DeepEqual(expected, lastValue) {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}

	t.Errorf("value did not become %v within %v, last value: %v", expected, timeout, lastValue)
}

// AssertContains 断言字符串包含子串
func AssertContains(t *testing.T, s, substr string) {
	t.Helper()
	if !strings.Contains(s, substr) {
		t.Errorf("expected %q to contain %q", s, substr)
	}
}

// =============================================================================
// ⏱️ 等待辅助
// =============================================================================

// WaitFor 轮询直到条件为真或超时
func WaitFor(condition func() bool, timeout time.Duration) bool {
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if condition() {
			return true
		}
		time.Sleep(5 * time.Millisecond)
	}
	return condition()
}

// WaitForChannel 等待通道值或超时
func WaitForChannel[T any](ch <-chan T, timeout time.Duration) (T, bool) {
	select {
	case v, ok := <-ch:
		return v, ok
	case <-time.After(timeout):
		var zero T
		return zero, false
	}
}

// ReturnsWithin 在 goroutine 中运行 fn，报告其是否在超时前返回
func ReturnsWithin(fn func(), timeout time.Duration) bool {
	done := make(chan struct{})
	go func() {
		defer close(done)
		fn()
	}()
	select {
	case <-done:
		return true
	case <-time.After(timeout):
		return false
	}
}

// =============================================================================
// 📦 数据工具
// =============================================================================

// FrameRange 返回 [start, end) 的帧序列
func FrameRange(start, end types.FrameIndex) []types.FrameIndex {
	out := make([]types.FrameIndex, 0, max(int(end-start), 0))
	for f := start; f < end; f++ {
		out = append(out, f)
	}
	return out
}

// Triangle 返回一个带位置、UV 和索引的最小网格，frame 写入 X 偏移便于校验
func Triangle(frame types.FrameIndex) *types.MeshData {
	x := float32(frame)
	return &types.MeshData{
		Positions: []types.Vector3{
			{X: x, Y: 0, Z: 0},
			{X: x + 1, Y: 0, Z: 0},
			{X: x, Y: 1, Z: 0},
		},
		TextureCoordinates: []types.Vector2{{X: 0, Y: 0}, {X: 1, Y: 0}, {X: 0, Y: 1}},
		Indices:            []uint32{0, 1, 2},
		Batches:            []types.BatchInfo{{StartIndex: 0, NumTriangles: 1, MaterialIndex: 0}},
		VertexInfo:         types.VertexInfo{HasUV0: true},
	}
}
