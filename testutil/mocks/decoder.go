// MockDecoder 的帧解码器测试模拟实现。
//
// 支持固定延迟、闸门阻塞、按帧注入错误与 panic。
package mocks

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"sync"
	"time"

	"github.com/BaSui01/geostream/track"
	"github.com/BaSui01/geostream/types"
)

// ErrMockDecode 是注入失败时返回的错误
var ErrMockDecode = errors.New("mock decode failure")

// MockDecoder 是 track.DecodeFunc 的模拟实现
type MockDecoder struct {
	mu sync.Mutex

	// 行为控制
	latency     time.Duration
	gate        chan struct{}
	released    bool
	cooperative bool
	failFrames  map[types.FrameIndex]bool
	panicFrames map[types.FrameIndex]bool

	// 调用记录
	calls     []types.FrameIndex
	active    int
	maxActive int
	finished  int
}

// NewMockDecoder 创建新的 MockDecoder
func NewMockDecoder() *MockDecoder {
	return &MockDecoder{
		failFrames:  make(map[types.FrameIndex]bool),
		panicFrames: make(map[types.FrameIndex]bool),
	}
}

// --- Builder 方法 ---

// WithLatency 设置每次解码的耗时
func (d *MockDecoder) WithLatency(latency time.Duration) *MockDecoder {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.latency = latency
	return d
}

// WithGate 让解码阻塞直到 Release 被调用
func (d *MockDecoder) WithGate() *MockDecoder {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.gate = make(chan struct{})
	d.released = false
	return d
}

// WithCooperativeCancel 让阻塞中的解码在 ctx 取消时提前返回
func (d *MockDecoder) WithCooperativeCancel() *MockDecoder {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.cooperative = true
	return d
}

// WithFailure 让指定帧的解码返回 ErrMockDecode
func (d *MockDecoder) WithFailure(frames ...types.FrameIndex) *MockDecoder {
	d.mu.Lock()
	defer d.mu.Unlock()
	for _, f := range frames {
		d.failFrames[f] = true
	}
	return d
}

// WithPanic 让指定帧的解码 panic
func (d *MockDecoder) WithPanic(frames ...types.FrameIndex) *MockDecoder {
	d.mu.Lock()
	defer d.mu.Unlock()
	for _, f := range frames {
		d.panicFrames[f] = true
	}
	return d
}

// Release 打开闸门，放行所有阻塞及后续的解码
func (d *MockDecoder) Release() {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.gate != nil && !d.released {
		close(d.gate)
		d.released = true
	}
}

// --- 解码实现 ---

// Func 返回可传给 track.New 的解码函数
func (d *MockDecoder) Func() track.DecodeFunc {
	return d.Decode
}

// Decode 实现 track.DecodeFunc。成功时写入一个以帧号偏移的三角形。
func (d *MockDecoder) Decode(ctx context.Context, out *types.MeshData, src track.SourceHandle, frame types.FrameIndex) error {
	d.mu.Lock()
	d.calls = append(d.calls, frame)
	d.active++
	d.maxActive = max(d.maxActive, d.active)
	latency := d.latency
	gate := d.gate
	cooperative := d.cooperative
	fail := d.failFrames[frame]
	shouldPanic := d.panicFrames[frame]
	d.mu.Unlock()

	defer func() {
		d.mu.Lock()
		d.active--
		d.finished++
		d.mu.Unlock()
	}()

	if gate != nil {
		if cooperative {
			select {
			case <-gate:
			case <-ctx.Done():
				return ctx.Err()
			}
		} else {
			<-gate
		}
	}
	if latency > 0 {
		time.Sleep(latency)
	}

	if shouldPanic {
		panic(fmt.Sprintf("mock decoder panic on frame %d", frame))
	}
	if fail {
		return fmt.Errorf("frame %d: %w", frame, ErrMockDecode)
	}

	x := float32(frame)
	out.Positions = append(out.Positions,
		types.Vector3{X: x, Y: 0, Z: 0},
		types.Vector3{X: x + 1, Y: 0, Z: 0},
		types.Vector3{X: x, Y: 1, Z: 0},
	)
	out.Indices = append(out.Indices, 0, 1, 2)
	out.Batches = append(out.Batches, types.BatchInfo{NumTriangles: 1})
	for _, p := range out.Positions {
		out.BoundingBox.Extend(p)
	}
	return nil
}

// --- 调用记录 ---

// Calls 返回按开始顺序记录的解码帧
func (d *MockDecoder) Calls() []types.FrameIndex {
	d.mu.Lock()
	defer d.mu.Unlock()
	return slices.Clone(d.calls)
}

// CallCount 返回解码调用次数
func (d *MockDecoder) CallCount() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.calls)
}

// Active 返回正在执行的解码数
func (d *MockDecoder) Active() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.active
}

// MaxConcurrent 返回观察到的最大并发解码数
func (d *MockDecoder) MaxConcurrent() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.maxActive
}

// Finished 返回已返回（含失败）的解码数
func (d *MockDecoder) Finished() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.finished
}

// Reset 清空调用记录
func (d *MockDecoder) Reset() {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.calls = nil
	d.maxActive = d.active
	d.finished = 0
}
