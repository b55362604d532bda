package main

import (
	"context"
	"math"
	"time"

	"github.com/BaSui01/geostream/track"
	"github.com/BaSui01/geostream/types"
)

// proceduralDecoder stands in for an archive reader. Each frame is a
// grid x grid sheet displaced by a travelling sine wave, so consecutive
// frames share topology and differ only in positions.
type proceduralDecoder struct {
	grid    int
	latency time.Duration
}

func newProceduralDecoder(grid int, latency time.Duration) *proceduralDecoder {
	if grid < 2 {
		grid = 2
	}
	return &proceduralDecoder{grid: grid, latency: latency}
}

// Decode implements track.DecodeFunc.
func (d *proceduralDecoder) Decode(ctx context.Context, out *types.MeshData, src track.SourceHandle, frame types.FrameIndex) error {
	if d.latency > 0 {
		timer := time.NewTimer(d.latency)
		select {
		case <-timer.C:
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		}
	}

	out.Reset()
	n := d.grid
	phase := float64(frame) * 0.1
	step := 1 / float32(n-1)

	for z := 0; z < n; z++ {
		for x := 0; x < n; x++ {
			fx, fz := float32(x)*step, float32(z)*step
			y := float32(math.Sin(float64(fx+fz)*2*math.Pi+phase)) * 0.1
			p := types.Vector3{X: fx, Y: y, Z: fz}
			out.Positions = append(out.Positions, p)
			out.TextureCoordinates = append(out.TextureCoordinates, types.Vector2{X: fx, Y: fz})
			// 下一帧的位移即运动矢量
			ny := float32(math.Sin(float64(fx+fz)*2*math.Pi+phase+0.1)) * 0.1
			out.MotionVectors = append(out.MotionVectors, types.Vector3{Y: ny - y})
			out.BoundingBox.Extend(p)
		}
	}

	for z := 0; z < n-1; z++ {
		for x := 0; x < n-1; x++ {
			i := uint32(z*n + x)
			row := uint32(n)
			out.Indices = append(out.Indices, i, i+row, i+1, i+1, i+row, i+row+1)
		}
	}

	out.Batches = append(out.Batches, types.BatchInfo{
		StartIndex:   0,
		NumTriangles: uint32(len(out.Indices) / 3),
	})
	out.VertexInfo = types.VertexInfo{HasUV0: true, HasMotionVectors: true}
	return nil
}
