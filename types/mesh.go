package types

import "slices"

// FrameIndex identifies one decoded mesh snapshot within a track.
type FrameIndex int

// Vector3 is a single-precision position or motion vector.
type Vector3 struct {
	X, Y, Z float32
}

// Vector2 is a texture coordinate.
type Vector2 struct {
	X, Y float32
}

// PackedNormal stores a tangent-basis vector quantised to four signed bytes.
type PackedNormal [4]int8

// Color is an 8-bit RGBA vertex color.
type Color struct {
	R, G, B, A uint8
}

// Box is an axis-aligned bounding box.
type Box struct {
	Min, Max Vector3
	Valid    bool
}

// Extend grows the box to contain p.
func (b *Box) Extend(p Vector3) {
	if !b.Valid {
		b.Min, b.Max, b.Valid = p, p, true
		return
	}
	b.Min = Vector3{min(b.Min.X, p.X), min(b.Min.Y, p.Y), min(b.Min.Z, p.Z)}
	b.Max = Vector3{max(b.Max.X, p.X), max(b.Max.Y, p.Y), max(b.Max.Z, p.Z)}
}

// BatchInfo describes one material section of the index buffer.
type BatchInfo struct {
	StartIndex    uint32 `json:"start_index"`
	NumTriangles  uint32 `json:"num_triangles"`
	MaterialIndex uint32 `json:"material_index"`
}

// VertexInfo flags which optional vertex streams a frame carries.
type VertexInfo struct {
	HasTangentX              bool `json:"has_tangent_x"`
	HasTangentZ              bool `json:"has_tangent_z"`
	HasUV0                   bool `json:"has_uv0"`
	HasColor0                bool `json:"has_color0"`
	HasMotionVectors         bool `json:"has_motion_vectors"`
	HasImportedVertexNumbers bool `json:"has_imported_vertex_numbers"`
}

// MeshData is one decoded frame of geometry.
//
// A MeshData handed out by a frame cache is shared with the renderer and
// must be treated as read-only.
type MeshData struct {
	Positions             []Vector3
	TangentsX             []PackedNormal
	TangentsZ             []PackedNormal
	TextureCoordinates    []Vector2
	Colors                []Color
	MotionVectors         []Vector3
	ImportedVertexNumbers []uint32
	Indices               []uint32
	Batches               []BatchInfo
	BoundingBox           Box
	VertexInfo            VertexInfo
}

// NumVertices returns the number of vertices in the frame.
func (m *MeshData) NumVertices() int {
	return len(m.Positions)
}

// Reset truncates every stream to zero length, keeping capacity for reuse.
func (m *MeshData) Reset() {
	m.Positions = m.Positions[:0]
	m.TangentsX = m.TangentsX[:0]
	m.TangentsZ = m.TangentsZ[:0]
	m.TextureCoordinates = m.TextureCoordinates[:0]
	m.Colors = m.Colors[:0]
	m.MotionVectors = m.MotionVectors[:0]
	m.ImportedVertexNumbers = m.ImportedVertexNumbers[:0]
	m.Indices = m.Indices[:0]
	m.Batches = m.Batches[:0]
	m.BoundingBox = Box{}
	m.VertexInfo = VertexInfo{}
}

// Clone returns a deep copy.
func (m *MeshData) Clone() *MeshData {
	return &MeshData{
		Positions:             slices.Clone(m.Positions),
		TangentsX:             slices.Clone(m.TangentsX),
		TangentsZ:             slices.Clone(m.TangentsZ),
		TextureCoordinates:    slices.Clone(m.TextureCoordinates),
		Colors:                slices.Clone(m.Colors),
		MotionVectors:         slices.Clone(m.MotionVectors),
		ImportedVertexNumbers: slices.Clone(m.ImportedVertexNumbers),
		Indices:               slices.Clone(m.Indices),
		Batches:               slices.Clone(m.Batches),
		BoundingBox:           m.BoundingBox,
		VertexInfo:            m.VertexInfo,
	}
}

// SizeBytes approximates the heap footprint of the vertex and index streams.
func (m *MeshData) SizeBytes() int64 {
	return int64(len(m.Positions))*12 +
		int64(len(m.TangentsX))*4 +
		int64(len(m.TangentsZ))*4 +
		int64(len(m.TextureCoordinates))*8 +
		int64(len(m.Colors))*4 +
		int64(len(m.MotionVectors))*12 +
		int64(len(m.ImportedVertexNumbers))*4 +
		int64(len(m.Indices))*4 +
		int64(len(m.Batches))*12
}

// IsTopologyCompatible reports whether two frames share vertex count and
// index buffer, which is the precondition for interpolating between them.
func (m *MeshData) IsTopologyCompatible(other *MeshData) bool {
	if m == nil || other == nil {
		return false
	}
	if len(m.Positions) != len(other.Positions) {
		return false
	}
	return slices.Equal(m.Indices, other.Indices)
}
