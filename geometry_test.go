package xrvideo

import (
	"testing"

	"github.com/go-gl/mathgl/mgl32"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBuildMesh_Quad(t *testing.T) {
	mesh := BuildMesh(StyleFlat2D)
	require.Len(t, mesh.Vertices, 4)
	assert.Equal(t, []uint32{0, 3, 1, 1, 3, 2}, mesh.Indices)
	assert.Equal(t, Layout2D, mesh.Layout)

	// both triangles face +z
	for i := 0; i < len(mesh.Indices); i += 3 {
		n := triangleNormal(mesh, i)
		assert.Greater(t, n.Z(), float32(0), "triangle %d", i/3)
	}
	for _, v := range mesh.Vertices {
		assert.Equal(t, v.UV0, v.UV1)
	}
}

func TestBuildMesh_SphereCounts(t *testing.T) {
	full := BuildMesh(StyleFlat2D360)
	assert.Len(t, full.Vertices, 91*181)
	assert.Len(t, full.Indices, 90*180*6)

	half := BuildMesh(StyleFlat2D180)
	assert.Len(t, half.Vertices, 91*91)
	assert.Len(t, half.Indices, 90*90*6)

	for _, mesh := range []*Mesh{full, half} {
		for _, index := range mesh.Indices {
			require.Less(t, int(index), len(mesh.Vertices))
		}
	}
}

func TestBuildMesh_SphereFacesInward(t *testing.T) {
	for _, style := range []PlaybackStyle{StyleFlat2D360, StyleFlat2D180, StyleStereoSideBySide360} {
		mesh := BuildMesh(style)
		checked := 0
		for i := 0; i < len(mesh.Indices); i += 3 {
			n := triangleNormal(mesh, i)
			if n.Len() < 1e-3 {
				// collapsed at the poles
				continue
			}
			a := mesh.Vertices[mesh.Indices[i]].Position
			b := mesh.Vertices[mesh.Indices[i+1]].Position
			c := mesh.Vertices[mesh.Indices[i+2]].Position
			centroid := a.Add(b).Add(c).Mul(1.0 / 3)
			require.Less(t, n.Dot(centroid), float32(0), "%s triangle %d faces outwards", style, i/3)
			checked++
		}
		assert.Greater(t, checked, len(mesh.Indices)/3/2, style.String())
	}
}

func TestBuildMesh_SphereRadius(t *testing.T) {
	mesh := BuildMesh(StyleFlat2D360)
	for _, v := range mesh.Vertices {
		assert.InDelta(t, sphereRadius, v.Position.Len(), 1e-3)
	}
}

func TestBuildMesh_HemisphereFacesDefaultView(t *testing.T) {
	mesh := BuildMesh(StyleFlat2D180)
	for _, v := range mesh.Vertices {
		require.LessOrEqual(t, v.Position.Z(), float32(1e-3))
	}
	// the center of the image lies straight ahead
	center := mesh.Vertices[45*91+45]
	assert.InDelta(t, -sphereRadius, center.Position.Z(), 1e-3)
	assert.InDelta(t, 0.5, center.UV0.X(), 1e-6)
	assert.InDelta(t, 0.5, center.UV0.Y(), 1e-6)
}

func TestBuildMesh_StereoSplits(t *testing.T) {
	t.Run("side by side", func(t *testing.T) {
		for _, style := range []PlaybackStyle{StyleStereoSideBySide, StyleStereoSideBySide360} {
			mesh := BuildMesh(style)
			assert.Equal(t, Layout3D, mesh.Layout)
			for _, v := range mesh.Vertices {
				assert.True(t, v.UV0.X() >= 0 && v.UV0.X() <= 0.5, "left u %v", v.UV0)
				assert.True(t, v.UV1.X() >= 0.5 && v.UV1.X() <= 1, "right u %v", v.UV1)
				assert.Equal(t, v.UV0.Y(), v.UV1.Y())
			}
		}
	})
	t.Run("top bottom", func(t *testing.T) {
		for _, style := range []PlaybackStyle{StyleStereoTopBottom, StyleStereoTopBottom360} {
			mesh := BuildMesh(style)
			assert.Equal(t, Layout3D, mesh.Layout)
			for _, v := range mesh.Vertices {
				assert.True(t, v.UV0.Y() >= 0.5 && v.UV0.Y() <= 1, "left v %v", v.UV0)
				assert.True(t, v.UV1.Y() >= 0 && v.UV1.Y() <= 0.5, "right v %v", v.UV1)
				assert.Equal(t, v.UV0.X(), v.UV1.X())
			}
		}
	})
}

func TestBuildMesh_None(t *testing.T) {
	mesh := BuildMesh(StyleNone)
	assert.True(t, mesh.Empty())
	assert.Empty(t, mesh.Vertices)

	var missing *Mesh
	assert.True(t, missing.Empty())
}

func TestVertex_UV(t *testing.T) {
	v := Vertex{UV0: mgl32.Vec2{0.1, 0.2}, UV1: mgl32.Vec2{0.3, 0.4}}
	assert.Equal(t, v.UV0, v.UV(0))
	assert.Equal(t, v.UV1, v.UV(1))
}

func TestUVSetFor(t *testing.T) {
	for style := StyleNone; style <= StyleStereoTopBottom360; style++ {
		assert.Equal(t, 0, uvSetFor(style, EyeLeft), style.String())
		want := 0
		if style.IsStereo() {
			want = 1
		}
		assert.Equal(t, want, uvSetFor(style, EyeRight), style.String())
	}
}

func triangleNormal(mesh *Mesh, i int) mgl32.Vec3 {
	a := mesh.Vertices[mesh.Indices[i]].Position
	b := mesh.Vertices[mesh.Indices[i+1]].Position
	c := mesh.Vertices[mesh.Indices[i+2]].Position
	return b.Sub(a).Cross(c.Sub(a))
}
