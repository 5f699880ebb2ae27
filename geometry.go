package xrvideo

import (
	"math"

	"github.com/go-gl/mathgl/mgl32"
)

// VertexLayout tells how many texture coordinate sets a mesh carries.
type VertexLayout uint8

const (
	// Layout2D carries a position and a single UV set.
	Layout2D VertexLayout = iota
	// Layout3D carries a position and one UV set per eye.
	Layout3D
)

func (l VertexLayout) String() string {
	if l == Layout3D {
		return "3D"
	}
	return "2D"
}

// Vertex is a mesh vertex. On [Layout2D] meshes UV1 mirrors UV0.
type Vertex struct {
	Position mgl32.Vec3
	UV0      mgl32.Vec2
	UV1      mgl32.Vec2
}

// UV returns the texture coordinates of the given set (0 or 1).
func (v Vertex) UV(set int) mgl32.Vec2 {
	if set == 1 {
		return v.UV1
	}
	return v.UV0
}

// Mesh is the geometry generated for a playback style. Front faces wind
// counter-clockwise: quads face +z, spheres face their center.
type Mesh struct {
	Style    PlaybackStyle
	Layout   VertexLayout
	Vertices []Vertex
	Indices  []uint32
}

// Empty reports whether the mesh has nothing to draw.
func (m *Mesh) Empty() bool {
	return m == nil || len(m.Indices) == 0
}

const (
	sphereRadius    = 50.0
	sphereAngleStep = 2 // degrees
)

// BuildMesh generates the geometry for the given style. Flat styles get a
// unit quad in the z=0 plane, spherical styles an equirectangular sphere (or
// its front half) around the origin. StyleNone yields an empty mesh.
func BuildMesh(style PlaybackStyle) *Mesh {
	mesh := &Mesh{Style: style, Layout: Layout2D}
	if style.IsStereo() {
		mesh.Layout = Layout3D
	}

	switch style {
	case StyleFlat2D:
		buildQuad(mesh, func(uv mgl32.Vec2) (mgl32.Vec2, mgl32.Vec2) { return uv, uv })
	case StyleStereoSideBySide:
		buildQuad(mesh, splitSideBySide)
	case StyleStereoTopBottom:
		buildQuad(mesh, splitTopBottom)
	case StyleFlat2D360:
		buildSphere(mesh, 0, 360, func(uv mgl32.Vec2) (mgl32.Vec2, mgl32.Vec2) { return uv, uv })
	case StyleFlat2D180:
		buildSphere(mesh, 90, 270, func(uv mgl32.Vec2) (mgl32.Vec2, mgl32.Vec2) { return uv, uv })
	case StyleStereoSideBySide360:
		buildSphere(mesh, 0, 360, splitSideBySide)
	case StyleStereoTopBottom360:
		buildSphere(mesh, 0, 360, splitTopBottom)
	}
	return mesh
}

// uvSplit maps the texture coordinates of a whole frame to the per-eye sets.
type uvSplit func(uv mgl32.Vec2) (left, right mgl32.Vec2)

// left eye on the left half, right eye on the right half
func splitSideBySide(uv mgl32.Vec2) (mgl32.Vec2, mgl32.Vec2) {
	return mgl32.Vec2{uv[0] * 0.5, uv[1]}, mgl32.Vec2{0.5 + uv[0]*0.5, uv[1]}
}

// left eye on the top half, right eye on the bottom half (v grows upwards)
func splitTopBottom(uv mgl32.Vec2) (mgl32.Vec2, mgl32.Vec2) {
	return mgl32.Vec2{uv[0], 0.5 + uv[1]*0.5}, mgl32.Vec2{uv[0], uv[1] * 0.5}
}

type quadCorner struct {
	pos mgl32.Vec3
	uv  mgl32.Vec2
}

// buildQuad emits the corners in this order:
//
//	0 ------ 1
//	|        |
//	3 ------ 2
func buildQuad(mesh *Mesh, split uvSplit) {
	corners := [4]quadCorner{
		{mgl32.Vec3{-0.5, 0.5, 0}, mgl32.Vec2{0, 1}},
		{mgl32.Vec3{0.5, 0.5, 0}, mgl32.Vec2{1, 1}},
		{mgl32.Vec3{0.5, -0.5, 0}, mgl32.Vec2{1, 0}},
		{mgl32.Vec3{-0.5, -0.5, 0}, mgl32.Vec2{0, 0}},
	}
	mesh.Vertices = make([]Vertex, 0, 4)
	for _, c := range corners {
		uv0, uv1 := split(c.uv)
		mesh.Vertices = append(mesh.Vertices, Vertex{Position: c.pos, UV0: uv0, UV1: uv1})
	}
	mesh.Indices = []uint32{0, 3, 1, 1, 3, 2}
}

// buildSphere emits a latitude/longitude grid from the north pole down,
// covering horizontal angles [fromDeg, toDeg]. Horizontal angle 0 points to
// +z, 90 to +x and 180 to -z, the default view direction.
func buildSphere(mesh *Mesh, fromDeg, toDeg int, split uvSplit) {
	rows := 180/sphereAngleStep + 1
	cols := (toDeg-fromDeg)/sphereAngleStep + 1
	span := float32(toDeg - fromDeg)

	mesh.Vertices = make([]Vertex, 0, rows*cols)
	mesh.Indices = make([]uint32, 0, (rows-1)*(cols-1)*6)
	for row := 0; row < rows; row++ {
		vDeg := row * sphereAngleStep
		vRad := float64(vDeg) * math.Pi / 180
		for col := 0; col < cols; col++ {
			hDeg := fromDeg + col*sphereAngleStep
			hRad := float64(hDeg) * math.Pi / 180

			pos := mgl32.Vec3{
				float32(sphereRadius * math.Sin(vRad) * math.Sin(hRad)),
				float32(sphereRadius * math.Cos(vRad)),
				float32(sphereRadius * math.Sin(vRad) * math.Cos(hRad)),
			}
			uv := mgl32.Vec2{1 - float32(hDeg-fromDeg)/span, 1 - float32(vDeg)/180}
			uv0, uv1 := split(uv)
			mesh.Vertices = append(mesh.Vertices, Vertex{Position: pos, UV0: uv0, UV1: uv1})

			if row > 0 && col > 0 {
				c := uint32(row*cols + col)
				w := uint32(cols)
				mesh.Indices = append(mesh.Indices,
					c, c-w-1, c-w,
					c, c-1, c-w-1,
				)
			}
		}
	}
}

// uvSetFor returns the texture coordinate set to sample for the given eye.
func uvSetFor(style PlaybackStyle, eye Eye) int {
	if style.IsStereo() && eye == EyeRight {
		return 1
	}
	return 0
}
