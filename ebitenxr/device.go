// Package ebitenxr presents [xrvideo.Player] output with Ebitengine, for
// desktop previews of the VR scene: [Device] is an [xrvideo.GPU] that
// projects the playback mesh on the CPU and draws it with
// [ebiten.Image.DrawTriangles], and [AudioBackend] plays audio through the
// Ebitengine audio context.
package ebitenxr

import (
	"errors"
	"fmt"
	"image"
	"math"

	"github.com/go-gl/mathgl/mgl32"
	"github.com/hajimehoshi/ebiten/v2"

	xrvideo "github.com/erparts/go-xrvideo"
)

// triangles closer than this to the eye plane are not drawn
const minClipW = 1e-4

// Device implements [xrvideo.GPU] on top of Ebitengine. Pixel buffers are
// imported by uploading them to a short-lived [ebiten.Image], and meshes are
// transformed with the draw call matrices before being rasterized into the
// current target.
//
// Like any xrvideo.GPU, a Device must only be used from the render thread,
// which for Ebitengine means from Game.Draw.
type Device struct {
	target  *ebiten.Image
	texture *ebiten.Image

	mesh     *xrvideo.Mesh
	vertices []ebiten.Vertex
	indices  []uint16
	visible  []bool

	// DisableCulling draws back faces too.
	DisableCulling bool

	initialized bool
	drawCalls   int
	triangles   int
}

var _ xrvideo.GPU = (*Device)(nil)

// NewDevice creates a device. A target must be set before drawing.
func NewDevice() *Device {
	return &Device{}
}

// SetTarget sets the image draw calls render into. Sub-images work as
// viewports.
func (d *Device) SetTarget(target *ebiten.Image) {
	d.target = target
}

// Init accepts an optional initial *ebiten.Image target as display.
func (d *Device) Init(display any) error {
	switch t := display.(type) {
	case nil:
	case *ebiten.Image:
		d.target = t
	default:
		return fmt.Errorf("unsupported display type %T", display)
	}
	d.initialized = true
	return nil
}

// UploadMesh keeps the mesh for later draws. Meshes must address less than
// 65536 vertices.
func (d *Device) UploadMesh(mesh *xrvideo.Mesh) error {
	if !d.initialized {
		return xrvideo.ErrNotInitialized
	}
	if mesh == nil {
		d.mesh = nil
		return nil
	}
	if len(mesh.Vertices) > math.MaxUint16+1 {
		return fmt.Errorf("mesh has %d vertices, at most %d are supported", len(mesh.Vertices), math.MaxUint16+1)
	}
	d.mesh = mesh
	d.vertices = make([]ebiten.Vertex, len(mesh.Vertices))
	d.visible = make([]bool, len(mesh.Vertices))
	d.indices = make([]uint16, 0, len(mesh.Indices))
	return nil
}

// NativeClientBuffer accepts *[xrvideo.PixelBuffer] hardware buffers only.
func (d *Device) NativeClientBuffer(hw xrvideo.HardwareBuffer) (xrvideo.ClientBuffer, error) {
	buf, ok := hw.(*xrvideo.PixelBuffer)
	if !ok || buf == nil {
		return nil, fmt.Errorf("%w: %T", xrvideo.ErrUnsupportedBuffer, hw)
	}
	if buf.Width <= 0 || buf.Height <= 0 || len(buf.Pix) != 4*buf.Width*buf.Height {
		return nil, fmt.Errorf("%w: %dx%d with %d bytes", xrvideo.ErrUnsupportedBuffer, buf.Width, buf.Height, len(buf.Pix))
	}
	return buf, nil
}

// CreateImage uploads the pixels to a new image. It must be destroyed with
// [Device.DestroyImage].
func (d *Device) CreateImage(buf xrvideo.ClientBuffer) (xrvideo.GPUImage, error) {
	pix, ok := buf.(*xrvideo.PixelBuffer)
	if !ok {
		return nil, fmt.Errorf("%w: %T", xrvideo.ErrUnsupportedBuffer, buf)
	}
	img := ebiten.NewImage(pix.Width, pix.Height)
	img.WritePixels(pix.Pix)
	return img, nil
}

func (d *Device) BindExternalTexture(img xrvideo.GPUImage) error {
	texture, ok := img.(*ebiten.Image)
	if !ok || texture == nil {
		return fmt.Errorf("can't bind %T as texture", img)
	}
	d.texture = texture
	return nil
}

func (d *Device) DestroyImage(img xrvideo.GPUImage) {
	texture, ok := img.(*ebiten.Image)
	if !ok || texture == nil {
		return
	}
	if d.texture == texture {
		d.texture = nil
	}
	texture.Deallocate()
}

// DrawMesh projects the uploaded mesh and draws the visible triangles
// textured with the bound image.
func (d *Device) DrawMesh(call xrvideo.DrawCall) error {
	switch {
	case d.target == nil:
		return errors.New("no render target set")
	case d.texture == nil:
		return errors.New("no texture bound")
	case d.mesh.Empty():
		return errors.New("no mesh uploaded")
	}

	d.project(call)
	d.indices = d.indices[:0]
	mesh := d.mesh
	for i := 0; i+2 < len(mesh.Indices); i += 3 {
		a, b, c := mesh.Indices[i], mesh.Indices[i+1], mesh.Indices[i+2]
		if !d.visible[a] || !d.visible[b] || !d.visible[c] {
			continue
		}
		if !d.DisableCulling && !frontFacing(d.vertices[a], d.vertices[b], d.vertices[c]) {
			continue
		}
		d.indices = append(d.indices, uint16(a), uint16(b), uint16(c))
	}
	d.drawCalls += 1
	if len(d.indices) == 0 {
		return nil
	}
	d.triangles += len(d.indices) / 3

	var opts ebiten.DrawTrianglesOptions
	opts.Filter = ebiten.FilterLinear
	opts.Address = ebiten.AddressClampToZero
	d.target.DrawTriangles(d.vertices, d.indices, d.texture, &opts)
	return nil
}

// Stats returns the amount of draw calls and triangles drawn so far.
func (d *Device) Stats() (drawCalls, triangles int) {
	return d.drawCalls, d.triangles
}

// project transforms every mesh vertex to target pixel coordinates.
func (d *Device) project(call xrvideo.DrawCall) {
	mvp := call.Projection.Mul4(call.View).Mul4(call.Model)
	bounds := d.target.Bounds()
	texBounds := d.texture.Bounds()
	texWidth, texHeight := float32(texBounds.Dx()), float32(texBounds.Dy())

	for i, v := range d.mesh.Vertices {
		dst, ok := clipToTarget(mvp.Mul4x1(v.Position.Vec4(1)), bounds)
		d.visible[i] = ok
		if !ok {
			continue
		}
		uv := v.UV(call.UVSet)
		d.vertices[i] = ebiten.Vertex{
			DstX:   dst.X(),
			DstY:   dst.Y(),
			SrcX:   float32(texBounds.Min.X) + uv.X()*texWidth,
			SrcY:   float32(texBounds.Min.Y) + (1-uv.Y())*texHeight,
			ColorR: 1,
			ColorG: 1,
			ColorB: 1,
			ColorA: 1,
		}
	}
}

// screen y grows downwards, so counter-clockwise triangles have a negative
// signed area
func frontFacing(a, b, c ebiten.Vertex) bool {
	area := (b.DstX-a.DstX)*(c.DstY-a.DstY) - (c.DstX-a.DstX)*(b.DstY-a.DstY)
	return area < 0
}

// ProjectPoint maps a point to target coordinates with the given
// model-view-projection matrix, reporting false when the point is behind
// the eye.
func ProjectPoint(mvp mgl32.Mat4, point mgl32.Vec3, target image.Rectangle) (mgl32.Vec2, bool) {
	return clipToTarget(mvp.Mul4x1(point.Vec4(1)), target)
}

func clipToTarget(clip mgl32.Vec4, target image.Rectangle) (mgl32.Vec2, bool) {
	if clip.W() <= minClipW {
		return mgl32.Vec2{}, false
	}
	ndc := clip.Vec3().Mul(1 / clip.W())
	return mgl32.Vec2{
		float32(target.Min.X) + (ndc.X()+1)*0.5*float32(target.Dx()),
		float32(target.Min.Y) + (1-ndc.Y())*0.5*float32(target.Dy()),
	}, true
}
