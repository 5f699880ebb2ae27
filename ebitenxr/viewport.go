package ebitenxr

import (
	"image"

	"github.com/go-gl/mathgl/mgl32"
	"github.com/hajimehoshi/ebiten/v2"

	xrvideo "github.com/erparts/go-xrvideo"
)

// near and far planes of the eye projections, the playback sphere has a
// radius of 50
const (
	nearPlane = 0.1
	farPlane  = 200
)

// EyeViewports splits the screen in two side by side sub-images, one per
// eye, each as large as possible with the given aspect ratio (width over
// height) and centered in its half. Whatever was on the background of the
// screen remains visible around them.
//
// Common usage:
//
//	left, right := ebitenxr.EyeViewports(screen, 1.0)
//	device.SetTarget(left)
//	player.RenderView(projection, leftView, xrvideo.EyeLeft)
func EyeViewports(screen *ebiten.Image, aspect float64) (left, right *ebiten.Image) {
	bounds := screen.Bounds()
	mid := bounds.Min.X + bounds.Dx()/2
	leftHalf := image.Rect(bounds.Min.X, bounds.Min.Y, mid, bounds.Max.Y)
	rightHalf := image.Rect(mid, bounds.Min.Y, bounds.Max.X, bounds.Max.Y)
	left = screen.SubImage(FitRect(leftHalf, aspect)).(*ebiten.Image)
	right = screen.SubImage(FitRect(rightHalf, aspect)).(*ebiten.Image)
	return left, right
}

// FitRect returns the largest rectangle with the given aspect ratio (width
// over height) that fits centered in viewport.
func FitRect(viewport image.Rectangle, aspect float64) image.Rectangle {
	vwWidth, vwHeight := viewport.Dx(), viewport.Dy()
	if aspect <= 0 || vwWidth <= 0 || vwHeight <= 0 {
		return viewport
	}

	width, height := vwWidth, int(float64(vwWidth)/aspect+0.5)
	if height > vwHeight {
		width, height = int(float64(vwHeight)*aspect+0.5), vwHeight
	}
	offx := (vwWidth - width) / 2
	offy := (vwHeight - height) / 2
	origin := viewport.Min.Add(image.Pt(offx, offy))
	return image.Rectangle{Min: origin, Max: origin.Add(image.Pt(width, height))}
}

// EyeProjection returns the perspective projection for the given target,
// with fovY in degrees.
func EyeProjection(target image.Rectangle, fovY float32) mgl32.Mat4 {
	aspect := float32(1)
	if target.Dy() > 0 {
		aspect = float32(target.Dx()) / float32(target.Dy())
	}
	return mgl32.Perspective(mgl32.DegToRad(fovY), aspect, nearPlane, farPlane)
}

// HeadPose is a virtual head orientation, in degrees, looking down -z when
// zero.
type HeadPose struct {
	Yaw   float32 // positive turns left
	Pitch float32 // positive looks up
	// IPD is the distance between the eyes, in scene units.
	IPD float32
}

// View returns the view matrix of the given eye.
func (h HeadPose) View(eye xrvideo.Eye) mgl32.Mat4 {
	offset := -h.IPD / 2
	if eye == xrvideo.EyeRight {
		offset = h.IPD / 2
	}
	rotation := mgl32.HomogRotate3DX(mgl32.DegToRad(-h.Pitch)).Mul4(mgl32.HomogRotate3DY(mgl32.DegToRad(-h.Yaw)))
	return mgl32.Translate3D(-offset, 0, 0).Mul4(rotation)
}

// Clamped returns the pose with the pitch limited to straight up and down.
func (h HeadPose) Clamped() HeadPose {
	h.Pitch = mgl32.Clamp(h.Pitch, -89, 89)
	for h.Yaw > 180 {
		h.Yaw -= 360
	}
	for h.Yaw < -180 {
		h.Yaw += 360
	}
	return h
}
