package xrvideo

// presentationBridge imports the hardware image of a video frame as an
// external texture for exactly one draw call. The imported image lives from
// import to the end of the draw and is never cached: the platform recycles
// the underlying buffers.
type presentationBridge struct {
	gpu GPU
}

// present draws the mesh textured with the frame image. A false return
// means nothing was drawn this time; the frame is left untouched so the
// caller can retry it on the next render.
func (b *presentationBridge) present(frame MediaFrame, call DrawCall) bool {
	if frame.image == nil {
		return false
	}
	hw, err := frame.image.HardwareBuffer()
	if err != nil {
		logErrorf("getting hardware buffer: %v", err)
		return false
	}
	clientBuffer, err := b.gpu.NativeClientBuffer(hw)
	if err != nil {
		logErrorf("wrapping hardware buffer: %v", err)
		return false
	}
	img, err := b.gpu.CreateImage(clientBuffer)
	if err != nil {
		logErrorf("importing hardware buffer: %v", err)
		return false
	}
	defer b.gpu.DestroyImage(img)

	if err := b.gpu.BindExternalTexture(img); err != nil {
		logErrorf("binding external texture: %v", err)
		return false
	}
	if err := b.gpu.DrawMesh(call); err != nil {
		logErrorf("drawing video mesh: %v", err)
		return false
	}
	return true
}
