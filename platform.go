package xrvideo

import (
	"time"

	"github.com/go-gl/mathgl/mgl32"
)

// This file declares the platform seams the pipeline is written against.
// The reisenmedia, ebitenxr and otoaudio packages provide implementations,
// tests provide instrumented fakes.

// SeekMode selects how [Extractor.SeekTo] snaps to sync samples.
type SeekMode uint8

const (
	SeekPreviousSync SeekMode = iota
	SeekNextSync
	SeekClosestSync
)

// TrackFormat describes a single track of a media source.
type TrackFormat struct {
	Mime         string // e.g. "video/h264", "audio/aac"
	DurationUs   int64
	Width        int
	Height       int
	SampleRate   int
	ChannelCount int

	// Native carries backend-specific data needed by the decoder created
	// for this track. The pipeline never inspects it.
	Native any
}

// TrackPending is the [Extractor.SampleTrackIndex] of a source that is not
// exhausted but has no sample available yet.
const TrackPending = -2

// Extractor pulls compressed samples out of a container, one selected
// track at a time, in file order.
type Extractor interface {
	TrackCount() int
	TrackFormat(index int) (TrackFormat, error)
	SelectTrack(index int) error

	// SampleTrackIndex returns the track of the current sample,
	// [TrackPending] while a live source has nothing to read yet, or
	// another negative value once the stream is exhausted.
	SampleTrackIndex() int
	// SampleTime returns the current sample timestamp in microseconds.
	SampleTime() int64
	// ReadSampleData copies the current sample into buf and returns the
	// amount of bytes written.
	ReadSampleData(buf []byte) (int, error)
	Advance() bool
	SeekTo(timeUs int64, mode SeekMode) error
	Close() error
}

// Surface is an opaque render target a video decoder can output into.
type Surface any

// Codec info values returned by [Codec.DequeueOutputBuffer] in place of a
// buffer index.
const (
	InfoTryAgainLater        = -1
	InfoOutputFormatChanged  = -2
	InfoOutputBuffersChanged = -3
)

const BufferFlagEndOfStream uint32 = 4

// BufferInfo describes a decoded output buffer.
type BufferInfo struct {
	Offset             int
	Size               int
	PresentationTimeUs int64
	Flags              uint32
}

// Codec follows the input/output buffer model of hardware decoders. Every
// method is called from the decode goroutine only.
type Codec interface {
	Configure(format TrackFormat, surface Surface) error
	Start() error
	Stop() error

	DequeueInputBuffer(timeout time.Duration) (int, error)
	InputBuffer(index int) []byte
	QueueInputBuffer(index, offset, size int, presentationTimeUs int64, flags uint32) error

	DequeueOutputBuffer(timeout time.Duration) (int, BufferInfo, error)
	OutputBuffer(index int) []byte
	// ReleaseOutputBuffer returns the buffer to the codec. With render set,
	// the content is sent to the configured surface first.
	ReleaseOutputBuffer(index int, render bool) error
}

// HardwareBuffer is the opaque platform buffer backing an [Image].
type HardwareBuffer any

// PixelBuffer is the CPU-side hardware buffer used by software backends.
// Pix holds tightly packed RGBA rows.
type PixelBuffer struct {
	Pix    []byte
	Width  int
	Height int
}

// Image is a decoded video image handed out by an [ImageReader]. It must be
// deleted exactly once.
type Image interface {
	Timestamp() int64 // nanoseconds
	Width() int
	Height() int
	HardwareBuffer() (HardwareBuffer, error)
	Delete()
}

// ImageReader owns a bounded pool of images a video decoder renders into.
type ImageReader interface {
	Surface() Surface
	// SetImageListener registers a callback invoked whenever a new image
	// is available. The callback runs on a reader-owned goroutine.
	SetImageListener(listener func())
	AcquireLatestImage() (Image, error)
	Close() error
}

// MediaBackend creates the decode-side platform objects.
type MediaBackend interface {
	OpenExtractor(path string) (Extractor, error)
	CreateDecoder(mime string) (Codec, error)
	NewImageReader(maxImages int) (ImageReader, error)
}

// AudioSharingMode mirrors the sharing policy of low latency audio APIs.
type AudioSharingMode uint8

const (
	AudioSharingShared AudioSharingMode = iota
	AudioSharingExclusive
)

// AudioStreamConfig describes an interleaved signed 16 bit PCM output stream.
type AudioStreamConfig struct {
	SampleRate             int
	ChannelCount           int
	BufferCapacityInFrames int
	SharingMode            AudioSharingMode
	LowLatency             bool
}

// AudioStream is a blocking PCM output stream.
type AudioStream interface {
	// Write blocks until all frames are accepted or the timeout elapses,
	// and returns the amount of frames accepted.
	Write(pcm []byte, frames int, timeout time.Duration) (int, error)
	Close() error
}

type AudioBackend interface {
	OpenStream(config AudioStreamConfig) (AudioStream, error)
}

// ClientBuffer is a hardware buffer wrapped for import by the GPU.
type ClientBuffer any

// GPUImage is an imported image bound for a single draw call.
type GPUImage any

// DrawCall carries the per-eye parameters of a textured mesh draw.
type DrawCall struct {
	Projection mgl32.Mat4
	View       mgl32.Mat4
	Model      mgl32.Mat4
	// UVSet picks the texture coordinate set: 0 for mono layouts and the
	// left eye, 1 for the right eye of stereo layouts.
	UVSet int
}

// GPU is the render thread resource manager. It is created once by the
// application and only ever used from the render thread.
type GPU interface {
	Init(display any) error
	UploadMesh(mesh *Mesh) error

	NativeClientBuffer(hw HardwareBuffer) (ClientBuffer, error)
	CreateImage(buf ClientBuffer) (GPUImage, error)
	BindExternalTexture(img GPUImage) error
	DrawMesh(call DrawCall) error
	DestroyImage(img GPUImage)
}

// Clock is the wall clock used for presentation timing.
type Clock interface {
	Now() time.Time
}

type systemClock struct{}

func (systemClock) Now() time.Time { return time.Now() }

// SystemClock returns the wall clock.
func SystemClock() Clock { return systemClock{} }

func nowMillis(c Clock) uint64 {
	return uint64(c.Now().UnixMilli())
}
