package xrvideo

// MediaKind tells video frames from audio frames.
type MediaKind uint8

const (
	KindVideo MediaKind = iota
	KindAudio
)

func (k MediaKind) String() string {
	switch k {
	case KindVideo:
		return "Video"
	case KindAudio:
		return "Audio"
	default:
		return "Unknown"
	}
}

// MediaFrame is a decoded unit flowing from the decode side to the render
// and audio goroutines. Frames are never mutated after creation.
//
// A video frame refers to an [Image] that is deleted by the [FrameQueue]
// when the frame is popped or cleared. An audio frame refers to a slice of a
// decoder output buffer that stays owned by the decoder until the queue
// hands BufferIndex back through its release function.
type MediaFrame struct {
	Kind MediaKind
	PTS  uint64 // presentation timestamp, wall clock milliseconds

	// video
	Width  int
	Height int
	image  Image

	// audio
	Data        []byte
	BufferIndex int
}

func newVideoFrame(image Image, pts uint64) MediaFrame {
	return MediaFrame{
		Kind:        KindVideo,
		PTS:         pts,
		Width:       image.Width(),
		Height:      image.Height(),
		image:       image,
		BufferIndex: -1,
	}
}

func newAudioFrame(data []byte, bufferIndex int, pts uint64) MediaFrame {
	return MediaFrame{
		Kind:        KindAudio,
		PTS:         pts,
		Data:        data,
		BufferIndex: bufferIndex,
	}
}

// Image returns the image of a video frame, nil for audio frames.
func (f MediaFrame) Image() Image { return f.image }

// same reports whether both values refer to the same underlying resource.
func (f MediaFrame) same(other MediaFrame) bool {
	if f.Kind != other.Kind {
		return false
	}
	if f.Kind == KindVideo {
		return f.image == other.image
	}
	return f.BufferIndex == other.BufferIndex && f.PTS == other.PTS
}
