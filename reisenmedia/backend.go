// Package reisenmedia implements the media side of an [xrvideo.Player]
// with reisen: FFmpeg demuxing and software decoding, plus a CPU image
// reader. Decoded video images carry an *[xrvideo.PixelBuffer] with RGBA
// pixels as hardware buffer, decoded audio is interleaved signed 16 bit
// stereo at the track sample rate.
//
// Paths with a scheme (like rtsp://) are opened as network sources.
//
// [reisen]: https://github.com/erparts/reisen
package reisenmedia

import (
	"path/filepath"

	"github.com/rs/zerolog"

	xrvideo "github.com/erparts/go-xrvideo"
)

// Backend implements [xrvideo.MediaBackend].
type Backend struct{}

var _ xrvideo.MediaBackend = (*Backend)(nil)

// NewBackend creates the backend. A nil logger keeps the default console
// logger.
func NewBackend(logger *zerolog.Logger) *Backend {
	setLogger(logger)
	return &Backend{}
}

func (b *Backend) OpenExtractor(path string) (xrvideo.Extractor, error) {
	e, err := openExtractor(path)
	if err != nil {
		return nil, err
	}
	log.Debug().Str(lPath, filepath.Base(path)).Int(lTrack, e.TrackCount()).Msg("media opened")
	return e, nil
}

func (b *Backend) CreateDecoder(mime string) (xrvideo.Codec, error) {
	codec, err := newSoftCodec(mime)
	if err != nil {
		return nil, err
	}
	log.Debug().Str(lMime, mime).Msg("software decoder created")
	return codec, nil
}

func (b *Backend) NewImageReader(maxImages int) (xrvideo.ImageReader, error) {
	return NewImageReader(maxImages), nil
}
