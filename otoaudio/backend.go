// Package otoaudio implements [xrvideo.AudioBackend] with oto, for players
// running outside of an Ebitengine game.
package otoaudio

import (
	"fmt"
	"sync"
	"time"

	"github.com/ebitengine/oto/v3"

	xrvideo "github.com/erparts/go-xrvideo"
	"github.com/erparts/go-xrvideo/internal/pcmring"
)

const (
	bytesPerSample = 2
	// minimum ring size, small capacities requested by low latency
	// configurations would underrun on every oto read
	minBuffer = 40 * time.Millisecond
)

// Backend owns the oto context. oto only allows a single context per
// process, so the first stream fixes the sample rate and channel count and
// later streams must match them.
type Backend struct {
	mutex        sync.Mutex
	ctx          *oto.Context
	sampleRate   int
	channelCount int
	bufferSize   time.Duration
}

var _ xrvideo.AudioBackend = (*Backend)(nil)

// NewBackend creates a backend. The oto context is created lazily by the
// first [Backend.OpenStream] call. bufferSize is the oto buffer size, zero
// for the oto default.
func NewBackend(bufferSize time.Duration) *Backend {
	return &Backend{bufferSize: bufferSize}
}

func (b *Backend) OpenStream(config xrvideo.AudioStreamConfig) (xrvideo.AudioStream, error) {
	if config.ChannelCount > 2 {
		return nil, xrvideo.ErrTooManyChannels
	}
	if config.ChannelCount < 1 || config.SampleRate <= 0 {
		return nil, fmt.Errorf("invalid audio stream format (%d Hz, %d channels)", config.SampleRate, config.ChannelCount)
	}

	ctx, err := b.context(config)
	if err != nil {
		return nil, err
	}

	frameSize := config.ChannelCount * bytesPerSample
	capacity := max(config.BufferCapacityInFrames, int(int64(config.SampleRate)*int64(minBuffer)/int64(time.Second)))
	ring := pcmring.New(capacity, frameSize)
	player := ctx.NewPlayer(ring)
	player.Play()
	return &stream{ring: ring, player: player, frameSize: frameSize}, nil
}

func (b *Backend) context(config xrvideo.AudioStreamConfig) (*oto.Context, error) {
	b.mutex.Lock()
	defer b.mutex.Unlock()
	if b.ctx != nil {
		if b.sampleRate != config.SampleRate || b.channelCount != config.ChannelCount {
			return nil, fmt.Errorf("oto context is %d Hz with %d channels, stream needs %d Hz with %d channels",
				b.sampleRate, b.channelCount, config.SampleRate, config.ChannelCount)
		}
		return b.ctx, nil
	}

	ctx, ready, err := oto.NewContext(&oto.NewContextOptions{
		SampleRate:   config.SampleRate,
		ChannelCount: config.ChannelCount,
		Format:       oto.FormatSignedInt16LE,
		BufferSize:   b.bufferSize,
	})
	if err != nil {
		return nil, fmt.Errorf("creating oto context: %w", err)
	}
	<-ready
	b.ctx = ctx
	b.sampleRate = config.SampleRate
	b.channelCount = config.ChannelCount
	return ctx, nil
}

type stream struct {
	ring      *pcmring.Ring
	player    *oto.Player
	frameSize int
	closeOnce sync.Once
}

func (s *stream) Write(pcm []byte, frames int, timeout time.Duration) (int, error) {
	n := min(frames*s.frameSize, len(pcm))
	written, err := s.ring.Write(pcm[:n], timeout)
	return written / s.frameSize, err
}

func (s *stream) Close() error {
	var err error
	s.closeOnce.Do(func() {
		_ = s.ring.Close()
		s.player.Pause()
		err = s.player.Close()
	})
	return err
}
