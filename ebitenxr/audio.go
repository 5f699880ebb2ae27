package ebitenxr

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/hajimehoshi/ebiten/v2/audio"

	xrvideo "github.com/erparts/go-xrvideo"
	"github.com/erparts/go-xrvideo/internal/pcmring"
)

// Ebitengine plays 16 bit stereo
const (
	contextChannels = 2
	bytesPerSample  = 2
	contextFrame    = contextChannels * bytesPerSample
)

const (
	// DefaultPlayerBufferSize is the buffer size of the audio players.
	DefaultPlayerBufferSize = 100 * time.Millisecond
	minRingBuffer           = 40 * time.Millisecond
)

var ErrBadSampleRate = errors.New("audio context and audio track sample rates don't match")

// AudioBackend implements [xrvideo.AudioBackend] with the Ebitengine audio
// context. The context is process wide: if none exists when the first
// stream is opened, one is created with the stream sample rate, and streams
// with other sample rates fail with [ErrBadSampleRate] afterwards.
type AudioBackend struct {
	mutex      sync.Mutex
	bufferSize time.Duration
	volume     float64
}

var _ xrvideo.AudioBackend = (*AudioBackend)(nil)

// NewAudioBackend creates an audio backend whose players use the given
// buffer size, [DefaultPlayerBufferSize] if zero.
func NewAudioBackend(bufferSize time.Duration) *AudioBackend {
	if bufferSize <= 0 {
		bufferSize = DefaultPlayerBufferSize
	}
	return &AudioBackend{bufferSize: bufferSize, volume: 1}
}

// SetVolume sets the volume of the streams opened afterwards.
func (b *AudioBackend) SetVolume(volume float64) {
	b.mutex.Lock()
	defer b.mutex.Unlock()
	b.volume = volume
}

func (b *AudioBackend) OpenStream(config xrvideo.AudioStreamConfig) (xrvideo.AudioStream, error) {
	if config.ChannelCount > contextChannels {
		return nil, xrvideo.ErrTooManyChannels
	}
	if config.ChannelCount < 1 || config.SampleRate <= 0 {
		return nil, fmt.Errorf("invalid audio stream format (%d Hz, %d channels)", config.SampleRate, config.ChannelCount)
	}

	b.mutex.Lock()
	defer b.mutex.Unlock()
	ctx := audio.CurrentContext()
	if ctx == nil {
		ctx = audio.NewContext(config.SampleRate)
	}
	if ctx.SampleRate() != config.SampleRate {
		return nil, fmt.Errorf("%w (%d Hz vs %d Hz)", ErrBadSampleRate, ctx.SampleRate(), config.SampleRate)
	}

	capacity := max(config.BufferCapacityInFrames, int(int64(config.SampleRate)*int64(minRingBuffer)/int64(time.Second)))
	ring := pcmring.New(capacity, contextFrame)
	player, err := ctx.NewPlayer(ring)
	if err != nil {
		return nil, err
	}
	player.SetBufferSize(b.bufferSize)
	player.SetVolume(b.volume)
	player.Play()
	return &audioStream{ring: ring, player: player, channels: config.ChannelCount}, nil
}

type audioStream struct {
	ring     *pcmring.Ring
	player   *audio.Player
	channels int
	upmixed  []byte // mono to stereo conversion buffer
	once     sync.Once
}

func (s *audioStream) Write(pcm []byte, frames int, timeout time.Duration) (int, error) {
	frames = min(frames, len(pcm)/(s.channels*bytesPerSample))
	if s.channels == 1 {
		pcm = s.upmix(pcm[:frames*bytesPerSample])
	}
	written, err := s.ring.Write(pcm[:frames*contextFrame], timeout)
	return written / contextFrame, err
}

// upmix duplicates each mono sample on both channels
func (s *audioStream) upmix(mono []byte) []byte {
	if cap(s.upmixed) < 2*len(mono) {
		s.upmixed = make([]byte, 2*len(mono))
	}
	out := s.upmixed[:2*len(mono)]
	for i := 0; i+1 < len(mono); i += 2 {
		out[2*i], out[2*i+1] = mono[i], mono[i+1]
		out[2*i+2], out[2*i+3] = mono[i], mono[i+1]
	}
	return out
}

func (s *audioStream) Close() error {
	var err error
	s.once.Do(func() {
		_ = s.ring.Close()
		s.player.Pause()
		err = s.player.Close()
	})
	return err
}
