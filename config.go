package xrvideo

import (
	"errors"
	"time"
)

// Config holds the pipeline tunables.
type Config struct {
	// DecodeInterval is the sleep between decode loop iterations.
	// Default: 10ms
	DecodeInterval time.Duration

	// AudioInterval is the sleep between audio output loop iterations.
	// Default: 10ms
	AudioInterval time.Duration

	// MaxQueuedVideoFrames is the video backlog above which the decode
	// loop stops feeding and draining decoders.
	// Default: 5
	MaxQueuedVideoFrames int

	// InputTimeout and OutputTimeout bound the decoder buffer dequeues.
	// Default: 1µs and 10µs
	InputTimeout  time.Duration
	OutputTimeout time.Duration

	// MaxImages is the size of the hardware image pool of the video decoder.
	// Default: 12
	MaxImages int

	// AudioBufferCapacity is the output stream buffer capacity, in frames.
	// Default: 2
	AudioBufferCapacity int

	// AudioSharingMode and AudioLowLatency configure the output stream.
	// Default: shared, low latency
	AudioSharingMode AudioSharingMode
	AudioLowLatency  bool

	// DisableAudio plays video tracks only.
	// Default: false
	DisableAudio bool
}

// DefaultConfig returns a Config with default values.
func DefaultConfig() Config {
	return Config{
		DecodeInterval:       10 * time.Millisecond,
		AudioInterval:        10 * time.Millisecond,
		MaxQueuedVideoFrames: 5,
		InputTimeout:         time.Microsecond,
		OutputTimeout:        10 * time.Microsecond,
		MaxImages:            12,
		AudioBufferCapacity:  2,
		AudioSharingMode:     AudioSharingShared,
		AudioLowLatency:      true,
	}
}

// Validate checks that the configuration values are usable.
func (c Config) Validate() error {
	if c.DecodeInterval <= 0 {
		return errors.New("DecodeInterval must be positive")
	}
	if c.AudioInterval <= 0 {
		return errors.New("AudioInterval must be positive")
	}
	if c.DecodeInterval > time.Second || c.AudioInterval > time.Second {
		return errors.New("loop intervals can't exceed 1s")
	}
	if c.MaxQueuedVideoFrames < 1 {
		return errors.New("MaxQueuedVideoFrames must be at least 1")
	}
	if c.InputTimeout < 0 || c.OutputTimeout < 0 {
		return errors.New("decoder timeouts can't be negative")
	}
	if c.MaxImages < 2 {
		return errors.New("MaxImages must be at least 2")
	}
	if c.AudioBufferCapacity < 1 {
		return errors.New("AudioBufferCapacity must be at least 1")
	}
	return nil
}
