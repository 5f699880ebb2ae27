package reisenmedia

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/erparts/reisen"

	xrvideo "github.com/erparts/go-xrvideo"
)

const (
	// decoded frames waiting to be dequeued or released
	maxOutputSlots = 4
	// compressed samples are copied to the input buffer but the frames are
	// decoded from the packet reisen already holds, so it only needs to fit
	// typical samples
	inputBufferSize = 1 << 20
)

type outputSlot struct {
	data   []byte
	ptsUs  int64
	width  int
	height int
}

// softCodec is a software decoder with the buffer model of hardware
// decoders. Decoding happens synchronously when an input buffer is queued:
// the decoded frame takes an output slot until it's released.
type softCodec struct {
	mime    string
	video   bool
	track   *track
	surface frameSink

	started       bool
	input         []byte
	inputDequeued bool
	slots         [maxOutputSlots]outputSlot
	free          []int
	ready         []int
}

func newSoftCodec(mime string) (*softCodec, error) {
	switch {
	case strings.HasPrefix(mime, "video/"):
		return &softCodec{mime: mime, video: true}, nil
	case strings.HasPrefix(mime, "audio/"):
		return &softCodec{mime: mime}, nil
	default:
		return nil, fmt.Errorf("no decoder for %q", mime)
	}
}

func (c *softCodec) Configure(format xrvideo.TrackFormat, surface xrvideo.Surface) error {
	t, ok := format.Native.(*track)
	if !ok || t == nil {
		return errors.New("track format doesn't come from a reisen extractor")
	}
	stream := t.stream()
	if c.video && stream.Type() != reisen.StreamVideo || !c.video && stream.Type() != reisen.StreamAudio {
		return fmt.Errorf("track %d doesn't match decoder %q", t.index, c.mime)
	}
	if c.video {
		sink, ok := surface.(frameSink)
		if !ok {
			return fmt.Errorf("video decoder needs a reisenmedia surface, got %T", surface)
		}
		c.surface = sink
	}
	c.track = t
	return nil
}

func (c *softCodec) Start() error {
	if c.track == nil {
		return errors.New("decoder not configured")
	}
	c.input = make([]byte, inputBufferSize)
	c.free = c.free[:0]
	for i := range c.slots {
		c.slots[i] = outputSlot{}
		c.free = append(c.free, i)
	}
	c.ready = c.ready[:0]
	c.inputDequeued = false
	c.started = true
	return nil
}

func (c *softCodec) Stop() error {
	c.started = false
	c.input = nil
	c.ready = c.ready[:0]
	c.free = c.free[:0]
	for i := range c.slots {
		c.slots[i] = outputSlot{}
	}
	return nil
}

// DequeueInputBuffer hands out the single input buffer as long as there's
// an output slot to decode into. It never blocks.
func (c *softCodec) DequeueInputBuffer(time.Duration) (int, error) {
	if !c.started {
		return 0, errors.New("decoder not started")
	}
	if c.inputDequeued || len(c.free) == 0 {
		return xrvideo.InfoTryAgainLater, nil
	}
	c.inputDequeued = true
	return 0, nil
}

func (c *softCodec) InputBuffer(index int) []byte {
	if index != 0 {
		return nil
	}
	return c.input
}

func (c *softCodec) QueueInputBuffer(index, _, _ int, presentationTimeUs int64, _ uint32) error {
	if !c.started || index != 0 || !c.inputDequeued {
		return fmt.Errorf("input buffer %d was not dequeued", index)
	}
	c.inputDequeued = false

	slot, ok, err := c.decode(presentationTimeUs)
	if err != nil || !ok {
		return err
	}
	free := c.free[len(c.free)-1]
	c.free = c.free[:len(c.free)-1]
	c.slots[free] = slot
	c.ready = append(c.ready, free)
	return nil
}

// decode reads the frame of the packet the extractor is positioned on.
// Frame skips are not errors.
func (c *softCodec) decode(fallbackPtsUs int64) (outputSlot, bool, error) {
	var frame interface {
		Data() []byte
		PresentationOffset() (time.Duration, error)
	}
	slot := outputSlot{ptsUs: fallbackPtsUs}
	if c.video {
		stream := c.track.stream().(*reisen.VideoStream)
		videoFrame, _, err := stream.ReadVideoFrame()
		if err != nil {
			return slot, false, err
		}
		if videoFrame == nil {
			return slot, false, nil
		}
		frame = videoFrame
		slot.width, slot.height = stream.Width(), stream.Height()
	} else {
		stream := c.track.stream().(*reisen.AudioStream)
		audioFrame, _, err := stream.ReadAudioFrame()
		if err != nil {
			return slot, false, err
		}
		if audioFrame == nil {
			return slot, false, nil
		}
		frame = audioFrame
	}

	slot.data = frame.Data()
	if offset, err := frame.PresentationOffset(); err == nil {
		slot.ptsUs = offset.Microseconds()
	}
	return slot, true, nil
}

func (c *softCodec) DequeueOutputBuffer(time.Duration) (int, xrvideo.BufferInfo, error) {
	if !c.started {
		return 0, xrvideo.BufferInfo{}, errors.New("decoder not started")
	}
	if len(c.ready) == 0 {
		return xrvideo.InfoTryAgainLater, xrvideo.BufferInfo{}, nil
	}
	index := c.ready[0]
	c.ready = c.ready[1:]
	slot := c.slots[index]
	return index, xrvideo.BufferInfo{
		Size:               len(slot.data),
		PresentationTimeUs: slot.ptsUs,
	}, nil
}

func (c *softCodec) OutputBuffer(index int) []byte {
	if index < 0 || index >= len(c.slots) {
		return nil
	}
	return c.slots[index].data
}

// ReleaseOutputBuffer frees the slot. Video frames are sent to the image
// reader first when render is set.
func (c *softCodec) ReleaseOutputBuffer(index int, render bool) error {
	if !c.started {
		// buffers handed back after Stop belong to the previous run
		return nil
	}
	if index < 0 || index >= len(c.slots) || c.slots[index].data == nil {
		return fmt.Errorf("output buffer %d is not in use", index)
	}
	slot := c.slots[index]
	if render && c.video {
		c.surface.deliver(&xrvideo.PixelBuffer{
			Pix:    slot.data,
			Width:  slot.width,
			Height: slot.height,
		}, time.Duration(slot.ptsUs)*time.Microsecond)
	}
	c.slots[index] = outputSlot{}
	c.free = append(c.free, index)
	return nil
}
