package reisenmedia

import (
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/erparts/reisen"

	xrvideo "github.com/erparts/go-xrvideo"
)

// source is the reisen media shared by the extractor and the decoders
// created for its tracks. Everything in here is used from the decode
// goroutine only.
//
// With reisen the decoders read the packet the media has just read, so
// the extractor cursor and the decoders must stay in lockstep: a sample is
// decoded when queued, before the extractor advances.
//
// reisen packets don't expose their timestamps. Sample times are counted
// per stream from the frame duration instead, and the decoders replace
// them with the decoded frame offsets whenever possible.
type source struct {
	media   *reisen.Media
	packets packetReader
	network bool

	decodeOpen bool
	opened     map[int]bool
	selected   map[int]bool
	frameTime  map[int]time.Duration // duration of a sample per stream
	position   map[int]time.Duration // time of the next sample per stream

	packet    *reisen.Packet // current sample, nil if not read yet
	pending   bool           // last read had nothing available yet
	exhausted bool
}

// packetReader is the part of [reisen.Media] the extractor reads from.
type packetReader interface {
	ReadPacket() (*reisen.Packet, bool, error)
}

func newSource(media *reisen.Media, packets packetReader, network bool) *source {
	return &source{
		media:     media,
		packets:   packets,
		network:   network,
		opened:    make(map[int]bool),
		selected:  make(map[int]bool),
		frameTime: make(map[int]time.Duration),
		position:  make(map[int]time.Duration),
	}
}

// track identifies a stream of a source. It travels to the decoders
// through [xrvideo.TrackFormat.Native].
type track struct {
	src   *source
	index int
}

func (t *track) stream() reisen.Stream {
	return t.src.media.Streams()[t.index]
}

// extractor implements [xrvideo.Extractor] on top of reisen packets.
type extractor struct {
	src *source
}

func openExtractor(path string) (*extractor, error) {
	network := strings.Contains(path, "://")
	if network {
		if err := reisen.NetworkInitialize(); err != nil {
			return nil, fmt.Errorf("initializing network: %w", err)
		}
	}
	media, err := reisen.NewMedia(path)
	if err != nil {
		if network {
			reisen.NetworkDeinitialize()
		}
		return nil, err
	}
	return &extractor{src: newSource(media, media, network)}, nil
}

func (e *extractor) TrackCount() int {
	return len(e.src.media.Streams())
}

func (e *extractor) TrackFormat(index int) (xrvideo.TrackFormat, error) {
	streams := e.src.media.Streams()
	if index < 0 || index >= len(streams) {
		return xrvideo.TrackFormat{}, fmt.Errorf("track %d out of range", index)
	}
	stream := streams[index]
	duration, err := stream.Duration()
	if err != nil {
		// live sources don't know their duration
		duration = 0
	}

	format := xrvideo.TrackFormat{
		DurationUs: duration.Microseconds(),
		Native:     &track{src: e.src, index: index},
	}
	switch stream.Type() {
	case reisen.StreamVideo:
		video := stream.(*reisen.VideoStream)
		format.Mime = "video/" + stream.CodecName()
		format.Width = video.Width()
		format.Height = video.Height()
	case reisen.StreamAudio:
		audio := stream.(*reisen.AudioStream)
		format.Mime = "audio/" + stream.CodecName()
		format.SampleRate = audio.SampleRate()
		// audio frames are resampled to interleaved stereo
		format.ChannelCount = 2
	default:
		format.Mime = "application/" + stream.CodecName()
	}
	return format, nil
}

// SelectTrack opens the decoding context of the given stream. Samples of
// streams that were not selected are skipped.
func (e *extractor) SelectTrack(index int) error {
	if index < 0 || index >= e.TrackCount() {
		return fmt.Errorf("track %d out of range", index)
	}
	if !e.src.decodeOpen {
		if err := e.src.media.OpenDecode(); err != nil {
			return err
		}
		e.src.decodeOpen = true
	}
	stream := e.src.media.Streams()[index]
	if !e.src.opened[index] {
		if err := stream.Open(); err != nil {
			return err
		}
		e.src.opened[index] = true
	}
	e.src.selected[index] = true
	e.src.frameTime[index] = sampleDuration(stream)
	return nil
}

// sampleDuration is the time covered by a video frame or an audio frame of
// the stream, zero if unknown.
func sampleDuration(stream reisen.Stream) time.Duration {
	switch s := stream.(type) {
	case *reisen.VideoStream:
		num, den := s.FrameRate()
		return fraction(den, num)
	case *reisen.AudioStream:
		return fraction(s.FrameSize(), s.SampleRate())
	default:
		return 0
	}
}

// fraction returns num/den seconds.
func fraction(num, den int) time.Duration {
	if num <= 0 || den <= 0 {
		return 0
	}
	return time.Duration(num) * time.Second / time.Duration(den)
}

func (e *extractor) SampleTrackIndex() int {
	if !e.prime() {
		if e.src.pending {
			return xrvideo.TrackPending
		}
		return -1
	}
	return e.src.packet.StreamIndex()
}

func (e *extractor) SampleTime() int64 {
	if !e.prime() {
		return -1
	}
	return e.src.position[e.src.packet.StreamIndex()].Microseconds()
}

func (e *extractor) ReadSampleData(buf []byte) (int, error) {
	if !e.prime() {
		return -1, io.EOF
	}
	data := e.src.packet.Data()
	n := copy(buf, data)
	if n < len(data) {
		return n, io.ErrShortBuffer
	}
	return n, nil
}

func (e *extractor) Advance() bool {
	if packet := e.src.packet; packet != nil {
		index := packet.StreamIndex()
		e.src.position[index] += e.src.frameTime[index]
		e.src.packet = nil
	}
	return e.prime()
}

// SeekTo rewinds every opened stream. reisen seeks to the nearest key frame
// before the position, so the mode is not used.
func (e *extractor) SeekTo(timeUs int64, _ xrvideo.SeekMode) error {
	position := time.Duration(timeUs) * time.Microsecond
	streams := e.src.media.Streams()
	for index := range e.src.opened {
		if err := streams[index].Rewind(position); err != nil {
			return fmt.Errorf("rewinding track %d: %w", index, err)
		}
		e.src.position[index] = position
	}
	e.src.packet = nil
	e.src.exhausted = false
	return nil
}

func (e *extractor) Close() error {
	var errs []error
	streams := e.src.media.Streams()
	for index := range e.src.opened {
		if err := streams[index].Close(); err != nil {
			errs = append(errs, fmt.Errorf("closing track %d: %w", index, err))
		}
		delete(e.src.opened, index)
	}
	if e.src.decodeOpen {
		if err := e.src.media.CloseDecode(); err != nil {
			errs = append(errs, err)
		}
		e.src.decodeOpen = false
	}
	e.src.media.Close()
	if e.src.network {
		reisen.NetworkDeinitialize()
		e.src.network = false
	}
	return errors.Join(errs...)
}

// prime reads packets until one of a selected stream shows up. It returns
// false once the source is exhausted, or with pending set when the source
// has nothing to read yet.
func (e *extractor) prime() bool {
	src := e.src
	if src.packet != nil {
		return true
	}
	src.pending = false
	if src.exhausted || !src.decodeOpen {
		return false
	}
	for {
		packet, found, err := src.packets.ReadPacket()
		switch {
		case err != nil:
			log.Warn().Err(err).Msg("reading packet, treating as end of source")
			src.exhausted = true
			return false
		case !found:
			src.exhausted = true
			return false
		case packet == nil:
			// EAGAIN, usually a network source waiting for data
			src.pending = true
			return false
		}
		if src.selected[packet.StreamIndex()] {
			src.packet = packet
			return true
		}
	}
}
