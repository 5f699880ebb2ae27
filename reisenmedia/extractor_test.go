package reisenmedia

import (
	"errors"
	"io"
	"testing"
	"time"

	"github.com/erparts/reisen"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	xrvideo "github.com/erparts/go-xrvideo"
)

type packetRead struct {
	packet *reisen.Packet
	found  bool
	err    error
}

// scriptedPackets replays reads in order and reports the end of the source
// afterwards.
type scriptedPackets struct {
	reads []packetRead
	calls int
}

func (s *scriptedPackets) ReadPacket() (*reisen.Packet, bool, error) {
	s.calls++
	if len(s.reads) == 0 {
		return nil, false, nil
	}
	read := s.reads[0]
	s.reads = s.reads[1:]
	return read.packet, read.found, read.err
}

// newScriptedExtractor selects stream 0, the stream of zero value packets.
func newScriptedExtractor(frameTime time.Duration, reads ...packetRead) (*extractor, *scriptedPackets) {
	packets := &scriptedPackets{reads: reads}
	src := newSource(nil, packets, false)
	src.decodeOpen = true
	src.selected[0] = true
	src.frameTime[0] = frameTime
	return &extractor{src: src}, packets
}

func sample() packetRead { return packetRead{packet: &reisen.Packet{}, found: true} }

func TestExtractor_PendingReadIsNotTheEnd(t *testing.T) {
	e, packets := newScriptedExtractor(40*time.Millisecond,
		packetRead{found: true}, // EAGAIN
		sample(),
	)

	assert.Equal(t, xrvideo.TrackPending, e.SampleTrackIndex())
	assert.False(t, e.src.exhausted)

	assert.Equal(t, 0, e.SampleTrackIndex())
	assert.Equal(t, int64(0), e.SampleTime())
	assert.Equal(t, 2, packets.calls)

	assert.False(t, e.Advance())
	assert.Equal(t, -1, e.SampleTrackIndex())
	assert.True(t, e.src.exhausted)
}

func TestExtractor_SampleTimesFollowFrameDuration(t *testing.T) {
	e, _ := newScriptedExtractor(40*time.Millisecond, sample(), sample(), sample())

	var times []int64
	for ok := e.SampleTrackIndex() >= 0; ok; ok = e.Advance() {
		times = append(times, e.SampleTime())
	}
	assert.Equal(t, []int64{0, 40_000, 80_000}, times)

	n, err := e.ReadSampleData(make([]byte, 4))
	assert.ErrorIs(t, err, io.EOF)
	assert.Equal(t, -1, n)
}

func TestExtractor_SkipsUnselectedStreams(t *testing.T) {
	e, packets := newScriptedExtractor(0, sample(), sample())
	e.src.selected[0] = false

	assert.Equal(t, -1, e.SampleTrackIndex())
	assert.Equal(t, 3, packets.calls)
}

func TestExtractor_ReadErrorEndsSource(t *testing.T) {
	e, packets := newScriptedExtractor(0, packetRead{err: errors.New("broken pipe")}, sample())

	assert.Equal(t, -1, e.SampleTrackIndex())
	assert.Equal(t, -1, e.SampleTrackIndex())
	assert.Equal(t, 1, packets.calls, "nothing is read once exhausted")
}

func TestExtractor_NotReadBeforeSelecting(t *testing.T) {
	e, packets := newScriptedExtractor(0, sample())
	e.src.decodeOpen = false

	assert.Equal(t, -1, e.SampleTrackIndex())
	assert.Zero(t, packets.calls)
}

func TestSampleDuration(t *testing.T) {
	require.Equal(t, 40*time.Millisecond, fraction(1, 25))
	assert.Equal(t, 1001*time.Second/30000, fraction(1001, 30000))
	assert.Equal(t, 1024*time.Second/48000, fraction(1024, 48000))
	assert.Zero(t, fraction(0, 25))
	assert.Zero(t, fraction(1, 0))
	assert.Zero(t, sampleDuration(nil))
}
