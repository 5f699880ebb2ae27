package xrvideo

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testBaseMs = 1_000_000

type pipelineFixture struct {
	pipeline  *decodePipeline
	backend   *fakeMediaBackend
	extractor *fakeExtractor
	clock     *fakeClock
}

func newPipelineFixture(t *testing.T, cfg Config, formats []TrackFormat, samples []fakeSample) *pipelineFixture {
	t.Helper()
	f := &pipelineFixture{
		backend:   newFakeMediaBackend(),
		extractor: newFakeExtractor(formats, samples),
		clock:     newFakeClock(testBaseMs),
	}
	f.backend.extractors["clip.mp4"] = f.extractor

	demuxer, err := OpenDemuxer(f.backend, "clip.mp4")
	require.NoError(t, err)
	tracks, err := demuxer.selectTracks(true)
	require.NoError(t, err)

	f.pipeline = newDecodePipeline(cfg, f.clock, f.backend, demuxer, "test")
	require.NoError(t, f.pipeline.prepare(tracks))
	t.Cleanup(func() {
		f.pipeline.videoQueue.Clear()
		f.pipeline.audioQueue.Clear()
		f.pipeline.teardown()
	})
	return f
}

func (f *pipelineFixture) iterate(n int) {
	for i := 0; i < n; i++ {
		f.pipeline.iterate()
	}
}

// popAll releases every video frame but the last one and returns the
// timestamp of the remaining head.
func (f *pipelineFixture) popAll(t *testing.T) uint64 {
	t.Helper()
	f.clock.SetMillis(testBaseMs * 10)
	for popHead(f.pipeline.videoQueue) {
	}
	head, ok := f.pipeline.videoQueue.PeekFront()
	require.True(t, ok)
	return head.PTS
}

func TestDecodePipeline_PrepareState(t *testing.T) {
	f := newPipelineFixture(t, DefaultConfig(), []TrackFormat{videoFormat(100)}, videoSamples(3, 33))

	assert.Equal(t, Starting, f.pipeline.State())
	assert.True(t, f.extractor.selected[0])
	assert.Equal(t, uint64(testBaseMs), f.pipeline.ptsOffset.Load())

	err := f.pipeline.prepare(f.pipeline.tracks)
	assert.Error(t, err, "preparing twice")
}

func TestDecodePipeline_VideoTimestampsIncludeOffset(t *testing.T) {
	f := newPipelineFixture(t, DefaultConfig(), []TrackFormat{videoFormat(100)}, videoSamples(3, 33))
	f.iterate(3)

	q := f.pipeline.videoQueue
	require.Equal(t, 3, q.Len())
	head, ok := q.PeekFront()
	require.True(t, ok)
	assert.Equal(t, uint64(testBaseMs), head.PTS)

	f.clock.SetMillis(testBaseMs)
	require.True(t, popHead(q))
	head, _ = q.PeekFront()
	assert.Equal(t, uint64(testBaseMs+33), head.PTS)
}

func TestDecodePipeline_LoopsWithIncreasingTimestamps(t *testing.T) {
	f := newPipelineFixture(t, DefaultConfig(), []TrackFormat{videoFormat(100)}, videoSamples(3, 33))

	f.iterate(3)
	assert.Empty(t, f.extractor.seeks)
	assert.Equal(t, int64(0), f.pipeline.Loops())

	// exhausted: one seek and the offset moves by the duration
	f.iterate(1)
	assert.Equal(t, []int64{0}, f.extractor.seeks)
	assert.Equal(t, int64(1), f.pipeline.Loops())
	assert.Equal(t, uint64(testBaseMs+100), f.pipeline.ptsOffset.Load())

	f.iterate(1)
	require.Equal(t, 4, f.pipeline.videoQueue.Len())
	assert.Equal(t, uint64(testBaseMs+100), f.popAll(t))
}

func TestDecodePipeline_RewindFailureKeepsOffset(t *testing.T) {
	f := newPipelineFixture(t, DefaultConfig(), []TrackFormat{videoFormat(100)}, videoSamples(2, 33))
	f.extractor.seekErr = errFake

	f.iterate(5)
	assert.Equal(t, 2, f.pipeline.videoQueue.Len())
	assert.Equal(t, int64(0), f.pipeline.Loops())
	assert.Equal(t, uint64(testBaseMs), f.pipeline.ptsOffset.Load())
}

func TestDecodePipeline_WaitsForPendingSample(t *testing.T) {
	f := newPipelineFixture(t, DefaultConfig(), []TrackFormat{videoFormat(100)}, videoSamples(2, 33))
	f.extractor.pending = 3

	f.iterate(3)
	assert.Empty(t, f.extractor.seeks, "a pending sample is not the end of the source")
	assert.Equal(t, int64(0), f.pipeline.Loops())
	assert.Equal(t, 0, f.extractor.cursor)

	f.iterate(2)
	assert.Equal(t, 2, f.pipeline.videoQueue.Len())
	assert.Equal(t, uint64(testBaseMs), f.pipeline.ptsOffset.Load())
}

func TestDecodePipeline_Backpressure(t *testing.T) {
	cfg := DefaultConfig()
	f := newPipelineFixture(t, cfg, []TrackFormat{videoFormat(1000)}, videoSamples(20, 33))

	f.iterate(20)
	q := f.pipeline.videoQueue
	assert.Equal(t, cfg.MaxQueuedVideoFrames+1, q.Len())
	assert.Equal(t, cfg.MaxQueuedVideoFrames+1, f.extractor.cursor, "cursor stays put while the queue is full")
	assert.Len(t, f.backend.codec("video/").queued, cfg.MaxQueuedVideoFrames+1)

	f.clock.SetMillis(testBaseMs)
	require.True(t, popHead(q))
	f.iterate(1)
	assert.Equal(t, cfg.MaxQueuedVideoFrames+1, q.Len())
	assert.Equal(t, cfg.MaxQueuedVideoFrames+2, f.extractor.cursor)
}

func TestDecodePipeline_SampleDroppedWithoutInputBuffer(t *testing.T) {
	f := newPipelineFixture(t, DefaultConfig(), []TrackFormat{videoFormat(100)}, videoSamples(3, 33))
	codec := f.backend.codec("video/")
	codec.noInput = true

	f.iterate(1)
	assert.Equal(t, 1, f.extractor.cursor)
	assert.Empty(t, codec.queued)
	assert.Equal(t, 0, f.pipeline.videoQueue.Len())

	codec.noInput = false
	f.iterate(1)
	assert.Equal(t, []int64{33_000}, codec.queued)
}

func TestDecodePipeline_IgnoresUnselectedTracks(t *testing.T) {
	formats := []TrackFormat{videoFormat(100), {Mime: "application/x-subrip"}}
	samples := []fakeSample{{track: 1, timeUs: 0}, {track: 0, timeUs: 0}}
	f := newPipelineFixture(t, DefaultConfig(), formats, samples)

	f.iterate(1)
	assert.Equal(t, 1, f.extractor.cursor)
	assert.Equal(t, 0, f.pipeline.videoQueue.Len())
	f.iterate(1)
	assert.Equal(t, 1, f.pipeline.videoQueue.Len())
}

func TestDecodePipeline_AudioBuffersReturnedByDecodeLoop(t *testing.T) {
	formats := []TrackFormat{videoFormat(100), audioFormat()}
	samples := []fakeSample{
		{track: 0, timeUs: 0},
		{track: 1, timeUs: 0},
		{track: 0, timeUs: 33_000},
		{track: 1, timeUs: 21_000},
	}
	f := newPipelineFixture(t, DefaultConfig(), formats, samples)
	audio := f.backend.codec("audio/")
	require.NotNil(t, audio)

	f.iterate(4)
	q := f.pipeline.audioQueue
	require.Equal(t, 2, q.Len())
	head, ok := q.PeekFront()
	require.True(t, ok)
	assert.Equal(t, uint64(testBaseMs), head.PTS)
	assert.Len(t, head.Data, 8)
	assert.Equal(t, 0, head.BufferIndex)

	// popping from the audio goroutine only schedules the release
	require.True(t, q.PopFrontIfReleasable(head))
	assert.Equal(t, 0, audio.releases)
	assert.Len(t, audio.outstanding, 2)

	f.iterate(1)
	assert.Equal(t, 1, audio.releases)
	assert.Len(t, audio.outstanding, 1)
	assert.Zero(t, audio.doubles)
}

func TestDecodePipeline_PrepareFailureTearsDown(t *testing.T) {
	backend := newFakeMediaBackend()
	backend.failAudio = true
	backend.extractors["clip.mp4"] = newFakeExtractor([]TrackFormat{videoFormat(100), audioFormat()}, videoSamples(1, 33))

	demuxer, err := OpenDemuxer(backend, "clip.mp4")
	require.NoError(t, err)
	tracks, err := demuxer.selectTracks(true)
	require.NoError(t, err)

	p := newDecodePipeline(DefaultConfig(), newFakeClock(testBaseMs), backend, demuxer, "test")
	err = p.prepare(tracks)
	require.ErrorIs(t, err, errFake)
	assert.Contains(t, err.Error(), testAudioMime)

	assert.Equal(t, Idle, p.State())
	assert.Equal(t, int32(1), backend.reader().closed.Load())
	assert.True(t, backend.codec("video/").stopped, "video decoder created before the failure is stopped")
	assert.True(t, backend.codec("audio/").stopped, "audio decoder that failed to start is stopped")

	p.launch()
	assert.Equal(t, Idle, p.State(), "a failed pipeline never launches")
}

func TestDecodePipeline_ConfigureFailureStopsDecoder(t *testing.T) {
	backend := newFakeMediaBackend()
	backend.failConf = true
	backend.extractors["clip.mp4"] = newFakeExtractor([]TrackFormat{videoFormat(100)}, videoSamples(1, 33))

	demuxer, err := OpenDemuxer(backend, "clip.mp4")
	require.NoError(t, err)
	tracks, err := demuxer.selectTracks(true)
	require.NoError(t, err)

	p := newDecodePipeline(DefaultConfig(), newFakeClock(testBaseMs), backend, demuxer, "test")
	require.ErrorIs(t, p.prepare(tracks), errFake)
	codec := backend.codec("video/")
	require.NotNil(t, codec)
	assert.True(t, codec.stopped)
	assert.False(t, codec.started)
	assert.Equal(t, Idle, p.State())
}

func TestDecodePipeline_StopIsPrompt(t *testing.T) {
	cfg := DefaultConfig()
	cfg.DecodeInterval = time.Millisecond
	f := newPipelineFixture(t, cfg, []TrackFormat{videoFormat(100)}, videoSamples(3, 33))

	p := f.pipeline
	p.launch()
	assert.Equal(t, Running, p.State())
	require.Eventually(t, func() bool { return p.Loops() > 0 }, time.Second, time.Millisecond)

	start := time.Now()
	p.requestStop()
	assert.Equal(t, Stopping, p.State())
	p.wait()
	assert.Less(t, time.Since(start), 200*time.Millisecond)

	p.requestStop()
	p.videoQueue.Clear()
	p.teardown()
	assert.Equal(t, Idle, p.State())
	assert.Equal(t, int32(1), f.backend.reader().closed.Load())
}
