package xrvideo

import (
	"errors"
	"fmt"
	"path/filepath"
	"sync"
	"sync/atomic"
	"time"
)

// decodePipeline drives the video and audio decoders from a dedicated
// goroutine. Decoded audio goes into the audio queue from the decode loop,
// decoded video is rendered by the decoder into the image reader surface and
// reaches the video queue through the image listener.
//
// State machine: Idle -> Starting (prepare) -> Running (launch) ->
// Stopping (requestStop) -> Idle (teardown).
//
// The decoders, the image reader and the demuxer cursor belong to the decode
// goroutine while Running. Audio buffers freed by the audio goroutine are
// handed back through pendingRelease and returned to the decoder by the
// decode goroutine itself.
type decodePipeline struct {
	cfg     Config
	clock   Clock
	backend MediaBackend
	session string

	demuxer *TrackDemuxer
	tracks  TrackInfo
	reader  ImageReader
	video   Codec
	audio   Codec

	videoQueue *FrameQueue
	audioQueue *FrameQueue

	state       atomic.Uint32
	ptsOffset   atomic.Uint64 // milliseconds added to decoder timestamps
	loops       atomic.Int64
	endOfStream atomic.Bool

	releaseMutex   sync.Mutex
	pendingRelease []int

	stopCh chan struct{}
	wg     sync.WaitGroup
}

func newDecodePipeline(cfg Config, clock Clock, backend MediaBackend, demuxer *TrackDemuxer, session string) *decodePipeline {
	p := &decodePipeline{
		cfg:        cfg,
		clock:      clock,
		backend:    backend,
		session:    session,
		demuxer:    demuxer,
		videoQueue: NewVideoQueue(clock),
	}
	p.audioQueue = NewAudioQueue(p.returnAudioBuffer)
	return p
}

// State returns the current pipeline state.
func (p *decodePipeline) State() PipelineState {
	return PipelineState(p.state.Load())
}

// Loops returns how many times the source wrapped around.
func (p *decodePipeline) Loops() int64 { return p.loops.Load() }

// prepare creates the image reader and the decoders for the given tracks.
// On failure everything created so far is torn down and the pipeline goes
// back to Idle: no goroutine is ever launched.
func (p *decodePipeline) prepare(tracks TrackInfo) error {
	if !p.state.CompareAndSwap(uint32(Idle), uint32(Starting)) {
		return fmt.Errorf("decode pipeline is %s", p.State())
	}
	p.tracks = tracks

	err := p.noLockPrepare()
	if err != nil {
		p.teardown()
		return err
	}

	p.ptsOffset.Store(nowMillis(p.clock))
	return nil
}

func (p *decodePipeline) noLockPrepare() error {
	reader, err := p.backend.NewImageReader(p.cfg.MaxImages)
	if err != nil {
		return fmt.Errorf("creating image reader: %w", err)
	}
	p.reader = reader
	reader.SetImageListener(func() { p.onImageAvailable(reader) })

	p.video, err = p.createCodec(p.tracks.VideoFormat, reader.Surface())
	if err != nil {
		return err
	}
	if err := p.demuxer.SelectTrack(p.tracks.VideoTrack); err != nil {
		return fmt.Errorf("selecting video track %d: %w", p.tracks.VideoTrack, err)
	}

	if p.tracks.HasAudio() {
		p.audio, err = p.createCodec(p.tracks.AudioFormat, nil)
		if err != nil {
			return err
		}
		if err := p.demuxer.SelectTrack(p.tracks.AudioTrack); err != nil {
			return fmt.Errorf("selecting audio track %d: %w", p.tracks.AudioTrack, err)
		}
	}
	return nil
}

func (p *decodePipeline) createCodec(format TrackFormat, surface Surface) (Codec, error) {
	codec, err := p.backend.CreateDecoder(format.Mime)
	if err != nil {
		return nil, fmt.Errorf("creating %s decoder: %w", format.Mime, err)
	}
	if err := codec.Configure(format, surface); err != nil {
		stopCodec(codec, format.Mime)
		return nil, fmt.Errorf("configuring %s decoder: %w", format.Mime, err)
	}
	if err := codec.Start(); err != nil {
		stopCodec(codec, format.Mime)
		return nil, fmt.Errorf("starting %s decoder: %w", format.Mime, err)
	}
	return codec, nil
}

// stopCodec releases a decoder that never made it into the pipeline.
func stopCodec(codec Codec, mime string) {
	if err := codec.Stop(); err != nil {
		logWarnf("stopping %s decoder: %v", mime, err)
	}
}

// launch starts the decode goroutine.
func (p *decodePipeline) launch() {
	if !p.state.CompareAndSwap(uint32(Starting), uint32(Running)) {
		return
	}
	p.stopCh = make(chan struct{})
	p.wg.Add(1)
	go p.decodeLoop()
}

// requestStop asks the decode goroutine to exit after its current iteration.
func (p *decodePipeline) requestStop() {
	if p.state.CompareAndSwap(uint32(Running), uint32(Stopping)) {
		close(p.stopCh)
	}
}

// wait blocks until the decode goroutine exited.
func (p *decodePipeline) wait() {
	p.wg.Wait()
}

// teardown stops the decoders and closes the image reader. It must run with
// the decode goroutine joined and both queues cleared, so every audio buffer
// has been handed back and every image deleted.
func (p *decodePipeline) teardown() {
	p.flushReleasedBuffers()
	if p.audio != nil {
		if err := p.audio.Stop(); err != nil {
			logDebugf("[%s] stopping audio decoder: %v", p.session, err)
		}
		p.audio = nil
	}
	if p.video != nil {
		if err := p.video.Stop(); err != nil {
			logDebugf("[%s] stopping video decoder: %v", p.session, err)
		}
		p.video = nil
	}
	if p.reader != nil {
		if err := p.reader.Close(); err != nil {
			logDebugf("[%s] closing image reader: %v", p.session, err)
		}
		p.reader = nil
	}
	p.state.Store(uint32(Idle))
}

func (p *decodePipeline) decodeLoop() {
	defer p.wg.Done()
	logInfof("[%s] decode loop started for '%s'", p.session, filepath.Base(p.demuxer.Path()))

	timer := time.NewTimer(p.cfg.DecodeInterval)
	defer timer.Stop()
	for {
		select {
		case <-p.stopCh:
			logInfof("[%s] decode loop stopped after %d loops", p.session, p.loops.Load())
			return
		case <-timer.C:
		}
		p.iterate()
		timer.Reset(p.cfg.DecodeInterval)
	}
}

// iterate runs a single feed and drain step. Errors are logged and the
// next iteration simply tries again.
func (p *decodePipeline) iterate() {
	p.flushReleasedBuffers()

	if p.videoQueue.Len() > p.cfg.MaxQueuedVideoFrames {
		return
	}

	track := p.demuxer.CurrentTrackIndex()
	if track == TrackPending {
		return
	}
	if track < 0 {
		p.loopSource()
		return
	}

	codec := p.codecForTrack(track)
	if codec == nil {
		p.demuxer.Advance()
		return
	}

	p.feed(codec)
	// the sample is skipped even if no input buffer was available
	p.demuxer.Advance()
	p.drain(codec)
}

func (p *decodePipeline) codecForTrack(track int) Codec {
	switch {
	case track == p.tracks.VideoTrack:
		return p.video
	case p.tracks.HasAudio() && track == p.tracks.AudioTrack:
		return p.audio
	default:
		return nil
	}
}

// loopSource rewinds an exhausted source and moves the presentation offset
// forward by the video duration, so timestamps keep increasing.
func (p *decodePipeline) loopSource() {
	if err := p.demuxer.Seek(0, SeekClosestSync); err != nil {
		logWarnf("[%s] rewinding '%s': %v", p.session, filepath.Base(p.demuxer.Path()), err)
		return
	}
	if p.tracks.VideoDurationMs > 0 {
		p.ptsOffset.Add(uint64(p.tracks.VideoDurationMs))
	}
	n := p.loops.Add(1)
	p.endOfStream.Store(false)
	logInfof("[%s] end of '%s' reached, looping (%d)", p.session, filepath.Base(p.demuxer.Path()), n)
}

func (p *decodePipeline) feed(codec Codec) {
	index, err := codec.DequeueInputBuffer(p.cfg.InputTimeout)
	if err != nil {
		logDebugf("[%s] dequeue input buffer: %v", p.session, err)
		return
	}
	if index < 0 {
		return
	}

	size, err := p.demuxer.ReadSample(codec.InputBuffer(index))
	if err != nil || size < 0 {
		logWarnf("[%s] reading sample: %v", p.session, err)
		size = 0
	}
	pts := p.demuxer.CurrentSampleTimestamp()
	if err := codec.QueueInputBuffer(index, 0, size, pts, 0); err != nil {
		logWarnf("[%s] queue input buffer: %v", p.session, err)
	}
}

func (p *decodePipeline) drain(codec Codec) {
	index, info, err := codec.DequeueOutputBuffer(p.cfg.OutputTimeout)
	if err != nil {
		logDebugf("[%s] dequeue output buffer: %v", p.session, err)
		return
	}
	switch index {
	case InfoTryAgainLater, InfoOutputBuffersChanged:
		return
	case InfoOutputFormatChanged:
		logInfof("[%s] decoder output format changed", p.session)
		return
	}
	if index < 0 {
		return
	}

	if info.Flags&BufferFlagEndOfStream != 0 {
		p.endOfStream.Store(true)
		logDebugf("[%s] decoder signaled end of stream", p.session)
	}

	if codec == p.video {
		// the decoder renders into the image reader surface, the frame
		// itself shows up later on onImageAvailable
		if err := codec.ReleaseOutputBuffer(index, true); err != nil {
			logWarnf("[%s] release video output buffer: %v", p.session, err)
		}
		return
	}

	data := codec.OutputBuffer(index)
	start, end := info.Offset, info.Offset+info.Size
	if data == nil || start < 0 || end > len(data) || start > end {
		logWarnf("[%s] audio output buffer %d out of range (%d:%d of %d)", p.session, index, start, end, len(data))
		if err := codec.ReleaseOutputBuffer(index, false); err != nil {
			logWarnf("[%s] release audio output buffer: %v", p.session, err)
		}
		return
	}
	pts := uint64(max(info.PresentationTimeUs, 0)/1000) + p.ptsOffset.Load()
	p.audioQueue.Push(newAudioFrame(data[start:end], index, pts))
}

// onImageAvailable is the image reader listener. It runs concurrently with
// everything else and only touches the video queue and the offset.
func (p *decodePipeline) onImageAvailable(reader ImageReader) {
	image, err := reader.AcquireLatestImage()
	if err != nil {
		if !errors.Is(err, ErrNoImage) {
			logWarnf("[%s] acquire latest image: %v", p.session, err)
		}
		return
	}
	pts := uint64(max(image.Timestamp(), 0)/int64(time.Millisecond)) + p.ptsOffset.Load()
	p.videoQueue.Push(newVideoFrame(image, pts))
}

// returnAudioBuffer is the audio queue release function. It can be called
// from any goroutine.
func (p *decodePipeline) returnAudioBuffer(index int) {
	p.releaseMutex.Lock()
	p.pendingRelease = append(p.pendingRelease, index)
	p.releaseMutex.Unlock()
}

func (p *decodePipeline) flushReleasedBuffers() {
	p.releaseMutex.Lock()
	pending := p.pendingRelease
	p.pendingRelease = nil
	p.releaseMutex.Unlock()

	if p.audio == nil {
		return
	}
	for _, index := range pending {
		if err := p.audio.ReleaseOutputBuffer(index, false); err != nil {
			logWarnf("[%s] release audio output buffer %d: %v", p.session, index, err)
		}
	}
}
