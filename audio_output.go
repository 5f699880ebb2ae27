package xrvideo

import (
	"sync"
	"sync/atomic"
	"time"
)

// decoded audio is interleaved signed 16 bit PCM
const bytesPerSample = 2

// audioOutputLoop writes decoded audio frames to the output stream from a
// dedicated goroutine. The goroutine owns the stream and closes it on exit.
type audioOutputLoop struct {
	queue      *FrameQueue
	stream     AudioStream
	sampleRate int
	channels   int
	interval   time.Duration
	session    string

	running     atomic.Bool
	shortWrites atomic.Int64
	stopCh      chan struct{}
	wg          sync.WaitGroup
}

func newAudioOutputLoop(queue *FrameQueue, stream AudioStream, tracks TrackInfo, interval time.Duration, session string) *audioOutputLoop {
	return &audioOutputLoop{
		queue:      queue,
		stream:     stream,
		sampleRate: tracks.SampleRate,
		channels:   tracks.ChannelCount,
		interval:   interval,
		session:    session,
	}
}

func (a *audioOutputLoop) start() {
	if !a.running.CompareAndSwap(false, true) {
		return
	}
	a.stopCh = make(chan struct{})
	a.wg.Add(1)
	go a.outputLoop()
}

func (a *audioOutputLoop) requestStop() {
	if a.running.CompareAndSwap(true, false) {
		close(a.stopCh)
	}
}

func (a *audioOutputLoop) wait() {
	a.wg.Wait()
}

func (a *audioOutputLoop) outputLoop() {
	defer a.wg.Done()
	defer func() {
		if err := a.stream.Close(); err != nil {
			logWarnf("[%s] closing audio stream: %v", a.session, err)
		}
	}()
	logInfof("[%s] audio loop started (%d Hz, %d channels)", a.session, a.sampleRate, a.channels)

	timer := time.NewTimer(a.interval)
	defer timer.Stop()
	for {
		select {
		case <-a.stopCh:
			logInfof("[%s] audio loop stopped", a.session)
			return
		case <-timer.C:
		}
		a.playFrame()
		timer.Reset(a.interval)
	}
}

// playFrame writes the head audio frame, if any, and releases it. The frame
// is released even on short or failed writes so decoder buffers don't leak.
func (a *audioOutputLoop) playFrame() bool {
	frame, ok := a.queue.PeekFront()
	if !ok {
		return false
	}

	numFrames := len(frame.Data) / (a.channels * bytesPerSample)
	if numFrames > 0 {
		timeout := time.Duration(numFrames) * time.Second / time.Duration(a.sampleRate)
		written, err := a.stream.Write(frame.Data, numFrames, timeout)
		switch {
		case err != nil:
			logErrorf("[%s] audio stream write: %v", a.session, err)
		case written < numFrames:
			a.shortWrites.Add(1)
			logWarnf("[%s] audio stream write accepted %d of %d frames", a.session, written, numFrames)
		}
	}

	a.queue.PopFrontIfReleasable(frame)
	return true
}
