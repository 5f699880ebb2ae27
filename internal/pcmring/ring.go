// Package pcmring implements the PCM buffer between a blocking audio
// stream writer and a pull based audio player.
package pcmring

import (
	"errors"
	"io"
	"sync"
	"time"
)

var ErrClosed = errors.New("pcm ring closed")

// Ring is a fixed capacity byte ring holding interleaved PCM frames.
// Writes block until the data fits or a timeout elapses, reads never block
// and pad missing data with silence.
type Ring struct {
	mutex     sync.Mutex
	buf       []byte
	start     int
	size      int
	frameSize int
	closed    bool
	underruns int

	spaceCh chan struct{}
}

// New creates a ring holding up to capacityFrames frames of frameSize bytes.
func New(capacityFrames, frameSize int) *Ring {
	if frameSize < 1 {
		frameSize = 1
	}
	if capacityFrames < 1 {
		capacityFrames = 1
	}
	return &Ring{
		buf:       make([]byte, capacityFrames*frameSize),
		frameSize: frameSize,
		spaceCh:   make(chan struct{}, 1),
	}
}

// Write copies whole frames from p into the ring, waiting for the reader to
// make room for at most timeout. It returns the amount of bytes written,
// which is less than len(p) if the timeout elapsed.
func (r *Ring) Write(p []byte, timeout time.Duration) (int, error) {
	p = p[:len(p)-len(p)%r.frameSize]
	var written int
	var timer *time.Timer
	defer func() {
		if timer != nil {
			timer.Stop()
		}
	}()

	for {
		r.mutex.Lock()
		if r.closed {
			r.mutex.Unlock()
			return written, ErrClosed
		}
		n := r.noLockWrite(p[written:])
		written += n
		r.mutex.Unlock()

		if written == len(p) {
			return written, nil
		}
		if timer == nil {
			timer = time.NewTimer(timeout)
		}
		select {
		case <-r.spaceCh:
		case <-timer.C:
			return written, nil
		}
	}
}

// preconditions: r.mutex is locked
func (r *Ring) noLockWrite(p []byte) int {
	free := len(r.buf) - r.size
	free -= free % r.frameSize
	n := min(free, len(p))
	end := (r.start + r.size) % len(r.buf)
	copied := copy(r.buf[end:], p[:n])
	if copied < n {
		copy(r.buf, p[copied:n])
	}
	r.size += n
	return n
}

// Read fills p with buffered data followed by silence. It only returns an
// error, [io.EOF], once the ring has been closed and drained.
func (r *Ring) Read(p []byte) (int, error) {
	r.mutex.Lock()
	if r.closed && r.size == 0 {
		r.mutex.Unlock()
		return 0, io.EOF
	}
	n := min(r.size, len(p))
	copied := copy(p[:n], r.buf[r.start:])
	if copied < n {
		copy(p[copied:n], r.buf)
	}
	r.start = (r.start + n) % len(r.buf)
	r.size -= n
	if n < len(p) && !r.closed {
		r.underruns += 1
	}
	r.mutex.Unlock()

	clear(p[n:])
	if n > 0 {
		select {
		case r.spaceCh <- struct{}{}:
		default:
		}
	}
	return len(p), nil
}

// Buffered returns the amount of bytes waiting to be read.
func (r *Ring) Buffered() int {
	r.mutex.Lock()
	defer r.mutex.Unlock()
	return r.size
}

// Underruns returns how many reads had to be padded with silence.
func (r *Ring) Underruns() int {
	r.mutex.Lock()
	defer r.mutex.Unlock()
	return r.underruns
}

// Close makes further writes fail. Buffered data can still be read.
func (r *Ring) Close() error {
	r.mutex.Lock()
	defer r.mutex.Unlock()
	r.closed = true
	return nil
}
