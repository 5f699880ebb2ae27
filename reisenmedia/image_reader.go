package reisenmedia

import (
	"errors"
	"sync"
	"time"

	xrvideo "github.com/erparts/go-xrvideo"
)

var errMaxImages = errors.New("maximum amount of images acquired")

// frameSink is what video decoders render into.
type frameSink interface {
	deliver(buf *xrvideo.PixelBuffer, timestamp time.Duration)
}

// ImageReader is a CPU image reader: decoded RGBA frames are delivered to
// it by the video decoder and handed out as [xrvideo.Image] values. At most
// maxImages images exist at any time, counting both pending and acquired
// ones; when the pool is full the oldest pending image is dropped.
//
// The image listener runs on a goroutine owned by the reader.
type ImageReader struct {
	mutex     sync.Mutex
	maxImages int
	pending   []*cpuImage
	acquired  int
	dropped   int
	closed    bool
	listener  func()

	notifyCh chan struct{}
	doneCh   chan struct{}
	wg       sync.WaitGroup
}

// NewImageReader creates a reader holding up to maxImages images.
func NewImageReader(maxImages int) *ImageReader {
	if maxImages < 1 {
		maxImages = 1
	}
	r := &ImageReader{
		maxImages: maxImages,
		pending:   make([]*cpuImage, 0, maxImages),
		notifyCh:  make(chan struct{}, 1),
		doneCh:    make(chan struct{}),
	}
	r.wg.Add(1)
	go r.listenLoop()
	return r
}

// Surface returns the reader itself. Video decoders of this package render
// into it.
func (r *ImageReader) Surface() xrvideo.Surface { return r }

// SetImageListener sets the callback invoked when new images are available.
// Several deliveries can be coalesced in a single call.
func (r *ImageReader) SetImageListener(listener func()) {
	r.mutex.Lock()
	defer r.mutex.Unlock()
	r.listener = listener
}

// AcquireLatestImage returns the most recent pending image and drops the
// older ones. It fails with [xrvideo.ErrNoImage] when nothing is pending.
func (r *ImageReader) AcquireLatestImage() (xrvideo.Image, error) {
	r.mutex.Lock()
	defer r.mutex.Unlock()
	if r.closed {
		return nil, xrvideo.ErrClosed
	}
	if len(r.pending) == 0 {
		return nil, xrvideo.ErrNoImage
	}
	if r.acquired >= r.maxImages {
		return nil, errMaxImages
	}

	latest := r.pending[len(r.pending)-1]
	r.dropped += len(r.pending) - 1
	clear(r.pending)
	r.pending = r.pending[:0]
	r.acquired += 1
	return latest, nil
}

// Dropped returns the amount of images discarded without being acquired.
func (r *ImageReader) Dropped() int {
	r.mutex.Lock()
	defer r.mutex.Unlock()
	return r.dropped
}

// Close stops the listener goroutine and drops pending images. Images
// acquired before can still be deleted afterwards.
func (r *ImageReader) Close() error {
	r.mutex.Lock()
	if r.closed {
		r.mutex.Unlock()
		return nil
	}
	r.closed = true
	clear(r.pending)
	r.pending = r.pending[:0]
	r.mutex.Unlock()

	close(r.doneCh)
	r.wg.Wait()
	return nil
}

func (r *ImageReader) deliver(buf *xrvideo.PixelBuffer, timestamp time.Duration) {
	r.mutex.Lock()
	if r.closed {
		r.mutex.Unlock()
		return
	}
	if len(r.pending)+r.acquired >= r.maxImages {
		if len(r.pending) == 0 {
			// every image is held by the consumer
			r.dropped += 1
			r.mutex.Unlock()
			log.Debug().Int(lImages, r.acquired).Msg("image pool exhausted, frame dropped")
			return
		}
		copy(r.pending, r.pending[1:])
		r.pending[len(r.pending)-1] = nil
		r.pending = r.pending[:len(r.pending)-1]
		r.dropped += 1
	}
	r.pending = append(r.pending, &cpuImage{reader: r, buf: buf, timestamp: timestamp})
	r.mutex.Unlock()

	select {
	case r.notifyCh <- struct{}{}:
	default: // already notified
	}
}

func (r *ImageReader) listenLoop() {
	defer r.wg.Done()
	for {
		select {
		case <-r.doneCh:
			return
		case <-r.notifyCh:
		}
		r.mutex.Lock()
		listener := r.listener
		r.mutex.Unlock()
		if listener != nil {
			listener()
		}
	}
}

func (r *ImageReader) releaseImage() {
	r.mutex.Lock()
	r.acquired -= 1
	r.mutex.Unlock()
}

type cpuImage struct {
	reader    *ImageReader
	buf       *xrvideo.PixelBuffer
	timestamp time.Duration
	once      sync.Once
	deleted   bool
}

func (img *cpuImage) Timestamp() int64 { return img.timestamp.Nanoseconds() }
func (img *cpuImage) Width() int       { return img.buf.Width }
func (img *cpuImage) Height() int      { return img.buf.Height }

// HardwareBuffer returns the *[xrvideo.PixelBuffer] holding the RGBA pixels.
func (img *cpuImage) HardwareBuffer() (xrvideo.HardwareBuffer, error) {
	img.reader.mutex.Lock()
	deleted := img.deleted
	img.reader.mutex.Unlock()
	if deleted {
		return nil, errors.New("image already deleted")
	}
	return img.buf, nil
}

func (img *cpuImage) Delete() {
	img.once.Do(func() {
		img.reader.mutex.Lock()
		img.deleted = true
		img.reader.mutex.Unlock()
		img.reader.releaseImage()
	})
}
