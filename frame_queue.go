package xrvideo

import "sync"

// FrameQueue is an ordered list of decoded frames of a single kind. The
// producer appends at the tail and the consumer removes from the head,
// there is no other access.
//
// The queue owns the platform resources of the frames it holds: popping or
// clearing a video frame deletes its image, popping or clearing an audio
// frame hands its buffer index to the release function. Each resource is
// released exactly once.
type FrameQueue struct {
	mutex   sync.Mutex
	kind    MediaKind
	frames  []MediaFrame
	closed  bool
	clock   Clock
	release func(bufferIndex int)
}

// NewVideoQueue creates a queue whose pops are gated on the frame
// presentation timestamps as seen by the given clock.
func NewVideoQueue(clock Clock) *FrameQueue {
	if clock == nil {
		clock = SystemClock()
	}
	return &FrameQueue{
		kind:   KindVideo,
		frames: make([]MediaFrame, 0, 16),
		clock:  clock,
	}
}

// NewAudioQueue creates a queue that pops unconditionally and passes the
// decoder buffer index of every removed frame to release.
func NewAudioQueue(release func(bufferIndex int)) *FrameQueue {
	if release == nil {
		release = func(int) {}
	}
	return &FrameQueue{
		kind:    KindAudio,
		frames:  make([]MediaFrame, 0, 32),
		release: release,
	}
}

// Kind returns the kind of frames the queue holds.
func (q *FrameQueue) Kind() MediaKind { return q.kind }

// Push appends a frame at the tail. Frames pushed into a cleared queue are
// released right away and false is returned.
func (q *FrameQueue) Push(frame MediaFrame) bool {
	q.mutex.Lock()
	defer q.mutex.Unlock()
	if q.closed {
		q.noLockDispose(frame)
		return false
	}
	q.frames = append(q.frames, frame)
	return true
}

// PeekFront returns the head of the queue without removing it.
func (q *FrameQueue) PeekFront() (MediaFrame, bool) {
	q.mutex.Lock()
	defer q.mutex.Unlock()
	if len(q.frames) == 0 {
		return MediaFrame{}, false
	}
	return q.frames[0], true
}

// PopFrontIfReleasable removes frame from the head of the queue if the
// release policy allows it, releasing its resource. The frame must be the
// one previously returned by [FrameQueue.PeekFront]; if the head changed
// in the meantime nothing happens.
//
// Video queues never pop their last frame, and only pop once the wall clock
// has reached the frame presentation timestamp. Audio queues always pop.
func (q *FrameQueue) PopFrontIfReleasable(frame MediaFrame) bool {
	q.mutex.Lock()
	defer q.mutex.Unlock()
	if len(q.frames) == 0 || !q.frames[0].same(frame) {
		return false
	}

	if q.kind == KindVideo {
		if len(q.frames) <= 1 {
			return false
		}
		if nowMillis(q.clock) < q.frames[0].PTS {
			return false
		}
	}

	head := q.frames[0]
	q.frames[0] = MediaFrame{}
	q.frames = q.frames[1:]
	q.noLockDispose(head)
	return true
}

// Len returns the amount of queued frames.
func (q *FrameQueue) Len() int {
	q.mutex.Lock()
	defer q.mutex.Unlock()
	return len(q.frames)
}

// Clear releases every queued frame and closes the queue: frames pushed
// afterwards are released immediately. It returns the amount of frames
// that were queued.
func (q *FrameQueue) Clear() int {
	q.mutex.Lock()
	defer q.mutex.Unlock()
	n := len(q.frames)
	for i := range q.frames {
		q.noLockDispose(q.frames[i])
		q.frames[i] = MediaFrame{}
	}
	q.frames = q.frames[:0]
	q.closed = true
	return n
}

// preconditions: q.mutex is locked
func (q *FrameQueue) noLockDispose(frame MediaFrame) {
	switch q.kind {
	case KindVideo:
		if frame.image != nil {
			frame.image.Delete()
		}
	case KindAudio:
		if frame.BufferIndex >= 0 {
			q.release(frame.BufferIndex)
		}
	}
}
