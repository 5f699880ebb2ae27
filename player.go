package xrvideo

import (
	"errors"
	"fmt"
	"path/filepath"
	"sync"
	"sync/atomic"

	"github.com/go-gl/mathgl/mgl32"
	"github.com/google/uuid"
)

// Errors returned by [Player] and the backends. Decoder and file specific
// errors are wrapped around them or returned as they are.
var (
	ErrNotInitialized    = errors.New("player is not initialized")
	ErrNoTracks          = errors.New("file doesn't include any track")
	ErrNoVideo           = errors.New("file doesn't include any video track")
	ErrTooManyChannels   = errors.New("audio tracks with more than 2 channels are not supported")
	ErrUnsupportedBuffer = errors.New("unsupported hardware buffer")
	ErrNoImage           = errors.New("no image available")
	ErrClosed            = errors.New("player is closed")
)

// A [Player] plays a local media file into a VR scene.
//
// Decoding happens on a dedicated goroutine, audio is written to the output
// stream from another one, and video frames are drawn by [Player.Render] on
// the render thread, once per eye, as their presentation time is reached.
// Playback loops until [Player.Stop] is called.
//
// Usage:
//   - Create a [NewPlayer]() with the platform backends.
//   - Call [Player.Initialize]() once on the render thread.
//   - Call [Player.Start]() with a file path.
//   - Call [Player.Render]() for each eye on every frame.
//
// Initialize, SetPlaybackStyle, SetModel, Render and RenderView must be
// called from the render thread. Start, Stop, Stats and Close can be called
// from any goroutine.
type Player struct {
	cfg    Config
	media  MediaBackend
	audio  AudioBackend
	gpu    GPU
	clock  Clock
	bridge presentationBridge

	mutex       sync.Mutex // serializes Start, Stop and Close
	session     atomic.Pointer[playbackSession]
	initialized atomic.Bool
	closed      atomic.Bool

	// presentMutex keeps Stop from releasing frames while Render draws one,
	// and Close from dropping the geometry in use
	presentMutex sync.Mutex
	style        PlaybackStyle // guarded by presentMutex
	mesh         *Mesh         // guarded by presentMutex

	// render thread state
	model mgl32.Mat4
}

// playbackSession is everything created by a single successful Start.
type playbackSession struct {
	id      string
	path    string
	demuxer *TrackDemuxer
	tracks  TrackInfo
	decoder *decodePipeline
	output  *audioOutputLoop // nil without audio
}

// NewPlayer creates a player on top of the given backends. The audio
// backend can be nil to play video only. A nil clock means [SystemClock].
func NewPlayer(cfg Config, media MediaBackend, audio AudioBackend, gpu GPU, clock Clock) (*Player, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	if media == nil || gpu == nil {
		return nil, errors.New("media backend and gpu are required")
	}
	if clock == nil {
		clock = SystemClock()
	}
	return &Player{
		cfg:    cfg,
		media:  media,
		audio:  audio,
		gpu:    gpu,
		clock:  clock,
		bridge: presentationBridge{gpu: gpu},
		model:  mgl32.Ident4(),
	}, nil
}

// --- render thread ---

// Initialize sets up the GPU resources with the given display handle and
// uploads the initial [StyleFlat2D360] geometry. It must be called before
// [Player.Start]. Calling it again once it succeeded does nothing.
func (p *Player) Initialize(display any) error {
	if p.closed.Load() {
		return ErrClosed
	}
	if p.initialized.Load() {
		return nil
	}
	if err := p.gpu.Init(display); err != nil {
		return fmt.Errorf("initializing gpu: %w", err)
	}
	p.initialized.Store(true)
	if err := p.SetPlaybackStyle(StyleFlat2D360); err != nil {
		p.initialized.Store(false)
		return err
	}
	return nil
}

// SetPlaybackStyle regenerates and uploads the geometry for the given style.
// Setting the current style again does nothing. On upload failure the
// previous style stays active.
func (p *Player) SetPlaybackStyle(style PlaybackStyle) error {
	if !p.initialized.Load() {
		return ErrNotInitialized
	}
	p.presentMutex.Lock()
	defer p.presentMutex.Unlock()
	if p.closed.Load() {
		return ErrClosed
	}
	if style == p.style && p.mesh != nil {
		return nil
	}

	mesh := BuildMesh(style)
	if err := p.gpu.UploadMesh(mesh); err != nil {
		return fmt.Errorf("uploading %s geometry: %w", style, err)
	}
	p.style = style
	p.mesh = mesh
	logDebugf("playback style set to %s (%d vertices, %d indices)", style, len(mesh.Vertices), len(mesh.Indices))
	return nil
}

// PlaybackStyle returns the active playback style.
func (p *Player) PlaybackStyle() PlaybackStyle {
	p.presentMutex.Lock()
	defer p.presentMutex.Unlock()
	return p.style
}

// SetModel sets the model matrix used by [Player.RenderView].
func (p *Player) SetModel(model mgl32.Mat4) { p.model = model }

// RenderView is like [Player.Render] with the matrix given to
// [Player.SetModel], identity by default.
func (p *Player) RenderView(projection, view mgl32.Mat4, eye Eye) bool {
	return p.Render(projection, view, p.model, eye)
}

// Render draws the video frame at the head of the queue for the given eye
// and, if its presentation time has been reached and a newer frame is
// available, releases it. It returns false when nothing was drawn, and the
// caller keeps the previous framebuffer contents.
func (p *Player) Render(projection, view, model mgl32.Mat4, eye Eye) bool {
	if !p.initialized.Load() {
		return false
	}
	session := p.session.Load()
	if session == nil {
		return false
	}

	p.presentMutex.Lock()
	defer p.presentMutex.Unlock()
	if p.mesh.Empty() {
		return false
	}
	queue := session.decoder.videoQueue
	frame, ok := queue.PeekFront()
	if !ok {
		return false
	}

	call := DrawCall{
		Projection: projection,
		View:       view,
		Model:      model,
		UVSet:      uvSetFor(p.style, eye),
	}
	if !p.bridge.present(frame, call) {
		// kept for the next render
		return false
	}
	queue.PopFrontIfReleasable(frame)
	return true
}

// --- playback control ---

// Start plays the file at path, looping. If the same file is already
// playing nothing happens. Otherwise the new file is opened and its decoders
// started, and only then the current playback is stopped and replaced: when
// Start fails, whatever was playing keeps playing.
//
// Audio is played when the file has an audio track and an output stream can
// be opened for it. Otherwise the file plays without sound.
func (p *Player) Start(path string) error {
	p.mutex.Lock()
	defer p.mutex.Unlock()
	if p.closed.Load() {
		return ErrClosed
	}
	if !p.initialized.Load() {
		return ErrNotInitialized
	}
	if current := p.session.Load(); current != nil && current.path == path {
		return nil
	}

	next, err := p.openSession(path)
	if err != nil {
		return err
	}
	p.noLockStop()
	p.session.Store(next)
	next.launch()
	logInfof("[%s] playing '%s' (video track %d, audio track %d)",
		next.id, filepath.Base(path), next.tracks.VideoTrack, next.tracks.AudioTrack)
	return nil
}

// Stop ends the current playback: both loops are stopped and joined, every
// queued frame is released and the file is closed. It's safe to call when
// nothing is playing.
func (p *Player) Stop() {
	p.mutex.Lock()
	defer p.mutex.Unlock()
	p.noLockStop()
}

// Close stops playback and drops the geometry. The player can't be used
// afterwards.
func (p *Player) Close() error {
	p.mutex.Lock()
	defer p.mutex.Unlock()
	if p.closed.Swap(true) {
		return nil
	}
	p.noLockStop()
	p.presentMutex.Lock()
	p.mesh = nil
	p.style = StyleNone
	p.presentMutex.Unlock()
	return nil
}

// Playing reports whether a file is being played.
func (p *Player) Playing() bool { return p.session.Load() != nil }

// Path returns the file being played, empty if none.
func (p *Player) Path() string {
	if s := p.session.Load(); s != nil {
		return s.path
	}
	return ""
}

// Stats is a snapshot of the playback state.
type Stats struct {
	Session           string
	Path              string
	State             PipelineState
	HasAudio          bool
	QueuedVideoFrames int
	QueuedAudioFrames int
	Loops             int64
	ShortAudioWrites  int64
}

// Stats returns a snapshot of the current playback. The zero value (with
// State Idle) is returned when nothing is playing.
func (p *Player) Stats() Stats {
	s := p.session.Load()
	if s == nil {
		return Stats{State: Idle}
	}
	stats := Stats{
		Session:           s.id,
		Path:              s.path,
		State:             s.decoder.State(),
		HasAudio:          s.output != nil,
		QueuedVideoFrames: s.decoder.videoQueue.Len(),
		QueuedAudioFrames: s.decoder.audioQueue.Len(),
		Loops:             s.decoder.Loops(),
	}
	if s.output != nil {
		stats.ShortAudioWrites = s.output.shortWrites.Load()
	}
	return stats
}

// --- internal ---

// openSession opens the file, picks its tracks and prepares the decoders
// without launching anything. On failure everything is released again.
func (p *Player) openSession(path string) (*playbackSession, error) {
	demuxer, err := OpenDemuxer(p.media, path)
	if err != nil {
		return nil, err
	}

	withAudio := p.audio != nil && !p.cfg.DisableAudio
	tracks, err := demuxer.selectTracks(withAudio)
	if err != nil {
		_ = demuxer.Close()
		return nil, fmt.Errorf("'%s': %w", filepath.Base(path), err)
	}

	id := uuid.NewString()
	var stream AudioStream
	if tracks.HasAudio() {
		stream, err = p.audio.OpenStream(AudioStreamConfig{
			SampleRate:             tracks.SampleRate,
			ChannelCount:           tracks.ChannelCount,
			BufferCapacityInFrames: p.cfg.AudioBufferCapacity,
			SharingMode:            p.cfg.AudioSharingMode,
			LowLatency:             p.cfg.AudioLowLatency,
		})
		if err != nil {
			logWarnf("[%s] opening audio stream for '%s': %v; playing without audio", id, filepath.Base(path), err)
			tracks.AudioTrack = -1
			stream = nil
		}
	}

	decoder := newDecodePipeline(p.cfg, p.clock, p.media, demuxer, id)
	if err := decoder.prepare(tracks); err != nil {
		if stream != nil {
			_ = stream.Close()
		}
		_ = demuxer.Close()
		return nil, fmt.Errorf("'%s': %w", filepath.Base(path), err)
	}

	session := &playbackSession{
		id:      id,
		path:    path,
		demuxer: demuxer,
		tracks:  tracks,
		decoder: decoder,
	}
	if stream != nil {
		session.output = newAudioOutputLoop(decoder.audioQueue, stream, tracks, p.cfg.AudioInterval, id)
	}
	return session, nil
}

// preconditions: p.mutex is locked
func (p *Player) noLockStop() {
	session := p.session.Swap(nil)
	if session == nil {
		return
	}

	session.decoder.requestStop()
	if session.output != nil {
		session.output.requestStop()
	}
	session.decoder.wait()
	if session.output != nil {
		session.output.wait()
	}

	p.presentMutex.Lock()
	videoFrames := session.decoder.videoQueue.Clear()
	p.presentMutex.Unlock()
	audioFrames := session.decoder.audioQueue.Clear()

	session.decoder.teardown()
	if err := session.demuxer.Close(); err != nil {
		logWarnf("[%s] closing '%s': %v", session.id, filepath.Base(session.path), err)
	}
	logInfof("[%s] stopped '%s' (%d video and %d audio frames released)",
		session.id, filepath.Base(session.path), videoFrames, audioFrames)
}

func (s *playbackSession) launch() {
	s.decoder.launch()
	if s.output != nil {
		s.output.start()
	}
}
