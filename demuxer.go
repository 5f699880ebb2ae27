package xrvideo

import (
	"fmt"
	"path/filepath"
	"strings"
)

// TrackDemuxer wraps a single media source: it exposes the track metadata
// and pulls compressed samples out of it. It is owned by the decode
// goroutine once playback starts.
type TrackDemuxer struct {
	path      string
	extractor Extractor
	tracks    []TrackFormat
	closed    bool
}

// TrackInfo is the track selection made at start. It is read-only until the
// next start.
type TrackInfo struct {
	VideoTrack      int
	AudioTrack      int // negative if there's no audio
	VideoDurationMs int64
	SampleRate      int
	ChannelCount    int

	VideoFormat TrackFormat
	AudioFormat TrackFormat
}

// HasAudio reports whether an audio track was selected.
func (t TrackInfo) HasAudio() bool { return t.AudioTrack >= 0 }

// OpenDemuxer opens the media file at path. It fails if the file can't be
// opened or contains no tracks at all.
func OpenDemuxer(backend MediaBackend, path string) (*TrackDemuxer, error) {
	extractor, err := backend.OpenExtractor(path)
	if err != nil {
		return nil, fmt.Errorf("opening '%s': %w", filepath.Base(path), err)
	}

	count := extractor.TrackCount()
	if count <= 0 {
		_ = extractor.Close()
		return nil, ErrNoTracks
	}

	tracks := make([]TrackFormat, 0, count)
	for i := 0; i < count; i++ {
		format, err := extractor.TrackFormat(i)
		if err != nil {
			_ = extractor.Close()
			return nil, fmt.Errorf("reading track %d format: %w", i, err)
		}
		tracks = append(tracks, format)
	}

	return &TrackDemuxer{
		path:      path,
		extractor: extractor,
		tracks:    tracks,
	}, nil
}

// Path returns the path the demuxer was opened with.
func (d *TrackDemuxer) Path() string { return d.path }

// TrackCount returns the amount of tracks in the source.
func (d *TrackDemuxer) TrackCount() int { return len(d.tracks) }

// Track returns the format of the given track.
func (d *TrackDemuxer) Track(index int) TrackFormat { return d.tracks[index] }

// IsVideo reports whether the given track carries video.
func (d *TrackDemuxer) IsVideo(index int) bool {
	return strings.HasPrefix(d.tracks[index].Mime, "video/")
}

// IsAudio reports whether the given track carries audio.
func (d *TrackDemuxer) IsAudio(index int) bool {
	return strings.HasPrefix(d.tracks[index].Mime, "audio/")
}

// SelectTrack makes samples of the given track show up while pulling.
func (d *TrackDemuxer) SelectTrack(index int) error {
	return d.extractor.SelectTrack(index)
}

// CurrentTrackIndex returns the track of the next sample, [TrackPending]
// while none is available yet, or another negative value once the source is
// exhausted.
func (d *TrackDemuxer) CurrentTrackIndex() int {
	return d.extractor.SampleTrackIndex()
}

// CurrentSampleTimestamp returns the next sample timestamp, in microseconds.
func (d *TrackDemuxer) CurrentSampleTimestamp() int64 {
	return d.extractor.SampleTime()
}

// ReadSample copies the next sample into buf.
func (d *TrackDemuxer) ReadSample(buf []byte) (int, error) {
	return d.extractor.ReadSampleData(buf)
}

// Advance moves to the next sample.
func (d *TrackDemuxer) Advance() bool {
	return d.extractor.Advance()
}

// Seek moves the pull cursor to the given time.
func (d *TrackDemuxer) Seek(timeUs int64, mode SeekMode) error {
	return d.extractor.SeekTo(timeUs, mode)
}

// Close releases the underlying source. Calling it more than once is safe.
func (d *TrackDemuxer) Close() error {
	if d.closed {
		return nil
	}
	d.closed = true
	return d.extractor.Close()
}

// selectTracks picks the first video track and, unless withAudio is false,
// the first audio track. A source without video fails with [ErrNoVideo].
func (d *TrackDemuxer) selectTracks(withAudio bool) (TrackInfo, error) {
	info := TrackInfo{VideoTrack: -1, AudioTrack: -1}
	name := filepath.Base(d.path)
	for i := range d.tracks {
		switch {
		case d.IsVideo(i):
			if info.VideoTrack >= 0 {
				logWarnf("'%s' has multiple video tracks; defaulting to the first", name)
				continue
			}
			info.VideoTrack = i
			info.VideoFormat = d.tracks[i]
			info.VideoDurationMs = d.tracks[i].DurationUs / 1000
		case d.IsAudio(i):
			if !withAudio {
				continue
			}
			if info.AudioTrack >= 0 {
				logWarnf("'%s' has multiple audio tracks; defaulting to the first", name)
				continue
			}
			info.AudioTrack = i
			info.AudioFormat = d.tracks[i]
			info.SampleRate = d.tracks[i].SampleRate
			info.ChannelCount = d.tracks[i].ChannelCount
		default:
			logDebugf("'%s' track %d (%s) ignored", name, i, d.tracks[i].Mime)
		}
	}
	if info.VideoTrack < 0 {
		return info, ErrNoVideo
	}
	if info.HasAudio() && (info.SampleRate <= 0 || info.ChannelCount <= 0) {
		logWarnf("'%s' audio track has no usable format (rate=%d, channels=%d); ignoring audio",
			name, info.SampleRate, info.ChannelCount)
		info.AudioTrack = -1
	}
	return info, nil
}
