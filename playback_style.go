package xrvideo

import (
	"fmt"
	"strings"
)

// PlaybackStyle selects how video content is laid out in the scene.
type PlaybackStyle uint8

const (
	StyleNone PlaybackStyle = iota
	StyleFlat2D
	StyleFlat2D180
	StyleFlat2D360
	StyleStereoSideBySide
	StyleStereoSideBySide360
	StyleStereoTopBottom
	StyleStereoTopBottom360
)

var styleNames = [...]string{
	StyleNone:                "none",
	StyleFlat2D:              "2d",
	StyleFlat2D180:           "2d-180",
	StyleFlat2D360:           "2d-360",
	StyleStereoSideBySide:    "sbs",
	StyleStereoSideBySide360: "sbs-360",
	StyleStereoTopBottom:     "tb",
	StyleStereoTopBottom360:  "tb-360",
}

func (s PlaybackStyle) String() string {
	if int(s) < len(styleNames) {
		return styleNames[s]
	}
	return "unknown"
}

// ParsePlaybackStyle parses the names returned by [PlaybackStyle.String].
func ParsePlaybackStyle(name string) (PlaybackStyle, error) {
	name = strings.ToLower(strings.TrimSpace(name))
	for i, n := range styleNames {
		if n == name {
			return PlaybackStyle(i), nil
		}
	}
	return StyleNone, fmt.Errorf("unknown playback style %q", name)
}

// IsStereo reports whether the style carries one image per eye.
func (s PlaybackStyle) IsStereo() bool {
	return s >= StyleStereoSideBySide && s <= StyleStereoTopBottom360
}

// IsSpherical reports whether the style is projected on a sphere section.
func (s PlaybackStyle) IsSpherical() bool {
	switch s {
	case StyleFlat2D180, StyleFlat2D360, StyleStereoSideBySide360, StyleStereoTopBottom360:
		return true
	default:
		return false
	}
}

// Eye identifies the view being rendered.
type Eye int

const (
	EyeLeft Eye = iota
	EyeRight
)
