// Package snd implements the casino audio engine: asset resolution with
// fallbacks, a deduplicated decode cache, a fixed six-channel mixer with
// compression and a convolution reverb send, per-play spatialization,
// round-robin pools for rapid retrigger sounds, a gesture gate for
// platforms that block autoplay, and persistent user preferences.
//
// Sound failures never propagate to game code: a sound that cannot be
// fetched, decoded or played logs and no-ops.
package snd

import (
	"errors"
	"time"
)

// ChannelName identifies one of the fixed mixing buses.
type ChannelName string

const (
	ChannelMaster  ChannelName = "master"
	ChannelEffects ChannelName = "effects"
	ChannelAmbient ChannelName = "ambient"
	ChannelUI      ChannelName = "ui"
	ChannelMusic   ChannelName = "music"
	ChannelVoice   ChannelName = "voice"
)

// mixChannels lists the buses that feed the master stage. Master itself is
// not in the list; it is the output gain.
var mixChannels = []ChannelName{
	ChannelEffects, ChannelAmbient, ChannelUI, ChannelMusic, ChannelVoice,
}

func validChannel(ch ChannelName) bool {
	for _, c := range mixChannels {
		if c == ch {
			return true
		}
	}
	return false
}

var (
	// ErrAssetUnavailable means fetch or decode failed and no fallback
	// location remains.
	ErrAssetUnavailable = errors.New("snd: asset unavailable")

	// ErrUnsupportedFeature means the runtime lacks an advanced feature
	// (reported once, then degraded silently).
	ErrUnsupportedFeature = errors.New("snd: unsupported feature")

	// ErrPlatformBlocked means playback is deferred until a user gesture
	// unlocks the platform. Not a failure; queued actions run on unlock.
	ErrPlatformBlocked = errors.New("snd: platform blocked until gesture")

	// ErrInitFailed means engine initialization failed and the engine is
	// permanently in fallback mode.
	ErrInitFailed = errors.New("snd: initialization failed")
)

// Position is a 3-D sound position relative to the listener at the origin.
// X is right, Y is up, Z is toward the listener.
type Position struct {
	X, Y, Z float64
}

// Cone describes directional emission for a spatialized playback.
// Angles are degrees; OuterGain is the floor applied outside OuterAngle.
type Cone struct {
	InnerAngle float64
	OuterAngle float64
	OuterGain  float64
}

// DecodedBuffer holds ready-to-play PCM: interleaved 16-bit little-endian
// stereo at the engine sample rate. Buffers are shared read-only between
// playbacks; pipelines copy before processing.
type DecodedBuffer struct {
	PCM      []byte
	Duration time.Duration
}

func bufferDuration(pcmLen, sampleRate int) time.Duration {
	frames := pcmLen / 4
	if sampleRate <= 0 {
		return 0
	}
	return time.Duration(frames) * time.Second / time.Duration(sampleRate)
}
