package snd

import "sync"

// Per-channel base gains applied under the user volume so the default mix
// sits well together (ambience below effects, voice on top).
var channelBaseVolume = map[ChannelName]float64{
	ChannelEffects: 1.0,
	ChannelAmbient: 0.5,
	ChannelUI:      0.8,
	ChannelMusic:   0.7,
	ChannelVoice:   1.0,
}

type channelStrip struct {
	name ChannelName
	base float64
	user float64
}

// mixer owns the fixed gain topology: five named channels feeding the
// shared compressor and master stage. Gains are plain numbers here; the
// scheduler applies them to live players, and the per-play pipeline applies
// compression and the reverb send to the PCM itself.
type mixer struct {
	mu         sync.Mutex
	master     float64
	muted      bool
	focusMuted bool
	channels   map[ChannelName]*channelStrip
}

func newMixer(prefs Preferences) *mixer {
	m := &mixer{
		master:   clamp01(prefs.MasterVolume),
		muted:    prefs.Muted,
		channels: make(map[ChannelName]*channelStrip, len(mixChannels)),
	}
	for _, name := range mixChannels {
		m.channels[name] = &channelStrip{
			name: name,
			base: channelBaseVolume[name],
			user: clamp01(prefs.ChannelVolumes[name]),
		}
	}
	return m
}

// gain returns the effective gain for a channel: base × user × master,
// zero while muted. Always in [0,1].
func (m *mixer) gain(ch ChannelName) float64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.muted || m.focusMuted {
		return 0
	}
	strip, ok := m.channels[ch]
	if !ok {
		return m.master
	}
	return strip.base * strip.user * m.master
}

func (m *mixer) setChannelVolume(ch ChannelName, v float64) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	strip, ok := m.channels[ch]
	if !ok {
		return false
	}
	strip.user = clamp01(v)
	return true
}

func (m *mixer) channelVolume(ch ChannelName) float64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	if strip, ok := m.channels[ch]; ok {
		return strip.user
	}
	return 0
}

func (m *mixer) setMasterVolume(v float64) {
	m.mu.Lock()
	m.master = clamp01(v)
	m.mu.Unlock()
}

func (m *mixer) masterVolume() float64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.master
}

// toggleMute flips the mute state and returns the new state. The master
// preference is retained so unmuting restores the prior level.
func (m *mixer) toggleMute() bool {
	m.mu.Lock()
	m.muted = !m.muted
	muted := m.muted
	m.mu.Unlock()
	return muted
}

func (m *mixer) isMuted() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.muted
}

// setFocusMuted silences output while the host window is unfocused without
// touching the persisted mute preference.
func (m *mixer) setFocusMuted(fm bool) {
	m.mu.Lock()
	m.focusMuted = fm
	m.mu.Unlock()
}
