package snd

import (
	"encoding/json"
	"os"
	"sync"
)

const prefsVersion = 2

// Preferences is the persisted record of user-chosen volumes and toggles.
// A single instance exists per engine; every mutation is written back
// wholesale.
type Preferences struct {
	Version        int
	MasterVolume   float64
	ChannelVolumes map[ChannelName]float64
	Muted          bool
	SpatialAudio   bool
	Reverb         bool
	Compression    bool
}

var prefsDefault = Preferences{
	Version:      prefsVersion,
	MasterVolume: 1.0,
	ChannelVolumes: map[ChannelName]float64{
		ChannelEffects: 1.0,
		ChannelAmbient: 1.0,
		ChannelUI:      1.0,
		ChannelMusic:   1.0,
		ChannelVoice:   1.0,
	},
	SpatialAudio: true,
	Reverb:       false,
	Compression:  true,
}

func defaultPreferences() Preferences {
	p := prefsDefault
	p.ChannelVolumes = make(map[ChannelName]float64, len(prefsDefault.ChannelVolumes))
	for k, v := range prefsDefault.ChannelVolumes {
		p.ChannelVolumes[k] = v
	}
	return p
}

// clampPrefs normalizes loaded values so a hand-edited or stale file can
// never push gains outside [0,1].
func clampPrefs(p *Preferences) {
	p.MasterVolume = clamp01(p.MasterVolume)
	if p.ChannelVolumes == nil {
		p.ChannelVolumes = make(map[ChannelName]float64, len(mixChannels))
	}
	for _, ch := range mixChannels {
		if v, ok := p.ChannelVolumes[ch]; ok {
			p.ChannelVolumes[ch] = clamp01(v)
		} else {
			p.ChannelVolumes[ch] = prefsDefault.ChannelVolumes[ch]
		}
	}
}

// prefsStore persists Preferences as JSON at a well-known path.
type prefsStore struct {
	path string
	mu   sync.Mutex
}

func newPrefsStore(path string) *prefsStore {
	return &prefsStore{path: path}
}

// load reads preferences from disk, returning defaults when the file is
// absent, unreadable or from a different settings version.
func (s *prefsStore) load() Preferences {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.path == "" {
		return defaultPreferences()
	}
	data, err := os.ReadFile(s.path)
	if err != nil {
		return defaultPreferences()
	}
	p := defaultPreferences()
	if err := json.Unmarshal(data, &p); err != nil {
		logError("load preferences: %v", err)
		return defaultPreferences()
	}
	if p.Version != prefsVersion {
		return defaultPreferences()
	}
	clampPrefs(&p)
	return p
}

// save writes the preferences atomically (tmp then rename).
func (s *prefsStore) save(p Preferences) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.path == "" {
		return
	}
	p.Version = prefsVersion
	data, err := json.MarshalIndent(p, "", "  ")
	if err != nil {
		logError("save preferences: %v", err)
		return
	}
	tmp := s.path + ".tmp"
	if err := os.WriteFile(tmp, data, 0644); err != nil {
		logError("save preferences: %v", err)
		return
	}
	if err := os.Rename(tmp, s.path); err != nil {
		logError("save preferences: %v", err)
	}
}
