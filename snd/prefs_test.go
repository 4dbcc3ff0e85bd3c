package snd

import (
	"os"
	"path/filepath"
	"testing"
)

func TestPrefsDefaultsWhenMissing(t *testing.T) {
	s := newPrefsStore(filepath.Join(t.TempDir(), "nope.json"))
	p := s.load()
	if p.MasterVolume != 1 || p.Muted || !p.SpatialAudio {
		t.Fatalf("unexpected defaults: %+v", p)
	}
	if len(p.ChannelVolumes) != len(mixChannels) {
		t.Fatalf("channel volumes incomplete: %+v", p.ChannelVolumes)
	}
}

func TestPrefsRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "prefs.json")
	s := newPrefsStore(path)

	p := defaultPreferences()
	p.MasterVolume = 0.4
	p.ChannelVolumes[ChannelMusic] = 0.25
	p.Muted = true
	p.Reverb = true
	s.save(p)

	got := newPrefsStore(path).load()
	if got.MasterVolume != 0.4 {
		t.Fatalf("master %v", got.MasterVolume)
	}
	if got.ChannelVolumes[ChannelMusic] != 0.25 {
		t.Fatalf("music %v", got.ChannelVolumes[ChannelMusic])
	}
	if !got.Muted || !got.Reverb {
		t.Fatalf("toggles lost: %+v", got)
	}
}

func TestPrefsVersionMismatchResets(t *testing.T) {
	path := filepath.Join(t.TempDir(), "prefs.json")
	if err := os.WriteFile(path, []byte(`{"Version":1,"MasterVolume":0.1}`), 0644); err != nil {
		t.Fatalf("write: %v", err)
	}
	p := newPrefsStore(path).load()
	if p.MasterVolume != 1 {
		t.Fatalf("stale version not reset: %+v", p)
	}
}

func TestPrefsCorruptFileResets(t *testing.T) {
	path := filepath.Join(t.TempDir(), "prefs.json")
	if err := os.WriteFile(path, []byte("{garbage"), 0644); err != nil {
		t.Fatalf("write: %v", err)
	}
	p := newPrefsStore(path).load()
	if p.MasterVolume != 1 {
		t.Fatalf("corrupt file not reset: %+v", p)
	}
}

func TestPrefsClampLoadedValues(t *testing.T) {
	path := filepath.Join(t.TempDir(), "prefs.json")
	data := `{"Version":2,"MasterVolume":4.2,"ChannelVolumes":{"music":-3}}`
	if err := os.WriteFile(path, []byte(data), 0644); err != nil {
		t.Fatalf("write: %v", err)
	}
	p := newPrefsStore(path).load()
	if p.MasterVolume != 1 {
		t.Fatalf("master not clamped: %v", p.MasterVolume)
	}
	if p.ChannelVolumes[ChannelMusic] != 0 {
		t.Fatalf("music not clamped: %v", p.ChannelVolumes[ChannelMusic])
	}
	if p.ChannelVolumes[ChannelEffects] != 1 {
		t.Fatalf("absent channel not defaulted: %v", p.ChannelVolumes[ChannelEffects])
	}
}
