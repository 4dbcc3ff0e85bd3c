package snd

import (
	"context"
	"math"
	"testing"
	"time"
)

func TestPlayUnavailableIsSilentNoOp(t *testing.T) {
	var gets int64
	srv := soundServer(t, &gets)
	e := newTestEngine(t, srv)

	// Primary and fallback both 404: the play must vanish without an
	// error reaching the caller.
	if inst := e.playSync("broken", PlayOptions{}); inst != nil {
		t.Fatalf("unavailable sound produced an instance")
	}
	if n := e.sched.liveCount(); n != 0 {
		t.Fatalf("live count %d", n)
	}
	// The engine keeps working for other sounds afterwards.
	if inst := e.playSync("tone", PlayOptions{}); inst == nil {
		t.Fatalf("later play failed")
	}
}

func TestPlayQueuedBehindGate(t *testing.T) {
	var gets int64
	srv := soundServer(t, &gets)
	e := New(Config{
		BaseURL:    srv.URL,
		Assets:     testAssets,
		HTTPClient: srv.Client(),
		Backend:    newHeadlessBackend(44100),
	})
	if err := e.Init(); err != nil {
		t.Fatalf("init: %v", err)
	}
	t.Cleanup(e.Close)

	e.Play("loop", PlayOptions{Loop: true})
	if n := e.gate.pendingCount(); n != 1 {
		t.Fatalf("pending %d, want 1", n)
	}
	if n := e.sched.liveCount(); n != 0 {
		t.Fatalf("sound played before gesture")
	}

	e.NotifyGesture()
	deadline := time.Now().Add(2 * time.Second)
	for e.sched.liveCount() == 0 {
		if time.Now().After(deadline) {
			t.Fatalf("queued play never started after gesture")
		}
		time.Sleep(5 * time.Millisecond)
	}
}

func TestInitIsIdempotent(t *testing.T) {
	var gets int64
	srv := soundServer(t, &gets)
	e := newTestEngine(t, srv)

	if err := e.Init(); err != nil {
		t.Fatalf("second init: %v", err)
	}
	if e.StateNow() != StateReady {
		t.Fatalf("state %v", e.StateNow())
	}
}

func TestFallbackStateStillPlays(t *testing.T) {
	var gets int64
	srv := soundServer(t, &gets)
	e := newTestEngine(t, srv)

	e.mu.Lock()
	e.state = StateFallback
	e.mu.Unlock()
	if inst := e.playSync("tone", PlayOptions{}); inst == nil {
		t.Fatalf("fallback engine refused to play")
	}
}

func TestVolumeChangesHitLivePlayers(t *testing.T) {
	var gets int64
	srv := soundServer(t, &gets)
	e := newTestEngine(t, srv)

	inst := e.playSync("loop", PlayOptions{Loop: true})
	if inst == nil {
		t.Fatalf("play failed")
	}
	e.SetMasterVolume(0.5)
	want := 1.0 * channelBaseVolume[ChannelMusic] * 1.0 * 0.5
	if got := inst.player.Volume(); math.Abs(got-want) > 1e-9 {
		t.Fatalf("volume %v, want %v", got, want)
	}

	e.SetChannelVolume(ChannelMusic, 0.5)
	want = 1.0 * channelBaseVolume[ChannelMusic] * 0.5 * 0.5
	if got := inst.player.Volume(); math.Abs(got-want) > 1e-9 {
		t.Fatalf("volume after channel change %v, want %v", got, want)
	}
}

func TestToggleMuteRoundTrip(t *testing.T) {
	var gets int64
	srv := soundServer(t, &gets)
	e := newTestEngine(t, srv)
	e.SetMasterVolume(0.7)

	inst := e.playSync("loop", PlayOptions{Loop: true})
	if inst == nil {
		t.Fatalf("play failed")
	}
	if !e.ToggleMute() {
		t.Fatalf("first toggle should mute")
	}
	if v := inst.player.Volume(); v != 0 {
		t.Fatalf("muted live player at volume %v", v)
	}
	if e.ToggleMute() {
		t.Fatalf("second toggle should unmute")
	}
	if v := e.MasterVolume(); v != 0.7 {
		t.Fatalf("master lost across mute round trip: %v", v)
	}
	if v := inst.player.Volume(); v == 0 {
		t.Fatalf("live player still silent after unmute")
	}
}

func TestFocusMuteDoesNotPersist(t *testing.T) {
	var gets int64
	srv := soundServer(t, &gets)
	e := newTestEngine(t, srv)

	inst := e.playSync("loop", PlayOptions{Loop: true})
	if inst == nil {
		t.Fatalf("play failed")
	}
	e.SetFocusMuted(true)
	if v := inst.player.Volume(); v != 0 {
		t.Fatalf("focus mute not applied: %v", v)
	}
	e.mu.Lock()
	muted := e.prefs.Muted
	e.mu.Unlock()
	if muted {
		t.Fatalf("focus mute leaked into the persisted mute preference")
	}
	e.SetFocusMuted(false)
	if v := inst.player.Volume(); v == 0 {
		t.Fatalf("player still silent after focus returned")
	}
}

func TestPreloadWarmsCache(t *testing.T) {
	var gets int64
	srv := soundServer(t, &gets)
	e := newTestEngine(t, srv)

	e.Preload("tone", "click", "loop")
	count, _ := e.cache.stats()
	if count < 3 {
		t.Fatalf("cached %d buffers, want at least 3", count)
	}
}

func TestPreloadCategory(t *testing.T) {
	var gets int64
	srv := soundServer(t, &gets)
	e := newTestEngine(t, srv)

	e.PreloadCategory(ChannelUI)
	loc, err := e.resolver.resolve(context.Background(), "click")
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}
	if e.cache.get(loc) == nil {
		t.Fatalf("ui sound not cached")
	}
}

func TestStatusSnapshot(t *testing.T) {
	var gets int64
	srv := soundServer(t, &gets)
	e := newTestEngine(t, srv)

	if e.playSync("loop", PlayOptions{Loop: true}) == nil {
		t.Fatalf("play failed")
	}
	st := e.Status()
	if st.State != StateReady {
		t.Fatalf("state %v", st.State)
	}
	if st.Buffered == 0 || st.BufferedBytes == "" {
		t.Fatalf("cache stats empty: %+v", st)
	}
	if st.LivePlayers != 1 {
		t.Fatalf("live players %d, want 1", st.LivePlayers)
	}
	if st.Uptime == "" {
		t.Fatalf("uptime empty")
	}
}

func TestVisualizationData(t *testing.T) {
	var gets int64
	srv := soundServer(t, &gets)
	e := newTestEngine(t, srv)

	if got := e.VisualizationData(8); len(got) != 8 {
		t.Fatalf("bands before playback: %v", got)
	}
	if e.playSync("tone", PlayOptions{}) == nil {
		t.Fatalf("play failed")
	}
	bands := e.VisualizationData(8)
	var energy float64
	for _, b := range bands {
		if b < 0 || b > 1 {
			t.Fatalf("band out of range: %v", bands)
		}
		energy += b
	}
	if energy == 0 {
		t.Fatalf("visualization silent after playback")
	}
}

func TestDynamicPlayEndToEnd(t *testing.T) {
	var gets int64
	srv := soundServer(t, &gets)
	e := newTestEngine(t, srv)

	e.PlayDynamic("win", 7)
	b := e.backend.(*headlessBackend)
	want := 0.535 * e.mixer.gain(ChannelEffects)
	deadline := time.Now().Add(2 * time.Second)
	for {
		b.mu.Lock()
		var found bool
		for _, p := range b.players {
			if math.Abs(p.(*headlessPlayer).Volume()-want) < 1e-9 {
				found = true
			}
		}
		b.mu.Unlock()
		if found {
			return
		}
		if time.Now().After(deadline) {
			t.Fatalf("no player at the tiered volume %v", want)
		}
		time.Sleep(5 * time.Millisecond)
	}
}

func TestSequencePlaysInOrder(t *testing.T) {
	var gets int64
	srv := soundServer(t, &gets)
	e := newTestEngine(t, srv)

	e.PlaySequence(0, "tone", "click")
	b := e.backend.(*headlessBackend)
	deadline := time.Now().Add(2 * time.Second)
	for {
		b.mu.Lock()
		n := len(b.players)
		b.mu.Unlock()
		if n >= 2 {
			break
		}
		if time.Now().After(deadline) {
			t.Fatalf("sequence incomplete, %d players", n)
		}
		time.Sleep(5 * time.Millisecond)
	}
}

func TestCloseStopsEverything(t *testing.T) {
	var gets int64
	srv := soundServer(t, &gets)
	e := newTestEngine(t, srv)

	inst := e.playSync("loop", PlayOptions{Loop: true})
	if inst == nil {
		t.Fatalf("play failed")
	}
	e.Close()
	if inst.player.IsPlaying() {
		t.Fatalf("player survived Close")
	}
	if e.StateNow() != StateUninitialized {
		t.Fatalf("state after close: %v", e.StateNow())
	}
}
