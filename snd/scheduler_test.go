package snd

import (
	"math"
	"net/http/httptest"
	"path/filepath"
	"sync"
	"testing"
	"time"
)

var testAssets = []SoundAsset{
	{Name: "tone", Primary: "tone.wav", Category: ChannelEffects},
	{Name: "winMedium", Primary: "win_medium.wav", Category: ChannelEffects},
	{Name: "click", Primary: "click.wav", Category: ChannelUI},
	{Name: "loop", Primary: "loop.wav", Category: ChannelMusic},
	{Name: "broken", Primary: "missing.wav", Fallback: "missing2.wav", Category: ChannelEffects},
}

func newTestEngine(t *testing.T, srv *httptest.Server) *Engine {
	t.Helper()
	e := New(Config{
		BaseURL:    srv.URL,
		PrefsPath:  filepath.Join(t.TempDir(), "prefs.json"),
		Assets:     testAssets,
		HTTPClient: srv.Client(),
		Backend:    newHeadlessBackend(44100),
	})
	if err := e.Init(); err != nil {
		t.Fatalf("init: %v", err)
	}
	e.NotifyGesture()
	t.Cleanup(e.Close)
	return e
}

func TestPipelineStageOrder(t *testing.T) {
	var gets int64
	srv := soundServer(t, &gets)
	e := newTestEngine(t, srv)
	e.SetReverb(true)

	opts := PlayOptions{
		Rate:     1.25,
		FadeIn:   10 * time.Millisecond,
		Spatial:  true,
		Position: &Position{X: 30, Z: -40},
		Reverb:   true,
	}
	opts.normalize(ChannelEffects)
	got := stageNames(e.buildPipeline(opts))
	want := []string{"rate", "envelope", "spatial", "reverb", "compressor"}
	if len(got) != len(want) {
		t.Fatalf("stages %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("stages %v, want %v", got, want)
		}
	}
}

func TestPipelinePlainPlayIsCompressorOnly(t *testing.T) {
	var gets int64
	srv := soundServer(t, &gets)
	e := newTestEngine(t, srv)

	opts := PlayOptions{}
	opts.normalize(ChannelEffects)
	got := stageNames(e.buildPipeline(opts))
	if len(got) != 1 || got[0] != "compressor" {
		t.Fatalf("stages %v, want [compressor]", got)
	}
}

func TestPipelinePanWithoutSpatialPref(t *testing.T) {
	var gets int64
	srv := soundServer(t, &gets)
	e := newTestEngine(t, srv)
	e.SetSpatialAudio(false)

	opts := PlayOptions{Spatial: true, Position: &Position{X: 10}, Pan: 0.5}
	opts.normalize(ChannelEffects)
	got := stageNames(e.buildPipeline(opts))
	for _, name := range got {
		if name == "spatial" {
			t.Fatalf("spatial stage present with preference off: %v", got)
		}
	}
	found := false
	for _, name := range got {
		if name == "pan" {
			found = true
		}
	}
	if !found {
		t.Fatalf("pan stage missing: %v", got)
	}
}

func TestScheduleAppliesVolume(t *testing.T) {
	var gets int64
	srv := soundServer(t, &gets)
	e := newTestEngine(t, srv)

	inst := e.playSync("winMedium", PlayOptions{Volume: dynamicVolume(7)})
	if inst == nil {
		t.Fatalf("play failed")
	}
	want := 0.535 * e.mixer.gain(ChannelEffects)
	if got := inst.player.Volume(); math.Abs(got-want) > 1e-9 {
		t.Fatalf("player volume %v, want %v", got, want)
	}
}

func TestCancelAndRestartSameID(t *testing.T) {
	var gets int64
	srv := soundServer(t, &gets)
	e := newTestEngine(t, srv)

	first := e.playSync("loop", PlayOptions{ID: "music", Loop: true})
	if first == nil {
		t.Fatalf("first play failed")
	}
	second := e.playSync("loop", PlayOptions{ID: "music", Loop: true})
	if second == nil {
		t.Fatalf("second play failed")
	}
	if first.player.IsPlaying() {
		t.Fatalf("prior instance still playing after restart")
	}
	if !second.player.IsPlaying() {
		t.Fatalf("new instance not playing")
	}
	if n := e.sched.liveCount(); n != 1 {
		t.Fatalf("live count %d, want 1", n)
	}
}

func TestStopID(t *testing.T) {
	var gets int64
	srv := soundServer(t, &gets)
	e := newTestEngine(t, srv)

	inst := e.playSync("loop", PlayOptions{ID: "ambience", Loop: true})
	if inst == nil {
		t.Fatalf("play failed")
	}
	e.Stop("ambience")
	if inst.player.IsPlaying() {
		t.Fatalf("instance still playing after Stop")
	}
	// Stopping an unknown id is a no-op.
	e.Stop("nothing")
}

func TestStopAll(t *testing.T) {
	var gets int64
	srv := soundServer(t, &gets)
	e := newTestEngine(t, srv)

	a := e.playSync("loop", PlayOptions{Loop: true})
	b := e.playSync("tone", PlayOptions{Loop: true})
	if a == nil || b == nil {
		t.Fatalf("plays failed")
	}
	e.StopAll()
	if a.player.IsPlaying() || b.player.IsPlaying() {
		t.Fatalf("players still live after StopAll")
	}
	if n := e.sched.liveCount(); n != 0 {
		t.Fatalf("live count %d after StopAll", n)
	}
}

func TestDelayedStart(t *testing.T) {
	var gets int64
	srv := soundServer(t, &gets)
	e := newTestEngine(t, srv)

	inst := e.playSync("loop", PlayOptions{Loop: true, Delay: 30 * time.Millisecond})
	if inst == nil {
		t.Fatalf("play failed")
	}
	if inst.player.IsPlaying() {
		t.Fatalf("delayed play started immediately")
	}
	deadline := time.Now().Add(time.Second)
	for !inst.player.IsPlaying() {
		if time.Now().After(deadline) {
			t.Fatalf("delayed play never started")
		}
		time.Sleep(5 * time.Millisecond)
	}
}

func TestStopCancelsDelayedStart(t *testing.T) {
	var gets int64
	srv := soundServer(t, &gets)
	e := newTestEngine(t, srv)

	inst := e.playSync("loop", PlayOptions{ID: "late", Loop: true, Delay: 20 * time.Millisecond})
	if inst == nil {
		t.Fatalf("play failed")
	}
	e.Stop("late")
	time.Sleep(50 * time.Millisecond)
	if inst.player.IsPlaying() {
		t.Fatalf("stopped delayed play started anyway")
	}
}

func TestReapSkipsNewbornInstances(t *testing.T) {
	var gets int64
	srv := soundServer(t, &gets)
	e := newTestEngine(t, srv)

	// Hammer the reaper from the side while scheduling: an instance that
	// is registered but whose Play has not been issued yet must survive.
	stop := make(chan struct{})
	var wg sync.WaitGroup
	for i := 0; i < 4; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for {
				select {
				case <-stop:
					return
				default:
					e.sched.reap()
				}
			}
		}()
	}
	for i := 0; i < 500; i++ {
		inst := e.playSync("loop", PlayOptions{Loop: true})
		if inst == nil {
			t.Fatalf("play %d failed", i)
		}
		if !inst.player.IsPlaying() {
			t.Fatalf("play %d was reaped before it started", i)
		}
		e.sched.stopInstance(inst)
	}
	close(stop)
	wg.Wait()
}

func TestPlayerCapConcurrent(t *testing.T) {
	var gets int64
	srv := soundServer(t, &gets)
	e := newTestEngine(t, srv)

	// Warm the cache so the concurrent schedules skip the fetch path.
	if e.playSync("loop", PlayOptions{Loop: true}) == nil {
		t.Fatalf("warmup play failed")
	}
	var wg sync.WaitGroup
	for i := 0; i < maxPlayers+30; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			e.playSync("loop", PlayOptions{Loop: true})
		}()
	}
	wg.Wait()
	if n := e.sched.liveCount(); n > maxPlayers {
		t.Fatalf("live count %d exceeds cap %d", n, maxPlayers)
	}
}

func TestNegativeVolumeMeansSilent(t *testing.T) {
	var gets int64
	srv := soundServer(t, &gets)
	e := newTestEngine(t, srv)

	inst := e.playSync("loop", PlayOptions{Loop: true, Volume: -1})
	if inst == nil {
		t.Fatalf("play failed")
	}
	if v := inst.player.Volume(); v != 0 {
		t.Fatalf("negative volume played at %v, want 0", v)
	}
	// The zero value still means full volume.
	full := e.playSync("tone", PlayOptions{})
	if full == nil {
		t.Fatalf("play failed")
	}
	if v := full.player.Volume(); v != e.mixer.gain(ChannelEffects) {
		t.Fatalf("default volume %v", v)
	}
}

func TestPlayerCap(t *testing.T) {
	var gets int64
	srv := soundServer(t, &gets)
	e := newTestEngine(t, srv)

	started := 0
	for i := 0; i < maxPlayers+10; i++ {
		if e.playSync("loop", PlayOptions{Loop: true}) != nil {
			started++
		}
	}
	if started != maxPlayers {
		t.Fatalf("started %d players, want %d", started, maxPlayers)
	}
	if n := e.sched.liveCount(); n != maxPlayers {
		t.Fatalf("live count %d, want %d", n, maxPlayers)
	}
}

func TestReapDropsFinished(t *testing.T) {
	var gets int64
	srv := soundServer(t, &gets)
	e := newTestEngine(t, srv)

	// 441 frames is 10ms of audio on the headless clock.
	inst := e.playSync("tone", PlayOptions{})
	if inst == nil {
		t.Fatalf("play failed")
	}
	time.Sleep(30 * time.Millisecond)
	e.sched.reap()
	if n := e.sched.liveCount(); n != 0 {
		t.Fatalf("finished instance not reaped, live %d", n)
	}
}

func TestWaitReturnsWhenDone(t *testing.T) {
	var gets int64
	srv := soundServer(t, &gets)
	e := newTestEngine(t, srv)

	inst := e.playSync("tone", PlayOptions{})
	if inst == nil {
		t.Fatalf("play failed")
	}
	done := make(chan struct{})
	go func() {
		e.sched.wait(inst)
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatalf("wait never returned")
	}
}
