package snd

import (
	"context"
	"errors"
	"math"
	"math/rand"
	"net/http"
	"sync"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/hako/durafmt"
	"github.com/remeh/sizedwaitgroup"
)

// State is the engine lifecycle phase.
type State string

const (
	StateUninitialized State = "uninitialized"
	StateInitializing  State = "initializing"
	StateReady         State = "ready"
	StateFallback      State = "fallback"
)

const (
	defaultSampleRate   = 44100
	defaultFetchTimeout = 30 * time.Second
	vizWindow           = 2048
	preloadParallel     = 4
)

// Config sets up an Engine. Zero values pick sensible defaults; a nil
// Backend selects the real audio device with a silent fallback.
type Config struct {
	BaseURL      string
	SampleRate   int
	CacheBudget  int
	FetchTimeout time.Duration
	PrefsPath    string
	SoundFont    string
	Assets       []SoundAsset
	KnownMissing []string
	HTTPClient   *http.Client
	Backend      Backend
	Debug        bool
}

// Engine is the façade game code talks to. All methods are safe for
// concurrent use and none of them propagate sound failures: a sound that
// cannot be fetched, decoded or played logs and no-ops.
type Engine struct {
	sampleRate int

	resolver  *resolver
	cache     *bufferCache
	mixer     *mixer
	sched     *scheduler
	gate      *gestureGate
	prefStore *prefsStore
	synth     *jingleSynth
	backend   Backend

	spatialSupported bool
	spatialWarnOnce  sync.Once

	mu        sync.Mutex
	state     State
	prefs     Preferences
	pools     map[string]*soundPool
	ir        *impulseResponse
	startedAt time.Time

	vizMu  sync.Mutex
	vizBuf []float64
}

// New builds an engine from the config. Call Init before playing.
func New(cfg Config) *Engine {
	if cfg.SampleRate <= 0 {
		cfg.SampleRate = defaultSampleRate
	}
	if cfg.FetchTimeout <= 0 {
		cfg.FetchTimeout = defaultFetchTimeout
	}
	if cfg.Assets == nil {
		cfg.Assets = DefaultAssets
	}
	SetDebug(cfg.Debug)

	e := &Engine{
		sampleRate: cfg.SampleRate,
		resolver:   newResolver(cfg.BaseURL, cfg.Assets, cfg.KnownMissing, cfg.HTTPClient),
		cache:      newBufferCache(cfg.SampleRate, cfg.CacheBudget, cfg.FetchTimeout, cfg.HTTPClient),
		prefStore:  newPrefsStore(cfg.PrefsPath),
		backend:    cfg.Backend,
		state:      StateUninitialized,
		pools:      make(map[string]*soundPool),
	}
	if cfg.SoundFont != "" {
		e.synth = newJingleSynth(cfg.SoundFont, cfg.SampleRate)
	}
	e.gate = newGestureGate(func() { logDebug("gesture gate unlocked") })
	return e
}

// Init brings the engine up: output backend, saved preferences, mixer, and
// a best-effort preload of the critical sounds. A backend failure does not
// return an error to the caller; the engine enters fallback mode and stays
// there (playback is silent but every call keeps working).
func (e *Engine) Init() error {
	e.mu.Lock()
	if e.state != StateUninitialized {
		e.mu.Unlock()
		return nil
	}
	e.state = StateInitializing
	e.mu.Unlock()

	fallback := false
	if e.backend == nil {
		b, err := newEbitenBackend(e.sampleRate)
		if err != nil {
			logError("audio device: %v, entering fallback mode", err)
			b = newHeadlessBackend(e.sampleRate)
			fallback = true
		}
		e.backend = b
	}

	prefs := e.prefStore.load()
	e.mixer = newMixer(prefs)
	e.sched = newScheduler(e)
	e.spatialSupported = !fallback

	e.mu.Lock()
	e.prefs = prefs
	e.ir = synthesizeIR(e.sampleRate)
	e.startedAt = time.Now()
	if fallback {
		e.state = StateFallback
	} else {
		e.state = StateReady
	}
	e.mu.Unlock()

	go e.Preload(criticalSounds...)

	if fallback {
		return ErrInitFailed
	}
	return nil
}

// StateNow reports the lifecycle phase.
func (e *Engine) StateNow() State {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.state
}

func (e *Engine) ready() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.state == StateReady || e.state == StateFallback
}

// NotifyGesture tells the engine a trusted user interaction happened.
// Adapters call this from real input events only; the first call unlocks
// playback for good and flushes anything queued behind the gate.
func (e *Engine) NotifyGesture() {
	e.gate.unlock()
}

// Play starts a sound by logical name. The call returns immediately;
// loading, processing and playback happen behind the gesture gate on a
// separate goroutine.
func (e *Engine) Play(name string, opts PlayOptions) {
	if !e.ready() {
		logDebug("play %v before init, dropped", name)
		return
	}
	e.gate.do(func() {
		go e.playSync(name, opts)
	})
}

// playSync is the synchronous play path: resolve, load, pipeline, start.
// Returns the live instance, or nil when the sound could not be played.
func (e *Engine) playSync(name string, opts PlayOptions) *instance {
	a, ok := e.resolver.asset(name)
	if !ok {
		logDebug("unknown sound %v", name)
		return nil
	}
	opts.normalize(a.Category)

	buf := e.loadBuffer(name)
	if buf == nil {
		return nil
	}
	return e.sched.schedule(name, buf, opts)
}

// loadBuffer resolves and loads a logical name, retrying once through the
// fallback location when a learned primary stops being fetchable.
func (e *Engine) loadBuffer(name string) *DecodedBuffer {
	ctx := context.Background()
	for attempt := 0; attempt < 2; attempt++ {
		loc, err := e.resolver.resolve(ctx, name)
		if err != nil {
			logError("resolve %v: %v", name, err)
			return nil
		}
		buf, err := e.cache.load(ctx, loc)
		if err == nil {
			return buf
		}
		logError("load %v: %v", name, err)
		if !errors.Is(err, ErrAssetUnavailable) {
			return nil
		}
		e.resolver.markMissing(loc)
		e.resolver.forget(name)
	}
	return nil
}

// Stop terminates the live playback registered under id, if any.
func (e *Engine) Stop(id string) {
	if e.sched != nil {
		e.sched.stopID(id)
	}
}

// StopAll silences every live playback and pool voice.
func (e *Engine) StopAll() {
	if e.sched != nil {
		e.sched.stopAll()
	}
	e.mu.Lock()
	pools := make([]*soundPool, 0, len(e.pools))
	for _, p := range e.pools {
		pools = append(pools, p)
	}
	e.mu.Unlock()
	for _, p := range pools {
		p.stop()
	}
}

// PlaySequence plays the named sounds back to back with a gap between
// them, stopping the chain at the first sound that cannot be played.
func (e *Engine) PlaySequence(gap time.Duration, names ...string) {
	if !e.ready() {
		return
	}
	e.gate.do(func() {
		go func() {
			for i, name := range names {
				inst := e.playSync(name, PlayOptions{})
				if inst == nil {
					return
				}
				e.sched.wait(inst)
				if i < len(names)-1 && gap > 0 {
					time.Sleep(gap)
				}
			}
		}()
	})
}

// PlayLayered starts the named sounds simultaneously, spread across an arc
// in front of the listener when spatial audio is on.
func (e *Engine) PlayLayered(names ...string) {
	if !e.ready() {
		return
	}
	e.gate.do(func() {
		go func() {
			var wg sync.WaitGroup
			for _, name := range names {
				wg.Add(1)
				go func(name string) {
					defer wg.Done()
					pos := spreadPosition(spatialRefDistance, 120)
					e.playSync(name, PlayOptions{Spatial: true, Position: &pos})
				}(name)
			}
			wg.Wait()
		}()
	})
}

// PlayRandom plays one of the named sounds, chosen uniformly.
func (e *Engine) PlayRandom(names ...string) {
	if len(names) == 0 {
		return
	}
	e.Play(names[rand.Intn(len(names))], PlayOptions{})
}

// PlayDynamic picks the tier variant of a base sound from the magnitude
// and scales volume with it, e.g. ("win", 7) plays winMedium.
func (e *Engine) PlayDynamic(base string, magnitude float64) {
	name, ok := dynamicSoundName(base, magnitude)
	if !ok {
		logDebug("no dynamic tiers for %v", base)
		return
	}
	e.Play(name, PlayOptions{Volume: dynamicVolume(magnitude)})
}

// PlayJingle renders a short SoundFont phrase and plays it on the music
// channel. No-op when the engine was built without a SoundFont.
func (e *Engine) PlayJingle(program int, notes []Note) {
	if !e.ready() || e.synth == nil {
		logDebug("jingle dropped, no synth")
		return
	}
	if len(notes) == 0 {
		notes = jackpotJingle()
	}
	e.gate.do(func() {
		go func() {
			pcm, err := e.synth.render(program, notes)
			if err != nil {
				logError("jingle: %v", err)
				return
			}
			buf := &DecodedBuffer{PCM: pcm, Duration: bufferDuration(len(pcm), e.sampleRate)}
			e.sched.schedule("jingle", buf, PlayOptions{Volume: 1, Channel: ChannelMusic, Rate: 1})
		}()
	})
}

// CreatePool preallocates players for a rapid-retrigger sound. Pool plays
// skip the per-play pipeline; they are meant for short dry UI ticks.
func (e *Engine) CreatePool(name string, size int) {
	if !e.ready() {
		return
	}
	e.mu.Lock()
	_, exists := e.pools[name]
	e.mu.Unlock()
	if exists {
		return
	}
	a, ok := e.resolver.asset(name)
	if !ok {
		logDebug("pool for unknown sound %v", name)
		return
	}
	buf := e.loadBuffer(name)
	if buf == nil {
		return
	}
	pool := newSoundPool(name, a.Category, e.backend, buf.PCM, size)
	e.mu.Lock()
	if _, exists := e.pools[name]; exists {
		e.mu.Unlock()
		pool.close()
		return
	}
	e.pools[name] = pool
	e.mu.Unlock()
}

// PlayFromPool retriggers a pooled sound. On the first call for a name the
// pool does not exist yet: the sound plays through the regular path and
// the pool is built in the background for subsequent calls.
func (e *Engine) PlayFromPool(name string, volume float64) {
	if !e.ready() {
		return
	}
	e.mu.Lock()
	pool := e.pools[name]
	e.mu.Unlock()
	if pool == nil {
		e.Play(name, PlayOptions{Volume: volume})
		e.gate.do(func() {
			go e.CreatePool(name, defaultPoolSize)
		})
		return
	}
	e.gate.do(func() {
		pool.play(volume, e.mixer.gain(pool.channel))
	})
}

// Preload fetches and decodes the named sounds ahead of use. Blocking,
// best effort; failures log and are skipped.
func (e *Engine) Preload(names ...string) {
	if !e.ready() {
		return
	}
	swg := sizedwaitgroup.New(preloadParallel)
	for _, name := range names {
		swg.Add()
		go func(name string) {
			defer swg.Done()
			e.loadBuffer(name)
		}(name)
	}
	swg.Wait()
}

// PreloadCategory preloads every known asset on the given channel.
func (e *Engine) PreloadCategory(ch ChannelName) {
	e.Preload(e.resolver.namesByCategory(ch)...)
}

// SetMasterVolume sets the master gain, applies it to everything live and
// persists the preference.
func (e *Engine) SetMasterVolume(v float64) {
	if e.mixer == nil {
		return
	}
	e.mixer.setMasterVolume(v)
	e.mu.Lock()
	e.prefs.MasterVolume = e.mixer.masterVolume()
	prefs := e.prefs
	e.mu.Unlock()
	e.applyVolumes()
	e.prefStore.save(prefs)
}

// SetChannelVolume sets one channel's user gain. Unknown channels no-op.
func (e *Engine) SetChannelVolume(ch ChannelName, v float64) {
	if e.mixer == nil || !e.mixer.setChannelVolume(ch, v) {
		return
	}
	e.mu.Lock()
	e.prefs.ChannelVolumes[ch] = e.mixer.channelVolume(ch)
	prefs := e.prefs
	e.mu.Unlock()
	e.applyVolumes()
	e.prefStore.save(prefs)
}

// MasterVolume reports the persisted master gain, even while muted.
func (e *Engine) MasterVolume() float64 {
	if e.mixer == nil {
		return 0
	}
	return e.mixer.masterVolume()
}

// ChannelVolume reports one channel's user gain.
func (e *Engine) ChannelVolume(ch ChannelName) float64 {
	if e.mixer == nil {
		return 0
	}
	return e.mixer.channelVolume(ch)
}

// ToggleMute flips mute and returns the new state. The master volume
// preference is retained across the round trip.
func (e *Engine) ToggleMute() bool {
	if e.mixer == nil {
		return false
	}
	muted := e.mixer.toggleMute()
	e.mu.Lock()
	e.prefs.Muted = muted
	prefs := e.prefs
	e.mu.Unlock()
	e.applyVolumes()
	e.prefStore.save(prefs)
	return muted
}

// SetFocusMuted silences output while the host window is unfocused,
// without touching the persisted mute preference.
func (e *Engine) SetFocusMuted(fm bool) {
	if e.mixer == nil {
		return
	}
	e.mixer.setFocusMuted(fm)
	e.applyVolumes()
}

// SetSpatialAudio toggles 3-D positioning for future plays.
func (e *Engine) SetSpatialAudio(on bool) {
	e.mu.Lock()
	e.prefs.SpatialAudio = on
	prefs := e.prefs
	e.mu.Unlock()
	e.prefStore.save(prefs)
}

// SetReverb toggles the reverb send for future plays. Turning it on swaps
// in a recorded impulse response when one is available under the logical
// name "impulseHall", else keeps the synthesized room.
func (e *Engine) SetReverb(on bool) {
	e.mu.Lock()
	e.prefs.Reverb = on
	prefs := e.prefs
	e.mu.Unlock()
	e.prefStore.save(prefs)
	if !on {
		return
	}
	if _, ok := e.resolver.asset("impulseHall"); !ok {
		return
	}
	go func() {
		buf := e.loadBuffer("impulseHall")
		if buf == nil {
			return
		}
		ir := irFromPCM(buf.PCM, e.sampleRate)
		e.mu.Lock()
		e.ir = ir
		e.mu.Unlock()
	}()
}

func (e *Engine) prefSpatial() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.prefs.SpatialAudio
}

func (e *Engine) prefReverb() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.prefs.Reverb
}

func (e *Engine) prefCompression() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.prefs.Compression
}

func (e *Engine) impulse() *impulseResponse {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.ir
}

func (e *Engine) applyVolumes() {
	if e.sched != nil {
		e.sched.applyVolumes()
	}
	e.mu.Lock()
	pools := make([]*soundPool, 0, len(e.pools))
	for _, p := range e.pools {
		pools = append(pools, p)
	}
	e.mu.Unlock()
	for _, p := range pools {
		p.refreshGain(e.mixer.gain(p.channel))
	}
}

// Status is a snapshot for debug overlays.
type Status struct {
	State         State
	Buffered      int
	BufferedBytes string
	LivePlayers   int
	PendingPlays  int
	Uptime        string
	Muted         bool
	MasterVolume  float64
	SpatialAudio  bool
	Reverb        bool
}

// Status reports the engine's current condition in display-ready form.
func (e *Engine) Status() Status {
	st := Status{State: e.StateNow()}
	count, bytes := e.cache.stats()
	st.Buffered = count
	st.BufferedBytes = humanize.Bytes(uint64(bytes))
	if e.sched != nil {
		e.sched.reap()
		st.LivePlayers = e.sched.liveCount()
	}
	st.PendingPlays = e.gate.pendingCount()
	if e.mixer != nil {
		st.Muted = e.mixer.isMuted()
		st.MasterVolume = e.mixer.masterVolume()
	}
	e.mu.Lock()
	startedAt := e.startedAt
	st.SpatialAudio = e.prefs.SpatialAudio
	st.Reverb = e.prefs.Reverb
	e.mu.Unlock()
	if !startedAt.IsZero() {
		st.Uptime = durafmt.Parse(time.Since(startedAt).Round(time.Second)).LimitFirstN(2).String()
	}
	return st
}

// pushViz keeps the leading window of the most recently started playback
// for the visualizer.
func (e *Engine) pushViz(pcm []byte) {
	samples := pcmToSamples(pcm)
	frames := len(samples) / 2
	if frames > vizWindow {
		frames = vizWindow
	}
	buf := make([]float64, frames)
	for f := 0; f < frames; f++ {
		buf[f] = (float64(samples[f*2]) + float64(samples[f*2+1])) / (2 * 32768)
	}
	e.vizMu.Lock()
	e.vizBuf = buf
	e.vizMu.Unlock()
}

// VisualizationData returns per-band magnitudes of the most recent
// playback window, bands spaced logarithmically from 60 Hz to 8 kHz.
// Values are normalized to [0,1].
func (e *Engine) VisualizationData(bands int) []float64 {
	if bands <= 0 {
		return nil
	}
	e.vizMu.Lock()
	buf := e.vizBuf
	e.vizMu.Unlock()

	out := make([]float64, bands)
	if len(buf) == 0 {
		return out
	}
	const loHz, hiHz = 60.0, 8000.0
	ratio := math.Pow(hiHz/loHz, 1/float64(bands))
	freq := loHz
	for i := 0; i < bands; i++ {
		out[i] = clamp01(goertzel(buf, e.sampleRate, freq) * 4)
		freq *= ratio
	}
	return out
}

// goertzel computes the normalized magnitude of one frequency bin.
func goertzel(samples []float64, rate int, freq float64) float64 {
	n := len(samples)
	if n == 0 || rate <= 0 {
		return 0
	}
	w := 2 * math.Pi * freq / float64(rate)
	coeff := 2 * math.Cos(w)
	var s0, s1, s2 float64
	for _, x := range samples {
		s0 = x + coeff*s1 - s2
		s2 = s1
		s1 = s0
	}
	power := s1*s1 + s2*s2 - coeff*s1*s2
	if power < 0 {
		power = 0
	}
	return 2 * math.Sqrt(power) / float64(n)
}

// Close stops all playback, persists preferences and releases players.
// The engine cannot be reused afterwards.
func (e *Engine) Close() {
	e.StopAll()
	e.mu.Lock()
	pools := e.pools
	e.pools = make(map[string]*soundPool)
	prefs := e.prefs
	state := e.state
	e.state = StateUninitialized
	e.mu.Unlock()
	for _, p := range pools {
		p.close()
	}
	if state == StateReady || state == StateFallback {
		e.prefStore.save(prefs)
	}
}
