package snd

import (
	"math"
	"sync"
	"time"
)

// maxPlayers caps simultaneous live players; excess plays are dropped.
const maxPlayers = 64

// PlayOptions control one playback. Zero values mean: full volume, the
// asset's category channel, no loop, natural rate, centered, dry, no
// spatialization, immediate start. A negative Volume requests a
// deliberately silent play (clamped to 0); the zero value stays the
// full-volume default.
type PlayOptions struct {
	Volume   float64
	Channel  ChannelName
	Loop     bool
	Rate     float64
	Pan      float64
	Spatial  bool
	Position *Position
	Cone     *Cone
	Reverb   bool
	Delay    time.Duration
	FadeIn   time.Duration
	FadeOut  time.Duration

	// ID registers the playback for Stop. Starting a new play with an ID
	// that is already live stops the prior instance first.
	ID string
}

func (o *PlayOptions) normalize(category ChannelName) {
	if o.Volume == 0 {
		o.Volume = 1
	}
	o.Volume = clamp01(o.Volume)
	if o.Channel == "" {
		o.Channel = category
	}
	if !validChannel(o.Channel) {
		o.Channel = ChannelEffects
	}
	if o.Rate <= 0 {
		o.Rate = 1
	}
}

// stage is one optional processing step of the per-play pipeline. Stages
// compose in a fixed order instead of branching at every call site.
type stage struct {
	name  string
	apply func([]int16) []int16
}

// buildPipeline assembles the processing stages for one play: playback
// rate, fade envelope, positioning (3-D spatial or plain stereo pan),
// reverb send, then the shared compressor.
func (e *Engine) buildPipeline(opts PlayOptions) []stage {
	rate := e.sampleRate
	var stages []stage

	if opts.Rate != 1 {
		r := opts.Rate
		stages = append(stages, stage{name: "rate", apply: func(s []int16) []int16 {
			return resampleStereo(s, int(float64(rate)*r), rate)
		}})
	}
	if opts.FadeIn > 0 || opts.FadeOut > 0 {
		in, out := opts.FadeIn, opts.FadeOut
		stages = append(stages, stage{name: "envelope", apply: func(s []int16) []int16 {
			applyFadeEnvelope(s, rate, in, out)
			return s
		}})
	}

	spatial := opts.Spatial && opts.Position != nil && e.prefSpatial()
	if spatial && !e.spatialSupported {
		e.spatialWarnOnce.Do(func() {
			logError("%v: 3-D positioning, using stereo pan", ErrUnsupportedFeature)
		})
		spatial = false
		if opts.Pan == 0 {
			// Keep the direction at least, from the horizontal component.
			p := *opts.Position
			d := math.Sqrt(p.X*p.X + p.Y*p.Y + p.Z*p.Z)
			if d > 0 {
				opts.Pan = p.X / math.Max(d, spatialRefDistance)
			}
		}
	}
	switch {
	case spatial:
		pos, cone := *opts.Position, opts.Cone
		stages = append(stages, stage{name: "spatial", apply: func(s []int16) []int16 {
			l, r := spatialGains(pos, cone)
			applyStereoGains(s, l, r)
			return s
		}})
	case opts.Pan != 0:
		pan := opts.Pan
		stages = append(stages, stage{name: "pan", apply: func(s []int16) []int16 {
			l, r := panGains(pan)
			applyStereoGains(s, l, r)
			return s
		}})
	}

	if opts.Reverb && e.prefReverb() {
		stages = append(stages, stage{name: "reverb", apply: func(s []int16) []int16 {
			return applyReverb(s, e.impulse())
		}})
	}
	if e.prefCompression() {
		stages = append(stages, stage{name: "compressor", apply: func(s []int16) []int16 {
			applyCompressor(s, rate)
			return s
		}})
	}
	return stages
}

func stageNames(stages []stage) []string {
	names := make([]string, len(stages))
	for i, s := range stages {
		names[i] = s.name
	}
	return names
}

// instance is one live playback, owned by the scheduler until it ends or
// is stopped.
type instance struct {
	name      string
	id        string
	channel   ChannelName
	volume    float64
	loop      bool
	startedAt time.Time
	player    Player

	stopOnce sync.Once
	stopCh   chan struct{}
	// pending is true from registration until Play has been issued, so a
	// concurrent reap never mistakes an armed instance for a finished one.
	pending bool
	mu      sync.Mutex
}

func (in *instance) setPending(p bool) {
	in.mu.Lock()
	in.pending = p
	in.mu.Unlock()
}

func (in *instance) isPending() bool {
	in.mu.Lock()
	defer in.mu.Unlock()
	return in.pending
}

type scheduler struct {
	e *Engine

	mu        sync.Mutex
	instances map[*instance]struct{}
	byID      map[string]*instance
}

func newScheduler(e *Engine) *scheduler {
	return &scheduler{
		e:         e,
		instances: make(map[*instance]struct{}),
		byID:      make(map[string]*instance),
	}
}

// schedule builds the signal path for a decoded buffer and starts (or, with
// a delay, arms) a player for it.
func (s *scheduler) schedule(name string, buf *DecodedBuffer, opts PlayOptions) *instance {
	s.reap()

	s.mu.Lock()
	if len(s.instances) >= maxPlayers {
		s.mu.Unlock()
		logDebug("too many live players (%d), dropping %v", maxPlayers, name)
		return nil
	}
	prior := s.byID[opts.ID]
	s.mu.Unlock()
	if opts.ID != "" && prior != nil {
		// Cancel-and-restart: never let two instances race under one id.
		s.stopInstance(prior)
	}

	samples := pcmToSamples(buf.PCM)
	for _, st := range s.e.buildPipeline(opts) {
		samples = st.apply(samples)
	}
	if !opts.Loop {
		applyClickGuard(samples, s.e.sampleRate)
	}
	pcm := samplesToPCM(samples)

	var p Player
	if opts.Loop {
		p = s.e.backend.NewLoopingPlayer(pcm)
	} else {
		p = s.e.backend.NewPlayer(pcm)
	}

	inst := &instance{
		name:      name,
		id:        opts.ID,
		channel:   opts.Channel,
		volume:    opts.Volume,
		loop:      opts.Loop,
		startedAt: time.Now(),
		player:    p,
		stopCh:    make(chan struct{}),
		pending:   true,
	}
	p.SetVolume(inst.volume * s.e.mixer.gain(inst.channel))

	// Re-check the cap under the same lock as the insert; the earlier
	// check only short-circuits before the DSP work.
	s.mu.Lock()
	if len(s.instances) >= maxPlayers {
		s.mu.Unlock()
		p.Close()
		logDebug("too many live players (%d), dropping %v", maxPlayers, name)
		return nil
	}
	s.instances[inst] = struct{}{}
	if inst.id != "" {
		s.byID[inst.id] = inst
	}
	s.mu.Unlock()

	s.e.pushViz(pcm)

	if opts.Delay > 0 {
		go func() {
			t := time.NewTimer(opts.Delay)
			defer t.Stop()
			select {
			case <-t.C:
				inst.player.Play()
				inst.setPending(false)
			case <-inst.stopCh:
			}
		}()
	} else {
		p.Play()
		inst.setPending(false)
	}
	return inst
}

func (s *scheduler) stopInstance(inst *instance) {
	inst.stopOnce.Do(func() {
		close(inst.stopCh)
		inst.player.Pause()
		inst.player.Close()
	})
	s.deregister(inst)
}

func (s *scheduler) deregister(inst *instance) {
	s.mu.Lock()
	delete(s.instances, inst)
	if inst.id != "" && s.byID[inst.id] == inst {
		delete(s.byID, inst.id)
	}
	s.mu.Unlock()
}

// stopID terminates the live instance registered under id, if any.
func (s *scheduler) stopID(id string) {
	s.mu.Lock()
	inst := s.byID[id]
	s.mu.Unlock()
	if inst != nil {
		s.stopInstance(inst)
	}
}

func (s *scheduler) stopAll() {
	s.mu.Lock()
	all := make([]*instance, 0, len(s.instances))
	for inst := range s.instances {
		all = append(all, inst)
	}
	s.mu.Unlock()
	for _, inst := range all {
		s.stopInstance(inst)
	}
}

// reap closes and deregisters instances that finished naturally.
func (s *scheduler) reap() {
	s.mu.Lock()
	var done []*instance
	for inst := range s.instances {
		if !inst.isPending() && !inst.player.IsPlaying() {
			done = append(done, inst)
		}
	}
	s.mu.Unlock()
	for _, inst := range done {
		s.stopInstance(inst)
	}
}

// applyVolumes pushes current channel gains onto live players and reaps
// stopped ones, mirroring how volume changes take effect immediately.
func (s *scheduler) applyVolumes() {
	s.mu.Lock()
	all := make([]*instance, 0, len(s.instances))
	for inst := range s.instances {
		all = append(all, inst)
	}
	s.mu.Unlock()

	var done []*instance
	for _, inst := range all {
		if inst.isPending() || inst.player.IsPlaying() {
			inst.player.SetVolume(inst.volume * s.e.mixer.gain(inst.channel))
		} else {
			done = append(done, inst)
		}
	}
	for _, inst := range done {
		s.stopInstance(inst)
	}
}

func (s *scheduler) liveCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.instances)
}

// wait blocks until the instance finishes or is stopped.
func (s *scheduler) wait(inst *instance) {
	if inst == nil {
		return
	}
	ticker := time.NewTicker(10 * time.Millisecond)
	defer ticker.Stop()
	for {
		select {
		case <-inst.stopCh:
			return
		case <-ticker.C:
			if !inst.isPending() && !inst.player.IsPlaying() {
				s.stopInstance(inst)
				return
			}
		}
	}
}
