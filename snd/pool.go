package snd

import "sync"

const defaultPoolSize = 5

// soundPool preallocates players for one sound so rapid-fire triggers
// (reel ticks, button clicks) reuse players instead of allocating on the
// hot path. Voices are taken round-robin; a voice still playing when its
// turn comes is rewound and retriggered.
type soundPool struct {
	name    string
	channel ChannelName
	players []Player
	next    int
	lastVol float64
	mu      sync.Mutex
}

func newSoundPool(name string, channel ChannelName, backend Backend, pcm []byte, size int) *soundPool {
	if size < 1 {
		size = defaultPoolSize
	}
	p := &soundPool{name: name, channel: channel, lastVol: 1}
	for i := 0; i < size; i++ {
		p.players = append(p.players, backend.NewPlayer(pcm))
	}
	return p
}

// play retriggers the next voice at the given pre-mix volume times the
// current channel gain.
func (p *soundPool) play(volume, gain float64) {
	p.mu.Lock()
	if len(p.players) == 0 {
		p.mu.Unlock()
		return
	}
	voice := p.players[p.next]
	p.next = (p.next + 1) % len(p.players)
	p.lastVol = clamp01(volume)
	p.mu.Unlock()

	if voice.IsPlaying() {
		voice.Pause()
	}
	if err := voice.Rewind(); err != nil {
		logError("pool %v: rewind: %v", p.name, err)
		return
	}
	voice.SetVolume(clamp01(volume) * gain)
	voice.Play()
}

// refreshGain pushes the current channel gain onto voices still sounding,
// at the volume of the most recent trigger.
func (p *soundPool) refreshGain(gain float64) {
	p.mu.Lock()
	players := p.players
	vol := p.lastVol
	p.mu.Unlock()
	for _, voice := range players {
		if voice.IsPlaying() {
			voice.SetVolume(vol * gain)
		}
	}
}

func (p *soundPool) stop() {
	p.mu.Lock()
	players := p.players
	p.mu.Unlock()
	for _, voice := range players {
		if voice.IsPlaying() {
			voice.Pause()
		}
		voice.Rewind()
	}
}

func (p *soundPool) close() {
	p.mu.Lock()
	players := p.players
	p.players = nil
	p.mu.Unlock()
	for _, voice := range players {
		voice.Close()
	}
}
