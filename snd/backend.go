package snd

import (
	"bytes"
	"sync"
	"time"

	"github.com/hajimehoshi/ebiten/v2/audio"
)

// Player is one live playback handle on the output device.
type Player interface {
	Play()
	Pause()
	IsPlaying() bool
	SetVolume(v float64)
	Volume() float64
	Rewind() error
	Close() error
}

// Backend produces players for interleaved 16-bit little-endian stereo PCM
// at its sample rate. The production backend wraps the ebiten audio
// context; the headless backend serves tests and machines without an audio
// device.
type Backend interface {
	NewPlayer(pcm []byte) Player
	NewLoopingPlayer(pcm []byte) Player
	SampleRate() int
}

type ebitenBackend struct {
	ctx *audio.Context
}

// audio.NewContext may only run once per process.
var (
	ebitenCtxOnce sync.Once
	ebitenCtx     *audio.Context
)

func newEbitenBackend(sampleRate int) (b Backend, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = ErrInitFailed
		}
	}()
	ebitenCtxOnce.Do(func() {
		ebitenCtx = audio.NewContext(sampleRate)
	})
	return &ebitenBackend{ctx: ebitenCtx}, nil
}

func (b *ebitenBackend) SampleRate() int { return b.ctx.SampleRate() }

func (b *ebitenBackend) NewPlayer(pcm []byte) Player {
	return b.ctx.NewPlayerFromBytes(pcm)
}

func (b *ebitenBackend) NewLoopingPlayer(pcm []byte) Player {
	loop := audio.NewInfiniteLoop(bytes.NewReader(pcm), int64(len(pcm)))
	p, err := b.ctx.NewPlayer(loop)
	if err != nil {
		logError("looping player: %v", err)
		return b.ctx.NewPlayerFromBytes(pcm)
	}
	return p
}

// headlessBackend tracks playback state without touching an audio device.
// Players report IsPlaying until their PCM duration elapses (or forever for
// loops), so scheduling and volume behavior stay observable.
type headlessBackend struct {
	rate int

	mu      sync.Mutex
	players []Player
}

func newHeadlessBackend(sampleRate int) *headlessBackend {
	return &headlessBackend{rate: sampleRate}
}

func (b *headlessBackend) SampleRate() int { return b.rate }

func (b *headlessBackend) NewPlayer(pcm []byte) Player {
	return b.track(&headlessPlayer{dur: bufferDuration(len(pcm), b.rate), volume: 1, pcm: pcm})
}

func (b *headlessBackend) NewLoopingPlayer(pcm []byte) Player {
	return b.track(&headlessPlayer{loop: true, volume: 1, pcm: pcm})
}

func (b *headlessBackend) track(p *headlessPlayer) *headlessPlayer {
	b.mu.Lock()
	b.players = append(b.players, p)
	b.mu.Unlock()
	return p
}

type headlessPlayer struct {
	mu      sync.Mutex
	pcm     []byte
	dur     time.Duration
	loop    bool
	volume  float64
	started time.Time
	playing bool
	closed  bool
	rewinds int
	plays   int
}

func (p *headlessPlayer) Play() {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return
	}
	p.playing = true
	p.started = time.Now()
	p.plays++
}

func (p *headlessPlayer) Pause() {
	p.mu.Lock()
	p.playing = false
	p.mu.Unlock()
}

func (p *headlessPlayer) IsPlaying() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	if !p.playing || p.closed {
		return false
	}
	if p.loop {
		return true
	}
	if time.Since(p.started) >= p.dur {
		p.playing = false
		return false
	}
	return true
}

func (p *headlessPlayer) SetVolume(v float64) {
	p.mu.Lock()
	p.volume = v
	p.mu.Unlock()
}

func (p *headlessPlayer) Volume() float64 {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.volume
}

func (p *headlessPlayer) Rewind() error {
	p.mu.Lock()
	p.started = time.Now()
	p.rewinds++
	p.mu.Unlock()
	return nil
}

func (p *headlessPlayer) Close() error {
	p.mu.Lock()
	p.playing = false
	p.closed = true
	p.mu.Unlock()
	return nil
}
