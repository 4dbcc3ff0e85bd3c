package main

import (
	"fmt"
	"image/color"
	"math/rand"
	"time"

	"jackpotfx/snd"

	"github.com/hajimehoshi/ebiten/v2"
	"github.com/hajimehoshi/ebiten/v2/ebitenutil"
	"github.com/hajimehoshi/ebiten/v2/inpututil"
	"github.com/hajimehoshi/ebiten/v2/vector"
)

// binding maps a soundboard key to an engine action.
type binding struct {
	key    ebiten.Key
	label  string
	action func(e *snd.Engine)
}

var bindings = []binding{
	{ebiten.Key1, "1: spin start", func(e *snd.Engine) {
		e.Play("spinStart", snd.PlayOptions{ID: "spin", Loop: true})
	}},
	{ebiten.Key2, "2: reel stop", func(e *snd.Engine) {
		e.Stop("spin")
		e.Play("reelStop", snd.PlayOptions{})
	}},
	{ebiten.Key3, "3: small win", func(e *snd.Engine) { e.PlayDynamic("win", 2) }},
	{ebiten.Key4, "4: big win", func(e *snd.Engine) { e.PlayDynamic("win", 15) }},
	{ebiten.Key5, "5: jackpot", func(e *snd.Engine) {
		e.PlayDynamic("win", 100)
		e.PlayLayered("fanfare", "applause", "coinDrop")
		e.PlayJingle(9, nil)
	}},
	{ebiten.Key6, "6: wheel tick", func(e *snd.Engine) { e.PlayFromPool("wheelTick", 1) }},
	{ebiten.Key7, "7: dice", func(e *snd.Engine) {
		e.PlaySequence(120*time.Millisecond, "diceRoll", "diceLand")
	}},
	{ebiten.Key8, "8: card flip (panned)", func(e *snd.Engine) {
		e.Play("cardFlip", snd.PlayOptions{Pan: rand.Float64()*2 - 1})
	}},
	{ebiten.Key9, "9: voice", func(e *snd.Engine) { e.PlayRandom("voiceWinner", "voiceJackpot") }},
	{ebiten.Key0, "0: ambience", func(e *snd.Engine) {
		e.Play("ambientCasino", snd.PlayOptions{ID: "ambience", Loop: true, FadeIn: 2 * time.Second})
	}},
	{ebiten.KeyM, "M: mute", func(e *snd.Engine) { e.ToggleMute() }},
	{ebiten.KeyS, "S: stop all", func(e *snd.Engine) { e.StopAll() }},
	{ebiten.KeyR, "R: reverb on", func(e *snd.Engine) { e.SetReverb(true) }},
}

type game struct {
	engine  *snd.Engine
	focused bool
	keys    []ebiten.Key
}

func newGame(e *snd.Engine) *game {
	return &game{engine: e, focused: true}
}

func (g *game) Update() error {
	// Any real key or mouse press is a trusted gesture; programmatic
	// plays never unlock the gate.
	g.keys = inpututil.AppendJustPressedKeys(g.keys[:0])
	if len(g.keys) > 0 || inpututil.IsMouseButtonJustPressed(ebiten.MouseButtonLeft) {
		g.engine.NotifyGesture()
	}

	for _, b := range bindings {
		if inpututil.IsKeyJustPressed(b.key) {
			b.action(g.engine)
		}
	}
	if inpututil.IsKeyJustPressed(ebiten.KeyUp) {
		g.engine.SetMasterVolume(g.engine.MasterVolume() + 0.1)
	}
	if inpututil.IsKeyJustPressed(ebiten.KeyDown) {
		g.engine.SetMasterVolume(g.engine.MasterVolume() - 0.1)
	}

	if focused := ebiten.IsFocused(); focused != g.focused {
		g.focused = focused
		g.engine.SetFocusMuted(!focused)
	}
	return nil
}

func (g *game) Draw(screen *ebiten.Image) {
	st := g.engine.Status()
	msg := fmt.Sprintf("state: %v  cached: %d (%s)  live: %d  pending: %d\nmaster: %.1f  muted: %v  up: %s\n",
		st.State, st.Buffered, st.BufferedBytes, st.LivePlayers, st.PendingPlays,
		st.MasterVolume, st.Muted, st.Uptime)
	for _, b := range bindings {
		msg += b.label + "\n"
	}
	msg += "up/down: master volume"
	ebitenutil.DebugPrint(screen, msg)

	drawVizBars(screen, g.engine.VisualizationData(16))
}

func drawVizBars(screen *ebiten.Image, bands []float64) {
	const barW, maxH, gap = 24.0, 80.0, 4.0
	baseY := float32(initialWindowH - 10)
	x := float32(10)
	c := color.RGBA{R: 0xff, G: 0xb0, B: 0x20, A: 0xff}
	for _, v := range bands {
		h := float32(v * maxH)
		if h < 1 {
			h = 1
		}
		vector.DrawFilledRect(screen, x, baseY-h, barW, h, c, false)
		x += barW + gap
	}
}

func (g *game) Layout(outsideWidth, outsideHeight int) (int, int) {
	return initialWindowW, initialWindowH
}
