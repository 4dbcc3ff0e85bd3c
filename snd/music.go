package snd

import (
	"bytes"
	"errors"
	"fmt"
	"os"
	"sync"
	"time"

	meltysynth "github.com/sinshu/go-meltysynth/meltysynth"
)

// Use a small fixed render block that aligns with common synth effect
// processing sizes to avoid internal ring-buffer edge cases.
const synthBlock = 1024

// jingleTailSec extends the render past the last note-off so releases and
// the synth's own reverb are not cut short.
const jingleTailSec = 1.0

// Note is a single jingle note, offsets relative to the jingle start.
type Note struct {
	// Key is the MIDI note number (60 = middle C).
	Key int
	// Velocity is the MIDI velocity 1..127.
	Velocity int
	Start    time.Duration
	Duration time.Duration
}

// jingleSynth loads a SoundFont once and renders short celebration
// jingles to PCM, cached per program and note sequence.
type jingleSynth struct {
	sampleRate int

	once     sync.Once
	sfnt     *meltysynth.SoundFont
	settings *meltysynth.SynthesizerSettings
	sfPath   string

	mu       sync.Mutex
	rendered map[string][]byte
}

func newJingleSynth(sfPath string, sampleRate int) *jingleSynth {
	return &jingleSynth{
		sampleRate: sampleRate,
		sfPath:     sfPath,
		rendered:   make(map[string][]byte),
	}
}

func (j *jingleSynth) setup() {
	data, err := os.ReadFile(j.sfPath)
	if err != nil {
		logError("soundfont missing: %v", err)
		return
	}
	sfnt, err := meltysynth.NewSoundFont(bytes.NewReader(data))
	if err != nil {
		logError("soundfont parse: %v", err)
		return
	}
	settings := meltysynth.NewSynthesizerSettings(int32(j.sampleRate))
	settings.BlockSize = synthBlock
	j.sfnt = sfnt
	j.settings = settings
}

// render produces interleaved 16-bit stereo PCM for a jingle, consulting
// the per-sequence cache first.
func (j *jingleSynth) render(program int, notes []Note) ([]byte, error) {
	j.once.Do(j.setup)
	if j.sfnt == nil {
		return nil, errors.New("synth not initialized")
	}

	key := jingleKey(program, notes)
	j.mu.Lock()
	if pcm, ok := j.rendered[key]; ok {
		j.mu.Unlock()
		return pcm, nil
	}
	j.mu.Unlock()

	left, right, err := j.renderNotes(program, notes)
	if err != nil {
		return nil, err
	}
	pcm := interleavePCM(left, right)

	j.mu.Lock()
	j.rendered[key] = pcm
	j.mu.Unlock()
	return pcm, nil
}

func jingleKey(program int, notes []Note) string {
	var b bytes.Buffer
	fmt.Fprintf(&b, "%d", program)
	for _, n := range notes {
		fmt.Fprintf(&b, "|%d:%d:%d:%d", n.Key, n.Velocity, n.Start.Milliseconds(), n.Duration.Milliseconds())
	}
	return b.String()
}

func (j *jingleSynth) renderNotes(program int, notes []Note) ([]float32, []float32, error) {
	const ch = 0
	// Fresh synth per jingle, internal state is not safe to share.
	syn, err := meltysynth.NewSynthesizer(j.sfnt, j.settings)
	if err != nil {
		return nil, nil, err
	}
	syn.ProcessMidiMessage(ch, 0xC0, int32(program), 0)

	type event struct {
		key, vel   int
		start, end int
	}
	var events []event
	var maxEnd int
	rate := int64(j.sampleRate)
	for _, n := range notes {
		durSamples := int((n.Duration.Nanoseconds()*rate + int64(time.Second/2)) / int64(time.Second))
		if durSamples <= 0 {
			continue
		}
		startSamples := int((n.Start.Nanoseconds()*rate + int64(time.Second/2)) / int64(time.Second))
		ev := event{key: n.Key, vel: n.Velocity, start: startSamples, end: startSamples + durSamples}
		events = append(events, ev)
		if ev.end > maxEnd {
			maxEnd = ev.end
		}
	}
	if len(events) == 0 {
		return nil, nil, errors.New("no playable notes")
	}

	totalSamples := maxEnd + int(jingleTailSec*float64(j.sampleRate))
	leftAll := make([]float32, 0, totalSamples)
	rightAll := make([]float32, 0, totalSamples)
	active := map[int]bool{}

	trigger := func(start, count int) {
		end := start + count
		// Note-offs first so a retrigger inside one block can fire.
		for _, ev := range events {
			if ev.end >= start && ev.end < end && active[ev.key] {
				syn.NoteOff(ch, int32(ev.key))
				active[ev.key] = false
			}
		}
		for _, ev := range events {
			if ev.start >= start && ev.start < end && !active[ev.key] {
				syn.NoteOn(ch, int32(ev.key), int32(ev.vel))
				active[ev.key] = true
			}
		}
	}

	for pos := 0; pos < totalSamples; pos += synthBlock {
		n := synthBlock
		if pos+n > totalSamples {
			n = totalSamples - pos
		}
		trigger(pos, n)
		// Render a full block, trim to what we need to keep timing exact.
		left := make([]float32, synthBlock)
		right := make([]float32, synthBlock)
		syn.Render(left, right)
		leftAll = append(leftAll, left[:n]...)
		rightAll = append(rightAll, right[:n]...)
	}
	return leftAll, rightAll, nil
}

// interleavePCM peak-normalizes the rendered channels and packs them as
// interleaved 16-bit little-endian stereo.
func interleavePCM(left, right []float32) []byte {
	var peak float32
	for i := range left {
		if v := left[i]; v < 0 {
			v = -v
			if v > peak {
				peak = v
			}
		} else if v > peak {
			peak = v
		}
		if v := right[i]; v < 0 {
			v = -v
			if v > peak {
				peak = v
			}
		} else if v > peak {
			peak = v
		}
	}
	gain := float32(1)
	if peak > 0 {
		gain = 0.99 / peak
	}

	samples := make([]int16, len(left)*2)
	for i := range left {
		samples[i*2] = int16(left[i] * gain * 32767)
		samples[i*2+1] = int16(right[i] * gain * 32767)
	}
	return samplesToPCM(samples)
}

// jackpotJingle is the built-in celebration figure played on big wins when
// a SoundFont is available: an ascending major arpeggio with a held top
// chord.
func jackpotJingle() []Note {
	step := 90 * time.Millisecond
	notes := []Note{
		{Key: 60, Velocity: 110, Start: 0, Duration: step * 2},
		{Key: 64, Velocity: 110, Start: step, Duration: step * 2},
		{Key: 67, Velocity: 115, Start: step * 2, Duration: step * 2},
		{Key: 72, Velocity: 120, Start: step * 3, Duration: step * 8},
		{Key: 76, Velocity: 115, Start: step * 4, Duration: step * 7},
		{Key: 79, Velocity: 112, Start: step * 5, Duration: step * 6},
	}
	return notes
}
