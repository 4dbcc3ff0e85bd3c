package snd

import (
	"math"
	"math/rand"
)

// Reverb send constants: a short, bright hall suited to slot-floor
// celebration sounds. The wet path is mixed back into the same buffer the
// dry signal plays from, at a fixed send level.
const (
	reverbWetMix     = 0.18
	reverbTailSec    = 0.9
	reverbTapsPerSec = 260
	reverbShelfHz    = 3800.0
	reverbShelfDB    = -3.0
)

type irTap struct {
	delay int // frames
	gain  float64
}

// impulseResponse is a sparse tap representation of a room response. Dense
// recorded responses are decimated into taps so the convolution stays
// cheap enough for per-play processing.
type impulseResponse struct {
	taps []irTap
	rate int
}

// synthesizeIR builds a velvet-noise impulse response: randomly jittered
// sign-flipped taps under an exponential decay.
func synthesizeIR(rate int) *impulseResponse {
	tailFrames := int(reverbTailSec * float64(rate))
	count := int(reverbTailSec * reverbTapsPerSec)
	if count < 1 || tailFrames < 1 {
		return &impulseResponse{rate: rate}
	}
	grid := float64(tailFrames) / float64(count)
	taps := make([]irTap, 0, count)
	for i := 0; i < count; i++ {
		pos := int(float64(i)*grid + rand.Float64()*grid)
		if pos >= tailFrames {
			pos = tailFrames - 1
		}
		decay := math.Exp(-6.9 * float64(pos) / float64(tailFrames))
		gain := decay / math.Sqrt(float64(count))
		if rand.Intn(2) == 0 {
			gain = -gain
		}
		taps = append(taps, irTap{delay: pos, gain: gain})
	}
	return &impulseResponse{taps: taps, rate: rate}
}

// irFromPCM decimates a decoded impulse-response recording into sparse
// taps, keeping relative energy by scaling for the stride.
func irFromPCM(pcm []byte, rate int) *impulseResponse {
	samples := pcmToSamples(pcm)
	frames := len(samples) / 2
	if frames == 0 {
		return synthesizeIR(rate)
	}
	maxFrames := int(reverbTailSec * float64(rate) * 2)
	if frames > maxFrames {
		frames = maxFrames
	}
	stride := frames / int(reverbTailSec*reverbTapsPerSec)
	if stride < 1 {
		stride = 1
	}
	norm := math.Sqrt(float64(stride)) / 32768
	taps := make([]irTap, 0, frames/stride+1)
	for f := 0; f < frames; f += stride {
		mono := (float64(samples[f*2]) + float64(samples[f*2+1])) / 2
		g := mono * norm
		if g != 0 {
			taps = append(taps, irTap{delay: f, gain: g})
		}
	}
	if len(taps) == 0 {
		return synthesizeIR(rate)
	}
	return &impulseResponse{taps: taps, rate: rate}
}

// applyReverb convolves the buffer with the impulse response and mixes the
// high-shelved wet signal back in. The buffer grows by the reverb tail so
// the decay is not cut off at the dry signal's end.
func applyReverb(samples []int16, ir *impulseResponse) []int16 {
	if ir == nil || len(ir.taps) == 0 || len(samples) == 0 {
		return samples
	}
	dryFrames := len(samples) / 2
	tail := int(reverbTailSec * float64(ir.rate))
	outFrames := dryFrames + tail
	wetL := make([]float64, outFrames)
	wetR := make([]float64, outFrames)

	for _, tap := range ir.taps {
		for f := 0; f < dryFrames; f++ {
			o := f + tap.delay
			if o >= outFrames {
				break
			}
			wetL[o] += float64(samples[f*2]) * tap.gain
			wetR[o] += float64(samples[f*2+1]) * tap.gain
		}
	}

	// Tame the top end of the wet path like a real room would.
	shelfL := newHighShelf(float64(ir.rate), reverbShelfHz, reverbShelfDB)
	shelfR := newHighShelf(float64(ir.rate), reverbShelfHz, reverbShelfDB)
	for i := 0; i < outFrames; i++ {
		wetL[i] = shelfL.process(wetL[i])
		wetR[i] = shelfR.process(wetR[i])
	}

	out := make([]int16, outFrames*2)
	for f := 0; f < outFrames; f++ {
		var dl, dr float64
		if f < dryFrames {
			dl = float64(samples[f*2])
			dr = float64(samples[f*2+1])
		}
		out[f*2] = clampS16(dl + wetL[f]*reverbWetMix)
		out[f*2+1] = clampS16(dr + wetR[f]*reverbWetMix)
	}
	return out
}
