package snd

import (
	"encoding/binary"
	"math"
	"time"
)

// pcmToSamples converts interleaved little-endian 16-bit PCM bytes into
// int16 samples. Odd trailing bytes are dropped.
func pcmToSamples(pcm []byte) []int16 {
	out := make([]int16, len(pcm)/2)
	for i := range out {
		out[i] = int16(binary.LittleEndian.Uint16(pcm[2*i:]))
	}
	return out
}

func samplesToPCM(samples []int16) []byte {
	out := make([]byte, len(samples)*2)
	for i, v := range samples {
		binary.LittleEndian.PutUint16(out[2*i:], uint16(v))
	}
	return out
}

func clampS16(v float64) int16 {
	if v > 32767 {
		return 32767
	}
	if v < -32768 {
		return -32768
	}
	return int16(v)
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}

func dbToLinear(db float64) float64 {
	return math.Pow(10, db/20)
}

// resampleStereo linearly resamples interleaved stereo samples from srcRate
// to dstRate. Used both for rate-shifted playback and for normalizing
// decoded assets to the engine rate.
func resampleStereo(src []int16, srcRate, dstRate int) []int16 {
	frames := len(src) / 2
	if frames == 0 {
		return nil
	}
	if srcRate <= 0 || dstRate <= 0 || srcRate == dstRate {
		out := make([]int16, frames*2)
		copy(out, src)
		return out
	}

	n := int(math.Round(float64(frames) * float64(dstRate) / float64(srcRate)))
	if n < 1 {
		n = 1
	}
	out := make([]int16, n*2)
	step := float64(srcRate) / float64(dstRate)
	lastIdx := frames - 1
	for ch := 0; ch < 2; ch++ {
		pos := 0.0
		for i := 0; i < n; i++ {
			idx := int(pos)
			if idx > lastIdx {
				idx = lastIdx
			}
			frac := pos - float64(idx)
			s0 := float64(src[idx*2+ch])
			s1 := s0
			if idx < lastIdx {
				s1 = float64(src[(idx+1)*2+ch])
			}
			out[i*2+ch] = int16(math.Round(s0 + (s1-s0)*frac))
			pos += step
		}
	}
	return out
}

// applyFadeEnvelope applies linear fade-in/fade-out ramps in place. The
// fade-out is anchored to the end of the buffer so it completes exactly at
// the known duration.
func applyFadeEnvelope(samples []int16, rate int, fadeIn, fadeOut time.Duration) {
	frames := len(samples) / 2
	if frames == 0 || rate <= 0 {
		return
	}
	inFrames := int(fadeIn.Seconds() * float64(rate))
	outFrames := int(fadeOut.Seconds() * float64(rate))
	if inFrames > frames {
		inFrames = frames
	}
	if outFrames > frames {
		outFrames = frames
	}
	for i := 0; i < inFrames; i++ {
		g := float64(i) / float64(inFrames)
		samples[i*2] = int16(float64(samples[i*2]) * g)
		samples[i*2+1] = int16(float64(samples[i*2+1]) * g)
	}
	for i := 0; i < outFrames; i++ {
		g := float64(outFrames-1-i) / float64(outFrames)
		f := frames - outFrames + i
		samples[f*2] = int16(float64(samples[f*2]) * g)
		samples[f*2+1] = int16(float64(samples[f*2+1]) * g)
	}
}

// applyClickGuard fades ~5ms at both ends to avoid clicks on abrupt edges.
func applyClickGuard(samples []int16, rate int) {
	guard := time.Duration(5) * time.Millisecond
	applyFadeEnvelope(samples, rate, guard, guard)
}

// applyStereoGains scales left and right channels independently.
func applyStereoGains(samples []int16, left, right float64) {
	for i := 0; i+1 < len(samples); i += 2 {
		samples[i] = clampS16(float64(samples[i]) * left)
		samples[i+1] = clampS16(float64(samples[i+1]) * right)
	}
}

type biquad struct {
	b0, b1, b2 float64
	a1, a2     float64
	z1, z2     float64
}

func newBiquad(b0, b1, b2, a0, a1, a2 float64) *biquad {
	if a0 == 0 {
		return nil
	}
	inv := 1 / a0
	return &biquad{b0: b0 * inv, b1: b1 * inv, b2: b2 * inv, a1: a1 * inv, a2: a2 * inv}
}

func (b *biquad) process(x float64) float64 {
	if b == nil {
		return x
	}
	y := b.b0*x + b.z1
	b.z1 = b.b1*x - b.a1*y + b.z2
	b.z2 = b.b2*x - b.a2*y
	return y
}

func newHighShelf(fs, freq, gainDB float64) *biquad {
	if fs <= 0 || freq <= 0 {
		return nil
	}
	if freq >= fs/2 {
		freq = fs/2 - 1
		if freq <= 0 {
			freq = fs / 4
		}
	}
	A := math.Pow(10, gainDB/40)
	w0 := 2 * math.Pi * freq / fs
	sinW0 := math.Sin(w0)
	cosW0 := math.Cos(w0)
	alpha := sinW0 / math.Sqrt2
	beta := 2 * math.Sqrt(A) * alpha

	b0 := A * ((A + 1) + (A-1)*cosW0 + beta)
	b1 := -2 * A * ((A - 1) + (A+1)*cosW0)
	b2 := A * ((A + 1) + (A-1)*cosW0 - beta)
	a0 := (A + 1) - (A-1)*cosW0 + beta
	a1 := 2 * ((A - 1) - (A+1)*cosW0)
	a2 := (A + 1) - (A-1)*cosW0 - beta
	return newBiquad(b0, b1, b2, a0, a1, a2)
}

// Compressor constants tuned for casino-effect loudness consistency. Not
// user configurable.
const (
	compThresholdDB = -24.0
	compKneeDB      = 30.0
	compRatio       = 12.0
	compAttackSec   = 0.003
	compReleaseSec  = 0.25
	compMakeupDB    = 3.0
)

// applyCompressor runs a feed-forward dynamics compressor over the buffer
// in place. The envelope follows the per-frame stereo peak.
func applyCompressor(samples []int16, rate int) {
	frames := len(samples) / 2
	if frames == 0 || rate <= 0 {
		return
	}
	attack := math.Exp(-1 / (float64(rate) * compAttackSec))
	release := math.Exp(-1 / (float64(rate) * compReleaseSec))
	makeup := dbToLinear(compMakeupDB)

	env := 0.0
	for i := 0; i < frames; i++ {
		l := float64(samples[i*2]) / 32768
		r := float64(samples[i*2+1]) / 32768
		peak := math.Max(math.Abs(l), math.Abs(r))
		if peak > env {
			env = attack*env + (1-attack)*peak
		} else {
			env = release*env + (1-release)*peak
		}

		gain := makeup
		if env > 0 {
			envDB := 20 * math.Log10(env)
			over := envDB - compThresholdDB
			var grDB float64
			switch {
			case over <= -compKneeDB/2:
				grDB = 0
			case over < compKneeDB/2:
				// Soft knee: quadratic interpolation across the knee width.
				x := over + compKneeDB/2
				grDB = (1 - 1/compRatio) * x * x / (2 * compKneeDB)
			default:
				grDB = over - over/compRatio
			}
			gain = dbToLinear(-grDB) * makeup
		}
		samples[i*2] = clampS16(l * gain * 32767)
		samples[i*2+1] = clampS16(r * gain * 32767)
	}
}
