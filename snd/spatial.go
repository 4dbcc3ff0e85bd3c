package snd

import (
	"math"
	"math/rand"
)

// Inverse distance model constants. Positions use the same arbitrary world
// units as the callers' game scenes; refDistance is the radius of full
// volume and rolloff shapes how quickly gain falls beyond it.
const (
	spatialRefDistance = 50.0
	spatialMaxDistance = 1000.0
	spatialRolloff     = 1.0
)

// spatialGains converts a 3-D position (and optional emission cone) into
// per-ear gains: equal-power panning from the horizontal component scaled
// by inverse-distance attenuation. The listener sits at the origin.
func spatialGains(pos Position, cone *Cone) (left, right float64) {
	d := math.Sqrt(pos.X*pos.X + pos.Y*pos.Y + pos.Z*pos.Z)
	att := distanceAttenuation(d)
	if cone != nil {
		att *= coneAttenuation(pos, cone)
	}

	pan := 0.0
	if d > 0 {
		pan = pos.X / math.Max(d, spatialRefDistance)
	}
	left, right = panGains(pan)
	return left * att, right * att
}

// distanceAttenuation implements the inverse falloff model.
func distanceAttenuation(d float64) float64 {
	if d < spatialRefDistance {
		return 1
	}
	if d > spatialMaxDistance {
		d = spatialMaxDistance
	}
	return spatialRefDistance / (spatialRefDistance + spatialRolloff*(d-spatialRefDistance))
}

// coneAttenuation models directional emission: full gain inside the inner
// angle, the outer-gain floor outside the outer angle, and a linear blend
// across the transition. Sources are treated as facing the listener, so
// the off-axis angle is the source's bearing from straight-on.
func coneAttenuation(pos Position, cone *Cone) float64 {
	d := math.Sqrt(pos.X*pos.X + pos.Y*pos.Y + pos.Z*pos.Z)
	if d == 0 {
		return 1
	}
	angle := math.Acos(clampRange(-pos.Z/d, -1, 1)) * 180 / math.Pi
	inner := cone.InnerAngle / 2
	outer := cone.OuterAngle / 2
	switch {
	case angle <= inner:
		return 1
	case angle >= outer:
		return clamp01(cone.OuterGain)
	default:
		t := (angle - inner) / (outer - inner)
		return 1 + t*(clamp01(cone.OuterGain)-1)
	}
}

// panGains maps pan in [-1,1] to equal-power left/right gains.
func panGains(pan float64) (left, right float64) {
	p := (clampRange(pan, -1, 1) + 1) / 2
	return math.Sqrt(1 - p), math.Sqrt(p)
}

func clampRange(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

// spreadPosition places an ensemble voice randomly within an arc in front
// of the listener, for layered celebration stingers.
func spreadPosition(radius, arcDegrees float64) Position {
	if radius <= 0 {
		radius = spatialRefDistance
	}
	half := arcDegrees / 2 * math.Pi / 180
	theta := (rand.Float64()*2 - 1) * half
	return Position{
		X: radius * math.Sin(theta),
		Z: -radius * math.Cos(theta),
	}
}
