// Package flow defines the per-cell water direction carried by stream
// pieces, and the compass directions their anchors face.
package flow

import (
	"fmt"
	"math"
)

// Flow is one of 16 compass points, clockwise from north in 22.5 degree
// steps, or None for a dry cell. North is -Z, east is +X.
type Flow uint8

const (
	NNN Flow = iota
	NNE
	N_E
	NEE
	EEE
	SEE
	S_E
	SSE
	SSS
	SSW
	S_W
	SWW
	WWW
	NWW
	N_W
	NNW
	None
)

const points = 16

var flowNames = [...]string{
	"NNN", "NNE", "N_E", "NEE", "EEE", "SEE", "S_E", "SSE",
	"SSS", "SSW", "S_W", "SWW", "WWW", "NWW", "N_W", "NNW",
	"___",
}

func (f Flow) String() string {
	if int(f) < len(flowNames) {
		return flowNames[f]
	}
	return fmt.Sprintf("Flow(%d)", uint8(f))
}

// ParseFlow reads the three-character token used by the template catalog.
func ParseFlow(s string) (Flow, error) {
	for i, n := range flowNames {
		if n == s {
			return Flow(i), nil
		}
	}
	return None, fmt.Errorf("unknown flow token %q", s)
}

func (f Flow) RotateCW() Flow {
	if f == None {
		return None
	}
	return Flow((int(f) + 4) % points)
}

// MirrorX flips the east/west component.
func (f Flow) MirrorX() Flow {
	if f == None {
		return None
	}
	return Flow((points - int(f)) % points)
}

// Vector returns the unit vector (x, z) of f; None is the zero vector.
func (f Flow) Vector() (float64, float64) {
	if f >= None {
		return 0, 0
	}
	a := float64(f) * math.Pi / 8
	return math.Sin(a), -math.Cos(a)
}

// FromVector quantizes (x, z) to the nearest compass point. Vectors shorter
// than half a unit are treated as dry.
func FromVector(x, z float64) Flow {
	if x*x+z*z < 0.25 {
		return None
	}
	a := math.Atan2(x, -z)
	i := int(math.Round(a / (math.Pi / 8)))
	return Flow(((i % points) + points) % points)
}

// Lerp blends four neighbouring cells with bilinear weights. fx and fz are
// the fractional offsets from the north-west cell.
func Lerp(nw, ne, sw, se Flow, fx, fz float64) Flow {
	nwx, nwz := nw.Vector()
	nex, nez := ne.Vector()
	swx, swz := sw.Vector()
	sex, sez := se.Vector()
	wNW := (1 - fx) * (1 - fz)
	wNE := fx * (1 - fz)
	wSW := (1 - fx) * fz
	wSE := fx * fz
	x := nwx*wNW + nex*wNE + swx*wSW + sex*wSE
	z := nwz*wNW + nez*wNE + swz*wSW + sez*wSE
	return FromVector(x, z)
}
