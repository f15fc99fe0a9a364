// Package gain models the per-transducer drive computation: the packed
// 16-bit phase+duty drive value, the per-device DriveArray, and the Gain
// interface that computes one DriveArray per device from geometry. Most
// gains (holographic optimizers, beam synthesizers, ...) are expected to
// live outside this package and just implement the interface; FocalPoint
// is kept here as the one minimal synthesis routine worth shipping
// directly.
package gain

import (
	"math"

	"github.com/vetricore/autdhost/geometry"
	"github.com/vetricore/autdhost/wire"
)

// Drive is the packed 16-bit per-transducer command: low byte phase
// (0..255, 1/256 wavelength units), high byte duty (pulse-width code).
type Drive uint16

// NewDrive packs a phase and duty byte into a Drive.
func NewDrive(phase, duty uint8) Drive {
	return Drive(uint16(duty)<<8 | uint16(phase))
}

func (d Drive) Phase() uint8 { return uint8(d) }
func (d Drive) Duty() uint8  { return uint8(d >> 8) }

// DutyFromAmplitude converts a normalized amplitude in [0,1] to the
// firmware's pulse-width duty code: duty = round(510*asin(amp)/pi).
// Values outside [0,1] are clamped.
func DutyFromAmplitude(amp float64) uint8 {
	if amp < 0 {
		amp = 0
	}
	if amp > 1 {
		amp = 1
	}
	d := math.Round(510 * math.Asin(amp) / math.Pi)
	return uint8(d)
}

// PhaseFromDistance maps a propagation distance (mm) to the 0..255 phase
// code at the ultrasound wavelength:
// phase byte = round(255 * (1 - (dist mod wavelength) / wavelength)).
func PhaseFromDistance(distMM float64) uint8 {
	wl := wire.UltrasoundWavelength
	rem := math.Mod(distMM, wl)
	if rem < 0 {
		rem += wl
	}
	p := math.Round(255 * (1 - rem/wl))
	if p >= 256 {
		p -= 256
	}
	return uint8(p)
}

// DriveArray is one device's NumTransInUnit packed drive values.
type DriveArray [wire.NumTransInUnit]Drive

// Gain computes one DriveArray per device from geometry. Implementations
// must be safe to call Build multiple times: a built gain returns its
// cached result unless explicitly invalidated.
type Gain interface {
	// Build computes (or recomputes) the per-device drive arrays against
	// geometry and returns them in device order.
	Build(g *geometry.Geometry) ([]DriveArray, error)
}

// Base provides the built-once bookkeeping: a Gain holds one DriveArray
// per device and is marked built after its first compute, so rebuilding
// is idempotent unless explicitly invalidated. Concrete gains embed Base
// and call its CachedBuild from their own Build method.
type Base struct {
	built  bool
	drives []DriveArray
}

// CachedBuild returns the cached result if already built, else calls
// compute, caches, and marks built.
func (b *Base) CachedBuild(compute func() ([]DriveArray, error)) ([]DriveArray, error) {
	if b.built {
		return b.drives, nil
	}
	drives, err := compute()
	if err != nil {
		return nil, err
	}
	b.drives = drives
	b.built = true
	return drives, nil
}

// Invalidate clears the built flag so the next Build recomputes.
func (b *Base) Invalidate() { b.built = false; b.drives = nil }

// Built reports whether this gain has been computed at least once since
// construction or the last Invalidate.
func (b *Base) Built() bool { return b.built }

// Null is the all-zero gain sent on shutdown: Logic sends a null gain,
// then a clear, as the last thing it does before closing its Transport.
type Null struct{ Base }

func (n *Null) Build(g *geometry.Geometry) ([]DriveArray, error) {
	return n.CachedBuild(func() ([]DriveArray, error) {
		return make([]DriveArray, g.NumDevices()), nil
	})
}

// FocalPoint drives every transducer in every device toward a single
// focal point at the given global-frame position and normalized
// amplitude.
type FocalPoint struct {
	Base
	Point     geometry.Vector3
	Amplitude float64
}

func NewFocalPoint(point geometry.Vector3, amplitude float64) *FocalPoint {
	return &FocalPoint{Point: point, Amplitude: amplitude}
}

func (f *FocalPoint) Build(g *geometry.Geometry) ([]DriveArray, error) {
	return f.CachedBuild(func() ([]DriveArray, error) {
		duty := DutyFromAmplitude(f.Amplitude)
		out := make([]DriveArray, g.NumDevices())
		for di := 0; di < g.NumDevices(); di++ {
			dev := g.Device(di)
			for ti := 0; ti < wire.NumTransInUnit; ti++ {
				pos := dev.TransducerGlobalPosition(ti)
				dist := math.Sqrt(
					math.Pow(f.Point.X-pos.X, 2) +
						math.Pow(f.Point.Y-pos.Y, 2) +
						math.Pow(f.Point.Z-pos.Z, 2),
				)
				phase := PhaseFromDistance(dist)
				out[di][ti] = NewDrive(phase, duty)
			}
		}
		return out, nil
	})
}

// PackBodies converts per-device DriveArrays into the raw uint16 arrays
// wire.PackGainBody expects.
func PackBodies(drives []DriveArray) [][wire.NumTransInUnit]uint16 {
	out := make([][wire.NumTransInUnit]uint16, len(drives))
	for i, da := range drives {
		for j, d := range da {
			out[i][j] = uint16(d)
		}
	}
	return out
}
