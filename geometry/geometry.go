// Package geometry models the physical layout of an AUTD array: a set of
// devices, each an 18x14 grid of transducers (minus three fixed missing
// positions) placed by an affine pose in a shared global frame.
package geometry

import "github.com/vetricore/autdhost/wire"

// Vector3 is a point or direction in millimetres.
type Vector3 struct {
	X, Y, Z float64
}

func (v Vector3) Add(o Vector3) Vector3 { return Vector3{v.X + o.X, v.Y + o.Y, v.Z + o.Z} }
func (v Vector3) Sub(o Vector3) Vector3 { return Vector3{v.X - o.X, v.Y - o.Y, v.Z - o.Z} }
func (v Vector3) Scale(s float64) Vector3 {
	return Vector3{v.X * s, v.Y * s, v.Z * s}
}
func (v Vector3) Dot(o Vector3) float64 { return v.X*o.X + v.Y*o.Y + v.Z*o.Z }

// missingY is the grid row (0-indexed) with fixed missing positions.
const missingY = 1

// missingX is the set of grid columns missing at missingY.
var missingX = map[int]bool{1: true, 2: true, 16: true}

// TransducerLocalPositions returns the NumTransInUnit local-frame
// transducer positions on the 18x14 grid, skipping the three fixed
// missing slots, ordered row-major.
func TransducerLocalPositions() [wire.NumTransInUnit]Vector3 {
	var out [wire.NumTransInUnit]Vector3
	idx := 0
	for y := 0; y < wire.NumTransY; y++ {
		for x := 0; x < wire.NumTransX; x++ {
			if y == missingY && missingX[x] {
				continue
			}
			out[idx] = Vector3{
				X: float64(x) * wire.TransducerSize,
				Y: float64(y) * wire.TransducerSize,
				Z: 0,
			}
			idx++
		}
	}
	return out
}

// Device is one physical AUTD unit: an affine pose (origin plus three
// orthonormal direction vectors) in the global frame.
type Device struct {
	Origin  Vector3
	X, Y, Z Vector3 // orthonormal basis vectors of the device's local frame

	local [wire.NumTransInUnit]Vector3
}

// NewDevice builds a device at the given pose. X, Y and Z must be an
// orthonormal basis; Z is conventionally the outward emission normal.
func NewDevice(origin, x, y, z Vector3) *Device {
	return &Device{Origin: origin, X: x, Y: y, Z: z, local: TransducerLocalPositions()}
}

// TransducerGlobalPosition returns the global-frame position of
// transducer i (0 <= i < NumTransInUnit).
func (d *Device) TransducerGlobalPosition(i int) Vector3 {
	l := d.local[i]
	return d.Origin.
		Add(d.X.Scale(l.X)).
		Add(d.Y.Scale(l.Y)).
		Add(d.Z.Scale(l.Z))
}

// ToLocal projects a global-frame point into this device's local frame.
func (d *Device) ToLocal(global Vector3) Vector3 {
	rel := global.Sub(d.Origin)
	return Vector3{X: rel.Dot(d.X), Y: rel.Dot(d.Y), Z: rel.Dot(d.Z)}
}

// Geometry is an immutable (after construction) collection of devices.
type Geometry struct {
	devices []*Device
}

// New builds a Geometry from devices in emission order. Geometry is
// immutable after construction; device poses cannot change while a
// link is open.
func New(devices ...*Device) *Geometry {
	cp := make([]*Device, len(devices))
	copy(cp, devices)
	return &Geometry{devices: cp}
}

func (g *Geometry) NumDevices() int      { return len(g.devices) }
func (g *Geometry) Device(i int) *Device { return g.devices[i] }

func (g *Geometry) Devices() []*Device {
	out := make([]*Device, len(g.devices))
	copy(out, g.devices)
	return out
}
