// Command autdctl is a thin composition-root CLI: it loads a device
// geometry and transport selection from a YAML config file, opens a
// Facade, and runs one of a small set of fixed routines (clear,
// firmware query, geometry dump). It never computes a gain from an
// acoustic target; synthesis tools live elsewhere.
package main

import (
	"fmt"
	"math"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/vetricore/autdhost/geometry"
)

// deviceConfig is one device's pose in the YAML config file: an
// origin plus a rotation (degrees) about the global Z axis. Arbitrary
// poses need geometry.NewDevice directly; the config file covers the
// common planar/ringed layouts.
type deviceConfig struct {
	Origin    [3]float64 `yaml:"origin"`
	RotateDeg float64    `yaml:"rotate_deg"`
}

// transportConfig selects and parametrizes one of the two Transport
// backends.
type transportConfig struct {
	Kind string `yaml:"kind"` // "ethercat" or "ads"

	// ethercat
	Interface  string `yaml:"interface"`
	IntervalUS int    `yaml:"interval_us"`

	// ads
	Addr  string `yaml:"addr"`
	NetID string `yaml:"net_id"`
}

// fileConfig is the top-level YAML document shape.
type fileConfig struct {
	Devices   []deviceConfig  `yaml:"devices"`
	Transport transportConfig `yaml:"transport"`
	LogLevel  string          `yaml:"log_level"`
}

func loadConfig(path string) (*fileConfig, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}
	var cfg fileConfig
	if err := yaml.Unmarshal(raw, &cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}
	if len(cfg.Devices) == 0 {
		return nil, fmt.Errorf("config: at least one device is required")
	}
	return &cfg, nil
}

// buildGeometry turns the parsed device poses into a geometry.Geometry,
// rotating each device's local basis about Z by its configured angle.
func (c *fileConfig) buildGeometry() *geometry.Geometry {
	devices := make([]*geometry.Device, len(c.Devices))
	for i, dc := range c.Devices {
		origin := geometry.Vector3{X: dc.Origin[0], Y: dc.Origin[1], Z: dc.Origin[2]}
		rad := dc.RotateDeg * math.Pi / 180
		sin, cos := math.Sin(rad), math.Cos(rad)
		x := geometry.Vector3{X: cos, Y: sin, Z: 0}
		y := geometry.Vector3{X: -sin, Y: cos, Z: 0}
		z := geometry.Vector3{X: 0, Y: 0, Z: 1}
		devices[i] = geometry.NewDevice(origin, x, y, z)
	}
	return geometry.New(devices...)
}
