// Package config parses vo.toml, the runtime's own configuration file:
// GC tuning, JIT thresholds, and the debug server's listen address.
package config

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/BurntSushi/toml"

	"github.com/chazu/vo/internal/gc"
)

// Config is the root of vo.toml, adapted from manifest.Manifest's
// Load/defaulting pattern.
type Config struct {
	GC    GCConfig    `toml:"gc"`
	JIT   JITConfig   `toml:"jit"`
	Debug DebugConfig `toml:"debug"`

	// Dir is the directory containing the vo.toml file (set at load time).
	Dir string `toml:"-"`
}

// GCConfig mirrors gc.Tuning's two knobs.
type GCConfig struct {
	Pause   int `toml:"pause"`
	StepMul int `toml:"stepmul"`
}

// JITConfig controls internal/jit's warm-up thresholds.
type JITConfig struct {
	Enabled           bool `toml:"enabled"`
	CallThreshold     int  `toml:"call_threshold"`
	BackedgeThreshold int  `toml:"backedge_threshold"`
}

// DebugConfig controls internal/debugserver.
type DebugConfig struct {
	Listen string `toml:"listen"` // empty disables the debug server
}

// Default returns a Config with spec.md/SPEC_FULL.md's stated defaults.
func Default() Config {
	return Config{
		GC: GCConfig{
			Pause:   gc.DefaultTuning().Pause,
			StepMul: gc.DefaultTuning().StepMul,
		},
		JIT: JITConfig{
			Enabled:           true,
			CallThreshold:     100,
			BackedgeThreshold: 50,
		},
	}
}

// Load parses a vo.toml file from the given directory, defaulting any
// field the file omits.
func Load(dir string) (*Config, error) {
	path := filepath.Join(dir, "vo.toml")
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("config: cannot read %s: %w", path, err)
	}

	c := Default()
	if err := toml.Unmarshal(data, &c); err != nil {
		return nil, fmt.Errorf("config: parse error in %s: %w", path, err)
	}

	c.Dir, err = filepath.Abs(dir)
	if err != nil {
		return nil, fmt.Errorf("config: cannot resolve path %s: %w", dir, err)
	}
	return &c, nil
}

// FindAndLoad walks up from startDir looking for a vo.toml file, the same
// way manifest.FindAndLoad walks for maggie.toml. Returns a default
// Config, not an error, if none is found — vo.toml is optional.
func FindAndLoad(startDir string) (*Config, error) {
	dir, err := filepath.Abs(startDir)
	if err != nil {
		return nil, err
	}

	for {
		path := filepath.Join(dir, "vo.toml")
		if _, err := os.Stat(path); err == nil {
			return Load(dir)
		}

		parent := filepath.Dir(dir)
		if parent == dir {
			c := Default()
			return &c, nil
		}
		dir = parent
	}
}

// Tuning converts the [gc] table into a gc.Tuning value.
func (c *Config) Tuning() gc.Tuning {
	return gc.Tuning{Pause: c.GC.Pause, StepMul: c.GC.StepMul}
}
