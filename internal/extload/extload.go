// Package extload loads native extensions described by a vo.ext.toml
// manifest: Go plugins exposing an extern function table, gated by an
// ABI version check (spec.md §6).
package extload

import (
	"fmt"
	"os"
	"path/filepath"
	"plugin"

	"github.com/BurntSushi/toml"

	"github.com/chazu/vo/internal/abi"
)

// ABIVersion is the native extension ABI this build implements. A
// manifest whose [extension] abi_version field doesn't match is refused
// at load time rather than risking a mismatched calling convention.
const ABIVersion = 1

// Manifest is the parsed form of vo.ext.toml, shaped after
// manifest.Manifest's dependency-table layout.
type Manifest struct {
	Extension ExtensionMeta    `toml:"extension"`
	Extern    []ExternEntry    `toml:"extern"`

	// Dir is the directory containing the vo.ext.toml file.
	Dir string `toml:"-"`
}

// ExtensionMeta names the extension and the ABI version it was built
// against.
type ExtensionMeta struct {
	Name       string `toml:"name"`
	Version    string `toml:"version"`
	ABIVersion int    `toml:"abi_version"`
	Plugin     string `toml:"plugin"` // path to the .so, relative to Dir
}

// ExternEntry names one extern function the plugin exports, following
// the dist package's capability-table style: a name the bytecode's
// Extern.Name can reference and the exported Go symbol backing it.
type ExternEntry struct {
	Name   string `toml:"name"`
	Symbol string `toml:"symbol"`
}

// Load parses a vo.ext.toml file from dir.
func Load(dir string) (*Manifest, error) {
	path := filepath.Join(dir, "vo.ext.toml")
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("extload: cannot read %s: %w", path, err)
	}

	var m Manifest
	if err := toml.Unmarshal(data, &m); err != nil {
		return nil, fmt.Errorf("extload: parse error in %s: %w", path, err)
	}

	m.Dir, err = filepath.Abs(dir)
	if err != nil {
		return nil, fmt.Errorf("extload: cannot resolve path %s: %w", dir, err)
	}
	return &m, nil
}

// CheckABI verifies the manifest declares the ABI version this build
// implements, refusing to load an extension built for a different one
// rather than crashing deep inside a mismatched plugin.Open/Lookup.
func (m *Manifest) CheckABI() error {
	if m.Extension.ABIVersion != ABIVersion {
		return fmt.Errorf("extload: extension %q declares ABI version %d, this runtime implements %d",
			m.Extension.Name, m.Extension.ABIVersion, ABIVersion)
	}
	return nil
}

// pluginSymbol is the signature every native extension plugin's exported
// symbol (named by ExternEntry.Symbol) must have.
type pluginSymbol = func(*abi.ExternCallContext) abi.ExternResult

// LoadAndRegister opens the manifest's plugin (the same go build
// -buildmode=plugin + plugin.Open mechanism internal/jit uses to load
// compiled hot functions) and registers each declared extern under its
// manifest name.
func LoadAndRegister(m *Manifest, r *abi.Registry) error {
	if err := m.CheckABI(); err != nil {
		return err
	}
	pluginPath := filepath.Join(m.Dir, m.Extension.Plugin)
	p, err := plugin.Open(pluginPath)
	if err != nil {
		return fmt.Errorf("extload: failed to open plugin %s: %w", pluginPath, err)
	}

	for _, e := range m.Extern {
		sym, err := p.Lookup(e.Symbol)
		if err != nil {
			return fmt.Errorf("extload: plugin %s missing symbol %q for extern %q: %w",
				m.Extension.Plugin, e.Symbol, e.Name, err)
		}
		fn, ok := sym.(pluginSymbol)
		if !ok {
			return fmt.Errorf("extload: symbol %q has wrong signature, expected func(*abi.ExternCallContext) abi.ExternResult", e.Symbol)
		}
		r.Register(e.Name, abi.ExternFunc(fn))
	}
	return nil
}
