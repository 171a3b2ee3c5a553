package ratelimit

import "fmt"

// Preset names a sensitivity class of routes.
type Preset string

const (
	PresetAuth    Preset = "auth"
	PresetAdmin   Preset = "admin"
	PresetAPI     Preset = "api"
	PresetIngest  Preset = "ingest"
	PresetConsent Preset = "consent"
)

// Presets maps each preset to its limit.
type Presets map[Preset]Config

// Get returns the limit for p.
func (p Presets) Get(name Preset) (Config, error) {
	cfg, ok := p[name]
	if !ok {
		return Config{}, fmt.Errorf("ratelimit: unknown preset %q", name)
	}
	return cfg, nil
}
