package lacore

/*------------------------------------------------------------------
 *
 * Purpose:	Model descriptor table: per-device capabilities consumed
 *		(not computed) by this core.  See spec.md section 1
 *		("only its outputs ... are consumed") and section 3.
 *
 * Description:	Serial-number/EEPROM parsing for model dispatch lives
 *		outside this core; callers resolve a ModelDescriptor and
 *		hand it to Open. The table of known descriptors is still
 *		useful as reference data for tests and for a framework that
 *		wants a starting point, so it is loaded from an embedded
 *		YAML document the same way the teacher's deviceid.go loads
 *		its tocalls.yaml device database with gopkg.in/yaml.v3: a
 *		tabular external-model registry is data, not code.
 *
 *------------------------------------------------------------------*/

import (
	_ "embed"

	"gopkg.in/yaml.v3"
)

// Family distinguishes the two device families this core drives.
type Family int

const (
	FamilySigma Family = iota
	FamilyLA2016
)

func (f Family) String() string {
	if f == FamilySigma {
		return "sigma"
	}
	return "la2016"
}

// SigmaVariant names the five firmware bitstreams the SIGMA family can run.
type SigmaVariant int

const (
	SigmaVariant50MHz SigmaVariant = iota
	SigmaVariant100MHz
	SigmaVariant200MHz
	SigmaVariantSync
	SigmaVariantPhasor
)

func (v SigmaVariant) resourceName() string {
	switch v {
	case SigmaVariant50MHz:
		return "sigma-50"
	case SigmaVariant100MHz:
		return "sigma-100"
	case SigmaVariant200MHz:
		return "sigma-200"
	case SigmaVariantSync:
		return "sigma-sync"
	case SigmaVariantPhasor:
		return "sigma-phasor"
	default:
		return "sigma-unknown"
	}
}

// ModelDescriptor is the per-model capability set the core consumes;
// everything needed to resolve one (USB IDs, EEPROM magic bytes) is an
// external collaborator.
type ModelDescriptor struct {
	Name             string `yaml:"name"`
	Family           Family `yaml:"-"`
	FamilyName       string `yaml:"family"`
	MaxSamplerateHz  uint64 `yaml:"max_samplerate_hz"`
	ChannelCount     int    `yaml:"channel_count"`
	HasSampleMemory  bool   `yaml:"has_sample_memory"`
	BaseClockHz      uint64 `yaml:"base_clock_hz"`
	BitstreamName    string `yaml:"bitstream_name,omitempty"` // LA2016: EEPROM-magic-keyed bitstream
	MCUFirmwareName  string `yaml:"mcu_firmware_name,omitempty"`
}

//go:embed models.yaml
var modelsYAML []byte

// KnownModels is the table of model descriptors shipped with this package,
// keyed by Name. It is reference data only: nothing in the acquisition
// path requires a caller to use it, since spec.md section 1 treats model
// resolution as an external collaborator.
var KnownModels = mustLoadModels(modelsYAML)

func mustLoadModels(doc []byte) map[string]*ModelDescriptor {
	var raw []*ModelDescriptor
	if err := yaml.Unmarshal(doc, &raw); err != nil {
		panic("lacore: embedded models.yaml is invalid: " + err.Error())
	}
	var out = make(map[string]*ModelDescriptor, len(raw))
	for _, m := range raw {
		if m.FamilyName == "la2016" {
			m.Family = FamilyLA2016
		} else {
			m.Family = FamilySigma
		}
		out[m.Name] = m
	}
	return out
}
