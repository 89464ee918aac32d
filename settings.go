package falsify

import (
	"fmt"
	"os"
	"sync"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/roach88/falsify/internal/engine"
)

// Phase names one stage of the engine's state machine. See the engine
// package for execution order; Settings.Phases selects a subset.
type Phase = engine.Phase

// Re-exported phase names, in execution order.
const (
	PhaseExplicit = engine.PhaseExplicit
	PhaseReuse    = engine.PhaseReuse
	PhaseGenerate = engine.PhaseGenerate
	PhaseTarget   = engine.PhaseTarget
	PhaseShrink   = engine.PhaseShrink
	PhaseExplain  = engine.PhaseExplain
)

// NoDeadline disables the per-example deadline check.
const NoDeadline = time.Duration(-1)

// Settings is the typed, immutable configuration for one run. Settings
// are passed explicitly per test and never mutated globally mid-run.
//
// The zero value of a field means "use the default"; DefaultSettings
// spells the defaults out.
type Settings struct {
	// MaxExamples is the generate-phase budget: how many valid cases to
	// run before declaring the property unfalsified. Default 100.
	MaxExamples int

	// Deadline bounds one test-case execution. Exceeding it classifies
	// the case as TimedOut, which shrinks like a failure. Default 200ms;
	// NoDeadline disables the check.
	Deadline time.Duration

	// Phases selects which engine phases run. Empty means all.
	Phases []Phase

	// Derandomize pins the random seed for fully reproducible CI runs.
	Derandomize bool

	// Seed overrides the random seed. Zero with Derandomize unset means a
	// fresh seed per run; the chosen seed is always reported.
	Seed uint64

	// DatabaseEnabled controls the example database. Default true.
	// Disable with a pointer to false via WithoutDatabase, or by loading
	// a profile.
	DatabaseEnabled *bool

	// DatabasePath locates the example database file.
	// Default ".falsify/examples.db".
	DatabasePath string

	// MaxShrinkPasses bounds the shrinker's transform-catalog passes.
	// Default 1000.
	MaxShrinkPasses int
}

// DefaultSettings returns the documented defaults.
func DefaultSettings() Settings {
	enabled := true
	return Settings{
		MaxExamples:     100,
		Deadline:        200 * time.Millisecond,
		Derandomize:     false,
		DatabaseEnabled: &enabled,
		DatabasePath:    ".falsify/examples.db",
		MaxShrinkPasses: 1000,
	}
}

// WithoutDatabase returns a copy with the example database disabled.
func (s Settings) WithoutDatabase() Settings {
	disabled := false
	s.DatabaseEnabled = &disabled
	return s
}

// normalized fills zero-valued fields with defaults.
func (s Settings) normalized() Settings {
	def := DefaultSettings()
	if s.MaxExamples == 0 {
		s.MaxExamples = def.MaxExamples
	}
	if s.Deadline == 0 {
		s.Deadline = def.Deadline
	}
	if s.Deadline < 0 {
		s.Deadline = 0 // engine convention: zero disables
	}
	if s.DatabaseEnabled == nil {
		s.DatabaseEnabled = def.DatabaseEnabled
	}
	if s.DatabasePath == "" {
		s.DatabasePath = def.DatabasePath
	}
	if s.MaxShrinkPasses == 0 {
		s.MaxShrinkPasses = def.MaxShrinkPasses
	}
	return s
}

// databaseEnabled resolves the tri-state field.
func (s Settings) databaseEnabled() bool {
	return s.DatabaseEnabled == nil || *s.DatabaseEnabled
}

// Named settings profiles. Like the type registry, the profile table is
// process-wide state with explicit init: populate it at startup, read it
// when tests run.
var profiles = struct {
	mu sync.RWMutex
	m  map[string]Settings
}{m: make(map[string]Settings)}

// RegisterProfile stores a named settings profile, replacing any previous
// profile with the same name.
func RegisterProfile(name string, s Settings) {
	profiles.mu.Lock()
	defer profiles.mu.Unlock()
	profiles.m[name] = s
}

// Profile returns a previously registered profile.
func Profile(name string) (Settings, error) {
	profiles.mu.RLock()
	defer profiles.mu.RUnlock()
	s, ok := profiles.m[name]
	if !ok {
		return Settings{}, fmt.Errorf("falsify: no settings profile named %q", name)
	}
	return s, nil
}

// profileFile is the YAML shape of a profiles file:
//
//	profiles:
//	  ci:
//	    max_examples: 200
//	    derandomize: true
//	    deadline: 500ms
type profileFile struct {
	Profiles map[string]profileSpec `yaml:"profiles"`
}

type profileSpec struct {
	MaxExamples     *int     `yaml:"max_examples"`
	Deadline        *string  `yaml:"deadline"` // Go duration string; "none" disables
	Phases          []string `yaml:"phases"`
	Derandomize     *bool    `yaml:"derandomize"`
	Seed            *uint64  `yaml:"seed"`
	DatabaseEnabled *bool    `yaml:"database_enabled"`
	DatabasePath    *string  `yaml:"database_path"`
	MaxShrinkPasses *int     `yaml:"max_shrink_passes"`
}

// LoadProfiles reads a YAML profiles file and registers every profile it
// defines. Unknown phase names are an error; unknown top-level keys are
// ignored for forward compatibility.
func LoadProfiles(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("load profiles: %w", err)
	}
	var file profileFile
	if err := yaml.Unmarshal(data, &file); err != nil {
		return fmt.Errorf("load profiles: parse %s: %w", path, err)
	}
	for name, spec := range file.Profiles {
		s, err := spec.toSettings()
		if err != nil {
			return fmt.Errorf("load profiles: profile %q: %w", name, err)
		}
		RegisterProfile(name, s)
	}
	return nil
}

func (p profileSpec) toSettings() (Settings, error) {
	s := DefaultSettings()
	if p.MaxExamples != nil {
		s.MaxExamples = *p.MaxExamples
	}
	if p.Deadline != nil {
		if *p.Deadline == "none" {
			s.Deadline = NoDeadline
		} else {
			d, err := time.ParseDuration(*p.Deadline)
			if err != nil {
				return Settings{}, fmt.Errorf("invalid deadline %q: %w", *p.Deadline, err)
			}
			s.Deadline = d
		}
	}
	for _, raw := range p.Phases {
		phase := Phase(raw)
		valid := false
		for _, known := range engine.AllPhases {
			if phase == known {
				valid = true
				break
			}
		}
		if !valid {
			return Settings{}, fmt.Errorf("unknown phase %q", raw)
		}
		s.Phases = append(s.Phases, phase)
	}
	if p.Derandomize != nil {
		s.Derandomize = *p.Derandomize
	}
	if p.Seed != nil {
		s.Seed = *p.Seed
	}
	if p.DatabaseEnabled != nil {
		s.DatabaseEnabled = p.DatabaseEnabled
	}
	if p.DatabasePath != nil {
		s.DatabasePath = *p.DatabasePath
	}
	if p.MaxShrinkPasses != nil {
		s.MaxShrinkPasses = *p.MaxShrinkPasses
	}
	return s, nil
}
