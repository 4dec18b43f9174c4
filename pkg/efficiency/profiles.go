package efficiency

import (
	"fmt"
	"maps"
	"slices"
	"strings"
)

// Profiles is the default Params plus per-skill overrides. Skill matching is
// case-insensitive.
type Profiles struct {
	Default Params            `json:"default"`
	BySkill map[string]Params `json:"profiles,omitempty"`
}

// DefaultProfiles returns DefaultParams with no per-skill overrides.
func DefaultProfiles() Profiles {
	return Profiles{Default: DefaultParams()}
}

// For returns the params for skill and the name of the profile that supplied
// them ("default" when no override matches).
func (p Profiles) For(skill string) (Params, string) {
	key := strings.ToLower(strings.TrimSpace(skill))
	if key != "" {
		for name, params := range p.BySkill {
			if strings.ToLower(name) == key {
				return params, name
			}
		}
	}
	return p.Default, "default"
}

// Skills returns the override names in sorted order.
func (p Profiles) Skills() []string {
	return slices.Sorted(maps.Keys(p.BySkill))
}

// Validate checks the default and every override. Override names must be
// unique ignoring case, since For matches them case-insensitively.
func (p Profiles) Validate() error {
	if err := p.Default.Validate(); err != nil {
		return err
	}
	seen := make(map[string]string, len(p.BySkill))
	for _, name := range p.Skills() {
		key := strings.ToLower(strings.TrimSpace(name))
		if prev, dup := seen[key]; dup {
			return fmt.Errorf("profiles %q and %q differ only in case", prev, name)
		}
		seen[key] = name
		if err := p.BySkill[name].Validate(); err != nil {
			return fmt.Errorf("profile %q: %w", name, err)
		}
	}
	return nil
}
