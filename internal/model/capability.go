package model

import (
	"fmt"
	"slices"
	"strings"
)

// Capability is a named permission held by a user. The set is closed: only
// the constants below are valid.
type Capability string

const (
	CapAdmin         Capability = "ADMIN"
	CapTrainer       Capability = "TRAINER"
	CapInjuryManager Capability = "INJURY_MANAGER"
	CapManager       Capability = "MANAGER"
	CapOperate       Capability = "OPERATE"
	CapAthlete       Capability = "ATHLETE"
)

// AllCapabilities lists every valid capability in display order.
var AllCapabilities = []Capability{
	CapAdmin, CapTrainer, CapInjuryManager, CapManager, CapOperate, CapAthlete,
}

// Valid reports whether c is one of the known capabilities.
func (c Capability) Valid() bool {
	return slices.Contains(AllCapabilities, c)
}

// ParseCapability normalizes s (case-insensitive, surrounding whitespace
// ignored) into a Capability.
func ParseCapability(s string) (Capability, error) {
	c := Capability(strings.ToUpper(strings.TrimSpace(s)))
	if !c.Valid() {
		return "", fmt.Errorf("unknown capability %q", s)
	}
	return c, nil
}

// Capabilities is the capability set held by one actor.
type Capabilities []Capability

// Has reports whether c is in the set.
func (cs Capabilities) Has(c Capability) bool {
	return slices.Contains(cs, c)
}

// HasAny reports whether at least one of want is in the set.
func (cs Capabilities) HasAny(want ...Capability) bool {
	for _, c := range want {
		if cs.Has(c) {
			return true
		}
	}
	return false
}

// Normalize returns a sorted copy with duplicates removed. It fails on the
// first unknown capability.
func (cs Capabilities) Normalize() (Capabilities, error) {
	out := make(Capabilities, 0, len(cs))
	for _, c := range cs {
		if !c.Valid() {
			return nil, fmt.Errorf("unknown capability %q", c)
		}
		if !out.Has(c) {
			out = append(out, c)
		}
	}
	slices.Sort(out)
	return out, nil
}

// Strings returns the set as plain strings, for storage in text[] columns.
func (cs Capabilities) Strings() []string {
	out := make([]string, len(cs))
	for i, c := range cs {
		out[i] = string(c)
	}
	return out
}

// CapabilitiesFromStrings converts a text[] column back into a set. Unknown
// values are dropped.
func CapabilitiesFromStrings(ss []string) Capabilities {
	out := make(Capabilities, 0, len(ss))
	for _, s := range ss {
		if c := Capability(s); c.Valid() {
			out = append(out, c)
		}
	}
	return out
}
