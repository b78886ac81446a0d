// Package registry maps advertised BLE names to Goal Zero device families.
//
// The registry is the only place that knows which advertising-name patterns
// belong to which protocol family. It performs no protocol work itself:
// adding a family means adding one pattern here and one encoder/decoder pair
// in the protocol and decode packages.
package registry

import (
	"fmt"
	"regexp"
	"strings"
)

// Family identifies a device's protocol variant. The set is closed: every
// consumer switches exhaustively over these values.
type Family int

const (
	// FamilyAlta80 is the Alta 80 fridge: fixed-offset binary frames over an
	// ephemeral connection.
	FamilyAlta80 Family = iota
	// FamilyYeti500 is the Yeti 500 power station: length-prefixed JSON-RPC
	// over a persistent connection.
	FamilyYeti500
)

func (f Family) String() string {
	switch f {
	case FamilyAlta80:
		return "alta80"
	case FamilyYeti500:
		return "yeti500"
	}
	return fmt.Sprintf("family(%d)", int(f))
}

// Persistent reports whether the family keeps its connection open across poll
// cycles. The Alta 80 is understood to be unavailable for other exchanges
// while linked, so its connection is torn down after every cycle.
func (f Family) Persistent() bool {
	return f == FamilyYeti500
}

// Descriptor binds an advertised name to its resolved family and transport
// address. Immutable once created.
type Descriptor struct {
	Name    string
	Family  Family
	Address string
}

// NoMatchError indicates that an advertised name matched no known family
// pattern.
type NoMatchError struct {
	Name string
}

func (e *NoMatchError) Error() string {
	return fmt.Sprintf("device name %q does not match any known Goal Zero pattern", e.Name)
}

// AmbiguousNameError indicates that an advertised name matched more than one
// family pattern. The pattern set is constructed so this cannot happen; the
// error exists so a future pattern addition that breaks the property is loud.
type AmbiguousNameError struct {
	Name     string
	Families []Family
}

func (e *AmbiguousNameError) Error() string {
	names := make([]string, len(e.Families))
	for i, f := range e.Families {
		names[i] = f.String()
	}
	return fmt.Sprintf("device name %q matches multiple families: %s", e.Name, strings.Join(names, ", "))
}

// familyPatterns maps each family to its advertising-name pattern: a fixed
// prefix followed by a fixed-length uppercase-hex suffix, matched
// case-insensitively. The suffix lengths differ per family (6 hex digits for
// the Alta 80, 12 for the Yeti 500), which keeps the set disjoint.
var familyPatterns = []struct {
	family  Family
	pattern *regexp.Regexp
}{
	{FamilyAlta80, regexp.MustCompile(`(?i)^gzf1-80-[0-9A-F]{6}$`)},
	{FamilyYeti500, regexp.MustCompile(`(?i)^gzy5c-[0-9A-F]{12}$`)},
}

// Resolve maps an advertised name (and its transport address) to a
// Descriptor. Returns *NoMatchError if no pattern matches and
// *AmbiguousNameError if more than one does.
func Resolve(name, address string) (*Descriptor, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return nil, &NoMatchError{Name: name}
	}

	var matched []Family
	for _, fp := range familyPatterns {
		if fp.pattern.MatchString(name) {
			matched = append(matched, fp.family)
		}
	}

	switch len(matched) {
	case 0:
		return nil, &NoMatchError{Name: name}
	case 1:
		return &Descriptor{Name: name, Family: matched[0], Address: address}, nil
	default:
		return nil, &AmbiguousNameError{Name: name, Families: matched}
	}
}

// Supported reports whether the name belongs to any known family.
func Supported(name string) bool {
	_, err := Resolve(name, "")
	return err == nil
}

// Patterns returns the pattern source text per family, for diagnostics.
func Patterns() map[Family]string {
	out := make(map[Family]string, len(familyPatterns))
	for _, fp := range familyPatterns {
		out[fp.family] = fp.pattern.String()
	}
	return out
}
