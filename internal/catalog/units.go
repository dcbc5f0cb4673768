// Package catalog resolves blanket-order unit labels to the canonical unit
// codes used on generated sales orders.
package catalog

import (
	"sort"
	"strings"

	"github.com/JonMunkholm/bso/internal/release"
)

// UnitCode is the canonical unit reference written on a child order line.
type UnitCode string

// DefaultUnits is the label-to-code mapping used when none is configured.
var DefaultUnits = map[string]string{
	"Gallon":        "11",
	"MT":            "12",
	"Pound":         "10",
	"Pounds Solids": "13",
}

// UnitResolver maps unit-of-measure labels to canonical codes.
// Label matching ignores case and surrounding whitespace.
type UnitResolver struct {
	codes map[string]UnitCode
}

// NewUnitResolver builds a resolver from a label -> code mapping.
// Entries with an empty label or code are ignored.
func NewUnitResolver(mapping map[string]string) *UnitResolver {
	codes := make(map[string]UnitCode, len(mapping))
	for label, code := range mapping {
		key := normalize(label)
		code = strings.TrimSpace(code)
		if key == "" || code == "" {
			continue
		}
		codes[key] = UnitCode(code)
	}
	return &UnitResolver{codes: codes}
}

// Resolve returns the code for label, or *release.UnknownUnitError.
func (r *UnitResolver) Resolve(label string) (UnitCode, error) {
	if code, ok := r.codes[normalize(label)]; ok {
		return code, nil
	}
	return "", &release.UnknownUnitError{Label: label}
}

// Labels returns the known labels (normalized), sorted.
func (r *UnitResolver) Labels() []string {
	labels := make([]string, 0, len(r.codes))
	for l := range r.codes {
		labels = append(labels, l)
	}
	sort.Strings(labels)
	return labels
}

func normalize(label string) string {
	return strings.ToLower(strings.TrimSpace(label))
}
