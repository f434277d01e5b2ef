package config

import (
	"fmt"
	"strings"

	"gopkg.in/yaml.v3"
)

// Level is an ordered sensitivity or strictness setting.
//
// Structural validation calls it "sensitivity" and the visual and
// steganalysis detectors call it "strictness"; both use the same three
// ordered values so that "higher" always means "more checks" or "more
// easily triggered".
type Level int

const (
	Low Level = iota
	Medium
	High
)

// Levels lists every level in ascending order.
var Levels = []Level{Low, Medium, High}

// String returns the lower-case name of the level.
func (l Level) String() string {
	switch l {
	case Low:
		return "low"
	case Medium:
		return "medium"
	case High:
		return "high"
	default:
		return fmt.Sprintf("level(%d)", int(l))
	}
}

// Valid reports whether l is one of Low, Medium or High.
func (l Level) Valid() bool {
	return l >= Low && l <= High
}

// ParseLevel converts a case-insensitive name into a Level.
// An empty string yields Medium, the default used throughout the tool.
func ParseLevel(s string) (Level, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "low":
		return Low, nil
	case "", "medium":
		return Medium, nil
	case "high":
		return High, nil
	default:
		return Medium, fmt.Errorf("unknown level %q (want low, medium or high)", s)
	}
}

// MarshalText implements encoding.TextMarshaler.
func (l Level) MarshalText() ([]byte, error) {
	if !l.Valid() {
		return nil, fmt.Errorf("invalid level %d", int(l))
	}
	return []byte(l.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (l *Level) UnmarshalText(text []byte) error {
	parsed, err := ParseLevel(string(text))
	if err != nil {
		return err
	}
	*l = parsed
	return nil
}

// UnmarshalYAML accepts the level name as a YAML scalar.
func (l *Level) UnmarshalYAML(value *yaml.Node) error {
	if value.Kind != yaml.ScalarNode {
		return fmt.Errorf("line %d: level must be a scalar", value.Line)
	}
	return l.UnmarshalText([]byte(value.Value))
}

// PerLevel holds one value for each Level, indexed by the level itself.
// It is an array so that copying a Config copies the table too.
type PerLevel [3]float64

// At returns the value for level l. Out-of-range levels clamp to the
// nearest valid level.
func (p PerLevel) At(l Level) float64 {
	switch {
	case l < Low:
		l = Low
	case l > High:
		l = High
	}
	return p[l]
}

// Descending reports whether the values strictly decrease from Low to High.
func (p PerLevel) Descending() bool {
	return p[Low] > p[Medium] && p[Medium] > p[High]
}

// UnmarshalYAML accepts a mapping such as {low: 0.3, medium: 0.2, high: 0.15}.
// Keys that are absent keep their current value.
func (p *PerLevel) UnmarshalYAML(value *yaml.Node) error {
	var raw map[string]float64
	if err := value.Decode(&raw); err != nil {
		return err
	}
	for name, v := range raw {
		l, err := ParseLevel(name)
		if err != nil || name == "" {
			return fmt.Errorf("line %d: unknown level key %q", value.Line, name)
		}
		p[l] = v
	}
	return nil
}

// MarshalYAML renders the table as a low/medium/high mapping.
func (p PerLevel) MarshalYAML() (interface{}, error) {
	return map[string]float64{
		"low":    p[Low],
		"medium": p[Medium],
		"high":   p[High],
	}, nil
}
