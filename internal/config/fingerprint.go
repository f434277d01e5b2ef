package config

import (
	"encoding/hex"
	"fmt"

	"github.com/zeebo/blake3"
	"gopkg.in/yaml.v3"
)

// Fingerprint identifies the settings that shape a report: validation,
// visual, steganalysis and limits. Two configurations with the same
// fingerprint give the same report for the same bytes. Scan settings are
// left out.
func (c Config) Fingerprint() string {
	sections := struct {
		Validation   Validation   `yaml:"validation"`
		Visual       Visual       `yaml:"visual"`
		Steganalysis Steganalysis `yaml:"steganalysis"`
		Limits       Limits       `yaml:"limits"`
	}{c.Validation, c.Visual, c.Steganalysis, c.Limits}

	data, err := yaml.Marshal(sections)
	if err != nil {
		data = fmt.Appendf(nil, "%#v", sections)
	}
	sum := blake3.Sum256(data)
	return hex.EncodeToString(sum[:8])
}
