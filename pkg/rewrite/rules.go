package rewrite

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// RulesFile is the YAML form of a SizePolicy:
//
//	max_blob_size: 100MB
//	match:
//	  - "assets/**"
//	keep:
//	  - "docs/**/*.pdf"
type RulesFile struct {
	MaxBlobSize string   `yaml:"max_blob_size"`
	Match       []string `yaml:"match,omitempty"`
	Keep        []string `yaml:"keep,omitempty"`
}

// LoadRules reads a rules file and returns the validated policy.
func LoadRules(path string) (*SizePolicy, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading rules file: %w", err)
	}
	return ParseRules(data)
}

// ParseRules parses YAML rules bytes and returns the validated policy.
func ParseRules(data []byte) (*SizePolicy, error) {
	var rf RulesFile
	if err := yaml.Unmarshal(data, &rf); err != nil {
		return nil, fmt.Errorf("parsing rules file: %w", err)
	}

	if rf.MaxBlobSize == "" {
		return nil, &PolicyError{Field: "max_blob_size", Reason: "missing"}
	}
	threshold, err := ParseSize(rf.MaxBlobSize)
	if err != nil {
		return nil, &PolicyError{Field: "max_blob_size", Reason: err.Error()}
	}

	p := &SizePolicy{
		MaxBlobSize: threshold,
		Match:       rf.Match,
		Keep:        rf.Keep,
	}
	if err := p.Validate(); err != nil {
		return nil, err
	}
	return p, nil
}
