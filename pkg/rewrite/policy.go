package rewrite

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/bmatcuk/doublestar/v4"
)

// SizePolicy decides which blobs get stripped. A blob is offending iff its
// size is strictly greater than MaxBlobSize and, when Match patterns are
// configured, its path matches at least one of them. Keep patterns exempt
// paths unconditionally and take precedence over Match.
//
// Patterns use doublestar glob syntax against slash-separated paths relative
// to the tree root, e.g. "assets/**/*.bin".
type SizePolicy struct {
	MaxBlobSize int64
	Match       []string
	Keep        []string
}

// Validate rejects a policy that could not have come from a sane
// configuration: a non-positive threshold or a malformed pattern.
func (p *SizePolicy) Validate() error {
	if p == nil {
		return &PolicyError{Field: "policy", Reason: "missing"}
	}
	if p.MaxBlobSize <= 0 {
		return &PolicyError{
			Field:  "max_blob_size",
			Reason: fmt.Sprintf("must be positive, got %d", p.MaxBlobSize),
		}
	}
	for _, pat := range p.Match {
		if !doublestar.ValidatePattern(pat) {
			return &PolicyError{Field: "match", Reason: fmt.Sprintf("bad pattern %q", pat)}
		}
	}
	for _, pat := range p.Keep {
		if !doublestar.ValidatePattern(pat) {
			return &PolicyError{Field: "keep", Reason: fmt.Sprintf("bad pattern %q", pat)}
		}
	}
	return nil
}

// PathSensitive reports whether classification depends on the blob's path.
// Path-insensitive policies let tree rewriting memoize by tree id alone.
func (p *SizePolicy) PathSensitive() bool {
	return len(p.Match) > 0 || len(p.Keep) > 0
}

// allows reports whether a path is exempt from stripping.
func (p *SizePolicy) allows(path string) bool {
	for _, pat := range p.Keep {
		if ok, _ := doublestar.Match(pat, path); ok {
			return true
		}
	}
	if len(p.Match) == 0 {
		return false
	}
	for _, pat := range p.Match {
		if ok, _ := doublestar.Match(pat, path); ok {
			return false
		}
	}
	return true
}

// sizeUnits maps the accepted suffixes to their byte multipliers. Sizes use
// the conventional 1024-based units.
var sizeUnits = map[string]int64{
	"":   1,
	"b":  1,
	"k":  1 << 10,
	"kb": 1 << 10,
	"m":  1 << 20,
	"mb": 1 << 20,
	"g":  1 << 30,
	"gb": 1 << 30,
	"t":  1 << 40,
	"tb": 1 << 40,
}

// ParseSize parses a human-readable size such as "100MB", "512k" or "1048576"
// into bytes.
func ParseSize(s string) (int64, error) {
	trimmed := strings.TrimSpace(strings.ToLower(s))
	if trimmed == "" {
		return 0, fmt.Errorf("parse size: empty value")
	}

	idx := len(trimmed)
	for idx > 0 {
		c := trimmed[idx-1]
		if c >= '0' && c <= '9' {
			break
		}
		idx--
	}
	numPart, unitPart := trimmed[:idx], strings.TrimSpace(trimmed[idx:])

	mult, ok := sizeUnits[unitPart]
	if !ok {
		return 0, fmt.Errorf("parse size %q: unknown unit %q", s, unitPart)
	}
	n, err := strconv.ParseInt(strings.TrimSpace(numPart), 10, 64)
	if err != nil {
		return 0, fmt.Errorf("parse size %q: %w", s, err)
	}
	if n < 0 {
		return 0, fmt.Errorf("parse size %q: negative", s)
	}
	return n * mult, nil
}

// FormatSize renders a byte count with the largest fitting 1024-based unit,
// e.g. 157286400 -> "150.0MB".
func FormatSize(n int64) string {
	const unit = 1024
	if n < unit {
		return fmt.Sprintf("%dB", n)
	}
	div, exp := int64(unit), 0
	for m := n / unit; m >= unit; m /= unit {
		div *= unit
		exp++
	}
	return fmt.Sprintf("%.1f%cB", float64(n)/float64(div), "KMGT"[exp])
}
