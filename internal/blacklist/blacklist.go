package blacklist

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"fleet-monitor-backend/internal/parse"
)

// Range excludes robots whose numeric code suffix falls within [Start, End].
// A nil End leaves the range open upwards.
type Range struct {
	Start int
	End   *int
}

// Closed builds a bounded range.
func Closed(start, end int) Range {
	return Range{Start: start, End: &end}
}

// From builds a range open at the top.
func From(start int) Range {
	return Range{Start: start}
}

// Contains reports whether n lies inside the range.
func (r Range) Contains(n int) bool {
	if r.End == nil {
		return n >= r.Start
	}
	return r.Start <= n && n <= *r.End
}

// MarshalJSON encodes the range as [start, end|null].
func (r Range) MarshalJSON() ([]byte, error) {
	return json.Marshal([2]any{r.Start, r.End})
}

// UnmarshalJSON decodes the [start, end|null] form.
func (r *Range) UnmarshalJSON(b []byte) error {
	var pair []*int
	if err := json.Unmarshal(b, &pair); err != nil {
		return fmt.Errorf("blacklist range must be [start, end|null]: %w", err)
	}
	if len(pair) != 2 || pair[0] == nil {
		return fmt.Errorf("blacklist range must be [start, end|null], got %s", string(b))
	}
	r.Start = *pair[0]
	r.End = pair[1]
	return nil
}

type file struct {
	Ranges []Range `json:"ranges"`
}

// Load reads the ranges from path. A missing file yields an empty list.
func Load(path string) ([]Range, error) {
	b, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		return []Range{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read blacklist %q: %w", path, err)
	}

	var f file
	if err := json.Unmarshal(b, &f); err != nil {
		return nil, fmt.Errorf("failed to decode blacklist %q: %w", path, err)
	}
	if f.Ranges == nil {
		f.Ranges = []Range{}
	}
	return f.Ranges, nil
}

// Save writes the ranges to path, replacing the file atomically.
func Save(path string, ranges []Range) error {
	if ranges == nil {
		ranges = []Range{}
	}
	b, err := json.MarshalIndent(file{Ranges: ranges}, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to encode blacklist: %w", err)
	}

	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("failed to create blacklist dir: %w", err)
	}
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, append(b, '\n'), 0o644); err != nil {
		return fmt.Errorf("failed to write blacklist: %w", err)
	}
	if err := os.Rename(tmp, path); err != nil {
		return fmt.Errorf("failed to replace blacklist: %w", err)
	}
	return nil
}

// Validate rejects ranges whose end precedes their start.
func Validate(ranges []Range) error {
	for i, r := range ranges {
		if r.End != nil && *r.End < r.Start {
			return fmt.Errorf("range %d: end %d is before start %d", i+1, *r.End, r.Start)
		}
	}
	return nil
}

// IsBlacklisted reports whether the robot code falls within any range.
// Codes without a numeric suffix are never blacklisted.
func IsBlacklisted(code string, ranges []Range) bool {
	n, err := parse.RobotNumber(code)
	if err != nil {
		return false
	}
	for _, r := range ranges {
		if r.Contains(n) {
			return true
		}
	}
	return false
}
