package change

import (
	"encoding/json"
	"fmt"

	diffpatch "github.com/sergi/go-diff/diffmatchpatch"
)

// Change describes an edit to a text value. The zero value is the empty
// change, which applies to any text and leaves it unmodified.
type Change struct {
	patches []diffpatch.Patch
}

// Make computes the change that transforms from into to.
func Make(from, to string) Change {
	diffCfg := diffpatch.New()
	diffs := diffCfg.DiffMain(from, to, false)
	diffs = diffCfg.DiffCleanupEfficiency(diffs)
	return Change{patches: diffCfg.PatchMake(from, diffs)}
}

// Parse decodes a change from its wire form (diff-match-patch patch text).
func Parse(s string) (Change, error) {
	diffCfg := diffpatch.New()
	patches, err := diffCfg.PatchFromText(s)
	if err != nil {
		return Change{}, fmt.Errorf("failed to parse change: %w", err)
	}
	return Change{patches: patches}, nil
}

// Empty reports whether the change modifies nothing.
func (c Change) Empty() bool {
	return len(c.patches) == 0
}

// Apply applies the change to text. Hunks anchor by content: they may
// drift in position and tolerate small context differences, which is
// what lets a change re-apply after concurrent edits elsewhere in the
// text. It returns an error for any hunk that cannot be located at all.
func (c Change) Apply(text string) (string, error) {
	if len(c.patches) == 0 {
		return text, nil
	}
	diffCfg := diffpatch.New()
	res, applied := diffCfg.PatchApply(c.patches, text)
	for i, ok := range applied {
		if !ok {
			return "", fmt.Errorf("change hunk %d does not apply", i)
		}
	}
	return res, nil
}

// Invert returns the change that undoes c, given the text c applies to.
func (c Change) Invert(base string) (Change, error) {
	applied, err := c.Apply(base)
	if err != nil {
		return Change{}, err
	}
	return Make(applied, base), nil
}

// Compose returns a single change equivalent to applying c and then next,
// given the text c applies to.
func (c Change) Compose(base string, next Change) (Change, error) {
	mid, err := c.Apply(base)
	if err != nil {
		return Change{}, err
	}
	out, err := next.Apply(mid)
	if err != nil {
		return Change{}, err
	}
	return Make(base, out), nil
}

// String returns the wire form of the change.
func (c Change) String() string {
	if len(c.patches) == 0 {
		return ""
	}
	diffCfg := diffpatch.New()
	return diffCfg.PatchToText(c.patches)
}

// MarshalJSON encodes the change as a JSON string in wire form.
func (c Change) MarshalJSON() ([]byte, error) {
	return json.Marshal(c.String())
}

// UnmarshalJSON decodes the change from a JSON string in wire form.
func (c *Change) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return err
	}
	if s == "" {
		*c = Change{}
		return nil
	}
	parsed, err := Parse(s)
	if err != nil {
		return err
	}
	*c = parsed
	return nil
}
