package doclog

import (
	"encoding/json"

	"github.com/signadot/docsync/change"
)

// Effect is an opaque side-effect tag riding on an Update. Effects are
// carried and ordered with the change they accompany; the log never
// interprets them.
type Effect = json.RawMessage

// Update is one versioned, atomic change description plus its originating
// client and optional side-effect tags. Updates are immutable once created.
//
// Changes must be applicable to the text the log held at Version.
type Update struct {
	Version int64         `json:"version"`
	Changes change.Change `json:"changes"`
	Origin  string        `json:"origin"`
	Effects []Effect      `json:"effects,omitempty"`
}

// Materialize folds updates over initial in order and returns the
// resulting text. Log state is a pure function of (initial, updates).
func Materialize(initial string, updates []Update) (string, error) {
	text := initial
	for _, u := range updates {
		next, err := u.Changes.Apply(text)
		if err != nil {
			return "", err
		}
		text = next
	}
	return text, nil
}
