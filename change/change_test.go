package change

import (
	"encoding/json"
	"testing"
)

func TestMakeApply(t *testing.T) {
	cases := []struct {
		name string
		from string
		to   string
	}{
		{"insert", "hello", "hello world"},
		{"delete", "hello world", "hello"},
		{"replace", "the cat sat", "the dog sat"},
		{"empty-from", "", "new document\n"},
		{"empty-to", "old document\n", ""},
		{"multiline", "a\nb\nc\n", "a\nB\nc\nd\n"},
		{"unicode", "héllo wörld", "héllo wørld!"},
	}
	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			ch := Make(c.from, c.to)
			got, err := ch.Apply(c.from)
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if got != c.to {
				t.Errorf("expected %q, got %q", c.to, got)
			}
		})
	}
}

func TestEmptyChange(t *testing.T) {
	var c Change
	if !c.Empty() {
		t.Error("zero change should be empty")
	}
	got, err := c.Apply("anything")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got != "anything" {
		t.Errorf("empty change modified text: %q", got)
	}
	c = Make("same", "same")
	if !c.Empty() {
		t.Error("no-op change should be empty")
	}
}

func TestInvert(t *testing.T) {
	from, to := "one two three", "one 2 three four"
	c := Make(from, to)
	inv, err := c.Invert(from)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	back, err := inv.Apply(to)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if back != from {
		t.Errorf("expected %q, got %q", from, back)
	}
}

func TestCompose(t *testing.T) {
	base := "alpha beta gamma"
	first := Make(base, "alpha BETA gamma")
	second := Make("alpha BETA gamma", "alpha BETA gamma delta")
	composed, err := first.Compose(base, second)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	got, err := composed.Apply(base)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got != "alpha BETA gamma delta" {
		t.Errorf("expected composed result, got %q", got)
	}
}

func TestWireRoundtrip(t *testing.T) {
	c := Make("the quick brown fox", "the slow brown fox jumps")
	parsed, err := Parse(c.String())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	got, err := parsed.Apply("the quick brown fox")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got != "the slow brown fox jumps" {
		t.Errorf("wire roundtrip lost the change: %q", got)
	}
}

func TestJSON(t *testing.T) {
	c := Make("a", "ab")
	data, err := json.Marshal(c)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	var back Change
	if err := json.Unmarshal(data, &back); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	got, err := back.Apply("a")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got != "ab" {
		t.Errorf("expected %q, got %q", "ab", got)
	}

	// Empty change survives JSON as the empty string.
	data, err = json.Marshal(Change{})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if string(data) != `""` {
		t.Errorf("expected empty wire form, got %s", data)
	}
}

func TestParseErrors(t *testing.T) {
	if _, err := Parse("not a patch"); err == nil {
		t.Error("expected error for garbage input")
	}
}

func TestApplyMismatch(t *testing.T) {
	c := Make("completely different text here", "completely different text here!")
	if _, err := c.Apply("zzzz"); err == nil {
		t.Error("expected error applying change to unrelated text")
	}
}

func TestApplyFuzzyAnchoring(t *testing.T) {
	base := "hello world, this is a document"
	c := Make(base, base+" now longer")

	// Hunks re-anchor by content when surrounding text has moved.
	got, err := c.Apply("prefix line\n" + base)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got != "prefix line\n"+base+" now longer" {
		t.Errorf("expected shifted apply, got %q", got)
	}

	// A hunk whose context cannot be located at all is an error.
	wipe := Make("The quick brown fox jumps over the lazy dog near the river bank", "gone")
	if _, err := wipe.Apply("zzzz"); err == nil {
		t.Error("expected error when no hunk can be located")
	}
}
