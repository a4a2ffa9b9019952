package doclog

import (
	"errors"
	"testing"

	"github.com/google/go-cmp/cmp"

	"github.com/signadot/docsync/change"
)

func mkUpdate(t *testing.T, l *Log, version int64, to string) Update {
	t.Helper()
	return Update{
		Version: version,
		Changes: change.Make(l.Text(), to),
		Origin:  "test",
	}
}

func TestGatedAppend(t *testing.T) {
	l := New("", 0)

	if err := l.Append(mkUpdate(t, l, 0, "a")); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if l.Version() != 1 {
		t.Errorf("expected version 1, got %d", l.Version())
	}

	// Replaying version 0 must fail without mutation.
	err := l.Append(Update{Version: 0, Changes: change.Make("", "b"), Origin: "test"})
	if !errors.Is(err, ErrVersionConflict) {
		t.Errorf("expected ErrVersionConflict, got %v", err)
	}
	if l.Version() != 1 || l.Text() != "a" {
		t.Errorf("failed append mutated log: version=%d text=%q", l.Version(), l.Text())
	}

	// A future version must fail too.
	err = l.Append(Update{Version: 5, Changes: change.Make("a", "ab"), Origin: "test"})
	if !errors.Is(err, ErrVersionConflict) {
		t.Errorf("expected ErrVersionConflict, got %v", err)
	}

	if err := l.Append(mkUpdate(t, l, 1, "ab")); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if l.Version() != 2 || l.Text() != "ab" {
		t.Errorf("expected version 2 text %q, got %d %q", "ab", l.Version(), l.Text())
	}
}

func TestReplayDeterminism(t *testing.T) {
	l := New("seed\n", 10)
	steps := []string{"seed\nline\n", "seed\nline two\n", "SEED\nline two\n"}
	for i, s := range steps {
		if err := l.Append(mkUpdate(t, l, 10+int64(i), s)); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
	}

	once, err := Materialize("seed\n", l.Updates(10))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	twice, err := Materialize("seed\n", l.Updates(10))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if once != twice {
		t.Errorf("materialization not deterministic: %q vs %q", once, twice)
	}
	if once != l.Text() {
		t.Errorf("replay %q differs from cached text %q", once, l.Text())
	}
	if diff := cmp.Diff(steps[len(steps)-1], l.Text()); diff != "" {
		t.Errorf("final text mismatch (-want +got):\n%s", diff)
	}
}

func TestUpdatesFrom(t *testing.T) {
	l := New("", 3)
	for i, s := range []string{"a", "ab", "abc"} {
		if err := l.Append(mkUpdate(t, l, 3+int64(i), s)); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
	}
	if got := l.Updates(3); len(got) != 3 {
		t.Errorf("expected 3 updates, got %d", len(got))
	}
	got := l.Updates(5)
	if len(got) != 1 || got[0].Version != 5 {
		t.Errorf("expected single update at version 5, got %+v", got)
	}
	if l.Updates(6) != nil {
		t.Error("expected no updates past current version")
	}
	// From below the initial version clamps to the start.
	if got := l.Updates(0); len(got) != 3 {
		t.Errorf("expected 3 updates, got %d", len(got))
	}
}

func TestSubscribeOrder(t *testing.T) {
	l := New("", 0)
	sub := l.Subscribe(16)
	other := l.Subscribe(16)

	texts := []string{"x", "xy", "xyz"}
	for i, s := range texts {
		if err := l.Append(mkUpdate(t, l, int64(i), s)); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
	}
	l.Close()

	for _, s := range [](*Subscription){sub, other} {
		var got []string
		var versions []int64
		for c := range s.Commits {
			got = append(got, c.Text)
			versions = append(versions, c.Update.Version)
		}
		if diff := cmp.Diff(texts, got); diff != "" {
			t.Errorf("commit order mismatch (-want +got):\n%s", diff)
		}
		if diff := cmp.Diff([]int64{0, 1, 2}, versions); diff != "" {
			t.Errorf("version order mismatch (-want +got):\n%s", diff)
		}
	}
}

func TestUnsubscribe(t *testing.T) {
	l := New("", 0)
	sub := l.Subscribe(1)
	l.Unsubscribe(sub)
	if _, ok := <-sub.Commits; ok {
		t.Error("expected closed commits channel after unsubscribe")
	}
	// Appends after unsubscribe must not block on the dead subscription.
	if err := l.Append(mkUpdate(t, l, 0, "a")); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestClosedLog(t *testing.T) {
	l := New("text", 0)
	sub := l.Subscribe(1)
	l.Close()

	err := l.Append(Update{Version: 0, Changes: change.Make("text", "texts"), Origin: "test"})
	if !errors.Is(err, ErrLogClosed) {
		t.Errorf("expected ErrLogClosed, got %v", err)
	}
	if errors.Is(err, ErrVersionConflict) {
		t.Error("closed-log error must be distinguishable from a conflict")
	}
	if _, ok := <-sub.Commits; ok {
		t.Error("expected closed commits channel after log close")
	}
	// Subscribing after close yields an already-terminated stream.
	late := l.Subscribe(1)
	if _, ok := <-late.Commits; ok {
		t.Error("expected closed commits channel for late subscriber")
	}
	// Close is idempotent.
	l.Close()
}

func TestBadChangeRejected(t *testing.T) {
	l := New("short", 0)
	// A change whose hunks cannot be located in the log's text at all.
	base := "The quick brown fox jumps over the lazy dog near the river bank"
	u := Update{Version: 0, Changes: change.Make(base, "gone"), Origin: "test"}
	if err := l.Append(u); err == nil {
		t.Fatal("expected error for inapplicable change")
	}
	if l.Version() != 0 || l.Text() != "short" {
		t.Errorf("failed append mutated log: version=%d text=%q", l.Version(), l.Text())
	}
}

func TestEffectsCarried(t *testing.T) {
	l := New("code", 0)
	sub := l.Subscribe(4)
	u := Update{
		Version: 0,
		Changes: change.Make("code", "code2"),
		Origin:  "test",
		Effects: []Effect{Effect(`{"eval":{"from":0,"to":4}}`)},
	}
	if err := l.Append(u); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	c := <-sub.Commits
	if len(c.Update.Effects) != 1 {
		t.Fatalf("expected 1 effect, got %d", len(c.Update.Effects))
	}
	if string(c.Update.Effects[0]) != `{"eval":{"from":0,"to":4}}` {
		t.Errorf("effect altered in transit: %s", c.Update.Effects[0])
	}
}
