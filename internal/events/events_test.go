package events

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/carvexyz/tree-node/pkg/carving"
)

func testEvent(kind Kind, to string) *Event {
	id := carving.DeriveID(carving.DeriveUserID("someone@example.com", "salt"), 0, "salt")
	return &Event{
		Kind:    kind,
		ID:      id,
		Actor:   "ed25519:aa",
		At:      time.Now().UTC(),
		To:      to,
		From:    "grace",
		Message: "hello",
	}
}

func TestJournalAppendReplay(t *testing.T) {
	path := filepath.Join(t.TempDir(), "events.jsonl")
	j, err := OpenJournal(path)
	if err != nil {
		t.Fatalf("OpenJournal: %v", err)
	}
	defer j.Close()

	ctx := context.Background()
	want := []Kind{KindStored, KindPublicized, KindHidden, KindDeleted}
	for _, k := range want {
		if err := j.Emit(ctx, testEvent(k, "ada")); err != nil {
			t.Fatalf("Emit(%s): %v", k, err)
		}
	}

	var got []Kind
	err = j.Replay(ctx, func(ev *Event) error {
		got = append(got, ev.Kind)
		return nil
	})
	if err != nil {
		t.Fatalf("Replay: %v", err)
	}
	if len(got) != len(want) {
		t.Fatalf("Replay returned %d events, want %d", len(got), len(want))
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("event %d = %s, want %s", i, got[i], want[i])
		}
	}
}

func TestJournalReplayPreservesContent(t *testing.T) {
	path := filepath.Join(t.TempDir(), "events.jsonl")
	j, err := OpenJournal(path)
	if err != nil {
		t.Fatalf("OpenJournal: %v", err)
	}
	defer j.Close()

	ctx := context.Background()
	in := testEvent(KindStored, "ada")
	if err := j.Emit(ctx, in); err != nil {
		t.Fatalf("Emit: %v", err)
	}

	var out *Event
	if err := j.Replay(ctx, func(ev *Event) error { out = ev; return nil }); err != nil {
		t.Fatalf("Replay: %v", err)
	}
	if out == nil {
		t.Fatal("Replay returned no events")
	}
	if out.ID != in.ID {
		t.Errorf("ID = %s, want %s", out.ID.Hex(), in.ID.Hex())
	}
	if out.To != "ada" || out.From != "grace" || out.Message != "hello" {
		t.Errorf("content = %q/%q/%q, want ada/grace/hello", out.To, out.From, out.Message)
	}
}

func TestJournalReplayMissingFile(t *testing.T) {
	j := &Journal{path: filepath.Join(t.TempDir(), "absent.jsonl")}
	err := j.Replay(context.Background(), func(*Event) error {
		t.Fatal("callback invoked for missing journal")
		return nil
	})
	if err != nil {
		t.Errorf("Replay on missing file: %v", err)
	}
}

func TestEvaluatorMatch(t *testing.T) {
	eval, err := NewEvaluator()
	if err != nil {
		t.Fatalf("NewEvaluator: %v", err)
	}

	ev := testEvent(KindStored, "ada")
	tests := []struct {
		expr string
		want bool
	}{
		{`kind == "carving.stored"`, true},
		{`kind == "carving.deleted"`, false},
		{`to == "ada" && from == "grace"`, true},
		{`message.contains("hell")`, true},
		{`message.startsWith("bye")`, false},
	}
	for _, tt := range tests {
		got, err := eval.Match(tt.expr, ev)
		if err != nil {
			t.Errorf("Match(%q): %v", tt.expr, err)
			continue
		}
		if got != tt.want {
			t.Errorf("Match(%q) = %v, want %v", tt.expr, got, tt.want)
		}
	}
}

func TestEvaluatorInvalidExpression(t *testing.T) {
	eval, err := NewEvaluator()
	if err != nil {
		t.Fatalf("NewEvaluator: %v", err)
	}
	if err := eval.ValidateExpression(`kind ==`); err == nil {
		t.Error("ValidateExpression accepted malformed expression")
	}
	if err := eval.ValidateExpression(`unknown_var == "x"`); err == nil {
		t.Error("ValidateExpression accepted undeclared variable")
	}
}

func TestSubscriberFiltering(t *testing.T) {
	s, err := NewSubscriber()
	if err != nil {
		t.Fatalf("NewSubscriber: %v", err)
	}

	all, err := s.Subscribe("", 4)
	if err != nil {
		t.Fatalf("Subscribe all: %v", err)
	}
	stored, err := s.Subscribe(`kind == "carving.stored"`, 4)
	if err != nil {
		t.Fatalf("Subscribe filtered: %v", err)
	}

	ctx := context.Background()
	s.Emit(ctx, testEvent(KindStored, "ada"))
	s.Emit(ctx, testEvent(KindDeleted, ""))

	if n := len(all.Events()); n != 2 {
		t.Errorf("unfiltered subscription received %d events, want 2", n)
	}
	if n := len(stored.Events()); n != 1 {
		t.Errorf("filtered subscription received %d events, want 1", n)
	}

	s.Unsubscribe(stored)
	if _, ok := <-stored.Events(); ok {
		// Channel should drain the buffered event first.
		if _, ok := <-stored.Events(); ok {
			t.Error("channel still open after Unsubscribe")
		}
	}
}

func TestSubscribeRejectsBadFilter(t *testing.T) {
	s, err := NewSubscriber()
	if err != nil {
		t.Fatalf("NewSubscriber: %v", err)
	}
	if _, err := s.Subscribe(`kind +`, 4); err == nil {
		t.Error("Subscribe accepted malformed filter")
	}
}

func TestMultiContinuesOnFailure(t *testing.T) {
	var calls int
	failing := EmitterFunc(func(context.Context, *Event) error {
		calls++
		return context.DeadlineExceeded
	})
	counting := EmitterFunc(func(context.Context, *Event) error {
		calls++
		return nil
	})

	m := Multi{failing, counting}
	if err := m.Emit(context.Background(), testEvent(KindStored, "ada")); err != nil {
		t.Errorf("Emit: %v", err)
	}
	if calls != 2 {
		t.Errorf("calls = %d, want 2", calls)
	}
}
