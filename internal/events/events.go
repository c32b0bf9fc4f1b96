// Package events carries the store's notifications to off-process indexers.
//
// Every successful carve, scratch, publicize, and hide emits one event keyed
// by the carving id. Stored events carry the full content so an indexer can
// rebuild its view from the journal alone, which is how the original
// carve.xyz backend maintained its database.
package events

import (
	"context"
	"log/slog"
	"time"

	"github.com/carvexyz/tree-node/pkg/carving"
	"github.com/carvexyz/tree-node/pkg/identity"
)

// Kind names an event type.
type Kind string

const (
	KindStored     Kind = "carving.stored"
	KindDeleted    Kind = "carving.deleted"
	KindPublicized Kind = "carving.publicized"
	KindHidden     Kind = "carving.hidden"
)

// Event is one externally observable state transition.
type Event struct {
	Kind  Kind               `json:"kind"`
	ID    carving.ID         `json:"id"`
	Actor identity.Principal `json:"actor"`
	At    time.Time          `json:"at"`

	// Content fields, set only for KindStored.
	To         string             `json:"to,omitempty"`
	From       string             `json:"from,omitempty"`
	Message    string             `json:"message,omitempty"`
	Properties carving.Properties `json:"properties,omitempty"`
}

// Emitter receives events after the corresponding state change committed.
// Emit failures are logged, never propagated: notifications are best-effort
// and must not unwind an applied transition.
type Emitter interface {
	Emit(ctx context.Context, ev *Event) error
}

// EmitterFunc adapts a function to an Emitter.
type EmitterFunc func(ctx context.Context, ev *Event) error

// Emit implements Emitter.
func (f EmitterFunc) Emit(ctx context.Context, ev *Event) error {
	return f(ctx, ev)
}

// SlogEmitter writes events as structured log lines.
type SlogEmitter struct{}

// Emit implements Emitter.
func (SlogEmitter) Emit(ctx context.Context, ev *Event) error {
	slog.InfoContext(ctx, "carving event",
		"event", string(ev.Kind),
		"id", ev.ID.Hex(),
		"actor", string(ev.Actor),
	)
	return nil
}

// Multi fans an event out to several emitters, logging individual failures.
type Multi []Emitter

// Emit implements Emitter.
func (m Multi) Emit(ctx context.Context, ev *Event) error {
	for _, e := range m {
		if err := e.Emit(ctx, ev); err != nil {
			slog.WarnContext(ctx, "event emitter failed", "event", string(ev.Kind), "error", err)
		}
	}
	return nil
}
