package events

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/google/cel-go/cel"
	"github.com/google/cel-go/checker/decls"
)

var (
	ErrInvalidExpression = errors.New("invalid CEL expression")
	ErrEvaluationFailed  = errors.New("CEL evaluation failed")
)

// Evaluator compiles and evaluates CEL filter expressions against events.
// Expressions see the variables kind, id, actor, to, from, and message,
// all strings; for example `kind == "carving.stored" && to == "ada"`.
type Evaluator struct {
	env   *cel.Env
	cache sync.Map // map[string]cel.Program
}

// NewEvaluator creates an evaluator with the event schema declared.
func NewEvaluator() (*Evaluator, error) {
	env, err := cel.NewEnv(
		cel.Declarations(
			decls.NewVar("kind", decls.String),
			decls.NewVar("id", decls.String),
			decls.NewVar("actor", decls.String),
			decls.NewVar("to", decls.String),
			decls.NewVar("from", decls.String),
			decls.NewVar("message", decls.String),
		),
	)
	if err != nil {
		return nil, fmt.Errorf("create CEL env: %w", err)
	}
	return &Evaluator{env: env}, nil
}

// Compile parses and compiles an expression. Compiled programs are cached.
func (e *Evaluator) Compile(expression string) (cel.Program, error) {
	if cached, ok := e.cache.Load(expression); ok {
		if prg, ok := cached.(cel.Program); ok {
			return prg, nil
		}
	}

	ast, issues := e.env.Compile(expression)
	if issues != nil && issues.Err() != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidExpression, issues.Err())
	}
	prg, err := e.env.Program(ast)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidExpression, err)
	}

	e.cache.Store(expression, prg)
	return prg, nil
}

// Match evaluates an expression against an event.
func (e *Evaluator) Match(expression string, ev *Event) (bool, error) {
	prg, err := e.Compile(expression)
	if err != nil {
		return false, err
	}

	out, _, err := prg.Eval(map[string]any{
		"kind":    string(ev.Kind),
		"id":      ev.ID.Hex(),
		"actor":   string(ev.Actor),
		"to":      ev.To,
		"from":    ev.From,
		"message": ev.Message,
	})
	if err != nil {
		return false, fmt.Errorf("%w: %v", ErrEvaluationFailed, err)
	}
	result, ok := out.Value().(bool)
	if !ok {
		return false, fmt.Errorf("%w: expression must return bool, got %T", ErrEvaluationFailed, out.Value())
	}
	return result, nil
}

// ValidateExpression checks whether an expression is syntactically valid.
func (e *Evaluator) ValidateExpression(expression string) error {
	_, err := e.Compile(expression)
	return err
}

// Subscription forwards matching events to a channel. A nil or empty
// expression matches everything.
type Subscription struct {
	expr string
	eval *Evaluator
	ch   chan *Event
}

// Subscriber multiplexes events to filtered subscriptions.
type Subscriber struct {
	eval *Evaluator

	mu   sync.Mutex
	subs map[*Subscription]struct{}
}

// NewSubscriber creates an empty subscriber.
func NewSubscriber() (*Subscriber, error) {
	eval, err := NewEvaluator()
	if err != nil {
		return nil, err
	}
	return &Subscriber{eval: eval, subs: make(map[*Subscription]struct{})}, nil
}

// Subscribe registers a filter and returns its subscription. The expression
// is compiled eagerly so callers learn about bad filters at subscribe time.
func (s *Subscriber) Subscribe(expression string, buffer int) (*Subscription, error) {
	if expression != "" {
		if err := s.eval.ValidateExpression(expression); err != nil {
			return nil, err
		}
	}
	if buffer <= 0 {
		buffer = 16
	}
	sub := &Subscription{expr: expression, eval: s.eval, ch: make(chan *Event, buffer)}

	s.mu.Lock()
	s.subs[sub] = struct{}{}
	s.mu.Unlock()
	return sub, nil
}

// Unsubscribe removes a subscription and closes its channel.
func (s *Subscriber) Unsubscribe(sub *Subscription) {
	s.mu.Lock()
	_, ok := s.subs[sub]
	delete(s.subs, sub)
	s.mu.Unlock()
	if ok {
		close(sub.ch)
	}
}

// Events returns the subscription's delivery channel.
func (sub *Subscription) Events() <-chan *Event {
	return sub.ch
}

// Emit implements Emitter. Delivery is non-blocking: a subscription that
// falls behind drops events rather than stalling the store.
func (s *Subscriber) Emit(_ context.Context, ev *Event) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for sub := range s.subs {
		if sub.expr != "" {
			matched, err := sub.eval.Match(sub.expr, ev)
			if err != nil || !matched {
				continue
			}
		}
		select {
		case sub.ch <- ev:
		default:
		}
	}
	return nil
}
