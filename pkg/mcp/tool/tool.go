// Package tool implements the type-driven adapter that turns a native Go
// function with N typed arguments into a Tool: something that publishes a
// JSON Schema, validates and decodes a caller's argument object, runs the
// handler in the background, and streams its outcome back as one or more
// Actions.
package tool

import (
	"context"
	"encoding/json"

	"github.com/techne-go/techne/pkg/mcp/schema"
)

// ActionKind discriminates Action.
type ActionKind int

const (
	// ActionRequest is a server-initiated request sent to the peer while
	// the handler is still running (e.g. sampling). The constructors in
	// this package never emit one; they exist so a richer, hand-written
	// Tool can still be relayed by the same server dispatch path.
	ActionRequest ActionKind = iota
	// ActionNotify is a server-initiated notification sent to the peer
	// while the handler is still running (e.g. progress).
	ActionNotify
	// ActionFinish terminates the stream exactly once.
	ActionFinish
)

// Action is one event of a Tool call's output stream. Any number of
// ActionRequest/ActionNotify may precede exactly one terminal ActionFinish.
type Action struct {
	Kind ActionKind

	// Request/Notification carry the server→client payload for their
	// respective kinds, pre-serialized by the caller that constructed the
	// Action (the tool adapter itself never builds these; see
	// ActionRequest).
	Request      json.RawMessage
	Notification json.RawMessage

	// Outcome is set iff Kind == ActionFinish.
	Outcome Outcome
}

// Tool is a named, schema-described, callable server-side function.
type Tool struct {
	Name         string
	Description  string
	InputSchema  schema.Schema
	OutputSchema schema.Schema // nil if the tool declares no output schema

	call func(ctx context.Context, arguments json.RawMessage) (<-chan Action, error)
}

// Call validates and decodes arguments, spawns the handler, and returns
// its output stream. An error here means the arguments object itself could
// not even be decoded (invalid_params territory); the server core converts
// it into the matching JSON-RPC error.
func (t Tool) Call(ctx context.Context, arguments json.RawMessage) (<-chan Action, error) {
	return t.call(ctx, arguments)
}

func spawn(ctx context.Context, run func(context.Context) Outcome) <-chan Action {
	actions := make(chan Action, 1)

	go func() {
		defer close(actions)
		actions <- Action{Kind: ActionFinish, Outcome: run(ctx)}
	}()

	return actions
}

// New0 adapts a zero-argument handler.
func New0(name, description string, handler func(ctx context.Context) Outcome) Tool {
	input := objectSchema()

	return Tool{
		Name:        name,
		Description: description,
		InputSchema: input,
		call: func(ctx context.Context, _ json.RawMessage) (<-chan Action, error) {
			return spawn(ctx, handler), nil
		},
	}
}

// New1 adapts a one-argument handler.
func New1[A any](name, description string, argA Argument[A], handler func(ctx context.Context, a A) Outcome) Tool {
	input := objectSchema(argA)

	return Tool{
		Name:        name,
		Description: description,
		InputSchema: input,
		call: func(ctx context.Context, arguments json.RawMessage) (<-chan Action, error) {
			object, err := toObject(arguments)
			if err != nil {
				return nil, err
			}
			a, err := decodeArg(argA, object)
			if err != nil {
				return nil, err
			}
			return spawn(ctx, func(ctx context.Context) Outcome { return handler(ctx, a) }), nil
		},
	}
}

// New2 adapts a two-argument handler.
func New2[A, B any](
	name, description string,
	argA Argument[A], argB Argument[B],
	handler func(ctx context.Context, a A, b B) Outcome,
) Tool {
	input := objectSchema(argA, argB)

	return Tool{
		Name:        name,
		Description: description,
		InputSchema: input,
		call: func(ctx context.Context, arguments json.RawMessage) (<-chan Action, error) {
			object, err := toObject(arguments)
			if err != nil {
				return nil, err
			}
			a, err := decodeArg(argA, object)
			if err != nil {
				return nil, err
			}
			b, err := decodeArg(argB, object)
			if err != nil {
				return nil, err
			}
			return spawn(ctx, func(ctx context.Context) Outcome { return handler(ctx, a, b) }), nil
		},
	}
}

// New3 adapts a three-argument handler.
func New3[A, B, C any](
	name, description string,
	argA Argument[A], argB Argument[B], argC Argument[C],
	handler func(ctx context.Context, a A, b B, c C) Outcome,
) Tool {
	input := objectSchema(argA, argB, argC)

	return Tool{
		Name:        name,
		Description: description,
		InputSchema: input,
		call: func(ctx context.Context, arguments json.RawMessage) (<-chan Action, error) {
			object, err := toObject(arguments)
			if err != nil {
				return nil, err
			}
			a, err := decodeArg(argA, object)
			if err != nil {
				return nil, err
			}
			b, err := decodeArg(argB, object)
			if err != nil {
				return nil, err
			}
			c, err := decodeArg(argC, object)
			if err != nil {
				return nil, err
			}
			return spawn(ctx, func(ctx context.Context) Outcome { return handler(ctx, a, b, c) }), nil
		},
	}
}

// WithOutputSchema attaches a declared output schema to a Tool built by one
// of the New* constructors.
func (t Tool) WithOutputSchema(s schema.Schema) Tool {
	t.OutputSchema = s
	return t
}
