package tool

import (
	"encoding/json"
	"fmt"

	"github.com/techne-go/techne/pkg/mcp/schema"
)

// anyArgument is the type-erased half of Argument, used to assemble a
// tool's input schema from a slice of heterogeneously-typed arguments.
type anyArgument interface {
	Name() string
	Schema() schema.Schema
	Required() bool
}

// Argument describes one named, typed member of a tool's argument object:
// its wire name, its JSON Schema, whether it is required, and how to turn
// the caller-supplied JSON for that key into a native T.
type Argument[T any] interface {
	anyArgument
	Decode(raw json.RawMessage) (T, error)
}

type namedArg[T any] struct {
	name        string
	description string
	schemaFn    func(description string) schema.Schema
}

func (a namedArg[T]) Name() string           { return a.name }
func (a namedArg[T]) Schema() schema.Schema  { return a.schemaFn(a.description) }
func (a namedArg[T]) Required() bool         { return true }

func (a namedArg[T]) Decode(raw json.RawMessage) (T, error) {
	var value T
	if len(raw) == 0 || string(raw) == "null" {
		return value, fmt.Errorf("missing required argument %q", a.name)
	}
	err := json.Unmarshal(raw, &value)
	return value, err
}

// String declares a required string argument.
func String(name, description string) Argument[string] {
	return namedArg[string]{name: name, description: description, schemaFn: func(d string) schema.Schema {
		return schema.String{Description: d}
	}}
}

// Uint32 declares a required non-negative integer argument.
func Uint32(name, description string) Argument[uint32] {
	return namedArg[uint32]{name: name, description: description, schemaFn: func(d string) schema.Schema {
		return schema.Integer{Description: d}
	}}
}

// Float32 declares a required numeric argument.
func Float32(name, description string) Argument[float32] {
	return namedArg[float32]{name: name, description: description, schemaFn: func(d string) schema.Schema {
		return schema.Number{Description: d}
	}}
}

// Bool declares a required boolean argument.
func Bool(name, description string) Argument[bool] {
	return namedArg[bool]{name: name, description: description, schemaFn: func(d string) schema.Schema {
		return schema.Boolean{Description: d}
	}}
}

type optionalArg[T any] struct {
	inner Argument[T]
}

func (o optionalArg[T]) Name() string          { return o.inner.Name() }
func (o optionalArg[T]) Schema() schema.Schema { return o.inner.Schema() }
func (o optionalArg[T]) Required() bool        { return false }

func (o optionalArg[T]) Decode(raw json.RawMessage) (*T, error) {
	if len(raw) == 0 || string(raw) == "null" {
		return nil, nil
	}
	value, err := o.inner.Decode(raw)
	if err != nil {
		return nil, err
	}
	return &value, nil
}

// Optional wraps an Argument so a missing key or a JSON null decodes to a
// nil pointer instead of failing, and so it is left out of the schema's
// "required" list.
func Optional[T any](arg Argument[T]) Argument[*T] {
	return optionalArg[T]{inner: arg}
}

func property(arg anyArgument) (string, schema.Schema) {
	return arg.Name(), arg.Schema()
}

func required(arg anyArgument) (string, bool) {
	return arg.Name(), arg.Required()
}

func objectSchema(args ...anyArgument) schema.Object {
	properties := make(map[string]schema.Schema, len(args))
	var requiredNames []string

	for _, arg := range args {
		name, s := property(arg)
		properties[name] = s

		if name, ok := required(arg); ok {
			requiredNames = append(requiredNames, name)
		}
	}

	return schema.Object{Properties: properties, Required: requiredNames}
}

func toObject(raw json.RawMessage) (map[string]json.RawMessage, error) {
	if len(raw) == 0 || string(raw) == "null" {
		return map[string]json.RawMessage{}, nil
	}
	var object map[string]json.RawMessage
	if err := json.Unmarshal(raw, &object); err != nil {
		return nil, err
	}
	return object, nil
}

func decodeArg[T any](arg Argument[T], object map[string]json.RawMessage) (T, error) {
	raw, ok := object[arg.Name()]
	if !ok {
		raw = json.RawMessage("null")
	}
	return arg.Decode(raw)
}
