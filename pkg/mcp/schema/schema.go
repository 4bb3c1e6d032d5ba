// Package schema is a closed, recursive description of tool argument and
// result shapes, serializable as JSON Schema. It is not a general-purpose
// JSON-Schema library: it encodes only the node kinds tool arguments need.
package schema

import (
	"encoding/json"
	"sort"
)

// Schema is implemented by every node kind: Object, String, Integer,
// Number, Boolean, Array, Null.
type Schema interface {
	schemaNode()
}

// Object describes a JSON object with named, individually-typed
// properties. Properties are stored as a map (insertion order is
// irrelevant); Required lists which keys must be present, and iterates in
// the order given at construction so tools/list output is stable.
type Object struct {
	Description string
	Properties  map[string]Schema
	Required    []string
}

func (Object) schemaNode() {}

// MarshalJSON renders Object with properties sorted by key, so two
// semantically identical schemas always produce byte-identical JSON.
func (o Object) MarshalJSON() ([]byte, error) {
	keys := make([]string, 0, len(o.Properties))
	for k := range o.Properties {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	properties := make(map[string]json.RawMessage, len(keys))
	for _, k := range keys {
		raw, err := json.Marshal(o.Properties[k])
		if err != nil {
			return nil, err
		}
		properties[k] = raw
	}

	required := o.Required
	if required == nil {
		required = []string{}
	}

	return json.Marshal(struct {
		Type        string                     `json:"type"`
		Description string                     `json:"description,omitempty"`
		Properties  map[string]json.RawMessage `json:"properties"`
		Required    []string                   `json:"required,omitempty"`
	}{"object", o.Description, properties, required})
}

// String is a scalar string-valued node.
type String struct{ Description string }

func (String) schemaNode() {}

func (s String) MarshalJSON() ([]byte, error) {
	return marshalScalar("string", s.Description)
}

// Integer is a scalar whole-number node.
type Integer struct{ Description string }

func (Integer) schemaNode() {}

func (n Integer) MarshalJSON() ([]byte, error) {
	return marshalScalar("integer", n.Description)
}

// Number is a scalar floating-point node.
type Number struct{ Description string }

func (Number) schemaNode() {}

func (n Number) MarshalJSON() ([]byte, error) {
	return marshalScalar("number", n.Description)
}

// Boolean is a scalar true/false node.
type Boolean struct{ Description string }

func (Boolean) schemaNode() {}

func (b Boolean) MarshalJSON() ([]byte, error) {
	return marshalScalar("boolean", b.Description)
}

// Array describes a homogeneous list; Items is nil when the element shape
// is unconstrained.
type Array struct {
	Description string
	Items       Schema
}

func (Array) schemaNode() {}

func (a Array) MarshalJSON() ([]byte, error) {
	var items json.RawMessage
	if a.Items != nil {
		raw, err := json.Marshal(a.Items)
		if err != nil {
			return nil, err
		}
		items = raw
	}

	return json.Marshal(struct {
		Type        string          `json:"type"`
		Description string          `json:"description,omitempty"`
		Items       json.RawMessage `json:"items,omitempty"`
	}{"array", a.Description, items})
}

// Null is the unit/no-value node.
type Null struct{}

func (Null) schemaNode() {}

func (Null) MarshalJSON() ([]byte, error) {
	return []byte(`{"type":"null"}`), nil
}

func marshalScalar(kind, description string) ([]byte, error) {
	return json.Marshal(struct {
		Type        string `json:"type"`
		Description string `json:"description,omitempty"`
	}{kind, description})
}

// Unmarshal decodes a Schema node back from JSON Schema by dispatching
// on its "type" discriminator. Used for round-trip tests and for a client
// that wants to inspect a server's advertised input schema.
func Unmarshal(data []byte) (Schema, error) {
	var probe struct {
		Type        string                     `json:"type"`
		Description string                     `json:"description"`
		Properties  map[string]json.RawMessage `json:"properties"`
		Required    []string                   `json:"required"`
		Items       json.RawMessage            `json:"items"`
	}
	if err := json.Unmarshal(data, &probe); err != nil {
		return nil, err
	}

	switch probe.Type {
	case "object":
		properties := make(map[string]Schema, len(probe.Properties))
		for k, raw := range probe.Properties {
			node, err := Unmarshal(raw)
			if err != nil {
				return nil, err
			}
			properties[k] = node
		}
		return Object{Description: probe.Description, Properties: properties, Required: probe.Required}, nil
	case "string":
		return String{Description: probe.Description}, nil
	case "integer":
		return Integer{Description: probe.Description}, nil
	case "number":
		return Number{Description: probe.Description}, nil
	case "boolean":
		return Boolean{Description: probe.Description}, nil
	case "array":
		var items Schema
		if len(probe.Items) > 0 {
			node, err := Unmarshal(probe.Items)
			if err != nil {
				return nil, err
			}
			items = node
		}
		return Array{Description: probe.Description, Items: items}, nil
	default:
		return Null{}, nil
	}
}
