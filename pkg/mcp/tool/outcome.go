package tool

import (
	"encoding/json"
	"fmt"
)

// Outcome is what a tool call resolves to: a Content payload plus an
// IsError flag. The two are flattened together on the wire rather than
// nested under an "outcome" key.
type Outcome struct {
	Content Content
	IsError bool
}

func (o Outcome) MarshalJSON() ([]byte, error) {
	contentJSON, err := o.Content.MarshalJSON()
	if err != nil {
		return nil, err
	}

	var merged map[string]json.RawMessage
	if err := json.Unmarshal(contentJSON, &merged); err != nil {
		return nil, err
	}

	isError, err := json.Marshal(o.IsError)
	if err != nil {
		return nil, err
	}
	merged["isError"] = isError

	return json.Marshal(merged)
}

// Ok wraps a successful Content payload as a non-error Outcome.
func Ok(content Content) Outcome {
	return Outcome{Content: content}
}

// Failed wraps an error as a failing Outcome: its message becomes a single
// text content block and IsError is true, so a client can distinguish a
// failing call from a successful result without inspecting the text.
func Failed(err error) Outcome {
	return Outcome{Content: Text(err.Error()), IsError: true}
}

// FromResult converts a handler's (T, error) return pair into an Outcome,
// applying into for the success case and Failed for the error case.
func FromResult[T any](value T, err error, into func(T) Content) Outcome {
	if err != nil {
		return Failed(err)
	}
	return Ok(into(value))
}

// FromString converts a plain string handler return value into a text
// Outcome.
func FromString(value string, err error) Outcome {
	return FromResult(value, err, Text)
}

// FromStructured converts an arbitrary handler return value into a
// structuredContent Outcome via json.Marshal.
func FromStructured[T any](value T, err error) Outcome {
	return FromResult(value, err, func(v T) Content { return Structured(v) })
}

// FromStringer is a convenience for handlers returning a fmt.Stringer.
func FromStringer(value fmt.Stringer, err error) Outcome {
	return FromResult(value, err, func(v fmt.Stringer) Content { return Text(v.String()) })
}
