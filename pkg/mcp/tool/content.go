package tool

import "encoding/json"

// Content is the payload of a tool's Outcome: either a list of unstructured
// blocks (the common case) or a single structured value serialized under
// "structuredContent". Exactly one of the two is set.
type Content struct {
	unstructured []Unstructured
	structured   any
	isStructured bool
}

// Text wraps a plain string as a single text block.
func Text(text string) Content {
	return Content{unstructured: []Unstructured{{Type: "text", Text: text}}}
}

// Blocks wraps one or more explicit Unstructured blocks.
func Blocks(blocks ...Unstructured) Content {
	return Content{unstructured: blocks}
}

// Structured wraps an arbitrary JSON-serializable value as structured
// content. Marshalling is deferred to MarshalJSON so a value error surfaces
// through the normal encoding/json error path.
func Structured(value any) Content {
	return Content{structured: value, isStructured: true}
}

func (c Content) MarshalJSON() ([]byte, error) {
	if c.isStructured {
		return json.Marshal(struct {
			StructuredContent any `json:"structuredContent"`
		}{c.structured})
	}
	return json.Marshal(struct {
		Content []Unstructured `json:"content"`
	}{c.unstructured})
}

// Unstructured is one block of a tool's unstructured content: the variant
// is discriminated by Type, matching the five kinds the protocol defines.
type Unstructured struct {
	Type string `json:"type"`

	Text string `json:"text,omitempty"`

	Data     string `json:"data,omitempty"`
	MimeType string `json:"mimeType,omitempty"`

	URI         string `json:"uri,omitempty"`
	Name        string `json:"name,omitempty"`
	Description string `json:"description,omitempty"`
	Title       string `json:"title,omitempty"`
}

// Image returns an image content block; data is expected to already be
// base64-encoded, matching the wire format.
func Image(data, mimeType string) Unstructured {
	return Unstructured{Type: "image", Data: data, MimeType: mimeType}
}

// Audio returns an audio content block; data is expected to already be
// base64-encoded.
func Audio(data, mimeType string) Unstructured {
	return Unstructured{Type: "audio", Data: data, MimeType: mimeType}
}

// ResourceLink points at a resource without inlining its contents.
func ResourceLink(uri, name, description, mimeType string) Unstructured {
	return Unstructured{Type: "resourceLink", URI: uri, Name: name, Description: description, MimeType: mimeType}
}

// Resource inlines a resource's text contents.
func Resource(uri, title, mimeType, text string) Unstructured {
	return Unstructured{Type: "resource", URI: uri, Title: title, MimeType: mimeType, Text: text}
}
