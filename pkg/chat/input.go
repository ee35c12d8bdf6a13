package chat

import "strings"

// InputKind tags the variant held by an Input.
type InputKind string

const (
	// InputRawText is text typed by the user.
	InputRawText InputKind = "text"

	// InputTemplate is a selected template card; its description becomes the
	// question.
	InputTemplate InputKind = "template"
)

// Input is the draft question shown in the input form. It is either raw text
// or a template selection.
type Input struct {
	Kind  InputKind `json:"kind"`
	Value string    `json:"value"`
}

// RawText builds a raw text input.
func RawText(text string) Input {
	return Input{Kind: InputRawText, Value: text}
}

// TemplateSelection builds an input from a template card's description.
func TemplateSelection(description string) Input {
	return Input{Kind: InputTemplate, Value: description}
}

// Resolve returns the question text the input stands for.
func (in Input) Resolve() string {
	switch in.Kind {
	case InputRawText, InputTemplate:
		return in.Value
	default:
		return ""
	}
}

// Valid reports whether the input carries a known kind. The zero Input is
// valid and resolves to an empty question.
func (in Input) Valid() bool {
	switch in.Kind {
	case "", InputRawText, InputTemplate:
		return true
	}
	return false
}

// Blank reports whether the resolved question is empty after trimming.
func (in Input) Blank() bool {
	return strings.TrimSpace(in.Resolve()) == ""
}
