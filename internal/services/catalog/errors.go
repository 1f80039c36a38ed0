package catalog

import (
	"errors"
	"fmt"
)

// ParseKind classifies why a page could not be turned into a record.
type ParseKind string

const (
	// ParseShape means the page did not look like a catalog page at all:
	// the data anchor was missing or a challenge page was served.
	ParseShape ParseKind = "shape"
	// ParseSyntax means the embedded object was found but was not valid
	// JSON after normalization.
	ParseSyntax ParseKind = "syntax"
	// ParseIncomplete means the object parsed but lacked required fields.
	ParseIncomplete ParseKind = "incomplete"
)

// ErrProductRemoved indicates the catalog page reports the product as
// discontinued. Callers treat this as a normal completion, not a failure.
var ErrProductRemoved = errors.New("product removed from catalog")

// ParseError is an item-level extraction failure. All kinds enter the
// retry path; a shape or syntax recurrence across every retry usually
// means the catalog changed its page structure.
type ParseError struct {
	Kind ParseKind
	Msg  string
	Err  error
}

func (e *ParseError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("parse %s: %s: %v", e.Kind, e.Msg, e.Err)
	}
	return fmt.Sprintf("parse %s: %s", e.Kind, e.Msg)
}

func (e *ParseError) Unwrap() error {
	return e.Err
}

// KindOf returns the classification of err, or "" when err is not a
// ParseError.
func KindOf(err error) ParseKind {
	var pe *ParseError
	if errors.As(err, &pe) {
		return pe.Kind
	}
	return ""
}

func shapeError(msg string) *ParseError {
	return &ParseError{Kind: ParseShape, Msg: msg}
}

func syntaxError(msg string, err error) *ParseError {
	return &ParseError{Kind: ParseSyntax, Msg: msg, Err: err}
}

func incompleteError(msg string) *ParseError {
	return &ParseError{Kind: ParseIncomplete, Msg: msg}
}
