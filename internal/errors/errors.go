// Package errors defines the error taxonomy of the dev server.
//
// Every failure the engine can observe falls into one of five kinds:
// compile (style preprocessing or utility transform), render (component
// module load or render), io (artifact or source read/write), transport
// (a send to a single live client) and upgrade (a failed WebSocket
// handshake). Stage boundaries catch compile, render and io errors and
// record them on a StatusBoard; none of them is fatal after startup.
package errors

import (
	"errors"
	"fmt"
	"strings"
)

// Kind categorises an Error.
type Kind int

const (
	KindUnknown Kind = iota
	KindCompile
	KindRender
	KindIO
	KindTransport
	KindUpgrade
)

// String returns the string representation of the Kind
func (k Kind) String() string {
	switch k {
	case KindCompile:
		return "compile"
	case KindRender:
		return "render"
	case KindIO:
		return "io"
	case KindTransport:
		return "transport"
	case KindUpgrade:
		return "upgrade"
	default:
		return "unknown"
	}
}

// Error is a classified error with optional source location.
type Error struct {
	Kind Kind
	Op   string
	Path string
	Line int
	Err  error
}

// Error implements the error interface.
func (e *Error) Error() string {
	var parts []string

	parts = append(parts, e.Kind.String()+" error")
	if e.Op != "" {
		parts = append(parts, e.Op)
	}

	if e.Path != "" {
		location := e.Path
		if e.Line > 0 {
			location += fmt.Sprintf(":%d", e.Line)
		}
		parts = append(parts, location)
	}

	result := strings.Join(parts, " ")
	if e.Err != nil {
		result += ": " + e.Err.Error()
	}

	return result
}

// Unwrap returns the underlying cause.
func (e *Error) Unwrap() error {
	return e.Err
}

// Compile wraps a style compilation failure.
func Compile(op, path string, line int, err error) *Error {
	return &Error{Kind: KindCompile, Op: op, Path: path, Line: line, Err: err}
}

// Render wraps a component load or render failure.
func Render(op, path string, err error) *Error {
	return &Error{Kind: KindRender, Op: op, Path: path, Err: err}
}

// IO wraps a filesystem failure.
func IO(op, path string, err error) *Error {
	return &Error{Kind: KindIO, Op: op, Path: path, Err: err}
}

// Transport wraps a failed send to one live client.
func Transport(op, client string, err error) *Error {
	return &Error{Kind: KindTransport, Op: op, Path: client, Err: err}
}

// Upgrade wraps a failed WebSocket handshake.
func Upgrade(op string, err error) *Error {
	return &Error{Kind: KindUpgrade, Op: op, Err: err}
}

// KindOf returns the Kind of the first *Error in err's chain.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindUnknown
}

// IsKind reports whether err's chain contains an *Error of the given kind.
func IsKind(err error, kind Kind) bool {
	return err != nil && KindOf(err) == kind
}

// New mirrors the standard library errors.New.
func New(text string) error {
	return errors.New(text)
}

// Is mirrors the standard library errors.Is.
func Is(err, target error) bool {
	return errors.Is(err, target)
}

// As mirrors the standard library errors.As.
func As(err error, target any) bool {
	return errors.As(err, target)
}
