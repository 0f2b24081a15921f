package parser

import (
	"errors"
	"fmt"
)

// Code classifies load failures so callers can branch without matching
// error strings.
type Code int

const (
	CodeInternal Code = iota
	CodeNotFound
	CodeMalformedMarkup
	CodePasswordRequired
	CodeUnsupported
)

var codeNames = [...]string{
	CodeInternal:         "internal",
	CodeNotFound:         "not_found",
	CodeMalformedMarkup:  "malformed_markup",
	CodePasswordRequired: "password_required",
	CodeUnsupported:      "unsupported",
}

func (c Code) String() string {
	if c >= 0 && int(c) < len(codeNames) {
		return codeNames[c]
	}
	return fmt.Sprintf("code(%d)", int(c))
}

func (c Code) MarshalText() ([]byte, error) {
	return []byte(c.String()), nil
}

// Sentinel errors, one per code, for use with errors.Is.
var (
	ErrInternal         = errors.New("internal error")
	ErrNotFound         = errors.New("not found")
	ErrMalformedMarkup  = errors.New("malformed markup")
	ErrPasswordRequired = errors.New("password required")
	ErrUnsupported      = errors.New("unsupported")
)

var sentinels = map[Code]error{
	CodeInternal:         ErrInternal,
	CodeNotFound:         ErrNotFound,
	CodeMalformedMarkup:  ErrMalformedMarkup,
	CodePasswordRequired: ErrPasswordRequired,
	CodeUnsupported:      ErrUnsupported,
}

// ParseError is the failure every adapter returns from Load.
type ParseError struct {
	Code Code
	Path string // source file or archive member
	Err  error  // underlying cause, may be nil
}

func (e *ParseError) Error() string {
	msg := sentinel(e.Code).Error()
	if e.Path != "" {
		msg += ": " + e.Path
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *ParseError) Unwrap() error {
	return e.Err
}

// Is matches the sentinel of the error's code.
func (e *ParseError) Is(target error) bool {
	return sentinel(e.Code) == target
}

func sentinel(c Code) error {
	if err, ok := sentinels[c]; ok {
		return err
	}
	return ErrInternal
}

func newError(code Code, path string, err error) *ParseError {
	return &ParseError{Code: code, Path: path, Err: err}
}

// CodeOf extracts the code of err. Errors that are not ParseErrors are
// internal.
func CodeOf(err error) Code {
	var pe *ParseError
	if errors.As(err, &pe) {
		return pe.Code
	}
	return CodeInternal
}

// wrapErr turns err into a ParseError with code unless it already is one.
func wrapErr(code Code, path string, err error) error {
	if err == nil {
		return nil
	}
	var pe *ParseError
	if errors.As(err, &pe) {
		return err
	}
	return newError(code, path, err)
}
