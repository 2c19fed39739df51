// Package errs holds the error taxonomy shared by the mail and table adapters.
//
// Four kinds exist: transport failures, missing tables/sheets/files, optimistic
// lock conflicts and malformed message content. Only conflicts are retried,
// and only inside the upsert engine.
package errs

import (
	goerrors "github.com/goliatone/go-errors"
)

const (
	CodeTransport = "TRANSPORT_ERROR"
	CodeNotFound  = "NOT_FOUND"
	CodeConflict  = "VERSION_CONFLICT"
	CodeParse     = "PARSE_ERROR"
)

// Transport wraps a network or auth failure against the mail or table service
func Transport(cause error, message string) error {
	return wrap(cause, goerrors.CategoryExternal, CodeTransport, message)
}

// NotFound reports a named table, sheet or file that does not exist
func NotFound(message string) error {
	return goerrors.New(message, goerrors.CategoryNotFound).WithTextCode(CodeNotFound)
}

// Conflict reports an update rejected by the version check
func Conflict(cause error, message string) error {
	return wrap(cause, goerrors.CategoryConflict, CodeConflict, message)
}

// Parse reports malformed message content
func Parse(cause error, message string) error {
	return wrap(cause, goerrors.CategoryBadInput, CodeParse, message)
}

func wrap(cause error, category goerrors.Category, code, message string) error {
	if cause == nil {
		return goerrors.New(message, category).WithTextCode(code)
	}
	return goerrors.Wrap(cause, category, message).WithTextCode(code)
}

func IsTransport(err error) bool { return hasCode(err, CodeTransport) }
func IsNotFound(err error) bool  { return hasCode(err, CodeNotFound) }
func IsConflict(err error) bool  { return hasCode(err, CodeConflict) }
func IsParse(err error) bool     { return hasCode(err, CodeParse) }

// WithMetadata attaches diagnostic fields when err carries an envelope
func WithMetadata(err error, metadata map[string]any) error {
	var rich *goerrors.Error
	if goerrors.As(err, &rich) {
		rich.WithMetadata(metadata)
	}
	return err
}

// hasCode reports whether the outermost envelope in err carries code
func hasCode(err error, code string) bool {
	if err == nil {
		return false
	}
	var rich *goerrors.Error
	if !goerrors.As(err, &rich) {
		return false
	}
	return rich.TextCode == code
}
