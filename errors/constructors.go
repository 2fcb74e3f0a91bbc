package errors

import (
	stderrors "errors"
	"fmt"
)

// New creates a new PlatformError with the given code and message.
//
// Example:
//
//	err := errors.New(errors.CodeNotFound, "bundle not found")
func New(code ErrorCode, message string) PlatformError {
	return &platformError{
		code:           code,
		classification: getDefaultClassification(code),
		message:        message,
	}
}

// Newf creates a new PlatformError with a formatted message.
func Newf(code ErrorCode, format string, args ...interface{}) PlatformError {
	return New(code, fmt.Sprintf(format, args...))
}

// NewWithContext creates a new PlatformError carrying context metadata.
// The context map is copied.
func NewWithContext(code ErrorCode, message string, ctx map[string]interface{}) PlatformError {
	return &platformError{
		code:           code,
		classification: getDefaultClassification(code),
		message:        message,
		context:        copyContext(ctx),
	}
}

// Wrap wraps an error with a code and message while preserving the original
// error in the chain. When err is itself a PlatformError its classification is
// kept. Returns nil if err is nil.
//
// Example:
//
//	if err := client.Push(ctx, dir, tag); err != nil {
//	    return errors.Wrap(err, errors.CodePublishFailed, "failed to push tag")
//	}
func Wrap(err error, code ErrorCode, message string) PlatformError {
	return WrapWithContext(err, code, message, nil)
}

// Wrapf wraps an error with a formatted message. Returns nil if err is nil.
func Wrapf(err error, code ErrorCode, format string, args ...interface{}) PlatformError {
	if err == nil {
		return nil
	}
	return Wrap(err, code, fmt.Sprintf(format, args...))
}

// WrapWithContext wraps an error and attaches context metadata in one step.
// Returns nil if err is nil.
func WrapWithContext(err error, code ErrorCode, message string, ctx map[string]interface{}) PlatformError {
	if err == nil {
		return nil
	}

	classification := getDefaultClassification(code)
	var platformErr PlatformError
	if stderrors.As(err, &platformErr) {
		classification = platformErr.Classification()
	}

	return &platformError{
		code:           code,
		classification: classification,
		message:        message,
		context:        copyContext(ctx),
		cause:          err,
	}
}
