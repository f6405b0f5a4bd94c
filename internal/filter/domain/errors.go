package domain

import "errors"

// Error taxonomy shared by the compiler, source manager and engine. Callers
// wrap these with context and test them with errors.Is.
var (
	// ErrInvalidListReference means a raw list reference matched none of the
	// accepted shapes (remote URL, local path, name@alias).
	ErrInvalidListReference = errors.New("invalid list reference")

	// ErrInvalidPattern means a single rule line could not be compiled. The
	// line is skipped; loading continues.
	ErrInvalidPattern = errors.New("invalid pattern")

	// ErrFetchExhausted means a remote list could not be downloaded within the
	// retry ceiling.
	ErrFetchExhausted = errors.New("fetch attempts exhausted")

	// ErrFileNotFound means a local list file, or a remote list's cache, is
	// absent.
	ErrFileNotFound = errors.New("list file not found")
)
