package domain

import "errors"

var (
	// ErrNotFound indicates resource not found
	ErrNotFound = errors.New("resource not found")
	// ErrInvalidRequest indicates invalid request
	ErrInvalidRequest = errors.New("invalid request")
	// ErrUnauthorized indicates unauthorized access
	ErrUnauthorized = errors.New("unauthorized")
	// ErrAuthExpired indicates the issue-tracker token expired and a
	// refresh attempt also failed; the caller should re-authenticate
	ErrAuthExpired = errors.New("authentication expired")
	// ErrEmptyExportSet indicates an export was requested with no
	// approved test cases
	ErrEmptyExportSet = errors.New("no approved test cases to export")
	// ErrBatchTooLarge indicates an export batch above the per-call cap
	ErrBatchTooLarge = errors.New("export batch exceeds maximum size")
)
