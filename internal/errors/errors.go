// Package errors defines the structured failures reported by the update,
// revert and backup operations.
package errors

import "errors"

// Code identifies a structured error type used across the application.
type Code string

const (
	CodeUnknown Code = "unknown"

	// Broad kinds. Every specific code below maps onto one of these.
	CodeNetwork    Code = "network_error"
	CodeArchive    Code = "archive_error"
	CodeFilesystem Code = "filesystem_error"
	CodeNotFound   Code = "not_found"
	CodeValidation Code = "validation_error"

	// Backup store
	CodeArchiveUnavailable Code = "archive_unavailable"
	CodeSourceMissing      Code = "source_missing"
	CodeIO                 Code = "io_error"

	// Update / revert
	CodeDownloadFailed    Code = "download_failed"
	CodeSubtreeNotFound   Code = "subtree_not_found"
	CodeNoBackupAvailable Code = "no_backup_available"
	CodeBusy              Code = "busy"
	CodeCancelled         Code = "cancelled"
)

// Error represents a structured error with a machine-readable code plus message.
type Error struct {
	Code    Code
	Message string
	Err     error
}

// Error implements the error interface.
func (e Error) Error() string {
	switch {
	case e.Message != "" && e.Err != nil:
		return e.Message + ": " + e.Err.Error()
	case e.Message != "":
		return e.Message
	case e.Err != nil:
		return e.Err.Error()
	}
	return string(e.Code)
}

// Unwrap returns the wrapped error.
func (e Error) Unwrap() error {
	return e.Err
}

// New wraps an error with a code/message.
func New(code Code, msg string, err error) Error {
	return Error{Code: code, Message: msg, Err: err}
}

// CodeOf walks the error chain and returns the first structured code found.
func CodeOf(err error) Code {
	var structured Error
	if errors.As(err, &structured) {
		return structured.Code
	}
	return CodeUnknown
}

// IsCode reports whether any structured error in err's unwrap chain carries
// code. CodeOf only reports the outermost one.
func IsCode(err error, code Code) bool {
	for err != nil {
		var structured Error
		if !errors.As(err, &structured) {
			return false
		}
		if structured.Code == code {
			return true
		}
		err = structured.Err
	}
	return false
}

// KindOf maps a specific code onto its broad kind. Broad kinds map to
// themselves.
func KindOf(code Code) Code {
	switch code {
	case CodeDownloadFailed:
		return CodeNetwork
	case CodeArchiveUnavailable:
		return CodeArchive
	case CodeSourceMissing, CodeIO, CodeBusy:
		return CodeFilesystem
	case CodeSubtreeNotFound, CodeNoBackupAvailable:
		return CodeNotFound
	case CodeNetwork, CodeArchive, CodeFilesystem, CodeNotFound, CodeValidation:
		return code
	}
	return CodeUnknown
}
