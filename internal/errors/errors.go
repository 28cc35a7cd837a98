// errors.go - Classified application errors shared by every layer of the scanner

package errors

import "fmt"

// AppError is an error with a stable code that callers (HTTP handlers, CLI) can map
// to a status without parsing messages.
type AppError struct {
	Code    string
	Message string
	Cause   error
}

func (e *AppError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("[%s] %s: %v", e.Code, e.Message, e.Cause)
	}
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

func (e *AppError) Unwrap() error {
	return e.Cause
}

// Is matches on Code so the sentinels below work with errors.Is.
func (e *AppError) Is(target error) bool {
	t, ok := target.(*AppError)
	if !ok {
		return false
	}
	return t.Code == e.Code
}

// New creates an AppError with an optional cause.
func New(code, message string, cause ...error) *AppError {
	var c error
	if len(cause) > 0 {
		c = cause[0]
	}
	return &AppError{
		Code:    code,
		Message: message,
		Cause:   c,
	}
}

// Wrap attaches a code and message to an existing error.
func Wrap(err error, code, message string) *AppError {
	return &AppError{
		Code:    code,
		Message: message,
		Cause:   err,
	}
}

var (
	ErrEmptyClientName = &AppError{Code: "INPUT_001", Message: "Client name cannot be empty."}
	ErrFileNotFound    = &AppError{Code: "INPUT_002", Message: "file does not exist"}
	ErrUnsupportedFile = &AppError{Code: "INPUT_003", Message: "unsupported file type"}
	ErrFileOutsideBase = &AppError{Code: "INPUT_004", Message: "file is outside the base directory"}

	ErrImageDecode  = &AppError{Code: "NORM_001", Message: "failed to decode image"}
	ErrHEIFDecode   = &AppError{Code: "NORM_002", Message: "Unable to process HEIF image"}
	ErrPDFRasterize = &AppError{Code: "NORM_003", Message: "failed to rasterize PDF"}

	ErrProviderNotConfigured = &AppError{Code: "PROV_001", Message: "provider not configured"}
	ErrProviderCall          = &AppError{Code: "PROV_002", Message: "provider call failed"}
	ErrAllProvidersFailed    = &AppError{Code: "PROV_003", Message: "all providers failed"}
	ErrUnknownProvider       = &AppError{Code: "PROV_004", Message: "unknown provider"}
)

// FileNotFound builds the INPUT_002 error for a resolved path.
func FileNotFound(path string) *AppError {
	return &AppError{Code: ErrFileNotFound.Code, Message: fmt.Sprintf("The file %s does not exist.", path)}
}

// FileOutsideBase builds the INPUT_004 error for a reference that escapes the base directory.
func FileOutsideBase(file string) *AppError {
	return &AppError{Code: ErrFileOutsideBase.Code, Message: fmt.Sprintf("The file %s is outside the base directory.", file)}
}

// GetCode returns the code of an AppError anywhere in the chain, or "UNKNOWN".
func GetCode(err error) string {
	for err != nil {
		if appErr, ok := err.(*AppError); ok {
			return appErr.Code
		}
		u, ok := err.(interface{ Unwrap() error })
		if !ok {
			break
		}
		err = u.Unwrap()
	}
	return "UNKNOWN"
}

// IsAppError reports whether err is directly an AppError.
func IsAppError(err error) bool {
	_, ok := err.(*AppError)
	return ok
}
