package media

import (
	"fmt"
	"path/filepath"
	"slices"
	"strings"
)

// Validation error codes, reported to callers next to the human readable reason.
const (
	CodeUnsupportedFormat = "unsupported_format"
	CodeFileTooLarge      = "file_too_large"
	CodeMissingFile       = "missing_file"
	CodeInvalidPhone      = "invalid_phone"
	CodeMissingField      = "missing_field"
	CodeCaptionNotAllowed = "caption_not_allowed"
	CodeInvalidRequest    = "invalid_request"
)

// ValidationError is a caller mistake. It always maps to a 400 response.
type ValidationError struct {
	Code   string
	Reason string
}

func (e *ValidationError) Error() string {
	return e.Reason
}

// Is matches on Code so callers can use the sentinels below with errors.Is.
func (e *ValidationError) Is(target error) bool {
	t, ok := target.(*ValidationError)
	return ok && t.Code == e.Code
}

var (
	ErrUnsupportedFormat = &ValidationError{Code: CodeUnsupportedFormat, Reason: "unsupported format"}
	ErrFileTooLarge      = &ValidationError{Code: CodeFileTooLarge, Reason: "file too large"}
	ErrMissingFile       = &ValidationError{Code: CodeMissingFile, Reason: "No file provided"}
	ErrInvalidPhone      = &ValidationError{Code: CodeInvalidPhone, Reason: "Invalid phone number format"}
)

// Invalid builds a ValidationError.
func Invalid(code, format string, args ...any) *ValidationError {
	return &ValidationError{Code: code, Reason: fmt.Sprintf(format, args...)}
}

// Extension returns the lower-cased extension of name without the dot.
func Extension(name string) string {
	return strings.ToLower(strings.TrimPrefix(filepath.Ext(name), "."))
}

// CheckExtension rejects filenames whose extension is not allowed for k.
// It can run before the file body has been read.
func CheckExtension(k Kind, filename string) error {
	c, ok := constraints[k]
	if !ok {
		return Invalid(CodeUnsupportedFormat, "Messages of kind %s do not carry a file", k)
	}
	ext := Extension(filename)
	if ext == "" {
		return Invalid(CodeUnsupportedFormat, "File must have an extension")
	}
	if !slices.Contains(c.Extensions, ext) {
		return Invalid(CodeUnsupportedFormat, "Invalid file type .%s. Allowed: %s", ext, strings.Join(c.Extensions, ", "))
	}
	return nil
}

// Validate checks a file against the constraint of k. The extension is
// checked first, so an unsupported file is reported as such whatever its size.
func Validate(k Kind, filename string, size int64) error {
	if err := CheckExtension(k, filename); err != nil {
		return err
	}
	c := constraints[k]
	if size > c.MaxSize {
		return Invalid(CodeFileTooLarge, "File too large. Max size for %s: %s", c.Category, HumanSize(c.MaxSize))
	}
	return nil
}
