package schema

import (
	"errors"
	"fmt"
	"strings"
)

// Issue codes.
const (
	CodeRequired        = "required"
	CodeInvalidType     = "invalid_type"
	CodeInvalidEnum     = "invalid_enum"
	CodeUnexpectedField = "unexpected_field"
	CodeInvalidValue    = "invalid_value"
	CodeDuplicate       = "duplicate"
	CodeSeriesLength    = "series_length"
)

// Issue is one validation violation. Path is a JSON pointer such as
// /slides/0/blocks/2/kind; the root document is "".
type Issue struct {
	Path    string `json:"path"`
	Code    string `json:"code"`
	Message string `json:"message"`
}

func (i Issue) String() string {
	p := i.Path
	if p == "" {
		p = "(root)"
	}
	return p + ": " + i.Message
}

// Issues keeps validation order, which is deterministic for a given input.
type Issues []Issue

// Error summarizes the first few issues.
func (iss Issues) Error() string {
	if len(iss) == 0 {
		return ""
	}
	const maxShown = 3
	b := &strings.Builder{}
	lim := len(iss)
	if lim > maxShown {
		lim = maxShown
	}
	for i := 0; i < lim; i++ {
		if i > 0 {
			b.WriteString("; ")
		}
		b.WriteString(iss[i].String())
	}
	if len(iss) > maxShown {
		fmt.Fprintf(b, " (and %d more)", len(iss)-maxShown)
	}
	return b.String()
}

// Format renders every issue on its own line.
func (iss Issues) Format() string {
	lines := make([]string, len(iss))
	for i, is := range iss {
		lines[i] = is.String()
	}
	return strings.Join(lines, "\n")
}

// HasPath reports whether any issue is located at path.
func (iss Issues) HasPath(path string) bool {
	for _, is := range iss {
		if is.Path == path {
			return true
		}
	}
	return false
}

// RepairError is returned when neither validation nor repair produced a deck.
// It always carries the issues of the original input.
type RepairError struct {
	Issues Issues
}

func (e *RepairError) Error() string {
	return "invalid deck:\n" + e.Issues.Format()
}

func (e *RepairError) Unwrap() error { return e.Issues }

// AsIssues extracts validation issues from err, if any.
func AsIssues(err error) (Issues, bool) {
	var iss Issues
	if errors.As(err, &iss) {
		return iss, true
	}
	return nil, false
}
