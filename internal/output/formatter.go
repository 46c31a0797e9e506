// Package output provides plain-text rendering helpers; the CLI shell uses
// its Table and Truncate for terminal output.
package output

import "io"

// Formatter writes plain text to an underlying writer (normally stdout).
// No command in this repository uses it: the CLI's tables go through Table,
// and JSON replies marshal model/apierr values directly.
type Formatter struct {
	writer io.Writer
}

// New creates a Formatter writing to w.
func New(w io.Writer) *Formatter {
	return &Formatter{writer: w}
}
