package utils

import (
	"bytes"
	"fmt"
)

// FormatValidator checks the leading bytes of a stored file against the
// magic numbers of its format.
type FormatValidator func(header []byte) error

// DefaultValidators covers the formats with well-known signatures. Formats
// without an entry (mobi, audio) pass the integrity stage unchecked; new
// formats register a validator instead of touching the pipeline.
func DefaultValidators() map[string]FormatValidator {
	return map[string]FormatValidator{
		// EPUB is a ZIP container: local file header starts with PK.
		"epub": func(header []byte) error {
			if len(header) < 2 || header[0] != 0x50 || header[1] != 0x4B {
				return fmt.Errorf("missing ZIP signature")
			}
			return nil
		},
		// PDF starts with the literal %PDF.
		"pdf": func(header []byte) error {
			if len(header) < 4 || !bytes.HasPrefix(header, []byte("%PDF")) {
				return fmt.Errorf("missing %%PDF signature")
			}
			return nil
		},
	}
}
