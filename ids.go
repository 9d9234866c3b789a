package goslabs

import (
	"strings"

	"github.com/google/uuid"
)

// newProcessID returns a 32-char lowercase-hex process id (spec.md
// §4.D "Process IDs are 32-char lowercase-hex strings (UUIDs)").
func newProcessID() string {
	return strings.ReplaceAll(uuid.NewString(), "-", "")
}

// isProcessID reports whether name has the shape of a process id: 32
// lowercase hex characters.
func isProcessID(name string) bool {
	if len(name) != 32 {
		return false
	}
	for _, c := range name {
		if !(c >= '0' && c <= '9') && !(c >= 'a' && c <= 'f') {
			return false
		}
	}
	return true
}
