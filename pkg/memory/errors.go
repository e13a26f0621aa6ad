package memory

import "errors"

// ErrNotFound reports a read, update, or delete on an unknown memory id.
// Callers distinguish it from real faults with errors.Is.
var ErrNotFound = errors.New("memory: record not found")
