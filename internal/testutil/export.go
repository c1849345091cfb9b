package testutil

import (
	"drive-go/internal/export"
)

// NewTestSink creates a new in-memory export sink for testing.
func NewTestSink() *export.MemorySink {
	return export.NewMemorySink("test-sink")
}
