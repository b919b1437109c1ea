package testutil

import (
	"log"
	"os"
	"testing"
)

// TestLogger writes to stdout with the test name as prefix. Connection
// goroutines may still log after the test ends, so it does not use t.Log.
func TestLogger(t *testing.T) *log.Logger {
	logger := log.New(os.Stdout, "["+t.Name()+"] ", log.LstdFlags|log.Lmsgprefix)
	t.Cleanup(func() {
		logger.SetOutput(os.Stderr)
	})
	return logger
}

func Ptr[T any](v T) *T {
	return &v
}
