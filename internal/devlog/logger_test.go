package devlog

import "testing"

func TestNoopLoggerDiscardsEvents(t *testing.T) {
	var l NoopLogger
	l.Log(sampleEvent()) // must not panic
}
