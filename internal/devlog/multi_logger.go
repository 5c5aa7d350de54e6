package devlog

// MultiLogger fans an event out to multiple loggers, typically a console
// SlogAdapter and a durable FileLogger running together.
type MultiLogger struct {
	loggers []Logger
}

// NewMultiLogger creates a MultiLogger sending to all provided loggers.
func NewMultiLogger(loggers ...Logger) *MultiLogger {
	return &MultiLogger{loggers: loggers}
}

func (m *MultiLogger) Log(event Event) {
	for _, l := range m.loggers {
		l.Log(event)
	}
}

var _ Logger = (*MultiLogger)(nil)
