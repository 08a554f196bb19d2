package gateway

import "log"

// Logger is the leveled log sink consumed across the module. Debug output is
// gated so production runs only see info and error lines.
type Logger interface {
	Debugf(format string, args ...any)
	Infof(format string, args ...any)
	Errorf(format string, args ...any)
}

type stdLogger struct {
	debug bool
}

func NewLogger(debug bool) Logger {
	return &stdLogger{debug: debug}
}

func (l *stdLogger) Debugf(format string, args ...any) {
	if l.debug {
		log.Printf("[debug] "+format, args...)
	}
}

func (l *stdLogger) Infof(format string, args ...any) {
	log.Printf("[info] "+format, args...)
}

func (l *stdLogger) Errorf(format string, args ...any) {
	log.Printf("[error] "+format, args...)
}

// NopLogger discards everything. Handy default so callers never nil-check.
type NopLogger struct{}

func (NopLogger) Debugf(string, ...any) {}
func (NopLogger) Infof(string, ...any)  {}
func (NopLogger) Errorf(string, ...any) {}
