package main

import (
	"log/slog"

	"github.com/lokutor-ai/translation-relay/pkg/relay"
)

// slogLogger adapts *slog.Logger to relay.Logger, the seam every relay and
// fabric component takes at construction instead of importing a logging
// package directly.
type slogLogger struct {
	l *slog.Logger
}

func newSlogLogger(l *slog.Logger) *slogLogger {
	return &slogLogger{l: l}
}

func (s *slogLogger) Debug(msg string, args ...interface{}) { s.l.Debug(msg, args...) }
func (s *slogLogger) Info(msg string, args ...interface{})  { s.l.Info(msg, args...) }
func (s *slogLogger) Warn(msg string, args ...interface{})  { s.l.Warn(msg, args...) }
func (s *slogLogger) Error(msg string, args ...interface{}) { s.l.Error(msg, args...) }

var _ relay.Logger = (*slogLogger)(nil)
