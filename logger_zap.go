package gort

import "go.uber.org/zap"

// NewZapLogger adapts a zap logger to the Logger interface
// used by throttlers and clients.
//
// Messages are forwarded through the Sugar API at the matching levels,
// with Warning mapped to zap's Warn.
func NewZapLogger(logger *zap.Logger) Logger {
	return &zapLogger{
		delegate: logger.Sugar(),
	}
}

type zapLogger struct {
	delegate *zap.SugaredLogger
}

func (l *zapLogger) Debug(text string) {
	l.delegate.Debug(text)
}
func (l *zapLogger) Info(text string) {
	l.delegate.Info(text)
}
func (l *zapLogger) Warning(text string) {
	l.delegate.Warn(text)
}
func (l *zapLogger) Error(text string) {
	l.delegate.Error(text)
}
