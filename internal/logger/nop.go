package logger

import "context"

type nopLogger struct{}

// Nop returns a Logger that discards everything. Intended for tests.
func Nop() Logger { return nopLogger{} }

func (nopLogger) Debug(context.Context, string, ...interface{}) {}
func (nopLogger) Info(context.Context, string, ...interface{})  {}
func (nopLogger) Warn(context.Context, string, ...interface{})  {}
func (nopLogger) Error(context.Context, string, ...interface{}) {}
