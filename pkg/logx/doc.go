// Package logx is a thin zerolog wrapper shared by all services.
//
// It keeps call sites terse (logx.String/Int/Err field helpers) and lets the
// app swap sinks (console, file) and levels from config without touching
// callers. The zero Logger is a safe no-op, so services can be constructed
// in tests without any logging setup.
package logx
