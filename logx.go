// logx.go - ambient diagnostic logging
//
// The teacher never has a logging abstraction: cpu_x86.go's Step()
// prints undefined-opcode diagnostics directly via fmt.Printf to
// stdout ("X86: Undefined opcode 0x%02X at EIP=0x%08X, halting"). No
// example repo in the retrieval pack imports a structured-logging
// library, so per SPEC_FULL.md §9.1 this stays a thin wrapper over
// fmt/os rather than reaching outside the pack for one, with the
// teacher's "SUBSYSTEM: message" prefix convention generalized into a
// tag field.

package main

import (
	"fmt"
	"io"
	"os"
)

// LogLevel orders diagnostic verbosity, quietest first.
type LogLevel int

const (
	LogSilent LogLevel = iota
	LogError
	LogInfo
	LogDebug
)

// Logger is a minimal tagged writer, modeled on the teacher's ad hoc
// "X86: ..." printf prefix but made reusable across subsystems (CPU,
// BIOS, decoder).
type Logger struct {
	out   io.Writer
	level LogLevel
}

// NewLogger returns a Logger writing to stderr at LogInfo, the
// teacher's effective default (it always prints, never silences
// itself).
func NewLogger() *Logger {
	return &Logger{out: os.Stderr, level: LogInfo}
}

func (l *Logger) SetLevel(level LogLevel) { l.level = level }

func (l *Logger) log(level LogLevel, tag, format string, args ...interface{}) {
	if l == nil || level > l.level {
		return
	}
	fmt.Fprintf(l.out, "%s: %s\n", tag, fmt.Sprintf(format, args...))
}

func (l *Logger) Errorf(tag, format string, args ...interface{}) {
	l.log(LogError, tag, format, args...)
}

func (l *Logger) Infof(tag, format string, args ...interface{}) {
	l.log(LogInfo, tag, format, args...)
}

func (l *Logger) Debugf(tag, format string, args ...interface{}) {
	l.log(LogDebug, tag, format, args...)
}
