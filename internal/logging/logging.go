// File: internal/logging/logging.go
// Package logging wires op/go-logging backends for hioload-wth binaries.
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
//
// Library packages take a module logger from Logger and never configure
// backends themselves; only binaries and tests call Setup.

package logging

import (
	"io"
	"os"
	"strings"
	"sync/atomic"

	"github.com/op/go-logging"
)

// LevelEnv overrides the configured level when set.
const LevelEnv = "WTH_LOG_LEVEL"

var stderrFormat = logging.MustStringFormatter(
	`%{time:15:04:05.000} %{level:.4s} %{module} ▶ %{message}`,
)

// LibraryLevel caps module loggers obtained through Logger until a binary
// calls Setup, so an embedding program is not flooded with debug output
// on go-logging's default backend.
const LibraryLevel = logging.WARNING

var configured atomic.Bool

// Logger returns the module logger for name.
func Logger(name string) *logging.Logger {
	if !configured.Load() {
		logging.SetLevel(LibraryLevel, name)
	}
	return logging.MustGetLogger(name)
}

// ParseLevel maps a level name to a logging.Level, falling back to def.
func ParseLevel(name string, def logging.Level) logging.Level {
	switch strings.ToUpper(strings.TrimSpace(name)) {
	case "CRITICAL":
		return logging.CRITICAL
	case "ERROR":
		return logging.ERROR
	case "WARNING", "WARN":
		return logging.WARNING
	case "NOTICE":
		return logging.NOTICE
	case "INFO":
		return logging.INFO
	case "DEBUG":
		return logging.DEBUG
	default:
		return def
	}
}

// Setup installs a leveled stderr backend for every module and returns the
// logger for prefix. WTH_LOG_LEVEL wins over defaultLevel.
func Setup(prefix string, defaultLevel logging.Level) *logging.Logger {
	return SetupWriter(os.Stderr, prefix, defaultLevel)
}

// SetupWriter is Setup with an explicit destination.
func SetupWriter(w io.Writer, prefix string, defaultLevel logging.Level) *logging.Logger {
	backend := logging.NewLogBackend(w, "", 0)
	formatted := logging.NewBackendFormatter(backend, stderrFormat)
	leveled := logging.AddModuleLevel(formatted)
	leveled.SetLevel(ParseLevel(os.Getenv(LevelEnv), defaultLevel), "")
	logging.SetBackend(leveled)
	configured.Store(true)
	return logging.MustGetLogger(prefix)
}
