// Package pkg provides shared utilities for the softsdio host stack.
//
// This package contains common functionality used across the HAL, PHY and
// host packages, including:
//
//   - Structured logging via Go's standard [log/slog] package
//   - The 8-bit [Status] code space used as the sole error channel
//   - Component identifiers for log filtering
//
// # Logging
//
// The logging subsystem wraps [log/slog] with component context:
//
//	pkg.SetLogLevel(slog.LevelDebug)
//	pkg.SetLogOutput(logFile)
//	pkg.LogInfo(pkg.ComponentHost, "card attached", "slot", 0)
//
// Failed commands are logged with [CommandAttr], which renders the index
// and a hex argument under a "cmd" group.
//
// # Status codes
//
// Every operation returns an error whose value is a [Status]. Non-zero
// codes are typed constants, so they compare directly:
//
//	if errors.Is(err, pkg.ErrSwitchError) {
//	    // card refused the requested function
//	}
//
// Status texts are compiled in by default. Building with the sdio_notext
// tag drops the table; Status.String then returns "".
package pkg
