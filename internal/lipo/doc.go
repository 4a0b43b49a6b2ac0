// Package lipo wraps the lipo command-line tool, which fuses two
// single-architecture object files into one universal object file.
//
// When lipo cannot combine a pair of differing files the package applies
// the documented best-effort fallback: the first input is kept verbatim and
// the Result makes the fallback observable to callers.
package lipo
