// Package builder runs the per-architecture native builds.
//
// Each architecture gets its own work directory with generated Xcode
// project files. Generation is idempotent; compilation always runs. Build
// parameters reach the tools through a per-invocation environment overlay.
package builder
