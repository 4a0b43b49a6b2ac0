// Package config defines the build configuration consumed by the universal
// builder and provides helpers to load, validate and save it in YAML format.
//
// The Config type holds the build target, destination path, signing identity
// and per-architecture search paths. Defaults follow Homebrew's conventional
// install locations for each architecture.
package config
