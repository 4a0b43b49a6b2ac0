// Package toolchain abstracts invocation of the external build tools
// (cmake, xcodebuild, lipo, codesign) behind a Runner interface.
//
// The real implementation spawns child processes with a per-invocation
// environment overlay; tests substitute a recording fake.
package toolchain
