// Package mergetree merges two architecture-specific build trees into one
// universal tree.
//
// Shared resources are copied byte-for-byte, differing binaries are fused
// into universal artifacts via the combiner, and symlink topology is
// preserved with relative targets so the merged tree can be relocated.
// Combination fallbacks are collected on the Merger for callers to inspect.
package mergetree
