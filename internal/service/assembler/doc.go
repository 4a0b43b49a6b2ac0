// Package assembler orchestrates the universal build: one native build per
// architecture, a merge of the two release trees into a fresh destination,
// a codesign pass over every top-level artifact, and a build report.
//
// Execution is strictly sequential and fail-fast; the only recovery point
// is the merge's documented copy-left fallback for uncombinable files.
package assembler
