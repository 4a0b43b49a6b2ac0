package lipo

import (
	"context"
	"fmt"
	"io"
	"os"

	"github.com/EthanBar/dolphin/internal/logger"
	"github.com/EthanBar/dolphin/internal/toolchain"
)

// Outcome says how a combination request was satisfied.
type Outcome int

const (
	// OutcomeCombined means the destination holds a universal artifact
	// containing both architecture slices.
	OutcomeCombined Outcome = iota
	// OutcomeFallbackKept means the pair could not be combined and the
	// left input's bytes were copied to the destination verbatim. The
	// right architecture's variant is lost for this one entry.
	OutcomeFallbackKept
)

// Result reports the outcome of one combination attempt. Callers can assert
// on fallbacks instead of scraping log output.
type Result struct {
	// Outcome is OutcomeCombined or OutcomeFallbackKept.
	Outcome Outcome
	// Kept is the source path whose bytes ended up at the destination
	// when Outcome is OutcomeFallbackKept; empty otherwise.
	Kept string
}

// Combiner fuses two single-architecture files into one universal file at a
// destination path, or falls back to keeping one side.
type Combiner interface {
	Combine(ctx context.Context, left, right, dst string) (Result, error)
}

// Tool combines binaries by invoking the lipo command-line tool.
type Tool struct {
	runner toolchain.Runner
}

// NewTool returns a Combiner backed by lipo.
func NewTool(runner toolchain.Runner) *Tool {
	return &Tool{runner: runner}
}

// Combine runs `lipo -create` over left and right. When lipo refuses the
// pair (differing files that are not object code), the left input is copied
// to dst unchanged, a warning names both sources and the kept path, and the
// Result reports the fallback. Only a failure of the fallback copy itself
// is an error.
func (t *Tool) Combine(ctx context.Context, left, right, dst string) (Result, error) {
	err := t.runner.Run(ctx, "", nil, "lipo", "-create", "-output", dst, left, right)
	if err == nil {
		return Result{Outcome: OutcomeCombined}, nil
	}

	logger.WarnKV(ctx, "Files differ but cannot be combined, keeping the first one",
		"left", left,
		"right", right,
		"kept", left)

	if copyErr := copyFile(left, dst); copyErr != nil {
		return Result{}, fmt.Errorf("fall back to %s: %w", left, copyErr)
	}

	return Result{Outcome: OutcomeFallbackKept, Kept: left}, nil
}

// copyFile copies src to dst preserving the permission bits.
func copyFile(src, dst string) error {
	info, err := os.Stat(src)
	if err != nil {
		return fmt.Errorf("stat %s: %w", src, err)
	}

	in, err := os.Open(src)
	if err != nil {
		return fmt.Errorf("open %s: %w", src, err)
	}

	// Best-effort cleanup.
	defer func() {
		_ = in.Close()
	}()

	out, err := os.OpenFile(dst, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, info.Mode().Perm())
	if err != nil {
		return fmt.Errorf("create %s: %w", dst, err)
	}

	if _, err = io.Copy(out, in); err != nil {
		_ = out.Close()
		return fmt.Errorf("copy %s: %w", src, err)
	}

	if err = out.Close(); err != nil {
		return fmt.Errorf("close %s: %w", dst, err)
	}

	return nil
}
