package mergetree

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/EthanBar/dolphin/internal/lipo"
)

// compareChunkSize is the buffer size used for byte-level file comparison.
const compareChunkSize = 64 * 1024

// errEntryKindConflict is returned when the same relative path is a
// directory on one side and a non-directory on the other.
var errEntryKindConflict = errors.New("directory collides with non-directory")

// Fallback records one entry where differing files could not be combined
// into a universal artifact and one side's bytes were kept instead.
type Fallback struct {
	// LeftPath is the first source tree's file.
	LeftPath string
	// RightPath is the second source tree's file.
	RightPath string
	// KeptPath is the source whose bytes ended up in the merged tree.
	KeptPath string
}

// Merger combines two architecture-specific build trees into a single
// universal tree. The rules for merging are:
//  1. Entries that exist in either source tree appear in the destination.
//  2. Files that exist in both trees and are byte-identical are copied
//     over unmodified.
//  3. Files that exist in both trees and differ are handed to the Combiner.
//  4. Symlinks are recreated in the destination with targets rewritten
//     relative to their own source tree, keeping the result relocatable.
type Merger struct {
	combiner  lipo.Combiner
	fallbacks []Fallback
}

// NewMerger returns a Merger that fuses differing files with the provided combiner.
func NewMerger(combiner lipo.Combiner) *Merger {
	return &Merger{combiner: combiner}
}

// Fallbacks returns the combination fallbacks recorded so far, in the
// deterministic traversal order of the merge.
func (m *Merger) Fallbacks() []Fallback {
	return m.fallbacks
}

// Merge merges the direct children of srcLeft and srcRight into dst,
// recursing into matching subdirectories. dst must be an existing, empty
// directory. Source trees are never mutated; any filesystem error aborts
// the merge.
//
// Entries are processed in four passes: left entries, right-only entries,
// left symlink fixup, right symlink fixup. Symlink handling always takes
// precedence over the file and directory rules. A missing source directory
// is treated as empty so one-sided subtrees can reuse the same recursion.
func (m *Merger) Merge(ctx context.Context, srcLeft, srcRight, dst string) error {
	leftNames, err := readDirNames(srcLeft)
	if err != nil {
		return err
	}

	rightNames, err := readDirNames(srcRight)
	if err != nil {
		return err
	}

	leftSet := make(map[string]struct{}, len(leftNames))
	for _, name := range leftNames {
		leftSet[name] = struct{}{}
	}

	// Pass 1: left entries; symlinks wait for the fixup passes.
	for _, name := range leftNames {
		if err = m.mergeLeftEntry(ctx, srcLeft, srcRight, dst, name); err != nil {
			return err
		}
	}

	// Pass 2: right entries with no counterpart on the left, each copied
	// under its own filename.
	for _, name := range rightNames {
		if _, shadowed := leftSet[name]; shadowed {
			continue
		}

		if err = m.copyRightEntry(ctx, srcLeft, srcRight, dst, name); err != nil {
			return err
		}
	}

	// Pass 3: recreate left-side symlinks.
	if err = relinkSymlinks(leftNames, srcLeft, dst, nil); err != nil {
		return err
	}

	// Pass 4: recreate right-side symlinks not shadowed by a left entry.
	return relinkSymlinks(rightNames, srcRight, dst, leftSet)
}

// mergeLeftEntry handles one left-side child: recurse into directory pairs,
// copy identical or one-sided files, combine differing files.
func (m *Merger) mergeLeftEntry(ctx context.Context, srcLeft, srcRight, dst, name string) error {
	leftPath := filepath.Join(srcLeft, name)
	rightPath := filepath.Join(srcRight, name)
	dstPath := filepath.Join(dst, name)

	leftInfo, err := os.Lstat(leftPath)
	if err != nil {
		return fmt.Errorf("lstat %s: %w", leftPath, err)
	}

	if leftInfo.Mode()&os.ModeSymlink != 0 {
		return nil
	}

	// Stat follows symlinks: a right-side link to a regular file or
	// directory participates as whatever it points at, matching how the
	// left entry shadows it.
	rightInfo, err := os.Stat(rightPath)
	if err != nil {
		if !errors.Is(err, os.ErrNotExist) {
			return fmt.Errorf("stat %s: %w", rightPath, err)
		}

		rightInfo = nil
	}

	if leftInfo.IsDir() {
		if rightInfo != nil && !rightInfo.IsDir() {
			return fmt.Errorf("%w: %s is a directory, %s is not", errEntryKindConflict, leftPath, rightPath)
		}

		if err = os.Mkdir(dstPath, leftInfo.Mode().Perm()); err != nil {
			return fmt.Errorf("create %s: %w", dstPath, err)
		}

		return m.Merge(ctx, leftPath, rightPath, dstPath)
	}

	if rightInfo == nil {
		return copyFile(leftPath, dstPath)
	}

	if rightInfo.IsDir() {
		return fmt.Errorf("%w: %s is a directory, %s is not", errEntryKindConflict, rightPath, leftPath)
	}

	equal, err := filesEqual(leftPath, rightPath)
	if err != nil {
		return err
	}

	if equal {
		return copyFile(leftPath, dstPath)
	}

	result, err := m.combiner.Combine(ctx, leftPath, rightPath, dstPath)
	if err != nil {
		return err
	}

	if result.Outcome == lipo.OutcomeFallbackKept {
		m.fallbacks = append(m.fallbacks, Fallback{
			LeftPath:  leftPath,
			RightPath: rightPath,
			KeptPath:  result.Kept,
		})
	}

	return nil
}

// copyRightEntry copies a right-only, non-symlink child into the destination.
func (m *Merger) copyRightEntry(ctx context.Context, srcLeft, srcRight, dst, name string) error {
	rightPath := filepath.Join(srcRight, name)
	dstPath := filepath.Join(dst, name)

	info, err := os.Lstat(rightPath)
	if err != nil {
		return fmt.Errorf("lstat %s: %w", rightPath, err)
	}

	if info.Mode()&os.ModeSymlink != 0 {
		return nil
	}

	if info.IsDir() {
		if err = os.Mkdir(dstPath, info.Mode().Perm()); err != nil {
			return fmt.Errorf("create %s: %w", dstPath, err)
		}

		// The left tree has no such subtree; recursion sees it as empty,
		// which keeps symlink fixup working inside right-only directories.
		return m.Merge(ctx, filepath.Join(srcLeft, name), rightPath, dstPath)
	}

	return copyFile(rightPath, dstPath)
}

// relinkSymlinks recreates the symlinks among names as relative links in
// dst, skipping names present in the skip set.
func relinkSymlinks(names []string, src, dst string, skip map[string]struct{}) error {
	for _, name := range names {
		if _, shadowed := skip[name]; shadowed {
			continue
		}

		linkPath := filepath.Join(src, name)

		info, err := os.Lstat(linkPath)
		if err != nil {
			return fmt.Errorf("lstat %s: %w", linkPath, err)
		}

		if info.Mode()&os.ModeSymlink == 0 {
			continue
		}

		target, err := relativeTarget(linkPath, src)
		if err != nil {
			return err
		}

		dstPath := filepath.Join(dst, name)
		if err = os.Symlink(target, dstPath); err != nil {
			return fmt.Errorf("symlink %s: %w", dstPath, err)
		}
	}

	return nil
}

// relativeTarget resolves a symlink and rewrites its target relative to the
// link's own source tree, so no absolute build-machine path leaks into the
// merged tree.
func relativeTarget(linkPath, srcRoot string) (string, error) {
	resolved, err := filepath.EvalSymlinks(linkPath)
	if err != nil {
		// Dangling link: resolve the raw target against the link's directory.
		raw, readErr := os.Readlink(linkPath)
		if readErr != nil {
			return "", fmt.Errorf("readlink %s: %w", linkPath, readErr)
		}

		if filepath.IsAbs(raw) {
			resolved = raw
		} else {
			dir, dirErr := filepath.EvalSymlinks(filepath.Dir(linkPath))
			if dirErr != nil {
				return "", fmt.Errorf("resolve %s: %w", filepath.Dir(linkPath), dirErr)
			}

			resolved = filepath.Join(dir, raw)
		}
	}

	root, err := filepath.EvalSymlinks(srcRoot)
	if err != nil {
		return "", fmt.Errorf("resolve %s: %w", srcRoot, err)
	}

	absRoot, err := filepath.Abs(root)
	if err != nil {
		return "", fmt.Errorf("absolutize %s: %w", root, err)
	}

	absResolved, err := filepath.Abs(resolved)
	if err != nil {
		return "", fmt.Errorf("absolutize %s: %w", resolved, err)
	}

	rel, err := filepath.Rel(absRoot, absResolved)
	if err != nil {
		return "", fmt.Errorf("relativize %s: %w", linkPath, err)
	}

	return rel, nil
}

// readDirNames returns the sorted child names of dir. A missing directory
// is treated as empty so the recursion can descend one-sided subtrees; the
// sorted order makes traversal and warning order deterministic.
func readDirNames(dir string) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, nil
		}

		return nil, fmt.Errorf("read directory %s: %w", dir, err)
	}

	names := make([]string, 0, len(entries))
	for _, entry := range entries {
		names = append(names, entry.Name())
	}

	return names, nil
}

// filesEqual reports whether two regular files have identical bytes.
func filesEqual(a, b string) (bool, error) {
	infoA, err := os.Stat(a)
	if err != nil {
		return false, fmt.Errorf("stat %s: %w", a, err)
	}

	infoB, err := os.Stat(b)
	if err != nil {
		return false, fmt.Errorf("stat %s: %w", b, err)
	}

	if infoA.Size() != infoB.Size() {
		return false, nil
	}

	fileA, err := os.Open(a)
	if err != nil {
		return false, fmt.Errorf("open %s: %w", a, err)
	}

	// Best-effort cleanup.
	defer func() {
		_ = fileA.Close()
	}()

	fileB, err := os.Open(b)
	if err != nil {
		return false, fmt.Errorf("open %s: %w", b, err)
	}

	defer func() {
		_ = fileB.Close()
	}()

	bufA := make([]byte, compareChunkSize)
	bufB := make([]byte, compareChunkSize)

	for {
		nA, errA := io.ReadFull(fileA, bufA)
		nB, errB := io.ReadFull(fileB, bufB)

		if nA != nB || !bytes.Equal(bufA[:nA], bufB[:nB]) {
			return false, nil
		}

		if errA == nil && errB == nil {
			continue
		}

		if isEOF(errA) && isEOF(errB) {
			return true, nil
		}

		if errA != nil && !isEOF(errA) {
			return false, fmt.Errorf("read %s: %w", a, errA)
		}

		return false, fmt.Errorf("read %s: %w", b, errB)
	}
}

func isEOF(err error) bool {
	return errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF)
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
