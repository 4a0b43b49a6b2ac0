package assembler

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/EthanBar/dolphin/internal/config"
	"github.com/EthanBar/dolphin/internal/lipo"
	"github.com/EthanBar/dolphin/internal/lock"
	"github.com/EthanBar/dolphin/internal/logger"
	"github.com/EthanBar/dolphin/internal/repository/report"
	"github.com/EthanBar/dolphin/internal/service/builder"
	"github.com/EthanBar/dolphin/internal/service/mergetree"
	"github.com/EthanBar/dolphin/internal/toolchain"
	"github.com/EthanBar/dolphin/internal/version"
)

// destinationPermissions is used when creating the fresh destination tree.
const destinationPermissions os.FileMode = 0o755

// Options contains inputs for the assembler entry point. Empty fields fall
// back to the settings file and the built-in defaults.
type Options struct {
	// ConfigPath is an optional path to the settings YAML file.
	ConfigPath string
	// Target is the build-system target to build.
	Target string
	// DstApp is the output directory for the merged universal tree.
	DstApp string
	// CodesignIdentity is the identity passed to codesign; config.AdHocIdentity
	// requests an integrity-only seal.
	CodesignIdentity string
	// PkgConfigPath overrides the per-architecture pkg-config search paths.
	PkgConfigPath map[string]string
	// Qt5Path overrides the per-architecture Qt5 install prefixes.
	Qt5Path map[string]string
}

// assembler orchestrates the per-architecture builds, the tree merge and
// the sealing pass. It is unexported—callers should use Run, which
// encapsulates configuration resolution and locking.
type assembler struct {
	// cfg is the immutable configuration for this run.
	cfg *config.Config
	// runner executes external tools (codesign here; the builder and
	// combiner hold their own reference).
	runner toolchain.Runner
	// builder drives the native build per architecture.
	builder *builder.Builder
	// merger combines the two release trees.
	merger *mergetree.Merger
	// reports persists the build report.
	reports report.Repository
}

// Run executes the full universal assembly workflow.
func Run(ctx context.Context, opts *Options) error {
	// Set context with logger name for tracking.
	ctx = logger.WithName(ctx, "universal-builder")

	cfg, err := resolveConfig(opts)
	if err != nil {
		return err
	}

	if err = config.Save(opts.ConfigPath, cfg); err != nil {
		return fmt.Errorf("save settings: %w", err)
	}

	release, err := lock.Acquire(ctx)
	if err != nil {
		return err
	}

	defer release()

	a := newAssembler(cfg, toolchain.NewExecRunner(), "")

	if err = a.run(ctx); err != nil {
		if status := toolchain.ExitStatus(err); status >= 0 {
			logger.ErrorKV(ctx, "External tool failed", "exit_status", status)
		}

		return err
	}

	logger.Info(ctx, "Built universal binary successfully")

	return nil
}

// newAssembler wires the component graph for one run. workRoot holds the
// per-architecture work directories; empty means the current directory.
func newAssembler(cfg *config.Config, runner toolchain.Runner, workRoot string) *assembler {
	reportPath := filepath.Join(filepath.Dir(filepath.Clean(cfg.DstApp)), report.DefaultFilename)

	return &assembler{
		cfg:     cfg,
		runner:  runner,
		builder: builder.New(cfg, runner, workRoot),
		merger:  mergetree.NewMerger(lipo.NewTool(runner)),
		reports: report.NewFileRepository(reportPath),
	}
}

// resolveConfig layers command-line overrides over the settings file (when
// present) and the built-in defaults, then validates the result. The
// returned record is never mutated afterwards.
func resolveConfig(opts *Options) (*config.Config, error) {
	cfg := config.Default()

	path := opts.ConfigPath
	if path == "" {
		path = config.DefaultConfigFilename
	}

	_, err := os.Stat(path)
	switch {
	case err == nil:
		if cfg, err = config.Load(path); err != nil {
			return nil, err
		}
	case !errors.Is(err, os.ErrNotExist):
		return nil, fmt.Errorf("stat settings: %w", err)
	}

	if opts.Target != "" {
		cfg.Target = opts.Target
	}

	if opts.DstApp != "" {
		cfg.DstApp = opts.DstApp
	}

	if opts.CodesignIdentity != "" {
		cfg.CodesignIdentity = opts.CodesignIdentity
	}

	for arch, p := range opts.PkgConfigPath {
		if p != "" {
			cfg.PkgConfigPath[arch] = p
		}
	}

	for arch, p := range opts.Qt5Path {
		if p != "" {
			cfg.Qt5Path[arch] = p
		}
	}

	if err = config.Validate(cfg); err != nil {
		return nil, err
	}

	return cfg, nil
}

// run builds both architectures in order, recreates the destination tree,
// merges the release trees, seals every top-level artifact and writes the
// build report. Any failure aborts the run; partially built trees are left
// on disk for inspection.
func (a *assembler) run(ctx context.Context) error {
	architectures := config.Architectures()

	for _, arch := range architectures {
		if err := a.builder.Build(ctx, arch); err != nil {
			return err
		}
	}

	dst := a.cfg.DstApp

	if err := os.RemoveAll(dst); err != nil {
		return fmt.Errorf("remove previous destination %s: %w", dst, err)
	}

	if err := os.MkdirAll(dst, destinationPermissions); err != nil {
		return fmt.Errorf("create destination %s: %w", dst, err)
	}

	logger.InfoKV(ctx, "Merging build trees", "destination", dst)

	srcLeft := a.builder.ReleaseDir(architectures[0])
	srcRight := a.builder.ReleaseDir(architectures[1])

	if err := a.merger.Merge(ctx, srcLeft, srcRight, dst); err != nil {
		return fmt.Errorf("merge build trees: %w", err)
	}

	artifacts, err := a.sealArtifacts(ctx, dst)
	if err != nil {
		return err
	}

	return a.saveReport(ctx, artifacts)
}

// sealArtifacts codesigns every immediate child of the merged tree. The
// first failing artifact aborts the run; no partial-seal state is accepted.
func (a *assembler) sealArtifacts(ctx context.Context, dst string) ([]string, error) {
	entries, err := os.ReadDir(dst)
	if err != nil {
		return nil, fmt.Errorf("read destination %s: %w", dst, err)
	}

	artifacts := make([]string, 0, len(entries))

	for _, entry := range entries {
		path := filepath.Join(dst, entry.Name())

		logger.InfoKV(ctx, "Sealing artifact", "path", path, "identity", a.cfg.CodesignIdentity)

		err = a.runner.Run(ctx, "", nil,
			"codesign", "--deep", "--force", "-s", a.cfg.CodesignIdentity, path)
		if err != nil {
			return nil, fmt.Errorf("seal %s: %w", path, err)
		}

		artifacts = append(artifacts, path)
	}

	return artifacts, nil
}

// saveReport persists the run summary, including any merge fallbacks.
func (a *assembler) saveReport(ctx context.Context, artifacts []string) error {
	fallbacks := a.merger.Fallbacks()

	reported := make([]report.Fallback, 0, len(fallbacks))
	for _, fb := range fallbacks {
		reported = append(reported, report.Fallback{
			Left:  fb.LeftPath,
			Right: fb.RightPath,
			Kept:  fb.KeptPath,
		})
	}

	rep := &report.Report{
		Version:       version.Short(),
		Target:        a.cfg.Target,
		Architectures: config.Architectures(),
		Artifacts:     artifacts,
		Fallbacks:     reported,
		FinishedAt:    time.Now().UTC(),
	}

	if err := a.reports.Save(ctx, rep); err != nil {
		return fmt.Errorf("save build report: %w", err)
	}

	return nil
}
