package builder

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/EthanBar/dolphin/internal/config"
	"github.com/EthanBar/dolphin/internal/logger"
	"github.com/EthanBar/dolphin/internal/toolchain"
)

// workDirPermissions is used when creating per-architecture work directories.
const workDirPermissions os.FileMode = 0o755

// Builder drives one native build per architecture: project generation via
// cmake (once) and target compilation via xcodebuild (every run).
type Builder struct {
	// cfg is the immutable build configuration for this run.
	cfg *config.Config
	// runner executes the external build tools.
	runner toolchain.Runner
	// workRoot is the directory holding the per-architecture work
	// directories; empty means the current directory.
	workRoot string
}

// New creates a Builder rooted at workRoot.
func New(cfg *config.Config, runner toolchain.Runner, workRoot string) *Builder {
	return &Builder{
		cfg:      cfg,
		runner:   runner,
		workRoot: workRoot,
	}
}

// Build produces one architecture's output tree. It creates the work
// directory if needed, generates project files unless they already exist,
// and always runs the build step. A non-zero exit from either tool is
// fatal; there is no per-architecture retry.
func (b *Builder) Build(ctx context.Context, arch string) error {
	workDir := b.workDir(arch)
	if err := os.MkdirAll(workDir, workDirPermissions); err != nil {
		return fmt.Errorf("create work directory %s: %w", workDir, err)
	}

	// Scoped overlay for both tool invocations; the ambient environment
	// is never mutated.
	env := map[string]string{
		"PKG_CONFIG_PATH":         b.cfg.PkgConfigPath[arch],
		"Qt5_DIR":                 b.cfg.Qt5Path[arch],
		"CMAKE_OSX_ARCHITECTURES": arch,
	}

	projectPath := filepath.Join(workDir, b.cfg.ProjectFilename)

	_, err := os.Stat(projectPath)
	switch {
	case errors.Is(err, os.ErrNotExist):
		logger.InfoKV(ctx, "Generating project files", "architecture", arch)

		err = b.runner.Run(ctx, workDir, env,
			"arch", "-"+arch,
			"cmake", "../../",
			"-G", "Xcode",
			"-DCMAKE_OSX_DEPLOYMENT_TARGET="+b.cfg.DeploymentTarget[arch])
		if err != nil {
			return fmt.Errorf("generate %s project: %w", arch, err)
		}
	case err != nil:
		return fmt.Errorf("stat %s: %w", projectPath, err)
	default:
		logger.InfoKV(ctx, "Project files already exist, skipping generation", "architecture", arch)
	}

	logger.InfoKV(ctx, "Building target", "architecture", arch, "target", b.cfg.Target)

	err = b.runner.Run(ctx, workDir, env,
		"xcodebuild",
		"-project", b.cfg.ProjectFilename,
		"-target", b.cfg.Target,
		"-configuration", "Release")
	if err != nil {
		return fmt.Errorf("build %s target %s: %w", arch, b.cfg.Target, err)
	}

	return nil
}

// ReleaseDir returns the release-output subtree produced by Build for arch.
func (b *Builder) ReleaseDir(arch string) string {
	return filepath.Join(b.workDir(arch), "Binaries", "release")
}

func (b *Builder) workDir(arch string) string {
	return filepath.Join(b.workRoot, arch)
}
