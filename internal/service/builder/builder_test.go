package builder

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/EthanBar/dolphin/internal/config"
)

// recordedCall captures one Runner invocation.
type recordedCall struct {
	dir  string
	env  map[string]string
	name string
	args []string
}

// fakeRunner records invocations and fails tools listed in failures.
type fakeRunner struct {
	calls    []recordedCall
	failures map[string]error
}

func (f *fakeRunner) Run(_ context.Context, dir string, env map[string]string, name string, args ...string) error {
	f.calls = append(f.calls, recordedCall{dir: dir, env: env, name: name, args: args})

	if err, ok := f.failures[name]; ok {
		return err
	}

	return nil
}

func testConfig(t *testing.T) *config.Config {
	t.Helper()

	cfg := config.Default()
	cfg.Target = "dolphin-emu"
	require.NoError(t, config.Validate(cfg))

	return cfg
}

// TestBuildGeneratesThenBuilds verifies the two-step sequence, the argument
// vectors and the environment overlay.
func TestBuildGeneratesThenBuilds(t *testing.T) {
	t.Parallel()

	workRoot := t.TempDir()
	cfg := testConfig(t)
	runner := &fakeRunner{}

	b := New(cfg, runner, workRoot)
	require.NoError(t, b.Build(context.Background(), config.ArchARM64))

	require.Len(t, runner.calls, 2)

	generate := runner.calls[0]
	require.Equal(t, "arch", generate.name)
	require.Equal(t, filepath.Join(workRoot, config.ArchARM64), generate.dir)
	require.Equal(t, []string{
		"-arm64",
		"cmake", "../../",
		"-G", "Xcode",
		"-DCMAKE_OSX_DEPLOYMENT_TARGET=" + cfg.DeploymentTarget[config.ArchARM64],
	}, generate.args)
	require.Equal(t, cfg.PkgConfigPath[config.ArchARM64], generate.env["PKG_CONFIG_PATH"])
	require.Equal(t, cfg.Qt5Path[config.ArchARM64], generate.env["Qt5_DIR"])
	require.Equal(t, config.ArchARM64, generate.env["CMAKE_OSX_ARCHITECTURES"])

	build := runner.calls[1]
	require.Equal(t, "xcodebuild", build.name)
	require.Equal(t, filepath.Join(workRoot, config.ArchARM64), build.dir)
	require.Equal(t, []string{
		"-project", cfg.ProjectFilename,
		"-target", "dolphin-emu",
		"-configuration", "Release",
	}, build.args)

	// The work directory was provisioned.
	info, err := os.Stat(filepath.Join(workRoot, config.ArchARM64))
	require.NoError(t, err)
	require.True(t, info.IsDir())
}

// TestBuildSkipsGenerationWhenProjectExists verifies generation idempotency.
func TestBuildSkipsGenerationWhenProjectExists(t *testing.T) {
	t.Parallel()

	workRoot := t.TempDir()
	cfg := testConfig(t)

	projectPath := filepath.Join(workRoot, config.ArchX8664, cfg.ProjectFilename)
	require.NoError(t, os.MkdirAll(projectPath, 0o755))

	runner := &fakeRunner{}
	b := New(cfg, runner, workRoot)
	require.NoError(t, b.Build(context.Background(), config.ArchX8664))

	require.Len(t, runner.calls, 1)
	require.Equal(t, "xcodebuild", runner.calls[0].name)
}

// TestBuildGenerationFailureIsFatal verifies a failing generation step stops the build.
func TestBuildGenerationFailureIsFatal(t *testing.T) {
	t.Parallel()

	runner := &fakeRunner{failures: map[string]error{"arch": errors.New("exit status 1")}}
	b := New(testConfig(t), runner, t.TempDir())

	err := b.Build(context.Background(), config.ArchARM64)
	require.Error(t, err)
	require.Len(t, runner.calls, 1)
}

// TestBuildCompileFailureIsFatal verifies a failing xcodebuild is surfaced.
func TestBuildCompileFailureIsFatal(t *testing.T) {
	t.Parallel()

	runner := &fakeRunner{failures: map[string]error{"xcodebuild": errors.New("exit status 65")}}
	b := New(testConfig(t), runner, t.TempDir())

	err := b.Build(context.Background(), config.ArchARM64)
	require.Error(t, err)
	require.Contains(t, err.Error(), "exit status 65")
}

// TestReleaseDir verifies the release-output subtree layout.
func TestReleaseDir(t *testing.T) {
	t.Parallel()

	b := New(testConfig(t), &fakeRunner{}, "work")
	require.Equal(t, filepath.Join("work", "arm64", "Binaries", "release"), b.ReleaseDir(config.ArchARM64))
}
