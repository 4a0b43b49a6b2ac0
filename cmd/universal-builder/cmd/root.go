package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/EthanBar/dolphin/internal/config"
	"github.com/EthanBar/dolphin/internal/logger"
	"github.com/EthanBar/dolphin/internal/service/assembler"
	"github.com/EthanBar/dolphin/internal/version"
)

var (
	// configPath to the configuration YAML file.
	configPath string
	// target is the build-system target to build.
	target string
	// dstApp is the output directory for the merged universal tree.
	dstApp string
	// codesignIdentity is passed to codesign; "-" seals with a checksum only.
	codesignIdentity string
	// logLevel is the minimum level for log output.
	logLevel string

	// pkgConfigFlags and qt5Flags hold the per-architecture search path overrides.
	pkgConfigFlags = make(map[string]*string)
	qt5Flags       = make(map[string]*string)

	// rootCmd represents the base command for assembling a universal application.
	rootCmd = &cobra.Command{
		Use:   "universal-builder",
		Short: "Build and merge per-architecture trees into a universal application.",
		Long: `Builds the project once per architecture (x86_64 and arm64), merges the two
release trees into a single universal application tree, and code signs every
top-level artifact of the result.

Plain cmake/Xcode tooling cannot produce universal binaries for projects with
different libraries, flags and sources per architecture, so this wrapper
manages distinct builds and fuses the outputs with lipo.`,
		Args: cobra.NoArgs,
		RunE: func(_ *cobra.Command, _ []string) error {
			// Setup graceful shutdown handling.
			ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGTERM, syscall.SIGINT)
			defer stop()

			if level, ok := logger.ParseLogLevel(logLevel); ok {
				logger.SetLevel(level)
			}

			options := &assembler.Options{
				ConfigPath:       configPath,
				Target:           target,
				DstApp:           dstApp,
				CodesignIdentity: codesignIdentity,
				PkgConfigPath:    flagValues(pkgConfigFlags),
				Qt5Path:          flagValues(qt5Flags),
			}

			return assembler.Run(ctx, options)
		},
	}
)

// Execute runs the universal-builder CLI and exits with non-zero status on error.
func Execute() {
	version.AttachCobraVersionCommand(rootCmd)

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

// flagValues dereferences the per-architecture flag pointers.
func flagValues(flags map[string]*string) map[string]string {
	values := make(map[string]string, len(flags))
	for arch, value := range flags {
		values[arch] = *value
	}

	return values
}

//nolint:gochecknoinits // Required by Cobra CLI framework architecture.
func init() {
	// Setup command flags with consistent naming and descriptions.
	rootCmd.Flags().StringVarP(&configPath, "config", "c", config.DefaultConfigFilename, "path to configuration file")
	rootCmd.Flags().StringVarP(&target, "target", "t", "",
		fmt.Sprintf("build target in generated project files (default %q)", config.DefaultTarget))
	rootCmd.Flags().StringVarP(&dstApp, "dst-app", "d", "",
		fmt.Sprintf("directory where the universal binary will be stored (default %q)", config.DefaultDstApp))
	rootCmd.Flags().StringVarP(&codesignIdentity, "codesign", "s", "",
		fmt.Sprintf("code signing identity; %q seals with a checksum only (the default)", config.AdHocIdentity))
	rootCmd.Flags().StringVarP(&logLevel, "log-level", "l", "info", "minimum log level (debug, info, warn, error)")

	defaults := config.Default()
	for _, arch := range config.Architectures() {
		pkgConfigFlags[arch] = rootCmd.Flags().String(arch+"-pkg-config", "",
			fmt.Sprintf("folder containing .pc files for %s libraries (default %q)", arch, defaults.PkgConfigPath[arch]))
		qt5Flags[arch] = rootCmd.Flags().String(arch+"-qt5-path", "",
			fmt.Sprintf("install path for %s qt5 libraries (default %q)", arch, defaults.Qt5Path[arch]))
	}
}
