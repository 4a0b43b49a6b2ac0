package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"
)

// Architecture identifiers for the two slices of a universal binary.
const (
	ArchX8664 = "x86_64"
	ArchARM64 = "arm64"
)

// Architectures returns the fixed, ordered pair of build architectures.
// The set is deliberately not configurable: the merge algorithm is defined
// pairwise, and single-architecture builds should use the regular generated
// project files instead of this wrapper.
func Architectures() []string {
	return []string{ArchX8664, ArchARM64}
}

// Config holds the resolved build configuration for one run. It is built
// once from defaults, an optional settings file and command-line overrides,
// and never mutated afterwards.
type Config struct {
	// Target is the build-system target to build in the generated projects.
	Target string `yaml:"target"`
	// DstApp is the directory receiving the merged universal tree.
	DstApp string `yaml:"dst_app"`
	// CodesignIdentity is passed to codesign; AdHocIdentity disables
	// cryptographic signing in favor of an integrity-only checksum seal.
	CodesignIdentity string `yaml:"codesign_identity"`
	// ProjectFilename is the generated Xcode project name inside each
	// per-architecture work directory.
	ProjectFilename string `yaml:"project"`
	// PkgConfigPath maps architecture to the folder with .pc files for
	// that architecture's libraries.
	PkgConfigPath map[string]string `yaml:"pkg_config_path"`
	// Qt5Path maps architecture to the Qt5 install prefix.
	Qt5Path map[string]string `yaml:"qt5_path"`
	// DeploymentTarget maps architecture to the minimum macOS version for
	// that slice.
	DeploymentTarget map[string]string `yaml:"deployment_target"`
}

const (
	// DefaultConfigFilename is the default filename for builder settings.
	DefaultConfigFilename = "universal-builder-settings.yaml"

	// DefaultTarget builds everything in the generated projects.
	DefaultTarget = "ALL_BUILD"

	// DefaultDstApp is where the merged universal tree is created.
	DefaultDstApp = "universal"

	// AdHocIdentity seals artifacts with a checksum only, without a
	// cryptographic signature. This doesn't protect against malicious
	// actors, but it does protect against running corrupted binaries and
	// unlocks the extended permissions needed for ARM builds.
	AdHocIdentity = "-"

	// DefaultProjectFilename is the Xcode project produced by generation.
	DefaultProjectFilename = "dolphin-emu.xcodeproj"

	// DefaultFilePermissions is the default file permission for config files.
	DefaultFilePermissions = 0o600
)

var (
	// errConfigIsNotSet is returned when a nil configuration is provided.
	errConfigIsNotSet = errors.New("configuration is not set")
	// errUnknownArchitecture is returned for per-architecture settings that
	// name an architecture outside the fixed pair.
	errUnknownArchitecture = errors.New("unknown architecture")
)

// Default returns a configuration with Homebrew-conventional paths for each
// architecture and the stock deployment targets.
func Default() *Config {
	return &Config{
		Target:           DefaultTarget,
		DstApp:           DefaultDstApp,
		CodesignIdentity: AdHocIdentity,
		ProjectFilename:  DefaultProjectFilename,
		PkgConfigPath: map[string]string{
			ArchARM64: "/opt/homebrew/lib/pkgconfig",
			ArchX8664: "/usr/local/lib/pkgconfig",
		},
		Qt5Path: map[string]string{
			ArchARM64: "/opt/homebrew/opt/qt5",
			ArchX8664: "/usr/local/opt/qt5",
		},
		DeploymentTarget: map[string]string{
			ArchARM64: "10.14.0",
			ArchX8664: "10.12.0",
		},
	}
}

// Load reads configuration from the provided path, layering the file's
// values over defaults, and validates the result.
func Load(path string) (*Config, error) {
	if path == "" {
		path = DefaultConfigFilename
	}

	contents, err := os.ReadFile(filepath.Clean(path))
	if err != nil {
		return nil, fmt.Errorf("read settings: %w", err)
	}

	cfg := Default()
	if err := yaml.Unmarshal(contents, cfg); err != nil {
		return nil, fmt.Errorf("unmarshal settings: %w", err)
	}

	if err := Validate(cfg); err != nil {
		return nil, err
	}

	return cfg, nil
}

// Save writes the configuration to the provided path.
func Save(path string, cfg *Config) error {
	if cfg == nil {
		return errConfigIsNotSet
	}

	if path == "" {
		path = DefaultConfigFilename
	}

	if err := Validate(cfg); err != nil {
		return err
	}

	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("marshal settings: %w", err)
	}

	// Restrict permissions.
	if err := os.WriteFile(filepath.Clean(path), data, DefaultFilePermissions); err != nil {
		return fmt.Errorf("write settings: %w", err)
	}

	return nil
}

// Validate checks per-architecture maps for unknown keys and fills any
// unset field with its default. After a successful Validate the record is
// complete and treated as immutable.
func Validate(cfg *Config) error {
	if cfg == nil {
		return errConfigIsNotSet
	}

	defaults := Default()

	if cfg.Target == "" {
		cfg.Target = defaults.Target
	}

	if cfg.DstApp == "" {
		cfg.DstApp = defaults.DstApp
	}

	if cfg.CodesignIdentity == "" {
		cfg.CodesignIdentity = defaults.CodesignIdentity
	}

	if cfg.ProjectFilename == "" {
		cfg.ProjectFilename = defaults.ProjectFilename
	}

	archMaps := []struct {
		name     string
		got      *map[string]string
		defaults map[string]string
	}{
		{"pkg_config_path", &cfg.PkgConfigPath, defaults.PkgConfigPath},
		{"qt5_path", &cfg.Qt5Path, defaults.Qt5Path},
		{"deployment_target", &cfg.DeploymentTarget, defaults.DeploymentTarget},
	}

	known := make(map[string]struct{}, len(Architectures()))
	for _, arch := range Architectures() {
		known[arch] = struct{}{}
	}

	for _, m := range archMaps {
		if *m.got == nil {
			*m.got = make(map[string]string, len(Architectures()))
		}

		for arch := range *m.got {
			if _, ok := known[arch]; !ok {
				return fmt.Errorf("%s: %q: %w", m.name, arch, errUnknownArchitecture)
			}
		}

		for _, arch := range Architectures() {
			if (*m.got)[arch] == "" {
				(*m.got)[arch] = m.defaults[arch]
			}
		}
	}

	return nil
}
