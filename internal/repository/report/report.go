package report

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"gopkg.in/yaml.v3"
)

const (
	// DefaultFilename is the build report written beside the destination tree.
	DefaultFilename = "universal-builder-report.yaml"

	// filePermissions restricts the report to the invoking user.
	filePermissions os.FileMode = 0o600
)

// ErrNotFound is returned when no report has been written yet.
var ErrNotFound = errors.New("report not found")

// Fallback is one merge entry where differing files could not be combined.
type Fallback struct {
	// Left is the first source tree's file.
	Left string `yaml:"left"`
	// Right is the second source tree's file.
	Right string `yaml:"right"`
	// Kept is the source whose bytes were preserved.
	Kept string `yaml:"kept"`
}

// Report summarizes one completed universal build.
type Report struct {
	// Version is the builder version that produced this report.
	Version string `yaml:"version"`
	// Target is the build-system target that was built.
	Target string `yaml:"target"`
	// Architectures lists the merged slices in build order.
	Architectures []string `yaml:"architectures"`
	// Artifacts lists the sealed top-level artifacts of the merged tree.
	Artifacts []string `yaml:"artifacts"`
	// Fallbacks lists merge entries where one side's content was kept.
	Fallbacks []Fallback `yaml:"fallbacks,omitempty"`
	// FinishedAt is when the run completed.
	FinishedAt time.Time `yaml:"finished_at"`
}

// Repository defines persistence operations for build reports.
type Repository interface {
	Load(ctx context.Context) (*Report, error)
	Save(ctx context.Context, rep *Report) error
}

// FileRepository persists the build report to a YAML file on disk.
type FileRepository struct {
	// path is the filesystem location of the report file.
	path string
	// mu protects concurrent access to the report file.
	mu sync.Mutex
}

// NewFileRepository creates a repository that reads/writes YAML at the provided path.
func NewFileRepository(path string) *FileRepository {
	return &FileRepository{
		path: filepath.Clean(path),
	}
}

// Load reads the report from disk.
func (r *FileRepository) Load(_ context.Context) (*Report, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	contents, err := os.ReadFile(r.path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, ErrNotFound
		}

		return nil, fmt.Errorf("read report file: %w", err)
	}

	var rep Report
	if err := yaml.Unmarshal(contents, &rep); err != nil {
		return nil, fmt.Errorf("unmarshal report: %w", err)
	}

	return &rep, nil
}

// Save writes the report to disk.
func (r *FileRepository) Save(_ context.Context, rep *Report) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	contents, err := yaml.Marshal(rep)
	if err != nil {
		return fmt.Errorf("marshal report: %w", err)
	}

	if err := os.WriteFile(r.path, contents, filePermissions); err != nil {
		return fmt.Errorf("write report file: %w", err)
	}

	return nil
}
