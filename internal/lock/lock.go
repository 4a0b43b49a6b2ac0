package lock

import (
	"context"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/mitchellh/go-ps"

	"github.com/EthanBar/dolphin/internal/logger"
)

const (
	// MarkerFilename marks that a build is running right now to avoid
	// parallel invocations clobbering the same work directories.
	MarkerFilename = "universal-builder-marker.bin"

	// executableName is the process name a stale marker tries to clean up.
	executableName = "universal-builder"

	// markerLifetime is the period after which a marker is considered stale.
	markerLifetime = 30 * time.Second
)

// ErrAlreadyRunning is returned when another build holds the marker.
var ErrAlreadyRunning = errors.New("another universal build is already running")

// Acquire takes the single-run marker. On success it returns a release
// function that removes the marker. A fresh marker from another run yields
// ErrAlreadyRunning; a stale one triggers cleanup of the lingering process
// before the marker is taken over.
func Acquire(ctx context.Context) (func(), error) {
	if isBuildRunningNow(ctx) {
		return nil, ErrAlreadyRunning
	}

	marker, err := os.Create(MarkerFilename)
	if err != nil {
		return nil, fmt.Errorf("create marker: %w", err)
	}

	if err = marker.Close(); err != nil {
		return nil, fmt.Errorf("close marker: %w", err)
	}

	release := func() {
		if err := os.Remove(MarkerFilename); err != nil && !errors.Is(err, os.ErrNotExist) {
			logger.Warnf(ctx, "Unable to remove build marker: %v", err)
		}
	}

	return release, nil
}

// isBuildRunningNow checks presence of the marker file and attempts
// recovery if it looks stale.
func isBuildRunningNow(ctx context.Context) bool {
	logger.Debug(ctx, "Checking for the presence of a build marker")

	fileInfo, err := os.Stat(MarkerFilename)
	if err == nil {
		if time.Since(fileInfo.ModTime()) <= markerLifetime {
			return true
		}

		logger.Info(ctx, "The build marker is too old, attempting cleanup")

		if err = terminateProcessByName(executableName); err != nil {
			return true
		}

		if err = os.Remove(MarkerFilename); err != nil {
			return true
		}

		return false
	}

	if errors.Is(err, os.ErrNotExist) {
		return false
	}

	logger.Infof(ctx, "Unable to read build marker: %v", err)

	return false
}

// terminateProcessByName tries to kill processes with the provided executable name.
func terminateProcessByName(processName string) error {
	processList, err := ps.Processes()
	if err != nil {
		return err
	}

	thisProcessID := os.Getpid()

	for _, process := range processList {
		if process.Pid() == thisProcessID {
			continue
		}

		if process.Executable() != processName {
			continue
		}

		var runningProcess *os.Process

		runningProcess, err = os.FindProcess(process.Pid())
		if err != nil {
			return err
		}

		if err = runningProcess.Kill(); err != nil {
			return err
		}
	}

	return nil
}
