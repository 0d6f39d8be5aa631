package analysis

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
)

var (
	// ErrNoLogDir is returned when the activity log directory does not exist.
	ErrNoLogDir = errors.New("log directory not found")
	// ErrNoLogFiles is returned when the log directory holds no log files.
	ErrNoLogFiles = errors.New("no log files found")
)

// ListLogFiles returns the activity log files in dir, oldest first.
func ListLogFiles(dir string) ([]string, error) {
	info, err := os.Stat(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("%w: %s", ErrNoLogDir, dir)
		}
		return nil, fmt.Errorf("failed to stat log dir: %w", err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("%w: %s is not a directory", ErrNoLogDir, dir)
	}

	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("failed to read log dir: %w", err)
	}

	var files []string
	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), ".json") {
			continue
		}
		files = append(files, filepath.Join(dir, entry.Name()))
	}
	if len(files) == 0 {
		return nil, fmt.Errorf("%w in %s", ErrNoLogFiles, dir)
	}

	sort.Strings(files)
	return files, nil
}

// LatestLogFile returns the most recent activity log in dir. Daily file names
// sort chronologically.
func LatestLogFile(dir string) (string, error) {
	files, err := ListLogFiles(dir)
	if err != nil {
		return "", err
	}
	return files[len(files)-1], nil
}
