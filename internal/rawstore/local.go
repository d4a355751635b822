package rawstore

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// Local archives payloads under a base directory on the filesystem.
type Local struct {
	baseDir string
}

func NewLocal(baseDir string) (*Local, error) {
	if strings.TrimSpace(baseDir) == "" {
		return nil, fmt.Errorf("base directory is required")
	}
	info, err := os.Stat(baseDir)
	switch {
	case os.IsNotExist(err):
		if mkErr := os.MkdirAll(baseDir, 0o750); mkErr != nil {
			return nil, fmt.Errorf("create base directory: %w", mkErr)
		}
	case err != nil:
		return nil, fmt.Errorf("stat base directory: %w", err)
	case !info.IsDir():
		return nil, fmt.Errorf("base directory path is not a directory")
	}
	return &Local{baseDir: baseDir}, nil
}

// Archive writes the payload to a file and returns its file:// URI.
func (s *Local) Archive(_ context.Context, runID, opportunityID string, payload []byte) (string, error) {
	fullPath := filepath.Join(s.baseDir, objectPath(runID, opportunityID))

	// reject ids that would escape the base directory
	cleanBase := filepath.Clean(s.baseDir)
	if !strings.HasPrefix(filepath.Clean(fullPath), cleanBase+string(filepath.Separator)) {
		return "", fmt.Errorf("path traversal detected")
	}
	if err := os.MkdirAll(filepath.Dir(fullPath), 0o750); err != nil {
		return "", fmt.Errorf("create run directory: %w", err)
	}
	if err := os.WriteFile(fullPath, payload, 0o600); err != nil {
		return "", fmt.Errorf("write raw payload: %w", err)
	}
	return "file://" + fullPath, nil
}
