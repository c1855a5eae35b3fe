package odm

import (
	"fmt"
	"os"
	"strings"
)

// Sidecar line offsets, counted over non-empty lines. The .metadata file is
// written by the OverDrive client alongside the descriptor.
const (
	sidecarTitleLine  = 2
	sidecarAuthorLine = 6
)

// SidecarPath returns the conventional metadata sidecar path for a
// descriptor: the descriptor path with a ".metadata" suffix.
func SidecarPath(odmPath string) string {
	return odmPath + ".metadata"
}

// ReadSidecar reads title and author from a .metadata sidecar file.
func ReadSidecar(path string) (*Metadata, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read metadata sidecar: %w", err)
	}

	var lines []string
	for _, line := range strings.Split(string(data), "\n") {
		if trimmed := strings.TrimSpace(line); trimmed != "" {
			lines = append(lines, trimmed)
		}
	}

	if len(lines) <= sidecarAuthorLine {
		return nil, fmt.Errorf("metadata sidecar has %d non-empty lines, need at least %d", len(lines), sidecarAuthorLine+1)
	}

	return &Metadata{
		Title:  lines[sidecarTitleLine],
		Author: lines[sidecarAuthorLine],
	}, nil
}
