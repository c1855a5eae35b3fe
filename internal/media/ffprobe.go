// Package media wraps the ffmpeg toolchain for probing part durations and
// cutting chaptered output files.
package media

import (
	"context"
	"encoding/json"
	"fmt"
	"os/exec"
	"strconv"
	"time"
)

var commandContext = exec.CommandContext

// Prober reports the playable duration of an audio file.
type Prober interface {
	Duration(ctx context.Context, path string) (time.Duration, error)
}

// FFprobe implements Prober using the ffprobe binary.
type FFprobe struct {
	binary string
}

// NewFFprobe creates an FFprobe wrapper. An empty binary defaults to
// "ffprobe" on PATH.
func NewFFprobe(binary string) *FFprobe {
	if binary == "" {
		binary = "ffprobe"
	}
	return &FFprobe{binary: binary}
}

// Duration probes the duration of an audio file.
func (p *FFprobe) Duration(ctx context.Context, path string) (time.Duration, error) {
	args := []string{
		"-v", "error",
		"-show_format",
		"-of", "json",
		path,
	}

	cmd := commandContext(ctx, p.binary, args...)
	output, err := cmd.Output()
	if err != nil {
		return 0, fmt.Errorf("ffprobe failed for %s: %w", path, err)
	}

	var payload struct {
		Format struct {
			Duration string `json:"duration"`
		} `json:"format"`
	}
	if err := json.Unmarshal(output, &payload); err != nil {
		return 0, fmt.Errorf("failed to parse ffprobe output for %s: %w", path, err)
	}
	if payload.Format.Duration == "" {
		return 0, fmt.Errorf("ffprobe reported no duration for %s", path)
	}

	seconds, err := strconv.ParseFloat(payload.Format.Duration, 64)
	if err != nil || seconds < 0 {
		return 0, fmt.Errorf("ffprobe reported invalid duration %q for %s", payload.Format.Duration, path)
	}

	return time.Duration(seconds * float64(time.Second)), nil
}

var _ Prober = (*FFprobe)(nil)
