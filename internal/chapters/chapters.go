// Package chapters models chapter boundaries and the chapters.txt sidecar
// shared by the download, extract and process commands.
package chapters

import (
	"bufio"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/jaegermaster/overdrive-tools/internal/odm"
)

// FileName is the chapter sidecar written into the book directory.
const FileName = "chapters.txt"

// Chapter is a single chapter boundary: where it starts in the concatenated
// audio and what it is called.
type Chapter struct {
	Title string
	Start time.Duration
}

// FormatTimestamp renders a duration as HH:MM:SS.mmm.
func FormatTimestamp(d time.Duration) string {
	if d < 0 {
		d = 0
	}
	hours := int(d / time.Hour)
	minutes := int(d/time.Minute) % 60
	seconds := int(d/time.Second) % 60
	millis := int(d/time.Millisecond) % 1000
	return fmt.Sprintf("%02d:%02d:%02d.%03d", hours, minutes, seconds, millis)
}

// ParseTimestamp parses HH:MM:SS or HH:MM:SS.mmm into a duration.
func ParseTimestamp(s string) (time.Duration, error) {
	parts := strings.SplitN(strings.TrimSpace(s), ".", 2)

	fields := strings.Split(parts[0], ":")
	if len(fields) != 3 {
		return 0, fmt.Errorf("invalid timestamp %q", s)
	}

	var total time.Duration
	for _, f := range fields {
		n, err := strconv.Atoi(f)
		if err != nil || n < 0 {
			return 0, fmt.Errorf("invalid timestamp %q", s)
		}
		total = total*60 + time.Duration(n)*time.Second
	}

	if len(parts) == 2 {
		frac := parts[1]
		if frac == "" || len(frac) > 3 {
			return 0, fmt.Errorf("invalid timestamp %q", s)
		}
		n, err := strconv.Atoi(frac)
		if err != nil {
			return 0, fmt.Errorf("invalid timestamp %q", s)
		}
		for i := len(frac); i < 3; i++ {
			n *= 10
		}
		total += time.Duration(n) * time.Millisecond
	}

	return total, nil
}

// FromParts derives chapter boundaries from the parts of a descriptor, one
// chapter per part at the cumulative start offset.
func FromParts(parts []odm.Part) ([]Chapter, error) {
	var result []Chapter
	var cumulative time.Duration

	for _, part := range parts {
		seconds, err := part.DurationSeconds()
		if err != nil {
			return nil, fmt.Errorf("part %d: %w", part.Number, err)
		}

		title := part.Name
		if title == "" {
			title = fmt.Sprintf("Part %d", part.Number)
		}

		result = append(result, Chapter{Title: title, Start: cumulative})
		cumulative += time.Duration(seconds) * time.Second
	}

	return result, nil
}

// Write writes the chapter sidecar, one "HH:MM:SS.mmm Title" line per chapter.
func Write(path string, chs []Chapter) error {
	if len(chs) == 0 {
		return fmt.Errorf("no chapters to write")
	}

	var sb strings.Builder
	for _, ch := range chs {
		sb.WriteString(FormatTimestamp(ch.Start))
		sb.WriteString(" ")
		sb.WriteString(ch.Title)
		sb.WriteString("\n")
	}

	if err := os.WriteFile(path, []byte(sb.String()), 0644); err != nil {
		return fmt.Errorf("failed to write chapter file: %w", err)
	}
	return nil
}

// Read parses a chapter sidecar. Blank lines are skipped; chapters must be
// in ascending start order.
func Read(path string) ([]Chapter, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open chapter file: %w", err)
	}
	defer f.Close()

	var result []Chapter
	scanner := bufio.NewScanner(f)
	lineNo := 0
	for scanner.Scan() {
		lineNo++
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}

		stamp, title, found := strings.Cut(line, " ")
		if !found {
			return nil, fmt.Errorf("line %d: missing chapter title", lineNo)
		}

		start, err := ParseTimestamp(stamp)
		if err != nil {
			return nil, fmt.Errorf("line %d: %w", lineNo, err)
		}

		if n := len(result); n > 0 && start < result[n-1].Start {
			return nil, fmt.Errorf("line %d: chapter starts before previous chapter", lineNo)
		}

		result = append(result, Chapter{Title: strings.TrimSpace(title), Start: start})
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("failed to read chapter file: %w", err)
	}

	if len(result) == 0 {
		return nil, fmt.Errorf("chapter file %s is empty", path)
	}
	return result, nil
}
