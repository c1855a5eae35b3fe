// Package odm parses OverDrive Media Console descriptor (.odm) files and the
// license documents returned by the acquisition endpoint.
package odm

import (
	"bytes"
	"encoding/xml"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"
)

// Part describes a single downloadable audio segment of the title.
type Part struct {
	Number   int    `xml:"number,attr"`
	FileSize int64  `xml:"filesize,attr"`
	Name     string `xml:"name,attr"`
	Filename string `xml:"filename,attr"`
	Duration string `xml:"duration,attr"`
}

// DurationSeconds parses the part duration attribute (MM:SS or HH:MM:SS)
// into whole seconds.
func (p Part) DurationSeconds() (int, error) {
	fields := strings.Split(strings.TrimSpace(p.Duration), ":")
	if len(fields) < 2 || len(fields) > 3 {
		return 0, fmt.Errorf("invalid part duration %q", p.Duration)
	}

	total := 0
	for _, f := range fields {
		n, err := strconv.Atoi(f)
		if err != nil {
			return 0, fmt.Errorf("invalid part duration %q: %w", p.Duration, err)
		}
		total = total*60 + n
	}
	return total, nil
}

// LocalName returns the on-disk file name for the part: the segment of the
// remote filename after the last dash, e.g. "{GUID}-Part01.mp3" -> "Part01.mp3".
func (p Part) LocalName() string {
	name := p.Filename
	if idx := strings.LastIndex(name, "-"); idx >= 0 {
		name = name[idx+1:]
	}
	if name == "" {
		name = fmt.Sprintf("Part%02d.mp3", p.Number)
	}
	return name
}

// Metadata is the book metadata embedded in the descriptor's CDATA block.
type Metadata struct {
	Title  string
	Author string
	Series string
}

// Media is a parsed .odm descriptor.
type Media struct {
	ID             string
	AcquisitionURL string
	EarlyReturnURL string
	BaseURL        string
	Parts          []Part
	Metadata       *Metadata
}

type document struct {
	XMLName xml.Name `xml:"OverDriveMedia"`
	ID      string   `xml:"id,attr"`
	Formats []struct {
		Name      string `xml:"name,attr"`
		Protocols []struct {
			Method  string `xml:"method,attr"`
			BaseURL string `xml:"baseurl,attr"`
		} `xml:"Protocols>Protocol"`
		Parts []Part `xml:"Parts>Part"`
	} `xml:"Formats>Format"`
}

// ParseFile reads and parses a .odm descriptor from disk.
func ParseFile(path string) (*Media, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read odm file: %w", err)
	}
	media, err := Parse(data)
	if err != nil {
		return nil, fmt.Errorf("failed to parse %s: %w", filepath.Base(path), err)
	}
	return media, nil
}

// Parse parses a .odm descriptor.
func Parse(data []byte) (*Media, error) {
	var doc document
	if err := xml.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("invalid descriptor XML: %w", err)
	}
	if doc.ID == "" {
		return nil, fmt.Errorf("descriptor has no media id")
	}

	media := &Media{
		ID:             doc.ID,
		AcquisitionURL: findElementText(data, "AcquisitionUrl"),
		EarlyReturnURL: findElementText(data, "EarlyReturnURL"),
	}

	for _, format := range doc.Formats {
		for _, proto := range format.Protocols {
			if proto.Method == "download" && media.BaseURL == "" {
				media.BaseURL = proto.BaseURL
			}
		}
		if len(media.Parts) == 0 {
			media.Parts = format.Parts
		}
	}

	if meta, err := parseMetadataBlock(data); err == nil {
		media.Metadata = meta
	}

	return media, nil
}

// parseMetadataBlock extracts and parses the <Metadata> document embedded in
// the descriptor, whether inline or wrapped in a CDATA section.
func parseMetadataBlock(data []byte) (*Metadata, error) {
	content := string(data)

	start := strings.Index(content, "<Metadata>")
	end := strings.Index(content, "</Metadata>")
	if start == -1 || end == -1 || end < start {
		return nil, fmt.Errorf("no metadata section found")
	}
	block := []byte(content[start : end+len("</Metadata>")])

	meta := &Metadata{
		Title:  findElementText(block, "Title"),
		Series: findElementText(block, "Series"),
	}

	// The author is the Creator element with role="Author"
	decoder := xml.NewDecoder(bytes.NewReader(block))
	for {
		tok, err := decoder.Token()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("invalid metadata XML: %w", err)
		}
		start, ok := tok.(xml.StartElement)
		if !ok || start.Name.Local != "Creator" {
			continue
		}
		role := ""
		for _, attr := range start.Attr {
			if attr.Name.Local == "role" {
				role = attr.Value
			}
		}
		var name string
		if err := decoder.DecodeElement(&name, &start); err != nil {
			continue
		}
		if role == "Author" && meta.Author == "" {
			meta.Author = strings.TrimSpace(name)
		}
	}

	if meta.Title == "" && meta.Author == "" {
		return nil, fmt.Errorf("metadata section is empty")
	}
	return meta, nil
}

// findElementText returns the character data of the first element with the
// given local name, at any depth and in any namespace.
func findElementText(data []byte, local string) string {
	decoder := xml.NewDecoder(bytes.NewReader(data))
	for {
		tok, err := decoder.Token()
		if err != nil {
			return ""
		}
		start, ok := tok.(xml.StartElement)
		if !ok || start.Name.Local != local {
			continue
		}
		var text string
		if err := decoder.DecodeElement(&text, &start); err != nil {
			return ""
		}
		return strings.TrimSpace(text)
	}
}
