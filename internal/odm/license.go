package odm

import (
	"fmt"
	"os"
	"strings"
)

// License is a signed license document returned by the acquisition endpoint.
// The raw text is sent back verbatim in download request headers.
type License struct {
	Raw      string
	ClientID string
}

// ParseLicense parses a license document.
func ParseLicense(data []byte) (*License, error) {
	raw := strings.TrimSpace(string(data))
	if raw == "" {
		return nil, fmt.Errorf("license document is empty")
	}

	clientID := findElementText([]byte(raw), "ClientID")
	if clientID == "" {
		return nil, fmt.Errorf("license document has no ClientID")
	}

	return &License{Raw: raw, ClientID: clientID}, nil
}

// LoadLicense reads and parses a license file from disk.
func LoadLicense(path string) (*License, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read license file: %w", err)
	}
	return ParseLicense(data)
}

// LicensePath returns the conventional license path for a descriptor:
// the descriptor path with a ".license" suffix.
func LicensePath(odmPath string) string {
	return odmPath + ".license"
}
