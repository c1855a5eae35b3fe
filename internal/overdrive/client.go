// Package overdrive implements the OverDrive Media Console protocol: license
// acquisition, part downloads and early loan returns.
package overdrive

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/jaegermaster/overdrive-tools/internal/logger"
	"github.com/jaegermaster/overdrive-tools/internal/odm"
)

// Client talks to the OverDrive distribution endpoints named in a descriptor.
type Client struct {
	httpClient *http.Client
	userAgent  string
	logger     *logger.Logger
}

// NewClient creates a new OverDrive protocol client.
func NewClient(userAgent string, timeout time.Duration, log *logger.Logger) *Client {
	if userAgent == "" {
		userAgent = "OverDrive Media Console"
	}
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &Client{
		httpClient: &http.Client{Timeout: timeout},
		userAgent:  userAgent,
		logger:     log,
	}
}

// AcquireLicense performs the license handshake for the given descriptor and
// returns the parsed license document. A fresh client ID is generated per
// acquisition; the endpoint binds the license to it.
func (c *Client) AcquireLicense(ctx context.Context, media *odm.Media) (*odm.License, error) {
	if media.AcquisitionURL == "" {
		return nil, fmt.Errorf("descriptor has no acquisition URL")
	}

	clientID := NewClientID()
	hash, err := AcquisitionHash(clientID)
	if err != nil {
		return nil, err
	}

	params := url.Values{}
	params.Set("MediaID", media.ID)
	params.Set("ClientID", clientID)
	params.Set("OMC", OMCVersion)
	params.Set("OS", OSVersion)
	params.Set("Hash", hash)

	requestURL := media.AcquisitionURL
	if strings.Contains(requestURL, "?") {
		requestURL += "&" + params.Encode()
	} else {
		requestURL += "?" + params.Encode()
	}

	c.logger.Debug("Acquiring license", map[string]interface{}{
		"media_id":  media.ID,
		"client_id": clientID,
	})

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, requestURL, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("User-Agent", c.userAgent)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("license acquisition failed: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read license response: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("license acquisition returned status %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}

	license, err := odm.ParseLicense(body)
	if err != nil {
		return nil, fmt.Errorf("acquisition endpoint returned an invalid license: %w", err)
	}
	return license, nil
}

// DownloadPart streams a single part to destPath. The write goes through a
// temporary file so an interrupted download is never mistaken for a complete
// part on the next run. If progress is non-nil, downloaded bytes are also
// written to it.
func (c *Client) DownloadPart(ctx context.Context, license *odm.License, baseURL string, part odm.Part, destPath string, progress io.Writer) error {
	if baseURL == "" {
		return fmt.Errorf("descriptor has no download base URL")
	}

	requestURL := strings.TrimRight(baseURL, "/") + "/" + escapePartFilename(part.Filename)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, requestURL, nil)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("User-Agent", c.userAgent)
	req.Header.Set("License", license.Raw)
	req.Header.Set("ClientID", license.ClientID)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("part download failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("part download returned status %d", resp.StatusCode)
	}

	tmpPath := destPath + ".tmp"
	out, err := os.Create(tmpPath)
	if err != nil {
		return fmt.Errorf("failed to create output file: %w", err)
	}

	var dest io.Writer = out
	if progress != nil {
		dest = io.MultiWriter(out, progress)
	}

	written, err := io.Copy(dest, resp.Body)
	if closeErr := out.Close(); err == nil {
		err = closeErr
	}
	if err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("failed to write part: %w", err)
	}

	if part.FileSize > 0 && written != part.FileSize {
		c.logger.Warn("Part size differs from descriptor", map[string]interface{}{
			"part":     part.Number,
			"expected": part.FileSize,
			"actual":   written,
		})
	}

	if err := os.Rename(tmpPath, destPath); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("failed to finalize part: %w", err)
	}

	c.logger.Debug("Part downloaded", map[string]interface{}{
		"part":  part.Number,
		"bytes": written,
		"file":  filepath.Base(destPath),
	})
	return nil
}

// EarlyReturn notifies the lending service that the loan is released.
func (c *Client) EarlyReturn(ctx context.Context, media *odm.Media) error {
	if media.EarlyReturnURL == "" {
		return fmt.Errorf("descriptor has no early return URL")
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, media.EarlyReturnURL, nil)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("User-Agent", c.userAgent)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("early return failed: %w", err)
	}
	defer resp.Body.Close()
	io.Copy(io.Discard, resp.Body)

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("early return returned status %d", resp.StatusCode)
	}
	return nil
}

// escapePartFilename percent-encodes a part filename for use in the download
// URL. The braces around the media GUID must be encoded explicitly.
func escapePartFilename(filename string) string {
	segments := strings.Split(filename, "/")
	for i, segment := range segments {
		segments[i] = url.PathEscape(segment)
	}
	escaped := strings.Join(segments, "/")
	escaped = strings.ReplaceAll(escaped, "{", "%7B")
	escaped = strings.ReplaceAll(escaped, "}", "%7D")
	return escaped
}
