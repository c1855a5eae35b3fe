package overdrive

import (
	"crypto/sha1"
	"encoding/base64"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"golang.org/x/text/encoding/unicode"
)

// Version strings reported to the acquisition endpoint. The server validates
// the Hash parameter against these, so they must match the values hashed.
const (
	OMCVersion = "1.2.0"
	OSVersion  = "10.11.6"

	// hashSuffix is the static final component of the hashed string
	// ("MEDIA*CONSOLE" reversed).
	hashSuffix = "ELOSNOC*AIDEM"
)

// NewClientID generates a fresh client ID for a license acquisition.
// The endpoint expects an uppercase UUID.
func NewClientID() string {
	return strings.ToUpper(uuid.NewString())
}

// AcquisitionHash computes the Hash query parameter for a client ID:
// base64 of the SHA-1 digest over the UTF-16LE encoding of
// "ClientID|OMC|OS|ELOSNOC*AIDEM".
func AcquisitionHash(clientID string) (string, error) {
	raw := strings.Join([]string{clientID, OMCVersion, OSVersion, hashSuffix}, "|")

	encoder := unicode.UTF16(unicode.LittleEndian, unicode.IgnoreBOM).NewEncoder()
	encoded, err := encoder.Bytes([]byte(raw))
	if err != nil {
		return "", fmt.Errorf("failed to encode hash input: %w", err)
	}

	sum := sha1.Sum(encoded)
	return base64.StdEncoding.EncodeToString(sum[:]), nil
}
