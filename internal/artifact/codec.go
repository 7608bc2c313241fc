package artifact

import (
	"bytes"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
)

// DomainSnapshot prefixes the snapshot checksum.
// Version suffix enables future algorithm migration.
const DomainSnapshot = "cachesync/snapshot/v1"

// Encode produces the canonical JSON body for a set of entries.
// Keys are sorted bytewise and HTML characters are not escaped, so equal
// entries always encode to equal bytes.
func Encode(entries map[string]string) ([]byte, error) {
	if entries == nil {
		entries = map[string]string{}
	}

	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(entries); err != nil {
		return nil, fmt.Errorf("encode snapshot: %w", err)
	}

	// json.Encoder adds trailing newline, remove it
	return bytes.TrimSuffix(buf.Bytes(), []byte("\n")), nil
}

// Decode parses a body produced by Encode.
func Decode(body []byte) (map[string]string, error) {
	entries := map[string]string{}
	if err := json.Unmarshal(body, &entries); err != nil {
		return nil, fmt.Errorf("decode snapshot: %w", err)
	}
	return entries, nil
}

// Checksum computes the domain-separated SHA-256 of a snapshot body.
// Format: SHA256(domain + 0x00 + body)
func Checksum(body []byte) string {
	h := sha256.New()
	h.Write([]byte(DomainSnapshot))
	h.Write([]byte{0x00})
	h.Write(body)
	return hex.EncodeToString(h.Sum(nil))
}
