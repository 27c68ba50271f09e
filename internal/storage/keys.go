// Package storage provides the key-value storage abstractions TabVault
// persists through.
package storage

import (
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"strings"
)

// Key naming. Notation: <> marks a variable segment, everything else is
// literal.
//
//	session:<id>              session record          (metadata tier)
//	session-index             session index singleton (metadata tier)
//	active-session            active pointer singleton(metadata tier)
//	<kind>:<id>:<rand6>       payload blob            (blob tier)
//
// Blob kinds: dataset, filters, charts, chunk, chunkindex. The random
// suffix decouples blob identity from session identity so re-saves can
// switch representations without overwriting in place.
const (
	// KeySessionIndex addresses the session index.
	KeySessionIndex = "session-index"

	// KeyActiveSession addresses the active-session pointer.
	KeyActiveSession = "active-session"

	sessionKeyPrefix = "session:"
	keySeparator     = ":"
	randomSuffixLen  = 6
)

// BlobKind names a payload blob category.
type BlobKind string

const (
	BlobDataset    BlobKind = "dataset"
	BlobFilters    BlobKind = "filters"
	BlobCharts     BlobKind = "charts"
	BlobChunk      BlobKind = "chunk"
	BlobChunkIndex BlobKind = "chunkindex"
)

// SessionKey returns the metadata key of a session record.
func SessionKey(id string) string {
	return sessionKeyPrefix + id
}

// SessionKeyPrefix returns the scan prefix covering all session records.
func SessionKeyPrefix() string {
	return sessionKeyPrefix
}

// NewBlobKey mints a blob key for the given kind and session:
// <kind>:<sessionID>:<rand6>.
func NewBlobKey(kind BlobKind, sessionID string) (string, error) {
	suffix, err := randomSuffix()
	if err != nil {
		return "", fmt.Errorf("storage: blob key: %w", err)
	}
	return string(kind) + keySeparator + sessionID + keySeparator + suffix, nil
}

// BlobPrefix returns the scan prefix covering a session's blobs of one
// kind: <kind>:<sessionID>:.
func BlobPrefix(kind BlobKind, sessionID string) string {
	return string(kind) + keySeparator + sessionID + keySeparator
}

// ParseBlobKey splits a blob key into kind and session ID. Returns false
// for keys that do not follow the blob naming scheme.
func ParseBlobKey(key string) (kind BlobKind, sessionID string, ok bool) {
	parts := strings.Split(key, keySeparator)
	if len(parts) != 3 || len(parts[2]) != randomSuffixLen {
		return "", "", false
	}
	switch BlobKind(parts[0]) {
	case BlobDataset, BlobFilters, BlobCharts, BlobChunk, BlobChunkIndex:
		return BlobKind(parts[0]), parts[1], true
	default:
		return "", "", false
	}
}

// randomSuffix returns randomSuffixLen hex characters from crypto/rand.
func randomSuffix() (string, error) {
	buf := make([]byte, randomSuffixLen/2)
	if _, err := rand.Read(buf); err != nil {
		return "", err
	}
	return hex.EncodeToString(buf), nil
}
