// Package idhash derives deterministic identifiers for persisted records.
package idhash

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
)

// ComputeSnapshotID identifies one scoring of a candidate.
// Formula: SHA256(run_id|mint|source|scored_at_ms), hex-encoded (64 chars).
func ComputeSnapshotID(runID, mint, source string, scoredAtMs int64) string {
	return sum(fmt.Sprintf("%s|%s|%s|%d", runID, mint, source, scoredAtMs))
}

// ComputeShortlistEventID identifies one shortlist announcement.
// Formula: SHA256(run_id|mint|rank|published_at_ms).
func ComputeShortlistEventID(runID, mint string, rank int, publishedAtMs int64) string {
	return sum(fmt.Sprintf("%s|%s|%d|%d", runID, mint, rank, publishedAtMs))
}

func sum(data string) string {
	hash := sha256.Sum256([]byte(data))
	return hex.EncodeToString(hash[:])
}
