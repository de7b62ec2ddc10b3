package audit

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"strings"
	"sync"
	"time"
)

// LogEntry is one record in the request audit trail. Each entry's hash
// covers the previous entry's hash, so editing or dropping a record
// breaks verification of everything after it.
type LogEntry struct {
	Timestamp    string `json:"timestamp"`
	PreviousHash string `json:"previous_hash"`
	Payload      string `json:"payload"`
	Hash         string `json:"hash"`
	Signature    string `json:"signature,omitempty"`
}

// ChainLogger appends audit records as a hash chain. The API mounts it
// as middleware so every mutating request leaves a verifiable trace.
type ChainLogger struct {
	mu           sync.Mutex
	previousHash string
}

// NewChainLogger starts a chain at the all-zero genesis hash.
func NewChainLogger() *ChainLogger {
	return &ChainLogger{
		previousHash: strings.Repeat("0", 64),
	}
}

// Append records a payload and advances the chain head.
func (c *ChainLogger) Append(payload string) *LogEntry {
	c.mu.Lock()
	defer c.mu.Unlock()

	entry := &LogEntry{
		Timestamp:    time.Now().UTC().Format(time.RFC3339),
		PreviousHash: c.previousHash,
		Payload:      payload,
	}

	hashInput := fmt.Sprintf("%s|%s|%s", entry.PreviousHash, entry.Timestamp, entry.Payload)
	hash := sha256.Sum256([]byte(hashInput))
	entry.Hash = hex.EncodeToString(hash[:])

	c.previousHash = entry.Hash
	return entry
}

// VerifyChain recomputes every hash and link in order, reporting
// whether the entries form an unbroken chain.
func VerifyChain(entries []*LogEntry) bool {
	if len(entries) == 0 {
		return true
	}

	for i, entry := range entries {
		var prevHash string
		if i == 0 {
			prevHash = entry.PreviousHash
		} else {
			prevHash = entries[i-1].Hash
			if entry.PreviousHash != prevHash {
				return false
			}
		}

		hashInput := fmt.Sprintf("%s|%s|%s", prevHash, entry.Timestamp, entry.Payload)
		hash := sha256.Sum256([]byte(hashInput))
		computedHash := hex.EncodeToString(hash[:])

		if computedHash != entry.Hash {
			return false
		}
	}
	return true
}
