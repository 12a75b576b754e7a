package archive

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"strings"
	"sync"

	"github.com/marianogappa/kline-history/kline/common"
)

// verifyChecksum computes the SHA-256 of zipBytes and compares it to the
// digest in checksumBody, whose format is "<hex digest> <anything else>"
// (spec §4.4/§6: "first whitespace-delimited token").
func verifyChecksum(zipBytes, checksumBody []byte) error {
	fields := strings.Fields(string(checksumBody))
	if len(fields) == 0 {
		return fmt.Errorf("%w: empty checksum file", common.ErrIntegrity)
	}
	want := strings.ToLower(fields[0])

	sum := sha256.Sum256(zipBytes)
	got := hex.EncodeToString(sum[:])

	if got != want {
		return fmt.Errorf("%w: checksum mismatch (want %s, got %s)", common.ErrIntegrity, want, got)
	}
	return nil
}

// checksumRegistry records (key -> failure count) for diagnostics, per
// spec §4.1 ("record the failure in a registry") and the supplemented
// ChecksumFailures() surface from SPEC_FULL.md.
type checksumRegistry struct {
	mu       sync.Mutex
	failures map[string]int
}

func newChecksumRegistry() *checksumRegistry {
	return &checksumRegistry{failures: map[string]int{}}
}

func (r *checksumRegistry) record(key common.CacheKey) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.failures[key.String()]++
}

func (r *checksumRegistry) snapshot() map[string]int {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make(map[string]int, len(r.failures))
	for k, v := range r.failures {
		out[k] = v
	}
	return out
}
