package archive

import (
	"crypto/sha256"
	"encoding/hex"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/marianogappa/kline-history/kline/common"
)

func TestVerifyChecksumMatches(t *testing.T) {
	data := []byte("some zip bytes")
	sum := sha256.Sum256(data)
	digest := hex.EncodeToString(sum[:])

	err := verifyChecksum(data, []byte(digest+"  data.zip\n"))
	require.NoError(t, err)
}

func TestVerifyChecksumMismatch(t *testing.T) {
	data := []byte("some zip bytes")
	err := verifyChecksum(data, []byte("deadbeef  data.zip\n"))
	require.Error(t, err)
}

func TestVerifyChecksumEmptyFile(t *testing.T) {
	err := verifyChecksum([]byte("x"), []byte("   \n"))
	require.Error(t, err)
}

func TestChecksumRegistryRecordsAndSnapshots(t *testing.T) {
	reg := newChecksumRegistry()
	key := common.CacheKey{Symbol: "BTCUSDT"}

	reg.record(key)
	reg.record(key)

	snap := reg.snapshot()
	require.Equal(t, 2, snap[key.String()])
}
