package cache

import "os"

// writeFileAtomic writes bs to a temp file in the same directory as path
// (so the subsequent rename is on the same filesystem) and renames it into
// place. The temp file's uniqueness comes from github.com/google/uuid via
// tempName (fspath.go), grounded on uuid's use for unique identifiers
// elsewhere in the pack (koshedutech-binance-trading-app,
// sawpanic-cryptorun), rather than the teacher's nonexistent equivalent --
// the teacher never wrote to disk.
func writeFileAtomic(path string, bs []byte) error {
	if err := ensureDir(dirOf(path)); err != nil {
		return err
	}
	tmp := tempName(path)
	if err := os.WriteFile(tmp, bs, 0o644); err != nil {
		os.Remove(tmp)
		return err
	}
	if err := os.Rename(tmp, path); err != nil {
		os.Remove(tmp)
		return err
	}
	return nil
}
