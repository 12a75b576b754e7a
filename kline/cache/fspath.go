package cache

import (
	"os"
	"path/filepath"

	"github.com/google/uuid"
	"github.com/marianogappa/kline-history/kline/common"
)

// layout computes the on-disk path for a cache key:
// {root}/{provider}/{market}/{chartType}/{symbol}/{interval}/{YYYY-MM-DD}.arrow
func layout(root string, key common.CacheKey) string {
	return filepath.Join(
		root,
		key.Provider,
		key.Market.String(),
		key.ChartType,
		key.Symbol,
		key.Interval.String(),
		key.Day.Format("2006-01-02")+".arrow",
	)
}

func dirOf(path string) string { return filepath.Dir(path) }

func ensureDir(dir string) error { return os.MkdirAll(dir, 0o755) }

func tempName(path string) string {
	dir := filepath.Dir(path)
	return filepath.Join(dir, "."+filepath.Base(path)+"."+uuid.NewString()+".tmp")
}

func removeIfExists(path string) error {
	err := os.Remove(path)
	if os.IsNotExist(err) {
		return nil
	}
	return err
}
