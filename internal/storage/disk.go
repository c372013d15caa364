package storage

import (
	"errors"
	"io/fs"
	"os"
)

// sqliteSideFiles are the suffixes SQLite appends for its write-ahead log and shared memory.
var sqliteSideFiles = []string{"", "-wal", "-shm"}

// SQLiteFiles returns the database file at dbPath followed by its WAL side files.
func SQLiteFiles(dbPath string) []string {
	files := make([]string, 0, len(sqliteSideFiles))
	for _, suffix := range sqliteSideFiles {
		files = append(files, dbPath+suffix)
	}
	return files
}

// DiskUsageBytes sums the sizes of the given files. Empty and missing paths count as zero.
func DiskUsageBytes(paths ...string) (int64, error) {
	var total int64
	for _, p := range paths {
		if p == "" {
			continue
		}
		info, err := os.Stat(p)
		if errors.Is(err, fs.ErrNotExist) {
			continue
		}
		if err != nil {
			return 0, err
		}
		if info.Mode().IsRegular() {
			total += info.Size()
		}
	}
	return total, nil
}
