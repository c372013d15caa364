package storage

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSQLiteFiles(t *testing.T) {
	assert.Equal(t, []string{"/data/items.db", "/data/items.db-wal", "/data/items.db-shm"}, SQLiteFiles("/data/items.db"))
}

func TestDiskUsageBytes(t *testing.T) {
	dir := t.TempDir()
	db := filepath.Join(dir, "items.db")
	require.NoError(t, os.WriteFile(db, []byte("hello"), 0644))
	require.NoError(t, os.WriteFile(db+"-wal", []byte("abc"), 0644))

	tests := []struct {
		name  string
		paths []string
		want  int64
	}{
		{"single file", []string{db}, 5},
		{"database and side files, shm missing", SQLiteFiles(db), 8},
		{"empty path skipped", []string{"", db}, 5},
		{"directory counts as zero", []string{dir}, 0},
		{"nothing", nil, 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := DiskUsageBytes(tt.paths...)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}
