package storage

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/hyperjump/lookalike/internal/config"
)

func TestNewStore_Memory(t *testing.T) {
	store, err := NewStore(context.Background(), &config.StoreConfig{Type: "memory"}, 3, nil)
	if err != nil {
		t.Fatalf("NewStore(memory): %v", err)
	}
	defer store.Close()
	if store.Type() != TypeMemory {
		t.Errorf("Type = %s", store.Type())
	}
}

func TestNewStore_SQLiteDefault(t *testing.T) {
	cfg := &config.StoreConfig{DatabasePath: filepath.Join(t.TempDir(), "items.db")}
	store, err := NewStore(context.Background(), cfg, 0, nil)
	if err != nil {
		t.Fatalf("NewStore(''): %v", err)
	}
	defer store.Close()
	if store.Type() != TypeSQLite {
		t.Errorf("Type = %s", store.Type())
	}
}

func TestNewStore_Unknown(t *testing.T) {
	if _, err := NewStore(context.Background(), &config.StoreConfig{Type: "faiss"}, 3, nil); err == nil {
		t.Error("expected error for unknown store type")
	}
}
