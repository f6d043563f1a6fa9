package services_test

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/MegaGrindStone/chatwidget/internal/services"
)

func TestBoltDBMode(t *testing.T) {
	path := filepath.Join(t.TempDir(), "store.db")

	db, err := services.NewBoltDB(path)
	if err != nil {
		t.Fatalf("NewBoltDB() error = %v", err)
	}

	mode, err := db.Mode(context.Background())
	if err != nil {
		t.Fatalf("Mode() error = %v", err)
	}
	if mode != "" {
		t.Errorf("Mode() = %q, want empty", mode)
	}

	if err := db.SetMode(context.Background(), "code"); err != nil {
		t.Fatalf("SetMode() error = %v", err)
	}
	if err := db.Close(); err != nil {
		t.Fatalf("Close() error = %v", err)
	}

	// The mode survives reopening the file.
	db, err = services.NewBoltDB(path)
	if err != nil {
		t.Fatalf("NewBoltDB() error = %v", err)
	}
	defer db.Close()

	mode, err = db.Mode(context.Background())
	if err != nil {
		t.Fatalf("Mode() error = %v", err)
	}
	if mode != "code" {
		t.Errorf("Mode() = %q, want %q", mode, "code")
	}
}
