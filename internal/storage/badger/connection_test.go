package badger

import (
	"path/filepath"
	"testing"

	"github.com/ternarybob/arbor"

	"github.com/ternarybob/clavis/internal/common"
)

func TestBadgerDBOpenClose(t *testing.T) {
	cfg := &common.BadgerConfig{Path: filepath.Join(t.TempDir(), "data")}

	db, err := NewBadgerDB(arbor.NewLogger(), cfg)
	if err != nil {
		t.Fatalf("NewBadgerDB failed: %v", err)
	}
	if db.Store() == nil {
		t.Fatal("Store() returned nil")
	}

	if err := db.Close(); err != nil {
		t.Errorf("Close failed: %v", err)
	}
	if err := db.Close(); err != nil {
		t.Errorf("second Close failed: %v", err)
	}
}

func TestBadgerDBResetOnStartup(t *testing.T) {
	path := filepath.Join(t.TempDir(), "data")

	cfg := &common.BadgerConfig{Path: path}
	db, err := NewBadgerDB(arbor.NewLogger(), cfg)
	if err != nil {
		t.Fatalf("NewBadgerDB failed: %v", err)
	}

	type marker struct{ V string }
	if err := db.Store().Upsert("marker", &marker{V: "x"}); err != nil {
		t.Fatalf("Upsert failed: %v", err)
	}
	if err := db.Close(); err != nil {
		t.Fatalf("Close failed: %v", err)
	}

	cfg.ResetOnStartup = true
	db, err = NewBadgerDB(arbor.NewLogger(), cfg)
	if err != nil {
		t.Fatalf("reopen failed: %v", err)
	}
	defer db.Close()

	var out marker
	if err := db.Store().Get("marker", &out); err == nil {
		t.Error("record survived reset_on_startup")
	}
}
