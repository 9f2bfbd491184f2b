package index

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/google/go-cmp/cmp"
)

func TestOpenMissing(t *testing.T) {
	idx, err := Open(filepath.Join(t.TempDir(), "events.json"))
	if err != nil {
		t.Fatalf("Open failed: %v", err)
	}
	if got := idx.Get("t1"); got != "" {
		t.Errorf("Expected empty mapping, got %q", got)
	}
}

func TestSaveOnlyWhenDirty(t *testing.T) {
	path := filepath.Join(t.TempDir(), "sub", "events.json")
	idx, _ := Open(path)

	if err := idx.Save(); err != nil {
		t.Fatalf("Save failed: %v", err)
	}
	if _, err := os.Stat(path); !os.IsNotExist(err) {
		t.Fatalf("Clean index should not be written")
	}

	idx.Set("t2", "e2")
	idx.Set("t1", "e1")
	idx.Set("t3", "e3")
	idx.Remove("t3")
	if err := idx.Save(); err != nil {
		t.Fatalf("Save failed: %v", err)
	}

	reopened, err := Open(path)
	if err != nil {
		t.Fatalf("Open failed: %v", err)
	}
	if diff := cmp.Diff([]string{"t1", "t2"}, reopened.TaskIDs()); diff != "" {
		t.Errorf("TaskIDs mismatch (-want +got):\n%s", diff)
	}
	if reopened.Get("t1") != "e1" {
		t.Errorf("Expected e1, got %q", reopened.Get("t1"))
	}
}

func TestOpenCorrupt(t *testing.T) {
	path := filepath.Join(t.TempDir(), "events.json")
	os.WriteFile(path, []byte("{"), 0600)
	if _, err := Open(path); err == nil {
		t.Errorf("Expected an error for a corrupt index")
	}
}
