package catalog

import (
	"os"
	"path/filepath"
	"sort"
	"testing"
)

func TestListFiltersHiddenAndJunk(t *testing.T) {
	dir := t.TempDir()
	for _, name := range []string{"a.txt", "b.bin", ".hidden", ".DS_Store", "Thumbs.db"} {
		if err := os.WriteFile(filepath.Join(dir, name), []byte("x"), 0644); err != nil {
			t.Fatalf("WriteFile(%s): %v", name, err)
		}
	}
	if err := os.Mkdir(filepath.Join(dir, "subdir"), 0755); err != nil {
		t.Fatalf("Mkdir: %v", err)
	}

	names, err := List(DirAccessor(dir))
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	sort.Strings(names)

	want := []string{"a.txt", "b.bin"}
	if len(names) != len(want) {
		t.Fatalf("got %v, want %v", names, want)
	}
	for i := range want {
		if names[i] != want[i] {
			t.Fatalf("got %v, want %v", names, want)
		}
	}
}

func TestListReflectsLiveChanges(t *testing.T) {
	dir := t.TempDir()

	names, err := List(DirAccessor(dir))
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if len(names) != 0 {
		t.Fatalf("expected empty catalog, got %v", names)
	}

	if err := os.WriteFile(filepath.Join(dir, "new.txt"), []byte("hi"), 0644); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}

	names, err = List(DirAccessor(dir))
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if len(names) != 1 || names[0] != "new.txt" {
		t.Fatalf("expected catalog to reflect new file without restart, got %v", names)
	}
}

func TestSize(t *testing.T) {
	dir := t.TempDir()
	content := []byte("hello!\n")
	if err := os.WriteFile(filepath.Join(dir, "f.txt"), content, 0644); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}

	size, ok := Size(DirAccessor(dir), "f.txt")
	if !ok || size != int64(len(content)) {
		t.Fatalf("got size=%d ok=%v, want %d true", size, ok, len(content))
	}

	if _, ok := Size(DirAccessor(dir), "missing.txt"); ok {
		t.Fatalf("expected missing file to report ok=false")
	}
}
