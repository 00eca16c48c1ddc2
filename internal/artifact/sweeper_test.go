package artifact

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func writeAged(t *testing.T, dir, name string, age time.Duration) string {
	t.Helper()
	path := filepath.Join(dir, name)
	if err := os.WriteFile(path, []byte("img"), 0o644); err != nil {
		t.Fatalf("write %s: %v", name, err)
	}
	old := time.Now().Add(-age)
	if err := os.Chtimes(path, old, old); err != nil {
		t.Fatalf("chtimes %s: %v", name, err)
	}
	return path
}

func TestSweepKeepsReferencedAndDeletesUnreferenced(t *testing.T) {
	dir := t.TempDir()
	store, err := NewStore(dir)
	if err != nil {
		t.Fatalf("NewStore() error = %v", err)
	}

	referencedOld := writeAged(t, dir, "generate_1_aaaaaaaa_ref.png", 48*time.Hour)
	unreferencedOld := writeAged(t, dir, "edit_1_bbbbbbbb_unref.png", 48*time.Hour)
	fresh := writeAged(t, dir, "temp_1_cccccccc_fresh.png", time.Hour)
	foreign := writeAged(t, dir, "unrelated.png", 48*time.Hour)

	sweeper := NewSweeper(store, 24*time.Hour, func() map[string]struct{} {
		return map[string]struct{}{referencedOld: {}}
	})

	deleted, err := sweeper.Sweep()
	if err != nil {
		t.Fatalf("Sweep() error = %v", err)
	}
	if deleted != 1 {
		t.Fatalf("Sweep() deleted %d files, want 1", deleted)
	}

	if !store.Exists(referencedOld) {
		t.Fatalf("referenced old file was deleted")
	}
	if store.Exists(unreferencedOld) {
		t.Fatalf("unreferenced old file survived")
	}
	if !store.Exists(fresh) {
		t.Fatalf("fresh file was deleted")
	}
	if !store.Exists(foreign) {
		t.Fatalf("file outside the naming scheme was deleted")
	}
}

func writeStaleAt(t *testing.T, dir, name string, mod time.Time) string {
	t.Helper()
	path := filepath.Join(dir, name)
	if err := os.WriteFile(path, []byte("img"), 0o644); err != nil {
		t.Fatalf("write %s: %v", name, err)
	}
	if err := os.Chtimes(path, mod, mod); err != nil {
		t.Fatalf("chtimes %s: %v", name, err)
	}
	return path
}

func TestRunIfDueGating(t *testing.T) {
	dir := t.TempDir()
	store, err := NewStore(dir)
	if err != nil {
		t.Fatalf("NewStore() error = %v", err)
	}

	sweeper := NewSweeper(store, 24*time.Hour, nil)
	base := time.Date(2026, 3, 1, 3, 0, 0, 0, time.Local) // inside the night window
	sweeper.now = func() time.Time { return base }

	stale := writeStaleAt(t, dir, "temp_1_dddddddd_x.png", base.Add(-48*time.Hour))
	sweeper.RunIfDue()
	if store.Exists(stale) {
		t.Fatalf("night-window sweep did not run")
	}

	// Daytime, recently swept: nothing should happen.
	stale2 := writeStaleAt(t, dir, "temp_1_eeeeeeee_y.png", base.Add(-48*time.Hour))
	base = time.Date(2026, 3, 1, 12, 0, 0, 0, time.Local)
	sweeper.RunIfDue()
	if !store.Exists(stale2) {
		t.Fatalf("daytime sweep ran despite a recent sweep")
	}

	// More than a day since the last sweep: overdue path triggers.
	base = base.Add(26 * time.Hour)
	sweeper.RunIfDue()
	if store.Exists(stale2) {
		t.Fatalf("overdue sweep did not run")
	}
}
