// Copyright 2026 The NDS Authors
// SPDX-License-Identifier: Apache-2.0

package session

import (
	"errors"
	"os"
	"testing"
	"time"
)

// testDirs returns a layout rooted in a fresh temp directory.
func testDirs(t *testing.T) Dirs {
	t.Helper()
	dirs := Dirs{Root: t.TempDir()}
	if err := dirs.EnsureLayout(); err != nil {
		t.Fatalf("EnsureLayout: %v", err)
	}
	return dirs
}

// liveMeta builds a metadata record whose supervisor pid is this test
// process, so liveness checks pass.
func liveMeta(id, name string) Metadata {
	return Metadata{
		ID:         id,
		Name:       name,
		PID:        os.Getpid(),
		Socket:     "/tmp/" + id + ".sock",
		CreatedAt:  time.Now(),
		User:       "tester",
		Shell:      "/bin/sh",
		Argv:       []string{"/bin/sh"},
		WorkingDir: "/",
	}
}

func TestMetadataSaveLoad(t *testing.T) {
	t.Parallel()
	dirs := testDirs(t)

	meta := liveMeta("deadbeef", "build")
	if err := meta.Save(dirs); err != nil {
		t.Fatalf("Save: %v", err)
	}

	loaded, err := Load(dirs, "deadbeef")
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if loaded.ID != meta.ID || loaded.Name != meta.Name || loaded.PID != meta.PID {
		t.Errorf("loaded: got %+v, want %+v", loaded, meta)
	}
	if loaded.Shell != "/bin/sh" || len(loaded.Argv) != 1 {
		t.Errorf("shell fields: got %+v", loaded)
	}
}

func TestLoadMissingSession(t *testing.T) {
	t.Parallel()
	dirs := testDirs(t)

	if _, err := Load(dirs, "cafef00d"); !errors.Is(err, ErrSessionNotFound) {
		t.Errorf("Load missing: got %v, want ErrSessionNotFound", err)
	}
}

func TestLoadStaleSessionReportsNotFound(t *testing.T) {
	t.Parallel()
	dirs := testDirs(t)

	meta := liveMeta("deadbeef", "")
	meta.PID = 0 // no such process
	if err := meta.Save(dirs); err != nil {
		t.Fatalf("Save: %v", err)
	}

	if _, err := Load(dirs, "deadbeef"); !errors.Is(err, ErrSessionNotFound) {
		t.Errorf("Load stale: got %v, want ErrSessionNotFound", err)
	}
	// The stale record stays on disk for clean to find.
	if _, err := os.Stat(dirs.MetadataPath("deadbeef")); err != nil {
		t.Errorf("stale record removed: %v", err)
	}
}

func TestListSortsByCreationAndSkipsStale(t *testing.T) {
	t.Parallel()
	dirs := testDirs(t)

	older := liveMeta("aaaa1111", "older")
	older.CreatedAt = time.Now().Add(-time.Hour)
	newer := liveMeta("bbbb2222", "newer")
	stale := liveMeta("cccc3333", "stale")
	stale.PID = 0

	for _, meta := range []Metadata{newer, older, stale} {
		if err := meta.Save(dirs); err != nil {
			t.Fatalf("Save %s: %v", meta.ID, err)
		}
	}

	sessions, err := List(dirs)
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if len(sessions) != 2 {
		t.Fatalf("got %d sessions, want 2", len(sessions))
	}
	if sessions[0].ID != "aaaa1111" || sessions[1].ID != "bbbb2222" {
		t.Errorf("order: got %s, %s", sessions[0].ID, sessions[1].ID)
	}
}

func TestListEmptyRoot(t *testing.T) {
	t.Parallel()

	// No layout created at all: an empty listing, not an error.
	sessions, err := List(Dirs{Root: t.TempDir()})
	if err != nil || sessions != nil {
		t.Errorf("List on empty root: got %v, %v", sessions, err)
	}
}

func TestResolve(t *testing.T) {
	t.Parallel()
	dirs := testDirs(t)

	for _, meta := range []Metadata{
		liveMeta("aaaa1111", "build"),
		liveMeta("aaab2222", "backup"),
		liveMeta("cccc3333", ""),
	} {
		if err := meta.Save(dirs); err != nil {
			t.Fatalf("Save %s: %v", meta.ID, err)
		}
	}

	cases := []struct {
		name      string
		reference string
		wantID    string
		wantErr   error
	}{
		{"exact id", "aaaa1111", "aaaa1111", nil},
		{"exact name", "backup", "aaab2222", nil},
		{"id prefix", "cc", "cccc3333", nil},
		{"name prefix", "bu", "aaaa1111", nil},
		{"ambiguous id prefix", "aaa", "", ErrAmbiguous},
		{"ambiguous name prefix", "b", "", ErrAmbiguous},
		{"no match", "zzzz", "", ErrSessionNotFound},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			meta, err := Resolve(dirs, tc.reference)
			if tc.wantErr != nil {
				if !errors.Is(err, tc.wantErr) {
					t.Fatalf("Resolve(%q): got %v, want %v", tc.reference, err, tc.wantErr)
				}
				return
			}
			if err != nil {
				t.Fatalf("Resolve(%q): %v", tc.reference, err)
			}
			if meta.ID != tc.wantID {
				t.Errorf("Resolve(%q): got %s, want %s", tc.reference, meta.ID, tc.wantID)
			}
		})
	}
}

func TestCheckNameFree(t *testing.T) {
	t.Parallel()
	dirs := testDirs(t)

	meta := liveMeta("aaaa1111", "build")
	if err := meta.Save(dirs); err != nil {
		t.Fatalf("Save: %v", err)
	}

	if err := CheckNameFree(dirs, "build", ""); !errors.Is(err, ErrNameInUse) {
		t.Errorf("taken name: got %v, want ErrNameInUse", err)
	}
	if err := CheckNameFree(dirs, "build", "aaaa1111"); err != nil {
		t.Errorf("own name excluded: got %v", err)
	}
	if err := CheckNameFree(dirs, "other", ""); err != nil {
		t.Errorf("free name: got %v", err)
	}
	if err := CheckNameFree(dirs, "", ""); err != nil {
		t.Errorf("empty name: got %v", err)
	}
}

func TestRename(t *testing.T) {
	t.Parallel()
	dirs := testDirs(t)

	if err := liveMeta("aaaa1111", "old").Save(dirs); err != nil {
		t.Fatalf("Save: %v", err)
	}
	if err := liveMeta("bbbb2222", "taken").Save(dirs); err != nil {
		t.Fatalf("Save: %v", err)
	}

	meta, err := Rename(dirs, "aaaa1111", "fresh")
	if err != nil {
		t.Fatalf("Rename: %v", err)
	}
	if meta.Name != "fresh" {
		t.Errorf("renamed: got %q", meta.Name)
	}
	loaded, err := Load(dirs, "aaaa1111")
	if err != nil || loaded.Name != "fresh" {
		t.Errorf("persisted name: got %q, %v", loaded.Name, err)
	}

	if _, err := Rename(dirs, "aaaa1111", "taken"); !errors.Is(err, ErrNameInUse) {
		t.Errorf("rename to taken name: got %v, want ErrNameInUse", err)
	}

	// Empty name clears.
	meta, err = Rename(dirs, "aaaa1111", "")
	if err != nil || meta.Name != "" {
		t.Errorf("clear name: got %q, %v", meta.Name, err)
	}
}

func TestFindStale(t *testing.T) {
	t.Parallel()
	dirs := testDirs(t)

	if err := liveMeta("aaaa1111", "live").Save(dirs); err != nil {
		t.Fatalf("Save: %v", err)
	}
	dead := liveMeta("bbbb2222", "dead")
	dead.PID = 0
	if err := dead.Save(dirs); err != nil {
		t.Fatalf("Save: %v", err)
	}
	// An unparseable record is stale too.
	if err := os.WriteFile(dirs.MetadataPath("cccc3333"), []byte("not json"), 0o600); err != nil {
		t.Fatalf("write corrupt record: %v", err)
	}

	stale, err := FindStale(dirs)
	if err != nil {
		t.Fatalf("FindStale: %v", err)
	}
	if len(stale) != 2 {
		t.Fatalf("got %d stale records, want 2: %+v", len(stale), stale)
	}
	found := map[string]bool{}
	for _, s := range stale {
		found[s.ID] = true
	}
	if !found["bbbb2222"] || !found["cccc3333"] {
		t.Errorf("stale ids: %v", found)
	}
}

func TestRemoveFiles(t *testing.T) {
	t.Parallel()
	dirs := testDirs(t)

	meta := liveMeta("aaaa1111", "")
	if err := meta.Save(dirs); err != nil {
		t.Fatalf("Save: %v", err)
	}
	if err := WriteStatus(dirs, "aaaa1111", Status{AttachedClients: 1, UpdatedAt: time.Now()}); err != nil {
		t.Fatalf("WriteStatus: %v", err)
	}

	if err := RemoveFiles(dirs, "aaaa1111"); err != nil {
		t.Fatalf("RemoveFiles: %v", err)
	}
	if _, err := os.Stat(dirs.MetadataPath("aaaa1111")); !os.IsNotExist(err) {
		t.Errorf("metadata still present")
	}
	if _, err := os.Stat(dirs.StatusPath("aaaa1111")); !os.IsNotExist(err) {
		t.Errorf("status still present")
	}

	// Removing again is a no-op.
	if err := RemoveFiles(dirs, "aaaa1111"); err != nil {
		t.Errorf("second RemoveFiles: %v", err)
	}
}

func TestNewIDShape(t *testing.T) {
	t.Parallel()

	seen := map[string]bool{}
	for i := 0; i < 32; i++ {
		id, err := NewID()
		if err != nil {
			t.Fatalf("NewID: %v", err)
		}
		if len(id) != 8 {
			t.Fatalf("id length: got %q", id)
		}
		for _, c := range id {
			if !(c >= '0' && c <= '9' || c >= 'a' && c <= 'f') {
				t.Fatalf("id %q has non-hex character", id)
			}
		}
		if seen[id] {
			t.Fatalf("duplicate id %q in 32 draws", id)
		}
		seen[id] = true
	}
}

func TestDisplayName(t *testing.T) {
	t.Parallel()

	named := Metadata{ID: "deadbeef", Name: "build"}
	if got := named.DisplayName(); got != "build [deadbeef]" {
		t.Errorf("named: got %q", got)
	}
	unnamed := Metadata{ID: "deadbeef"}
	if got := unnamed.DisplayName(); got != "deadbeef" {
		t.Errorf("unnamed: got %q", got)
	}
}

func TestProcessAlive(t *testing.T) {
	t.Parallel()

	if !ProcessAlive(os.Getpid()) {
		t.Error("own process reported dead")
	}
	if ProcessAlive(0) || ProcessAlive(-5) {
		t.Error("non-positive pid reported alive")
	}
}
