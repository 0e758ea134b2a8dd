package credstore

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"

	"blastd/pkg/logx"
)

func newStore(t *testing.T) (*Store, string) {
	t.Helper()
	dir := t.TempDir()
	s, err := New(dir, logx.Nop())
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return s, dir
}

func TestNewRequiresRoot(t *testing.T) {
	t.Parallel()
	if _, err := New("  ", logx.Nop()); err == nil {
		t.Fatal("expected an error for empty root")
	}
}

func TestMaterializeAndReadBack(t *testing.T) {
	t.Parallel()
	s, dir := newStore(t)

	raw := []byte("secret-token")
	h, err := s.Materialize("sess-1", raw)
	if err != nil {
		t.Fatalf("Materialize: %v", err)
	}

	auth, err := h.AuthMaterial()
	if err != nil {
		t.Fatalf("AuthMaterial: %v", err)
	}
	if !bytes.Equal(auth.Data, raw) {
		t.Fatalf("auth data = %q, want %q", auth.Data, raw)
	}

	info, err := os.Stat(filepath.Join(dir, "sess-1", credFileName))
	if err != nil {
		t.Fatalf("credential file missing: %v", err)
	}
	if perm := info.Mode().Perm(); perm != 0o600 {
		t.Fatalf("credential file mode = %o, want 600", perm)
	}
}

func TestHandleSeesRefreshedCredentials(t *testing.T) {
	t.Parallel()
	s, _ := newStore(t)

	h, err := s.Materialize("sess-1", []byte("old"))
	if err != nil {
		t.Fatalf("Materialize: %v", err)
	}
	if _, err := s.Materialize("sess-1", []byte("new")); err != nil {
		t.Fatalf("re-Materialize: %v", err)
	}

	auth, err := h.AuthMaterial()
	if err != nil {
		t.Fatalf("AuthMaterial: %v", err)
	}
	if string(auth.Data) != "new" {
		t.Fatalf("auth data = %q, want refreshed credentials", auth.Data)
	}
}

func TestCleanupRemovesArtifacts(t *testing.T) {
	t.Parallel()
	s, dir := newStore(t)

	h, err := s.Materialize("sess-1", []byte("x"))
	if err != nil {
		t.Fatalf("Materialize: %v", err)
	}
	if err := s.Cleanup("sess-1"); err != nil {
		t.Fatalf("Cleanup: %v", err)
	}
	if _, err := os.Stat(filepath.Join(dir, "sess-1")); !os.IsNotExist(err) {
		t.Fatalf("session dir survived cleanup (err=%v)", err)
	}
	if _, err := h.AuthMaterial(); err == nil {
		t.Fatal("AuthMaterial succeeded after cleanup")
	}
	// Cleaning an already-clean session is fine.
	if err := s.Cleanup("sess-1"); err != nil {
		t.Fatalf("second Cleanup: %v", err)
	}
}

func TestRejectsPathTraversalIDs(t *testing.T) {
	t.Parallel()
	s, _ := newStore(t)
	for _, id := range []string{"", "  ", ".", "..", "a/b", `a\b`, "../escape"} {
		if _, err := s.Materialize(id, []byte("x")); err == nil {
			t.Errorf("Materialize accepted id %q", id)
		}
		if err := s.Cleanup(id); err == nil {
			t.Errorf("Cleanup accepted id %q", id)
		}
	}
}
