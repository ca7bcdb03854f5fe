package files

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/greywolfdl/mangadex-wui/internal/models"
)

func newFixture(t *testing.T) (*Service, string) {
	t.Helper()
	root := t.TempDir()
	if err := os.MkdirAll(filepath.Join(root, "Some Title"), 0755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(root, "Some Title", "Vol. 1 Ch. 1.cbz"), []byte("archive"), 0644); err != nil {
		t.Fatal(err)
	}
	// A file outside the cache root that traversal attempts aim at
	if err := os.WriteFile(filepath.Join(filepath.Dir(root), "secret.cbz"), []byte("secret"), 0644); err != nil {
		t.Fatal(err)
	}
	return NewService(root), root
}

func TestResolveSuccess(t *testing.T) {
	svc, root := newFixture(t)

	resolved, err := svc.Resolve("Some Title/Vol. 1 Ch. 1.cbz")
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if resolved.AbsolutePath != filepath.Join(root, "Some Title", "Vol. 1 Ch. 1.cbz") {
		t.Errorf("absolute path = %q", resolved.AbsolutePath)
	}
	if resolved.FileName != "Vol. 1 Ch. 1.cbz" {
		t.Errorf("file name = %q", resolved.FileName)
	}
	if resolved.SeriesKey != "Some Title" {
		t.Errorf("series key = %q", resolved.SeriesKey)
	}
	if resolved.Size != int64(len("archive")) {
		t.Errorf("size = %d", resolved.Size)
	}
}

func TestResolveTraversalRejected(t *testing.T) {
	svc, _ := newFixture(t)

	attempts := []string{
		"../secret.cbz",
		"Some Title/../../secret.cbz",
		"Some Title/..",
		`..\secret.cbz`,
		"/etc/passwd.cbz",
	}
	for _, rel := range attempts {
		if _, err := svc.Resolve(rel); !errors.Is(err, models.ErrPathTraversal) {
			t.Errorf("Resolve(%q) err = %v, want ErrPathTraversal", rel, err)
		}
	}
}

func TestResolveExtensionRejected(t *testing.T) {
	svc, _ := newFixture(t)

	for _, rel := range []string{"Some Title/notes.txt", "Some Title/archive.zip", "Some Title/noext"} {
		if _, err := svc.Resolve(rel); !errors.Is(err, models.ErrBadExtension) {
			t.Errorf("Resolve(%q) err = %v, want ErrBadExtension", rel, err)
		}
	}
}

func TestResolveMissingFile(t *testing.T) {
	svc, _ := newFixture(t)

	if _, err := svc.Resolve("Some Title/Vol. 9 Ch. 9.cbz"); !errors.Is(err, models.ErrFileNotFound) {
		t.Errorf("err = %v, want ErrFileNotFound", err)
	}
	if _, err := svc.Resolve(""); !errors.Is(err, models.ErrFileNotFound) {
		t.Errorf("empty path err = %v, want ErrFileNotFound", err)
	}
}

func TestResolveSeriesFile(t *testing.T) {
	svc, _ := newFixture(t)

	if _, err := svc.ResolveSeriesFile("Some Title", "Vol. 1 Ch. 1.cbz"); err != nil {
		t.Fatalf("ResolveSeriesFile: %v", err)
	}
	if _, err := svc.ResolveSeriesFile("Some Title/..", "x.cbz"); !errors.Is(err, models.ErrPathTraversal) {
		t.Errorf("series traversal err = %v, want ErrPathTraversal", err)
	}
	if _, err := svc.ResolveSeriesFile("Some Title", "sub/x.cbz"); !errors.Is(err, models.ErrPathTraversal) {
		t.Errorf("nested name err = %v, want ErrPathTraversal", err)
	}
}

func TestRemoveSeries(t *testing.T) {
	svc, root := newFixture(t)

	if err := svc.RemoveSeries("Some Title"); err != nil {
		t.Fatalf("RemoveSeries: %v", err)
	}
	if _, err := os.Stat(filepath.Join(root, "Some Title")); !os.IsNotExist(err) {
		t.Error("series directory survived removal")
	}

	if err := svc.RemoveSeries("Some Title"); !errors.Is(err, models.ErrSeriesNotFound) {
		t.Errorf("second removal err = %v, want ErrSeriesNotFound", err)
	}
	for _, key := range []string{"..", "a/b", `a\b`, ""} {
		if err := svc.RemoveSeries(key); !errors.Is(err, models.ErrPathTraversal) {
			t.Errorf("RemoveSeries(%q) err = %v, want ErrPathTraversal", key, err)
		}
	}
}
