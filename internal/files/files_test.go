package files

import (
	"bytes"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func newTestService(t *testing.T) *Service {
	t.Helper()
	svc, err := NewService(t.TempDir())
	if err != nil {
		t.Fatalf("NewService: %v", err)
	}
	return svc
}

func TestSaveAndResolve(t *testing.T) {
	svc := newTestService(t)

	rel, err := svc.Save(bytes.NewReader([]byte("fake png bytes")), "photo.PNG", FolderFoodImages)
	if err != nil {
		t.Fatalf("Save: %v", err)
	}
	if !strings.HasPrefix(rel, FolderFoodImages+"/") {
		t.Errorf("path %q not under %s/", rel, FolderFoodImages)
	}
	if !strings.HasSuffix(rel, ".png") {
		t.Errorf("extension not lowercased: %q", rel)
	}

	full, err := svc.Resolve(rel)
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	data, err := os.ReadFile(full)
	if err != nil {
		t.Fatalf("read saved file: %v", err)
	}
	if string(data) != "fake png bytes" {
		t.Errorf("content round trip: got %q", data)
	}
}

func TestSaveRejectsBadExtension(t *testing.T) {
	svc := newTestService(t)

	for _, name := range []string{"script.sh", "doc.pdf", "noext", "archive.tar.gz"} {
		if _, err := svc.Save(bytes.NewReader([]byte("x")), name, FolderProfilePictures); !errors.Is(err, ErrBadExtension) {
			t.Errorf("Save(%q): want ErrBadExtension, got %v", name, err)
		}
	}
}

func TestSaveRejectsOversizedFile(t *testing.T) {
	svc := newTestService(t)

	big := bytes.NewReader(make([]byte, MaxFileSize+1))
	if _, err := svc.Save(big, "big.jpg", FolderFoodImages); !errors.Is(err, ErrFileTooLarge) {
		t.Fatalf("want ErrFileTooLarge, got %v", err)
	}

	exact := bytes.NewReader(make([]byte, MaxFileSize))
	if _, err := svc.Save(exact, "exact.jpg", FolderFoodImages); err != nil {
		t.Fatalf("file at the limit should save: %v", err)
	}
}

func TestResolveRejectsTraversal(t *testing.T) {
	svc := newTestService(t)

	for _, p := range []string{"../etc/passwd", "..", "food_images/../../secret", "/etc/passwd", "."} {
		if _, err := svc.Resolve(p); !errors.Is(err, ErrNotFound) {
			t.Errorf("Resolve(%q): want ErrNotFound, got %v", p, err)
		}
	}
}

func TestDelete(t *testing.T) {
	svc := newTestService(t)

	rel, err := svc.Save(bytes.NewReader([]byte("bye")), "gone.gif", FolderFoodImages)
	if err != nil {
		t.Fatalf("Save: %v", err)
	}
	if err := svc.Delete(rel); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	if _, err := svc.Resolve(rel); !errors.Is(err, ErrNotFound) {
		t.Errorf("file still resolvable after delete: %v", err)
	}
	if err := svc.Delete(rel); !errors.Is(err, ErrNotFound) {
		t.Errorf("second delete: want ErrNotFound, got %v", err)
	}

	// Deleting must not follow paths outside the root.
	outside := filepath.Join(t.TempDir(), "keep.txt")
	if err := os.WriteFile(outside, []byte("keep"), 0o644); err != nil {
		t.Fatal(err)
	}
	if err := svc.Delete(outside); !errors.Is(err, ErrNotFound) {
		t.Errorf("absolute path delete: want ErrNotFound, got %v", err)
	}
}
