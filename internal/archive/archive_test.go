package archive

import (
	"archive/tar"
	"archive/zip"
	"compress/gzip"
	"io"
	"os"
	"path/filepath"
	"testing"
)

func writeSourceTree(t *testing.T) string {
	t.Helper()
	root := t.TempDir()
	if err := os.MkdirAll(filepath.Join(root, "sub"), 0o755); err != nil {
		t.Fatalf("MkdirAll: %v", err)
	}
	if err := os.WriteFile(filepath.Join(root, "index.html"), []byte("<html></html>"), 0o644); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}
	if err := os.WriteFile(filepath.Join(root, "sub", "style.css"), []byte("body{}"), 0o644); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}
	return root
}

func TestPackZipContainsAllFiles(t *testing.T) {
	root := writeSourceTree(t)
	dest := filepath.Join(t.TempDir(), "out.zip")

	if err := Pack(root, dest, FormatZip); err != nil {
		t.Fatalf("Pack: %v", err)
	}

	r, err := zip.OpenReader(dest)
	if err != nil {
		t.Fatalf("OpenReader: %v", err)
	}
	defer r.Close()

	names := map[string]bool{}
	for _, f := range r.File {
		names[f.Name] = true
	}
	if !names["index.html"] || !names["sub/style.css"] {
		t.Errorf("zip entries = %#v", names)
	}
}

func TestPackTarGzContainsAllFiles(t *testing.T) {
	root := writeSourceTree(t)
	dest := filepath.Join(t.TempDir(), "out.tar.gz")

	if err := Pack(root, dest, FormatTarGz); err != nil {
		t.Fatalf("Pack: %v", err)
	}

	f, err := os.Open(dest)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer f.Close()

	gr, err := gzip.NewReader(f)
	if err != nil {
		t.Fatalf("gzip.NewReader: %v", err)
	}
	defer gr.Close()

	tr := tar.NewReader(gr)
	names := map[string]bool{}
	for {
		hdr, err := tr.Next()
		if err == io.EOF {
			break
		}
		if err != nil {
			t.Fatalf("tar Next: %v", err)
		}
		names[hdr.Name] = true
	}
	if !names["index.html"] || !names["sub/style.css"] {
		t.Errorf("tar entries = %#v", names)
	}
}

func TestPackUnsupportedFormatErrors(t *testing.T) {
	root := writeSourceTree(t)
	dest := filepath.Join(t.TempDir(), "out.rar")
	if err := Pack(root, dest, "rar"); err == nil {
		t.Fatal("expected an error for an unsupported format")
	}
}
