package strategy

import (
	"archive/tar"
	"bytes"
	"os"
	"path/filepath"
	"testing"

	"github.com/use-agent/webgrabber/models"
)

func TestImageRefFromURLStripsScheme(t *testing.T) {
	cases := map[string]string{
		"docker://ghcr.io/acme/widget:latest": "ghcr.io/acme/widget:latest",
		"https://docker.io/acme/widget":       "docker.io/acme/widget",
		"ghcr.io/acme/widget":                 "ghcr.io/acme/widget",
	}
	for in, want := range cases {
		if got := imageRefFromURL(in); got != want {
			t.Errorf("imageRefFromURL(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestSanitizeRef(t *testing.T) {
	if got := sanitizeRef("ghcr.io/acme/widget:latest"); got != "ghcr.io_acme_widget_latest" {
		t.Errorf("sanitizeRef = %q", got)
	}
}

func TestIsLayerEntry(t *testing.T) {
	if !isLayerEntry("a1b2c3/layer.tar") {
		t.Error("expected layer.tar entry to match")
	}
	if !isLayerEntry("blobs/sha256/abc.tar") {
		t.Error("expected .tar blob entry to match")
	}
	if isLayerEntry("manifest.json") {
		t.Error("manifest.json should not match")
	}
}

func TestExtractLayerWritesFilesAndSkipsWhiteouts(t *testing.T) {
	var buf bytes.Buffer
	tw := tar.NewWriter(&buf)
	writeTarFile(t, tw, "usr/bin/app", "binary-content")
	writeTarFile(t, tw, "usr/bin/.wh.deleted", "")
	if err := tw.Close(); err != nil {
		t.Fatalf("tar Close: %v", err)
	}

	root := t.TempDir()
	tree := make(models.FileTree)
	if err := extractLayer(buf.Bytes(), root, tree); err != nil {
		t.Fatalf("extractLayer: %v", err)
	}

	data, err := os.ReadFile(filepath.Join(root, "usr/bin/app"))
	if err != nil {
		t.Fatalf("ReadFile: %v", err)
	}
	if string(data) != "binary-content" {
		t.Errorf("content = %q", data)
	}
	if _, ok := tree["usr/bin/app"]; !ok {
		t.Errorf("tree missing usr/bin/app: %#v", tree)
	}
	if _, err := os.Stat(filepath.Join(root, "usr/bin/.wh.deleted")); !os.IsNotExist(err) {
		t.Error("whiteout marker should not have been written as a file")
	}
}

func writeTarFile(t *testing.T, tw *tar.Writer, name, content string) {
	t.Helper()
	hdr := &tar.Header{
		Name: name,
		Mode: 0o644,
		Size: int64(len(content)),
	}
	if err := tw.WriteHeader(hdr); err != nil {
		t.Fatalf("WriteHeader: %v", err)
	}
	if _, err := tw.Write([]byte(content)); err != nil {
		t.Fatalf("Write: %v", err)
	}
}
