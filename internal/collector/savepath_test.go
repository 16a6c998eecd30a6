package collector

import (
	"strings"
	"testing"

	"github.com/use-agent/webgrabber/models"
)

func TestDerivePathBasic(t *testing.T) {
	got, err := DerivePath("https://example.com/a.png", models.KindImage)
	if err != nil {
		t.Fatalf("DerivePath: %v", err)
	}
	if got != "example.com/a.png" {
		t.Errorf("got %q", got)
	}
}

func TestDerivePathIndexFallback(t *testing.T) {
	got, err := DerivePath("https://example.com/blog/", models.KindHTML)
	if err != nil {
		t.Fatalf("DerivePath: %v", err)
	}
	if got != "example.com/blog/index.html" {
		t.Errorf("got %q", got)
	}
}

func TestDerivePathRootFallback(t *testing.T) {
	got, err := DerivePath("https://example.com/", models.KindHTML)
	if err != nil {
		t.Fatalf("DerivePath: %v", err)
	}
	if got != "example.com/index.html" {
		t.Errorf("got %q", got)
	}
}

func TestDerivePathHostPortReplacesColon(t *testing.T) {
	got, err := DerivePath("https://example.com:8443/a.js", models.KindJS)
	if err != nil {
		t.Fatalf("DerivePath: %v", err)
	}
	if !strings.HasPrefix(got, "example.com_8443/") {
		t.Errorf("expected host_port prefix, got %q", got)
	}
}

func TestDerivePathLongSegmentIsHashed(t *testing.T) {
	longSeg := strings.Repeat("x", 120)
	got, err := DerivePath("https://example.com/"+longSeg+"/y.js", models.KindJS)
	if err != nil {
		t.Fatalf("DerivePath: %v", err)
	}
	parts := strings.Split(got, "/")
	if len(parts) != 3 {
		t.Fatalf("expected 3 path segments, got %v", parts)
	}
	if len(parts[1]) > maxSegmentLength {
		t.Errorf("segment %q exceeds %d chars", parts[1], maxSegmentLength)
	}
	if parts[1] == longSeg {
		t.Error("long segment was not shortened")
	}
	if parts[2] != "y.js" {
		t.Errorf("filename should be untouched, got %q", parts[2])
	}
}

func TestDerivePathExtensionlessLastSegmentGetsIndexFile(t *testing.T) {
	got, err := DerivePath("https://example.com/download/report", models.KindImage)
	if err != nil {
		t.Fatalf("DerivePath: %v", err)
	}
	if got != "example.com/download/report/index.html" {
		t.Errorf("DerivePath = %q, want example.com/download/report/index.html for an extensionless last segment", got)
	}
}

func TestDerivePathNeverProducesUnsafeChars(t *testing.T) {
	got, err := DerivePath(`https://example.com/a<b>c:d"e|f?g*h.png`, models.KindImage)
	if err != nil {
		t.Fatalf("DerivePath: %v", err)
	}
	for _, c := range unsafeChars {
		if strings.ContainsRune(got, c) {
			t.Errorf("derived path %q contains unsafe char %q", got, c)
		}
	}
}

func TestDerivePathIsDeterministic(t *testing.T) {
	u := "https://example.com/" + strings.Repeat("z", 80) + "/page"
	first, err1 := DerivePath(u, models.KindHTML)
	second, err2 := DerivePath(u, models.KindHTML)
	if err1 != nil || err2 != nil {
		t.Fatalf("DerivePath errors: %v %v", err1, err2)
	}
	if first != second {
		t.Errorf("DerivePath is not deterministic: %q vs %q", first, second)
	}
}

func TestDerivePathPercentDecodesSegments(t *testing.T) {
	got, err := DerivePath("https://example.com/a%20b/c.html", models.KindHTML)
	if err != nil {
		t.Fatalf("DerivePath: %v", err)
	}
	if got != "example.com/a b/c.html" {
		t.Errorf("got %q", got)
	}
}
