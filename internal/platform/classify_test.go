package platform

import (
	"context"
	"testing"

	"github.com/use-agent/webgrabber/models"
)

func TestClassifySuffixMatch(t *testing.T) {
	cases := map[string]string{
		"https://github.com/foo/bar":        "github",
		"https://gist.github.com/foo":       "github",
		"https://my-app.vercel.app/":        "vercel",
		"https://my-app.herokuapp.com":      "heroku",
		"https://ghcr.io/owner/image:tag":   "ghcr",
		"https://git.sr.ht/~user/project":   "sourcehut-ssh",
	}
	for rawURL, wantID := range cases {
		got := Classify(context.Background(), rawURL)
		if got.ID != wantID {
			t.Errorf("Classify(%q).ID = %q, want %q", rawURL, got.ID, wantID)
		}
	}
}

func TestClassifyLongestSuffixWins(t *testing.T) {
	got := Classify(context.Background(), "https://git.sr.ht/~user/project")
	if got.Family != models.FamilySSHHosting {
		t.Fatalf("git.sr.ht should match the more specific ssh entry, got family %q", got.Family)
	}

	got = Classify(context.Background(), "https://sr.ht/~user")
	if got.Family != models.FamilyGitHosting {
		t.Fatalf("bare sr.ht should match the git hosting entry, got family %q", got.Family)
	}
}

func TestClassifyUnknownForUnrecognizedHost(t *testing.T) {
	got := Classify(context.Background(), "https://example-personal-blog.test/post/1")
	if got.Family != models.FamilyUnknown {
		t.Fatalf("expected unknown family, got %q", got.Family)
	}
	if got.ID != "unknown" {
		t.Fatalf("expected unknown id, got %q", got.ID)
	}
}

func TestClassifyInvalidURLReturnsUnknown(t *testing.T) {
	got := Classify(context.Background(), "://not a url")
	if got.Family != models.FamilyUnknown {
		t.Fatalf("expected unknown family for unparsable url, got %q", got.Family)
	}
}

func TestClassifyNeverReturnsError(t *testing.T) {
	// Classify has no error return; this test documents the contract that
	// every input, however malformed, yields a PlatformInfo.
	inputs := []string{"", "not-a-url-at-all", "http://", "ftp://also.not.http"}
	for _, in := range inputs {
		_ = Classify(context.Background(), in)
	}
}
