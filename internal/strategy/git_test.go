package strategy

import (
	"context"
	"testing"
)

func TestRepoNameFromURL(t *testing.T) {
	cases := map[string]string{
		"https://github.com/acme/widget":       "widget",
		"https://github.com/acme/widget.git":   "widget",
		"https://github.com/acme/widget/":      "widget",
		"ssh://git@github.com/acme/widget.git": "widget",
		"not a url at all %%%":                 "repo",
	}
	for in, want := range cases {
		if got := repoNameFromURL(in); got != want {
			t.Errorf("repoNameFromURL(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestAuthenticatedCloneURLNoTokenReturnsOriginal(t *testing.T) {
	s := NewGitStrategy(Params{URL: "https://github.com/acme/widget"})
	got, err := s.authenticatedCloneURL(context.Background())
	if err != nil {
		t.Fatalf("authenticatedCloneURL: %v", err)
	}
	if got != "https://github.com/acme/widget" {
		t.Errorf("got %q", got)
	}
}

func TestAuthenticatedCloneURLInjectsToken(t *testing.T) {
	dir := t.TempDir()
	store := mustOpenStore(t, dir)
	if err := store.Put("github", credentialRecordFor("github", "tok123")); err != nil {
		t.Fatalf("Put: %v", err)
	}

	s := NewGitStrategy(Params{
		URL:         "https://github.com/acme/widget",
		Credentials: store,
		Platform:    platformInfoFor("github"),
	})

	got, err := s.authenticatedCloneURL(context.Background())
	if err != nil {
		t.Fatalf("authenticatedCloneURL: %v", err)
	}
	const want = "https://tok123@github.com/acme/widget"
	if got != want {
		t.Errorf("got %q, want %q", got, want)
	}
}
