package strategy

import (
	"testing"

	"github.com/use-agent/webgrabber/internal/credential"
	"github.com/use-agent/webgrabber/models"
)

func mustOpenStore(t *testing.T, dir string) *credential.Store {
	t.Helper()
	store, err := credential.Open(dir)
	if err != nil {
		t.Fatalf("credential.Open: %v", err)
	}
	return store
}

func credentialRecordFor(platformID, secret string) models.CredentialRecord {
	return models.CredentialRecord{PlatformID: platformID, Secret: secret}
}

func platformInfoFor(id string) models.PlatformInfo {
	return models.PlatformInfo{ID: id, Family: models.FamilyGitHosting, Name: id}
}
