package roletable_test

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/scopekeeper/scopekeeper/internal/roletable"
)

const sample = `
roles:
  - id: worker
    scopes:
      - "queue:claim:*"
  - id: admin
    scopes:
      - "assume:worker"
      - "admin:*"
clients:
  - id: cli-1
    accessToken: secret-token
    scopes:
      - "assume:admin"
`

func writeSample(t *testing.T) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "roles.yaml")
	if err := os.WriteFile(path, []byte(sample), 0o600); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestLoadParsesRolesAndClients(t *testing.T) {
	f, err := roletable.Load(writeSample(t))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	roles := f.Roles()
	if len(roles) != 2 {
		t.Fatalf("expected 2 roles, got %d", len(roles))
	}
	if string(roles[0].ID) != "worker" || string(roles[0].Scopes[0]) != "queue:claim:*" {
		t.Errorf("unexpected first role: %+v", roles[0])
	}

	clients := f.Clients()
	if len(clients) != 1 {
		t.Fatalf("expected 1 client, got %d", len(clients))
	}
	if clients[0].ID != "cli-1" || clients[0].AccessToken != "secret-token" {
		t.Errorf("unexpected client: %+v", clients[0])
	}
}

func TestLoadMissingFile(t *testing.T) {
	if _, err := roletable.Load(filepath.Join(t.TempDir(), "missing.yaml")); err == nil {
		t.Fatal("expected an error for a missing file")
	}
}
