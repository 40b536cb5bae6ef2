package main

import (
	"bytes"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"testing"
)

// setupConfig writes a config pointing at a fresh SQLite file.
func setupConfig(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	path := filepath.Join(dir, "toolgate.yaml")
	content := "database:\n  dsn: " + filepath.Join(dir, "toolgate.db") + "\nauth:\n  bcrypt_cost: 4\n"
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return path
}

func run(t *testing.T, stdin string, args ...string) (string, error) {
	t.Helper()
	cmd := newRootCmd()
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&out)
	cmd.SetIn(strings.NewReader(stdin))
	cmd.SetArgs(args)
	err := cmd.Execute()
	return out.String(), err
}

var keyIDPattern = regexp.MustCompile(`Key ID: (\S+)`)

func TestKeysLifecycle(t *testing.T) {
	cfg := setupConfig(t)

	out, err := run(t, "", "-c", cfg, "keys", "create", "--owner", "acme", "--name", "ci", "--tier", "professional")
	if err != nil {
		t.Fatalf("keys create: %v\n%s", err, out)
	}
	if !strings.Contains(out, "tk_") {
		t.Errorf("create output missing raw key:\n%s", out)
	}
	m := keyIDPattern.FindStringSubmatch(out)
	if m == nil {
		t.Fatalf("create output missing key id:\n%s", out)
	}
	id := m[1]

	out, err = run(t, "", "-c", cfg, "keys", "list", "--owner", "acme")
	if err != nil {
		t.Fatalf("keys list: %v", err)
	}
	if !strings.Contains(out, id) || !strings.Contains(out, "professional") || !strings.Contains(out, "active") {
		t.Errorf("list output:\n%s", out)
	}

	if out, err = run(t, "", "-c", cfg, "keys", "set-tier", id, "enterprise"); err != nil {
		t.Fatalf("keys set-tier: %v\n%s", err, out)
	}
	if !strings.Contains(out, "now enterprise") {
		t.Errorf("set-tier output:\n%s", out)
	}

	// Declining the prompt leaves the key active.
	out, err = run(t, "n\n", "-c", cfg, "keys", "revoke", id)
	if err != nil || !strings.Contains(out, "Aborted") {
		t.Fatalf("declined revoke: %v\n%s", err, out)
	}

	if out, err = run(t, "", "-c", cfg, "keys", "revoke", "--yes", id); err != nil {
		t.Fatalf("keys revoke: %v\n%s", err, out)
	}
	out, _ = run(t, "", "-c", cfg, "keys", "list", "--owner", "acme")
	if !strings.Contains(out, "revoked") {
		t.Errorf("list after revoke:\n%s", out)
	}

	out, _ = run(t, "", "-c", cfg, "keys", "revoke", "--yes", id)
	if !strings.Contains(out, "already revoked") {
		t.Errorf("second revoke output:\n%s", out)
	}
}

func TestKeysErrors(t *testing.T) {
	cfg := setupConfig(t)

	tests := []struct {
		name    string
		args    []string
		wantErr string
	}{
		{"missing owner", []string{"keys", "create"}, "owner"},
		{"sandbox tier", []string{"keys", "create", "--owner", "acme", "--tier", "sandbox"}, "unknown tier"},
		{"unknown key revoke", []string{"keys", "revoke", "-y", "key_missing"}, "key not found"},
		{"unknown key set-tier", []string{"keys", "set-tier", "key_missing", "free"}, "key not found"},
		{"bad tier set-tier", []string{"keys", "set-tier", "key_missing", "gold"}, "unknown tier"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := run(t, "", append([]string{"-c", cfg}, tt.args...)...)
			if err == nil || !strings.Contains(err.Error(), tt.wantErr) {
				t.Errorf("error = %v, want it to mention %q", err, tt.wantErr)
			}
		})
	}
}

func TestKeysRequireSQLite(t *testing.T) {
	path := filepath.Join(t.TempDir(), "toolgate.yaml")
	if err := os.WriteFile(path, []byte("database:\n  driver: memory\n"), 0644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	_, err := run(t, "", "-c", path, "keys", "list", "--owner", "acme")
	if err == nil || !strings.Contains(err.Error(), "sqlite") {
		t.Errorf("error = %v, want sqlite driver requirement", err)
	}
}

func TestToolsImport(t *testing.T) {
	cfg := setupConfig(t)
	file := filepath.Join(t.TempDir(), "tools.json")
	data := `{
  "tools": [
    {"slug": "Claude", "name": "Claude", "category": "assistant", "overallScore": 9.1},
    {"slug": "cursor", "name": "Cursor", "category": "ide", "overallScore": 8.4}
  ],
  "changelog": [
    {"slug": "claude", "version": "2024.1", "summary": "Initial review"}
  ]
}`
	if err := os.WriteFile(file, []byte(data), 0644); err != nil {
		t.Fatalf("write tools: %v", err)
	}

	out, err := run(t, "", "-c", cfg, "tools", "import", file)
	if err != nil {
		t.Fatalf("tools import: %v\n%s", err, out)
	}
	if !strings.Contains(out, "Imported 2 tools (2 created, 0 updated), 1 changelog entries") {
		t.Errorf("import output:\n%s", out)
	}

	out, err = run(t, "", "-c", cfg, "tools", "import", file)
	if err != nil {
		t.Fatalf("second import: %v", err)
	}
	if !strings.Contains(out, "(0 created, 2 updated)") {
		t.Errorf("second import output:\n%s", out)
	}
}

func TestToolsImport_InvalidRecord(t *testing.T) {
	cfg := setupConfig(t)
	file := filepath.Join(t.TempDir(), "tools.json")
	if err := os.WriteFile(file, []byte(`{"tools": [{"slug": "bad slug!", "name": "x"}]}`), 0644); err != nil {
		t.Fatalf("write tools: %v", err)
	}
	_, err := run(t, "", "-c", cfg, "tools", "import", file)
	if err == nil || !strings.Contains(err.Error(), "tools[0]") {
		t.Errorf("error = %v, want tools[0] validation error", err)
	}
}

func TestValidate(t *testing.T) {
	cfg := setupConfig(t)

	out, err := run(t, "", "-c", cfg, "validate", "--check-database")
	if err != nil {
		t.Fatalf("validate: %v\n%s", err, out)
	}
	for _, want := range []string{"Configuration valid", "Database writable", "Schema version 001_init", "free:", "100 per day", "unlimited per day"} {
		if !strings.Contains(out, want) {
			t.Errorf("validate output missing %q:\n%s", want, out)
		}
	}

	if _, err := run(t, "", "-c", filepath.Join(t.TempDir(), "missing.yaml"), "validate"); err == nil {
		t.Error("validate should fail for a missing file")
	}
}

func TestVersion(t *testing.T) {
	out, err := run(t, "", "version")
	if err != nil {
		t.Fatalf("version: %v", err)
	}
	if !strings.HasPrefix(out, "toolgate dev") {
		t.Errorf("version output = %q", out)
	}
}
