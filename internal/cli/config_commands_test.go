package cli

import (
	"os"
	"path/filepath"
	"testing"
)

func TestLoadApplicationsParsesYAML(t *testing.T) {
	path := filepath.Join(t.TempDir(), "apps.yaml")
	doc := `
- id: web
  name: web
  app_type: python
  work_dir: /tmp
  command: "python app.py"
  startup_timeout_seconds: 10
`
	if err := os.WriteFile(path, []byte(doc), 0o644); err != nil {
		t.Fatalf("write fixture: %v", err)
	}

	apps, err := loadApplications(path)
	if err != nil {
		t.Fatalf("loadApplications() error = %v", err)
	}
	if len(apps) != 1 || apps[0].ID != "web" || apps[0].HandlerTag != "python" {
		t.Fatalf("apps = %+v, want one web/python entry", apps)
	}
}

func TestLoadApplicationsParsesJSON(t *testing.T) {
	path := filepath.Join(t.TempDir(), "apps.json")
	doc := `[{"id":"api","name":"api","app_type":"npm","work_dir":"/tmp","command":"npm start"}]`
	if err := os.WriteFile(path, []byte(doc), 0o644); err != nil {
		t.Fatalf("write fixture: %v", err)
	}

	apps, err := loadApplications(path)
	if err != nil {
		t.Fatalf("loadApplications() error = %v", err)
	}
	if len(apps) != 1 || apps[0].ID != "api" {
		t.Fatalf("apps = %+v, want one api entry", apps)
	}
}

func TestLoadApplicationsMissingFile(t *testing.T) {
	if _, err := loadApplications(filepath.Join(t.TempDir(), "missing.yaml")); err == nil {
		t.Fatal("expected error for missing file")
	}
}
