package defaults

import (
	"os"
	"path/filepath"
	"slices"
	"testing"
)

func TestListDefaults(t *testing.T) {
	files, err := ListDefaults()
	if err != nil {
		t.Fatalf("ListDefaults failed: %v", err)
	}

	expected := []string{"config.yaml", "settings.json"}
	if len(files) != len(expected) {
		t.Errorf("Expected %d files, got %d: %v", len(expected), len(files), files)
	}
	for _, exp := range expected {
		if !slices.Contains(files, exp) {
			t.Errorf("Expected file %s not found in %v", exp, files)
		}
	}
}

func TestGetDefault(t *testing.T) {
	content, err := GetDefault("config.yaml")
	if err != nil {
		t.Fatalf("GetDefault failed: %v", err)
	}
	if len(content) == 0 {
		t.Fatal("config.yaml content is empty")
	}
}

func TestDataDir_EnvOverride(t *testing.T) {
	tmpDir := t.TempDir()
	t.Setenv("YTVOICE_DATA_DIR", tmpDir)

	dir, err := DataDir()
	if err != nil {
		t.Fatalf("DataDir failed: %v", err)
	}
	if dir != tmpDir {
		t.Errorf("Expected %s, got %s", tmpDir, dir)
	}
}

func TestEnsureDataDir(t *testing.T) {
	tmpDir := filepath.Join(t.TempDir(), "data")
	t.Setenv("YTVOICE_DATA_DIR", tmpDir)

	dir, err := EnsureDataDir()
	if err != nil {
		t.Fatalf("EnsureDataDir failed: %v", err)
	}
	for _, name := range []string{"config.yaml", "settings.json"} {
		if _, err := os.Stat(filepath.Join(dir, name)); err != nil {
			t.Errorf("Expected %s to be copied: %v", name, err)
		}
	}
}

func TestEnsureDir_KeepsExistingFiles(t *testing.T) {
	dir := t.TempDir()
	custom := []byte("provider: ollama\n")
	if err := os.WriteFile(filepath.Join(dir, "config.yaml"), custom, 0644); err != nil {
		t.Fatal(err)
	}

	if err := EnsureDir(dir); err != nil {
		t.Fatalf("EnsureDir failed: %v", err)
	}
	got, _ := os.ReadFile(filepath.Join(dir, "config.yaml"))
	if string(got) != string(custom) {
		t.Errorf("existing config was overwritten: %q", got)
	}

	if err := Reset(dir); err != nil {
		t.Fatalf("Reset failed: %v", err)
	}
	got, _ = os.ReadFile(filepath.Join(dir, "config.yaml"))
	if string(got) == string(custom) {
		t.Error("Reset should restore the embedded config")
	}
}
