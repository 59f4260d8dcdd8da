package main

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/joho/godotenv"
)

// Values that only exist in .env.local are visible once it is loaded.
func TestOrEnv_SeesDotEnv(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, ".env.local")
	if err := os.WriteFile(path, []byte("ADMIN_PASSWORD=from-file\n"), 0o600); err != nil {
		t.Fatalf("write env file: %v", err)
	}
	t.Setenv("ADMIN_PASSWORD", "")
	os.Unsetenv("ADMIN_PASSWORD")

	if err := godotenv.Load(path); err != nil {
		t.Fatalf("load: %v", err)
	}
	if got := orEnv("", "ADMIN_PASSWORD"); got != "from-file" {
		t.Errorf("expected value from .env.local, got %q", got)
	}
	if got := orEnv("cli", "ADMIN_PASSWORD"); got != "cli" {
		t.Errorf("flag value must win, got %q", got)
	}
}
