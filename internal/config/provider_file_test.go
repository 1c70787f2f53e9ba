package config

import (
	"context"
	"os"
	"path/filepath"
	"testing"
)

func TestFileProviderSatisfiesSecretProvider(t *testing.T) {
	var _ SecretProvider = (*FileProvider)(nil)
}

func TestFileProviderReadsRelativeAndAbsolute(t *testing.T) {
	dir := t.TempDir()
	other := t.TempDir()
	if err := os.WriteFile(filepath.Join(dir, "telegram"), []byte("tok\r\n"), 0o600); err != nil {
		t.Fatal(err)
	}
	abs := filepath.Join(other, "db")
	if err := os.WriteFile(abs, []byte("postgres://x\n\n"), 0o600); err != nil {
		t.Fatal(err)
	}

	result, err := NewFileProvider(dir).GetParametersBatch(context.Background(), []string{"telegram", abs, "missing"})
	if err != nil {
		t.Fatalf("GetParametersBatch returned unexpected error: %v", err)
	}

	if got := result["telegram"]; got != "tok" {
		t.Errorf("result[telegram] = %q, want %q", got, "tok")
	}
	if got := result[abs]; got != "postgres://x" {
		t.Errorf("result[abs] = %q, want %q", got, "postgres://x")
	}
	if _, ok := result["missing"]; ok {
		t.Error("missing files should be omitted")
	}
}

func TestFileProviderDirectoryIsError(t *testing.T) {
	dir := t.TempDir()
	if err := os.Mkdir(filepath.Join(dir, "sub"), 0o755); err != nil {
		t.Fatal(err)
	}

	_, err := NewFileProvider(dir).GetParametersBatch(context.Background(), []string{"sub"})
	if err == nil {
		t.Fatal("expected error reading a directory")
	}
}

func TestFileProviderCancelledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := NewFileProvider("").GetParametersBatch(ctx, []string{"anything"})
	if err == nil {
		t.Fatal("expected context error")
	}
}
