package secrets

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func withEnv(t *testing.T, env map[string]string) {
	t.Helper()
	original := lookupEnv
	lookupEnv = func(key string) (string, bool) {
		v, ok := env[key]
		return v, ok
	}
	t.Cleanup(func() { lookupEnv = original })
}

func TestLoadPrecedence(t *testing.T) {
	dir := t.TempDir()
	keyFile := filepath.Join(dir, "key")
	if err := os.WriteFile(keyFile, []byte("  from-file\n"), 0o600); err != nil {
		t.Fatalf("write key file: %v", err)
	}

	withEnv(t, map[string]string{"GEMINI_API_KEY": "from-env", "EMPTY": "  "})

	tests := []struct {
		name   string
		src    Source
		expect string
	}{
		{name: "file wins", src: Source{File: keyFile, Value: "inline", Env: []string{"GEMINI_API_KEY"}}, expect: "from-file"},
		{name: "inline before env", src: Source{Value: " inline ", Env: []string{"GEMINI_API_KEY"}}, expect: "inline"},
		{name: "first non-empty env", src: Source{Env: []string{"MISSING", "EMPTY", "GEMINI_API_KEY"}}, expect: "from-env"},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			got, err := Load(tc.src)
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if got != tc.expect {
				t.Fatalf("expected %q, got %q", tc.expect, got)
			}
		})
	}
}

func TestLoadErrors(t *testing.T) {
	withEnv(t, map[string]string{})

	dir := t.TempDir()
	empty := filepath.Join(dir, "empty")
	if err := os.WriteFile(empty, []byte("\n"), 0o600); err != nil {
		t.Fatalf("write empty file: %v", err)
	}

	if _, err := Load(Source{Name: "gemini api key", File: empty}); err == nil || !strings.Contains(err.Error(), "is empty") {
		t.Fatalf("expected empty file error, got %v", err)
	}

	if _, err := Load(Source{File: filepath.Join(dir, "missing")}); err == nil {
		t.Fatal("expected error for missing file")
	}

	_, err := Load(Source{Name: "gemini api key", Env: []string{"GOOGLE_API_KEY"}})
	if !errors.Is(err, ErrNotConfigured) {
		t.Fatalf("expected ErrNotConfigured, got %v", err)
	}
	if !strings.Contains(err.Error(), "GOOGLE_API_KEY") {
		t.Fatalf("expected checked variables in message: %v", err)
	}
}
