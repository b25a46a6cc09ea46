package testsupport

import (
	"os"
	"path/filepath"
	"testing"
)

func TestLoadFixture(t *testing.T) {
	path := filepath.Join(t.TempDir(), "fixture.txt")
	content := []byte("test fixture content")
	if err := os.WriteFile(path, content, 0o644); err != nil {
		t.Fatalf("failed to create test file: %v", err)
	}

	if got := LoadFixture(t, path); string(got) != string(content) {
		t.Errorf("expected %q, got %q", content, got)
	}
}

func TestCompareWithGolden(t *testing.T) {
	path := filepath.Join(t.TempDir(), "golden", "out.csv")
	WriteGolden(t, path, []byte("a,b\n"))

	// Matching output passes.
	CompareWithGolden(t, path, []byte("a,b\n"))

	t.Setenv(UpdateGoldenEnv, "1")
	CompareWithGolden(t, path, []byte("c,d\n"))

	if got := LoadFixture(t, path); string(got) != "c,d\n" {
		t.Errorf("expected golden file to be rewritten, got %q", got)
	}
}

func TestPaths(t *testing.T) {
	tests := []struct {
		name string
		got  string
		want string
	}{
		{"fixture", FixturePath("seed.json"), filepath.Join("testdata", "seed.json")},
		{"golden", GoldenPath("report.csv"), filepath.Join("testdata", "golden", "report.csv")},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if tt.got != tt.want {
				t.Errorf("expected %q, got %q", tt.want, tt.got)
			}
		})
	}
}
