package storage

import "testing"

func TestBuildExportKey(t *testing.T) {
	key, err := BuildExportKey("exports", "7e6bc5a0-9f2d-4a9a-8b2e-0a3c9d6f1e22")
	if err != nil {
		t.Fatalf("BuildExportKey() error = %v", err)
	}
	want := "exports/7e6bc5a0-9f2d-4a9a-8b2e-0a3c9d6f1e22.csv"
	if key != want {
		t.Fatalf("BuildExportKey() = %q, want %q", key, want)
	}
}

func TestBuildExportKeyWithoutPrefix(t *testing.T) {
	key, err := BuildExportKey("", "job-1")
	if err != nil {
		t.Fatalf("BuildExportKey() error = %v", err)
	}
	if key != "job-1.csv" {
		t.Fatalf("BuildExportKey() = %q", key)
	}
}

func TestBuildExportKeyRejectsInvalidJobID(t *testing.T) {
	if _, err := BuildExportKey("exports", "../oops"); err == nil {
		t.Fatal("expected invalid component error")
	}
	if _, err := BuildExportKey("exports", ""); err == nil {
		t.Fatal("expected invalid component error")
	}
}
