package models_test

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/JaimeStill/pallor/internal/models"
)

func TestParseNames(t *testing.T) {
	tests := []struct {
		name    string
		raw     string
		want    map[int]string
		wantErr bool
	}{
		{
			name: "metadata mapping",
			raw:  "{0: 'palpebral', 1: 'forniceal_palpebral', 2: 'eye'}",
			want: map[int]string{0: "palpebral", 1: "forniceal_palpebral", 2: "eye"},
		},
		{
			name: "sequence",
			raw:  "[eye, palpebral]",
			want: map[int]string{0: "eye", 1: "palpebral"},
		},
		{
			name:    "scalar",
			raw:     "palpebral",
			wantErr: true,
		},
		{
			name:    "empty mapping",
			raw:     "{}",
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := models.ParseNames(tt.raw)
			if tt.wantErr {
				if err == nil {
					t.Fatal("expected error")
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if len(got) != len(tt.want) {
				t.Fatalf("len: got %d, want %d", len(got), len(tt.want))
			}
			for id, name := range tt.want {
				if got[id] != name {
					t.Errorf("class %d: got %s, want %s", id, got[id], name)
				}
			}
		})
	}
}

func TestLoadNamesFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "data.yaml")
	content := "path: datasets/conjunctiva\nnames:\n  0: palpebral\n  1: eye\n"
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}

	names, err := models.LoadNamesFile(path)
	if err != nil {
		t.Fatalf("load failed: %v", err)
	}
	if names[0] != "palpebral" || names[1] != "eye" {
		t.Errorf("names: got %v", names)
	}
}

func TestLoadNamesFileMissingKey(t *testing.T) {
	path := filepath.Join(t.TempDir(), "data.yaml")
	if err := os.WriteFile(path, []byte("nc: 2\n"), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}

	if _, err := models.LoadNamesFile(path); err == nil {
		t.Error("expected error for missing names key")
	}
}
