package formatting_test

import (
	"testing"

	"github.com/JaimeStill/pallor/pkg/formatting"
)

func TestParseBytes(t *testing.T) {
	tests := []struct {
		in      string
		want    int64
		wantErr bool
	}{
		{in: "512", want: 512},
		{in: "5MB", want: 5 * 1024 * 1024},
		{in: "50mb", want: 50 * 1024 * 1024},
		{in: "100 MB", want: 100 * 1024 * 1024},
		{in: "1.5KB", want: 1536},
		{in: "2MiB", want: 2 * 1024 * 1024},
		{in: "1B", want: 1},
		{in: "", wantErr: true},
		{in: "MB", wantErr: true},
		{in: "10XB", wantErr: true},
		{in: "1.2.3MB", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := formatting.ParseBytes(tt.in)
			if tt.wantErr {
				if err == nil {
					t.Errorf("expected error, got %d", got)
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if got != tt.want {
				t.Errorf("got %d, want %d", got, tt.want)
			}
		})
	}
}

func TestFormatBytes(t *testing.T) {
	tests := []struct {
		n         int64
		precision int
		want      string
	}{
		{n: 0, precision: 2, want: "0 B"},
		{n: 900, precision: 2, want: "900 B"},
		{n: 1536, precision: 1, want: "1.5 KB"},
		{n: 5 * 1024 * 1024, precision: 0, want: "5 MB"},
		{n: 3 * 1024 * 1024 * 1024, precision: -1, want: "3 GB"},
	}

	for _, tt := range tests {
		if got := formatting.FormatBytes(tt.n, tt.precision); got != tt.want {
			t.Errorf("FormatBytes(%d, %d): got %s, want %s", tt.n, tt.precision, got, tt.want)
		}
	}
}
