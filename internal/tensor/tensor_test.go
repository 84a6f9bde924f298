package tensor_test

import (
	"errors"
	"math"
	"testing"

	"github.com/JaimeStill/pallor/internal/tensor"
)

func filled(v float32) []float32 {
	data := make([]float32, tensor.Len)
	for i := range data {
		data[i] = v
	}
	return data
}

func TestNew(t *testing.T) {
	tests := []struct {
		name    string
		data    []float32
		wantErr bool
	}{
		{name: "zeros", data: filled(0)},
		{name: "ones", data: filled(1)},
		{name: "mid", data: filled(0.5)},
		{name: "short", data: make([]float32, tensor.Len-1), wantErr: true},
		{name: "negative", data: filled(-0.01), wantErr: true},
		{name: "above one", data: filled(1.01), wantErr: true},
		{name: "nan", data: filled(float32(math.NaN())), wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := tensor.New(tt.data)
			if tt.wantErr {
				if !errors.Is(err, tensor.ErrInvalidTensor) {
					t.Fatalf("got %v, want ErrInvalidTensor", err)
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
		})
	}
}

func TestValidateShape(t *testing.T) {
	in := &tensor.Input{Shape: [4]int{1, 224, 224, 1}, Data: filled(0)}
	if err := in.Validate(); !errors.Is(err, tensor.ErrInvalidTensor) {
		t.Errorf("got %v, want ErrInvalidTensor", err)
	}

	var nilInput *tensor.Input
	if err := nilInput.Validate(); !errors.Is(err, tensor.ErrInvalidTensor) {
		t.Errorf("nil: got %v, want ErrInvalidTensor", err)
	}
}

func TestValidateIdempotent(t *testing.T) {
	in, err := tensor.New(filled(0.25))
	if err != nil {
		t.Fatalf("new failed: %v", err)
	}
	for range 3 {
		if err := in.Validate(); err != nil {
			t.Fatalf("revalidation failed: %v", err)
		}
	}
}

func TestIndex(t *testing.T) {
	data := filled(0)
	data[tensor.Index(10, 20, 2)] = 0.75

	in, err := tensor.New(data)
	if err != nil {
		t.Fatalf("new failed: %v", err)
	}
	if got := in.At(10, 20, 2); got != 0.75 {
		t.Errorf("at: got %v, want 0.75", got)
	}
	if got := tensor.Index(0, 1, 0); got != 3 {
		t.Errorf("index: got %d, want 3", got)
	}
}
