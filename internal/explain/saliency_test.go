package explain_test

import (
	"errors"
	"math"
	"testing"

	"github.com/JaimeStill/pallor/internal/explain"
	"github.com/JaimeStill/pallor/internal/tensor"
)

func TestPercentile(t *testing.T) {
	values := []float32{5, 1, 4, 2, 3}

	tests := []struct {
		q    float64
		want float64
	}{
		{q: 0, want: 1},
		{q: 40, want: 2.6},
		{q: 50, want: 3},
		{q: 99, want: 4.96},
		{q: 100, want: 5},
	}

	for _, tt := range tests {
		if got := explain.Percentile(values, tt.q); math.Abs(got-tt.want) > 1e-6 {
			t.Errorf("q=%v: got %v, want %v", tt.q, got, tt.want)
		}
	}

	if values[0] != 5 {
		t.Error("input was reordered")
	}
}

func TestReduce(t *testing.T) {
	grad := make([]float32, tensor.Len)
	grad[tensor.Index(0, 0, 0)] = 0.2
	grad[tensor.Index(0, 0, 1)] = -0.7
	grad[tensor.Index(0, 0, 2)] = 0.5
	grad[tensor.Index(3, 5, 2)] = 0.9

	sal, err := explain.Reduce(grad)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if len(sal) != tensor.Height*tensor.Width {
		t.Fatalf("len: got %d", len(sal))
	}
	if math.Abs(float64(sal[0])-0.7) > 1e-6 {
		t.Errorf("pixel 0: got %v, want 0.7", sal[0])
	}
	if math.Abs(float64(sal[3*tensor.Width+5])-0.9) > 1e-6 {
		t.Errorf("pixel (3,5): got %v, want 0.9", sal[3*tensor.Width+5])
	}

	if _, err := explain.Reduce(grad[:10]); !errors.Is(err, explain.ErrInvalidInput) {
		t.Errorf("short gradient: got %v", err)
	}
}

func TestNormalize(t *testing.T) {
	t.Run("range", func(t *testing.T) {
		sal := make([]float32, 1000)
		for i := range sal {
			sal[i] = float32(i)
		}

		out, err := explain.Normalize(sal, 40, 99)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		for i, v := range out {
			if v < 0 || v > 1 {
				t.Fatalf("index %d: %v outside [0,1]", i, v)
			}
		}
		if out[0] != 0 || out[999] != 1 {
			t.Errorf("endpoints: got %v, %v", out[0], out[999])
		}
	})

	t.Run("zero variance", func(t *testing.T) {
		sal := make([]float32, 100)
		if _, err := explain.Normalize(sal, 40, 99); !errors.Is(err, explain.ErrDegenerate) {
			t.Errorf("got %v, want ErrDegenerate", err)
		}
	})
}

func TestThreshold(t *testing.T) {
	sal := []float32{0.1, 0.39, 0.4, 0.9}
	explain.Threshold(sal, 0.4)

	want := []float32{0, 0, 0.4, 0.9}
	for i := range want {
		if sal[i] != want[i] {
			t.Errorf("index %d: got %v, want %v", i, sal[i], want[i])
		}
	}
}
