package models_test

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/JaimeStill/pallor/internal/models"
	"github.com/JaimeStill/pallor/internal/tensor"
)

type overlapClassifier struct {
	active  atomic.Int32
	overlap atomic.Bool
}

func (p *overlapClassifier) enter() func() {
	if p.active.Add(1) > 1 {
		p.overlap.Store(true)
	}
	time.Sleep(2 * time.Millisecond)
	return func() { p.active.Add(-1) }
}

func (p *overlapClassifier) Predict(ctx context.Context, in *tensor.Input) (float32, error) {
	defer p.enter()()
	return 0.5, nil
}

func (p *overlapClassifier) Gradient(ctx context.Context, in *tensor.Input) ([]float32, error) {
	defer p.enter()()
	return make([]float32, tensor.Len), nil
}

func (p *overlapClassifier) Close() error { return nil }

func TestGuardClassifierSerializes(t *testing.T) {
	inner := &overlapClassifier{}
	guarded := models.GuardClassifier(inner)

	var wg sync.WaitGroup
	for i := range 8 {
		wg.Go(func() {
			if i%2 == 0 {
				guarded.Predict(context.Background(), nil)
			} else {
				guarded.Gradient(context.Background(), nil)
			}
		})
	}
	wg.Wait()

	if inner.overlap.Load() {
		t.Error("guarded calls overlapped")
	}
}
