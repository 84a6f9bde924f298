package models

import (
	"context"
	"sync"

	"gocv.io/x/gocv"

	"github.com/JaimeStill/pallor/internal/tensor"
)

type guardedDetector struct {
	mu    sync.Mutex
	inner Detector
}

// GuardDetector serializes Detect calls on d.
func GuardDetector(d Detector) Detector {
	return &guardedDetector{inner: d}
}

func (g *guardedDetector) Detect(ctx context.Context, img gocv.Mat, confidence float32) ([]Detection, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.inner.Detect(ctx, img, confidence)
}

func (g *guardedDetector) Names() map[int]string {
	return g.inner.Names()
}

func (g *guardedDetector) Close() error {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.inner.Close()
}

type guardedClassifier struct {
	mu    sync.Mutex
	inner Classifier
}

// GuardClassifier serializes Predict and Gradient calls on c with a single lock.
func GuardClassifier(c Classifier) Classifier {
	return &guardedClassifier{inner: c}
}

func (g *guardedClassifier) Predict(ctx context.Context, in *tensor.Input) (float32, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.inner.Predict(ctx, in)
}

func (g *guardedClassifier) Gradient(ctx context.Context, in *tensor.Input) ([]float32, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.inner.Gradient(ctx, in)
}

func (g *guardedClassifier) Close() error {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.inner.Close()
}
