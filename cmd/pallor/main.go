// Command pallor analyzes conjunctiva photographs from the command line.
//
// Usage:
//
//	pallor [-explain] [-workers N] <image>...
//
// Images are analyzed concurrently and reported in argument order. The exit
// status is 1 if any image failed.
package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"path/filepath"
	"strconv"
	"strings"
	"syscall"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/JaimeStill/pallor/internal/config"
	"github.com/JaimeStill/pallor/internal/infrastructure"
	"github.com/JaimeStill/pallor/internal/pipeline"
	"github.com/JaimeStill/pallor/internal/region"
)

func main() {
	os.Exit(run(os.Args[1:], os.Stdout, os.Stderr))
}

func run(args []string, stdout, stderr io.Writer) int {
	fs := flag.NewFlagSet("pallor", flag.ContinueOnError)
	fs.SetOutput(stderr)
	explain := fs.Bool("explain", false, "write a saliency heatmap for each image")
	workers := fs.Int("workers", 2, "images analyzed concurrently")
	fs.Usage = func() {
		fmt.Fprintln(stderr, "usage: pallor [-explain] [-workers N] <image>...")
		fs.PrintDefaults()
	}

	if err := fs.Parse(args); err != nil {
		return 2
	}
	if fs.NArg() == 0 || *workers < 1 {
		fs.Usage()
		return 2
	}

	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintln(stderr, "config load failed:", err)
		return 1
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	infra, err := infrastructure.New(ctx, cfg)
	if err != nil {
		fmt.Fprintln(stderr, "startup failed:", err)
		return 1
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		infra.Tracing.Shutdown(shutdownCtx)
		infra.Models.Close()
	}()

	p := pipeline.New(
		&cfg.Pipeline,
		infra.Models,
		infra.Tracing.Tracer("github.com/JaimeStill/pallor/cmd/pallor"),
		infra.Logger,
	)

	outcomes := analyze(ctx, p, fs.Args(), *explain, *workers)

	failed := false
	for _, o := range outcomes {
		writeReport(stdout, o)
		failed = failed || o.Err != nil
	}
	if failed {
		return 1
	}
	return 0
}

// Runner analyzes a single image, naming its artifacts after name.
type Runner interface {
	RunAs(ctx context.Context, path, name string, withExplanation bool) (*pipeline.Result, error)
}

// Outcome is the result of analyzing one image argument.
type Outcome struct {
	Path   string
	Result *pipeline.Result
	Err    error
}

// analyze runs every path through r with at most workers in flight. One
// image failing does not stop the others; outcomes keep argument order.
func analyze(ctx context.Context, r Runner, paths []string, explain bool, workers int) []Outcome {
	outcomes := make([]Outcome, len(paths))
	names := artifactNames(paths)

	var g errgroup.Group
	g.SetLimit(workers)

	for i, path := range paths {
		g.Go(func() error {
			result, err := r.RunAs(ctx, path, names[i], explain)
			outcomes[i] = Outcome{Path: path, Result: result, Err: err}
			return nil
		})
	}
	g.Wait()

	return outcomes
}

// artifactNames derives one artifact name per path. Paths sharing a base
// name get the argument position appended to the stem so their results
// do not overwrite each other.
func artifactNames(paths []string) []string {
	names := make([]string, len(paths))
	count := make(map[string]int, len(paths))
	used := make(map[string]bool, len(paths))

	for i, p := range paths {
		names[i] = region.SafeName(p)
		count[names[i]]++
	}
	for _, n := range names {
		if count[n] == 1 {
			used[n] = true
		}
	}

	for i, n := range names {
		if count[n] == 1 {
			continue
		}
		ext := filepath.Ext(n)
		stem := strings.TrimSuffix(n, ext) + "_" + strconv.Itoa(i+1)
		name := stem + ext
		for k := 2; used[name]; k++ {
			name = stem + "_" + strconv.Itoa(k) + ext
		}
		used[name] = true
		names[i] = name
	}

	return names
}
