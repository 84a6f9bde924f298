package main

import (
	"fmt"
	"io"
	"path/filepath"
	"strings"
)

var rule = strings.Repeat("=", 30)

func writeReport(w io.Writer, o Outcome) {
	fmt.Fprintf(w, "\n--- Processing %s ---\n", filepath.Base(o.Path))

	if o.Err != nil {
		fmt.Fprintf(w, "Failed to process image: %v\n", o.Err)
		return
	}

	r := o.Result
	fmt.Fprintln(w, rule)
	fmt.Fprintf(w, "RESULT: %s\n", r.Label)
	fmt.Fprintf(w, "CONFIDENCE: %.2f%%\n", r.Confidence)
	fmt.Fprintln(w, rule)

	fmt.Fprintf(w, "Boxed image: %s\n", r.BoxedPath)
	if r.HeatmapPath != "" {
		fmt.Fprintf(w, "Heatmap: %s\n", r.HeatmapPath)
	}
	if r.Note != "" {
		fmt.Fprintf(w, "Note: %s\n", r.Note)
	}
}
