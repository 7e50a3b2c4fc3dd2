// Package bench times the parser over a directory of submission files
// and writes a tab-separated report suitable for diffing between runs.
package bench

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"edgar-sgml-ingest-system/internal/sgml"

	"github.com/sirupsen/logrus"
)

// Result is the outcome of parsing one file.
type Result struct {
	Filename  string
	Elapsed   time.Duration
	Documents int
	Err       error
}

// Summary aggregates a full run.
type Summary struct {
	Results  []Result
	Total    time.Duration
	Parsed   int
	Failed   int
	ByteSize int64
}

// Runner benchmarks submission parsing over a directory tree.
type Runner struct {
	logger *logrus.Logger
}

// NewRunner returns a Runner logging through the given logger, or the
// standard logger when nil.
func NewRunner(logger *logrus.Logger) *Runner {
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	return &Runner{logger: logger}
}

// Run parses every *.sgml and *.txt file directly under dir, in sorted
// order, and returns per-file timings. Individual parse failures are
// recorded in the result set rather than aborting the run.
func (r *Runner) Run(ctx context.Context, dir string) (*Summary, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("read benchmark directory: %w", err)
	}

	var names []string
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		ext := strings.ToLower(filepath.Ext(e.Name()))
		if ext == ".sgml" || ext == ".txt" || ext == ".nc" {
			names = append(names, e.Name())
		}
	}
	sort.Strings(names)

	sum := &Summary{Results: make([]Result, 0, len(names))}
	for _, name := range names {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		path := filepath.Join(dir, name)
		if info, err := os.Stat(path); err == nil {
			sum.ByteSize += info.Size()
		}

		start := time.Now()
		sub, err := sgml.ParseSubmission(sgml.FromFile(path))
		elapsed := time.Since(start)

		res := Result{Filename: name, Elapsed: elapsed, Err: err}
		if err != nil {
			sum.Failed++
			r.logger.WithError(err).WithField("file", name).Warn("parse failed")
		} else {
			sum.Parsed++
			res.Documents = len(sub.Documents)
		}
		sum.Total += elapsed
		sum.Results = append(sum.Results, res)
	}

	r.logger.WithFields(logrus.Fields{
		"files":   len(sum.Results),
		"parsed":  sum.Parsed,
		"failed":  sum.Failed,
		"elapsed": sum.Total,
	}).Info("benchmark run complete")
	return sum, nil
}

// WriteReport writes the tab-separated report: one row per file with the
// parse time in seconds and ok/failed status, then a totals row.
func (s *Summary) WriteReport(path string) error {
	var b strings.Builder
	b.WriteString("filename\ttime_seconds\tstatus\n")
	for _, res := range s.Results {
		status := "ok"
		if res.Err != nil {
			status = "failed"
		}
		fmt.Fprintf(&b, "%s\t%.6f\t%s\n", res.Filename, res.Elapsed.Seconds(), status)
	}
	fmt.Fprintf(&b, "total\t%.6f\t%d/%d\n", s.Total.Seconds(), s.Parsed, len(s.Results))

	if err := os.WriteFile(path, []byte(b.String()), 0o644); err != nil {
		return fmt.Errorf("write benchmark report: %w", err)
	}
	return nil
}
