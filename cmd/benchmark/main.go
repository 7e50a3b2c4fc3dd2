package main

import (
	"context"
	"flag"
	"log"
	"os"
	"os/signal"
	"syscall"

	"edgar-sgml-ingest-system/internal/bench"

	"github.com/sirupsen/logrus"
)

// main times the parser over a directory of submission files and writes a
// tab-separated report.
func main() {
	var (
		dir    = flag.String("dir", ".", "Directory holding submission files")
		report = flag.String("report", "benchmark.tsv", "Path of the report to write")
	)
	flag.Parse()

	logger := logrus.New()
	logger.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	runner := bench.NewRunner(logger)
	summary, err := runner.Run(ctx, *dir)
	if err != nil {
		log.Fatalf("benchmark run failed: %v", err)
	}

	if err := summary.WriteReport(*report); err != nil {
		log.Fatalf("failed to write report: %v", err)
	}

	logger.WithFields(logrus.Fields{
		"report": *report,
		"files":  len(summary.Results),
		"failed": summary.Failed,
	}).Info("report written")

	if summary.Failed > 0 {
		os.Exit(1)
	}
}
