package main

import (
	"context"
	"flag"
	"log"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"

	"edgar-sgml-ingest-system/internal/config"
	"edgar-sgml-ingest-system/internal/extract"
	"edgar-sgml-ingest-system/internal/sgml"

	"github.com/sirupsen/logrus"
)

// main is a CLI that parses a submission file and extracts its documents
// plus a metadata.json record into an output directory.
func main() {
	var (
		filePath = flag.String("file", "", "Path to the submission file to extract")
		outDir   = flag.String("out", "", "Output directory (default: <file> without extension)")
		logLevel = flag.String("log-level", "", "Log level (debug, info, warn, error)")
	)
	flag.Parse()

	if *filePath == "" {
		log.Fatal("file path is required")
	}

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}
	if *logLevel != "" {
		cfg.Logging.Level = *logLevel
	}

	logger := logrus.New()
	if level, err := logrus.ParseLevel(cfg.Logging.Level); err == nil {
		logger.SetLevel(level)
	}
	logger.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})

	dir := *outDir
	if dir == "" {
		base := filepath.Base(*filePath)
		dir = strings.TrimSuffix(base, filepath.Ext(base))
		if cfg.Extract.OutputDir != "" {
			dir = filepath.Join(cfg.Extract.OutputDir, dir)
		}
	}

	// Ctrl-C aborts between documents, leaving already-written files intact.
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	extractor := extract.New(logger)
	if err := extractor.ExtractSource(ctx, sgml.FromFile(*filePath), dir); err != nil {
		logger.WithError(err).Error("extraction failed")
		os.Exit(1)
	}

	logger.WithFields(logrus.Fields{
		"file": *filePath,
		"out":  dir,
	}).Info("extraction complete")
}
