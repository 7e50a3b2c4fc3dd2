package main

import (
	"context"
	"encoding/base64"
	"flag"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"edgar-sgml-ingest-system/internal/config"
	"edgar-sgml-ingest-system/internal/kafka"
	"edgar-sgml-ingest-system/internal/models"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
)

// main acts as a CLI producer sending filing files into the Kafka raw topic.
func main() {
	var (
		filePath = flag.String("file", "", "Path to a submission file to publish")
		dirPath  = flag.String("dir", "", "Publish every submission file in this directory")
		source   = flag.String("source", "cli", "Source label attached to the filings")
	)
	flag.Parse()

	if *filePath == "" && *dirPath == "" {
		log.Fatal("either -file or -dir is required")
	}

	// Load configuration (from env, config file, or defaults)
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	// Set up structured logging
	logger := logrus.New()
	if cfg.IsDevelopment() {
		logger.SetLevel(logrus.DebugLevel)
		logger.SetFormatter(&logrus.TextFormatter{})
	} else {
		logger.SetFormatter(&logrus.JSONFormatter{})
	}

	producer, err := kafka.NewProducer(kafka.ProducerConfig{
		Brokers:       cfg.Kafka.Brokers,
		RawTopic:      cfg.Kafka.RawTopic,
		ParsedTopic:   cfg.Kafka.ParsedTopic,
		ErrorTopic:    cfg.Kafka.ErrorTopic,
		RetryAttempts: cfg.Kafka.RetryAttempts,
		FlushTimeout:  cfg.Kafka.FlushTimeout,
		BatchSize:     cfg.Kafka.BatchSize,
	}, logger)
	if err != nil {
		log.Fatalf("failed to create Kafka producer: %v", err)
	}
	defer producer.Close()

	paths, err := collectPaths(*filePath, *dirPath)
	if err != nil {
		log.Fatalf("failed to collect input files: %v", err)
	}
	if len(paths) == 0 {
		log.Fatal("no submission files found")
	}

	ctx := context.Background()
	sent := 0
	for _, path := range paths {
		content, err := os.ReadFile(path)
		if err != nil {
			logger.WithError(err).WithField("file", path).Error("failed to read file; skipping")
			continue
		}

		filing := &models.RawFiling{
			ID:         uuid.New().String(),
			Filename:   filepath.Base(path),
			ContentB64: base64.StdEncoding.EncodeToString(content),
			Source:     *source,
			Timestamp:  time.Now(),
			Metadata: map[string]string{
				"file_size": fmt.Sprintf("%d", len(content)),
				"producer":  "cli",
			},
		}

		if err := producer.PublishRaw(ctx, filing); err != nil {
			log.Fatalf("failed to publish filing: %v", err)
		}

		logger.WithFields(logrus.Fields{
			"filing_id": filing.ID,
			"filename":  filing.Filename,
			"size":      len(content),
		}).Info("filing published")
		sent++
	}

	logger.Infof("successfully published %d filing(s)", sent)
}

// collectPaths resolves the input flags to a sorted list of submission files.
func collectPaths(file, dir string) ([]string, error) {
	if file != "" {
		return []string{file}, nil
	}

	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, err
	}

	var paths []string
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		switch strings.ToLower(filepath.Ext(e.Name())) {
		case ".sgml", ".txt", ".nc":
			paths = append(paths, filepath.Join(dir, e.Name()))
		}
	}
	sort.Strings(paths)
	return paths, nil
}
