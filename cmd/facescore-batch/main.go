// Command facescore-batch scores every image in a folder against the landmark
// provider and writes the reports to a single text file.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"go.uber.org/zap"

	"github.com/example/face-score/internal/analyzer"
	"github.com/example/face-score/internal/batch"
	"github.com/example/face-score/internal/config"
	"github.com/example/face-score/internal/grpcclient"
	"github.com/example/face-score/internal/logging"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(2)
	}

	dir := flag.String("dir", "examples", "folder of images to score")
	out := flag.String("out", "face_score_results.txt", "results file to write")
	addr := flag.String("provider", cfg.LandmarkProviderAddr, "landmark provider gRPC address")
	flag.Parse()

	logger, err := logging.NewLogger(cfg.LogLevel)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(2)
	}
	defer logger.Sync() //nolint:errcheck

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	provider, conn, err := grpcclient.DialLandmarkProvider(ctx, *addr, cfg.LandmarkProviderTimeout, logger)
	if err != nil {
		logger.Fatal("failed to connect to landmark provider", zap.Error(err))
	}
	defer conn.Close()

	f, err := os.Create(*out)
	if err != nil {
		logger.Fatal("failed to create results file", zap.Error(err), zap.String("path", *out))
	}
	defer f.Close()

	summary, err := batch.Run(ctx, *dir, analyzer.New(provider, logger, analyzer.WithMaxImagePixels(cfg.MaxImagePixels)), f, logger.Named("batch"))
	if err != nil {
		logger.Error("batch run aborted", zap.Error(err))
	}
	logger.Info("batch complete",
		zap.String("dir", *dir),
		zap.String("out", *out),
		zap.Int("files", summary.Files),
		zap.Int("scored", summary.Scored),
		zap.Int("no_face", summary.NoFace),
		zap.Int("unreadable", summary.Unreadable),
		zap.Int("failed", summary.Failed),
		zap.Int("skipped", summary.Skipped),
	)
	if err != nil {
		os.Exit(1)
	}
}
