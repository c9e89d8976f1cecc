// Package batch scores every image in a folder and writes the reports to one file.
package batch

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"io/fs"
	"os"
	"strings"

	"github.com/gabriel-vasile/mimetype"
	"go.uber.org/zap"

	"github.com/example/face-score/internal/analyzer"
)

const (
	header    = "Face Score Batch Results"
	separator = "=================================================="
)

// Scorer analyzes one encoded image.
type Scorer interface {
	Analyze(ctx context.Context, image []byte) (*analyzer.Result, error)
}

// Summary counts files by outcome.
type Summary struct {
	Files      int
	Scored     int
	NoFace     int
	Unreadable int
	Failed     int
	Skipped    int
}

// Run scores the images directly inside dir. See RunFS.
func Run(ctx context.Context, dir string, scorer Scorer, out io.Writer, logger *zap.Logger) (Summary, error) {
	summary, err := RunFS(ctx, os.DirFS(dir), scorer, out, logger)
	if err != nil {
		return summary, fmt.Errorf("batch %s: %w", dir, err)
	}
	return summary, nil
}

// RunFS scores the images at the root of fsys in file name order. Names that
// differ only by case are scored once. Files that do not sniff as images are
// skipped. Per-file read and analysis errors are written to out and counted, not returned.
func RunFS(ctx context.Context, fsys fs.FS, scorer Scorer, out io.Writer, logger *zap.Logger) (Summary, error) {
	var summary Summary

	entries, err := fs.ReadDir(fsys, ".")
	if err != nil {
		return summary, fmt.Errorf("read dir: %w", err)
	}

	w := bufio.NewWriter(out)
	fmt.Fprintf(w, "%s\n%s\n\n", header, separator)

	seen := make(map[string]bool, len(entries))
	for _, entry := range entries {
		if err := ctx.Err(); err != nil {
			return summary, err
		}
		if !entry.Type().IsRegular() {
			continue
		}
		key := strings.ToLower(entry.Name())
		if seen[key] {
			summary.Skipped++
			continue
		}
		seen[key] = true

		fileLogger := logger.With(zap.String("file", entry.Name()))

		data, err := fs.ReadFile(fsys, entry.Name())
		if err != nil {
			fileLogger.Error("read failed", zap.Error(err))
			summary.Files++
			summary.Failed++
			fmt.Fprintf(w, "%s\nerror: %v\n\n", entry.Name(), err)
			continue
		}
		if !strings.HasPrefix(mimetype.Detect(data).String(), "image/") {
			fileLogger.Debug("skipping non-image file")
			summary.Skipped++
			continue
		}

		summary.Files++
		res, err := scorer.Analyze(ctx, data)
		if err != nil {
			fileLogger.Error("analysis failed", zap.Error(err))
			summary.Failed++
			fmt.Fprintf(w, "%s\nerror: %v\n\n", entry.Name(), err)
			continue
		}

		switch res.Outcome {
		case analyzer.OutcomeScored:
			summary.Scored++
		case analyzer.OutcomeNoFace:
			summary.NoFace++
		case analyzer.OutcomeUnreadable:
			summary.Unreadable++
		}
		fileLogger.Info("file processed", zap.String("outcome", string(res.Outcome)))
		fmt.Fprintf(w, "%s\n%s\n\n", entry.Name(), res.Text)
	}

	return summary, w.Flush()
}
