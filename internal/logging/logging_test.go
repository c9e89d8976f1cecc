package logging

import (
	"errors"
	"fmt"
	"testing"

	"go.uber.org/zap/zapcore"
)

func TestNewLoggerRejectsUnknownLevel(t *testing.T) {
	if _, err := NewLogger("chatty"); err == nil {
		t.Fatal("expected error for unknown level")
	}
	logger, err := NewLogger("debug")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !logger.Core().Enabled(zapcore.DebugLevel) {
		t.Fatal("expected debug level to be enabled")
	}
}

func TestOperationErrorWrapping(t *testing.T) {
	base := errors.New("boom")
	if NewOperationError("op", "", nil) != nil {
		t.Fatal("expected nil for nil error")
	}

	err := fmt.Errorf("outer: %w", NewOperationError("analyzer.detect", "req-1", base))
	if !errors.Is(err, base) {
		t.Fatal("expected errors.Is to reach the wrapped error")
	}
	if got := OperationOf(err); got != "analyzer.detect" {
		t.Fatalf("unexpected operation: %q", got)
	}
	if got := err.Error(); got != "outer: analyzer.detect (request_id=req-1): boom" {
		t.Fatalf("unexpected message: %q", got)
	}
	if OperationOf(base) != "" {
		t.Fatal("expected no operation on a plain error")
	}
}
