package logging

import (
	"go.uber.org/zap"
)

// NewLogger builds a JSON production logger at the given level ("debug", "info", ...).
func NewLogger(level string) (*zap.Logger, error) {
	cfg := zap.NewProductionConfig()
	cfg.EncoderConfig.TimeKey = "timestamp"
	if level != "" {
		lvl, err := zap.ParseAtomicLevel(level)
		if err != nil {
			return nil, NewOperationError("logging.parse_level", "", err)
		}
		cfg.Level = lvl
	}
	return cfg.Build()
}

// WithOperation tags the logger with the operation name and, when known, the request id.
func WithOperation(logger *zap.Logger, operation, requestID string) *zap.Logger {
	if requestID == "" {
		return logger.With(zap.String("operation", operation))
	}
	return logger.With(zap.String("operation", operation), zap.String("request_id", requestID))
}
