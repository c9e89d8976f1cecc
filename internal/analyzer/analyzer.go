package analyzer

import (
	"context"
	"crypto/sha1"
	"encoding/hex"
	"encoding/json"
	"errors"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/example/face-score/internal/geometry"
	"github.com/example/face-score/internal/landmarks"
	"github.com/example/face-score/internal/logging"
	"github.com/example/face-score/internal/report"
	"github.com/example/face-score/internal/scoring"
)

var (
	// ErrImageUnreadable marks uploads that do not decode as an image.
	ErrImageUnreadable = errors.New(report.ImageUnreadable)
	// ErrNoFace marks images in which the provider found no face.
	ErrNoFace = errors.New(report.NoFace)
	// ErrNotCached is returned by Cached when no report is stored for a digest.
	ErrNotCached = errors.New("report not cached")
)

// Outcome is the terminal state of one analysis.
type Outcome string

const (
	OutcomeScored     Outcome = "scored"
	OutcomeNoFace     Outcome = "no_face"
	OutcomeUnreadable Outcome = "unreadable"
)

// Result is the outcome of analyzing one image.
type Result struct {
	RequestID string          `json:"request_id"`
	Digest    string          `json:"digest"`
	Outcome   Outcome         `json:"outcome"`
	Width     int             `json:"width,omitempty"`
	Height    int             `json:"height,omitempty"`
	Scores    *scoring.Scores `json:"scores,omitempty"`
	Text      string          `json:"report"`
	Cached    bool            `json:"cached"`
	CreatedAt time.Time       `json:"created_at"`
}

// Err returns the sentinel for unscored outcomes, nil otherwise.
func (r *Result) Err() error {
	switch r.Outcome {
	case OutcomeNoFace:
		return ErrNoFace
	case OutcomeUnreadable:
		return ErrImageUnreadable
	default:
		return nil
	}
}

// Analyzer runs the image to report pipeline.
type Analyzer struct {
	provider       landmarks.Provider
	cache          Cache
	cacheTTL       time.Duration
	logger         *zap.Logger
	retryAttempts  int
	initialBackoff time.Duration
	maxBackoff     time.Duration
	maxPixels      int64
	metrics        *metrics
}

// Option configures an Analyzer.
type Option func(*Analyzer)

// WithCache stores reports in c for ttl, keyed by image digest.
func WithCache(c Cache, ttl time.Duration) Option {
	return func(a *Analyzer) {
		a.cache = c
		a.cacheTTL = ttl
	}
}

// WithMaxImagePixels rejects uploads whose header declares more than n pixels
// as unreadable. Zero or negative disables the limit.
func WithMaxImagePixels(n int64) Option {
	return func(a *Analyzer) {
		a.maxPixels = n
	}
}

// New constructs an Analyzer. Without WithCache every call reaches the provider.
func New(provider landmarks.Provider, logger *zap.Logger, opts ...Option) *Analyzer {
	a := &Analyzer{
		provider:       provider,
		logger:         logger.Named("analyzer"),
		cacheTTL:       10 * time.Minute,
		retryAttempts:  3,
		initialBackoff: 50 * time.Millisecond,
		maxBackoff:     time.Second,
		maxPixels:      DefaultMaxImagePixels,
		metrics:        &metrics{},
	}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// Analyze scores the dominant face in an encoded image. Unreadable images and
// images without a face produce a Result with the matching Outcome and a nil
// error; errors are reserved for provider and internal failures.
func (a *Analyzer) Analyze(ctx context.Context, image []byte) (*Result, error) {
	start := time.Now()
	requestID := uuid.NewString()
	sum := sha1.Sum(image)
	digest := hex.EncodeToString(sum[:])

	res, err := a.analyze(ctx, requestID, digest, image)
	a.metrics.record(res, err, time.Since(start))
	return res, err
}

func (a *Analyzer) analyze(ctx context.Context, requestID, digest string, image []byte) (*Result, error) {
	opLogger := logging.WithOperation(a.logger, "analyzer.analyze", requestID).With(zap.String("digest", digest))

	width, height, err := decodeImage(image, a.maxPixels)
	if err != nil {
		opLogger.Info("image unreadable", zap.Error(err))
		return &Result{
			RequestID: requestID,
			Digest:    digest,
			Outcome:   OutcomeUnreadable,
			Text:      report.ImageUnreadable,
			CreatedAt: time.Now().UTC(),
		}, nil
	}

	if cached, err := a.lookup(ctx, requestID, digest); err == nil {
		cached.RequestID = requestID
		cached.Cached = true
		opLogger.Debug("served cached report", zap.String("outcome", string(cached.Outcome)))
		return cached, nil
	}

	faces, err := a.provider.Detect(ctx, image, width, height)
	if err != nil {
		wrapped := logging.NewOperationError("analyzer.detect_landmarks", requestID, err)
		opLogger.Error("landmark detection failed", zap.Error(wrapped))
		return nil, wrapped
	}

	res := &Result{
		RequestID: requestID,
		Digest:    digest,
		Width:     width,
		Height:    height,
		CreatedAt: time.Now().UTC(),
	}

	if len(faces) == 0 {
		res.Outcome = OutcomeNoFace
		res.Text = report.NoFace
		opLogger.Info("no face detected")
		a.store(ctx, requestID, res)
		return res, nil
	}
	if len(faces) > 1 {
		opLogger.Debug("multiple faces detected, scoring the dominant one", zap.Int("faces", len(faces)))
	}

	m, err := geometry.Extract(faces[0], width, height)
	if err != nil {
		wrapped := logging.NewOperationError("analyzer.extract_geometry", requestID, err)
		opLogger.Error("landmark set rejected", zap.Error(wrapped), zap.Int("landmarks", len(faces[0])))
		return nil, wrapped
	}

	scores := scoring.Score(m)
	res.Outcome = OutcomeScored
	res.Scores = &scores
	res.Text = report.Render(scores)
	opLogger.Info("face scored", zap.Float64("total", scores.Total))

	a.store(ctx, requestID, res)
	return res, nil
}

// Cached returns the stored report for an image digest.
func (a *Analyzer) Cached(ctx context.Context, digest string) (*Result, error) {
	res, err := a.lookup(ctx, "", digest)
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, ErrNotCached
		}
		return nil, err
	}
	res.Cached = true
	return res, nil
}

func (a *Analyzer) lookup(ctx context.Context, requestID, digest string) (*Result, error) {
	if a.cache == nil {
		return nil, ErrNotCached
	}

	var raw string
	err := a.withCacheRetry(ctx, requestID, "cache.get.report", func() error {
		value, err := a.cache.Get(ctx, reportKey(digest))
		if err != nil {
			return err
		}
		raw = value
		return nil
	})
	if err != nil {
		if !errors.Is(err, redis.Nil) {
			logging.WithOperation(a.logger, "analyzer.lookup", requestID).Warn("failed to read cache", zap.Error(err))
		}
		return nil, err
	}

	var res Result
	if err := json.Unmarshal([]byte(raw), &res); err != nil {
		logging.WithOperation(a.logger, "analyzer.lookup", requestID).Warn("failed to decode cached report", zap.Error(err))
		return nil, err
	}
	return &res, nil
}

// store caches res. Cache failures are logged and otherwise ignored.
func (a *Analyzer) store(ctx context.Context, requestID string, res *Result) {
	if a.cache == nil {
		return
	}
	opLogger := logging.WithOperation(a.logger, "analyzer.store", requestID)

	serialized, err := json.Marshal(res)
	if err != nil {
		opLogger.Error("failed to serialize report", zap.Error(err))
		return
	}
	if err := a.withCacheRetry(ctx, requestID, "cache.set.report", func() error {
		return a.cache.Set(ctx, reportKey(res.Digest), string(serialized), a.cacheTTL)
	}); err != nil {
		opLogger.Warn("failed to cache report", zap.Error(err))
	}
}

func (a *Analyzer) withCacheRetry(ctx context.Context, requestID, operation string, fn func() error) error {
	backoff := a.initialBackoff
	opLogger := logging.WithOperation(a.logger, operation, requestID)
	var err error
	for attempt := 0; attempt < a.retryAttempts; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return logging.NewOperationError(operation, requestID, ctx.Err())
			case <-time.After(backoff):
			}
			if next := backoff * 2; next <= a.maxBackoff {
				backoff = next
			}
		}

		err = fn()
		if err == nil {
			if attempt > 0 {
				opLogger.Info("cache operation succeeded after retry", zap.Int("attempt", attempt+1))
			}
			return nil
		}
		if !isTransientError(err) {
			return logging.NewOperationError(operation, requestID, err)
		}
		opLogger.Warn("transient cache error", zap.Error(err), zap.Int("attempt", attempt+1))
	}
	return logging.NewOperationError(operation, requestID, err)
}

func isTransientError(err error) bool {
	if err == nil {
		return false
	}

	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}

	var netErr interface{ Timeout() bool }
	if errors.As(err, &netErr) && netErr.Timeout() {
		return true
	}

	var temporary interface{ Temporary() bool }
	return errors.As(err, &temporary) && temporary.Temporary()
}
