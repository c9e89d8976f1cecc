package analyzer

import (
	"bytes"
	"context"
	"encoding/json"
	"encoding/binary"
	"errors"
	"hash/crc32"
	"image"
	"image/png"
	"math"
	"strings"
	"testing"
	"time"

	"github.com/go-redis/redis/v8"
	"go.uber.org/zap"

	"github.com/example/face-score/internal/landmarks"
	"github.com/example/face-score/internal/landmarks/meshtest"
	"github.com/example/face-score/internal/logging"
	"github.com/example/face-score/internal/report"
	"github.com/example/face-score/internal/scoring"
)

type stubProvider struct {
	faces  []landmarks.Set
	err    error
	calls  int
	width  int
	height int
}

func (s *stubProvider) Detect(ctx context.Context, image []byte, width, height int) ([]landmarks.Set, error) {
	s.calls++
	s.width, s.height = width, height
	if s.err != nil {
		return nil, s.err
	}
	return s.faces, nil
}

type stubCache struct {
	setErrs   []error
	getErrs   []error
	getValues []string
	setKeys   []string
	setValues []string
	getKeys   []string
}

func (s *stubCache) Set(ctx context.Context, key string, value interface{}, expiration time.Duration) error {
	s.setKeys = append(s.setKeys, key)
	s.setValues = append(s.setValues, value.(string))
	if len(s.setErrs) == 0 {
		return nil
	}
	err := s.setErrs[0]
	s.setErrs = s.setErrs[1:]
	return err
}

func (s *stubCache) Get(ctx context.Context, key string) (string, error) {
	s.getKeys = append(s.getKeys, key)
	var value string
	if len(s.getValues) > 0 {
		value = s.getValues[0]
		s.getValues = s.getValues[1:]
	}
	err := error(redis.Nil)
	if len(s.getErrs) > 0 {
		err = s.getErrs[0]
		s.getErrs = s.getErrs[1:]
	} else if value != "" {
		err = nil
	}
	return value, err
}

type transientCacheError struct{}

func (transientCacheError) Error() string   { return "cache transient" }
func (transientCacheError) Timeout() bool   { return true }
func (transientCacheError) Temporary() bool { return true }

func pngBytes(t *testing.T, width, height int) []byte {
	t.Helper()
	var buf bytes.Buffer
	if err := png.Encode(&buf, image.NewRGBA(image.Rect(0, 0, width, height))); err != nil {
		t.Fatalf("encode png: %v", err)
	}
	return buf.Bytes()
}

// oversizedPNG returns a valid 1x1 PNG whose header claims width x height.
func oversizedPNG(t *testing.T, width, height uint32) []byte {
	t.Helper()
	data := pngBytes(t, 1, 1)
	// IHDR: 8 byte signature, 4 byte length, then type and 13 data bytes, then CRC.
	binary.BigEndian.PutUint32(data[16:20], width)
	binary.BigEndian.PutUint32(data[20:24], height)
	binary.BigEndian.PutUint32(data[29:33], crc32.ChecksumIEEE(data[12:29]))
	return data
}

func idealFace() landmarks.Set {
	return meshtest.Ideal().Set(meshtest.Width, meshtest.Height)
}

func newTestAnalyzer(p landmarks.Provider, opts ...Option) *Analyzer {
	a := New(p, zap.NewNop(), opts...)
	a.initialBackoff = time.Millisecond
	a.maxBackoff = 2 * time.Millisecond
	return a
}

func TestAnalyzeUnreadableSkipsProvider(t *testing.T) {
	provider := &stubProvider{faces: []landmarks.Set{idealFace()}}
	a := newTestAnalyzer(provider)

	for _, data := range [][]byte{nil, []byte("definitely not an image"), pngBytes(t, 10, 10)[:20]} {
		res, err := a.Analyze(context.Background(), data)
		if err != nil {
			t.Fatalf("expected sentinel result, got error: %v", err)
		}
		if res.Outcome != OutcomeUnreadable || res.Text != report.ImageUnreadable {
			t.Fatalf("unexpected result: %+v", res)
		}
		if !errors.Is(res.Err(), ErrImageUnreadable) {
			t.Fatalf("expected ErrImageUnreadable, got %v", res.Err())
		}
	}
	if provider.calls != 0 {
		t.Fatalf("expected provider not to be called, got %d calls", provider.calls)
	}
}

func TestAnalyzeNoFace(t *testing.T) {
	provider := &stubProvider{}
	a := newTestAnalyzer(provider)

	res, err := a.Analyze(context.Background(), pngBytes(t, 64, 48))
	if err != nil {
		t.Fatalf("expected sentinel result, got error: %v", err)
	}
	if res.Outcome != OutcomeNoFace || res.Text != report.NoFace || res.Scores != nil {
		t.Fatalf("unexpected result: %+v", res)
	}
	if !errors.Is(res.Err(), ErrNoFace) {
		t.Fatalf("expected ErrNoFace, got %v", res.Err())
	}
	if provider.width != 64 || provider.height != 48 {
		t.Fatalf("expected provider to receive decoded size, got %dx%d", provider.width, provider.height)
	}
}

func TestAnalyzeScoresDominantFace(t *testing.T) {
	poor := meshtest.Ideal().With(landmarks.Chin, 200, 395).Set(meshtest.Width, meshtest.Height)
	provider := &stubProvider{faces: []landmarks.Set{idealFace(), poor}}
	a := newTestAnalyzer(provider)

	res, err := a.Analyze(context.Background(), pngBytes(t, meshtest.Width, meshtest.Height))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if res.Outcome != OutcomeScored || res.Err() != nil {
		t.Fatalf("unexpected outcome: %+v", res)
	}
	if res.Scores.Total != scoring.TotalCeiling {
		t.Fatalf("expected the ideal face to be scored, got total %v", res.Scores.Total)
	}
	if !strings.Contains(res.Text, "Overall harsh score: 100.0/100") {
		t.Fatalf("unexpected report:\n%s", res.Text)
	}
	if len(res.Digest) != 40 || res.RequestID == "" {
		t.Fatalf("expected digest and request id, got %q %q", res.Digest, res.RequestID)
	}
}

func TestAnalyzeIsIdempotent(t *testing.T) {
	a := newTestAnalyzer(&stubProvider{faces: []landmarks.Set{idealFace()}})
	img := pngBytes(t, meshtest.Width, meshtest.Height)

	first, err := a.Analyze(context.Background(), img)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	second, err := a.Analyze(context.Background(), img)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if first.Text != second.Text || first.Digest != second.Digest {
		t.Fatal("expected identical reports for identical input")
	}
	if first.RequestID == second.RequestID {
		t.Fatal("expected a fresh request id per call")
	}
}

func TestAnalyzeWrapsProviderError(t *testing.T) {
	a := newTestAnalyzer(&stubProvider{err: errors.New("unavailable")})

	_, err := a.Analyze(context.Background(), pngBytes(t, 8, 8))
	var opErr *logging.OperationError
	if !errors.As(err, &opErr) {
		t.Fatalf("expected OperationError, got %T (%v)", err, err)
	}
	if opErr.Operation != "analyzer.detect_landmarks" {
		t.Fatalf("unexpected operation: %s", opErr.Operation)
	}
}

func TestAnalyzeRejectsIncompleteLandmarks(t *testing.T) {
	a := newTestAnalyzer(&stubProvider{faces: []landmarks.Set{make(landmarks.Set, 68)}})

	_, err := a.Analyze(context.Background(), pngBytes(t, 8, 8))
	if !errors.Is(err, landmarks.ErrIncompleteSet) {
		t.Fatalf("expected ErrIncompleteSet, got %v", err)
	}
	if logging.OperationOf(err) != "analyzer.extract_geometry" {
		t.Fatalf("unexpected operation: %q", logging.OperationOf(err))
	}
}

func TestAnalyzeRejectsLandmarksOutsideImage(t *testing.T) {
	face := idealFace()
	face[10] = landmarks.Point{X: math.NaN(), Y: 0.1}
	cache := &stubCache{}
	a := newTestAnalyzer(&stubProvider{faces: []landmarks.Set{face}}, WithCache(cache, time.Minute))

	res, err := a.Analyze(context.Background(), pngBytes(t, meshtest.Width, meshtest.Height))
	if !errors.Is(err, landmarks.ErrInvalidPoint) {
		t.Fatalf("expected ErrInvalidPoint, got %v (result %+v)", err, res)
	}
	if logging.OperationOf(err) != "analyzer.extract_geometry" {
		t.Fatalf("unexpected operation: %q", logging.OperationOf(err))
	}
	if len(cache.setKeys) != 0 {
		t.Fatalf("expected nothing cached, got %v", cache.setKeys)
	}
}

func TestDecodeImageChecksPixelLimitBeforeDecoding(t *testing.T) {
	_, _, err := decodeImage(oversizedPNG(t, 100000, 100000), DefaultMaxImagePixels)
	if !errors.Is(err, errImageTooLarge) {
		t.Fatalf("expected errImageTooLarge, got %v", err)
	}

	w, h, err := decodeImage(pngBytes(t, 30, 20), 600)
	if err != nil || w != 30 || h != 20 {
		t.Fatalf("expected 30x20 at the limit, got %dx%d (%v)", w, h, err)
	}
}

func TestAnalyzeTreatsOversizedImagesAsUnreadable(t *testing.T) {
	provider := &stubProvider{faces: []landmarks.Set{idealFace()}}
	a := newTestAnalyzer(provider, WithMaxImagePixels(100*100))

	for _, data := range [][]byte{oversizedPNG(t, 8000, 8000), pngBytes(t, 101, 100)} {
		res, err := a.Analyze(context.Background(), data)
		if err != nil {
			t.Fatalf("expected sentinel result, got error: %v", err)
		}
		if res.Outcome != OutcomeUnreadable || res.Text != report.ImageUnreadable {
			t.Fatalf("unexpected result: %+v", res)
		}
	}
	if provider.calls != 0 {
		t.Fatalf("expected provider not to be called, got %d calls", provider.calls)
	}
}

func TestAnalyzeStoresAndServesCachedReports(t *testing.T) {
	cache := &stubCache{}
	provider := &stubProvider{faces: []landmarks.Set{idealFace()}}
	a := newTestAnalyzer(provider, WithCache(cache, time.Minute))
	img := pngBytes(t, meshtest.Width, meshtest.Height)

	first, err := a.Analyze(context.Background(), img)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(cache.setKeys) != 1 || cache.setKeys[0] != "report:"+first.Digest {
		t.Fatalf("expected report to be cached under its digest, got %v", cache.setKeys)
	}

	cache.getValues = []string{cache.setValues[0]}
	second, err := a.Analyze(context.Background(), img)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if provider.calls != 1 {
		t.Fatalf("expected cache hit to skip the provider, got %d calls", provider.calls)
	}
	if !second.Cached || second.Text != first.Text || second.RequestID == first.RequestID {
		t.Fatalf("unexpected cached result: %+v", second)
	}
}

func TestAnalyzeRetriesTransientCacheErrors(t *testing.T) {
	cache := &stubCache{
		getErrs: []error{transientCacheError{}, redis.Nil},
		setErrs: []error{transientCacheError{}},
	}
	a := newTestAnalyzer(&stubProvider{faces: []landmarks.Set{idealFace()}}, WithCache(cache, time.Minute))

	if _, err := a.Analyze(context.Background(), pngBytes(t, 8, 8)); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(cache.getKeys) != 2 {
		t.Fatalf("expected get to be retried once, got %d calls", len(cache.getKeys))
	}
	if len(cache.setKeys) != 2 || cache.setKeys[0] != cache.setKeys[1] {
		t.Fatalf("expected set to be retried on the same key, got %v", cache.setKeys)
	}
}

func TestAnalyzeIgnoresCacheFailures(t *testing.T) {
	cache := &stubCache{
		getErrs: []error{errors.New("connection refused")},
		setErrs: []error{errors.New("connection refused")},
	}
	a := newTestAnalyzer(&stubProvider{faces: []landmarks.Set{idealFace()}}, WithCache(cache, time.Minute))

	res, err := a.Analyze(context.Background(), pngBytes(t, 8, 8))
	if err != nil {
		t.Fatalf("expected cache failures to be tolerated, got %v", err)
	}
	if res.Outcome != OutcomeScored {
		t.Fatalf("unexpected outcome: %s", res.Outcome)
	}
}

func TestCached(t *testing.T) {
	if _, err := newTestAnalyzer(&stubProvider{}).Cached(context.Background(), "abc"); !errors.Is(err, ErrNotCached) {
		t.Fatalf("expected ErrNotCached without a cache, got %v", err)
	}

	cache := &stubCache{}
	a := newTestAnalyzer(&stubProvider{}, WithCache(cache, time.Minute))
	if _, err := a.Cached(context.Background(), "abc"); !errors.Is(err, ErrNotCached) {
		t.Fatalf("expected ErrNotCached on miss, got %v", err)
	}

	stored, err := json.Marshal(Result{Digest: "abc", Outcome: OutcomeNoFace, Text: report.NoFace})
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	cache.getValues = []string{string(stored)}
	res, err := a.Cached(context.Background(), "abc")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if res.Outcome != OutcomeNoFace || !res.Cached || cache.getKeys[len(cache.getKeys)-1] != "report:abc" {
		t.Fatalf("unexpected cached result: %+v", res)
	}
}

func TestMetrics(t *testing.T) {
	provider := &stubProvider{faces: []landmarks.Set{idealFace()}}
	a := newTestAnalyzer(provider)
	img := pngBytes(t, meshtest.Width, meshtest.Height)

	_, _ = a.Analyze(context.Background(), img)
	_, _ = a.Analyze(context.Background(), []byte("junk"))
	provider.faces = nil
	_, _ = a.Analyze(context.Background(), img)
	provider.err = errors.New("down")
	_, _ = a.Analyze(context.Background(), img)

	m := a.Metrics()
	if m.TotalRequests != 4 || m.Scored != 1 || m.Unreadable != 1 || m.NoFace != 1 || m.Failed != 1 {
		t.Fatalf("unexpected counters: %+v", m)
	}
	if m.AverageScore != scoring.TotalCeiling {
		t.Fatalf("unexpected average score: %v", m.AverageScore)
	}
}
