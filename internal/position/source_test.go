package position

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"glamtrack/internal/domain"
)

// stubProvider is a hand-driven Provider: the test feeds fixes directly.
type stubProvider struct {
	granted    bool
	fixes      chan domain.GeoPoint
	watchCalls int32
}

func newStubProvider(granted bool) *stubProvider {
	return &stubProvider{
		granted: granted,
		fixes:   make(chan domain.GeoPoint),
	}
}

func (p *stubProvider) RequestPermission(ctx context.Context) (bool, error) {
	return p.granted, nil
}

func (p *stubProvider) Watch(ctx context.Context, opts WatchOptions) (<-chan domain.GeoPoint, error) {
	atomic.AddInt32(&p.watchCalls, 1)
	out := make(chan domain.GeoPoint)
	go func() {
		defer close(out)
		for {
			select {
			case <-ctx.Done():
				return
			case fix, ok := <-p.fixes:
				if !ok {
					return
				}
				select {
				case <-ctx.Done():
					return
				case out <- fix:
				}
			}
		}
	}()
	return out, nil
}

func fixAt(lat, lng float64, ts time.Time) domain.GeoPoint {
	return domain.GeoPoint{Latitude: lat, Longitude: lng, Timestamp: ts}
}

func receiveSample(t *testing.T, s *Source) Sample {
	t.Helper()
	select {
	case smp, ok := <-s.Samples():
		if !ok {
			t.Fatal("sample stream closed unexpectedly")
		}
		return smp
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for sample")
	}
	return Sample{}
}

func TestOpen_PermissionDenied_NeverStartsWatch(t *testing.T) {
	t.Parallel()

	provider := newStubProvider(false)

	_, err := Open(context.Background(), provider, Config{})
	if !errors.Is(err, ErrPermissionDenied) {
		t.Fatalf("expected ErrPermissionDenied, got %v", err)
	}

	if calls := atomic.LoadInt32(&provider.watchCalls); calls != 0 {
		t.Errorf("expected Watch never to be called, called %d times", calls)
	}
}

func TestSource_DropsOutOfOrderSamples(t *testing.T) {
	t.Parallel()

	provider := newStubProvider(true)
	source, err := Open(context.Background(), provider, Config{})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	defer source.Close()

	base := time.Now()

	provider.fixes <- fixAt(30.9010, 75.8573, base)
	first := receiveSample(t, source)
	if first.Err != nil {
		t.Fatalf("unexpected error sample: %v", first.Err)
	}

	// Earlier and duplicate timestamps must be suppressed.
	provider.fixes <- fixAt(30.9020, 75.8580, base.Add(-time.Second))
	provider.fixes <- fixAt(30.9030, 75.8590, base)
	provider.fixes <- fixAt(30.9040, 75.8600, base.Add(time.Second))

	next := receiveSample(t, source)
	if next.Point.Latitude != 30.9040 {
		t.Errorf("expected only the newer sample, got latitude %f", next.Point.Latitude)
	}
}

func TestSource_MinDistanceFilter(t *testing.T) {
	t.Parallel()

	provider := newStubProvider(true)
	source, err := Open(context.Background(), provider, Config{MinDistanceMeters: 100})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	defer source.Close()

	base := time.Now()

	provider.fixes <- fixAt(30.9010, 75.8573, base)
	receiveSample(t, source)

	// ~40m away: below the 100m distance filter, never emitted.
	provider.fixes <- fixAt(30.90135, 75.85745, base.Add(time.Second))
	// ~1km away: passes.
	provider.fixes <- fixAt(30.9100, 75.8600, base.Add(2*time.Second))

	next := receiveSample(t, source)
	if next.Point.Latitude != 30.9100 {
		t.Errorf("expected the distant sample, got latitude %f", next.Point.Latitude)
	}
}

func TestSource_LatestValueWins(t *testing.T) {
	t.Parallel()

	provider := newStubProvider(true)
	source, err := Open(context.Background(), provider, Config{})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	defer source.Close()

	base := time.Now()

	// Without a consumer the mailbox holds only the newest sample.
	provider.fixes <- fixAt(30.9010, 75.8573, base)
	provider.fixes <- fixAt(30.9020, 75.8580, base.Add(time.Second))
	provider.fixes <- fixAt(30.9030, 75.8590, base.Add(2*time.Second))

	// Let the pump process the backlog.
	time.Sleep(50 * time.Millisecond)

	got := receiveSample(t, source)
	if got.Point.Latitude != 30.9030 {
		t.Errorf("expected the latest sample to win, got latitude %f", got.Point.Latitude)
	}
}

func TestSource_CloseIsSynchronousAndIdempotent(t *testing.T) {
	t.Parallel()

	provider := newStubProvider(true)
	source, err := Open(context.Background(), provider, Config{})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	provider.fixes <- fixAt(30.9010, 75.8573, time.Now())
	time.Sleep(20 * time.Millisecond)

	source.Close()
	source.Close()

	// After Close returns the stream only reports closed.
	select {
	case smp, ok := <-source.Samples():
		if ok {
			t.Errorf("received sample after Close: %+v", smp)
		}
	default:
		// Channel drained and closed; a receive would not block, but
		// either observation is acceptable here.
	}
}

func TestSource_PlatformStreamFailure(t *testing.T) {
	t.Parallel()

	provider := newStubProvider(true)
	source, err := Open(context.Background(), provider, Config{})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	defer source.Close()

	close(provider.fixes)

	smp := receiveSample(t, source)
	if !errors.Is(smp.Err, ErrGeolocationUnavailable) {
		t.Errorf("expected ErrGeolocationUnavailable, got %v", smp.Err)
	}
}
