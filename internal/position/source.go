// Package position wraps the platform location collaborator into a
// uniform, cancellable stream of position samples with interval,
// distance and ordering filters applied.
package position

import (
	"context"
	"errors"
	"sync"
	"time"

	"glamtrack/internal/domain"
	"glamtrack/internal/geo"
)

var (
	// ErrPermissionDenied is returned when location permission is not granted.
	ErrPermissionDenied = errors.New("location permission denied")

	// ErrGeolocationUnavailable is returned when the device location
	// service fails or ends the stream unexpectedly.
	ErrGeolocationUnavailable = errors.New("geolocation unavailable")

	// ErrSourceClosed is returned when opening a stream on a closed source.
	ErrSourceClosed = errors.New("position source closed")
)

// Accuracy selects the desired platform accuracy profile.
type Accuracy string

const (
	AccuracyLow      Accuracy = "LOW"
	AccuracyBalanced Accuracy = "BALANCED"
	AccuracyHigh     Accuracy = "HIGH"
)

// Config controls sample filtering and the platform watch request.
type Config struct {
	DesiredAccuracy   Accuracy
	MinInterval       time.Duration
	MinDistanceMeters float64
}

// WatchOptions is the subset of Config forwarded to the platform provider.
type WatchOptions struct {
	DesiredAccuracy Accuracy
}

// Provider is the platform location collaborator: permission handling
// plus the raw position stream. Implementations live outside the engine
// except for the in-tree simulator.
type Provider interface {
	// RequestPermission resolves the foreground location permission.
	RequestPermission(ctx context.Context) (bool, error)

	// Watch starts the raw platform stream. It must not be called
	// before permission is confirmed; the channel closes when the
	// platform stream ends or ctx is cancelled.
	Watch(ctx context.Context, opts WatchOptions) (<-chan domain.GeoPoint, error)
}

// Sample is one element of the filtered stream: a point or a terminal error.
type Sample struct {
	Point domain.GeoPoint
	Err   error
}

// Source is a single open position stream. It is non-restartable: once
// closed, a new stream requires a new Open call.
type Source struct {
	cfg    Config
	out    chan Sample
	cancel context.CancelFunc
	done   chan struct{}

	mu     sync.Mutex
	closed bool
}

// Open requests permission and, once granted, starts the filtered
// stream. It fails fast with ErrPermissionDenied before any platform
// stream is started.
func Open(ctx context.Context, provider Provider, cfg Config) (*Source, error) {
	granted, err := provider.RequestPermission(ctx)
	if err != nil {
		return nil, err
	}
	if !granted {
		return nil, ErrPermissionDenied
	}

	streamCtx, cancel := context.WithCancel(context.Background())

	raw, err := provider.Watch(streamCtx, WatchOptions{DesiredAccuracy: cfg.DesiredAccuracy})
	if err != nil {
		cancel()
		return nil, err
	}

	s := &Source{
		cfg:    cfg,
		out:    make(chan Sample, 1),
		cancel: cancel,
		done:   make(chan struct{}),
	}

	go s.pump(streamCtx, raw)

	return s, nil
}

// Samples returns the filtered stream. The channel is closed after
// Close, or after a terminal error sample.
func (s *Source) Samples() <-chan Sample {
	return s.out
}

// Close stops the stream. It is idempotent and synchronous: after it
// returns, no further samples are delivered.
func (s *Source) Close() {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	s.closed = true
	s.mu.Unlock()

	s.cancel()
	<-s.done

	// Drain anything buffered so nothing is delivered after Close returns.
	for range s.out {
	}
}

// pump reads raw fixes, applies the filters and delivers into the
// bounded latest-value-wins mailbox.
func (s *Source) pump(ctx context.Context, raw <-chan domain.GeoPoint) {
	defer close(s.done)
	defer close(s.out)

	var last *domain.GeoPoint

	for {
		select {
		case <-ctx.Done():
			return
		case fix, ok := <-raw:
			if !ok {
				// Platform stream died underneath us.
				if ctx.Err() == nil {
					s.deliver(ctx, Sample{Err: ErrGeolocationUnavailable})
				}
				return
			}

			if fix.Validate() != nil {
				continue
			}

			if last != nil {
				// Out-of-order or duplicate timestamps are dropped.
				if !fix.Timestamp.After(last.Timestamp) {
					continue
				}
				if s.cfg.MinInterval > 0 && fix.Timestamp.Sub(last.Timestamp) < s.cfg.MinInterval {
					continue
				}
				if s.cfg.MinDistanceMeters > 0 {
					movedMeters := geo.DistanceKm(*last, fix) * 1000
					if movedMeters < s.cfg.MinDistanceMeters {
						continue
					}
				}
			}

			point := fix
			last = &point
			s.deliver(ctx, Sample{Point: point})
		}
	}
}

// deliver enqueues a sample, superseding a stale undelivered one rather
// than blocking the platform stream.
func (s *Source) deliver(ctx context.Context, smp Sample) {
	for {
		select {
		case <-ctx.Done():
			return
		case s.out <- smp:
			return
		default:
		}

		// Mailbox full: drop the stale sample and retry.
		select {
		case <-s.out:
		default:
		}
	}
}
