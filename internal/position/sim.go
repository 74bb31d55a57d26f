package position

import (
	"context"
	"time"

	"glamtrack/internal/domain"
)

// SimProvider replays a scripted sequence of fixes at a fixed cadence.
// It backs cmd/tracker runs and tests; real deployments supply a
// device-backed Provider.
type SimProvider struct {
	Granted bool
	Fixes   []domain.GeoPoint
	Cadence time.Duration
}

// RequestPermission resolves with the scripted grant decision.
func (p *SimProvider) RequestPermission(ctx context.Context) (bool, error) {
	return p.Granted, nil
}

// Watch replays the scripted fixes. Fixes without a timestamp are
// stamped at emit time.
func (p *SimProvider) Watch(ctx context.Context, opts WatchOptions) (<-chan domain.GeoPoint, error) {
	ch := make(chan domain.GeoPoint)

	go func() {
		defer close(ch)
		for _, fix := range p.Fixes {
			if p.Cadence > 0 {
				select {
				case <-ctx.Done():
					return
				case <-time.After(p.Cadence):
				}
			}

			if fix.Timestamp.IsZero() {
				fix.Timestamp = time.Now()
			}

			select {
			case <-ctx.Done():
				return
			case ch <- fix:
			}
		}

		// Keep the stream open until cancelled, like a real device watch.
		<-ctx.Done()
	}()

	return ch, nil
}
