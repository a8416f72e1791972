package monitoring

import (
	"context"
	"log/slog"
	"time"
)

// RuntimeSampler periodically records Go runtime statistics into Metrics
type RuntimeSampler struct {
	metrics  *Metrics
	interval time.Duration
	stop     chan struct{}
	done     chan struct{}
}

func NewRuntimeSampler(metrics *Metrics, interval time.Duration) *RuntimeSampler {
	return &RuntimeSampler{
		metrics:  metrics,
		interval: interval,
		stop:     make(chan struct{}),
		done:     make(chan struct{}),
	}
}

// Start samples once immediately and then on every tick until Stop or ctx
// is done
func (s *RuntimeSampler) Start(ctx context.Context) {
	s.metrics.RecordRuntime()

	go func() {
		defer close(s.done)
		ticker := time.NewTicker(s.interval)
		defer ticker.Stop()

		slog.Debug("Runtime sampling started", "interval_ms", s.interval.Milliseconds())

		for {
			select {
			case <-ticker.C:
				s.metrics.RecordRuntime()
			case <-s.stop:
				return
			case <-ctx.Done():
				return
			}
		}
	}()
}

// Stop ends sampling and waits for the goroutine to exit
func (s *RuntimeSampler) Stop() {
	select {
	case <-s.stop:
	default:
		close(s.stop)
	}
	<-s.done
}
