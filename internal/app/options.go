package service

import (
	"go.opentelemetry.io/otel/trace"

	"github.com/okian/rewind/internal/domain/timeline"
	"github.com/okian/rewind/pkg/logger"
)

// Option applies a configuration option to the Service.
type Option func(*Service)

// WithWorkerCount sets the number of capture workers.
func WithWorkerCount(count int) Option {
	return func(s *Service) {
		if count > 0 {
			s.workerCount = count
		}
	}
}

// WithQueueSize sets the total capture queue capacity.
func WithQueueSize(size int) Option {
	return func(s *Service) {
		if size > 0 {
			s.queueSize = size
		}
	}
}

// WithDedupeSize sets how many sample ids are remembered.
func WithDedupeSize(size int) Option {
	return func(s *Service) {
		if size > 0 {
			s.dedupeSize = size
		}
	}
}

// WithRetention sets the policy used when a tracking request names none.
func WithRetention(r timeline.Retention) Option {
	return func(s *Service) {
		if r.Validate() == nil {
			s.retention = r
		}
	}
}

// WithCompaction coalesces equal consecutive values on every timeline.
func WithCompaction(enabled bool) Option {
	return func(s *Service) {
		s.compaction = enabled
	}
}

// WithMaxCursors caps the number of open playback cursors.
func WithMaxCursors(n int) Option {
	return func(s *Service) {
		if n > 0 {
			s.maxCursors = n
		}
	}
}

// WithLogger sets a custom logger for the service.
func WithLogger(l logger.Logger) Option {
	return func(s *Service) {
		if l != nil {
			s.logger = l
		}
	}
}

// WithTracer sets the tracer used for service spans.
func WithTracer(t trace.Tracer) Option {
	return func(s *Service) {
		if t != nil {
			s.tracer = t
		}
	}
}
