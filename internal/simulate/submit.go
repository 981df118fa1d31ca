package simulate

import (
	"context"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/okian/rewind/pkg/logger"
)

// Backpressure retry constants.
const (
	maxSubmitAttempts = 20
	retryBackoff      = 10 * time.Millisecond
)

type submitResult int

const (
	resultAccepted submitResult = iota
	resultDuplicate
	resultFailed
)

// submitSamples posts every trajectory. Each worker owns whole
// trajectories so the samples of one object are sent in time order.
func submitSamples(ctx context.Context, config *Config, client *HTTPClient, trajs []*Trajectory, stats *Stats) {
	log := logger.Get()
	log.Info(ctx, "submitting samples",
		logger.Int("samples", stats.SamplesGenerated),
		logger.Int("workers", config.Workers))

	var accepted, duplicate, failed, submitted int64

	trajChan := make(chan *Trajectory, config.Workers*WorkerChannelMultiplier)
	var wg sync.WaitGroup

	for i := 0; i < config.Workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for traj := range trajChan {
				for _, s := range traj.Samples {
					if ctx.Err() != nil {
						return
					}
					atomic.AddInt64(&submitted, 1)
					switch submitSingleSample(ctx, client, s) {
					case resultAccepted:
						atomic.AddInt64(&accepted, 1)
					case resultDuplicate:
						atomic.AddInt64(&duplicate, 1)
					case resultFailed:
						atomic.AddInt64(&failed, 1)
						if config.Verbose {
							log.Warn(ctx, "sample submission failed",
								logger.String("sampleID", s.SampleID))
						}
					}
				}
			}
		}()
	}

	go func() {
		defer close(trajChan)
		for _, traj := range trajs {
			select {
			case <-ctx.Done():
				return
			case trajChan <- traj:
			}
		}
	}()

	wg.Wait()

	stats.SamplesSubmitted = int(atomic.LoadInt64(&submitted))
	stats.SamplesAccepted = int(atomic.LoadInt64(&accepted))
	stats.SamplesDuplicate = int(atomic.LoadInt64(&duplicate))
	stats.SamplesFailed = int(atomic.LoadInt64(&failed))

	log.Info(ctx, "sample submission completed",
		logger.Int("accepted", stats.SamplesAccepted),
		logger.Int("duplicate", stats.SamplesDuplicate),
		logger.Int("failed", stats.SamplesFailed))
}

// submitSingleSample posts one sample, retrying while the service reports
// backpressure.
func submitSingleSample(ctx context.Context, client *HTTPClient, s Sample) submitResult { //nolint:gocritic // hugeParam: read-only copy
	for attempt := 0; attempt < maxSubmitAttempts; attempt++ {
		var ack AckResponse
		status, err := client.do(ctx, http.MethodPost, "/samples", s, &ack)
		if err != nil {
			return resultFailed
		}
		switch status {
		case http.StatusAccepted:
			return resultAccepted
		case http.StatusOK:
			if ack.Duplicate {
				return resultDuplicate
			}
			return resultAccepted
		case http.StatusTooManyRequests:
			select {
			case <-ctx.Done():
				return resultFailed
			case <-time.After(retryBackoff * time.Duration(attempt+1)):
			}
		default:
			return resultFailed
		}
	}
	return resultFailed
}
