package simulate

import (
	"context"
	"fmt"
	"math"
	"net/http"
	"net/url"
	"strconv"
	"sync"

	"github.com/okian/rewind/internal/domain/timeline"
	"github.com/okian/rewind/internal/domain/value"
	"github.com/okian/rewind/pkg/logger"
)

type stateResponse struct {
	State map[string]value.Value `json:"state"`
}

type cursorResponse struct {
	ID      string                 `json:"id"`
	T       float64                `json:"t"`
	Playing bool                   `json:"playing"`
	State   map[string]value.Value `json:"state"`
}

type progressResponse struct {
	To       float64 `json:"to"`
	Looped   bool    `json:"looped"`
	Finished bool    `json:"finished"`
}

type advanceResponse struct {
	Cursor   cursorResponse   `json:"cursor"`
	Progress progressResponse `json:"progress"`
}

// verifyStates queries random times on every object under both policies and
// compares the answers with the locally expected state.
func verifyStates(ctx context.Context, config *Config, client *HTTPClient, trajs []*Trajectory, stats *Stats) error {
	log := logger.Get()
	log.Info(ctx, "verifying reconstructed state", logger.Int("queriesPerObject", config.Queries))

	var (
		mu         sync.Mutex
		checks     int
		mismatches int
		firstErr   error
		wg         sync.WaitGroup
	)
	trajChan := make(chan *Trajectory, config.Workers*WorkerChannelMultiplier)

	for i := 0; i < config.Workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for traj := range trajChan {
				c, m, err := verifyObjectState(ctx, config, client, traj)
				mu.Lock()
				checks += c
				mismatches += m
				if err != nil && firstErr == nil {
					firstErr = err
				}
				mu.Unlock()
			}
		}()
	}
	for _, traj := range trajs {
		trajChan <- traj
	}
	close(trajChan)
	wg.Wait()

	stats.StateChecks = checks
	stats.StateMismatches = mismatches
	if firstErr != nil {
		return firstErr
	}
	log.Info(ctx, "state verification completed",
		logger.Int("checks", checks),
		logger.Int("mismatches", mismatches))
	return nil
}

func verifyObjectState(ctx context.Context, config *Config, client *HTTPClient, traj *Trajectory) (checks, mismatches int, err error) {
	span, ok := traj.Expected.Span()
	if !ok {
		return 0, 0, nil
	}
	for q := 0; q < config.Queries; q++ {
		// Include a margin before the first and after the last sample.
		t := span.Start - config.Step + getRandomFloat()*(span.End-span.Start+2*config.Step)
		for _, policy := range []timeline.Policy{timeline.Hold, timeline.Interpolate} {
			var got stateResponse
			path := fmt.Sprintf("/objects/%s/state?t=%s&policy=%s",
				url.PathEscape(traj.ObjectID), strconv.FormatFloat(t, 'g', -1, 64), policy)
			if err := client.expect(ctx, http.StatusOK, http.MethodGet, path, nil, &got); err != nil {
				return checks, mismatches, err
			}
			checks++
			if diff := diffState(traj.Expected.StateAt(t, policy), got.State); diff != "" {
				mismatches++
				if config.Verbose {
					logger.Get().Warn(ctx, "state mismatch",
						logger.String("objectID", traj.ObjectID),
						logger.Float64("t", t),
						logger.String("policy", policy.String()),
						logger.String("diff", diff))
				}
			}
		}
	}
	return checks, mismatches, nil
}

// verifyCursors scrubs the first config.Cursors objects: it steps a cursor
// across the whole recording, then plays it to the end.
func verifyCursors(ctx context.Context, config *Config, client *HTTPClient, trajs []*Trajectory, stats *Stats) error {
	n := minInt(config.Cursors, len(trajs))
	logger.Get().Info(ctx, "scrubbing with cursors", logger.Int("objects", n))

	for _, traj := range trajs[:n] {
		c, m, err := scrubObject(ctx, config, client, traj)
		stats.CursorChecks += c
		stats.CursorMismatches += m
		if err != nil {
			return err
		}
	}
	return nil
}

func scrubObject(ctx context.Context, config *Config, client *HTTPClient, traj *Trajectory) (checks, mismatches int, err error) {
	span, ok := traj.Expected.Span()
	if !ok {
		return 0, 0, nil
	}

	var cur cursorResponse
	path := "/objects/" + url.PathEscape(traj.ObjectID) + "/cursors"
	if err := client.expect(ctx, http.StatusCreated, http.MethodPost, path, map[string]float64{"t": span.Start}, &cur); err != nil {
		return 0, 0, err
	}
	base := "/cursors/" + url.PathEscape(cur.ID)
	defer func() {
		_, _ = client.do(ctx, http.MethodDelete, base, nil, nil)
	}()

	// Step at half the sample spacing so every sample and every gap is visited.
	delta := config.Step / 2
	for t := span.Start; t <= span.End+delta; t += delta {
		var got cursorResponse
		if err := client.expect(ctx, http.StatusOK, http.MethodPost, base+"/seek", map[string]float64{"t": t}, nil); err != nil {
			return checks, mismatches, err
		}
		if err := client.expect(ctx, http.StatusOK, http.MethodGet, base+"?policy=hold", nil, &got); err != nil {
			return checks, mismatches, err
		}
		checks++
		if diff := diffState(traj.Expected.StateAt(got.T, timeline.Hold), got.State); diff != "" {
			mismatches++
		}
	}

	// Play from the start at double speed until the recording finishes.
	if err := client.expect(ctx, http.StatusOK, http.MethodPost, base+"/seek", map[string]float64{"t": span.Start}, nil); err != nil {
		return checks, mismatches, err
	}
	if err := client.expect(ctx, http.StatusOK, http.MethodPost, base+"/play", map[string]any{"rate": 2.0}, nil); err != nil {
		return checks, mismatches, err
	}
	var adv advanceResponse
	dt := (span.End-span.Start)/2 + config.Step
	if err := client.expect(ctx, http.StatusOK, http.MethodPost, base+"/advance", map[string]float64{"dt": dt}, &adv); err != nil {
		return checks, mismatches, err
	}
	checks++
	if !adv.Progress.Finished || adv.Cursor.Playing || adv.Progress.To != span.End {
		mismatches++
	}
	return checks, mismatches, nil
}

// diffState describes the first difference between two states, or returns
// the empty string when they agree.
func diffState(want, got map[string]value.Value) string {
	if len(want) != len(got) {
		return fmt.Sprintf("want %d properties, got %d", len(want), len(got))
	}
	for prop, w := range want {
		g, ok := got[prop]
		if !ok {
			return fmt.Sprintf("missing property %q", prop)
		}
		if !closeEnough(w, g) {
			return fmt.Sprintf("property %q: want %s, got %s", prop, w, g)
		}
	}
	return ""
}

// closeEnough compares values, tolerating float rounding on numeric kinds.
func closeEnough(a, b value.Value) bool {
	if a.Kind() != b.Kind() {
		return false
	}
	switch a.Kind() {
	case value.KindFloat:
		x, _ := a.AsFloat()
		y, _ := b.AsFloat()
		return math.Abs(x-y) <= FloatTolerance
	case value.KindVector:
		x, _ := a.AsVector()
		y, _ := b.AsVector()
		return math.Abs(x.X-y.X) <= FloatTolerance &&
			math.Abs(x.Y-y.Y) <= FloatTolerance &&
			math.Abs(x.Z-y.Z) <= FloatTolerance
	default:
		return value.Equal(a, b)
	}
}
