package simulate

import (
	"context"
	"crypto/rand"
	"fmt"
	"math/big"

	"github.com/google/uuid"

	"github.com/okian/rewind/internal/domain/timeline"
	"github.com/okian/rewind/internal/domain/value"
	"github.com/okian/rewind/pkg/logger"
)

// Constants for random number generation.
const (
	randomFloatDivisor = 1000000
	stateDivisor       = 4
)

// Constants for trajectory generation.
const (
	startHealth     = 100.0
	maxHealthLoss   = 5.0
	maxSpeed        = 10.0
	stateEvery      = 4
	scoreChancePct  = 30
	scoreDivisorPct = 100
)

var motionStates = []string{"idle", "walk", "run", "jump"} //nolint:gochecknoglobals // fixed vocabulary

// getRandomFloat returns a random float64 between 0.0 and 1.0 using crypto/rand.
func getRandomFloat() float64 {
	n, _ := rand.Int(rand.Reader, big.NewInt(randomFloatDivisor))
	return float64(n.Int64()) / float64(randomFloatDivisor)
}

func randomInt(n int64) int64 {
	v, _ := rand.Int(rand.Reader, big.NewInt(n))
	return v.Int64()
}

// Trajectory is the generated history of one object together with a local
// timeline holding the expected state.
type Trajectory struct {
	ObjectID string
	Samples  []Sample
	Expected *timeline.Timeline
}

// generateTrajectories creates one trajectory per object concurrently.
func generateTrajectories(ctx context.Context, config *Config, stats *Stats) ([]*Trajectory, error) {
	logger.Get().Info(ctx, "generating trajectories",
		logger.Int("objects", config.Objects),
		logger.Int("samplesPerObject", config.SamplesPerObject))

	type result struct {
		index int
		traj  *Trajectory
		err   error
	}

	out := make([]*Trajectory, config.Objects)
	resultChan := make(chan result, config.Objects)

	workerCount := minInt(config.Workers, config.Objects)
	perWorker := config.Objects / workerCount

	for worker := 0; worker < workerCount; worker++ {
		start := worker * perWorker
		end := start + perWorker
		if worker == workerCount-1 {
			end = config.Objects // Last worker gets remaining objects
		}

		go func(start, end int) {
			for i := start; i < end; i++ {
				if err := ctx.Err(); err != nil {
					resultChan <- result{index: i, err: err}
					continue
				}
				traj, err := generateTrajectory("obj-"+uuid.NewString(), config.SamplesPerObject, config.Step)
				resultChan <- result{index: i, traj: traj, err: err}
			}
		}(start, end)
	}

	for i := 0; i < config.Objects; i++ {
		r := <-resultChan
		if r.err != nil {
			return nil, fmt.Errorf("failed to generate trajectory %d: %w", r.index, r.err)
		}
		out[r.index] = r.traj
		stats.SamplesGenerated += len(r.traj.Samples)
	}

	logger.Get().Info(ctx, "generated trajectories", logger.Int("samples", stats.SamplesGenerated))
	return out, nil
}

// generateTrajectory builds n steps of motion for objectID. Every step
// records health and position; the motion state is recorded every few
// steps and the score only when it changes.
func generateTrajectory(objectID string, n int, step float64) (*Trajectory, error) {
	expected, err := timeline.New(objectID, timeline.MaxEntries(retentionFor(n)))
	if err != nil {
		return nil, err
	}
	traj := &Trajectory{ObjectID: objectID, Expected: expected}

	var (
		health = startHealth
		pos    value.Vector
		vel    = value.Vector{
			X: (getRandomFloat()*2 - 1) * maxSpeed,
			Y: (getRandomFloat()*2 - 1) * maxSpeed,
			Z: 0,
		}
		score int64
	)

	add := func(prop string, t float64, v value.Value) error {
		s := Sample{
			SampleID:   fmt.Sprintf("%s-%s-%d", objectID, prop, len(traj.Samples)),
			ObjectID:   objectID,
			PropertyID: prop,
			T:          t,
			Value:      v,
		}
		if err := expected.RecordSample(prop, t, v); err != nil {
			return err
		}
		traj.Samples = append(traj.Samples, s)
		return nil
	}

	for k := 0; k < n; k++ {
		t := float64(k) * step

		if err := add(PropHealth, t, value.Float(health)); err != nil {
			return nil, err
		}
		if err := add(PropPosition, t, value.Vec(pos.X, pos.Y, pos.Z)); err != nil {
			return nil, err
		}
		if k%stateEvery == 0 {
			state := motionStates[randomInt(stateDivisor)]
			if err := add(PropState, t, value.String(state)); err != nil {
				return nil, err
			}
		}
		if k == 0 || randomInt(scoreDivisorPct) < scoreChancePct {
			if k > 0 {
				score++
			}
			if err := add(PropScore, t, value.Int(score)); err != nil {
				return nil, err
			}
		}

		health -= getRandomFloat() * maxHealthLoss
		if health < 0 {
			health = 0
		}
		pos.X += vel.X * step
		pos.Y += vel.Y * step
	}
	return traj, nil
}

// retentionFor sizes the per-track bound so no generated sample is evicted.
func retentionFor(samplesPerObject int) int {
	if samplesPerObject < 1 {
		return 1
	}
	return samplesPerObject
}

// minInt returns the minimum of two integers.
func minInt(a, b int) int {
	if a < b {
		return a
	}
	return b
}
