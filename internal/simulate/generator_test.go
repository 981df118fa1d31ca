package simulate

import (
	"context"
	"errors"
	"testing"

	"github.com/okian/rewind/internal/domain/timeline"
	"github.com/okian/rewind/internal/domain/value"
	"github.com/okian/rewind/pkg/logger"
	. "github.com/smartystreets/goconvey/convey"
)

func init() {
	if err := logger.Init(); err != nil {
		panic(err)
	}
}

func TestGenerateTrajectory(t *testing.T) {
	Convey("Given a generated trajectory", t, func() {
		traj, err := generateTrajectory("obj-1", 20, 0.5)
		So(err, ShouldBeNil)

		Convey("Then every property is recorded in time order", func() {
			last := map[string]float64{}
			for _, s := range traj.Samples {
				So(s.ObjectID, ShouldEqual, "obj-1")
				if prev, ok := last[s.PropertyID]; ok {
					So(s.T, ShouldBeGreaterThan, prev)
				}
				last[s.PropertyID] = s.T
			}
			So(last[PropHealth], ShouldEqual, 9.5)
		})

		Convey("Then sample ids are unique", func() {
			seen := map[string]bool{}
			for _, s := range traj.Samples {
				So(seen[s.SampleID], ShouldBeFalse)
				seen[s.SampleID] = true
			}
		})

		Convey("Then the expected timeline holds every property", func() {
			So(traj.Expected.PropertyIDs(), ShouldResemble, []string{PropHealth, PropPosition, PropScore, PropState})
			span, ok := traj.Expected.Span()
			So(ok, ShouldBeTrue)
			So(span, ShouldResemble, timeline.Span{Start: 0, End: 9.5})
		})

		Convey("Then health never increases", func() {
			samples, err := traj.Expected.Samples(PropHealth, 0, 10)
			So(err, ShouldBeNil)
			So(samples, ShouldHaveLength, 20)
			for i := 1; i < len(samples); i++ {
				a, _ := samples[i-1].Value.AsFloat()
				b, _ := samples[i].Value.AsFloat()
				So(b, ShouldBeLessThanOrEqualTo, a)
			}
		})
	})
}

func TestGenerateTrajectories(t *testing.T) {
	Convey("Given more objects than workers", t, func() {
		cfg := &Config{Objects: 7, SamplesPerObject: 4, Step: 1, Workers: 3}
		stats := &Stats{}
		trajs, err := generateTrajectories(context.Background(), cfg, stats)

		Convey("Then every object gets a trajectory", func() {
			So(err, ShouldBeNil)
			So(trajs, ShouldHaveLength, 7)
			total := 0
			for _, tr := range trajs {
				So(tr, ShouldNotBeNil)
				total += len(tr.Samples)
			}
			So(stats.SamplesGenerated, ShouldEqual, total)
		})
	})
}

func TestDiffState(t *testing.T) {
	Convey("Given two states", t, func() {
		want := map[string]value.Value{"a": value.Float(1), "b": value.String("x")}

		Convey("Then equal states agree", func() {
			got := map[string]value.Value{"a": value.Float(1 + 1e-12), "b": value.String("x")}
			So(diffState(want, got), ShouldBeEmpty)
		})

		Convey("Then a missing property is reported", func() {
			got := map[string]value.Value{"a": value.Float(1), "c": value.String("x")}
			So(diffState(want, got), ShouldContainSubstring, `"b"`)
		})

		Convey("Then a different kind is reported", func() {
			got := map[string]value.Value{"a": value.Int(1), "b": value.String("x")}
			So(diffState(want, got), ShouldContainSubstring, `"a"`)
		})
	})
}

func TestConfigValidate(t *testing.T) {
	Convey("Given simulation configs", t, func() {
		valid := Config{BaseURL: "http://x", Objects: 1, SamplesPerObject: 2, Step: 1, Workers: 1}
		So(valid.Validate(), ShouldBeNil)

		for _, mutate := range []func(*Config){
			func(c *Config) { c.BaseURL = "" },
			func(c *Config) { c.Objects = 0 },
			func(c *Config) { c.SamplesPerObject = 1 },
			func(c *Config) { c.Step = 0 },
			func(c *Config) { c.Workers = 0 },
			func(c *Config) { c.Queries = -1 },
		} {
			c := valid
			mutate(&c)
			So(errors.Is(c.Validate(), ErrInvalidConfig), ShouldBeTrue)
		}
	})
}
