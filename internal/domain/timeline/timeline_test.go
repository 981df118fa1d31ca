package timeline_test

import (
	"errors"
	"sync"
	"testing"

	"github.com/okian/rewind/internal/domain/timeline"
	"github.com/okian/rewind/internal/domain/value"
	. "github.com/smartystreets/goconvey/convey"
)

func TestTimeline_StateAt(t *testing.T) {
	Convey("Given a timeline with properties starting at different times", t, func() {
		tl, err := timeline.New("A", timeline.MaxEntries(16))
		So(err, ShouldBeNil)

		So(tl.RecordSample("x", 0, value.Float(1)), ShouldBeNil)
		So(tl.RecordSample("x", 2, value.Float(3)), ShouldBeNil)
		So(tl.RecordSample("y", 5, value.String("late")), ShouldBeNil)

		Convey("When querying before the late property has data", func() {
			state := tl.StateAt(1, timeline.Hold)

			Convey("Then only the early property is returned", func() {
				So(state, ShouldHaveLength, 1)
				So(value.Equal(state["x"], value.Float(1)), ShouldBeTrue)
				_, ok := state["y"]
				So(ok, ShouldBeFalse)
			})
		})

		Convey("When interpolating after both have data", func() {
			state := tl.StateAt(6, timeline.Interpolate)

			Convey("Then both properties resolve", func() {
				So(state, ShouldHaveLength, 2)
				So(value.Equal(state["x"], value.Float(3)), ShouldBeTrue)
				So(value.Equal(state["y"], value.String("late")), ShouldBeTrue)
			})
		})

		Convey("When interpolating a numeric property between samples", func() {
			v, err := tl.ValueAt("x", 1, timeline.Interpolate)

			Convey("Then the value is blended", func() {
				So(err, ShouldBeNil)
				f, _ := v.AsFloat()
				So(f, ShouldAlmostEqual, 2.0)
			})
		})

		Convey("When querying before any data", func() {
			So(tl.StateAt(-1, timeline.Hold), ShouldBeEmpty)
			_, err := tl.ValueAt("x", -1, timeline.Hold)
			So(errors.Is(err, timeline.ErrNoData), ShouldBeTrue)
		})

		Convey("When querying an unknown property", func() {
			_, err := tl.ValueAt("z", 1, timeline.Hold)
			So(errors.Is(err, timeline.ErrUnknownProperty), ShouldBeTrue)

			_, err = tl.Samples("z", 0, 10)
			So(errors.Is(err, timeline.ErrUnknownProperty), ShouldBeTrue)
		})

		Convey("When viewing a single track", func() {
			view, err := tl.Track("x")
			So(err, ShouldBeNil)
			So(view.PropertyID(), ShouldEqual, "x")

			Convey("Then it follows later appends", func() {
				So(tl.RecordSample("x", 4, value.Float(5)), ShouldBeNil)
				So(view.Samples(), ShouldHaveLength, 3)
				first, last, ok := view.Span()
				So(ok, ShouldBeTrue)
				So(first, ShouldEqual, 0.0)
				So(last, ShouldEqual, 4.0)
				So(view.Stats().Appended, ShouldEqual, uint64(3))

				v, err := view.ValueAt(3, timeline.Interpolate)
				So(err, ShouldBeNil)
				f, _ := v.AsFloat()
				So(f, ShouldAlmostEqual, 4.0)
			})

			Convey("Then unknown properties have no view", func() {
				_, err := tl.Track("z")
				So(errors.Is(err, timeline.ErrUnknownProperty), ShouldBeTrue)
			})
		})

		Convey("Then property ids and span cover both tracks", func() {
			So(tl.PropertyIDs(), ShouldResemble, []string{"x", "y"})
			span, ok := tl.Span()
			So(ok, ShouldBeTrue)
			So(span, ShouldResemble, timeline.Span{Start: 0, End: 5})
		})
	})
}

func TestTimeline_RecordSample(t *testing.T) {
	Convey("Given a timeline bounded to two entries", t, func() {
		tl, err := timeline.New("B", timeline.MaxEntries(2))
		So(err, ShouldBeNil)

		Convey("When a property is added mid session", func() {
			So(tl.RecordSample("a", 0, value.Int(0)), ShouldBeNil)
			So(tl.RecordSample("a", 1, value.Int(1)), ShouldBeNil)
			So(tl.RecordSample("a", 2, value.Int(2)), ShouldBeNil)
			before, _ := tl.Samples("a", 0, 10)

			So(tl.RecordSample("b", 0.5, value.Int(5)), ShouldBeNil)

			Convey("Then existing tracks are untouched", func() {
				after, _ := tl.Samples("a", 0, 10)
				So(after, ShouldResemble, before)
				So(tl.Stats().Evicted, ShouldEqual, uint64(1))
			})
		})

		Convey("When the first sample of a property is invalid", func() {
			err := tl.RecordSample("ghost", 0, value.Value{})

			Convey("Then no track is created", func() {
				So(errors.Is(err, timeline.ErrInvalidSample), ShouldBeTrue)
				So(tl.PropertyIDs(), ShouldBeEmpty)
			})
		})

		Convey("When the property id is empty", func() {
			err := tl.RecordSample(" ", 0, value.Int(1))
			So(errors.Is(err, timeline.ErrInvalidSample), ShouldBeTrue)
		})

		Convey("When a stale sample is recorded", func() {
			So(tl.RecordSample("a", 3, value.Int(0)), ShouldBeNil)
			err := tl.RecordSample("a", 3, value.Int(1))

			Convey("Then it is rejected with the property in the message", func() {
				So(errors.Is(err, timeline.ErrNonMonotonicTime), ShouldBeTrue)
				So(err.Error(), ShouldContainSubstring, `"a"`)
			})
		})

		Convey("When the timeline is cleared", func() {
			So(tl.RecordSample("a", 3, value.Int(0)), ShouldBeNil)
			tl.Clear()

			Convey("Then the property set survives without history", func() {
				So(tl.PropertyIDs(), ShouldResemble, []string{"a"})
				So(tl.StateAt(3, timeline.Hold), ShouldBeEmpty)
				So(tl.Stats().Samples, ShouldEqual, 0)
			})
		})
	})

	Convey("Given an invalid retention policy", t, func() {
		_, err := timeline.New("C", timeline.MaxEntries(0))
		So(errors.Is(err, timeline.ErrInvalidPolicy), ShouldBeTrue)
	})
}

func TestTimeline_Crossings(t *testing.T) {
	Convey("Given a timeline with interleaved samples", t, func() {
		tl, _ := timeline.New("C", timeline.MaxEntries(16))
		_ = tl.RecordSample("a", 1, value.Int(1))
		_ = tl.RecordSample("a", 3, value.Int(3))
		_ = tl.RecordSample("b", 2, value.Int(2))
		_ = tl.RecordSample("b", 3, value.Int(30))

		Convey("When moving forward", func() {
			got := tl.Crossings(1, 3)

			Convey("Then samples in (from, to] are returned in order", func() {
				So(got, ShouldHaveLength, 3)
				So(got[0].Property, ShouldEqual, "b")
				So(got[0].Time, ShouldEqual, 2.0)
				So(got[1].Property, ShouldEqual, "a")
				So(got[2].Property, ShouldEqual, "b")
				So(got[2].Time, ShouldEqual, 3.0)
			})
		})

		Convey("When moving backward", func() {
			got := tl.Crossings(3, 1)

			Convey("Then samples in [to, from) are returned newest first", func() {
				So(got, ShouldHaveLength, 2)
				So(got[0].Time, ShouldEqual, 2.0)
				So(got[1].Time, ShouldEqual, 1.0)
			})
		})

		Convey("When not moving", func() {
			So(tl.Crossings(2, 2), ShouldBeEmpty)
		})
	})
}

func TestTimeline_ConcurrentReaders(t *testing.T) {
	tl, _ := timeline.New("D", timeline.MaxEntries(64))
	var wg sync.WaitGroup
	stop := make(chan struct{})

	for r := 0; r < 4; r++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for {
				select {
				case <-stop:
					return
				default:
					_ = tl.StateAt(50, timeline.Interpolate)
					_ = tl.PropertyIDs()
				}
			}
		}()
	}

	for i := 0; i < 1000; i++ {
		if err := tl.RecordSample("p", float64(i), value.Float(float64(i))); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
	}
	close(stop)
	wg.Wait()

	if got := tl.Stats().Samples; got != 64 {
		t.Errorf("expected 64 retained samples, got %d", got)
	}
}
