package recorder_test

import (
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/okian/rewind/internal/domain/recorder"
	"github.com/okian/rewind/internal/domain/timeline"
	"github.com/okian/rewind/internal/domain/value"
	. "github.com/smartystreets/goconvey/convey"
)

func TestRecorder_Lifecycle(t *testing.T) {
	Convey("Given a new recorder", t, func() {
		rec := recorder.New()
		So(rec.SessionID(), ShouldNotEqual, uuid.Nil)

		Convey("When recording for an object that was never started", func() {
			err := rec.RecordSample("ghost", "hp", 0, value.Int(1))

			Convey("Then it fails with ErrUntrackedObject and tracks nothing", func() {
				So(errors.Is(err, recorder.ErrUntrackedObject), ShouldBeTrue)
				So(rec.TrackedObjectIDs(), ShouldBeEmpty)
				So(rec.Stats().Untracked, ShouldEqual, uint64(1))
			})
		})

		Convey("When stopping an object that was never started", func() {
			removed := rec.StopTracking("ghost")

			Convey("Then it is a silent no-op", func() {
				So(removed, ShouldBeFalse)
			})
		})

		Convey("When tracking starts", func() {
			tl, err := rec.StartTracking("A", timeline.MaxEntries(3))
			So(err, ShouldBeNil)
			So(tl.ID(), ShouldEqual, "A")

			Convey("Then starting again with the same policy returns the same timeline", func() {
				again, err := rec.StartTracking("A", timeline.MaxEntries(3))
				So(err, ShouldBeNil)
				So(again, ShouldPointTo, tl)
			})

			Convey("Then only the first start reports a new timeline", func() {
				again, created, err := rec.Track("A", timeline.MaxEntries(3))
				So(err, ShouldBeNil)
				So(created, ShouldBeFalse)
				So(again, ShouldPointTo, tl)

				other, created, err := rec.Track("B", timeline.MaxEntries(3))
				So(err, ShouldBeNil)
				So(created, ShouldBeTrue)
				So(other.ID(), ShouldEqual, "B")

				_, created, err = rec.Track("A", timeline.MaxEntries(4))
				So(errors.Is(err, recorder.ErrPolicyConflict), ShouldBeTrue)
				So(created, ShouldBeFalse)
			})

			Convey("Then starting again with another policy conflicts", func() {
				_, err := rec.StartTracking("A", timeline.MaxEntries(10))
				So(errors.Is(err, recorder.ErrPolicyConflict), ShouldBeTrue)

				_, err = rec.StartTracking("A", timeline.MaxAge(time.Second))
				So(errors.Is(err, recorder.ErrPolicyConflict), ShouldBeTrue)
			})

			Convey("And health is recorded past the retention bound", func() {
				for i, hp := range []float64{100, 80, 60, 40} {
					So(rec.RecordSample("A", "health", float64(i), value.Float(hp)), ShouldBeNil)
				}
				tl, err := rec.TimelineFor("A")
				So(err, ShouldBeNil)

				Convey("Then only the newest three samples remain", func() {
					samples, err := tl.Samples("health", -1, 10)
					So(err, ShouldBeNil)
					So(samples, ShouldHaveLength, 3)
					So(samples[0].Time, ShouldEqual, 1.0)
					So(samples[2].Time, ShouldEqual, 3.0)
				})

				Convey("Then interpolation between retained samples works", func() {
					v, err := tl.ValueAt("health", 1.5, timeline.Interpolate)
					So(err, ShouldBeNil)
					f, _ := v.AsFloat()
					So(f, ShouldAlmostEqual, 70.0)
				})

				Convey("Then the evicted sample reports no data", func() {
					_, err := tl.ValueAt("health", 0, timeline.Hold)
					So(errors.Is(err, timeline.ErrNoData), ShouldBeTrue)
				})

				Convey("Then stats aggregate the track counters", func() {
					st := rec.Stats()
					So(st.Objects, ShouldEqual, 1)
					So(st.Tracks, ShouldEqual, 1)
					So(st.Samples, ShouldEqual, 3)
					So(st.Appended, ShouldEqual, uint64(4))
					So(st.Evicted, ShouldEqual, uint64(1))
				})
			})

			Convey("And tracking is stopped", func() {
				So(rec.RecordSample("A", "hp", 0, value.Int(1)), ShouldBeNil)
				So(rec.StopTracking("A"), ShouldBeTrue)

				Convey("Then later samples fail with ErrUntrackedObject", func() {
					err := rec.RecordSample("A", "hp", 1, value.Int(2))
					So(errors.Is(err, recorder.ErrUntrackedObject), ShouldBeTrue)

					_, err = rec.TimelineFor("A")
					So(errors.Is(err, recorder.ErrUntrackedObject), ShouldBeTrue)

					_, err = rec.PropertyIDs("A")
					So(errors.Is(err, recorder.ErrUntrackedObject), ShouldBeTrue)
				})

				Convey("Then a new session for the object starts empty", func() {
					tl, err := rec.StartTracking("A", timeline.MaxEntries(5))
					So(err, ShouldBeNil)
					So(tl.PropertyIDs(), ShouldBeEmpty)
				})
			})
		})

		Convey("When several objects are tracked", func() {
			for _, id := range []string{"c", "a", "b"} {
				_, err := rec.StartTracking(id, timeline.MaxEntries(1))
				So(err, ShouldBeNil)
			}
			So(rec.RecordSample("b", "pos", 0, value.Vec(1, 2, 3)), ShouldBeNil)
			So(rec.RecordSample("b", "name", 0, value.String("bee")), ShouldBeNil)

			Convey("Then ids and property ids are enumerable", func() {
				So(rec.TrackedObjectIDs(), ShouldResemble, []string{"a", "b", "c"})
				props, err := rec.PropertyIDs("b")
				So(err, ShouldBeNil)
				So(props, ShouldResemble, []string{"name", "pos"})
				So(rec.Len(), ShouldEqual, 3)
			})

			Convey("Then closing the recorder drops every object", func() {
				So(rec.Close(), ShouldBeNil)
				So(rec.TrackedObjectIDs(), ShouldBeEmpty)
			})
		})

		Convey("When starting with invalid input", func() {
			_, err := rec.StartTracking("", timeline.MaxEntries(1))
			So(errors.Is(err, recorder.ErrInvalidObjectID), ShouldBeTrue)

			_, err = rec.StartTracking("x", timeline.MaxEntries(-1))
			So(errors.Is(err, timeline.ErrInvalidPolicy), ShouldBeTrue)
			So(rec.Len(), ShouldEqual, 0)
		})
	})
}

func TestRecorder_Independent(t *testing.T) {
	Convey("Given two recorders in one process", t, func() {
		a := recorder.New(recorder.WithCompaction(true))
		b := recorder.New()

		_, _ = a.StartTracking("obj", timeline.MaxEntries(8))

		Convey("Then they do not share state", func() {
			So(b.TrackedObjectIDs(), ShouldBeEmpty)
			So(a.SessionID(), ShouldNotEqual, b.SessionID())
		})

		Convey("Then the compaction option reaches new timelines", func() {
			for i := 0; i < 5; i++ {
				So(a.RecordSample("obj", "flag", float64(i), value.Bool(true)), ShouldBeNil)
			}
			So(a.Stats().Samples, ShouldEqual, 1)
		})
	})

	Convey("Given a fixed session id", t, func() {
		id := uuid.MustParse("2f1d7c1e-8a57-4a5e-9d41-8c2b33b8e0aa")
		rec := recorder.New(recorder.WithSessionID(id))
		So(rec.SessionID(), ShouldEqual, id)
	})
}
