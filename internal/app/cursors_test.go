package service

import (
	"context"
	"errors"
	"testing"

	"github.com/okian/rewind/internal/domain/playback"
	"github.com/okian/rewind/internal/domain/recorder"
	. "github.com/smartystreets/goconvey/convey"
)

func TestService_AttachCursor(t *testing.T) {
	Convey("Given a cursor built over a tracked object", t, func() {
		svc := New(WithWorkerCount(1))
		ctx := context.Background()
		So(svc.Start(ctx), ShouldBeNil)
		defer svc.Stop()

		_, err := svc.StartTracking(ctx, "A", nil)
		So(err, ShouldBeNil)
		rec, err := svc.running()
		So(err, ShouldBeNil)
		tl, err := rec.TimelineFor("A")
		So(err, ShouldBeNil)

		Convey("When the object is stopped before the cursor registers", func() {
			svc.StopTracking(ctx, "A")
			_, err := svc.attachCursor(rec, "A", tl, playback.New(tl))

			Convey("Then the cursor is refused and not kept", func() {
				So(errors.Is(err, recorder.ErrUntrackedObject), ShouldBeTrue)
				So(svc.cursors.len(), ShouldEqual, 0)
			})
		})

		Convey("When the object is restarted before the cursor registers", func() {
			svc.StopTracking(ctx, "A")
			_, err := svc.StartTracking(ctx, "A", nil)
			So(err, ShouldBeNil)
			_, err = svc.attachCursor(rec, "A", tl, playback.New(tl))

			Convey("Then the stale timeline is not played back", func() {
				So(errors.Is(err, recorder.ErrUntrackedObject), ShouldBeTrue)
				So(svc.cursors.len(), ShouldEqual, 0)
			})
		})

		Convey("When the object is still live", func() {
			e, err := svc.attachCursor(rec, "A", tl, playback.New(tl))

			Convey("Then the cursor is registered", func() {
				So(err, ShouldBeNil)
				So(e.objectID, ShouldEqual, "A")
				So(svc.cursors.len(), ShouldEqual, 1)
			})
		})
	})
}
