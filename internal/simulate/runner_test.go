package simulate_test

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"
	"time"

	"github.com/okian/rewind/internal/adapters/http/api"
	service "github.com/okian/rewind/internal/app"
	"github.com/okian/rewind/internal/simulate"
	. "github.com/smartystreets/goconvey/convey"
)

func TestRun_EndToEnd(t *testing.T) {
	Convey("Given a recorder served over HTTP", t, func() {
		ctx, cancel := context.WithTimeout(context.Background(), 60*time.Second)
		defer cancel()

		svc := service.New(service.WithWorkerCount(2), service.WithQueueSize(256))
		So(svc.Start(ctx), ShouldBeNil)
		defer svc.Stop()

		mux := http.NewServeMux()
		api.NewServer(svc, svc).Register(ctx, mux)
		srv := httptest.NewServer(mux)
		defer srv.Close()

		Convey("When a simulation runs against it", func() {
			out := filepath.Join(t.TempDir(), "samples.json")
			stats, err := simulate.Run(ctx, &simulate.Config{
				BaseURL:          srv.URL,
				Objects:          6,
				SamplesPerObject: 30,
				Step:             0.25,
				Queries:          10,
				Cursors:          2,
				Workers:          3,
				Timeout:          5 * time.Second,
				SettleTimeout:    10 * time.Second,
				OutputFile:       out,
			})

			Convey("Then every sample is recorded and reconstructed", func() {
				So(err, ShouldBeNil)
				So(stats.SamplesFailed, ShouldEqual, 0)
				So(stats.SamplesAccepted, ShouldEqual, stats.SamplesGenerated)
				So(stats.StateChecks, ShouldEqual, 6*10*2)
				So(stats.StateMismatches, ShouldEqual, 0)
				So(stats.CursorChecks, ShouldBeGreaterThan, 0)
				So(stats.CursorMismatches, ShouldEqual, 0)
			})

			Convey("Then objects are released afterwards", func() {
				ids, err := svc.TrackedObjects(ctx)
				So(err, ShouldBeNil)
				So(ids, ShouldBeEmpty)
			})
		})

		Convey("When the config is invalid", func() {
			_, err := simulate.Run(ctx, &simulate.Config{BaseURL: srv.URL})
			So(errors.Is(err, simulate.ErrInvalidConfig), ShouldBeTrue)
		})
	})
}
