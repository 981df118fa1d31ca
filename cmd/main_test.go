package main

import (
	"context"
	"net/http"
	"net/http/httptest"
	"os"
	"strings"
	"testing"
	"time"

	"github.com/okian/rewind/internal/config"
	"github.com/okian/rewind/pkg/logger"
	"github.com/smartystreets/goconvey/convey"
)

func init() {
	if err := logger.Init(); err != nil {
		panic(err)
	}
}

func TestMainFunction(t *testing.T) {
	convey.Convey("Given the main application", t, func() {
		convey.Convey("When configuration comes from the environment", func() {
			_ = os.Setenv("REWIND_ADDR", ":8080")
			_ = os.Setenv("REWIND_QUEUE_SIZE", "1000")
			_ = os.Setenv("REWIND_WORKER_COUNT", "4")
			_ = os.Setenv("REWIND_RETENTION_KIND", "age")
			_ = os.Setenv("REWIND_RETENTION_MAX_AGE", "30s")
			defer func() {
				_ = os.Unsetenv("REWIND_ADDR")
				_ = os.Unsetenv("REWIND_QUEUE_SIZE")
				_ = os.Unsetenv("REWIND_WORKER_COUNT")
				_ = os.Unsetenv("REWIND_RETENTION_KIND")
				_ = os.Unsetenv("REWIND_RETENTION_MAX_AGE")
			}()

			convey.Convey("Then the service is built from it", func() {
				cfg, err := config.Load(context.Background())
				convey.So(err, convey.ShouldBeNil)
				convey.So(cfg.Addr, convey.ShouldEqual, ":8080")

				svc, err := newService(cfg, logger.Get())
				convey.So(err, convey.ShouldBeNil)
				stats := svc.GetStats()
				convey.So(stats["queueSize"], convey.ShouldEqual, 1000)
				convey.So(stats["workerCount"], convey.ShouldEqual, 4)
				convey.So(stats["retention"], convey.ShouldEqual, "max_age(30s)")
			})
		})

		convey.Convey("When the retention kind is unknown", func() {
			cfg := config.New(context.Background())
			cfg.RetentionKind = "forever"

			convey.Convey("Then the service is not built", func() {
				_, err := newService(cfg, logger.Get())
				convey.So(err, convey.ShouldNotBeNil)
			})
		})
	})
}

func TestMainApplicationIntegration(t *testing.T) {
	convey.Convey("Given a started service behind the HTTP server", t, func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()

		cfg := config.New(ctx)
		cfg.WorkerCount = 2
		svc, err := newService(cfg, logger.Get())
		convey.So(err, convey.ShouldBeNil)
		convey.So(svc.Start(ctx), convey.ShouldBeNil)
		defer svc.Stop()

		srv := newHTTPServer(ctx, ":0", svc)
		convey.So(srv.ReadHeaderTimeout, convey.ShouldEqual, readHeaderTimeout)

		convey.Convey("When an object is tracked over HTTP", func() {
			w := httptest.NewRecorder()
			srv.Handler.ServeHTTP(w, httptest.NewRequest(http.MethodPost, "/objects/lantern", nil))
			convey.So(w.Code, convey.ShouldEqual, http.StatusCreated)

			convey.Convey("Then it shows up in the listing and the metrics", func() {
				w := httptest.NewRecorder()
				srv.Handler.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/objects", nil))
				convey.So(w.Body.String(), convey.ShouldContainSubstring, "lantern")

				_ = svc.GetStats()
				w = httptest.NewRecorder()
				srv.Handler.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/healthz", nil))
				convey.So(w.Code, convey.ShouldEqual, http.StatusOK)
				convey.So(strings.Contains(w.Body.String(), "rewind_recorder_tracked_objects 1"), convey.ShouldBeTrue)
			})
		})

		convey.Convey("Then the API docs are served next to the API", func() {
			w := httptest.NewRecorder()
			srv.Handler.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/openapi.yaml", nil))
			convey.So(w.Code, convey.ShouldEqual, http.StatusOK)
			convey.So(w.Body.String(), convey.ShouldContainSubstring, "/objects/{id}/state")
		})
	})
}

func TestMainApplicationComponents(t *testing.T) {
	convey.Convey("Given the background updaters", t, func() {
		ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
		defer cancel()

		convey.Convey("Then they return once the context ends", func() {
			svc, err := newService(config.New(ctx), logger.Get())
			convey.So(err, convey.ShouldBeNil)

			convey.So(func() { startSystemMetricsUpdater(ctx, logger.Get()) }, convey.ShouldNotPanic)
			convey.So(func() { startServiceMetricsUpdater(ctx, svc) }, convey.ShouldNotPanic)
		})
	})
}
