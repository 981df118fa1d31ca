package config_test

import (
	"context"
	"errors"
	"runtime"
	"testing"
	"time"

	"github.com/okian/rewind/internal/config"
	"github.com/okian/rewind/internal/domain/timeline"
	"github.com/smartystreets/goconvey/convey"
)

func TestConfig_New(t *testing.T) {
	convey.Convey("Given a new config with default options", t, func() {
		cfg := config.New(context.Background())

		convey.Convey("Then it should have sensible defaults", func() {
			convey.So(cfg.Addr, convey.ShouldEqual, ":9080")
			convey.So(cfg.QueueSize, convey.ShouldEqual, 100_000)
			convey.So(cfg.WorkerCount, convey.ShouldEqual, runtime.NumCPU())
			convey.So(cfg.DedupeSize, convey.ShouldEqual, 500_000)
			convey.So(cfg.RetentionKind, convey.ShouldEqual, config.RetentionEntries)
			convey.So(cfg.Compaction, convey.ShouldBeFalse)
			convey.So(cfg.Validate(), convey.ShouldBeNil)
		})

		convey.Convey("Then the default retention is a bounded ring", func() {
			r, err := cfg.Retention()
			convey.So(err, convey.ShouldBeNil)
			convey.So(r, convey.ShouldResemble, timeline.MaxEntries(4096))
		})
	})
}

func TestConfig_Retention(t *testing.T) {
	convey.Convey("Given age retention", t, func() {
		cfg := config.New(context.Background())
		cfg.RetentionKind = "AGE"
		cfg.RetentionMaxAge = 30 * time.Second

		r, err := cfg.Retention()
		convey.So(err, convey.ShouldBeNil)
		convey.So(r, convey.ShouldResemble, timeline.MaxAge(30*time.Second))
	})

	convey.Convey("Given an unknown retention kind", t, func() {
		cfg := config.New(context.Background())
		cfg.RetentionKind = "forever"

		_, err := cfg.Retention()
		convey.So(errors.Is(err, config.ErrInvalidConfig), convey.ShouldBeTrue)
	})

	convey.Convey("Given a non-positive bound", t, func() {
		cfg := config.New(context.Background())
		cfg.RetentionMaxEntries = 0

		err := cfg.Validate()
		convey.So(errors.Is(err, config.ErrInvalidConfig), convey.ShouldBeTrue)
		convey.So(errors.Is(err, timeline.ErrInvalidPolicy), convey.ShouldBeTrue)
	})
}

func TestConfig_Validate(t *testing.T) {
	convey.Convey("Given invalid field values", t, func() {
		cases := map[string]func(*config.Config){
			"empty addr":   func(c *config.Config) { c.Addr = " " },
			"zero queue":   func(c *config.Config) { c.QueueSize = 0 },
			"no workers":   func(c *config.Config) { c.WorkerCount = -1 },
			"no cursors":   func(c *config.Config) { c.MaxCursors = 0 },
			"log format":   func(c *config.Config) { c.LogFormat = "xml" },
			"retain never": func(c *config.Config) { c.RetentionKind = "" },
		}
		for name, mutate := range cases {
			cfg := config.New(context.Background())
			mutate(cfg)
			err := cfg.Validate()

			convey.Convey("Then "+name+" is rejected", func() {
				convey.So(errors.Is(err, config.ErrInvalidConfig), convey.ShouldBeTrue)
			})
		}
	})
}
