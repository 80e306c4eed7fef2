package main

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"strings"
	"testing"
	"time"

	"github.com/smartystreets/goconvey/convey"

	"github.com/okian/medrisk/internal/adapters/http/api"
	service "github.com/okian/medrisk/internal/app"
	"github.com/okian/medrisk/internal/config"
	"github.com/okian/medrisk/pkg/logger"
)

func init() {
	if err := logger.Init(); err != nil {
		panic(err)
	}
}

func TestMainConfiguration(t *testing.T) {
	convey.Convey("Given environment overrides", t, func() {
		_ = os.Unsetenv("MEDRISK_CONFIG")
		_ = os.Setenv("MEDRISK_ADDR", ":8080")
		_ = os.Setenv("MEDRISK_QUEUE_SIZE", "1000")
		_ = os.Setenv("MEDRISK_WORKER_COUNT", "4")
		defer func() {
			_ = os.Unsetenv("MEDRISK_ADDR")
			_ = os.Unsetenv("MEDRISK_QUEUE_SIZE")
			_ = os.Unsetenv("MEDRISK_WORKER_COUNT")
		}()

		convey.Convey("When configuration is loaded", func() {
			cfg, err := config.Load(context.Background())

			convey.Convey("Then the overrides are applied", func() {
				convey.So(err, convey.ShouldBeNil)
				convey.So(cfg.Addr, convey.ShouldEqual, ":8080")
				convey.So(cfg.QueueSize, convey.ShouldEqual, 1000)
				convey.So(cfg.WorkerCount, convey.ShouldEqual, 4)
			})

			convey.Convey("And a service can be built from it", func() {
				svc := newService(cfg, logger.Get())
				convey.So(svc, convey.ShouldNotBeNil)
				stats := svc.GetStats()
				convey.So(stats["workerCount"], convey.ShouldEqual, 4)
				convey.So(stats["queueSize"], convey.ShouldEqual, 1000)
			})
		})
	})

	convey.Convey("Given an invalid override", t, func() {
		_ = os.Setenv("MEDRISK_ADDR", "")
		defer func() { _ = os.Unsetenv("MEDRISK_ADDR") }()

		convey.Convey("Then configuration loading fails", func() {
			cfg, err := config.Load(context.Background())
			convey.So(err, convey.ShouldNotBeNil)
			convey.So(cfg, convey.ShouldBeNil)
		})
	})
}

func TestNewHandler(t *testing.T) {
	convey.Convey("Given the assembled handler", t, func() {
		ctx, cancel := context.WithCancel(context.Background())
		defer cancel()

		cfg := config.New(ctx)
		cfg.FullDelayMS = 0
		svc := newService(cfg, logger.Get())
		convey.So(svc.Start(ctx), convey.ShouldBeNil)
		defer svc.Stop()

		h := newHandler(ctx, cfg, svc)

		get := func(path string) *httptest.ResponseRecorder {
			rec := httptest.NewRecorder()
			h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, path, http.NoBody))
			return rec
		}

		convey.Convey("Then the API, docs and metrics routes are served", func() {
			root := get("/")
			convey.So(root.Code, convey.ShouldEqual, http.StatusOK)
			var banner map[string]any
			convey.So(json.Unmarshal(root.Body.Bytes(), &banner), convey.ShouldBeNil)
			convey.So(banner["service"], convey.ShouldEqual, api.ServiceName)

			convey.So(get("/healthz").Code, convey.ShouldEqual, http.StatusOK)
			convey.So(get("/stats").Code, convey.ShouldEqual, http.StatusOK)
			convey.So(get("/metrics").Code, convey.ShouldEqual, http.StatusOK)
			convey.So(get("/api-docs").Code, convey.ShouldEqual, http.StatusOK)
			convey.So(get("/openapi.yaml").Code, convey.ShouldEqual, http.StatusOK)
		})

		convey.Convey("Then a light prediction round-trips", func() {
			rec := httptest.NewRecorder()
			req := httptest.NewRequest(http.MethodPost, api.PathLight, strings.NewReader(`{"last_dose_missed": true}`))
			h.ServeHTTP(rec, req)
			convey.So(rec.Code, convey.ShouldEqual, http.StatusOK)
			convey.So(rec.Body.String(), convey.ShouldContainSubstring, `"risk":30`)
		})
	})
}

func TestApplyReload(t *testing.T) {
	convey.Convey("Given a running service", t, func() {
		ctx := context.Background()
		svc := service.New(service.WithFullDelay(time.Second))
		defer logger.SetLevel(slog.LevelInfo)

		convey.Convey("When a reloaded config arrives", func() {
			next := config.New(ctx)
			next.LogLevel = "debug"
			next.FullDelayMS = 25

			applyReload(ctx, logger.Get(), svc, next)

			convey.Convey("Then the log level and delay change", func() {
				convey.So(logger.Level(), convey.ShouldEqual, slog.LevelDebug)
				convey.So(svc.FullDelay(), convey.ShouldEqual, 25*time.Millisecond)
			})
		})

		convey.Convey("When the level is invalid", func() {
			applyLogLevel(ctx, logger.Get(), "loud")

			convey.Convey("Then info is used", func() {
				convey.So(logger.Level(), convey.ShouldEqual, slog.LevelInfo)
			})
		})
	})
}

func TestRun(t *testing.T) {
	convey.Convey("Given a config on an ephemeral port", t, func() {
		_ = os.Unsetenv("MEDRISK_CONFIG")
		ctx, cancel := context.WithCancel(context.Background())
		cfg := config.New(ctx)
		cfg.Addr = "127.0.0.1:0"
		cfg.WorkerCount = 2

		convey.Convey("When the context is cancelled", func() {
			done := make(chan error, 1)
			go func() { done <- run(ctx, cfg) }()

			time.Sleep(100 * time.Millisecond)
			cancel()

			convey.Convey("Then run shuts down cleanly", func() {
				select {
				case err := <-done:
					convey.So(err, convey.ShouldBeNil)
				case <-time.After(5 * time.Second):
					convey.So("run did not return", convey.ShouldBeEmpty)
				}
			})
		})
	})
}

func TestSystemMetrics(t *testing.T) {
	convey.Convey("Given the system metrics updater", t, func() {
		convey.Convey("Then a single update does not panic", func() {
			convey.So(updateSystemMetrics, convey.ShouldNotPanic)
		})

		convey.Convey("Then the loop exits when the context ends", func() {
			ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
			defer cancel()
			convey.So(func() { startSystemMetricsUpdater(ctx) }, convey.ShouldNotPanic)
		})
	})
}
