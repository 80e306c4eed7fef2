package config_test

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/okian/medrisk/internal/config"
	"github.com/okian/medrisk/pkg/logger"
	"github.com/smartystreets/goconvey/convey"
)

func TestWatch(t *testing.T) {
	convey.Convey("Given a watched config file", t, func() {
		_ = logger.Init()
		clearConfigEnvVars()

		tmpFile := createTempConfigFile("full_delay_ms: 100\n")
		defer func() { _ = os.Remove(tmpFile) }()

		ctx, cancel := context.WithCancel(context.Background())
		defer cancel()

		changes := make(chan *config.Config, 4)
		done := make(chan error, 1)
		go func() {
			done <- config.Watch(ctx, tmpFile, func(c *config.Config) { changes <- c })
		}()
		time.Sleep(100 * time.Millisecond)

		convey.Convey("When the file is rewritten with a valid value", func() {
			convey.So(os.WriteFile(tmpFile, []byte("full_delay_ms: 10\nlog_level: debug\n"), 0o600), convey.ShouldBeNil)

			convey.Convey("Then the reloaded config is delivered", func() {
				// A truncating write can surface an intermediate empty file first.
				var got *config.Config
				timeout := time.After(3 * time.Second)
				for got == nil || got.FullDelayMS != 10 {
					select {
					case got = <-changes:
					case <-timeout:
						convey.So("no reload observed", convey.ShouldBeEmpty)
						return
					}
				}
				convey.So(got.LogLevel, convey.ShouldEqual, "debug")
			})
		})

		convey.Convey("When a new file is renamed over the watched path", func() {
			staged := tmpFile + ".new"
			defer func() { _ = os.Remove(staged) }()
			convey.So(os.WriteFile(staged, []byte("full_delay_ms: 20\n"), 0o600), convey.ShouldBeNil)
			convey.So(os.Rename(staged, tmpFile), convey.ShouldBeNil)

			convey.Convey("Then the replacement is picked up", func() {
				var got *config.Config
				timeout := time.After(3 * time.Second)
				for got == nil || got.FullDelayMS != 20 {
					select {
					case got = <-changes:
					case <-timeout:
						convey.So("no reload observed", convey.ShouldBeEmpty)
						return
					}
				}
				convey.So(got.FullDelayMS, convey.ShouldEqual, 20)
			})

			convey.Convey("And a later in-place write is still seen", func() {
				convey.So(os.WriteFile(tmpFile, []byte("full_delay_ms: 30\n"), 0o600), convey.ShouldBeNil)

				var got *config.Config
				timeout := time.After(3 * time.Second)
				for got == nil || got.FullDelayMS != 30 {
					select {
					case got = <-changes:
					case <-timeout:
						convey.So("no reload observed", convey.ShouldBeEmpty)
						return
					}
				}
				convey.So(got.FullDelayMS, convey.ShouldEqual, 30)
			})
		})

		convey.Convey("When the file is rewritten with invalid content", func() {
			convey.So(os.WriteFile(tmpFile, []byte("queue_size: -5\n"), 0o600), convey.ShouldBeNil)

			convey.Convey("Then the invalid config is never delivered", func() {
				timeout := time.After(300 * time.Millisecond)
				for {
					select {
					case c := <-changes:
						convey.So(c.QueueSize, convey.ShouldBeGreaterThanOrEqualTo, 0)
						continue
					case <-timeout:
					}
					break
				}
			})
		})

		convey.Convey("When the context is cancelled", func() {
			cancel()

			convey.Convey("Then Watch returns without error", func() {
				select {
				case err := <-done:
					convey.So(err, convey.ShouldBeNil)
				case <-time.After(3 * time.Second):
					convey.So("watch did not stop", convey.ShouldBeEmpty)
				}
			})
		})
	})

	convey.Convey("Given a path that does not exist", t, func() {
		_ = logger.Init()
		err := config.Watch(context.Background(), "/non/existent/medrisk.yaml", func(*config.Config) {})

		convey.Convey("Then Watch fails immediately", func() {
			convey.So(err, convey.ShouldNotBeNil)
		})
	})
}
