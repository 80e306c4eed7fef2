package dedupe_test

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"

	dedupe "github.com/okian/medrisk/internal/domain/dedupe"
	. "github.com/smartystreets/goconvey/convey"
)

func TestInMemoryDeduper(t *testing.T) {
	Convey("Given a new InMemoryDeduper", t, func() {
		ctx := context.Background()

		Convey("When creating a deduper with default options", func() {
			d := dedupe.NewInMemoryDeduper()

			Convey("Then it should be empty", func() {
				So(d, ShouldNotBeNil)
				So(d.Size(), ShouldEqual, 0)
			})
		})

		Convey("When claiming keys", func() {
			d := dedupe.NewInMemoryDeduper()

			Convey("And the key is new", func() {
				owner, seen := d.Claim(ctx, "key-1", "job-1")

				Convey("Then the caller owns it", func() {
					So(seen, ShouldBeFalse)
					So(owner, ShouldEqual, "job-1")
					So(d.Size(), ShouldEqual, 1)
				})
			})

			Convey("And the key was already claimed", func() {
				d.Claim(ctx, "key-1", "job-1")
				owner, seen := d.Claim(ctx, "key-1", "job-2")

				Convey("Then the original job id is returned", func() {
					So(seen, ShouldBeTrue)
					So(owner, ShouldEqual, "job-1")
					So(d.Size(), ShouldEqual, 1)
				})
			})

			Convey("And the key is released", func() {
				d.Claim(ctx, "key-1", "job-1")
				d.Release(ctx, "key-1", "job-1")
				owner, seen := d.Claim(ctx, "key-1", "job-2")

				Convey("Then it can be claimed again", func() {
					So(seen, ShouldBeFalse)
					So(owner, ShouldEqual, "job-2")
				})
			})

			Convey("And the key is released for a job that does not own it", func() {
				d.Claim(ctx, "key-1", "job-1")
				d.Release(ctx, "key-1", "job-2")
				owner, seen := d.Claim(ctx, "key-1", "job-3")

				Convey("Then the original claim survives", func() {
					So(seen, ShouldBeTrue)
					So(owner, ShouldEqual, "job-1")
					So(d.Size(), ShouldEqual, 1)
				})
			})

			Convey("And an unknown key is released", func() {
				d.Release(ctx, "missing", "job-1")

				Convey("Then nothing changes", func() {
					So(d.Size(), ShouldEqual, 0)
				})
			})
		})

		Convey("When the cache is bounded", func() {
			d := dedupe.NewInMemoryDeduper(dedupe.WithMaxSize(3))
			for i := 1; i <= 4; i++ {
				d.Claim(ctx, fmt.Sprintf("key-%d", i), fmt.Sprintf("job-%d", i))
			}

			Convey("Then the oldest key is evicted first", func() {
				So(d.Size(), ShouldEqual, 3)
				_, seen := d.Claim(ctx, "key-4", "other")
				So(seen, ShouldBeTrue)
				_, seen = d.Claim(ctx, "key-1", "job-1b")
				So(seen, ShouldBeFalse)
				So(d.Size(), ShouldEqual, 3)
			})
		})

		Convey("When the cache is unbounded", func() {
			d := dedupe.NewInMemoryDeduper(dedupe.WithMaxSize(0))
			for i := 0; i < 1000; i++ {
				d.Claim(ctx, fmt.Sprintf("key-%d", i), "job")
			}

			Convey("Then nothing is evicted", func() {
				So(d.Size(), ShouldEqual, 1000)
			})
		})

		Convey("When many goroutines claim the same key", func() {
			d := dedupe.NewInMemoryDeduper()
			var winners atomic.Int64
			var wg sync.WaitGroup
			for i := 0; i < 50; i++ {
				wg.Add(1)
				go func(i int) {
					defer wg.Done()
					if _, seen := d.Claim(ctx, "shared", fmt.Sprintf("job-%d", i)); !seen {
						winners.Add(1)
					}
				}(i)
			}
			wg.Wait()

			Convey("Then exactly one claim wins", func() {
				So(winners.Load(), ShouldEqual, 1)
				So(d.Size(), ShouldEqual, 1)
			})
		})
	})
}
