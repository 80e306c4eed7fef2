package loadgen

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	. "github.com/smartystreets/goconvey/convey"

	"github.com/okian/medrisk/internal/adapters/http/api"
	service "github.com/okian/medrisk/internal/app"
	"github.com/okian/medrisk/internal/domain/scoring"
	"github.com/okian/medrisk/pkg/logger"
)

func init() {
	if err := logger.Init(); err != nil {
		panic(err)
	}
}

func startServer(ctx context.Context, opts ...service.Option) (*httptest.Server, *service.Service) {
	svc := service.New(append([]service.Option{service.WithWorkerCount(4), service.WithFullDelay(0)}, opts...)...)
	if err := svc.Start(ctx); err != nil {
		panic(err)
	}
	mux := http.NewServeMux()
	api.NewServer(svc).Register(ctx, mux)
	return httptest.NewServer(mux), svc
}

func TestGenerate(t *testing.T) {
	Convey("Given the payload generator", t, func() {
		Convey("When the same seed is used twice", func() {
			a := Generate(50, 7)
			b := Generate(50, 7)

			Convey("Then the payloads are identical", func() {
				So(a, ShouldResemble, b)
			})
		})

		Convey("When many payloads are generated", func() {
			payloads := Generate(500, 42)

			Convey("Then every value is non-negative and presence varies", func() {
				absent := 0
				for _, p := range payloads {
					if p.HoursSinceLastDose != nil {
						So(*p.HoursSinceLastDose, ShouldBeBetweenOrEqual, 0, maxHours)
					} else {
						absent++
					}
					if p.SymptomSeverity != nil {
						So(*p.SymptomSeverity, ShouldBeGreaterThanOrEqualTo, 0)
					}
					if p.MissionsLast24h != nil {
						So(*p.MissionsLast24h, ShouldBeBetweenOrEqual, 0, maxMissions)
					}
				}
				So(absent, ShouldBeGreaterThan, 0)
				So(absent, ShouldBeLessThan, len(payloads))
			})
		})
	})
}

func TestVerify(t *testing.T) {
	Convey("Given a consistent light answer and job", t, func() {
		light := scoring.Result{Risk: 81, Confidence: 98, Explanation: "x", ModelVersion: scoring.LightModelVersion}
		full := scoring.FullResult{Result: light, FatigueScore: 68.7}
		full.ModelVersion = scoring.FullModelVersion
		ack := FullAck{JobID: "j", DataPreview: light}
		j := JobStatus{JobID: "j", State: "completed", Preview: light, Result: &full}

		Convey("Then no problem is reported", func() {
			So(verify(light, ack, j), ShouldBeEmpty)
		})

		Convey("When the full risk drifts", func() {
			full.Risk = 80

			Convey("Then the mismatch is reported", func() {
				problems := verify(light, ack, j)
				So(len(problems), ShouldEqual, 1)
				So(problems[0], ShouldContainSubstring, "full risk")
			})
		})

		Convey("When the preview differs from the light answer", func() {
			ack.DataPreview.Risk = 1

			Convey("Then both preview checks fail", func() {
				So(len(verify(light, ack, j)), ShouldEqual, 2)
			})
		})

		Convey("When the job failed", func() {
			j.State = "failed"
			j.Result = nil

			Convey("Then only the light checks apply", func() {
				So(verify(light, ack, j), ShouldBeEmpty)
			})
		})

		Convey("When confidence is out of bounds", func() {
			light.Confidence = 100
			ack.DataPreview = light
			j.Preview = light
			full.Confidence = 100

			Convey("Then the bound is reported", func() {
				So(verify(light, ack, j), ShouldContain, "light confidence 100.0 out of bounds")
			})
		})
	})
}

func TestRun(t *testing.T) {
	Convey("Given a running service", t, func() {
		ctx, cancel := context.WithCancel(context.Background())
		defer cancel()
		srv, svc := startServer(ctx)
		defer srv.Close()
		defer svc.Stop()

		Convey("When a load run completes", func() {
			var out bytes.Buffer
			output := filepath.Join(t.TempDir(), "inputs", "payloads.json")
			stats, err := Run(ctx, Config{
				BaseURL:      srv.URL,
				Requests:     40,
				Workers:      4,
				PollInterval: 5 * time.Millisecond,
				Seed:         1,
				OutputFile:   output,
			}, &out)

			Convey("Then every job is verified and the summary is rendered", func() {
				So(err, ShouldBeNil)
				So(stats.Requests, ShouldEqual, 40)
				So(stats.LightOK, ShouldEqual, 40)
				So(stats.Completed+stats.Backpressured, ShouldEqual, 40)
				So(stats.Mismatches, ShouldEqual, 0)
				So(stats.Errors, ShouldEqual, 0)
				So(out.String(), ShouldContainSubstring, "PASS")
				So(out.String(), ShouldContainSubstring, "Jobs completed")
			})

			Convey("And the inputs were saved", func() {
				data, err := os.ReadFile(output)
				So(err, ShouldBeNil)
				var saved []Payload
				So(json.Unmarshal(data, &saved), ShouldBeNil)
				So(saved, ShouldResemble, Generate(40, 1))
			})
		})
	})

	Convey("Given an unreachable service", t, func() {
		srv := httptest.NewServer(http.NotFoundHandler())
		srv.Close()

		Convey("When a load run starts", func() {
			_, err := Run(context.Background(), Config{BaseURL: srv.URL, Requests: 1, Workers: 1, Timeout: time.Second}, &bytes.Buffer{})

			Convey("Then it fails the health check", func() {
				So(errors.Is(err, ErrUnhealthy), ShouldBeTrue)
			})
		})
	})

	Convey("Given an invalid config", t, func() {
		_, err := Run(context.Background(), Config{}, &bytes.Buffer{})

		Convey("Then it is rejected before any request", func() {
			So(errors.Is(err, ErrInvalidInput), ShouldBeTrue)
		})
	})
}

func TestStatusError(t *testing.T) {
	Convey("Given a 429 status error", t, func() {
		err := error(&StatusError{Code: http.StatusTooManyRequests, Body: "{}"})

		Convey("Then it matches ErrThrottled", func() {
			So(errors.Is(err, ErrThrottled), ShouldBeTrue)
			So(errors.Is(&StatusError{Code: http.StatusInternalServerError}, ErrThrottled), ShouldBeFalse)
		})
	})
}
