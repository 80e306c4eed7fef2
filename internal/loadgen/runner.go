package loadgen

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/okian/medrisk/pkg/logger"
)

// collector accumulates per-input outcomes.
type collector struct {
	mu        sync.Mutex
	stats     Stats
	jobTotal  time.Duration
	jobsTimed int
}

func (c *collector) add(fn func(s *Stats)) {
	c.mu.Lock()
	fn(&c.stats)
	c.mu.Unlock()
}

func (c *collector) jobLatency(d time.Duration) {
	c.mu.Lock()
	c.jobTotal += d
	c.jobsTimed++
	c.mu.Unlock()
}

func (c *collector) snapshot() Stats {
	c.mu.Lock()
	defer c.mu.Unlock()
	s := c.stats
	if c.jobsTimed > 0 {
		s.AvgJobLatency = c.jobTotal / time.Duration(c.jobsTimed)
	}
	return s
}

// Run generates cfg.Requests inputs, drives them through the light and full
// routes, waits for every accepted job and verifies the answers. The summary
// table goes to out. It returns ErrVerification when any answer disagrees.
func Run(ctx context.Context, cfg Config, out io.Writer) (Stats, error) {
	if err := cfg.validate(); err != nil {
		return Stats{}, err
	}
	cfg = cfg.withDefaults()
	if cfg.Seed == 0 {
		cfg.Seed = uint64(time.Now().UnixNano())
	}

	log := logger.Get().Named("loadgen")
	log.Info(ctx, "starting load run",
		logger.String("baseURL", cfg.BaseURL),
		logger.Int("requests", cfg.Requests),
		logger.Int("workers", cfg.Workers),
		logger.Any("seed", cfg.Seed))

	client := NewClient(cfg.BaseURL, cfg.Timeout)
	if err := client.Health(ctx); err != nil {
		return Stats{}, fmt.Errorf("%w: %w", ErrUnhealthy, err)
	}

	payloads := Generate(cfg.Requests, cfg.Seed)
	if cfg.OutputFile != "" {
		if err := SaveInputs(cfg.OutputFile, payloads); err != nil {
			log.Warn(ctx, "failed to save inputs", logger.Error(err))
		}
	}

	col := &collector{stats: Stats{Requests: len(payloads)}}
	start := time.Now()

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(cfg.Workers)
	for i, p := range payloads {
		if gctx.Err() != nil {
			break
		}
		g.Go(func() error {
			runOne(gctx, log, client, cfg, col, i, p)
			return nil
		})
	}
	_ = g.Wait()

	stats := col.snapshot()
	stats.Duration = time.Since(start)

	RenderSummary(out, stats)
	log.Info(ctx, "load run finished",
		logger.Int("completed", stats.Completed),
		logger.Int("mismatches", stats.Mismatches),
		logger.Duration("duration", stats.Duration))

	if err := ctx.Err(); err != nil {
		return stats, fmt.Errorf("load run interrupted: %w", err)
	}
	if stats.Mismatches > 0 {
		return stats, fmt.Errorf("%w: %d of %d inputs", ErrVerification, stats.Mismatches, stats.Requests)
	}
	return stats, nil
}

func runOne(ctx context.Context, log logger.Logger, client *Client, cfg Config, col *collector, index int, p Payload) {
	light, err := client.Light(ctx, p)
	if err != nil {
		col.add(func(s *Stats) { s.Errors++ })
		log.Debug(ctx, "light prediction failed", logger.Int("index", index), logger.Error(err))
		return
	}
	col.add(func(s *Stats) { s.LightOK++ })

	ack, err := client.Full(ctx, p)
	switch {
	case errors.Is(err, ErrThrottled):
		col.add(func(s *Stats) { s.Backpressured++ })
		return
	case err != nil:
		col.add(func(s *Stats) { s.Errors++ })
		log.Debug(ctx, "full submission failed", logger.Int("index", index), logger.Error(err))
		return
	}
	col.add(func(s *Stats) { s.FullAccepted++ })

	jobCtx, cancel := context.WithTimeout(ctx, cfg.JobTimeout)
	defer cancel()

	started := time.Now()
	j, err := client.Wait(jobCtx, ack.StatusURL, cfg.PollInterval)
	if err != nil {
		col.add(func(s *Stats) { s.Errors++ })
		log.Debug(ctx, "job poll failed", logger.String("jobID", ack.JobID), logger.Error(err))
		return
	}
	col.jobLatency(time.Since(started))

	if j.State == "completed" {
		col.add(func(s *Stats) { s.Completed++ })
	} else {
		col.add(func(s *Stats) { s.JobsFailed++ })
	}

	if problems := verify(light, ack, j); len(problems) > 0 {
		col.add(func(s *Stats) { s.Mismatches++ })
		if cfg.Verbose {
			log.Warn(ctx, "mismatch",
				logger.Int("index", index),
				logger.String("jobID", ack.JobID),
				logger.String("problems", strings.Join(problems, "; ")))
		}
	}
}
