package main

import (
	"context"
	"os"
	"os/signal"
	"runtime"
	"syscall"
	"time"

	"github.com/urfave/cli/v3"

	"github.com/okian/medrisk/internal/loadgen"
	"github.com/okian/medrisk/pkg/logger"
)

// Default configuration constants.
const (
	defaultWorkers = 2 // multiplier for runtime.NumCPU()
	runTimeout     = 10 * time.Minute
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := newCommand().Run(ctx, os.Args); err != nil {
		os.Stderr.WriteString("loadgen failed: " + err.Error() + "\n")
		os.Exit(1)
	}
}

func newCommand() *cli.Command {
	return &cli.Command{
		Name:  "loadgen",
		Usage: "Drive the prediction API with random inputs and verify the answers",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "url", Value: loadgen.DefaultBaseURL, Usage: "Base URL of the service"},
			&cli.IntFlag{Name: "requests", Aliases: []string{"n"}, Value: loadgen.DefaultRequests, Usage: "Number of inputs to generate"},
			&cli.IntFlag{Name: "workers", Value: runtime.NumCPU() * defaultWorkers, Usage: "Number of concurrent workers"},
			&cli.DurationFlag{Name: "timeout", Value: loadgen.DefaultTimeout, Usage: "HTTP request timeout"},
			&cli.DurationFlag{Name: "poll", Value: loadgen.DefaultPollInterval, Usage: "Delay between job polls"},
			&cli.DurationFlag{Name: "job-timeout", Value: loadgen.DefaultJobTimeout, Usage: "Maximum wait for one job"},
			&cli.Uint64Flag{Name: "seed", Usage: "Generator seed (0 picks one)"},
			&cli.StringFlag{Name: "output", Aliases: []string{"o"}, Usage: "Write the generated inputs to this JSON file"},
			&cli.StringFlag{Name: "log-format", Value: logger.FormatText, Usage: "Log format: text or json"},
			&cli.BoolFlag{Name: "verbose", Aliases: []string{"v"}, Usage: "Log every mismatch"},
		},
		Action: runLoad,
	}
}

func runLoad(ctx context.Context, cmd *cli.Command) error {
	if err := logger.InitWith(cmd.String("log-format"), os.Stderr); err != nil {
		return err
	}
	if cmd.Bool("verbose") {
		_ = logger.SetLevelString("debug")
	}

	ctx, cancel := context.WithTimeout(ctx, runTimeout)
	defer cancel()

	_, err := loadgen.Run(ctx, loadgen.Config{
		BaseURL:      cmd.String("url"),
		Requests:     cmd.Int("requests"),
		Workers:      cmd.Int("workers"),
		Timeout:      cmd.Duration("timeout"),
		PollInterval: cmd.Duration("poll"),
		JobTimeout:   cmd.Duration("job-timeout"),
		Seed:         cmd.Uint64("seed"),
		OutputFile:   cmd.String("output"),
		Verbose:      cmd.Bool("verbose"),
	}, os.Stdout)
	return err
}
