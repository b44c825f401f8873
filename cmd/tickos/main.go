package main

import (
	"context"
	"errors"
	"flag"
	"log"
	"os"
	"os/signal"
	"sync/atomic"
	"syscall"
	"time"

	"golang.org/x/sync/errgroup"

	"tickos/internal/config"
	"tickos/internal/cpu"
	"tickos/internal/job"
	"tickos/internal/kernel"
	"tickos/internal/msg"
	"tickos/internal/sched"
	"tickos/internal/timer"
)

const greeting = "hello from tickos\n"

func main() {
	configPath := flag.String("config", "config.yml", "path to the YAML configuration")
	runFor := flag.Duration("for", 5*time.Second, "how long to run; 0 runs until interrupted")
	flag.Parse()

	logger := log.New(os.Stderr, "tickos: ", log.LstdFlags|log.Lmicroseconds)

	// Read the configuration
	cfg := config.Load(*configPath)
	logger.Printf("loaded config: %+v", cfg)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	if *runFor > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, *runFor)
		defer cancel()
	}

	status := make(chan sched.StatusEvent, 1024)
	trace := sched.NewTrace(os.Stdout)
	if cfg.TraceCSV != "" {
		if err := trace.EnableCSVLogging(cfg.TraceCSV); err != nil {
			logger.Fatalf("enable csv trace: %v", err)
		}
	}

	c := cpu.New(cpu.WithLogger(logger))
	clock := cpu.NewClock(c, cpu.VectorLAPICTimer)

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return trace.Run(ctx, status)
	})
	g.Go(func() error {
		return config.Watch(ctx, *configPath, func(next config.Config) {
			logger.Printf("config changed, ticking every %s", next.TickInterval())
			clock.Reset(next.TickInterval())
		}, func(err error) {
			logger.Printf("config watch: %v", err)
		})
	})
	g.Go(func() error {
		// this goroutine becomes the main task
		k, err := kernel.New(cfg, c, kernel.WithLogger(logger), kernel.WithStatus(status))
		if err != nil {
			return err
		}
		if err := boot(k, logger); err != nil {
			return err
		}

		clock.Start(cfg.TickInterval())
		defer clock.Stop()
		return k.Run(ctx)
	})

	err := g.Wait()
	if err != nil && !errors.Is(err, context.Canceled) && !errors.Is(err, context.DeadlineExceeded) {
		logger.Fatal(err)
	}
	logger.Printf("shut down after %d clock interrupts", clock.Count())
}

// boot spawns the demo workload and installs the event handlers. A periodic
// application timer keeps the event loop turning so that it notices
// cancellation, and feeds the echo task one character per period.
func boot(k *kernel.Kernel, logger *log.Logger) error {
	echo, err := k.Spawn(2, job.Echo(k, os.Stdout), 0)
	if err != nil {
		return err
	}

	var spins atomic.Int64
	if _, err := k.Spawn(1, job.Spin(k, &spins), 0); err != nil {
		return err
	}
	sleeper := job.SleepWork(k, 3*timer.Freq, func(id sched.TaskID) {
		logger.Printf("task %d: done waiting at tick %d, spinner at %d loops",
			id, k.Timers().CurrentTick(), spins.Load())
	})
	if _, err := k.Spawn(1, sleeper, 0); err != nil {
		return err
	}

	period := uint64(timer.Freq / 10)
	k.Handle(msg.KindTimerTimeout, func(m msg.Message) {
		i := m.Timer.Value
		if i < len(greeting) {
			err := k.Tasks().SendMessage(echo.ID(), msg.KeyPush(uint64(k.Main().ID()), greeting[i], true))
			if err != nil {
				logger.Printf("send to echo: %v", err)
			}
		}
		if err := k.AddTimer(period, i+1); err != nil {
			logger.Printf("rearm app timer: %v", err)
		}
	})
	return k.AddTimer(period, 0)
}
