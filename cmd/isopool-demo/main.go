// Command isopool-demo is a runnable demonstration harness for package
// pool: it boots a pool against the isopool-worker binary, drives one
// of the protocol's end-to-end scenarios against it, and prints the
// resulting stats — the cobra-based equivalent of the teacher's
// flag-parsed HTTP orchestrator, scoped to a task pool instead of a
// browser-session proxy.
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/hackstrix/isopool/pool"
)

var version = "dev"

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:   "isopool-demo",
		Short: "Drive a pool.Pool against the isopool-worker binary",
	}
	root.AddCommand(newRunCmd(), newStatsCmd(), newVersionCmd())
	return root
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print the build version",
		RunE: func(cmd *cobra.Command, args []string) error {
			fmt.Println(version)
			return nil
		},
	}
}

func newRunCmd() *cobra.Command {
	var (
		workerPath string
		minWorkers int
		maxWorkers int
		priority   bool
	)

	cmd := &cobra.Command{
		Use:   "run",
		Short: "Start a pool, submit a small workload, print stats, then shut down",
		RunE: func(cmd *cobra.Command, args []string) error {
			logger, err := zap.NewDevelopment()
			if err != nil {
				return fmt.Errorf("build logger: %w", err)
			}
			defer logger.Sync()

			cfg := pool.Config{
				WorkerPath:           workerPath,
				MinPoolSize:          minWorkers,
				MaxPoolSize:          maxWorkers,
				UsePriorityTaskQueue: priority,
			}

			p, err := pool.New(cfg, logger)
			if err != nil {
				return fmt.Errorf("start pool: %w", err)
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			if err := runAddWorkload(ctx, p, logger); err != nil {
				logger.Error("workload failed", zap.Error(err))
			}

			stats := p.Stats()
			logger.Info("final stats",
				zap.Int("available_workers", stats.AvailableWorkers),
				zap.Int("idle_workers", stats.IdleWorkers),
				zap.Int("running_tasks", stats.RunningTasks),
				zap.Int("queued_tasks", stats.QueuedTasks),
			)

			return p.Close()
		},
	}

	cmd.Flags().StringVar(&workerPath, "worker-path", "./isopool-worker", "path to the isopool-worker binary")
	cmd.Flags().IntVar(&minWorkers, "min-workers", 1, "minimum (starting) number of worker processes")
	cmd.Flags().IntVar(&maxWorkers, "max-workers", 4, "maximum number of worker processes (auto-scaling ceiling)")
	cmd.Flags().BoolVar(&priority, "priority", false, "run with the priority task queue instead of FIFO")

	return cmd
}

// newStatsCmd boots a pool, lets its initial workers come up, prints a
// single Stats snapshot as JSON, then tears the pool down — useful for
// checking that a worker binary and pool size settings actually produce
// a healthy pool without running a workload through it.
func newStatsCmd() *cobra.Command {
	var (
		workerPath string
		minWorkers int
		maxWorkers int
	)

	cmd := &cobra.Command{
		Use:   "stats",
		Short: "Start a pool and print its stats snapshot",
		RunE: func(cmd *cobra.Command, args []string) error {
			logger, err := zap.NewDevelopment()
			if err != nil {
				return fmt.Errorf("build logger: %w", err)
			}
			defer logger.Sync()

			cfg := pool.Config{
				WorkerPath:  workerPath,
				MinPoolSize: minWorkers,
				MaxPoolSize: maxWorkers,
			}

			p, err := pool.New(cfg, logger)
			if err != nil {
				return fmt.Errorf("start pool: %w", err)
			}
			defer p.Close()

			deadline := time.Now().Add(10 * time.Second)
			for p.Stats().IdleWorkers < minWorkers && time.Now().Before(deadline) {
				time.Sleep(10 * time.Millisecond)
			}

			stats := p.Stats()
			enc := json.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent("", "  ")
			return enc.Encode(stats)
		},
	}

	cmd.Flags().StringVar(&workerPath, "worker-path", "./isopool-worker", "path to the isopool-worker binary")
	cmd.Flags().IntVar(&minWorkers, "min-workers", 1, "minimum (starting) number of worker processes")
	cmd.Flags().IntVar(&maxWorkers, "max-workers", 4, "maximum number of worker processes (auto-scaling ceiling)")

	return cmd
}

type addArgs struct {
	A float64 `json:"a"`
	B float64 `json:"b"`
}

// runAddWorkload mirrors scenario A from the pool's test suite: a ping,
// then three adds, each awaited before the next is submitted,
// demonstrating dispatch and completion resolution end to end.
func runAddWorkload(ctx context.Context, p *pool.Pool, logger *zap.Logger) error {
	ctx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()

	if _, err := submitAndWait(ctx, p, "ping", nil); err != nil {
		return fmt.Errorf("ping: %w", err)
	}

	pairs := []addArgs{{A: 2, B: 7}, {A: 10, B: 8}, {A: 18, B: 9}}
	for _, args := range pairs {
		data, err := json.Marshal(args)
		if err != nil {
			return err
		}
		result, err := submitAndWait(ctx, p, "add", data)
		if err != nil {
			return fmt.Errorf("add(%v,%v): %w", args.A, args.B, err)
		}
		logger.Info("add result", zap.Float64("a", args.A), zap.Float64("b", args.B), zap.ByteString("result", result))
	}

	return nil
}

func submitAndWait(ctx context.Context, p *pool.Pool, taskType string, data []byte) ([]byte, error) {
	completion, err := p.Submit(ctx, pool.Task{Type: taskType, Data: data})
	if err != nil {
		return nil, err
	}
	return completion.Wait(ctx)
}
