package main

import (
	"context"
	"fmt"
	"os/signal"
	"syscall"
	"time"

	"github.com/gammazero/workerpool"
	gonanoid "github.com/matoous/go-nanoid/v2"
	"github.com/spf13/cobra"

	"github.com/dataplane-io/datashare/share"
	"github.com/dataplane-io/datashare/store"
)

const runIDAlphabet = "abcdefghijklmnopqrstuvwxyz0123456789"

// staleTaskAge bounds how long a task may sit in the running state before a
// starting worker assumes its previous owner died and requeues it.
const staleTaskAge = 30 * time.Minute

func newWorkerCmd(opts *options) *cobra.Command {
	var (
		poolSize     int
		pollInterval time.Duration
	)

	cmd := &cobra.Command{
		Use:   "worker",
		Short: "Process queued share tasks until interrupted",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			rt, err := newRuntime(ctx, opts)
			if err != nil {
				return err
			}
			defer func() { _ = rt.Close() }()

			return runWorker(ctx, rt, poolSize, pollInterval)
		},
	}

	cmd.Flags().IntVar(&poolSize, "pool-size", 10, "number of concurrent share runs")
	cmd.Flags().DurationVar(&pollInterval, "poll-interval", 5*time.Second, "delay between queue polls")

	return cmd
}

func runWorker(ctx context.Context, rt *runtime, poolSize int, pollInterval time.Duration) error {
	pool := workerpool.New(poolSize)
	defer pool.StopWait()

	share.Logger.Info(fmt.Sprintf("Worker started with pool size %d", poolSize))

	requeued, err := rt.store.RequeueStaleTasks(ctx, staleTaskAge)
	if err != nil {
		return fmt.Errorf("requeueing stale tasks: %w", err)
	}

	if requeued > 0 {
		share.Logger.Info(fmt.Sprintf("Requeued %d stale running tasks", requeued))
	}

	ticker := time.NewTicker(pollInterval)
	defer ticker.Stop()

	for {
		tasks, err := rt.store.DequeueTasks(ctx, poolSize)
		if err != nil {
			share.Logger.Error(fmt.Sprintf("Dequeue failed: %s", err.Error()))
		}

		for _, task := range tasks {
			task := task
			pool.Submit(func() {
				processTask(ctx, rt, task)
			})
		}

		select {
		case <-ctx.Done():
			share.Logger.Info("Worker shutting down")
			return nil
		case <-ticker.C:
		}
	}
}

func processTask(ctx context.Context, rt *runtime, task *store.Task) {
	runID := gonanoid.MustGenerate(runIDAlphabet, 8)

	share.Logger.Info(fmt.Sprintf("Run %s: %s share %s (task %s)", runID, task.Action, task.ShareID, task.ID))

	var err error

	switch task.Action {
	case store.TaskActionApprove:
		err = rt.reconciler.Approve(ctx, task.ShareID)
	case store.TaskActionReject:
		err = rt.reconciler.Reject(ctx, task.ShareID)
	default:
		err = fmt.Errorf("unknown task action %q", task.Action)
	}

	if err != nil {
		share.Logger.Error(fmt.Sprintf("Run %s failed: %s", runID, err.Error()))
	} else {
		share.Logger.Info(fmt.Sprintf("Run %s completed", runID))
	}

	if cerr := rt.store.CompleteTask(ctx, task.ID, err); cerr != nil {
		share.Logger.Error(fmt.Sprintf("Run %s: recording task outcome failed: %s", runID, cerr.Error()))
	}
}
