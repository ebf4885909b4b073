package main

import (
	"github.com/spf13/cobra"

	"github.com/dataplane-io/datashare/store"
)

func newApproveCmd(opts *options) *cobra.Command {
	var enqueue bool

	cmd := &cobra.Command{
		Use:   "approve <share-id>",
		Short: "Grant a share's tables and folders to its target principal",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()

			rt, err := newRuntime(ctx, opts)
			if err != nil {
				return err
			}
			defer func() { _ = rt.Close() }()

			if enqueue {
				taskID, err := rt.store.EnqueueTask(ctx, args[0], store.TaskActionApprove)
				if err != nil {
					return err
				}

				cmd.Printf("enqueued task %s\n", taskID)

				return nil
			}

			return rt.reconciler.Approve(ctx, args[0])
		},
	}

	cmd.Flags().BoolVar(&enqueue, "enqueue", false, "queue the run for a worker instead of processing inline")

	return cmd
}
