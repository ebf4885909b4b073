package main

import (
	"github.com/spf13/cobra"

	"github.com/dataplane-io/datashare/store"
)

func newRejectCmd(opts *options) *cobra.Command {
	var enqueue bool

	cmd := &cobra.Command{
		Use:   "reject <share-id>",
		Short: "Revoke a share's grants from its target principal",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()

			rt, err := newRuntime(ctx, opts)
			if err != nil {
				return err
			}
			defer func() { _ = rt.Close() }()

			if enqueue {
				taskID, err := rt.store.EnqueueTask(ctx, args[0], store.TaskActionReject)
				if err != nil {
					return err
				}

				cmd.Printf("enqueued task %s\n", taskID)

				return nil
			}

			return rt.reconciler.Reject(ctx, args[0])
		},
	}

	cmd.Flags().BoolVar(&enqueue, "enqueue", false, "queue the run for a worker instead of processing inline")

	return cmd
}
